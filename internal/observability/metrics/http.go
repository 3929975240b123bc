package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var bucketBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type requestKey struct {
	handler string
	method  string
	code    string
}

type latencyKey struct {
	handler string
	method  string
}

type taskKey struct {
	intent string
	status string
}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for i, bound := range bucketBounds {
		if value <= bound {
			for ; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
	// 超出最大桶的观测只计入隐式 +Inf 桶（即 h.count）。
}

type collector struct {
	mu       sync.Mutex
	requests map[requestKey]uint64
	errors   map[latencyKey]uint64
	latency  map[latencyKey]*histogram
	tasks    map[taskKey]uint64
}

var defaultCollector = &collector{
	requests: make(map[requestKey]uint64),
	errors:   make(map[latencyKey]uint64),
	latency:  make(map[latencyKey]*histogram),
	tasks:    make(map[taskKey]uint64),
}

// ObserveHTTPRequest 记录一次 HTTP 请求的状态码与耗时。
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c := defaultCollector
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestKey{handler, method, strconv.Itoa(status)}]++
	key := latencyKey{handler, method}
	if status >= 500 {
		c.errors[key]++
	}
	hist := c.latency[key]
	if hist == nil {
		hist = &histogram{counts: make([]uint64, len(bucketBounds))}
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveTask 记录一次任务状态流转，按意图打标签。
func ObserveTask(intent, status string) {
	c := defaultCollector
	c.mu.Lock()
	c.tasks[taskKey{intent, status}]++
	c.mu.Unlock()
}

// Handler 以 Prometheus 文本格式暴露所有指标。
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(defaultCollector.render()))
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.Grow(1024)
	c.writeRequests(&b)
	c.writeErrors(&b)
	c.writeLatency(&b)
	c.writeTasks(&b)
	return b.String()
}

func (c *collector) writeRequests(b *strings.Builder) {
	b.WriteString("# HELP assistant_http_requests_total Total number of HTTP requests processed.\n")
	b.WriteString("# TYPE assistant_http_requests_total counter\n")
	keys := make([]requestKey, 0, len(c.requests))
	for key := range c.requests {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, z := keys[i], keys[j]
		if a.handler != z.handler {
			return a.handler < z.handler
		}
		if a.method != z.method {
			return a.method < z.method
		}
		return a.code < z.code
	})
	for _, key := range keys {
		fmt.Fprintf(b, "assistant_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			escape(key.handler), escape(key.method), escape(key.code), c.requests[key])
	}
}

func (c *collector) writeErrors(b *strings.Builder) {
	b.WriteString("# HELP assistant_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	b.WriteString("# TYPE assistant_http_request_errors_total counter\n")
	for _, key := range sortedLatencyKeys(c.errors) {
		fmt.Fprintf(b, "assistant_http_request_errors_total{handler=%q,method=%q} %d\n",
			escape(key.handler), escape(key.method), c.errors[key])
	}
}

func (c *collector) writeLatency(b *strings.Builder) {
	b.WriteString("# HELP assistant_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE assistant_http_request_duration_seconds histogram\n")
	keys := make([]latencyKey, 0, len(c.latency))
	for key := range c.latency {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].handler != keys[j].handler {
			return keys[i].handler < keys[j].handler
		}
		return keys[i].method < keys[j].method
	})
	for _, key := range keys {
		hist := c.latency[key]
		handler, method := escape(key.handler), escape(key.method)
		for i, bound := range bucketBounds {
			fmt.Fprintf(b, "assistant_http_request_duration_seconds_bucket{handler=%q,method=%q,le=%q} %d\n",
				handler, method, formatFloat(bound), hist.counts[i])
		}
		fmt.Fprintf(b, "assistant_http_request_duration_seconds_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n",
			handler, method, hist.count)
		fmt.Fprintf(b, "assistant_http_request_duration_seconds_sum{handler=%q,method=%q} %s\n",
			handler, method, formatFloat(hist.sum))
		fmt.Fprintf(b, "assistant_http_request_duration_seconds_count{handler=%q,method=%q} %d\n",
			handler, method, hist.count)
	}
}

func (c *collector) writeTasks(b *strings.Builder) {
	b.WriteString("# HELP assistant_task_transitions_total Total number of task status transitions labelled by intent.\n")
	b.WriteString("# TYPE assistant_task_transitions_total counter\n")
	keys := make([]taskKey, 0, len(c.tasks))
	for key := range c.tasks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].intent != keys[j].intent {
			return keys[i].intent < keys[j].intent
		}
		return keys[i].status < keys[j].status
	})
	for _, key := range keys {
		fmt.Fprintf(b, "assistant_task_transitions_total{intent=%q,status=%q} %d\n",
			escape(key.intent), escape(key.status), c.tasks[key])
	}
}

func sortedLatencyKeys(m map[latencyKey]uint64) []latencyKey {
	keys := make([]latencyKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].handler != keys[j].handler {
			return keys[i].handler < keys[j].handler
		}
		return keys[i].method < keys[j].method
	})
	return keys
}

// escape 只负责去掉换行，引号和反斜杠由 %q 处理。
func escape(value string) string {
	return strings.ReplaceAll(value, "\n", " ")
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
