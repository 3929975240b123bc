package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Himanshu-is-code/AMD-HACK/internal/auth"
	"github.com/Himanshu-is-code/AMD-HACK/internal/connectivity"
	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/observability/metrics"
	"github.com/Himanshu-is-code/AMD-HACK/internal/task"
	"github.com/Himanshu-is-code/AMD-HACK/pkg/logger"
)

// Server 负责暴露 REST 接口，供外部驱动任务编排引擎。
type Server struct {
	addr         string
	orchestrator *task.Orchestrator
	probe        connectivity.Probe
	authSvc      *auth.Service
	timeout      time.Duration
}

// Option 调整 Server 的可选行为。
type Option func(*Server)

// WithAuthService 为可变更端点启用身份验证。
func WithAuthService(svc *auth.Service) Option {
	return func(s *Server) { s.authSvc = svc }
}

// WithRequestTimeout 设置单个请求的处理超时。
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, orchestrator *task.Orchestrator, probe connectivity.Probe, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		orchestrator: orchestrator,
		probe:        probe,
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回完整的路由表，便于测试直接挂载。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/tasks", s.protect(s.instrument("tasks_create", s.handleSubmit)))
	mux.Handle("GET /api/v1/tasks", s.instrument("tasks_list", s.handleList))
	mux.Handle("GET /api/v1/tasks/stats", s.instrument("tasks_stats", s.handleStats))
	mux.Handle("GET /api/v1/tasks/{id}", s.instrument("tasks_get", s.handleGet))
	mux.Handle("POST /api/v1/tasks/{id}/complete", s.protect(s.instrument("tasks_complete", s.handleComplete)))
	mux.Handle("POST /api/v1/tasks/{id}/resume", s.instrument("tasks_resume", s.handleResume))
	mux.Handle("GET /api/v1/connectivity", s.instrument("connectivity", s.handleConnectivity))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// protect 在认证服务启用时为可变更端点套上认证中间件。
func (s *Server) protect(next http.Handler) http.Handler {
	if s.authSvc == nil || s.authSvc.Mode() == auth.ModeDisabled {
		return next
	}
	return s.authSvc.Middleware(auth.MiddlewareConfig{})(next)
}

// instrument 为处理器加上超时与指标采集。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r.WithContext(ctx))
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type submitPayload struct {
	Text       string `json:"text"`
	ClientTime string `json:"client_time,omitempty"`
}

type completePayload struct {
	PlanUpdate string        `json:"plan_update,omitempty"`
	Sources    []task.Source `json:"sources,omitempty"`
}

type resumePayload struct {
	Credential string `json:"credential,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}
	created, err := s.orchestrator.Submit(r.Context(), task.SubmitRequest{
		Text:       payload.Text,
		ClientTime: payload.ClientTime,
	})
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	opts := []task.ListOption{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit 参数非法")
			return
		}
		opts = append(opts, task.WithLimit(parsed))
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses := make([]task.Status, 0, 2)
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.TrimSpace(part))
			if !task.IsValidStatus(status) {
				writeError(w, http.StatusBadRequest, "status 参数非法")
				return
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	tasks, err := s.orchestrator.List(r.Context(), opts...)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orchestrator.Stats(r.Context())
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	found, err := s.orchestrator.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var payload completePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}
	completed, err := s.orchestrator.Complete(r.Context(), r.PathValue("id"), task.CompleteRequest{
		PlanUpdate: payload.PlanUpdate,
		Sources:    payload.Sources,
	})
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completed)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	payload := resumePayload{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "请求体解析失败")
			return
		}
	}
	resumed, err := s.orchestrator.Resume(r.Context(), r.PathValue("id"), payload.Credential)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resumed)
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	online := false
	if s.probe != nil {
		online = s.probe.IsReachable(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]bool{"online": online})
}

// writeTaskError 将引擎错误映射为 HTTP 状态码。
// 任务执行失败本身不算请求失败：失败的任务仍以 200 返回其快照。
func (s *Server) writeTaskError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case task.CodeTaskNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case task.CodeTaskValidation, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case xerrors.CodeUnauthorized:
		status = http.StatusUnauthorized
	case task.CodeTaskConflict, xerrors.CodeConflict:
		status = http.StatusConflict
	}
	if status >= 500 {
		logger.L().Error("请求处理失败", slog.Any("error", err))
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
