package intent

import (
	"regexp"
	"strings"
)

// rule 将一组触发词绑定到一个意图。触发词按整词匹配，
// 避免 "meet" 误命中 "meeting" 这类前缀。
type rule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

// RuleClassifier 基于关键词表做意图识别，不依赖任何模型后端。
type RuleClassifier struct {
	rules []rule
	// strictOnline 中的关键词无条件意味着需要联网，优先于意图判定。
	strictOnline []string
}

// defaultTriggers 按意图列出触发词。顺序即优先级：
// 靠前的意图在多重命中时胜出。
var defaultTriggers = []struct {
	intent   Intent
	triggers []string
}{
	{IntentMeet, []string{
		"meet", "meeting link", "video call", "conference", "join meeting",
		"create meet", "participants", "transcript", "google meet",
	}},
	{IntentCalendar, []string{
		"calendar", "calender", "meeting", "appointment", "event", "remind", "mark",
	}},
	{IntentEmail, []string{
		"email", "gmail", "inbox", "unread", "summarize",
	}},
	{IntentClassroom, []string{
		"classroom", "course", "courses", "assignment", "assignments",
		"homework", "announcement", "announcements", "grades", "class", "classes",
	}},
	{IntentSearch, []string{
		"search", "find out", "look up", "research", "news", "weather",
		"latest", "current event",
	}},
}

// strictOnlineKeywords 命中即强制 NeedsInternet，与意图无关。
var strictOnlineKeywords = []string{
	"news", "weather", "stock", "price of", "current event", "latest",
	"crypto", "bitcoin", "email", "gmail", "inbox", "unread",
}

// onlineIntents 列出总是需要访问外部服务的意图。
var onlineIntents = map[Intent]bool{
	IntentCalendar:  true,
	IntentEmail:     true,
	IntentMeet:      true,
	IntentClassroom: true,
	IntentSearch:    true,
}

// NewRuleClassifier 构造默认关键词分类器。
func NewRuleClassifier() *RuleClassifier {
	c := &RuleClassifier{strictOnline: strictOnlineKeywords}
	for _, entry := range defaultTriggers {
		r := rule{intent: entry.intent}
		for _, trigger := range entry.triggers {
			pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(trigger) + `\b`)
			if err != nil {
				// 触发词来自静态表，编译失败只可能是表本身写错；跳过该词。
				continue
			}
			r.patterns = append(r.patterns, pattern)
		}
		c.rules = append(c.rules, r)
	}
	return c
}

// Classify 实现 Classifier 接口。
func (c *RuleClassifier) Classify(text string) Result {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return Result{Intent: IntentGeneral, NeedsInternet: false, Confidence: 0}
	}

	matched := IntentGeneral
	hits := 0
	for _, r := range c.rules {
		count := 0
		for _, pattern := range r.patterns {
			if pattern.MatchString(lowered) {
				count++
			}
		}
		if count > hits {
			matched = r.intent
			hits = count
		}
	}

	result := Result{Intent: matched}
	if hits > 0 {
		result.Confidence = 0.6 + 0.1*float64(min(hits, 4))
	} else {
		result.Confidence = 0.3
	}

	result.NeedsInternet = onlineIntents[matched]
	if !result.NeedsInternet {
		for _, keyword := range c.strictOnline {
			if strings.Contains(lowered, keyword) {
				result.NeedsInternet = true
				break
			}
		}
	}
	return result
}

var _ Classifier = (*RuleClassifier)(nil)
