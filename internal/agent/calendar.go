package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/llm"
	"github.com/Himanshu-is-code/AMD-HACK/internal/workspace"
)

// CalendarCard 负责创建日历事件：先用语言模型抽取结构化的
// 事件要素，再调用日历服务落地。
type CalendarCard struct {
	calendar  workspace.CalendarClient
	generator llm.Client
	now       func() time.Time
}

// NewCalendarCard 构造日历卡片。
func NewCalendarCard(calendar workspace.CalendarClient, generator llm.Client) *CalendarCard {
	return &CalendarCard{calendar: calendar, generator: generator, now: time.Now}
}

// Name 实现 Card 接口。
func (c *CalendarCard) Name() string { return "Calendar Agent" }

// Intent 实现 Card 接口。
func (c *CalendarCard) Intent() intent.Intent { return intent.IntentCalendar }

// CanHandle 实现 Card 接口。
func (c *CalendarCard) CanHandle(i intent.Intent) bool { return i == intent.IntentCalendar }

// eventDetails 是从请求文本中抽取出来的事件要素。
type eventDetails struct {
	Summary         string `json:"summary"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Execute 实现 Card 接口。
func (c *CalendarCard) Execute(ctx context.Context, req Request) (*Result, error) {
	if c.calendar == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置日历客户端")
	}

	details := c.extractDetails(ctx, req)
	start, err := time.Parse(time.RFC3339, details.StartTime)
	if err != nil {
		// 抽取结果不可用时退化为次日整点的占位时间，事件仍然创建。
		start = c.now().Add(24 * time.Hour).Truncate(time.Hour)
	}
	if details.DurationMinutes <= 0 {
		details.DurationMinutes = 30
	}
	if strings.TrimSpace(details.Summary) == "" {
		details.Summary = req.Text
	}

	created, err := c.calendar.CreateEvent(ctx, workspace.Event{
		Summary:         details.Summary,
		StartTime:       start,
		DurationMinutes: details.DurationMinutes,
	})
	if err != nil {
		return nil, wrapServiceError(err, "创建日历事件失败")
	}

	plan := fmt.Sprintf("Event created: **%s** at %s (%d min)",
		details.Summary, start.Format("Mon Jan 2 15:04"), details.DurationMinutes)
	result := &Result{Plan: plan}
	if created.Link != "" {
		result.Plan += fmt.Sprintf("\n[View on calendar](%s)", created.Link)
		result.Sources = append(result.Sources, Source{Title: details.Summary, URL: created.Link})
	}
	return result, nil
}

// extractDetails 请求语言模型返回结构化的事件要素。
// 模型不可用或输出不合法时返回空要素，由调用方兜底。
func (c *CalendarCard) extractDetails(ctx context.Context, req Request) eventDetails {
	var details eventDetails
	if c.generator == nil {
		return details
	}

	prompt := fmt.Sprintf(`Extract the calendar event from this request: %q
Client local time: %q
Respond with ONLY a JSON object: {"summary": string, "start_time": RFC3339 string, "duration_minutes": int}`,
		req.Text, req.ClientTime)

	resp, err := c.generator.Generate(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return details
	}
	text := resp.Text
	// 模型偶尔会在 JSON 外包一段说明，截取首个对象。
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(text), &details); err != nil {
		return eventDetails{}
	}
	return details
}

var _ Card = (*CalendarCard)(nil)
