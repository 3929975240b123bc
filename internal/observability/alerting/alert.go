package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

const (
	ChannelLog   Channel = "log"
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
)

// Event 描述一次需要告警的事件，通常由任务执行器在
// 任务进入终态失败时发出。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Channel    Channel
	TaskID     string
	Intent     string
	RetryCount int
	MaxRetries int
	Metadata   map[string]string
	OccurredAt time.Time
}

// summary 渲染一段适合任何文本渠道的事件描述。
func (e Event) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n任务: %s (%s)\n重试: %d/%d\n描述: %s",
		e.Severity, e.Code, e.TaskID, e.Intent, e.RetryCount, e.MaxRetries, e.Message)
	for k, v := range e.Metadata {
		fmt.Fprintf(&b, "\n- %s: %s", k, v)
	}
	return b.String()
}

// Notifier 负责将事件发送到某个具体渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给已配置的通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 把每个事件投递到全部注册的通知器，
// 单个渠道失败不影响其余渠道。
type FanoutDispatcher struct {
	notifiers []Notifier
}

// NewFanout 创建广播分发器，nil 通知器会被忽略。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	d := &FanoutDispatcher{}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers = append(d.notifiers, n)
		}
	}
	return d
}

// Notify 依次调用每个通知器，返回所有渠道错误的聚合。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier 把告警写进审计日志，是默认渠道。
type LogNotifier struct{}

func (n *LogNotifier) Channel() Channel { return ChannelLog }

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	logger.Audit().Warn("task_alert",
		slog.String("task_id", event.TaskID),
		slog.String("intent", event.Intent),
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.Int("retry_count", event.RetryCount),
		slog.Int("max_retries", event.MaxRetries),
		slog.String("message", event.Message),
	)
	return nil
}

// EmailSender 定义发送邮件所需的能力。
type EmailSender interface {
	Send(ctx context.Context, subject, content string, to []string) error
}

// EmailNotifier 通过邮件发送告警。
type EmailNotifier struct {
	Sender        EmailSender
	To            []string
	SubjectPrefix string
}

func (n *EmailNotifier) Channel() Channel { return ChannelEmail }

func (n *EmailNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || len(n.To) == 0 {
		logger.L().Warn("EmailNotifier 未正确配置，跳过发送", slog.String("task_id", event.TaskID))
		return nil
	}
	subject := fmt.Sprintf("%s[%s] %s", n.SubjectPrefix, event.Severity, event.Code)
	content := fmt.Sprintf("告警时间: %s\n%s", event.OccurredAt.Format(time.RFC3339), event.summary())
	return n.Sender.Send(ctx, subject, content, n.To)
}

// SlackSender 负责向 Slack 渠道发送消息。
type SlackSender interface {
	Send(ctx context.Context, channelID, content string) error
}

// SlackNotifier 通过 Slack 发送告警。
type SlackNotifier struct {
	Sender    SlackSender
	ChannelID string
}

func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || n.ChannelID == "" {
		logger.L().Warn("SlackNotifier 未正确配置，跳过发送", slog.String("task_id", event.TaskID))
		return nil
	}
	return n.Sender.Send(ctx, n.ChannelID, event.summary())
}
