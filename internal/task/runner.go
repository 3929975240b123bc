package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Himanshu-is-code/AMD-HACK/internal/agent"
	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/observability/alerting"
	"github.com/Himanshu-is-code/AMD-HACK/internal/observability/metrics"
	"github.com/Himanshu-is-code/AMD-HACK/pkg/logger"
)

// Runner 按领取-执行-提交三段协议驱动一次任务执行。
// 领取与提交是持锁的短操作；Agent Card 的慢调用发生在锁外，
// 因此同一任务在任意时刻至多有一个执行者。
type Runner struct {
	store       Store
	registry    *agent.Registry
	consumer    Consumer
	workerCount int
	execTimeout time.Duration
	alerter     alerting.Dispatcher
	logger      *slog.Logger
}

// RunnerOption 定义可选配置。
type RunnerOption func(*Runner)

// WithRunnerLogger 指定调试日志输出。
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithWorkerCount 设置恢复队列的消费协程数量。
func WithWorkerCount(workers int) RunnerOption {
	return func(r *Runner) {
		if workers > 0 {
			r.workerCount = workers
		}
	}
}

// WithExecuteTimeout 限制单次 Agent Card 调用的时长。
func WithExecuteTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) {
		if timeout > 0 {
			r.execTimeout = timeout
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) RunnerOption {
	return func(r *Runner) {
		r.alerter = dispatcher
	}
}

// NewRunner 构造 Runner。consumer 允许为空：此时 Start 不可用，
// 但同步的 Run 路径不受影响。
func NewRunner(store Store, registry *agent.Registry, consumer Consumer, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:       store,
		registry:    registry,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Start 启动恢复队列的消费循环，直到上下文取消。
func (r *Runner) Start(ctx context.Context) error {
	if r.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置恢复队列消费者")
	}
	return r.consumer.Consume(ctx, r.workerCount, r.handle)
}

// handle 适配队列回调：领取冲突与已完成都按跳过处理。
func (r *Runner) handle(ctx context.Context, taskID string) error {
	_, err := r.Run(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) ||
			stdErrors.Is(err, ErrTaskConflict) || stdErrors.Is(err, ErrTaskExhausted) {
			r.logDebug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("任务执行失败", slog.Any("error", err), slog.String("task_id", taskID))
		return err
	}
	return nil
}

// Run 执行一次完整的领取-执行-提交。返回任务的最新快照；
// 领取被拒绝时返回对应的哨兵错误和当前快照。
func (r *Runner) Run(ctx context.Context, taskID string) (*Task, error) {
	if r.store == nil || r.registry == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行器未初始化")
	}

	claimed, err := r.store.Update(ctx, taskID, claimMutator)
	if err != nil {
		return claimed, err
	}
	metrics.ObserveTask(string(claimed.Intent), string(StatusExecuting))

	for {
		result, execErr := r.execute(ctx, claimed)
		if execErr == nil {
			return r.commitCompleted(ctx, claimed, result)
		}

		code := xerrors.CodeOf(execErr)
		if code == xerrors.CodeOffline {
			return r.commitDeferred(ctx, claimed, execErr)
		}

		if xerrors.RetryableError(execErr) && claimed.RetryCount < claimed.MaxRetries {
			retried, err := r.store.Update(ctx, claimed.ID, func(t *Task) error {
				if t.Status != StatusExecuting {
					// 执行期间状态被外部改写（如 force-complete），放弃重试。
					return ErrTaskConflict
				}
				t.RetryCount++
				t.LastError = execErr.Error()
				t.ErrorCode = string(code)
				return nil
			})
			if err != nil {
				if stdErrors.Is(err, ErrTaskConflict) {
					return retried, nil
				}
				return nil, err
			}
			r.logDebug("任务重试",
				slog.String("task_id", claimed.ID),
				slog.Int("retry_count", retried.RetryCount),
				slog.String("error", execErr.Error()),
			)
			claimed = retried
			continue
		}

		return r.commitFailed(ctx, claimed, execErr, code)
	}
}

// claimMutator 原子地把任务标记为执行中。
func claimMutator(t *Task) error {
	switch t.Status {
	case StatusCompleted:
		return ErrTaskCompleted
	case StatusFailed:
		return ErrTaskExhausted
	case StatusExecuting:
		return ErrTaskConflict
	}
	if t.RetryCount >= t.MaxRetries {
		return ErrTaskExhausted
	}
	t.Status = StatusExecuting
	t.RetryCount++
	t.LastError = ""
	t.ErrorCode = ""
	return nil
}

// execute 在锁外调用匹配的 Agent Card。
func (r *Runner) execute(ctx context.Context, task *Task) (*agent.Result, error) {
	card, err := r.registry.CardFor(task.Intent)
	if err != nil {
		return nil, xerrors.Wrap(CodeTaskExecution, err, "没有匹配的 Agent Card", xerrors.WithRetryable(false))
	}

	execCtx := ctx
	if r.execTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.execTimeout)
		defer cancel()
	}

	result, err := card.Execute(execCtx, agent.Request{
		TaskID:     task.ID,
		Text:       task.OriginalRequest,
		Intent:     task.Intent,
		ClientTime: task.ClientTime,
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "Agent Card 执行超时")
		}
		return nil, err
	}
	if result == nil || result.Plan == "" {
		return nil, xerrors.New(CodeTaskExecution, "Agent Card 返回了空结果", xerrors.WithRetryable(false))
	}
	return result, nil
}

// commitCompleted 提交成功结果。若任务在执行期间已被 force-complete，
// 外部提供的答案胜出，本次执行结果被丢弃。
func (r *Runner) commitCompleted(ctx context.Context, claimed *Task, result *agent.Result) (*Task, error) {
	sources := make([]Source, 0, len(result.Sources))
	for _, s := range result.Sources {
		sources = append(sources, Source{Title: s.Title, URL: s.URL})
	}

	committed, err := r.store.Update(ctx, claimed.ID, func(t *Task) error {
		if t.Status == StatusCompleted {
			return ErrTaskCompleted
		}
		t.Status = StatusCompleted
		t.Plan = result.Plan
		t.Sources = sources
		t.LastError = ""
		t.ErrorCode = ""
		return nil
	})
	if err != nil {
		if stdErrors.Is(err, ErrTaskCompleted) {
			return committed, nil
		}
		logger.L().Error("提交任务结果失败", slog.Any("error", err), slog.String("task_id", claimed.ID))
		r.emitAlert(ctx, claimed, xerrors.CodeStorageFailure, err, "commit")
		return nil, err
	}
	metrics.ObserveTask(string(committed.Intent), string(StatusCompleted))
	logger.Audit().Info("任务执行成功",
		slog.String("task_id", committed.ID),
		slog.String("intent", string(committed.Intent)),
		slog.Int("retry_count", committed.RetryCount),
	)
	return committed, nil
}

// commitDeferred 在执行途中失去网络时把任务退回等待队列。
// 掉线不计入重试预算：本次领取消耗的尝试被退还。
func (r *Runner) commitDeferred(ctx context.Context, claimed *Task, cause error) (*Task, error) {
	deferred, err := r.store.Update(ctx, claimed.ID, func(t *Task) error {
		if t.Status != StatusExecuting {
			return ErrTaskConflict
		}
		t.Status = StatusWaiting
		if t.RetryCount > 0 {
			t.RetryCount--
		}
		t.LastError = cause.Error()
		t.ErrorCode = string(xerrors.CodeOffline)
		return nil
	})
	if err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			return deferred, nil
		}
		return nil, err
	}
	metrics.ObserveTask(string(deferred.Intent), string(StatusWaiting))
	logger.Audit().Warn("任务因断网转入等待",
		slog.String("task_id", deferred.ID),
		slog.String("intent", string(deferred.Intent)),
	)
	return deferred, nil
}

// commitFailed 提交终态失败，把失败原因写进 plan。
func (r *Runner) commitFailed(ctx context.Context, claimed *Task, cause error, code xerrors.Code) (*Task, error) {
	failed, err := r.store.Update(ctx, claimed.ID, func(t *Task) error {
		if t.Status == StatusCompleted {
			return ErrTaskCompleted
		}
		t.Status = StatusFailed
		t.Plan = fmt.Sprintf("Task failed after %d attempt(s): %s", t.RetryCount, cause.Error())
		t.LastError = cause.Error()
		t.ErrorCode = string(code)
		return nil
	})
	if err != nil {
		if stdErrors.Is(err, ErrTaskCompleted) {
			return failed, nil
		}
		logger.L().Error("标记任务失败状态出错", slog.Any("error", err), slog.String("task_id", claimed.ID))
		return nil, err
	}
	metrics.ObserveTask(string(failed.Intent), string(StatusFailed))
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", failed.ID),
		slog.String("intent", string(failed.Intent)),
		slog.String("error", cause.Error()),
		slog.String("error_code", string(code)),
		slog.Int("retry_count", failed.RetryCount),
		slog.Int("max_retries", failed.MaxRetries),
	)
	r.emitAlert(ctx, failed, code, cause, "terminal")
	return failed, nil
}

func (r *Runner) logDebug(msg string, attrs ...slog.Attr) {
	if r.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		r.logger.Debug(msg, args...)
	}
}

func (r *Runner) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if r == nil || r.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		Intent:     string(task.Intent),
		RetryCount: task.RetryCount,
		MaxRetries: task.MaxRetries,
		Metadata:   map[string]string{"stage": stage},
		OccurredAt: time.Now(),
	}
	if err := r.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
			slog.String("stage", stage),
		)
	}
}
