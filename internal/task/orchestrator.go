package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Himanshu-is-code/AMD-HACK/internal/connectivity"
	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/observability/metrics"
	"github.com/Himanshu-is-code/AMD-HACK/pkg/logger"
)

// CredentialVerifier 校验 resume 请求携带的凭证。
// OAuth 的获取与刷新不在引擎范围内，这里只拿到一个不透明字符串。
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, credential string) error
}

// SubmitRequest 是一次新任务请求。
type SubmitRequest struct {
	Text       string `json:"text"`
	ClientTime string `json:"client_time,omitempty"`
}

// CompleteRequest 是外部协作方回填最终答案的请求。
type CompleteRequest struct {
	PlanUpdate string   `json:"plan_update"`
	Sources    []Source `json:"sources,omitempty"`
}

// Orchestrator 是引擎入口：分类请求、创建任务，
// 并决定立即执行还是等网络恢复后再执行。
type Orchestrator struct {
	store      Store
	classifier intent.Classifier
	runner     *Runner
	probe      connectivity.Probe
	verifier   CredentialVerifier
	maxRetries int
}

// OrchestratorOption 定义可选配置。
type OrchestratorOption func(*Orchestrator)

// WithMaxRetries 设置新任务的重试预算。
func WithMaxRetries(maxRetries int) OrchestratorOption {
	return func(o *Orchestrator) {
		if maxRetries > 0 {
			o.maxRetries = maxRetries
		}
	}
}

// WithCredentialVerifier 配置 resume 凭证校验。空实现表示不校验。
func WithCredentialVerifier(verifier CredentialVerifier) OrchestratorOption {
	return func(o *Orchestrator) {
		o.verifier = verifier
	}
}

// NewOrchestrator 构造编排器。
func NewOrchestrator(store Store, classifier intent.Classifier, runner *Runner, probe connectivity.Probe, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		classifier: classifier,
		runner:     runner,
		probe:      probe,
		maxRetries: 3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Submit 接收新请求：分类、落库，然后立即执行或者转入等待。
// Agent Card 的失败被吸收进任务终态，调用方总是拿到一个完整的 Task。
// 调用方的 ctx 只限定等待窗口：超时或断开后执行继续直至提交，
// 调用方拿到当时的任务快照。
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*Task, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, xerrors.New(CodeTaskValidation, "请求文本不能为空")
	}
	if o.store == nil || o.classifier == nil || o.runner == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "编排器未初始化")
	}

	classified := o.classifier.Classify(req.Text)

	task := &Task{
		ID:              uuid.NewString(),
		OriginalRequest: req.Text,
		Intent:          classified.Intent,
		Status:          StatusPlanned,
		NeedsInternet:   classified.NeedsInternet,
		ClientTime:      strings.TrimSpace(req.ClientTime),
		MaxRetries:      o.maxRetries,
	}
	if err := o.store.Create(ctx, task); err != nil {
		return nil, err
	}
	metrics.ObserveTask(string(task.Intent), string(StatusPlanned))
	logger.Audit().Info("任务已创建",
		slog.String("task_id", task.ID),
		slog.String("intent", string(task.Intent)),
		slog.Bool("needs_internet", task.NeedsInternet),
		slog.Float64("confidence", classified.Confidence),
	)

	if classified.NeedsInternet && o.probe != nil && !o.probe.IsReachable(ctx) {
		deferred, err := o.store.Update(ctx, task.ID, func(t *Task) error {
			if t.Status != StatusPlanned {
				return ErrTaskConflict
			}
			t.Status = StatusWaiting
			return nil
		})
		if err != nil {
			if stdErrors.Is(err, ErrTaskConflict) {
				return deferred, nil
			}
			return nil, err
		}
		metrics.ObserveTask(string(deferred.Intent), string(StatusWaiting))
		logger.Audit().Info("任务等待网络恢复", slog.String("task_id", deferred.ID))
		return deferred, nil
	}

	finished, err := o.runDetached(ctx, task.ID)
	if err != nil {
		if finished != nil {
			return finished, nil
		}
		return nil, err
	}
	return finished, nil
}

// runDetached 在与调用方取消解耦的上下文里走领取-执行-提交。
// ctx 只限定本次调用愿意等待多久：窗口结束后执行不被打断，
// 继续运行到提交为止，结果写入存储；调用方拿到当前快照。
// 单次 Agent Card 调用仍受 Runner 自身的执行超时约束。
func (o *Orchestrator) runDetached(ctx context.Context, id string) (*Task, error) {
	type outcome struct {
		task *Task
		err  error
	}

	execCtx := context.WithoutCancel(ctx)
	done := make(chan outcome, 1)
	go func() {
		finished, err := o.runner.Run(execCtx, id)
		done <- outcome{task: finished, err: err}
	}()

	select {
	case out := <-done:
		return out.task, out.err
	case <-ctx.Done():
		logger.Audit().Info("调用方停止等待，任务继续在后台执行",
			slog.String("task_id", id))
		return o.store.Get(execCtx, id)
	}
}

// Get 返回任务快照。
func (o *Orchestrator) Get(ctx context.Context, id string) (*Task, error) {
	if o.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return o.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (o *Orchestrator) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if o.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return o.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计信息。
func (o *Orchestrator) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if o.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return o.store.Stats(ctx, buildListOptions(opts))
}

// Complete 无条件把任务置为 completed，供外部协作方回填最终答案。
// 不校验先前状态：混合流程里答案可能在引擎之外产生。
func (o *Orchestrator) Complete(ctx context.Context, id string, req CompleteRequest) (*Task, error) {
	if o.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	completed, err := o.store.Update(ctx, id, func(t *Task) error {
		t.Status = StatusCompleted
		if strings.TrimSpace(req.PlanUpdate) != "" {
			t.Plan = req.PlanUpdate
		} else if t.Plan == "" {
			t.Plan = "Completed externally."
		}
		if len(req.Sources) > 0 {
			t.Sources = append([]Source(nil), req.Sources...)
		}
		t.LastError = ""
		t.ErrorCode = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveTask(string(completed.Intent), string(StatusCompleted))
	logger.Audit().Info("任务被外部标记完成", slog.String("task_id", completed.ID))
	return completed, nil
}

// Resume 绕过连通性检查，立即对任务走领取-执行-提交。
// 已完成的任务原样返回且不会再次执行。
// 与 Submit 一样，调用方的 ctx 只限定等待窗口，不会中断执行。
func (o *Orchestrator) Resume(ctx context.Context, id, credential string) (*Task, error) {
	if o.store == nil || o.runner == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "编排器未初始化")
	}
	if o.verifier != nil {
		if err := o.verifier.VerifyCredential(ctx, credential); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeUnauthorized, err, "resume 凭证校验失败")
		}
	}

	resumed, err := o.runDetached(ctx, id)
	if err != nil {
		if stdErrors.Is(err, ErrTaskCompleted) || stdErrors.Is(err, ErrTaskConflict) || stdErrors.Is(err, ErrTaskExhausted) {
			if resumed != nil {
				return resumed, nil
			}
			return o.store.Get(ctx, id)
		}
		return resumed, err
	}
	logger.Audit().Info("任务被手动恢复", slog.String("task_id", id))
	return resumed, nil
}

// Close 释放存储资源。
func (o *Orchestrator) Close() error {
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}
