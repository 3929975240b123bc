package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/Himanshu-is-code/AMD-HACK/internal/connectivity"
	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/pkg/logger"
)

const defaultMonitorInterval = 10 * time.Second

// Monitor 是连通性监视器：按固定间隔探测网络，在网络可用时
// 把所有 waiting_for_internet 的任务按创建时间升序派发到恢复队列。
// 重复派发无害：运行器的领取协议保证同一任务至多一个执行者，
// 网络抖动因此不会造成重复工作。
type Monitor struct {
	store    Store
	probe    connectivity.Probe
	producer Producer
	interval time.Duration

	wasReachable bool
}

// MonitorOption 定义可选配置。
type MonitorOption func(*Monitor)

// WithMonitorInterval 覆盖探测间隔。
func WithMonitorInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// NewMonitor 构造监视器。
func NewMonitor(store Store, probe connectivity.Probe, producer Producer, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:    store,
		probe:    probe,
		producer: producer,
		interval: defaultMonitorInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Start 启动探测循环，直到上下文取消。两次探测之间休眠，
// 不会空转占用 CPU。
func (m *Monitor) Start(ctx context.Context) error {
	if m.store == nil || m.probe == nil || m.producer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "监视器未初始化")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				logger.L().Error("派发等待任务失败", slog.Any("error", err))
			}
		}
	}
}

// Sweep 执行一轮探测与派发，返回派发的任务数。
// 导出以便测试直接单步驱动连通性变化，而不是依赖真实时钟。
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	reachable := m.probe.IsReachable(ctx)
	if reachable != m.wasReachable {
		logger.Audit().Info("网络连通性变化", slog.Bool("reachable", reachable))
	}
	m.wasReachable = reachable
	if !reachable {
		return 0, nil
	}

	waiting, err := m.store.List(ctx, ListOptions{
		Statuses: []Status{StatusWaiting},
		Order:    SortByCreatedAsc,
		Limit:    500,
	})
	if err != nil {
		return 0, err
	}
	if len(waiting) == 0 {
		return 0, nil
	}

	logger.L().Info("网络可用，派发等待中的任务", slog.Int("count", len(waiting)))
	dispatched := 0
	for _, task := range waiting {
		if err := m.producer.Publish(ctx, task.ID); err != nil {
			return dispatched, xerrors.Wrap(CodeTaskPublish, err, "派发任务到恢复队列失败",
				xerrors.WithMetadata("task_id", task.ID))
		}
		dispatched++
	}
	return dispatched, nil
}
