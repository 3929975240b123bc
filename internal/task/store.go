package task

import "context"

// Mutator 在存储锁内对任务做读-改-写。返回错误时放弃本次修改。
// 实现不得在 Mutator 内做任何耗时操作：锁只保护内存修改加落盘。
type Mutator func(task *Task) error

// Store 抽象任务状态的持久化接口。
// 所有写入都必须经过 Update，保证并发修改不会互相覆盖。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, id string, mutate Mutator) (*Task, error)
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	Close() error
}
