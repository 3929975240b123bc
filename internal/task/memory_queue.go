package task

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed 表示恢复队列已经关闭，不再接受投递。
var ErrQueueClosed = errors.New("恢复队列已关闭")

// MemoryQueue 使用 channel 实现进程内恢复队列，是单机模式的默认实现。
type MemoryQueue struct {
	pending chan string
	done    chan struct{}
	once    sync.Once
}

// NewMemoryQueue 创建一个内存队列。size 决定了投递不阻塞时的最大积压量。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		pending: make(chan string, size),
		done:    make(chan struct{}),
	}
}

// Publish 将任务投递到队列，缓冲满时阻塞直到被消费、队列关闭或取消。
func (q *MemoryQueue) Publish(ctx context.Context, taskID string) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.pending <- taskID:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume 启动 workerCount 个协程消费队列，直到 ctx 取消或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go q.drain(ctx, handler, &wg)
	}
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) drain(ctx context.Context, handler Handler, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case taskID := <-q.pending:
			// 处理失败不在队列层重投，监视器的下一轮扫描会再次派发。
			_ = handler(ctx, taskID)
		}
	}
}

// Close 关闭内存队列，后续 Publish 返回 ErrQueueClosed。
// pending 通道保持打开，关闭瞬间仍在投递的 Publish 不会触发 panic。
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
