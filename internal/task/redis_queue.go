package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 使用 Redis list 实现恢复队列，供多进程部署时共享。
type RedisQueue struct {
	rdb       *redis.Client
	key       string
	blockWait time.Duration
}

// NewRedisQueue 创建 Redis 队列实例并验证连通性。
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	q := &RedisQueue{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key:       cfg.Queue,
		blockWait: cfg.BlockWait,
	}
	if q.key == "" {
		q.key = "assistant:resume"
	}
	if q.blockWait <= 0 {
		q.blockWait = 5 * time.Second
	}
	if err := q.rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return q, nil
}

// Publish 将任务 ID 推入 Redis list。
func (q *RedisQueue) Publish(ctx context.Context, taskID string) error {
	if err := q.rdb.LPush(ctx, q.key, taskID).Err(); err != nil {
		return fmt.Errorf("Redis 发布任务失败: %w", err)
	}
	return nil
}

// Consume 启动 workerCount 个协程，通过 BRPOP 阻塞式地拉取任务。
// 任意协程遇到不可恢复的错误时整体退出并返回第一个错误。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() { firstErr = err })
	}

	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			q.poll(ctx, handler, fail)
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (q *RedisQueue) poll(ctx context.Context, handler Handler, fail func(error)) {
	for ctx.Err() == nil {
		entry, err := q.rdb.BRPop(ctx, q.blockWait, q.key).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil):
			// 等待窗口内没有任务，继续轮询。
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, redis.ErrClosed):
			return
		default:
			fail(fmt.Errorf("Redis 取任务失败: %w", err))
			return
		}
		if len(entry) != 2 {
			continue
		}
		// 处理失败由领取协议兜底，不在队列层重投：
		// 任务状态仍是 waiting_for_internet 时，下一轮扫描会再次派发。
		_ = handler(ctx, entry[1])
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}

var _ Queue = (*RedisQueue)(nil)
