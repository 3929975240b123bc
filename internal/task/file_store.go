package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
)

// interruptedPlan 写入重启时发现仍处于 executing 的任务。
// Agent Card 的副作用（比如已发出的邮件）无法核实是否完成，
// 因此不自动重跑，而是显式失败并说明原因。
const interruptedPlan = "Execution was interrupted by a restart. " +
	"The attempt may have partially completed; please review and resubmit if needed."

// FileStore 把全部任务持久化为单个 JSON 文件。
// 文件整体是持久化单元：启动时全量加载，每次提交全量重写，
// 所以一把锁保护整个映射而不是分片。
type FileStore struct {
	mu    sync.RWMutex
	path  string
	tasks map[string]*Task
}

// NewFileStore 打开（必要时创建）任务文件并全量加载。
// 文件损坏是致命错误：宁可拒绝启动也不能悄悄丢记录。
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "任务文件路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建任务目录失败")
	}

	store := &FileStore{path: path, tasks: make(map[string]*Task)}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// 首次启动，空库。
	case err != nil:
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务文件失败")
	case len(raw) > 0:
		var records []*Task
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStoreCorrupted, err,
				fmt.Sprintf("任务文件 %s 无法解析，拒绝以部分状态启动", path))
		}
		for _, record := range records {
			if record == nil || record.ID == "" {
				return nil, xerrors.New(xerrors.CodeStoreCorrupted,
					fmt.Sprintf("任务文件 %s 含有缺失 ID 的记录", path))
			}
			if _, ok := store.tasks[record.ID]; ok {
				return nil, xerrors.New(xerrors.CodeStoreCorrupted,
					fmt.Sprintf("任务文件 %s 含有重复 ID %s", path, record.ID))
			}
			store.tasks[record.ID] = record
		}
	}

	if err := store.failInterrupted(); err != nil {
		return nil, err
	}
	return store, nil
}

// failInterrupted 把上次进程退出时仍在执行的任务标记为失败。
func (s *FileStore) failInterrupted() error {
	now := time.Now().Unix()
	changed := false
	for _, task := range s.tasks {
		if task.Status != StatusExecuting {
			continue
		}
		task.Status = StatusFailed
		task.Plan = interruptedPlan
		task.ErrorCode = string(CodeTaskExecution)
		task.LastError = "process restarted during execution"
		task.UpdatedAt = now
		changed = true
	}
	if changed {
		return s.persistLocked()
	}
	return nil
}

// persistLocked 全量重写后端文件。调用方必须已持有写锁
//（构造阶段除外，此时尚无并发访问）。
func (s *FileStore) persistLocked() error {
	records := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		records = append(records, task)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt == records[j].CreatedAt {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt < records[j].CreatedAt
	})

	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化任务文件失败")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务文件失败")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "替换任务文件失败")
	}
	return nil
}

// Create 实现 Store 接口。
func (s *FileStore) Create(_ context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if task.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return ErrTaskConflict
	}
	now := time.Now().Unix()
	if task.CreatedAt == 0 {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	s.tasks[task.ID] = cloneTask(task)
	if err := s.persistLocked(); err != nil {
		delete(s.tasks, task.ID)
		return err
	}
	return nil
}

// Get 返回任务快照。
func (s *FileStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// Update 在锁内应用 Mutator 并落盘，返回修改后的快照。
func (s *FileStore) Update(_ context.Context, id string, mutate Mutator) (*Task, error) {
	if mutate == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "mutator 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	draft := cloneTask(task)
	if err := mutate(draft); err != nil {
		return cloneTask(task), err
	}
	draft.ID = task.ID
	draft.CreatedAt = task.CreatedAt
	draft.UpdatedAt = time.Now().Unix()
	s.tasks[id] = draft
	if err := s.persistLocked(); err != nil {
		s.tasks[id] = task
		return nil, err
	}
	return cloneTask(draft), nil
}

// List 返回符合过滤条件的任务。
func (s *FileStore) List(_ context.Context, opts ListOptions) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if !matchesListFilters(task, opts) {
			continue
		}
		results = append(results, cloneTask(task))
	}

	sort.Slice(results, func(i, j int) bool {
		return lessTasks(results[i], results[j], opts.Order)
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的任务数量与更新时间范围。
func (s *FileStore) Stats(_ context.Context, opts ListOptions) (TaskStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opts.applyDefaults()

	stats := TaskStats{}
	for _, task := range s.tasks {
		if !matchesListFilters(task, opts) {
			continue
		}
		stats.observe(task)
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 对文件存储无需操作：每次提交都已同步落盘。
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
