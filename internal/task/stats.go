package task

// TaskStats 聚合任务状态的统计信息，常用于仪表盘或健康检查。
type TaskStats struct {
	Total           int   `json:"total"`
	Planned         int   `json:"planned"`
	Waiting         int   `json:"waiting_for_internet"`
	Executing       int   `json:"executing"`
	Completed       int   `json:"completed"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// observe 把一条任务计入统计。
func (s *TaskStats) observe(task *Task) {
	s.Total++
	switch task.Status {
	case StatusPlanned:
		s.Planned++
	case StatusWaiting:
		s.Waiting++
	case StatusExecuting:
		s.Executing++
	case StatusCompleted:
		s.Completed++
	case StatusFailed:
		s.Failed++
	}
	if task.UpdatedAt > s.NewestUpdatedAt {
		s.NewestUpdatedAt = task.UpdatedAt
	}
	if s.OldestUpdatedAt == 0 || (task.UpdatedAt != 0 && task.UpdatedAt < s.OldestUpdatedAt) {
		s.OldestUpdatedAt = task.UpdatedAt
	}
}

// addBucket 把某个状态的聚合计数计入统计，供按状态分组的查询使用。
func (s *TaskStats) addBucket(status Status, count int, oldest, newest int64) {
	if count <= 0 {
		return
	}
	s.Total += count
	switch status {
	case StatusPlanned:
		s.Planned += count
	case StatusWaiting:
		s.Waiting += count
	case StatusExecuting:
		s.Executing += count
	case StatusCompleted:
		s.Completed += count
	case StatusFailed:
		s.Failed += count
	}
	if newest > s.NewestUpdatedAt {
		s.NewestUpdatedAt = newest
	}
	if oldest != 0 && (s.OldestUpdatedAt == 0 || oldest < s.OldestUpdatedAt) {
		s.OldestUpdatedAt = oldest
	}
}
