package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
)

// MySQLStore 使用 MySQL 记录任务状态，可替代文件存储。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore 并初始化表结构。
// 与文件存储一致：启动时把中断的 executing 任务标记为失败。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.failInterrupted(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS tasks (
        id VARCHAR(64) PRIMARY KEY,
        original_request TEXT NOT NULL,
        intent VARCHAR(32) NOT NULL,
        status VARCHAR(32) NOT NULL,
        needs_internet TINYINT(1) NOT NULL DEFAULT 0,
        client_time VARCHAR(64) NOT NULL DEFAULT '',
        plan TEXT,
        sources TEXT,
        retry_count INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_tasks_status (status),
        INDEX idx_tasks_created (created_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 tasks 表失败")
	}
	return nil
}

func (s *MySQLStore) failInterrupted() error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, plan = ?, error_code = ?, last_error = ?, updated_at = ? WHERE status = ?`,
		string(StatusFailed), interruptedPlan, string(CodeTaskExecution),
		"process restarted during execution", time.Now().Unix(), string(StatusExecuting),
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "清理中断任务失败")
	}
	return nil
}

const taskColumns = `id, original_request, intent, status, needs_internet, client_time, plan, sources,
        retry_count, max_retries, last_error, error_code, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task       Task
		intentRaw  string
		statusRaw  string
		clientTime sql.NullString
		plan       sql.NullString
		sources    sql.NullString
		lastError  sql.NullString
		errorCode  sql.NullString
		needsInt   bool
	)
	err := row.Scan(&task.ID, &task.OriginalRequest, &intentRaw, &statusRaw, &needsInt,
		&clientTime, &plan, &sources, &task.RetryCount, &task.MaxRetries, &lastError, &errorCode,
		&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.Intent = intent.Intent(intentRaw)
	task.Status = Status(statusRaw)
	task.NeedsInternet = needsInt
	task.ClientTime = clientTime.String
	task.Plan = plan.String
	task.LastError = lastError.String
	task.ErrorCode = errorCode.String
	if sources.Valid && sources.String != "" {
		if err := json.Unmarshal([]byte(sources.String), &task.Sources); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStoreCorrupted, err,
				fmt.Sprintf("任务 %s 的 sources 字段无法解析", task.ID))
		}
	}
	return &task, nil
}

func encodeSources(sources []Source) (string, error) {
	if len(sources) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化 sources 失败")
	}
	return string(raw), nil
}

// Create 实现 Store 接口。
func (s *MySQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if task.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	now := time.Now().Unix()
	if task.CreatedAt == 0 {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	sources, err := encodeSources(task.Sources)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.OriginalRequest, string(task.Intent), string(task.Status), task.NeedsInternet,
		task.ClientTime, task.Plan, sources, task.RetryCount, task.MaxRetries, task.LastError,
		task.ErrorCode, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return ErrTaskConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务失败")
	}
	return nil
}

// Get 返回任务快照。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务失败")
	}
	return task, nil
}

// Update 在一个事务内做行级读-改-写，等价于文件存储的锁内修改。
func (s *MySQLStore) Update(ctx context.Context, id string, mutate Mutator) (*Task, error) {
	if mutate == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "mutator 不能为空")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? FOR UPDATE`, id)
	task, err := scanTask(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务失败")
	}

	if err := mutate(task); err != nil {
		// Mutator 拒绝修改不是存储错误，把当前快照带回去。
		return task, err
	}
	task.UpdatedAt = time.Now().Unix()

	sources, err := encodeSources(task.Sources)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, plan = ?, sources = ?, retry_count = ?, max_retries = ?,
            last_error = ?, error_code = ?, needs_internet = ?, client_time = ?, updated_at = ? WHERE id = ?`,
		string(task.Status), task.Plan, sources, task.RetryCount, task.MaxRetries,
		task.LastError, task.ErrorCode, task.NeedsInternet, task.ClientTime, task.UpdatedAt, id,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务失败")
	}
	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交任务更新失败")
	}
	return task, nil
}

// List 返回符合过滤条件的任务。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := `SELECT ` + taskColumns + ` FROM tasks`
	var (
		clauses []string
		args    []any
	)
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.UpdatedGTE > 0 {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if opts.Order == SortByCreatedAsc {
		query += " ORDER BY created_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, created_at DESC, id ASC"
	}
	query += " LIMIT ?"
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	defer rows.Close()

	var results []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务失败")
		}
		results = append(results, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return results, nil
}

// Stats 统计符合过滤条件的任务数量与更新时间范围。
// 在数据库侧按状态聚合，结果覆盖全表而不受列表分页限制。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	query := `SELECT status, COUNT(*), MIN(updated_at), MAX(updated_at) FROM tasks`
	var (
		clauses []string
		args    []any
	)
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.UpdatedGTE > 0 {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " GROUP BY status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计任务失败")
	}
	defer rows.Close()

	stats := TaskStats{}
	for rows.Next() {
		var (
			statusRaw string
			count     int
			oldest    sql.NullInt64
			newest    sql.NullInt64
		)
		if err := rows.Scan(&statusRaw, &count, &oldest, &newest); err != nil {
			return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析统计结果失败")
		}
		stats.addBucket(Status(statusRaw), count, oldest.Int64, newest.Int64)
	}
	if err := rows.Err(); err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历统计结果失败")
	}
	return stats, nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)
