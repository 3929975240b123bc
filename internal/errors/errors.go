package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeAlreadyCompleted      Code = "ALREADY_COMPLETED"
	CodeRetriesExhausted      Code = "RETRIES_EXHAUSTED"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeStoreCorrupted        Code = "STORE_CORRUPTED"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeExecutorFailure       Code = "EXECUTOR_FAILURE"
	CodeOffline               Code = "OFFLINE"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeTimeout               Code = "TIMEOUT"
)

// Attributes 为错误码提供默认行为：兜底文案、严重程度、
// 是否可重试以及是否触发告警。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var (
	catalogMu sync.RWMutex
	catalog   = map[Code]Attributes{
		CodeUnknown:               {"unknown error", SeverityCritical, false, true},
		CodeInvalidArgument:       {"invalid argument", SeverityInfo, false, false},
		CodeNotFound:              {"resource not found", SeverityInfo, false, false},
		CodeConflict:              {"resource conflict", SeverityWarning, false, false},
		CodeAlreadyCompleted:      {"resource already completed", SeverityInfo, false, false},
		CodeRetriesExhausted:      {"retries exhausted", SeverityWarning, false, true},
		CodeInitializationFailure: {"service not initialized", SeverityWarning, true, true},
		CodeStorageFailure:        {"storage failure", SeverityCritical, true, true},
		CodeStoreCorrupted:        {"task store corrupted", SeverityCritical, false, true},
		CodeQueueFailure:          {"queue failure", SeverityCritical, true, true},
		CodeExecutorFailure:       {"agent card execution failure", SeverityWarning, true, true},
		CodeOffline:               {"network unreachable", SeverityInfo, false, false},
		CodeUnauthorized:          {"credential rejected", SeverityWarning, false, false},
		CodeTimeout:               {"operation timed out", SeverityWarning, true, true},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
// 后注册的同名错误码会覆盖先前的定义。
func Register(code Code, attr Attributes) {
	catalogMu.Lock()
	catalog[code] = attr
	catalogMu.Unlock()
}

// AttributesOf 返回错误码对应的属性。未注册的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	if attr, ok := catalog[code]; ok {
		return attr
	}
	return catalog[CodeUnknown]
}

// Error 是系统内统一的错误类型。未显式覆盖的行为字段
// 在读取时回落到错误码注册表中的默认值。
type Error struct {
	code  Code
	msg   string
	cause error
	meta  map[string]string

	// 显式覆盖项，nil 表示沿用注册表默认值。
	retryable *bool
	alert     *bool
	severity  *Severity
}

// Option 定义构造错误时的可选配置。
type Option func(*Error)

// WithMetadata 附加一对键值信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.meta == nil {
			e.meta = make(map[string]string)
		}
		e.meta[key] = value
	}
}

// WithRetryable 覆盖错误是否可重试。
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.retryable = &retryable }
}

// WithAlert 覆盖错误是否需要告警。
func WithAlert(alert bool) Option {
	return func(e *Error) { e.alert = &alert }
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.severity = &sev }
}

// New 创建一个新的错误实例。message 为空时使用错误码的兜底文案。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, msg: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型，保留原错误供 errors.Is/As 检查。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 使 errors.Is 按错误码比较两个统一错误。
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	other, ok := target.(*Error)
	return ok && other != nil && e.code == other.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.msg
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.meta) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.meta))
	for k, v := range e.meta {
		clone[k] = v
	}
	return clone
}

// Retryable 判断是否可重试。
func (e *Error) Retryable() bool {
	switch {
	case e == nil:
		return false
	case e.retryable != nil:
		return *e.retryable
	default:
		return AttributesOf(e.code).Retryable
	}
}

// ShouldAlert 判断是否需要告警。
func (e *Error) ShouldAlert() bool {
	switch {
	case e == nil:
		return false
	case e.alert != nil:
		return *e.alert
	default:
		return AttributesOf(e.code).Alert
	}
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	switch {
	case e == nil:
		return SeverityInfo
	case e.severity != nil:
		return *e.severity
	default:
		return AttributesOf(e.code).Severity
	}
}

// From 尝试从 error 链中解析出统一错误类型。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回任意 error 对应的错误码，无法解析时返回 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试。普通 error 视为不可重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// ShouldAlert 判断任意 error 是否需要触发告警。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return e.ShouldAlert()
	}
	return false
}

// SeverityOf 返回任意 error 的严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
