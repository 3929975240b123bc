package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	loggerpkg "github.com/Himanshu-is-code/AMD-HACK/pkg/logger"
)

// 身份验证子系统返回的公共错误。
var (
	ErrDisabled     = errors.New("authentication disabled")
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Mode 枚举支持的身份验证模式。
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeToken    Mode = "token"
)

// Config 配置身份验证服务。
type Config struct {
	Mode  Mode
	Token string
}

// Service 负责 HTTP 端点和恢复凭证的身份验证。
type Service struct {
	mode  Mode
	token []byte
}

// NewService 构造身份认证服务实例。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	switch mode {
	case ModeDisabled:
		return &Service{mode: mode}, nil
	case ModeToken:
		token := strings.TrimSpace(cfg.Token)
		if token == "" {
			return nil, errors.New("token mode requires a configured token")
		}
		return &Service{mode: mode, token: []byte(token)}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// VerifyCredential 校验恢复请求携带的凭证。禁用模式下始终放行。
func (s *Service) VerifyCredential(_ context.Context, credential string) error {
	if s == nil || s.mode == ModeDisabled {
		return nil
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(credential), s.token) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// authenticateHeader 从 Authorization 头中解析并校验 Bearer 令牌。
func (s *Service) authenticateHeader(header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ErrInvalidToken
	}
	return s.VerifyCredential(context.Background(), parts[1])
}

// MiddlewareConfig 配置身份认证中间件的行为。
type MiddlewareConfig struct {
	// AuditEvent 指定记录审计日志时使用的事件名称。
	AuditEvent string
}

// Middleware 返回一个 HTTP 中间件，用于处理身份认证并记录审计日志。
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s == nil || s.mode == ModeDisabled {
				next.ServeHTTP(w, r)
				return
			}
			if err := s.authenticateHeader(r.Header.Get("Authorization")); err != nil {
				status := http.StatusUnauthorized
				http.Error(w, http.StatusText(status), status)
				loggerpkg.Audit().Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error", err.Error(),
				)
				return
			}
			// 记录审计日志。
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r)
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			loggerpkg.Audit().Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
