package agent

import (
	"context"
	stdErrors "errors"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/workspace"
)

// Request 描述交给 Agent Card 的一次执行。
type Request struct {
	TaskID string
	Text   string
	Intent intent.Intent
	// ClientTime 是客户端上报的本地时间串，供日历类卡片解析相对时间。
	ClientTime string
}

// Source 是执行过程中引用的出处链接。
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result 是一次成功执行的产出。Plan 面向用户展示，不能为空。
type Result struct {
	Plan    string
	Sources []Source
}

// Card 是单一意图的能力模块。实现可以调用外部服务，
// 引擎视这些调用为同步且可能很慢。
type Card interface {
	Name() string
	Intent() intent.Intent
	CanHandle(i intent.Intent) bool
	Execute(ctx context.Context, req Request) (*Result, error)
}

// wrapServiceError 把外部服务错误归类为统一错误码：
// 网络不可达走 OFFLINE（转入等待队列，不消耗重试预算），
// 凭证失效为不可重试的执行失败，其余按可重试执行失败处理。
func wrapServiceError(err error, message string) error {
	switch {
	case stdErrors.Is(err, workspace.ErrUnavailable):
		return xerrors.Wrap(xerrors.CodeOffline, err, message)
	case stdErrors.Is(err, workspace.ErrUnauthorized):
		return xerrors.Wrap(xerrors.CodeExecutorFailure, err, message, xerrors.WithRetryable(false))
	default:
		return xerrors.Wrap(xerrors.CodeExecutorFailure, err, message)
	}
}
