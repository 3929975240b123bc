package connectivity

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// Probe 检测当前是否具备外网连通性。
type Probe interface {
	IsReachable(ctx context.Context) bool
}

const (
	defaultProbeAddress = "8.8.8.8:53"
	defaultProbeTimeout = 3 * time.Second
)

// DialProbe 通过对公共 DNS 端口发起 TCP 连接来判断网络可达性。
type DialProbe struct {
	address string
	timeout time.Duration
	dialer  *net.Dialer
}

// NewDialProbe 构造探测器。address 为空时使用 8.8.8.8:53。
func NewDialProbe(address string, timeout time.Duration) *DialProbe {
	if address == "" {
		address = defaultProbeAddress
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &DialProbe{
		address: address,
		timeout: timeout,
		dialer:  &net.Dialer{Timeout: timeout},
	}
}

// IsReachable 实现 Probe 接口。
func (p *DialProbe) IsReachable(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", p.address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// StaticProbe 返回可外部切换的固定结果，用于测试和单步驱动连通性变化。
type StaticProbe struct {
	reachable atomic.Bool
}

// NewStaticProbe 构造固定结果探测器。
func NewStaticProbe(reachable bool) *StaticProbe {
	p := &StaticProbe{}
	p.reachable.Store(reachable)
	return p
}

// Set 切换探测结果。
func (p *StaticProbe) Set(reachable bool) {
	p.reachable.Store(reachable)
}

// IsReachable 实现 Probe 接口。
func (p *StaticProbe) IsReachable(context.Context) bool {
	return p.reachable.Load()
}

var (
	_ Probe = (*DialProbe)(nil)
	_ Probe = (*StaticProbe)(nil)
)
