package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPermissionDenied 系统通知权限被拒绝（本会话内不再请求）
var ErrPermissionDenied = errors.New("notification permission denied")

// ErrPermissionTimeout 等待授权结果超时
var ErrPermissionTimeout = errors.New("notification permission request timed out")

// ErrPermissionDismissed 用户关闭了授权弹窗，没有做出选择
var ErrPermissionDismissed = errors.New("notification permission prompt dismissed")

// Permission 系统通知权限状态
type Permission string

const (
	PermissionUnrequested Permission = "default"
	PermissionRequested   Permission = "requested"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
)

// permissionState 权限状态机：unrequested -> requested -> granted|denied
// denied 为终态；并发的请求共享同一次浏览器弹窗
type permissionState struct {
	mu      sync.Mutex
	state   Permission
	pending chan struct{}
}

func newPermissionState() *permissionState {
	return &permissionState{state: PermissionUnrequested}
}

func (p *permissionState) Get() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Resolve 记录浏览器返回的授权结果
func (p *permissionState) Resolve(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.state == PermissionDenied:
		return
	case granted:
		p.state = PermissionGranted
	default:
		p.state = PermissionDenied
	}
	if p.pending != nil {
		close(p.pending)
		p.pending = nil
	}
}

// Request 需要时发起一次请求并等待结果
// request 只会在状态为 unrequested 时被调用
func (p *permissionState) Request(ctx context.Context, timeout time.Duration, request func(context.Context) error) (Permission, error) {
	p.mu.Lock()
	switch p.state {
	case PermissionGranted, PermissionDenied:
		s := p.state
		p.mu.Unlock()
		return s, nil
	}

	wait := p.pending
	first := wait == nil
	if first {
		wait = make(chan struct{})
		p.pending = wait
		p.state = PermissionRequested
	}
	p.mu.Unlock()

	if first {
		if err := request(ctx); err != nil {
			p.reset(wait)
			return PermissionUnrequested, err
		}
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-wait:
		return p.Get(), nil
	case <-ctx.Done():
		p.reset(wait)
		return PermissionUnrequested, ctx.Err()
	case <-timer:
		p.reset(wait)
		return PermissionUnrequested, ErrPermissionTimeout
	}
}

// Dismiss 用户关闭弹窗：结束等待并回到 unrequested
func (p *permissionState) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		close(p.pending)
		p.pending = nil
		p.state = PermissionUnrequested
	}
}

// reset 请求没有得到答复时回到 unrequested，允许之后再次请求
func (p *permissionState) reset(wait chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == wait {
		close(p.pending)
		p.pending = nil
		p.state = PermissionUnrequested
	}
}
