package service

import (
	"context"
	"sync"
	"time"
)

// Poller 周期任务：启动时立即执行一次，之后每个间隔或收到触发时执行
// 同一时刻最多只有一次执行
type Poller struct {
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
	once    sync.Once
}

func startPoller(ctx context.Context, interval time.Duration, run func(context.Context)) *Poller {
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{
		cancel:  cancel,
		done:    make(chan struct{}),
		trigger: make(chan struct{}, 1),
	}

	go func() {
		defer close(p.done)
		run(ctx)

		var tick <-chan time.Time
		if interval > 0 {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				run(ctx)
			case <-p.trigger:
				run(ctx)
			}
		}
	}()
	return p
}

// Trigger 请求尽快执行一次，已有未处理的触发时合并
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop 停止并等待正在执行的任务结束，可重复调用
func (p *Poller) Stop() {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
}
