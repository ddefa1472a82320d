package service

import (
	"context"
	"fmt"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

// Scheduler 按 cron 表达式执行维护任务
type Scheduler struct {
	name string
	expr string
	job  func(ctx context.Context) error
	now  func() time.Time
}

// NewScheduler 创建调度器，表达式非法时返回错误
func NewScheduler(name, expr string, job func(ctx context.Context) error) (*Scheduler, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("非法的cron表达式: %q", expr)
	}
	return &Scheduler{name: name, expr: expr, job: job, now: time.Now}, nil
}

// NewReconcileScheduler 定期清理重复的家庭群聊
func NewReconcileScheduler(threads *ThreadService, expr string) (*Scheduler, error) {
	return NewScheduler("reconcile_group_threads", expr, func(ctx context.Context) error {
		_, err := threads.ReconcileGroupThreads(ctx)
		return err
	})
}

// Next 下一次执行时间
func (s *Scheduler) Next() (time.Time, error) {
	return gronx.NextTickAfter(s.expr, s.now(), false)
}

// Run 阻塞运行直到 ctx 取消；任务失败只记录日志
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next, err := s.Next()
		if err != nil {
			logger.Error("计算下一次执行时间失败", zap.String("job", s.name), zap.Error(err))
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		start := time.Now()
		if err := s.job(ctx); err != nil {
			logger.Error("维护任务执行失败", zap.String("job", s.name), zap.Error(err))
			continue
		}
		logger.Info("维护任务完成", zap.String("job", s.name), zap.Duration("elapsed", time.Since(start)))
	}
}
