package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/repository"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/metrics"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// UnreadService 未读计数
// 每次计算对成员的每个会话各发一次计数查询，会话数即为上限
type UnreadService struct {
	repos        *repository.Repositories
	cache        UnreadCache
	feed         realtime.ChangeFeed
	pollInterval time.Duration
	fanout       int
}

// NewUnreadService 创建UnreadService实例，cache 可以为 nil
func NewUnreadService(repos *repository.Repositories, cache UnreadCache, feed realtime.ChangeFeed, pollInterval time.Duration, fanout int) *UnreadService {
	if fanout <= 0 {
		fanout = 8
	}
	return &UnreadService{
		repos:        repos,
		cache:        cache,
		feed:         feed,
		pollInterval: pollInterval,
		fanout:       fanout,
	}
}

// UnreadCount 成员所有会话的未读消息总数
// 某会话的未读数 = 他人发送、未删除、创建时间晚于成员已读时间的消息数；从未读过按 0 时刻计算
func (s *UnreadService) UnreadCount(ctx context.Context, memberID string) (int64, error) {
	// 版本号在读库之前取得，计算期间的失效会让写回被丢弃
	version := int64(-1)
	if s.cache != nil {
		n, v, ok, err := s.cache.Get(ctx, memberID)
		if err != nil {
			logger.Warn("读取未读数缓存失败", zap.Error(err), zap.String("member_id", memberID))
		} else if ok {
			metrics.UnreadComputations.WithLabelValues("cache").Inc()
			return n, nil
		} else {
			version = v
		}
	}

	memberships, err := s.repos.Members.ListByMember(ctx, memberID)
	if err != nil {
		return 0, fmt.Errorf("查询成员会话失败: %w", err)
	}

	counts := make([]int64, len(memberships))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i, m := range memberships {
		i, m := i, m
		g.Go(func() error {
			after := time.Unix(0, 0).UTC()
			if m.LastReadAt != nil {
				after = *m.LastReadAt
			}
			n, err := s.repos.Messages.CountUnread(gctx, m.ThreadID, memberID, after)
			if err != nil {
				return fmt.Errorf("统计会话 %s 未读数失败: %w", m.ThreadID, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	metrics.UnreadComputations.WithLabelValues("store").Inc()

	if s.cache != nil && version >= 0 {
		if err := s.cache.Set(ctx, memberID, version, total, s.pollInterval); err != nil {
			logger.Warn("写入未读数缓存失败", zap.Error(err), zap.String("member_id", memberID))
		}
	}
	return total, nil
}

// UnreadWatcher 未读数观察者
type UnreadWatcher struct {
	poller *Poller
	sub    realtime.Subscription
	once   sync.Once
}

// Stop 停止轮询并关闭订阅，可重复调用
func (w *UnreadWatcher) Stop() {
	w.once.Do(func() {
		if w.sub != nil {
			_ = w.sub.Close()
		}
		w.poller.Stop()
	})
}

// Refresh 立即重新计算一次
func (w *UnreadWatcher) Refresh() {
	w.poller.Trigger()
}

// WatchUnread 立即计算并回调一次未读数，之后每个轮询间隔回调一次，
// 任意会话有新消息时也立即重新计算
func (s *UnreadService) WatchUnread(ctx context.Context, memberID string, fn func(int64)) (*UnreadWatcher, error) {
	w := &UnreadWatcher{}
	w.poller = startPoller(ctx, s.pollInterval, func(ctx context.Context) {
		n, err := s.UnreadCount(ctx, memberID)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("计算未读数失败", zap.Error(err), zap.String("member_id", memberID))
			}
			return
		}
		fn(n)
	})

	if s.feed != nil {
		sub, err := s.feed.Subscribe(ctx, realtime.Filter{Table: realtime.TableMessage, Op: realtime.OpInsert}, func(realtime.ChangeEvent) {
			w.poller.Trigger()
		})
		if err != nil {
			w.poller.Stop()
			return nil, fmt.Errorf("订阅新消息事件失败: %w", err)
		}
		w.sub = sub
	}
	return w, nil
}
