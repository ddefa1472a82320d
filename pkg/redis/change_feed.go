package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChangeFeed 基于 redis pub/sub 的变更事件流
// 所有事件发布在同一个频道上，过滤在订阅端完成

type ChangeFeed struct {
	client           *redis.Client
	channel          string
	reconnectInitial time.Duration
	reconnectMax     time.Duration
}

// NewChangeFeed 创建事件流
func NewChangeFeed(c *redis.Client, reconnectInitial, reconnectMax time.Duration) *ChangeFeed {
	return &ChangeFeed{
		client:           c,
		channel:          keyPrefix + "changes",
		reconnectInitial: reconnectInitial,
		reconnectMax:     reconnectMax,
	}
}

// Publish 发布事件
func (f *ChangeFeed) Publish(ctx context.Context, event realtime.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化变更事件失败: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("发布变更事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅事件，收到订阅确认后返回
func (f *ChangeFeed) Subscribe(ctx context.Context, filter realtime.Filter, handler realtime.Handler) (realtime.Subscription, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("订阅变更事件失败: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s := &feedSub{pubsub: pubsub, cancel: cancel, done: make(chan struct{})}
	go s.run(subCtx, f.newBackOff(), filter, handler)
	return s, nil
}

func (f *ChangeFeed) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.reconnectInitial
	b.MaxInterval = f.reconnectMax
	b.Reset()
	return b
}

type feedSub struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *feedSub) run(ctx context.Context, b *backoff.ExponentialBackOff, filter realtime.Filter, handler realtime.Handler) {
	defer close(s.done)
	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// 连接断开时 go-redis 会在下一次读取时重新订阅，这里只负责退避
			wait := b.NextBackOff()
			logger.Warn("变更事件订阅中断，稍后重试",
				zap.Error(err),
				zap.Duration("retry_in", wait),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		event, ok := decodeEvent(msg.Payload)
		if !ok || !filter.Match(event) {
			continue
		}
		handler(event)
	}
}

func (s *feedSub) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}

func decodeEvent(payload string) (realtime.ChangeEvent, bool) {
	var event realtime.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		logger.Warn("无法解析变更事件", zap.Error(err))
		return event, false
	}
	return event, true
}
