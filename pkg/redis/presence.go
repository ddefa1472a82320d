package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Presence 基于 redis 的在线状态频道
//
// 键结构：
//	family:presence:<channel>:sessions  有序集合，member=会话ID，score=过期时间(毫秒)
//	family:presence:<channel>:meta      哈希，会话ID -> 元数据JSON
//	family:presence:<channel>:sync      pub/sub 频道，加入/离开时发布
//
// 存活的会话每 TTL/3 续期一次；进程崩溃的会话不会被显式删除，过期后在下一次读取快照时清理

type Presence struct {
	client      *redis.Client
	sessionsKey string
	metaKey     string
	syncChannel string
	ttl         time.Duration
	now         func() time.Time
}

// NewPresence 创建在线状态频道
func NewPresence(c *redis.Client, channel string, ttl time.Duration) *Presence {
	base := keyPrefix + "presence:" + channel
	return &Presence{
		client:      c,
		sessionsKey: base + ":sessions",
		metaKey:     base + ":meta",
		syncChannel: base + ":sync",
		ttl:         ttl,
		now:         time.Now,
	}
}

// Subscribe 订阅频道，确认后立即推送一次当前快照
func (p *Presence) Subscribe(ctx context.Context, onSync realtime.SyncHandler) (realtime.PresenceSubscription, error) {
	pubsub := p.client.Subscribe(ctx, p.syncChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("订阅在线频道失败: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s := &presenceSub{
		p:         p,
		pubsub:    pubsub,
		onSync:    onSync,
		ctx:       subCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		sessionID: uuid.NewString(),
	}
	s.resync(ctx)
	go s.run()
	return s, nil
}

// Snapshot 读取当前快照，同时清理已过期的会话
func (p *Presence) Snapshot(ctx context.Context) (realtime.PresenceState, error) {
	nowMs := strconv.FormatInt(p.now().UnixMilli(), 10)

	expired, err := p.client.ZRangeByScore(ctx, p.sessionsKey, &redis.ZRangeBy{Min: "-inf", Max: nowMs}).Result()
	if err != nil {
		return nil, fmt.Errorf("读取过期会话失败: %w", err)
	}
	if len(expired) > 0 {
		pipe := p.client.TxPipeline()
		pipe.ZRemRangeByScore(ctx, p.sessionsKey, "-inf", nowMs)
		pipe.HDel(ctx, p.metaKey, expired...)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("清理过期会话失败: %w", err)
		}
	}

	live, err := p.client.ZRangeByScore(ctx, p.sessionsKey, &redis.ZRangeBy{Min: "(" + nowMs, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("读取在线会话失败: %w", err)
	}
	if len(live) == 0 {
		return realtime.PresenceState{}, nil
	}

	raw, err := p.client.HMGet(ctx, p.metaKey, live...).Result()
	if err != nil {
		return nil, fmt.Errorf("读取会话元数据失败: %w", err)
	}
	return decodeState(raw), nil
}

func decodeState(raw []interface{}) realtime.PresenceState {
	state := make(realtime.PresenceState)
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var meta realtime.PresenceMeta
		if err := json.Unmarshal([]byte(s), &meta); err != nil {
			continue
		}
		state[meta.MemberID] = append(state[meta.MemberID], meta)
	}
	return state
}

func (p *Presence) expiry() float64 {
	return float64(p.now().Add(p.ttl).UnixMilli())
}

func (p *Presence) announce(ctx context.Context) error {
	return p.client.Publish(ctx, p.syncChannel, "sync").Err()
}

type presenceSub struct {
	p         *Presence
	pubsub    *redis.PubSub
	onSync    realtime.SyncHandler
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	sessionID string

	mu        sync.Mutex
	tracked   bool
	meta      []byte // 最近一次 Track 写入的元数据
	stopRenew chan struct{}
	closeOnce sync.Once
	syncMu    sync.Mutex
}

func (s *presenceSub) run() {
	defer close(s.done)
	ch := s.pubsub.Channel()
	// 定期重读快照，以发现未显式离开就过期的会话
	ticker := time.NewTicker(s.p.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.resync(s.ctx)
		case <-ticker.C:
			s.resync(s.ctx)
		}
	}
}

func (s *presenceSub) resync(ctx context.Context) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	state, err := s.p.Snapshot(ctx)
	if err != nil {
		logger.Warn("读取在线快照失败", zap.Error(err))
		return
	}
	s.onSync(state)
}

func (s *presenceSub) Track(ctx context.Context, meta realtime.PresenceMeta) error {
	meta.SessionID = s.sessionID
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("序列化在线元数据失败: %w", err)
	}

	s.mu.Lock()
	pipe := s.p.client.TxPipeline()
	s.p.writeEntry(ctx, pipe, s.sessionID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("写入在线状态失败: %w", err)
	}
	s.meta = data
	if !s.tracked {
		s.tracked = true
		s.stopRenew = make(chan struct{})
		go s.renew(s.stopRenew)
	}
	s.mu.Unlock()

	return s.p.announce(ctx)
}

func (s *presenceSub) renew(stop chan struct{}) {
	interval := s.p.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			recreated, err := s.renewOnce(s.ctx)
			if err != nil {
				if s.ctx.Err() == nil {
					logger.Warn("续期在线状态失败", zap.Error(err), zap.String("session_id", s.sessionID))
				}
				continue
			}
			if recreated {
				logger.Info("在线状态已过期，重新加入频道", zap.String("session_id", s.sessionID))
				if err := s.p.announce(s.ctx); err != nil && s.ctx.Err() == nil {
					logger.Warn("发布在线变化失败", zap.Error(err))
				}
			}
		}
	}
}

// renewOnce 重写完整的会话条目，条目已被其他订阅者清理时会重新创建
// 持有 mu 期间写入，Untrack 之后不会再写回
func (s *presenceSub) renewOnce(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.renewalEntry()
	if !ok {
		return false, nil
	}

	pipe := s.p.client.TxPipeline()
	added := s.p.writeEntry(ctx, pipe, s.sessionID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return entryRecreated(added.Val()), nil
}

// renewalEntry 需要续期的元数据，调用方持有 mu
func (s *presenceSub) renewalEntry() ([]byte, bool) {
	if !s.tracked || s.meta == nil {
		return nil, false
	}
	return s.meta, true
}

// entryRecreated ZADD 新增了条目说明会话曾被当作过期清理
func entryRecreated(added int64) bool { return added > 0 }

// writeEntry 写入元数据并把过期时间推后一个 TTL，返回 ZADD 新增的条目数
func (p *Presence) writeEntry(ctx context.Context, pipe redis.Pipeliner, sessionID string, data []byte) *redis.IntCmd {
	pipe.HSet(ctx, p.metaKey, sessionID, data)
	return pipe.ZAdd(ctx, p.sessionsKey, redis.Z{Score: p.expiry(), Member: sessionID})
}

func (s *presenceSub) Untrack(ctx context.Context) error {
	s.mu.Lock()
	if !s.tracked {
		s.mu.Unlock()
		return nil
	}
	s.tracked = false
	s.meta = nil
	close(s.stopRenew)
	s.mu.Unlock()

	pipe := s.p.client.TxPipeline()
	pipe.ZRem(ctx, s.p.sessionsKey, s.sessionID)
	pipe.HDel(ctx, s.p.metaKey, s.sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("移除在线状态失败: %w", err)
	}
	return s.p.announce(ctx)
}

func (s *presenceSub) Close() error {
	var err error
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err = s.Untrack(ctx)
		s.cancel()
		if cerr := s.pubsub.Close(); err == nil {
			err = cerr
		}
		<-s.done
	})
	return err
}
