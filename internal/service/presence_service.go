package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/repository"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/metrics"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"

	"go.uber.org/zap"
)

// OnlineMember 在线的其他成员
type OnlineMember struct {
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	OnlineAt    time.Time `json:"online_at"`
}

// OnlineOthers 从频道快照中得到除自己以外的在线成员
// 同一成员的多个会话合并为一条，保留最早的上线时间；结果按上线时间排序
func OnlineOthers(state realtime.PresenceState, self string) []OnlineMember {
	byMember := make(map[string]OnlineMember)
	for _, metas := range state {
		for _, meta := range metas {
			if meta.MemberID == "" || meta.MemberID == self {
				continue
			}
			cur, ok := byMember[meta.MemberID]
			if ok && !meta.OnlineAt.Before(cur.OnlineAt) {
				continue
			}
			byMember[meta.MemberID] = OnlineMember{
				MemberID:    meta.MemberID,
				DisplayName: meta.DisplayName,
				AvatarURL:   meta.AvatarURL,
				OnlineAt:    meta.OnlineAt,
			}
		}
	}

	others := make([]OnlineMember, 0, len(byMember))
	for _, m := range byMember {
		others = append(others, m)
	}
	sort.Slice(others, func(i, j int) bool {
		if !others[i].OnlineAt.Equal(others[j].OnlineAt) {
			return others[i].OnlineAt.Before(others[j].OnlineAt)
		}
		return others[i].MemberID < others[j].MemberID
	})
	return others
}

// PresenceService 在线状态
type PresenceService struct {
	channel          realtime.PresenceChannel
	repos            *repository.Repositories
	lastSeenInterval time.Duration
	now              func() time.Time
}

// NewPresenceService 创建PresenceService实例
func NewPresenceService(channel realtime.PresenceChannel, repos *repository.Repositories, lastSeenInterval time.Duration) *PresenceService {
	return &PresenceService{
		channel:          channel,
		repos:            repos,
		lastSeenInterval: lastSeenInterval,
		now:              utcNow,
	}
}

// SetClock 替换时钟
func (s *PresenceService) SetClock(now func() time.Time) { s.now = now }

// PresenceSession 一个浏览器会话的在线状态
type PresenceSession struct {
	memberID string
	sub      realtime.PresenceSubscription
	lastSeen *Poller
	service  *PresenceService
	once     sync.Once
}

// Start 加入在线频道：订阅确认后上报自己的元数据，每次同步回调在线的其他成员
// 同时立即写入一次最近在线时间，之后按固定间隔刷新
func (s *PresenceService) Start(ctx context.Context, memberID string, onChange func([]OnlineMember)) (*PresenceSession, error) {
	profile, err := s.repos.Profiles.GetByID(ctx, memberID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("查询成员资料失败: %w", err)
	}

	sub, err := s.channel.Subscribe(ctx, func(state realtime.PresenceState) {
		onChange(OnlineOthers(state, memberID))
	})
	if err != nil {
		return nil, fmt.Errorf("订阅在线频道失败: %w", err)
	}

	meta := realtime.PresenceMeta{
		MemberID:    memberID,
		DisplayName: profile.Name(),
		AvatarURL:   profile.Avatar(),
		OnlineAt:    s.now(),
	}
	if err := sub.Track(ctx, meta); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("上报在线状态失败: %w", err)
	}
	metrics.OnlineSessions.Inc()

	session := &PresenceSession{memberID: memberID, sub: sub, service: s}
	session.lastSeen = startPoller(ctx, s.lastSeenInterval, func(ctx context.Context) {
		s.touch(ctx, memberID)
	})
	return session, nil
}

func (s *PresenceService) touch(ctx context.Context, memberID string) {
	if err := s.repos.Profiles.UpdateLastSeen(ctx, memberID, s.now()); err != nil && ctx.Err() == nil {
		logger.Warn("更新最近在线时间失败", zap.Error(err), zap.String("member_id", memberID))
	}
}

// Stop 停止刷新、退出频道并关闭订阅，可重复调用
func (p *PresenceSession) Stop(ctx context.Context) {
	p.once.Do(func() {
		p.lastSeen.Stop()
		p.service.touch(ctx, p.memberID)
		if err := p.sub.Close(); err != nil {
			logger.Warn("退出在线频道失败", zap.Error(err), zap.String("member_id", p.memberID))
		}
		metrics.OnlineSessions.Dec()
	})
}

// LastSeen 批量查询成员的最近在线时间，用于展示离线成员
func (s *PresenceService) LastSeen(ctx context.Context, memberIDs []string) (map[string]*time.Time, error) {
	profiles, err := s.repos.Profiles.GetByIDs(ctx, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("查询最近在线时间失败: %w", err)
	}
	result := make(map[string]*time.Time, len(memberIDs))
	for _, id := range memberIDs {
		if p, ok := profiles[id]; ok {
			result[id] = p.LastSeenAt
		} else {
			result[id] = nil
		}
	}
	return result, nil
}
