package service

import (
	"context"
	"fmt"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/repository"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"

	"go.uber.org/zap"
)

// ReadStatus 消息的已读状态（推导得出，不落库）
type ReadStatus string

const (
	StatusSent      ReadStatus = "sent"
	StatusDelivered ReadStatus = "delivered"
	StatusRead      ReadStatus = "read"
)

// Receipt 某成员在会话中的最后已读时间，nil 表示从未读过
type Receipt struct {
	MemberID   string     `json:"member_id"`
	LastReadAt *time.Time `json:"last_read_at"`
}

// DeriveStatus 根据其他成员的已读时间推导消息状态
//   - read: 所有其他成员的已读时间都不早于消息创建时间
//   - delivered: 至少一个但不是全部
//   - sent: 其他情况，包括没有其他成员
func DeriveStatus(createdAt time.Time, receipts []Receipt) ReadStatus {
	if len(receipts) == 0 {
		return StatusSent
	}
	seen := 0
	for _, r := range receipts {
		if r.LastReadAt != nil && !r.LastReadAt.Before(createdAt) {
			seen++
		}
	}
	switch {
	case seen == len(receipts):
		return StatusRead
	case seen > 0:
		return StatusDelivered
	default:
		return StatusSent
	}
}

// ReceiptService 已读回执
type ReceiptService struct {
	repos        *repository.Repositories
	unread       UnreadCache
	pollInterval time.Duration
	now          func() time.Time
}

// NewReceiptService 创建ReceiptService实例
func NewReceiptService(repos *repository.Repositories, unread UnreadCache, pollInterval time.Duration) *ReceiptService {
	return &ReceiptService{
		repos:        repos,
		unread:       unread,
		pollInterval: pollInterval,
		now:          utcNow,
	}
}

// SetClock 替换时钟
func (s *ReceiptService) SetClock(now func() time.Time) { s.now = now }

// GetReceipts 返回会话中除 excludingMember 以外所有成员的已读时间
func (s *ReceiptService) GetReceipts(ctx context.Context, threadID, excludingMember string) ([]Receipt, error) {
	roster, err := s.repos.Members.ListByThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("查询已读回执失败: %w", err)
	}
	receipts := make([]Receipt, 0, len(roster))
	for _, m := range roster {
		if m.MemberID == excludingMember {
			continue
		}
		receipts = append(receipts, Receipt{MemberID: m.MemberID, LastReadAt: m.LastReadAt})
	}
	return receipts, nil
}

// PollReceipts 立即并按固定间隔拉取已读回执，没有推送订阅
// 拉取失败只记录日志，下一次轮询会重试
func (s *ReceiptService) PollReceipts(ctx context.Context, threadID, excludingMember string, fn func([]Receipt)) *Poller {
	return startPoller(ctx, s.pollInterval, func(ctx context.Context) {
		receipts, err := s.GetReceipts(ctx, threadID, excludingMember)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("轮询已读回执失败", zap.Error(err), zap.String("thread_id", threadID))
			}
			return
		}
		fn(receipts)
	})
}

// MarkThreadRead 把成员在会话中的已读时间设为当前时间
// 无条件覆盖，不调用时已读时间保持不变
func (s *ReceiptService) MarkThreadRead(ctx context.Context, threadID, memberID string) (time.Time, error) {
	now := s.now()
	ok, err := s.repos.Members.UpdateLastRead(ctx, threadID, memberID, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("更新已读时间失败: %w", err)
	}
	if !ok {
		return time.Time{}, ErrNotThreadMember
	}
	invalidateUnread(ctx, s.unread, memberID)
	return now, nil
}
