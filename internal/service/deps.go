package service

import (
	"context"
	"io"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"

	"go.uber.org/zap"
)

// ViewCache 会话列表/消息列表的视图缓存
// Get 同时返回键的当前版本号（未命中时也返回），Set 带上这个版本号；
// Delete 使版本号递增，之后用旧版本号的 Set 不再可见
type ViewCache interface {
	Get(ctx context.Context, key string) (value []byte, version int64, ok bool, err error)
	Set(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// UnreadCache 成员未读总数缓存，版本号语义同 ViewCache
type UnreadCache interface {
	Get(ctx context.Context, memberID string) (count, version int64, ok bool, err error)
	Set(ctx context.Context, memberID string, version, count int64, ttl time.Duration) error
	Invalidate(ctx context.Context, memberIDs ...string) error
}

// AttachmentStore 附件对象存储，Put 返回公开访问地址
type AttachmentStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// 视图名，随失效通知下发给前端
const (
	ViewThreads  = "threads"
	ViewMessages = "messages"
)

func threadsKey(memberID string) string { return ViewThreads + ":" + memberID }
func messagesKey(threadID string) string { return ViewMessages + ":" + threadID }

// invalidateViews 缓存失效失败只记录日志，缓存最终会按TTL过期
func invalidateViews(ctx context.Context, cache ViewCache, keys ...string) {
	if cache == nil || len(keys) == 0 {
		return
	}
	if err := cache.Delete(ctx, keys...); err != nil {
		logger.Warn("视图缓存失效失败", zap.Error(err), zap.Strings("keys", keys))
	}
}

func invalidateUnread(ctx context.Context, cache UnreadCache, memberIDs ...string) {
	if cache == nil || len(memberIDs) == 0 {
		return
	}
	if err := cache.Invalidate(ctx, memberIDs...); err != nil {
		logger.Warn("未读数缓存失效失败", zap.Error(err), zap.Strings("member_ids", memberIDs))
	}
}

func utcNow() time.Time { return time.Now().UTC() }
