package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// 未读消息计数相关常量
const (
	UnreadCountKeyPrefix   = keyPrefix + "unread:"         // 未读消息计数key前缀
	UnreadVersionKeyPrefix = keyPrefix + "unread-version:" // 未读计数版本号key前缀
)

// UnreadCounter 成员未读总数缓存
// 缓存值只是数据库计算结果的快照，写路径只递增版本号，不做增减

type UnreadCounter struct {
	client *redis.Client
}

// NewUnreadCounter 创建未读计数缓存
func NewUnreadCounter(c *redis.Client) *UnreadCounter {
	return &UnreadCounter{client: c}
}

func unreadKey(memberID string, version int64) string {
	return UnreadCountKeyPrefix + memberID + ":" + strconv.FormatInt(version, 10)
}

// Get 获取成员未读消息计数与版本号，ok=false 表示需要从数据库计算
func (u *UnreadCounter) Get(ctx context.Context, memberID string) (int64, int64, bool, error) {
	version, err := readVersion(ctx, u.client, UnreadVersionKeyPrefix+memberID)
	if err != nil {
		return 0, 0, false, fmt.Errorf("获取未读计数版本失败: %w", err)
	}
	count, err := u.client.Get(ctx, unreadKey(memberID, version)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, version, false, nil
		}
		return 0, version, false, fmt.Errorf("获取未读消息计数失败: %w", err)
	}
	return count, version, true, nil
}

// Set 按 Get 时读到的版本写入成员未读消息计数
func (u *UnreadCounter) Set(ctx context.Context, memberID string, version, count int64, ttl time.Duration) error {
	if err := u.client.Set(ctx, unreadKey(memberID, version), count, ttl).Err(); err != nil {
		return fmt.Errorf("设置未读消息计数失败: %w", err)
	}
	return nil
}

// Invalidate 批量使成员未读计数失效
func (u *UnreadCounter) Invalidate(ctx context.Context, memberIDs ...string) error {
	if len(memberIDs) == 0 {
		return nil
	}

	// 使用Pipeline批量操作
	pipe := u.client.Pipeline()
	for _, id := range memberIDs {
		pipe.Incr(ctx, UnreadVersionKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("批量清除未读消息计数失败: %w", err)
	}
	return nil
}
