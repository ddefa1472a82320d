package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViewCache 会话列表/消息列表的视图缓存
// 缓存值写在带版本号的键下，Delete 只递增版本号：
// 失效前读到旧版本号的写入落到无人读取的旧键上，随TTL过期
type ViewCache struct {
	client *redis.Client
}

// NewViewCache 创建视图缓存
func NewViewCache(c *redis.Client) *ViewCache {
	return &ViewCache{client: c}
}

func viewVersionKey(key string) string { return keyPrefix + "view-version:" + key }

func viewKey(key string, version int64) string {
	return keyPrefix + "view:" + key + ":" + strconv.FormatInt(version, 10)
}

// readVersion 版本号键不存在时为 0
func readVersion(ctx context.Context, c *redis.Client, key string) (int64, error) {
	version, err := c.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// Get 读取缓存与当前版本号，不存在时 ok=false
func (v *ViewCache) Get(ctx context.Context, key string) ([]byte, int64, bool, error) {
	version, err := readVersion(ctx, v.client, viewVersionKey(key))
	if err != nil {
		return nil, 0, false, fmt.Errorf("读取视图版本失败: %w", err)
	}
	data, err := v.client.Get(ctx, viewKey(key, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, version, false, nil
		}
		return nil, version, false, fmt.Errorf("读取视图缓存失败: %w", err)
	}
	return data, version, true, nil
}

// Set 写入 Get 时读到的版本
func (v *ViewCache) Set(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) error {
	if err := v.client.Set(ctx, viewKey(key, version), value, ttl).Err(); err != nil {
		return fmt.Errorf("写入视图缓存失败: %w", err)
	}
	return nil
}

// Delete 递增若干视图的版本号
func (v *ViewCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := v.client.Pipeline()
	for _, k := range keys {
		pipe.Incr(ctx, viewVersionKey(k))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("删除视图缓存失败: %w", err)
	}
	return nil
}
