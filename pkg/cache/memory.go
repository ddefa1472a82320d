// Package cache 提供进程内的视图缓存与未读数缓存，接口与 pkg/redis 中的实现一致
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory 带过期时间的内存键值缓存
// 每个键有一个版本号：Delete 使版本号递增，Set 只在版本号与读取时一致时写入，
// 读取数据库期间发生的失效不会被旧结果覆盖
type Memory struct {
	mu       sync.Mutex
	items    map[string]entry
	versions map[string]int64
	now      func() time.Time
}

// NewMemory 创建内存缓存
func NewMemory() *Memory {
	return &Memory{items: make(map[string]entry), versions: make(map[string]int64), now: time.Now}
}

// Get 读取值与当前版本号，过期或不存在时 ok=false（版本号照常返回）
func (m *Memory) Get(_ context.Context, key string) ([]byte, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	version := m.versions[key]
	e, ok := m.items[key]
	if !ok {
		return nil, version, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.items, key)
		return nil, version, false, nil
	}
	return e.value, version, true, nil
}

// Set 写入，版本号已变化时丢弃；ttl<=0 表示不过期
func (m *Memory) Set(_ context.Context, key string, version int64, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.versions[key] != version {
		return nil
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = e
	return nil
}

// Delete 删除若干键并递增其版本号
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
		m.versions[k]++
	}
	return nil
}

// UnreadCounter 基于 Memory 的未读数缓存
type UnreadCounter struct {
	store *Memory
}

// NewUnreadCounter 创建未读数缓存
func NewUnreadCounter() *UnreadCounter {
	return &UnreadCounter{store: NewMemory()}
}

func unreadKey(memberID string) string { return "unread:" + memberID }

// Get 读取成员的未读数与版本号
func (u *UnreadCounter) Get(ctx context.Context, memberID string) (int64, int64, bool, error) {
	raw, version, ok, err := u.store.Get(ctx, unreadKey(memberID))
	if err != nil || !ok {
		return 0, version, false, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, version, false, err
	}
	return n, version, true, nil
}

// Set 写入成员的未读数，版本号已变化时丢弃
func (u *UnreadCounter) Set(ctx context.Context, memberID string, version, count int64, ttl time.Duration) error {
	return u.store.Set(ctx, unreadKey(memberID), version, []byte(strconv.FormatInt(count, 10)), ttl)
}

// Invalidate 使若干成员的未读数失效
func (u *UnreadCounter) Invalidate(ctx context.Context, memberIDs ...string) error {
	keys := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		keys = append(keys, unreadKey(id))
	}
	return u.store.Delete(ctx, keys...)
}
