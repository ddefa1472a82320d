package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", 0, []byte("v"), time.Minute))
	got, _, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, _, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "a", 0, []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", 0, []byte("2"), 0))
	require.NoError(t, m.Delete(ctx, "a", "missing"))

	_, version, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, int64(1), version)
	_, _, ok, _ = m.Get(ctx, "b")
	assert.True(t, ok)
}

func TestMemorySetAfterDeleteIsDropped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	// 读取到版本号后、写回之前发生了失效
	_, version, ok, err := m.Get(ctx, "messages:t1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, m.Delete(ctx, "messages:t1"))
	require.NoError(t, m.Set(ctx, "messages:t1", version, []byte("stale"), time.Minute))

	_, version, ok, _ = m.Get(ctx, "messages:t1")
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "messages:t1", version, []byte("fresh"), time.Minute))
	got, _, ok, _ := m.Get(ctx, "messages:t1")
	assert.True(t, ok)
	assert.Equal(t, []byte("fresh"), got)
}

func TestUnreadCounter(t *testing.T) {
	ctx := context.Background()
	u := NewUnreadCounter()

	_, version, ok, err := u.Get(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, u.Set(ctx, "m1", version, 7, time.Minute))
	n, _, ok, err := u.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	require.NoError(t, u.Invalidate(ctx, "m1"))
	_, _, ok, _ = u.Get(ctx, "m1")
	assert.False(t, ok)

	// 失效前读到的版本号不能再写入
	require.NoError(t, u.Set(ctx, "m1", version, 3, time.Minute))
	_, _, ok, _ = u.Get(ctx, "m1")
	assert.False(t, ok)
}
