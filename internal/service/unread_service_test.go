package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnreadCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ma, pa, th := directThread(t, f)
	group, err := f.threads.EnsureGroupThread(ctx, ma.ID)
	require.NoError(t, err)
	require.NoError(t, f.threads.AddMember(ctx, group.ID, pa.ID))

	// 从未读过：所有他人消息都算未读，自己的不算
	f.send(t, pa.ID, th.ID, "1")
	f.send(t, pa.ID, th.ID, "2")
	f.send(t, ma.ID, th.ID, "mine")
	f.send(t, pa.ID, group.ID, "3")

	n, err := f.counter.UnreadCount(ctx, ma.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = f.receipts.MarkThreadRead(ctx, th.ID, ma.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Second)

	n, err = f.counter.UnreadCount(ctx, ma.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 新消息使接收方缓存失效
	deleted := f.send(t, pa.ID, th.ID, "4")
	n, err = f.counter.UnreadCount(ctx, ma.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// 已删除的消息不计入
	require.NoError(t, f.messages.DeleteMessage(ctx, pa.ID, deleted.ID))
	n, err = f.counter.UnreadCount(ctx, ma.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUnreadCountNoThreads(t *testing.T) {
	f := newFixture(t)
	loner := f.profile(t, "Loner")
	n, err := f.counter.UnreadCount(context.Background(), loner.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnreadCountServedFromCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ma, _, _ := directThread(t, f)

	_, version, _, err := f.unread.Get(ctx, ma.ID)
	require.NoError(t, err)
	require.NoError(t, f.unread.Set(ctx, ma.ID, version, 42, time.Minute))
	n, err := f.counter.UnreadCount(ctx, ma.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestUnreadCountMarkReadDuringRecompute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ma, pa, th := directThread(t, f)
	f.send(t, pa.ID, th.ID, "hi")

	unread := &hookUnread{UnreadCounter: f.unread}
	counter := NewUnreadService(f.repos, unread, nil, time.Minute, 4)
	unread.beforeSet = func() {
		_, err := f.receipts.MarkThreadRead(ctx, th.ID, ma.ID)
		require.NoError(t, err)
	}

	n, err := counter.UnreadCount(ctx, ma.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = counter.UnreadCount(ctx, ma.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWatchUnreadRecomputesOnNewMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ma, pa, th := directThread(t, f)
	// 轮询间隔足够长，只有事件能触发重新计算
	f.counter = NewUnreadService(f.repos, f.unread, f.feed, time.Hour, 4)

	var mu sync.Mutex
	var seen []int64
	w, err := f.counter.WatchUnread(ctx, ma.ID, func(n int64) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Stop()

	last := func() (int64, int) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 {
			return -1, 0
		}
		return seen[len(seen)-1], len(seen)
	}

	assert.Eventually(t, func() bool { n, _ := last(); return n == 0 }, time.Second, 5*time.Millisecond)

	f.send(t, pa.ID, th.ID, "hello")
	assert.Eventually(t, func() bool { n, _ := last(); return n == 1 }, time.Second, 5*time.Millisecond)

	w.Stop()
	_, calls := last()
	f.send(t, pa.ID, th.ID, "after stop")
	time.Sleep(30 * time.Millisecond)
	_, after := last()
	assert.Equal(t, calls, after)
}
