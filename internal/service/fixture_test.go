package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/repository"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/testutil"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/cache"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeStore struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[key] = data
	return "https://files.test/" + key, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

type fixture struct {
	db       *gorm.DB
	repos    *repository.Repositories
	feed     *realtime.MemoryFeed
	views    *cache.Memory
	unread   *cache.UnreadCounter
	store    *fakeStore
	clock    *testutil.Clock
	threads  *ThreadService
	messages *MessageService
	receipts *ReceiptService
	counter  *UnreadService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	f := &fixture{
		db:     gdb,
		repos:  repository.New(gdb),
		feed:   realtime.NewMemoryFeed(),
		views:  cache.NewMemory(),
		unread: cache.NewUnreadCounter(),
		store:  &fakeStore{},
		clock:  testutil.NewClock(),
	}
	f.threads = NewThreadService(f.repos, f.views, "Family Chat", time.Minute)
	f.threads.SetClock(f.clock.Now)
	f.messages = NewMessageService(f.repos, f.feed, MessageServiceOptions{
		Attachments:   f.store,
		Views:         f.views,
		Unread:        f.unread,
		MaxAttachment: 10 << 20,
		CacheTTL:      time.Minute,
	})
	f.messages.SetClock(f.clock.Now)
	f.receipts = NewReceiptService(f.repos, f.unread, 10*time.Second)
	f.receipts.SetClock(f.clock.Now)
	f.counter = NewUnreadService(f.repos, f.unread, f.feed, 30*time.Second, 4)
	return f
}

func (f *fixture) profile(t *testing.T, name string) *model.Profile {
	return testutil.CreateProfile(t, f.db, name)
}

// send 发送一条消息并把时钟推进一秒，保证创建时间严格递增
func (f *fixture) send(t *testing.T, senderID, threadID, content string) *MessageView {
	t.Helper()
	msg, err := f.messages.SendMessage(context.Background(), senderID, threadID, content, nil)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return msg
}

func upload(name, contentType string, size int) *AttachmentUpload {
	return &AttachmentUpload{
		Name:        name,
		ContentType: contentType,
		Size:        int64(size),
		Body:        bytes.NewReader(make([]byte, size)),
	}
}

// hookViews 在写回缓存之前执行一次 beforeSet，模拟读库与写回之间的并发写入
type hookViews struct {
	*cache.Memory
	beforeSet func()
}

func (h *hookViews) Set(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) error {
	if fn := h.beforeSet; fn != nil {
		h.beforeSet = nil
		fn()
	}
	return h.Memory.Set(ctx, key, version, value, ttl)
}

type hookUnread struct {
	*cache.UnreadCounter
	beforeSet func()
}

func (h *hookUnread) Set(ctx context.Context, memberID string, version, count int64, ttl time.Duration) error {
	if fn := h.beforeSet; fn != nil {
		h.beforeSet = nil
		fn()
	}
	return h.UnreadCounter.Set(ctx, memberID, version, count, ttl)
}
