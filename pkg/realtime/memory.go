package realtime

import (
	"context"
	"sync"

	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const memoryQueueSize = 256

// MemoryFeed 进程内的变更事件流
// 每个订阅有独立的队列和投递协程，同一订阅内事件按发布顺序投递

type MemoryFeed struct {
	mu   sync.RWMutex
	subs map[string]*memorySub
}

// NewMemoryFeed 创建内存事件流
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]*memorySub)}
}

type memorySub struct {
	id      string
	feed    *MemoryFeed
	filter  Filter
	handler Handler
	queue   chan ChangeEvent
	done    chan struct{}
	once    sync.Once
}

// Publish 发布事件，队列满的订阅会丢弃该事件
func (f *MemoryFeed) Publish(ctx context.Context, event ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		if !s.filter.Match(event) {
			continue
		}
		select {
		case s.queue <- event:
		default:
			logger.Warn("订阅队列已满，丢弃事件",
				zap.String("subscription", s.id),
				zap.String("row_id", event.RowID),
			)
		}
	}
	return nil
}

// Subscribe 注册订阅
func (f *MemoryFeed) Subscribe(ctx context.Context, filter Filter, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &memorySub{
		id:      uuid.NewString(),
		feed:    f,
		filter:  filter,
		handler: handler,
		queue:   make(chan ChangeEvent, memoryQueueSize),
		done:    make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[s.id] = s
	f.mu.Unlock()

	go s.run()
	return s, nil
}

func (s *memorySub) run() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.queue:
			s.handler(e)
		}
	}
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		s.feed.mu.Unlock()
		close(s.done)
	})
	return nil
}

// MemoryPresence 进程内的在线状态频道
type MemoryPresence struct {
	mu    sync.Mutex
	subs  map[string]*memoryPresenceSub
	state map[string]PresenceMeta // 订阅ID -> 元数据

	// 广播串行化，保证每个订阅者看到的快照顺序一致
	broadcastMu sync.Mutex
}

// NewMemoryPresence 创建内存在线频道
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		subs:  make(map[string]*memoryPresenceSub),
		state: make(map[string]PresenceMeta),
	}
}

type memoryPresenceSub struct {
	id      string
	ch      *MemoryPresence
	onSync  SyncHandler
	closeMu sync.Mutex
	closed  bool
}

// Subscribe 订阅并立即收到一次当前快照
func (p *MemoryPresence) Subscribe(ctx context.Context, onSync SyncHandler) (PresenceSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memoryPresenceSub{id: uuid.NewString(), ch: p, onSync: onSync}

	p.mu.Lock()
	p.subs[s.id] = s
	p.mu.Unlock()

	p.broadcastTo([]*memoryPresenceSub{s})
	return s, nil
}

// Snapshot 返回当前频道快照
func (p *MemoryPresence) Snapshot() PresenceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *MemoryPresence) snapshotLocked() PresenceState {
	state := make(PresenceState)
	for _, meta := range p.state {
		state[meta.MemberID] = append(state[meta.MemberID], meta)
	}
	return state
}

func (p *MemoryPresence) broadcast() {
	p.mu.Lock()
	subs := make([]*memoryPresenceSub, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()
	p.broadcastTo(subs)
}

func (p *MemoryPresence) broadcastTo(subs []*memoryPresenceSub) {
	p.broadcastMu.Lock()
	defer p.broadcastMu.Unlock()
	for _, s := range subs {
		// 每个订阅者一份独立的拷贝
		s.onSync(p.Snapshot())
	}
}

func (s *memoryPresenceSub) Track(ctx context.Context, meta PresenceMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if meta.SessionID == "" {
		meta.SessionID = s.id
	}

	s.ch.mu.Lock()
	s.ch.state[s.id] = meta
	s.ch.mu.Unlock()

	s.ch.broadcast()
	return nil
}

func (s *memoryPresenceSub) Untrack(ctx context.Context) error {
	s.ch.mu.Lock()
	_, tracked := s.ch.state[s.id]
	delete(s.ch.state, s.id)
	s.ch.mu.Unlock()

	if tracked {
		s.ch.broadcast()
	}
	return nil
}

func (s *memoryPresenceSub) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.ch.mu.Lock()
	delete(s.ch.subs, s.id)
	s.ch.mu.Unlock()

	return s.Untrack(context.Background())
}
