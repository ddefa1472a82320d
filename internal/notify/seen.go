package notify

import "sync"

// seenSet 有界的已处理消息ID集合，超出容量时淘汰最早加入的ID
type seenSet struct {
	mu    sync.Mutex
	cap   int
	ring  []string
	next  int
	index map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 256
	}
	return &seenSet{
		cap:   capacity,
		ring:  make([]string, capacity),
		index: make(map[string]struct{}, capacity),
	}
}

// Add 记录ID，已存在时返回 false
func (s *seenSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.index, old)
	}
	s.ring[s.next] = id
	s.index[id] = struct{}{}
	s.next = (s.next + 1) % s.cap
	return true
}
