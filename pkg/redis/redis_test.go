package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeState(t *testing.T) {
	raw := []interface{}{
		`{"session_id":"s1","member_id":"a","display_name":"Ma","online_at":"2024-05-01T12:00:00Z"}`,
		`{"session_id":"s2","member_id":"a","display_name":"Ma","online_at":"2024-05-01T12:01:00Z"}`,
		`{"session_id":"s3","member_id":"b","display_name":"Pa","online_at":"2024-05-01T12:02:00Z"}`,
		nil,
		"not json",
	}

	state := decodeState(raw)
	assert.Len(t, state, 2)
	assert.Len(t, state["a"], 2)
	assert.Equal(t, "Pa", state["b"][0].DisplayName)
}

func TestDecodeEvent(t *testing.T) {
	e, ok := decodeEvent(`{"table":"message","op":"insert","row_id":"m1","thread_id":"t1","created_at":"2024-05-01T12:00:00Z"}`)
	assert.True(t, ok)
	assert.Equal(t, "m1", e.RowID)
	assert.Equal(t, "t1", e.ThreadID)

	_, ok = decodeEvent("{")
	assert.False(t, ok)
}

func TestPresenceKeys(t *testing.T) {
	p := NewPresence(nil, "online-users", 90*time.Second)
	assert.Equal(t, "family:presence:online-users:sessions", p.sessionsKey)
	assert.Equal(t, "family:presence:online-users:meta", p.metaKey)
	assert.Equal(t, "family:presence:online-users:sync", p.syncChannel)

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	assert.Equal(t, float64(fixed.Add(90*time.Second).UnixMilli()), p.expiry())
}

func TestVersionedCacheKeys(t *testing.T) {
	assert.Equal(t, "family:view-version:messages:t1", viewVersionKey("messages:t1"))
	assert.Equal(t, "family:view:messages:t1:0", viewKey("messages:t1", 0))
	assert.NotEqual(t, viewKey("messages:t1", 1), viewKey("messages:t1", 2))
	assert.Equal(t, "family:unread:m1:3", unreadKey("m1", 3))
}

func TestPresenceRenewalEntry(t *testing.T) {
	s := &presenceSub{p: NewPresence(nil, "online-users", 90*time.Second), sessionID: "s1"}

	_, ok := s.renewalEntry()
	assert.False(t, ok)

	s.tracked = true
	s.meta = []byte(`{"session_id":"s1","member_id":"a"}`)
	data, ok := s.renewalEntry()
	assert.True(t, ok)
	assert.Equal(t, s.meta, data)

	// 续期时条目被清理过，需要重新广播
	assert.True(t, entryRecreated(1))
	assert.False(t, entryRecreated(0))

	s.tracked = false
	_, ok = s.renewalEntry()
	assert.False(t, ok)
}
