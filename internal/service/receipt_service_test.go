package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

func TestDeriveStatus(t *testing.T) {
	created := time.Unix(100, 0).UTC()

	cases := []struct {
		name     string
		receipts []Receipt
		want     ReadStatus
	}{
		{"one of two read", []Receipt{{LastReadAt: at(90)}, {LastReadAt: at(110)}}, StatusDelivered},
		{"all read", []Receipt{{LastReadAt: at(110)}, {LastReadAt: at(120)}}, StatusRead},
		{"none read", []Receipt{{LastReadAt: at(50)}, {LastReadAt: at(90)}}, StatusSent},
		{"no other members", nil, StatusSent},
		{"never read", []Receipt{{LastReadAt: nil}}, StatusSent},
		{"read exactly at creation", []Receipt{{LastReadAt: at(100)}}, StatusRead},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(created, tc.receipts))
		})
	}
}

func TestMarkThreadReadAndReceipts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ma, pa, th := directThread(t, f)

	receipts, err := f.receipts.GetReceipts(ctx, th.ID, ma.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, pa.ID, receipts[0].MemberID)
	assert.Nil(t, receipts[0].LastReadAt)

	msg := f.send(t, ma.ID, th.ID, "seen?")
	assert.Equal(t, StatusSent, DeriveStatus(msg.CreatedAt, receipts))

	readAt, err := f.receipts.MarkThreadRead(ctx, th.ID, pa.ID)
	require.NoError(t, err)
	assert.True(t, readAt.Equal(f.clock.Now()))

	receipts, err = f.receipts.GetReceipts(ctx, th.ID, ma.ID)
	require.NoError(t, err)
	require.NotNil(t, receipts[0].LastReadAt)
	assert.Equal(t, StatusRead, DeriveStatus(msg.CreatedAt, receipts))

	stranger := f.profile(t, "Stranger")
	_, err = f.receipts.MarkThreadRead(ctx, th.ID, stranger.ID)
	assert.ErrorIs(t, err, ErrNotThreadMember)
}

func TestPollReceipts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ma, _, th := directThread(t, f)
	f.receipts = NewReceiptService(f.repos, f.unread, 10*time.Millisecond)

	var mu sync.Mutex
	calls := 0
	p := f.receipts.PollReceipts(ctx, th.ID, ma.ID, func(r []Receipt) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	mu.Lock()
	stopped := calls
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, stopped, calls)
}
