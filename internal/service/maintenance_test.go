package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRejectsInvalidCron(t *testing.T) {
	_, err := NewScheduler("x", "not a cron", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestSchedulerNext(t *testing.T) {
	s, err := NewScheduler("x", "*/15 * * * *", func(context.Context) error { return nil })
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 7, 30, 0, time.UTC) }

	next, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 15, 0, 0, time.UTC), next.UTC())
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	s, err := NewScheduler("x", "* * * * *", func(context.Context) error { return nil })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
