package repository

import (
	"context"
	"testing"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirect(ma, pa *model.Profile, at time.Time) (*model.Thread, []*model.ThreadMember) {
	key := model.DirectKeyFor(ma.ID, pa.ID)
	thread := &model.Thread{
		ID:        uuid.NewString(),
		Kind:      model.ThreadKindDirect,
		DirectKey: &key,
		CreatedBy: ma.ID,
		CreatedAt: at,
	}
	return thread, []*model.ThreadMember{
		{ThreadID: thread.ID, MemberID: ma.ID, JoinedAt: at},
		{ThreadID: thread.ID, MemberID: pa.ID, JoinedAt: at},
	}
}

func TestCreateDirectIfAbsentReturnsExistingOnConflict(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repos := New(gdb)
	ma := testutil.CreateProfile(t, gdb, "Ma")
	pa := testutil.CreateProfile(t, gdb, "Pa")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first, members := newDirect(ma, pa, now)
	created, err := repos.Threads.CreateDirectIfAbsent(ctx, first, members)
	require.NoError(t, err)
	assert.Equal(t, first.ID, created.ID)

	// 反向的成员对得到同一个唯一键
	second, members := newDirect(pa, ma, now.Add(time.Minute))
	got, err := repos.Threads.CreateDirectIfAbsent(ctx, second, members)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	var threads int64
	require.NoError(t, gdb.Model(&model.Thread{}).Count(&threads).Error)
	assert.Equal(t, int64(1), threads)
	roster, err := repos.Members.ListByThread(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, roster, 2)

	_, err = repos.Threads.CreateDirectIfAbsent(ctx, &model.Thread{ID: uuid.NewString(), Kind: model.ThreadKindDirect}, nil)
	assert.Error(t, err)
}

func TestLatestVisibleByThreadsTieBreak(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repos := New(gdb)
	ma := testutil.CreateProfile(t, gdb, "Ma")
	pa := testutil.CreateProfile(t, gdb, "Pa")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	thread, members := newDirect(ma, pa, at)
	require.NoError(t, repos.Threads.CreateWithMembers(ctx, thread, members))

	for _, m := range []*model.Message{
		{ID: "m-1", ThreadID: thread.ID, SenderID: ma.ID, Content: "early", CreatedAt: at},
		{ID: "m-3", ThreadID: thread.ID, SenderID: ma.ID, Content: "tie-high", CreatedAt: at.Add(time.Second)},
		{ID: "m-2", ThreadID: thread.ID, SenderID: pa.ID, Content: "tie-low", CreatedAt: at.Add(time.Second)},
		{ID: "m-4", ThreadID: thread.ID, SenderID: pa.ID, Content: "gone", CreatedAt: at.Add(time.Minute)},
	} {
		require.NoError(t, repos.Messages.Create(ctx, m))
	}
	require.NoError(t, repos.Messages.SoftDelete(ctx, "m-4"))

	latest, err := repos.Messages.LatestVisibleByThreads(ctx, []string{thread.ID, "no-messages"})
	require.NoError(t, err)
	require.Contains(t, latest, thread.ID)
	assert.Equal(t, "m-3", latest[thread.ID].ID)
	assert.NotContains(t, latest, "no-messages")

	empty, err := repos.Messages.LatestVisibleByThreads(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
