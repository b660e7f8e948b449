package services

import (
	"context"
	"testing"
	"time"

	"familyhub_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackerEnv seeds two groups for alice: one she views, one that accumulates
// messages in the background
func trackerEnv(t *testing.T) (*testEnv, *UnreadTracker, models.FamilyGroup, models.FamilyGroup) {
	t.Helper()
	env := newTestEnv()
	ctx := context.Background()

	active, err := env.members.CreateGroup(ctx, "Active", "alice")
	require.NoError(t, err)
	other, err := env.members.CreateGroup(ctx, "Other", "alice")
	require.NoError(t, err)

	tracker := NewUnreadTracker(env.messages, env.feed)
	return env, tracker, *active, *other
}

func TestUnreadTrackerCountsLiveInserts(t *testing.T) {
	env, tracker, active, other := trackerEnv(t)
	ctx := context.Background()
	defer tracker.CloseAll()

	groups := []models.FamilyGroup{active, other}
	tracker.MarkViewed(active.GroupID)
	require.NoError(t, tracker.Refresh(ctx, groups, active.GroupID))

	// Messages land in the background group
	_, err := env.messages.AppendText(ctx, other.GroupID, "alice", "one")
	require.NoError(t, err)
	_, err = env.messages.AppendText(ctx, other.GroupID, "alice", "two")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tracker.Counts()[other.GroupID] == 2
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, tracker.Counts()[active.GroupID], "the active group must stay at zero")
}

func TestUnreadTrackerNeverViewedCountsEverything(t *testing.T) {
	env, tracker, active, other := trackerEnv(t)
	ctx := context.Background()
	defer tracker.CloseAll()

	for i := 0; i < 3; i++ {
		_, err := env.messages.AppendText(ctx, other.GroupID, "alice", "old")
		require.NoError(t, err)
	}

	tracker.MarkViewed(active.GroupID)
	require.NoError(t, tracker.Refresh(ctx, []models.FamilyGroup{active, other}, active.GroupID))

	assert.Equal(t, 3, tracker.Counts()[other.GroupID], "a never-viewed group is fully unread")
}

func TestUnreadTrackerMarkViewedResets(t *testing.T) {
	env, tracker, active, other := trackerEnv(t)
	ctx := context.Background()
	defer tracker.CloseAll()

	_, err := env.messages.AppendText(ctx, other.GroupID, "alice", "backlog")
	require.NoError(t, err)

	tracker.MarkViewed(active.GroupID)
	require.NoError(t, tracker.Refresh(ctx, []models.FamilyGroup{active, other}, active.GroupID))
	require.Equal(t, 1, tracker.Counts()[other.GroupID])

	// Switching to the other group zeroes it and stamps the watermark
	tracker.MarkViewed(other.GroupID)
	assert.Zero(t, tracker.Counts()[other.GroupID])
	watermark, ok := tracker.LastViewed(other.GroupID)
	require.True(t, ok)
	require.NoError(t, tracker.Refresh(ctx, []models.FamilyGroup{active, other}, other.GroupID))

	// Only messages newer than the watermark count after switching back
	_, err = env.messages.AppendText(ctx, other.GroupID, "alice", "fresh")
	require.NoError(t, err)
	tracker.MarkViewed(active.GroupID)
	require.NoError(t, tracker.Refresh(ctx, []models.FamilyGroup{active, other}, active.GroupID))
	assert.Equal(t, 1, tracker.Counts()[other.GroupID])

	later, ok := tracker.LastViewed(other.GroupID)
	require.True(t, ok)
	assert.Equal(t, watermark, later, "the watermark only moves on MarkViewed")
}

func TestUnreadTrackerActiveGroupIgnoresInserts(t *testing.T) {
	env, tracker, active, other := trackerEnv(t)
	ctx := context.Background()
	defer tracker.CloseAll()

	tracker.MarkViewed(active.GroupID)
	require.NoError(t, tracker.Refresh(ctx, []models.FamilyGroup{active, other}, active.GroupID))

	// Inserts into the active group never bump a counter
	_, err := env.messages.AppendText(ctx, active.GroupID, "alice", "seen live")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, tracker.Counts()[active.GroupID])
}
