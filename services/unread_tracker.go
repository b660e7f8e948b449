package services

import (
	"context"
	"log"
	"sync"

	"familyhub_server/models"
)

// MessageCounter is the slice of the message store the tracker needs
type MessageCounter interface {
	CountSince(ctx context.Context, groupID, after string) (int, error)
}

// ChannelOpener is the slice of the change feed the tracker and session
// controller need
type ChannelOpener interface {
	Open(table string, events []EventType, filterColumn, filterValue string, handlers Handlers) *ChannelHandle
	Close(h *ChannelHandle)
}

// UnreadTracker maintains the session-local last-viewed watermark and the
// derived unread count per group. It owns one insert-only channel per group
// the user belongs to, excluding the active one. The watermark lives only
// for the lifetime of the session: a fresh session treats every group as
// fully unread until first visited.
type UnreadTracker struct {
	mu sync.Mutex

	messages MessageCounter
	feed     ChannelOpener

	activeGroupID string
	lastViewedAt  map[string]string
	unreadCount   map[string]int
	channels      map[string]*ChannelHandle
}

// NewUnreadTracker creates a tracker with no watermarks
func NewUnreadTracker(messages MessageCounter, feed ChannelOpener) *UnreadTracker {
	return &UnreadTracker{
		messages:     messages,
		feed:         feed,
		lastViewedAt: make(map[string]string),
		unreadCount:  make(map[string]int),
		channels:     make(map[string]*ChannelHandle),
	}
}

// Refresh recomputes every group's unread count and rebuilds the channel
// set: the active group counts zero and gets no channel; every other group
// counts messages newer than its watermark (all of them when never viewed)
// and gets an insert-only channel. Previously open channels are closed
// first, so the set never leaks.
func (t *UnreadTracker) Refresh(ctx context.Context, groups []models.FamilyGroup, activeGroupID string) error {
	t.mu.Lock()
	for gid, h := range t.channels {
		t.feed.Close(h)
		delete(t.channels, gid)
	}
	t.activeGroupID = activeGroupID
	watermarks := make(map[string]string, len(groups))
	for _, g := range groups {
		watermarks[g.GroupID] = t.lastViewedAt[g.GroupID]
	}
	t.mu.Unlock()

	counts := make(map[string]int, len(groups))
	for _, g := range groups {
		if g.GroupID == activeGroupID {
			counts[g.GroupID] = 0
			continue
		}
		n, err := t.messages.CountSince(ctx, g.GroupID, watermarks[g.GroupID])
		if err != nil {
			return err
		}
		counts[g.GroupID] = n
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.unreadCount = counts
	for _, g := range groups {
		if g.GroupID == activeGroupID {
			continue
		}
		gid := g.GroupID
		t.channels[gid] = t.feed.Open(models.ChatMessagesTable, []EventType{EventInsert}, "groupId", gid, Handlers{
			OnInsert: func(Event) { t.onInsert(gid) },
		})
	}
	return nil
}

// onInsert increments the group's unread count unless the group became
// active since the channel was opened
func (t *UnreadTracker) onInsert(groupID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if groupID == t.activeGroupID {
		return
	}
	t.unreadCount[groupID]++
}

// MarkViewed records the group as viewed now: watermark updated, unread
// count reset, and the group treated as active until the next Refresh
func (t *UnreadTracker) MarkViewed(groupID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeGroupID = groupID
	t.lastViewedAt[groupID] = models.Timestamp()
	t.unreadCount[groupID] = 0
	if h, ok := t.channels[groupID]; ok {
		t.feed.Close(h)
		delete(t.channels, groupID)
	}
}

// Counts returns a snapshot of the unread counts
func (t *UnreadTracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.unreadCount))
	for gid, n := range t.unreadCount {
		out[gid] = n
	}
	return out
}

// LastViewed returns the watermark for a group; ok is false when the group
// was never viewed this session
func (t *UnreadTracker) LastViewed(groupID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastViewedAt[groupID]
	return ts, ok
}

// CloseAll tears down every channel the tracker owns
func (t *UnreadTracker) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for gid, h := range t.channels {
		t.feed.Close(h)
		delete(t.channels, gid)
	}
	log.Printf("👋 Unread tracker channels closed")
}
