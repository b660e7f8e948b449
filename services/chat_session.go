package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"familyhub_server/models"

	"github.com/google/uuid"
)

// MembershipStore is the slice of the membership adapter the session needs
type MembershipStore interface {
	ListGroupsForUser(ctx context.Context, userID string) ([]models.FamilyGroup, error)
	ListMembers(ctx context.Context, groupID string) ([]models.Membership, error)
	IsAdmin(ctx context.Context, groupID, userID string) (bool, error)
	RemoveMember(ctx context.Context, membershipID, requesterID string) error
	DeleteGroup(ctx context.Context, groupID, requesterID string) error
}

// MessageStore is the slice of the message adapter the session needs
type MessageStore interface {
	FetchRecent(ctx context.Context, groupID string, limit int) ([]models.ChatMessage, error)
	AppendText(ctx context.Context, groupID, senderID, content string) (*models.ChatMessage, error)
	AppendImage(ctx context.Context, groupID, senderID string, file models.FileRef) (*models.ChatMessage, error)
	AppendVoice(ctx context.Context, groupID, senderID string, file models.FileRef) (*models.ChatMessage, error)
	AppendGroceryList(ctx context.Context, groupID, senderID string, items []models.GroceryItem) (*models.ChatMessage, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) error
}

// JoinRequestStore is the slice of the join workflow the session needs
type JoinRequestStore interface {
	ListPending(ctx context.Context, groupID string) ([]models.JoinRequest, error)
	Approve(ctx context.Context, requestID, adminID string) error
	Reject(ctx context.Context, requestID, adminID string) error
}

// DayBucket is one calendar day's worth of messages, labelled "Today",
// "Yesterday" or an explicit date
type DayBucket struct {
	Label    string               `json:"label"`
	Messages []models.ChatMessage `json:"messages"`
}

const (
	defaultStoreTimeout = 10 * time.Second
	defaultSettleDelay  = 250 * time.Millisecond
	defaultHistoryLimit = 50
)

// ChatSession orchestrates the stores, the change feed and the unread
// tracker for one client's currently open group. All state it holds is
// session-local; the message cache is always replaced wholesale on reload,
// never merged in place.
type ChatSession struct {
	mu sync.Mutex

	userID   string
	members  MembershipStore
	messages MessageStore
	requests JoinRequestStore
	feed     ChannelOpener
	tracker  *UnreadTracker

	storeTimeout time.Duration
	settleDelay  time.Duration
	historyLimit int

	activeGroupID string
	channels      []*ChannelHandle
	resilient     *ResilientChannel
	cache         []models.ChatMessage
	memberList    []models.Membership
	pending       []models.JoinRequest
	isAdmin       bool
	composeText   string
	loading       bool // initial load for activeGroupID still in flight
	dirty         bool // an event arrived while loading
}

// NewChatSession creates a session for the given user. The session owns its
// channels; call Close when the client disconnects.
func NewChatSession(userID string, members MembershipStore, messages MessageStore, requests JoinRequestStore, feed ChannelOpener, tracker *UnreadTracker) *ChatSession {
	return &ChatSession{
		userID:       userID,
		members:      members,
		messages:     messages,
		requests:     requests,
		feed:         feed,
		tracker:      tracker,
		storeTimeout: defaultStoreTimeout,
		settleDelay:  defaultSettleDelay,
		historyLimit: defaultHistoryLimit,
	}
}

// SelectGroup switches the session to a group: the previous group's
// channels are closed first, then a fresh channel pair opens, then members,
// role and history load, and the group is marked viewed. The channels open
// before the history fetch so a message landing in between still produces
// an event; such events are buffered behind the loading flag and collapsed
// into one reload once the load lands. A load failure rolls the channels
// back and leaves the previously displayed group's data intact.
func (s *ChatSession) SelectGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	prev := s.activeGroupID
	s.closeChannelsLocked()
	s.activeGroupID = groupID
	s.loading = true
	s.dirty = false
	s.openChannelsLocked(groupID)
	s.resilient = NewResilientChannel(func() error { return s.reopen(groupID) })
	s.mu.Unlock()

	rollback := func(err error) error {
		s.mu.Lock()
		s.closeChannelsLocked()
		s.activeGroupID = prev
		s.loading = false
		s.mu.Unlock()
		return err
	}

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()

	memberList, err := s.members.ListMembers(cctx, groupID)
	if err != nil {
		return rollback(fmt.Errorf("failed to load members: %w", err))
	}
	isAdmin, err := s.members.IsAdmin(cctx, groupID, s.userID)
	if err != nil {
		return rollback(fmt.Errorf("failed to resolve role: %w", err))
	}
	history, err := s.messages.FetchRecent(cctx, groupID, s.historyLimit)
	if err != nil {
		return rollback(fmt.Errorf("failed to load history: %w", err))
	}
	var pending []models.JoinRequest
	if isAdmin {
		pending, err = s.requests.ListPending(cctx, groupID)
		if err != nil {
			return rollback(fmt.Errorf("failed to load join requests: %w", err))
		}
	}
	groups, err := s.members.ListGroupsForUser(cctx, s.userID)
	if err != nil {
		return rollback(fmt.Errorf("failed to load group list: %w", err))
	}

	s.mu.Lock()
	s.memberList = memberList
	s.isAdmin = isAdmin
	s.cache = history
	s.pending = pending
	s.loading = false
	dirty := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if dirty {
		// Something landed while the history was in flight
		s.reloadMessages(groupID)
		if isAdmin {
			s.reloadPending(groupID)
		}
	}

	s.tracker.MarkViewed(groupID)
	if err := s.tracker.Refresh(cctx, groups, groupID); err != nil {
		log.Printf("⚠️ Unread refresh failed after selecting group %s: %v", groupID, err)
	}
	log.Printf("👥 Session %s now viewing group %s (%d messages)", s.userID, groupID, len(history))
	return nil
}

// SendText validates, optimistically appends, stores and reconciles a text
// message. On failure the compose input is restored and the optimistic
// entry discarded, so no phantom message survives.
func (s *ChatSession) SendText(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("message text must not be empty: %w", models.ErrValidation)
	}

	groupID, err := s.requireActive()
	if err != nil {
		return err
	}

	optimistic := models.ChatMessage{
		GroupID:   groupID,
		CreatedAt: models.Timestamp(),
		MessageID: "optimistic-" + uuid.New().String(),
		SenderID:  s.userID,
		Type:      models.MessageTypeText,
		Content:   trimmed,
	}
	s.appendOptimistic(optimistic)

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if _, err := s.messages.AppendText(cctx, groupID, s.userID, trimmed); err != nil {
		s.discardOptimistic(optimistic.MessageID, text)
		return fmt.Errorf("failed to send message: %w", err)
	}

	s.settleAndReload(groupID)
	s.clearCompose()
	return nil
}

// SendImage sends an already-encoded image blob reference. Payloads above
// 5 MB are rejected client-side.
func (s *ChatSession) SendImage(ctx context.Context, file models.FileRef, sizeBytes int64) error {
	if sizeBytes > models.MaxImageBytes {
		return fmt.Errorf("image exceeds the 5 MB limit: %w", models.ErrValidation)
	}
	return s.sendFile(ctx, file, models.MessageTypeImage)
}

// SendVoice sends an already-encoded voice blob reference
func (s *ChatSession) SendVoice(ctx context.Context, file models.FileRef) error {
	return s.sendFile(ctx, file, models.MessageTypeVoice)
}

func (s *ChatSession) sendFile(ctx context.Context, file models.FileRef, msgType string) error {
	groupID, err := s.requireActive()
	if err != nil {
		return err
	}

	optimistic := models.ChatMessage{
		GroupID:   groupID,
		CreatedAt: models.Timestamp(),
		MessageID: "optimistic-" + uuid.New().String(),
		SenderID:  s.userID,
		Type:      msgType,
		File:      &file,
	}
	s.appendOptimistic(optimistic)

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if msgType == models.MessageTypeImage {
		_, err = s.messages.AppendImage(cctx, groupID, s.userID, file)
	} else {
		_, err = s.messages.AppendVoice(cctx, groupID, s.userID, file)
	}
	if err != nil {
		s.discardOptimistic(optimistic.MessageID, "")
		return fmt.Errorf("failed to send %s message: %w", msgType, err)
	}

	s.settleAndReload(groupID)
	return nil
}

// ShareGroceryList shares an already-materialized grocery list. List
// messages render collapsed, so no optimistic append.
func (s *ChatSession) ShareGroceryList(ctx context.Context, items []models.GroceryItem) error {
	groupID, err := s.requireActive()
	if err != nil {
		return err
	}

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if _, err := s.messages.AppendGroceryList(cctx, groupID, s.userID, items); err != nil {
		return fmt.Errorf("failed to share grocery list: %w", err)
	}

	s.settleAndReload(groupID)
	return nil
}

// DeleteMessage deletes one of the user's own messages
func (s *ChatSession) DeleteMessage(ctx context.Context, messageID string) error {
	groupID, err := s.requireActive()
	if err != nil {
		return err
	}

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.messages.DeleteMessage(cctx, messageID, s.userID); err != nil {
		return err
	}
	s.reloadMessages(groupID)
	return nil
}

// RemoveMember forwards an admin member removal and refreshes the member
// list on success
func (s *ChatSession) RemoveMember(ctx context.Context, membershipID string) error {
	groupID, err := s.requireActive()
	if err != nil {
		return err
	}

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.members.RemoveMember(cctx, membershipID, s.userID); err != nil {
		return err
	}
	s.reloadMembers(groupID)
	return nil
}

// DeleteGroup deletes the active group (founder only) and resets the
// session's view
func (s *ChatSession) DeleteGroup(ctx context.Context) error {
	groupID, err := s.requireActive()
	if err != nil {
		return err
	}

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.members.DeleteGroup(cctx, groupID, s.userID); err != nil {
		return err
	}

	s.mu.Lock()
	s.closeChannelsLocked()
	s.activeGroupID = ""
	s.cache = nil
	s.memberList = nil
	s.pending = nil
	s.isAdmin = false
	s.mu.Unlock()
	return nil
}

// ApproveRequest approves a join request and refreshes the pending and
// member lists on success
func (s *ChatSession) ApproveRequest(ctx context.Context, requestID string) error {
	groupID, err := s.requireActive()
	if err != nil {
		return err
	}

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.requests.Approve(cctx, requestID, s.userID); err != nil {
		return err
	}
	s.reloadPending(groupID)
	s.reloadMembers(groupID)
	return nil
}

// RejectRequest rejects a join request and refreshes the pending list on
// success
func (s *ChatSession) RejectRequest(ctx context.Context, requestID string) error {
	groupID, err := s.requireActive()
	if err != nil {
		return err
	}

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.requests.Reject(cctx, requestID, s.userID); err != nil {
		return err
	}
	s.reloadPending(groupID)
	return nil
}

// DayBuckets partitions the cached messages into ordered calendar-day
// buckets. Buckets appear in chronological order of their first message.
func (s *ChatSession) DayBuckets() []DayBucket {
	s.mu.Lock()
	cache := make([]models.ChatMessage, len(s.cache))
	copy(cache, s.cache)
	s.mu.Unlock()

	now := time.Now()
	var buckets []DayBucket
	for _, msg := range cache {
		label := dayLabel(msg.CreatedAt, now)
		if len(buckets) == 0 || buckets[len(buckets)-1].Label != label {
			buckets = append(buckets, DayBucket{Label: label})
		}
		last := len(buckets) - 1
		buckets[last].Messages = append(buckets[last].Messages, msg)
	}
	return buckets
}

// dayLabel maps a message timestamp to its display bucket relative to now
func dayLabel(createdAt string, now time.Time) string {
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return createdAt
	}
	ts = ts.Local()

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("Jan 2, 2006")
	}
}

// Close tears down every channel the session and its tracker own
func (s *ChatSession) Close() {
	s.mu.Lock()
	s.closeChannelsLocked()
	s.activeGroupID = ""
	s.mu.Unlock()
	s.tracker.CloseAll()
}

// ActiveGroupID returns the currently selected group, or ""
func (s *ChatSession) ActiveGroupID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeGroupID
}

// Messages returns a snapshot of the cached message list
func (s *ChatSession) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.cache))
	copy(out, s.cache)
	return out
}

// Members returns a snapshot of the active group's member list
func (s *ChatSession) Members() []models.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Membership, len(s.memberList))
	copy(out, s.memberList)
	return out
}

// PendingRequests returns a snapshot of the active group's pending join
// requests (admins only; empty otherwise)
func (s *ChatSession) PendingRequests() []models.JoinRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.JoinRequest, len(s.pending))
	copy(out, s.pending)
	return out
}

// ComposeText returns the restored compose input after a failed send
func (s *ChatSession) ComposeText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composeText
}

// IsAdmin reports whether the session's user is an admin of the active
// group
func (s *ChatSession) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAdmin
}

///// internal /////

// openChannelsLocked opens the active group's channel pair: message
// insert/update/delete and join-request insert/update. Every callback is
// guarded by a bound-group check so an event from a superseded scope can
// never mutate the newly active group's state.
func (s *ChatSession) openChannelsLocked(groupID string) {
	onClosed := func() {
		s.mu.Lock()
		r := s.resilient
		s.mu.Unlock()
		if r != nil {
			r.Kick()
		}
	}

	reload := func(Event) { s.noteMessageEvent(groupID) }
	msgChannel := s.feed.Open(models.ChatMessagesTable,
		[]EventType{EventInsert, EventUpdate, EventDelete},
		"groupId", groupID,
		Handlers{OnInsert: reload, OnUpdate: reload, OnDelete: reload, OnClosed: onClosed})

	reloadRequests := func(Event) { s.noteRequestEvent(groupID) }
	reqChannel := s.feed.Open(models.JoinRequestsTable,
		[]EventType{EventInsert, EventUpdate},
		"groupId", groupID,
		Handlers{OnInsert: reloadRequests, OnUpdate: reloadRequests, OnClosed: onClosed})

	s.channels = []*ChannelHandle{msgChannel, reqChannel}
}

// noteMessageEvent reacts to a message event on the bound group: dropped if
// the scope ended, deferred behind the dirty flag while the initial load is
// in flight, otherwise a full reload
func (s *ChatSession) noteMessageEvent(groupID string) {
	s.mu.Lock()
	if s.activeGroupID != groupID {
		s.mu.Unlock()
		return
	}
	if s.loading {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.reloadMessages(groupID)
}

func (s *ChatSession) noteRequestEvent(groupID string) {
	s.mu.Lock()
	if s.activeGroupID != groupID {
		s.mu.Unlock()
		return
	}
	if s.loading {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	isAdmin := s.isAdmin
	s.mu.Unlock()
	if isAdmin {
		s.reloadPending(groupID)
	}
}

func (s *ChatSession) closeChannelsLocked() {
	for _, h := range s.channels {
		s.feed.Close(h)
	}
	s.channels = nil
	if s.resilient != nil {
		s.resilient.Stop()
		s.resilient = nil
	}
}

// reopen re-establishes the channel pair after the feed dropped it, then
// fully reloads so the client never stays silently stale
func (s *ChatSession) reopen(groupID string) error {
	s.mu.Lock()
	if s.activeGroupID != groupID {
		s.mu.Unlock()
		return nil // scope ended while we were reconnecting
	}
	for _, h := range s.channels {
		s.feed.Close(h)
	}
	s.openChannelsLocked(groupID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()
	history, err := s.messages.FetchRecent(ctx, groupID, s.historyLimit)
	if err != nil {
		return err
	}
	s.replaceCache(groupID, history)
	log.Printf("🔄 Channel for group %s reopened after drop", groupID)
	return nil
}

func (s *ChatSession) requireActive() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeGroupID == "" {
		return "", fmt.Errorf("no group selected: %w", models.ErrValidation)
	}
	return s.activeGroupID, nil
}

func (s *ChatSession) appendOptimistic(msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = append(s.cache, msg)
}

// discardOptimistic drops the tentative entry and restores the compose
// input so a manual retry reconstructs the exact same request
func (s *ChatSession) discardOptimistic(messageID, restoreText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.cache[:0]
	for _, m := range s.cache {
		if m.MessageID != messageID {
			kept = append(kept, m)
		}
	}
	s.cache = kept
	if restoreText != "" {
		s.composeText = restoreText
	}
}

func (s *ChatSession) clearCompose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.composeText = ""
}

// settleAndReload waits out read-after-write lag, then replaces the cache
// with a fresh fetch. The store may not surface the write to an immediate
// read, and the live event can arrive before the write is visible; the
// short delay plus full reload covers both.
func (s *ChatSession) settleAndReload(groupID string) {
	time.Sleep(s.settleDelay)
	s.reloadMessages(groupID)
}

func (s *ChatSession) reloadMessages(groupID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()
	history, err := s.messages.FetchRecent(ctx, groupID, s.historyLimit)
	if err != nil {
		// Keep the current list visible; the next event or send retries
		log.Printf("⚠️ Reload for group %s failed: %v", groupID, err)
		return
	}
	s.replaceCache(groupID, history)
}

func (s *ChatSession) replaceCache(groupID string, history []models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeGroupID != groupID {
		return // response arrived after its scope ended
	}
	s.cache = history
}

func (s *ChatSession) reloadMembers(groupID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()
	memberList, err := s.members.ListMembers(ctx, groupID)
	if err != nil {
		log.Printf("⚠️ Member reload for group %s failed: %v", groupID, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeGroupID == groupID {
		s.memberList = memberList
	}
}

func (s *ChatSession) reloadPending(groupID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()
	pending, err := s.requests.ListPending(ctx, groupID)
	if err != nil {
		log.Printf("⚠️ Join request reload for group %s failed: %v", groupID, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeGroupID == groupID {
		s.pending = pending
	}
}

func (s *ChatSession) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
