package services

import (
	"log"
	"sync"
	"time"
)

// Change-feed event types
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one committed write delivered to subscribers. Columns carries the
// filterable column values of the written record (e.g. "groupId").
type Event struct {
	Table   string
	Type    EventType
	Record  interface{}
	Columns map[string]string
}

// Handlers are the callbacks a channel fires. Nil handlers are skipped.
// OnClosed fires when the feed drops the channel (slow consumer), never on a
// caller-initiated Close.
type Handlers struct {
	OnInsert func(Event)
	OnUpdate func(Event)
	OnDelete func(Event)
	OnClosed func()
}

// ChannelHandle is one live subscription. Whoever opened it closes it: the
// session when the user switches groups, the tracker on every refresh.
type ChannelHandle struct {
	id           uint64
	table        string
	events       map[EventType]bool
	filterColumn string // empty = match every record of the table
	filterValue  string
	handlers     Handlers
	queue        chan Event
	quit         chan struct{}
	closeOnce    sync.Once
	done         chan struct{}
}

const channelQueueSize = 256

// ChangeFeed is the in-process change-feed service: store adapters publish
// every committed write, and each open channel receives the matching events
// in publish order. Ordering holds per channel only; no ordering is
// guaranteed across channels.
type ChangeFeed struct {
	mu       sync.RWMutex
	nextID   uint64
	channels map[uint64]*ChannelHandle
}

// NewChangeFeed creates an empty feed
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{channels: make(map[uint64]*ChannelHandle)}
}

// Open registers a subscription for the given table and event types, scoped
// by an equality filter on one column. An empty filterColumn matches every
// record of the table.
func (f *ChangeFeed) Open(table string, events []EventType, filterColumn, filterValue string, handlers Handlers) *ChannelHandle {
	h := &ChannelHandle{
		table:        table,
		events:       make(map[EventType]bool, len(events)),
		filterColumn: filterColumn,
		filterValue:  filterValue,
		handlers:     handlers,
		queue:        make(chan Event, channelQueueSize),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, e := range events {
		h.events[e] = true
	}

	f.mu.Lock()
	f.nextID++
	h.id = f.nextID
	f.channels[h.id] = h
	f.mu.Unlock()

	go h.dispatch()
	return h
}

// Close tears the channel down. Idempotent; after Close returns no further
// handler invocation starts.
func (f *ChangeFeed) Close(h *ChannelHandle) {
	if h == nil {
		return
	}
	f.mu.Lock()
	delete(f.channels, h.id)
	f.mu.Unlock()
	h.closeOnce.Do(func() { close(h.quit) })
}

// Publish delivers a committed write to every matching channel. A channel
// whose queue is full is dropped rather than stalling the writer; its
// OnClosed handler fires so the owner can resubscribe.
func (f *ChangeFeed) Publish(ev Event) {
	f.mu.RLock()
	var overflowed []*ChannelHandle
	for _, h := range f.channels {
		if !h.matches(ev) {
			continue
		}
		select {
		case h.queue <- ev:
		case <-h.quit:
		default:
			overflowed = append(overflowed, h)
		}
	}
	f.mu.RUnlock()

	for _, h := range overflowed {
		log.Printf("⚠️ Change-feed channel %d too slow, dropping subscription (table %s)", h.id, h.table)
		f.Close(h)
		if h.handlers.OnClosed != nil {
			go h.handlers.OnClosed()
		}
	}
}

func (h *ChannelHandle) matches(ev Event) bool {
	if ev.Table != h.table || !h.events[ev.Type] {
		return false
	}
	if h.filterColumn == "" {
		return true
	}
	return ev.Columns[h.filterColumn] == h.filterValue
}

// dispatch delivers queued events one at a time, preserving publish order
// for this channel
func (h *ChannelHandle) dispatch() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			return
		case ev := <-h.queue:
			select {
			case <-h.quit:
				return
			default:
			}
			h.fire(ev)
		}
	}
}

func (h *ChannelHandle) fire(ev Event) {
	switch ev.Type {
	case EventInsert:
		if h.handlers.OnInsert != nil {
			h.handlers.OnInsert(ev)
		}
	case EventUpdate:
		if h.handlers.OnUpdate != nil {
			h.handlers.OnUpdate(ev)
		}
	case EventDelete:
		if h.handlers.OnDelete != nil {
			h.handlers.OnDelete(ev)
		}
	}
}

// Wait blocks until the channel's dispatcher has fully stopped. Test helper;
// production callers just Close and move on.
func (h *ChannelHandle) Wait() {
	<-h.done
}

// ResilientChannel reopens a dropped subscription with exponential backoff
// and runs onReopen (typically a full reload) after each successful reopen,
// so a client that lost realtime updates never stays silently stale.
type ResilientChannel struct {
	mu      sync.Mutex
	open    func() error // re-establishes the subscription
	base    time.Duration
	max     time.Duration
	stopped bool
}

// NewResilientChannel wraps an open function with a reconnect policy
func NewResilientChannel(open func() error) *ResilientChannel {
	return &ResilientChannel{
		open: open,
		base: 500 * time.Millisecond,
		max:  30 * time.Second,
	}
}

// Kick starts a background reopen loop. Safe to call from an OnClosed
// handler.
func (r *ResilientChannel) Kick() {
	go func() {
		delay := r.base
		for {
			r.mu.Lock()
			stopped := r.stopped
			r.mu.Unlock()
			if stopped {
				return
			}
			err := r.open()
			if err == nil {
				return
			}
			log.Printf("❌ Channel reopen failed, retrying in %v: %v", delay, err)
			time.Sleep(delay)
			delay *= 2
			if delay > r.max {
				delay = r.max
			}
		}
	}()
}

// Stop cancels any pending reopen attempts
func (r *ResilientChannel) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}
