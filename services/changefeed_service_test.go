package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeFeedDeliversInPublishOrder(t *testing.T) {
	feed := NewChangeFeed()

	var mu sync.Mutex
	var got []string
	h := feed.Open("Messages", []EventType{EventInsert}, "", "", Handlers{
		OnInsert: func(ev Event) {
			mu.Lock()
			got = append(got, ev.Record.(string))
			mu.Unlock()
		},
	})
	defer feed.Close(h)

	for _, v := range []string{"a", "b", "c", "d"} {
		feed.Publish(Event{Table: "Messages", Type: EventInsert, Record: v})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestChangeFeedFiltersByColumn(t *testing.T) {
	feed := NewChangeFeed()

	var mu sync.Mutex
	var got []string
	h := feed.Open("Messages", []EventType{EventInsert}, "groupId", "g1", Handlers{
		OnInsert: func(ev Event) {
			mu.Lock()
			got = append(got, ev.Columns["groupId"])
			mu.Unlock()
		},
	})
	defer feed.Close(h)

	feed.Publish(Event{Table: "Messages", Type: EventInsert, Columns: map[string]string{"groupId": "g1"}})
	feed.Publish(Event{Table: "Messages", Type: EventInsert, Columns: map[string]string{"groupId": "g2"}})
	feed.Publish(Event{Table: "Other", Type: EventInsert, Columns: map[string]string{"groupId": "g1"}})
	feed.Publish(Event{Table: "Messages", Type: EventInsert, Columns: map[string]string{"groupId": "g1"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"g1", "g1"}, got)
}

func TestChangeFeedHonorsEventMask(t *testing.T) {
	feed := NewChangeFeed()

	var mu sync.Mutex
	inserts, deletes := 0, 0
	h := feed.Open("Messages", []EventType{EventInsert}, "", "", Handlers{
		OnInsert: func(Event) { mu.Lock(); inserts++; mu.Unlock() },
		OnDelete: func(Event) { mu.Lock(); deletes++; mu.Unlock() },
	})
	defer feed.Close(h)

	feed.Publish(Event{Table: "Messages", Type: EventDelete})
	feed.Publish(Event{Table: "Messages", Type: EventInsert})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inserts == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, deletes, "delete events must not reach an insert-only channel")
}

func TestChangeFeedCloseStopsDelivery(t *testing.T) {
	feed := NewChangeFeed()

	var mu sync.Mutex
	count := 0
	h := feed.Open("Messages", []EventType{EventInsert}, "", "", Handlers{
		OnInsert: func(Event) { mu.Lock(); count++; mu.Unlock() },
	})

	feed.Close(h)
	h.Wait()
	feed.Publish(Event{Table: "Messages", Type: EventInsert})

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)

	// Closing again is a no-op
	feed.Close(h)
}

func TestChangeFeedDropsSlowChannel(t *testing.T) {
	feed := NewChangeFeed()

	block := make(chan struct{})
	closed := make(chan struct{})
	h := feed.Open("Messages", []EventType{EventInsert}, "", "", Handlers{
		OnInsert: func(Event) { <-block },
		OnClosed: func() { close(closed) },
	})

	// One event occupies the handler, the rest fill the queue
	for i := 0; i < channelQueueSize+2; i++ {
		feed.Publish(Event{Table: "Messages", Type: EventInsert})
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("overflowed channel was never dropped")
	}
	close(block)
	feed.Close(h)
}

func TestResilientChannelRetriesUntilOpen(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	r := NewResilientChannel(func() error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return assert.AnError
		}
		return nil
	})
	r.base = time.Millisecond
	defer r.Stop()

	r.Kick()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 3
	}, time.Second, 5*time.Millisecond)
}

func TestResilientChannelStop(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	r := NewResilientChannel(func() error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return assert.AnError
	})
	r.base = time.Millisecond
	r.Stop()
	r.Kick()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, attempts, "a stopped channel must not reopen")
}
