// Package notify carries filesystem change events from watch sessions to
// stream subscribers.
package notify

import (
	"context"
	"sync"
	"time"
)

// Kind identifies the type of a change event.
type Kind string

const KindRefreshTree Kind = "refresh_tree"

// Event is a structured notification pushed to subscribers. It marshals to the
// {"action": "..."} shape the console front-end expects.
type Event struct {
	Kind Kind      `json:"action"`
	Path string    `json:"path,omitempty"`
	At   time.Time `json:"-"`
}

// RefreshTree builds the event emitted when a watched output tree changed.
func RefreshTree(path string) Event {
	return Event{Kind: KindRefreshTree, Path: path, At: time.Now()}
}

// Channel is an unbounded FIFO of events. Put never blocks; Take blocks until an
// event is available. Events come out in the order they were put.
type Channel struct {
	mu    sync.Mutex
	items []Event
	ready chan struct{} // closed and replaced whenever items goes from empty to non-empty
}

func NewChannel() *Channel {
	return &Channel{ready: make(chan struct{})}
}

// Put appends e to the queue. It is safe for concurrent producers.
func (c *Channel) Put(e Event) {
	c.mu.Lock()
	c.items = append(c.items, e)
	if len(c.items) == 1 {
		close(c.ready)
		c.ready = make(chan struct{})
	}
	c.mu.Unlock()
}

// PutFront returns e to the head of the queue so it is the next one taken.
func (c *Channel) PutFront(e Event) {
	c.mu.Lock()
	c.items = append([]Event{e}, c.items...)
	if len(c.items) == 1 {
		close(c.ready)
		c.ready = make(chan struct{})
	}
	c.mu.Unlock()
}

// Take removes and returns the oldest event, blocking until one is available or
// ctx is done.
func (c *Channel) Take(ctx context.Context) (Event, error) {
	for {
		c.mu.Lock()
		if len(c.items) > 0 {
			e := c.items[0]
			c.items[0] = Event{}
			c.items = c.items[1:]
			c.mu.Unlock()
			return e, nil
		}
		ready := c.ready
		c.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Len reports the number of queued events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
