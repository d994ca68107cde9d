package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/loykin/reconsole/internal/metrics"
)

// Hub fans events from a source Channel out to every attached subscriber.
//
// The dispatch loop only takes from the source while at least one subscriber
// is attached, so events produced with nobody listening accumulate in the
// source until someone subscribes. Each subscriber owns an unbounded mailbox:
// a slow reader never delays other subscribers or producers.
type Hub struct {
	src *Channel

	mu     sync.Mutex
	subs   map[string]*Subscription
	joined chan struct{} // closed and replaced on every Subscribe
}

func NewHub(src *Channel) *Hub {
	return &Hub{src: src, subs: make(map[string]*Subscription), joined: make(chan struct{})}
}

// Source returns the channel producers should Put into.
func (h *Hub) Source() *Channel { return h.src }

// Run dispatches events until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		if err := h.waitForSubscriber(ctx); err != nil {
			return err
		}
		e, err := h.src.Take(ctx)
		if err != nil {
			return err
		}
		if !h.broadcast(e) {
			// the last subscriber left while Take was parked
			h.src.PutFront(e)
		}
		metrics.SetQueueDepth(h.src.Len())
	}
}

func (h *Hub) waitForSubscriber(ctx context.Context) error {
	for {
		h.mu.Lock()
		n := len(h.subs)
		joined := h.joined
		h.mu.Unlock()
		if n > 0 {
			return nil
		}
		select {
		case <-joined:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// broadcast delivers e to every subscriber and reports whether there was any.
func (h *Hub) broadcast(e Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		s.box.Put(e)
	}
	return len(h.subs) > 0
}

// Subscribe attaches a new subscriber. Only events dispatched after this call are
// delivered to it.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{id: uuid.NewString(), hub: h, box: NewChannel()}
	h.mu.Lock()
	h.subs[s.id] = s
	close(h.joined)
	h.joined = make(chan struct{})
	n := len(h.subs)
	h.mu.Unlock()
	metrics.SetSubscribers("notifications", n)
	return s
}

// Subscribers reports how many subscriptions are attached.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()
	metrics.SetSubscribers("notifications", n)
}

// ErrClosed is returned by Next after the subscription was closed.
var ErrClosed = errors.New("subscription closed")

// Subscription is one subscriber's view of the hub.
type Subscription struct {
	id   string
	hub  *Hub
	box  *Channel
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Next blocks until the next event is delivered, ctx is done, or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := s.doneChan()
	go func() {
		select {
		case <-done:
			cancel()
		case <-cctx.Done():
		}
	}()
	e, err := s.box.Take(cctx)
	if err != nil {
		select {
		case <-done:
			return Event{}, ErrClosed
		default:
		}
		return Event{}, err
	}
	return e, nil
}

func (s *Subscription) doneChan() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

// Close detaches the subscription from the hub. Undelivered events in its
// mailbox are discarded.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		close(s.doneChan())
	})
}
