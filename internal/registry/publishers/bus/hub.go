// Package bus fans committed registry events out to in-process stream
// subscribers (the SSE endpoint) over an EventBus topic.
package bus

import (
	"context"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"assetregistry/internal/registry/models"
)

const Topic = "registry:events"

// Hub is a relay Publisher that delivers to every open Subscription.
// Each subscriber owns a bounded buffer, so publishing never blocks on a
// slow client.
type Hub struct {
	bus        evbus.Bus
	bufferSize int

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewHub(bufferSize int) *Hub {
	h := &Hub{
		bus:        evbus.New(),
		bufferSize: bufferSize,
		subs:       make(map[*Subscription]struct{}),
	}
	// only fails for a non-func handler
	_ = h.bus.Subscribe(Topic, h.dispatch)
	return h
}

func (h *Hub) Name() string { return "bus" }

// Publish delivers synchronously; it only fails when ctx is already done.
func (h *Hub) Publish(ctx context.Context, events []models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	h.bus.Publish(Topic, events)
	return nil
}

func (h *Hub) dispatch(events []models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		sub.buf.Append(events...)
		sub.signal()
	}
}

// Subscribe registers a new stream subscriber. Call Close when done.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		hub:   h,
		buf:   NewRingBuffer(h.bufferSize),
		ready: make(chan struct{}, 1),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches the hub from the bus. Open subscriptions stop receiving.
func (h *Hub) Close() error {
	return h.bus.Unsubscribe(Topic, h.dispatch)
}

type Subscription struct {
	hub   *Hub
	buf   *RingBuffer
	ready chan struct{}
	once  sync.Once
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready fires when new events may be available.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Next returns up to n buffered events, oldest first.
func (s *Subscription) Next(n int) []models.Event { return s.buf.Drain(n) }

func (s *Subscription) Dropped() int64 { return s.buf.Dropped() }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
	})
}
