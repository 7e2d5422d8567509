package bus

import (
	"sync"

	"assetregistry/internal/registry/models"
)

// RingBuffer holds the events a stream subscriber has not read yet.
// When full, the oldest events are overwritten so a slow reader never blocks
// the relay; the reader notices the gap through the sequence numbers.
type RingBuffer struct {
	mu       sync.Mutex
	events   []models.Event
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &RingBuffer{
		events:   make([]models.Event, capacity),
		capacity: capacity,
	}
}

// Append adds the events in order, overwriting the oldest entries if needed.
func (b *RingBuffer) Append(events ...models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range events {
		if b.count == b.capacity {
			b.tail = (b.tail + 1) % b.capacity
			b.count--
			b.dropped++
		}
		b.events[b.head] = e
		b.head = (b.head + 1) % b.capacity
		b.count++
	}
}

// Drain removes and returns up to n events, oldest first.
func (b *RingBuffer) Drain(n int) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n = min(n, b.count)
	out := make([]models.Event, n)
	for i := range n {
		out[i] = b.events[b.tail]
		b.events[b.tail] = models.Event{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns how many events were overwritten before being read.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
