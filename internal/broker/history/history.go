// Package history keeps the broker's bounded chat history. The buffer is
// in-memory only and lost on restart.
package history

import (
	"sync"

	"github.com/remoteview/broker/pkg/wire"
)

// DefaultCapacity is the number of chat events retained when no explicit
// capacity is configured.
const DefaultCapacity = 100

// Buffer is a bounded, insertion-ordered chat event buffer. When full, the
// oldest entry is evicted. Safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	events   []wire.ChatEvent
}

// NewBuffer creates a buffer holding at most capacity events. A
// non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		events:   make([]wire.ChatEvent, 0, capacity),
	}
}

// Append stores an event, evicting the single oldest entry when the buffer
// is over capacity.
func (b *Buffer) Append(ev wire.ChatEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, ev)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// Snapshot returns a copy of the buffered events in insertion order.
func (b *Buffer) Snapshot() []wire.ChatEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]wire.ChatEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
