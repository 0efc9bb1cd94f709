package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/remoteview/broker/pkg/wire"
)

func TestBuffer_AppendAndSnapshot(t *testing.T) {
	b := NewBuffer(10)
	assert.Equal(t, 0, b.Len())

	b.Append(wire.ChatEvent{ID: "1", Message: "hi"})
	b.Append(wire.ChatEvent{ID: "2", Message: "there"})

	snap := b.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, "1", snap[0].ID)
	assert.Equal(t, "2", snap[1].ID)
}

func TestBuffer_EvictsOldestAtCapacity(t *testing.T) {
	b := NewBuffer(100)
	for i := 1; i <= 101; i++ {
		b.Append(wire.ChatEvent{ID: fmt.Sprintf("%d", i)})
	}

	assert.Equal(t, 100, b.Len())
	snap := b.Snapshot()
	// the first event is gone, 2..101 remain in original relative order
	for i, ev := range snap {
		assert.Equal(t, fmt.Sprintf("%d", i+2), ev.ID)
	}
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	b := NewBuffer(4)
	b.Append(wire.ChatEvent{ID: "1", Message: "original"})

	snap := b.Snapshot()
	snap[0].Message = "mutated"

	assert.Equal(t, "original", b.Snapshot()[0].Message)
}

func TestNewBuffer_DefaultCapacity(t *testing.T) {
	b := NewBuffer(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		b.Append(wire.ChatEvent{ID: fmt.Sprintf("%d", i)})
	}
	assert.Equal(t, DefaultCapacity, b.Len())
}
