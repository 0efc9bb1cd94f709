package session

import (
	"context"
	"time"

	"github.com/remoteview/broker/pkg/wire"
)

// Message is one serialized outbound envelope queued for a session.
type Message struct {
	Event string // Event type, e.g., "message", "close"
	Data  []byte // Payload
}

// Meta holds immutable metadata about a session, fixed at registration.
type Meta struct {
	ID          string    `json:"id"`
	Role        wire.Role `json:"role"`
	Hostname    string    `json:"hostname"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Connection represents one live registered session capable of receiving
// messages. The outbound queue is owned by the connection; writers never
// block on a slow recipient.
type Connection interface {
	// EventQueue returns a read-only channel where outbound messages are
	// published.
	EventQueue() <-chan *Message

	// Send pushes a message to the session. Returns an error when the
	// session is closed or its queue is full; it never blocks.
	Send(ctx context.Context, msg *Message) error

	// Close terminates the session connection. Safe to call once.
	Close(ctx context.Context) error

	// Meta returns metadata associated with the session.
	Meta() *Meta

	// SetSnapshot overwrites the last received snapshot payload.
	SetSnapshot(data string)

	// HasSnapshot reports whether a snapshot has been received.
	HasSnapshot() bool

	// Snapshot returns the last received snapshot payload, or empty.
	Snapshot() string
}

// Store manages the lifecycle and lookup of active session connections.
// It is the single source of truth for which sessions are connected.
type Store interface {
	// Register creates and registers a new session connection, assigning
	// a fresh ID when meta carries none.
	Register(ctx context.Context, meta *Meta) (Connection, error)

	// Get retrieves an active session connection by ID.
	Get(ctx context.Context, id string) (Connection, error)

	// Unregister removes and closes a session connection by ID. An absent
	// id yields ErrSessionNotFound; callers treat that as a no-op.
	Unregister(ctx context.Context, id string) error

	// List returns a point-in-time snapshot of all active connections.
	List(ctx context.Context) ([]Connection, error)

	// SetSnapshot overwrites the last snapshot of the identified session.
	// An absent id yields ErrSessionNotFound; a snapshot racing a
	// disconnect is simply dropped.
	SetSnapshot(ctx context.Context, id, data string) error
}
