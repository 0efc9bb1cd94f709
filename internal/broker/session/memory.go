package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// queueSize bounds the per-session outbound queue. A session that falls
// this far behind starts losing messages rather than stalling the router.
const queueSize = 100

// MemoryStore implements Store using in-memory storage.
type MemoryStore struct {
	logger *zap.Logger
	mu     sync.RWMutex
	conns  map[string]Connection
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger: logger.Named("session.store.memory"),
		conns:  make(map[string]Connection),
	}
}

// Register implements Store.Register. A meta without an ID gets a fresh
// one; the store is the single place session identity is minted.
func (s *MemoryStore) Register(_ context.Context, meta *Meta) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if _, exists := s.conns[meta.ID]; exists {
		return nil, fmt.Errorf("connection already exists: %s", meta.ID)
	}

	conn := &MemoryConnection{
		meta:  meta,
		queue: make(chan *Message, queueSize),
	}
	s.conns[meta.ID] = conn

	return conn, nil
}

// Get implements Store.Get
func (s *MemoryStore) Get(_ context.Context, id string) (Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.conns[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conn, nil
}

// Unregister implements Store.Unregister
func (s *MemoryStore) Unregister(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[id]
	if !ok {
		return ErrSessionNotFound
	}

	if err := conn.Close(context.Background()); err != nil {
		s.logger.Error("failed to close connection",
			zap.String("id", id),
			zap.Error(err))
	}

	delete(s.conns, id)
	return nil
}

// List implements Store.List
func (s *MemoryStore) List(_ context.Context) ([]Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := make([]Connection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	return conns, nil
}

// SetSnapshot implements Store.SetSnapshot
func (s *MemoryStore) SetSnapshot(ctx context.Context, id, data string) error {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	conn.SetSnapshot(data)
	return nil
}

// MemoryConnection implements Connection using in-memory storage.
type MemoryConnection struct {
	meta  *Meta
	queue chan *Message

	mu       sync.RWMutex
	closed   bool
	snapshot string
}

var _ Connection = (*MemoryConnection)(nil)

// EventQueue implements Connection.EventQueue
func (c *MemoryConnection) EventQueue() <-chan *Message {
	return c.queue
}

// Send implements Connection.Send
func (c *MemoryConnection) Send(_ context.Context, msg *Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrSessionClosed
	}
	select {
	case c.queue <- msg:
		return nil
	default:
		return fmt.Errorf("message queue is full")
	}
}

// Close implements Connection.Close
func (c *MemoryConnection) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.queue)
	return nil
}

// Meta implements Connection.Meta
func (c *MemoryConnection) Meta() *Meta {
	return c.meta
}

// SetSnapshot implements Connection.SetSnapshot
func (c *MemoryConnection) SetSnapshot(data string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = data
}

// HasSnapshot implements Connection.HasSnapshot
func (c *MemoryConnection) HasSnapshot() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot != ""
}

// Snapshot implements Connection.Snapshot
func (c *MemoryConnection) Snapshot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// ErrSessionNotFound is returned when a session is not found.
var ErrSessionNotFound = fmt.Errorf("session not found")

// ErrSessionClosed is returned when sending to a closed session.
var ErrSessionClosed = fmt.Errorf("session closed")
