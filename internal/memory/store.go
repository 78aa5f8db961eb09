package memory

import (
	"context"
	"sync"
	"time"
)

// SnapshotStore is the durable side of the dual-tier store. Save upserts a
// full conversation snapshot keyed by session id, replacing the previous
// one. Implementations must be safe for concurrent use; distinct sessions
// write disjoint keys, so cross-instance writes may interleave freely.
type SnapshotStore interface {
	// IsConnected reports whether the store is reachable. Checked before
	// every save and load; an unreachable store degrades the subsystem to
	// memory-only operation.
	IsConnected(ctx context.Context) bool

	// Save upserts the snapshot for snap.SessionID.
	Save(ctx context.Context, snap Snapshot) error

	// Load returns the stored messages for a session, or nil if none exist.
	Load(ctx context.Context, sessionID string) ([]Message, error)
}

// InMemorySnapshotStore is a thread-safe SnapshotStore holding snapshots in
// process memory. It backs tests and store-less operation.
type InMemorySnapshotStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewInMemorySnapshotStore creates an empty in-memory snapshot store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snaps: make(map[string]Snapshot)}
}

// Compile-time interface check.
var _ SnapshotStore = (*InMemorySnapshotStore)(nil)

// IsConnected always reports true.
func (s *InMemorySnapshotStore) IsConnected(_ context.Context) bool { return true }

// Save upserts the snapshot for its session.
func (s *InMemorySnapshotStore) Save(_ context.Context, snap Snapshot) error {
	msgs := make([]Message, len(snap.Messages))
	copy(msgs, snap.Messages)
	snap.Messages = msgs
	if snap.LastUpdated.IsZero() {
		snap.LastUpdated = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.SessionID] = snap
	return nil
}

// Load returns the stored messages for a session, or nil if none exist.
func (s *InMemorySnapshotStore) Load(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[sessionID]
	if !ok || len(snap.Messages) == 0 {
		return nil, nil
	}
	out := make([]Message, len(snap.Messages))
	copy(out, snap.Messages)
	return out, nil
}
