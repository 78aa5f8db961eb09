// Package memorytest provides test doubles for the memory subsystem: a
// controllable snapshot store and a canned embedder.
package memorytest

import (
	"context"
	"errors"
	"sync"

	"github.com/memkeep/memkeep/internal/memory"
)

// ErrSaveFailed is the default error returned by a Store configured to
// fail saves.
var ErrSaveFailed = errors.New("memorytest: save failed")

// Store is an in-memory memory.SnapshotStore with switchable connectivity
// and programmable save failures.
type Store struct {
	mu        sync.Mutex
	connected bool
	failSaves int // fail this many saves before succeeding; -1 fails all
	saveErr   error
	snaps     map[string]memory.Snapshot
	saves     []memory.Snapshot // every successful save, in order
	attempts  int               // every Save call, failed or not
}

// Compile-time interface check.
var _ memory.SnapshotStore = (*Store)(nil)

// NewStore creates a connected, empty store.
func NewStore() *Store {
	return &Store{
		connected: true,
		snaps:     make(map[string]memory.Snapshot),
	}
}

// SetConnected switches the store's reported connectivity.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// FailSaves makes the next n Save calls fail (n < 0 fails all of them).
func (s *Store) FailSaves(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSaves = n
	if s.saveErr == nil {
		s.saveErr = ErrSaveFailed
	}
}

// Seed installs a snapshot without going through Save.
func (s *Store) Seed(snap memory.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.SessionID] = snap
}

// IsConnected implements memory.SnapshotStore.
func (s *Store) IsConnected(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Save implements memory.SnapshotStore.
func (s *Store) Save(_ context.Context, snap memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.failSaves != 0 {
		if s.failSaves > 0 {
			s.failSaves--
		}
		return s.saveErr
	}

	msgs := make([]memory.Message, len(snap.Messages))
	copy(msgs, snap.Messages)
	snap.Messages = msgs
	s.snaps[snap.SessionID] = snap
	s.saves = append(s.saves, snap)
	return nil
}

// Load implements memory.SnapshotStore.
func (s *Store) Load(_ context.Context, sessionID string) ([]memory.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snaps[sessionID]
	if !ok || len(snap.Messages) == 0 {
		return nil, nil
	}
	out := make([]memory.Message, len(snap.Messages))
	copy(out, snap.Messages)
	return out, nil
}

// SaveCount returns the number of successful saves.
func (s *Store) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

// Attempts returns the total number of Save calls, including failures.
func (s *Store) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// LastSave returns the most recent successful save and whether one exists.
func (s *Store) LastSave() (memory.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return memory.Snapshot{}, false
	}
	return s.saves[len(s.saves)-1], true
}

// Embedder is a memory.Embedder returning canned vectors per text.
// Texts without a canned vector, or any call after SetErr, fail.
type Embedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

// Compile-time interface check.
var _ memory.Embedder = (*Embedder)(nil)

// NewEmbedder creates an Embedder with the given canned vectors.
func NewEmbedder(vectors map[string][]float32) *Embedder {
	if vectors == nil {
		vectors = make(map[string][]float32)
	}
	return &Embedder{vectors: vectors}
}

// SetErr makes every subsequent Embed call return err.
func (e *Embedder) SetErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return nil, errors.New("memorytest: no vector for text")
	}
	return v, nil
}

// Calls returns the number of Embed invocations.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
