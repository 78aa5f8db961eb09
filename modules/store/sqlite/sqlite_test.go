package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/memkeep/memkeep/internal/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Path: filepath.Join(t.TempDir(), "snapshots.db")}, testLogger())
	if err != nil {
		t.Fatalf("Open: unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	snap := memory.Snapshot{
		SessionID: "s1",
		Messages: []memory.Message{
			{Role: memory.RoleUser, Text: "hello", Timestamp: 1},
			{Role: memory.RoleAssistant, Text: "hi there", Timestamp: 2},
		},
		LastUpdated: time.Now(),
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save: unexpected error: %v", err)
	}

	msgs, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Load: got %d messages, want 2", len(msgs))
	}
	for i := range msgs {
		if msgs[i] != snap.Messages[i] {
			t.Errorf("Load[%d] = %+v, want %+v", i, msgs[i], snap.Messages[i])
		}
	}
}

func TestStore_SaveReplacesPriorSnapshot(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	first := memory.Snapshot{
		SessionID: "s1",
		Messages: []memory.Message{
			{Role: memory.RoleUser, Text: "old one", Timestamp: 1},
			{Role: memory.RoleUser, Text: "old two", Timestamp: 2},
		},
	}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save first: unexpected error: %v", err)
	}

	second := memory.Snapshot{
		SessionID: "s1",
		Messages: []memory.Message{
			{Role: memory.RoleUser, Text: "new", Timestamp: 3},
		},
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save second: unexpected error: %v", err)
	}

	msgs, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	// Full replacement, not an append log.
	if len(msgs) != 1 || msgs[0].Text != "new" {
		t.Fatalf("Load after replace = %v, want only the new snapshot", msgs)
	}
}

func TestStore_LoadMissingSession(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	msgs, err := store.Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if msgs != nil {
		t.Fatalf("Load missing session = %v, want nil", msgs)
	}
}

func TestStore_LoadMalformedPayload(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	// Corrupt the row behind the store's back.
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, messages, message_count, updated_at)
		VALUES ('broken', '{not json', 0, '2026-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("inserting corrupt row: %v", err)
	}

	msgs, err := store.Load(ctx, "broken")
	if err != nil {
		t.Fatalf("Load malformed = error %v, want nil error", err)
	}
	if msgs != nil {
		t.Fatalf("Load malformed = %v, want empty history", msgs)
	}
}

func TestStore_ListSessions(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	sessions := []struct {
		id    string
		count int
		at    time.Time
	}{
		{id: "older", count: 1, at: base},
		{id: "newer", count: 3, at: base.Add(time.Hour)},
	}
	for _, s := range sessions {
		msgs := make([]memory.Message, s.count)
		for i := range msgs {
			msgs[i] = memory.Message{Role: memory.RoleUser, Text: "m", Timestamp: 1}
		}
		err := store.Save(ctx, memory.Snapshot{SessionID: s.id, Messages: msgs, LastUpdated: s.at})
		if err != nil {
			t.Fatalf("Save %s: unexpected error: %v", s.id, err)
		}
	}

	infos, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: unexpected error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("ListSessions: got %d sessions, want 2", len(infos))
	}
	if infos[0].SessionID != "newer" || infos[1].SessionID != "older" {
		t.Fatalf("ListSessions order = %s, %s, want newer first", infos[0].SessionID, infos[1].SessionID)
	}
	if infos[0].MessageCount != 3 {
		t.Errorf("newer MessageCount = %d, want 3", infos[0].MessageCount)
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	err := store.Save(ctx, memory.Snapshot{
		SessionID: "s1",
		Messages:  []memory.Message{{Role: memory.RoleUser, Text: "bye", Timestamp: 1}},
	})
	if err != nil {
		t.Fatalf("Save: unexpected error: %v", err)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: unexpected error: %v", err)
	}
	msgs, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load after Delete: unexpected error: %v", err)
	}
	if msgs != nil {
		t.Fatalf("Load after Delete = %v, want nil", msgs)
	}

	// Deleting a missing session is not an error.
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete missing: unexpected error: %v", err)
	}
}

func TestStore_IsConnected(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	if !store.IsConnected(context.Background()) {
		t.Fatal("IsConnected = false for an open database")
	}
}

func TestStore_MigrationIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshots.db")

	first, err := Open(Config{Path: path}, testLogger())
	if err != nil {
		t.Fatalf("first Open: unexpected error: %v", err)
	}
	err = first.Save(context.Background(), memory.Snapshot{
		SessionID: "s1",
		Messages:  []memory.Message{{Role: memory.RoleUser, Text: "persisted", Timestamp: 1}},
	})
	if err != nil {
		t.Fatalf("Save: unexpected error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	second, err := Open(Config{Path: path}, testLogger())
	if err != nil {
		t.Fatalf("second Open: unexpected error: %v", err)
	}
	defer func() { _ = second.Close() }()

	msgs, err := second.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load after reopen: unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "persisted" {
		t.Fatalf("Load after reopen = %v, want the persisted message", msgs)
	}
}
