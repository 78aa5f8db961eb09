// Package sqlite implements a persistent, SQLite-backed snapshot store for
// the memory subsystem. It uses modernc.org/sqlite (pure Go, no CGO) with
// WAL mode and an idempotent schema migration. Each session's conversation
// is stored as a single JSON snapshot row, replaced on every save.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/memkeep/memkeep/internal/memory"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Store is a memory.SnapshotStore backed by a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time interface check.
var _ memory.SnapshotStore = (*Store)(nil)

// Open opens (creating if needed) the database described by cfg and returns
// a Store backed by it. The database uses WAL mode when enabled, the
// configured busy timeout, and a single connection (SQLite serialises
// writes). The schema is migrated automatically.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	ctx := context.TODO()

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("sqlite snapshot store opened", "path", cfg.Path, "wal", cfg.walEnabled())
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IsConnected reports whether the database answers a ping.
func (s *Store) IsConnected(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// Save upserts the full snapshot for its session, replacing any previous
// one.
func (s *Store) Save(ctx context.Context, snap memory.Snapshot) error {
	msgs := snap.Messages
	if msgs == nil {
		msgs = []memory.Message{}
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("sqlite: marshal messages: %w", err)
	}

	updated := snap.LastUpdated
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (session_id, messages, message_count, updated_at)
		VALUES (?, ?, ?, ?)`,
		snap.SessionID, string(payload), len(msgs), updated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored messages for a session, or nil if none exist.
// A snapshot whose messages column fails to decode is treated as empty
// history and logged as a warning, never returned as an error.
func (s *Store) Load(ctx context.Context, sessionID string) ([]memory.Message, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT messages FROM snapshots WHERE session_id = ?", sessionID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: load snapshot: %w", err)
	}

	var msgs []memory.Message
	if err := json.Unmarshal([]byte(payload), &msgs); err != nil {
		s.logger.Warn("malformed snapshot payload, treating as empty history",
			"session", sessionID, "error", err)
		return nil, nil
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs, nil
}

// SessionInfo describes one stored session for listing.
type SessionInfo struct {
	SessionID    string
	MessageCount int
	UpdatedAt    time.Time
}

// ListSessions returns all stored sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, message_count, updated_at
		FROM snapshots
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []SessionInfo
	for rows.Next() {
		var (
			info    SessionInfo
			updated string
		)
		if err := rows.Scan(&info.SessionID, &info.MessageCount, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			info.UpdatedAt = ts
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list sessions rows: %w", err)
	}
	return infos, nil
}

// Delete removes the stored snapshot for a session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("sqlite: delete snapshot: %w", err)
	}
	return nil
}
