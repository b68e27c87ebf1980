package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"plotloom/internal/hook"
	"plotloom/internal/logging"
)

// SQLiteStore is the durable local cache. It is always written and serves
// reads whenever the shared store is unavailable or empty.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLiteStore opens (or creates) the snapshot database at the given path.
// Use ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryPersist, "NewSQLiteStore")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.PersistDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.PersistDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	store := &SQLiteStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Persist("SQLite snapshot store ready at %s", path)
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			identity_key TEXT PRIMARY KEY,
			snapshot     TEXT NOT NULL,
			updated_at   INTEGER NOT NULL
		)`)
	return err
}

// Name implements Backend.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Save implements Backend with last-write-wins semantics.
func (s *SQLiteStore) Save(ctx context.Context, key string, snap *hook.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (identity_key, snapshot, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(identity_key) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load implements Backend. A missing key returns (nil, nil).
func (s *SQLiteStore) Load(ctx context.Context, key string) (*hook.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM snapshots WHERE identity_key = ?", key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap hook.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes a persisted snapshot.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE identity_key = ?", key)
	return err
}

// Close implements Backend.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
