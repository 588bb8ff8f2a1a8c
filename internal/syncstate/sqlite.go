package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sync_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	watermark  TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteStore keeps the watermark in a single-row SQLite table
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating when needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (domain.SyncState, error) {
	var watermark, updatedAt string
	err := s.db.QueryRowContext(ctx, "SELECT watermark, updated_at FROM sync_state WHERE id = 1").
		Scan(&watermark, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SyncState{}, nil
	}
	if err != nil {
		return domain.SyncState{}, fmt.Errorf("failed to read watermark: %w", err)
	}

	var state domain.SyncState
	if state.Watermark, err = time.Parse(time.RFC3339Nano, watermark); err != nil {
		return domain.SyncState{}, fmt.Errorf("invalid stored watermark %q: %w", watermark, err)
	}
	state.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return state, nil
}

func (s *SQLiteStore) Save(ctx context.Context, state domain.SyncState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, watermark, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET watermark = excluded.watermark, updated_at = excluded.updated_at`,
		state.Watermark.UTC().Format(time.RFC3339Nano),
		state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	return tx.Commit()
}
