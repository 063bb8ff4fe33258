// Package sqlite is a database/sql-backed checkpoint.Store, grounded on
// the teacher's storage/sqlite Open() pattern (internal/services/admin/
// storage/sqlite/store.go): same WAL/foreign-keys/busy-timeout DSN, same
// Ping-then-migrate Open sequence, same modernc.org/sqlite driver. It
// skips the teacher's sqlc-generated db.Queries layer and embedded
// migration files in favor of a couple of inline CREATE TABLE
// statements, since a checkpoint store has exactly two tables and no
// query surface large enough to justify codegen.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/checkpoint"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	map_id                TEXT PRIMARY KEY,
	last_persisted_step   INTEGER NOT NULL,
	last_game_event_cursor INTEGER NOT NULL,
	updated_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	map_id     TEXT PRIMARY KEY,
	step_index INTEGER NOT NULL,
	data       BLOB NOT NULL
);
`

// Store is a SQLite-backed checkpoint.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite checkpoint store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint store path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, mapID uuid.UUID) (checkpoint.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return checkpoint.Checkpoint{}, err
	}
	if mapID == uuid.Nil {
		return checkpoint.Checkpoint{}, checkpoint.ErrMapIDRequired
	}

	var lastStep, cursor uint64
	var updatedAt string
	row := s.db.QueryRowContext(ctx,
		`SELECT last_persisted_step, last_game_event_cursor, updated_at FROM checkpoints WHERE map_id = ?`,
		mapID.String(),
	)
	if err := row.Scan(&lastStep, &cursor, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
		}
		return checkpoint.Checkpoint{}, fmt.Errorf("query checkpoint: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("parse checkpoint timestamp: %w", err)
	}
	return checkpoint.Checkpoint{
		MapID:               mapID,
		LastPersistedStep:   lastStep,
		LastGameEventCursor: cursor,
		UpdatedAt:           ts,
	}, nil
}

func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp.MapID == uuid.Nil {
		return checkpoint.ErrMapIDRequired
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (map_id, last_persisted_step, last_game_event_cursor, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(map_id) DO UPDATE SET
			last_persisted_step = excluded.last_persisted_step,
			last_game_event_cursor = excluded.last_game_event_cursor,
			updated_at = excluded.updated_at`,
		cp.MapID.String(), cp.LastPersistedStep, cp.LastGameEventCursor, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, mapID uuid.UUID) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var stepIndex uint64
	var data []byte
	row := s.db.QueryRowContext(ctx, `SELECT step_index, data FROM snapshots WHERE map_id = ?`, mapID.String())
	if err := row.Scan(&stepIndex, &data); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, checkpoint.ErrNotFound
		}
		return nil, 0, fmt.Errorf("query snapshot: %w", err)
	}
	return data, stepIndex, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, mapID uuid.UUID, stepIndex uint64, snapshot []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mapID == uuid.Nil {
		return checkpoint.ErrMapIDRequired
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (map_id, step_index, data)
		 VALUES (?, ?, ?)
		 ON CONFLICT(map_id) DO UPDATE SET
			step_index = excluded.step_index,
			data = excluded.data`,
		mapID.String(), stepIndex, snapshot,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

var _ checkpoint.Store = (*Store)(nil)
