// Package checkpoint tracks, per map instance, the last step index that
// has been durably persisted and the game-event cursor the periodic
// stats broadcast has already drained, adapted from the teacher's
// domain/checkpoint package (memory.go, noop.go): same Get/Save
// interface shape and in-memory/no-op implementations, generalized from
// per-campaign replay state to per-map engine state.
package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrMapIDRequired indicates a missing map instance id.
var ErrMapIDRequired = errors.New("map id is required")

// ErrNotFound indicates no checkpoint exists yet for a map id.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint records how far a map instance's durable state has caught
// up to its live engine.
type Checkpoint struct {
	MapID              uuid.UUID
	LastPersistedStep  uint64
	LastGameEventCursor uint64
	UpdatedAt          time.Time
}

// Store is the persistence-collaborator contract the map server depends
// on; checkpoint/sqlite provides a real adapter, Memory and Noop cover
// tests and ephemeral maps respectively.
type Store interface {
	Get(ctx context.Context, mapID uuid.UUID) (Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error

	// GetSnapshot/SaveSnapshot carry the opaque, codec-encoded entity
	// state a map server uses to warm-start an engine instead of
	// replaying every step from genesis.
	GetSnapshot(ctx context.Context, mapID uuid.UUID) ([]byte, uint64, error)
	SaveSnapshot(ctx context.Context, mapID uuid.UUID, stepIndex uint64, snapshot []byte) error
}

// Memory is an in-process Store, suitable for tests and single-process
// deployments that accept losing checkpoints on restart.
type Memory struct {
	mu          sync.Mutex
	checkpoints map[uuid.UUID]Checkpoint
	snapshots   map[uuid.UUID][]byte
	snapshotAt  map[uuid.UUID]uint64
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		checkpoints: make(map[uuid.UUID]Checkpoint),
		snapshots:   make(map[uuid.UUID][]byte),
		snapshotAt:  make(map[uuid.UUID]uint64),
	}
}

func (m *Memory) Get(ctx context.Context, mapID uuid.UUID) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	if mapID == uuid.Nil {
		return Checkpoint{}, ErrMapIDRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[mapID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

func (m *Memory) Save(ctx context.Context, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp.MapID == uuid.Nil {
		return ErrMapIDRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp.UpdatedAt = time.Now().UTC()
	m.checkpoints[cp.MapID] = cp
	return nil
}

func (m *Memory) GetSnapshot(ctx context.Context, mapID uuid.UUID) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.snapshots[mapID]
	if !ok {
		return nil, 0, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, m.snapshotAt[mapID], nil
}

func (m *Memory) SaveSnapshot(ctx context.Context, mapID uuid.UUID, stepIndex uint64, snapshot []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mapID == uuid.Nil {
		return ErrMapIDRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)
	m.snapshots[mapID] = cp
	m.snapshotAt[mapID] = stepIndex
	return nil
}

// Noop discards every write and always reports ErrNotFound, for maps
// that opt out of durability entirely (spec.md's trailing_state_len=0
// "no rewind" maps have no use for checkpoints either).
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID) (Checkpoint, error) { return Checkpoint{}, ErrNotFound }
func (Noop) Save(context.Context, Checkpoint) error             { return nil }
func (Noop) GetSnapshot(context.Context, uuid.UUID) ([]byte, uint64, error) {
	return nil, 0, ErrNotFound
}
func (Noop) SaveSnapshot(context.Context, uuid.UUID, uint64, []byte) error { return nil }
