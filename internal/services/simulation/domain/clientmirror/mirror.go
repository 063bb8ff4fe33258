// Package clientmirror is the Client Mirror of spec.md §4.6: each
// client owns a private engine.Engine kept in lock-step with the
// server's by integrating the same event-deltas, detects desync by
// comparing step hashes, and requests a resync rather than silently
// drifting. Orchestration shape is grounded on mapserver.Instance (the
// server-side half of the same protocol) and on
// crates/client/src/plugins/engine_sync.rs's EngineSyncInfo fields
// (server_step, server_step_timestamp, requested_resync, sync_distance).
package clientmirror

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	keinderrors "github.com/chancehudson/keind-engine/internal/errors"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/engine"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/event"
	"github.com/chancehudson/keind-engine/internal/services/simulation/api/wire"
)

// EventCodec decodes a server-broadcast event-delta into the typed
// EngineEvent the local engine understands. Unlike mapserver.EventCodec
// (client submission, Input only) it also decodes server-authoritative
// kinds; OnRemoteEvents skips any event it fails to decode.
type EventCodec interface {
	DecodeBroadcastEvent(wire.RemoteEngineEvent) (event.EngineEvent, error)
}

// Mirror is one client's private copy of a map's engine.
type Mirror struct {
	mu sync.Mutex

	eng        *engine.Engine
	codec      engine.EntityCodec
	eventCodec EventCodec
	stepLength time.Duration
	now        func() time.Time

	engineID            uuid.UUID
	playerEntityID      ecs.ID
	serverStep          uint64
	serverStepTimestamp time.Time
	requestedResync     bool
}

// New builds a Mirror around an already-constructed engine (typically
// empty, awaiting its first EngineState).
func New(eng *engine.Engine, codec engine.EntityCodec, eventCodec EventCodec, stepLength time.Duration) *Mirror {
	return &Mirror{
		eng:        eng,
		codec:      codec,
		eventCodec: eventCodec,
		stepLength: stepLength,
		now:        time.Now,
	}
}

// Engine exposes the underlying engine for read-only inspection (e.g.
// rendering the local player's position).
func (m *Mirror) Engine() *engine.Engine { return m.eng }

// SyncDistance reports how far the local engine's step trails the last
// known server step, the way EngineSyncInfo.sync_distance does.
func (m *Mirror) SyncDistance() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.serverStep) - int64(m.eng.StepIndex())
}

// RequestedResync reports whether a resync request is outstanding.
func (m *Mirror) RequestedResync() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestedResync
}

// EngineID reports the engine instance id this mirror was last
// bootstrapped against, the value it stamps onto every RemoteEngineEvent
// it submits so the server can detect a stale submission after a reload
// (spec.md §4.5 step 1).
func (m *Mirror) EngineID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engineID
}

// PlayerEntityID reports the entity id assigned to this mirror's own
// player at its last bootstrap.
func (m *Mirror) PlayerEntityID() ecs.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerEntityID
}

// OnEngineState replaces the local engine wholesale with a server
// snapshot (spec.md §4.6: "replace the local engine with the received
// one, set server_step, server_step_timestamp"), and adopts the
// snapshot's engine id as this mirror's own: every subsequent frame is
// checked against it so a second, unrelated reload is never silently
// absorbed as if it were this one.
func (m *Mirror) OnEngineState(state wire.EngineState) error {
	entities := make(map[ecs.ID]ecs.Entity, len(state.Entities))
	for _, snap := range state.Entities {
		ent, err := m.codec.DecodeEntity(snap.Kind, snap.Data)
		if err != nil {
			return fmt.Errorf("decode snapshot entity %s: %w", snap.ID, err)
		}
		entities[snap.ID] = ent
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.eng.LoadSnapshot(state.StepIndex, entities)
	m.engineID = state.EngineID
	m.playerEntityID = state.PlayerEntityID
	m.serverStep = state.StepIndex
	m.serverStepTimestamp = m.now()
	m.requestedResync = false
	return nil
}

// OnRemoteEvents integrates a server-broadcast batch of event-deltas
// and advances server-step tracking (spec.md §4.6). A batch whose
// EngineID doesn't match this mirror's own is silently ignored: it
// belongs to an engine instance (a reload) this mirror hasn't been
// bootstrapped against yet, and applying it would desync rather than
// resync.
func (m *Mirror) OnRemoteEvents(ctx context.Context, batch wire.RemoteEngineEvents) error {
	m.mu.Lock()
	ours := m.engineID == batch.EngineID
	m.mu.Unlock()
	if !ours {
		return nil
	}

	byStep := make(map[uint64][]event.EngineEvent)
	var maxStep uint64
	for _, remote := range batch.Events {
		evt, err := m.eventCodec.DecodeBroadcastEvent(remote)
		if err != nil {
			continue
		}
		byStep[remote.StepIndex] = append(byStep[remote.StepIndex], evt)
		if remote.StepIndex > maxStep {
			maxStep = remote.StepIndex
		}
	}
	if len(byStep) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.eng.IntegrateEvents(ctx, byStep); err != nil {
		return err
	}
	if maxStep > m.serverStep {
		m.serverStep = maxStep
		m.serverStepTimestamp = m.now()
	}
	return nil
}

// OnEngineStats compares the server's reported step hash against the
// local engine's own hash for the same step, requesting a resync on
// mismatch (spec.md §4.6). Does nothing while a request is already
// outstanding, per spec: "do not repeat the request while one is
// outstanding". Stats from an engine id this mirror hasn't adopted yet
// are ignored rather than compared, the same reload guard OnRemoteEvents
// applies.
func (m *Mirror) OnEngineStats(stats wire.EngineStats) (needsResync bool, reloadReason string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stats.EngineID != m.engineID {
		return false, "", nil
	}
	if stats.StepIndex > m.serverStep {
		m.serverStep = stats.StepIndex
		m.serverStepTimestamp = m.now()
	}
	if m.requestedResync {
		return false, "", nil
	}

	localHash, hashErr := m.eng.StepHash(stats.StepHashStep)
	if hashErr != nil {
		if keinderrors.IsCode(hashErr, keinderrors.CodeHashUnknown) {
			// Step fell out of our own trailing window; can't compare,
			// but we're clearly behind enough to need a resync anyway.
			m.requestedResync = true
			return true, fmt.Sprintf("step %d is outside the local history window", stats.StepHashStep), nil
		}
		return false, "", hashErr
	}

	if !bytes.Equal(localHash, stats.StepHash) {
		m.requestedResync = true
		return true, fmt.Sprintf("hash mismatch at step %d", stats.StepHashStep), nil
	}
	return false, "", nil
}

// Tick advances the local engine toward the step the server is
// expected to be at, per spec.md §4.6: "advance local engine to
// server_step + ceil((now - server_step_timestamp)/step_length)". If
// the local engine has already caught up to (or passed) that target,
// it is left alone rather than stepped further ahead of the server.
func (m *Mirror) Tick(ctx context.Context) error {
	m.mu.Lock()
	if m.serverStepTimestamp.IsZero() {
		m.mu.Unlock()
		return nil
	}
	elapsed := m.now().Sub(m.serverStepTimestamp)
	expectedSteps := ceilDiv(elapsed, m.stepLength)
	target := m.serverStep + expectedSteps
	current := m.eng.StepIndex()
	m.mu.Unlock()

	if target <= current {
		return nil
	}
	return m.eng.StepTo(ctx, target)
}

func ceilDiv(elapsed, stepLength time.Duration) uint64 {
	if stepLength <= 0 || elapsed <= 0 {
		return 0
	}
	steps := elapsed / stepLength
	if elapsed%stepLength != 0 {
		steps++
	}
	return uint64(steps)
}
