// Package mapserver is the per-map Sync Controller of spec.md §4.5: it
// owns one engine.Engine, runs its tick loop, validates and integrates
// remote player events, and broadcasts event-deltas and periodic
// stats/hash snapshots to every connected client mirror.
//
// Orchestration shape is grounded on the teacher's
// domain/engine/handler.go Handler (validate -> gate -> decide -> apply
// -> checkpoint) and domain/replay/replay.go's Checkpoint-driven resume,
// generalized from a command-sourced aggregate to a stepped engine.
package mapserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	keinderrors "github.com/chancehudson/keind-engine/internal/errors"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/checkpoint"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/engine"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/event"
	"github.com/chancehudson/keind-engine/internal/services/simulation/api/wire"
)

// EventCodec translates between the wire's opaque RemoteEngineEvent
// payload and the engine's typed EngineEvent, the way demogame.EntityCodec
// translates entities. A host's GameLogic implementation supplies one
// because only it knows its Input type.
type EventCodec interface {
	DecodeRemoteEvent(wire.RemoteEngineEvent) (event.EngineEvent, error)
	EncodeRemoteEvent(evt event.EngineEvent, stepIndex uint64) (wire.RemoteEngineEvent, error)
}

// Connection is one connected client mirror's server-side bookkeeping.
type Connection struct {
	PlayerID     string
	EntityID     ecs.ID
	Outbound     chan wire.Frame
	LastPingStep uint64
	Closed       bool
}

// Instance is a single map's Sync Controller.
type Instance struct {
	mu sync.Mutex

	id          uuid.UUID
	eng         *engine.Engine
	codec       engine.EntityCodec
	eventCodec  EventCodec
	checkpoints checkpoint.Store

	connections map[string]*Connection

	stepInterval     time.Duration
	stepLength       time.Duration
	statsEveryNSteps uint64
	pingTimeout      uint64 // steps without a Ping before disconnect sweep drops a connection
	stepDelay        uint64 // STEP_DELAY: presentation lag, in steps, for Bootstrap snapshots

	skipThreshold   uint64
	doubleThreshold uint64

	hashCompareLagSteps uint64

	startedAt      time.Time
	startedAtStep  uint64
	now            func() time.Time
}

// NewInstance builds a Sync Controller around an already-constructed
// engine. statsEveryNSteps and pingTimeoutSteps are normally derived
// from config.Config (stats broadcast interval and roughly ten seconds
// of missed pings, respectively) by the caller. stepLength,
// skipThreshold, and doubleThreshold implement the wall-clock catch-up
// rule of spec.md §4.5 step 3. stepDelaySteps is STEP_DELAY (spec.md
// §6, default 60): Bootstrap builds its snapshot this many steps behind
// the live step so a newly connecting client sees the same
// presentation-lagged world its peers do.
//
// id is eng.ID(), not freshly generated: the engine instance's identity
// and this Sync Controller's identity are the same thing for the
// lifetime of a running map, and a new id only appears when a new
// engine.Engine is constructed (a genuine map reload), exactly the
// event spec.md §4.5/§4.6 needs clients to detect.
//
// hashCompareLagSteps is config.Config.HashCompareLagSteps(): how many
// steps behind the live step broadcastStats computes its hash for, per
// spec.md §4.5 step 5 ("hash_step = step_index - 2*steps_per_second").
func NewInstance(eng *engine.Engine, codec engine.EntityCodec, eventCodec EventCodec, store checkpoint.Store, stepInterval, stepLength time.Duration, statsEveryNSteps, pingTimeoutSteps, skipThreshold, doubleThreshold, stepDelaySteps, hashCompareLagSteps uint64) *Instance {
	if store == nil {
		store = checkpoint.Noop{}
	}
	if statsEveryNSteps == 0 {
		statsEveryNSteps = 30
	}
	if pingTimeoutSteps == 0 {
		pingTimeoutSteps = 600
	}
	if skipThreshold == 0 {
		skipThreshold = 30
	}
	if doubleThreshold == 0 {
		doubleThreshold = 10
	}
	if stepDelaySteps == 0 {
		stepDelaySteps = 60
	}
	if hashCompareLagSteps == 0 {
		hashCompareLagSteps = 120
	}
	return &Instance{
		id:                  eng.ID(),
		eng:                 eng,
		codec:               codec,
		eventCodec:          eventCodec,
		checkpoints:         store,
		connections:         make(map[string]*Connection),
		stepInterval:        stepInterval,
		stepLength:          stepLength,
		statsEveryNSteps:    statsEveryNSteps,
		pingTimeout:         pingTimeoutSteps,
		stepDelay:           stepDelaySteps,
		skipThreshold:       skipThreshold,
		doubleThreshold:     doubleThreshold,
		hashCompareLagSteps: hashCompareLagSteps,
		now:                 time.Now,
	}
}

// Run drives the tick loop until ctx is canceled.
func (in *Instance) Run(ctx context.Context) error {
	in.mu.Lock()
	in.startedAt = in.now()
	in.startedAtStep = in.eng.StepIndex()
	in.mu.Unlock()

	ticker := time.NewTicker(in.stepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := in.tick(ctx); err != nil {
				return fmt.Errorf("map %s tick: %w", in.id, err)
			}
		}
	}
}

// expectedStepIndex is how far wall-clock time since Run started says
// the engine should be, independent of how many steps it has actually
// taken — the reference point spec.md §4.5 step 3's catch-up rule
// compares the live step index against.
func (in *Instance) expectedStepIndex() uint64 {
	if in.stepLength <= 0 {
		return in.eng.StepIndex()
	}
	elapsed := in.now().Sub(in.startedAt)
	return in.startedAtStep + uint64(elapsed/in.stepLength)
}

// stepsToTakeThisTick implements spec.md §4.5 step 3 verbatim: "If the
// server is more than a large delta (~30 steps) behind wall-clock, skip
// half the delta forward to catch up; if 10-30 behind, take two steps
// instead of one; otherwise one step."
func (in *Instance) stepsToTakeThisTick() uint64 {
	expected := in.expectedStepIndex()
	current := in.eng.StepIndex()
	if expected <= current {
		return 1
	}
	behind := expected - current
	switch {
	case behind > in.skipThreshold:
		return behind / 2
	case behind > in.doubleThreshold:
		return 2
	default:
		return 1
	}
}

func (in *Instance) tick(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	fromStep := in.eng.StepIndex()
	steps := in.stepsToTakeThisTick()
	if steps == 0 {
		steps = 1
	}
	for i := uint64(0); i < steps; i++ {
		if _, err := in.eng.Step(ctx); err != nil {
			return err
		}
	}
	toStep := in.eng.StepIndex()

	in.broadcastEventDeltas(fromStep, toStep)
	in.broadcastTick(toStep)

	if toStep%in.statsEveryNSteps == 0 {
		in.broadcastStats(toStep)
	}

	in.sweepDisconnected(toStep)
	return nil
}

// broadcastEventDeltas re-encodes the EngineEvents keyed at every step
// in [fromStep, toStep), which the steps of this tick applied (a tick may run
// more than one step per spec.md §4.5's wall-clock catch-up rule) and
// sends them as a single batch, so every client mirror can replay
// exactly what this instance did (spec.md §4.5's "broadcasts
// event-deltas").
func (in *Instance) broadcastEventDeltas(fromStep, toStep uint64) {
	var batch []wire.RemoteEngineEvent
	for step := fromStep; step < toStep; step++ {
		events := in.eng.EngineEventsAt(step)
		for _, evt := range events {
			remote, err := in.eventCodec.EncodeRemoteEvent(evt, step)
			if err != nil {
				continue
			}
			batch = append(batch, remote)
		}
	}
	if len(batch) == 0 {
		return
	}
	// spec.md §4.5 step 5 / P6: a client never observes its own Input
	// events among RemoteEngineEvents, since it already has them.
	for playerID, conn := range in.connections {
		if conn.Closed {
			continue
		}
		filtered := batch
		for _, remote := range batch {
			if event.EngineKind(remote.Kind) == event.EngineKindInput && remote.EntityID == conn.EntityID {
				filtered = filterOutOwnInput(batch, conn.EntityID)
				break
			}
		}
		if len(filtered) == 0 {
			continue
		}
		f, err := wire.Encode(wire.KindRemoteEngineEvents, wire.RemoteEngineEvents{EngineID: in.id, Events: filtered, ExpectedStepIndex: toStep})
		if err != nil {
			continue
		}
		in.sendTo(playerID, conn, f)
	}
}

// filterOutOwnInput drops every Input event addressed to entityID from
// batch, per spec.md P6.
func filterOutOwnInput(batch []wire.RemoteEngineEvent, entityID ecs.ID) []wire.RemoteEngineEvent {
	out := make([]wire.RemoteEngineEvent, 0, len(batch))
	for _, remote := range batch {
		if event.EngineKind(remote.Kind) == event.EngineKindInput && remote.EntityID == entityID {
			continue
		}
		out = append(out, remote)
	}
	return out
}

func (in *Instance) broadcastTick(stepIndex uint64) {
	f, err := wire.Encode(wire.KindTick, wire.Tick{StepIndex: stepIndex})
	if err != nil {
		return
	}
	in.broadcast(f)
}

// broadcastStats sends the periodic EngineStats frame. The hash is
// computed for hashCompareLagSteps behind stepIndex, not stepIndex
// itself (spec.md §4.5 step 5: "hash_step = step_index -
// 2*steps_per_second"), clamped to 0 so an instance still young enough
// that the lag would underflow hashes its earliest known step instead.
func (in *Instance) broadcastStats(stepIndex uint64) {
	hashStep := uint64(0)
	if stepIndex > in.hashCompareLagSteps {
		hashStep = stepIndex - in.hashCompareLagSteps
	}
	hash, err := in.eng.StepHash(hashStep)
	if err != nil {
		return
	}
	f, err := wire.Encode(wire.KindEngineStats, wire.EngineStats{
		EngineID:     in.id,
		StepIndex:    stepIndex,
		StepHashStep: hashStep,
		StepHash:     hash,
	})
	if err != nil {
		return
	}
	in.broadcast(f)
}

// broadcast enqueues f on every open connection's Outbound channel,
// dropping a connection that is not keeping up rather than blocking the
// tick loop on a slow client.
func (in *Instance) broadcast(f wire.Frame) {
	if f.Kind == 0 {
		return
	}
	for playerID, conn := range in.connections {
		if conn.Closed {
			continue
		}
		in.sendTo(playerID, conn, f)
	}
}

// sendTo enqueues f on a single connection's Outbound channel, marking
// it closed rather than blocking the tick loop if the client isn't
// draining fast enough.
func (in *Instance) sendTo(playerID string, conn *Connection, f wire.Frame) {
	select {
	case conn.Outbound <- f:
	default:
		conn.Closed = true
		_ = playerID
	}
}

func (in *Instance) sweepDisconnected(currentStep uint64) {
	for playerID, conn := range in.connections {
		if conn.Closed {
			delete(in.connections, playerID)
			continue
		}
		if conn.LastPingStep != 0 && currentStep-conn.LastPingStep > in.pingTimeout {
			conn.Closed = true
			delete(in.connections, playerID)
		}
	}
}

// Login registers a connecting player, spawning or reusing their entity
// and returning the PlayerLoggedIn payload plus this connection's
// outbound channel.
func (in *Instance) Login(playerID string, rejoinEntityID *ecs.ID, newEntity func() ecs.Entity) (*Connection, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if existing, ok := in.connections[playerID]; ok && !existing.Closed {
		return nil, keinderrors.New(keinderrors.CodeForbiddenEventKind, "player already connected to this map")
	}

	var entityID ecs.ID
	if rejoinEntityID != nil {
		if entities, ok := in.eng.EntitiesAtStep(in.eng.StepIndex()); ok {
			if _, exists := entities[*rejoinEntityID]; exists {
				entityID = *rejoinEntityID
			}
		}
	}
	if entityID.IsZero() {
		ent := newEntity()
		entityID = ent.Base().ID
		in.eng.SpawnEntity(ent)
	}

	conn := &Connection{
		PlayerID: playerID,
		EntityID: entityID,
		Outbound: make(chan wire.Frame, 64),
	}
	in.connections[playerID] = conn
	return conn, nil
}

// Disconnect marks a player's connection closed; the next tick's sweep
// removes the bookkeeping. The entity itself is left in the world (the
// host's GameLogic decides whether to despawn on disconnect).
func (in *Instance) Disconnect(playerID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if conn, ok := in.connections[playerID]; ok {
		conn.Closed = true
	}
}

// IngestRemoteEvent validates and integrates a client-submitted event,
// per spec.md §7's Protocol Violation handling: malformed or
// out-of-window submissions are rejected with a descriptive error and
// the connection continues, rather than aborting the tick loop.
func (in *Instance) IngestRemoteEvent(ctx context.Context, playerID string, remote wire.RemoteEngineEvent) error {
	in.mu.Lock()
	conn, ok := in.connections[playerID]
	trailing := in.eng.TrailingStateLen()
	currentStep := in.eng.StepIndex()
	expected := in.expectedStepIndex()
	in.mu.Unlock()

	if !ok || conn.Closed {
		return keinderrors.New(keinderrors.CodeUnknownPlayer, "event from an unknown or disconnected player")
	}
	// spec.md §4.5 step 1: engine id must match the instance the client
	// was last bootstrapped against. A mismatch means the map reloaded
	// since and the client hasn't caught up yet; drop silently (the
	// client will notice via its own engine id tracking and request a
	// fresh bootstrap) rather than letting a stale event corrupt this
	// engine's history.
	if remote.EngineID != in.id {
		return nil
	}
	if remote.EntityID != conn.EntityID {
		return keinderrors.New(keinderrors.CodeEntityIDMismatch, "event entity id does not belong to this connection")
	}
	if trailing != 0 && remote.StepIndex+trailing < currentStep {
		return keinderrors.New(keinderrors.CodeEventOutOfWindow, fmt.Sprintf("event targets step %d, outside the %d-step trailing window (current step %d)", remote.StepIndex, trailing, currentStep))
	}
	// spec.md §4.5 step 1 / §7: an event targeting a step beyond what
	// wall-clock says this instance should have reached yet is "too far
	// in the future" and is dropped rather than accepted and left to
	// desync the engine once it catches up.
	if remote.StepIndex > expected {
		return keinderrors.New(keinderrors.CodeEventOutOfWindow, fmt.Sprintf("event targets step %d, beyond the expected step %d", remote.StepIndex, expected))
	}

	evt, err := in.eventCodec.DecodeRemoteEvent(remote)
	if err != nil {
		return keinderrors.Wrap(keinderrors.CodeMalformedWireFrame, "decode remote event", err)
	}
	evt.IsNondeterministic = true

	in.mu.Lock()
	defer in.mu.Unlock()
	return in.eng.IntegrateEvent(ctx, remote.StepIndex, evt)
}

// Bootstrap builds the full EngineState snapshot for a connecting or
// resyncing player, identified by the entity id Login assigned them.
// Per spec.md §4.5 step 5 the snapshot is taken stepDelay steps behind
// the live step, the same presentation lag every client already applies
// to non-owned entities, rather than at the bleeding-edge current step
// (which the client couldn't usefully render anyway: its own step is
// always behind the server's).
func (in *Instance) Bootstrap(playerEntityID ecs.ID) (wire.EngineState, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	stepIndex := in.eng.StepIndex()
	snapshotStep := stepIndex
	if stepIndex > in.stepDelay {
		snapshotStep = stepIndex - in.stepDelay
	} else {
		snapshotStep = 0
	}
	entities, ok := in.eng.EntitiesAtStep(snapshotStep)
	if !ok {
		return wire.EngineState{}, keinderrors.New(keinderrors.CodeHashUnknown, "bootstrap step missing from history")
	}
	out := wire.EngineState{
		EngineID:       in.id,
		PlayerEntityID: playerEntityID,
		StepIndex:      snapshotStep,
	}
	for id, ent := range entities {
		data, err := in.codec.EncodeEntity(ent)
		if err != nil {
			return wire.EngineState{}, fmt.Errorf("encode entity %s: %w", id, err)
		}
		out.Entities = append(out.Entities, wire.EntitySnapshot{ID: id, Kind: ent.Kind(), Data: data})
	}
	return out, nil
}
