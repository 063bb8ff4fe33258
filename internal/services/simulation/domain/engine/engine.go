// Package engine implements the deterministic, rewindable step loop of
// spec.md §4: a single Engine instance simulates one map, advancing
// in fixed discrete steps and retaining a trailing window of history so
// a late-arriving event from a past step can be integrated by rewinding,
// replaying, and fast-forwarding back to the present.
//
// Grounded directly on crates/keind/src/engine.rs's GameEngine<G>: the
// phase breakdown of step(), generate_id/restart_id_counter,
// engine_at_step's nondeterminism filter, and integrate_events' rewind
// path are all ports of that file's logic into idiomatic Go, not a
// reinterpretation. Orchestration shape (separating the kernel from a
// host-supplied GameLogic) also borrows from the teacher's
// domain/engine/handler.go, which separates a Handler from
// a pluggable Applier.
package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	keinderrors "github.com/chancehudson/keind-engine/internal/errors"
	"github.com/chancehudson/keind-engine/internal/random"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/event"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/spatial"
)

// DefaultTrailingStateLen is the default rewind window, in steps, per
// spec.md §3 ("trailing_state_len, default 360").
const DefaultTrailingStateLen uint64 = 360

var tracer = otel.Tracer("github.com/chancehudson/keind-engine/internal/services/simulation/domain/engine")

// EntityCodec encodes/decodes the host's Entity variants for step_hash
// and snapshot persistence. A GameLogic implementation supplies one
// because only it knows the concrete variant types the Registry holds.
type EntityCodec interface {
	EncodeEntity(ecs.Entity) ([]byte, error)
	DecodeEntity(kind ecs.Kind, data []byte) (ecs.Entity, error)
}

// GameLogic is the host-supplied behavior the engine is generic over,
// mirroring the teacher's GameLogic trait bound (crates/keind/src/lib.rs
// prelude): a default Input value and a post-step game-event hook.
type GameLogic interface {
	DefaultInput() ecs.Input
	HandleGameEvents(eng *Engine, events []ecs.GameEvent)
	Codec() EntityCodec
}

type idCounter struct {
	step    uint64
	counter uint64
}

// Engine is a single map's simulation kernel. Step, IntegrateEvents,
// EngineAtStep and the other methods that take e.mu serialize with each
// other, so a Step from the tick loop and an IntegrateEvents from a
// connection goroutine never interleave mid-step. The plain accessors
// (ID, Size, StepIndex, TrailingStateLen, EntityCount) and the helpers
// used from HandleGameEvents read and write without taking the lock.
type Engine struct {
	mu sync.Mutex

	id       uuid.UUID
	registry *ecs.Registry
	logic    GameLogic

	size      spatial.IVec2
	stepIndex uint64
	idCounter idCounter

	entities       map[ecs.ID]ecs.Entity
	entitiesByStep map[uint64]map[ecs.ID]ecs.Entity

	defaultInput ecs.Input
	inputs       map[ecs.ID]ecs.Input
	inputsByStep map[uint64]map[ecs.ID]ecs.Input

	engineEventsByStep map[uint64][]event.EngineEvent
	gameEventsByStep   map[uint64][]ecs.GameEvent

	pendingEvents     []pendingEvent
	pendingGameEvents []ecs.GameEvent

	trailingStateLen uint64
}

type pendingEvent struct {
	stepIndex uint64
	evt       event.EngineEvent
}

// New creates an engine for a map of the given size. trailingStateLen of
// 0 disables history retention entirely (the teacher's new_simple),
// which also disables rewind/replay; step_hash then works only for the
// current step.
func New(id uuid.UUID, size spatial.IVec2, registry *ecs.Registry, logic GameLogic, trailingStateLen uint64) *Engine {
	eng := &Engine{
		id:                 id,
		registry:           registry,
		logic:              logic,
		size:               size,
		entities:           make(map[ecs.ID]ecs.Entity),
		entitiesByStep:     make(map[uint64]map[ecs.ID]ecs.Entity),
		defaultInput:       logic.DefaultInput(),
		inputs:             make(map[ecs.ID]ecs.Input),
		inputsByStep:       make(map[uint64]map[ecs.ID]ecs.Input),
		engineEventsByStep: make(map[uint64][]event.EngineEvent),
		gameEventsByStep:   make(map[uint64][]ecs.GameEvent),
		trailingStateLen:   trailingStateLen,
	}
	eng.entitiesByStep[0] = map[ecs.ID]ecs.Entity{}
	eng.inputsByStep[0] = map[ecs.ID]ecs.Input{}
	return eng
}

func (e *Engine) ID() uuid.UUID             { return e.id }
func (e *Engine) Size() spatial.IVec2       { return e.size }
func (e *Engine) StepIndex() uint64         { return e.stepIndex }
func (e *Engine) TrailingStateLen() uint64  { return e.trailingStateLen }
func (e *Engine) EntityCount() int          { return len(e.entities) }

// generateID implements spec.md §3's id scheme: counter increments
// within the current step, and High carries the generating step index
// so replaying the same number of spawns in the same order reproduces
// identical ids regardless of wall-clock or prior history.
func (e *Engine) generateID() ecs.ID {
	e.idCounter.counter++
	return ecs.ID{High: e.idCounter.step, Low: e.idCounter.counter}
}

func (e *Engine) restartIDCounter() {
	e.idCounter = idCounter{step: e.stepIndex, counter: 0}
}

func (e *Engine) registerEvent(stepIndex *uint64, evt event.EngineEvent) {
	si := e.stepIndex
	if stepIndex != nil {
		si = *stepIndex
	}
	e.pendingEvents = append(e.pendingEvents, pendingEvent{stepIndex: si, evt: evt})
}

func (e *Engine) registerGameEvent(evt ecs.GameEvent) {
	e.pendingGameEvents = append(e.pendingGameEvents, evt)
}

// engineView is the concrete ecs.View handed to Entity/System Step and
// Prestep. Its methods take no lock and rely on Step already holding
// e.mu, so it is only safe to use during a step.
type engineView struct {
	eng *Engine
}

func (v *engineView) StepIndex() uint64       { return v.eng.stepIndex }
func (v *engineView) Size() spatial.IVec2     { return v.eng.size }

func (v *engineView) EntityByID(id ecs.ID) (ecs.Entity, bool) {
	e, ok := v.eng.entities[id]
	return e, ok
}

func (v *engineView) EntitiesByKind(kind ecs.Kind) []ecs.Entity {
	var out []ecs.Entity
	for _, e := range v.eng.entities {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

func (v *engineView) InputFor(id ecs.ID) ecs.Input {
	if in, ok := v.eng.inputs[id]; ok {
		return in
	}
	return v.eng.defaultInput
}

func (v *engineView) GenerateID() ecs.ID { return v.eng.generateID() }

func (v *engineView) RNG(id ecs.ID) ecs.Stream {
	return random.NewDeterministicStream(id.Low, v.eng.stepIndex)
}

func (v *engineView) SpawnEntity(e ecs.Entity) {
	v.eng.registerEvent(nil, event.NewSpawnEntity(e))
}

func (v *engineView) RemoveEntity(id ecs.ID) {
	v.eng.registerEvent(nil, event.NewRemoveEntity(id))
}

func (v *engineView) SpawnSystem(entityID ecs.ID, sys ecs.System) {
	v.eng.registerEvent(nil, event.NewSpawnSystem(entityID, sys))
}

func (v *engineView) RemoveSystem(entityID ecs.ID, sys ecs.System) {
	v.eng.registerEvent(nil, event.NewRemoveSystem(entityID, sys))
}

func (v *engineView) RegisterGameEvent(evt ecs.GameEvent) {
	v.eng.registerGameEvent(evt)
}

// RegisterInput queues an Input change for entityID, effective at the
// start of the next committed step. nondeterministic should be true for
// inputs arriving over the wire from a remote player (spec.md §4.4).
func (e *Engine) RegisterInput(entityID ecs.ID, in ecs.Input, nondeterministic bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerEvent(nil, event.NewInput(entityID, in, nondeterministic))
}

// SpawnEntity queues a deterministic spawn for the current step. Hosts
// bootstrapping a map (not stepping it) call this directly.
func (e *Engine) SpawnEntity(ent ecs.Entity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerEvent(nil, event.NewSpawnEntity(ent))
}

// EntityByID, RegisterEvent, and RegisterGameEvent are the lock-free
// counterparts of engineView's methods, safe to call only from within
// GameLogic.HandleGameEvents: Step holds e.mu for the hook's entire
// duration (see stepLocked's game-event phase), so anything that tried
// to re-lock it here would deadlock. A nil stepIndex targets the step
// just committed, same as registerEvent's own default.

// EntityByID looks up an entity by id as of the step just committed.
func (e *Engine) EntityByID(id ecs.ID) (ecs.Entity, bool) {
	ent, ok := e.entities[id]
	return ent, ok
}

// RegisterEvent queues evt for stepIndex (nil for the step just
// committed), letting HandleGameEvents react to a GameEvent with
// further EngineEvents per spec.md §4.2 phase 6.
func (e *Engine) RegisterEvent(stepIndex *uint64, evt event.EngineEvent) {
	e.registerEvent(stepIndex, evt)
}

// RegisterGameEvent queues a further GameEvent from within
// HandleGameEvents, to be drained on a future game-event phase.
func (e *Engine) RegisterGameEvent(evt ecs.GameEvent) {
	e.registerGameEvent(evt)
}

// Step advances the engine by exactly one step, per spec.md §4.2's eight
// phases: modification, event-drain, event-apply, commit, snapshot,
// game-event, eviction. It returns the GameEvents produced this step.
func (e *Engine) Step(ctx context.Context) ([]ecs.GameEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepLocked(ctx)
}

func (e *Engine) stepLocked(ctx context.Context) ([]ecs.GameEvent, error) {
	_, span := tracer.Start(ctx, "engine.step", trace.WithAttributes(
		attribute.Int64("step_index", int64(e.stepIndex)),
		attribute.String("engine_id", e.id.String()),
	))
	defer span.End()

	// 1. Modification phase: deterministic iteration order by id.
	ids := make([]ecs.ID, 0, len(e.entities))
	for id := range e.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	view := &engineView{eng: e}
	nextEntities := make(map[ecs.ID]ecs.Entity, len(e.entities))
	for _, id := range ids {
		ent := e.entities[id]
		var next ecs.Entity
		if ent.Prestep(view) {
			next = ent.Clone()
			ent.Step(view, next)
		}
		next = e.stepSystems(view, ent, next)
		if next != nil {
			nextEntities[id] = next
		} else {
			nextEntities[id] = ent
		}
	}
	e.entities = nextEntities

	// 2. Event-drain phase.
	pending := e.pendingEvents
	e.pendingEvents = nil
	for _, p := range pending {
		if p.stepIndex < e.stepIndex {
			span.AddEvent("event registered for a step already committed")
		}
		e.engineEventsByStep[p.stepIndex] = append(e.engineEventsByStep[p.stepIndex], p.evt)
	}

	// 3. Event-apply phase: only events scheduled for the step just
	// completed apply now; events scheduled for a future step wait.
	for _, evt := range e.engineEventsByStep[e.stepIndex] {
		e.applyEvent(evt)
	}

	// 4. Commit phase.
	e.stepIndex++
	e.restartIDCounter()

	// 5. Snapshot phase.
	if e.trailingStateLen != 0 {
		e.entitiesByStep[e.stepIndex] = cloneEntityMap(e.entities)
		e.inputsByStep[e.stepIndex] = cloneInputMap(e.inputs)
	}

	// 6. Game-event phase.
	gameEvents := e.pendingGameEvents
	e.pendingGameEvents = nil
	e.gameEventsByStep[e.stepIndex] = gameEvents
	e.logic.HandleGameEvents(e, gameEvents)

	// 7. Eviction phase.
	if e.trailingStateLen != 0 && e.stepIndex >= e.trailingStateLen {
		stepToRemove := e.stepIndex - e.trailingStateLen
		for k := range e.entitiesByStep {
			if k <= stepToRemove {
				delete(e.entitiesByStep, k)
			}
		}
		for k := range e.engineEventsByStep {
			if k <= stepToRemove {
				delete(e.engineEventsByStep, k)
			}
		}
		for k := range e.gameEventsByStep {
			if k <= stepToRemove {
				delete(e.gameEventsByStep, k)
			}
		}
		delete(e.inputsByStep, stepToRemove)
	}

	return gameEvents, nil
}

func (e *Engine) applyEvent(evt event.EngineEvent) {
	switch evt.Kind {
	case event.EngineKindSpawnEntity:
		p := evt.SpawnEntity
		id := p.Entity.Base().ID
		if id.IsZero() {
			return
		}
		e.entities[id] = p.Entity
	case event.EngineKindRemoveEntity:
		delete(e.entities, evt.RemoveEntity.EntityID)
	case event.EngineKindInput:
		e.inputs[evt.Input.EntityID] = evt.Input.Input
	case event.EngineKindSpawnSystem:
		p := evt.SpawnSystem
		if ent, ok := e.entities[p.EntityID]; ok {
			e.entities[p.EntityID] = ent.WithSystems(append(append([]ecs.System{}, ent.Systems()...), p.System))
		}
	case event.EngineKindRemoveSystem:
		p := evt.RemoveSystem
		if ent, ok := e.entities[p.EntityID]; ok {
			kept := make([]ecs.System, 0, len(ent.Systems()))
			for _, sys := range ent.Systems() {
				if sys != p.System {
					kept = append(kept, sys)
				}
			}
			e.entities[p.EntityID] = ent.WithSystems(kept)
		}
	}
}

// stepSystems runs each of ent's systems in turn, mirroring
// entity_struct!'s step_systems in crates/keind/src/entity.rs: a system
// that declines to mutate (Prestep returns false) is carried over
// unchanged; one that returns nil from Step is dropped.
func (e *Engine) stepSystems(view ecs.View, ent ecs.Entity, next ecs.Entity) ecs.Entity {
	systems := ent.Systems()
	if len(systems) == 0 {
		return next
	}
	kept := make([]ecs.System, 0, len(systems))
	for _, sys := range systems {
		if !sys.Prestep(view, ent) {
			kept = append(kept, sys)
			continue
		}
		if next == nil {
			next = ent.Clone()
		}
		if nextSys := sys.Step(view, ent, next); nextSys != nil {
			kept = append(kept, nextSys)
		}
	}
	if next != nil {
		next = next.WithSystems(kept)
	}
	return next
}

func cloneEntityMap(m map[ecs.ID]ecs.Entity) map[ecs.ID]ecs.Entity {
	out := make(map[ecs.ID]ecs.Entity, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneInputMap(m map[ecs.ID]ecs.Input) map[ecs.ID]ecs.Input {
	out := make(map[ecs.ID]ecs.Input, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StepTo advances the engine step by step until it reaches toStep.
func (e *Engine) StepTo(ctx context.Context, toStep uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if toStep <= e.stepIndex {
		return keinderrors.New(keinderrors.CodeEventInPast, fmt.Sprintf("step_to target %d is not after current step %d", toStep, e.stepIndex))
	}
	for e.stepIndex < toStep {
		if _, err := e.stepLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot replaces the engine's entire state with entities as of
// stepIndex, discarding any prior history. A client mirror calls this
// on a received EngineState (spec.md §4.6: "replace the local engine
// with the received one"); there is no prior history to reconcile
// against a full snapshot, so the trailing window starts fresh at
// stepIndex rather than attempting to splice in a replacement past.
func (e *Engine) LoadSnapshot(stepIndex uint64, entities map[ecs.ID]ecs.Entity) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stepIndex = stepIndex
	e.entities = entities
	e.entitiesByStep = map[uint64]map[ecs.ID]ecs.Entity{stepIndex: cloneEntityMap(entities)}
	e.inputs = make(map[ecs.ID]ecs.Input)
	e.inputsByStep = map[uint64]map[ecs.ID]ecs.Input{stepIndex: {}}
	e.engineEventsByStep = make(map[uint64][]event.EngineEvent)
	e.gameEventsByStep = make(map[uint64][]ecs.GameEvent)
	e.pendingEvents = nil
	e.pendingGameEvents = nil
	e.restartIDCounter()
}

// EntitiesAtStep returns the entity snapshot as of the end of stepIndex,
// or false if it falls outside the trailing history window.
func (e *Engine) EntitiesAtStep(stepIndex uint64) (map[ecs.ID]ecs.Entity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stepIndex == 0 {
		return map[ecs.ID]ecs.Entity{}, true
	}
	if stepIndex == e.stepIndex {
		return e.entities, true
	}
	snap, ok := e.entitiesByStep[stepIndex]
	return snap, ok
}

// EngineEventsAt returns a copy of the EngineEvents applied at the end
// of stepIndex, for a host to broadcast as event-deltas (spec.md §4.5).
func (e *Engine) EngineEventsAt(stepIndex uint64) []event.EngineEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := e.engineEventsByStep[stepIndex]
	out := make([]event.EngineEvent, len(src))
	copy(out, src)
	return out
}

// GameEventsBetween returns every GameEvent produced in [fromStep,
// toStep), per spec.md §4.5's periodic drain of events to broadcast.
func (e *Engine) GameEventsBetween(fromStep, toStep uint64) []ecs.GameEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ecs.GameEvent
	for step := fromStep; step < toStep; step++ {
		out = append(out, e.gameEventsByStep[step]...)
	}
	return out
}

// hashEntry is the canonical, cbor-encodable representation of one
// entity used only by StepHash. Encoding each variant through
// EntityCodec rather than cbor-marshaling the Entity interface directly
// sidesteps Go's lack of tagged-union marshaling: the Kind tag plus
// opaque Data is exactly what the Registry needs to decode it back.
type hashEntry struct {
	ID   ecs.ID
	Kind ecs.Kind
	Data []byte
}

// StepHash returns a cryptographic hash of the entity state at the end
// of stepIndex, for cross-instance desync detection (spec.md §4.7).
// Grounded on crates/keind/src/engine.rs's step_hash: step 0 is
// redirected to step 1 since no entities can exist yet, and an unknown
// step is a history miss rather than a panic.
func (e *Engine) StepHash(stepIndex uint64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stepIndex == 0 {
		stepIndex = 1
	}
	snap, ok := e.entitiesByStep[stepIndex]
	if !ok && stepIndex == e.stepIndex {
		snap, ok = e.entities, true
	}
	if !ok {
		return nil, keinderrors.New(keinderrors.CodeHashUnknown, fmt.Sprintf("step %d not known to engine", stepIndex))
	}

	entries := make([]hashEntry, 0, len(snap))
	for id, ent := range snap {
		data, err := e.logic.Codec().EncodeEntity(ent)
		if err != nil {
			return nil, fmt.Errorf("encode entity %s for hash: %w", id, err)
		}
		entries = append(entries, hashEntry{ID: id, Kind: ent.Kind(), Data: data})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID.Less(entries[j].ID) })

	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("build canonical cbor encoder: %w", err)
	}
	buf, err := encMode.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode step %d for hash: %w", stepIndex, err)
	}
	sum := sha256.Sum256(buf)
	return sum[:], nil
}

// EngineAtStep reconstructs a detached engine as of the end of
// targetStepIndex, per spec.md §4.4. When rewindable is true the result
// can itself be rewound further (it carries the full history needed for
// a nested IntegrateEvents); when false it only carries future
// nondeterministic events, enough to be replayed forward once.
func (e *Engine) EngineAtStep(targetStepIndex uint64, rewindable bool) (*Engine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.engineAtStepLocked(targetStepIndex, rewindable)
}

func (e *Engine) engineAtStepLocked(targetStepIndex uint64, rewindable bool) (*Engine, error) {
	entities, ok := e.entitiesByStep[targetStepIndex]
	if !ok {
		return nil, keinderrors.New(keinderrors.CodeStepTooOld, fmt.Sprintf("step %d is too far in the past", targetStepIndex))
	}
	inputs, ok := e.inputsByStep[targetStepIndex]
	if !ok {
		return nil, keinderrors.New(keinderrors.CodeStepTooOld, fmt.Sprintf("step %d is too far in the past", targetStepIndex))
	}

	out := &Engine{
		id:                 e.id,
		registry:           e.registry,
		logic:              e.logic,
		size:               e.size,
		entities:           cloneEntityMap(entities),
		entitiesByStep:     make(map[uint64]map[ecs.ID]ecs.Entity),
		defaultInput:       e.defaultInput,
		inputs:             cloneInputMap(inputs),
		inputsByStep:       make(map[uint64]map[ecs.ID]ecs.Input),
		engineEventsByStep: make(map[uint64][]event.EngineEvent),
		gameEventsByStep:   make(map[uint64][]ecs.GameEvent),
		trailingStateLen:   e.trailingStateLen,
		stepIndex:          targetStepIndex,
	}

	// Future (and current-step-onward) nondeterministic events always
	// carry forward: a player that logged on in the "future" relative to
	// targetStepIndex did so independently of engine state.
	for step, events := range e.engineEventsByStep {
		if step < targetStepIndex {
			continue
		}
		for _, evt := range events {
			if evt.IsNondeterministic {
				out.engineEventsByStep[step] = append(out.engineEventsByStep[step], evt)
			}
		}
	}

	if rewindable {
		for step, events := range e.engineEventsByStep {
			if step < targetStepIndex {
				out.engineEventsByStep[step] = append(out.engineEventsByStep[step], events...)
			}
		}
		for step, events := range e.gameEventsByStep {
			if step <= targetStepIndex {
				out.gameEventsByStep[step] = append([]ecs.GameEvent{}, events...)
			}
		}
		for step, snap := range e.entitiesByStep {
			if step <= targetStepIndex {
				out.entitiesByStep[step] = cloneEntityMap(snap)
			}
		}
		for step, snap := range e.inputsByStep {
			if step <= targetStepIndex {
				out.inputsByStep[step] = cloneInputMap(snap)
			}
		}
	}

	out.restartIDCounter()
	return out, nil
}

// IntegrateEvent is a single-event convenience wrapper over
// IntegrateEvents.
func (e *Engine) IntegrateEvent(ctx context.Context, stepIndex uint64, evt event.EngineEvent) error {
	return e.IntegrateEvents(ctx, map[uint64][]event.EngineEvent{stepIndex: {evt}})
}

// IntegrateEvents is the authoritative entry point for applying events
// that may target a past step (spec.md §4.4). If every event targets
// the current step or later, they are simply queued normally. Otherwise
// the engine rewinds to a detached copy at the earliest affected step,
// replays forward with the new events folded in, and adopts the
// resulting state wholesale — reproducing
// crates/keind/src/engine.rs's integrate_events exactly, including its
// manual field-by-field adoption instead of replacing the engine
// wholesale (id_counter and the live "entities" view must come from the
// replay, but id/size/registry/logic/trailingStateLen stay put).
func (e *Engine) IntegrateEvents(ctx context.Context, events map[uint64][]event.EngineEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.integrateEventsLocked(ctx, events)
}

func (e *Engine) integrateEventsLocked(ctx context.Context, events map[uint64][]event.EngineEvent) error {
	if len(events) == 0 {
		return nil
	}
	fromStep := earliestKey(events)
	if fromStep >= e.stepIndex {
		for step, evts := range events {
			for _, evt := range evts {
				e.registerEvent(&step, evt)
			}
		}
		return nil
	}

	past, err := e.engineAtStepLocked(fromStep, true)
	if err != nil {
		return fmt.Errorf("integrate events: %w", err)
	}
	if err := past.integrateEventsLocked(ctx, events); err != nil {
		return err
	}
	if err := past.stepToLockedNoLock(ctx, e.stepIndex); err != nil {
		return fmt.Errorf("replay past engine to current step: %w", err)
	}

	e.gameEventsByStep = past.gameEventsByStep
	e.entities = past.entities
	e.entitiesByStep = past.entitiesByStep
	e.engineEventsByStep = past.engineEventsByStep
	e.inputsByStep = past.inputsByStep
	e.inputs = past.inputs
	e.idCounter = past.idCounter
	return nil
}

// stepToLockedNoLock advances an engine that the caller already owns
// exclusively (a freshly-built detached copy from engineAtStepLocked),
// so it does not take e.mu itself.
func (e *Engine) stepToLockedNoLock(ctx context.Context, toStep uint64) error {
	for e.stepIndex < toStep {
		if _, err := e.stepLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

func earliestKey(m map[uint64][]event.EngineEvent) uint64 {
	first := true
	var out uint64
	for k := range m {
		if first || k < out {
			out = k
			first = false
		}
	}
	return out
}
