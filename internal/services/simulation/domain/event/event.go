// Package event defines the EngineEvent tagged union of spec.md §4.2 and
// §4.4: the side-channel of entity/system lifecycle changes the engine
// applies once per step, and the determinism classification
// (IsNondeterministic) engine_at_step and integrate_events rely on to
// decide what survives a rewind. Grounded on
// crates/keind/src/engine.rs's EngineEvent variants (SpawnEntity,
// RemoveEntity, Input, SpawnSystem, RemoveSystem), not the older,
// superseded packages/game_common/src/engine/game_event.rs shape.
package event

import "github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"

// EngineKind tags an EngineEvent's variant.
type EngineKind uint8

const (
	EngineKindSpawnEntity EngineKind = iota
	EngineKindRemoveEntity
	EngineKindInput
	EngineKindSpawnSystem
	EngineKindRemoveSystem
)

// EngineEvent is one entry in the engine's per-step event log. Exactly
// one of the per-kind fields is populated, selected by Kind. A struct
// with a Kind discriminant is used instead of a Go interface because
// engine_at_step and integrate_events need to inspect IsNondeterministic
// and re-home events across step buckets without a type switch at every
// call site (spec.md §9: "no generics-based closed sum types").
type EngineEvent struct {
	Kind EngineKind

	// IsNondeterministic marks an event produced by something outside
	// the deterministic step function (a player connecting, an external
	// timer), per spec.md §4.4: these survive a rewind, everything else
	// is dropped and reproduced by replaying recorded inputs.
	IsNondeterministic bool

	SpawnEntity  *SpawnEntityPayload
	RemoveEntity *RemoveEntityPayload
	Input        *InputPayload
	SpawnSystem  *SpawnSystemPayload
	RemoveSystem *RemoveSystemPayload
}

// SpawnEntityPayload inserts Entity at its own Base().ID.
type SpawnEntityPayload struct {
	Entity ecs.Entity
}

// RemoveEntityPayload deletes the entity at EntityID, if present.
type RemoveEntityPayload struct {
	EntityID ecs.ID
}

// InputPayload records the latest Input for EntityID, effective next step.
type InputPayload struct {
	EntityID ecs.ID
	Input    ecs.Input
}

// SpawnSystemPayload appends System to EntityID's system list.
type SpawnSystemPayload struct {
	EntityID ecs.ID
	System   ecs.System
}

// RemoveSystemPayload removes System from EntityID's system list by
// pointer identity, per spec.md §9's assumption that system identity
// does not survive serialization: this only works against a live,
// in-process System value, never a freshly decoded one.
type RemoveSystemPayload struct {
	EntityID ecs.ID
	System   ecs.System
}

// NewSpawnEntity builds a deterministic SpawnEntity event (the common
// case: an entity spawned by ordinary step logic, not by a connecting
// player or other external actor).
func NewSpawnEntity(e ecs.Entity) EngineEvent {
	return EngineEvent{Kind: EngineKindSpawnEntity, SpawnEntity: &SpawnEntityPayload{Entity: e}}
}

// NewRemoveEntity builds a deterministic RemoveEntity event.
func NewRemoveEntity(id ecs.ID) EngineEvent {
	return EngineEvent{Kind: EngineKindRemoveEntity, RemoveEntity: &RemoveEntityPayload{EntityID: id}}
}

// NewInput builds an Input event. Inputs arriving from a remote player
// are nondeterministic by nature (spec.md §4.4): the caller is
// responsible for setting IsNondeterministic when building one from a
// wire frame.
func NewInput(id ecs.ID, in ecs.Input, nondeterministic bool) EngineEvent {
	return EngineEvent{
		Kind:               EngineKindInput,
		IsNondeterministic: nondeterministic,
		Input:              &InputPayload{EntityID: id, Input: in},
	}
}

// NewSpawnSystem builds a deterministic SpawnSystem event.
func NewSpawnSystem(entityID ecs.ID, sys ecs.System) EngineEvent {
	return EngineEvent{Kind: EngineKindSpawnSystem, SpawnSystem: &SpawnSystemPayload{EntityID: entityID, System: sys}}
}

// NewRemoveSystem builds a deterministic RemoveSystem event.
func NewRemoveSystem(entityID ecs.ID, sys ecs.System) EngineEvent {
	return EngineEvent{Kind: EngineKindRemoveSystem, RemoveSystem: &RemoveSystemPayload{EntityID: entityID, System: sys}}
}
