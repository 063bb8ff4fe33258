package ecs

import "github.com/chancehudson/keind-engine/internal/services/simulation/domain/spatial"

// BaseState is the common state every Entity variant carries, per spec.md
// §3. player_creator_id is set only for entities owned by a connecting
// player, and is what the display-side rendering contract (spec.md §6)
// uses to split owned vs. non-owned entities.
type BaseState struct {
	ID              ID
	Position        spatial.IVec2
	Size            spatial.IVec2
	Velocity        spatial.IVec2
	PlayerCreatorID *ID
}

// Kind tags an Entity's closed variant for wire/snapshot decode dispatch,
// per spec.md §9 ("downcasts are done by variant tag").
type Kind uint8

// SystemKind tags a System's closed variant the same way.
type SystemKind uint8

// Input is the host-declared per-entity input record of spec.md §3. Each
// concrete Input type must have structural equality and a defined default
// (see GameLogic.DefaultInput).
type Input interface {
	Equal(Input) bool
}

// GameEvent is the host-declared notification variant of spec.md §3,
// produced by systems/entities during a step and consumed by the host's
// post-step hook and external collaborators. It is not required to be
// deterministic across replays.
type GameEvent interface {
	Kind() string
}

// View is the read-only, side-channel-posting access an Entity or System
// receives during step(), per spec.md §5: "entity step and system step
// receive shared (read-only) access to the engine. They mutate only their
// own next_self and post events through the channels." View intentionally
// exposes no method that mutates engine.entities directly.
type View interface {
	StepIndex() uint64
	Size() spatial.IVec2

	EntityByID(id ID) (Entity, bool)
	// EntitiesByKind returns every current entity whose Kind() matches.
	// Map counts per instance are small (tens to low hundreds), so a
	// linear scan here is simpler than maintaining a secondary index.
	EntitiesByKind(kind Kind) []Entity
	InputFor(id ID) Input

	// GenerateID increments the per-step counter and returns the next
	// entity id. Calling this the same number of times, in the same
	// order, during the same step across replays yields identical ids
	// (spec.md §4.2).
	GenerateID() ID

	// RNG returns the sanctioned deterministic generator for id during
	// the current step (spec.md §5).
	RNG(id ID) Stream

	// Side-channel posters. These enqueue EngineEvents scheduled for the
	// current step; they never mutate entities/inputs directly.
	SpawnEntity(e Entity)
	RemoveEntity(id ID)
	SpawnSystem(entityID ID, sys System)
	RemoveSystem(entityID ID, sys System)

	// RegisterGameEvent enqueues a GameEvent; it becomes associated with
	// the step that completes after the call (spec.md §4.2).
	RegisterGameEvent(evt GameEvent)
}

// Stream is the minimal surface step() code needs from
// internal/random.DeterministicStream, kept as an interface here so ecs
// does not depend on the random package's concrete type.
type Stream interface {
	Next() uint64
	IntN(n int) int
	Bool() bool
}

// Entity is the per-variant contract of spec.md §4.1. Concrete variants
// are always held behind a pointer (e.g. *Player), so storing an Entity
// value in a map and copying that value to another map is the pointer
// copy spec.md §9 relies on for cheap historical snapshots: unchanged
// entities are never deep-copied between steps.
type Entity interface {
	Kind() Kind
	Base() BaseState

	// WithBase returns a shallow copy of the entity with base replaced.
	// Used by the engine's event-apply phase to relocate an entity
	// without invoking variant-specific step logic.
	WithBase(BaseState) Entity

	Systems() []System

	// WithSystems returns a shallow copy of the entity with its system
	// list replaced. Used by the spawn/remove-system event handlers.
	WithSystems([]System) Entity

	// Clone returns a deep copy suitable for mutation into next_self.
	// Systems are NOT deep-copied (they are shared by pointer); only the
	// entity's own fields are copied.
	Clone() Entity

	// Prestep is a pure inspection: true if this entity's variant-specific
	// step would produce a change.
	Prestep(v View) bool

	// Step mutates next (a pre-cloned copy of self) in place. It may
	// inspect v and post events through it, but must never mutate v's
	// underlying engine state directly.
	Step(v View, next Entity)
}

// System is the per-variant contract of spec.md §4.1.
type System interface {
	Kind() SystemKind

	// Prestep returns true if this system needs to mutate self or the
	// entity this step.
	Prestep(v View, e Entity) bool

	// Step performs the mutation against next (entity's pre-cloned next
	// version). Returning nil drops this system from the entity's list;
	// returning a non-nil System (itself or a replacement) keeps it for
	// the next step.
	Step(v View, e Entity, next Entity) System
}
