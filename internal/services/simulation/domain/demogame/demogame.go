// Package demogame is a concrete GameLogic implementation: a small
// side-scrolling platformer (Player, Mob, Platform entities; Gravity and
// RandomWalk systems) used to exercise the engine package end to end and
// to give the wire protocol and map server real payloads to carry.
//
// Simplified from original_source/packages/game_common/src/entity/mob.rs
// and .../entity/player.rs: the original's aggro/damage/drop-table/
// knockback state machine is not reproduced (it is TTRPG-adjacent combat
// content outside this module's scope), but the core movement loop —
// gravity, friction, jump, platform collision via AABB intersection — is
// ported faithfully, as is mob.rs's "wander a while, then stop" random
// walk using the engine's sanctioned per-entity RNG stream.
package demogame

import (
	"errors"

	"github.com/fxamacker/cbor/v2"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/engine"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/event"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/spatial"
)

var errUnknownEntity = errors.New("demogame: unknown entity kind")

const (
	KindPlayer ecs.Kind = iota + 1
	KindMob
	KindPlatform
)

const (
	SystemKindGravity ecs.SystemKind = iota + 1
	SystemKindRandomWalk
)

const (
	gravityPerStep     = -20
	frictionPerStep    = 100
	jumpVelocity       = 350
	maxFallSpeed       = -350
	maxRiseSpeed       = 700
	horizontalSpeedCap = 150
)

// Input is the per-entity input record of spec.md §3 for this game: the
// three buttons a side-scrolling platformer needs.
type Input struct {
	MoveLeft  bool
	MoveRight bool
	Jump      bool
}

func (i Input) Equal(o ecs.Input) bool {
	other, ok := o.(Input)
	return ok && other == i
}

// GameEvent variants. Kind-tagged rather than a closed sum type for the
// same reason as EngineEvent (spec.md §9). Damaged is raised by Mob.Step
// while its health sits at zero; HandleGameEvents turns that into a
// RemoveEntity and a Despawned event, per spec.md §4.2 phase 6.
type GameEventKind string

const (
	GameEventDamaged   GameEventKind = "DAMAGED"
	GameEventDespawned GameEventKind = "DESPAWNED"
)

type GameEvent struct {
	kind     GameEventKind
	EntityID ecs.ID
	Amount   uint64
}

func (e GameEvent) Kind() string { return string(e.kind) }

func NewDamagedEvent(entityID ecs.ID, amount uint64) GameEvent {
	return GameEvent{kind: GameEventDamaged, EntityID: entityID, Amount: amount}
}

func NewDespawnedEvent(entityID ecs.ID) GameEvent {
	return GameEvent{kind: GameEventDespawned, EntityID: entityID}
}

// Player is a connected player's avatar.
type Player struct {
	ecs.BaseState
	systems       []ecs.System
	Health        uint64
	MaxHealth     uint64
	GroundedLast  bool
}

func NewPlayer(base ecs.BaseState) *Player {
	return &Player{BaseState: base, Health: 100, MaxHealth: 100, systems: []ecs.System{&Gravity{}}}
}

func (p *Player) Kind() ecs.Kind      { return KindPlayer }
func (p *Player) Base() ecs.BaseState { return p.BaseState }
func (p *Player) WithBase(b ecs.BaseState) ecs.Entity {
	c := *p
	c.BaseState = b
	return &c
}
func (p *Player) Systems() []ecs.System { return p.systems }
func (p *Player) WithSystems(s []ecs.System) ecs.Entity {
	c := *p
	c.systems = s
	return &c
}
func (p *Player) Clone() ecs.Entity          { c := *p; return &c }
func (p *Player) Prestep(v ecs.View) bool    { return true }
func (p *Player) Step(v ecs.View, next ecs.Entity) {
	n := next.(*Player)
	in, _ := v.InputFor(p.ID).(Input)
	if !in.MoveLeft && !in.MoveRight {
		n.Velocity.X = frictionDecay(p.Velocity.X)
	} else {
		if in.MoveLeft {
			n.Velocity.X -= frictionPerStep
		}
		if in.MoveRight {
			n.Velocity.X += frictionPerStep
		}
	}
	n.Velocity.X = clamp32(n.Velocity.X, -horizontalSpeedCap, horizontalSpeedCap)
	grounded := onPlatform(v, p.BaseState)
	if in.Jump && grounded && p.Velocity.Y == 0 {
		n.Velocity.Y = jumpVelocity
	}
	n.GroundedLast = grounded
}

// Mob is a simple wandering NPC.
type Mob struct {
	ecs.BaseState
	systems []ecs.System
	Health  uint64
}

func NewMob(base ecs.BaseState, health uint64) *Mob {
	return &Mob{BaseState: base, Health: health, systems: []ecs.System{&Gravity{}, &RandomWalk{}}}
}

func (m *Mob) Kind() ecs.Kind      { return KindMob }
func (m *Mob) Base() ecs.BaseState { return m.BaseState }
func (m *Mob) WithBase(b ecs.BaseState) ecs.Entity {
	c := *m
	c.BaseState = b
	return &c
}
func (m *Mob) Systems() []ecs.System { return m.systems }
func (m *Mob) WithSystems(s []ecs.System) ecs.Entity {
	c := *m
	c.systems = s
	return &c
}
func (m *Mob) Clone() ecs.Entity     { c := *m; return &c }
func (m *Mob) Prestep(ecs.View) bool { return true }
func (m *Mob) Step(v ecs.View, next ecs.Entity) {
	if m.Health == 0 {
		v.RegisterGameEvent(NewDamagedEvent(m.ID, 0))
	}
}

// Platform is static level geometry: never steps, exists only for
// collision queries by Gravity and movement code.
type Platform struct {
	ecs.BaseState
}

func NewPlatform(base ecs.BaseState) *Platform { return &Platform{BaseState: base} }

func (p *Platform) Kind() ecs.Kind                   { return KindPlatform }
func (p *Platform) Base() ecs.BaseState              { return p.BaseState }
func (p *Platform) WithBase(b ecs.BaseState) ecs.Entity {
	c := *p
	c.BaseState = b
	return &c
}
func (p *Platform) Systems() []ecs.System                  { return nil }
func (p *Platform) WithSystems([]ecs.System) ecs.Entity     { return p }
func (p *Platform) Clone() ecs.Entity                       { c := *p; return &c }
func (p *Platform) Prestep(ecs.View) bool                   { return false }
func (p *Platform) Step(ecs.View, ecs.Entity)               {}

// Gravity applies per-step falling acceleration and stops an entity's
// fall when it lands on a Platform, ported from mob.rs's velocity.y
// handling (lines computing `velocity.y += -20` each step, clamped to a
// platform's top edge).
type Gravity struct{}

func (g *Gravity) Kind() ecs.SystemKind { return SystemKindGravity }
func (g *Gravity) Prestep(ecs.View, ecs.Entity) bool { return true }
func (g *Gravity) Step(v ecs.View, e ecs.Entity, next ecs.Entity) ecs.System {
	base := e.Base()
	nb := next.Base()
	grounded := onPlatform(v, base)
	if grounded && nb.Velocity.Y <= 0 {
		nb.Velocity.Y = 0
	} else {
		nb.Velocity.Y += gravityPerStep
		nb.Velocity.Y = clamp32(nb.Velocity.Y, maxFallSpeed, maxRiseSpeed)
	}
	nb.Position = nb.Position.Add(nb.Velocity)
	setBase(next, nb)
	return g
}

// RandomWalk makes a Mob wander left or right for a few seconds, then
// idle, using the engine's sanctioned deterministic stream — the same
// shape as mob.rs's "start moving every so often" branch, minus the
// aggro/combat interrupt paths.
type RandomWalk struct {
	MovingUntil uint64
	Sign        int32
}

func (w *RandomWalk) Kind() ecs.SystemKind { return SystemKindRandomWalk }
func (w *RandomWalk) Prestep(ecs.View, ecs.Entity) bool { return true }
func (w *RandomWalk) Step(v ecs.View, e ecs.Entity, next ecs.Entity) ecs.System {
	stepIndex := v.StepIndex()
	out := &RandomWalk{MovingUntil: w.MovingUntil, Sign: w.Sign}

	base := e.Base()
	nb := next.Base()

	switch {
	case w.MovingUntil > stepIndex:
		nb.Velocity.X = w.Sign * frictionPerStep
	case w.MovingUntil != 0 && w.MovingUntil <= stepIndex:
		out.MovingUntil = 0
		out.Sign = 0
		nb.Velocity.X = 0
	default:
		rng := v.RNG(base.ID)
		if rng.IntN(300) == 0 {
			if rng.Bool() {
				out.Sign = 1
			} else {
				out.Sign = -1
			}
			out.MovingUntil = stepIndex + uint64(3+rng.IntN(7))*30
			nb.Velocity.X = out.Sign * frictionPerStep
		}
	}
	setBase(next, nb)
	return out
}

func frictionDecay(v int32) int32 {
	if v == 0 {
		return 0
	}
	if abs32(v) <= frictionPerStep {
		return 0
	}
	if v > 0 {
		return v - frictionPerStep
	}
	return v + frictionPerStep
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func onPlatform(v ecs.View, base ecs.BaseState) bool {
	below := base.Position.Add(spatial.IVec2{X: 0, Y: -1})
	for _, e := range v.EntitiesByKind(KindPlatform) {
		p := e.Base()
		if spatial.Intersects(below, base.Size, p.Position, p.Size) {
			return true
		}
	}
	return false
}

func setBase(e ecs.Entity, b ecs.BaseState) {
	switch t := e.(type) {
	case *Player:
		t.BaseState = b
	case *Mob:
		t.BaseState = b
	case *Platform:
		t.BaseState = b
	}
}

// Logic is the demogame's engine.GameLogic implementation.
type Logic struct {
	Registry *ecs.Registry
}

// NewLogic builds a Logic with every demogame variant registered, ready
// to hand to engine.New.
func NewLogic() *Logic {
	r := ecs.NewRegistry()
	r.RegisterEntity(KindPlayer, func() ecs.Entity { return &Player{} })
	r.RegisterEntity(KindMob, func() ecs.Entity { return &Mob{} })
	r.RegisterEntity(KindPlatform, func() ecs.Entity { return &Platform{} })
	r.RegisterSystem(SystemKindGravity, func() ecs.System { return &Gravity{} })
	r.RegisterSystem(SystemKindRandomWalk, func() ecs.System { return &RandomWalk{} })
	return &Logic{Registry: r}
}

func (l *Logic) DefaultInput() ecs.Input { return Input{} }

// HandleGameEvents is the post-step hook of spec.md §4.2: a Damaged
// event for a Mob that is already out of health turns into a
// RemoveEntity, plus a Despawned event so a broadcast-side observer
// (mapserver, via engine.GameEventsBetween) can tell a despawn from an
// ordinary disconnect. Anything it does here runs with the engine's
// lock already held by Step, so it only ever reaches the engine
// through EntityByID/RegisterEvent/RegisterGameEvent — never the
// locking SpawnEntity/RegisterInput methods.
func (l *Logic) HandleGameEvents(eng *engine.Engine, events []ecs.GameEvent) {
	for _, evt := range events {
		if evt.Kind() != string(GameEventDamaged) {
			continue
		}
		ge, ok := evt.(GameEvent)
		if !ok {
			continue
		}
		ent, ok := eng.EntityByID(ge.EntityID)
		if !ok {
			continue
		}
		mob, ok := ent.(*Mob)
		if !ok || mob.Health != 0 {
			continue
		}
		eng.RegisterEvent(nil, event.NewRemoveEntity(ge.EntityID))
		eng.RegisterGameEvent(NewDespawnedEvent(ge.EntityID))
	}
}

// Codec implements engine.EntityCodec via cbor, with each variant's own
// payload struct cbor-encoded under its Kind tag.
func (l *Logic) Codec() engine.EntityCodec { return entityCodec{} }

type entityCodec struct{}

type wirePlayer struct {
	Base      ecs.BaseState
	Health    uint64
	MaxHealth uint64
}

type wireMob struct {
	Base   ecs.BaseState
	Health uint64
}

type wirePlatform struct {
	Base ecs.BaseState
}

func (entityCodec) EncodeEntity(e ecs.Entity) ([]byte, error) {
	switch t := e.(type) {
	case *Player:
		return cbor.Marshal(wirePlayer{Base: t.BaseState, Health: t.Health, MaxHealth: t.MaxHealth})
	case *Mob:
		return cbor.Marshal(wireMob{Base: t.BaseState, Health: t.Health})
	case *Platform:
		return cbor.Marshal(wirePlatform{Base: t.BaseState})
	default:
		return nil, errUnknownEntity
	}
}

func (entityCodec) DecodeEntity(kind ecs.Kind, data []byte) (ecs.Entity, error) {
	switch kind {
	case KindPlayer:
		var w wirePlayer
		if err := cbor.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		return &Player{BaseState: w.Base, Health: w.Health, MaxHealth: w.MaxHealth, systems: []ecs.System{&Gravity{}}}, nil
	case KindMob:
		var w wireMob
		if err := cbor.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		return &Mob{BaseState: w.Base, Health: w.Health, systems: []ecs.System{&Gravity{}, &RandomWalk{}}}, nil
	case KindPlatform:
		var w wirePlatform
		if err := cbor.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		return &Platform{BaseState: w.Base}, nil
	default:
		return nil, errUnknownEntity
	}
}
