package demogame

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/engine"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/spatial"
)

func newTestEngine(t *testing.T) (*engine.Engine, *Logic) {
	t.Helper()
	logic := NewLogic()
	eng := engine.New(uuid.New(), spatial.IVec2{X: 2000, Y: 2000}, logic.Registry, logic, engine.DefaultTrailingStateLen)
	return eng, logic
}

func TestPlayer_FallsUnderGravityWithoutPlatform(t *testing.T) {
	eng, _ := newTestEngine(t)
	id := ecs.ID{High: 0, Low: 1}
	eng.SpawnEntity(NewPlayer(ecs.BaseState{ID: id, Position: spatial.IVec2{X: 0, Y: 100}, Size: spatial.IVec2{X: 10, Y: 10}}))

	ctx := context.Background()
	if _, err := eng.Step(ctx); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if _, err := eng.Step(ctx); err != nil {
		t.Fatalf("Step: %v", err)
	}

	entities, ok := eng.EntitiesAtStep(2)
	if !ok {
		t.Fatal("expected step 2 in history")
	}
	p := entities[id].(*Player)
	if p.Velocity.Y >= 0 {
		t.Fatalf("expected downward velocity under gravity, got %d", p.Velocity.Y)
	}
}

func TestPlayer_RestsOnPlatform(t *testing.T) {
	eng, _ := newTestEngine(t)
	platformID := ecs.ID{High: 0, Low: 1}
	playerID := ecs.ID{High: 0, Low: 2}

	eng.SpawnEntity(NewPlatform(ecs.BaseState{ID: platformID, Position: spatial.IVec2{X: 0, Y: 0}, Size: spatial.IVec2{X: 100, Y: 10}}))
	eng.SpawnEntity(NewPlayer(ecs.BaseState{ID: playerID, Position: spatial.IVec2{X: 0, Y: 1}, Size: spatial.IVec2{X: 10, Y: 10}}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := eng.Step(ctx); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	entities, ok := eng.EntitiesAtStep(3)
	if !ok {
		t.Fatal("expected step 3 in history")
	}
	p := entities[playerID].(*Player)
	if p.Velocity.Y != 0 {
		t.Fatalf("expected a grounded player to have zero vertical velocity, got %d", p.Velocity.Y)
	}
}

func TestMob_RemovedWhenHealthZero(t *testing.T) {
	eng, _ := newTestEngine(t)
	id := ecs.ID{High: 0, Low: 1}
	eng.SpawnEntity(NewMob(ecs.BaseState{ID: id}, 0))

	// Step 1 applies the spawn, step 2 raises Damaged and the hook
	// registers RemoveEntity at the new step, and step 3 applies it.
	if _, err := eng.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if _, err := eng.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if _, err := eng.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if eng.EntityCount() != 0 {
		t.Fatalf("expected dead mob to be removed, got %d entities", eng.EntityCount())
	}
}

func TestEntityCodec_RoundTripsEachKind(t *testing.T) {
	_, logic := newTestEngine(t)
	codec := logic.Codec()

	cases := []ecs.Entity{
		NewPlayer(ecs.BaseState{ID: ecs.ID{Low: 1}}),
		NewMob(ecs.BaseState{ID: ecs.ID{Low: 2}}, 40),
		NewPlatform(ecs.BaseState{ID: ecs.ID{Low: 3}}),
	}
	for _, want := range cases {
		data, err := codec.EncodeEntity(want)
		if err != nil {
			t.Fatalf("EncodeEntity(%T): %v", want, err)
		}
		got, err := codec.DecodeEntity(want.Kind(), data)
		if err != nil {
			t.Fatalf("DecodeEntity(%T): %v", want, err)
		}
		if got.Base().ID != want.Base().ID {
			t.Fatalf("round trip lost id: got %v, want %v", got.Base().ID, want.Base().ID)
		}
	}
}
