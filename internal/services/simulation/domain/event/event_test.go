package event

import (
	"testing"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
)

func TestNewRemoveEntity_DefaultsDeterministic(t *testing.T) {
	evt := NewRemoveEntity(ecs.ID{High: 1, Low: 2})
	if evt.Kind != EngineKindRemoveEntity {
		t.Fatalf("got kind %v, want EngineKindRemoveEntity", evt.Kind)
	}
	if evt.IsNondeterministic {
		t.Fatal("RemoveEntity built by step logic should default to deterministic")
	}
	if evt.RemoveEntity == nil || evt.RemoveEntity.EntityID.Low != 2 {
		t.Fatal("payload not populated correctly")
	}
}

func TestNewInput_NondeterministicFlagHonored(t *testing.T) {
	id := ecs.ID{High: 3, Low: 4}
	evt := NewInput(id, nil, true)
	if !evt.IsNondeterministic {
		t.Fatal("expected nondeterministic input event to keep the flag")
	}
	if evt.Input.EntityID != id {
		t.Fatalf("got entity id %v, want %v", evt.Input.EntityID, id)
	}
}

func TestNewSpawnEntity_RoundTrip(t *testing.T) {
	e := &fakeEntity{id: ecs.ID{High: 9, Low: 1}}
	evt := NewSpawnEntity(e)
	if evt.SpawnEntity.Entity.Base().ID != e.id {
		t.Fatal("spawn payload entity mismatch")
	}
}

type fakeEntity struct {
	ecs.BaseState
	id ecs.ID
}

func (f *fakeEntity) Kind() ecs.Kind                 { return 0 }
func (f *fakeEntity) Base() ecs.BaseState            { return ecs.BaseState{ID: f.id} }
func (f *fakeEntity) WithBase(b ecs.BaseState) ecs.Entity {
	c := *f
	c.id = b.ID
	return &c
}
func (f *fakeEntity) Systems() []ecs.System                  { return nil }
func (f *fakeEntity) WithSystems([]ecs.System) ecs.Entity     { return f }
func (f *fakeEntity) Clone() ecs.Entity                       { c := *f; return &c }
func (f *fakeEntity) Prestep(ecs.View) bool                   { return false }
func (f *fakeEntity) Step(ecs.View, ecs.Entity)                {}
