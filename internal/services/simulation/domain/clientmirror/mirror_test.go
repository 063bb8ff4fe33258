package clientmirror

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/demogame"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/engine"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/event"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/spatial"
	"github.com/chancehudson/keind-engine/internal/services/simulation/api/wire"
)

func newMirror(t *testing.T) (*Mirror, *demogame.Logic) {
	t.Helper()
	logic := demogame.NewLogic()
	eng := engine.New(uuid.New(), spatial.IVec2{X: 2000, Y: 2000}, logic.Registry, logic, engine.DefaultTrailingStateLen)
	m := New(eng, logic.Codec(), demogame.NewEventCodec(), 50*time.Millisecond)
	return m, logic
}

func TestMirror_OnEngineStateReplacesLocalEngine(t *testing.T) {
	m, logic := newMirror(t)
	id := ecs.ID{High: 1, Low: 1}
	player := demogame.NewPlayer(ecs.BaseState{ID: id, Position: spatial.IVec2{X: 5, Y: 5}})
	data, err := logic.Codec().EncodeEntity(player)
	if err != nil {
		t.Fatalf("EncodeEntity: %v", err)
	}

	state := wire.EngineState{
		StepIndex: 42,
		Entities:  []wire.EntitySnapshot{{ID: id, Kind: player.Kind(), Data: data}},
	}
	if err := m.OnEngineState(state); err != nil {
		t.Fatalf("OnEngineState: %v", err)
	}
	if m.Engine().StepIndex() != 42 {
		t.Fatalf("got step %d, want 42", m.Engine().StepIndex())
	}
	if m.Engine().EntityCount() != 1 {
		t.Fatalf("got %d entities, want 1", m.Engine().EntityCount())
	}
	if m.RequestedResync() {
		t.Fatal("resync should not be requested right after a fresh snapshot")
	}
}

func TestMirror_OnEngineStatsMismatchRequestsResyncOnce(t *testing.T) {
	m, _ := newMirror(t)
	if err := m.OnEngineState(wire.EngineState{StepIndex: 1}); err != nil {
		t.Fatalf("OnEngineState: %v", err)
	}

	needsResync, _, err := m.OnEngineStats(wire.EngineStats{StepIndex: 1, StepHash: []byte("not-the-real-hash")})
	if err != nil {
		t.Fatalf("OnEngineStats: %v", err)
	}
	if !needsResync {
		t.Fatal("expected a hash mismatch to request a resync")
	}
	if !m.RequestedResync() {
		t.Fatal("expected RequestedResync to be true after a mismatch")
	}

	needsResync, _, err = m.OnEngineStats(wire.EngineStats{StepIndex: 1, StepHash: []byte("still-wrong")})
	if err != nil {
		t.Fatalf("OnEngineStats: %v", err)
	}
	if needsResync {
		t.Fatal("a second mismatch should not re-request while one is outstanding")
	}
}

func TestMirror_OnRemoteEventsIntegratesInput(t *testing.T) {
	m, _ := newMirror(t)
	id := ecs.ID{High: 0, Low: 1}
	m.Engine().SpawnEntity(demogame.NewPlayer(ecs.BaseState{ID: id}))
	if _, err := m.Engine().Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	ec := demogame.NewEventCodec()
	in := demogame.Input{MoveRight: true}
	remote, err := ec.EncodeRemoteEvent(event.NewInput(id, in, true), m.Engine().StepIndex())
	if err != nil {
		t.Fatalf("EncodeRemoteEvent: %v", err)
	}

	if err := m.OnRemoteEvents(context.Background(), wire.RemoteEngineEvents{Events: []wire.RemoteEngineEvent{remote}}); err != nil {
		t.Fatalf("OnRemoteEvents: %v", err)
	}
	if m.SyncDistance() < 0 {
		t.Fatalf("expected server step to lead or match local step, got distance %d", m.SyncDistance())
	}
}
