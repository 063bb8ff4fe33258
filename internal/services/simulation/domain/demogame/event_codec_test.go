package demogame

import (
	"testing"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/event"
	"github.com/chancehudson/keind-engine/internal/services/simulation/api/wire"
)

func TestEventCodec_InputRoundTrip(t *testing.T) {
	c := NewEventCodec()
	id := ecs.ID{High: 1, Low: 2}
	in := Input{MoveRight: true, Jump: true}

	remote, err := c.EncodeRemoteEvent(event.NewInput(id, in, true), 7)
	if err != nil {
		t.Fatalf("EncodeRemoteEvent: %v", err)
	}
	if remote.StepIndex != 7 || remote.EntityID != id {
		t.Fatalf("unexpected remote event %+v", remote)
	}

	decoded, err := c.DecodeRemoteEvent(remote)
	if err != nil {
		t.Fatalf("DecodeRemoteEvent: %v", err)
	}
	if decoded.Kind != event.EngineKindInput || !decoded.IsNondeterministic {
		t.Fatalf("unexpected decoded event %+v", decoded)
	}
	got, _ := decoded.Input.Input.(Input)
	if got != in {
		t.Fatalf("got input %+v, want %+v", got, in)
	}
}

func TestEventCodec_DecodeRejectsNonInputKinds(t *testing.T) {
	c := NewEventCodec()
	remote := wire.RemoteEngineEvent{Kind: uint8(event.EngineKindSpawnEntity)}
	if _, err := c.DecodeRemoteEvent(remote); err == nil {
		t.Fatal("expected an error decoding a non-Input remote event")
	}
}

func TestEventCodec_EncodeRemoveEntity(t *testing.T) {
	c := NewEventCodec()
	id := ecs.ID{Low: 9}
	remote, err := c.EncodeRemoteEvent(event.NewRemoveEntity(id), 3)
	if err != nil {
		t.Fatalf("EncodeRemoteEvent: %v", err)
	}
	if remote.EntityID != id || remote.Kind != uint8(event.EngineKindRemoveEntity) {
		t.Fatalf("unexpected remote event %+v", remote)
	}
}
