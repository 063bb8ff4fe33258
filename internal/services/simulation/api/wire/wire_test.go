package wire

import (
	"testing"

	"github.com/google/uuid"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := Ping{Nonce: 12345}
	f, err := Encode(KindPing, want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if f.Kind != KindPing {
		t.Fatalf("got kind %d, want KindPing", f.Kind)
	}

	raw, err := Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	var got Ping
	if err := DecodePayload(decoded, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestEngineStateRoundTrip(t *testing.T) {
	engineID := uuid.New()
	playerEntityID := ecs.ID{High: 4, Low: 5}
	want := EngineState{
		EngineID:       engineID,
		PlayerEntityID: playerEntityID,
		StepIndex:      7,
		Entities: []EntitySnapshot{
			{ID: ecs.ID{High: 1, Low: 2}, Kind: 3, Data: []byte{9, 9}},
		},
	}
	f, err := Encode(KindEngineState, want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got EngineState
	if err := DecodePayload(f, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.StepIndex != want.StepIndex || len(got.Entities) != 1 || got.Entities[0].ID != want.Entities[0].ID {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.EngineID != engineID {
		t.Fatalf("got engine id %s, want %s", got.EngineID, engineID)
	}
	if got.PlayerEntityID != playerEntityID {
		t.Fatalf("got player entity id %+v, want %+v", got.PlayerEntityID, playerEntityID)
	}
}

func TestRemoteEngineEventsRoundTrip(t *testing.T) {
	engineID := uuid.New()
	want := RemoteEngineEvents{
		EngineID: engineID,
		Events: []RemoteEngineEvent{
			{EngineID: engineID, StepIndex: 11, Kind: 2, EntityID: ecs.ID{High: 1, Low: 1}, Payload: []byte{1}},
		},
		ExpectedStepIndex: 12,
	}
	f, err := Encode(KindRemoteEngineEvents, want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got RemoteEngineEvents
	if err := DecodePayload(f, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.EngineID != engineID || got.ExpectedStepIndex != 12 || len(got.Events) != 1 {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.Events[0].EngineID != engineID {
		t.Fatalf("got event engine id %s, want %s", got.Events[0].EngineID, engineID)
	}
}

func TestEngineStatsRoundTrip(t *testing.T) {
	engineID := uuid.New()
	want := EngineStats{
		EngineID:     engineID,
		StepIndex:    20,
		StepHashStep: 18,
		StepHash:     []byte{0xaa, 0xbb},
	}
	f, err := Encode(KindEngineStats, want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got EngineStats
	if err := DecodePayload(f, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.EngineID != engineID || got.StepHashStep != 18 || got.StepIndex != 20 {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestUnmarshal_RejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected error decoding garbage bytes")
	}
}
