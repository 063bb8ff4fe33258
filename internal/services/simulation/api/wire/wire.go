// Package wire implements the binary tagged-union message contract of
// spec.md §6 between a map server and a client mirror. It is explicitly
// only the message contract and its encoding: the transport that carries
// these bytes (websocket, QUIC, in-process channel) is an external
// collaborator and out of scope, per spec.md's own Non-goals.
//
// Frames are cbor-encoded {Kind, Payload} envelopes, the same
// Kind-tag-plus-opaque-payload shape used for Entity/System variants in
// package ecs, for the same reason: Go has no closed sum types, and a
// discriminant plus registry lookup is the idiomatic substitute
// (spec.md §9).
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
)

// Kind tags a Frame's payload type.
type Kind uint8

const (
	// Client-originated.
	KindLoginPlayer Kind = iota + 1
	KindPing
	KindRequestEngineReload
	KindRemoteEngineEvent

	// Server-originated.
	KindPlayerLoggedIn
	KindPlayerState
	KindPlayerExitMap
	KindEngineState
	KindEngineStats
	KindRemoteEngineEvents
	KindTick
	KindPong
	KindLoginError
)

// Frame is the outermost envelope carried over the transport.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// Encode cbor-encodes payload under kind into a Frame, ready to hand to
// the transport.
func Encode(kind Kind, payload any) (Frame, error) {
	data, err := cbor.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode wire payload kind %d: %w", kind, err)
	}
	return Frame{Kind: kind, Payload: data}, nil
}

// Marshal encodes a Frame itself for sending on the wire.
func Marshal(f Frame) ([]byte, error) {
	return cbor.Marshal(f)
}

// Unmarshal decodes bytes from the wire into a Frame.
func Unmarshal(data []byte) (Frame, error) {
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode wire frame: %w", err)
	}
	return f, nil
}

// DecodePayload decodes f.Payload into out, which must be a pointer to
// the struct registered for f.Kind.
func DecodePayload(f Frame, out any) error {
	if err := cbor.Unmarshal(f.Payload, out); err != nil {
		return fmt.Errorf("decode wire payload kind %d: %w", f.Kind, err)
	}
	return nil
}

// --- Client-originated payloads ---

// LoginPlayer is the first message a client sends on connecting: a
// session token (verified by mapserver/auth.go) and the entity id of the
// player's existing avatar, if rejoining.
type LoginPlayer struct {
	SessionToken    string
	RejoinEntityID  *ecs.ID
}

// Ping carries a client-chosen nonce the server echoes back in Pong, for
// round-trip latency measurement.
type Ping struct {
	Nonce uint64
}

// RequestEngineReload asks the server for a full EngineState bootstrap,
// e.g. after the client detects a step_hash mismatch (spec.md §4.7).
// EngineID identifies which engine instance the client was last told
// about, so the server can tell a stale reload request (from a client
// that already reloaded via another path) from a current one.
type RequestEngineReload struct {
	EngineID uuid.UUID
	Reason   string
}

// RemoteEngineEvent is a client-submitted input or action, destined for
// engine.IntegrateEvent on arrival (spec.md §4.4: it may target a step
// already in the past relative to the server's current step). EngineID
// must match the engine instance the client was assigned at its last
// EngineState bootstrap; a mismatch (the map reloaded since) is a
// protocol violation the server drops silently (spec.md §4.5 step 1,
// §7).
type RemoteEngineEvent struct {
	EngineID  uuid.UUID
	StepIndex uint64
	Kind      uint8 // mirrors event.EngineKind
	EntityID  ecs.ID
	Payload   []byte
}

// --- Server-originated payloads ---

// PlayerLoggedIn confirms a successful LoginPlayer and hands back the
// entity id assigned to (or reused for) the connecting player.
type PlayerLoggedIn struct {
	EntityID ecs.ID
}

// LoginError rejects a LoginPlayer attempt.
type LoginError struct {
	Code    string
	Message string
}

// PlayerState is a targeted full-state push for a single player's own
// entity, used on reconnect or resync for just their avatar.
type PlayerState struct {
	EntityID ecs.ID
	Kind     ecs.Kind
	Data     []byte
}

// PlayerExitMap notifies the client its player entity left this map
// (teleported to another map, disconnected, despawned).
type PlayerExitMap struct {
	EntityID ecs.ID
}

// EngineState is a full snapshot bootstrap, sent on initial connect or
// after a client-requested reload. EngineID is the map instance's
// engine id, which stays the same for the instance's lifetime; a later
// mismatch between this id and one carried on a subsequent frame tells
// the client its view of the map is stale and it must reload again,
// rather than attempting to integrate events against the wrong baseline.
type EngineState struct {
	EngineID       uuid.UUID
	PlayerEntityID ecs.ID
	StepIndex      uint64
	Entities       []EntitySnapshot
}

// EntitySnapshot is one entity's wire-encoded state within an
// EngineState or PlayerState payload.
type EntitySnapshot struct {
	ID   ecs.ID
	Kind ecs.Kind
	Data []byte
}

// EngineStats is the periodic health broadcast of spec.md §4.5/§4.7:
// the current step plus the hash of an earlier step, StepHashStep, for
// desync detection. DebugSnapshot can carry the full entity snapshot at
// StepHashStep so clients can diff on desync; mapserver's broadcastStats
// leaves it empty.
type EngineStats struct {
	EngineID     uuid.UUID
	StepIndex    uint64
	StepHashStep uint64
	StepHash     []byte
	DebugSnapshot []EntitySnapshot
}

// RemoteEngineEvents batches the event-deltas a map server broadcasts
// each tick so every client mirror can integrate them in lockstep.
// ExpectedStepIndex is the server's step index as of the tick that
// produced this batch (spec.md §4.5 step 5's "expected_step_index").
type RemoteEngineEvents struct {
	EngineID          uuid.UUID
	Events            []RemoteEngineEvent
	ExpectedStepIndex uint64
}

// Tick marks the advance of server wall-clock time to a new step index,
// independent of whether any entity actually changed.
type Tick struct {
	StepIndex uint64
}

// Pong echoes a Ping's nonce back to the client.
type Pong struct {
	Nonce uint64
}
