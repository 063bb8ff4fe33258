package demogame

import (
	"errors"

	"github.com/fxamacker/cbor/v2"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/event"
	"github.com/chancehudson/keind-engine/internal/services/simulation/api/wire"
)

var errUnknownRemoteEventKind = errors.New("demogame: unknown remote event kind")

// remoteEventKind mirrors event.EngineKind on the wire: a uint8 tag plus a
// cbor payload, the same split EntityCodec uses for entity variants.
type remoteEventKind = event.EngineKind

// wireSpawnEntity/wireRemoveEntity/wireInput/wireSpawnSystem/
// wireRemoveSystem are the cbor payload shapes carried inside a
// wire.RemoteEngineEvent.Payload, one per event.EngineKind variant.
type wireSpawnEntity struct {
	EntityKind ecs.Kind
	EntityData []byte
}

type wireRemoveEntity struct {
	EntityID ecs.ID
}

type wireInput struct {
	EntityID ecs.ID
	Input    Input
}

type wireSpawnSystem struct {
	EntityID   ecs.ID
	SystemKind ecs.SystemKind
}

type wireRemoveSystem struct {
	EntityID   ecs.ID
	SystemKind ecs.SystemKind
}

// EventCodec implements mapserver.EventCodec for the demogame's Input
// type, and can also re-home the events the engine itself produced
// (SpawnEntity/RemoveEntity/SpawnSystem) into wire frames so a map
// server can broadcast them as event-deltas. Client-submitted frames
// are only ever meaningful as Input: a client proposing its own
// RemoveSystem by pointer identity makes no sense across a wire
// boundary (event.go's RemoveSystemPayload comment), so Decode rejects
// every other kind.
type EventCodec struct {
	codec entityCodec
}

// NewEventCodec builds a ready-to-use EventCodec.
func NewEventCodec() EventCodec { return EventCodec{} }

// EncodeRemoteEvent turns a server-side EngineEvent into its wire form,
// for broadcast to connected client mirrors.
func (c EventCodec) EncodeRemoteEvent(evt event.EngineEvent, stepIndex uint64) (wire.RemoteEngineEvent, error) {
	switch evt.Kind {
	case event.EngineKindSpawnEntity:
		ent := evt.SpawnEntity.Entity
		data, err := c.codec.EncodeEntity(ent)
		if err != nil {
			return wire.RemoteEngineEvent{}, err
		}
		payload, err := cbor.Marshal(wireSpawnEntity{EntityKind: ent.Kind(), EntityData: data})
		if err != nil {
			return wire.RemoteEngineEvent{}, err
		}
		return wire.RemoteEngineEvent{StepIndex: stepIndex, Kind: uint8(evt.Kind), EntityID: ent.Base().ID, Payload: payload}, nil

	case event.EngineKindRemoveEntity:
		payload, err := cbor.Marshal(wireRemoveEntity{EntityID: evt.RemoveEntity.EntityID})
		if err != nil {
			return wire.RemoteEngineEvent{}, err
		}
		return wire.RemoteEngineEvent{StepIndex: stepIndex, Kind: uint8(evt.Kind), EntityID: evt.RemoveEntity.EntityID, Payload: payload}, nil

	case event.EngineKindInput:
		in, _ := evt.Input.Input.(Input)
		payload, err := cbor.Marshal(wireInput{EntityID: evt.Input.EntityID, Input: in})
		if err != nil {
			return wire.RemoteEngineEvent{}, err
		}
		return wire.RemoteEngineEvent{StepIndex: stepIndex, Kind: uint8(evt.Kind), EntityID: evt.Input.EntityID, Payload: payload}, nil

	case event.EngineKindSpawnSystem:
		payload, err := cbor.Marshal(wireSpawnSystem{EntityID: evt.SpawnSystem.EntityID, SystemKind: evt.SpawnSystem.System.Kind()})
		if err != nil {
			return wire.RemoteEngineEvent{}, err
		}
		return wire.RemoteEngineEvent{StepIndex: stepIndex, Kind: uint8(evt.Kind), EntityID: evt.SpawnSystem.EntityID, Payload: payload}, nil

	case event.EngineKindRemoveSystem:
		payload, err := cbor.Marshal(wireRemoveSystem{EntityID: evt.RemoveSystem.EntityID, SystemKind: evt.RemoveSystem.System.Kind()})
		if err != nil {
			return wire.RemoteEngineEvent{}, err
		}
		return wire.RemoteEngineEvent{StepIndex: stepIndex, Kind: uint8(evt.Kind), EntityID: evt.RemoveSystem.EntityID, Payload: payload}, nil

	default:
		return wire.RemoteEngineEvent{}, errUnknownRemoteEventKind
	}
}

// DecodeRemoteEvent turns a client-submitted wire frame back into an
// EngineEvent. Only Input is accepted from a client: every other
// EngineKind is server-authoritative (spawns, removes, and system
// changes are decided by game logic, never proposed by a player).
func (c EventCodec) DecodeRemoteEvent(remote wire.RemoteEngineEvent) (event.EngineEvent, error) {
	if remoteEventKind(remote.Kind) != event.EngineKindInput {
		return event.EngineEvent{}, errUnknownRemoteEventKind
	}
	var w wireInput
	if err := cbor.Unmarshal(remote.Payload, &w); err != nil {
		return event.EngineEvent{}, err
	}
	if w.EntityID != remote.EntityID {
		return event.EngineEvent{}, errUnknownRemoteEventKind
	}
	return event.NewInput(w.EntityID, w.Input, true), nil
}

// DecodeBroadcastEvent decodes a server-originated event-delta: unlike
// DecodeRemoteEvent, it accepts the server-authoritative kinds as well
// as Input, so a client mirror can reproduce the spawns, removals and
// inputs the server's engine applied. SpawnSystem and RemoveSystem are
// rejected with an error: the wire carries only a SystemKind, and the
// pointer identity those events need cannot be rebuilt from it.
func (c EventCodec) DecodeBroadcastEvent(remote wire.RemoteEngineEvent) (event.EngineEvent, error) {
	kind := remoteEventKind(remote.Kind)
	switch kind {
	case event.EngineKindSpawnEntity:
		var w wireSpawnEntity
		if err := cbor.Unmarshal(remote.Payload, &w); err != nil {
			return event.EngineEvent{}, err
		}
		ent, err := c.codec.DecodeEntity(w.EntityKind, w.EntityData)
		if err != nil {
			return event.EngineEvent{}, err
		}
		evt := event.NewSpawnEntity(ent)
		evt.IsNondeterministic = true
		return evt, nil

	case event.EngineKindRemoveEntity:
		var w wireRemoveEntity
		if err := cbor.Unmarshal(remote.Payload, &w); err != nil {
			return event.EngineEvent{}, err
		}
		evt := event.NewRemoveEntity(w.EntityID)
		evt.IsNondeterministic = true
		return evt, nil

	case event.EngineKindInput:
		var w wireInput
		if err := cbor.Unmarshal(remote.Payload, &w); err != nil {
			return event.EngineEvent{}, err
		}
		return event.NewInput(w.EntityID, w.Input, true), nil

	case event.EngineKindSpawnSystem, event.EngineKindRemoveSystem:
		// A mirror cannot reconstruct the original System pointer from a
		// SystemKind alone, and this game's own entities only ever
		// attach systems at construction, so these never actually cross
		// the wire; the caller skips an event this rejects rather than
		// aborting the whole batch.
		return event.EngineEvent{}, errUnknownRemoteEventKind

	default:
		return event.EngineEvent{}, errUnknownRemoteEventKind
	}
}
