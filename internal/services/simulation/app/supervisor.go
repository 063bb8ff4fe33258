// Package app wires together the collaborators a running map server
// process needs — config, checkpoint storage, one engine.Engine and
// mapserver.Instance per map — and runs every map's tick loop
// concurrently, the way the teacher's internal/services/game/app
// bootstrap wires gRPC services and storage bundles together at
// process startup. golang.org/x/sync/errgroup drives the concurrent
// map loops here the same way it drives per-request fan-out work
// elsewhere in the teacher's stack.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chancehudson/keind-engine/internal/services/simulation/api/wire"
	"github.com/chancehudson/keind-engine/internal/services/simulation/config"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/checkpoint"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/demogame"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/ecs"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/engine"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/mapserver"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/spatial"
)

// Map is one running map's collaborators, grouped for Supervisor's
// own bookkeeping.
type Map struct {
	ID       uuid.UUID
	Engine   *engine.Engine
	Instance *mapserver.Instance
	codec    engine.EntityCodec
}

// Supervisor owns every running map instance in a single process and
// drives their tick loops concurrently until the process is asked to
// stop, persisting a checkpoint and snapshot for each map on the way
// out so the next process can warm-start instead of replaying from
// genesis.
type Supervisor struct {
	cfg   config.Config
	store checkpoint.Store

	mu   sync.Mutex
	maps map[uuid.UUID]*Map
}

// NewSupervisor builds a Supervisor around cfg and store. A nil store
// falls back to checkpoint.Noop, the same "no durability" default
// mapserver.NewInstance itself applies.
func NewSupervisor(cfg config.Config, store checkpoint.Store) *Supervisor {
	if store == nil {
		store = checkpoint.Noop{}
	}
	return &Supervisor{
		cfg:   cfg,
		store: store,
		maps:  make(map[uuid.UUID]*Map),
	}
}

// AddMap constructs a fresh demogame-backed engine for mapID and size,
// warm-starting it from the checkpoint store if one exists, and
// registers the Sync Controller instance that will drive it.
func (s *Supervisor) AddMap(ctx context.Context, mapID uuid.UUID, size spatial.IVec2) (*Map, error) {
	logic := demogame.NewLogic()
	eng := engine.New(mapID, size, logic.Registry, logic, s.cfg.TrailingStateLen)

	if cp, err := s.store.Get(ctx, mapID); err == nil {
		if snapshot, stepIndex, err := s.store.GetSnapshot(ctx, mapID); err == nil {
			entities, decodeErr := decodeSnapshot(logic.Codec(), snapshot)
			if decodeErr != nil {
				return nil, fmt.Errorf("decode snapshot for map %s: %w", mapID, decodeErr)
			}
			loadStep := stepIndex
			if cp.LastPersistedStep > loadStep {
				loadStep = cp.LastPersistedStep
			}
			eng.LoadSnapshot(loadStep, entities)
		}
	}

	instance := mapserver.NewInstance(
		eng,
		logic.Codec(),
		demogame.NewEventCodec(),
		s.store,
		s.cfg.ServerTickPeriod(),
		s.cfg.StepLength(),
		s.cfg.StatsBroadcastEveryNSteps(),
		0,
		s.cfg.CatchUpSkipThresholdSteps,
		s.cfg.CatchUpDoubleStepThresholdSteps,
		s.cfg.StepDelaySteps,
		s.cfg.HashCompareLagSteps(),
	)

	m := &Map{ID: mapID, Engine: eng, Instance: instance, codec: logic.Codec()}
	s.mu.Lock()
	s.maps[mapID] = m
	s.mu.Unlock()
	return m, nil
}

// Maps returns every currently registered map.
func (s *Supervisor) Maps() []*Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Map, 0, len(s.maps))
	for _, m := range s.maps {
		out = append(out, m)
	}
	return out
}

// Run drives every registered map's tick loop concurrently until ctx is
// canceled, then persists a checkpoint and snapshot for each before
// returning. One map's tick loop erroring cancels every other map's
// loop too, the same fail-together posture as the teacher's
// errgroup-driven request fan-out.
func (s *Supervisor) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	for _, m := range s.Maps() {
		m := m
		group.Go(func() error {
			return m.Instance.Run(gctx)
		})
	}

	runErr := group.Wait()
	if runErr != nil && ctx.Err() == nil {
		// A map's tick loop failed for a reason other than the caller
		// asking everything to stop; propagate it rather than treating
		// this like a graceful shutdown.
		return runErr
	}

	checkpointCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.checkpointAll(checkpointCtx); err != nil {
		return err
	}
	return nil
}

func (s *Supervisor) checkpointAll(ctx context.Context) error {
	for _, m := range s.Maps() {
		if err := s.checkpointOne(ctx, m); err != nil {
			return fmt.Errorf("checkpoint map %s: %w", m.ID, err)
		}
	}
	return nil
}

func (s *Supervisor) checkpointOne(ctx context.Context, m *Map) error {
	stepIndex := m.Engine.StepIndex()
	entities, ok := m.Engine.EntitiesAtStep(stepIndex)
	if !ok {
		return nil
	}
	snapshot, err := encodeSnapshot(m.codec, entities)
	if err != nil {
		return err
	}
	if err := s.store.SaveSnapshot(ctx, m.ID, stepIndex, snapshot); err != nil {
		return err
	}
	return s.store.Save(ctx, checkpoint.Checkpoint{MapID: m.ID, LastPersistedStep: stepIndex})
}

// encodeSnapshot/decodeSnapshot reuse wire.EntitySnapshot's cbor shape
// for checkpoint storage: an engine snapshot and an EngineState bootstrap
// payload are the same data (every live entity, kind-tagged and
// codec-encoded), so there is no reason to invent a second format.
func encodeSnapshot(codec engine.EntityCodec, entities map[ecs.ID]ecs.Entity) ([]byte, error) {
	snaps := make([]wire.EntitySnapshot, 0, len(entities))
	for id, ent := range entities {
		data, err := codec.EncodeEntity(ent)
		if err != nil {
			return nil, fmt.Errorf("encode entity %s: %w", id, err)
		}
		snaps = append(snaps, wire.EntitySnapshot{ID: id, Kind: ent.Kind(), Data: data})
	}
	out, err := cbor.Marshal(snaps)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return out, nil
}

func decodeSnapshot(codec engine.EntityCodec, data []byte) (map[ecs.ID]ecs.Entity, error) {
	var snaps []wire.EntitySnapshot
	if err := cbor.Unmarshal(data, &snaps); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	entities := make(map[ecs.ID]ecs.Entity, len(snaps))
	for _, snap := range snaps {
		ent, err := codec.DecodeEntity(snap.Kind, snap.Data)
		if err != nil {
			return nil, fmt.Errorf("decode entity %s: %w", snap.ID, err)
		}
		entities[snap.ID] = ent
	}
	return entities, nil
}
