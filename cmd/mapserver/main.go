// Command mapserver runs one or more map Sync Controllers in a single
// process, following the teacher's cmd/game/main.go shape: flag parsing,
// a signal-derived context, and a thin call into the real app package
// that does the actual wiring.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	entrypoint "github.com/chancehudson/keind-engine/internal/platform/cmd"
	"github.com/chancehudson/keind-engine/internal/services/simulation/app"
	simconfig "github.com/chancehudson/keind-engine/internal/services/simulation/config"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/checkpoint"
	checkpointsqlite "github.com/chancehudson/keind-engine/internal/services/simulation/domain/checkpoint/sqlite"
	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/spatial"
)

var (
	mapIDFlag        = flag.String("map-id", "", "map instance id (a random id is generated if empty)")
	width            = flag.Int("width", 10000, "map width in pixels")
	height           = flag.Int("height", 10000, "map height in pixels")
	checkpointDBPath = flag.String("checkpoint-db", "", "path to a sqlite checkpoint database (checkpoints are not persisted if empty)")
)

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMapServer, run); err != nil {
		log.Fatalf("mapserver: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := simconfig.Parse()
	if err != nil {
		return err
	}
	if *width > int(cfg.MaxMapDimension) || *height > int(cfg.MaxMapDimension) {
		return fmt.Errorf("map size %dx%d exceeds the maximum dimension %d", *width, *height, cfg.MaxMapDimension)
	}

	store, closeStore, err := openCheckpointStore(*checkpointDBPath)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	mapID := uuid.New()
	if *mapIDFlag != "" {
		parsed, err := uuid.Parse(*mapIDFlag)
		if err != nil {
			return err
		}
		mapID = parsed
	}

	supervisor := app.NewSupervisor(cfg, store)
	if _, err := supervisor.AddMap(ctx, mapID, spatial.IVec2{X: int32(*width), Y: int32(*height)}); err != nil {
		return err
	}

	log.Printf("mapserver: running map %s (%dx%d, %d steps/s)", mapID, *width, *height, cfg.StepsPerSecond)
	return supervisor.Run(ctx)
}

func openCheckpointStore(path string) (checkpoint.Store, func(), error) {
	if path == "" {
		return checkpoint.Noop{}, nil, nil
	}
	store, err := checkpointsqlite.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}
