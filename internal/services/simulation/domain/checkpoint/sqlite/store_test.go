package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chancehudson/keind-engine/internal/services/simulation/domain/checkpoint"
)

func TestCheckpointRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir() + "/checkpoints.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	mapID := uuid.New()
	if _, err := store.Get(context.Background(), mapID); err != checkpoint.ErrNotFound {
		t.Fatalf("got err %v, want ErrNotFound", err)
	}

	if err := store.Save(context.Background(), checkpoint.Checkpoint{
		MapID:               mapID,
		LastPersistedStep:   120,
		LastGameEventCursor: 7,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(context.Background(), mapID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastPersistedStep != 120 || got.LastGameEventCursor != 7 {
		t.Fatalf("got %+v, want step 120 cursor 7", got)
	}
	if got.UpdatedAt.IsZero() || got.UpdatedAt.After(time.Now().UTC()) {
		t.Fatalf("got implausible UpdatedAt %v", got.UpdatedAt)
	}

	if err := store.Save(context.Background(), checkpoint.Checkpoint{
		MapID:               mapID,
		LastPersistedStep:   240,
		LastGameEventCursor: 9,
	}); err != nil {
		t.Fatalf("save update: %v", err)
	}
	got, err = store.Get(context.Background(), mapID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.LastPersistedStep != 240 {
		t.Fatalf("got step %d, want 240 after update", got.LastPersistedStep)
	}
}

func TestCheckpointSaveRequiresMapID(t *testing.T) {
	store, err := Open(t.TempDir() + "/checkpoints.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := store.Save(context.Background(), checkpoint.Checkpoint{}); err != checkpoint.ErrMapIDRequired {
		t.Fatalf("got err %v, want ErrMapIDRequired", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir() + "/checkpoints.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	mapID := uuid.New()
	if _, _, err := store.GetSnapshot(context.Background(), mapID); err != checkpoint.ErrNotFound {
		t.Fatalf("got err %v, want ErrNotFound", err)
	}

	snapshot := []byte{1, 2, 3, 4}
	if err := store.SaveSnapshot(context.Background(), mapID, 42, snapshot); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	data, stepIndex, err := store.GetSnapshot(context.Background(), mapID)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if stepIndex != 42 || string(data) != string(snapshot) {
		t.Fatalf("got step %d data %v, want 42 %v", stepIndex, data, snapshot)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error opening store with empty path")
	}
}
