package checkpoint

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemory_SaveAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	mapID := uuid.New()

	if _, err := m.Get(ctx, mapID); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	if err := m.Save(ctx, Checkpoint{MapID: mapID, LastPersistedStep: 42}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cp, err := m.Get(ctx, mapID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cp.LastPersistedStep != 42 {
		t.Fatalf("got LastPersistedStep %d, want 42", cp.LastPersistedStep)
	}
}

func TestMemory_SnapshotRoundTripIsACopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	mapID := uuid.New()

	data := []byte{1, 2, 3}
	if err := m.SaveSnapshot(ctx, mapID, 7, data); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	data[0] = 99 // mutate caller's slice after saving

	got, step, err := m.GetSnapshot(ctx, mapID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if step != 7 {
		t.Fatalf("got step %d, want 7", step)
	}
	if got[0] != 1 {
		t.Fatalf("snapshot store aliased caller's slice: got %v", got)
	}
}

func TestMemory_SaveRequiresMapID(t *testing.T) {
	m := NewMemory()
	if err := m.Save(context.Background(), Checkpoint{}); err != ErrMapIDRequired {
		t.Fatalf("got %v, want ErrMapIDRequired", err)
	}
}

func TestNoop_AlwaysMisses(t *testing.T) {
	var n Noop
	ctx := context.Background()
	if _, err := n.Get(ctx, uuid.New()); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := n.Save(ctx, Checkpoint{MapID: uuid.New()}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, _, err := n.GetSnapshot(ctx, uuid.New()); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
