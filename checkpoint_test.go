package flowengine

import "testing"

func TestInMemoryCheckpointStoreSaveAssignsIDWhenEmpty(t *testing.T) {
	store := NewInMemoryCheckpointStore()
	id, err := store.Save(&Checkpoint{ConfigurationReference: "flow-a", SerializedContext: map[string]any{}})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated checkpoint id")
	}

	loaded, err := store.Load(id)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ConfigurationReference != "flow-a" {
		t.Errorf("unexpected config reference: %q", loaded.ConfigurationReference)
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be stamped")
	}
}

func TestInMemoryCheckpointStoreSavePreservesGivenID(t *testing.T) {
	store := NewInMemoryCheckpointStore()
	id, err := store.Save(&Checkpoint{CheckpointID: "fixed-id", SerializedContext: map[string]any{}})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id != "fixed-id" {
		t.Errorf("expected id to be preserved, got %q", id)
	}
}

func TestInMemoryCheckpointStoreLoadMissingReturnsNotFound(t *testing.T) {
	store := NewInMemoryCheckpointStore()
	_, err := store.Load("missing")
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*CheckpointNotFoundError); !ok {
		t.Fatalf("expected *CheckpointNotFoundError, got %T", err)
	}
}

func TestInMemoryCheckpointStoreDeleteRemovesEntry(t *testing.T) {
	store := NewInMemoryCheckpointStore()
	id, _ := store.Save(&Checkpoint{SerializedContext: map[string]any{}})

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(id); err == nil {
		t.Error("expected Load to fail after Delete")
	}
}

func TestCheckpointToMapFromMapRoundTrip(t *testing.T) {
	cp := &Checkpoint{
		CheckpointID:           "cp-1",
		ConfigurationReference: "flow-a",
		SerializedContext:      map[string]any{"data": map[string]any{"x": 1.0}},
	}
	restored := CheckpointFromMap(cp.ToMap())

	if restored.CheckpointID != cp.CheckpointID {
		t.Errorf("checkpoint id mismatch: %q vs %q", restored.CheckpointID, cp.CheckpointID)
	}
	if restored.ConfigurationReference != cp.ConfigurationReference {
		t.Error("config reference mismatch")
	}
}
