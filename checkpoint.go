package flowengine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is a serialized snapshot of a suspended execution, per
// SPEC_FULL.md §3/§4.8: enough to restart the flow from where it
// paused. ConfigurationReference is opaque to the core — it is a string
// the host uses to look its own configuration object back up.
type Checkpoint struct {
	CheckpointID            string
	ConfigurationReference  string
	SerializedContext       map[string]any
	CreatedAt               time.Time
}

// ToMap renders the checkpoint as the four-key JSON object described in
// SPEC_FULL.md §6 ("Persisted state layout").
func (c *Checkpoint) ToMap() map[string]any {
	return map[string]any{
		"checkpoint_id":    c.CheckpointID,
		"config_reference": c.ConfigurationReference,
		"created_at":       c.CreatedAt.Format(time.RFC3339Nano),
		"context":          c.SerializedContext,
	}
}

// CheckpointFromMap is the inverse of ToMap.
func CheckpointFromMap(m map[string]any) *Checkpoint {
	c := &Checkpoint{}
	c.CheckpointID, _ = m["checkpoint_id"].(string)
	c.ConfigurationReference, _ = m["config_reference"].(string)
	if v, ok := m["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			c.CreatedAt = t
		}
	}
	if ctx, ok := m["context"].(map[string]any); ok {
		c.SerializedContext = ctx
	}
	return c
}

// CheckpointStore is the key-addressable persistence contract of
// SPEC_FULL.md §4.8: save, load, delete. The default implementation is
// an in-process map; a Postgres-backed second implementation lives in
// components/postgres.
type CheckpointStore interface {
	Save(snapshot *Checkpoint) (string, error)
	Load(id string) (*Checkpoint, error)
	Delete(id string) error
}

// InMemoryCheckpointStore is the default CheckpointStore, a
// mutex-guarded map — the reference implementation's in-memory store
// relies on ordinary dict thread-safety discipline; Go requires an
// explicit lock for the same guarantee across concurrent flows.
type InMemoryCheckpointStore struct {
	mu    sync.RWMutex
	items map[string]*Checkpoint
}

// NewInMemoryCheckpointStore constructs an empty store.
func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{items: make(map[string]*Checkpoint)}
}

func (s *InMemoryCheckpointStore) Save(snapshot *Checkpoint) (string, error) {
	if snapshot.CheckpointID == "" {
		snapshot.CheckpointID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[snapshot.CheckpointID] = snapshot
	return snapshot.CheckpointID, nil
}

func (s *InMemoryCheckpointStore) Load(id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.items[id]
	if !ok {
		return nil, &CheckpointNotFoundError{CheckpointID: id}
	}
	return cp, nil
}

func (s *InMemoryCheckpointStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}
