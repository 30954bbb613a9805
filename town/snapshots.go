package town

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxSnapshots bounds the number of retained save points.
const maxSnapshots = 50

// SnapshotMeta describes one named save point. The state itself is stored
// separately, keyed by ID.
type SnapshotMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Size        int       `json:"size"`
}

// Snapshots manages user-named full copies of the scene, outside the
// undo/redo stacks. Snapshots persist through the backing; like the Store,
// a dead backing degrades to the in-memory copies.
type Snapshots struct {
	mu      sync.Mutex
	backing Backing
	metas   []SnapshotMeta // oldest first
	data    map[string]*SceneState
	loaded  bool
}

func NewSnapshots(backing Backing) *Snapshots {
	return &Snapshots{
		backing: backing,
		data:    make(map[string]*SceneState),
	}
}

// load pulls the persisted metadata list once. Called under mu.
func (s *Snapshots) load() {
	if s.loaded {
		return
	}
	s.loaded = true

	raw, err := s.backing.Get(context.Background(), snapshotsKey)
	if err != nil {
		log.Printf("backing snapshot list get failed, starting empty: %v", err)
		return
	}
	if len(raw) == 0 {
		return
	}
	var metas []SnapshotMeta
	if err := json.Unmarshal(raw, &metas); err != nil {
		log.Printf("backing snapshot list unreadable, starting empty: %v", err)
		return
	}
	s.metas = metas
}

// persist writes the metadata list back. Called under mu.
func (s *Snapshots) persist() {
	raw, err := json.Marshal(s.metas)
	if err != nil {
		log.Printf("snapshot list marshal failed: %v", err)
		return
	}
	if err := s.backing.Set(context.Background(), snapshotsKey, raw); err != nil {
		log.Printf("backing snapshot list set failed, kept in memory only: %v", err)
	}
}

// Create stores a new snapshot of state and returns its metadata. The
// oldest snapshot is evicted past capacity.
func (s *Snapshots) Create(state *SceneState, name, description string) SnapshotMeta {
	meta := SnapshotMeta{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Timestamp:   time.Now(),
		Size:        state.ObjectCount(),
	}
	if meta.Name == "" {
		meta.Name = fmt.Sprintf("Snapshot %s", meta.Timestamp.Format("2006-01-02 15:04:05"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	s.data[meta.ID] = state.Clone()
	s.persistState(meta.ID, state)

	s.metas = append(s.metas, meta)
	if len(s.metas) > maxSnapshots {
		evicted := s.metas[0]
		s.metas = append(s.metas[:0], s.metas[1:]...)
		delete(s.data, evicted.ID)
		s.tombstone(evicted.ID)
	}
	s.persist()

	return meta
}

func (s *Snapshots) persistState(id string, state *SceneState) {
	raw, err := json.Marshal(state)
	if err != nil {
		log.Printf("snapshot %s marshal failed: %v", id, err)
		return
	}
	if err := s.backing.Set(context.Background(), snapshotDataPrefix+id, raw); err != nil {
		log.Printf("backing snapshot set failed, %s kept in memory only: %v", id, err)
	}
}

// tombstone clears a snapshot blob. The backing contract has no delete, so
// an empty value stands in for one.
func (s *Snapshots) tombstone(id string) {
	if err := s.backing.Set(context.Background(), snapshotDataPrefix+id, nil); err != nil {
		log.Printf("backing snapshot clear failed for %s: %v", id, err)
	}
}

// List returns snapshot metadata, newest first.
func (s *Snapshots) List() []SnapshotMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	metas := make([]SnapshotMeta, 0, len(s.metas))
	for i := len(s.metas) - 1; i >= 0; i-- {
		metas = append(metas, s.metas[i])
	}
	return metas
}

// Meta returns metadata for one snapshot.
func (s *Snapshots) Meta(id string) (SnapshotMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	for _, meta := range s.metas {
		if meta.ID == id {
			return meta, true
		}
	}
	return SnapshotMeta{}, false
}

// Get returns the stored state for one snapshot.
func (s *Snapshots) Get(id string) (*SceneState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	raw, err := s.backing.Get(context.Background(), snapshotDataPrefix+id)
	switch {
	case err != nil:
		log.Printf("backing snapshot get failed, trying memory: %v", err)
	case len(raw) > 0:
		var state SceneState
		if uerr := json.Unmarshal(raw, &state); uerr != nil {
			log.Printf("backing snapshot %s unreadable, trying memory: %v", id, uerr)
		} else {
			return state.Clone(), true
		}
	}

	if state, ok := s.data[id]; ok {
		return state.Clone(), true
	}
	return nil, false
}

// Delete removes a snapshot, reporting whether it existed.
func (s *Snapshots) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	found := false
	kept := s.metas[:0]
	for _, meta := range s.metas {
		if meta.ID == id {
			found = true
			continue
		}
		kept = append(kept, meta)
	}
	if !found {
		return false
	}
	s.metas = kept
	delete(s.data, id)
	s.tombstone(id)
	s.persist()
	return true
}
