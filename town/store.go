package town

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Redis key and channel names shared with other processes.
const (
	stateKey           = "town_data"
	eventsChannel      = "town_events"
	snapshotsKey       = "town_snapshots"
	snapshotDataPrefix = "town_snapshot:"
)

// Backing is the durable store the engine persists through. Get returns
// (nil, nil) on a missing key. Subscribe returns a receive channel and a
// cancel func that releases the subscription. Any provider is
// interchangeable; when none is reachable the engine degrades to in-process
// storage and keeps working.
type Backing interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func())
}

// MemoryBacking is the in-process fallback provider. It never fails.
type MemoryBacking struct {
	mu   sync.Mutex
	data map[string][]byte
	subs map[string][]chan []byte
}

func NewMemoryBacking() *MemoryBacking {
	return &MemoryBacking{
		data: make(map[string][]byte),
		subs: make(map[string][]chan []byte),
	}
}

func (m *MemoryBacking) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, nil
}

func (m *MemoryBacking) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[key] = cp
	m.mu.Unlock()
	return nil
}

// Publish sends while holding the mutex so a concurrent cancel cannot close
// a channel mid-send. Sends never block; a subscriber that is not draining
// has the payload dropped instead of stalling the publisher.
func (m *MemoryBacking) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (m *MemoryBacking) Subscribe(_ context.Context, channel string) (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()

	// Closes under the same mutex Publish sends under, and only while the
	// channel is still registered, so repeat cancels are no-ops.
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[channel]
		for i, s := range subs {
			if s == ch {
				m.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Store holds the canonical scene state. Reads go to the backing first so
// multiple processes see each other's writes; every read and write also
// maintains an in-memory copy so a dead backing degrades silently instead of
// failing the caller. Set is last-writer-wins; multi-step read-modify-write
// sequences are serialized by Town, not here.
type Store struct {
	mu      sync.Mutex
	backing Backing
	state   *SceneState
}

func NewStore(backing Backing) *Store {
	return &Store{
		backing: backing,
		state:   DefaultState(),
	}
}

// Get returns a deep copy of the current state.
func (s *Store) Get() *SceneState {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.backing.Get(context.Background(), stateKey)
	if err != nil {
		log.Printf("backing get failed, using in-memory state: %v", err)
		return s.state.Clone()
	}
	if raw == nil {
		return s.state.Clone()
	}

	var state SceneState
	if err := json.Unmarshal(raw, &state); err != nil {
		log.Printf("backing returned unreadable state, using in-memory state: %v", err)
		return s.state.Clone()
	}
	s.state = &state
	return s.state.Clone()
}

// Set replaces the canonical state wholesale and persists it. Backing
// failures are logged and swallowed; the in-memory copy always wins through.
func (s *Store) Set(state *SceneState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state.Clone()

	raw, err := json.Marshal(s.state)
	if err != nil {
		log.Printf("state marshal failed, saved to memory only: %v", err)
		return
	}
	if err := s.backing.Set(context.Background(), stateKey, raw); err != nil {
		log.Printf("backing set failed, state saved to memory only: %v", err)
	}
}
