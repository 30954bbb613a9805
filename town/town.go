package town

import (
	"errors"
	"fmt"
	"sync"
)

// Reported no-op and failure conditions.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Town is the synchronization engine: it owns the store, history, snapshots,
// presence, and the broker, and serializes every get-mutate-set cycle behind
// one mutex so concurrent editors cannot interleave partial writes.
type Town struct {
	mu        sync.Mutex
	store     *Store
	history   *History
	snapshots *Snapshots
	presence  *Presence
	broker    *Broker
	query     *Query
}

func New(backing Backing) *Town {
	store := NewStore(backing)
	presence := NewPresence()
	return &Town{
		store:     store,
		history:   NewHistory(),
		snapshots: NewSnapshots(backing),
		presence:  presence,
		broker:    NewBroker(backing, store, presence),
		query:     NewQuery(store),
	}
}

func (t *Town) Store() *Store       { return t.store }
func (t *Town) History() *History   { return t.history }
func (t *Town) Presence() *Presence { return t.presence }
func (t *Town) Broker() *Broker     { return t.broker }
func (t *Town) Query() *Query       { return t.query }

// Close stops the broker and its backing subscription.
func (t *Town) Close() {
	t.broker.Close()
}

// State returns a deep copy of the current scene.
func (t *Town) State() *SceneState {
	return t.store.Get()
}

// Execute applies a batch of operations atomically. All operations run
// against a working copy; if any fails the copy is discarded and the batch
// is rejected with zero changes applied. On full success the copy is
// committed, one history entry records the transition, and a full-state
// event goes out.
func (t *Town) Execute(ops []BatchOperation, validate bool) BatchResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	original := t.store.Get()
	working := original.Clone()

	results, successful, failed := applyBatch(working, ops, validate)
	if failed > 0 {
		return BatchResult{
			Status:     BatchRejected,
			Results:    results,
			Successful: successful,
			Failed:     failed,
		}
	}

	t.store.Set(working)
	t.history.AddEntry("batch", "", "", original, working)
	t.broker.Publish(FullEvent(working))

	return BatchResult{
		Status:     BatchSuccess,
		Results:    results,
		Successful: successful,
		Failed:     failed,
	}
}

// Undo restores the state before the most recent committed mutation and
// parks the entry on the redo stack. An empty history is a reported no-op.
func (t *Town) Undo() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.history.PopLast()
	if !ok {
		return "", ErrNothingToUndo
	}
	if entry.Before == nil {
		return "", fmt.Errorf("cannot undo %s: no previous state", entry.Operation)
	}

	t.store.Set(entry.Before)
	t.history.PushRedo(entry)
	t.broker.Publish(FullEvent(entry.Before))

	return fmt.Sprintf("undid %s operation", entry.Operation), nil
}

// Redo re-applies the most recently undone mutation, re-appending it to
// history as a fresh entry.
func (t *Town) Redo() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.history.PopRedo()
	if !ok {
		return "", ErrNothingToRedo
	}
	if entry.After == nil {
		return "", fmt.Errorf("cannot redo %s: no after state", entry.Operation)
	}

	t.store.Set(entry.After)
	t.history.AddEntry(entry.Operation, entry.Category, entry.ObjectID, entry.Before, entry.After)
	t.broker.Publish(FullEvent(entry.After))

	return fmt.Sprintf("redid %s operation", entry.Operation), nil
}

// ClearHistory drops the undo and redo stacks.
func (t *Town) ClearHistory() {
	t.history.Clear()
}

// SetTownName renames the town. Name changes broadcast their own event type
// and are not recorded in history.
func (t *Town) SetTownName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.store.Get()
	state.TownName = name
	t.store.Set(state)
	t.broker.Publish(Event{Type: EventName, TownName: name})
}

// SetDriver assigns (or clears) the driver of one object.
func (t *Town) SetDriver(category, id string, driver *string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.store.Get()
	objs := state.Categories[category]
	for i := range objs {
		if objs[i].ID != id {
			continue
		}
		objs[i].Driver = driver
		t.store.Set(state)
		t.broker.Publish(Event{Type: EventDriver, Category: category, ID: id, Driver: driver})
		return nil
	}
	return fmt.Errorf("object %s in %s: %w", id, category, ErrNotFound)
}

// UpdateObject merges data into one object and broadcasts a granular edit
// event instead of a full sync. The change is undoable like any commit.
func (t *Town) UpdateObject(category, id string, data *SceneObject) (*SceneObject, error) {
	if category == "" || id == "" {
		return nil, fmt.Errorf("missing category or id: %w", ErrValidation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	original := t.store.Get()
	working := original.Clone()

	result := applyUpdate(working, BatchOperation{Op: "update", Category: category, ID: id, Data: data})
	if !result.Success {
		return nil, fmt.Errorf("%s: %w", result.Message, ErrNotFound)
	}

	t.store.Set(working)
	t.history.AddEntry("edit", category, id, original, working)

	obj := findObject(working, category, id)
	t.broker.Publish(Event{Type: EventEdit, Category: category, ID: id, Data: obj})
	return obj, nil
}

// DeleteObject removes one object and broadcasts a granular delete event.
func (t *Town) DeleteObject(category, id string) error {
	if category == "" || id == "" {
		return fmt.Errorf("missing category or id: %w", ErrValidation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	original := t.store.Get()
	working := original.Clone()

	result := applyDelete(working, BatchOperation{Op: "delete", Category: category, ID: id})
	if !result.Success {
		return fmt.Errorf("%s: %w", result.Message, ErrNotFound)
	}

	t.store.Set(working)
	t.history.AddEntry("delete", category, id, original, working)
	t.broker.Publish(Event{Type: EventDelete, Category: category, ID: id})
	return nil
}

func findObject(state *SceneState, category, id string) *SceneObject {
	for i := range state.Categories[category] {
		if state.Categories[category][i].ID == id {
			obj := state.Categories[category][i].Clone()
			return &obj
		}
	}
	return nil
}

// ReplaceState swaps in a whole new scene, e.g. from a loaded file.
func (t *Town) ReplaceState(state *SceneState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store.Set(state)
	t.broker.Publish(FullEvent(state))
}

// CreateSnapshot saves the current scene as a named save point.
func (t *Town) CreateSnapshot(name, description string) SnapshotMeta {
	return t.snapshots.Create(t.store.Get(), name, description)
}

// ListSnapshots returns snapshot metadata, newest first.
func (t *Town) ListSnapshots() []SnapshotMeta {
	return t.snapshots.List()
}

// GetSnapshot returns the stored state of one snapshot.
func (t *Town) GetSnapshot(id string) (*SceneState, bool) {
	return t.snapshots.Get(id)
}

// SnapshotMeta returns metadata for one snapshot.
func (t *Town) SnapshotMeta(id string) (SnapshotMeta, bool) {
	return t.snapshots.Meta(id)
}

// RestoreSnapshot replaces the scene with a saved snapshot and broadcasts
// the new state.
func (t *Town) RestoreSnapshot(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.snapshots.Get(id)
	if !ok {
		return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	t.store.Set(state)
	t.broker.Publish(FullEvent(state))
	return nil
}

// DeleteSnapshot removes a snapshot, reporting whether it existed.
func (t *Town) DeleteSnapshot(id string) bool {
	return t.snapshots.Delete(id)
}
