package town

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxHistorySize bounds both the undo and redo stacks. Oldest entries are
// evicted silently on overflow.
const maxHistorySize = 100

// HistoryEntry captures one committed mutation as a pair of full-state
// copies, enough to undo or redo it without replaying operations.
type HistoryEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Operation string      `json:"operation"`
	Category  string      `json:"category,omitempty"`
	ObjectID  string      `json:"object_id,omitempty"`
	Before    *SceneState `json:"before_state"`
	After     *SceneState `json:"after_state"`
}

func (e HistoryEntry) clone() HistoryEntry {
	c := e
	if e.Before != nil {
		c.Before = e.Before.Clone()
	}
	if e.After != nil {
		c.After = e.After.Clone()
	}
	return c
}

// History keeps the bounded undo and redo stacks. It only moves entries
// around; restoring states and broadcasting is Town's job.
type History struct {
	mu   sync.Mutex
	undo []HistoryEntry
	redo []HistoryEntry
}

func NewHistory() *History {
	return &History{}
}

// AddEntry records a committed mutation and clears the redo stack, keeping
// history linear.
func (h *History) AddEntry(operation, category, objectID string, before, after *SceneState) string {
	entry := HistoryEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Operation: operation,
		Category:  category,
		ObjectID:  objectID,
	}
	if before != nil {
		entry.Before = before.Clone()
	}
	if after != nil {
		entry.After = after.Clone()
	}

	h.mu.Lock()
	h.undo = appendBounded(h.undo, entry)
	h.redo = nil
	h.mu.Unlock()

	return entry.ID
}

// Entries returns up to limit history entries, newest first.
func (h *History) Entries(limit int) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.undo)
	if limit > 0 && limit < n {
		n = limit
	}
	entries := make([]HistoryEntry, 0, n)
	for i := len(h.undo) - 1; i >= len(h.undo)-n; i-- {
		entries = append(entries, h.undo[i].clone())
	}
	return entries
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// PopLast removes and returns the newest history entry.
func (h *History) PopLast() (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undo) == 0 {
		return HistoryEntry{}, false
	}
	entry := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	return entry, true
}

// PushRedo parks an undone entry on the redo stack.
func (h *History) PushRedo(entry HistoryEntry) {
	h.mu.Lock()
	h.redo = appendBounded(h.redo, entry)
	h.mu.Unlock()
}

// PopRedo removes and returns the newest redo entry.
func (h *History) PopRedo() (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.redo) == 0 {
		return HistoryEntry{}, false
	}
	entry := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	return entry, true
}

// Clear drops both stacks.
func (h *History) Clear() {
	h.mu.Lock()
	h.undo = nil
	h.redo = nil
	h.mu.Unlock()
}

func appendBounded(stack []HistoryEntry, entry HistoryEntry) []HistoryEntry {
	stack = append(stack, entry)
	if len(stack) > maxHistorySize {
		stack = append(stack[:0], stack[len(stack)-maxHistorySize:]...)
	}
	return stack
}
