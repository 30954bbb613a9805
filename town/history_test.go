package town

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUndoRedoRestoreExactStates(t *testing.T) {
	tw := newTestTown(t)
	seedTown(t, tw)

	before := tw.State()

	result := tw.Execute([]BatchOperation{
		{Op: "edit", Category: "buildings", ID: "b-1", Position: vecPtr(99, 0, 0)},
	}, true)
	if result.Status != BatchSuccess {
		t.Fatalf("mutation rejected: %+v", result)
	}
	after := tw.State()

	if _, err := tw.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if diff := cmp.Diff(before, tw.State()); diff != "" {
		t.Fatalf("undo did not restore pre-mutation state:\n%s", diff)
	}
	if !tw.History().CanRedo() {
		t.Fatal("redo stack empty after undo")
	}

	if _, err := tw.Redo(); err != nil {
		t.Fatalf("redo failed: %v", err)
	}
	if diff := cmp.Diff(after, tw.State()); diff != "" {
		t.Fatalf("redo did not restore post-mutation state:\n%s", diff)
	}
	if !tw.History().CanUndo() {
		t.Fatal("redo should re-append to history")
	}
}

func TestCanUndoCanRedoTrackStacks(t *testing.T) {
	tw := newTestTown(t)

	if tw.History().CanUndo() || tw.History().CanRedo() {
		t.Fatal("fresh town should have empty stacks")
	}

	seedTown(t, tw)
	if !tw.History().CanUndo() {
		t.Fatal("committed mutation not undoable")
	}
	if tw.History().CanRedo() {
		t.Fatal("redo stack should be empty before any undo")
	}

	if _, err := tw.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if tw.History().CanUndo() {
		t.Fatal("single entry should be consumed by undo")
	}
	if !tw.History().CanRedo() {
		t.Fatal("undo should feed the redo stack")
	}
}

func TestEmptyStackUndoRedoAreReportedNoOps(t *testing.T) {
	tw := newTestTown(t)

	if _, err := tw.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
	if _, err := tw.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("expected ErrNothingToRedo, got %v", err)
	}
}

func TestNewMutationClearsRedoStack(t *testing.T) {
	tw := newTestTown(t)
	seedTown(t, tw)

	if _, err := tw.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if !tw.History().CanRedo() {
		t.Fatal("redo stack should hold the undone batch")
	}

	result := tw.Execute([]BatchOperation{
		{Op: "create", Category: "props", Data: &SceneObject{ID: "p-1", Position: vecPtr(0, 0, 0)}},
	}, true)
	if result.Status != BatchSuccess {
		t.Fatalf("mutation rejected: %+v", result)
	}

	if tw.History().CanRedo() {
		t.Fatal("new mutation must clear the redo stack")
	}
}

func TestHistoryEvictsOldestPastCapacity(t *testing.T) {
	tw := newTestTown(t)

	for i := 0; i < maxHistorySize+1; i++ {
		result := tw.Execute([]BatchOperation{
			{Op: "create", Category: "props", Data: &SceneObject{ID: fmt.Sprintf("p-%d", i), Position: vecPtr(float64(i), 0, 0)}},
		}, true)
		if result.Status != BatchSuccess {
			t.Fatalf("mutation %d rejected: %+v", i, result)
		}
	}

	entries := tw.History().Entries(maxHistorySize + 1)
	if len(entries) != maxHistorySize {
		t.Fatalf("expected exactly %d entries, got %d", maxHistorySize, len(entries))
	}

	// Newest first: the very first committed batch must be the one evicted.
	oldest := entries[len(entries)-1]
	if len(oldest.After.Categories["props"]) != 2 {
		t.Fatalf("wrong entry evicted, oldest retained has %d props", len(oldest.After.Categories["props"]))
	}
}

func TestHistoryEntriesNewestFirstAndLimited(t *testing.T) {
	history := NewHistory()
	for i := 0; i < 5; i++ {
		history.AddEntry(fmt.Sprintf("op-%d", i), "", "", DefaultState(), DefaultState())
	}

	entries := history.Entries(3)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Operation != "op-4" || entries[2].Operation != "op-2" {
		t.Fatalf("wrong order: %s ... %s", entries[0].Operation, entries[2].Operation)
	}
}

func TestClearHistoryDropsBothStacks(t *testing.T) {
	tw := newTestTown(t)
	seedTown(t, tw)
	if _, err := tw.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}

	tw.ClearHistory()
	if tw.History().CanUndo() || tw.History().CanRedo() {
		t.Fatal("clear left entries behind")
	}
}
