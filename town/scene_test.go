package town

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func strPtr(s string) *string { return &s }

func vecPtr(x, y, z float64) *Vector3 { return &Vector3{X: x, Y: y, Z: z} }

func TestSceneObjectJSONRoundTrip(t *testing.T) {
	doc := []byte(`{"id":"b-1","position":{"x":1,"y":2,"z":3},"rotation":{"x":0,"y":90,"z":0},"driver":"alice","color":"red","tags":["a","b"]}`)

	var obj SceneObject
	if err := json.Unmarshal(doc, &obj); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if obj.ID != "b-1" {
		t.Fatalf("expected id b-1, got %q", obj.ID)
	}
	if obj.Position == nil || obj.Position.Z != 3 {
		t.Fatalf("position not decoded: %+v", obj.Position)
	}
	if obj.Scale != nil {
		t.Fatalf("absent scale should stay nil, got %+v", obj.Scale)
	}
	if obj.Driver == nil || *obj.Driver != "alice" {
		t.Fatalf("driver not decoded: %v", obj.Driver)
	}
	if obj.Extra["color"] != "red" {
		t.Fatalf("extension key lost: %v", obj.Extra)
	}

	encoded, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back SceneObject
	if err := json.Unmarshal(encoded, &back); err != nil {
		t.Fatalf("re-unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(obj, back); diff != "" {
		t.Fatalf("round trip changed the object (-want +got):\n%s", diff)
	}
}

func TestSceneStateJSONRoundTrip(t *testing.T) {
	doc := []byte(`{"townName":"Riverton","buildings":[{"id":"b-1","position":{"x":1,"y":0,"z":0}}],"roads":[],"vehicles":[{"id":"v-1","driver":null,"color":"blue"}]}`)

	var state SceneState
	if err := json.Unmarshal(doc, &state); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if state.TownName != "Riverton" {
		t.Fatalf("expected town name Riverton, got %q", state.TownName)
	}
	if len(state.Categories) != 3 {
		t.Fatalf("expected 3 categories, got %v", state.CategoryNames())
	}
	if len(state.Categories["roads"]) != 0 {
		t.Fatalf("roads should be empty")
	}

	encoded, err := json.Marshal(&state)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back SceneState
	if err := json.Unmarshal(encoded, &back); err != nil {
		t.Fatalf("re-unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(&state, &back); diff != "" {
		t.Fatalf("round trip changed the state (-want +got):\n%s", diff)
	}
}

func TestSceneStateCloneIsIndependent(t *testing.T) {
	state := DefaultState()
	state.TownName = "Original"
	state.Categories["buildings"] = []SceneObject{{
		ID:       "b-1",
		Position: vecPtr(1, 2, 3),
		Extra:    map[string]any{"color": "red"},
	}}

	clone := state.Clone()
	clone.TownName = "Changed"
	clone.Categories["buildings"][0].Position.X = 99
	clone.Categories["buildings"][0].Extra["color"] = "green"
	clone.Categories["buildings"] = append(clone.Categories["buildings"], SceneObject{ID: "b-2"})

	if state.TownName != "Original" {
		t.Fatal("clone shares the town name")
	}
	if state.Categories["buildings"][0].Position.X != 1 {
		t.Fatal("clone shares position data")
	}
	if state.Categories["buildings"][0].Extra["color"] != "red" {
		t.Fatal("clone shares extension data")
	}
	if len(state.Categories["buildings"]) != 1 {
		t.Fatal("clone shares the object list")
	}
}

func TestVector3Distance(t *testing.T) {
	a := Vector3{X: 0, Y: 0, Z: 0}
	b := Vector3{X: 3, Y: 4, Z: 0}
	if d := a.DistanceTo(b); d != 5 {
		t.Fatalf("expected distance 5, got %g", d)
	}
}
