package town

import (
	"strings"
	"testing"
)

func describeFixture(t *testing.T) *Query {
	t.Helper()
	store := NewStore(NewMemoryBacking())
	state := DefaultState()
	state.TownName = "Riverton"
	state.Categories["buildings"] = []SceneObject{
		{ID: "b-1", Position: vecPtr(0, 0, 0), Extra: map[string]any{"model": "house.glb"}},
		{ID: "b-2", Position: vecPtr(10, 0, 4), Extra: map[string]any{"model": "house.glb"}},
		{ID: "b-3", Position: vecPtr(5, 2, 8), Extra: map[string]any{"model": "town_hall.glb"}},
	}
	state.Categories["vehicles"] = []SceneObject{
		{ID: "v-1", Position: vecPtr(1, 0, 1), Driver: strPtr("alice"), Extra: map[string]any{"model": "taxi.glb"}},
		{ID: "v-2", Position: vecPtr(2, 0, 2)},
	}
	store.Set(state)
	return NewQuery(store)
}

func TestDescribeAggregatesCategories(t *testing.T) {
	q := describeFixture(t)

	d := q.Describe()
	if d.TownName != "Riverton" || d.TotalObjects != 5 {
		t.Fatalf("wrong header: %q, %d objects", d.TownName, d.TotalObjects)
	}

	buildings := d.Categories["buildings"]
	if buildings.Count != 3 || buildings.Models["house.glb"] != 2 || buildings.Models["town_hall.glb"] != 1 {
		t.Fatalf("wrong building breakdown: %+v", buildings)
	}

	vehicles := d.Categories["vehicles"]
	if vehicles.Count != 2 || vehicles.DriverCount != 1 || vehicles.Models["unknown"] != 1 {
		t.Fatalf("wrong vehicle breakdown: %+v", vehicles)
	}
}

func TestDescribeComputesSceneBounds(t *testing.T) {
	q := describeFixture(t)

	bounds := q.Describe().Bounds
	if bounds.Min != (Vector3{X: 0, Y: 0, Z: 0}) || bounds.Max != (Vector3{X: 10, Y: 2, Z: 8}) {
		t.Fatalf("wrong bounds: %+v", bounds)
	}
	if bounds.Dimensions.Width != 10 || bounds.Dimensions.Height != 2 || bounds.Dimensions.Depth != 8 {
		t.Fatalf("wrong dimensions: %+v", bounds.Dimensions)
	}
}

func TestDescribeSummaryText(t *testing.T) {
	q := describeFixture(t)

	text := q.Describe().Description
	for _, want := range []string{
		"Scene: Riverton",
		"Total objects: 5",
		"Buildings (3): 2 house, 1 town hall",
		"1 in use",
		"Scene dimensions: 10.0 x 8.0 units",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestDescribeEmptyScene(t *testing.T) {
	q := NewQuery(NewStore(NewMemoryBacking()))

	d := q.Describe()
	if d.TotalObjects != 0 {
		t.Fatalf("expected empty scene, got %d objects", d.TotalObjects)
	}
	if d.Description != "Unnamed Town is currently empty with no objects placed." {
		t.Fatalf("wrong empty summary: %q", d.Description)
	}
	if d.Bounds.Dimensions != (BoxDimensions{}) {
		t.Fatalf("empty scene should have zero bounds: %+v", d.Bounds)
	}
}

func TestStatsCountsPerCategory(t *testing.T) {
	q := describeFixture(t)

	name, counts, total := q.Stats()
	if name != "Riverton" || total != 5 {
		t.Fatalf("wrong stats header: %q, %d", name, total)
	}
	if counts["buildings"] != 3 || counts["vehicles"] != 2 || counts["props"] != 0 {
		t.Fatalf("wrong counts: %+v", counts)
	}
}
