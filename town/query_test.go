package town

import (
	"math"
	"testing"
)

func queryFixture(t *testing.T) *Query {
	t.Helper()
	store := NewStore(NewMemoryBacking())
	state := DefaultState()
	state.Categories["buildings"] = []SceneObject{
		{ID: "near", Position: vecPtr(4.9, 0, 0)},
		{ID: "far", Position: vecPtr(5.1, 0, 0)},
		{ID: "corner", Position: vecPtr(10, 10, 10)},
	}
	state.Categories["vehicles"] = []SceneObject{
		{ID: "patrol", Position: vecPtr(1, 0, 0), Driver: strPtr("police")},
		{ID: "parked", Position: vecPtr(2, 0, 0)},
		{ID: "engine", Position: vecPtr(3, 0, 0), Driver: strPtr("fire")},
	}
	store.Set(state)
	return NewQuery(store)
}

func TestRadiusQueryBoundary(t *testing.T) {
	q := queryFixture(t)

	results := q.Radius(Vector3{}, 5, "buildings", 0)
	if len(results) != 1 {
		t.Fatalf("expected exactly the 4.9 object, got %d results", len(results))
	}
	if results[0].Object.ID != "near" {
		t.Fatalf("wrong object: %s", results[0].Object.ID)
	}
	if results[0].Distance == nil || math.Abs(*results[0].Distance-4.9) > 1e-9 {
		t.Fatalf("bad distance annotation: %v", results[0].Distance)
	}
}

func TestRadiusQuerySortsAscendingAndLimits(t *testing.T) {
	q := queryFixture(t)

	results := q.Radius(Vector3{}, 100, "vehicles", 2)
	if len(results) != 2 {
		t.Fatalf("limit not applied: %d results", len(results))
	}
	if results[0].Object.ID != "patrol" || results[1].Object.ID != "parked" {
		t.Fatalf("not sorted by distance: %s, %s", results[0].Object.ID, results[1].Object.ID)
	}
}

func TestBoundsQueryClosedBox(t *testing.T) {
	q := queryFixture(t)

	// Max corner exactly on the 4.9 object: closed interval includes it.
	results := q.Bounds(Vector3{}, Vector3{X: 4.9, Y: 0, Z: 0}, "buildings", 0)
	if len(results) != 1 || results[0].Object.ID != "near" {
		t.Fatalf("expected only the boundary object, got %+v", results)
	}
	if results[0].Distance != nil {
		t.Fatal("bounds results should not carry a distance")
	}
}

func TestBoundsQueryAcrossCategories(t *testing.T) {
	q := queryFixture(t)

	results := q.Bounds(Vector3{X: -1, Y: -1, Z: -1}, Vector3{X: 6, Y: 1, Z: 1}, "", 0)
	if len(results) != 5 {
		t.Fatalf("expected 5 objects in box, got %d", len(results))
	}
}

func TestNearestQueryCountAndMaxDistance(t *testing.T) {
	q := queryFixture(t)

	results := q.Nearest(Vector3{}, "vehicles", 2, nil)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Object.ID != "patrol" {
		t.Fatalf("nearest first, got %s", results[0].Object.ID)
	}

	maxDistance := 1.5
	results = q.Nearest(Vector3{}, "vehicles", 3, &maxDistance)
	if len(results) != 1 {
		t.Fatalf("max distance should leave one candidate, got %d", len(results))
	}
}

func TestAdvancedQueryDriverEquality(t *testing.T) {
	q := queryFixture(t)

	results := q.Advanced("vehicles", []Filter{
		{Field: "driver", Operator: "eq", Value: "police"},
	}, "", "asc", 0, 0)

	if len(results) != 1 {
		t.Fatalf("expected exactly one police driver, got %d", len(results))
	}
	if results[0].Object.ID != "patrol" {
		t.Fatalf("wrong object: %s", results[0].Object.ID)
	}
}

func TestAdvancedQueryObjectValuedEquality(t *testing.T) {
	q := queryFixture(t)

	// A whole-vector filter resolves both sides to maps; equality must be
	// structural, not identity.
	position := map[string]any{"x": 1.0, "y": 0.0, "z": 0.0}
	results := q.Advanced("vehicles", []Filter{
		{Field: "position", Operator: "eq", Value: position},
	}, "", "asc", 0, 0)
	if len(results) != 1 || results[0].Object.ID != "patrol" {
		t.Fatalf("map-valued eq wrong: %+v", results)
	}

	results = q.Advanced("vehicles", []Filter{
		{Field: "position", Operator: "ne", Value: position},
	}, "", "asc", 0, 0)
	if len(results) != 2 {
		t.Fatalf("map-valued ne wrong: %d results", len(results))
	}

	results = q.Advanced("vehicles", []Filter{
		{Field: "position", Operator: "in", Value: []any{position}},
	}, "", "asc", 0, 0)
	if len(results) != 1 || results[0].Object.ID != "patrol" {
		t.Fatalf("map-valued in wrong: %+v", results)
	}
}

func TestAdvancedQueryMissingFieldFailsComparisons(t *testing.T) {
	q := queryFixture(t)

	// "parked" has no driver; ne must not treat missing as a match.
	results := q.Advanced("vehicles", []Filter{
		{Field: "driver", Operator: "ne", Value: "police"},
	}, "", "asc", 0, 0)
	if len(results) != 1 || results[0].Object.ID != "engine" {
		t.Fatalf("missing driver should fail ne, got %+v", results)
	}
}

func TestAdvancedQueryDotPathAndOperators(t *testing.T) {
	q := queryFixture(t)

	results := q.Advanced("buildings", []Filter{
		{Field: "position.x", Operator: "gte", Value: 5.0},
		{Field: "position.x", Operator: "lt", Value: 10.0},
	}, "", "asc", 0, 0)
	if len(results) != 1 || results[0].Object.ID != "far" {
		t.Fatalf("dot-path conjunction wrong: %+v", results)
	}

	results = q.Advanced("vehicles", []Filter{
		{Field: "driver", Operator: "in", Value: []any{"police", "fire"}},
	}, "", "asc", 0, 0)
	if len(results) != 2 {
		t.Fatalf("in operator wrong: %d results", len(results))
	}

	results = q.Advanced("vehicles", []Filter{
		{Field: "id", Operator: "contains", Value: "park"},
	}, "", "asc", 0, 0)
	if len(results) != 1 || results[0].Object.ID != "parked" {
		t.Fatalf("contains operator wrong: %+v", results)
	}
}

func TestAdvancedQuerySortAndPagination(t *testing.T) {
	q := queryFixture(t)

	results := q.Advanced("vehicles", nil, "position.x", "desc", 0, 0)
	if len(results) != 3 || results[0].Object.ID != "engine" {
		t.Fatalf("descending sort wrong: %+v", results)
	}

	// Offset applies after sort, then limit.
	results = q.Advanced("vehicles", nil, "position.x", "asc", 1, 1)
	if len(results) != 1 || results[0].Object.ID != "parked" {
		t.Fatalf("pagination wrong: %+v", results)
	}

	if got := q.Advanced("vehicles", nil, "position.x", "asc", 0, 10); len(got) != 0 {
		t.Fatalf("offset past end should be empty, got %d", len(got))
	}
}

func TestAdvancedQueryUnknownOperatorMatchesNothing(t *testing.T) {
	q := queryFixture(t)

	results := q.Advanced("vehicles", []Filter{
		{Field: "driver", Operator: "between", Value: "a"},
	}, "", "asc", 0, 0)
	if len(results) != 0 {
		t.Fatalf("unknown operator should match nothing, got %d", len(results))
	}
}
