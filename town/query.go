package town

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"sort"
	"strings"
)

// QueryResult is a scene object annotated with its category and, for
// distance-based queries, its distance from the reference point.
type QueryResult struct {
	Object   SceneObject
	Category string
	Distance *float64
}

func (r QueryResult) MarshalJSON() ([]byte, error) {
	m := r.Object.toMap()
	m["category"] = r.Category
	if r.Distance != nil {
		m["distance"] = *r.Distance
	}
	return json.Marshal(m)
}

// Filter is one condition of an advanced query. Field is a dot path into
// the object ("position.x", "driver", "color"). All filters of a query must
// match; an object whose field is missing or null fails every operator.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Query answers read-only spatial and attribute queries over the store.
// Every query is an O(n) scan of the objects in scope, which is fine at the
// few-thousand-object scale this serves.
type Query struct {
	store *Store
}

func NewQuery(store *Store) *Query {
	return &Query{store: store}
}

func (q *Query) categoriesInScope(state *SceneState, category string) []string {
	if category != "" {
		return []string{category}
	}
	return state.CategoryNames()
}

// Radius returns objects within radius of center, distance-annotated and
// sorted nearest first.
func (q *Query) Radius(center Vector3, radius float64, category string, limit int) []QueryResult {
	state := q.store.Get()
	var results []QueryResult

	for _, cat := range q.categoriesInScope(state, category) {
		for _, obj := range state.Categories[cat] {
			distance := obj.Pos().DistanceTo(center)
			if distance <= radius {
				d := distance
				results = append(results, QueryResult{Object: obj, Category: cat, Distance: &d})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].Distance < *results[j].Distance
	})
	return truncate(results, limit)
}

// Bounds returns objects inside the closed axis-aligned box, in insertion
// order per category.
func (q *Query) Bounds(min, max Vector3, category string, limit int) []QueryResult {
	state := q.store.Get()
	var results []QueryResult

	for _, cat := range q.categoriesInScope(state, category) {
		for _, obj := range state.Categories[cat] {
			pos := obj.Pos()
			if pos.X >= min.X && pos.X <= max.X &&
				pos.Y >= min.Y && pos.Y <= max.Y &&
				pos.Z >= min.Z && pos.Z <= max.Z {
				results = append(results, QueryResult{Object: obj, Category: cat})
			}
		}
	}

	return truncate(results, limit)
}

// Nearest returns up to count objects closest to point, nearest first.
// A maxDistance excludes candidates beyond it, so fewer than count may come
// back.
func (q *Query) Nearest(point Vector3, category string, count int, maxDistance *float64) []QueryResult {
	state := q.store.Get()
	var results []QueryResult

	for _, cat := range q.categoriesInScope(state, category) {
		for _, obj := range state.Categories[cat] {
			distance := obj.Pos().DistanceTo(point)
			if maxDistance != nil && distance > *maxDistance {
				continue
			}
			d := distance
			results = append(results, QueryResult{Object: obj, Category: cat, Distance: &d})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].Distance < *results[j].Distance
	})
	return truncate(results, count)
}

// Advanced filters objects by a conjunction of field conditions, sorts, and
// paginates (offset before limit, both after filter and sort).
func (q *Query) Advanced(category string, filters []Filter, sortBy, order string, limit, offset int) []QueryResult {
	state := q.store.Get()
	var results []QueryResult

	for _, cat := range q.categoriesInScope(state, category) {
		for _, obj := range state.Categories[cat] {
			candidate := QueryResult{Object: obj, Category: cat}
			if matchesFilters(candidate, filters) {
				results = append(results, candidate)
			}
		}
	}

	if sortBy != "" {
		descending := order == "desc"
		sort.SliceStable(results, func(i, j int) bool {
			if descending {
				return lessByField(results[j], results[i], sortBy)
			}
			return lessByField(results[i], results[j], sortBy)
		})
	}

	if offset > 0 {
		if offset >= len(results) {
			return nil
		}
		results = results[offset:]
	}
	return truncate(results, limit)
}

func truncate(results []QueryResult, limit int) []QueryResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func matchesFilters(r QueryResult, filters []Filter) bool {
	for _, f := range filters {
		value, ok := fieldValue(r, f.Field)
		if !ok {
			return false
		}
		if !evaluateCondition(value, f.Operator, f.Value) {
			return false
		}
	}
	return true
}

// fieldValue resolves a dot-path field against a result. The second return
// is false when the field is missing or null.
func fieldValue(r QueryResult, field string) (any, bool) {
	parts := strings.Split(field, ".")
	var value any

	switch parts[0] {
	case "id":
		value = r.Object.ID
	case "category":
		value = r.Category
	case "distance":
		if r.Distance == nil {
			return nil, false
		}
		value = *r.Distance
	case "driver":
		if r.Object.Driver == nil {
			return nil, false
		}
		value = *r.Object.Driver
	case "position":
		if r.Object.Position == nil {
			return nil, false
		}
		value = vectorMap(*r.Object.Position)
	case "rotation":
		if r.Object.Rotation == nil {
			return nil, false
		}
		value = vectorMap(*r.Object.Rotation)
	case "scale":
		if r.Object.Scale == nil {
			return nil, false
		}
		value = vectorMap(*r.Object.Scale)
	default:
		v, ok := r.Object.Extra[parts[0]]
		if !ok {
			return nil, false
		}
		value = v
	}

	for _, part := range parts[1:] {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if value == nil {
		return nil, false
	}
	return value, true
}

func vectorMap(v Vector3) map[string]any {
	return map[string]any{"x": v.X, "y": v.Y, "z": v.Z}
}

func evaluateCondition(objValue any, operator string, filterValue any) bool {
	switch operator {
	case "eq":
		return valuesEqual(objValue, filterValue)
	case "ne":
		return !valuesEqual(objValue, filterValue)
	case "gt", "lt", "gte", "lte":
		cmp, ok := compareValues(objValue, filterValue)
		if !ok {
			return false
		}
		switch operator {
		case "gt":
			return cmp > 0
		case "lt":
			return cmp < 0
		case "gte":
			return cmp >= 0
		default:
			return cmp <= 0
		}
	case "contains":
		return strings.Contains(stringify(objValue), stringify(filterValue))
	case "in":
		list, ok := filterValue.([]any)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if valuesEqual(objValue, candidate) {
				return true
			}
		}
		return false
	default:
		log.Printf("unknown filter operator: %s", operator)
		return false
	}
}

func valuesEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values when they are comparable: numerically for
// numbers, lexically for strings. The bool is false otherwise.
func compareValues(a, b any) (int, bool) {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// lessByField orders results for Advanced sorting. Missing values sort
// before present ones.
func lessByField(a, b QueryResult, field string) bool {
	av, aok := fieldValue(a, field)
	bv, bok := fieldValue(b, field)
	if !aok {
		return bok
	}
	if !bok {
		return false
	}
	cmp, ok := compareValues(av, bv)
	if !ok {
		return false
	}
	return cmp < 0
}
