package town

import (
	"fmt"
	"sort"
	"strings"
)

// CategorySummary aggregates one category for scene analysis.
type CategorySummary struct {
	Count       int            `json:"count"`
	Models      map[string]int `json:"models"`
	DriverCount int            `json:"driver_count"`
}

// BoxDimensions is the extent of the scene bounding box.
type BoxDimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

// SceneBounds is the axis-aligned box enclosing every placed object.
type SceneBounds struct {
	Min        Vector3       `json:"min"`
	Max        Vector3       `json:"max"`
	Dimensions BoxDimensions `json:"dimensions"`
}

// SceneDescription is the full analysis of the current scene: per-category
// aggregates, spatial bounds, and a human-readable summary.
type SceneDescription struct {
	TownName     string                     `json:"town_name"`
	TotalObjects int                        `json:"total_objects"`
	Categories   map[string]CategorySummary `json:"categories"`
	Bounds       SceneBounds                `json:"bounds"`
	Description  string                     `json:"description"`
}

// Describe analyzes the current scene: object counts and model breakdown per
// category, scene bounds over every positioned object, and a line-per-fact
// natural language summary.
func (q *Query) Describe() SceneDescription {
	state := q.store.Get()

	d := SceneDescription{
		TownName:   state.TownName,
		Categories: make(map[string]CategorySummary),
	}
	if d.TownName == "" {
		d.TownName = "Unnamed Town"
	}

	var positions []Vector3
	for _, cat := range state.CategoryNames() {
		summary := CategorySummary{Models: make(map[string]int)}
		for _, obj := range state.Categories[cat] {
			summary.Count++
			summary.Models[modelOf(obj)]++
			if obj.Driver != nil && *obj.Driver != "" {
				summary.DriverCount++
			}
			if obj.Position != nil {
				positions = append(positions, *obj.Position)
			}
		}
		d.Categories[cat] = summary
		d.TotalObjects += summary.Count
	}

	d.Bounds = boundsOf(positions)
	d.Description = describeScene(state, d)
	return d
}

// Stats returns the quick per-category object counts plus the total.
func (q *Query) Stats() (string, map[string]int, int) {
	state := q.store.Get()
	name := state.TownName
	if name == "" {
		name = "Unnamed Town"
	}

	counts := make(map[string]int)
	total := 0
	for _, cat := range state.CategoryNames() {
		counts[cat] = len(state.Categories[cat])
		total += counts[cat]
	}
	return name, counts, total
}

// modelOf reports the object's model identifier for the breakdown. Objects
// without one are grouped as unknown, like untyped imports.
func modelOf(obj SceneObject) string {
	if m, ok := obj.Extra["model"].(string); ok && m != "" {
		return m
	}
	return "unknown"
}

// friendlyModelName turns a model identifier like "oak_tree.glb" into
// "oak tree" for the readable summary.
func friendlyModelName(model string) string {
	name := strings.TrimSuffix(strings.TrimSuffix(model, ".glb"), ".gltf")
	return strings.ReplaceAll(name, "_", " ")
}

func boundsOf(positions []Vector3) SceneBounds {
	if len(positions) == 0 {
		return SceneBounds{}
	}

	min, max := positions[0], positions[0]
	for _, p := range positions[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.Z < min.Z {
			min.Z = p.Z
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
		if p.Z > max.Z {
			max.Z = p.Z
		}
	}
	return SceneBounds{
		Min: min,
		Max: max,
		Dimensions: BoxDimensions{
			Width:  max.X - min.X,
			Height: max.Y - min.Y,
			Depth:  max.Z - min.Z,
		},
	}
}

func describeScene(state *SceneState, d SceneDescription) string {
	if d.TotalObjects == 0 {
		return fmt.Sprintf("%s is currently empty with no objects placed.", d.TownName)
	}

	parts := []string{
		fmt.Sprintf("Scene: %s", d.TownName),
		fmt.Sprintf("Total objects: %d", d.TotalObjects),
	}

	for _, cat := range state.CategoryNames() {
		summary := d.Categories[cat]
		if summary.Count == 0 {
			continue
		}

		models := make([]string, 0, len(summary.Models))
		for model := range summary.Models {
			models = append(models, model)
		}
		sort.Strings(models)
		described := make([]string, 0, len(models))
		for _, model := range models {
			described = append(described, fmt.Sprintf("%d %s", summary.Models[model], friendlyModelName(model)))
		}

		line := fmt.Sprintf("%s (%d): %s", titleCase(cat), summary.Count, strings.Join(described, ", "))
		if summary.DriverCount > 0 {
			line += fmt.Sprintf(", %d in use", summary.DriverCount)
		}
		parts = append(parts, line)
	}

	dims := d.Bounds.Dimensions
	if dims.Width > 0 || dims.Depth > 0 {
		parts = append(parts, fmt.Sprintf("Scene dimensions: %.1f x %.1f units", dims.Width, dims.Depth))
	}
	return strings.Join(parts, "\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
