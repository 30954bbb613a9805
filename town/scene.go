package town

import (
	"encoding/json"
	"math"
	"sort"
)

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) DistanceTo(other Vector3) float64 {
	dx := other.X - v.X
	dy := other.Y - v.Y
	dz := other.Z - v.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// SceneObject is one placed object inside a category. The typed core covers
// the fields the engine manipulates; anything else a client attaches (color,
// label, ...) rides along in Extra and survives round-trips untouched.
type SceneObject struct {
	ID       string
	Position *Vector3
	Rotation *Vector3
	Scale    *Vector3
	Driver   *string
	Extra    map[string]any
}

// Pos returns the object position, treating a missing position as the origin.
func (o *SceneObject) Pos() Vector3 {
	if o.Position == nil {
		return Vector3{}
	}
	return *o.Position
}

func (o SceneObject) Clone() SceneObject {
	c := SceneObject{ID: o.ID}
	if o.Position != nil {
		p := *o.Position
		c.Position = &p
	}
	if o.Rotation != nil {
		r := *o.Rotation
		c.Rotation = &r
	}
	if o.Scale != nil {
		s := *o.Scale
		c.Scale = &s
	}
	if o.Driver != nil {
		d := *o.Driver
		c.Driver = &d
	}
	if o.Extra != nil {
		c.Extra = make(map[string]any, len(o.Extra))
		for k, v := range o.Extra {
			c.Extra[k] = copyValue(v)
		}
	}
	return c
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = copyValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = copyValue(e)
		}
		return s
	default:
		return v
	}
}

func (o SceneObject) toMap() map[string]any {
	m := make(map[string]any, len(o.Extra)+5)
	for k, v := range o.Extra {
		m[k] = v
	}
	if o.ID != "" {
		m["id"] = o.ID
	}
	if o.Position != nil {
		m["position"] = o.Position
	}
	if o.Rotation != nil {
		m["rotation"] = o.Rotation
	}
	if o.Scale != nil {
		m["scale"] = o.Scale
	}
	if o.Driver != nil {
		m["driver"] = o.Driver
	}
	return m
}

func (o SceneObject) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.toMap())
}

func (o *SceneObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = SceneObject{}
	for key, val := range raw {
		switch key {
		case "id":
			if err := json.Unmarshal(val, &o.ID); err != nil {
				return err
			}
		case "position":
			o.Position = &Vector3{}
			if err := json.Unmarshal(val, o.Position); err != nil {
				return err
			}
		case "rotation":
			o.Rotation = &Vector3{}
			if err := json.Unmarshal(val, o.Rotation); err != nil {
				return err
			}
		case "scale":
			o.Scale = &Vector3{}
			if err := json.Unmarshal(val, o.Scale); err != nil {
				return err
			}
		case "driver":
			var d *string
			if err := json.Unmarshal(val, &d); err != nil {
				return err
			}
			o.Driver = d
		default:
			var v any
			if err := json.Unmarshal(val, &v); err != nil {
				return err
			}
			if o.Extra == nil {
				o.Extra = make(map[string]any)
			}
			o.Extra[key] = v
		}
	}
	return nil
}

// SceneState is the full editable town: a name plus named categories of
// placed objects. Its JSON form is a flat document with townName alongside
// the category arrays, which is also the persistence file format.
type SceneState struct {
	TownName   string
	Categories map[string][]SceneObject
}

// DefaultState returns an empty town with the standard category buckets.
func DefaultState() *SceneState {
	return &SceneState{
		Categories: map[string][]SceneObject{
			"buildings": {},
			"terrain":   {},
			"roads":     {},
			"props":     {},
		},
	}
}

func (s *SceneState) Clone() *SceneState {
	c := &SceneState{
		TownName:   s.TownName,
		Categories: make(map[string][]SceneObject, len(s.Categories)),
	}
	for cat, objs := range s.Categories {
		list := make([]SceneObject, len(objs))
		for i, o := range objs {
			list[i] = o.Clone()
		}
		c.Categories[cat] = list
	}
	return c
}

// CategoryNames returns category names in a stable order.
func (s *SceneState) CategoryNames() []string {
	names := make([]string, 0, len(s.Categories))
	for name := range s.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ObjectCount counts placed objects across all categories.
func (s *SceneState) ObjectCount() int {
	total := 0
	for _, objs := range s.Categories {
		total += len(objs)
	}
	return total
}

func (s SceneState) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Categories)+1)
	if s.TownName != "" {
		m["townName"] = s.TownName
	}
	for cat, objs := range s.Categories {
		if objs == nil {
			objs = []SceneObject{}
		}
		m[cat] = objs
	}
	return json.Marshal(m)
}

func (s *SceneState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SceneState{Categories: make(map[string][]SceneObject, len(raw))}
	for key, val := range raw {
		if key == "townName" {
			if err := json.Unmarshal(val, &s.TownName); err != nil {
				return err
			}
			continue
		}
		var objs []SceneObject
		if err := json.Unmarshal(val, &objs); err != nil {
			// Non-category keys (stray scalars from older saves) are dropped.
			continue
		}
		if objs == nil {
			objs = []SceneObject{}
		}
		s.Categories[key] = objs
	}
	return nil
}
