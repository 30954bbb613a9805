package town

import (
	"fmt"

	"github.com/google/uuid"
)

// Objects this close to a proximity-delete point are eligible for removal.
const deleteProximityThreshold = 2.0

// Batch aggregate outcomes. A rejected batch leaves the store untouched.
const (
	BatchSuccess  = "success"
	BatchRejected = "rejected"
)

// BatchOperation is one unit of an all-or-nothing mutation batch.
type BatchOperation struct {
	Op       string       `json:"op"`
	Category string       `json:"category"`
	ID       string       `json:"id,omitempty"`
	Position *Vector3     `json:"position,omitempty"`
	Rotation *Vector3     `json:"rotation,omitempty"`
	Scale    *Vector3     `json:"scale,omitempty"`
	Data     *SceneObject `json:"data,omitempty"`
}

// OperationResult reports the outcome of a single operation.
type OperationResult struct {
	Success  bool     `json:"success"`
	Op       string   `json:"op"`
	Message  string   `json:"message"`
	ID       string   `json:"id,omitempty"`
	Category string   `json:"category,omitempty"`
	Distance float64  `json:"distance,omitempty"`
	Changes  []string `json:"changes,omitempty"`
}

// BatchResult is the aggregate outcome of a batch. Status is BatchSuccess
// only when every operation succeeded and the working copy was committed;
// otherwise it is BatchRejected and zero changes were applied.
type BatchResult struct {
	Status     string            `json:"status"`
	Results    []OperationResult `json:"results"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
}

// applyBatch runs every operation in order against state, which the caller
// must treat as a discardable working copy. It never commits anything.
func applyBatch(state *SceneState, ops []BatchOperation, validate bool) ([]OperationResult, int, int) {
	results := make([]OperationResult, 0, len(ops))
	successful, failed := 0, 0

	for _, op := range ops {
		var result OperationResult
		switch op.Op {
		case "create":
			result = applyCreate(state, op, validate)
		case "update":
			result = applyUpdate(state, op)
		case "delete":
			result = applyDelete(state, op)
		case "edit":
			result = applyEdit(state, op)
		default:
			result = OperationResult{Op: op.Op, Message: fmt.Sprintf("unknown operation type: %s", op.Op)}
		}

		if result.Success {
			successful++
		} else {
			failed++
		}
		results = append(results, result)
	}

	return results, successful, failed
}

func applyCreate(state *SceneState, op BatchOperation, validate bool) OperationResult {
	if op.Category == "" {
		return OperationResult{Op: "create", Message: "missing category"}
	}

	obj := SceneObject{}
	if op.Data != nil {
		obj = op.Data.Clone()
	}
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	if validate && obj.Position == nil {
		return OperationResult{Op: "create", Message: "object validation failed: missing position"}
	}

	if _, ok := state.Categories[op.Category]; !ok {
		state.Categories[op.Category] = []SceneObject{}
	}
	state.Categories[op.Category] = append(state.Categories[op.Category], obj)

	return OperationResult{
		Success:  true,
		Op:       "create",
		Message:  fmt.Sprintf("created object in %s", op.Category),
		ID:       obj.ID,
		Category: op.Category,
	}
}

func applyUpdate(state *SceneState, op BatchOperation) OperationResult {
	if op.Category == "" || op.ID == "" {
		return OperationResult{Op: "update", Message: "missing category or id"}
	}
	objs, ok := state.Categories[op.Category]
	if !ok {
		return OperationResult{Op: "update", Message: fmt.Sprintf("category %s not found", op.Category)}
	}

	for i := range objs {
		if objs[i].ID != op.ID {
			continue
		}
		if op.Data != nil {
			mergeObject(&objs[i], op.Data)
		}
		return OperationResult{
			Success:  true,
			Op:       "update",
			Message:  fmt.Sprintf("updated object %s in %s", op.ID, op.Category),
			ID:       op.ID,
			Category: op.Category,
		}
	}

	return OperationResult{Op: "update", Message: fmt.Sprintf("object %s not found", op.ID)}
}

// mergeObject overlays the provided fields of src onto dst, leaving absent
// fields alone. Extension keys merge individually.
func mergeObject(dst *SceneObject, src *SceneObject) {
	if src.ID != "" {
		dst.ID = src.ID
	}
	if src.Position != nil {
		p := *src.Position
		dst.Position = &p
	}
	if src.Rotation != nil {
		r := *src.Rotation
		dst.Rotation = &r
	}
	if src.Scale != nil {
		s := *src.Scale
		dst.Scale = &s
	}
	if src.Driver != nil {
		d := *src.Driver
		dst.Driver = &d
	}
	for k, v := range src.Extra {
		if dst.Extra == nil {
			dst.Extra = make(map[string]any)
		}
		dst.Extra[k] = copyValue(v)
	}
}

func applyDelete(state *SceneState, op BatchOperation) OperationResult {
	if op.Category == "" {
		return OperationResult{Op: "delete", Message: "missing category"}
	}
	if op.ID == "" && op.Position == nil {
		return OperationResult{Op: "delete", Message: "missing both id and position"}
	}
	objs, ok := state.Categories[op.Category]
	if !ok {
		return OperationResult{Op: "delete", Message: fmt.Sprintf("category %s not found", op.Category)}
	}

	if op.ID != "" {
		for i := range objs {
			if objs[i].ID == op.ID {
				state.Categories[op.Category] = append(objs[:i], objs[i+1:]...)
				return OperationResult{
					Success:  true,
					Op:       "delete",
					Message:  fmt.Sprintf("deleted object %s from %s", op.ID, op.Category),
					ID:       op.ID,
					Category: op.Category,
				}
			}
		}
		return OperationResult{Op: "delete", Message: fmt.Sprintf("object %s not found", op.ID)}
	}

	// Proximity delete: remove the closest object, but only within reach.
	closest := -1
	closestDistance := 0.0
	for i := range objs {
		distance := objs[i].Pos().DistanceTo(*op.Position)
		if closest < 0 || distance < closestDistance {
			closest = i
			closestDistance = distance
		}
	}

	if closest < 0 || closestDistance >= deleteProximityThreshold {
		return OperationResult{
			Op:      "delete",
			Message: fmt.Sprintf("no object found within range at position (%g, %g, %g)", op.Position.X, op.Position.Y, op.Position.Z),
		}
	}

	id := objs[closest].ID
	state.Categories[op.Category] = append(objs[:closest], objs[closest+1:]...)
	return OperationResult{
		Success:  true,
		Op:       "delete",
		Message:  fmt.Sprintf("deleted object at position (%g, %g, %g)", op.Position.X, op.Position.Y, op.Position.Z),
		ID:       id,
		Category: op.Category,
		Distance: closestDistance,
	}
}

func applyEdit(state *SceneState, op BatchOperation) OperationResult {
	if op.Category == "" || op.ID == "" {
		return OperationResult{Op: "edit", Message: "missing category or id"}
	}
	objs, ok := state.Categories[op.Category]
	if !ok {
		return OperationResult{Op: "edit", Message: fmt.Sprintf("category %s not found", op.Category)}
	}

	for i := range objs {
		if objs[i].ID != op.ID {
			continue
		}
		var changes []string
		if op.Position != nil {
			p := *op.Position
			objs[i].Position = &p
			changes = append(changes, "position")
		}
		if op.Rotation != nil {
			r := *op.Rotation
			objs[i].Rotation = &r
			changes = append(changes, "rotation")
		}
		if op.Scale != nil {
			s := *op.Scale
			objs[i].Scale = &s
			changes = append(changes, "scale")
		}
		return OperationResult{
			Success:  true,
			Op:       "edit",
			Message:  fmt.Sprintf("edited object %s in %s", op.ID, op.Category),
			ID:       op.ID,
			Category: op.Category,
			Changes:  changes,
		}
	}

	return OperationResult{Op: "edit", Message: fmt.Sprintf("object %s not found", op.ID)}
}
