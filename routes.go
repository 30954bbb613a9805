package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/collabtown/town-api/town"
)

// API translates HTTP requests into the core engine operations. It holds no
// state of its own.
type API struct {
	town     *town.Town
	tokens   *TokenManager
	dataPath string
}

func (a *API) Register(r *mux.Router) {
	r.Use(a.tokens.Middleware)

	r.HandleFunc("/auth/login", a.login).Methods("POST")

	r.HandleFunc("/town", a.getTown).Methods("GET")
	r.HandleFunc("/town", a.updateTown).Methods("POST")
	r.HandleFunc("/town/save", a.saveTown).Methods("POST")
	r.HandleFunc("/town/load", a.loadTown).Methods("POST")

	r.HandleFunc("/objects/{category}/{id}", a.updateObject).Methods("PUT")
	r.HandleFunc("/objects/{category}/{id}", a.deleteObject).Methods("DELETE")

	r.HandleFunc("/batch", a.executeBatch).Methods("POST")

	r.HandleFunc("/history", a.getHistory).Methods("GET")
	r.HandleFunc("/history", a.clearHistory).Methods("DELETE")
	r.HandleFunc("/history/undo", a.undo).Methods("POST")
	r.HandleFunc("/history/redo", a.redo).Methods("POST")

	r.HandleFunc("/snapshots", a.createSnapshot).Methods("POST")
	r.HandleFunc("/snapshots", a.listSnapshots).Methods("GET")
	r.HandleFunc("/snapshots/{id}", a.getSnapshot).Methods("GET")
	r.HandleFunc("/snapshots/{id}", a.deleteSnapshot).Methods("DELETE")
	r.HandleFunc("/snapshots/{id}/restore", a.restoreSnapshot).Methods("POST")

	r.HandleFunc("/scene/description", a.sceneDescription).Methods("GET")
	r.HandleFunc("/scene/stats", a.sceneStats).Methods("GET")

	r.HandleFunc("/query/radius", a.queryRadius).Methods("POST")
	r.HandleFunc("/query/bounds", a.queryBounds).Methods("POST")
	r.HandleFunc("/query/nearest", a.queryNearest).Methods("POST")
	r.HandleFunc("/query/advanced", a.queryAdvanced).Methods("POST")

	r.HandleFunc("/cursor/update", a.updateCursor).Methods("POST")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "missing username")
		return
	}

	token, err := a.tokens.Issue(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "token": token})
}

func (a *API) getTown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.town.State())
}

// updateTown handles the three update shapes of POST /api/town: a rename
// (townName as the only key), a driver assignment (driver + category + id),
// or a full state replacement.
func (a *API) updateTown(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if _, ok := raw["townName"]; ok && len(raw) == 1 {
		var name string
		if err := json.Unmarshal(raw["townName"], &name); err != nil {
			writeError(w, http.StatusBadRequest, "invalid townName")
			return
		}
		a.town.SetTownName(name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	if _, ok := raw["driver"]; ok {
		var req struct {
			Category string  `json:"category"`
			ID       string  `json:"id"`
			Driver   *string `json:"driver"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.Category == "" || req.ID == "" {
			writeError(w, http.StatusBadRequest, "driver update needs category and id")
			return
		}
		if err := a.town.SetDriver(req.Category, req.ID, req.Driver); err != nil {
			writeError(w, http.StatusNotFound, "object not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	var state town.SceneState
	if err := json.Unmarshal(body, &state); err != nil {
		writeError(w, http.StatusBadRequest, "invalid town payload")
		return
	}
	a.town.ReplaceState(&state)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (a *API) updateObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var data town.SceneObject
	if !decodeBody(w, r, &data) {
		return
	}

	obj, err := a.town.UpdateObject(vars["category"], vars["id"], &data)
	if err != nil {
		if errors.Is(err, town.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "object": obj})
}

func (a *API) deleteObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := a.town.DeleteObject(vars["category"], vars["id"]); err != nil {
		if errors.Is(err, town.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "object deleted"})
}

func (a *API) executeBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operations []town.BatchOperation `json:"operations"`
		Validate   *bool                 `json:"validate"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Operations) == 0 {
		writeError(w, http.StatusBadRequest, "no operations provided")
		return
	}

	validate := true
	if req.Validate != nil {
		validate = *req.Validate
	}

	writeJSON(w, http.StatusOK, a.town.Execute(req.Operations, validate))
}

func (a *API) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	history := a.town.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"history":  history.Entries(limit),
		"can_undo": history.CanUndo(),
		"can_redo": history.CanRedo(),
	})
}

func (a *API) clearHistory(w http.ResponseWriter, r *http.Request) {
	a.town.ClearHistory()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "history cleared"})
}

func (a *API) undo(w http.ResponseWriter, r *http.Request) {
	message, err := a.town.Undo()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"message":  message,
		"can_undo": a.town.History().CanUndo(),
		"can_redo": a.town.History().CanRedo(),
	})
}

func (a *API) redo(w http.ResponseWriter, r *http.Request) {
	message, err := a.town.Redo()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"message":  message,
		"can_undo": a.town.History().CanUndo(),
		"can_redo": a.town.History().CanRedo(),
	})
}

func (a *API) createSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	meta := a.town.CreateSnapshot(req.Name, req.Description)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "snapshot": meta})
}

func (a *API) listSnapshots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"snapshots": a.town.ListSnapshots(),
	})
}

func (a *API) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	meta, ok := a.town.SnapshotMeta(id)
	if !ok {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	state, ok := a.town.GetSnapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "snapshot data not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"snapshot": meta,
		"data":     state,
	})
}

func (a *API) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if !a.town.DeleteSnapshot(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (a *API) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := a.town.RestoreSnapshot(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "snapshot restored"})
}

func (a *API) sceneDescription(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   a.town.Query().Describe(),
	})
}

func (a *API) sceneStats(w http.ResponseWriter, r *http.Request) {
	name, counts, total := a.town.Query().Stats()
	data := map[string]any{"town_name": name, "total": total}
	for cat, count := range counts {
		data[cat] = count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeQueryResults(w http.ResponseWriter, results []town.QueryResult) {
	if results == nil {
		results = []town.QueryResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"count":   len(results),
		"results": results,
	})
}

func (a *API) queryRadius(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Center   town.Vector3 `json:"center"`
		Radius   float64      `json:"radius"`
		Category string       `json:"category"`
		Limit    int          `json:"limit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Radius < 0 {
		writeError(w, http.StatusBadRequest, "radius must be non-negative")
		return
	}
	writeQueryResults(w, a.town.Query().Radius(req.Center, req.Radius, req.Category, req.Limit))
}

func (a *API) queryBounds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Min      town.Vector3 `json:"min"`
		Max      town.Vector3 `json:"max"`
		Category string       `json:"category"`
		Limit    int          `json:"limit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeQueryResults(w, a.town.Query().Bounds(req.Min, req.Max, req.Category, req.Limit))
}

func (a *API) queryNearest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Point       town.Vector3 `json:"point"`
		Category    string       `json:"category"`
		Count       int          `json:"count"`
		MaxDistance *float64     `json:"max_distance"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	writeQueryResults(w, a.town.Query().Nearest(req.Point, req.Category, req.Count, req.MaxDistance))
}

func (a *API) queryAdvanced(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category  string        `json:"category"`
		Filters   []town.Filter `json:"filters"`
		SortBy    string        `json:"sort_by"`
		SortOrder string        `json:"sort_order"`
		Limit     int           `json:"limit"`
		Offset    int           `json:"offset"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	writeQueryResults(w, a.town.Query().Advanced(req.Category, req.Filters, req.SortBy, req.SortOrder, req.Limit, req.Offset))
}

func (a *API) updateCursor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username       string        `json:"username"`
		Position       *town.Vector3 `json:"position"`
		CameraPosition *town.Vector3 `json:"camera_position"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "missing username")
		return
	}

	a.town.Broker().Publish(town.Event{
		Type:           town.EventCursor,
		Username:       req.Username,
		Position:       req.Position,
		CameraPosition: req.CameraPosition,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "cursor position updated"})
}

func (a *API) saveTown(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string           `json:"filename"`
		Data     *town.SceneState `json:"data"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Filename == "" {
		req.Filename = "town_data.json"
	}

	state := req.Data
	if state == nil {
		state = a.town.State()
	}

	path, err := safeFilepath(req.Filename, a.dataPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := saveTownFile(path, state); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "town saved to " + req.Filename})
}

func (a *API) loadTown(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "missing filename")
		return
	}

	path, err := safeFilepath(req.Filename, a.dataPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := loadTownFile(path)
	if err != nil {
		if errors.Is(err, errFileNotFound) {
			writeError(w, http.StatusNotFound, "town file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.town.ReplaceState(state)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "town": state})
}
