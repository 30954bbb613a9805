package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/collabtown/town-api/town"
)

var errFileNotFound = errors.New("town file not found")

// safeFilepath resolves filename inside dataPath, rejecting anything that
// tries to escape it. A missing .json extension is appended.
func safeFilepath(filename, dataPath string) (string, error) {
	if !strings.HasSuffix(filename, ".json") {
		filename += ".json"
	}

	cleaned := filepath.Base(filepath.Clean(filename))
	if cleaned != filename || cleaned == "." || cleaned == ".json" {
		return "", fmt.Errorf("invalid filename: %s", filename)
	}

	return filepath.Join(dataPath, cleaned), nil
}

// saveTownFile writes the state as the flat JSON town document.
func saveTownFile(path string, state *town.SceneState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// loadTownFile reads a town document back. Round-tripping a saved file
// reproduces the identical category and object shape.
func loadTownFile(path string) (*town.SceneState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errFileNotFound
		}
		return nil, err
	}

	var state town.SceneState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unreadable town file: %w", err)
	}
	return &state, nil
}
