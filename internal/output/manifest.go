package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// Manifest describes one output table for the downstream loader.
type Manifest struct {
	Incremental bool     `json:"incremental"`
	PrimaryKey  []string `json:"primary_key"`
	Columns     []string `json:"columns"`
}

// ManifestPath returns the manifest location for a table file.
func ManifestPath(tablePath string) string {
	return tablePath + ".manifest"
}

// WriteManifest writes m next to the table file.
func WriteManifest(tablePath string, m Manifest) error {
	if m.PrimaryKey == nil {
		m.PrimaryKey = []string{}
	}
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("WriteManifest: encoding: %w", err)
	}
	if err := os.WriteFile(ManifestPath(tablePath), data, 0o644); err != nil {
		return fmt.Errorf("WriteManifest: writing %s: %w", ManifestPath(tablePath), err)
	}
	return nil
}

// ReadManifest loads the manifest of a table file.
func ReadManifest(tablePath string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(ManifestPath(tablePath))
	if err != nil {
		return m, fmt.Errorf("ReadManifest: reading %s: %w", ManifestPath(tablePath), err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("ReadManifest: decoding %s: %w", ManifestPath(tablePath), err)
	}
	return m, nil
}
