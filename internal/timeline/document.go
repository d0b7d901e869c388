package timeline

import (
	"encoding/json"
	"time"
)

// SceneDocument is the exported scene the executor loads.
type SceneDocument struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Type                string   `json:"type"`
	RoomID              string   `json:"roomId"`
	Description         string   `json:"description"`
	Devices             []string `json:"devices"`
	Timeline            []Entry  `json:"timeline"`
	EstimatedDurationMs int64    `json:"estimatedDurationMs"`
	Prerequisites       []string `json:"prerequisites"`
	Metadata            Metadata `json:"metadata"`
}

// Metadata records export provenance. ExportedAt is the only field that
// differs between exports of unchanged steps.
type Metadata struct {
	ExportedFromUI bool     `json:"exported_from_ui"`
	ExportedAt     string   `json:"exported_at"`
	SceneNumber    int      `json:"scene_number"`
	Slug           string   `json:"slug"`
	PuzzleFiles    []string `json:"puzzle_files"`
}

// SceneDocument assembles the scene document for c.
func (c *Compiled) SceneDocument(scene Scene, exportedAt time.Time) SceneDocument {
	return SceneDocument{
		ID:                  scene.ID,
		Name:                scene.Name,
		Type:                "scene",
		RoomID:              scene.RoomID,
		Description:         scene.Description,
		Devices:             c.Devices,
		Timeline:            c.Timeline,
		EstimatedDurationMs: c.EstimatedDurationMs,
		Prerequisites:       []string{},
		Metadata: Metadata{
			ExportedFromUI: true,
			ExportedAt:     exportedAt.UTC().Format(time.RFC3339),
			SceneNumber:    scene.SceneNumber,
			Slug:           scene.FileSlug(),
			PuzzleFiles:    c.PuzzleFiles,
		},
	}
}

// Marshal renders a document the way it is written to disk: two-space
// indentation and a trailing newline, so unchanged input is byte-identical.
func Marshal(doc any) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
