// Package timeline compiles persisted scene steps into the flat, timed
// instruction sequence the executor replays, plus one standalone document
// per referenced puzzle.
package timeline

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// StepType is the kind of a scene step.
type StepType string

const (
	StepPuzzle   StepType = "puzzle"
	StepVideo    StepType = "video"
	StepAudio    StepType = "audio"
	StepEffect   StepType = "effect"
	StepWait     StepType = "wait"
	StepStopLoop StepType = "stopLoop"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepPuzzle, StepVideo, StepAudio, StepEffect, StepWait, StepStopLoop:
		return true
	}
	return false
}

// ExecutionMode says whether a step runs once or repeats until stopped.
type ExecutionMode string

const (
	ModeOnce ExecutionMode = "once"
	ModeLoop ExecutionMode = "loop"
)

// SceneStep is one persisted scene step row.
type SceneStep struct {
	ID                string         `json:"id"`
	SceneID           string         `json:"scene_id"`
	StepNumber        int            `json:"step_number"`
	StepType          StepType       `json:"step_type"`
	Name              string         `json:"name"`
	Config            map[string]any `json:"config"`
	TimingConfig      map[string]any `json:"timing_config"`
	Required          bool           `json:"required"`
	Repeatable        bool           `json:"repeatable"`
	MaxAttempts       *int           `json:"max_attempts,omitempty"`
	ExecutionMode     ExecutionMode  `json:"execution_mode"`
	ExecutionInterval *int64         `json:"execution_interval,omitempty"`
	LoopID            *string        `json:"loop_id,omitempty"`
}

// Looping reports whether the step repeats.
func (s SceneStep) Looping() bool {
	return s.ExecutionMode == ModeLoop
}

// loopID returns the loop the step starts or stops. stopLoop steps name it
// in config; the row column is the fallback.
func (s SceneStep) loopID() string {
	if v := configString(s.Config, "loop_id"); v != "" {
		return v
	}
	if s.LoopID != nil {
		return *s.LoopID
	}
	return ""
}

// Scene is the persisted scene record the steps belong to.
type Scene struct {
	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SceneNumber int    `json:"scene_number"`
	Slug        string `json:"slug"`
}

// FileSlug returns the slug used for the scene document name.
func (s Scene) FileSlug() string {
	if s.Slug != "" {
		return Slugify(s.Slug)
	}
	if s.Name != "" {
		return Slugify(s.Name)
	}
	return Slugify(s.ID)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses everything but letters and digits
// into single dashes.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

var unsafeFile = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PuzzleFile returns the deterministic document path for a puzzle ID,
// relative to the room directory. Repeated exports overwrite it.
func PuzzleFile(id string) string {
	name := strings.Trim(unsafeFile.ReplaceAllString(id, "-"), ".-")
	return "puzzles/" + name + ".json"
}

// SceneFile returns the document path for a scene, relative to the room
// directory.
func SceneFile(s Scene) string {
	return "scenes/" + s.FileSlug() + ".json"
}

// InlinePuzzleID names a puzzle embedded in a step's own config.
func InlinePuzzleID(sceneID string, stepNumber int) string {
	return sceneID + "-puzzle-" + strconv.Itoa(stepNumber)
}

func configString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// configNumber reads a numeric config value. present is false when key is
// absent or null; ok is false when it is present but not a finite number.
func configNumber(m map[string]any, key string) (v float64, present, ok bool) {
	raw, exists := m[key]
	if !exists || raw == nil {
		return 0, false, true
	}
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, true, false
		}
		v = f
	default:
		return 0, true, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, true, false
	}
	return v, true, true
}

func configMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// PuzzleIDs returns the catalog puzzle IDs referenced by puzzle steps, in
// first-reference order.
func PuzzleIDs(steps []SceneStep) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, s := range steps {
		if s.StepType != StepPuzzle {
			continue
		}
		id := configString(s.Config, "puzzle_id")
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
