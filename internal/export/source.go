package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/SentientTimeline/internal/blocks"
	"github.com/AaronLay10/SentientTimeline/internal/storage/postgres"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// Bundle is everything needed to compile one scene.
type Bundle struct {
	Scene    timeline.Scene             `json:"scene"`
	RoomSlug string                     `json:"room_slug"`
	Steps    []timeline.SceneStep       `json:"steps"`
	Puzzles  map[string]timeline.Puzzle `json:"-"`
}

// Source loads the bundle for a scene.
type Source interface {
	Load(ctx context.Context, sceneID string) (*Bundle, error)
}

// StaticSource serves bundles held in memory, keyed by scene ID.
type StaticSource map[string]*Bundle

// Load implements Source.
func (s StaticSource) Load(ctx context.Context, sceneID string) (*Bundle, error) {
	b, ok := s[sceneID]
	if !ok {
		return nil, fmt.Errorf("scene %q: %w", sceneID, postgres.ErrNotFound)
	}
	return b, nil
}

// PostgresSource reads scenes, steps and puzzles from the database.
type PostgresSource struct {
	Client *postgres.Client
}

// Load implements Source.
func (s *PostgresSource) Load(ctx context.Context, sceneID string) (*Bundle, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("postgres not configured")
	}
	row, err := s.Client.LoadScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	stepRows, err := s.Client.LoadSteps(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	steps := make([]timeline.SceneStep, 0, len(stepRows))
	for _, r := range stepRows {
		st, err := stepFromRow(r)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}

	puzzleRows, err := s.Client.LoadPuzzles(ctx, timeline.PuzzleIDs(steps))
	if err != nil {
		return nil, err
	}
	puzzles := make(map[string]timeline.Puzzle, len(puzzleRows))
	for _, r := range puzzleRows {
		p, err := puzzleFromRow(r)
		if err != nil {
			return nil, err
		}
		puzzles[p.ID] = p
	}

	return &Bundle{
		Scene: timeline.Scene{
			ID:          row.ID,
			RoomID:      row.RoomID,
			Name:        row.Name,
			Description: row.Description,
			SceneNumber: row.SceneNumber,
			Slug:        row.Slug,
		},
		RoomSlug: row.RoomSlug,
		Steps:    steps,
		Puzzles:  puzzles,
	}, nil
}

func stepFromRow(r postgres.StepRow) (timeline.SceneStep, error) {
	st := timeline.SceneStep{
		ID:                r.ID,
		SceneID:           r.SceneID,
		StepNumber:        r.StepNumber,
		StepType:          timeline.StepType(r.StepType),
		Name:              r.Name,
		Required:          r.Required,
		Repeatable:        r.Repeatable,
		MaxAttempts:       r.MaxAttempts,
		ExecutionMode:     timeline.ExecutionMode(r.ExecutionMode),
		ExecutionInterval: r.ExecutionInterval,
		LoopID:            r.LoopID,
	}
	if err := decodeObject(r.Config, &st.Config); err != nil {
		return st, fmt.Errorf("step %s: invalid config: %w", r.ID, err)
	}
	if err := decodeObject(r.TimingConfig, &st.TimingConfig); err != nil {
		return st, fmt.Errorf("step %s: invalid timing_config: %w", r.ID, err)
	}
	return st, nil
}

func puzzleFromRow(r postgres.PuzzleRow) (timeline.Puzzle, error) {
	p := timeline.Puzzle{ID: r.ID, Name: r.Name, Description: r.Description}
	if len(r.Config) == 0 || string(r.Config) == "null" {
		p.Config = &blocks.PuzzleConfig{}
		return p, nil
	}
	cfg, err := blocks.ParsePuzzleConfig(r.Config)
	if err != nil {
		return p, fmt.Errorf("puzzle %s: %w", r.ID, err)
	}
	p.Config = cfg
	return p, nil
}

func decodeObject(raw json.RawMessage, out *map[string]any) error {
	*out = map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// bundleFile is the on-disk form read by LoadBundleFile. Puzzle configs
// stay raw so they go through the block codec.
type bundleFile struct {
	Bundle
	Puzzles []struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Config      json.RawMessage `json:"config"`
	} `json:"puzzles"`
}

// LoadBundleFile reads a scene bundle from a YAML or JSON file.
func LoadBundleFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	data, err = ToJSON(path, data)
	if err != nil {
		return nil, err
	}
	return ParseBundle(data)
}

// ParseBundle decodes a JSON scene bundle. Puzzle configs are parsed and
// keyed by puzzle ID.
func ParseBundle(data []byte) (*Bundle, error) {
	var f bundleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	b := f.Bundle
	b.Puzzles = make(map[string]timeline.Puzzle, len(f.Puzzles))
	for _, raw := range f.Puzzles {
		if raw.ID == "" {
			return nil, fmt.Errorf("puzzle missing 'id' field")
		}
		p, err := puzzleFromRow(postgres.PuzzleRow{ID: raw.ID, Name: raw.Name, Description: raw.Description, Config: raw.Config})
		if err != nil {
			return nil, err
		}
		b.Puzzles[p.ID] = p
	}
	return &b, nil
}

// ToJSON converts YAML documents to JSON so one set of json tags governs
// both encodings. JSON input passes through.
func ToJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to convert yaml: %w", err)
	}
	return out, nil
}
