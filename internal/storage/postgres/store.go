package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a scene or puzzle row does not exist.
var ErrNotFound = errors.New("not found")

// SceneRow is a scenes row joined with its room.
type SceneRow struct {
	ID          string
	RoomID      string
	RoomSlug    string
	Name        string
	Description string
	SceneNumber int
	Slug        string
}

// StepRow is a scene_steps row. Config and TimingConfig are raw JSONB.
type StepRow struct {
	ID                string
	SceneID           string
	StepNumber        int
	StepType          string
	Name              string
	Config            json.RawMessage
	TimingConfig      json.RawMessage
	Required          bool
	Repeatable        bool
	MaxAttempts       *int
	ExecutionMode     string
	ExecutionInterval *int64
	LoopID            *string
}

// PuzzleRow is a puzzles row. Config is the whole authoring blob.
type PuzzleRow struct {
	ID          string
	RoomID      string
	Name        string
	Description string
	Config      json.RawMessage
}

// LoadScene reads one scene and the slug of its room.
func (c *Client) LoadScene(ctx context.Context, sceneID string) (*SceneRow, error) {
	query := `
		SELECT s.id, s.room_id, COALESCE(r.slug, ''), s.name, COALESCE(s.description, ''),
		       COALESCE(s.scene_number, 0), COALESCE(s.slug, '')
		FROM scenes s
		LEFT JOIN rooms r ON r.id = s.room_id
		WHERE s.id = $1
	`
	var row SceneRow
	err := c.db.QueryRowContext(ctx, query, sceneID).Scan(
		&row.ID, &row.RoomID, &row.RoomSlug, &row.Name, &row.Description, &row.SceneNumber, &row.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scene %q: %w", sceneID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scene %q: %w", sceneID, err)
	}
	return &row, nil
}

// LoadSteps reads every step of a scene in step_number order.
func (c *Client) LoadSteps(ctx context.Context, sceneID string) ([]StepRow, error) {
	query := `
		SELECT id, scene_id, step_number, step_type, COALESCE(name, ''), config, timing_config,
		       required, repeatable, max_attempts, COALESCE(execution_mode, 'once'),
		       execution_interval, loop_id
		FROM scene_steps
		WHERE scene_id = $1
		ORDER BY step_number ASC
	`
	rows, err := c.db.QueryContext(ctx, query, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for scene %q: %w", sceneID, err)
	}
	defer rows.Close()

	var steps []StepRow
	for rows.Next() {
		var s StepRow
		var config, timing []byte
		var maxAttempts, interval sql.NullInt64
		var loopID sql.NullString

		if err := rows.Scan(&s.ID, &s.SceneID, &s.StepNumber, &s.StepType, &s.Name, &config, &timing,
			&s.Required, &s.Repeatable, &maxAttempts, &s.ExecutionMode, &interval, &loopID); err != nil {
			return nil, err
		}
		s.Config = json.RawMessage(config)
		s.TimingConfig = json.RawMessage(timing)
		if maxAttempts.Valid {
			n := int(maxAttempts.Int64)
			s.MaxAttempts = &n
		}
		if interval.Valid {
			s.ExecutionInterval = &interval.Int64
		}
		if loopID.Valid {
			s.LoopID = &loopID.String
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// LoadPuzzles reads the puzzles with the given IDs. Missing IDs are simply
// absent from the result.
func (c *Client) LoadPuzzles(ctx context.Context, ids []string) ([]PuzzleRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, room_id, name, COALESCE(description, ''), config
		FROM puzzles
		WHERE id = ANY($1)
	`
	rows, err := c.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load puzzles: %w", err)
	}
	defer rows.Close()

	var puzzles []PuzzleRow
	for rows.Next() {
		var p PuzzleRow
		var config []byte
		if err := rows.Scan(&p.ID, &p.RoomID, &p.Name, &p.Description, &config); err != nil {
			return nil, err
		}
		p.Config = json.RawMessage(config)
		puzzles = append(puzzles, p)
	}
	return puzzles, rows.Err()
}

// ReplacePuzzleConfig overwrites a puzzle's config blob wholesale.
func (c *Client) ReplacePuzzleConfig(ctx context.Context, puzzleID string, config []byte) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE puzzles SET config = $2, updated_at = NOW() WHERE id = $1`,
		puzzleID, config)
	if err != nil {
		return fmt.Errorf("failed to replace puzzle config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to replace puzzle config: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("puzzle %q: %w", puzzleID, ErrNotFound)
	}
	return nil
}
