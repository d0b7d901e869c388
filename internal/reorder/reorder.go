// Package reorder renumbers the steps of a scene under the
// UNIQUE(scene_id, step_number) constraint without any intermediate state
// ever holding two steps with the same number.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

// placeholderBase offsets the negative placeholder range used by the first
// phase. Live step numbers are always positive, so the ranges are disjoint.
const placeholderBase = 10000

// Strategy selects how the new numbering is applied.
type Strategy string

const (
	// TwoPhase moves every step to a negative placeholder and then to its
	// final number. It works on any engine with immediate unique checks.
	TwoPhase Strategy = "two_phase"
	// Deferred defers the unique check to commit and assigns final numbers
	// directly. The engine must support deferrable constraints.
	Deferred Strategy = "deferred"
)

// ParseStrategy maps a config value to a Strategy. Empty means TwoPhase.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", TwoPhase:
		return TwoPhase, nil
	case Deferred:
		return Deferred, nil
	}
	return "", fmt.Errorf("unknown reorder strategy %q", s)
}

// Tx is one open transaction scoped to a scene.
type Tx interface {
	// StepIDs returns the scene's current step IDs and locks their rows.
	StepIDs(ctx context.Context) ([]string, error)
	SetStepNumber(ctx context.Context, stepID string, n int) error
	DeferConstraints(ctx context.Context) error
	Commit() error
	Rollback() error
}

// Store opens scene transactions.
type Store interface {
	Begin(ctx context.Context, sceneID string) (Tx, error)
}

// ErrConcurrentReorder is returned when another reorder of the same scene
// is already running in this process.
var ErrConcurrentReorder = errors.New("reorder already in progress for scene")

// MismatchError reports an ordering that is not a permutation of the
// scene's steps.
type MismatchError struct {
	Missing    []string // steps in the scene but not in the request
	Unknown    []string // requested IDs that are not steps of the scene
	Duplicates []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("ordering does not match scene steps (missing %v, unknown %v, duplicates %v)",
		e.Missing, e.Unknown, e.Duplicates)
}

// Engine applies reorders. Reorders of the same scene are serialized in
// process; the Store is expected to serialize across processes.
type Engine struct {
	store    Store
	strategy Strategy

	mu     sync.Mutex
	active map[string]bool
}

// New returns an engine over store.
func New(store Store, strategy Strategy) *Engine {
	if strategy == "" {
		strategy = TwoPhase
	}
	return &Engine{store: store, strategy: strategy, active: make(map[string]bool)}
}

// Reorder assigns step_number i+1 to orderedIDs[i] atomically. Any failure
// rolls back both phases.
func (e *Engine) Reorder(ctx context.Context, sceneID string, orderedIDs []string) (err error) {
	if !e.acquire(sceneID) {
		return fmt.Errorf("scene %q: %w", sceneID, ErrConcurrentReorder)
	}
	defer e.release(sceneID)

	start := time.Now()
	defer func() {
		fields := map[string]interface{}{
			"scene_id":    sceneID,
			"steps":       len(orderedIDs),
			"strategy":    string(e.strategy),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if err != nil {
			fields["error"] = err.Error()
			events.Emit("error", "reorder.failed", "step reorder rolled back", fields)
			return
		}
		events.Emit("info", "reorder.completed", "", fields)
	}()

	tx, err := e.store.Begin(ctx, sceneID)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	current, err := tx.StepIDs(ctx)
	if err != nil {
		return fmt.Errorf("load steps: %w", err)
	}
	if err := checkPermutation(current, orderedIDs); err != nil {
		return err
	}

	switch e.strategy {
	case Deferred:
		if err := tx.DeferConstraints(ctx); err != nil {
			return fmt.Errorf("defer constraints: %w", err)
		}
	default:
		for i, id := range orderedIDs {
			if err := tx.SetStepNumber(ctx, id, -(i + placeholderBase)); err != nil {
				return fmt.Errorf("placeholder for step %q: %w", id, err)
			}
		}
	}
	for i, id := range orderedIDs {
		if err := tx.SetStepNumber(ctx, id, i+1); err != nil {
			return fmt.Errorf("number step %q: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	committed = true
	return nil
}

func (e *Engine) acquire(sceneID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[sceneID] {
		return false
	}
	e.active[sceneID] = true
	return true
}

func (e *Engine) release(sceneID string) {
	e.mu.Lock()
	delete(e.active, sceneID)
	e.mu.Unlock()
}

func checkPermutation(current, ordered []string) error {
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
	}
	var mm MismatchError
	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		if seen[id] {
			mm.Duplicates = append(mm.Duplicates, id)
			continue
		}
		seen[id] = true
		if !have[id] {
			mm.Unknown = append(mm.Unknown, id)
		}
	}
	for _, id := range current {
		if !seen[id] {
			mm.Missing = append(mm.Missing, id)
		}
	}
	if len(mm.Missing)+len(mm.Unknown)+len(mm.Duplicates) > 0 {
		slices.Sort(mm.Missing)
		return &mm
	}
	return nil
}
