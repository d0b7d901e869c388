package execsync

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/condition"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// Status is the display state of one block or step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeSolved    Outcome = "solved"
	OutcomeFailed    Outcome = "failed"
	OutcomeError     Outcome = "error"
)

// Tracker holds the projected state of one scene or puzzle run. It is not
// safe for concurrent use; Projector serializes access.
type Tracker struct {
	entityID   string
	active     string
	completed  map[string]bool
	sensors    map[string]any
	state      string
	name       string
	actionIdx  int
	lastAction *timeline.Entry
	lastError  string
	outcome    Outcome
	updated    time.Time
	now        func() time.Time
}

// NewTracker returns an empty tracker observing entityID.
func NewTracker(entityID string) *Tracker {
	return &Tracker{
		entityID:  entityID,
		completed: make(map[string]bool),
		sensors:   make(map[string]any),
		actionIdx: -1,
		now:       time.Now,
	}
}

// EntityID returns the observed scene or puzzle ID.
func (t *Tracker) EntityID() string { return t.entityID }

// Apply folds ev into the state. Events for other entities are ignored and
// reported as not applied. Applying the same event twice has no further
// effect.
func (t *Tracker) Apply(ev Event) bool {
	if ev == nil || ev.EntityID() != t.entityID {
		return false
	}

	switch e := ev.(type) {
	case SceneLifecycle:
		if e.SceneName != "" {
			t.name = e.SceneName
		}
		if e.State != "" {
			t.state = e.State
		}
		if e.CurrentActionIndex != nil {
			t.actionIdx = *e.CurrentActionIndex
		}
		switch e.Kind {
		case SceneStarted:
			t.restart()
			if e.CurrentActionIndex != nil {
				t.actionIdx = *e.CurrentActionIndex
			}
		case SceneCompleted:
			t.active = ""
			t.outcome = OutcomeCompleted
		}

	case ActionDispatched:
		t.actionIdx = e.Index
		action := e.Action
		t.lastAction = &action

	case BlockProgress:
		id := e.ID()
		switch e.Kind {
		case TimelineBlockStarted:
			if id != "" {
				t.active = id
			}
		case TimelineBlockActive:
			t.mergeSensors(e.SensorData)
		case TimelineBlockCompleted:
			if id != "" {
				t.completed[id] = true
			}
		}
		if e.Kind != TimelineBlockActive {
			t.mergeSensors(e.SensorData)
		}

	case TimelineDone:
		t.active = ""
		t.outcome = OutcomeCompleted

	case TimelineFailure:
		t.lastError = e.Error.Message
		t.outcome = OutcomeError

	case PuzzleLifecycle:
		switch e.Kind {
		case PuzzleStarted, PuzzleReset:
			t.restart()
		case PuzzleSolved:
			t.active = ""
			t.outcome = OutcomeSolved
		case PuzzleFailed:
			t.active = ""
			t.outcome = OutcomeFailed
			t.lastError = e.Reason
		}
	}

	t.updated = t.now()
	return true
}

func (t *Tracker) restart() {
	t.active = ""
	t.completed = make(map[string]bool)
	t.actionIdx = -1
	t.lastAction = nil
	t.lastError = ""
	t.outcome = OutcomeNone
}

// mergeSensors records readings keyed "<deviceId>/<sensor>". A reading
// nested one level under a device ID is flattened to that form.
func (t *Tracker) mergeSensors(data map[string]any) {
	for k, v := range data {
		if nested, ok := v.(map[string]any); ok && !strings.Contains(k, "/") {
			for sensor, sv := range nested {
				t.sensors[k+"/"+sensor] = sv
			}
			continue
		}
		t.sensors[k] = v
	}
}

// Status returns the display state of id. Completed wins over active, so a
// block stays completed after its completion event even while still the
// most recently started one.
func (t *Tracker) Status(id string) Status {
	if t.completed[id] {
		return StatusCompleted
	}
	if id != "" && id == t.active {
		return StatusActive
	}
	return StatusPending
}

// Active returns the active block or step ID, or "".
func (t *Tracker) Active() string { return t.active }

// Completed returns the completed IDs, sorted.
func (t *Tracker) Completed() []string {
	return slices.Sorted(maps.Keys(t.completed))
}

// SensorEnv converts the sensor snapshot into a condition environment so
// watch conditions can be evaluated against live readings.
func (t *Tracker) SensorEnv() condition.Env {
	env := make(condition.Env, len(t.sensors))
	for k, v := range t.sensors {
		env[condition.ParseSensorKey(k)] = v
	}
	return env
}

// Snapshot is a serializable copy of a tracker.
type Snapshot struct {
	EntityID           string          `json:"entity_id"`
	Name               string          `json:"name,omitempty"`
	State              string          `json:"state,omitempty"`
	Active             *string         `json:"active"`
	Completed          []string        `json:"completed"`
	Sensors            map[string]any  `json:"sensors"`
	CurrentActionIndex int             `json:"current_action_index"`
	LastAction         *timeline.Entry `json:"last_action,omitempty"`
	LastError          string          `json:"last_error,omitempty"`
	Outcome            Outcome         `json:"outcome,omitempty"`
	UpdatedAt          string          `json:"updated_at,omitempty"`
}

// Snapshot copies the current state.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		EntityID:           t.entityID,
		Name:               t.name,
		State:              t.state,
		Completed:          t.Completed(),
		Sensors:            maps.Clone(t.sensors),
		CurrentActionIndex: t.actionIdx,
		LastError:          t.lastError,
		Outcome:            t.outcome,
	}
	if s.Completed == nil {
		s.Completed = []string{}
	}
	if t.active != "" {
		active := t.active
		s.Active = &active
	}
	if t.lastAction != nil {
		action := *t.lastAction
		s.LastAction = &action
	}
	if !t.updated.IsZero() {
		s.UpdatedAt = t.updated.UTC().Format(time.RFC3339Nano)
	}
	return s
}
