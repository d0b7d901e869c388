// Package execsync projects the executor's lifecycle event stream onto
// per-scene and per-puzzle display state. It does not depend on how the
// events are transported.
package execsync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// Name is an executor event name. Names are the wire contract.
type Name string

const (
	SceneStarted           Name = "scene-started"
	SceneUpdated           Name = "scene-updated"
	SceneCompleted         Name = "scene-completed"
	CutsceneAction         Name = "cutscene-action"
	TimelineBlockStarted   Name = "timeline-block-started"
	TimelineBlockActive    Name = "timeline-block-active"
	TimelineBlockCompleted Name = "timeline-block-completed"
	TimelineCompleted      Name = "timeline-completed"
	TimelineError          Name = "timeline-error"
	PuzzleStarted          Name = "puzzle-started"
	PuzzleSolved           Name = "puzzle-solved"
	PuzzleFailed           Name = "puzzle-failed"
	PuzzleReset            Name = "puzzle-reset"
)

// ErrUnknownEvent is returned when decoding a name outside the contract.
var ErrUnknownEvent = errors.New("unknown execution event")

// Event is one executor lifecycle event. EntityID is the scene or puzzle
// the event belongs to.
type Event interface {
	Name() Name
	EntityID() string
}

// SceneLifecycle carries scene-started, scene-updated and scene-completed.
type SceneLifecycle struct {
	Kind               Name   `json:"-"`
	ID                 string `json:"id"`
	SceneName          string `json:"name"`
	RoomID             string `json:"roomId"`
	State              string `json:"state"`
	CurrentActionIndex *int   `json:"currentActionIndex,omitempty"`
}

// ActionDispatched is cutscene-action: the executor issued a timeline entry.
type ActionDispatched struct {
	SceneID string         `json:"sceneId"`
	Action  timeline.Entry `json:"action"`
	Index   int            `json:"index"`
}

// BlockRef identifies a block or step the executor is working on. The
// executor sends either a bare blockId or the whole block; only its id is
// read.
type BlockRef struct {
	BlockID string          `json:"blockId,omitempty"`
	Block   json.RawMessage `json:"block,omitempty"`
}

// ID returns the referenced block ID.
func (r BlockRef) ID() string {
	if r.BlockID != "" {
		return r.BlockID
	}
	if len(r.Block) == 0 {
		return ""
	}
	var b struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(r.Block, &b); err != nil {
		return ""
	}
	return b.ID
}

// BlockProgress carries timeline-block-started, -active and -completed.
// Puzzle runs report their puzzle ID instead of a scene ID.
type BlockProgress struct {
	Kind     Name   `json:"-"`
	SceneID  string `json:"sceneId,omitempty"`
	PuzzleID string `json:"puzzleId,omitempty"`
	BlockRef
	SensorData map[string]any `json:"sensorData,omitempty"`
}

// TimelineDone is timeline-completed.
type TimelineDone struct {
	SceneID     string `json:"sceneId"`
	TotalBlocks int    `json:"totalBlocks"`
	TotalTimeMs int64  `json:"totalTimeMs"`
}

// TimelineFailure is timeline-error.
type TimelineFailure struct {
	SceneID string `json:"sceneId"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// PuzzleLifecycle carries puzzle-started, -solved, -failed and -reset.
type PuzzleLifecycle struct {
	Kind     Name   `json:"-"`
	PuzzleID string `json:"puzzleId"`
	SceneID  string `json:"sceneId,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (e SceneLifecycle) Name() Name       { return e.Kind }
func (e SceneLifecycle) EntityID() string { return e.ID }

func (e ActionDispatched) Name() Name       { return CutsceneAction }
func (e ActionDispatched) EntityID() string { return e.SceneID }

func (e BlockProgress) Name() Name { return e.Kind }
func (e BlockProgress) EntityID() string {
	if e.SceneID != "" {
		return e.SceneID
	}
	return e.PuzzleID
}

func (e TimelineDone) Name() Name       { return TimelineCompleted }
func (e TimelineDone) EntityID() string { return e.SceneID }

func (e TimelineFailure) Name() Name       { return TimelineError }
func (e TimelineFailure) EntityID() string { return e.SceneID }

func (e PuzzleLifecycle) Name() Name       { return e.Kind }
func (e PuzzleLifecycle) EntityID() string { return e.PuzzleID }

// envelope is the wire form: {"event": name, "data": payload}.
type envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode parses one wire message into a typed event.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse execution event: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("missing 'event' field")
	}
	return DecodeData(env.Event, env.Data)
}

// DecodeData parses the payload of a named event.
func DecodeData(name Name, data json.RawMessage) (Event, error) {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	var (
		ev  Event
		err error
	)
	switch name {
	case SceneStarted, SceneUpdated, SceneCompleted:
		var e SceneLifecycle
		err = json.Unmarshal(data, &e)
		e.Kind = name
		ev = e
	case CutsceneAction:
		var e ActionDispatched
		err = json.Unmarshal(data, &e)
		ev = e
	case TimelineBlockStarted, TimelineBlockActive, TimelineBlockCompleted:
		var e BlockProgress
		err = json.Unmarshal(data, &e)
		e.Kind = name
		ev = e
	case TimelineCompleted:
		var e TimelineDone
		err = json.Unmarshal(data, &e)
		ev = e
	case TimelineError:
		var e TimelineFailure
		err = json.Unmarshal(data, &e)
		ev = e
	case PuzzleStarted, PuzzleSolved, PuzzleFailed, PuzzleReset:
		var e PuzzleLifecycle
		err = json.Unmarshal(data, &e)
		e.Kind = name
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", name, err)
	}
	if ev.EntityID() == "" {
		return nil, fmt.Errorf("%s: missing scene or puzzle id", name)
	}
	return ev, nil
}

// Encode renders ev in wire form.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: ev.Name(), Data: data})
}
