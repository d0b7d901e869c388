// Package blocks defines the puzzle authoring model: typed blocks arranged
// in a tree, puzzle variables, and the control-flow graph they describe.
package blocks

import (
	"strings"

	"github.com/google/uuid"

	"github.com/AaronLay10/SentientTimeline/internal/condition"
)

// Kind discriminates block variants.
type Kind string

const (
	KindState       Kind = "state"
	KindWatch       Kind = "watch"
	KindAction      Kind = "action"
	KindAudio       Kind = "audio"
	KindCheck       Kind = "check"
	KindSetVariable Kind = "set_variable"
	KindSolve       Kind = "solve"
	KindFail        Kind = "fail"
	KindReset       Kind = "reset"
)

// Terminal reports whether blocks of this kind end puzzle execution.
func (k Kind) Terminal() bool {
	return k == KindSolve || k == KindFail
}

// Draggable reports whether the editor lets authors move this kind.
func (k Kind) Draggable() bool {
	return !k.Terminal()
}

// Header carries the fields every block has.
type Header struct {
	ID          string
	Name        string
	Description string
	Expanded    bool // editor state, persisted for continuity
}

// Block is one node of the authoring tree.
type Block interface {
	Head() Header
	Kind() Kind
}

// Head returns the common fields.
func (h Header) Head() Header { return h }

// StateBlock groups child blocks. It is the only container kind.
type StateBlock struct {
	Header
	Children []Block
}

// WatchBlock waits until its conditions hold. TimeoutMs, when set, bounds
// the wait and transfers control to OnTimeout (or the next sibling).
type WatchBlock struct {
	Header
	Conditions condition.Group
	TimeoutMs  *int64
	OnTimeout  string
}

// CheckBlock evaluates its conditions once and jumps to OnTrue or OnFalse.
// An empty target falls through to the next sibling.
type CheckBlock struct {
	Header
	Conditions condition.Group
	OnTrue     string
	OnFalse    string
}

// ActionBlock issues a single device command.
type ActionBlock struct {
	Header
	Action Action
}

// AudioBlock plays a cue on an audio device.
type AudioBlock struct {
	Header
	Cue    string
	Device string
}

// SetVariableBlock assigns a puzzle variable.
type SetVariableBlock struct {
	Header
	Variable string
	Value    any
	Source   VariableSource
}

// SolveBlock ends the puzzle as solved.
type SolveBlock struct{ Header }

// FailBlock ends the puzzle as failed.
type FailBlock struct{ Header }

// ResetBlock restarts the puzzle from its first block without ending it.
type ResetBlock struct{ Header }

func (StateBlock) Kind() Kind       { return KindState }
func (WatchBlock) Kind() Kind       { return KindWatch }
func (CheckBlock) Kind() Kind       { return KindCheck }
func (ActionBlock) Kind() Kind      { return KindAction }
func (AudioBlock) Kind() Kind       { return KindAudio }
func (SetVariableBlock) Kind() Kind { return KindSetVariable }
func (SolveBlock) Kind() Kind       { return KindSolve }
func (FailBlock) Kind() Kind        { return KindFail }
func (ResetBlock) Kind() Kind       { return KindReset }

// Action is a device command. Target is "<deviceId>/<commandName>".
type Action struct {
	Type    string `json:"type"`
	Target  string `json:"target"`
	Payload any    `json:"payload,omitempty"`
	DelayMs int64  `json:"delayMs,omitempty"`
}

// Device returns the device part of Target.
func (a Action) Device() string {
	device, _, _ := strings.Cut(a.Target, "/")
	return device
}

// Command returns the command part of Target, or "" if Target has no slash.
func (a Action) Command() string {
	_, command, _ := strings.Cut(a.Target, "/")
	return command
}

// VariableSource says where a set_variable value comes from.
type VariableSource string

const (
	SourceStatic      VariableSource = "static"
	SourceSensor      VariableSource = "sensor"
	SourceCalculation VariableSource = "calculation"
)

// Valid reports whether s is a known source.
func (s VariableSource) Valid() bool {
	switch s {
	case SourceStatic, SourceSensor, SourceCalculation:
		return true
	}
	return false
}

// NewID returns a fresh block ID.
func NewID() string {
	return uuid.NewString()
}

// Children returns the child blocks of b, or nil for non-containers.
func Children(b Block) []Block {
	if s, ok := b.(StateBlock); ok {
		return s.Children
	}
	return nil
}

// WithHeader returns a copy of b carrying h.
func WithHeader(b Block, h Header) Block {
	switch v := b.(type) {
	case StateBlock:
		v.Header = h
		return v
	case WatchBlock:
		v.Header = h
		return v
	case CheckBlock:
		v.Header = h
		return v
	case ActionBlock:
		v.Header = h
		return v
	case AudioBlock:
		v.Header = h
		return v
	case SetVariableBlock:
		v.Header = h
		return v
	case SolveBlock:
		v.Header = h
		return v
	case FailBlock:
		v.Header = h
		return v
	case ResetBlock:
		v.Header = h
		return v
	}
	return b
}
