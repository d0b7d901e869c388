package blocks

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/AaronLay10/SentientTimeline/internal/condition"
)

// wireBlock is the flat JSON form the editor persists.
type wireBlock struct {
	ID              string           `json:"id"`
	Type            Kind             `json:"type"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Expanded        bool             `json:"expanded"`
	ChildBlocks     []wireBlock      `json:"childBlocks,omitempty"`
	WatchConditions *condition.Group `json:"watchConditions,omitempty"`
	// CheckConditions is an older spelling accepted on check blocks.
	CheckConditions *condition.Group `json:"checkConditions,omitempty"`
	TimeoutMs       *int64           `json:"timeoutMs,omitempty"`
	OnTimeout       string           `json:"onTimeout,omitempty"`
	OnTrue          string           `json:"onTrue,omitempty"`
	OnFalse         string           `json:"onFalse,omitempty"`
	Action          *Action          `json:"action,omitempty"`
	AudioCue        string           `json:"audioCue,omitempty"`
	AudioDevice     string           `json:"audioDevice,omitempty"`
	VariableName    string           `json:"variableName,omitempty"`
	VariableValue   any              `json:"variableValue,omitempty"`
	VariableSource  VariableSource   `json:"variableSource,omitempty"`
}

// List is an ordered sequence of blocks with the editor's JSON encoding.
type List []Block

// MarshalJSON encodes the blocks in wire form.
func (l List) MarshalJSON() ([]byte, error) {
	wire := make([]wireBlock, len(l))
	for i, b := range l {
		w, err := toWire(b)
		if err != nil {
			return nil, err
		}
		wire[i] = w
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes wire blocks, checking each variant's required payload.
func (l *List) UnmarshalJSON(data []byte) error {
	var wire []wireBlock
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(List, len(wire))
	for i, w := range wire {
		b, err := fromWire(w)
		if err != nil {
			return err
		}
		out[i] = b
	}
	*l = out
	return nil
}

// DecodeError names the block and field that failed to decode.
type DecodeError struct {
	BlockID string
	Kind    Kind
	Field   string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("block %q (%s): %s: %s", e.BlockID, e.Kind, e.Field, e.Reason)
}

func fromWire(w wireBlock) (Block, error) {
	h := Header{ID: w.ID, Name: w.Name, Description: w.Description, Expanded: w.Expanded}
	missing := func(field string) error {
		return &DecodeError{BlockID: w.ID, Kind: w.Type, Field: field, Reason: "missing '" + field + "' field"}
	}
	if w.ID == "" {
		return nil, missing("id")
	}
	if w.Type != KindState && len(w.ChildBlocks) > 0 {
		return nil, &DecodeError{BlockID: w.ID, Kind: w.Type, Field: "childBlocks", Reason: "only state blocks have children"}
	}

	switch w.Type {
	case KindState:
		children := make([]Block, 0, len(w.ChildBlocks))
		for _, cw := range w.ChildBlocks {
			c, err := fromWire(cw)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return StateBlock{Header: h, Children: children}, nil

	case KindWatch:
		if w.WatchConditions == nil {
			return nil, missing("watchConditions")
		}
		return WatchBlock{Header: h, Conditions: normalizeGroup(*w.WatchConditions), TimeoutMs: w.TimeoutMs, OnTimeout: w.OnTimeout}, nil

	case KindCheck:
		g := w.WatchConditions
		if g == nil {
			g = w.CheckConditions
		}
		if g == nil {
			return nil, missing("watchConditions")
		}
		return CheckBlock{Header: h, Conditions: normalizeGroup(*g), OnTrue: w.OnTrue, OnFalse: w.OnFalse}, nil

	case KindAction:
		if w.Action == nil {
			return nil, missing("action")
		}
		if w.Action.Target == "" {
			return nil, missing("action.target")
		}
		if w.Action.Type == "" {
			return nil, missing("action.type")
		}
		return ActionBlock{Header: h, Action: *w.Action}, nil

	case KindAudio:
		if w.AudioCue == "" {
			return nil, missing("audioCue")
		}
		return AudioBlock{Header: h, Cue: w.AudioCue, Device: w.AudioDevice}, nil

	case KindSetVariable:
		if w.VariableName == "" {
			return nil, missing("variableName")
		}
		src := w.VariableSource
		if src == "" {
			src = SourceStatic
		}
		if !src.Valid() {
			return nil, &DecodeError{BlockID: w.ID, Kind: w.Type, Field: "variableSource", Reason: fmt.Sprintf("unknown source %q", src)}
		}
		return SetVariableBlock{Header: h, Variable: w.VariableName, Value: w.VariableValue, Source: src}, nil

	case KindSolve:
		return SolveBlock{Header: h}, nil
	case KindFail:
		return FailBlock{Header: h}, nil
	case KindReset:
		return ResetBlock{Header: h}, nil
	}
	return nil, &DecodeError{BlockID: w.ID, Kind: w.Type, Field: "type", Reason: fmt.Sprintf("unknown block type %q", w.Type)}
}

func normalizeGroup(g condition.Group) condition.Group {
	if g.Logic == "" {
		g.Logic = condition.LogicAnd
	}
	return g
}

func toWire(b Block) (wireBlock, error) {
	h := b.Head()
	w := wireBlock{ID: h.ID, Type: b.Kind(), Name: h.Name, Description: h.Description, Expanded: h.Expanded}

	switch v := b.(type) {
	case StateBlock:
		for _, c := range v.Children {
			cw, err := toWire(c)
			if err != nil {
				return wireBlock{}, err
			}
			w.ChildBlocks = append(w.ChildBlocks, cw)
		}
	case WatchBlock:
		g := v.Conditions
		w.WatchConditions = &g
		w.TimeoutMs = v.TimeoutMs
		w.OnTimeout = v.OnTimeout
	case CheckBlock:
		g := v.Conditions
		w.WatchConditions = &g
		w.OnTrue = v.OnTrue
		w.OnFalse = v.OnFalse
	case ActionBlock:
		a := v.Action
		w.Action = &a
	case AudioBlock:
		w.AudioCue = v.Cue
		w.AudioDevice = v.Device
	case SetVariableBlock:
		w.VariableName = v.Variable
		w.VariableValue = v.Value
		w.VariableSource = v.Source
	case SolveBlock, FailBlock, ResetBlock:
	default:
		return wireBlock{}, fmt.Errorf("block %q: unsupported block type %T", h.ID, b)
	}
	return w, nil
}

// PuzzleConfig is the JSON blob persisted for a puzzle: the entire block
// timeline and variable set, overwritten wholesale on every save.
type PuzzleConfig struct {
	Timeline  List       `json:"timeline"`
	Variables []Variable `json:"variables,omitempty"`
	OnSolve   []Action   `json:"onSolve,omitempty"`
}

// ParsePuzzleConfig decodes a persisted puzzle config.
func ParsePuzzleConfig(data []byte) (*PuzzleConfig, error) {
	var cfg PuzzleConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse puzzle config: %w", err)
	}
	return &cfg, nil
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
