package timeline

import (
	"maps"

	"github.com/AaronLay10/SentientTimeline/internal/blocks"
	"github.com/AaronLay10/SentientTimeline/internal/diag"
)

// Actions the compiler emits for steps that are not device commands.
const (
	ActionPuzzleActivate = "puzzle.activate"
	ActionLoopStop       = "loop.stop"
	ActionAudioPlay      = "audio.play"
)

// Execution annotates an entry the executor repeats until a loop.stop.
type Execution struct {
	Mode     ExecutionMode `json:"mode"`
	Interval int64         `json:"interval"`
	LoopID   string        `json:"loopId"`
}

// Entry is one compiled timeline instruction. DelayMs is the absolute
// offset from scene start.
type Entry struct {
	DelayMs      int64          `json:"delayMs"`
	StepType     StepType       `json:"stepType"`
	StepID       string         `json:"stepId,omitempty"`
	Name         string         `json:"name,omitempty"`
	Action       string         `json:"action"`
	Target       string         `json:"target,omitempty"`
	Duration     *int64         `json:"duration,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	Execution    *Execution     `json:"execution,omitempty"`
	PuzzleFile   string         `json:"puzzleFile,omitempty"`
	WaitForSolve *bool          `json:"waitForSolve,omitempty"`
	LoopID       string         `json:"loopId,omitempty"`
}

// Compiled is the output of one compilation.
type Compiled struct {
	Timeline            []Entry
	Devices             []string
	EstimatedDurationMs int64
	PuzzleFiles         []string
	Puzzles             []PuzzleDocument
}

// Compile lowers steps into a timeline in a single forward pass over
// step_number order. It is a pure function of its input. When validation
// reports errors it returns nil with the findings; warnings are returned
// alongside a successful result.
func Compile(steps []SceneStep, opts Options) (*Compiled, diag.List) {
	findings, puzzles := validate(steps, opts)
	if findings.HasErrors() {
		return nil, findings
	}

	c := &Compiled{
		Timeline:    []Entry{},
		Devices:     []string{},
		PuzzleFiles: []string{},
	}
	seenDevice := make(map[string]bool)
	seenPuzzle := make(map[string]bool)
	var cumulative int64

	for _, it := range ordered(steps) {
		s := it.step
		delayAfter := millis(s.TimingConfig, "delay_after_ms")
		entry := Entry{DelayMs: cumulative, StepType: s.StepType, StepID: s.ID, Name: s.Name}

		switch s.StepType {
		case StepWait:
			// Folded into the offset; never materialized.
			cumulative += waitDuration(s) + delayAfter
			continue

		case StepPuzzle:
			p := puzzles[it.pos]
			file := PuzzleFile(p.ID)
			wait := waitForSolve(s)
			entry.Action = ActionPuzzleActivate
			entry.PuzzleFile = file
			entry.WaitForSolve = &wait
			c.Timeline = append(c.Timeline, entry)
			if !seenPuzzle[file] {
				seenPuzzle[file] = true
				c.PuzzleFiles = append(c.PuzzleFiles, file)
				c.Puzzles = append(c.Puzzles, NewPuzzleDocument(p))
			}
			cumulative += delayAfter
			continue

		case StepStopLoop:
			entry.Action = ActionLoopStop
			entry.LoopID = s.loopID()
			c.Timeline = append(c.Timeline, entry)
			cumulative += millis(s.TimingConfig, "duration_ms") + delayAfter
			continue
		}

		entry.Action, entry.Target = resolveAction(s)
		entry.Params = params(s)
		dur, hasDur := stepDuration(s)
		if hasDur {
			entry.Duration = &dur
		}
		if s.Looping() {
			entry.Execution = &Execution{Mode: ModeLoop, Interval: *s.ExecutionInterval, LoopID: *s.LoopID}
		}
		c.Timeline = append(c.Timeline, entry)
		if entry.Target != "" && !seenDevice[entry.Target] {
			seenDevice[entry.Target] = true
			c.Devices = append(c.Devices, entry.Target)
		}
		cumulative += dur + delayAfter
	}

	c.EstimatedDurationMs = cumulative
	return c, findings
}

func resolveAction(s SceneStep) (action, target string) {
	switch s.StepType {
	case StepAudio:
		return ActionAudioPlay, configString(s.Config, "audio_cue")
	default:
		return configString(s.Config, "command"), configString(s.Config, "device_id")
	}
}

func params(s SceneStep) map[string]any {
	var out map[string]any
	if p := configMap(s.Config, "params"); len(p) > 0 {
		out = maps.Clone(p)
	}
	if s.StepType == StepAudio {
		if dev := configString(s.Config, "audio_device"); dev != "" {
			if out == nil {
				out = make(map[string]any)
			}
			out["device"] = dev
		}
	}
	return out
}

// stepDuration returns the step's own run time. Video durations are
// configured in seconds.
func stepDuration(s SceneStep) (int64, bool) {
	if s.StepType == StepVideo {
		if v, present, ok := configNumber(s.Config, "duration_seconds"); present && ok {
			return toMillis(v * 1000), true
		}
	}
	if v, present, ok := configNumber(s.TimingConfig, "duration_ms"); present && ok {
		return toMillis(v), true
	}
	return 0, false
}

func waitDuration(s SceneStep) int64 {
	if _, present, _ := configNumber(s.TimingConfig, "duration_ms"); present {
		return millis(s.TimingConfig, "duration_ms")
	}
	return millis(s.Config, "duration_ms")
}

func waitForSolve(s SceneStep) bool {
	if v, ok := s.Config["wait_for_solve"].(bool); ok {
		return v
	}
	return true
}

func millis(m map[string]any, key string) int64 {
	v, present, ok := configNumber(m, key)
	if !present || !ok {
		return 0
	}
	return toMillis(v)
}

// puzzleDocName is the fixed name every puzzle document carries; the
// executor tells documents apart by id.
const puzzleDocName = "puzzle"

// PuzzleDocument is the standalone document the executor loads for a
// puzzle activation.
type PuzzleDocument struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Devices     []string          `json:"devices"`
	Timeline    blocks.List       `json:"timeline"`
	Variables   []blocks.Variable `json:"variables,omitempty"`
	OnSolve     OnSolve           `json:"onSolve"`
}

// OnSolve lists the actions run when the puzzle is solved.
type OnSolve struct {
	Actions []blocks.Action `json:"actions"`
}

// NewPuzzleDocument builds the document for p. Devices are collected from
// action targets, audio devices and condition device IDs in document order.
func NewPuzzleDocument(p Puzzle) PuzzleDocument {
	cfg := p.Config
	if cfg == nil {
		cfg = &blocks.PuzzleConfig{}
	}
	doc := PuzzleDocument{
		ID:          p.ID,
		Name:        puzzleDocName,
		Description: p.Description,
		Devices:     []string{},
		Timeline:    cfg.Timeline,
		Variables:   cfg.Variables,
		OnSolve:     OnSolve{Actions: append([]blocks.Action{}, cfg.OnSolve...)},
	}
	if doc.Timeline == nil {
		doc.Timeline = blocks.List{}
	}

	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			doc.Devices = append(doc.Devices, id)
		}
	}
	blocks.NewTree(cfg.Timeline, 0).Walk(func(b blocks.Block, _ blocks.Path, _ int) bool {
		switch v := b.(type) {
		case blocks.ActionBlock:
			add(v.Action.Device())
		case blocks.AudioBlock:
			add(v.Device)
		case blocks.WatchBlock:
			for _, c := range v.Conditions.Conditions {
				add(c.DeviceID)
			}
		case blocks.CheckBlock:
			for _, c := range v.Conditions.Conditions {
				add(c.DeviceID)
			}
		}
		return true
	})
	for _, a := range cfg.OnSolve {
		add(a.Device())
	}
	return doc
}
