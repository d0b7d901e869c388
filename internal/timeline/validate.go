package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"

	"github.com/AaronLay10/SentientTimeline/internal/blocks"
	"github.com/AaronLay10/SentientTimeline/internal/diag"
)

// DeviceCatalog answers whether a device is known to the room.
type DeviceCatalog interface {
	HasDevice(id string) bool
}

// CommandCatalog is implemented by catalogs that also know which commands a
// device accepts. known is false when the catalog has no signal list for
// the device.
type CommandCatalog interface {
	SupportsCommand(id, command string) (known, ok bool)
}

// Puzzle is a persisted puzzle record.
type Puzzle struct {
	ID          string
	Name        string
	Description string
	Config      *blocks.PuzzleConfig
}

// Options supplies the collaborators compilation checks against.
type Options struct {
	// Puzzles maps puzzle IDs to records. A puzzle step naming an ID that is
	// absent here does not compile.
	Puzzles map[string]Puzzle
	// Devices, when set, turns unknown device IDs into warnings.
	Devices DeviceCatalog
	// Blocks tunes validation of each referenced puzzle.
	Blocks blocks.Options
}

// indexed pairs a step with its position in the caller's slice so findings
// name the field the caller sent.
type indexed struct {
	pos  int
	step SceneStep
}

// ordered returns steps sorted by step_number, stable for equal numbers.
func ordered(steps []SceneStep) []indexed {
	out := make([]indexed, len(steps))
	for i, s := range steps {
		out[i] = indexed{pos: i, step: s}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].step.StepNumber < out[b].step.StepNumber
	})
	return out
}

// Validate checks every step and every referenced puzzle, collecting all
// findings. Compilation proceeds only when it reports no errors.
func Validate(steps []SceneStep, opts Options) diag.List {
	out, _ := validate(steps, opts)
	return out
}

// validate also returns the puzzles resolved per step position so Compile
// does not decode inline configs twice.
func validate(steps []SceneStep, opts Options) (diag.List, map[int]Puzzle) {
	var out diag.List
	resolved := make(map[int]Puzzle)
	numbers := make(map[int]int)
	started := make(map[string]bool)
	stopped := make(map[string]bool)
	loopStart := make(map[string]string)
	files := make(map[string]string)

	for _, it := range ordered(steps) {
		s := it.step
		field := fmt.Sprintf("steps[%d]", it.pos)

		if prev, dup := numbers[s.StepNumber]; dup {
			out.Errorf("E202", field+".step_number", s.ID, "step_number %d already used by steps[%d]", s.StepNumber, prev)
		} else {
			numbers[s.StepNumber] = it.pos
		}
		if s.StepNumber <= 0 {
			out.Errorf("E209", field+".step_number", s.ID, "step_number must be positive")
		}

		if !s.StepType.Valid() {
			out.Errorf("E201", field+".step_type", s.ID, "unknown step type %q", s.StepType)
			continue
		}

		switch s.ExecutionMode {
		case "", ModeOnce:
		case ModeLoop:
			switch s.StepType {
			case StepVideo, StepAudio, StepEffect:
			default:
				out.Errorf("E208", field+".execution_mode", s.ID, "%s steps cannot loop", s.StepType)
			}
			if s.ExecutionInterval == nil {
				out.Errorf("E204", field+".execution_interval", s.ID, "missing 'execution_interval' field")
			} else if *s.ExecutionInterval <= 0 {
				out.Errorf("E204", field+".execution_interval", s.ID, "execution_interval must be positive")
			}
			if s.LoopID == nil || *s.LoopID == "" {
				out.Errorf("E204", field+".loop_id", s.ID, "missing 'loop_id' field")
			} else {
				started[*s.LoopID] = true
				loopStart[*s.LoopID] = field
			}
		default:
			out.Errorf("E208", field+".execution_mode", s.ID, "unknown execution mode %q", s.ExecutionMode)
		}

		validateTiming(s, field, &out)

		switch s.StepType {
		case StepVideo, StepEffect:
			requireConfig(s, field, "device_id", &out)
			requireConfig(s, field, "command", &out)
			checkDevice(s, field, opts.Devices, &out)
		case StepAudio:
			requireConfig(s, field, "audio_cue", &out)
			if dev := configString(s.Config, "audio_device"); dev != "" && opts.Devices != nil && !opts.Devices.HasDevice(dev) {
				out.Warnf("W202", field+".config.audio_device", s.ID, "unknown device %q", dev)
			}
		case StepStopLoop:
			id := s.loopID()
			if id == "" {
				out.Errorf("E203", field+".config.loop_id", s.ID, "missing 'loop_id' field")
				break
			}
			if !started[id] {
				out.Warnf("W201", field+".config.loop_id", s.ID, "loop %q is not started by an earlier step", id)
				break
			}
			stopped[id] = true
		case StepPuzzle:
			if p, ok := resolvePuzzle(s, field, opts, &out); ok && checkPuzzleFile(s, field, p.ID, files, &out) {
				resolved[it.pos] = p
			}
		}
	}

	for _, id := range slices.Sorted(maps.Keys(loopStart)) {
		if !stopped[id] {
			out.Warnf("W203", loopStart[id]+".loop_id", "", "loop %q is never stopped", id)
		}
	}
	return out, resolved
}

// checkPuzzleFile rejects a puzzle whose document path is already taken by
// a different puzzle ID, since both would be written to the same file.
func checkPuzzleFile(s SceneStep, field, id string, files map[string]string, out *diag.List) bool {
	file := PuzzleFile(id)
	if file == PuzzleFile("") {
		out.Errorf("E210", field+".config.puzzle_id", s.ID, "puzzle id %q has no usable file name", id)
		return false
	}
	if other, taken := files[file]; taken && other != id {
		out.Errorf("E210", field+".config.puzzle_id", s.ID, "puzzle %q would overwrite %s written for puzzle %q", id, file, other)
		return false
	}
	files[file] = id
	return true
}

func requireConfig(s SceneStep, field, key string, out *diag.List) {
	if configString(s.Config, key) == "" {
		out.Errorf("E203", field+".config."+key, s.ID, "missing '%s' field", key)
	}
}

func checkDevice(s SceneStep, field string, devices DeviceCatalog, out *diag.List) {
	dev := configString(s.Config, "device_id")
	if dev == "" || devices == nil {
		return
	}
	if !devices.HasDevice(dev) {
		out.Warnf("W202", field+".config.device_id", s.ID, "unknown device %q", dev)
		return
	}
	cmds, ok := devices.(CommandCatalog)
	if !ok {
		return
	}
	command := configString(s.Config, "command")
	if known, accepted := cmds.SupportsCommand(dev, command); command != "" && known && !accepted {
		out.Warnf("W204", field+".config.command", s.ID, "device %q does not accept command %q", dev, command)
	}
}

// MaxDurationMs bounds every configured duration and delay. Offsets are
// sums of these, so the bound keeps them far from overflowing int64.
const MaxDurationMs = 7 * 24 * 60 * 60 * 1000

func validateTiming(s SceneStep, field string, out *diag.List) {
	check := func(m map[string]any, path, key string, scale float64) {
		v, present, ok := configNumber(m, key)
		if !present {
			return
		}
		if !ok {
			out.Errorf("E205", field+"."+path+"."+key, s.ID, "%s must be a number", key)
			return
		}
		switch {
		case v < 0:
			out.Errorf("E205", field+"."+path+"."+key, s.ID, "%s must not be negative", key)
		case v*scale > MaxDurationMs:
			out.Errorf("E205", field+"."+path+"."+key, s.ID, "%s exceeds %d ms", key, MaxDurationMs)
		}
	}
	check(s.TimingConfig, "timing_config", "duration_ms", 1)
	check(s.TimingConfig, "timing_config", "delay_after_ms", 1)
	switch s.StepType {
	case StepVideo:
		check(s.Config, "config", "duration_seconds", 1000)
	case StepWait:
		check(s.Config, "config", "duration_ms", 1)
	}
}

// resolvePuzzle finds the puzzle a step activates, either in the catalog or
// inline in the step config, and validates its block timeline.
func resolvePuzzle(s SceneStep, field string, opts Options, out *diag.List) (Puzzle, bool) {
	id := configString(s.Config, "puzzle_id")
	var p Puzzle

	switch {
	case id != "":
		rec, ok := opts.Puzzles[id]
		if !ok {
			out.Errorf("E206", field+".config.puzzle_id", s.ID, "puzzle %q not found", id)
			return Puzzle{}, false
		}
		p = rec
		p.ID = id
	case s.Config["timeline"] != nil:
		cfg, err := inlineConfig(s.Config)
		if err != nil {
			msg := err.Error()
			var de *blocks.DecodeError
			if errors.As(err, &de) {
				msg = de.Error()
			}
			out.Errorf("E207", field+".config.timeline", s.ID, "%s", msg)
			return Puzzle{}, false
		}
		p = Puzzle{ID: InlinePuzzleID(s.SceneID, s.StepNumber), Name: s.Name, Config: cfg}
	default:
		out.Errorf("E203", field+".config.puzzle_id", s.ID, "missing 'puzzle_id' field")
		return Puzzle{}, false
	}

	if p.Config == nil {
		p.Config = &blocks.PuzzleConfig{}
	}
	before := len(*out)
	for _, d := range blocks.ValidateConfig(p.Config, opts.Blocks) {
		d.Field = field + ".puzzle." + d.Field
		if d.Ref == "" {
			d.Ref = p.ID
		}
		*out = append(*out, d)
	}
	return p, !(*out)[before:].HasErrors()
}

// inlineConfig re-decodes the step's embedded timeline through the block
// codec so variant payloads are checked the same way as stored configs.
func inlineConfig(cfg map[string]any) (*blocks.PuzzleConfig, error) {
	doc := map[string]any{"timeline": cfg["timeline"]}
	for _, key := range []string{"variables", "onSolve"} {
		if v, ok := cfg[key]; ok && v != nil {
			doc[key] = v
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inline puzzle: %w", err)
	}
	return blocks.ParsePuzzleConfig(raw)
}

func toMillis(v float64) int64 {
	return int64(math.Round(v))
}
