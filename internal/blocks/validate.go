package blocks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AaronLay10/SentientTimeline/internal/condition"
	"github.com/AaronLay10/SentientTimeline/internal/diag"
)

// Options tunes puzzle validation.
type Options struct {
	// MaxDepth bounds state nesting; zero means unlimited.
	MaxDepth int
	// RequireWatchTimeout turns unbounded watches from a warning into an error.
	RequireWatchTimeout bool
}

// ValidateConfig checks a puzzle config and collects every finding instead
// of stopping at the first. Errors block compilation; warnings do not.
func ValidateConfig(cfg *PuzzleConfig, opts Options) diag.List {
	var out diag.List
	if cfg == nil {
		out.Errorf("E300", "config", "", "missing puzzle config")
		return out
	}

	declared := validateVariables(cfg.Variables, &out)

	tree := NewTree(cfg.Timeline, 0)
	paths := make(map[string]string)
	tree.Walk(func(b Block, p Path, depth int) bool {
		id := b.Head().ID
		field := fieldPath(p)
		if prev, dup := paths[id]; dup {
			out.Errorf("E301", field+".id", id, "duplicate block ID (first at %s)", prev)
		} else {
			paths[id] = field
		}
		if opts.MaxDepth > 0 && depth > opts.MaxDepth {
			out.Errorf("E303", field, id, "nested %d states deep (max %d)", depth, opts.MaxDepth)
		}
		validateBlock(b, field, declared, &out)
		return true
	})

	for i, a := range cfg.OnSolve {
		validateAction(a, fmt.Sprintf("onSolve[%d]", i), "", declared, &out)
	}

	g := BuildGraph(tree)
	for _, m := range g.Missing {
		out.Errorf("E302", paths[m.BlockID]+"."+string(m.Label), m.BlockID, "target %q does not exist", m.Target)
	}

	a := g.Analyze(tree)
	for _, id := range a.Unreachable {
		out.Warnf("W301", paths[id], id, "block is unreachable")
	}
	if a.FallsThrough {
		out.Warnf("W302", "timeline", "", "a path reaches the end without solve or fail")
	}
	for _, id := range a.UnboundedWatches {
		field := paths[id] + ".timeoutMs"
		if opts.RequireWatchTimeout {
			out.Errorf("E310", field, id, "watch has no timeout")
		} else {
			out.Warnf("W303", field, id, "watch has no timeout and may wait forever")
		}
	}
	if len(cfg.Timeline) > 0 && !a.CanSolve {
		out.Warnf("W304", "timeline", "", "no path reaches a solve block")
	}
	return out
}

func validateVariables(vars []Variable, out *diag.List) map[string]VariableType {
	declared := make(map[string]VariableType, len(vars))
	for i, v := range vars {
		field := fmt.Sprintf("variables[%d]", i)
		if v.Name == "" {
			out.Errorf("E308", field+".name", "", "missing 'name' field")
			continue
		}
		if _, dup := declared[v.Name]; dup {
			out.Errorf("E307", field+".name", v.Name, "duplicate variable")
			continue
		}
		declared[v.Name] = v.Type
		if !v.Type.Valid() {
			out.Errorf("E308", field+".type", v.Name, "unknown variable type %q", v.Type)
			continue
		}
		if v.DefaultValue != nil && !v.Type.Accepts(v.DefaultValue) {
			out.Errorf("E308", field+".defaultValue", v.Name, "default is not a %s", v.Type)
		}
	}
	return declared
}

func validateBlock(b Block, field string, declared map[string]VariableType, out *diag.List) {
	id := b.Head().ID
	switch v := b.(type) {
	case WatchBlock:
		validateConditions(v.Conditions.Conditions, field+".watchConditions", id, out)
		if v.TimeoutMs != nil && *v.TimeoutMs <= 0 {
			out.Errorf("E304", field+".timeoutMs", id, "timeout must be positive")
		}
	case CheckBlock:
		validateConditions(v.Conditions.Conditions, field+".watchConditions", id, out)
	case ActionBlock:
		validateAction(v.Action, field+".action", id, declared, out)
	case SetVariableBlock:
		t, ok := declared[v.Variable]
		if !ok {
			out.Errorf("E305", field+".variableName", id, "unknown variable %q", v.Variable)
			return
		}
		if v.Source == SourceStatic && v.Value != nil && t.Valid() && !t.Accepts(v.Value) {
			out.Errorf("E306", field+".variableValue", id, "value is not a %s", t)
		}
	}
}

func validateConditions(conds []condition.Condition, field, id string, out *diag.List) {
	for i, c := range conds {
		if err := c.Check(); err != nil {
			out.Errorf("E304", fmt.Sprintf("%s.conditions[%d]", field, i), id, "%v", err)
		}
	}
}

func validateAction(a Action, field, id string, declared map[string]VariableType, out *diag.List) {
	if a.Device() == "" || a.Command() == "" {
		out.Errorf("E309", field+".target", id, "target %q is not <deviceId>/<commandName>", a.Target)
	}
	if a.DelayMs < 0 {
		out.Errorf("E309", field+".delayMs", id, "delay must not be negative")
	}
	for _, name := range PayloadVariables(a.Payload) {
		if _, ok := declared[name]; !ok {
			out.Errorf("E305", field+".payload", id, "unknown variable %q", name)
		}
	}
}

// fieldPath renders p as timeline[0].childBlocks[2].
func fieldPath(p Path) string {
	var b strings.Builder
	for i, idx := range p {
		if i == 0 {
			b.WriteString("timeline[")
		} else {
			b.WriteString(".childBlocks[")
		}
		b.WriteString(strconv.Itoa(idx))
		b.WriteString("]")
	}
	return b.String()
}
