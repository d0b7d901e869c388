package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v int64) *int64 { return &v }

func TestGraphKeypadTerminates(t *testing.T) {
	cfg := loadKeypad(t)
	tr := NewTree(cfg.Timeline, 0)
	g := BuildGraph(tr)

	assert.Equal(t, "intro", g.Entry)
	assert.Contains(t, g.Successors("intro"), Edge{From: "intro", To: "lights", Label: EdgeChild})
	assert.Contains(t, g.Successors("hint"), Edge{From: "hint", To: "wait-code", Label: EdgeNext}, "last child flows to the next root")
	assert.Contains(t, g.Successors("wait-code"), Edge{From: "wait-code", To: "lose", Label: EdgeTimeout})
	assert.Empty(t, g.Successors("win"))

	a := g.Analyze(tr)
	assert.True(t, a.Terminates())
	assert.True(t, a.CanSolve)
	assert.Empty(t, a.Unreachable)
	assert.Empty(t, a.UnboundedWatches)
}

func TestGraphFallThrough(t *testing.T) {
	tr := NewTree([]Block{act("a1", "d/c")}, 0)
	a := BuildGraph(tr).Analyze(tr)
	assert.True(t, a.FallsThrough)
	assert.Equal(t, []string{"a1"}, a.Stuck)
	assert.False(t, a.CanSolve)
	assert.False(t, a.Terminates())
}

func TestGraphUnreachableAndMissing(t *testing.T) {
	tr := NewTree([]Block{
		CheckBlock{Header: Header{ID: "c1"}, OnTrue: "win", OnFalse: "nowhere"},
		act("a2", "d/c"),
		SolveBlock{Header: Header{ID: "win"}},
	}, 0)
	g := BuildGraph(tr)
	require.Len(t, g.Missing, 1)
	assert.Equal(t, BranchRef{BlockID: "c1", Label: EdgeOnFalse, Target: "nowhere"}, g.Missing[0])

	a := g.Analyze(tr)
	assert.Equal(t, []string{"a2"}, a.Unreachable)
	assert.False(t, a.Terminates(), "missing targets never count as terminating")
}

func TestGraphCheckFallsThroughWithoutTargets(t *testing.T) {
	tr := NewTree([]Block{
		CheckBlock{Header: Header{ID: "c1"}},
		SolveBlock{Header: Header{ID: "win"}},
	}, 0)
	g := BuildGraph(tr)
	assert.ElementsMatch(t, []Edge{
		{From: "c1", To: "win", Label: EdgeOnTrue},
		{From: "c1", To: "win", Label: EdgeOnFalse},
	}, g.Successors("c1"))
}

func TestGraphResetLoopIsStuck(t *testing.T) {
	tr := NewTree([]Block{
		WatchBlock{Header: Header{ID: "w"}},
		ResetBlock{Header: Header{ID: "r"}},
	}, 0)
	a := BuildGraph(tr).Analyze(tr)
	assert.False(t, a.FallsThrough, "reset restarts rather than ending")
	assert.Equal(t, []string{"w", "r"}, a.Stuck)
	assert.Equal(t, []string{"w"}, a.UnboundedWatches)
}

func TestGraphWatchTimeoutDefaultsToNext(t *testing.T) {
	tr := NewTree([]Block{
		WatchBlock{Header: Header{ID: "w"}, TimeoutMs: ms(1000)},
		FailBlock{Header: Header{ID: "f"}},
	}, 0)
	g := BuildGraph(tr)
	assert.Equal(t, []Edge{
		{From: "w", To: "f", Label: EdgeNext},
		{From: "w", To: "f", Label: EdgeTimeout},
	}, g.Successors("w"))
}

func TestGraphEmptyTree(t *testing.T) {
	tr := NewTree(nil, 0)
	a := BuildGraph(tr).Analyze(tr)
	assert.Equal(t, EndNode, a.Entry)
	assert.True(t, a.FallsThrough)
}
