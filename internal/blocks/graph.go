package blocks

// EndNode is the sink reached when execution falls off the last block
// without a verdict.
const EndNode = "$end"

// EdgeLabel names a control transfer.
type EdgeLabel string

const (
	EdgeNext    EdgeLabel = "next"
	EdgeChild   EdgeLabel = "child"
	EdgeOnTrue  EdgeLabel = "onTrue"
	EdgeOnFalse EdgeLabel = "onFalse"
	EdgeTimeout EdgeLabel = "timeout"
	EdgeRestart EdgeLabel = "restart"
)

// Edge is a directed transition between two block IDs.
type Edge struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Label EdgeLabel `json:"label"`
}

// BranchRef is a branch or timeout target naming a block that does not exist.
type BranchRef struct {
	BlockID string    `json:"block_id"`
	Label   EdgeLabel `json:"label"`
	Target  string    `json:"target"`
}

// Graph is the explicit control-flow graph of a block tree.
type Graph struct {
	Entry   string
	Order   []string // block IDs in document order
	Kinds   map[string]Kind
	Edges   []Edge
	Missing []BranchRef
	Dupes   []string

	out map[string][]Edge
}

// BuildGraph lowers the tree into nodes and labeled edges. Sibling order
// gives the next edges; check and watch targets become branch edges; reset
// restarts at the entry block.
func BuildGraph(t Tree) *Graph {
	g := &Graph{Kinds: make(map[string]Kind), out: make(map[string][]Edge)}

	t.Walk(func(b Block, _ Path, _ int) bool {
		id := b.Head().ID
		if _, seen := g.Kinds[id]; seen {
			g.Dupes = append(g.Dupes, id)
			return true
		}
		g.Kinds[id] = b.Kind()
		g.Order = append(g.Order, id)
		return true
	})

	g.Entry = EndNode
	if len(t.roots) > 0 {
		g.Entry = t.roots[0].Head().ID
	}
	g.link(t.roots, EndNode)
	return g
}

// link adds edges for list, where follow is the node reached after the
// last block of the list.
func (g *Graph) link(list []Block, follow string) {
	for i, b := range list {
		next := follow
		if i+1 < len(list) {
			next = list[i+1].Head().ID
		}
		id := b.Head().ID

		switch v := b.(type) {
		case StateBlock:
			if len(v.Children) == 0 {
				g.add(id, next, EdgeNext)
				continue
			}
			g.add(id, v.Children[0].Head().ID, EdgeChild)
			g.link(v.Children, next)
		case CheckBlock:
			g.branch(id, v.OnTrue, next, EdgeOnTrue)
			g.branch(id, v.OnFalse, next, EdgeOnFalse)
		case WatchBlock:
			g.add(id, next, EdgeNext)
			if v.TimeoutMs != nil || v.OnTimeout != "" {
				g.branch(id, v.OnTimeout, next, EdgeTimeout)
			}
		case SolveBlock, FailBlock:
			// verdict; no outgoing edges
		case ResetBlock:
			g.add(id, g.Entry, EdgeRestart)
		default:
			g.add(id, next, EdgeNext)
		}
	}
}

func (g *Graph) branch(from, target, follow string, label EdgeLabel) {
	if target == "" {
		g.add(from, follow, label)
		return
	}
	if _, ok := g.Kinds[target]; !ok {
		g.Missing = append(g.Missing, BranchRef{BlockID: from, Label: label, Target: target})
		return
	}
	g.add(from, target, label)
}

func (g *Graph) add(from, to string, label EdgeLabel) {
	e := Edge{From: from, To: to, Label: label}
	g.Edges = append(g.Edges, e)
	g.out[from] = append(g.out[from], e)
}

// Successors returns the outgoing edges of id.
func (g *Graph) Successors(id string) []Edge {
	return g.out[id]
}

// Reachable returns the set of nodes reachable from the entry, including
// EndNode when execution can fall off the end.
func (g *Graph) Reachable() map[string]bool {
	seen := make(map[string]bool)
	queue := []string{g.Entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, e := range g.out[cur] {
			if !seen[e.To] {
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// Analysis summarizes static checks over a graph.
type Analysis struct {
	Entry          string      `json:"entry"`
	DuplicateIDs   []string    `json:"duplicate_ids,omitempty"`
	MissingTargets []BranchRef `json:"missing_targets,omitempty"`
	Unreachable    []string    `json:"unreachable,omitempty"`
	// FallsThrough is true when some path runs past the last block without
	// reaching solve or fail.
	FallsThrough bool `json:"falls_through"`
	// Stuck lists reachable blocks from which no solve or fail is reachable.
	Stuck []string `json:"stuck,omitempty"`
	// UnboundedWatches lists watch blocks with no timeout.
	UnboundedWatches []string `json:"unbounded_watches,omitempty"`
	CanSolve         bool     `json:"can_solve"`
}

// Terminates reports whether every path ends in solve or fail.
func (a Analysis) Terminates() bool {
	return !a.FallsThrough && len(a.Stuck) == 0 && len(a.MissingTargets) == 0
}

// Analyze runs reachability and termination checks.
func (g *Graph) Analyze(t Tree) Analysis {
	a := Analysis{
		Entry:          g.Entry,
		DuplicateIDs:   g.Dupes,
		MissingTargets: g.Missing,
	}

	reach := g.Reachable()
	a.FallsThrough = reach[EndNode]
	for _, id := range g.Order {
		if !reach[id] {
			a.Unreachable = append(a.Unreachable, id)
		}
	}

	// Reverse search from every verdict block.
	in := make(map[string][]string)
	for _, e := range g.Edges {
		in[e.To] = append(in[e.To], e.From)
	}
	canFinish := make(map[string]bool)
	var queue []string
	for _, id := range g.Order {
		if g.Kinds[id].Terminal() {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if canFinish[cur] {
			continue
		}
		canFinish[cur] = true
		queue = append(queue, in[cur]...)
	}
	for _, id := range g.Order {
		if reach[id] && !canFinish[id] {
			a.Stuck = append(a.Stuck, id)
		}
		if reach[id] && g.Kinds[id] == KindSolve {
			a.CanSolve = true
		}
	}

	t.Walk(func(b Block, _ Path, _ int) bool {
		if w, ok := b.(WatchBlock); ok && w.TimeoutMs == nil {
			a.UnboundedWatches = append(a.UnboundedWatches, w.ID)
		}
		return true
	})
	return a
}
