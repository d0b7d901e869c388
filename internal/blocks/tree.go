package blocks

import (
	"errors"
	"fmt"
)

// Path addresses a block by child indices from the root list.
type Path []int

// Tree is an immutable block tree. Every mutation returns a new tree and
// leaves the receiver unchanged; unchanged subtrees are shared.
type Tree struct {
	roots    []Block
	maxDepth int
}

// ErrNotFound is returned when a path or ID addresses no block.
var ErrNotFound = errors.New("block not found")

// DepthError reports a state nested deeper than the tree allows.
type DepthError struct {
	BlockID string
	Depth   int
	Max     int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("block %q would be nested at depth %d (max %d)", e.BlockID, e.Depth, e.Max)
}

// NewTree builds a tree over a copy of roots. maxDepth bounds how many
// state levels may enclose a block; zero means unlimited.
func NewTree(roots []Block, maxDepth int) Tree {
	return Tree{roots: append([]Block(nil), roots...), maxDepth: maxDepth}
}

// Blocks returns a copy of the root list.
func (t Tree) Blocks() List {
	return append(List(nil), t.roots...)
}

// Len returns the number of root blocks.
func (t Tree) Len() int { return len(t.roots) }

// Walk visits blocks depth-first in document order. Returning false from
// fn skips the block's children.
func (t Tree) Walk(fn func(b Block, p Path, depth int) bool) {
	var walk func(list []Block, prefix Path, depth int)
	walk = func(list []Block, prefix Path, depth int) {
		for i, b := range list {
			p := append(append(Path(nil), prefix...), i)
			if fn(b, p, depth) {
				walk(Children(b), p, depth+1)
			}
		}
	}
	walk(t.roots, nil, 0)
}

// Find returns the path of the block with the given ID.
func (t Tree) Find(id string) (Path, bool) {
	var found Path
	t.Walk(func(b Block, p Path, _ int) bool {
		if found != nil {
			return false
		}
		if b.Head().ID == id {
			found = p
			return false
		}
		return true
	})
	return found, found != nil
}

// At returns the block at p.
func (t Tree) At(p Path) (Block, bool) {
	if len(p) == 0 {
		return nil, false
	}
	list := t.roots
	var b Block
	for _, idx := range p {
		if idx < 0 || idx >= len(list) {
			return nil, false
		}
		b = list[idx]
		list = Children(b)
	}
	return b, true
}

// Replace returns a tree with the block at p replaced by b.
func (t Tree) Replace(p Path, b Block) (Tree, error) {
	if _, ok := t.At(p); !ok {
		return t, fmt.Errorf("replace %v: %w", p, ErrNotFound)
	}
	if err := t.checkDepth(b, len(p)-1); err != nil {
		return t, err
	}
	roots := replaceAt(t.roots, p, func([]Block, int) []Block { return nil }, b)
	return Tree{roots: roots, maxDepth: t.maxDepth}, nil
}

// Update applies fn to the block with the given ID.
func (t Tree) Update(id string, fn func(Block) Block) (Tree, error) {
	p, ok := t.Find(id)
	if !ok {
		return t, fmt.Errorf("update %q: %w", id, ErrNotFound)
	}
	cur, _ := t.At(p)
	next := fn(cur)
	if next.Head().ID != id {
		return t, fmt.Errorf("update %q: block ID must not change", id)
	}
	return t.Replace(p, next)
}

// Insert adds b as the index-th child of the state at parent, or of the
// root list when parent is empty. An index past the end appends. A block
// without an ID gets a fresh one.
func (t Tree) Insert(parent Path, index int, b Block) (Tree, error) {
	h := b.Head()
	if h.ID == "" {
		h.ID = NewID()
		b = WithHeader(b, h)
	} else if _, exists := t.Find(h.ID); exists {
		return t, fmt.Errorf("insert %q: duplicate block ID", h.ID)
	}
	if err := t.checkDepth(b, len(parent)); err != nil {
		return t, err
	}

	insert := func(list []Block) []Block {
		if index < 0 || index > len(list) {
			index = len(list)
		}
		out := make([]Block, 0, len(list)+1)
		out = append(out, list[:index]...)
		out = append(out, b)
		return append(out, list[index:]...)
	}

	if len(parent) == 0 {
		return Tree{roots: insert(t.roots), maxDepth: t.maxDepth}, nil
	}
	pb, ok := t.At(parent)
	if !ok {
		return t, fmt.Errorf("insert into %v: %w", parent, ErrNotFound)
	}
	state, ok := pb.(StateBlock)
	if !ok {
		return t, fmt.Errorf("insert into %q: %s blocks cannot have children", pb.Head().ID, pb.Kind())
	}
	state.Children = insert(state.Children)
	return t.Replace(parent, state)
}

// Remove returns a tree without the block at p, and the removed block.
func (t Tree) Remove(p Path) (Tree, Block, error) {
	b, ok := t.At(p)
	if !ok {
		return t, nil, fmt.Errorf("remove %v: %w", p, ErrNotFound)
	}
	drop := func(list []Block, idx int) []Block {
		out := make([]Block, 0, len(list)-1)
		out = append(out, list[:idx]...)
		return append(out, list[idx+1:]...)
	}
	roots := replaceAt(t.roots, p, drop, nil)
	return Tree{roots: roots, maxDepth: t.maxDepth}, b, nil
}

// Move relocates the block with the given ID to the index-th position of
// the state with parentID, or of the root list when parentID is empty.
func (t Tree) Move(id, parentID string, index int) (Tree, error) {
	src, ok := t.Find(id)
	if !ok {
		return t, fmt.Errorf("move %q: %w", id, ErrNotFound)
	}
	b, _ := t.At(src)
	if !b.Kind().Draggable() {
		return t, fmt.Errorf("move %q: %s blocks are not movable", id, b.Kind())
	}
	if parentID == id {
		return t, fmt.Errorf("move %q: cannot move a block into itself", id)
	}
	if parentID != "" {
		dst, ok := t.Find(parentID)
		if !ok {
			return t, fmt.Errorf("move %q into %q: %w", id, parentID, ErrNotFound)
		}
		if hasPrefix(dst, src) {
			return t, fmt.Errorf("move %q: cannot move a block into its own descendant", id)
		}
	}

	without, moved, err := t.Remove(src)
	if err != nil {
		return t, err
	}
	var parent Path
	if parentID != "" {
		parent, _ = without.Find(parentID)
	}
	// Insert rejects duplicate IDs, and the moved block is no longer present.
	return without.Insert(parent, index, moved)
}

func (t Tree) checkDepth(b Block, depth int) error {
	if t.maxDepth <= 0 {
		return nil
	}
	var err error
	var check func(b Block, depth int)
	check = func(b Block, depth int) {
		if err != nil {
			return
		}
		if depth > t.maxDepth {
			err = &DepthError{BlockID: b.Head().ID, Depth: depth, Max: t.maxDepth}
			return
		}
		for _, c := range Children(b) {
			check(c, depth+1)
		}
	}
	check(b, depth)
	return err
}

// replaceAt rebuilds the spine along p. At the last index it either swaps in
// b (when b is non-nil) or applies edit to the containing list.
func replaceAt(list []Block, p Path, edit func([]Block, int) []Block, b Block) []Block {
	idx := p[0]
	if len(p) == 1 {
		if b == nil {
			return edit(list, idx)
		}
		out := append([]Block(nil), list...)
		out[idx] = b
		return out
	}
	state := list[idx].(StateBlock)
	state.Children = replaceAt(state.Children, p[1:], edit, b)
	out := append([]Block(nil), list...)
	out[idx] = state
	return out
}

func hasPrefix(p, prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}
