package blocks

// History keeps tree snapshots for undo and redo. Trees are immutable, so a
// snapshot is just the previous value.
type History struct {
	present Tree
	past    []Tree
	future  []Tree
	limit   int
}

// NewHistory starts a history at t. limit bounds the undo depth; zero
// means 100.
func NewHistory(t Tree, limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{present: t, limit: limit}
}

// Present returns the current tree.
func (h *History) Present() Tree { return h.present }

// Apply runs edit against the current tree. On success the result becomes
// current and the redo stack is cleared; on error nothing changes.
func (h *History) Apply(edit func(Tree) (Tree, error)) error {
	next, err := edit(h.present)
	if err != nil {
		return err
	}
	h.past = append(h.past, h.present)
	if len(h.past) > h.limit {
		h.past = h.past[len(h.past)-h.limit:]
	}
	h.present = next
	h.future = nil
	return nil
}

// Undo restores the previous tree. It returns false if there is none.
func (h *History) Undo() bool {
	if len(h.past) == 0 {
		return false
	}
	h.future = append(h.future, h.present)
	h.present = h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	return true
}

// Redo reapplies the most recently undone edit.
func (h *History) Redo() bool {
	if len(h.future) == 0 {
		return false
	}
	h.past = append(h.past, h.present)
	h.present = h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	return true
}

// CanUndo reports whether Undo would succeed.
func (h *History) CanUndo() bool { return len(h.past) > 0 }

// CanRedo reports whether Redo would succeed.
func (h *History) CanRedo() bool { return len(h.future) > 0 }
