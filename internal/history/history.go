// Package history records local edit groups and turns them into undo and redo
// steps, rebasing around remote edits that arrived in between.
package history

import (
	"errors"
	"time"

	"ptedit/api/internal/editable"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/schema"
)

// ErrUndoRebase reports an undo or redo that could not be rebased onto the
// current value. The step is discarded.
var ErrUndoRebase = errors.New("undo rebase failed")

// DefaultLimit is the number of undo steps kept.
const DefaultLimit = 300

// DefaultMergeWindow is how close in time two typing groups must be to merge.
const DefaultMergeWindow = time.Second

// Item is one undoable edit group.
type Item struct {
	Operations      []editable.Operation
	BeforeSelection *editable.Selection
	AfterSelection  *editable.Selection
	// RemoteOperations and RemotePatches are every remote edit applied since the
	// group was recorded.
	RemoteOperations []editable.Operation
	RemotePatches    []patch.Patch
	// Before and After are the working value around the group at record time.
	Before *editable.Value
	After  *editable.Value
	At     time.Time
}

func (it *Item) rebased() bool {
	return len(it.RemoteOperations) > 0 || len(it.RemotePatches) > 0
}

type Options struct {
	Schema      *schema.Schema
	Limit       int
	MergeWindow time.Duration
	Now         func() time.Time
}

// History owns the undo and redo stacks of one editing session. It is not
// safe for concurrent use; the session serialises access.
type History struct {
	opts Options
	undo []*Item
	redo []*Item
}

func New(opts Options) *History {
	if opts.Schema == nil {
		opts.Schema = schema.Default()
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.MergeWindow < 0 {
		opts.MergeWindow = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &History{opts: opts}
}

// CanUndo reports whether an undo step is available.
func (h *History) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether a redo step is available.
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Len returns the depth of both stacks.
func (h *History) Len() (undo, redo int) { return len(h.undo), len(h.redo) }

// Clear drops both stacks.
func (h *History) Clear() {
	h.undo, h.redo = nil, nil
}

// Record pushes a local group of resolved operations applied from before to
// after. Selection-only groups are ignored and keep the redo stack. A typing
// or deleting run continuing the previous group within the merge window is
// folded into it.
func (h *History) Record(ops []editable.Operation, before, after *editable.Value) {
	if !hasContentChange(ops) {
		return
	}
	now := h.opts.Now()
	h.redo = nil
	if last := h.top(); last != nil && !last.rebased() && now.Sub(last.At) <= h.opts.MergeWindow &&
		shouldMerge(lastContentOp(last.Operations), firstContentOp(ops)) {
		last.Operations = append(last.Operations, ops...)
		last.AfterSelection = after.Selection.Clone()
		last.After = after.Clone()
		last.At = now
		return
	}
	h.undo = append(h.undo, &Item{
		Operations:      append([]editable.Operation(nil), ops...),
		BeforeSelection: before.Selection.Clone(),
		AfterSelection:  after.Selection.Clone(),
		Before:          before.Clone(),
		After:           after.Clone(),
		At:              now,
	})
	if over := len(h.undo) - h.opts.Limit; over > 0 {
		h.undo = append([]*Item(nil), h.undo[over:]...)
	}
}

// RecordRemote appends a remote edit to every live item on both stacks.
func (h *History) RecordRemote(patches []patch.Patch, ops []editable.Operation) {
	if len(patches) == 0 && len(ops) == 0 {
		return
	}
	for _, stack := range [][]*Item{h.undo, h.redo} {
		for _, it := range stack {
			it.RemotePatches = append(it.RemotePatches, patches...)
			it.RemoteOperations = append(it.RemoteOperations, ops...)
		}
	}
}

func (h *History) top() *Item {
	if len(h.undo) == 0 {
		return nil
	}
	return h.undo[len(h.undo)-1]
}

func hasContentChange(ops []editable.Operation) bool {
	return firstContentOp(ops) != nil
}

func firstContentOp(ops []editable.Operation) editable.Operation {
	for _, op := range ops {
		if op.Kind() != editable.KindSetSelection {
			return op
		}
	}
	return nil
}

func lastContentOp(ops []editable.Operation) editable.Operation {
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Kind() != editable.KindSetSelection {
			return ops[i]
		}
	}
	return nil
}

// shouldMerge reports whether next continues the typing or backspacing run
// ending in prev. A typed space starts a new step so undo works word by word.
func shouldMerge(prev, next editable.Operation) bool {
	switch p := prev.(type) {
	case editable.InsertText:
		n, ok := next.(editable.InsertText)
		return ok && n.Path.Equal(p.Path) && n.Offset == p.Offset+runeLen(p.Text) && n.Text != " "
	case editable.RemoveText:
		n, ok := next.(editable.RemoveText)
		return ok && n.Path.Equal(p.Path) && n.Offset+runeLen(n.Text) == p.Offset
	}
	return false
}

func runeLen(s string) int {
	return len([]rune(s))
}
