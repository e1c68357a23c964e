package history

import (
	"errors"
	"fmt"
	"log"

	"ptedit/api/internal/editable"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/translate"
)

// Step is an undo or redo to apply to the current working value.
type Step struct {
	// Operations are resolved against the value passed to Undo or Redo.
	Operations []editable.Operation
	// Selection is the selection to restore once Operations are applied.
	Selection *editable.Selection
	// Rebased is set when remote edits forced a rebase.
	Rebased bool

	item *Item
	undo bool
}

// Undo pops the latest group and returns the step reverting it on current.
// ok is false when there is nothing to undo. A failed rebase discards the
// group and returns ErrUndoRebase. The group reaches the redo stack only
// once the step is reported Applied.
func (h *History) Undo(current *editable.Value) (Step, bool, error) {
	if len(h.undo) == 0 {
		return Step{}, false, nil
	}
	it := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	step, err := h.step(it, current, true)
	if err != nil {
		return Step{}, true, err
	}
	return step, true, nil
}

// Redo pops the latest undone group and returns the step reapplying it.
func (h *History) Redo(current *editable.Value) (Step, bool, error) {
	if len(h.redo) == 0 {
		return Step{}, false, nil
	}
	it := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	step, err := h.step(it, current, false)
	if err != nil {
		return Step{}, true, err
	}
	return step, true, nil
}

// Applied moves the group behind step onto the opposite stack. A step that
// is never reported applied is discarded.
func (h *History) Applied(step Step) {
	if step.item == nil {
		return
	}
	if step.undo {
		h.redo = append(h.redo, step.item)
	} else {
		h.undo = append(h.undo, step.item)
	}
}

func (h *History) step(it *Item, current *editable.Value, undo bool) (Step, error) {
	selection := it.AfterSelection
	ops := it.Operations
	if undo {
		selection = it.BeforeSelection
		ops = editable.InverseAll(it.Operations)
	}
	ops = withoutSelection(ops)
	if !it.rebased() {
		resolved, err := editable.ApplyAll(current.Clone(), ops)
		if err != nil {
			return Step{}, fmt.Errorf("%w: %v", ErrUndoRebase, err)
		}
		return Step{Operations: resolved, Selection: selection.Clone(), item: it, undo: undo}, nil
	}

	start := it.After
	if !undo {
		start = it.Before
	}
	patches, err := scratchPatches(start, ops)
	if err != nil {
		return Step{}, err
	}
	patches = filterOverridden(patches, it.RemotePatches)

	target := current.Clone()
	var out []editable.Operation
	for _, p := range patches {
		translated, err := translate.PatchToOperations(p, target, h.opts.Schema)
		if errors.Is(err, translate.ErrOrphanPatch) {
			log.Printf("history: dropped orphan rebase patch %s %s: %v", p.Type(), p.Target(), err)
			continue
		}
		if err != nil {
			return Step{}, fmt.Errorf("%w: %v", ErrUndoRebase, err)
		}
		resolved, err := editable.ApplyAll(target, translated)
		if err != nil {
			return Step{}, fmt.Errorf("%w: %v", ErrUndoRebase, err)
		}
		out = append(out, resolved...)
	}
	return Step{Operations: out, Selection: selection.Clone(), Rebased: true, item: it, undo: undo}, nil
}

// scratchPatches replays ops on a copy of start and returns the equivalent
// patches. Text edits become diff-match-patches so they rebase onto text
// that changed since.
func scratchPatches(start *editable.Value, ops []editable.Operation) ([]patch.Patch, error) {
	scratch := start.Clone()
	var out []patch.Patch
	for _, op := range ops {
		before := scratch.Clone()
		resolved, err := editable.Apply(scratch, op)
		if err != nil {
			return nil, fmt.Errorf("%w: replay: %v", ErrUndoRebase, err)
		}
		patches, err := translate.OperationToPatches(resolved, before, scratch, editable.ToBlocks(before), translate.Options{TextDiffs: true})
		if err != nil {
			return nil, fmt.Errorf("%w: translate: %v", ErrUndoRebase, err)
		}
		out = append(out, patches...)
	}
	return out, nil
}

// filterOverridden drops step patches that a later remote edit supersedes: a
// remote set on an overlapping path wins, and an unset never deletes content a
// remote patch re-created.
func filterOverridden(patches, remote []patch.Patch) []patch.Patch {
	out := patches[:0:0]
	for _, p := range patches {
		if overridden(p, remote) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func overridden(p patch.Patch, remote []patch.Patch) bool {
	for _, r := range remote {
		if set, ok := r.(patch.Set); ok && set.Path.Overlaps(p.Target()) {
			return true
		}
	}
	u, ok := p.(patch.Unset)
	if !ok {
		return false
	}
	if len(u.Path) == 0 {
		return false
	}
	key, ok := u.Path[len(u.Path)-1].(pt.Key)
	if !ok {
		return false
	}
	for _, r := range remote {
		ins, ok := r.(patch.Insert)
		if !ok {
			continue
		}
		for _, item := range ins.Items {
			if m, ok := item.(map[string]any); ok && m["_key"] == string(key) {
				return true
			}
		}
	}
	return false
}

func withoutSelection(ops []editable.Operation) []editable.Operation {
	out := make([]editable.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Kind() != editable.KindSetSelection {
			out = append(out, op)
		}
	}
	return out
}
