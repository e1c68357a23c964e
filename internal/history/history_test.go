package history

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"ptedit/api/internal/editable"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/schema"
	"ptedit/api/internal/translate"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func docBlocks() []pt.Block {
	return []pt.Block{
		&pt.TextBlock{
			Key: "a", Type: "block", Style: "normal", MarkDefs: []pt.MarkDef{},
			Children: []pt.Child{&pt.Span{Key: "a0", Type: "span", Text: "hello", Marks: []string{}}},
		},
		&pt.TextBlock{
			Key: "b", Type: "block", Style: "normal", MarkDefs: []pt.MarkDef{},
			Children: []pt.Child{&pt.Span{Key: "b0", Type: "span", Text: "second", Marks: []string{}}},
		},
	}
}

var spanText = pt.Path{pt.Key("a"), pt.ChildrenField, pt.Key("a0"), pt.TextField}

type fixture struct {
	t     *testing.T
	clock *clock
	h     *History
	v     *editable.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := editable.ToEditable(docBlocks(), schema.Default())
	if err != nil {
		t.Fatalf("ToEditable: %v", err)
	}
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return &fixture{t: t, clock: c, v: v, h: New(Options{Now: c.Now})}
}

// local applies ops as one recorded group.
func (f *fixture) local(ops ...editable.Operation) {
	f.t.Helper()
	before := f.v.Clone()
	resolved, err := editable.ApplyAll(f.v, ops)
	if err != nil {
		f.t.Fatalf("ApplyAll: %v", err)
	}
	f.h.Record(resolved, before, f.v)
}

// remote applies patches the way a collaborator's edit arrives.
func (f *fixture) remote(patches ...patch.Patch) {
	f.t.Helper()
	var all []editable.Operation
	for _, p := range patches {
		ops, err := translate.PatchToOperations(p, f.v, schema.Default())
		if err != nil {
			f.t.Fatalf("PatchToOperations(%s): %v", p.Type(), err)
		}
		resolved, err := editable.ApplyAll(f.v, ops)
		if err != nil {
			f.t.Fatalf("ApplyAll: %v", err)
		}
		all = append(all, resolved...)
	}
	f.h.RecordRemote(patches, all)
}

func (f *fixture) undo() Step {
	f.t.Helper()
	step, ok, err := f.h.Undo(f.v)
	if err != nil || !ok {
		f.t.Fatalf("Undo: ok=%v err=%v", ok, err)
	}
	if _, err := editable.ApplyAll(f.v, step.Operations); err != nil {
		f.t.Fatalf("apply undo step: %v", err)
	}
	f.h.Applied(step)
	return step
}

func (f *fixture) redo() Step {
	f.t.Helper()
	step, ok, err := f.h.Redo(f.v)
	if err != nil || !ok {
		f.t.Fatalf("Redo: ok=%v err=%v", ok, err)
	}
	if _, err := editable.ApplyAll(f.v, step.Operations); err != nil {
		f.t.Fatalf("apply redo step: %v", err)
	}
	f.h.Applied(step)
	return step
}

func (f *fixture) text(block, leaf int) string {
	f.t.Helper()
	l, err := f.v.Leaf(editable.Path{block, leaf})
	if err != nil {
		f.t.Fatalf("Leaf: %v", err)
	}
	return l.Text
}

func (f *fixture) blocks() any {
	return pt.BlocksValue(editable.ToBlocks(f.v))
}

func TestUndoRestoresValueBeforeGroup(t *testing.T) {
	f := newFixture(t)
	want := f.blocks()
	f.local(
		editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: " there"},
		editable.SplitNode{Path: editable.Path{0, 0}, Position: 2},
		editable.SplitNode{Path: editable.Path{0}, Position: 1},
	)
	if reflect.DeepEqual(f.blocks(), want) {
		t.Fatal("local edit did not change the document")
	}
	step := f.undo()
	if step.Rebased {
		t.Fatal("undo without remote edits was rebased")
	}
	if !reflect.DeepEqual(f.blocks(), want) {
		t.Fatalf("after undo got %#v, want %#v", f.blocks(), want)
	}

	f.redo()
	if got := len(f.v.Children); got != 3 {
		t.Fatalf("redo left %d blocks, want 3", got)
	}
	if got := f.text(1, 0); got != "llo there" {
		t.Fatalf("redo split text = %q", got)
	}
}

func TestTypingRunMergesIntoOneStep(t *testing.T) {
	f := newFixture(t)
	for i, ch := range []string{"a", "b", "c"} {
		f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5 + i, Text: ch})
		f.clock.advance(100 * time.Millisecond)
	}
	if undo, _ := f.h.Len(); undo != 1 {
		t.Fatalf("undo depth = %d, want 1", undo)
	}
	f.undo()
	if got := f.text(0, 0); got != "hello" {
		t.Fatalf("text after undo = %q", got)
	}
}

func TestSpaceStartsNewStep(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "a"})
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 6, Text: " "})
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 7, Text: "b"})
	if undo, _ := f.h.Len(); undo != 2 {
		t.Fatalf("undo depth = %d, want 2", undo)
	}
	f.undo()
	if got := f.text(0, 0); got != "helloa" {
		t.Fatalf("text after first undo = %q", got)
	}
}

func TestBackspaceRunMerges(t *testing.T) {
	f := newFixture(t)
	f.local(editable.RemoveText{Path: editable.Path{0, 0}, Offset: 4, Text: "o"})
	f.local(editable.RemoveText{Path: editable.Path{0, 0}, Offset: 3, Text: "l"})
	if undo, _ := f.h.Len(); undo != 1 {
		t.Fatalf("undo depth = %d, want 1", undo)
	}
	f.undo()
	if got := f.text(0, 0); got != "hello" {
		t.Fatalf("text after undo = %q", got)
	}
}

func TestMergeWindowExpires(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "a"})
	f.clock.advance(2 * DefaultMergeWindow)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 6, Text: "b"})
	if undo, _ := f.h.Len(); undo != 2 {
		t.Fatalf("undo depth = %d, want 2", undo)
	}
}

func TestSelectionOnlyGroupKeepsRedo(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"})
	f.undo()
	f.local(editable.SetSelection{Selection: editable.Collapsed(editable.Point{Path: editable.Path{1, 0}, Offset: 2})})
	if !f.h.CanRedo() {
		t.Fatal("selection change cleared the redo stack")
	}
	f.local(editable.InsertText{Path: editable.Path{1, 0}, Offset: 0, Text: "x"})
	if f.h.CanRedo() {
		t.Fatal("content change kept the redo stack")
	}
}

func TestUndoRestoresSelection(t *testing.T) {
	f := newFixture(t)
	caret := editable.Collapsed(editable.Point{Path: editable.Path{0, 0}, Offset: 5})
	f.local(editable.SetSelection{Selection: caret})
	f.clock.advance(5 * time.Second)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"})
	step := f.undo()
	if !step.Selection.Equal(caret) {
		t.Fatalf("restored selection = %+v, want %+v", step.Selection, caret)
	}
}

func TestLimitDropsOldestSteps(t *testing.T) {
	f := newFixture(t)
	f.h = New(Options{Now: f.clock.Now, Limit: 2})
	for i := range 4 {
		f.local(editable.SetNode{Path: editable.Path{0}, NewProperties: map[string]any{"level": float64(i + 1)}})
	}
	if undo, _ := f.h.Len(); undo != 2 {
		t.Fatalf("undo depth = %d, want 2", undo)
	}
	f.undo()
	f.undo()
	el, _ := f.v.Element(0)
	if el.Level != 2 {
		t.Fatalf("level after undoing the kept steps = %d, want 2", el.Level)
	}
	if _, ok, _ := f.h.Undo(f.v); ok {
		t.Fatal("undo past the limit succeeded")
	}
}

func TestUndoKeepsRemoteEditToSameBlock(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"})
	f.remote(patch.Set{Path: pt.Path{pt.Key("a"), pt.Field("style")}, Value: "h1"})

	step := f.undo()
	if !step.Rebased {
		t.Fatal("undo after a remote edit was not rebased")
	}
	if got := f.text(0, 0); got != "hello" {
		t.Fatalf("text after undo = %q, want hello", got)
	}
	el, _ := f.v.Element(0)
	if el.Style != "h1" {
		t.Fatalf("remote style lost: %q", el.Style)
	}
}

func TestUndoRebasesAroundRemoteText(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"})
	f.remote(patch.DiffMatchPatch{
		Path:  spanText,
		Value: patch.MakeTextPatch("hello!", ">> hello!"),
	})
	if got := f.text(0, 0); got != ">> hello!" {
		t.Fatalf("remote text = %q", got)
	}
	f.undo()
	if got := f.text(0, 0); got != ">> hello" {
		t.Fatalf("text after undo = %q, want %q", got, ">> hello")
	}
	f.redo()
	if got := f.text(0, 0); got != ">> hello!" {
		t.Fatalf("text after redo = %q", got)
	}
}

func TestUndoPrefersLaterRemoteSet(t *testing.T) {
	// A remote set of the same span wins even where the local edit could
	// still be reverted inside it.
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"})
	f.remote(patch.Set{Path: spanText, Value: "hello! remote"})
	f.undo()
	if got := f.text(0, 0); got != "hello! remote" {
		t.Fatalf("text after undo = %q", got)
	}
}

func TestUndoIgnoresRemotelyDeletedBlock(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"})
	f.remote(patch.Unset{Path: pt.BlockPath("a")})
	f.undo()
	if len(f.v.Children) != 1 || f.v.Children[0].NodeKey() != "b" {
		t.Fatalf("undo resurrected a remotely deleted block: %+v", f.v.Children)
	}
}

func TestUndoKeepsRemotelyRecreatedBlock(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertNode{Path: editable.Path{2}, Node: &editable.Element{
		Key: "n", Type: "block", Style: "normal", MarkDefs: []pt.MarkDef{},
		Children: []editable.Node{&editable.Text{Key: "n0", Type: "span", Text: "new", Marks: []string{}}},
	}})
	f.remote(
		patch.Unset{Path: pt.BlockPath("n")},
		patch.Insert{Path: pt.Path{pt.Index(-1)}, Position: patch.After, Items: []any{
			map[string]any{"_key": "n", "_type": "block", "style": "normal", "markDefs": []any{}, "children": []any{
				map[string]any{"_key": "n0", "_type": "span", "text": "again", "marks": []any{}},
			}},
		}},
	)
	f.undo()
	if f.v.BlockIndex("n") < 0 {
		t.Fatal("undo deleted a block a collaborator re-created")
	}
}

func TestUndoRebaseConflict(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"})
	f.remote(patch.DiffMatchPatch{
		Path:  spanText,
		Value: patch.MakeTextPatch("hello!", "zzzzzzzzzzzzzzzzzzzz"),
	})
	_, ok, err := f.h.Undo(f.v)
	if !ok || !errors.Is(err, ErrUndoRebase) {
		t.Fatalf("Undo: ok=%v err=%v, want ErrUndoRebase", ok, err)
	}
	if f.h.CanUndo() || f.h.CanRedo() {
		t.Fatal("failed step was kept")
	}
}

func TestUnappliedStepIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"})
	if _, ok, err := f.h.Undo(f.v); !ok || err != nil {
		t.Fatalf("Undo: ok=%v err=%v", ok, err)
	}
	if f.h.CanRedo() {
		t.Fatal("redo offered for an undo that was never applied")
	}
	if _, ok, _ := f.h.Redo(f.v); ok {
		t.Fatal("Redo reapplied a group that was never undone")
	}
	if got := f.text(0, 0); got != "hello!" {
		t.Fatalf("text = %q", got)
	}
}

func TestAppliedStepMovesBetweenStacks(t *testing.T) {
	f := newFixture(t)
	f.local(editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"})
	f.undo()
	if undo, redo := f.h.Len(); undo != 0 || redo != 1 {
		t.Fatalf("stacks after undo = %d/%d, want 0/1", undo, redo)
	}
	f.redo()
	if undo, redo := f.h.Len(); undo != 1 || redo != 0 {
		t.Fatalf("stacks after redo = %d/%d, want 1/0", undo, redo)
	}
	if got := f.text(0, 0); got != "hello!" {
		t.Fatalf("text after redo = %q", got)
	}
}

func TestShouldMerge(t *testing.T) {
	p := editable.Path{0, 0}
	tests := []struct {
		name       string
		prev, next editable.Operation
		want       bool
	}{
		{"adjacent insert", editable.InsertText{Path: p, Offset: 1, Text: "ab"}, editable.InsertText{Path: p, Offset: 3, Text: "c"}, true},
		{"insert space", editable.InsertText{Path: p, Offset: 1, Text: "a"}, editable.InsertText{Path: p, Offset: 2, Text: " "}, false},
		{"insert gap", editable.InsertText{Path: p, Offset: 1, Text: "a"}, editable.InsertText{Path: p, Offset: 4, Text: "b"}, false},
		{"insert other leaf", editable.InsertText{Path: p, Offset: 1, Text: "a"}, editable.InsertText{Path: editable.Path{0, 1}, Offset: 2, Text: "b"}, false},
		{"backspace", editable.RemoveText{Path: p, Offset: 4, Text: "x"}, editable.RemoveText{Path: p, Offset: 3, Text: "y"}, true},
		{"forward delete", editable.RemoveText{Path: p, Offset: 4, Text: "x"}, editable.RemoveText{Path: p, Offset: 4, Text: "y"}, false},
		{"insert then remove", editable.InsertText{Path: p, Offset: 1, Text: "a"}, editable.RemoveText{Path: p, Offset: 1, Text: "a"}, false},
		{"multibyte", editable.InsertText{Path: p, Offset: 0, Text: "é"}, editable.InsertText{Path: p, Offset: 1, Text: "ü"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldMerge(tt.prev, tt.next); got != tt.want {
				t.Fatalf("shouldMerge = %v, want %v", got, tt.want)
			}
		})
	}
}
