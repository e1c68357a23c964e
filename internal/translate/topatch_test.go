package translate

import (
	"testing"

	"ptedit/api/internal/editable"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/schema"
)

func TestOperationPatchEquivalence(t *testing.T) {
	tests := []struct {
		name string
		op   editable.Operation
	}{
		{"insert text", editable.InsertText{Path: editable.Path{0, 0}, Offset: 6, Text: "big "}},
		{"remove text", editable.RemoveText{Path: editable.Path{0, 1}, Offset: 1, Text: "orl"}},
		{"add decorator", editable.AddMark{Path: editable.Path{0, 0}, Mark: "em"}},
		{"add annotation", editable.AddMark{Path: editable.Path{0, 0}, Mark: "l2", Def: &pt.MarkDef{Key: "l2", Type: "link"}}},
		{"remove annotation mark", editable.RemoveMark{Path: editable.Path{0, 1}, Mark: "l1"}},
		{"remove decorator", editable.RemoveMark{Path: editable.Path{0, 1}, Mark: "strong"}},
		{"set block style", editable.SetNode{Path: editable.Path{0}, NewProperties: map[string]any{"style": "h2", "listItem": "number"}}},
		{"unset list", editable.SetNode{Path: editable.Path{2}, NewProperties: map[string]any{"listItem": nil, "level": nil}}},
		{"set object field", editable.SetNode{Path: editable.Path{1}, NewProperties: map[string]any{"alt": "cat"}}},
		{"set inline field", editable.SetNode{Path: editable.Path{0, 2}, NewProperties: map[string]any{"user": "u2"}}},
		{"set leaf marks", editable.SetNode{Path: editable.Path{0, 0}, NewProperties: map[string]any{"marks": []string{"code"}}}},
		{"insert first block", editable.InsertNode{Path: editable.Path{0}, Node: &editable.VoidBlock{Key: "img", Type: "image"}}},
		{"insert middle block", editable.InsertNode{Path: editable.Path{2}, Node: &editable.Element{Key: "n", Type: "block", Style: "normal", MarkDefs: []pt.MarkDef{}, Children: []editable.Node{&editable.Text{Key: "n0", Type: "span", Text: "new", Marks: []string{}}}}}},
		{"insert leaf", editable.InsertNode{Path: editable.Path{2, 1}, Node: &editable.Text{Key: "c1", Type: "span", Text: "!", Marks: []string{}}}},
		{"remove block", editable.RemoveNode{Path: editable.Path{1}}},
		{"remove span", editable.RemoveNode{Path: editable.Path{0, 0}}},
		{"remove inline object", editable.RemoveNode{Path: editable.Path{0, 2}}},
		{"split span", editable.SplitNode{Path: editable.Path{0, 0}, Position: 2, NewKey: "s1"}},
		{"split block", editable.SplitNode{Path: editable.Path{0}, Position: 1, NewKey: "s2"}},
		{"merge spans", editable.MergeNode{Path: editable.Path{0, 1}}},
		{"move block up", editable.MoveNode{Path: editable.Path{2}, NewPath: editable.Path{0}}},
		{"move block down", editable.MoveNode{Path: editable.Path{0}, NewPath: editable.Path{2}}},
		{"move leaf across blocks", editable.MoveNode{Path: editable.Path{0, 0}, NewPath: editable.Path{2, 1}}},
		{"move leaf within block", editable.MoveNode{Path: editable.Path{0, 0}, NewPath: editable.Path{0, 1}}},
		{"set selection", editable.SetSelection{Selection: editable.Collapsed(editable.Point{Path: editable.Path{0, 0}})}},
	}
	for _, opts := range []Options{{}, {TextDiffs: true}} {
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				blocks := sampleBlocks()
				_, after, patches := translateOp(t, blocks, tt.op, opts)
				got, err := patch.ApplyBlocks(blocks, pt.DefaultTypes(), patches...)
				if err != nil {
					t.Fatalf("ApplyBlocks: %v", err)
				}
				assertBlocksEqual(t, got, editable.ToBlocks(after))
			})
		}
	}
}

func TestMergeBlocksPatches(t *testing.T) {
	blocks := []pt.Block{
		&pt.TextBlock{Key: "x", Type: "block", MarkDefs: []pt.MarkDef{}, Children: []pt.Child{&pt.Span{Key: "x0", Type: "span", Text: "ab", Marks: []string{}}}},
		&pt.TextBlock{Key: "y", Type: "block", MarkDefs: []pt.MarkDef{{Key: "l", Type: "link"}}, Children: []pt.Child{&pt.Span{Key: "y0", Type: "span", Text: "cd", Marks: []string{"l"}}}},
	}
	_, after, patches := translateOp(t, blocks, editable.MergeNode{Path: editable.Path{1}}, Options{})
	if len(patches) != 2 || patches[0].Type() != patch.TypeSet || patches[1].Type() != patch.TypeUnset {
		t.Fatalf("patches = %#v", patches)
	}
	if !patches[0].Target().Equal(pt.BlockPath("x")) || !patches[1].Target().Equal(pt.BlockPath("y")) {
		t.Fatalf("patch paths = %s, %s", patches[0].Target(), patches[1].Target())
	}
	got, err := patch.ApplyBlocks(blocks, pt.DefaultTypes(), patches...)
	if err != nil {
		t.Fatalf("ApplyBlocks: %v", err)
	}
	assertBlocksEqual(t, got, editable.ToBlocks(after))
}

func TestNoOpMoveYieldsNoPatches(t *testing.T) {
	for _, path := range []editable.Path{{1}, {0, 1}} {
		_, _, patches := translateOp(t, sampleBlocks(), editable.MoveNode{Path: path, NewPath: path.Clone()}, Options{})
		if len(patches) != 0 {
			t.Fatalf("move %v produced %#v", path, patches)
		}
	}
}

func TestInsertCharacterSetsSpan(t *testing.T) {
	blocks := []pt.Block{&pt.TextBlock{
		Key:      "a",
		Type:     "block",
		Style:    "normal",
		MarkDefs: []pt.MarkDef{},
		Children: []pt.Child{&pt.Span{Key: "a0", Type: "span", Text: "hello", Marks: []string{}}},
	}}
	_, _, patches := translateOp(t, blocks, editable.InsertText{Path: editable.Path{0, 0}, Offset: 5, Text: "!"}, Options{})
	if len(patches) != 1 {
		t.Fatalf("got %d patches, want 1: %#v", len(patches), patches)
	}
	set, ok := patches[0].(patch.Set)
	if !ok {
		t.Fatalf("patch is %T, want set", patches[0])
	}
	if want := pt.ChildPath("a", "a0"); !set.Path.Equal(want) {
		t.Fatalf("path = %s, want %s", set.Path, want)
	}
	if text := set.Value.(map[string]any)["text"]; text != "hello!" {
		t.Fatalf("text = %v, want hello!", text)
	}
}

func TestSplitBlockSetsAndInserts(t *testing.T) {
	blocks := []pt.Block{&pt.TextBlock{
		Key:      "a",
		Type:     "block",
		Style:    "normal",
		MarkDefs: []pt.MarkDef{},
		Children: []pt.Child{
			&pt.Span{Key: "a0", Type: "span", Text: "hello", Marks: []string{}},
			&pt.Span{Key: "a1", Type: "span", Text: "world", Marks: []string{}},
		},
	}}
	_, after, patches := translateOp(t, blocks, editable.SplitNode{Path: editable.Path{0}, Position: 1, NewKey: "b"}, Options{})
	if len(patches) != 2 {
		t.Fatalf("got %d patches, want 2", len(patches))
	}
	set, ok := patches[0].(patch.Set)
	if !ok || !set.Path.Equal(pt.BlockPath("a")) {
		t.Fatalf("first patch = %#v, want set on a", patches[0])
	}
	ins, ok := patches[1].(patch.Insert)
	if !ok || ins.Position != patch.After || !ins.Path.Equal(pt.BlockPath("a")) || len(ins.Items) != 1 {
		t.Fatalf("second patch = %#v, want insert after a", patches[1])
	}
	if key := ins.Items[0].(map[string]any)["_key"]; key != "b" {
		t.Fatalf("inserted key = %v", key)
	}
	got, err := patch.ApplyBlocks(blocks, pt.DefaultTypes(), patches...)
	if err != nil {
		t.Fatalf("ApplyBlocks: %v", err)
	}
	assertBlocksEqual(t, got, editable.ToBlocks(after))
}

func TestRemovingLastAnnotationMarkPrunesDefinition(t *testing.T) {
	blocks := sampleBlocks()
	_, _, patches := translateOp(t, blocks, editable.RemoveMark{Path: editable.Path{0, 1}, Mark: "l1"}, Options{})
	got, err := patch.ApplyBlocks(blocks, pt.DefaultTypes(), patches...)
	if err != nil {
		t.Fatalf("ApplyBlocks: %v", err)
	}
	a := got[0].(*pt.TextBlock)
	if len(a.MarkDefs) != 0 {
		t.Fatalf("markDefs = %#v, want none", a.MarkDefs)
	}
	if marks := a.Children[1].(*pt.Span).Marks; len(marks) != 1 || marks[0] != "strong" {
		t.Fatalf("marks = %v", marks)
	}
}

func TestTextDiffOption(t *testing.T) {
	_, _, patches := translateOp(t, sampleBlocks(), editable.InsertText{Path: editable.Path{0, 1}, Offset: 5, Text: "!"}, Options{TextDiffs: true})
	if len(patches) != 1 {
		t.Fatalf("patches = %#v", patches)
	}
	dmp, ok := patches[0].(patch.DiffMatchPatch)
	if !ok {
		t.Fatalf("patch is %T, want diffMatchPatch", patches[0])
	}
	if want := append(pt.ChildPath("a", "a1"), pt.TextField); !dmp.Path.Equal(want) {
		t.Fatalf("path = %s, want %s", dmp.Path, want)
	}
}

func TestEditingPlaceholderSeedsUndefinedDocument(t *testing.T) {
	placeholder := editable.Placeholder(schema.Default())
	before := &editable.Value{Children: []editable.Node{placeholder}}
	after := before.Clone()
	resolved, err := editable.Apply(after, editable.InsertText{Path: editable.Path{0, 0}, Offset: 0, Text: "hi"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	patches, err := OperationToPatches(resolved, before, after, nil, Options{})
	if err != nil {
		t.Fatalf("OperationToPatches: %v", err)
	}
	if len(patches) != 2 || patches[0].Type() != patch.TypeSetIfMissing || patches[1].Type() != patch.TypeInsert {
		t.Fatalf("patches = %#v", patches)
	}
	got, err := patch.ApplyBlocks(nil, pt.DefaultTypes(), patches...)
	if err != nil {
		t.Fatalf("ApplyBlocks: %v", err)
	}
	assertBlocksEqual(t, got, editable.ToBlocks(after))
}

func TestEditingUnpersistedBlockInsertsIt(t *testing.T) {
	persisted := sampleBlocks()[:1]
	before := editableOf(t, persisted)
	before.Children = append(before.Children, editable.Placeholder(schema.Default()))
	after := before.Clone()
	resolved, err := editable.Apply(after, editable.InsertText{Path: editable.Path{1, 0}, Offset: 0, Text: "more"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	patches, err := OperationToPatches(resolved, before, after, persisted, Options{})
	if err != nil {
		t.Fatalf("OperationToPatches: %v", err)
	}
	ins, ok := patches[0].(patch.Insert)
	if len(patches) != 1 || !ok || !ins.Path.Equal(pt.BlockPath("a")) || ins.Position != patch.After {
		t.Fatalf("patches = %#v", patches)
	}
	got, err := patch.ApplyBlocks(persisted, pt.DefaultTypes(), patches...)
	if err != nil {
		t.Fatalf("ApplyBlocks: %v", err)
	}
	assertBlocksEqual(t, got, editable.ToBlocks(after))
}
