package translate

import (
	"reflect"
	"testing"

	"ptedit/api/internal/editable"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/schema"
)

func sampleBlocks() []pt.Block {
	return []pt.Block{
		&pt.TextBlock{
			Key:      "a",
			Type:     "block",
			Style:    "normal",
			MarkDefs: []pt.MarkDef{{Key: "l1", Type: "link", Fields: map[string]any{"href": "https://example.com"}}},
			Children: []pt.Child{
				&pt.Span{Key: "a0", Type: "span", Text: "hello ", Marks: []string{}},
				&pt.Span{Key: "a1", Type: "span", Text: "world", Marks: []string{"strong", "l1"}},
				&pt.InlineObject{Key: "a2", Type: "mention", Fields: map[string]any{"user": "u1"}},
			},
		},
		&pt.ObjectBlock{Key: "b", Type: "image", Fields: map[string]any{"asset": map[string]any{"_ref": "img-1"}}},
		&pt.TextBlock{
			Key:      "c",
			Type:     "block",
			Style:    "h1",
			ListItem: "bullet",
			Level:    1,
			MarkDefs: []pt.MarkDef{},
			Children: []pt.Child{&pt.Span{Key: "c0", Type: "span", Text: "third", Marks: []string{}}},
		},
	}
}

func editableOf(t *testing.T, blocks []pt.Block) *editable.Value {
	t.Helper()
	v, err := editable.ToEditable(blocks, schema.Default())
	if err != nil {
		t.Fatalf("ToEditable: %v", err)
	}
	return v
}

// translateOp applies op to the editable form of blocks and returns the
// resolved operation, the values around it and the translated patches.
func translateOp(t *testing.T, blocks []pt.Block, op editable.Operation, opts Options) (before, after *editable.Value, patches []patch.Patch) {
	t.Helper()
	before = editableOf(t, blocks)
	after = before.Clone()
	resolved, err := editable.Apply(after, op)
	if err != nil {
		t.Fatalf("Apply(%s): %v", op.Kind(), err)
	}
	patches, err = OperationToPatches(resolved, before, after, blocks, opts)
	if err != nil {
		t.Fatalf("OperationToPatches(%s): %v", op.Kind(), err)
	}
	return before, after, patches
}

func assertBlocksEqual(t *testing.T, got, want []pt.Block) {
	t.Helper()
	if !reflect.DeepEqual(pt.BlocksValue(got), pt.BlocksValue(want)) {
		t.Fatalf("documents differ:\n got %#v\nwant %#v", pt.BlocksValue(got), pt.BlocksValue(want))
	}
}
