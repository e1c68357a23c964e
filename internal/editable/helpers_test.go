package editable

import (
	"reflect"
	"testing"

	"ptedit/api/internal/pt"
	"ptedit/api/internal/schema"
)

func testBlocks() []pt.Block {
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
			Extra:    map[string]any{"custom": true},
		},
	}
}

func testValue(t *testing.T) *Value {
	t.Helper()
	v, err := ToEditable(testBlocks(), schema.Default())
	if err != nil {
		t.Fatalf("ToEditable: %v", err)
	}
	return v
}

func assertSameBlocks(t *testing.T, got, want *Value) {
	t.Helper()
	g, w := pt.BlocksValue(ToBlocks(got)), pt.BlocksValue(ToBlocks(want))
	if !reflect.DeepEqual(g, w) {
		t.Fatalf("values differ:\n got %#v\nwant %#v", g, w)
	}
}
