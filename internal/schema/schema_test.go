package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
)

func TestValidateAcceptsKnownContent(t *testing.T) {
	s := Default()
	blocks := []pt.Block{
		&pt.TextBlock{
			Key: "a", Type: "block", Style: "h1", ListItem: "bullet", Level: 1,
			MarkDefs: []pt.MarkDef{{Key: "l1", Type: "link"}},
			Children: []pt.Child{
				&pt.Span{Key: "a0", Type: "span", Text: "hi", Marks: []string{"strong", "l1"}},
				&pt.InlineObject{Key: "a1", Type: "mention"},
			},
		},
		&pt.ObjectBlock{Key: "img", Type: "image"},
	}
	if err := s.Validate(blocks); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejectsUnknownTypes(t *testing.T) {
	s := Default()
	tests := []struct {
		name  string
		block pt.Block
	}{
		{"object block", &pt.ObjectBlock{Key: "x", Type: "video"}},
		{"style", &pt.TextBlock{Key: "x", Type: "block", Style: "h9"}},
		{"list", &pt.TextBlock{Key: "x", Type: "block", ListItem: "roman"}},
		{"annotation", &pt.TextBlock{Key: "x", Type: "block", MarkDefs: []pt.MarkDef{{Key: "m", Type: "footnote"}}}},
		{"inline", &pt.TextBlock{Key: "x", Type: "block", Children: []pt.Child{&pt.InlineObject{Key: "i", Type: "emoji"}}}},
		{"dangling mark", &pt.TextBlock{Key: "x", Type: "block", Children: []pt.Child{&pt.Span{Key: "s", Type: "span", Marks: []string{"nope"}}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := s.ValidateBlock(tc.block)
			if !errors.Is(err, ErrSchemaMismatch) {
				t.Fatalf("expected ErrSchemaMismatch, got %v", err)
			}
		})
	}
}

func TestPlaceholderBlock(t *testing.T) {
	s := Default()
	n := 0
	block := s.PlaceholderBlock(func() string {
		n++
		return []string{"k1", "k2"}[n-1]
	})
	if block.Key != "k1" || block.Style != "normal" || len(block.Children) != 1 {
		t.Fatalf("unexpected placeholder %+v", block)
	}
	span := block.Children[0].(*pt.Span)
	if span.Key != "k2" || span.Text != "" || span.Marks == nil {
		t.Fatalf("unexpected placeholder span %+v", span)
	}
	if err := s.ValidateBlock(block); err != nil {
		t.Fatalf("placeholder must validate: %v", err)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(path, []byte(`{"decorators":["strong"],"blockObjects":["code"]}`), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.BlockType != "block" || s.SpanType != "span" || s.DefaultStyle() != "normal" {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if !s.IsDecorator("strong") || s.IsDecorator("em") {
		t.Fatal("unexpected decorators")
	}
}

func counterKeys() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("k%d", n)
	}
}

func TestCheckResolutions(t *testing.T) {
	s := Default()
	text := func(mutate func(*pt.TextBlock)) []pt.Block {
		b := &pt.TextBlock{
			Key: "a", Type: "block", Style: "normal", MarkDefs: []pt.MarkDef{},
			Children: []pt.Child{&pt.Span{Key: "a0", Type: "span", Text: "hi", Marks: []string{}}},
		}
		mutate(b)
		return []pt.Block{b}
	}
	tests := []struct {
		name   string
		blocks []pt.Block
		action string
	}{
		{"keyless block", text(func(b *pt.TextBlock) { b.Key = "" }), "Set a new random _key on the block"},
		{"unknown block object", []pt.Block{&pt.ObjectBlock{Key: "x", Type: "video"}}, "Remove the block"},
		{"no children", text(func(b *pt.TextBlock) { b.Children = nil }), "Remove the block"},
		{"no markDefs", text(func(b *pt.TextBlock) { b.MarkDefs = nil }), "Add empty markDefs array"},
		{"unknown style", text(func(b *pt.TextBlock) { b.Style = "h9" }), `Use style "normal"`},
		{"unknown list", text(func(b *pt.TextBlock) { b.ListItem = "roman" }), "Remove the list item"},
		{"unknown annotation", text(func(b *pt.TextBlock) { b.MarkDefs = []pt.MarkDef{{Key: "f", Type: "footnote"}} }), "Remove the annotation"},
		{"empty children", text(func(b *pt.TextBlock) { b.Children = []pt.Child{} }), "Insert an empty text"},
		{"keyless span", text(func(b *pt.TextBlock) { b.Children[0].(*pt.Span).Key = "" }), "Set a new random _key on the object"},
		{"orphan mark", text(func(b *pt.TextBlock) { b.Children[0].(*pt.Span).Marks = []string{"strong", "gone"} }), "Remove invalid marks"},
		{"unknown inline", text(func(b *pt.TextBlock) {
			b.Children = append(b.Children, &pt.InlineObject{Key: "e", Type: "emoji"})
		}), "Remove the object"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := s.Check(tc.blocks, counterKeys())
			if r == nil {
				t.Fatal("expected a resolution")
			}
			if r.Action != tc.action || len(r.Patches) == 0 || r.Item == nil {
				t.Fatalf("unexpected resolution %+v", r)
			}
			fixed, err := patch.ApplyBlocks(tc.blocks, s.Types(), r.Patches...)
			if err != nil {
				t.Fatalf("apply resolution: %v", err)
			}
			if again := s.Check(fixed, counterKeys()); again != nil {
				t.Fatalf("resolution left %+v", again)
			}
		})
	}
}

func TestRepairConverges(t *testing.T) {
	s := Default()
	blocks := []pt.Block{
		&pt.TextBlock{
			Type: "block", Style: "h9",
			Children: []pt.Child{
				&pt.Span{Type: "span", Text: "hi", Marks: []string{"gone"}},
				&pt.InlineObject{Key: "e", Type: "emoji"},
			},
		},
		&pt.ObjectBlock{Key: "img", Type: "image"},
	}
	keys := counterKeys()
	for i := 0; ; i++ {
		r := s.Check(blocks, keys)
		if r == nil {
			break
		}
		if i == 10 {
			t.Fatalf("repair did not converge, last %+v", r)
		}
		var err error
		if blocks, err = patch.ApplyBlocks(blocks, s.Types(), r.Patches...); err != nil {
			t.Fatalf("apply %q: %v", r.Action, err)
		}
	}
	if err := s.Validate(blocks); err != nil {
		t.Fatalf("Validate() after repair error = %v", err)
	}
	tb := blocks[0].(*pt.TextBlock)
	if tb.Key == "" || tb.Style != "normal" || tb.MarkDefs == nil || len(tb.Children) != 1 {
		t.Fatalf("unexpected repaired block %+v", tb)
	}
	if span := tb.Children[0].(*pt.Span); span.Key == "" || len(span.Marks) != 0 {
		t.Fatalf("unexpected repaired span %+v", span)
	}
}

func TestValidateErrorCarriesResolution(t *testing.T) {
	err := Default().Validate([]pt.Block{&pt.ObjectBlock{Key: "x", Type: "video"}})
	var invalid *InvalidValueError
	if !errors.As(err, &invalid) || !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected InvalidValueError, got %v", err)
	}
	if invalid.Resolution.Action != "Remove the block" || !invalid.Resolution.Path.Equal(pt.BlockPath("x")) {
		t.Fatalf("unexpected resolution %+v", invalid.Resolution)
	}
}
