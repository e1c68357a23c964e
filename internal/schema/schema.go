// Package schema describes which block, span, annotation, decorator, list and
// inline object types a document may contain.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"ptedit/api/internal/pt"
)

// ErrSchemaMismatch reports content whose type the active schema does not know.
var ErrSchemaMismatch = errors.New("schema mismatch")

type Schema struct {
	BlockType     string   `json:"blockType"`
	SpanType      string   `json:"spanType"`
	Styles        []string `json:"styles"`
	Decorators    []string `json:"decorators"`
	Annotations   []string `json:"annotations"`
	Lists         []string `json:"lists"`
	InlineObjects []string `json:"inlineObjects"`
	BlockObjects  []string `json:"blockObjects"`
}

// Default returns the schema used when no schema file is configured.
func Default() *Schema {
	return &Schema{
		BlockType:     pt.DefaultBlockType,
		SpanType:      pt.DefaultSpanType,
		Styles:        []string{"normal", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote"},
		Decorators:    []string{"strong", "em", "code", "underline", "strike-through"},
		Annotations:   []string{"link"},
		Lists:         []string{"bullet", "number"},
		InlineObjects: []string{"mention"},
		BlockObjects:  []string{"image"},
	}
}

// Load reads a schema from a JSON file. Missing type names fall back to the
// defaults; missing lists stay empty.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if s.BlockType == "" {
		s.BlockType = pt.DefaultBlockType
	}
	if s.SpanType == "" {
		s.SpanType = pt.DefaultSpanType
	}
	if len(s.Styles) == 0 {
		s.Styles = []string{"normal"}
	}
	return &s, nil
}

// Types returns the type names the pt codec needs.
func (s *Schema) Types() pt.Types {
	return pt.Types{Block: s.BlockType, Span: s.SpanType}
}

// DefaultStyle is the style given to new text blocks.
func (s *Schema) DefaultStyle() string {
	if len(s.Styles) == 0 {
		return "normal"
	}
	return s.Styles[0]
}

// IsDecorator reports whether mark names a decorator rather than an annotation key.
func (s *Schema) IsDecorator(mark string) bool {
	return slices.Contains(s.Decorators, mark)
}

// PlaceholderBlock returns the empty text block shown in an empty document.
func (s *Schema) PlaceholderBlock(newKey func() string) *pt.TextBlock {
	return &pt.TextBlock{
		Key:      newKey(),
		Type:     s.BlockType,
		Style:    s.DefaultStyle(),
		MarkDefs: []pt.MarkDef{},
		Children: []pt.Child{
			&pt.Span{Key: newKey(), Type: s.SpanType, Text: "", Marks: []string{}},
		},
	}
}
