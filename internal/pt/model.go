// Package pt models the persisted portable text document: an ordered array of
// keyed, typed blocks. Every block, span, inline object and annotation carries a
// key that is assigned once and never changes.
package pt

import (
	"fmt"

	"github.com/brunoga/deep"
)

// Default type names used when a schema does not override them.
const (
	DefaultBlockType = "block"
	DefaultSpanType  = "span"
)

// Types names the text block and span types used to tell text content apart
// from opaque objects while decoding.
type Types struct {
	Block string
	Span  string
}

// DefaultTypes returns the conventional "block"/"span" type names.
func DefaultTypes() Types {
	return Types{Block: DefaultBlockType, Span: DefaultSpanType}
}

// Block is either a *TextBlock or an *ObjectBlock.
type Block interface {
	BlockKey() string
	BlockType() string
	// Value returns the block as a JSON-shaped tree (maps, []any, float64).
	Value() map[string]any
	CloneBlock() Block
	isBlock()
}

// Child is either a *Span or an *InlineObject.
type Child interface {
	ChildKey() string
	ChildType() string
	Value() map[string]any
	CloneChild() Child
	isChild()
}

// TextBlock is a paragraph-level block holding spans and inline objects.
// Nil Children or MarkDefs mean the field is absent in the stored value.
type TextBlock struct {
	Key      string
	Type     string
	Style    string
	ListItem string
	Level    int
	Children []Child
	MarkDefs []MarkDef
	Extra    map[string]any
}

// ObjectBlock is an opaque typed block with no editable text.
type ObjectBlock struct {
	Key    string
	Type   string
	Fields map[string]any
}

// Span is a run of text sharing one set of marks. Marks are decorator names
// or keys into the owning block's MarkDefs.
type Span struct {
	Key   string
	Type  string
	Text  string
	Marks []string
	Extra map[string]any
}

// InlineObject is an opaque value embedded among a text block's children.
type InlineObject struct {
	Key    string
	Type   string
	Fields map[string]any
}

// MarkDef is an annotation owned by one text block and referenced by span marks.
type MarkDef struct {
	Key    string
	Type   string
	Fields map[string]any
}

func (b *TextBlock) BlockKey() string  { return b.Key }
func (b *TextBlock) BlockType() string { return b.Type }
func (*TextBlock) isBlock()            {}

func (b *ObjectBlock) BlockKey() string  { return b.Key }
func (b *ObjectBlock) BlockType() string { return b.Type }
func (*ObjectBlock) isBlock()            {}

func (s *Span) ChildKey() string  { return s.Key }
func (s *Span) ChildType() string { return s.Type }
func (*Span) isChild()            {}

func (o *InlineObject) ChildKey() string  { return o.Key }
func (o *InlineObject) ChildType() string { return o.Type }
func (*InlineObject) isChild()            {}

// MarkDefKeys returns the set of annotation keys defined on the block.
func (b *TextBlock) MarkDefKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(b.MarkDefs))
	for _, def := range b.MarkDefs {
		keys[def.Key] = struct{}{}
	}
	return keys
}

// MarkDef returns the annotation with the given key.
func (b *TextBlock) MarkDef(key string) (MarkDef, bool) {
	for _, def := range b.MarkDefs {
		if def.Key == key {
			return def, true
		}
	}
	return MarkDef{}, false
}

// ChildIndex returns the position of the child with key, or -1.
func (b *TextBlock) ChildIndex(key string) int {
	for i, child := range b.Children {
		if child.ChildKey() == key {
			return i
		}
	}
	return -1
}

func (b *TextBlock) CloneBlock() Block { return b.Clone() }

// Clone returns a deep copy of the block.
func (b *TextBlock) Clone() *TextBlock {
	out := *b
	if b.Children != nil {
		out.Children = make([]Child, len(b.Children))
		for i, child := range b.Children {
			out.Children[i] = child.CloneChild()
		}
	}
	if b.MarkDefs != nil {
		out.MarkDefs = make([]MarkDef, len(b.MarkDefs))
		for i, def := range b.MarkDefs {
			out.MarkDefs[i] = def.Clone()
		}
	}
	out.Extra = CloneFields(b.Extra)
	return &out
}

func (b *ObjectBlock) CloneBlock() Block {
	return &ObjectBlock{Key: b.Key, Type: b.Type, Fields: CloneFields(b.Fields)}
}

func (s *Span) CloneChild() Child { return s.Clone() }

// Clone returns a deep copy of the span.
func (s *Span) Clone() *Span {
	out := *s
	if s.Marks != nil {
		out.Marks = append([]string{}, s.Marks...)
	}
	out.Extra = CloneFields(s.Extra)
	return &out
}

func (o *InlineObject) CloneChild() Child {
	return &InlineObject{Key: o.Key, Type: o.Type, Fields: CloneFields(o.Fields)}
}

// Clone returns a deep copy of the annotation.
func (d MarkDef) Clone() MarkDef {
	return MarkDef{Key: d.Key, Type: d.Type, Fields: CloneFields(d.Fields)}
}

// CloneBlocks deep-copies a block array, keeping nil distinct from empty.
func CloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, block := range blocks {
		out[i] = block.CloneBlock()
	}
	return out
}

// CloneFields deep-copies an opaque field map.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out, err := deep.Copy(fields)
	if err != nil {
		panic(fmt.Sprintf("pt: copy fields: %v", err))
	}
	return out
}

// CloneValue deep-copies an arbitrary JSON-shaped value.
func CloneValue(v any) any {
	if v == nil {
		return nil
	}
	out, err := deep.Copy(v)
	if err != nil {
		panic(fmt.Sprintf("pt: copy value: %v", err))
	}
	return out
}

// IndexOfKey returns the position of the block with key, or -1.
func IndexOfKey(blocks []Block, key string) int {
	for i, block := range blocks {
		if block.BlockKey() == key {
			return i
		}
	}
	return -1
}
