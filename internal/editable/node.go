// Package editable holds the cursor-addressed working value edited by the
// editing surface and the operations that mutate it.
package editable

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"ptedit/api/internal/pt"
)

// Path addresses a node by position: [block] or [block, child].
type Path []int

// Clone returns a copy of p.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return append(Path{}, p...)
}

// Equal reports whether both paths are identical.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// IsAncestor reports whether p is a strict ancestor of other.
func (p Path) IsAncestor(other Path) bool {
	return len(p) < len(other) && slices.Equal(p, other[:len(p)])
}

// EndsBefore reports whether p is a node before other at p's depth, sharing
// the same parent.
func (p Path) EndsBefore(other Path) bool {
	if len(p) == 0 || len(other) < len(p) {
		return false
	}
	i := len(p) - 1
	return slices.Equal(p[:i], other[:i]) && p[i] < other[i]
}

// Compare orders paths in document order; ancestors sort before descendants.
func (p Path) Compare(other Path) int {
	n := min(len(p), len(other))
	for i := 0; i < n; i++ {
		if p[i] != other[i] {
			if p[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(p) < len(other):
		return -1
	case len(p) > len(other):
		return 1
	}
	return 0
}

// Next returns the path of the following sibling.
func (p Path) Next() Path {
	out := p.Clone()
	out[len(out)-1]++
	return out
}

// Previous returns the path of the preceding sibling.
func (p Path) Previous() (Path, bool) {
	if len(p) == 0 || p[len(p)-1] == 0 {
		return nil, false
	}
	out := p.Clone()
	out[len(out)-1]--
	return out, true
}

// Point is a caret position inside a leaf.
type Point struct {
	Path   Path `json:"path"`
	Offset int  `json:"offset"`
}

// Equal reports whether both points are the same caret position.
func (p Point) Equal(other Point) bool {
	return p.Offset == other.Offset && p.Path.Equal(other.Path)
}

// Selection is an anchor/focus pair. A nil *Selection means no selection.
type Selection struct {
	Anchor Point `json:"anchor"`
	Focus  Point `json:"focus"`
}

// Collapsed returns a selection with anchor and focus at p.
func Collapsed(p Point) *Selection {
	return &Selection{Anchor: p, Focus: Point{Path: p.Path.Clone(), Offset: p.Offset}}
}

// Clone returns a copy of the selection.
func (s *Selection) Clone() *Selection {
	if s == nil {
		return nil
	}
	return &Selection{
		Anchor: Point{Path: s.Anchor.Path.Clone(), Offset: s.Anchor.Offset},
		Focus:  Point{Path: s.Focus.Path.Clone(), Offset: s.Focus.Offset},
	}
}

// Equal compares two possibly nil selections.
func (s *Selection) Equal(other *Selection) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return s.Anchor.Equal(other.Anchor) && s.Focus.Equal(other.Focus)
}

// Node is a block node (*Element, *VoidBlock) or a leaf (*Text, *VoidInline).
type Node interface {
	NodeKey() string
	NodeType() string
	CloneNode() Node
	isNode()
}

// Element is an editable text block.
type Element struct {
	Key      string
	Type     string
	Style    string
	ListItem string
	Level    int
	// MarkDefs are the block's annotations, referenced by leaf marks.
	MarkDefs []pt.MarkDef
	Children []Node
	Extra    map[string]any
}

// Text is a run of editable characters.
type Text struct {
	Key   string
	Type  string
	Text  string
	Marks []string
	Extra map[string]any
}

// VoidBlock is an object block with no editable content.
type VoidBlock struct {
	Key   string
	Type  string
	Value map[string]any
}

// VoidInline is an inline object with no editable content.
type VoidInline struct {
	Key   string
	Type  string
	Value map[string]any
}

func (e *Element) NodeKey() string    { return e.Key }
func (t *Text) NodeKey() string       { return t.Key }
func (v *VoidBlock) NodeKey() string  { return v.Key }
func (v *VoidInline) NodeKey() string { return v.Key }

func (e *Element) NodeType() string    { return e.Type }
func (t *Text) NodeType() string       { return t.Type }
func (v *VoidBlock) NodeType() string  { return v.Type }
func (v *VoidInline) NodeType() string { return v.Type }

func (*Element) isNode()    {}
func (*Text) isNode()       {}
func (*VoidBlock) isNode()  {}
func (*VoidInline) isNode() {}

func (e *Element) CloneNode() Node { return e.Clone() }

// Clone deep-copies the element and its children.
func (e *Element) Clone() *Element {
	out := &Element{
		Key:      e.Key,
		Type:     e.Type,
		Style:    e.Style,
		ListItem: e.ListItem,
		Level:    e.Level,
		Extra:    pt.CloneFields(e.Extra),
	}
	if e.MarkDefs != nil {
		out.MarkDefs = make([]pt.MarkDef, len(e.MarkDefs))
		for i, def := range e.MarkDefs {
			out.MarkDefs[i] = def.Clone()
		}
	}
	if e.Children != nil {
		out.Children = make([]Node, len(e.Children))
		for i, child := range e.Children {
			out.Children[i] = child.CloneNode()
		}
	}
	return out
}

func (t *Text) CloneNode() Node { return t.Clone() }

// Clone copies the leaf.
func (t *Text) Clone() *Text {
	return &Text{Key: t.Key, Type: t.Type, Text: t.Text, Marks: slices.Clone(t.Marks), Extra: pt.CloneFields(t.Extra)}
}

// Len is the leaf length in runes, the unit of every text offset.
func (t *Text) Len() int {
	return utf8.RuneCountInString(t.Text)
}

// HasMark reports whether the leaf carries mark.
func (t *Text) HasMark(mark string) bool {
	return slices.Contains(t.Marks, mark)
}

func (v *VoidBlock) CloneNode() Node {
	return &VoidBlock{Key: v.Key, Type: v.Type, Value: pt.CloneFields(v.Value)}
}

func (v *VoidInline) CloneNode() Node {
	return &VoidInline{Key: v.Key, Type: v.Type, Value: pt.CloneFields(v.Value)}
}

// MarkDef returns the annotation with key and its position.
func (e *Element) MarkDef(key string) (pt.MarkDef, int, bool) {
	for i, def := range e.MarkDefs {
		if def.Key == key {
			return def, i, true
		}
	}
	return pt.MarkDef{}, -1, false
}

// ChildIndex returns the position of the child with key, or -1.
func (e *Element) ChildIndex(key string) int {
	for i, child := range e.Children {
		if child.NodeKey() == key {
			return i
		}
	}
	return -1
}

// references reports whether any leaf of e carries mark.
func (e *Element) references(mark string) bool {
	for _, child := range e.Children {
		if t, ok := child.(*Text); ok && t.HasMark(mark) {
			return true
		}
	}
	return false
}

// Value is the editable working value: the block nodes and the selection.
type Value struct {
	Children  []Node
	Selection *Selection
}

// Clone deep-copies the value.
func (v *Value) Clone() *Value {
	out := &Value{Selection: v.Selection.Clone()}
	if v.Children != nil {
		out.Children = make([]Node, len(v.Children))
		for i, child := range v.Children {
			out.Children[i] = child.CloneNode()
		}
	}
	return out
}

// BlockIndex resolves a block key to its current position, or -1.
func (v *Value) BlockIndex(key string) int {
	for i, block := range v.Children {
		if block.NodeKey() == key {
			return i
		}
	}
	return -1
}

// Node returns the node at path.
func (v *Value) Node(path Path) (Node, error) {
	switch len(path) {
	case 1:
		if path[0] < 0 || path[0] >= len(v.Children) {
			return nil, fmt.Errorf("%w: no block at %v", ErrInvalidOperation, path)
		}
		return v.Children[path[0]], nil
	case 2:
		el, err := v.Element(path[0])
		if err != nil {
			return nil, err
		}
		if path[1] < 0 || path[1] >= len(el.Children) {
			return nil, fmt.Errorf("%w: no child at %v", ErrInvalidOperation, path)
		}
		return el.Children[path[1]], nil
	default:
		return nil, fmt.Errorf("%w: path %v has depth %d", ErrInvalidOperation, path, len(path))
	}
}

// Element returns the text block at index.
func (v *Value) Element(index int) (*Element, error) {
	if index < 0 || index >= len(v.Children) {
		return nil, fmt.Errorf("%w: no block at [%d]", ErrInvalidOperation, index)
	}
	el, ok := v.Children[index].(*Element)
	if !ok {
		return nil, fmt.Errorf("%w: block [%d] is %T, not a text block", ErrInvalidOperation, index, v.Children[index])
	}
	return el, nil
}

// Leaf returns the text leaf at path.
func (v *Value) Leaf(path Path) (*Text, error) {
	if len(path) != 2 {
		return nil, fmt.Errorf("%w: path %v is not a leaf path", ErrInvalidOperation, path)
	}
	node, err := v.Node(path)
	if err != nil {
		return nil, err
	}
	t, ok := node.(*Text)
	if !ok {
		return nil, fmt.Errorf("%w: node at %v is %T, not text", ErrInvalidOperation, path, node)
	}
	return t, nil
}

// IsEmpty reports whether the value holds nothing but empty text blocks with at
// most one leaf, the state of a logically empty document.
func (v *Value) IsEmpty() bool {
	if len(v.Children) > 1 {
		return false
	}
	for _, block := range v.Children {
		el, ok := block.(*Element)
		if !ok || len(el.Children) > 1 {
			return false
		}
		for _, child := range el.Children {
			if t, ok := child.(*Text); !ok || t.Text != "" {
				return false
			}
		}
	}
	return true
}

// Start returns the first caret position in the document, if any.
func (v *Value) Start() (Point, bool) {
	for i, block := range v.Children {
		el, ok := block.(*Element)
		if !ok {
			continue
		}
		for j, child := range el.Children {
			if _, ok := child.(*Text); ok {
				return Point{Path: Path{i, j}}, true
			}
		}
	}
	return Point{}, false
}
