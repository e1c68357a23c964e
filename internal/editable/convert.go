package editable

import (
	"fmt"
	"slices"

	"ptedit/api/internal/pt"
	"ptedit/api/internal/schema"
	"ptedit/api/internal/util"
)

// ToEditable builds a working value from persisted blocks. Keys, void payloads
// and absent fields are carried over unchanged. A block whose type the schema
// does not allow fails with schema.ErrSchemaMismatch.
func ToEditable(blocks []pt.Block, sch *schema.Schema) (*Value, error) {
	v := &Value{}
	if blocks == nil {
		return v, nil
	}
	v.Children = make([]Node, 0, len(blocks))
	for i, block := range blocks {
		if err := checkTypes(block, sch); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		v.Children = append(v.Children, BlockNode(block))
	}
	return v, nil
}

func checkTypes(block pt.Block, sch *schema.Schema) error {
	switch b := block.(type) {
	case *pt.TextBlock:
		if b.Type != sch.BlockType {
			return fmt.Errorf("%w: text block %s has type %q", schema.ErrSchemaMismatch, b.Key, b.Type)
		}
		for _, child := range b.Children {
			if o, ok := child.(*pt.InlineObject); ok && !slices.Contains(sch.InlineObjects, o.Type) {
				return fmt.Errorf("%w: inline object %s has type %q", schema.ErrSchemaMismatch, o.Key, o.Type)
			}
		}
	case *pt.ObjectBlock:
		if !slices.Contains(sch.BlockObjects, b.Type) {
			return fmt.Errorf("%w: block %s has type %q", schema.ErrSchemaMismatch, b.Key, b.Type)
		}
	}
	return nil
}

// ToBlocks converts the working value back to persisted blocks. A value
// built from nil blocks yields nil.
func ToBlocks(v *Value) []pt.Block {
	if v.Children == nil {
		return nil
	}
	out := make([]pt.Block, len(v.Children))
	for i, node := range v.Children {
		out[i] = NodeBlock(node)
	}
	return out
}

// BlockNode converts one persisted block.
func BlockNode(block pt.Block) Node {
	switch b := block.(type) {
	case *pt.TextBlock:
		el := &Element{
			Key:      b.Key,
			Type:     b.Type,
			Style:    b.Style,
			ListItem: b.ListItem,
			Level:    b.Level,
			Extra:    pt.CloneFields(b.Extra),
		}
		if b.MarkDefs != nil {
			el.MarkDefs = make([]pt.MarkDef, len(b.MarkDefs))
			for i, def := range b.MarkDefs {
				el.MarkDefs[i] = def.Clone()
			}
		}
		if b.Children != nil {
			el.Children = make([]Node, len(b.Children))
			for i, child := range b.Children {
				el.Children[i] = ChildNode(child, b.Key, i)
			}
		}
		return el
	case *pt.ObjectBlock:
		return &VoidBlock{Key: b.Key, Type: b.Type, Value: pt.CloneFields(b.Fields)}
	}
	panic(fmt.Sprintf("editable: unknown block %T", block))
}

// ChildNode converts one persisted child. A span without a key gets the
// derived key blockKey+ordinal.
func ChildNode(child pt.Child, blockKey string, ordinal int) Node {
	switch c := child.(type) {
	case *pt.Span:
		key := c.Key
		if key == "" {
			key = fmt.Sprintf("%s%d", blockKey, ordinal)
		}
		return &Text{Key: key, Type: c.Type, Text: c.Text, Marks: slices.Clone(c.Marks), Extra: pt.CloneFields(c.Extra)}
	case *pt.InlineObject:
		return &VoidInline{Key: c.Key, Type: c.Type, Value: pt.CloneFields(c.Fields)}
	}
	panic(fmt.Sprintf("editable: unknown child %T", child))
}

// NodeBlock converts a block node to its persisted form.
func NodeBlock(node Node) pt.Block {
	switch n := node.(type) {
	case *Element:
		b := &pt.TextBlock{
			Key:      n.Key,
			Type:     n.Type,
			Style:    n.Style,
			ListItem: n.ListItem,
			Level:    n.Level,
			Extra:    pt.CloneFields(n.Extra),
		}
		if n.MarkDefs != nil {
			b.MarkDefs = make([]pt.MarkDef, len(n.MarkDefs))
			for i, def := range n.MarkDefs {
				b.MarkDefs[i] = def.Clone()
			}
		}
		if n.Children != nil {
			b.Children = make([]pt.Child, len(n.Children))
			for i, child := range n.Children {
				b.Children[i] = NodeChild(child)
			}
		}
		return b
	case *VoidBlock:
		return &pt.ObjectBlock{Key: n.Key, Type: n.Type, Fields: pt.CloneFields(n.Value)}
	}
	panic(fmt.Sprintf("editable: %T is not a block node", node))
}

// NodeChild converts a leaf node to its persisted form.
func NodeChild(node Node) pt.Child {
	switch n := node.(type) {
	case *Text:
		return &pt.Span{Key: n.Key, Type: n.Type, Text: n.Text, Marks: slices.Clone(n.Marks), Extra: pt.CloneFields(n.Extra)}
	case *VoidInline:
		return &pt.InlineObject{Key: n.Key, Type: n.Type, Fields: pt.CloneFields(n.Value)}
	}
	panic(fmt.Sprintf("editable: %T is not a leaf node", node))
}

// NodeValue returns the JSON-shaped persisted form of any node.
func NodeValue(node Node) map[string]any {
	switch node.(type) {
	case *Element, *VoidBlock:
		return NodeBlock(node).Value()
	default:
		return NodeChild(node).Value()
	}
}

// Placeholder returns the empty text block that keeps a logically empty
// document editable.
func Placeholder(sch *schema.Schema) *Element {
	return BlockNode(sch.PlaceholderBlock(util.NewKey)).(*Element)
}
