package pt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed reports a stored value that cannot be read as a block or child.
var ErrMalformed = errors.New("malformed portable text value")

const (
	fieldKey      = "_key"
	fieldType     = "_type"
	fieldStyle    = "style"
	fieldListItem = "listItem"
	fieldLevel    = "level"
	fieldChildren = "children"
	fieldMarkDefs = "markDefs"
	fieldText     = "text"
	fieldMarks    = "marks"
)

func (b *TextBlock) Value() map[string]any {
	out := make(map[string]any, len(b.Extra)+7)
	for k, v := range CloneFields(b.Extra) {
		out[k] = v
	}
	out[fieldKey] = b.Key
	out[fieldType] = b.Type
	if b.Style != "" {
		out[fieldStyle] = b.Style
	}
	if b.ListItem != "" {
		out[fieldListItem] = b.ListItem
	}
	if b.Level != 0 {
		out[fieldLevel] = float64(b.Level)
	}
	if b.Children != nil {
		children := make([]any, len(b.Children))
		for i, child := range b.Children {
			children[i] = child.Value()
		}
		out[fieldChildren] = children
	}
	if b.MarkDefs != nil {
		defs := make([]any, len(b.MarkDefs))
		for i, def := range b.MarkDefs {
			defs[i] = def.Value()
		}
		out[fieldMarkDefs] = defs
	}
	return out
}

func (b *ObjectBlock) Value() map[string]any {
	return typedValue(b.Key, b.Type, b.Fields)
}

func (s *Span) Value() map[string]any {
	out := make(map[string]any, len(s.Extra)+4)
	for k, v := range CloneFields(s.Extra) {
		out[k] = v
	}
	out[fieldKey] = s.Key
	out[fieldType] = s.Type
	out[fieldText] = s.Text
	if s.Marks != nil {
		marks := make([]any, len(s.Marks))
		for i, mark := range s.Marks {
			marks[i] = mark
		}
		out[fieldMarks] = marks
	}
	return out
}

func (o *InlineObject) Value() map[string]any {
	return typedValue(o.Key, o.Type, o.Fields)
}

// Value returns the annotation as a JSON-shaped map.
func (d MarkDef) Value() map[string]any {
	return typedValue(d.Key, d.Type, d.Fields)
}

func typedValue(key, typ string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range CloneFields(fields) {
		out[k] = v
	}
	out[fieldKey] = key
	out[fieldType] = typ
	return out
}

// BlocksValue converts blocks to a JSON-shaped array. A nil slice yields nil,
// which stands for an undefined document.
func BlocksValue(blocks []Block) []any {
	if blocks == nil {
		return nil
	}
	out := make([]any, len(blocks))
	for i, block := range blocks {
		out[i] = block.Value()
	}
	return out
}

// BlocksFromValue reads a JSON-shaped array into blocks.
func BlocksFromValue(v any, types Types) ([]Block, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: document is %T, not an array", ErrMalformed, v)
	}
	blocks := make([]Block, 0, len(items))
	for i, item := range items {
		block, err := BlockFromValue(item, types)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// BlockFromValue reads one JSON-shaped block. Text blocks are recognised by
// their type name; everything else is kept opaque.
func BlockFromValue(v any, types Types) (Block, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: block is %T, not an object", ErrMalformed, v)
	}
	key, typ, err := keyAndType(m)
	if err != nil {
		return nil, err
	}
	if typ != types.Block {
		return &ObjectBlock{Key: key, Type: typ, Fields: restFields(m)}, nil
	}

	block := &TextBlock{Key: key, Type: typ}
	extra := map[string]any{}
	for k, raw := range m {
		switch k {
		case fieldKey, fieldType:
		case fieldStyle:
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: block %s style is %T", ErrMalformed, key, raw)
			}
			block.Style = s
		case fieldListItem:
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: block %s listItem is %T", ErrMalformed, key, raw)
			}
			block.ListItem = s
		case fieldLevel:
			level, ok := asInt(raw)
			if !ok {
				return nil, fmt.Errorf("%w: block %s level is %T", ErrMalformed, key, raw)
			}
			block.Level = level
		case fieldChildren:
			children, err := childrenFromValue(raw, types)
			if err != nil {
				return nil, fmt.Errorf("block %s: %w", key, err)
			}
			block.Children = children
		case fieldMarkDefs:
			defs, err := markDefsFromValue(raw)
			if err != nil {
				return nil, fmt.Errorf("block %s: %w", key, err)
			}
			block.MarkDefs = defs
		default:
			extra[k] = CloneValue(raw)
		}
	}
	if len(extra) > 0 {
		block.Extra = extra
	}
	return block, nil
}

// ChildFromValue reads one JSON-shaped span or inline object.
func ChildFromValue(v any, types Types) (Child, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: child is %T, not an object", ErrMalformed, v)
	}
	key, typ, err := keyAndType(m)
	if err != nil {
		return nil, err
	}
	if typ != types.Span {
		return &InlineObject{Key: key, Type: typ, Fields: restFields(m)}, nil
	}
	span := &Span{Key: key, Type: typ}
	extra := map[string]any{}
	for k, raw := range m {
		switch k {
		case fieldKey, fieldType:
		case fieldText:
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: span %s text is %T", ErrMalformed, key, raw)
			}
			span.Text = s
		case fieldMarks:
			marks, err := stringsFromValue(raw)
			if err != nil {
				return nil, fmt.Errorf("span %s: %w", key, err)
			}
			span.Marks = marks
		default:
			extra[k] = CloneValue(raw)
		}
	}
	if len(extra) > 0 {
		span.Extra = extra
	}
	return span, nil
}

// MarkDefFromValue reads one JSON-shaped annotation.
func MarkDefFromValue(v any) (MarkDef, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return MarkDef{}, fmt.Errorf("%w: markDef is %T, not an object", ErrMalformed, v)
	}
	key, typ, err := keyAndType(m)
	if err != nil {
		return MarkDef{}, err
	}
	return MarkDef{Key: key, Type: typ, Fields: restFields(m)}, nil
}

func childrenFromValue(raw any, types Types) ([]Child, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: children is %T", ErrMalformed, raw)
	}
	children := make([]Child, 0, len(items))
	for _, item := range items {
		child, err := ChildFromValue(item, types)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func markDefsFromValue(raw any) ([]MarkDef, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: markDefs is %T", ErrMalformed, raw)
	}
	defs := make([]MarkDef, 0, len(items))
	for _, item := range items {
		def, err := MarkDefFromValue(item)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func stringsFromValue(raw any) ([]string, error) {
	switch items := raw.(type) {
	case []string:
		return append([]string{}, items...), nil
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: mark is %T", ErrMalformed, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: marks is %T", ErrMalformed, raw)
	}
}

func keyAndType(m map[string]any) (string, string, error) {
	key, _ := m[fieldKey].(string)
	typ, _ := m[fieldType].(string)
	if typ == "" {
		return "", "", fmt.Errorf("%w: missing _type", ErrMalformed)
	}
	return key, typ, nil
}

func restFields(m map[string]any) map[string]any {
	var out map[string]any
	for k, v := range m {
		if k == fieldKey || k == fieldType {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(m))
		}
		out[k] = CloneValue(v)
	}
	return out
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// Normalize turns any Go value into its JSON-shaped equivalent.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return out, nil
}

// MarshalBlocks encodes a document. nil encodes as JSON null.
func MarshalBlocks(blocks []Block) ([]byte, error) {
	return json.Marshal(BlocksValue(blocks))
}

// UnmarshalBlocks decodes a document. JSON null decodes to nil.
func UnmarshalBlocks(data []byte, types Types) ([]Block, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	return BlocksFromValue(raw, types)
}

func (b *TextBlock) MarshalJSON() ([]byte, error)   { return json.Marshal(b.Value()) }
func (b *ObjectBlock) MarshalJSON() ([]byte, error) { return json.Marshal(b.Value()) }
func (s *Span) MarshalJSON() ([]byte, error)        { return json.Marshal(s.Value()) }
func (o *InlineObject) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value())
}
func (d MarkDef) MarshalJSON() ([]byte, error) { return json.Marshal(d.Value()) }
