package patch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ptedit/api/internal/pt"
)

type wirePatch struct {
	Type     Type            `json:"type"`
	Path     pt.Path         `json:"path"`
	Value    json.RawMessage `json:"value,omitempty"`
	Items    []any           `json:"items,omitempty"`
	Position Position        `json:"position,omitempty"`
}

// List is a patch sequence with a JSON encoding.
type List []Patch

// Marshal encodes one patch in wire form.
func Marshal(p Patch) ([]byte, error) {
	w := wirePatch{Type: p.Type(), Path: p.Target()}
	if w.Path == nil {
		w.Path = pt.Path{}
	}
	var value any
	hasValue := false
	switch v := p.(type) {
	case Set:
		value, hasValue = v.Value, true
	case SetIfMissing:
		value, hasValue = v.Value, true
	case DiffMatchPatch:
		value, hasValue = v.Value, true
	case Insert:
		w.Position = v.Position
		w.Items = v.Items
		if w.Items == nil {
			w.Items = []any{}
		}
	case Unset:
	default:
		return nil, fmt.Errorf("%w: unknown patch %T", ErrInvalidPatch, p)
	}
	if hasValue {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal patch value: %w", err)
		}
		w.Value = raw
	}
	return json.Marshal(w)
}

// Unmarshal decodes one patch, rejecting malformed shapes with ErrInvalidPatch.
func Unmarshal(data []byte) (Patch, error) {
	var w wirePatch
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if w.Path == nil {
		w.Path = pt.Path{}
	}
	switch w.Type {
	case TypeSet, TypeSetIfMissing:
		if len(w.Value) == 0 {
			return nil, fmt.Errorf("%w: %s without value", ErrInvalidPatch, w.Type)
		}
		value, err := decodeValue(w.Value)
		if err != nil {
			return nil, err
		}
		if w.Type == TypeSet {
			return Set{Path: w.Path, Value: value}, nil
		}
		return SetIfMissing{Path: w.Path, Value: value}, nil
	case TypeUnset:
		return Unset{Path: w.Path}, nil
	case TypeInsert:
		switch w.Position {
		case Before, After, Replace:
		default:
			return nil, fmt.Errorf("%w: insert position %q", ErrInvalidPatch, w.Position)
		}
		if len(w.Path) == 0 {
			return nil, fmt.Errorf("%w: insert without path", ErrInvalidPatch)
		}
		return Insert{Path: w.Path, Position: w.Position, Items: w.Items}, nil
	case TypeDiffMatchPatch:
		var text string
		if err := json.Unmarshal(w.Value, &text); err != nil {
			return nil, fmt.Errorf("%w: diffMatchPatch value must be a string", ErrInvalidPatch)
		}
		return DiffMatchPatch{Path: w.Path, Value: text}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidPatch, w.Type)
	}
}

func decodeValue(raw json.RawMessage) (any, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrInvalidPatch, err)
	}
	return value, nil
}

func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, p := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := Marshal(p)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	out := make(List, 0, len(raw))
	for i, item := range raw {
		p, err := Unmarshal(item)
		if err != nil {
			return fmt.Errorf("patch %d: %w", i, err)
		}
		out = append(out, p)
	}
	*l = out
	return nil
}
