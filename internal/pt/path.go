package pt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Segment is one step of a Path: a Key, a Field or an Index.
type Segment interface {
	isSegment()
}

// Key selects the array member whose _key equals the value.
type Key string

// Field selects an object property.
type Field string

// Index selects an array member by position. It is only used where no key
// exists yet, for example the first insert into an empty document.
type Index int

func (Key) isSegment()   {}
func (Field) isSegment() {}
func (Index) isSegment() {}

// Path addresses a location in the persisted document. The empty path is the
// document itself.
type Path []Segment

// Common field segments.
const (
	ChildrenField Field = "children"
	MarkDefsField Field = "markDefs"
	TextField     Field = "text"
	MarksField    Field = "marks"
)

// BlockPath returns [{_key: blockKey}].
func BlockPath(blockKey string) Path {
	return Path{Key(blockKey)}
}

// ChildPath returns [{_key: blockKey}, "children", {_key: childKey}].
func ChildPath(blockKey, childKey string) Path {
	return Path{Key(blockKey), ChildrenField, Key(childKey)}
}

// MarkDefPath returns [{_key: blockKey}, "markDefs", {_key: defKey}].
func MarkDefPath(blockKey, defKey string) Path {
	return Path{Key(blockKey), MarkDefsField, Key(defKey)}
}

// Clone returns a copy of the path.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return append(Path{}, p...)
}

// Equal reports whether both paths select the same location.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor-or-self of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Overlaps reports whether one path is an ancestor-or-self of the other.
func (p Path) Overlaps(other Path) bool {
	return p.HasPrefix(other) || other.HasPrefix(p)
}

// BlockKey returns the key of the first segment when it is keyed.
func (p Path) BlockKey() (string, bool) {
	if len(p) == 0 {
		return "", false
	}
	k, ok := p[0].(Key)
	return string(k), ok
}

// SegmentKey returns the key at position i when that segment is keyed.
func (p Path) SegmentKey(i int) (string, bool) {
	if i < 0 || i >= len(p) {
		return "", false
	}
	k, ok := p[i].(Key)
	return string(k), ok
}

// FieldAt returns the field name at position i when that segment is a field.
func (p Path) FieldAt(i int) (Field, bool) {
	if i < 0 || i >= len(p) {
		return "", false
	}
	f, ok := p[i].(Field)
	return f, ok
}

// LastKey returns the deepest keyed segment.
func (p Path) LastKey() (string, bool) {
	for i := len(p) - 1; i >= 0; i-- {
		if k, ok := p[i].(Key); ok {
			return string(k), true
		}
	}
	return "", false
}

func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch s := seg.(type) {
		case Key:
			fmt.Fprintf(&b, "[_key==%q]", string(s))
		case Index:
			fmt.Fprintf(&b, "[%d]", int(s))
		case Field:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(string(s))
		}
	}
	return b.String()
}

// MarshalJSON encodes the path in wire form: [{"_key":"a"},"children",0].
func (p Path) MarshalJSON() ([]byte, error) {
	out := make([]any, len(p))
	for i, seg := range p {
		switch s := seg.(type) {
		case Key:
			out[i] = map[string]string{fieldKey: string(s)}
		case Field:
			out[i] = string(s)
		case Index:
			out[i] = int(s)
		default:
			return nil, fmt.Errorf("unknown path segment %T", seg)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire form.
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode path: %w", err)
	}
	path, err := PathFromValue(raw)
	if err != nil {
		return err
	}
	*p = path
	return nil
}

// PathFromValue reads a JSON-shaped path.
func PathFromValue(raw []any) (Path, error) {
	path := make(Path, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			path = append(path, Field(v))
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("%w: fractional path index %v", ErrMalformed, v)
			}
			path = append(path, Index(int(v)))
		case int:
			path = append(path, Index(v))
		case map[string]any:
			key, ok := v[fieldKey].(string)
			if !ok {
				return nil, fmt.Errorf("%w: path segment object without _key", ErrMalformed)
			}
			path = append(path, Key(key))
		default:
			return nil, fmt.Errorf("%w: path segment %T", ErrMalformed, item)
		}
	}
	return path, nil
}
