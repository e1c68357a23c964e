package editable

import (
	"fmt"
	"reflect"
	"slices"

	"ptedit/api/internal/pt"
)

// Property names with dedicated fields.
const (
	PropStyle    = "style"
	PropListItem = "listItem"
	PropLevel    = "level"
	PropMarkDefs = "markDefs"
	PropMarks    = "marks"
)

func structural(node Node, name string) bool {
	switch name {
	case "_key", "_type":
		return true
	case "children":
		_, ok := node.(*Element)
		return ok
	case "text":
		_, ok := node.(*Text)
		return ok
	}
	return false
}

// Property returns the value of a property of node, or nil when absent.
func Property(node Node, name string) any {
	switch n := node.(type) {
	case *Element:
		switch name {
		case PropStyle:
			if n.Style != "" {
				return n.Style
			}
		case PropListItem:
			if n.ListItem != "" {
				return n.ListItem
			}
		case PropLevel:
			if n.Level != 0 {
				return n.Level
			}
		case PropMarkDefs:
			if n.MarkDefs != nil {
				return cloneMarkDefs(n.MarkDefs)
			}
		default:
			return pt.CloneValue(n.Extra[name])
		}
	case *Text:
		if name == PropMarks {
			if n.Marks != nil {
				return slices.Clone(n.Marks)
			}
			return nil
		}
		return pt.CloneValue(n.Extra[name])
	case *VoidBlock:
		return pt.CloneValue(n.Value[name])
	case *VoidInline:
		return pt.CloneValue(n.Value[name])
	}
	return nil
}

// Properties returns every present non-structural property of node.
func Properties(node Node) map[string]any {
	out := map[string]any{}
	for _, name := range propertyNames(node) {
		if v := Property(node, name); v != nil {
			out[name] = v
		}
	}
	return out
}

func propertyNames(node Node) []string {
	var names []string
	var rest map[string]any
	switch n := node.(type) {
	case *Element:
		names = []string{PropStyle, PropListItem, PropLevel, PropMarkDefs}
		rest = n.Extra
	case *Text:
		names = []string{PropMarks}
		rest = n.Extra
	case *VoidBlock:
		rest = n.Value
	case *VoidInline:
		rest = n.Value
	}
	for name := range rest {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DiffProperties returns the changes turning from's properties into to's,
// with nil for properties to drop.
func DiffProperties(from, to Node) map[string]any {
	out := map[string]any{}
	names := append(propertyNames(from), propertyNames(to)...)
	for _, name := range names {
		if _, done := out[name]; done {
			continue
		}
		a, b := Property(from, name), Property(to, name)
		if !jsonEqual(a, b) {
			out[name] = b
		}
	}
	return out
}

// SetProperty sets or, for a nil value, removes a property of node.
func SetProperty(node Node, name string, value any) error {
	if structural(node, name) {
		return fmt.Errorf("%w: property %q cannot be set", ErrInvalidOperation, name)
	}
	switch n := node.(type) {
	case *Element:
		switch name {
		case PropStyle:
			s, err := stringProp(name, value)
			n.Style = s
			return err
		case PropListItem:
			s, err := stringProp(name, value)
			n.ListItem = s
			return err
		case PropLevel:
			if value == nil {
				n.Level = 0
				return nil
			}
			level, ok := intValue(value)
			if !ok {
				return fmt.Errorf("%w: level is %T", ErrInvalidOperation, value)
			}
			n.Level = level
			return nil
		case PropMarkDefs:
			defs, err := markDefsProp(value)
			if err != nil {
				return err
			}
			n.MarkDefs = defs
			return nil
		default:
			n.Extra = setField(n.Extra, name, value)
			return nil
		}
	case *Text:
		if name == PropMarks {
			marks, err := marksProp(value)
			if err != nil {
				return err
			}
			n.Marks = marks
			return nil
		}
		n.Extra = setField(n.Extra, name, value)
		return nil
	case *VoidBlock:
		n.Value = setField(n.Value, name, value)
		return nil
	case *VoidInline:
		n.Value = setField(n.Value, name, value)
		return nil
	}
	return fmt.Errorf("%w: unknown node %T", ErrInvalidOperation, node)
}

func setField(fields map[string]any, name string, value any) map[string]any {
	if value == nil {
		delete(fields, name)
		if len(fields) == 0 {
			return nil
		}
		return fields
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields[name] = pt.CloneValue(value)
	return fields
}

func stringProp(name string, value any) (string, error) {
	if value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T", ErrInvalidOperation, name, value)
	}
	return s, nil
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	}
	return 0, false
}

func markDefsProp(value any) ([]pt.MarkDef, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []pt.MarkDef:
		return cloneMarkDefs(v), nil
	case []any:
		defs := make([]pt.MarkDef, 0, len(v))
		for _, item := range v {
			def, err := pt.MarkDefFromValue(item)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
			}
			defs = append(defs, def)
		}
		return defs, nil
	}
	return nil, fmt.Errorf("%w: markDefs is %T", ErrInvalidOperation, value)
}

func marksProp(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return slices.Clone(v), nil
	case []any:
		marks := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: mark is %T", ErrInvalidOperation, item)
			}
			marks = append(marks, s)
		}
		return marks, nil
	}
	return nil, fmt.Errorf("%w: marks is %T", ErrInvalidOperation, value)
}

func cloneMarkDefs(defs []pt.MarkDef) []pt.MarkDef {
	if defs == nil {
		return nil
	}
	out := make([]pt.MarkDef, len(defs))
	for i, def := range defs {
		out[i] = def.Clone()
	}
	return out
}

// jsonEqual compares property values after normalising them to JSON shape.
func jsonEqual(a, b any) bool {
	na, errA := pt.Normalize(propJSON(a))
	nb, errB := pt.Normalize(propJSON(b))
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func propJSON(v any) any {
	if defs, ok := v.([]pt.MarkDef); ok {
		out := make([]any, len(defs))
		for i, def := range defs {
			out[i] = def.Value()
		}
		return out
	}
	return v
}
