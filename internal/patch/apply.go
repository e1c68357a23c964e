package patch

import (
	"errors"
	"fmt"

	"ptedit/api/internal/pt"
)

// Apply applies patches in order to a JSON-shaped document and returns the
// result. The input is never modified; on error it is returned unchanged.
func Apply(doc any, patches ...Patch) (any, error) {
	out := pt.CloneValue(doc)
	for i, p := range patches {
		next, err := applyOne(out, p)
		if err != nil {
			return doc, fmt.Errorf("apply patch %d (%s %s): %w", i, p.Type(), p.Target(), err)
		}
		out = next
	}
	return out, nil
}

// ApplyBlocks applies patches to a persisted block array. A nil result means the
// document became undefined.
func ApplyBlocks(blocks []pt.Block, types pt.Types, patches ...Patch) ([]pt.Block, error) {
	var doc any
	if blocks != nil {
		doc = pt.BlocksValue(blocks)
	}
	out, err := Apply(doc, patches...)
	if err != nil {
		return blocks, err
	}
	if out == nil {
		return nil, nil
	}
	next, err := pt.BlocksFromValue(out, types)
	if err != nil {
		return blocks, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return next, nil
}

func applyOne(doc any, p Patch) (any, error) {
	switch p := p.(type) {
	case Set:
		value := pt.CloneValue(p.Value)
		if len(p.Path) == 0 {
			return value, nil
		}
		return modify(doc, p.Path, func(any, bool) (any, bool, error) {
			return value, false, nil
		})
	case SetIfMissing:
		value := pt.CloneValue(p.Value)
		if len(p.Path) == 0 {
			if doc == nil {
				return value, nil
			}
			return doc, nil
		}
		return modify(doc, p.Path, func(cur any, exists bool) (any, bool, error) {
			if exists && cur != nil {
				return cur, false, nil
			}
			return value, false, nil
		})
	case Unset:
		if len(p.Path) == 0 {
			return nil, nil
		}
		out, err := modify(doc, p.Path, func(any, bool) (any, bool, error) {
			return nil, true, nil
		})
		if errors.Is(err, ErrNotFound) {
			return doc, nil
		}
		return out, err
	case Insert:
		return applyInsert(doc, p)
	case DiffMatchPatch:
		return modify(doc, p.Path, func(cur any, exists bool) (any, bool, error) {
			text, ok := cur.(string)
			if !exists || !ok {
				return nil, false, fmt.Errorf("%w: diffMatchPatch target is %T", ErrInvalidPatch, cur)
			}
			next, err := ApplyText(p.Value, text)
			return next, false, err
		})
	default:
		return nil, fmt.Errorf("%w: unknown patch %T", ErrInvalidPatch, p)
	}
}

// modify walks path and replaces the addressed value with fn's result. fn
// receives the current value and whether it exists; remove drops it instead.
func modify(node any, path pt.Path, fn func(cur any, exists bool) (next any, remove bool, err error)) (any, error) {
	seg, rest := path[0], path[1:]
	switch s := seg.(type) {
	case pt.Field:
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: field %q on %T", ErrInvalidPatch, string(s), node)
		}
		cur, exists := m[string(s)]
		if len(rest) > 0 {
			if !exists {
				return nil, fmt.Errorf("%w: field %q", ErrNotFound, string(s))
			}
			next, err := modify(cur, rest, fn)
			if err != nil {
				return nil, err
			}
			m[string(s)] = next
			return m, nil
		}
		next, remove, err := fn(cur, exists)
		if err != nil {
			return nil, err
		}
		if remove {
			delete(m, string(s))
		} else {
			m[string(s)] = next
		}
		return m, nil
	case pt.Key, pt.Index:
		arr, ok := node.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: array segment on %T", ErrInvalidPatch, node)
		}
		idx := memberIndex(arr, seg)
		if idx < 0 || idx >= len(arr) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, pt.Path{seg})
		}
		if len(rest) > 0 {
			next, err := modify(arr[idx], rest, fn)
			if err != nil {
				return nil, err
			}
			arr[idx] = next
			return arr, nil
		}
		next, remove, err := fn(arr[idx], true)
		if err != nil {
			return nil, err
		}
		if remove {
			return append(arr[:idx], arr[idx+1:]...), nil
		}
		arr[idx] = next
		return arr, nil
	default:
		return nil, fmt.Errorf("%w: segment %T", ErrInvalidPatch, seg)
	}
}

func applyInsert(doc any, p Insert) (any, error) {
	if len(p.Path) == 0 {
		return nil, fmt.Errorf("%w: insert without path", ErrInvalidPatch)
	}
	last := p.Path[len(p.Path)-1]
	items := make([]any, len(p.Items))
	for i, item := range p.Items {
		items[i] = pt.CloneValue(item)
	}
	into := func(cur any) (any, error) {
		arr, ok := cur.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: insert into %T", ErrInvalidPatch, cur)
		}
		return insertItems(arr, last, p.Position, items)
	}
	parent := p.Path[:len(p.Path)-1]
	if len(parent) == 0 {
		return into(doc)
	}
	return modify(doc, parent, func(cur any, exists bool) (any, bool, error) {
		if !exists {
			return nil, false, fmt.Errorf("%w: insert parent %s", ErrNotFound, parent)
		}
		next, err := into(cur)
		return next, false, err
	})
}

func insertItems(arr []any, at pt.Segment, pos Position, items []any) ([]any, error) {
	idx := memberIndex(arr, at)
	switch at.(type) {
	case pt.Key:
		if idx < 0 {
			return nil, fmt.Errorf("%w: insert anchor %s", ErrNotFound, pt.Path{at})
		}
	case pt.Index:
		// An index one past the end is allowed so empty arrays can be seeded.
		if idx < 0 || idx > len(arr) || (pos != Before && idx == len(arr)) {
			return nil, fmt.Errorf("%w: insert index %d of %d", ErrNotFound, idx, len(arr))
		}
	default:
		return nil, fmt.Errorf("%w: insert anchor %T", ErrInvalidPatch, at)
	}
	switch pos {
	case Before:
	case After:
		idx++
	case Replace:
		arr = append(arr[:idx], arr[idx+1:]...)
	default:
		return nil, fmt.Errorf("%w: insert position %q", ErrInvalidPatch, pos)
	}
	out := make([]any, 0, len(arr)+len(items))
	out = append(out, arr[:idx]...)
	out = append(out, items...)
	return append(out, arr[idx:]...), nil
}

// memberIndex resolves a Key or Index segment. Negative indexes count from
// the end.
func memberIndex(arr []any, seg pt.Segment) int {
	switch s := seg.(type) {
	case pt.Key:
		for i, item := range arr {
			if m, ok := item.(map[string]any); ok && m["_key"] == string(s) {
				return i
			}
		}
		return -1
	case pt.Index:
		i := int(s)
		if i < 0 {
			i += len(arr)
		}
		return i
	}
	return -1
}
