package editable

import "unicode/utf8"

// TransformPath returns where the node at p ends up after op. ok is false
// when op removed the node.
func TransformPath(p Path, op Operation) (Path, bool) {
	if len(p) == 0 {
		return p, true
	}
	switch o := op.(type) {
	case InsertNode:
		return pathAfterInsert(p, o.Path), true
	case RemoveNode:
		return pathAfterRemove(p, o.Path)
	case SplitNode:
		out := p.Clone()
		at := len(o.Path)
		switch {
		case o.Path.Equal(p):
		case o.Path.EndsBefore(p):
			out[at-1]++
		case o.Path.IsAncestor(p) && p[at] >= o.Position:
			out[at-1]++
			out[at] -= o.Position
		}
		return out, true
	case MergeNode:
		out := p.Clone()
		at := len(o.Path)
		switch {
		case o.Path.Equal(p) || o.Path.EndsBefore(p):
			out[at-1]--
		case o.Path.IsAncestor(p):
			out[at-1]--
			out[at] += o.Position
		}
		return out, true
	case MoveNode:
		if o.Path.Equal(p) || o.Path.IsAncestor(p) {
			return append(o.NewPath.Clone(), p[len(o.Path):]...), true
		}
		out, _ := pathAfterRemove(p, o.Path)
		return pathAfterInsert(out, o.NewPath), true
	}
	return p.Clone(), true
}

func pathAfterInsert(p, at Path) Path {
	out := p.Clone()
	if at.Equal(p) || at.EndsBefore(p) || at.IsAncestor(p) {
		out[len(at)-1]++
	}
	return out
}

func pathAfterRemove(p, at Path) (Path, bool) {
	if at.Equal(p) || at.IsAncestor(p) {
		return nil, false
	}
	out := p.Clone()
	if at.EndsBefore(p) {
		out[len(at)-1]--
	}
	return out, true
}

// TransformPoint returns where a caret at p ends up after op. ok is false
// when op removed the leaf holding it.
func TransformPoint(p Point, op Operation) (Point, bool) {
	switch o := op.(type) {
	case InsertText:
		if o.Path.Equal(p.Path) && p.Offset >= o.Offset {
			p.Offset += utf8.RuneCountInString(o.Text)
		}
		return p, true
	case RemoveText:
		if o.Path.Equal(p.Path) && p.Offset > o.Offset {
			p.Offset -= min(utf8.RuneCountInString(o.Text), p.Offset-o.Offset)
		}
		return p, true
	case SplitNode:
		if o.Path.Equal(p.Path) && len(o.Path) == 2 {
			if p.Offset >= o.Position {
				return Point{Path: o.Path.Next(), Offset: p.Offset - o.Position}, true
			}
			return p, true
		}
	case MergeNode:
		if o.Path.Equal(p.Path) && len(o.Path) == 2 {
			prev, _ := o.Path.Previous()
			return Point{Path: prev, Offset: p.Offset + o.Position}, true
		}
	}
	path, ok := TransformPath(p.Path, op)
	if !ok {
		return Point{}, false
	}
	return Point{Path: path, Offset: p.Offset}, true
}

// transformSelection moves sel through op applied to v. A caret whose leaf
// vanished lands on the nearest remaining leaf.
func transformSelection(v *Value, sel *Selection, op Operation) *Selection {
	anchor, okA := TransformPoint(sel.Anchor, op)
	focus, okF := TransformPoint(sel.Focus, op)
	if !okA {
		var found bool
		if anchor, found = nearestPoint(v, sel.Anchor.Path); !found {
			return nil
		}
	}
	if !okF {
		var found bool
		if focus, found = nearestPoint(v, sel.Focus.Path); !found {
			return nil
		}
	}
	if checkPoint(v, anchor) != nil || checkPoint(v, focus) != nil {
		return nil
	}
	return &Selection{Anchor: anchor, Focus: focus}
}

// nearestPoint finds a caret position close to a removed path.
func nearestPoint(v *Value, removed Path) (Point, bool) {
	if len(v.Children) == 0 {
		return Point{}, false
	}
	block := min(removed[0], len(v.Children)-1)
	if el, ok := v.Children[block].(*Element); ok && len(el.Children) > 0 {
		child := 0
		if len(removed) > 1 {
			child = min(removed[1], len(el.Children)-1)
		}
		return Point{Path: Path{block, child}}, true
	}
	if _, ok := v.Children[block].(*VoidBlock); ok {
		return Point{Path: Path{block}}, true
	}
	return v.Start()
}
