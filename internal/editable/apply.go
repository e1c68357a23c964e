package editable

import (
	"fmt"
	"slices"
	"sort"

	"ptedit/api/internal/pt"
	"ptedit/api/internal/util"
)

// Apply applies op to v and returns it with its resolved fields filled in.
// The selection follows the edit. On error v is left unchanged.
func Apply(v *Value, op Operation) (Operation, error) {
	next := v.Clone()
	resolved, err := apply(next, op)
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", op.Kind(), err)
	}
	if _, ok := resolved.(SetSelection); !ok && next.Selection != nil {
		next.Selection = transformSelection(next, next.Selection, resolved)
	}
	*v = *next
	return resolved, nil
}

// ApplyAll applies ops in order and returns the resolved operations. It stops
// at the first failure, leaving v as it was before the call.
func ApplyAll(v *Value, ops []Operation) ([]Operation, error) {
	next := v.Clone()
	resolved := make([]Operation, 0, len(ops))
	for _, op := range ops {
		r, err := Apply(next, op)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}
	*v = *next
	return resolved, nil
}

func apply(v *Value, op Operation) (Operation, error) {
	switch o := op.(type) {
	case InsertText:
		return applyInsertText(v, o)
	case RemoveText:
		return applyRemoveText(v, o)
	case AddMark:
		return applyAddMark(v, o)
	case RemoveMark:
		return applyRemoveMark(v, o)
	case SetNode:
		return applySetNode(v, o)
	case InsertNode:
		return applyInsertNode(v, o)
	case RemoveNode:
		return applyRemoveNode(v, o)
	case SplitNode:
		return applySplitNode(v, o)
	case MergeNode:
		return applyMergeNode(v, o)
	case MoveNode:
		return applyMoveNode(v, o)
	case SetSelection:
		return applySetSelection(v, o)
	}
	return nil, fmt.Errorf("%w: unknown operation %T", ErrInvalidOperation, op)
}

func applyInsertText(v *Value, op InsertText) (Operation, error) {
	t, err := v.Leaf(op.Path)
	if err != nil {
		return nil, err
	}
	runes := []rune(t.Text)
	if op.Offset < 0 || op.Offset > len(runes) {
		return nil, fmt.Errorf("%w: offset %d outside text of length %d", ErrInvalidOperation, op.Offset, len(runes))
	}
	t.Text = string(runes[:op.Offset]) + op.Text + string(runes[op.Offset:])
	op.Path = op.Path.Clone()
	return op, nil
}

func applyRemoveText(v *Value, op RemoveText) (Operation, error) {
	t, err := v.Leaf(op.Path)
	if err != nil {
		return nil, err
	}
	runes := []rune(t.Text)
	n := len([]rune(op.Text))
	if op.Offset < 0 || op.Offset+n > len(runes) {
		return nil, fmt.Errorf("%w: removal %d+%d outside text of length %d", ErrInvalidOperation, op.Offset, n, len(runes))
	}
	if got := string(runes[op.Offset : op.Offset+n]); got != op.Text {
		return nil, fmt.Errorf("%w: expected to remove %q, found %q", ErrInvalidOperation, op.Text, got)
	}
	t.Text = string(runes[:op.Offset]) + string(runes[op.Offset+n:])
	op.Path = op.Path.Clone()
	return op, nil
}

func applyAddMark(v *Value, op AddMark) (Operation, error) {
	t, err := v.Leaf(op.Path)
	if err != nil {
		return nil, err
	}
	el, _ := v.Element(op.Path[0])
	if op.Mark == "" {
		return nil, fmt.Errorf("%w: empty mark", ErrInvalidOperation)
	}
	if t.HasMark(op.Mark) {
		return nil, fmt.Errorf("%w: leaf %s already has mark %q", ErrInvalidOperation, t.Key, op.Mark)
	}
	op.DefAdded = false
	if op.Def != nil {
		if op.Def.Key != op.Mark {
			return nil, fmt.Errorf("%w: annotation key %q does not match mark %q", ErrInvalidOperation, op.Def.Key, op.Mark)
		}
		if _, _, ok := el.MarkDef(op.Mark); !ok {
			at := len(el.MarkDefs)
			if op.Restore != nil && op.Restore.DefIndex >= 0 && op.Restore.DefIndex <= at {
				at = op.Restore.DefIndex
			}
			if el.MarkDefs == nil {
				el.MarkDefs = []pt.MarkDef{}
			}
			el.MarkDefs = slices.Insert(el.MarkDefs, at, op.Def.Clone())
			op.DefAdded = true
		}
		def := op.Def.Clone()
		op.Def = &def
	}
	at := len(t.Marks)
	if op.Restore != nil && op.Restore.MarkIndex >= 0 && op.Restore.MarkIndex <= at {
		at = op.Restore.MarkIndex
	}
	if t.Marks == nil {
		t.Marks = []string{}
	}
	t.Marks = slices.Insert(t.Marks, at, op.Mark)
	op.Path = op.Path.Clone()
	return op, nil
}

func applyRemoveMark(v *Value, op RemoveMark) (Operation, error) {
	t, err := v.Leaf(op.Path)
	if err != nil {
		return nil, err
	}
	el, _ := v.Element(op.Path[0])
	idx := slices.Index(t.Marks, op.Mark)
	if idx < 0 {
		return nil, fmt.Errorf("%w: leaf %s has no mark %q", ErrInvalidOperation, t.Key, op.Mark)
	}
	t.Marks = slices.Delete(t.Marks, idx, idx+1)
	op.Path = op.Path.Clone()
	op.MarkIndex = idx
	op.PrunedDef = nil
	op.DefIndex = -1
	if def, at, ok := el.MarkDef(op.Mark); ok && !el.references(op.Mark) {
		el.MarkDefs = slices.Delete(el.MarkDefs, at, at+1)
		pruned := def.Clone()
		op.PrunedDef = &pruned
		op.DefIndex = at
	}
	return op, nil
}

func applySetNode(v *Value, op SetNode) (Operation, error) {
	node, err := v.Node(op.Path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(op.NewProperties))
	for name := range op.NewProperties {
		names = append(names, name)
	}
	sort.Strings(names)
	old := make(map[string]any, len(names))
	next := make(map[string]any, len(names))
	for _, name := range names {
		old[name] = Property(node, name)
		if err := SetProperty(node, name, op.NewProperties[name]); err != nil {
			return nil, err
		}
		next[name] = pt.CloneValue(op.NewProperties[name])
	}
	return SetNode{Path: op.Path.Clone(), NewProperties: next, Properties: old}, nil
}

func applyInsertNode(v *Value, op InsertNode) (Operation, error) {
	if op.Node == nil {
		return nil, fmt.Errorf("%w: insert without node", ErrInvalidOperation)
	}
	node := op.Node.CloneNode()
	if node.NodeKey() == "" {
		setKey(node, util.NewKey())
	}
	switch len(op.Path) {
	case 1:
		switch node.(type) {
		case *Element, *VoidBlock:
		default:
			return nil, fmt.Errorf("%w: %T cannot be inserted as a block", ErrInvalidOperation, node)
		}
		idx := op.Path[0]
		if idx < 0 || idx > len(v.Children) {
			return nil, fmt.Errorf("%w: block index %d out of range", ErrInvalidOperation, idx)
		}
		if v.BlockIndex(node.NodeKey()) >= 0 {
			return nil, fmt.Errorf("%w: duplicate block key %q", ErrInvalidOperation, node.NodeKey())
		}
		v.Children = slices.Insert(nonNil(v.Children), idx, node)
	case 2:
		switch node.(type) {
		case *Text, *VoidInline:
		default:
			return nil, fmt.Errorf("%w: %T cannot be inserted as a child", ErrInvalidOperation, node)
		}
		el, err := v.Element(op.Path[0])
		if err != nil {
			return nil, err
		}
		idx := op.Path[1]
		if idx < 0 || idx > len(el.Children) {
			return nil, fmt.Errorf("%w: child index %d out of range", ErrInvalidOperation, idx)
		}
		if el.ChildIndex(node.NodeKey()) >= 0 {
			return nil, fmt.Errorf("%w: duplicate child key %q", ErrInvalidOperation, node.NodeKey())
		}
		el.Children = slices.Insert(nonNil(el.Children), idx, node)
	default:
		return nil, fmt.Errorf("%w: insert path %v", ErrInvalidOperation, op.Path)
	}
	return InsertNode{Path: op.Path.Clone(), Node: node.CloneNode()}, nil
}

func applyRemoveNode(v *Value, op RemoveNode) (Operation, error) {
	node, err := v.Node(op.Path)
	if err != nil {
		return nil, err
	}
	if len(op.Path) == 1 {
		v.Children = slices.Delete(v.Children, op.Path[0], op.Path[0]+1)
	} else {
		el, _ := v.Element(op.Path[0])
		el.Children = slices.Delete(el.Children, op.Path[1], op.Path[1]+1)
	}
	return RemoveNode{Path: op.Path.Clone(), Node: node.CloneNode()}, nil
}

func applySplitNode(v *Value, op SplitNode) (Operation, error) {
	node, err := v.Node(op.Path)
	if err != nil {
		return nil, err
	}
	if op.NewKey == "" {
		op.NewKey = util.NewKey()
	}
	var created Node
	switch n := node.(type) {
	case *Text:
		runes := []rune(n.Text)
		if op.Position < 0 || op.Position > len(runes) {
			return nil, fmt.Errorf("%w: split offset %d outside text of length %d", ErrInvalidOperation, op.Position, len(runes))
		}
		t := n.Clone()
		t.Key = op.NewKey
		t.Text = string(runes[op.Position:])
		n.Text = string(runes[:op.Position])
		created = t
	case *Element:
		if op.Position < 0 || op.Position > len(n.Children) {
			return nil, fmt.Errorf("%w: split position %d outside %d children", ErrInvalidOperation, op.Position, len(n.Children))
		}
		el := n.Clone()
		el.Key = op.NewKey
		el.Children = append([]Node{}, n.Children[op.Position:]...)
		n.Children = append([]Node{}, n.Children[:op.Position]...)
		created = el
	default:
		return nil, fmt.Errorf("%w: %T cannot be split", ErrInvalidOperation, node)
	}
	if err := setProperties(created, op.Properties); err != nil {
		return nil, err
	}
	if err := setProperties(node, op.TargetProperties); err != nil {
		return nil, err
	}
	idx := op.Path[len(op.Path)-1] + 1
	if len(op.Path) == 1 {
		if v.BlockIndex(op.NewKey) >= 0 {
			return nil, fmt.Errorf("%w: duplicate block key %q", ErrInvalidOperation, op.NewKey)
		}
		v.Children = slices.Insert(v.Children, idx, created)
	} else {
		el, _ := v.Element(op.Path[0])
		if el.ChildIndex(op.NewKey) >= 0 {
			return nil, fmt.Errorf("%w: duplicate child key %q", ErrInvalidOperation, op.NewKey)
		}
		el.Children = slices.Insert(el.Children, idx, created)
	}
	return SplitNode{
		Path:             op.Path.Clone(),
		Position:         op.Position,
		NewKey:           op.NewKey,
		Properties:       cloneProps(op.Properties),
		TargetProperties: cloneProps(op.TargetProperties),
	}, nil
}

func applyMergeNode(v *Value, op MergeNode) (Operation, error) {
	node, err := v.Node(op.Path)
	if err != nil {
		return nil, err
	}
	prevPath, ok := op.Path.Previous()
	if !ok {
		return nil, fmt.Errorf("%w: node at %v has no previous sibling", ErrInvalidOperation, op.Path)
	}
	prevNode, _ := v.Node(prevPath)
	resolved := MergeNode{Path: op.Path.Clone(), Key: node.NodeKey(), Properties: DiffProperties(prevNode, node)}
	switch n := node.(type) {
	case *Text:
		prev, ok := prevNode.(*Text)
		if !ok {
			return nil, fmt.Errorf("%w: cannot merge text into %T", ErrInvalidOperation, prevNode)
		}
		resolved.Position = prev.Len()
		prev.Text += n.Text
	case *Element:
		prev, ok := prevNode.(*Element)
		if !ok {
			return nil, fmt.Errorf("%w: cannot merge block into %T", ErrInvalidOperation, prevNode)
		}
		resolved.Position = len(prev.Children)
		before := cloneMarkDefs(prev.MarkDefs)
		changed := false
		for _, def := range n.MarkDefs {
			if _, _, exists := prev.MarkDef(def.Key); !exists {
				prev.MarkDefs = append(prev.MarkDefs, def.Clone())
				changed = true
			}
		}
		if changed {
			resolved.TargetProperties = map[string]any{PropMarkDefs: before}
		}
		for _, child := range n.Children {
			if prev.ChildIndex(child.NodeKey()) >= 0 {
				return nil, fmt.Errorf("%w: merge would duplicate child key %q", ErrInvalidOperation, child.NodeKey())
			}
		}
		prev.Children = append(nonNil(prev.Children), n.Children...)
	default:
		return nil, fmt.Errorf("%w: %T cannot be merged", ErrInvalidOperation, node)
	}
	if len(op.Path) == 1 {
		v.Children = slices.Delete(v.Children, op.Path[0], op.Path[0]+1)
	} else {
		el, _ := v.Element(op.Path[0])
		el.Children = slices.Delete(el.Children, op.Path[1], op.Path[1]+1)
	}
	return resolved, nil
}

func applyMoveNode(v *Value, op MoveNode) (Operation, error) {
	if len(op.NewPath) != len(op.Path) {
		return nil, fmt.Errorf("%w: move from depth %d to depth %d", ErrInvalidOperation, len(op.Path), len(op.NewPath))
	}
	removed, err := applyRemoveNode(v, RemoveNode{Path: op.Path})
	if err != nil {
		return nil, err
	}
	if _, err := applyInsertNode(v, InsertNode{Path: op.NewPath, Node: removed.(RemoveNode).Node}); err != nil {
		return nil, err
	}
	return MoveNode{Path: op.Path.Clone(), NewPath: op.NewPath.Clone()}, nil
}

func applySetSelection(v *Value, op SetSelection) (Operation, error) {
	if op.Selection != nil {
		for _, p := range []Point{op.Selection.Anchor, op.Selection.Focus} {
			if err := checkPoint(v, p); err != nil {
				return nil, err
			}
		}
	}
	resolved := SetSelection{Selection: op.Selection.Clone(), Previous: v.Selection.Clone()}
	v.Selection = op.Selection.Clone()
	return resolved, nil
}

func checkPoint(v *Value, p Point) error {
	node, err := v.Node(p.Path)
	if err != nil {
		return err
	}
	switch n := node.(type) {
	case *Text:
		if p.Offset < 0 || p.Offset > n.Len() {
			return fmt.Errorf("%w: point offset %d outside text of length %d", ErrInvalidOperation, p.Offset, n.Len())
		}
	case *VoidInline, *VoidBlock:
		if p.Offset != 0 {
			return fmt.Errorf("%w: point offset %d inside void node", ErrInvalidOperation, p.Offset)
		}
	default:
		return fmt.Errorf("%w: point at %v is not inside a leaf", ErrInvalidOperation, p.Path)
	}
	return nil
}

func setProperties(node Node, props map[string]any) error {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := SetProperty(node, name, props[name]); err != nil {
			return err
		}
	}
	return nil
}

func setKey(node Node, key string) {
	switch n := node.(type) {
	case *Element:
		n.Key = key
	case *Text:
		n.Key = key
	case *VoidBlock:
		n.Key = key
	case *VoidInline:
		n.Key = key
	}
}

func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if defs, ok := v.([]pt.MarkDef); ok {
			out[k] = cloneMarkDefs(defs)
			continue
		}
		out[k] = pt.CloneValue(v)
	}
	return out
}

func nonNil(nodes []Node) []Node {
	if nodes == nil {
		return []Node{}
	}
	return nodes
}
