package translate

import (
	"fmt"
	"reflect"
	"sort"

	"ptedit/api/internal/editable"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
)

// OperationToPatches returns the patches reproducing a resolved operation on
// the persisted document. before and after are the working values around
// op; persisted is the current persisted document, nil when undefined.
func OperationToPatches(op editable.Operation, before, after *editable.Value, persisted []pt.Block, opts Options) ([]patch.Patch, error) {
	t := &toPatches{before: before, after: after, persisted: persisted, opts: opts}
	switch o := op.(type) {
	case editable.InsertText:
		return t.leafEdit(o.Path, true)
	case editable.RemoveText:
		return t.leafEdit(o.Path, true)
	case editable.AddMark:
		return t.leafEdit(o.Path, false)
	case editable.RemoveMark:
		return t.leafEdit(o.Path, false)
	case editable.SetNode:
		return t.setNode(o)
	case editable.InsertNode:
		return t.insertNode(o)
	case editable.RemoveNode:
		return t.removeNode(o)
	case editable.SplitNode:
		return t.splitNode(o)
	case editable.MergeNode:
		return t.mergeNode(o)
	case editable.MoveNode:
		return t.moveNode(o)
	case editable.SetSelection:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown operation %T", editable.ErrInvalidOperation, op)
}

type toPatches struct {
	before, after *editable.Value
	persisted     []pt.Block
	opts          Options
}

func (t *toPatches) persistedBlock(key string) pt.Block {
	if i := pt.IndexOfKey(t.persisted, key); i >= 0 {
		return t.persisted[i]
	}
	return nil
}

func (t *toPatches) afterBlock(index int) (editable.Node, error) {
	if index < 0 || index >= len(t.after.Children) {
		return nil, fmt.Errorf("%w: no block at [%d] after the edit", editable.ErrInvalidOperation, index)
	}
	return t.after.Children[index], nil
}

// childrenInSync reports whether the persisted block holds the same children,
// in the same order, as the working block before the edit. Only then can
// child-level patches address it.
func (t *toPatches) childrenInSync(key string) bool {
	tb, ok := t.persistedBlock(key).(*pt.TextBlock)
	if !ok {
		return false
	}
	i := t.before.BlockIndex(key)
	if i < 0 {
		return false
	}
	el, ok := t.before.Children[i].(*editable.Element)
	if !ok || len(el.Children) != len(tb.Children) {
		return false
	}
	for j, child := range el.Children {
		if child.NodeKey() != tb.Children[j].ChildKey() {
			return false
		}
	}
	return true
}

// blockSet writes the whole block at index, or inserts it when the persisted
// document does not hold it yet.
func (t *toPatches) blockSet(index int) ([]patch.Patch, error) {
	node, err := t.afterBlock(index)
	if err != nil {
		return nil, err
	}
	if t.persistedBlock(node.NodeKey()) == nil {
		return t.insertBlocks(index, index), nil
	}
	return []patch.Patch{patch.Set{Path: pt.BlockPath(node.NodeKey()), Value: editable.NodeValue(node)}}, nil
}

// insertBlocks inserts the after-blocks from..to, seeding an undefined
// document and anchoring on the nearest persisted neighbour key.
func (t *toPatches) insertBlocks(from, to int) []patch.Patch {
	items := make([]any, 0, to-from+1)
	for i := from; i <= to; i++ {
		items = append(items, editable.NodeValue(t.after.Children[i]))
	}
	var out []patch.Patch
	if t.persisted == nil {
		out = append(out, patch.SetIfMissing{Path: pt.Path{}, Value: []any{}})
	}
	return append(out, t.anchoredInsert(from, to, items))
}

func (t *toPatches) anchoredInsert(from, to int, items []any) patch.Insert {
	for i := from - 1; i >= 0; i-- {
		if key := t.after.Children[i].NodeKey(); t.persistedBlock(key) != nil {
			return patch.Insert{Path: pt.BlockPath(key), Position: patch.After, Items: items}
		}
	}
	for i := to + 1; i < len(t.after.Children); i++ {
		if key := t.after.Children[i].NodeKey(); t.persistedBlock(key) != nil {
			return patch.Insert{Path: pt.BlockPath(key), Position: patch.Before, Items: items}
		}
	}
	return patch.Insert{Path: pt.Path{pt.Index(0)}, Position: patch.Before, Items: items}
}

// leafEdit covers text and mark edits: a set of the edited span, a text diff,
// or a block set when annotations or segmentation changed.
func (t *toPatches) leafEdit(path editable.Path, text bool) ([]patch.Patch, error) {
	node, err := t.afterBlock(path[0])
	if err != nil {
		return nil, err
	}
	el, ok := node.(*editable.Element)
	if !ok || len(path) != 2 || path[1] >= len(el.Children) {
		return nil, fmt.Errorf("%w: no leaf at %v after the edit", editable.ErrInvalidOperation, path)
	}
	if !t.childrenInSync(el.Key) || t.markDefsChanged(el) {
		return t.blockSet(path[0])
	}
	leaf := el.Children[path[1]]
	if text && t.opts.TextDiffs {
		prev, err := t.before.Leaf(path)
		if err == nil && prev.Key == leaf.NodeKey() {
			textPath := append(pt.ChildPath(el.Key, leaf.NodeKey()), pt.TextField)
			return []patch.Patch{patch.DiffMatchPatch{Path: textPath, Value: patch.MakeTextPatch(prev.Text, leaf.(*editable.Text).Text)}}, nil
		}
	}
	return []patch.Patch{patch.Set{Path: pt.ChildPath(el.Key, leaf.NodeKey()), Value: editable.NodeValue(leaf)}}, nil
}

func (t *toPatches) markDefsChanged(el *editable.Element) bool {
	i := t.before.BlockIndex(el.Key)
	if i < 0 {
		return true
	}
	prev := editable.NodeValue(t.before.Children[i])[string(pt.MarkDefsField)]
	return !reflect.DeepEqual(prev, editable.NodeValue(el)[string(pt.MarkDefsField)])
}

func (t *toPatches) setNode(op editable.SetNode) ([]patch.Patch, error) {
	block, err := t.afterBlock(op.Path[0])
	if err != nil {
		return nil, err
	}
	var base pt.Path
	var node editable.Node
	switch len(op.Path) {
	case 1:
		if t.persistedBlock(block.NodeKey()) == nil {
			return t.insertBlocks(op.Path[0], op.Path[0]), nil
		}
		base, node = pt.BlockPath(block.NodeKey()), block
	case 2:
		n, err := t.after.Node(op.Path)
		if err != nil {
			return nil, err
		}
		if !t.childrenInSync(block.NodeKey()) {
			return t.blockSet(op.Path[0])
		}
		base, node = pt.ChildPath(block.NodeKey(), n.NodeKey()), n
	default:
		return nil, fmt.Errorf("%w: set_node path %v", editable.ErrInvalidOperation, op.Path)
	}
	value := editable.NodeValue(node)
	names := make([]string, 0, len(op.NewProperties))
	for name := range op.NewProperties {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]patch.Patch, 0, len(names))
	for _, name := range names {
		path := append(base.Clone(), pt.Field(name))
		if v, ok := value[name]; ok {
			out = append(out, patch.Set{Path: path, Value: v})
		} else {
			out = append(out, patch.Unset{Path: path})
		}
	}
	return out, nil
}

func (t *toPatches) insertNode(op editable.InsertNode) ([]patch.Patch, error) {
	switch len(op.Path) {
	case 1:
		if _, err := t.afterBlock(op.Path[0]); err != nil {
			return nil, err
		}
		return t.insertBlocks(op.Path[0], op.Path[0]), nil
	case 2:
		return t.blockSet(op.Path[0])
	}
	return nil, fmt.Errorf("%w: insert_node path %v", editable.ErrInvalidOperation, op.Path)
}

func (t *toPatches) removeNode(op editable.RemoveNode) ([]patch.Patch, error) {
	if op.Node == nil {
		return nil, fmt.Errorf("%w: unresolved remove_node", editable.ErrInvalidOperation)
	}
	switch len(op.Path) {
	case 1:
		if t.persistedBlock(op.Node.NodeKey()) == nil {
			return nil, nil
		}
		return []patch.Patch{patch.Unset{Path: pt.BlockPath(op.Node.NodeKey())}}, nil
	case 2:
		block, err := t.afterBlock(op.Path[0])
		if err != nil {
			return nil, err
		}
		if _, isText := op.Node.(*editable.Text); isText && t.childrenInSync(block.NodeKey()) {
			return []patch.Patch{patch.Unset{Path: pt.ChildPath(block.NodeKey(), op.Node.NodeKey())}}, nil
		}
		return t.blockSet(op.Path[0])
	}
	return nil, fmt.Errorf("%w: remove_node path %v", editable.ErrInvalidOperation, op.Path)
}

func (t *toPatches) splitNode(op editable.SplitNode) ([]patch.Patch, error) {
	switch len(op.Path) {
	case 1:
		retained, err := t.afterBlock(op.Path[0])
		if err != nil {
			return nil, err
		}
		created, err := t.afterBlock(op.Path[0] + 1)
		if err != nil {
			return nil, err
		}
		if t.persistedBlock(retained.NodeKey()) == nil {
			return t.insertBlocks(op.Path[0], op.Path[0]+1), nil
		}
		return []patch.Patch{
			patch.Set{Path: pt.BlockPath(retained.NodeKey()), Value: editable.NodeValue(retained)},
			patch.Insert{Path: pt.BlockPath(retained.NodeKey()), Position: patch.After, Items: []any{editable.NodeValue(created)}},
		}, nil
	case 2:
		block, err := t.afterBlock(op.Path[0])
		if err != nil {
			return nil, err
		}
		if !t.childrenInSync(block.NodeKey()) {
			return t.blockSet(op.Path[0])
		}
		retained, err := t.after.Node(op.Path)
		if err != nil {
			return nil, err
		}
		created, err := t.after.Node(op.Path.Next())
		if err != nil {
			return nil, err
		}
		at := pt.ChildPath(block.NodeKey(), retained.NodeKey())
		return []patch.Patch{
			patch.Set{Path: at, Value: editable.NodeValue(retained)},
			patch.Insert{Path: at, Position: patch.After, Items: []any{editable.NodeValue(created)}},
		}, nil
	}
	return nil, fmt.Errorf("%w: split_node path %v", editable.ErrInvalidOperation, op.Path)
}

func (t *toPatches) mergeNode(op editable.MergeNode) ([]patch.Patch, error) {
	prevPath, ok := op.Path.Previous()
	if !ok || op.Key == "" {
		return nil, fmt.Errorf("%w: unresolved merge_node", editable.ErrInvalidOperation)
	}
	switch len(op.Path) {
	case 1:
		out, err := t.blockSet(prevPath[0])
		if err != nil {
			return nil, err
		}
		if t.persistedBlock(op.Key) != nil {
			out = append(out, patch.Unset{Path: pt.BlockPath(op.Key)})
		}
		return out, nil
	case 2:
		block, err := t.afterBlock(op.Path[0])
		if err != nil {
			return nil, err
		}
		if !t.childrenInSync(block.NodeKey()) {
			return t.blockSet(op.Path[0])
		}
		prev, err := t.after.Node(prevPath)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{
			patch.Set{Path: pt.ChildPath(block.NodeKey(), prev.NodeKey()), Value: editable.NodeValue(prev)},
			patch.Unset{Path: pt.ChildPath(block.NodeKey(), op.Key)},
		}, nil
	}
	return nil, fmt.Errorf("%w: merge_node path %v", editable.ErrInvalidOperation, op.Path)
}

func (t *toPatches) moveNode(op editable.MoveNode) ([]patch.Patch, error) {
	if op.Path.Equal(op.NewPath) {
		return nil, nil
	}
	switch len(op.NewPath) {
	case 1:
		moved, err := t.afterBlock(op.NewPath[0])
		if err != nil {
			return nil, err
		}
		key := moved.NodeKey()
		if t.persistedBlock(key) == nil {
			return t.insertBlocks(op.NewPath[0], op.NewPath[0]), nil
		}
		return []patch.Patch{
			patch.Unset{Path: pt.BlockPath(key)},
			t.anchoredInsert(op.NewPath[0], op.NewPath[0], []any{editable.NodeValue(moved)}),
		}, nil
	case 2:
		out, err := t.blockSet(op.Path[0])
		if err != nil {
			return nil, err
		}
		if op.NewPath[0] != op.Path[0] {
			dest, err := t.blockSet(op.NewPath[0])
			if err != nil {
				return nil, err
			}
			out = append(out, dest...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: move_node path %v", editable.ErrInvalidOperation, op.Path)
}
