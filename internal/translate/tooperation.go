package translate

import (
	"errors"
	"fmt"
	"slices"

	"ptedit/api/internal/editable"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/schema"
)

// PatchToOperations returns the resolved operations that reproduce p on the
// working value v. v itself is not modified. A patch addressing a key that no
// longer exists fails with ErrOrphanPatch; a malformed one with ErrInvalidPatch.
func PatchToOperations(p patch.Patch, v *editable.Value, sch *schema.Schema) ([]editable.Operation, error) {
	b := &builder{v: v.Clone(), sch: sch}
	path := p.Target()
	var err error
	switch {
	case len(path) == 0:
		err = b.rootPatch(p)
	case len(path) == 1:
		err = b.blockPatch(p)
	default:
		err = b.nestedPatch(p)
	}
	if err != nil {
		return nil, err
	}
	return b.ops, nil
}

// builder applies every emitted operation to a scratch value so later
// operations are computed against the indices the earlier ones produced.
type builder struct {
	v   *editable.Value
	sch *schema.Schema
	ops []editable.Operation
}

func (b *builder) add(op editable.Operation) error {
	resolved, err := editable.Apply(b.v, op)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	b.ops = append(b.ops, resolved)
	return nil
}

func (b *builder) blocksFrom(value any) ([]pt.Block, error) {
	blocks, err := pt.BlocksFromValue(value, b.sch.Types())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return blocks, nil
}

func (b *builder) rootPatch(p patch.Patch) error {
	switch p := p.(type) {
	case patch.Set:
		if _, ok := p.Value.([]any); !ok {
			return fmt.Errorf("%w: document value is %T", ErrInvalidPatch, p.Value)
		}
		blocks, err := b.blocksFrom(p.Value)
		if err != nil {
			return err
		}
		return b.replaceDocument(blocks)
	case patch.SetIfMissing:
		if !b.v.IsEmpty() {
			return nil
		}
		if _, ok := p.Value.([]any); !ok {
			return fmt.Errorf("%w: document value is %T", ErrInvalidPatch, p.Value)
		}
		blocks, err := b.blocksFrom(p.Value)
		if err != nil {
			return err
		}
		return b.replaceDocument(blocks)
	case patch.Unset:
		return b.replaceDocument(nil)
	}
	return fmt.Errorf("%w: %s on the document root", ErrInvalidPatch, p.Type())
}

// replaceDocument reconciles the working value towards blocks. An empty
// target leaves a single placeholder block.
func (b *builder) replaceDocument(blocks []pt.Block) error {
	if len(blocks) == 0 {
		if b.v.IsEmpty() && len(b.v.Children) == 1 {
			return nil
		}
		for i := len(b.v.Children) - 1; i >= 0; i-- {
			if err := b.add(editable.RemoveNode{Path: editable.Path{i}}); err != nil {
				return err
			}
		}
		return b.add(editable.InsertNode{Path: editable.Path{0}, Node: editable.Placeholder(b.sch)})
	}
	return b.reconcileBlocks(blocks)
}

func (b *builder) reconcileBlocks(target []pt.Block) error {
	keep := make(map[string]bool, len(target))
	for _, block := range target {
		keep[block.BlockKey()] = true
	}
	for i := len(b.v.Children) - 1; i >= 0; i-- {
		if !keep[b.v.Children[i].NodeKey()] {
			if err := b.add(editable.RemoveNode{Path: editable.Path{i}}); err != nil {
				return err
			}
		}
	}
	for i, block := range target {
		j := b.v.BlockIndex(block.BlockKey())
		if j < 0 {
			if err := b.add(editable.InsertNode{Path: editable.Path{i}, Node: editable.BlockNode(block)}); err != nil {
				return err
			}
			continue
		}
		if j != i {
			if err := b.add(editable.MoveNode{Path: editable.Path{j}, NewPath: editable.Path{i}}); err != nil {
				return err
			}
		}
		if err := b.reconcileBlock(i, block); err != nil {
			return err
		}
	}
	return nil
}

// reconcileBlock turns the block at index into target with property, text and
// child operations, replacing it only when its kind changed.
func (b *builder) reconcileBlock(index int, target pt.Block) error {
	cur := b.v.Children[index]
	next := editable.BlockNode(target)
	if !sameKind(cur, next) {
		if err := b.add(editable.RemoveNode{Path: editable.Path{index}}); err != nil {
			return err
		}
		return b.add(editable.InsertNode{Path: editable.Path{index}, Node: next})
	}
	if props := editable.DiffProperties(cur, next); len(props) > 0 {
		if err := b.add(editable.SetNode{Path: editable.Path{index}, NewProperties: props}); err != nil {
			return err
		}
	}
	el, ok := next.(*editable.Element)
	if !ok {
		return nil
	}
	return b.reconcileChildren(index, el.Children)
}

func (b *builder) reconcileChildren(index int, target []editable.Node) error {
	el := b.v.Children[index].(*editable.Element)
	keep := make(map[string]bool, len(target))
	for _, child := range target {
		keep[child.NodeKey()] = true
	}
	for j := len(el.Children) - 1; j >= 0; j-- {
		if !keep[el.Children[j].NodeKey()] {
			if err := b.add(editable.RemoveNode{Path: editable.Path{index, j}}); err != nil {
				return err
			}
		}
	}
	for k, child := range target {
		el = b.v.Children[index].(*editable.Element)
		j := el.ChildIndex(child.NodeKey())
		if j < 0 {
			if err := b.add(editable.InsertNode{Path: editable.Path{index, k}, Node: child}); err != nil {
				return err
			}
			continue
		}
		if j != k {
			if err := b.add(editable.MoveNode{Path: editable.Path{index, j}, NewPath: editable.Path{index, k}}); err != nil {
				return err
			}
		}
		if err := b.reconcileLeaf(editable.Path{index, k}, child); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) reconcileLeaf(path editable.Path, target editable.Node) error {
	cur, err := b.v.Node(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if !sameKind(cur, target) {
		if err := b.add(editable.RemoveNode{Path: path}); err != nil {
			return err
		}
		return b.add(editable.InsertNode{Path: path, Node: target})
	}
	if t, ok := cur.(*editable.Text); ok {
		for _, edit := range patch.TextEdits(t.Text, target.(*editable.Text).Text) {
			var op editable.Operation = editable.InsertText{Path: path, Offset: edit.Offset, Text: edit.Text}
			if edit.Remove {
				op = editable.RemoveText{Path: path, Offset: edit.Offset, Text: edit.Text}
			}
			if err := b.add(op); err != nil {
				return err
			}
		}
	}
	if props := editable.DiffProperties(cur, target); len(props) > 0 {
		return b.add(editable.SetNode{Path: path, NewProperties: props})
	}
	return nil
}

func sameKind(a, b editable.Node) bool {
	if a.NodeType() != b.NodeType() {
		return false
	}
	switch a.(type) {
	case *editable.Element:
		_, ok := b.(*editable.Element)
		return ok
	case *editable.Text:
		_, ok := b.(*editable.Text)
		return ok
	case *editable.VoidBlock:
		_, ok := b.(*editable.VoidBlock)
		return ok
	case *editable.VoidInline:
		_, ok := b.(*editable.VoidInline)
		return ok
	}
	return false
}

// blockIndex resolves the first path segment against the working value.
func (b *builder) blockIndex(seg pt.Segment) (int, error) {
	switch s := seg.(type) {
	case pt.Key:
		if i := b.v.BlockIndex(string(s)); i >= 0 {
			return i, nil
		}
		return -1, fmt.Errorf("%w: block %q", ErrOrphanPatch, string(s))
	case pt.Index:
		i := int(s)
		if i < 0 {
			i += len(b.v.Children)
		}
		return i, nil
	}
	return -1, fmt.Errorf("%w: block segment %T", ErrInvalidPatch, seg)
}

func (b *builder) blockPatch(p patch.Patch) error {
	seg := p.Target()[0]
	if ins, ok := p.(patch.Insert); ok {
		return b.insertBlocks(ins)
	}
	if _, ok := seg.(pt.Key); !ok {
		return fmt.Errorf("%w: %s addressed by position", ErrInvalidPatch, p.Type())
	}
	idx, err := b.blockIndex(seg)
	if err != nil {
		return err
	}
	switch p := p.(type) {
	case patch.Set:
		blocks, err := b.blocksFrom([]any{p.Value})
		if err != nil {
			return err
		}
		if blocks[0].BlockKey() != b.v.Children[idx].NodeKey() {
			if err := b.add(editable.RemoveNode{Path: editable.Path{idx}}); err != nil {
				return err
			}
			return b.add(editable.InsertNode{Path: editable.Path{idx}, Node: editable.BlockNode(blocks[0])})
		}
		return b.reconcileBlock(idx, blocks[0])
	case patch.SetIfMissing:
		return nil
	case patch.Unset:
		if err := b.add(editable.RemoveNode{Path: editable.Path{idx}}); err != nil {
			return err
		}
		if len(b.v.Children) == 0 {
			return b.add(editable.InsertNode{Path: editable.Path{0}, Node: editable.Placeholder(b.sch)})
		}
		return nil
	}
	return fmt.Errorf("%w: %s on a block", ErrInvalidPatch, p.Type())
}

func (b *builder) insertBlocks(p patch.Insert) error {
	idx, err := b.blockIndex(p.Path[0])
	if err != nil {
		return err
	}
	_, byIndex := p.Path[0].(pt.Index)
	if idx < 0 || idx > len(b.v.Children) || (idx == len(b.v.Children) && !(byIndex && p.Position == patch.Before)) {
		return fmt.Errorf("%w: insert index %d of %d", ErrOrphanPatch, idx, len(b.v.Children))
	}
	blocks, err := b.blocksFrom(p.Items)
	if err != nil {
		return err
	}
	switch p.Position {
	case patch.After:
		idx++
	case patch.Replace:
		if err := b.add(editable.RemoveNode{Path: editable.Path{idx}}); err != nil {
			return err
		}
	case patch.Before:
	default:
		return fmt.Errorf("%w: insert position %q", ErrInvalidPatch, p.Position)
	}
	for i, block := range blocks {
		if err := b.add(editable.InsertNode{Path: editable.Path{idx + i}, Node: editable.BlockNode(block)}); err != nil {
			return err
		}
	}
	return nil
}

// nestedPatch handles paths below a block: the patch is applied to the block's
// persisted form and the working block is reconciled towards the result.
func (b *builder) nestedPatch(p patch.Patch) error {
	path := p.Target()
	if _, ok := path[0].(pt.Key); !ok {
		return fmt.Errorf("%w: nested patch addressed by position", ErrInvalidPatch)
	}
	idx, err := b.blockIndex(path[0])
	if err != nil {
		return err
	}
	if _, ok := p.(patch.Unset); ok && len(path) == 3 {
		if f, _ := path.FieldAt(1); f == pt.MarkDefsField {
			if key, ok := path.SegmentKey(2); ok {
				return b.unsetMarkDef(idx, key)
			}
		}
	}
	node := b.v.Children[idx]
	value, err := patch.Apply(editable.NodeValue(node), relative(p))
	if err != nil {
		if errors.Is(err, patch.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrOrphanPatch, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	blocks, err := b.blocksFrom([]any{value})
	if err != nil {
		return err
	}
	if blocks[0].BlockKey() != node.NodeKey() {
		return fmt.Errorf("%w: patch changes the key of block %q", ErrInvalidPatch, node.NodeKey())
	}
	return b.reconcileBlock(idx, blocks[0])
}

// unsetMarkDef removes an annotation together with every mark referencing it.
// The last RemoveMark prunes the definition itself.
func (b *builder) unsetMarkDef(idx int, key string) error {
	el, ok := b.v.Children[idx].(*editable.Element)
	if !ok {
		return fmt.Errorf("%w: markDefs on a non-text block", ErrInvalidPatch)
	}
	if _, _, exists := el.MarkDef(key); !exists {
		return nil
	}
	removed := false
	for j, child := range el.Children {
		if t, ok := child.(*editable.Text); ok && t.HasMark(key) {
			if err := b.add(editable.RemoveMark{Path: editable.Path{idx, j}, Mark: key}); err != nil {
				return err
			}
			removed = true
		}
	}
	if removed {
		return nil
	}
	defs := slices.DeleteFunc(slices.Clone(el.MarkDefs), func(d pt.MarkDef) bool { return d.Key == key })
	return b.add(editable.SetNode{Path: editable.Path{idx}, NewProperties: map[string]any{editable.PropMarkDefs: defs}})
}

// relative re-targets p at the block it addresses.
func relative(p patch.Patch) patch.Patch {
	path := p.Target()[1:]
	switch p := p.(type) {
	case patch.Set:
		return patch.Set{Path: path, Value: p.Value}
	case patch.SetIfMissing:
		return patch.SetIfMissing{Path: path, Value: p.Value}
	case patch.Unset:
		return patch.Unset{Path: path}
	case patch.Insert:
		return patch.Insert{Path: path, Position: p.Position, Items: p.Items}
	case patch.DiffMatchPatch:
		return patch.DiffMatchPatch{Path: path, Value: p.Value}
	}
	return p
}
