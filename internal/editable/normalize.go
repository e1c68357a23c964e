package editable

import (
	"slices"

	"ptedit/api/internal/pt"
	"ptedit/api/internal/schema"
	"ptedit/api/internal/util"
)

// MaxNormalizePasses bounds NormalizeAll.
const MaxNormalizePasses = 16

// Normalize returns one pass of operations restoring the invariants of v.
// Everywhere, the document holds at least one block and every text block at
// least one leaf. In the blocks whose keys are listed, leaves also carry a
// marks array, empty leaves carry no marks, adjacent leaves with equal
// properties are merged and annotations no leaf references are pruned.
// Applying a pass can expose more work; repeat until it returns nothing.
func Normalize(v *Value, sch *schema.Schema, keys ...string) []Operation {
	if len(v.Children) == 0 {
		return []Operation{InsertNode{Path: Path{0}, Node: Placeholder(sch)}}
	}
	var ops []Operation
	for i, block := range v.Children {
		el, ok := block.(*Element)
		if !ok {
			continue
		}
		if len(el.Children) == 0 {
			ops = append(ops, InsertNode{
				Path: Path{i, 0},
				Node: &Text{Key: util.NewKey(), Type: sch.SpanType, Marks: []string{}},
			})
		}
		if slices.Contains(keys, el.Key) {
			ops = append(ops, markModel(el, i)...)
		}
	}
	return ops
}

// NormalizeAll applies passes of Normalize to v until none is needed and
// returns the resolved operations.
func NormalizeAll(v *Value, sch *schema.Schema, keys ...string) ([]Operation, error) {
	var out []Operation
	for pass := 0; pass < MaxNormalizePasses; pass++ {
		ops := Normalize(v, sch, keys...)
		if len(ops) == 0 {
			return out, nil
		}
		resolved, err := ApplyAll(v, ops)
		if err != nil {
			return out, err
		}
		out = append(out, resolved...)
	}
	return out, nil
}

func markModel(el *Element, index int) []Operation {
	var ops []Operation
	for j, child := range el.Children {
		t, ok := child.(*Text)
		if !ok {
			continue
		}
		if t.Marks == nil || (t.Text == "" && len(t.Marks) > 0) {
			ops = append(ops, SetNode{Path: Path{index, j}, NewProperties: map[string]any{PropMarks: []string{}}})
		}
	}
	// Leaf paths shift once a merge applies, so merges wait for a pass
	// without leaf fixes and run right to left.
	if len(ops) == 0 {
		for j := len(el.Children) - 1; j > 0; j-- {
			prev, ok := el.Children[j-1].(*Text)
			if !ok {
				continue
			}
			next, ok := el.Children[j].(*Text)
			if !ok || prev.Type != next.Type || len(DiffProperties(prev, next)) > 0 {
				continue
			}
			ops = append(ops, MergeNode{Path: Path{index, j}})
		}
	}
	if el.MarkDefs == nil {
		return append(ops, SetNode{Path: Path{index}, NewProperties: map[string]any{PropMarkDefs: []pt.MarkDef{}}})
	}
	kept := make([]pt.MarkDef, 0, len(el.MarkDefs))
	for _, def := range el.MarkDefs {
		if el.references(def.Key) {
			kept = append(kept, def.Clone())
		}
	}
	if len(kept) != len(el.MarkDefs) {
		ops = append(ops, SetNode{Path: Path{index}, NewProperties: map[string]any{PropMarkDefs: kept}})
	}
	return ops
}
