package editable

// Inverse returns the operation undoing a resolved operation.
func Inverse(op Operation) Operation {
	switch o := op.(type) {
	case InsertText:
		return RemoveText{Path: o.Path.Clone(), Offset: o.Offset, Text: o.Text}
	case RemoveText:
		return InsertText{Path: o.Path.Clone(), Offset: o.Offset, Text: o.Text}
	case AddMark:
		return RemoveMark{Path: o.Path.Clone(), Mark: o.Mark, DefIndex: -1}
	case RemoveMark:
		inv := AddMark{Path: o.Path.Clone(), Mark: o.Mark, Restore: &MarkRestore{MarkIndex: o.MarkIndex, DefIndex: o.DefIndex}}
		if o.PrunedDef != nil {
			def := o.PrunedDef.Clone()
			inv.Def = &def
		}
		return inv
	case SetNode:
		return SetNode{Path: o.Path.Clone(), NewProperties: cloneProps(o.Properties), Properties: cloneProps(o.NewProperties)}
	case InsertNode:
		return RemoveNode{Path: o.Path.Clone(), Node: o.Node.CloneNode()}
	case RemoveNode:
		return InsertNode{Path: o.Path.Clone(), Node: o.Node.CloneNode()}
	case SplitNode:
		return MergeNode{
			Path:             o.Path.Next(),
			Position:         o.Position,
			Key:              o.NewKey,
			Properties:       cloneProps(o.Properties),
			TargetProperties: cloneProps(o.TargetProperties),
		}
	case MergeNode:
		prev, _ := o.Path.Previous()
		return SplitNode{
			Path:             prev,
			Position:         o.Position,
			NewKey:           o.Key,
			Properties:       cloneProps(o.Properties),
			TargetProperties: cloneProps(o.TargetProperties),
		}
	case MoveNode:
		return MoveNode{Path: o.NewPath.Clone(), NewPath: o.Path.Clone()}
	case SetSelection:
		return SetSelection{Selection: o.Previous.Clone(), Previous: o.Selection.Clone()}
	}
	return op
}

// InverseAll returns the operations undoing ops, in reverse order.
func InverseAll(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		out = append(out, Inverse(ops[i]))
	}
	return out
}
