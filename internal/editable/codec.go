package editable

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ptedit/api/internal/pt"
)

type wireOp struct {
	Type             Kind            `json:"type"`
	Path             Path            `json:"path,omitempty"`
	Offset           int             `json:"offset,omitempty"`
	Text             string          `json:"text,omitempty"`
	Mark             string          `json:"mark,omitempty"`
	MarkDef          map[string]any  `json:"markDef,omitempty"`
	DefAdded         bool            `json:"defAdded,omitempty"`
	Restore          *MarkRestore    `json:"restore,omitempty"`
	MarkIndex        *int            `json:"markIndex,omitempty"`
	DefIndex         *int            `json:"defIndex,omitempty"`
	Node             json.RawMessage `json:"node,omitempty"`
	Position         int             `json:"position,omitempty"`
	NewKey           string          `json:"newKey,omitempty"`
	Key              string          `json:"key,omitempty"`
	Properties       map[string]any  `json:"properties,omitempty"`
	NewProperties    map[string]any  `json:"newProperties,omitempty"`
	TargetProperties map[string]any  `json:"targetProperties,omitempty"`
	NewPath          Path            `json:"newPath,omitempty"`
	Selection        *Selection      `json:"selection,omitempty"`
	Previous         *Selection      `json:"previous,omitempty"`
}

// MarshalOperation encodes op in wire form.
func MarshalOperation(op Operation) ([]byte, error) {
	w := wireOp{Type: op.Kind(), Path: OperationPath(op)}
	switch o := op.(type) {
	case InsertText:
		w.Offset, w.Text = o.Offset, o.Text
	case RemoveText:
		w.Offset, w.Text = o.Offset, o.Text
	case AddMark:
		w.Mark, w.DefAdded, w.Restore = o.Mark, o.DefAdded, o.Restore
		if o.Def != nil {
			w.MarkDef = o.Def.Value()
		}
	case RemoveMark:
		w.Mark = o.Mark
		w.MarkIndex, w.DefIndex = &o.MarkIndex, &o.DefIndex
		if o.PrunedDef != nil {
			w.MarkDef = o.PrunedDef.Value()
		}
	case SetNode:
		w.Properties, w.NewProperties = o.Properties, o.NewProperties
	case InsertNode:
		if err := w.setNode(o.Node); err != nil {
			return nil, err
		}
	case RemoveNode:
		if err := w.setNode(o.Node); err != nil {
			return nil, err
		}
	case SplitNode:
		w.Position, w.NewKey = o.Position, o.NewKey
		w.Properties, w.TargetProperties = o.Properties, o.TargetProperties
	case MergeNode:
		w.Position, w.Key = o.Position, o.Key
		w.Properties, w.TargetProperties = o.Properties, o.TargetProperties
	case MoveNode:
		w.NewPath = o.NewPath
	case SetSelection:
		w.Selection, w.Previous = o.Selection, o.Previous
	default:
		return nil, fmt.Errorf("%w: unknown operation %T", ErrInvalidOperation, op)
	}
	return json.Marshal(w)
}

func (w *wireOp) setNode(node Node) error {
	if node == nil {
		return nil
	}
	raw, err := json.Marshal(NodeValue(node))
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}
	w.Node = raw
	return nil
}

// UnmarshalOperation decodes one operation; types tells text nodes apart from
// objects inside node payloads.
func UnmarshalOperation(data []byte, types pt.Types) (Operation, error) {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	switch w.Type {
	case KindInsertText:
		return InsertText{Path: w.Path, Offset: w.Offset, Text: w.Text}, nil
	case KindRemoveText:
		return RemoveText{Path: w.Path, Offset: w.Offset, Text: w.Text}, nil
	case KindAddMark:
		op := AddMark{Path: w.Path, Mark: w.Mark, DefAdded: w.DefAdded, Restore: w.Restore}
		if w.MarkDef != nil {
			def, err := pt.MarkDefFromValue(w.MarkDef)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
			}
			op.Def = &def
		}
		return op, nil
	case KindRemoveMark:
		op := RemoveMark{Path: w.Path, Mark: w.Mark, DefIndex: -1}
		if w.MarkIndex != nil {
			op.MarkIndex = *w.MarkIndex
		}
		if w.DefIndex != nil {
			op.DefIndex = *w.DefIndex
		}
		if w.MarkDef != nil {
			def, err := pt.MarkDefFromValue(w.MarkDef)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
			}
			op.PrunedDef = &def
		}
		return op, nil
	case KindSetNode:
		return SetNode{Path: w.Path, Properties: w.Properties, NewProperties: w.NewProperties}, nil
	case KindInsertNode, KindRemoveNode:
		var node Node
		if len(w.Node) > 0 {
			n, err := decodeNode(w.Node, len(w.Path), types)
			if err != nil {
				return nil, err
			}
			node = n
		}
		if w.Type == KindInsertNode {
			if node == nil {
				return nil, fmt.Errorf("%w: insert_node without node", ErrInvalidOperation)
			}
			return InsertNode{Path: w.Path, Node: node}, nil
		}
		return RemoveNode{Path: w.Path, Node: node}, nil
	case KindSplitNode:
		return SplitNode{Path: w.Path, Position: w.Position, NewKey: w.NewKey, Properties: w.Properties, TargetProperties: w.TargetProperties}, nil
	case KindMergeNode:
		return MergeNode{Path: w.Path, Position: w.Position, Key: w.Key, Properties: w.Properties, TargetProperties: w.TargetProperties}, nil
	case KindMoveNode:
		return MoveNode{Path: w.Path, NewPath: w.NewPath}, nil
	case KindSetSelection:
		return SetSelection{Selection: w.Selection, Previous: w.Previous}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, w.Type)
}

func decodeNode(raw json.RawMessage, depth int, types pt.Types) (Node, error) {
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: node: %v", ErrInvalidOperation, err)
	}
	switch depth {
	case 1:
		block, err := pt.BlockFromValue(value, types)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
		return BlockNode(block), nil
	case 2:
		child, err := pt.ChildFromValue(value, types)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
		node := ChildNode(child, "", 0)
		if child.ChildKey() == "" {
			setKey(node, "")
		}
		return node, nil
	}
	return nil, fmt.Errorf("%w: node at depth %d", ErrInvalidOperation, depth)
}

// MarshalOperations encodes a list of operations as a JSON array.
func MarshalOperations(ops []Operation) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, op := range ops {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := MarshalOperation(op)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalOperations decodes a JSON array of operations.
func UnmarshalOperations(data []byte, types pt.Types) ([]Operation, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	ops := make([]Operation, 0, len(raw))
	for i, item := range raw {
		op, err := UnmarshalOperation(item, types)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
