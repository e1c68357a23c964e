package editable

import (
	"errors"

	"ptedit/api/internal/pt"
)

// ErrInvalidOperation reports an operation that does not fit the value it is
// applied to.
var ErrInvalidOperation = errors.New("invalid operation")

// Kind is the wire name of an operation variant.
type Kind string

const (
	KindInsertText   Kind = "insert_text"
	KindRemoveText   Kind = "remove_text"
	KindAddMark      Kind = "add_mark"
	KindRemoveMark   Kind = "remove_mark"
	KindSetNode      Kind = "set_node"
	KindInsertNode   Kind = "insert_node"
	KindRemoveNode   Kind = "remove_node"
	KindSplitNode    Kind = "split_node"
	KindMergeNode    Kind = "merge_node"
	KindMoveNode     Kind = "move_node"
	KindSetSelection Kind = "set_selection"
)

// Operation is one atomic mutation of the working value. Fields documented as
// resolved are filled in by Apply and make the returned operation invertible.
type Operation interface {
	Kind() Kind
	isOperation()
}

// InsertText inserts Text into the leaf at Path at rune Offset.
type InsertText struct {
	Path   Path
	Offset int
	Text   string
}

// RemoveText removes Text from the leaf at Path starting at rune Offset.
type RemoveText struct {
	Path   Path
	Offset int
	Text   string
}

// AddMark adds Mark to the leaf at Path. When Def is set and the block lacks
// an annotation with that key, Def is added to the block's markDefs.
type AddMark struct {
	Path Path
	Mark string
	Def  *pt.MarkDef
	// Restore places the mark (and definition) back at their old positions;
	// it is set by Inverse.
	Restore *MarkRestore
	// DefAdded is resolved: whether Def was added to markDefs.
	DefAdded bool
}

// MarkRestore holds original positions for an undone RemoveMark.
type MarkRestore struct {
	MarkIndex int
	DefIndex  int
}

// RemoveMark removes Mark from the leaf at Path. A definition no other leaf
// references is pruned from markDefs.
type RemoveMark struct {
	Path Path
	Mark string
	// MarkIndex, PrunedDef and DefIndex are resolved.
	MarkIndex int
	PrunedDef *pt.MarkDef
	DefIndex  int
}

// SetNode changes properties of the node at Path. A nil value in
// NewProperties removes the property.
type SetNode struct {
	Path          Path
	NewProperties map[string]any
	// Properties is resolved: the previous values, nil where absent.
	Properties map[string]any
}

// InsertNode inserts Node at Path.
type InsertNode struct {
	Path Path
	Node Node
}

// RemoveNode removes the node at Path.
type RemoveNode struct {
	Path Path
	// Node is resolved: the removed node.
	Node Node
}

// SplitNode splits the node at Path at Position, a rune offset for leaves or
// a child index for blocks. The new node follows the original, copies its
// properties overridden by Properties and gets NewKey (generated when empty).
// TargetProperties, when set, are applied to the retained node.
type SplitNode struct {
	Path             Path
	Position         int
	NewKey           string
	Properties       map[string]any
	TargetProperties map[string]any
}

// MergeNode merges the node at Path into its previous sibling.
type MergeNode struct {
	Path Path
	// Position, Key, Properties and TargetProperties are resolved: the length
	// of the previous sibling before the merge, the removed node's key and
	// properties, and the previous sibling's properties that the merge changed.
	Position         int
	Key              string
	Properties       map[string]any
	TargetProperties map[string]any
}

// MoveNode moves the node at Path to NewPath. NewPath is expressed in the
// tree after the node has been taken out, so a move with Path equal to
// NewPath leaves the value unchanged.
type MoveNode struct {
	Path    Path
	NewPath Path
}

// SetSelection replaces the selection.
type SetSelection struct {
	Selection *Selection
	// Previous is resolved.
	Previous *Selection
}

func (InsertText) Kind() Kind   { return KindInsertText }
func (RemoveText) Kind() Kind   { return KindRemoveText }
func (AddMark) Kind() Kind      { return KindAddMark }
func (RemoveMark) Kind() Kind   { return KindRemoveMark }
func (SetNode) Kind() Kind      { return KindSetNode }
func (InsertNode) Kind() Kind   { return KindInsertNode }
func (RemoveNode) Kind() Kind   { return KindRemoveNode }
func (SplitNode) Kind() Kind    { return KindSplitNode }
func (MergeNode) Kind() Kind    { return KindMergeNode }
func (MoveNode) Kind() Kind     { return KindMoveNode }
func (SetSelection) Kind() Kind { return KindSetSelection }

func (InsertText) isOperation()   {}
func (RemoveText) isOperation()   {}
func (AddMark) isOperation()      {}
func (RemoveMark) isOperation()   {}
func (SetNode) isOperation()      {}
func (InsertNode) isOperation()   {}
func (RemoveNode) isOperation()   {}
func (SplitNode) isOperation()    {}
func (MergeNode) isOperation()    {}
func (MoveNode) isOperation()     {}
func (SetSelection) isOperation() {}

// OperationPath returns the path an operation addresses, nil for selection
// changes.
func OperationPath(op Operation) Path {
	switch o := op.(type) {
	case InsertText:
		return o.Path
	case RemoveText:
		return o.Path
	case AddMark:
		return o.Path
	case RemoveMark:
		return o.Path
	case SetNode:
		return o.Path
	case InsertNode:
		return o.Path
	case RemoveNode:
		return o.Path
	case SplitNode:
		return o.Path
	case MergeNode:
		return o.Path
	case MoveNode:
		return o.Path
	}
	return nil
}
