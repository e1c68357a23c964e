// Package translate converts between editing operations on the working value
// and key-addressed patches on the persisted document.
package translate

import "errors"

var (
	// ErrOrphanPatch reports a patch whose key no longer resolves, usually
	// because a concurrent edit removed the content first.
	ErrOrphanPatch = errors.New("orphan patch")
	// ErrInvalidPatch reports a patch whose shape cannot be applied.
	ErrInvalidPatch = errors.New("invalid patch")
)

// Options tune the operation to patch direction.
type Options struct {
	// TextDiffs emits diffMatchPatch patches for text edits instead of span sets.
	TextDiffs bool
}
