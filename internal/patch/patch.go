// Package patch defines the key-addressed mutations of the persisted document
// and applies them to JSON-shaped values.
package patch

import (
	"errors"

	"ptedit/api/internal/pt"
)

var (
	// ErrInvalidPatch reports a patch whose shape does not fit its target.
	ErrInvalidPatch = errors.New("invalid patch")
	// ErrNotFound reports a path that does not resolve in the target value.
	ErrNotFound = errors.New("patch target not found")
	// ErrTextConflict reports a diffMatchPatch whose hunks no longer match.
	ErrTextConflict = errors.New("text patch does not apply")
)

type Type string

const (
	TypeSet            Type = "set"
	TypeSetIfMissing   Type = "setIfMissing"
	TypeUnset          Type = "unset"
	TypeInsert         Type = "insert"
	TypeDiffMatchPatch Type = "diffMatchPatch"
)

// Position places inserted items relative to the addressed array member.
type Position string

const (
	Before  Position = "before"
	After   Position = "after"
	Replace Position = "replace"
)

// Patch is one of Set, SetIfMissing, Unset, Insert or DiffMatchPatch.
type Patch interface {
	Type() Type
	Target() pt.Path
	isPatch()
}

// Set replaces the value at Path.
type Set struct {
	Path  pt.Path
	Value any
}

// SetIfMissing writes Value only when nothing exists at Path.
type SetIfMissing struct {
	Path  pt.Path
	Value any
}

// Unset removes the value at Path.
type Unset struct {
	Path pt.Path
}

// Insert places Items next to the array member addressed by Path.
type Insert struct {
	Path     pt.Path
	Position Position
	Items    []any
}

// DiffMatchPatch applies a textual diff-match-patch to the string at Path.
type DiffMatchPatch struct {
	Path  pt.Path
	Value string
}

func (Set) Type() Type            { return TypeSet }
func (SetIfMissing) Type() Type   { return TypeSetIfMissing }
func (Unset) Type() Type          { return TypeUnset }
func (Insert) Type() Type         { return TypeInsert }
func (DiffMatchPatch) Type() Type { return TypeDiffMatchPatch }

func (p Set) Target() pt.Path            { return p.Path }
func (p SetIfMissing) Target() pt.Path   { return p.Path }
func (p Unset) Target() pt.Path          { return p.Path }
func (p Insert) Target() pt.Path         { return p.Path }
func (p DiffMatchPatch) Target() pt.Path { return p.Path }

func (Set) isPatch()            {}
func (SetIfMissing) isPatch()   {}
func (Unset) isPatch()          {}
func (Insert) isPatch()         {}
func (DiffMatchPatch) isPatch() {}
