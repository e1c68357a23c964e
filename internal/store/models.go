package store

import (
	"time"

	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
)

// Document is a stored portable text document. Nil Blocks is an undefined
// document, distinct from an empty one.
type Document struct {
	ID        string
	Title     string
	Blocks    []pt.Block
	Revision  int64
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PatchRecord is one entry of a document's append-only patch log.
type PatchRecord struct {
	ID         int64
	DocumentID string
	Revision   int64
	SessionID  string
	Patches    []patch.Patch
	CreatedAt  time.Time
}

type Member struct {
	DocumentID string
	UserName   string
	Role       string
}
