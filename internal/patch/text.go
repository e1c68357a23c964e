package patch

import (
	"fmt"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MakeTextPatch returns the diff-match-patch text turning from into to.
func MakeTextPatch(from, to string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(from, to))
}

// ApplyText applies a diff-match-patch text to s. Every hunk must apply.
func ApplyText(patchText, s string) (string, error) {
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	out, applied := dmp.PatchApply(patches, s)
	for _, ok := range applied {
		if !ok {
			return s, ErrTextConflict
		}
	}
	return out, nil
}

// TextEdit is a single insertion or removal at a rune offset.
type TextEdit struct {
	Remove bool
	Offset int
	Text   string
}

// TextEdits returns the insertions and removals that turn from into to.
// Applied in order, each edit's offset is relative to the result of the
// previous ones.
func TextEdits(from, to string) []TextEdit {
	if from == to {
		return nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupEfficiency(dmp.DiffMain(from, to, false))
	var edits []TextEdit
	offset := 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			offset += n
		case diffmatchpatch.DiffInsert:
			edits = append(edits, TextEdit{Offset: offset, Text: d.Text})
			offset += n
		case diffmatchpatch.DiffDelete:
			edits = append(edits, TextEdit{Remove: true, Offset: offset, Text: d.Text})
		}
	}
	return edits
}
