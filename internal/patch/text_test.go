package patch

import (
	"testing"
)

func applyEdits(s string, edits []TextEdit) string {
	runes := []rune(s)
	for _, e := range edits {
		text := []rune(e.Text)
		if e.Remove {
			runes = append(runes[:e.Offset:e.Offset], runes[e.Offset+len(text):]...)
			continue
		}
		next := append([]rune{}, runes[:e.Offset]...)
		next = append(next, text...)
		runes = append(next, runes[e.Offset:]...)
	}
	return string(runes)
}

func TestTextEditsReproduceTarget(t *testing.T) {
	pairs := [][2]string{
		{"hello", "hello!"},
		{"hello world", "hi world"},
		{"", "fresh"},
		{"gone", ""},
		{"héllo", "hélo wörld"},
		{"same", "same"},
	}
	for _, p := range pairs {
		edits := TextEdits(p[0], p[1])
		if got := applyEdits(p[0], edits); got != p[1] {
			t.Errorf("TextEdits(%q, %q) produced %q via %+v", p[0], p[1], got, edits)
		}
	}
}

func TestApplyTextRoundTrip(t *testing.T) {
	text := MakeTextPatch("the quick fox", "the slow fox")
	got, err := ApplyText(text, "the quick fox")
	if err != nil {
		t.Fatalf("ApplyText: %v", err)
	}
	if got != "the slow fox" {
		t.Fatalf("got %q", got)
	}
	if _, err := ApplyText("not a patch", "x"); err == nil {
		t.Fatalf("expected error for malformed patch text")
	}
}
