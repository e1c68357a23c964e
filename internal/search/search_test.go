package search

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"

	"ptedit/api/internal/pt"
)

type fakeSearcher struct {
	results []Result
	total   int
	err     error
	queries []Query
}

func (f *fakeSearcher) Search(q Query) ([]Result, int, error) {
	f.queries = append(f.queries, q)
	return f.results, f.total, f.err
}

func (f *fakeSearcher) Healthy() bool { return true }

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	fake := &fakeSearcher{results: []Result{{ID: "doc_1", Title: "Notes"}}, total: 1}
	svc := &Service{fallback: fake}

	resp := svc.Search(Query{Text: "notes", Limit: 5})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "doc_1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Query != "notes" {
		t.Fatalf("expected query echoed, got %q", resp.Query)
	}
	if len(fake.queries) != 1 || fake.queries[0].Limit != 5 {
		t.Fatalf("expected query forwarded, got %+v", fake.queries)
	}
}

func TestServiceFallbackErrorReturnsEmpty(t *testing.T) {
	svc := &Service{fallback: &fakeSearcher{err: errors.New("boom")}}
	resp := svc.Search(Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
}

func TestServiceWithoutBackends(t *testing.T) {
	svc := NewService(nil, nil)
	resp := svc.Search(Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty results, got %+v", resp)
	}
	// Indexing without Meilisearch is a no-op.
	svc.IndexDocument(DocumentRecord{ID: "doc_1"})
	svc.DeleteDocument("doc_1")
}

func TestRecordFromBlocks(t *testing.T) {
	blocks := []pt.Block{
		&pt.TextBlock{Key: "a", Type: "block", Children: []pt.Child{
			&pt.Span{Key: "a0", Type: "span", Text: "hello"},
		}},
		&pt.TextBlock{Key: "b", Type: "block", Children: []pt.Child{
			&pt.Span{Key: "b0", Type: "span", Text: "world"},
		}},
	}
	rec := RecordFromBlocks("doc_1", "Greeting", 3, "ada", blocks)
	if rec.ID != "doc_1" || rec.Title != "Greeting" || rec.Revision != 3 || rec.UpdatedBy != "ada" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !strings.Contains(rec.Body, "hello") || !strings.Contains(rec.Body, "world") {
		t.Fatalf("expected body to hold block text, got %q", rec.Body)
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("  short   text \n"); got != "short text" {
		t.Fatalf("expected collapsed whitespace, got %q", got)
	}
	long := strings.Repeat("word ", 100)
	got := snippet(long)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	if n := len([]rune(got)); n > snippetRunes+1 {
		t.Fatalf("snippet too long: %d runes", n)
	}
	if !strings.HasSuffix(got, "word…") {
		t.Fatalf("expected cut at word boundary, got %q", got)
	}
}

func TestHitToResultPrefersFormatted(t *testing.T) {
	raw := func(v any) json.RawMessage {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return data
	}
	hit := meili.Hit{
		"id":       raw("doc_1"),
		"title":    raw("Meeting notes"),
		"body":     raw("plain body"),
		"revision": raw(7),
		"_formatted": raw(map[string]any{
			"title": "<mark>Meeting</mark> notes",
			"body":  "…cropped body…",
		}),
	}
	r := hitToResult(hit)
	if r.ID != "doc_1" || r.Revision != 7 {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Title != "<mark>Meeting</mark> notes" {
		t.Fatalf("expected highlighted title, got %q", r.Title)
	}
	if r.Snippet != "…cropped body…" {
		t.Fatalf("expected cropped snippet, got %q", r.Snippet)
	}

	delete(hit, "_formatted")
	r = hitToResult(hit)
	if r.Title != "Meeting notes" || r.Snippet != "plain body" {
		t.Fatalf("expected raw fallbacks, got %+v", r)
	}
}
