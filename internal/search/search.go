// Package search indexes the plain text of documents. Meilisearch is used
// when reachable; PostgreSQL full-text search is the fallback.
package search

import (
	"strings"

	"ptedit/api/internal/pt"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Revision int64  `json:"revision"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Revision  int64  `json:"revision"`
	UpdatedBy string `json:"updatedBy"`
}

// RecordFromBlocks builds the index record of a document.
func RecordFromBlocks(id, title string, revision int64, updatedBy string, blocks []pt.Block) DocumentRecord {
	return DocumentRecord{
		ID:        id,
		Title:     title,
		Body:      pt.PlainText(blocks),
		Revision:  revision,
		UpdatedBy: updatedBy,
	}
}

const snippetRunes = 160

// snippet shortens body text for display, cutting at a word boundary.
func snippet(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	runes := []rune(body)
	if len(runes) <= snippetRunes {
		return body
	}
	cut := string(runes[:snippetRunes])
	if i := strings.LastIndex(cut, " "); i > snippetRunes/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
