package pt

import "strings"

// PlainText joins the span text of every text block, one paragraph per block.
// Object blocks and inline objects contribute nothing.
func PlainText(blocks []Block) string {
	paragraphs := make([]string, 0, len(blocks))
	for _, block := range blocks {
		text, ok := block.(*TextBlock)
		if !ok {
			continue
		}
		var b strings.Builder
		for _, child := range text.Children {
			if span, ok := child.(*Span); ok {
				b.WriteString(span.Text)
			}
		}
		paragraphs = append(paragraphs, b.String())
	}
	return strings.Join(paragraphs, "\n\n")
}
