// Package locator finds the JSON message snippet to preview in an editor
// buffer.
package locator

import (
	"fmt"
	"strings"

	"linepreview/internal/domain"
)

// Locate returns the text to preview for doc at the given cursor byte
// offset. A non-empty selection is returned verbatim. Otherwise the result
// spans from the nearest '{' at or before the cursor through the nearest '}'
// at or after it; nesting is not balanced, so the innermost pair wins.
//
// kinds lists the language identifiers accepted as JSON; nil means
// domain.DefaultJSONLanguageIDs.
func Locate(doc domain.Document, cursor int, sel *domain.Selection, kinds []string) (string, error) {
	if !domain.IsJSONKind(doc.LanguageID, kinds) {
		return "", fmt.Errorf("%w: language %q", domain.ErrWrongDocumentKind, doc.LanguageID)
	}

	text := doc.Text
	if !sel.Empty() {
		r := sel.Ordered()
		start, end := clamp(r.Start, len(text)), clamp(r.End, len(text))
		if start != end {
			return text[start:end], nil
		}
	}

	cursor = clamp(cursor, len(text))
	upto := cursor + 1
	if upto > len(text) {
		upto = len(text)
	}
	open := strings.LastIndexByte(text[:upto], '{')
	if open < 0 {
		return "", fmt.Errorf("%w: no '{' before offset %d", domain.ErrNoEnclosingObject, cursor)
	}
	rel := strings.IndexByte(text[cursor:], '}')
	if rel < 0 {
		return "", fmt.Errorf("%w: no '}' after offset %d", domain.ErrNoEnclosingObject, cursor)
	}
	return text[open : cursor+rel+1], nil
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
