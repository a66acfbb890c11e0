package domain

import "strings"

// Document is the editor buffer a preview is computed from.
type Document struct {
	Text       string `json:"text"`
	LanguageID string `json:"languageId"`
}

// Selection is a byte range in Document.Text. Start may be greater than End
// when the user selected backwards.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Empty reports whether the selection covers no text.
func (s *Selection) Empty() bool {
	return s == nil || s.Start == s.End
}

// Ordered returns the selection with Start <= End.
func (s Selection) Ordered() Selection {
	if s.Start > s.End {
		return Selection{Start: s.End, End: s.Start}
	}
	return s
}

// DefaultJSONLanguageIDs are the language identifiers treated as JSON when
// no explicit list is configured.
var DefaultJSONLanguageIDs = []string{"json", "jsonc", "jsonl"}

// IsJSONKind reports whether languageID names one of the given JSON-like
// kinds. Matching is case-insensitive; an empty kinds list falls back to
// DefaultJSONLanguageIDs.
func IsJSONKind(languageID string, kinds []string) bool {
	if len(kinds) == 0 {
		kinds = DefaultJSONLanguageIDs
	}
	languageID = strings.TrimSpace(languageID)
	for _, k := range kinds {
		if strings.EqualFold(languageID, k) {
			return true
		}
	}
	return false
}

// LanguageForPath guesses a language identifier from a file name.
func LanguageForPath(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".jsonc"):
		return "jsonc"
	case strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".ndjson"):
		return "jsonl"
	case strings.HasSuffix(lower, ".json"):
		return "json"
	}
	if i := strings.LastIndexByte(lower, '.'); i >= 0 && i < len(lower)-1 && !strings.ContainsAny(lower[i:], `/\`) {
		return lower[i+1:]
	}
	return "plaintext"
}
