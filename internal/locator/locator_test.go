package locator

import (
	"errors"
	"strings"
	"testing"

	"linepreview/internal/domain"
)

func jsonDoc(text string) domain.Document {
	return domain.Document{Text: text, LanguageID: "json"}
}

func TestLocate_InnermostBraces(t *testing.T) {
	text := `a {"k":1} b`
	for cursor := 2; cursor <= 8; cursor++ {
		got, err := Locate(jsonDoc(text), cursor, nil, nil)
		if err != nil {
			t.Fatalf("cursor %d: %v", cursor, err)
		}
		if got != `{"k":1}` {
			t.Errorf("cursor %d: got %q", cursor, got)
		}
	}
}

func TestLocate_NestedPicksInnerPair(t *testing.T) {
	text := `{"type":"template","template":{"type":"buttons"}}`
	cursor := strings.Index(text, "buttons")
	got, err := Locate(jsonDoc(text), cursor, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"type":"buttons"}` {
		t.Errorf("got %q", got)
	}
}

func TestLocate_NoEnclosingObject(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		cursor int
	}{
		{"no braces", "plain text", 3},
		{"cursor before object", `ab {"k":1}`, 1},
		{"cursor after object", `{"k":1} ab`, 9},
		{"empty document", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			empty := &domain.Selection{Start: tt.cursor, End: tt.cursor}
			_, err := Locate(jsonDoc(tt.text), tt.cursor, empty, nil)
			if !errors.Is(err, domain.ErrNoEnclosingObject) {
				t.Fatalf("expected ErrNoEnclosingObject, got %v", err)
			}
		})
	}
}

func TestLocate_SelectionWins(t *testing.T) {
	text := `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`
	sel := &domain.Selection{Start: 1, End: 27}
	got, err := Locate(jsonDoc(text), len(text)-3, sel, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"type":"text","text":"a"}` {
		t.Errorf("got %q", got)
	}

	// A selection with no braces is still returned verbatim.
	got, err = Locate(jsonDoc("hello world"), 0, &domain.Selection{Start: 6, End: 11}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "world" {
		t.Errorf("got %q", got)
	}
}

func TestLocate_ReversedAndClampedSelection(t *testing.T) {
	text := `xx{"k":1}`
	got, err := Locate(jsonDoc(text), 0, &domain.Selection{Start: 100, End: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"k":1}` {
		t.Errorf("got %q", got)
	}
}

func TestLocate_CursorClamped(t *testing.T) {
	text := `{"k":1}`
	for _, cursor := range []int{-5, len(text) + 10} {
		got, err := Locate(jsonDoc(text), cursor, nil, nil)
		if cursor < 0 {
			if err != nil || got != text {
				t.Errorf("cursor %d: got %q, %v", cursor, got, err)
			}
			continue
		}
		if !errors.Is(err, domain.ErrNoEnclosingObject) {
			t.Errorf("cursor %d: expected ErrNoEnclosingObject, got %q, %v", cursor, got, err)
		}
	}
}

func TestLocate_WrongDocumentKind(t *testing.T) {
	doc := domain.Document{Text: `{"k":1}`, LanguageID: "markdown"}
	_, err := Locate(doc, 1, nil, nil)
	if !errors.Is(err, domain.ErrWrongDocumentKind) {
		t.Fatalf("expected ErrWrongDocumentKind, got %v", err)
	}

	// Checked before the selection is consulted.
	_, err = Locate(doc, 1, &domain.Selection{Start: 0, End: 3}, nil)
	if !errors.Is(err, domain.ErrWrongDocumentKind) {
		t.Fatalf("expected ErrWrongDocumentKind, got %v", err)
	}
}

func TestLocate_CustomKinds(t *testing.T) {
	doc := domain.Document{Text: `{"k":1}`, LanguageID: "JSON5"}
	if _, err := Locate(doc, 1, nil, nil); !errors.Is(err, domain.ErrWrongDocumentKind) {
		t.Fatalf("json5 should not be JSON by default, got %v", err)
	}
	got, err := Locate(doc, 1, nil, []string{"json5"})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"k":1}` {
		t.Errorf("got %q", got)
	}
}
