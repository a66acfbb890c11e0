package acme

import (
	"strings"

	acmeclient "9fans.net/go/acme"
)

type action int

const (
	actionIgnore action = iota
	actionEdit
	actionSelect
	actionPreview
	actionPassThrough
)

// classify maps a window event to what the watcher does with it. Body
// inserts and deletes are edits; edwood also reports body selections as
// 'S'. Executes and looks are handed back to acme except the Preview
// command.
func classify(e *acmeclient.Event) action {
	switch e.C2 {
	case 'I', 'D':
		return actionEdit
	case 'S':
		return actionSelect
	case 'x', 'X':
		if strings.TrimSpace(string(e.Text)) == previewCommand {
			return actionPreview
		}
		return actionPassThrough
	case 'l', 'L':
		return actionPassThrough
	}
	return actionIgnore
}

// runeToByte converts a rune offset into text to a byte offset, clamping
// to the text length.
func runeToByte(text string, q int) int {
	if q <= 0 {
		return 0
	}
	n := 0
	for i := range text {
		if n == q {
			return i
		}
		n++
	}
	return len(text)
}
