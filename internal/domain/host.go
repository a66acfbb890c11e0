package domain

// Host is the editor a preview is computed for. Implementations read the
// buffer and cursor state on demand; the preview core never writes to it.
type Host interface {
	ActiveDocument() (Document, error)
	CursorOffset() (int, error)
	// Selection returns nil when nothing is selected.
	Selection() (*Selection, error)
}
