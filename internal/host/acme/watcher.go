// Package acme previews LINE messages edited in an acme or edwood window.
//
// The watcher attaches to the window named by $winid, reads its body, tag
// and dot through the acme file system, and re-renders after body edits
// (debounced) and selection changes. Middle-clicking "Preview" in the tag
// forces a refresh. The rendered page is written to a file that a browser
// can keep open.
package acme

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	acmeclient "9fans.net/go/acme"

	"linepreview/internal/bus"
	"linepreview/internal/domain"
	"linepreview/internal/preview"
)

const (
	defaultDebounce = 300 * time.Millisecond
	selectionDelay  = 100 * time.Millisecond
	previewCommand  = "Preview"
	eventSourceAcme = "acme"
	outputFileMode  = 0o644
	outputDirMode   = 0o755
)

// Window is the part of *acmeclient.Win the watcher uses.
type Window interface {
	ReadAll(file string) ([]byte, error)
	ReadAddr() (q0, q1 int, err error)
	Ctl(format string, args ...interface{}) error
	Write(file string, b []byte) (int, error)
	EventChan() <-chan *acmeclient.Event
	WriteEvent(e *acmeclient.Event) error
	CloseFiles()
}

// WinIDFromEnv returns the window id acme exports to commands it runs.
func WinIDFromEnv() (int, error) {
	s := os.Getenv("winid")
	if s == "" {
		return 0, fmt.Errorf("$winid not set")
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse $winid %q: %w", s, err)
	}
	return id, nil
}

// OpenWindow opens an existing acme window by id.
func OpenWindow(id int) (*acmeclient.Win, error) {
	win, err := acmeclient.Open(id, nil)
	if err != nil {
		return nil, fmt.Errorf("open window %d: %w", id, err)
	}
	return win, nil
}

type WatcherConfig struct {
	Window  Window
	Service *preview.Service
	// Events, when set, receives document.changed and selection.changed
	// instead of the watcher rendering directly; the page file is then
	// rewritten on every preview.refreshed.
	Events *bus.EventBus
	// OutputPath is where the page is written; empty disables writing.
	OutputPath string
	Debounce   time.Duration
	Logger     *slog.Logger
}

// Watcher implements domain.Host for one acme window and domain.Channel
// for its event loop.
type Watcher struct {
	win      Window
	service  *preview.Service
	events   *bus.EventBus
	output   string
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex // serializes reads of the addr file
	stop    chan struct{}
	stopped sync.Once
}

func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Window == nil {
		return nil, fmt.Errorf("acme watcher: no window")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("acme watcher: no preview service")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	return &Watcher{
		win:      cfg.Window,
		service:  cfg.Service,
		events:   cfg.Events,
		output:   cfg.OutputPath,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
	}, nil
}

func (w *Watcher) Name() string { return "acme" }

// ActiveDocument returns the window body; the language is guessed from the
// file name at the start of the tag.
func (w *Watcher) ActiveDocument() (domain.Document, error) {
	tag, err := w.win.ReadAll("tag")
	if err != nil {
		return domain.Document{}, fmt.Errorf("read tag: %w", err)
	}
	body, err := w.win.ReadAll("body")
	if err != nil {
		return domain.Document{}, fmt.Errorf("read body: %w", err)
	}
	return domain.Document{
		Text:       string(body),
		LanguageID: domain.LanguageForPath(nameFromTag(string(tag))),
	}, nil
}

// CursorOffset returns the start of dot as a byte offset into the body.
func (w *Watcher) CursorOffset() (int, error) {
	change, err := w.snapshot()
	if err != nil {
		return 0, err
	}
	return change.Cursor, nil
}

// Selection returns dot when it is non-empty.
func (w *Watcher) Selection() (*domain.Selection, error) {
	change, err := w.snapshot()
	if err != nil {
		return nil, err
	}
	return change.Selection, nil
}

// dot returns the window's current selection in runes.
func (w *Watcher) dot() (q0, q1 int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// The first read opens the addr file, which acme requires before
	// addr=dot takes effect.
	if _, _, err := w.win.ReadAddr(); err != nil {
		return 0, 0, fmt.Errorf("open addr: %w", err)
	}
	if err := w.win.Ctl("addr=dot"); err != nil {
		return 0, 0, fmt.Errorf("addr=dot: %w", err)
	}
	q0, q1, err = w.win.ReadAddr()
	if err != nil {
		return 0, 0, fmt.Errorf("read addr: %w", err)
	}
	return q0, q1, nil
}

// snapshot reads the document and dot together so offsets match the text
// they index.
func (w *Watcher) snapshot() (bus.DocumentChanged, error) {
	doc, err := w.ActiveDocument()
	if err != nil {
		return bus.DocumentChanged{}, err
	}
	q0, q1, err := w.dot()
	if err != nil {
		return bus.DocumentChanged{}, err
	}
	change := bus.DocumentChanged{
		Document: doc,
		Cursor:   runeToByte(doc.Text, q0),
	}
	if q0 != q1 {
		change.Selection = &domain.Selection{
			Start: change.Cursor,
			End:   runeToByte(doc.Text, q1),
		}
	}
	return change, nil
}

// Start adds the Preview command to the tag, renders once and then follows
// window events until ctx is done, Stop is called or the window closes.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.win.Write("tag", []byte(" "+previewCommand)); err != nil {
		w.logger.Warn("cannot extend tag", "err", err)
	}

	if w.events != nil {
		id := w.events.On(bus.EventPreviewRefreshed, func(e bus.Event) {
			if p, ok := e.Payload.(bus.PreviewRefreshed); ok {
				w.writeOutput(p.HTML)
			}
		})
		defer w.events.Off(bus.EventPreviewRefreshed, id)
	}

	w.refresh(bus.EventDocumentChanged)
	return w.loop(ctx)
}

func (w *Watcher) Stop() error {
	w.stopped.Do(func() {
		close(w.stop)
		w.win.CloseFiles()
	})
	return nil
}

func (w *Watcher) loop(ctx context.Context) error {
	events := w.win.EventChan()
	var editTimer, selTimer <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		case e, ok := <-events:
			if !ok {
				w.logger.Info("acme window closed")
				return nil
			}
			switch classify(e) {
			case actionEdit:
				editTimer = time.After(w.debounce)
			case actionSelect:
				selTimer = time.After(selectionDelay)
			case actionPreview:
				editTimer, selTimer = nil, nil
				w.refresh(bus.EventDocumentChanged)
			case actionPassThrough:
				if err := w.win.WriteEvent(e); err != nil {
					w.logger.Warn("write event back to acme", "err", err)
				}
			}
		case <-editTimer:
			editTimer = nil
			w.refresh(bus.EventDocumentChanged)
		case <-selTimer:
			selTimer = nil
			w.refresh(bus.EventSelectionChanged)
		}
	}
}

// refresh publishes the current editor state as eventType, or renders it
// directly when no bus is attached.
func (w *Watcher) refresh(eventType string) {
	change, err := w.snapshot()
	if err != nil {
		w.logger.Warn("read acme window", "err", err)
		return
	}
	if w.events != nil {
		w.events.Emit(bus.Event{Type: eventType, Source: eventSourceAcme, Payload: change})
		return
	}
	res := w.service.RenderPreview(change.Document, change.Cursor, change.Selection)
	w.writeOutput(res.HTML)
}

// writeOutput replaces the page file atomically so a reloading browser
// never sees a partial page.
func (w *Watcher) writeOutput(html string) {
	if w.output == "" {
		return
	}
	if err := writeFileAtomic(w.output, []byte(html)); err != nil {
		w.logger.Warn("write preview page", "path", w.output, "err", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, outputDirMode); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(outputFileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// nameFromTag returns the file name at the start of a window tag.
func nameFromTag(tag string) string {
	tag = strings.TrimLeft(tag, " \t")
	if i := strings.IndexAny(tag, " \t"); i >= 0 {
		return tag[:i]
	}
	return tag
}
