// Package preview assembles full preview pages: it locates the message
// snippet around the cursor, renders it and wraps the fragment in the chat
// window. Every failure becomes a short notice page; RenderPreview never
// returns an error to its caller.
package preview

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"linepreview/internal/bus"
	"linepreview/internal/domain"
	"linepreview/internal/locator"
	"linepreview/internal/message"
	"linepreview/internal/metrics"
	"linepreview/internal/render"
)

// Fixed notices shown in place of a preview.
const (
	NoticeWrongDocumentKind = "Active editor doesn't show a json document - no properties to preview."
	NoticeNoEnclosingObject = "Cannot determine the rule's properties."
	NoticeJSONParse         = "Please select entire JSON."
)

// Result is the outcome of one preview render.
type Result struct {
	// HTML is the page to display: the chat window on success, a notice
	// otherwise.
	HTML string `json:"html"`
	// Fragment is the rendered <li> markup; empty on failure.
	Fragment    string `json:"fragment"`
	Snippet     string `json:"snippet,omitempty"`
	MessageType string `json:"messageType,omitempty"`
	// Kind is "" on success, otherwise domain.ErrorKind(Err).
	Kind string `json:"kind,omitempty"`
	Err  error  `json:"-"`
	Seq  uint64 `json:"seq"`
}

// OK reports whether the render produced a chat window.
func (r Result) OK() bool { return r.Err == nil }

type Config struct {
	Renderer *render.Renderer
	Page     Page
	// LanguageIDs are the document kinds treated as JSON; nil means
	// domain.DefaultJSONLanguageIDs.
	LanguageIDs []string
	Events      *bus.EventBus      // optional
	Metrics     *metrics.Collector // optional
	Logger      *slog.Logger
}

// Service renders previews. It is safe for concurrent use.
type Service struct {
	renderer *render.Renderer
	shell    *shell
	kinds    []string
	events   *bus.EventBus
	metrics  *metrics.Collector
	logger   *slog.Logger
	seq      atomic.Uint64
}

func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.New(render.Config{Logger: cfg.Logger})
	}
	return &Service{
		renderer: cfg.Renderer,
		shell:    newShell(cfg.Page),
		kinds:    cfg.LanguageIDs,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// RenderPreview renders the message around cursor (or the non-empty
// selection) in doc and publishes the result as a preview.refreshed event.
func (s *Service) RenderPreview(doc domain.Document, cursor int, sel *domain.Selection) Result {
	start := time.Now()
	snippet, err := locator.Locate(doc, cursor, sel, s.kinds)
	if err != nil {
		return s.finish(Result{Err: err}, start)
	}
	return s.finish(s.renderSnippet(snippet), start)
}

// RenderSnippet renders a message snippet directly, skipping the locator.
func (s *Service) RenderSnippet(snippet string) Result {
	start := time.Now()
	return s.finish(s.renderSnippet(snippet), start)
}

// Refresh pulls the current document, cursor and selection from host and
// renders them.
func (s *Service) Refresh(host domain.Host) Result {
	doc, err := host.ActiveDocument()
	if err != nil {
		return s.finish(Result{Err: err}, time.Now())
	}
	cursor, err := host.CursorOffset()
	if err != nil {
		return s.finish(Result{Err: err}, time.Now())
	}
	sel, err := host.Selection()
	if err != nil {
		return s.finish(Result{Err: err}, time.Now())
	}
	return s.RenderPreview(doc, cursor, sel)
}

func (s *Service) renderSnippet(snippet string) Result {
	res := Result{Snippet: snippet}
	msg, err := message.ParseString(snippet)
	if err != nil {
		res.Err = err
		return res
	}
	res.MessageType = msg.Type()
	fragment, err := s.renderer.Render(msg)
	if err != nil {
		res.Err = err
		return res
	}
	page, err := s.shell.wrap(fragment)
	if err != nil {
		res.Err = err
		return res
	}
	res.Fragment = fragment
	res.HTML = page
	return res
}

// finish fills in the notice for failed renders, records metrics and
// publishes the result.
func (s *Service) finish(res Result, start time.Time) Result {
	res.Seq = s.seq.Add(1)
	elapsed := time.Since(start)

	if res.Err != nil {
		res.Kind = domain.ErrorKind(res.Err)
		res.Fragment = ""
		res.HTML = s.shell.notice(res.Kind, NoticeText(res.Err))
		s.metrics.ObserveFailure(res.Kind, elapsed)
		if res.Kind == "internal" {
			s.logger.Warn("preview failed", "error", res.Err, "seq", res.Seq)
		} else {
			s.logger.Debug("preview notice", "kind", res.Kind, "error", res.Err, "seq", res.Seq)
		}
	} else {
		s.metrics.ObserveRender(res.MessageType, elapsed)
		s.logger.Debug("preview rendered", "type", res.MessageType, "seq", res.Seq, "elapsed", elapsed)
	}

	if s.events != nil {
		s.events.Emit(bus.Event{
			Type:   bus.EventPreviewRefreshed,
			Source: "preview",
			Payload: bus.PreviewRefreshed{
				Seq:      res.Seq,
				HTML:     res.HTML,
				Fragment: res.Fragment,
				Snippet:  res.Snippet,
				Kind:     res.Kind,
			},
		})
	}
	return res
}

// NoticeText returns the user-facing text shown in place of a preview that
// failed with err.
func NoticeText(err error) string {
	switch {
	case errors.Is(err, domain.ErrWrongDocumentKind):
		return NoticeWrongDocumentKind
	case errors.Is(err, domain.ErrNoEnclosingObject):
		return NoticeNoEnclosingObject
	case errors.Is(err, domain.ErrJSONParse):
		return NoticeJSONParse
	case errors.Is(err, domain.ErrUnknownMessageType),
		errors.Is(err, domain.ErrUnknownTemplateType),
		errors.Is(err, domain.ErrUnknownActionType):
		return "Unsupported message: " + err.Error() + "."
	case errors.Is(err, domain.ErrMalformedMessage):
		return "Invalid message: " + err.Error() + "."
	default:
		return "Preview failed: " + err.Error() + "."
	}
}

// Listen re-renders on document.changed and selection.changed events until
// the returned function is called.
func (s *Service) Listen() (stop func()) {
	if s.events == nil {
		return func() {}
	}
	handler := func(e bus.Event) {
		change, ok := e.Payload.(bus.DocumentChanged)
		if !ok {
			s.logger.Warn("ignoring event with unexpected payload", "event", e.Type, "source", e.Source)
			return
		}
		s.RenderPreview(change.Document, change.Cursor, change.Selection)
	}
	docID := s.events.On(bus.EventDocumentChanged, handler)
	selID := s.events.On(bus.EventSelectionChanged, handler)
	return func() {
		s.events.Off(bus.EventDocumentChanged, docID)
		s.events.Off(bus.EventSelectionChanged, selID)
	}
}
