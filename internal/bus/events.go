package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"linepreview/internal/domain"
)

// Event is one notification on the preview pipeline.
type Event struct {
	Type      string // e.g. "document.changed", "preview.refreshed"
	Source    string // originating component
	Payload   any    // DocumentChanged, PreviewRefreshed or nil
	Timestamp time.Time
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// Well-known event types.
const (
	// EventDocumentChanged and EventSelectionChanged ask for a re-render.
	// Their payload is a DocumentChanged.
	EventDocumentChanged  = "document.changed"
	EventSelectionChanged = "selection.changed"

	// EventPreviewRefreshed carries a PreviewRefreshed; hosts re-pull or
	// push the new page when they see it.
	EventPreviewRefreshed = "preview.refreshed"
)

// DocumentChanged is the editor state a render should be computed from.
type DocumentChanged struct {
	Document  domain.Document
	Cursor    int
	Selection *domain.Selection
}

// PreviewRefreshed describes a completed render.
type PreviewRefreshed struct {
	Seq      uint64
	HTML     string
	Fragment string
	Snippet  string
	// Kind is "" on success, otherwise domain.ErrorKind of the failure.
	Kind string
}

// EventBus is a topic-based publish/subscribe bus with a bounded history.
// "*" subscribes to every topic.
type EventBus struct {
	handlers   map[string][]namedHandler
	mu         sync.RWMutex
	logger     *slog.Logger
	history    []Event
	maxHistory int
	nextID     atomic.Uint64
}

type namedHandler struct {
	ID      string
	Handler EventHandler
}

func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		handlers:   make(map[string][]namedHandler),
		logger:     logger,
		maxHistory: 256,
	}
}

// On registers a handler for the given event type and returns its ID for Off.
func (eb *EventBus) On(eventType string, handler EventHandler) string {
	id := eventType + "-" + strconv.FormatUint(eb.nextID.Add(1), 10)
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], namedHandler{ID: id, Handler: handler})
	return id
}

// Off removes a handler by its ID.
func (eb *EventBus) Off(eventType, handlerID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	handlers := eb.handlers[eventType]
	for i, h := range handlers {
		if h.ID == handlerID {
			eb.handlers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Emit records the event and calls every matching handler synchronously, in
// registration order. A panicking handler is logged and skipped.
func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.Lock()
	if len(eb.history) >= eb.maxHistory {
		eb.history = eb.history[1:]
	}
	eb.history = append(eb.history, event)
	handlers := make([]namedHandler, 0, len(eb.handlers[event.Type])+len(eb.handlers["*"]))
	handlers = append(handlers, eb.handlers[event.Type]...)
	handlers = append(handlers, eb.handlers["*"]...)
	eb.mu.Unlock()

	for _, h := range handlers {
		func(nh namedHandler) {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "event", event.Type, "handler", nh.ID, "panic", r)
				}
			}()
			nh.Handler(event)
		}(h)
	}
}

// Replay returns historical events of the given type since the given time.
// Use "*" for all event types.
func (eb *EventBus) Replay(eventType string, since time.Time) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var result []Event
	for _, e := range eb.history {
		if e.Timestamp.Before(since) {
			continue
		}
		if eventType == "*" || e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// Last returns the most recent event of the given type.
func (eb *EventBus) Last(eventType string) (Event, bool) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for i := len(eb.history) - 1; i >= 0; i-- {
		if eventType == "*" || eb.history[i].Type == eventType {
			return eb.history[i], true
		}
	}
	return Event{}, false
}

