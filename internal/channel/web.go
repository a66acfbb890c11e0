package channel

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"linepreview/internal/bus"
	"linepreview/internal/config"
	"linepreview/internal/domain"
	"linepreview/internal/metrics"
	"linepreview/internal/preview"
)

const (
	maxBodySize     = 1 << 20 // 1MB
	sseBuffer       = 8
	shutdownTimeout = 5 * time.Second
)

//go:embed web_templates/*.html
var templateFS embed.FS

//go:embed web_assets/*
var assetsFS embed.FS

// sampleMessage seeds the editor on first load.
const sampleMessage = `{
  "type": "template",
  "altText": "This is a buttons template",
  "template": {
    "type": "buttons",
    "thumbnailImageUrl": "https://example.com/bot/images/image.jpg",
    "title": "Menu",
    "text": "Please select",
    "actions": [
      {"type": "postback", "label": "Buy", "data": "action=buy&itemid=123"},
      {"type": "postback", "label": "Add to cart", "data": "action=add&itemid=123", "text": "add to cart"},
      {"type": "uri", "label": "View detail", "uri": "http://example.com/page/123"}
    ]
  }
}`

// Web implements domain.Channel for the browser preview: an editor page,
// a JSON render API and live preview streams over SSE and websocket.
type Web struct {
	host    string
	port    int
	logger  *slog.Logger
	server  *http.Server
	tmpl    *htmltemplate.Template
	version string

	service *preview.Service
	events  *bus.EventBus
	metrics *metrics.Collector

	metricsPath string
	botName     string

	// Config reference for the settings API (protected by cfgMu)
	cfg     *config.Config
	cfgPath string
	cfgMu   sync.RWMutex

	// Auth settings
	authEnabled  bool
	authUser     string
	authPassHash string

	// last result rendered through this channel, used when no event bus
	// is attached
	lastMu sync.RWMutex
	last   *preview.Result

	handlerOnce sync.Once
	handler     http.Handler
}

type WebConfig struct {
	Host       string
	Port       int
	Logger     *slog.Logger
	Config     *config.Config
	ConfigPath string
	Version    string

	Service *preview.Service
	Events  *bus.EventBus      // optional; enables /preview/stream and live websocket pushes
	Metrics *metrics.Collector // optional
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Service == nil {
		cfg.Service = preview.New(preview.Config{Events: cfg.Events, Metrics: cfg.Metrics, Logger: cfg.Logger})
	}

	w := &Web{
		host:        cfg.Host,
		port:        cfg.Port,
		logger:      cfg.Logger,
		tmpl:        htmltemplate.Must(htmltemplate.ParseFS(templateFS, "web_templates/*.html")),
		version:     cfg.Version,
		service:     cfg.Service,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		metricsPath: "/metrics",
		botName:     "bot",
		cfg:         cfg.Config,
		cfgPath:     cfg.ConfigPath,
	}

	if c := cfg.Config; c != nil {
		if c.Web.Auth.Enabled {
			w.authEnabled = true
			w.authUser = c.Web.Auth.Username
			w.authPassHash = c.Web.Auth.PasswordHash
		}
		if !c.Metrics.Enabled {
			w.metrics = nil
		} else if c.Metrics.Endpoint != "" {
			w.metricsPath = c.Metrics.Endpoint
		}
		if c.Preview.BotName != "" {
			w.botName = c.Preview.BotName
		}
	}
	return w
}

func (w *Web) Name() string { return "web" }

// Handler returns the channel's routes. It is built once.
func (w *Web) Handler() http.Handler {
	w.handlerOnce.Do(func() {
		mux := http.NewServeMux()

		editorAssets := http.FileServer(http.FS(assetsFS))
		mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			r.URL.Path = "web_assets/" + r.URL.Path
			rw.Header().Set("Cache-Control", "public, max-age=86400")
			editorAssets.ServeHTTP(rw, r)
		})))
		mux.Handle("GET /assets/preview/", http.StripPrefix("/assets/preview", preview.AssetsHandler()))

		mux.HandleFunc("GET /{$}", w.requireAuth(w.handleEditor))
		mux.HandleFunc("POST /api/preview", w.requireAuth(w.handleRender))
		mux.HandleFunc("GET /preview", w.requireAuth(w.handlePreviewPage))
		mux.HandleFunc("GET /preview/stream", w.requireAuth(w.handleSSE))
		mux.HandleFunc("GET /ws", w.requireAuth(w.handleWebSocket))
		mux.HandleFunc("GET /status", w.handleStatus) // public endpoint

		mux.HandleFunc("GET /api/config", w.requireAuth(w.handleGetConfig))
		mux.HandleFunc("PUT /api/config", w.requireAuth(w.handleUpdateConfig))
		mux.HandleFunc("POST /api/config/save", w.requireAuth(w.handleSaveConfig))

		if w.metrics != nil {
			mux.Handle("GET "+w.metricsPath, w.metrics.Handler())
		}
		w.handler = mux
	})
	return w.handler
}

// Start serves until ctx is cancelled or Stop is called.
func (w *Web) Start(ctx context.Context) error {
	addr := net.JoinHostPort(w.host, fmt.Sprint(w.port))
	w.server = &http.Server{
		Addr:              addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	w.logger.Info("web preview started", "addr", "http://"+addr, "auth", w.authEnabled, "metrics", w.metrics != nil)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		w.server.Shutdown(shutdownCtx)
	}()

	if err := w.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (w *Web) Stop() error {
	if w.server != nil {
		return w.server.Close()
	}
	return nil
}

// requireAuth wraps a handler with HTTP Basic Auth when auth is enabled.
func (w *Web) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !w.authEnabled {
			next(rw, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !w.checkCredentials(user, pass) {
			rw.Header().Set("WWW-Authenticate", `Basic realm="linepreview"`)
			http.Error(rw, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(rw, r)
	}
}

// checkCredentials compares the user name and the SHA-256 hex digest of the
// password against the configured values.
func (w *Web) checkCredentials(user, pass string) bool {
	if subtle.ConstantTimeCompare([]byte(user), []byte(w.authUser)) != 1 {
		return false
	}
	hash := sha256.Sum256([]byte(pass))
	got := hex.EncodeToString(hash[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(w.authPassHash)) == 1
}

func (w *Web) handleEditor(rw http.ResponseWriter, r *http.Request) {
	if err := w.tmpl.ExecuteTemplate(rw, "editor.html", map[string]any{
		"Title":   "LINE message preview",
		"BotName": w.botName,
		"Version": w.version,
		"Sample":  sampleMessage,
		"Live":    w.events != nil,
	}); err != nil {
		w.logger.Error("template error", "template", "editor", "err", err)
	}
}

// renderRequest is the body of POST /api/preview and of websocket update
// frames.
type renderRequest struct {
	Text       string            `json:"text"`
	LanguageID string            `json:"languageId"`
	Cursor     int               `json:"cursor"`
	Selection  *domain.Selection `json:"selection,omitempty"`
}

func (req renderRequest) document() domain.Document {
	lang := req.LanguageID
	if lang == "" {
		lang = "json"
	}
	return domain.Document{Text: req.Text, LanguageID: lang}
}

// renderResponse is a preview.Result with its error flattened to text.
type renderResponse struct {
	preview.Result
	Error string `json:"error,omitempty"`
}

func responseOf(res preview.Result) renderResponse {
	out := renderResponse{Result: res}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (w *Web) render(req renderRequest) preview.Result {
	res := w.service.RenderPreview(req.document(), req.Cursor, req.Selection)
	w.lastMu.Lock()
	w.last = &res
	w.lastMu.Unlock()
	return res
}

func (w *Web) handleRender(rw http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, responseOf(w.render(req)))
}

// lastPage returns the most recent preview page known to the channel: the
// last preview.refreshed event when a bus is attached, otherwise the last
// render served by the API.
func (w *Web) lastPage() (string, bool) {
	if w.events != nil {
		if e, ok := w.events.Last(bus.EventPreviewRefreshed); ok {
			if p, ok := e.Payload.(bus.PreviewRefreshed); ok {
				return p.HTML, true
			}
		}
	}
	w.lastMu.RLock()
	defer w.lastMu.RUnlock()
	if w.last == nil {
		return "", false
	}
	return w.last.HTML, true
}

func (w *Web) handlePreviewPage(rw http.ResponseWriter, r *http.Request) {
	page, ok := w.lastPage()
	if !ok {
		http.Error(rw, "no preview rendered yet", http.StatusNotFound)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.Header().Set("Cache-Control", "no-store")
	io.WriteString(rw, page)
}

// previewFrame is the JSON form of a preview.refreshed event, shared by the
// SSE stream and websocket "preview" frames.
type previewFrame struct {
	Type     string `json:"type"`
	Seq      uint64 `json:"seq"`
	HTML     string `json:"html"`
	Fragment string `json:"fragment"`
	Snippet  string `json:"snippet,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Error    string `json:"error,omitempty"`
}

func frameOfEvent(p bus.PreviewRefreshed) previewFrame {
	return previewFrame{Type: "preview", Seq: p.Seq, HTML: p.HTML, Fragment: p.Fragment, Snippet: p.Snippet, Kind: p.Kind}
}

func frameOfResult(res preview.Result) previewFrame {
	f := previewFrame{Type: "preview", Seq: res.Seq, HTML: res.HTML, Fragment: res.Fragment, Snippet: res.Snippet, Kind: res.Kind}
	if res.Err != nil {
		f.Error = res.Err.Error()
	}
	return f
}

func (w *Web) handleSSE(rw http.ResponseWriter, r *http.Request) {
	flusher, ok := rw.(http.Flusher)
	if !ok {
		http.Error(rw, "streaming not supported", http.StatusInternalServerError)
		return
	}
	if w.events == nil {
		http.Error(rw, "live preview disabled", http.StatusServiceUnavailable)
		return
	}

	events, cancel := w.events.Subscribe(bus.EventPreviewRefreshed, sseBuffer)
	defer cancel()
	defer w.metrics.ClientConnected("sse")()

	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.WriteHeader(http.StatusOK)
	fmt.Fprint(rw, ": connected\n\n")

	// A reconnecting EventSource sends the last id it saw; resend what it
	// missed from the bus history.
	var lastSeq uint64
	if id, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		lastSeq = id
		for _, e := range w.events.Replay(bus.EventPreviewRefreshed, time.Time{}) {
			lastSeq = w.writeSSE(rw, e, lastSeq)
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			lastSeq = w.writeSSE(rw, e, lastSeq)
			flusher.Flush()
		}
	}
}

// writeSSE writes e as a preview event unless its seq is not after lastSeq,
// and returns the new last seq.
func (w *Web) writeSSE(rw io.Writer, e bus.Event, lastSeq uint64) uint64 {
	p, ok := e.Payload.(bus.PreviewRefreshed)
	if !ok || p.Seq <= lastSeq {
		return lastSeq
	}
	data, err := json.Marshal(frameOfEvent(p))
	if err != nil {
		w.logger.Error("encode preview event", "err", err)
		return lastSeq
	}
	fmt.Fprintf(rw, "id: %d\nevent: preview\ndata: %s\n\n", p.Seq, data)
	return p.Seq
}

func (w *Web) handleStatus(rw http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": w.version,
		"live":    w.events != nil,
		"time":    time.Now().Format(time.RFC3339),
	}
	if w.metrics != nil {
		status["uptime"] = w.metrics.Uptime().Round(time.Second).String()
	}
	writeJSON(rw, http.StatusOK, status)
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(v)
}
