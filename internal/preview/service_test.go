package preview

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"linepreview/internal/bus"
	"linepreview/internal/domain"
	"linepreview/internal/metrics"
	"linepreview/internal/render"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestService(t *testing.T, events *bus.EventBus, m *metrics.Collector) *Service {
	t.Helper()
	logger := testLogger()
	return New(Config{
		Renderer: render.New(render.Config{IDs: render.NewCounter("map-"), Logger: logger}),
		Page:     Page{BotName: "Test Bot", StylesheetURL: "https://cdn.example/bootstrap.css"},
		Events:   events,
		Metrics:  m,
		Logger:   logger,
	})
}

func parsePage(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	return doc
}

func jsonDoc(text string) domain.Document {
	return domain.Document{Text: text, LanguageID: "json"}
}

func TestRenderPreview_WrapsFragmentInChatWindow(t *testing.T) {
	svc := newTestService(t, nil, nil)
	text := `[{"type":"sticker","packageId":"1","stickerId":"2"}]`

	res := svc.RenderPreview(jsonDoc(text), 10, nil)
	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Snippet != `{"type":"sticker","packageId":"1","stickerId":"2"}` {
		t.Errorf("snippet: got %q", res.Snippet)
	}
	if res.MessageType != "sticker" || res.Kind != "" {
		t.Errorf("unexpected type/kind: %q/%q", res.MessageType, res.Kind)
	}
	if !strings.Contains(res.HTML, res.Fragment) {
		t.Errorf("page does not contain the fragment")
	}

	page := parsePage(t, res.HTML)
	items := page.Find(".simulator .chat-thread ul > li")
	if items.Length() != 2 {
		t.Fatalf("expected top space and sticker, got %d items", items.Length())
	}
	if !items.Eq(0).HasClass("chat-top-space") || !items.Eq(1).HasClass("chat-sticker") {
		t.Errorf("unexpected thread items")
	}
	if got := strings.TrimSpace(page.Find(".bot-title").Text()); got != "Test Bot" {
		t.Errorf("bot title: got %q", got)
	}
	if href, _ := page.Find(`link[rel="stylesheet"]`).First().Attr("href"); href != "https://cdn.example/bootstrap.css" {
		t.Errorf("stylesheet: got %q", href)
	}
	if !strings.Contains(page.Find("style").Text(), ".simulator") {
		t.Errorf("built-in stylesheet not inlined")
	}
	if !strings.Contains(page.Find("script").Last().Text(), "sendMessage") {
		t.Errorf("built-in script not inlined")
	}
	if page.Find("#message-to-send").Length() != 1 {
		t.Errorf("input bar missing")
	}
}

func TestRenderPreview_ExternalAssets(t *testing.T) {
	svc := New(Config{
		Page: Page{
			SiteCSSURL:       "/assets/site.css",
			PreviewScriptURL: "/assets/preview.js",
			ScriptURLs:       []string{"https://cdn.example/jquery.js"},
			KeyboardImageURL: "/img/keyboard.png",
		},
		Logger: testLogger(),
	})
	res := svc.RenderSnippet(`{"type":"text","text":"hi"}`)
	if !res.OK() {
		t.Fatal(res.Err)
	}
	page := parsePage(t, res.HTML)
	if page.Find("style").Length() != 0 {
		t.Errorf("stylesheet should not be inlined")
	}
	if page.Find(`link[href="/assets/site.css"]`).Length() != 1 {
		t.Errorf("site css link missing")
	}
	var srcs []string
	page.Find("script").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		srcs = append(srcs, src)
	})
	if strings.Join(srcs, " ") != "https://cdn.example/jquery.js /assets/preview.js" {
		t.Errorf("scripts: got %v", srcs)
	}
	if src, _ := page.Find(".chat-keyboard img").Attr("src"); src != "/img/keyboard.png" {
		t.Errorf("keyboard image: got %q", src)
	}
	if got := strings.TrimSpace(page.Find(".bot-title").Text()); got != "bot" {
		t.Errorf("default bot name: got %q", got)
	}
}

func TestRenderPreview_Notices(t *testing.T) {
	tests := []struct {
		name   string
		doc    domain.Document
		cursor int
		sel    *domain.Selection
		kind   string
		want   string
	}{
		{
			name: "not json",
			doc:  domain.Document{Text: `{"type":"text","text":"x"}`, LanguageID: "markdown"},
			kind: "wrong_document_kind",
			want: NoticeWrongDocumentKind,
		},
		{
			name:   "no braces",
			doc:    jsonDoc(`"just a string"`),
			cursor: 3,
			kind:   "no_enclosing_object",
			want:   NoticeNoEnclosingObject,
		},
		{
			name:   "partial json",
			doc:    jsonDoc(`{"type":"template","template":{"type":"buttons"}}`),
			cursor: 2,
			kind:   "json_parse",
			want:   NoticeJSONParse,
		},
		{
			name: "selection not json",
			doc:  jsonDoc(`{"type":"text","text":"x"}`),
			sel:  &domain.Selection{Start: 0, End: 7},
			kind: "json_parse",
			want: NoticeJSONParse,
		},
		{
			name:   "unknown type",
			doc:    jsonDoc(`{"type":"bogus"}`),
			cursor: 1,
			kind:   "unknown_message_type",
			want:   `Unsupported message: unknown message type "bogus".`,
		},
	}

	svc := newTestService(t, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.RenderPreview(tt.doc, tt.cursor, tt.sel)
			if res.OK() {
				t.Fatal("expected a failed render")
			}
			if res.Kind != tt.kind {
				t.Errorf("kind: got %q, want %q", res.Kind, tt.kind)
			}
			if res.Fragment != "" {
				t.Errorf("fragment should be empty, got %q", res.Fragment)
			}
			page := parsePage(t, res.HTML)
			if got := strings.TrimSpace(page.Find("body").Text()); got != tt.want {
				t.Errorf("notice: got %q, want %q", got, tt.want)
			}
			if page.Find(".simulator").Length() != 0 {
				t.Errorf("notice should not contain the chat window")
			}
		})
	}
}

func TestRenderPreview_MalformedMessageNotice(t *testing.T) {
	svc := newTestService(t, nil, nil)
	res := svc.RenderSnippet(`{"type":"template","template":{"type":"confirm","text":"?","actions":[{"label":"Yes","text":"Y"}]}}`)
	if !errors.Is(res.Err, domain.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", res.Err)
	}
	if res.Kind != "malformed_message" {
		t.Errorf("kind: got %q", res.Kind)
	}
	if !strings.Contains(res.HTML, "exactly 2 actions") {
		t.Errorf("notice should name the violated precondition: %s", res.HTML)
	}
}

type fakeHost struct {
	doc    domain.Document
	cursor int
	sel    *domain.Selection
	err    error
}

func (h fakeHost) ActiveDocument() (domain.Document, error) { return h.doc, h.err }
func (h fakeHost) CursorOffset() (int, error)               { return h.cursor, nil }
func (h fakeHost) Selection() (*domain.Selection, error)    { return h.sel, nil }

func TestRefresh_PullsFromHost(t *testing.T) {
	svc := newTestService(t, nil, nil)

	res := svc.Refresh(fakeHost{doc: jsonDoc(`x {"type":"text","text":"from host"} y`), cursor: 5})
	if !res.OK() || !strings.Contains(res.Fragment, "from host") {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = svc.Refresh(fakeHost{err: errors.New("no window")})
	if res.Kind != "internal" {
		t.Errorf("expected internal kind, got %q", res.Kind)
	}
	if !strings.Contains(res.HTML, "no window") {
		t.Errorf("notice should include the host error")
	}
}

func TestRenderPreview_PublishesAndCounts(t *testing.T) {
	events := bus.NewEventBus(testLogger())
	m := metrics.NewCollector()
	svc := newTestService(t, events, m)

	first := svc.RenderSnippet(`{"type":"text","text":"a"}`)
	second := svc.RenderSnippet(`{"type":"text"`)
	if second.Seq != first.Seq+1 {
		t.Errorf("seq not increasing: %d then %d", first.Seq, second.Seq)
	}

	e, ok := events.Last(bus.EventPreviewRefreshed)
	if !ok {
		t.Fatal("expected a preview.refreshed event")
	}
	p := e.Payload.(bus.PreviewRefreshed)
	if p.Seq != second.Seq || p.Kind != "json_parse" || p.HTML != second.HTML {
		t.Errorf("unexpected payload: %+v", p)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`linepreview_renders_total{type="text"} 1`,
		`linepreview_render_failures_total{kind="json_parse"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestListen_RerendersOnEditorEvents(t *testing.T) {
	events := bus.NewEventBus(testLogger())
	svc := newTestService(t, events, nil)
	stop := svc.Listen()

	text := `{"type":"image","previewImageUrl":"https://x/p.png"}`
	events.Emit(bus.Event{Type: bus.EventDocumentChanged, Payload: bus.DocumentChanged{Document: jsonDoc(text), Cursor: 3}})
	e, ok := events.Last(bus.EventPreviewRefreshed)
	if !ok || !strings.Contains(e.Payload.(bus.PreviewRefreshed).Fragment, "https://x/p.png") {
		t.Fatalf("document change did not refresh the preview: %+v", e)
	}

	events.Emit(bus.Event{Type: bus.EventSelectionChanged, Payload: bus.DocumentChanged{Document: jsonDoc("none"), Cursor: 0}})
	e, _ = events.Last(bus.EventPreviewRefreshed)
	if e.Payload.(bus.PreviewRefreshed).Kind != "no_enclosing_object" {
		t.Fatalf("selection change did not refresh the preview: %+v", e)
	}

	stop()
	before := len(events.Replay(bus.EventPreviewRefreshed, e.Timestamp.Add(-1)))
	events.Emit(bus.Event{Type: bus.EventDocumentChanged, Payload: bus.DocumentChanged{Document: jsonDoc(text)}})
	after := len(events.Replay(bus.EventPreviewRefreshed, e.Timestamp.Add(-1)))
	if after != before {
		t.Errorf("preview refreshed after stop")
	}
}

func TestAssetsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	AssetsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/preview.js", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "sendPostback") {
		t.Fatalf("unexpected response %d", rec.Code)
	}
}
