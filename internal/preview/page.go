package preview

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets/*
var assetsFS embed.FS

// Page configures the chat-window shell. URLs are emitted verbatim. An
// empty SiteCSSURL or PreviewScriptURL inlines the built-in asset, which
// keeps pages written to disk self-contained.
type Page struct {
	BotName          string
	StylesheetURL    string
	SiteCSSURL       string
	PreviewScriptURL string
	ScriptURLs       []string
	KeyboardImageURL string
}

type pageView struct {
	Page
	Fragment  htmltemplate.HTML
	InlineCSS htmltemplate.CSS
	InlineJS  htmltemplate.JS
}

type noticeView struct {
	Kind string
	Text string
}

// shell renders pages and notices from the embedded templates.
type shell struct {
	tmpl *htmltemplate.Template
	page Page
	css  htmltemplate.CSS
	js   htmltemplate.JS
}

func newShell(page Page) *shell {
	if page.BotName == "" {
		page.BotName = "bot"
	}
	css, err := fs.ReadFile(assetsFS, "assets/site.css")
	if err != nil {
		panic(err)
	}
	js, err := fs.ReadFile(assetsFS, "assets/preview.js")
	if err != nil {
		panic(err)
	}
	return &shell{
		tmpl: htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html")),
		page: page,
		css:  htmltemplate.CSS(css),
		js:   htmltemplate.JS(js),
	}
}

// wrap places a rendered fragment inside the chat window.
func (s *shell) wrap(fragment string) (string, error) {
	var buf bytes.Buffer
	err := s.tmpl.ExecuteTemplate(&buf, "page.html", pageView{
		Page:      s.page,
		Fragment:  htmltemplate.HTML(fragment),
		InlineCSS: s.css,
		InlineJS:  s.js,
	})
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return buf.String(), nil
}

func (s *shell) notice(kind, text string) string {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "notice.html", noticeView{Kind: kind, Text: text}); err != nil {
		return htmltemplate.HTMLEscapeString(text)
	}
	return buf.String()
}

// AssetsHandler serves the built-in site.css and preview.js, for hosts that
// point SiteCSSURL and PreviewScriptURL at themselves.
func AssetsHandler() http.Handler {
	sub, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
