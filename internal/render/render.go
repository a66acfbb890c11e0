// Package render turns decoded messages into the <li> fragments of the chat
// preview. Markup comes from embedded html/template fragments, so every
// interpolated label, text and URL is escaped for its context (element text,
// attribute, URL, CSS url() or JS string).
package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"strconv"
	"strings"

	"linepreview/internal/message"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer renders messages to HTML fragments. It is safe for concurrent use
// when its IDSource is.
type Renderer struct {
	tmpl   *htmltemplate.Template
	ids    IDSource
	logger *slog.Logger
}

type Config struct {
	// IDs names imagemap maps. Defaults to a fresh Counter.
	IDs    IDSource
	Logger *slog.Logger
}

func New(cfg Config) *Renderer {
	if cfg.IDs == nil {
		cfg.IDs = NewCounter("imagemap-")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Renderer{
		tmpl:   htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html")),
		ids:    cfg.IDs,
		logger: cfg.Logger,
	}
}

// Render returns the fragment for msg: one root <li>, or two for a carousel
// (a spacer followed by the card strip).
func (r *Renderer) Render(msg message.Message) (string, error) {
	name, data, err := r.view(msg)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	r.logger.Debug("message rendered", "type", msg.Type(), "bytes", buf.Len())
	return buf.String(), nil
}

// RenderString parses a message snippet and renders it.
func (r *Renderer) RenderString(snippet string) (string, error) {
	msg, err := message.ParseString(snippet)
	if err != nil {
		return "", err
	}
	return r.Render(msg)
}

type textView struct {
	Text string
	Echo string
}

type columnView struct {
	ThumbnailImageURL string
	Title             string
	Text              string
	Buttons           []buttonView
}

// buttonView is one template button. Kind is "link", "postback" (send Data
// and then Send as a message) or "send" (send Send as a message).
type buttonView struct {
	Kind  string
	Label string
	Data  string
	Send  string
	URI   string
}

type confirmView struct {
	Text string
	Yes  message.Choice
	No   message.Choice
}

type carouselView struct {
	Columns []columnView
}

type imagemapView struct {
	ImageURL string
	AltText  string
	MapID    string
	Areas    []areaView
}

type areaView struct {
	Coords   string
	External bool
	LinkURI  string
	Script   htmltemplate.URL
}

func (r *Renderer) view(msg message.Message) (string, any, error) {
	switch m := msg.(type) {
	case message.Text:
		echo, err := message.Marshal(m)
		if err != nil {
			return "", nil, err
		}
		return "text", textView{Text: m.Text, Echo: string(echo)}, nil
	case message.Sticker:
		return "sticker", m, nil
	case message.Image:
		return "image", m, nil
	case message.Video:
		return "video", m, nil
	case message.TemplateMessage:
		return templateView(m.Template)
	case message.Imagemap:
		view, err := r.imagemapView(m)
		if err != nil {
			return "", nil, err
		}
		return "imagemap", view, nil
	case nil:
		return "", nil, fmt.Errorf("render: nil message")
	default:
		return "", nil, fmt.Errorf("render: unsupported message %T", msg)
	}
}

func templateView(t message.Template) (string, any, error) {
	switch tt := t.(type) {
	case message.Buttons:
		col, err := columnOf(tt.ThumbnailImageURL, tt.Title, tt.Text, tt.Actions)
		if err != nil {
			return "", nil, err
		}
		return "buttons", col, nil
	case message.Confirm:
		return "confirm", confirmView{Text: tt.Text, Yes: tt.Yes, No: tt.No}, nil
	case message.Carousel:
		view := carouselView{Columns: make([]columnView, 0, len(tt.Columns))}
		for i, c := range tt.Columns {
			col, err := columnOf(c.ThumbnailImageURL, c.Title, c.Text, c.Actions)
			if err != nil {
				return "", nil, fmt.Errorf("columns[%d]: %w", i, err)
			}
			view.Columns = append(view.Columns, col)
		}
		return "carousel", view, nil
	case nil:
		return "", nil, fmt.Errorf("render: template message without template")
	default:
		return "", nil, fmt.Errorf("render: unsupported template %T", t)
	}
}

func columnOf(thumb, title, text string, actions []message.Action) (columnView, error) {
	col := columnView{
		ThumbnailImageURL: thumb,
		Title:             title,
		Text:              text,
		Buttons:           make([]buttonView, 0, len(actions)),
	}
	for i, a := range actions {
		b, err := buttonOf(a)
		if err != nil {
			return columnView{}, fmt.Errorf("actions[%d]: %w", i, err)
		}
		col.Buttons = append(col.Buttons, b)
	}
	return col, nil
}

func buttonOf(a message.Action) (buttonView, error) {
	switch aa := a.(type) {
	case message.PostbackAction:
		if aa.Text != "" {
			return buttonView{Kind: "postback", Label: aa.Label, Data: aa.Data, Send: aa.Text}, nil
		}
		// Without display text the payload itself is sent as a message.
		return buttonView{Kind: "send", Label: aa.Label, Send: aa.Data}, nil
	case message.MessageAction:
		return buttonView{Kind: "send", Label: aa.Text, Send: aa.Text}, nil
	case message.URIAction:
		return buttonView{Kind: "link", Label: aa.Label, URI: aa.URI}, nil
	default:
		return buttonView{}, fmt.Errorf("render: unsupported action %T", a)
	}
}

func (r *Renderer) imagemapView(m message.Imagemap) (imagemapView, error) {
	view := imagemapView{
		ImageURL: m.BaseURL + "/1040.png",
		AltText:  m.AltText,
		MapID:    r.ids.NextID(),
		Areas:    make([]areaView, 0, len(m.Actions)),
	}
	for _, a := range m.Actions {
		av := areaView{Coords: coords(a.Bounds())}
		switch aa := a.(type) {
		case message.ImagemapURIAction:
			av.External = true
			av.LinkURI = aa.LinkURI
		case message.ImagemapMessageAction:
			av.Script = sendMessageURL(aa.Text)
		default:
			return imagemapView{}, fmt.Errorf("render: unsupported imagemap action %T", a)
		}
		view.Areas = append(view.Areas, av)
	}
	return view, nil
}

// coords formats an area as "x,y,x+width,height". The bottom edge is the raw
// height, not y+height; imagemaps in the wild are authored against this.
func coords(a message.Area) string {
	return strconv.Itoa(a.X) + "," + strconv.Itoa(a.Y) + "," +
		strconv.Itoa(a.X+a.Width) + "," + strconv.Itoa(a.Height)
}

// sendMessageURL builds a javascript: URL calling sendMessage(text). The
// argument is a JS string literal; '%' is encoded so that URL decoding by
// the browser cannot reintroduce a quote.
func sendMessageURL(text string) htmltemplate.URL {
	arg := htmltemplate.JSEscapeString(text)
	arg = strings.ReplaceAll(arg, "%", "%25")
	return htmltemplate.URL("javascript:sendMessage('" + arg + "');")
}
