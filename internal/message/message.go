// Package message defines the LINE bot message model previewed by linepreview
// and its JSON codec. Messages, templates and actions are closed tagged
// unions: each is an interface sealed with an unexported method, and every
// variant is a struct in this package.
package message

import "encoding/json"

// Message type discriminants.
const (
	TypeText     = "text"
	TypeSticker  = "sticker"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeTemplate = "template"
	TypeImagemap = "imagemap"
)

// Template type discriminants.
const (
	TemplateButtons  = "buttons"
	TemplateConfirm  = "confirm"
	TemplateCarousel = "carousel"
)

// Action type discriminants.
const (
	ActionPostback = "postback"
	ActionMessage  = "message"
	ActionURI      = "uri"
)

// Message is one chat bubble.
type Message interface {
	Type() string
	isMessage()
}

// Text is a plain text message. Raw holds the source object the message was
// decoded from; it is echoed verbatim in the preview and preferred when
// re-encoding.
type Text struct {
	Text string
	Raw  json.RawMessage
}

type Sticker struct {
	PackageID string
	StickerID string
}

type Image struct {
	OriginalContentURL string
	PreviewImageURL    string
}

type Video struct {
	OriginalContentURL string
	PreviewImageURL    string
}

// TemplateMessage wraps a buttons, confirm or carousel template.
type TemplateMessage struct {
	AltText  string
	Template Template
}

type Imagemap struct {
	BaseURL  string
	AltText  string
	BaseSize Size
	Actions  []ImagemapAction
}

// Size is the base size of an imagemap image.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (Text) Type() string            { return TypeText }
func (Sticker) Type() string         { return TypeSticker }
func (Image) Type() string           { return TypeImage }
func (Video) Type() string           { return TypeVideo }
func (TemplateMessage) Type() string { return TypeTemplate }
func (Imagemap) Type() string        { return TypeImagemap }

func (Text) isMessage()            {}
func (Sticker) isMessage()         {}
func (Image) isMessage()           {}
func (Video) isMessage()           {}
func (TemplateMessage) isMessage() {}
func (Imagemap) isMessage()        {}

// Template is the payload of a TemplateMessage.
type Template interface {
	TemplateType() string
	isTemplate()
}

// Buttons shows an optional thumbnail and title, a text and up to four
// action buttons.
type Buttons struct {
	ThumbnailImageURL string
	Title             string
	Text              string
	Actions           []Action
}

// Confirm asks a question with exactly two answers. On the wire the answers
// are actions[0] (Yes) and actions[1] (No).
type Confirm struct {
	Text string
	Yes  Choice
	No   Choice
}

// Choice is one answer of a Confirm template. A tap sends Text as a message
// whatever the action Type is; Data and URI are kept for re-encoding.
type Choice struct {
	Type  string
	Label string
	Text  string
	Data  string
	URI   string
}

type Carousel struct {
	Columns []Column
}

// Column is one card of a carousel; it has the shape of a Buttons template.
type Column struct {
	ThumbnailImageURL string
	Title             string
	Text              string
	Actions           []Action
}

func (Buttons) TemplateType() string  { return TemplateButtons }
func (Confirm) TemplateType() string  { return TemplateConfirm }
func (Carousel) TemplateType() string { return TemplateCarousel }

func (Buttons) isTemplate()  {}
func (Confirm) isTemplate()  {}
func (Carousel) isTemplate() {}

// Action is a template button behavior.
type Action interface {
	ActionType() string
	isAction()
}

// PostbackAction sends Data back to the bot. When Text is non-empty the
// client also sends Text as a visible message.
type PostbackAction struct {
	Label string
	Data  string
	Text  string
}

// MessageAction sends Text as a message; Label defaults to Text in previews.
type MessageAction struct {
	Label string
	Text  string
}

type URIAction struct {
	Label string
	URI   string
}

func (PostbackAction) ActionType() string { return ActionPostback }
func (MessageAction) ActionType() string  { return ActionMessage }
func (URIAction) ActionType() string      { return ActionURI }

func (PostbackAction) isAction() {}
func (MessageAction) isAction()  {}
func (URIAction) isAction()      {}

// Area is a tappable rectangle on an imagemap, in base-size pixels.
type Area struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImagemapAction is a tappable area of an Imagemap.
type ImagemapAction interface {
	ActionType() string
	Bounds() Area
	isImagemapAction()
}

type ImagemapURIAction struct {
	LinkURI string
	Area    Area
}

type ImagemapMessageAction struct {
	Text string
	Area Area
}

func (ImagemapURIAction) ActionType() string     { return ActionURI }
func (ImagemapMessageAction) ActionType() string { return ActionMessage }

func (a ImagemapURIAction) Bounds() Area     { return a.Area }
func (a ImagemapMessageAction) Bounds() Area { return a.Area }

func (ImagemapURIAction) isImagemapAction()     {}
func (ImagemapMessageAction) isImagemapAction() {}
