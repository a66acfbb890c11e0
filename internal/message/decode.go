package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"linepreview/internal/domain"
)

// scalar is a JSON string field that also accepts numbers and booleans, kept
// in their JSON spelling ({"stickerId": 1} previews as "1"). It records
// whether the key was present with a non-null value.
type scalar struct {
	set   bool
	value string
}

func (s *scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch data[0] {
	case '"':
		if err := json.Unmarshal(data, &s.value); err != nil {
			return err
		}
	case '{', '[':
		return fmt.Errorf("expected a string, got %s", kindOfJSON(data))
	default:
		s.value = string(data)
	}
	s.set = true
	return nil
}

func kindOfJSON(data []byte) string {
	if len(data) > 0 && data[0] == '[' {
		return "an array"
	}
	return "an object"
}

type wireHead struct {
	Type scalar `json:"type"`
}

type wireText struct {
	Text scalar `json:"text"`
}

type wireSticker struct {
	PackageID scalar `json:"packageId"`
	StickerID scalar `json:"stickerId"`
}

type wireMedia struct {
	OriginalContentURL scalar `json:"originalContentUrl"`
	PreviewImageURL    scalar `json:"previewImageUrl"`
}

type wireTemplateMessage struct {
	AltText  scalar          `json:"altText"`
	Template json.RawMessage `json:"template"`
}

type wireImagemap struct {
	BaseURL  scalar            `json:"baseUrl"`
	AltText  scalar            `json:"altText"`
	BaseSize Size              `json:"baseSize"`
	Actions  []json.RawMessage `json:"actions"`
}

type wireTemplate struct {
	Type              scalar            `json:"type"`
	ThumbnailImageURL scalar            `json:"thumbnailImageUrl"`
	Title             scalar            `json:"title"`
	Text              scalar            `json:"text"`
	Actions           []json.RawMessage `json:"actions"`
	Columns           []json.RawMessage `json:"columns"`
}

type wireAction struct {
	Type    scalar    `json:"type"`
	Label   scalar    `json:"label"`
	Data    scalar    `json:"data"`
	Text    scalar    `json:"text"`
	URI     scalar    `json:"uri"`
	LinkURI scalar    `json:"linkUri"`
	Area    *wireArea `json:"area"`
}

// wireArea tracks which coordinates were present; a zero coordinate is
// valid but a missing one is not.
type wireArea struct {
	X      *int `json:"x"`
	Y      *int `json:"y"`
	Width  *int `json:"width"`
	Height *int `json:"height"`
}

func (w *wireArea) area(what string) (Area, error) {
	if w == nil {
		return Area{}, fmt.Errorf("%w: %s missing \"area\"", domain.ErrMalformedMessage, what)
	}
	for _, f := range []struct {
		key string
		v   *int
	}{{"x", w.X}, {"y", w.Y}, {"width", w.Width}, {"height", w.Height}} {
		if f.v == nil {
			return Area{}, fmt.Errorf("%w: %s area missing %q", domain.ErrMalformedMessage, what, f.key)
		}
	}
	return Area{X: *w.X, Y: *w.Y, Width: *w.Width, Height: *w.Height}, nil
}

// Parse decodes a single message object. Errors wrap the domain taxonomy:
// ErrJSONParse for invalid JSON, ErrUnknownMessageType/ErrUnknownTemplateType/
// ErrUnknownActionType for missing or unrecognised discriminants and
// ErrMalformedMessage for missing required fields.
func Parse(data []byte) (Message, error) {
	data = bytes.TrimSpace(data)
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrJSONParse, err)
	}
	if _, ok := top.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: top-level value is not an object", domain.ErrUnknownMessageType)
	}

	var head wireHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, malformed("message", err)
	}
	if !head.Type.set {
		return nil, fmt.Errorf("%w: missing \"type\"", domain.ErrUnknownMessageType)
	}

	switch head.Type.value {
	case TypeText:
		var w wireText
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed("text message", err)
		}
		if err := require("text message", "text", w.Text); err != nil {
			return nil, err
		}
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Text{Text: w.Text.value, Raw: raw}, nil
	case TypeSticker:
		var w wireSticker
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed("sticker message", err)
		}
		if err := require("sticker message", "stickerId", w.StickerID); err != nil {
			return nil, err
		}
		return Sticker{PackageID: w.PackageID.value, StickerID: w.StickerID.value}, nil
	case TypeImage:
		var w wireMedia
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed("image message", err)
		}
		if err := require("image message", "previewImageUrl", w.PreviewImageURL); err != nil {
			return nil, err
		}
		return Image{OriginalContentURL: w.OriginalContentURL.value, PreviewImageURL: w.PreviewImageURL.value}, nil
	case TypeVideo:
		var w wireMedia
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed("video message", err)
		}
		if err := require("video message", "originalContentUrl", w.OriginalContentURL); err != nil {
			return nil, err
		}
		return Video{OriginalContentURL: w.OriginalContentURL.value, PreviewImageURL: w.PreviewImageURL.value}, nil
	case TypeTemplate:
		var w wireTemplateMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed("template message", err)
		}
		if len(w.Template) == 0 || string(w.Template) == "null" {
			return nil, fmt.Errorf("%w: template message missing \"template\"", domain.ErrMalformedMessage)
		}
		tmpl, err := parseTemplate(w.Template)
		if err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
		return TemplateMessage{AltText: w.AltText.value, Template: tmpl}, nil
	case TypeImagemap:
		var w wireImagemap
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed("imagemap message", err)
		}
		if err := require("imagemap message", "baseUrl", w.BaseURL); err != nil {
			return nil, err
		}
		if err := require("imagemap message", "altText", w.AltText); err != nil {
			return nil, err
		}
		if w.Actions == nil {
			return nil, fmt.Errorf("%w: imagemap message missing \"actions\"", domain.ErrMalformedMessage)
		}
		actions := make([]ImagemapAction, 0, len(w.Actions))
		for i, raw := range w.Actions {
			a, err := parseImagemapAction(raw)
			if err != nil {
				return nil, fmt.Errorf("actions[%d]: %w", i, err)
			}
			actions = append(actions, a)
		}
		return Imagemap{
			BaseURL:  w.BaseURL.value,
			AltText:  w.AltText.value,
			BaseSize: w.BaseSize,
			Actions:  actions,
		}, nil
	default:
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownMessageType, head.Type.value)
	}
}

// ParseString is Parse for a string snippet.
func ParseString(s string) (Message, error) {
	return Parse([]byte(s))
}

func parseTemplate(data json.RawMessage) (Template, error) {
	var w wireTemplate
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed("template", err)
	}
	if !w.Type.set {
		return nil, fmt.Errorf("%w: missing \"type\"", domain.ErrUnknownTemplateType)
	}

	switch w.Type.value {
	case TemplateButtons:
		if err := require("buttons template", "text", w.Text); err != nil {
			return nil, err
		}
		actions, err := parseActions("buttons template", w.Actions)
		if err != nil {
			return nil, err
		}
		return Buttons{
			ThumbnailImageURL: w.ThumbnailImageURL.value,
			Title:             w.Title.value,
			Text:              w.Text.value,
			Actions:           actions,
		}, nil
	case TemplateConfirm:
		if err := require("confirm template", "text", w.Text); err != nil {
			return nil, err
		}
		if len(w.Actions) != 2 {
			return nil, fmt.Errorf("%w: confirm template needs exactly 2 actions, got %d", domain.ErrMalformedMessage, len(w.Actions))
		}
		yes, err := parseChoice(w.Actions[0])
		if err != nil {
			return nil, fmt.Errorf("actions[0]: %w", err)
		}
		no, err := parseChoice(w.Actions[1])
		if err != nil {
			return nil, fmt.Errorf("actions[1]: %w", err)
		}
		return Confirm{Text: w.Text.value, Yes: yes, No: no}, nil
	case TemplateCarousel:
		if w.Columns == nil {
			return nil, fmt.Errorf("%w: carousel template missing \"columns\"", domain.ErrMalformedMessage)
		}
		columns := make([]Column, 0, len(w.Columns))
		for i, raw := range w.Columns {
			col, err := parseColumn(raw)
			if err != nil {
				return nil, fmt.Errorf("columns[%d]: %w", i, err)
			}
			columns = append(columns, col)
		}
		return Carousel{Columns: columns}, nil
	default:
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownTemplateType, w.Type.value)
	}
}

func parseColumn(data json.RawMessage) (Column, error) {
	var w wireTemplate
	if err := json.Unmarshal(data, &w); err != nil {
		return Column{}, malformed("column", err)
	}
	if err := require("carousel column", "text", w.Text); err != nil {
		return Column{}, err
	}
	actions, err := parseActions("carousel column", w.Actions)
	if err != nil {
		return Column{}, err
	}
	return Column{
		ThumbnailImageURL: w.ThumbnailImageURL.value,
		Title:             w.Title.value,
		Text:              w.Text.value,
		Actions:           actions,
	}, nil
}

// parseActions decodes the actions of what. The key must be present; an
// empty list is allowed.
func parseActions(what string, raws []json.RawMessage) ([]Action, error) {
	if raws == nil {
		return nil, fmt.Errorf("%w: %s missing \"actions\"", domain.ErrMalformedMessage, what)
	}
	actions := make([]Action, 0, len(raws))
	for i, raw := range raws {
		a, err := parseAction(raw)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func parseAction(data json.RawMessage) (Action, error) {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed("action", err)
	}
	if !w.Type.set {
		return nil, fmt.Errorf("%w: missing \"type\"", domain.ErrUnknownActionType)
	}

	switch w.Type.value {
	case ActionPostback:
		if err := require("postback action", "data", w.Data); err != nil {
			return nil, err
		}
		if err := require("postback action", "label", w.Label); err != nil {
			return nil, err
		}
		return PostbackAction{Label: w.Label.value, Data: w.Data.value, Text: w.Text.value}, nil
	case ActionMessage:
		if err := require("message action", "text", w.Text); err != nil {
			return nil, err
		}
		return MessageAction{Label: w.Label.value, Text: w.Text.value}, nil
	case ActionURI:
		if err := require("uri action", "uri", w.URI); err != nil {
			return nil, err
		}
		if err := require("uri action", "label", w.Label); err != nil {
			return nil, err
		}
		return URIAction{Label: w.Label.value, URI: w.URI.value}, nil
	default:
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownActionType, w.Type.value)
	}
}

// parseChoice reads a confirm action. Tapping either choice sends its text
// as a message, so label and text are required; the action type is recorded
// but not interpreted.
func parseChoice(data json.RawMessage) (Choice, error) {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return Choice{}, malformed("confirm action", err)
	}
	if err := require("confirm action", "label", w.Label); err != nil {
		return Choice{}, err
	}
	if err := require("confirm action", "text", w.Text); err != nil {
		return Choice{}, err
	}
	return Choice{
		Type:  w.Type.value,
		Label: w.Label.value,
		Text:  w.Text.value,
		Data:  w.Data.value,
		URI:   w.URI.value,
	}, nil
}

func parseImagemapAction(data json.RawMessage) (ImagemapAction, error) {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed("imagemap action", err)
	}
	if !w.Type.set {
		return nil, fmt.Errorf("%w: missing \"type\"", domain.ErrUnknownActionType)
	}

	switch w.Type.value {
	case ActionURI:
		if err := require("imagemap uri action", "linkUri", w.LinkURI); err != nil {
			return nil, err
		}
		area, err := w.Area.area("imagemap uri action")
		if err != nil {
			return nil, err
		}
		return ImagemapURIAction{LinkURI: w.LinkURI.value, Area: area}, nil
	case ActionMessage:
		if err := require("imagemap message action", "text", w.Text); err != nil {
			return nil, err
		}
		area, err := w.Area.area("imagemap message action")
		if err != nil {
			return nil, err
		}
		return ImagemapMessageAction{Text: w.Text.value, Area: area}, nil
	default:
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownActionType, w.Type.value)
	}
}

func require(what, key string, s scalar) error {
	if !s.set {
		return fmt.Errorf("%w: %s missing %q", domain.ErrMalformedMessage, what, key)
	}
	return nil
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrMalformedMessage, what, err)
}
