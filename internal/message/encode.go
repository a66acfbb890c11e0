package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal encodes msg in the messaging API wire format. Parse(Marshal(m))
// yields a message that renders identically to m.
func Marshal(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Text:
		if len(m.Raw) > 0 && json.Valid(m.Raw) {
			var buf bytes.Buffer
			if err := json.Compact(&buf, m.Raw); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{TypeText, m.Text})
	case Sticker:
		return json.Marshal(struct {
			Type      string `json:"type"`
			PackageID string `json:"packageId,omitempty"`
			StickerID string `json:"stickerId"`
		}{TypeSticker, m.PackageID, m.StickerID})
	case Image:
		return json.Marshal(struct {
			Type               string `json:"type"`
			OriginalContentURL string `json:"originalContentUrl,omitempty"`
			PreviewImageURL    string `json:"previewImageUrl"`
		}{TypeImage, m.OriginalContentURL, m.PreviewImageURL})
	case Video:
		return json.Marshal(struct {
			Type               string `json:"type"`
			OriginalContentURL string `json:"originalContentUrl"`
			PreviewImageURL    string `json:"previewImageUrl,omitempty"`
		}{TypeVideo, m.OriginalContentURL, m.PreviewImageURL})
	case TemplateMessage:
		tmpl, err := templateOut(m.Template)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type     string `json:"type"`
			AltText  string `json:"altText,omitempty"`
			Template any    `json:"template"`
		}{TypeTemplate, m.AltText, tmpl})
	case Imagemap:
		actions := make([]any, 0, len(m.Actions))
		for _, a := range m.Actions {
			out, err := imagemapActionOut(a)
			if err != nil {
				return nil, err
			}
			actions = append(actions, out)
		}
		var size *Size
		if m.BaseSize != (Size{}) {
			size = &m.BaseSize
		}
		return json.Marshal(struct {
			Type     string `json:"type"`
			BaseURL  string `json:"baseUrl"`
			AltText  string `json:"altText"`
			BaseSize *Size  `json:"baseSize,omitempty"`
			Actions  []any  `json:"actions"`
		}{TypeImagemap, m.BaseURL, m.AltText, size, actions})
	default:
		return nil, fmt.Errorf("cannot encode message %T", msg)
	}
}

type postbackOut struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Data  string `json:"data"`
	Text  string `json:"text,omitempty"`
}

type messageActionOut struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	Text  string `json:"text"`
}

type uriOut struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	URI   string `json:"uri"`
}

type choiceOut struct {
	Type  string `json:"type,omitempty"`
	Label string `json:"label"`
	Text  string `json:"text"`
	Data  string `json:"data,omitempty"`
	URI   string `json:"uri,omitempty"`
}

type imagemapURIOut struct {
	Type    string `json:"type"`
	LinkURI string `json:"linkUri"`
	Area    Area   `json:"area"`
}

type imagemapMessageOut struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Area Area   `json:"area"`
}

type columnOut struct {
	ThumbnailImageURL string `json:"thumbnailImageUrl,omitempty"`
	Title             string `json:"title,omitempty"`
	Text              string `json:"text"`
	Actions           []any  `json:"actions"`
}

func templateOut(t Template) (any, error) {
	switch tt := t.(type) {
	case Buttons:
		actions, err := actionsOut(tt.Actions)
		if err != nil {
			return nil, err
		}
		return struct {
			Type string `json:"type"`
			columnOut
		}{TemplateButtons, columnOut{tt.ThumbnailImageURL, tt.Title, tt.Text, actions}}, nil
	case Confirm:
		return struct {
			Type    string      `json:"type"`
			Text    string      `json:"text"`
			Actions []choiceOut `json:"actions"`
		}{TemplateConfirm, tt.Text, []choiceOut{choiceOf(tt.Yes), choiceOf(tt.No)}}, nil
	case Carousel:
		columns := make([]columnOut, 0, len(tt.Columns))
		for _, c := range tt.Columns {
			actions, err := actionsOut(c.Actions)
			if err != nil {
				return nil, err
			}
			columns = append(columns, columnOut{c.ThumbnailImageURL, c.Title, c.Text, actions})
		}
		return struct {
			Type    string      `json:"type"`
			Columns []columnOut `json:"columns"`
		}{TemplateCarousel, columns}, nil
	default:
		return nil, fmt.Errorf("cannot encode template %T", t)
	}
}

func actionsOut(actions []Action) ([]any, error) {
	out := make([]any, 0, len(actions))
	for _, a := range actions {
		switch aa := a.(type) {
		case PostbackAction:
			out = append(out, postbackOut{ActionPostback, aa.Label, aa.Data, aa.Text})
		case MessageAction:
			out = append(out, messageActionOut{ActionMessage, aa.Label, aa.Text})
		case URIAction:
			out = append(out, uriOut{ActionURI, aa.Label, aa.URI})
		default:
			return nil, fmt.Errorf("cannot encode action %T", a)
		}
	}
	return out, nil
}

func choiceOf(c Choice) choiceOut {
	return choiceOut{c.Type, c.Label, c.Text, c.Data, c.URI}
}

func imagemapActionOut(a ImagemapAction) (any, error) {
	switch aa := a.(type) {
	case ImagemapURIAction:
		return imagemapURIOut{ActionURI, aa.LinkURI, aa.Area}, nil
	case ImagemapMessageAction:
		return imagemapMessageOut{ActionMessage, aa.Text, aa.Area}, nil
	default:
		return nil, fmt.Errorf("cannot encode imagemap action %T", a)
	}
}
