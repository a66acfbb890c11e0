package domain

import "errors"

// Preview error taxonomy. Hosts never see these as fatal failures: the
// preview service converts each into a short notice page.
var (
	ErrWrongDocumentKind   = errors.New("active document is not JSON")
	ErrNoEnclosingObject   = errors.New("no enclosing JSON object")
	ErrJSONParse           = errors.New("invalid JSON")
	ErrUnknownMessageType  = errors.New("unknown message type")
	ErrUnknownTemplateType = errors.New("unknown template type")
	ErrUnknownActionType   = errors.New("unknown action type")

	// ErrMalformedMessage marks a caller precondition violation, such as a
	// confirm template without exactly two actions or a missing required
	// field.
	ErrMalformedMessage = errors.New("malformed message")
)

// ErrorKind returns a short stable label for err, suitable for metrics and
// logs. It returns "" for nil and "internal" for errors outside the taxonomy.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWrongDocumentKind):
		return "wrong_document_kind"
	case errors.Is(err, ErrNoEnclosingObject):
		return "no_enclosing_object"
	case errors.Is(err, ErrJSONParse):
		return "json_parse"
	case errors.Is(err, ErrUnknownMessageType):
		return "unknown_message_type"
	case errors.Is(err, ErrUnknownTemplateType):
		return "unknown_template_type"
	case errors.Is(err, ErrUnknownActionType):
		return "unknown_action_type"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	default:
		return "internal"
	}
}
