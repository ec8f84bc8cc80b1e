// ABOUTME: Response is the tagged result of a generation call
// ABOUTME: Either plain text or a structured object exposing a text field
package llm

import (
	"encoding/json"
	"strings"
)

// ResponseKind tags which shape a Response carries
type ResponseKind int

const (
	KindText ResponseKind = iota
	KindStructured
)

func (k ResponseKind) String() string {
	if k == KindStructured {
		return "structured"
	}
	return "text"
}

// Response holds either text or a decoded JSON object
type Response struct {
	kind   ResponseKind
	text   string
	fields map[string]any
}

// TextResponse wraps plain text
func TextResponse(text string) Response {
	return Response{kind: KindText, text: text}
}

// StructuredResponse wraps a decoded JSON object
func StructuredResponse(fields map[string]any) Response {
	return Response{kind: KindStructured, fields: fields}
}

// ParseResponse returns a structured response when raw is a JSON object and a text response otherwise
func ParseResponse(raw string) Response {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var fields map[string]any
		if err := json.Unmarshal([]byte(trimmed), &fields); err == nil {
			return StructuredResponse(fields)
		}
	}
	return TextResponse(raw)
}

// Kind reports the shape of the response
func (r Response) Kind() ResponseKind {
	return r.kind
}

// Fields returns the structured payload, nil for text responses
func (r Response) Fields() map[string]any {
	return r.fields
}

// Text normalizes either shape into text. A structured response yields its
// "content" or "text" field, falling back to the JSON encoding of the object.
func (r Response) Text() string {
	if r.kind == KindText {
		return r.text
	}
	for _, key := range []string{"content", "text"} {
		if s, ok := r.fields[key].(string); ok {
			return s
		}
	}
	raw, err := json.Marshal(r.fields)
	if err != nil {
		return ""
	}
	return string(raw)
}
