package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"
)

// PayloadKind is the shape of a successful response body, decided by the
// declared content type, never by the status code.
type PayloadKind int

// Payload kinds.
const (
	PayloadText PayloadKind = iota
	PayloadJSON
	PayloadBinary
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadJSON:
		return "json"
	case PayloadBinary:
		return "binary"
	default:
		return "text"
	}
}

// binaryTypes are the document content types returned as raw bytes.
var binaryTypes = map[string]bool{
	"application/pdf":          true,
	"application/octet-stream": true,
	"application/zip":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
}

// Classify maps a Content-Type header value to a PayloadKind. JSON wins over
// vendor types so "application/vnd.api+json" decodes as JSON.
func Classify(contentType string) PayloadKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	}

	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return PayloadJSON
	case binaryTypes[mediaType],
		strings.HasPrefix(mediaType, "application/vnd."),
		strings.HasPrefix(mediaType, "image/"):
		return PayloadBinary
	default:
		return PayloadText
	}
}

// Payload is the success side of a call: a tagged body.
type Payload struct {
	Kind        PayloadKind
	ContentType string
	StatusCode  int
	Bytes       []byte
}

// Decode unmarshals a JSON payload into v. Any other payload kind, or a JSON
// body that does not fit v, is a KindServer error.
func (p *Payload) Decode(v any) error {
	if p.Kind != PayloadJSON {
		return &Error{
			Kind:       KindServer,
			StatusCode: p.StatusCode,
			Message:    fmt.Sprintf("unexpected %s response, want json", p.Kind),
		}
	}

	if err := json.Unmarshal(p.Bytes, v); err != nil {
		return malformedError(p.StatusCode, err)
	}

	return nil
}

// Binary returns the raw document bytes, or a KindServer error when the
// server answered with something other than a document.
func (p *Payload) Binary() ([]byte, error) {
	if p.Kind != PayloadBinary {
		return nil, &Error{
			Kind:       KindServer,
			StatusCode: p.StatusCode,
			Message:    fmt.Sprintf("unexpected %s response, want a document", p.Kind),
		}
	}

	return p.Bytes, nil
}

// Text returns the body as a string regardless of kind.
func (p *Payload) Text() string {
	return string(p.Bytes)
}
