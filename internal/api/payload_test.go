package api

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType string
		want        PayloadKind
	}{
		{"application/json", PayloadJSON},
		{"Application/JSON; charset=UTF-8", PayloadJSON},
		{"application/problem+json", PayloadJSON},
		{"application/vnd.api+json", PayloadJSON},
		{"application/pdf", PayloadBinary},
		{"application/octet-stream", PayloadBinary},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", PayloadBinary},
		{"image/png", PayloadBinary},
		{"text/plain; charset=utf-8", PayloadText},
		{"text/html", PayloadText},
		{"", PayloadText},
		{"not a media type;;", PayloadText},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.contentType))
		})
	}
}

func TestPayload_DecodeRejectsNonJSON(t *testing.T) {
	p := &Payload{Kind: PayloadBinary, StatusCode: 200, Bytes: []byte("%PDF")}

	var v map[string]any
	err := p.Decode(&v)
	require.Error(t, err)
	assert.Equal(t, KindServer, KindOf(err))
}

func TestPayload_DecodeShapeMismatch(t *testing.T) {
	p := &Payload{Kind: PayloadJSON, StatusCode: 200, Bytes: []byte(`{"id":"seven"}`)}

	var o Order
	err := p.Decode(&o)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "malformed response from server", apiErr.Message)
}

func TestPayload_BinaryRejectsText(t *testing.T) {
	p := &Payload{Kind: PayloadText, StatusCode: 200, Bytes: []byte("Error: sheet missing")}

	_, err := p.Binary()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, "Error: sheet missing", p.Text())
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "HTTP 500 Internal Server Error", errorMessage("500 Internal Server Error", nil))
	assert.Equal(t, "Incorrect username or password", errorMessage("401 Unauthorized", []byte(`{"detail":"Incorrect username or password"}`)))
	assert.Equal(t, "boom", errorMessage("500 Internal Server Error", []byte("  boom \n")))

	long := make([]byte, 2*maxMessageLen)
	for i := range long {
		long[i] = 'x'
	}

	assert.Len(t, errorMessage("500 Internal Server Error", long), maxMessageLen)
}

func TestErrorMessage_TruncatesOnRuneBoundary(t *testing.T) {
	// "ó" is two bytes; an odd prefix puts one across the cut.
	body := "x" + strings.Repeat("ó", maxMessageLen)

	got := errorMessage("500 Internal Server Error", []byte(body))
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxMessageLen-1)
	assert.True(t, strings.HasPrefix(body, got))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"añb", 2, "a"},
		{"añb", 3, "añ"},
		{"€", 2, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n), "%q[:%d]", tt.in, tt.n)
	}
}

func TestError_Format(t *testing.T) {
	withStatus := &Error{Kind: KindServer, StatusCode: 404, Message: "Order not found", Err: ErrNotFound}
	assert.Equal(t, "api: server_error (HTTP 404): Order not found", withStatus.Error())
	assert.ErrorIs(t, withStatus, ErrNotFound)
	assert.ErrorIs(t, withStatus, ErrServer)

	noStatus := Validation("amount must be positive")
	assert.Equal(t, "api: validation_error: amount must be positive", noStatus.Error())
}
