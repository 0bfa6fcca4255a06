// Package api is the session-aware HTTP client for the order service. Every
// call attaches the current credential, classifies the response by content
// type, and turns every failure into a typed *Error. Nothing is thrown past
// the client boundary.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind is the failure taxonomy callers branch on.
type Kind int

// Failure kinds. The zero value is not a valid kind.
const (
	// KindUnauthorized: the server rejected the credential (401). The
	// credential store has already been cleared; redirect to login.
	KindUnauthorized Kind = iota + 1
	// KindServer: any other non-2xx response, or a response the client
	// could not make sense of.
	KindServer
	// KindNetwork: no response received. Transient, safe to retry.
	KindNetwork
	// KindCanceled: the caller canceled the context. Never shown to users.
	KindCanceled
	// KindValidation: a client-side precondition failed before any I/O.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindServer:
		return "server_error"
	case KindNetwork:
		return "network_error"
	case KindCanceled:
		return "canceled"
	case KindValidation:
		return "validation_error"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind. Use errors.Is(err, api.ErrUnauthorized).
var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrServer       = errors.New("api: server error")
	ErrNetwork      = errors.New("api: network error")
	ErrCanceled     = errors.New("api: request canceled")
	ErrValidation   = errors.New("api: validation failed")
)

// Finer status sentinels for KindServer failures.
var (
	ErrBadRequest = errors.New("api: bad request")
	ErrForbidden  = errors.New("api: forbidden")
	ErrNotFound   = errors.New("api: not found")
	ErrConflict   = errors.New("api: conflict")
	ErrThrottled  = errors.New("api: throttled")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNetwork:
		return ErrNetwork
	case KindCanceled:
		return ErrCanceled
	case KindValidation:
		return ErrValidation
	default:
		return ErrServer
	}
}

// Error is the failure side of every call: exactly one Kind, the HTTP status
// when a response was received, a human-readable message, and the raw body.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Body       []byte
	RequestID  string
	Err        error // cause: status sentinel, transport error, or context error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// KindOf returns the Kind of the first *Error in err's chain. Errors that did
// not come from this package report KindServer; nil reports 0.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	return KindServer
}

// IsUnauthorized reports whether err is an authentication rejection.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsCanceled reports whether err is a caller cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// Validation builds a KindValidation error for a precondition that failed
// before any network call.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func canceledError(cause error) *Error {
	return &Error{Kind: KindCanceled, Message: "request canceled", Err: cause}
}

func networkError(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: cause.Error(), Err: cause}
}

// malformedError is the catch-all for responses the client cannot interpret.
func malformedError(status int, cause error) *Error {
	return &Error{Kind: KindServer, StatusCode: status, Message: "malformed response from server", Err: cause}
}

// classifyStatus maps a non-2xx status code to a refinement sentinel.
// Returns nil when no refinement applies.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrBadRequest
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried
// for idempotent requests.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// maxMessageLen caps messages derived from error bodies.
const maxMessageLen = 500

// errorMessage derives a human-readable message from an error response: the
// service's {"detail": ...} field when present, the body text otherwise, and
// the status line for empty bodies.
func errorMessage(status string, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "HTTP " + status
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Detail) > 0 {
		var detail string
		if json.Unmarshal(envelope.Detail, &detail) == nil && detail != "" {
			return detail
		}

		// Validation errors carry a structured detail; show it compacted.
		trimmed = string(envelope.Detail)
	}

	return truncate(trimmed, maxMessageLen)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}
