package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Retry and backoff constants.
const (
	defaultMaxRetries = 3
	baseBackoff       = 500 * time.Millisecond
	maxBackoff        = 30 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25
	defaultUserAgent  = "orderdesk/0.1"
)

// CredentialStore is the slice of the credential store the client needs.
// Defined at the consumer per "accept interfaces, return structs".
type CredentialStore interface {
	Get() (string, bool)
	Set(token string)
}

// Request describes one outbound call.
type Request struct {
	Method      string
	Path        string     // appended to the client's base URL
	Query       url.Values // optional
	Body        io.Reader  // optional
	ContentType string     // defaults to application/json when Body is set
	// Public skips the credential header (requiresAuth=false).
	Public bool
}

// Client is the session-aware HTTP client for the order service. It attaches
// the credential, classifies responses, retries idempotent requests with
// exponential backoff, and clears the credential store on 401.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      CredentialStore
	logger     *slog.Logger
	userAgent  string
	maxRetries int

	// sleepFunc is called to wait between retries. Tests override this to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client. baseURL is the service root, e.g.
// "http://localhost:8000". An empty userAgent uses the default.
func NewClient(
	baseURL string, httpClient *http.Client, store CredentialStore, logger *slog.Logger, userAgent string,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		store:      store,
		logger:     logger,
		userAgent:  userAgent,
		maxRetries: defaultMaxRetries,
		sleepFunc:  timeSleep,
	}
}

// SetMaxRetries sets how many times idempotent requests are retried. Zero
// disables retries.
func (c *Client) SetMaxRetries(n int) {
	if n < 0 {
		n = 0
	}

	c.maxRetries = n
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call performs one logical request and returns its classified payload, or a
// *Error describing exactly one failure kind.
//
// A 401 clears the credential store before returning KindUnauthorized; this is
// the only place the client mutates the store. Cancellation returns
// KindCanceled and leaves the store alone.
func (c *Client) Call(ctx context.Context, req Request) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, canceledError(err)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	retryable := isIdempotent(req.Method) && rewindable(req.Body)

	var attempt int
	for {
		resp, err := c.doOnce(ctx, req, target)
		if err != nil {
			if ctx.Err() != nil {
				c.logCanceled(req)
				return nil, canceledError(ctx.Err())
			}

			if retryable && attempt < c.maxRetries {
				if sleepErr := c.backoffAndRewind(ctx, req, attempt, c.calcBackoff(attempt), 0, err); sleepErr != nil {
					return nil, sleepErr
				}

				attempt++

				continue
			}

			c.logger.Warn("request failed without response",
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.Int("attempts", attempt+1),
				slog.String("error", err.Error()),
			)

			return nil, networkError(err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return c.readPayload(ctx, req, resp)
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = nil
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, c.rejectSession(req, resp, errBody)
		}

		if retryable && isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			if sleepErr := c.backoffAndRewind(ctx, req, attempt, c.retryBackoff(resp, attempt), resp.StatusCode, nil); sleepErr != nil {
				return nil, sleepErr
			}

			attempt++

			continue
		}

		apiErr := &Error{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Status, errBody),
			Body:       errBody,
			RequestID:  resp.Header.Get("X-Request-ID"),
			Err:        classifyStatus(resp.StatusCode),
		}

		c.logger.Warn("request failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempts", attempt+1),
		)

		return nil, apiErr
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, req Request, target string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, req.Body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if !req.Public && c.store != nil {
		if tok, ok := c.store.Get(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	httpReq.Header.Set("User-Agent", c.userAgent)

	if req.Body != nil {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}

		httpReq.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(httpReq)
}

// readPayload drains a 2xx response and classifies it.
func (c *Client) readPayload(ctx context.Context, req Request, resp *http.Response) (*Payload, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			c.logCanceled(req)
			return nil, canceledError(ctx.Err())
		}

		return nil, networkError(fmt.Errorf("reading response body: %w", err))
	}

	contentType := resp.Header.Get("Content-Type")
	p := &Payload{
		Kind:        Classify(contentType),
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
		Bytes:       body,
	}

	if p.Kind == PayloadJSON && !json.Valid(body) {
		c.logger.Warn("response declared JSON but did not parse",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("bytes", len(body)),
		)

		return nil, malformedError(resp.StatusCode, errors.New("invalid JSON body"))
	}

	c.logger.Debug("request succeeded",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.String("payload", p.Kind.String()),
		slog.Int("bytes", len(body)),
	)

	return p, nil
}

// rejectSession handles a 401: clear the credential exactly once and report
// KindUnauthorized.
func (c *Client) rejectSession(req Request, resp *http.Response, body []byte) *Error {
	if c.store != nil {
		c.store.Set("")
	}

	c.logger.Warn("session rejected by server, credential cleared",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)

	return &Error{
		Kind:       KindUnauthorized,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(resp.Status, body),
		Body:       body,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}
}

// backoffAndRewind logs, waits, and rewinds the body before the next attempt.
// Returns a *Error if the wait is canceled or the body cannot be rewound.
func (c *Client) backoffAndRewind(
	ctx context.Context, req Request, attempt int, backoff time.Duration, status int, cause error,
) error {
	attrs := []any{
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("attempt", attempt+1),
		slog.Duration("backoff", backoff),
	}

	if status != 0 {
		attrs = append(attrs, slog.Int("status", status))
	}

	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}

	c.logger.Warn("retrying request", attrs...)

	if err := c.sleepFunc(ctx, backoff); err != nil {
		c.logCanceled(req)
		return canceledError(err)
	}

	if err := rewindBody(req.Body); err != nil {
		return networkError(err)
	}

	return nil
}

func (c *Client) logCanceled(req Request) {
	c.logger.Debug("request canceled",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// rewindable reports whether a body can be replayed on retry.
func rewindable(body io.Reader) bool {
	if body == nil {
		return true
	}

	_, ok := body.(io.Seeker)

	return ok
}

// rewindBody seeks a replayable body back to its start.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	seeker, ok := body.(io.Seeker)
	if !ok {
		return nil
	}

	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding request body: %w", err)
	}

	return nil
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
