package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/orderdesk/internal/tokenfile"
)

const (
	loginPath = "/auth/login"
	mePath    = "/auth/me"
)

// metaSetter is implemented by stores that persist metadata next to the token.
type metaSetter interface {
	SetWithMeta(token string, meta tokenfile.Meta)
}

// Login exchanges username and password for a bearer token using the
// form-encoded password grant, stores it, and returns it. Any non-2xx answer
// is KindUnauthorized carrying the server's message. A failed login leaves the
// existing credential untouched.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", Validation("username and password are required")
	}

	c.logger.Info("login started", slog.String("username", username))

	cfg := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + loginPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	tok, err := cfg.PasswordCredentialsToken(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), username, password)
	if err != nil {
		return "", c.loginError(ctx, err)
	}

	if tok.AccessToken == "" {
		return "", &Error{Kind: KindServer, Message: "token not received"}
	}

	if ms, ok := c.store.(metaSetter); ok {
		ms.SetWithMeta(tok.AccessToken, tokenfile.Meta{Username: username, APIURL: c.baseURL})
	} else {
		c.store.Set(tok.AccessToken)
	}

	c.logger.Info("login successful", slog.String("username", username))

	return tok.AccessToken, nil
}

// loginError maps an oauth2 token-exchange failure onto the taxonomy.
func (c *Client) loginError(ctx context.Context, err error) *Error {
	if ctx.Err() != nil {
		return canceledError(ctx.Err())
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		c.logger.Warn("login rejected", slog.Int("status", re.Response.StatusCode))

		return &Error{
			Kind:       KindUnauthorized,
			StatusCode: re.Response.StatusCode,
			Message:    errorMessage(re.Response.Status, re.Body),
			Body:       re.Body,
			Err:        err,
		}
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return networkError(err)
	}

	// oauth2 reports an unparseable or token-less 2xx body as a plain error.
	return malformedError(http.StatusOK, err)
}

// Logout forgets the current credential. The service has no server-side
// session to end.
func (c *Client) Logout() {
	c.store.Set("")
	c.logger.Info("logged out")
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	p, err := c.Call(ctx, Request{Method: http.MethodGet, Path: mePath})
	if err != nil {
		return nil, err
	}

	var u User
	if err := p.Decode(&u); err != nil {
		return nil, err
	}

	return &u, nil
}
