// Package credential holds the current session credential: the bearer token
// issued by the order service at login. A Store has a narrow get/set contract
// so the request client, the login flow, and tests can share one instance
// without ambient globals.
package credential

import (
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/orderdesk/internal/tokenfile"
)

// tokenType is the token type the order service issues.
const tokenType = "bearer"

// Store holds at most one credential. The empty string means unauthenticated.
// Set never fails; a store that cannot persist still changes the value seen by
// Get within the process.
type Store interface {
	Get() (string, bool)
	Set(token string)
}

// MemoryStore is a Store with no durable backing. Used in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a MemoryStore seeded with token (may be empty).
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

// Get returns the current token and whether one is present.
func (s *MemoryStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token, s.token != ""
}

// Set replaces the current token. Empty clears it.
func (s *MemoryStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
}

// FileStore is a Store persisted to a token file so the session survives
// process restarts. The in-memory copy is authoritative for Get; the file is
// written through on every Set.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	token  string
	meta   tokenfile.Meta
	logger *slog.Logger
}

// NewFileStore loads the token file at path (if any) and returns a FileStore.
// A missing or unreadable token file yields an unauthenticated store; a
// corrupt file is logged, never fatal.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{path: path, logger: logger}

	tok, meta, err := tokenfile.Load(path)
	if err != nil {
		logger.Warn("ignoring unreadable token file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return s
	}

	if tok != nil {
		s.token = tok.AccessToken
		s.meta = meta
	}

	logger.Debug("credential store loaded",
		slog.String("path", path),
		slog.Bool("authenticated", s.token != ""),
	)

	return s
}

// Path returns the token file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the current token and whether one is present.
func (s *FileStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token, s.token != ""
}

// Meta returns what was recorded about the session at login.
func (s *FileStore) Meta() tokenfile.Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.meta
}

// Set replaces the token and writes it through to disk, keeping the session
// metadata. Empty removes the token file along with its metadata.
func (s *FileStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(token, s.meta)
}

// SetWithMeta is Set for a new login: meta replaces the stored metadata.
func (s *FileStore) SetWithMeta(token string, meta tokenfile.Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(token, meta)
}

// set persists token and meta. Caller holds mu.
func (s *FileStore) set(token string, meta tokenfile.Meta) {
	s.token = token

	if token == "" {
		s.meta = tokenfile.Meta{}

		if err := tokenfile.Remove(s.path); err != nil {
			s.logger.Warn("failed to remove token file",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	s.meta = meta

	tok := &oauth2.Token{AccessToken: token, TokenType: tokenType}
	if err := tokenfile.Save(s.path, tok, s.meta); err != nil {
		s.logger.Warn("failed to persist token",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}
}
