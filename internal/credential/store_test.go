package credential

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/orderdesk/internal/tokenfile"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore("")

	tok, ok := s.Get()
	assert.False(t, ok)
	assert.Empty(t, tok)

	s.Set("abc")
	tok, ok = s.Get()
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	s.Set("")
	_, ok = s.Get()
	assert.False(t, ok)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore("seed")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)

		go func() {
			defer wg.Done()
			s.Set(string(rune('a' + i)))
		}()

		go func() {
			defer wg.Done()
			_, _ = s.Get()
		}()
	}

	wg.Wait()

	_, ok := s.Get()
	assert.True(t, ok)
}

func TestFileStore_NoFileIsUnauthenticated(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "token.json"), nil)

	_, ok := s.Get()
	assert.False(t, ok)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	first := NewFileStore(path, nil)
	first.SetWithMeta("tok-1", tokenfile.Meta{Username: "alice"})

	second := NewFileStore(path, nil)
	tok, ok := second.Get()
	require.True(t, ok)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, "alice", second.Meta().Username)
}

func TestFileStore_SetKeepsMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	s := NewFileStore(path, nil)
	s.SetWithMeta("tok-1", tokenfile.Meta{Username: "alice"})
	s.Set("tok-2")

	tok, meta, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.AccessToken)
	assert.Equal(t, "alice", meta.Username)
}

func TestFileStore_ClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	s := NewFileStore(path, nil)
	s.Set("tok-1")
	require.FileExists(t, path)

	s.Set("")

	_, ok := s.Get()
	assert.False(t, ok)
	assert.NoFileExists(t, path)
	assert.Empty(t, s.Meta())

	// Clearing again is harmless.
	s.Set("")
	assert.NoFileExists(t, path)
}

func TestFileStore_CorruptFileIsUnauthenticated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))

	s := NewFileStore(path, nil)
	_, ok := s.Get()
	assert.False(t, ok)
}

func TestFileStore_LoadsExistingTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: "saved", TokenType: "bearer"}, tokenfile.Meta{}))

	s := NewFileStore(path, nil)
	tok, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, "saved", tok)
}

func TestFileStore_SetSurvivesUnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	// The token directory is a regular file, so persistence fails.
	s := NewFileStore(filepath.Join(blocker, "token.json"), nil)
	s.Set("in-memory")

	tok, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "in-memory", tok)
}

func TestParseClaims(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	c, err := ParseClaims(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Subject)
	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.False(t, c.Expired(exp.Add(-time.Minute)))
	assert.True(t, c.Expired(exp.Add(time.Minute)))
}

func TestParseClaims_OpaqueToken(t *testing.T) {
	_, err := ParseClaims("not-a-jwt")
	assert.ErrorIs(t, err, ErrNotJWT)
}

func TestClaims_NoExpiryNeverExpires(t *testing.T) {
	assert.False(t, Claims{Subject: "bob"}.Expired(time.Now()))
}
