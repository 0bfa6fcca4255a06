// Package tokenfile is the on-disk form of a session: the bearer token the
// order service issued at login plus who logged in and against which service.
// credential/ and api/ share it so neither knows the file layout.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// formatVersion is written into every file. Files from a newer format are
// refused rather than half-read.
const formatVersion = 1

// ErrNoToken is wrapped by Load when the file exists but holds no usable
// token. The user has to log in again.
var ErrNoToken = errors.New("tokenfile: no usable token")

// Meta is what the session remembers besides the token itself.
type Meta struct {
	Username string `json:"username,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

type file struct {
	Version int           `json:"version"`
	Token   *oauth2.Token `json:"token"`
	Meta    Meta          `json:"meta"`
}

// Load reads the session at path. A missing file is (nil, Meta{}, nil).
func Load(path string) (*oauth2.Token, Meta, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Meta{}, nil
	}

	if err != nil {
		return nil, Meta{}, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, Meta{}, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if f.Version > formatVersion {
		return nil, Meta{}, fmt.Errorf("tokenfile: %s has format version %d, newer than %d", path, f.Version, formatVersion)
	}

	if f.Token == nil || f.Token.AccessToken == "" {
		return nil, Meta{}, fmt.Errorf("%w in %s", ErrNoToken, path)
	}

	return f.Token, f.Meta, nil
}

// Save replaces the session at path. The file never exists with other than
// FilePerms and is never seen half-written. Token values are not logged.
func Save(path string, tok *oauth2.Token, meta Meta) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w to save", ErrNoToken)
	}

	data, err := json.MarshalIndent(file{Version: formatVersion, Token: tok, Meta: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("tokenfile: saving %s: %w", path, err)
	}

	return nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(FilePerms); err != nil {
		return err
	}

	if _, err = tmp.Write(data); err != nil {
		return err
	}

	if err = tmp.Sync(); err != nil {
		return err
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// Remove deletes the session. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
