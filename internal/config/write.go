package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is the permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteDefault when the target already exists.
var ErrConfigExists = errors.New("config: file already exists")

// configTemplate lists every setting as a commented-out default.
const configTemplate = `# orderdesk configuration
# Uncomment and modify to override defaults.

[api]
# Order service root URL
# base_url = "http://localhost:8000"

# Per-request timeout
# timeout = "60s"

# Retries for idempotent requests (GET/HEAD) on 429, 5xx and network errors
# max_retries = 3

# user_agent = ""

[upload]
# Worksheet submitted with each spreadsheet
# sheet = "Sheet1"

# Default file name when saving a generated PDF
# download_name = "order.pdf"

[records]
# Keep the last fetched order list on disk for 'ls --offline'
# cache = true

# Concurrent renders for 'export'
# export_workers = 4

[logging]
# debug, info, warn, error
# log_level = "warn"

# auto (text on a terminal, JSON otherwise), text, json
# log_format = "auto"
`

// WriteDefault writes the commented default config to path. An existing file
// is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	slog.Info("writing default config file", "path", path)

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it over path. Parent directories are created as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
