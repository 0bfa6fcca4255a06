package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

const appName = "orderdesk"

// File names inside the platform directories.
const (
	configFileName = "config.toml"
	tokenFileName  = "token.json"
	cacheFileName  = "records.db"
	artifactsDir   = "artifacts"
)

// dirKind describes one class of per-user directory: the XDG variable that
// overrides it on Linux, the fallback under $HOME, and the macOS location.
type dirKind struct {
	xdgVar   string
	fallback []string
	darwin   []string
}

var (
	configKind = dirKind{"XDG_CONFIG_HOME", []string{".config"}, []string{"Library", "Application Support"}}
	dataKind   = dirKind{"XDG_DATA_HOME", []string{".local", "share"}, []string{"Library", "Application Support"}}
	cacheKind  = dirKind{"XDG_CACHE_HOME", []string{".cache"}, []string{"Library", "Caches"}}
)

// resolve returns the orderdesk directory of this kind for goos and home.
func (k dirKind) resolve(goos, home string) string {
	switch goos {
	case platformLinux:
		if xdg := os.Getenv(k.xdgVar); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	case platformDarwin:
		return filepath.Join(append(append([]string{home}, k.darwin...), appName)...)
	}

	return filepath.Join(append(append([]string{home}, k.fallback...), appName)...)
}

func (k dirKind) dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return k.resolve(runtime.GOOS, home)
}

// DefaultConfigDir returns the directory holding config.toml. On Linux it
// honors XDG_CONFIG_HOME.
func DefaultConfigDir() string { return configKind.dir() }

// DefaultDataDir returns the directory for the token file and the order
// cache. On macOS config and data share one directory.
func DefaultDataDir() string { return dataKind.dir() }

// DefaultCacheDir returns the directory for disposable files.
func DefaultCacheDir() string { return cacheKind.dir() }

// DefaultConfigPath is used when neither ORDERDESK_CONFIG nor --config is set.
func DefaultConfigPath() string {
	return inDir(DefaultConfigDir(), configFileName)
}

// DefaultTokenPath returns where the session token is persisted.
func DefaultTokenPath() string {
	return inDir(DefaultDataDir(), tokenFileName)
}

// DefaultCachePath returns the path of the local order cache database.
func DefaultCachePath() string {
	return inDir(DefaultDataDir(), cacheFileName)
}

// DefaultArtifactDir returns the parent directory for per-session artifact
// directories. Its contents are disposable.
func DefaultArtifactDir() string {
	return inDir(DefaultCacheDir(), artifactsDir)
}

func inDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
