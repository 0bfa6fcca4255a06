package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testHome = "/home/testuser"

func TestDefaultDirs_ContainAppName(t *testing.T) {
	for name, fn := range map[string]func() string{
		"config": DefaultConfigDir,
		"data":   DefaultDataDir,
		"cache":  DefaultCacheDir,
	} {
		dir := fn()
		assert.NotEmpty(t, dir, name)
		assert.True(t, strings.Contains(dir, appName), name)
	}
}

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultConfigPath(), "config.toml"))
}

func TestDirKind_Resolve(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CACHE_HOME", "/custom/cache")

	tests := []struct {
		name string
		kind dirKind
		goos string
		want string
	}{
		{"linux config xdg", configKind, platformLinux, "/custom/config/orderdesk"},
		{"linux data fallback", dataKind, platformLinux, filepath.Join(testHome, ".local", "share", appName)},
		{"linux cache xdg", cacheKind, platformLinux, "/custom/cache/orderdesk"},
		{"darwin config", configKind, platformDarwin, filepath.Join(testHome, "Library", "Application Support", appName)},
		{"darwin data", dataKind, platformDarwin, filepath.Join(testHome, "Library", "Application Support", appName)},
		{"darwin ignores xdg", cacheKind, platformDarwin, filepath.Join(testHome, "Library", "Caches", appName)},
		{"other platform", configKind, "freebsd", filepath.Join(testHome, ".config", appName)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.resolve(tt.goos, testHome))
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG layout is Linux-only")
	}

	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_CACHE_HOME", "/xdg/cache")

	assert.Equal(t, "/xdg/data/orderdesk/token.json", DefaultTokenPath())
	assert.Equal(t, "/xdg/data/orderdesk/records.db", DefaultCachePath())
	assert.Equal(t, "/xdg/cache/orderdesk/artifacts", DefaultArtifactDir())
}

func TestInDir_EmptyDir(t *testing.T) {
	assert.Empty(t, inDir("", "token.json"))
}
