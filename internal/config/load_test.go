package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a debug-level logger so config debug output shows up in
// verbose test runs.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[api]
base_url = "https://orders.example.com"
timeout = "15s"
max_retries = 1
user_agent = "desk/2"

[upload]
sheet = "Hoja1"
download_name = "pedido.pdf"

[records]
cache = false
export_workers = 8

[logging]
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://orders.example.com", cfg.API.BaseURL)
	assert.Equal(t, "15s", cfg.API.Timeout)
	assert.Equal(t, 15*time.Second, cfg.API.TimeoutDuration())
	assert.Equal(t, 1, cfg.API.MaxRetries)
	assert.Equal(t, "desk/2", cfg.API.UserAgent)
	assert.Equal(t, "Hoja1", cfg.Upload.Sheet)
	assert.Equal(t, "pedido.pdf", cfg.Upload.DownloadName)
	assert.False(t, cfg.Records.Cache)
	assert.Equal(t, 8, cfg.Records.ExportWorkers)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[upload]\nsheet = \"Orders\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, "Orders", cfg.Upload.Sheet)
	assert.Equal(t, def.Upload.DownloadName, cfg.Upload.DownloadName)
	assert.Equal(t, def.API, cfg.API)
	assert.Equal(t, def.Records, cfg.Records)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[api\nbase_url = ")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeTestConfig(t, "[records]\nexport_workers = 0\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "records.export_workers")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Layering(t *testing.T) {
	path := writeTestConfig(t, "[api]\nbase_url = \"http://file.example\"\n")

	tests := []struct {
		name string
		env  EnvOverrides
		cli  CLIOverrides
		want string
	}{
		{"file", EnvOverrides{}, CLIOverrides{ConfigPath: path}, "http://file.example"},
		{"env beats file", EnvOverrides{APIURL: "http://env.example/"}, CLIOverrides{ConfigPath: path}, "http://env.example"},
		{
			"cli beats env",
			EnvOverrides{APIURL: "http://env.example"},
			CLIOverrides{ConfigPath: path, APIURL: ptr("http://cli.example")},
			"http://cli.example",
		},
		{"env config path", EnvOverrides{ConfigPath: path}, CLIOverrides{}, "http://file.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Resolve(tt.env, tt.cli)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.API.BaseURL)
			assert.Equal(t, path, r.ConfigPath)
		})
	}
}

func TestResolve_TokenPathOverride(t *testing.T) {
	path := writeTestConfig(t, "")

	r, err := Resolve(EnvOverrides{TokenPath: "/tmp/tok.json"}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tok.json", r.TokenPath)
	assert.NotEmpty(t, r.CachePath)
	assert.NotEmpty(t, r.ArtifactDir)
}

func TestResolve_BadOverrideRejected(t *testing.T) {
	path := writeTestConfig(t, "")

	_, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path, APIURL: ptr("ftp://x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url")
}

func ptr[T any](v T) *T { return &v }
