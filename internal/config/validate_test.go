package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.API.BaseURL = "ftp://orders" }, "api.base_url"},
		{"no host", func(c *Config) { c.API.BaseURL = "http://" }, "api.base_url"},
		{"bad timeout", func(c *Config) { c.API.Timeout = "forever" }, "api.timeout"},
		{"short timeout", func(c *Config) { c.API.Timeout = "10ms" }, "api.timeout"},
		{"negative retries", func(c *Config) { c.API.MaxRetries = -1 }, "api.max_retries"},
		{"too many retries", func(c *Config) { c.API.MaxRetries = 11 }, "api.max_retries"},
		{"blank sheet", func(c *Config) { c.Upload.Sheet = "  " }, "upload.sheet"},
		{"empty download name", func(c *Config) { c.Upload.DownloadName = "" }, "upload.download_name"},
		{"download name with dir", func(c *Config) { c.Upload.DownloadName = "out/order.pdf" }, "upload.download_name"},
		{"zero workers", func(c *Config) { c.Records.ExportWorkers = 0 }, "records.export_workers"},
		{"too many workers", func(c *Config) { c.Records.ExportWorkers = 33 }, "records.export_workers"},
		{"log level", func(c *Config) { c.Logging.LogLevel = "trace" }, "logging.log_level"},
		{"log format", func(c *Config) { c.Logging.LogFormat = "xml" }, "logging.log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.MaxRetries = -1
	cfg.Records.ExportWorkers = 0
	cfg.Logging.LogLevel = "loud"

	err := Validate(cfg)
	require.Error(t, err)

	lines := strings.Split(err.Error(), "\n")
	assert.Len(t, lines, 3)
}

func TestValidate_Boundaries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.MaxRetries = 0
	cfg.API.Timeout = "1s"
	cfg.Records.ExportWorkers = 32
	cfg.API.BaseURL = "https://orders.example.com/api"

	assert.NoError(t, Validate(cfg))
}
