// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for orderdesk. Values are layered:
// defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	API     APIConfig     `toml:"api"`
	Upload  UploadConfig  `toml:"upload"`
	Records RecordsConfig `toml:"records"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig controls how the order service is reached.
type APIConfig struct {
	BaseURL    string `toml:"base_url"`
	Timeout    string `toml:"timeout"`
	MaxRetries int    `toml:"max_retries"`
	UserAgent  string `toml:"user_agent"`
}

// UploadConfig controls spreadsheet submission.
type UploadConfig struct {
	Sheet        string `toml:"sheet"`
	DownloadName string `toml:"download_name"`
}

// RecordsConfig controls the local order list.
type RecordsConfig struct {
	Cache         bool `toml:"cache"`
	ExportWorkers int  `toml:"export_workers"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from an explicit value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	APIURL     *string // --api-url flag
}

// Resolved is the effective configuration after every layer has been
// applied, plus the file locations derived from it.
type Resolved struct {
	Config

	ConfigPath  string
	TokenPath   string
	CachePath   string
	ArtifactDir string
}

// TimeoutDuration returns the parsed request timeout. Zero if the value does
// not parse; Validate rejects such configs.
func (a APIConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0
	}

	return d
}
