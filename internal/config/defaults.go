package config

// Default values for configuration options. These are layer 0 of the
// override chain and work against a service running on the local machine.
const (
	defaultBaseURL       = "http://localhost:8000"
	defaultTimeout       = "60s"
	defaultMaxRetries    = 3
	defaultSheet         = "Sheet1"
	defaultDownloadName  = "order.pdf"
	defaultExportWorkers = 4
	defaultLogLevel      = "warn"
	defaultLogFormat     = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    defaultBaseURL,
			Timeout:    defaultTimeout,
			MaxRetries: defaultMaxRetries,
		},
		Upload: UploadConfig{
			Sheet:        defaultSheet,
			DownloadName: defaultDownloadName,
		},
		Records: RecordsConfig{
			Cache:         true,
			ExportWorkers: defaultExportWorkers,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
