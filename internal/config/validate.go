package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minTimeout       = 1 * time.Second
	maxRetriesLimit  = 10
	minExportWorkers = 1
	maxExportWorkers = 32
)

// Validate checks all configuration values and returns all errors found.
// Every error is reported, not just the first.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateRecords(&cfg.Records)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	errs = append(errs, validateBaseURL(a.BaseURL)...)
	errs = append(errs, validateDurationMin("api.timeout", a.Timeout, minTimeout)...)

	if a.MaxRetries < 0 || a.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("api.max_retries: must be between 0 and %d, got %d",
			maxRetriesLimit, a.MaxRetries))
	}

	return errs
}

func validateBaseURL(raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("api.base_url: %w", err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("api.base_url: must be an http or https URL, got %q", raw)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("api.base_url: missing host in %q", raw)}
	}

	return nil
}

func validateUpload(u *UploadConfig) []error {
	var errs []error

	if strings.TrimSpace(u.Sheet) == "" {
		errs = append(errs, errors.New("upload.sheet: must not be empty"))
	}

	switch {
	case u.DownloadName == "":
		errs = append(errs, errors.New("upload.download_name: must not be empty"))
	case strings.ContainsAny(u.DownloadName, `/\`):
		errs = append(errs, fmt.Errorf("upload.download_name: must be a file name, got %q", u.DownloadName))
	}

	return errs
}

func validateRecords(r *RecordsConfig) []error {
	if r.ExportWorkers < minExportWorkers || r.ExportWorkers > maxExportWorkers {
		return []error{fmt.Errorf("records.export_workers: must be between %d and %d, got %d",
			minExportWorkers, maxExportWorkers, r.ExportWorkers)}
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
