package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w. Backs the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	ew.printf("[api]\n")
	ew.printf("  base_url    = %q\n", r.API.BaseURL)
	ew.printf("  timeout     = %q\n", r.API.Timeout)
	ew.printf("  max_retries = %d\n", r.API.MaxRetries)

	if r.API.UserAgent != "" {
		ew.printf("  user_agent  = %q\n", r.API.UserAgent)
	}

	ew.printf("\n[upload]\n")
	ew.printf("  sheet         = %q\n", r.Upload.Sheet)
	ew.printf("  download_name = %q\n", r.Upload.DownloadName)

	ew.printf("\n[records]\n")
	ew.printf("  cache          = %t\n", r.Records.Cache)
	ew.printf("  export_workers = %d\n", r.Records.ExportWorkers)

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)

	ew.printf("\n# Paths\n")
	ew.printf("#   token     = %s\n", r.TokenPath)
	ew.printf("#   cache     = %s\n", r.CachePath)
	ew.printf("#   artifacts = %s\n", r.ArtifactDir)

	return ew.err
}

// errWriter wraps an io.Writer and keeps the first write error. Later writes
// are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
