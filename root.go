package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/orderdesk/internal/api"
	"github.com/tonimelisma/orderdesk/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes.
const (
	exitFailure  = 1
	exitCanceled = 130
)

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	APIURL     string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is what every subcommand runs with: resolved config, logger,
// and output streams. Built once in the root pre-run.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored by the root pre-run.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cli context missing: command run outside the root command")
	}

	return cc
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "orderdesk",
		Short:   "Order service client",
		Long:    "Upload order spreadsheets, preview the generated PDFs, and manage orders.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.APIURL, "api-url", "", "order service base URL")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newEditCmd())
	cmd.AddCommand(newDiscountCmd())
	cmd.AddCommand(newPayCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newPDFCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves the effective configuration (.env, file, env, flags)
// and builds the logger.
func loadCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	if err := config.LoadDotEnv(config.DotEnvFile); err != nil {
		return nil, err
	}

	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}
	if cmd.Flags().Changed("api-url") {
		cli.APIURL = &flags.APIURL
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(nil), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(cmd.ErrOrStderr(), resolved, flags)
	slog.SetDefault(logger)

	logger.Debug("config resolved",
		slog.String("config", resolved.ConfigPath),
		slog.String("api_url", resolved.API.BaseURL),
	)

	return &CLIContext{
		Flags:  flags,
		Cfg:    resolved,
		Logger: logger,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}, nil
}

// buildLogger creates a logger from the resolved config and CLI flags. The
// config level is the baseline; --verbose and --quiet override it. Format
// "auto" writes text to a terminal and JSON otherwise.
func buildLogger(w io.Writer, cfg *config.Resolved, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is a terminal file.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newHTTPClient returns an HTTP client bounded by the configured timeout.
func (cc *CLIContext) newHTTPClient() *http.Client {
	return &http.Client{Timeout: cc.Cfg.API.TimeoutDuration()}
}

// reportError prints err for the user and returns the process exit code. A
// canceled operation prints nothing.
func reportError(w io.Writer, err error) int {
	switch {
	case api.IsCanceled(err) || errors.Is(err, context.Canceled):
		return exitCanceled
	case api.IsUnauthorized(err):
		fmt.Fprintf(w, "Error: %v\nSession expired, run 'orderdesk login'.\n", err)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}

	return exitFailure
}
