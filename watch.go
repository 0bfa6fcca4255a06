package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/orderdesk/internal/api"
)

// watchSettle is how long a spreadsheet must go without writes before it is
// submitted. Editors and copies write in several bursts.
const watchSettle = 750 * time.Millisecond

// watchLockName is the lock file, in the data directory, that keeps two
// watchers from submitting the same folder.
const watchLockName = "watch.pid"

// fsWatcher is the subset of fsnotify.Watcher the watch loop uses.
type fsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct{ w *fsnotify.Watcher }

func (f fsnotifyWatcher) Add(name string) error { return f.w.Add(name) }
func (f fsnotifyWatcher) Close() error { return f.w.Close() }
func (f fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWatcher) Errors() <-chan error { return f.w.Errors }

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload every spreadsheet dropped into a folder",
		Long: `Watch a folder and upload each spreadsheet that appears or changes in it.
The generated PDF is saved next to the spreadsheet, or into --out-dir.
Stops when the session expires or on Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().String("sheet", "", "worksheet to read (default from config)")
	cmd.Flags().String("out-dir", "", "directory for generated PDFs (default: the watched folder)")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()
	dir := args[0]

	sheet, _ := cmd.Flags().GetString("sheet")
	outDir, _ := cmd.Flags().GetString("out-dir")

	if outDir == "" {
		outDir = dir
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil { //nolint:mnd // user-visible output dir
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	release, err := acquireWatchLock(filepath.Join(filepath.Dir(cc.Cfg.TokenPath), watchLockName))
	if err != nil {
		return err
	}
	defer release()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting folder watcher: %w", err)
	}

	fw := fsnotifyWatcher{w: w}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	r, err := newUploadRunner(ctx, cc, sheet)
	if err != nil {
		return err
	}
	defer r.Close()

	cc.Statusf("Watching %s for spreadsheets. Press Ctrl-C to stop.\n", dir)

	return watchLoop(ctx, fw, watchSettle, cc.Logger, func(ctx context.Context, path string) error {
		out, err := r.submit(ctx, path, pdfNameFor(outDir, path))
		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, out)
		}

		fmt.Fprintf(cc.Stdout, "%s -> %s (%s)\n", filepath.Base(path), out.Saved, formatSize(out.Size))

		return nil
	})
}

// watchLoop submits spreadsheets once they have settled. A failed submission
// is logged and watching continues; an expired session stops the loop.
// Returns nil when ctx is canceled.
func watchLoop(
	ctx context.Context, w fsWatcher, settle time.Duration, logger *slog.Logger,
	submit func(context.Context, string) error,
) error {
	pending := make(map[string]time.Time)

	timer := time.NewTimer(settle)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}

			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			if !isSpreadsheet(ev.Name) {
				logger.Debug("watch: ignoring", slog.String("path", ev.Name))
				continue
			}

			pending[ev.Name] = time.Now()
			timer.Reset(settle)

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}

			logger.Warn("folder watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			next := settled(pending, time.Now(), settle)
			if len(pending) > 0 {
				timer.Reset(settle)
			}

			for _, path := range next {
				if !statRegular(path) {
					continue
				}

				if err := submit(ctx, path); err != nil {
					if ctx.Err() != nil {
						return nil
					}

					if api.IsUnauthorized(err) {
						return err
					}

					logger.Warn("submission failed",
						slog.String("file", path),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// settled removes and returns, sorted, the paths with no event for settle.
func settled(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var out []string

	for path, last := range pending {
		if now.Sub(last) >= settle {
			out = append(out, path)
			delete(pending, path)
		}
	}

	sort.Strings(out)

	return out
}
