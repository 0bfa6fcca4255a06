package records

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	gosync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/orderdesk/internal/api"
)

// DefaultExportWorkers bounds concurrent renders when the caller passes 0.
const DefaultExportWorkers = 4

// ExportError records one order that could not be exported.
type ExportError struct {
	OrderID int64
	Err     error
}

// ExportReport summarizes an Export run.
type ExportReport struct {
	Written []string // file paths, in the input order
	Failed  []ExportError
}

// FileName is the name an order's document is saved under.
func FileName(id int64) string {
	return fmt.Sprintf("order_%d.pdf", id)
}

// Export renders every order into dir as order_<id>.pdf using at most
// workers concurrent requests. A failed order is recorded and the rest
// continue; an Unauthorized or canceled render stops the whole run.
func (s *Sync) Export(ctx context.Context, orders []api.Order, dir string, workers int) (*ExportReport, error) {
	if workers <= 0 {
		workers = DefaultExportWorkers
	}

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd // user-visible output dir
		return nil, fmt.Errorf("records: creating export dir %s: %w", dir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu gosync.Mutex

	written := make([]string, len(orders))
	report := &ExportReport{}

	for i := range orders {
		o := orders[i]

		g.Go(func() error {
			path, err := s.exportOne(gctx, o, dir)
			if err != nil {
				if api.IsUnauthorized(err) || api.IsCanceled(err) {
					return err
				}

				mu.Lock()
				report.Failed = append(report.Failed, ExportError{OrderID: o.ID, Err: err})
				mu.Unlock()

				s.logger.Warn("order export skipped",
					slog.Int64("order_id", o.ID),
					slog.String("error", err.Error()),
				)

				return nil
			}

			mu.Lock()
			written[i] = path
			mu.Unlock()

			return nil
		})
	}

	err := g.Wait()

	for _, p := range written {
		if p != "" {
			report.Written = append(report.Written, p)
		}
	}

	sort.Slice(report.Failed, func(a, b int) bool { return report.Failed[a].OrderID < report.Failed[b].OrderID })

	if err != nil {
		return report, err
	}

	s.logger.Info("orders exported",
		slog.String("dir", dir),
		slog.Int("written", len(report.Written)),
		slog.Int("failed", len(report.Failed)),
	)

	return report, nil
}

// exportOne renders one order and writes it atomically.
func (s *Sync) exportOne(ctx context.Context, o api.Order, dir string) (string, error) {
	doc, err := s.remote.FromOrder(ctx, o)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName(o.ID))
	partial := path + ".partial"

	if err := os.WriteFile(partial, doc, 0o644); err != nil { //nolint:mnd // user-visible output file
		return "", fmt.Errorf("records: writing %s: %w", partial, err)
	}

	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("records: renaming %s: %w", partial, err)
	}

	return path, nil
}
