package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/orderdesk/internal/artifact"
	"github.com/tonimelisma/orderdesk/internal/pipeline"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <spreadsheet>",
		Short: "Upload a spreadsheet and save the generated PDF",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpload,
	}

	cmd.Flags().String("sheet", "", "worksheet to read (default from config)")
	cmd.Flags().StringP("out", "o", "", "where to save the PDF (default: download_name from config)")

	return cmd
}

// uploadOutput is the JSON schema for `upload --json`.
type uploadOutput struct {
	File  string `json:"file"`
	Saved string `json:"saved"`
	Size  int64  `json:"size"`
}

// uploadRunner is one pipeline plus everything it owns.
type uploadRunner struct {
	cc        *CLIContext
	sess      *session
	artifacts *artifact.Manager
	pipe      *pipeline.Pipeline
	closeRecs func()
}

// newUploadRunner wires a pipeline to the service, the artifact store, and
// the order list it refreshes after each submission.
func newUploadRunner(ctx context.Context, cc *CLIContext, sheet string) (*uploadRunner, error) {
	if sheet == "" {
		sheet = cc.Cfg.Upload.Sheet
	}

	sess := cc.newSession()

	arts, err := cc.openArtifacts()
	if err != nil {
		return nil, err
	}

	recs, closeRecs := cc.openRecords(ctx, sess.client)

	p := pipeline.New(pipeline.Config{
		Sheet:        sheet,
		Slot:         artifact.SlotUploadPreview,
		DownloadName: cc.Cfg.Upload.DownloadName,
	}, sess.client, sess.store, arts, recs, cc.Logger)

	p.Subscribe(func(m pipeline.Modal) { printModal(cc, m) })

	return &uploadRunner{cc: cc, sess: sess, artifacts: arts, pipe: p, closeRecs: closeRecs}, nil
}

// Close tears the pipeline down and removes the session's artifacts.
func (r *uploadRunner) Close() {
	r.pipe.Close()
	r.closeRecs()

	if err := r.artifacts.Close(); err != nil {
		r.cc.Logger.Warn("removing artifacts", slog.String("error", err.Error()))
	}
}

// submit runs one file through the pipeline and saves the result to dst.
func (r *uploadRunner) submit(ctx context.Context, path, dst string) (*uploadOutput, error) {
	if err := r.pipe.Choose(ctx, path); err != nil {
		return nil, err
	}

	snap := r.pipe.Snapshot()

	if err := r.pipe.Download(dst); err != nil {
		return nil, err
	}

	r.pipe.Dismiss()

	return &uploadOutput{File: path, Saved: dst, Size: snap.Artifact.Size()}, nil
}

// printModal reports modal transitions on stderr. Failures are left to the
// returned error.
func printModal(cc *CLIContext, m pipeline.Modal) {
	if !m.Visible {
		return
	}

	switch m.Phase {
	case pipeline.PhaseLoading:
		cc.Statusf("%s: %s\n", m.Title, m.Message)
	case pipeline.PhaseDone:
		cc.Statusf("%s ready\n", m.Title)
	case pipeline.PhaseError:
		cc.Logger.Debug("modal error", slog.String("title", m.Title), slog.String("message", m.Message))
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	sheet, _ := cmd.Flags().GetString("sheet")
	dst, _ := cmd.Flags().GetString("out")

	if dst == "" {
		dst = cc.Cfg.Upload.DownloadName
	}

	r, err := newUploadRunner(ctx, cc, sheet)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := r.submit(ctx, args[0], dst)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	fmt.Fprintf(cc.Stdout, "Saved %s (%s)\n", out.Saved, formatSize(out.Size))

	return nil
}

// pdfNameFor maps a spreadsheet name to the PDF saved next to it.
func pdfNameFor(dir, spreadsheet string) string {
	base := filepath.Base(spreadsheet)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")
}

// isSpreadsheet reports whether name looks like a finished spreadsheet, not
// an editor lock or temp file.
func isSpreadsheet(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}

	switch strings.ToLower(filepath.Ext(base)) {
	case ".xlsx", ".xlsm", ".xls":
		return true
	default:
		return false
	}
}

// statRegular reports whether path is an existing regular file.
func statRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
