// Package pipeline drives spreadsheet submissions: guard on the session,
// upload, publish the returned document into the upload-preview slot, and
// ask record synchronization to refresh. At most one submission runs at a
// time per pipeline.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/tonimelisma/orderdesk/internal/api"
	"github.com/tonimelisma/orderdesk/internal/artifact"
)

// Defaults applied by New to a zero Config.
const (
	DefaultSheet        = "Sheet1"
	DefaultDownloadName = "order.pdf"
)

// Sentinel errors. All are KindValidation: they are refused before any
// network call.
var (
	ErrSessionRequired = errors.New("pipeline: session required")
	ErrBusy            = &api.Error{Kind: api.KindValidation, Message: "a submission is already in progress"}
	ErrNotReady        = &api.Error{Kind: api.KindValidation, Message: "no document to download"}
	ErrClosed          = &api.Error{Kind: api.KindValidation, Message: "pipeline closed"}
)

// Submitter uploads a spreadsheet and returns the generated document.
type Submitter interface {
	FromSpreadsheet(ctx context.Context, name string, r io.Reader, sheet string) ([]byte, error)
}

// CredentialReader reports whether a session exists.
type CredentialReader interface {
	Get() (string, bool)
}

// Publisher owns the artifact slots.
type Publisher interface {
	Publish(slot artifact.Slot, data []byte) (*artifact.Handle, error)
	Release(slot artifact.Slot)
	SaveAs(slot artifact.Slot, dst string) error
}

// Refresher re-reads the record list after a submission created an order.
type Refresher interface {
	Fetch(ctx context.Context) ([]api.Order, error)
}

// Config tunes a Pipeline.
type Config struct {
	Sheet        string        // worksheet to read, default "Sheet1"
	Slot         artifact.Slot // preview slot, default SlotUploadPreview
	DownloadName string        // Download target when none is given
}

// Pipeline is the upload/preview state machine. Safe for concurrent use; no
// lock is held across the upload.
type Pipeline struct {
	cfg       Config
	submitter Submitter
	creds     CredentialReader
	artifacts Publisher
	refresher Refresher
	logger    *slog.Logger

	input Input

	mu        sync.Mutex
	snap      Snapshot
	modal     Modal
	observers map[int]func(Modal)
	nextObs   int
	closed    bool
}

// New creates an idle pipeline. refresher may be nil.
func New(
	cfg Config, submitter Submitter, creds CredentialReader, artifacts Publisher, refresher Refresher,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Sheet == "" {
		cfg.Sheet = DefaultSheet
	}

	if cfg.Slot == "" {
		cfg.Slot = artifact.SlotUploadPreview
	}

	if cfg.DownloadName == "" {
		cfg.DownloadName = DefaultDownloadName
	}

	return &Pipeline{
		cfg:       cfg,
		submitter: submitter,
		creds:     creds,
		artifacts: artifacts,
		refresher: refresher,
		logger:    logger,
		observers: make(map[int]func(Modal)),
	}
}

// Input returns the pipeline's file-selection control.
func (p *Pipeline) Input() *Input {
	return &p.input
}

// Choose is the file control's change event. A changed selection is
// submitted; an unchanged one is ignored. The control is reset after every
// attempt so the same path can be chosen again.
func (p *Pipeline) Choose(ctx context.Context, path string) error {
	if !p.input.Select(path) {
		p.logger.Debug("selection unchanged, not submitting", slog.String("file", path))
		return nil
	}

	defer p.input.Reset()

	return p.Submit(ctx, path)
}

// Submit uploads the spreadsheet at path.
//
// While another submission is in flight it is refused with ErrBusy and the
// loading modal stays. Without a session the submission is refused with
// ErrSessionRequired and a "session required" modal; a preview on display is
// retired first. A canceled submission
// restores the state and modal it started from and shows nothing.
func (p *Pipeline) Submit(ctx context.Context, path string) error {
	if _, ok := p.creds.Get(); !ok {
		p.logger.Info("submission refused: no session")

		return p.refuse(path, Modal{
			Visible: true,
			Phase:   PhaseError,
			Title:   titleSessionRequired,
			Message: msgSessionRequired,
			Actions: []Action{ActionClose},
		}, &api.Error{Kind: api.KindValidation, Message: "session required", Err: ErrSessionRequired})
	}

	if path == "" {
		return p.refuse(path, Modal{
			Visible: true,
			Phase:   PhaseError,
			Title:   titleNoFile,
			Message: "Choose a spreadsheet to upload.",
			Actions: []Action{ActionClose},
		}, api.Validation("no spreadsheet selected"))
	}

	prevSnap, prevModal, err := p.begin(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return p.fail(path, api.Validation("opening %s: %v", filepath.Base(path), err))
	}

	p.logger.Info("submission started",
		slog.String("file", path),
		slog.String("sheet", p.cfg.Sheet),
	)

	doc, err := p.submitter.FromSpreadsheet(ctx, path, f, p.cfg.Sheet)
	f.Close()

	if err != nil {
		if api.IsCanceled(err) || ctx.Err() != nil {
			p.restore(prevSnap, prevModal)
			p.logger.Debug("submission canceled", slog.String("file", path))

			return err
		}

		return p.fail(path, err)
	}

	h, err := p.artifacts.Publish(p.cfg.Slot, doc)
	if err != nil {
		return p.fail(path, err)
	}

	if !p.ready(path, h) {
		p.artifacts.Release(p.cfg.Slot)
		return ErrClosed
	}

	p.logger.Info("submission succeeded",
		slog.String("file", path),
		slog.String("artifact", h.ID()),
		slog.Int64("size", h.Size()),
	)

	p.refresh(ctx)

	return nil
}

// begin moves to Submitting and returns what to restore on cancellation.
func (p *Pipeline) begin(path string) (Snapshot, Modal, error) {
	loading := Modal{
		Visible: true,
		Phase:   PhaseLoading,
		Title:   titleProcessing,
		Message: msgProcessing,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Snapshot{}, Modal{}, ErrClosed
	}

	if p.snap.State == StateSubmitting {
		p.mu.Unlock()
		p.logger.Warn("submission refused: another submission is in progress", slog.String("file", path))

		return Snapshot{}, Modal{}, ErrBusy
	}

	prevSnap, prevModal := p.snap, p.modal
	p.snap = Snapshot{State: StateSubmitting, File: path}
	p.modal = loading
	obs := p.observerList()
	p.mu.Unlock()

	notify(obs, loading)

	return prevSnap, prevModal, nil
}

// ready moves to Ready. It reports false when the pipeline was closed while
// the upload was in flight.
func (p *Pipeline) ready(path string, h *artifact.Handle) bool {
	done := Modal{
		Visible: true,
		Phase:   PhaseDone,
		Title:   titlePreview,
		Body:    p.cfg.Slot,
		Actions: []Action{ActionClose, ActionDownload},
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}

	p.snap = Snapshot{State: StateReady, Artifact: h, File: path}
	p.modal = done
	obs := p.observerList()
	p.mu.Unlock()

	notify(obs, done)

	return true
}

// fail moves to Failed. The previous preview is no longer displayed, so its
// slot is released.
func (p *Pipeline) fail(path string, err error) error {
	m := failureModal(err)

	p.artifacts.Release(p.cfg.Slot)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return err
	}

	p.snap = Snapshot{State: StateFailed, Err: err, File: path}
	p.modal = m
	obs := p.observerList()
	p.mu.Unlock()

	p.logger.Warn("submission failed",
		slog.String("file", path),
		slog.String("kind", api.KindOf(err).String()),
		slog.String("error", err.Error()),
	)

	notify(obs, m)

	return err
}

// restore puts back the state and modal a canceled submission started from.
func (p *Pipeline) restore(snap Snapshot, m Modal) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	p.snap = snap
	p.modal = m
	obs := p.observerList()
	p.mu.Unlock()

	notify(obs, m)
}

// refresh asks record synchronization to re-read the list. Failures are
// logged; the submission itself already succeeded.
func (p *Pipeline) refresh(ctx context.Context) {
	if p.refresher == nil {
		return
	}

	if _, err := p.refresher.Fetch(ctx); err != nil {
		if api.IsCanceled(err) {
			p.logger.Debug("record refresh canceled")
			return
		}

		p.logger.Warn("record refresh after submission failed",
			slog.String("kind", api.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
	}
}

// failureModal picks the user-facing text for a failed submission.
func failureModal(err error) Modal {
	m := Modal{
		Visible: true,
		Phase:   PhaseError,
		Actions: []Action{ActionClose},
	}

	if api.IsUnauthorized(err) {
		m.Title = titleSessionExpired
		m.Message = msgSessionExpired

		return m
	}

	m.Title = titleFailed
	m.Message = err.Error()

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		m.Message = apiErr.Message
	}

	return m
}

// Snapshot returns the current state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.snap
}

// Modal returns the current modal.
func (p *Pipeline) Modal() Modal {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.modal
	m.Actions = slices.Clone(m.Actions)

	return m
}

// Subscribe registers fn to receive the modal after every transition, on the
// goroutine that made it. The returned func unsubscribes.
func (p *Pipeline) Subscribe(fn func(Modal)) func() {
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// Download saves the ready document to dst, or to the configured download
// name when dst is empty.
func (p *Pipeline) Download(dst string) error {
	if p.Snapshot().State != StateReady {
		return ErrNotReady
	}

	if dst == "" {
		dst = p.cfg.DownloadName
	}

	if err := p.artifacts.SaveAs(p.cfg.Slot, dst); err != nil {
		if errors.Is(err, artifact.ErrNoArtifact) || errors.Is(err, artifact.ErrReleased) {
			return ErrNotReady
		}

		return err
	}

	return nil
}

// Dismiss hides the modal. A finished submission's preview is no longer
// displayed, so its slot is released and the pipeline returns to Idle. An
// in-flight submission keeps running and shows its result when done.
func (p *Pipeline) Dismiss() {
	hidden := Modal{}

	p.mu.Lock()
	if !p.modal.Visible {
		p.mu.Unlock()
		return
	}

	submitting := p.snap.State == StateSubmitting
	if !submitting {
		p.snap = Snapshot{State: StateIdle}
	}

	p.modal = hidden
	obs := p.observerList()
	p.mu.Unlock()

	if !submitting {
		p.artifacts.Release(p.cfg.Slot)
	}

	notify(obs, hidden)
}

// Close tears the pipeline down: the preview slot is released and later
// submissions fail with ErrClosed. Callers cancel in-flight work through the
// context they passed to Submit.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	p.closed = true
	p.snap = Snapshot{State: StateIdle}
	p.modal = Modal{}
	clear(p.observers)
	p.mu.Unlock()

	p.artifacts.Release(p.cfg.Slot)
}

// refuse shows m for a submission rejected before it started and returns
// err. A submission in flight keeps its loading modal and the caller gets
// ErrBusy. A ready preview is replaced by m, so its slot is released and the
// state returns to Idle.
func (p *Pipeline) refuse(path string, m Modal, err error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}

	if p.snap.State == StateSubmitting {
		p.mu.Unlock()
		p.logger.Warn("submission refused: another submission is in progress", slog.String("file", path))

		return ErrBusy
	}

	retire := p.snap.State == StateReady
	if retire {
		p.snap = Snapshot{State: StateIdle}
	}

	p.modal = m
	obs := p.observerList()
	p.mu.Unlock()

	if retire {
		p.artifacts.Release(p.cfg.Slot)
	}

	notify(obs, m)

	return err
}

// observerList copies the observers in subscription order. Caller holds mu.
func (p *Pipeline) observerList() []func(Modal) {
	ids := make([]int, 0, len(p.observers))
	for id := range p.observers {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	fns := make([]func(Modal), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.observers[id])
	}

	return fns
}

func notify(obs []func(Modal), m Modal) {
	for _, fn := range obs {
		fn(m)
	}
}
