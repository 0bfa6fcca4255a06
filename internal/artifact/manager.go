// Package artifact owns the ephemeral documents shown to the user: at most
// one live handle per slot, each backed by a temp file. Publishing into a
// slot releases the handle it replaces; releasing is idempotent.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Slot names one independently displayed artifact.
type Slot string

// Well-known slots.
const (
	SlotUploadPreview Slot = "upload-preview"
	SlotRecordPreview Slot = "record-preview"
)

const (
	dirPerms      = 0o700
	artifactPerms = 0o600
	savePerms     = 0o644
)

// Sentinel errors.
var (
	ErrReleased   = errors.New("artifact: handle released")
	ErrNoArtifact = errors.New("artifact: slot is empty")
	ErrClosed     = errors.New("artifact: manager closed")
)

// Handle is a borrowed reference to one published artifact. It stays
// readable until its slot is released or republished.
type Handle struct {
	id       string
	slot     Slot
	path     string
	size     int64
	released atomic.Bool
}

func (h *Handle) ID() string { return h.id }
func (h *Handle) Slot() Slot { return h.slot }
func (h *Handle) Size() int64 { return h.size }
func (h *Handle) Path() string { return h.path }

// Released reports whether the handle's backing file is gone.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Bytes reads the whole artifact.
func (h *Handle) Bytes() ([]byte, error) {
	if h.Released() {
		return nil, ErrReleased
	}

	data, err := os.ReadFile(h.path)
	if err != nil {
		if h.Released() {
			return nil, ErrReleased
		}

		return nil, fmt.Errorf("artifact: reading %s: %w", h.id, err)
	}

	return data, nil
}

// Open returns a reader over the artifact. The caller closes it.
func (h *Handle) Open() (io.ReadCloser, error) {
	if h.Released() {
		return nil, ErrReleased
	}

	f, err := os.Open(h.path)
	if err != nil {
		if h.Released() {
			return nil, ErrReleased
		}

		return nil, fmt.Errorf("artifact: opening %s: %w", h.id, err)
	}

	return f, nil
}

// Manager tracks the live handle of every slot. Safe for concurrent use;
// file I/O happens outside the lock.
type Manager struct {
	dir    string
	logger *slog.Logger

	mu        sync.Mutex
	live      map[Slot]*Handle
	onRelease func(*Handle)
	closed    bool
}

// NewManager creates a manager whose artifacts live in a private directory
// under dir. Close removes that directory.
func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("artifact: creating %s: %w", dir, err)
	}

	own, err := os.MkdirTemp(dir, "session-")
	if err != nil {
		return nil, fmt.Errorf("artifact: creating session dir: %w", err)
	}

	return &Manager{
		dir:    own,
		logger: logger,
		live:   make(map[Slot]*Handle),
	}, nil
}

// OnRelease registers fn to observe every release. fn runs after the backing
// file is removed, outside the manager's lock.
func (m *Manager) OnRelease(fn func(*Handle)) {
	m.mu.Lock()
	m.onRelease = fn
	m.mu.Unlock()
}

// Publish stores data as the slot's new artifact and releases the handle it
// replaces. If the write fails the previous handle stays live.
func (m *Manager) Publish(slot Slot, data []byte) (*Handle, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	id := uuid.NewString()
	path := filepath.Join(m.dir, id)

	if err := os.WriteFile(path, data, artifactPerms); err != nil {
		return nil, fmt.Errorf("artifact: writing %s: %w", slot, err)
	}

	h := &Handle{id: id, slot: slot, path: path, size: int64(len(data))}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		os.Remove(path)

		return nil, ErrClosed
	}

	prev := m.live[slot]
	m.live[slot] = h
	m.mu.Unlock()

	if prev != nil {
		m.release(prev)
	}

	m.logger.Debug("artifact published",
		slog.String("slot", string(slot)),
		slog.String("id", id),
		slog.Int64("size", h.size),
	)

	return h, nil
}

// Release frees the slot's artifact. Releasing an empty slot is a no-op.
func (m *Manager) Release(slot Slot) {
	m.mu.Lock()
	h := m.live[slot]
	delete(m.live, slot)
	m.mu.Unlock()

	if h != nil {
		m.release(h)
	}
}

// Handle returns the slot's live handle.
func (m *Manager) Handle(slot Slot) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.live[slot]

	return h, ok
}

// Live returns the slots that currently hold an artifact, sorted.
func (m *Manager) Live() []Slot {
	m.mu.Lock()
	slots := make([]Slot, 0, len(m.live))
	for s := range m.live {
		slots = append(slots, s)
	}
	m.mu.Unlock()

	slices.Sort(slots)

	return slots
}

// SaveAs copies the slot's artifact to dst. The copy is written next to dst
// and renamed into place, so dst is either complete or untouched.
func (m *Manager) SaveAs(slot Slot, dst string) error {
	h, ok := m.Handle(slot)
	if !ok {
		return ErrNoArtifact
	}

	data, err := h.Bytes()
	if err != nil {
		return err
	}

	if err := writeFileAtomic(dst, data); err != nil {
		return err
	}

	m.logger.Info("artifact saved",
		slog.String("slot", string(slot)),
		slog.String("path", dst),
		slog.Int64("size", h.size),
	)

	return nil
}

// Close releases every slot and removes the manager's directory. Further
// publishes fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}

	m.closed = true
	handles := make([]*Handle, 0, len(m.live))
	for _, h := range m.live {
		handles = append(handles, h)
	}
	clear(m.live)
	m.mu.Unlock()

	for _, h := range handles {
		m.release(h)
	}

	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("artifact: removing %s: %w", m.dir, err)
	}

	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

// release removes h's backing file exactly once.
func (m *Manager) release(h *Handle) {
	if h.released.Swap(true) {
		return
	}

	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("failed to remove artifact",
			slog.String("id", h.id),
			slog.String("error", err.Error()),
		)
	}

	m.logger.Debug("artifact released",
		slog.String("slot", string(h.slot)),
		slog.String("id", h.id),
	)

	m.mu.Lock()
	fn := m.onRelease
	m.mu.Unlock()

	if fn != nil {
		fn(h)
	}
}

// writeFileAtomic writes data to a temp file in dst's directory, syncs it,
// and renames it over dst.
func writeFileAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("artifact: creating %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(dst)+"-*.partial")
	if err != nil {
		return fmt.Errorf("artifact: creating temp file: %w", err)
	}

	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("artifact: writing %s: %w", dst, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("artifact: syncing %s: %w", dst, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: closing %s: %w", dst, err)
	}

	if err := os.Chmod(tmpPath, savePerms); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: chmod %s: %w", dst, err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: renaming into %s: %w", dst, err)
	}

	return nil
}
