package artifact

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestPublish_RoundTrip(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Publish(SlotUploadPreview, []byte("%PDF one"))
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID())
	assert.Equal(t, SlotUploadPreview, h.Slot())
	assert.Equal(t, int64(8), h.Size())
	assert.Equal(t, h.ID(), filepath.Base(h.Path()), "backing file is named by id only")

	data, err := h.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "%PDF one", string(data))

	rc, err := h.Open()
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, streamed)

	got, ok := m.Handle(SlotUploadPreview)
	require.True(t, ok)
	assert.Same(t, h, got)
}

func TestPublish_ReleasesExactlyThePreviousHandle(t *testing.T) {
	m := newTestManager(t)

	var released []string
	m.OnRelease(func(h *Handle) { released = append(released, h.ID()) })

	first, err := m.Publish(SlotUploadPreview, []byte("a"))
	require.NoError(t, err)
	other, err := m.Publish(SlotRecordPreview, []byte("b"))
	require.NoError(t, err)
	second, err := m.Publish(SlotUploadPreview, []byte("c"))
	require.NoError(t, err)

	assert.Equal(t, []string{first.ID()}, released)
	assert.True(t, first.Released())
	assert.False(t, other.Released())
	assert.False(t, second.Released())

	_, err = first.Bytes()
	require.ErrorIs(t, err, ErrReleased)
	_, err = first.Open()
	require.ErrorIs(t, err, ErrReleased)

	_, statErr := os.Stat(first.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRelease_Idempotent(t *testing.T) {
	m := newTestManager(t)

	var count int
	m.OnRelease(func(*Handle) { count++ })

	h, err := m.Publish(SlotRecordPreview, []byte("x"))
	require.NoError(t, err)

	m.Release(SlotRecordPreview)
	m.Release(SlotRecordPreview)
	m.Release(SlotUploadPreview)

	assert.Equal(t, 1, count)
	assert.True(t, h.Released())
	assert.Empty(t, m.Live())
}

func TestLive_Sorted(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Publish(SlotUploadPreview, []byte("a"))
	require.NoError(t, err)
	_, err = m.Publish(SlotRecordPreview, []byte("b"))
	require.NoError(t, err)

	assert.Equal(t, []Slot{SlotRecordPreview, SlotUploadPreview}, m.Live())
}

func TestSaveAs(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Publish(SlotUploadPreview, []byte("%PDF saved"))
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "out", "order.pdf")
	require.NoError(t, m.SaveAs(SlotUploadPreview, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF saved", string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	// Saving does not consume the artifact.
	_, ok := m.Handle(SlotUploadPreview)
	assert.True(t, ok)
}

func TestSaveAs_EmptySlot(t *testing.T) {
	m := newTestManager(t)

	err := m.SaveAs(SlotUploadPreview, filepath.Join(t.TempDir(), "x.pdf"))
	require.ErrorIs(t, err, ErrNoArtifact)
}

func TestClose_ReleasesEverything(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	var count int
	m.OnRelease(func(*Handle) { count++ })

	a, err := m.Publish(SlotUploadPreview, []byte("a"))
	require.NoError(t, err)
	b, err := m.Publish(SlotRecordPreview, []byte("b"))
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Equal(t, 2, count)
	assert.True(t, a.Released())
	assert.True(t, b.Released())

	_, statErr := os.Stat(m.dir)
	assert.True(t, os.IsNotExist(statErr))

	_, err = m.Publish(SlotUploadPreview, []byte("late"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestManagers_ShareParentDir(t *testing.T) {
	parent := t.TempDir()

	m1, err := NewManager(parent, nil)
	require.NoError(t, err)
	m2, err := NewManager(parent, nil)
	require.NoError(t, err)

	h, err := m2.Publish(SlotUploadPreview, []byte("kept"))
	require.NoError(t, err)

	require.NoError(t, m1.Close())

	data, err := h.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
	require.NoError(t, m2.Close())
}

func TestPublish_ConcurrentKeepsOneLiveHandle(t *testing.T) {
	m := newTestManager(t)

	var (
		mu       sync.Mutex
		released int
	)

	m.OnRelease(func(*Handle) {
		mu.Lock()
		released++
		mu.Unlock()
	})

	const n = 20

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := m.Publish(SlotUploadPreview, []byte("doc"))
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, []Slot{SlotUploadPreview}, m.Live())

	mu.Lock()
	assert.Equal(t, n-1, released)
	mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
