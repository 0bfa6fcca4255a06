package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolved() *Resolved {
	return &Resolved{
		Config:      *DefaultConfig(),
		ConfigPath:  "/etc/orderdesk/config.toml",
		TokenPath:   "/data/token.json",
		CachePath:   "/data/records.db",
		ArtifactDir: "/cache/artifacts",
	}
}

func TestRenderEffective(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderEffective(testResolved(), &buf))

	out := buf.String()
	assert.Contains(t, out, "/etc/orderdesk/config.toml")
	assert.Contains(t, out, "[api]")
	assert.Contains(t, out, `base_url    = "http://localhost:8000"`)
	assert.Contains(t, out, "[upload]")
	assert.Contains(t, out, `sheet         = "Sheet1"`)
	assert.Contains(t, out, "[records]")
	assert.Contains(t, out, "export_workers = 4")
	assert.Contains(t, out, "[logging]")
	assert.Contains(t, out, "/data/token.json")
	assert.NotContains(t, out, "user_agent")
}

func TestRenderEffective_UserAgentShownWhenSet(t *testing.T) {
	r := testResolved()
	r.API.UserAgent = "desk/2"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))
	assert.Contains(t, buf.String(), `user_agent  = "desk/2"`)
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	w.n++
	if w.n > 2 {
		return 0, errors.New("disk full")
	}

	return len(p), nil
}

func TestRenderEffective_WriteError(t *testing.T) {
	w := &failWriter{}
	err := RenderEffective(testResolved(), w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 3, w.n)
}
