package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/orderdesk/internal/api"
	"github.com/tonimelisma/orderdesk/internal/artifact"
	"github.com/tonimelisma/orderdesk/internal/credential"
	"github.com/tonimelisma/orderdesk/internal/records"
)

// dataDirPermissions restricts the data directory to the owner: it holds the
// token file.
const dataDirPermissions = 0o700

// session bundles what an authenticated command needs.
type session struct {
	store  *credential.FileStore
	client *api.Client
}

// newSession loads the persisted credential and builds a client on it.
func (cc *CLIContext) newSession() *session {
	store := credential.NewFileStore(cc.Cfg.TokenPath, cc.Logger)

	client := api.NewClient(cc.Cfg.API.BaseURL, cc.newHTTPClient(), store, cc.Logger, cc.Cfg.API.UserAgent)
	client.SetMaxRetries(cc.Cfg.API.MaxRetries)

	return &session{store: store, client: client}
}

// openRecords returns a Sync backed by the on-disk cache when enabled. A
// cache that cannot be opened is logged and skipped. close must be called.
func (cc *CLIContext) openRecords(ctx context.Context, remote records.Remote) (*records.Sync, func()) {
	if !cc.Cfg.Records.Cache || cc.Cfg.CachePath == "" {
		return records.New(remote, nil, cc.Logger), func() {}
	}

	if err := os.MkdirAll(filepath.Dir(cc.Cfg.CachePath), dataDirPermissions); err != nil {
		cc.Logger.Warn("order cache disabled", slog.String("error", err.Error()))
		return records.New(remote, nil, cc.Logger), func() {}
	}

	cache, err := records.OpenCache(ctx, cc.Cfg.CachePath, cc.Logger)
	if err != nil {
		cc.Logger.Warn("order cache disabled", slog.String("error", err.Error()))
		return records.New(remote, nil, cc.Logger), func() {}
	}

	return records.New(remote, cache, cc.Logger), func() {
		if err := cache.Close(); err != nil {
			cc.Logger.Warn("closing order cache", slog.String("error", err.Error()))
		}
	}
}

// openArtifacts creates the artifact manager for this process. Its session
// directory is removed by Close.
func (cc *CLIContext) openArtifacts() (*artifact.Manager, error) {
	dir := cc.Cfg.ArtifactDir
	if dir == "" {
		dir = os.TempDir()
	}

	m, err := artifact.NewManager(dir, cc.Logger)
	if err != nil {
		return nil, err
	}

	m.OnRelease(func(h *artifact.Handle) {
		cc.Logger.Debug("artifact released",
			slog.String("slot", string(h.Slot())),
			slog.String("id", h.ID()),
		)
	})

	return m, nil
}
