package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdownContext returns a context that is canceled on the first
// SIGINT/SIGTERM, aborting the in-flight request, and force-exits on the
// second. stop cancels the context and releases the signal handler.
func shutdownContext(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	stopped := make(chan struct{})

	var once sync.Once

	stop = func() {
		once.Do(func() {
			cancel()
			close(stopped)
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			slog.Info("signal received, canceling", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			slog.Warn("second signal received, exiting", slog.String("signal", sig.String()))
			os.Exit(exitCanceled)
		case <-stopped:
			return
		}
	}()

	return ctx, stop
}
