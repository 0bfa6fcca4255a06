package main

import (
	"context"
	"os"
)

func main() {
	ctx, stop := shutdownContext(context.Background())
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}
