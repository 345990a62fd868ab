package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/andywolf/milestonesync/internal/cli"
)

func main() {
	// SIGINT/SIGTERM cancel the run: no new remote calls are issued and the
	// summary reports the run as interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
