package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jdsidebottom/foliumai/internal/cli"
)

func main() {
	// Wait for interrupt signal to gracefully shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.RootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
