package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arrowlimo/alms"
	"github.com/arrowlimo/alms/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand(version, serve).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func serve(ctx context.Context, logger *slog.Logger) error {
	app, err := alms.New(ctx, alms.WithVersion(version), alms.WithLogger(logger))
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
