package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tw20th/kangaroo-post-sub000/internal/app"
	"github.com/tw20th/kangaroo-post-sub000/internal/config"
	"github.com/tw20th/kangaroo-post-sub000/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application failed to start", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
