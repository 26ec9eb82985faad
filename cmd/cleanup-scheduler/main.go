package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lirumlarum/registration-service/internal/app/cleanup"
	"github.com/lirumlarum/registration-service/internal/config"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting cleanup scheduler", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cleanup.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize cleanup app", slog.Any("err", err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("cleanup app stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("cleanup app stopped gracefully")
}
