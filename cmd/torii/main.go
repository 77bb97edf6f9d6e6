package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashita-ai/torii"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("TORII_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	app, err := torii.New(ctx,
		torii.WithVersion(version),
		torii.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	// Log every node and proposal event the engine publishes. Deployments
	// replace this with a real consumer (webhook relay, chat bot, ...).
	events := app.Subscribe()
	go func() {
		for n := range events {
			logger.Info("torii event", "channel", n.Channel, "payload", n.Payload)
		}
	}()

	return app.Run(ctx)
}
