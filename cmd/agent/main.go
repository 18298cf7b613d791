// Agent runs the device event pipeline behind a local HTTP API. Configuration comes from the
// environment or a .env file; see internal/config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-telemetry/agent/internal/app"
	"fleet-telemetry/agent/internal/config"
	"fleet-telemetry/agent/internal/logging"
	"fleet-telemetry/agent/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot, _ := logging.New(os.Stderr, "", "json")
		boot.Fatal().Err(err).Msg("config")
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		boot, _ := logging.New(os.Stderr, "", "json")
		boot.Fatal().Err(err).Msg("logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("agent")
	}

	srv := server.New(cfg.HTTPAddr, a.Pipeline, a.Resolver, a.Registry, a.Registry, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info().Str("sink", cfg.EventSink).Str("version", a.AppInfo().DisplayVersion()).Msg("agent started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("agent shutdown")
	}
	logger.Info().Msg("agent stopped")
}
