// Worker consumes device events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, EVENTS_KAFKA_TOPIC, KAFKA_GROUP_ID and LOKI_URL; metrics are served on METRICS_ADDR.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"fleet-telemetry/agent/internal/config"
	"fleet-telemetry/agent/internal/logging"
	"fleet-telemetry/agent/internal/telemetry/loki"
	"fleet-telemetry/agent/internal/worker"
)

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
	logger = logger.With().Str("service", "worker").Logger()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal().Msg("KAFKA_BROKERS is required")
	}
	pusher, err := loki.NewClient(cfg.LokiURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.EventsKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
	defer reader.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logging.Std(logger, "metrics"),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("topic", cfg.EventsKafkaTopic).
		Str("group", cfg.KafkaGroupID).
		Str("loki", cfg.LokiURL).
		Str("metrics", cfg.MetricsAddr).
		Msg("consuming")

	relay := worker.NewRelay(reader, pusher, worker.NewMetrics(reg), logger)
	if err := relay.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("relay stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info().Msg("stopped")
}
