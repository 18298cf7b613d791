package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/config"
	"fleet-telemetry/agent/internal/db"
	"fleet-telemetry/agent/internal/events/producer"
	"fleet-telemetry/agent/internal/events/repository"
	"fleet-telemetry/agent/internal/events/spool"
	"fleet-telemetry/agent/internal/provider"
	"fleet-telemetry/agent/internal/telemetry/otel"
)

// NewSink builds the event sink selected by cfg.EventSink. Missing connection details yield an
// absent sink rather than an error; the returned close function releases what the sink holds.
func NewSink(cfg *config.Config, lp otel.LoggerSource, logger zerolog.Logger) (repository.SinkProvider, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	absent := func(reason string) (repository.SinkProvider, func(context.Context) error, error) {
		logger.Warn().Str("sink", cfg.EventSink).Msg(reason + "; events will be dropped")
		return provider.Absent[repository.SinkHandle](), noop, nil
	}

	switch cfg.EventSink {
	case config.SinkPostgres:
		conn, err := db.OpenLazy(cfg.EventsDatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("events database: %w", err)
		}
		if conn == nil {
			return absent("EVENTS_DATABASE_URL not set")
		}
		return repository.NewPostgresSink(conn, logger), func(context.Context) error { return conn.Close() }, nil

	case config.SinkKafka:
		sink := producer.NewKafkaSink(cfg.KafkaBrokersList(), cfg.EventsKafkaTopic)
		if sink == nil {
			return absent("KAFKA_BROKERS or EVENTS_KAFKA_TOPIC not set")
		}
		return sink, func(context.Context) error { return sink.Close() }, nil

	case config.SinkOTel:
		if cfg.OTelEndpoint == "" {
			return absent("OTEL_EXPORTER_OTLP_ENDPOINT not set")
		}
		return otel.NewLogSink(lp), noop, nil

	case config.SinkSpool:
		if cfg.SpoolDir == "" {
			return absent("SPOOL_DIR not set")
		}
		return spool.New(cfg.SpoolDir, logger), noop, nil

	case config.SinkMemory:
		return repository.NewMemorySink(), noop, nil

	case config.SinkNone:
		return provider.Absent[repository.SinkHandle](), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown event sink %q", cfg.EventSink)
}
