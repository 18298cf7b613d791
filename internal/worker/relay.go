// Package worker relays events from the Kafka topic written by the Kafka event sink to Loki.
package worker

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the relay uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Pusher delivers one raw event record.
type Pusher interface {
	PushEventJSON(ctx context.Context, raw []byte) error
}

// Metrics counts relay outcomes.
type Metrics struct {
	consumed prometheus.Counter
	pushed   prometheus.Counter
	failed   *prometheus.CounterVec
}

// NewMetrics registers the relay metrics with reg. A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		consumed: f.NewCounter(prometheus.CounterOpts{
			Name: "device_events_relay_consumed_total",
			Help: "Messages read from Kafka",
		}),
		pushed: f.NewCounter(prometheus.CounterOpts{
			Name: "device_events_relay_pushed_total",
			Help: "Events pushed to Loki",
		}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "device_events_relay_failed_total",
			Help: "Relay failures, by stage",
		}, []string{"stage"}),
	}
}

// Relay moves messages from a reader to a pusher.
type Relay struct {
	reader      MessageReader
	pusher      Pusher
	metrics     *Metrics
	logger      zerolog.Logger
	pushTimeout time.Duration
	readBackoff time.Duration
}

// NewRelay returns a relay. metrics may be nil.
func NewRelay(reader MessageReader, pusher Pusher, metrics *Metrics, logger zerolog.Logger) *Relay {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Relay{
		reader:      reader,
		pusher:      pusher,
		metrics:     metrics,
		logger:      logger.With().Str("component", "relay").Logger(),
		pushTimeout: 10 * time.Second,
		readBackoff: time.Second,
	}
}

// Run relays until ctx is done or the reader is closed. A message is committed after its push
// whether or not the push succeeded.
func (r *Relay) Run(ctx context.Context) error {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			r.metrics.failed.WithLabelValues("read").Inc()
			r.logger.Warn().Err(err).Msg("kafka read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.readBackoff):
			}
			continue
		}
		r.metrics.consumed.Inc()

		pushCtx, cancel := context.WithTimeout(ctx, r.pushTimeout)
		err = r.pusher.PushEventJSON(pushCtx, msg.Value)
		cancel()
		if err != nil {
			r.metrics.failed.WithLabelValues("push").Inc()
			r.logger.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("loki push failed")
		} else {
			r.metrics.pushed.Inc()
		}

		if err := r.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.metrics.failed.WithLabelValues("commit").Inc()
			r.logger.Warn().Err(err).Msg("kafka commit failed")
		}
	}
}
