// Package producer provides an event sink that publishes records to Kafka.
package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"fleet-telemetry/agent/internal/events/domain"
	"fleet-telemetry/agent/internal/events/repository"
	"fleet-telemetry/agent/internal/provider"
)

// MessageWriter is the subset of *kafka.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON messages keyed by workstation, so events from one device
// land on one partition in order.
type KafkaSink struct {
	writer MessageWriter
	topic  string
}

// NewKafkaSink creates a Kafka sink writing to topic. It returns nil when brokers or topic are
// empty; a nil *KafkaSink is an absent provider. Call Close when shutting down.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSink{writer: writer, topic: topic}
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(w MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

// TryAcquire returns a handle sharing the sink's writer.
func (s *KafkaSink) TryAcquire(context.Context) (repository.SinkHandle, bool) {
	if s == nil || s.writer == nil {
		return nil, false
	}
	return kafkaHandle{writer: s.writer}, true
}

// Close closes the Kafka writer. Safe to call on a nil sink.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

var _ repository.SinkProvider = (*KafkaSink)(nil)

type kafkaHandle struct {
	provider.NopRelease
	writer MessageWriter
}

// Insert serializes ev as JSON and writes it as one message.
func (h kafkaHandle) Insert(ctx context.Context, ev *domain.EventRecord) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Workstation),
		Value: payload,
		Time:  time.UnixMilli(ev.Timestamp),
		Headers: []kafka.Header{
			{Key: "event-name", Value: []byte(ev.Name)},
			{Key: "correlation-id", Value: []byte(ev.CorrelationID)},
		},
	})
}

// DecodeMessage parses a message value written by the sink.
func DecodeMessage(value []byte) (*domain.EventRecord, error) {
	ev := &domain.EventRecord{}
	if err := json.Unmarshal(value, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
