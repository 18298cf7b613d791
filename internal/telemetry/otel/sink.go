package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"fleet-telemetry/agent/internal/events/domain"
	"fleet-telemetry/agent/internal/events/repository"
	"fleet-telemetry/agent/internal/provider"
)

// ScopeName is the instrumentation scope of emitted event records.
const ScopeName = "fleet-telemetry/agent/events"

// RecordEmitter is the part of otellog.Logger the sink needs.
type RecordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// LoggerSource hands out loggers; *sdklog.LoggerProvider satisfies it.
type LoggerSource interface {
	Logger(name string, opts ...otellog.LoggerOption) otellog.Logger
}

// LogSink is an event sink that writes each event as an OTel log record. The body is the event
// data and the remaining fields become attributes.
type LogSink struct {
	emitter RecordEmitter
}

// NewLogSink returns a sink emitting through src. A nil src yields a nil sink, which is absent.
func NewLogSink(src LoggerSource) *LogSink {
	if src == nil {
		return nil
	}
	return &LogSink{emitter: src.Logger(ScopeName)}
}

// NewLogSinkWithEmitter returns a sink writing to e.
func NewLogSinkWithEmitter(e RecordEmitter) *LogSink {
	return &LogSink{emitter: e}
}

// TryAcquire returns a handle unless the sink is nil.
func (s *LogSink) TryAcquire(context.Context) (repository.SinkHandle, bool) {
	if s == nil || s.emitter == nil {
		return nil, false
	}
	return &logHandle{emitter: s.emitter}, true
}

var _ repository.SinkProvider = (*LogSink)(nil)

type logHandle struct {
	provider.NopRelease
	emitter RecordEmitter
}

// Insert converts ev to a log record. Emission is best-effort; the exporter reports its own failures.
func (h *logHandle) Insert(ctx context.Context, ev *domain.EventRecord) error {
	h.emitter.Emit(ctx, Record(ev))
	return nil
}

// Record maps ev to an OTel log record.
func Record(ev *domain.EventRecord) otellog.Record {
	var rec otellog.Record
	if ev.Timestamp > 0 {
		rec.SetTimestamp(time.UnixMilli(ev.Timestamp).UTC())
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(ev.Data))
	rec.AddAttributes(
		otellog.String("event.name", ev.Name),
		otellog.String(domain.ColumnUniqueID, ev.UniqueID),
		otellog.String(domain.ColumnUser, ev.User),
		otellog.String(domain.ColumnWorkstation, ev.Workstation),
		otellog.String(domain.ColumnApplicationName, ev.ApplicationName),
		otellog.String(domain.ColumnApplicationVersion, ev.ApplicationVersion),
	)
	if ev.CorrelationID != "" {
		rec.AddAttributes(otellog.String(domain.ColumnCorrelationID, ev.CorrelationID))
	}
	return rec
}
