package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"fleet-telemetry/agent/internal/events/domain"
	"fleet-telemetry/agent/internal/events/repository"
	"fleet-telemetry/agent/internal/provider"
)

// recordCapture stores records passed to Emit.
type recordCapture struct {
	mu   sync.Mutex
	recs []otellog.Record
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func sampleEvent() *domain.EventRecord {
	return &domain.EventRecord{
		UniqueID:           "2b0b1b36-1f11-4c55-9d5c-7f3e5b0c9a11",
		Name:               "lesson.opened",
		Timestamp:          1700000000123,
		Data:               `{"lesson":7}`,
		User:               "R-1001",
		Workstation:        "a-0011223344556677",
		CorrelationID:      "corr-1",
		ApplicationVersion: "2.3.0 (230)",
		ApplicationName:    "reader",
	}
}

func TestNewLogSink_Nil(t *testing.T) {
	s := NewLogSink(nil)
	if s != nil {
		t.Fatal("NewLogSink(nil) should return nil")
	}
	if _, ok := s.TryAcquire(context.Background()); ok {
		t.Error("nil sink should be absent")
	}
}

func TestLogSink_Insert(t *testing.T) {
	capture := &recordCapture{}
	s := NewLogSinkWithEmitter(capture)
	ev := sampleEvent()

	h, ok := s.TryAcquire(context.Background())
	if !ok {
		t.Fatal("TryAcquire should succeed")
	}
	if err := h.Insert(context.Background(), ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if len(capture.recs) != 1 {
		t.Fatalf("got %d records, want 1", len(capture.recs))
	}
	rec := capture.recs[0]
	if got := rec.Body().AsString(); got != ev.Data {
		t.Errorf("body = %q, want %q", got, ev.Data)
	}
	if !rec.Timestamp().Equal(time.UnixMilli(ev.Timestamp)) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), time.UnixMilli(ev.Timestamp))
	}
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"event.name":                    ev.Name,
		domain.ColumnUniqueID:           ev.UniqueID,
		domain.ColumnUser:               ev.User,
		domain.ColumnWorkstation:        ev.Workstation,
		domain.ColumnApplicationName:    ev.ApplicationName,
		domain.ColumnApplicationVersion: ev.ApplicationVersion,
		domain.ColumnCorrelationID:      ev.CorrelationID,
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestRecord_NoCorrelationID(t *testing.T) {
	ev := sampleEvent()
	ev.CorrelationID = ""
	ev.Timestamp = 0
	rec := Record(ev)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		if kv.Key == domain.ColumnCorrelationID {
			t.Error("empty correlation id should not be an attribute")
		}
		return true
	})
	if rec.Timestamp().IsZero() {
		t.Error("timestamp should default to now")
	}
}

func TestNewLogSink_SDKProvider(t *testing.T) {
	lp := sdklog.NewLoggerProvider()
	defer func() { _ = lp.Shutdown(context.Background()) }()

	acquired, err := provider.Use[repository.SinkHandle](context.Background(), NewLogSink(lp), func(h repository.SinkHandle) error {
		return h.Insert(context.Background(), sampleEvent())
	})
	if !acquired || err != nil {
		t.Errorf("Use = %v, %v; want true, nil", acquired, err)
	}
}
