package repository

import (
	"context"
	"errors"
	"testing"

	"fleet-telemetry/agent/internal/events/domain"
	"fleet-telemetry/agent/internal/provider"
)

func TestMemorySink_InsertAndEvents(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		acquired, err := provider.Use[SinkHandle](ctx, s, func(h SinkHandle) error {
			return h.Insert(ctx, &domain.EventRecord{Name: name})
		})
		if !acquired || err != nil {
			t.Fatalf("Use = %v, %v", acquired, err)
		}
	}
	got := s.Events()
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Errorf("events = %+v, want a then b", got)
	}
	if acquired, released := s.Handles(); acquired != 2 || released != 2 {
		t.Errorf("handles = %d/%d, want 2/2", acquired, released)
	}
}

func TestMemorySink_Unavailable(t *testing.T) {
	s := NewMemorySink()
	s.SetAvailable(false)
	if _, ok := s.TryAcquire(context.Background()); ok {
		t.Error("TryAcquire should fail while unavailable")
	}
	if acquired, _ := s.Handles(); acquired != 0 {
		t.Errorf("acquired = %d, want 0", acquired)
	}
}

func TestMemorySink_InsertError(t *testing.T) {
	s := NewMemorySink()
	boom := errors.New("disk full")
	s.SetInsertError(boom)
	h, _ := s.TryAcquire(context.Background())
	if err := h.Insert(context.Background(), &domain.EventRecord{}); !errors.Is(err, boom) {
		t.Errorf("Insert err = %v, want %v", err, boom)
	}
	_ = h.Release()
	if len(s.Events()) != 0 {
		t.Error("failed insert should not record the event")
	}
}

func TestMemorySink_OnInsert(t *testing.T) {
	s := NewMemorySink()
	var seen []string
	s.OnInsert(func(ev *domain.EventRecord) {
		// The hook runs without the sink lock held.
		_ = s.Events()
		seen = append(seen, ev.Name)
	})
	h, _ := s.TryAcquire(context.Background())
	_ = h.Insert(context.Background(), &domain.EventRecord{Name: "x"})
	_ = h.Release()
	if len(seen) != 1 || seen[0] != "x" {
		t.Errorf("hook saw %v", seen)
	}
}

func TestPostgresSink_NilDB(t *testing.T) {
	var nilSink *PostgresSink
	if _, ok := nilSink.TryAcquire(context.Background()); ok {
		t.Error("nil sink should be absent")
	}
	s := NewPostgresSink(nil, testLogger())
	if _, ok := s.TryAcquire(context.Background()); ok {
		t.Error("sink without db should be absent")
	}
}
