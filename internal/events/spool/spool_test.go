package spool

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/events/domain"
)

func TestSink_AbsentWithoutDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	if _, ok := s.TryAcquire(context.Background()); ok {
		t.Error("TryAcquire should report absent when the spool dir does not exist")
	}
	if _, ok := New("", zerolog.Nop()).TryAcquire(context.Background()); ok {
		t.Error("TryAcquire should report absent with an empty dir")
	}
}

func TestSink_AppendAndRead(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, zerolog.Nop())
	fixed := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	records := []*domain.EventRecord{
		{UniqueID: "u-1", Name: "login", Timestamp: 1, Data: `{"a":1}`, User: "123", Workstation: "a-1"},
		{UniqueID: "u-2", Name: "logout", Timestamp: 2, Data: `{}`, User: "123", Workstation: "a-1"},
	}
	for _, ev := range records {
		h, ok := s.TryAcquire(context.Background())
		if !ok {
			t.Fatal("TryAcquire = false, want true")
		}
		if err := h.Insert(context.Background(), ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := h.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}

	got, err := ReadFile(filepath.Join(dir, FileName(fixed)))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("records = %d, want %d", len(got), len(records))
	}
	for i := range records {
		if *got[i] != *records[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], records[i])
		}
	}
}

func TestFileName(t *testing.T) {
	ts := time.Date(2026, 1, 2, 23, 59, 0, 0, time.FixedZone("X", -5*3600))
	if got := FileName(ts); got != "events-20260103.cbor" {
		t.Errorf("FileName = %q, want %q", got, "events-20260103.cbor")
	}
}
