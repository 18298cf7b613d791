package repository

import (
	"context"
	"sync"

	"fleet-telemetry/agent/internal/events/domain"
)

// MemorySink keeps events in memory. Used in detached environments and tests.
type MemorySink struct {
	mu        sync.Mutex
	events    []*domain.EventRecord
	available bool
	insertErr error
	acquired  int
	released  int
	onInsert  func(*domain.EventRecord)
}

// NewMemorySink returns an available, empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{available: true}
}

// SetAvailable toggles whether TryAcquire succeeds.
func (s *MemorySink) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = available
}

// SetInsertError makes every Insert fail with err.
func (s *MemorySink) SetInsertError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertErr = err
}

// OnInsert registers fn to run before each successful Insert records the event.
func (s *MemorySink) OnInsert(fn func(*domain.EventRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInsert = fn
}

// Events returns a copy of the recorded events in insertion order.
func (s *MemorySink) Events() []*domain.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.EventRecord, len(s.events))
	copy(out, s.events)
	return out
}

// Handles returns how many handles were acquired and released.
func (s *MemorySink) Handles() (acquired, released int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired, s.released
}

func (s *MemorySink) TryAcquire(context.Context) (SinkHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return nil, false
	}
	s.acquired++
	return &memoryHandle{sink: s}, true
}

var _ SinkProvider = (*MemorySink)(nil)

type memoryHandle struct {
	sink *MemorySink
}

func (h *memoryHandle) Insert(_ context.Context, ev *domain.EventRecord) error {
	h.sink.mu.Lock()
	err, hook := h.sink.insertErr, h.sink.onInsert
	h.sink.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(ev)
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.events = append(h.sink.events, ev)
	return nil
}

func (h *memoryHandle) Release() error {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.released++
	return nil
}
