package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"fleet-telemetry/agent/internal/provider"
	"fleet-telemetry/agent/internal/settings/domain"
)

// ErrReadOnly is returned by Insert on a read-only MemoryStore.
var ErrReadOnly = errors.New("settings: store is read-only")

// MemoryStore is an in-memory settings store. Used in detached environments and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	m         map[string]string
	available bool
	readOnly  bool
	queries   int
}

// NewMemoryStore returns an available, writable store seeded with initial.
func NewMemoryStore(initial map[string]string) *MemoryStore {
	m := make(map[string]string, len(initial))
	for k, v := range initial {
		m[k] = v
	}
	return &MemoryStore{m: m, available: true}
}

// SetAvailable toggles whether TryAcquire succeeds.
func (s *MemoryStore) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = available
}

// SetReadOnly makes Insert fail with ErrReadOnly.
func (s *MemoryStore) SetReadOnly(readOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = readOnly
}

// Queries returns the number of Query round trips served.
func (s *MemoryStore) Queries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries
}

// TryAcquire returns a handle when the store is available.
func (s *MemoryStore) TryAcquire(context.Context) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.available {
		return nil, false
	}
	return &memoryHandle{store: s}, true
}

var _ provider.Provider[Handle] = (*MemoryStore)(nil)

type memoryHandle struct {
	store    *MemoryStore
	released bool
}

func (h *memoryHandle) Query(_ context.Context, name string) (string, bool, error) {
	if h.released {
		return "", false, provider.ErrReleased
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.queries++
	v, ok := h.store.m[name]
	return v, ok, nil
}

func (h *memoryHandle) Insert(_ context.Context, name, value string) error {
	if h.released {
		return provider.ErrReleased
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if h.store.readOnly {
		return ErrReadOnly
	}
	h.store.m[name] = value
	return nil
}

func (h *memoryHandle) List(context.Context) ([]domain.Setting, error) {
	if h.released {
		return nil, provider.ErrReleased
	}
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	out := make([]domain.Setting, 0, len(h.store.m))
	for k, v := range h.store.m {
		out = append(out, domain.Setting{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (h *memoryHandle) Release() error {
	if h.released {
		return provider.ErrReleased
	}
	h.released = true
	return nil
}
