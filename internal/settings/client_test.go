package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/provider"
	"fleet-telemetry/agent/internal/settings/repository"
)

func TestValue_PresentAndAbsent(t *testing.T) {
	store := repository.NewMemoryStore(map[string]string{"registerNumber": "123"})
	c := NewClient(store, zerolog.Nop())
	ctx := context.Background()

	v, ok := c.Value(ctx, "registerNumber")
	if !ok || v != "123" {
		t.Errorf("Value(registerNumber) = %q, %v; want %q, true", v, ok, "123")
	}
	v, ok = c.Value(ctx, "missing")
	if ok || v != "" {
		t.Errorf("Value(missing) = %q, %v; want empty, false", v, ok)
	}
}

func TestValue_StoreUnavailable(t *testing.T) {
	store := repository.NewMemoryStore(map[string]string{"baseUrl": "https://x"})
	store.SetAvailable(false)
	c := NewClient(store, zerolog.Nop())

	v, ok := c.Value(context.Background(), "baseUrl")
	if ok || v != "" {
		t.Errorf("Value with unavailable store = %q, %v; want empty, false", v, ok)
	}
}

func TestValue_NilStore(t *testing.T) {
	c := NewClient(nil, zerolog.Nop())
	if _, ok := c.Value(context.Background(), "anything"); ok {
		t.Error("Value with nil store should report absent")
	}
}

func TestValue_NoMemoization(t *testing.T) {
	store := repository.NewMemoryStore(map[string]string{"k": "v"})
	c := NewClient(store, zerolog.Nop())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c.Value(ctx, "k")
	}
	if got := store.Queries(); got != 3 {
		t.Errorf("store queries = %d, want 3 (one round trip per call)", got)
	}
}

func TestStore_WritesAndOverwrites(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	c := NewClient(store, zerolog.Nop())
	ctx := context.Background()

	if err := c.Store(ctx, "mediaDeviceId", "6"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Store(ctx, "mediaDeviceId", "9"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if v, _ := c.Value(ctx, "mediaDeviceId"); v != "9" {
		t.Errorf("Value after overwrite = %q, want %q", v, "9")
	}
}

func TestStore_NoProvider(t *testing.T) {
	c := NewClient(provider.Absent[repository.Handle](), zerolog.Nop())
	err := c.Store(context.Background(), "k", "v")
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Store err = %v, want *StoreError", err)
	}
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("Store err = %v, want ErrNoProvider", err)
	}
	if storeErr.Name != "k" {
		t.Errorf("StoreError.Name = %q, want %q", storeErr.Name, "k")
	}
}

func TestStore_Rejected(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	store.SetReadOnly(true)
	c := NewClient(store, zerolog.Nop())

	err := c.Store(context.Background(), "k", "v")
	if !errors.Is(err, repository.ErrReadOnly) {
		t.Errorf("Store err = %v, want ErrReadOnly", err)
	}
}

func TestList(t *testing.T) {
	store := repository.NewMemoryStore(map[string]string{"registerNumber": "R-1", "baseUrl": "https://x"})
	c := NewClient(store, zerolog.Nop())

	got, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Name != "baseUrl" || got[1].Name != "registerNumber" || got[1].Value != "R-1" {
		t.Errorf("List = %+v, want sorted by name", got)
	}

	store.SetAvailable(false)
	if _, err := c.List(context.Background()); !errors.Is(err, ErrNoProvider) {
		t.Errorf("List with absent store err = %v, want ErrNoProvider", err)
	}
}
