// Package settings is the typed client over the external key/value settings store.
// It memoizes nothing: every call is a round trip to the store.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/provider"
	"fleet-telemetry/agent/internal/settings/domain"
	"fleet-telemetry/agent/internal/settings/repository"
)

var (
	// ErrNoProvider is returned by Store when the settings store is not reachable.
	ErrNoProvider = errors.New("settings: store not available")
	// ErrNotFound is returned by accessors that require a value when the key is absent.
	ErrNotFound = errors.New("settings: not found")
)

// StoreError reports a rejected write.
type StoreError struct {
	Name string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("settings: store %q: %v", e.Name, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Client reads and writes settings through a settings store provider.
type Client struct {
	store  provider.Provider[repository.Handle]
	logger zerolog.Logger
}

// NewClient returns a Client over store. A nil store behaves as an absent provider.
func NewClient(store provider.Provider[repository.Handle], logger zerolog.Logger) *Client {
	return &Client{store: store, logger: logger.With().Str("component", "settings").Logger()}
}

// Value returns the value for name. ok is false when the key is absent or the store is unreachable;
// Value never fails.
func (c *Client) Value(ctx context.Context, name string) (value string, ok bool) {
	_, err := provider.Use(ctx, c.store, func(h repository.Handle) error {
		var qerr error
		value, ok, qerr = h.Query(ctx, name)
		return qerr
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("name", name).Msg("settings read failed")
		return "", false
	}
	return value, ok
}

// Store writes name=value. It returns a *StoreError wrapping ErrNoProvider when the store is absent,
// or the underlying error when the write is rejected.
func (c *Client) Store(ctx context.Context, name, value string) error {
	acquired, err := provider.Use(ctx, c.store, func(h repository.Handle) error {
		return h.Insert(ctx, name, value)
	})
	if !acquired {
		return &StoreError{Name: name, Err: ErrNoProvider}
	}
	if err != nil {
		return &StoreError{Name: name, Err: err}
	}
	return nil
}

// List returns every stored setting ordered by name, or ErrNoProvider when the store is absent.
func (c *Client) List(ctx context.Context) ([]domain.Setting, error) {
	var out []domain.Setting
	acquired, err := provider.Use(ctx, c.store, func(h repository.Handle) error {
		var lerr error
		out, lerr = h.List(ctx)
		return lerr
	})
	if !acquired {
		return nil, ErrNoProvider
	}
	return out, err
}
