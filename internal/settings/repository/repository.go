// Package repository provides settings store providers.
package repository

import (
	"context"

	"fleet-telemetry/agent/internal/provider"
	"fleet-telemetry/agent/internal/settings/domain"
)

// Handle is an acquired connection to the settings store.
type Handle interface {
	provider.Handle
	// Query returns the value stored under name. ok is false when the key is absent.
	Query(ctx context.Context, name string) (value string, ok bool, err error)
	// Insert writes name=value, replacing any previous value.
	Insert(ctx context.Context, name, value string) error
	// List returns every setting ordered by name.
	List(ctx context.Context) ([]domain.Setting, error)
}
