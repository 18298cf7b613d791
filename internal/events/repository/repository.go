// Package repository defines the event sink handle and its Postgres and in-memory providers.
package repository

import (
	"context"

	"fleet-telemetry/agent/internal/events/domain"
	"fleet-telemetry/agent/internal/provider"
)

// SinkHandle is an acquired reference to an event sink.
type SinkHandle interface {
	provider.Handle
	// Insert durably records ev as a single write.
	Insert(ctx context.Context, ev *domain.EventRecord) error
}

// SinkProvider hands out sink handles.
type SinkProvider = provider.Provider[SinkHandle]
