// Package provider models addressable external services that are probed before use.
// A provider may be absent (not installed, not started, detached environment); absence is a
// normal state reported by TryAcquire, never an error.
package provider

import (
	"context"
	"errors"
)

// Authorities of the external collaborators this agent talks to.
const (
	// EventsAuthority addresses the event sink.
	EventsAuthority = "com.advtechgrp.operations.events.provider"
	// SettingsAuthority addresses the flat key/value settings store.
	SettingsAuthority = "com.advtechgrp.session.settings.provider"
	// DeviceSettingsAuthority addresses the device-settings capability; only its reachability is used.
	DeviceSettingsAuthority = "com.advtechgrp.device.settings.provider"
)

// Handle is an acquired reference to a provider. Release must be called exactly once.
type Handle interface {
	Release() error
}

// Provider hands out handles of type H. ok is false when the provider is absent.
type Provider[H Handle] interface {
	TryAcquire(ctx context.Context) (h H, ok bool)
}

// Func adapts a function to Provider.
type Func[H Handle] func(ctx context.Context) (H, bool)

// TryAcquire calls f.
func (f Func[H]) TryAcquire(ctx context.Context) (H, bool) {
	return f(ctx)
}

// Absent returns a provider that is never available.
func Absent[H Handle]() Provider[H] {
	return Func[H](func(context.Context) (H, bool) {
		var zero H
		return zero, false
	})
}

// Use acquires a handle from p, runs fn with it and releases it on every path.
// acquired is false (and fn is not called) when the provider is absent. A release failure is
// returned only when fn succeeded.
func Use[H Handle](ctx context.Context, p Provider[H], fn func(H) error) (acquired bool, err error) {
	if p == nil {
		return false, nil
	}
	h, ok := p.TryAcquire(ctx)
	if !ok {
		return false, nil
	}
	defer func() {
		if relErr := h.Release(); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return true, fn(h)
}

// Reachable reports whether p can currently be acquired. The handle is released immediately.
func Reachable[H Handle](ctx context.Context, p Provider[H]) bool {
	ok, err := Use(ctx, p, func(H) error { return nil })
	return ok && err == nil
}

// NopRelease can be embedded by handles that hold nothing to release.
type NopRelease struct{}

// Release does nothing.
func (NopRelease) Release() error { return nil }

// ErrReleased is returned by handles used after Release.
var ErrReleased = errors.New("provider: handle already released")
