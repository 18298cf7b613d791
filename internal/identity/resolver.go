// Package identity resolves the facts used to stamp events with the identity of the device:
// serial, workstation name, media device id and the composite user name.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/identity/platform"
	"fleet-telemetry/agent/internal/provider"
	"fleet-telemetry/agent/internal/settings"
)

// UnknownSerial is substituted when the serial cannot be read.
const UnknownSerial = "unknown"

// Settings keys read by the resolver.
const (
	RegisterNumberKey   = "registerNumber"
	DeviceTokenKey      = "deviceToken"
	BaseURLKey          = "baseUrl"
	TextbooksBaseURLKey = "baseUrlTextbooks"
)

// WorkstationPrefix is prepended to the install-scoped id to form the workstation name.
const WorkstationPrefix = "a-"

// SettingsReader is the subset of the settings client the resolver needs.
type SettingsReader interface {
	Value(ctx context.Context, name string) (string, bool)
}

// Resolver answers identity queries. It holds no state between calls.
type Resolver struct {
	settings       SettingsReader
	platform       platform.Platform
	deviceSettings provider.Provider[provider.Handle]
	detached       bool
	logger         zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDeviceSettings sets the provider probed by IsSharedOrAssignedDevice.
func WithDeviceSettings(p provider.Provider[provider.Handle]) Option {
	return func(r *Resolver) { r.deviceSettings = p }
}

// WithDetached marks the host as a detached or virtual environment; Serial then reports UnknownSerial.
func WithDetached(detached bool) Option {
	return func(r *Resolver) { r.detached = detached }
}

// NewResolver returns a Resolver reading settings through s and host facts through p.
func NewResolver(s SettingsReader, p platform.Platform, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		settings: s,
		platform: p,
		logger:   logger.With().Str("component", "identity").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Serial returns the hardware serial, or UnknownSerial when the host denies access, the serial is
// unavailable, or the environment is virtual.
func (r *Resolver) Serial(ctx context.Context) string {
	if r.detached || strings.HasPrefix(r.platform.Product(), "sdk_") {
		return UnknownSerial
	}
	serial, err := r.platform.Serial()
	if err != nil {
		ev := r.logger.Debug()
		if errors.Is(err, platform.ErrAccessDenied) {
			ev = r.logger.Warn()
		}
		ev.Err(err).Msg("serial unavailable, using unknown")
		return UnknownSerial
	}
	return serial
}

// WorkstationName returns "a-" followed by the install-scoped id.
func (r *Resolver) WorkstationName(ctx context.Context) string {
	id, err := r.platform.InstallID()
	if err != nil {
		r.logger.Warn().Err(err).Msg("install id unavailable")
		id = UnknownSerial
	}
	return WorkstationPrefix + id
}

// MediaDeviceID returns the cached media device id when one is stored, otherwise derives it from
// the serial prefix. See MediaDeviceIDFromSerial.
func (r *Resolver) MediaDeviceID(ctx context.Context, serial string) (int, error) {
	if cached, ok := r.settings.Value(ctx, MediaDeviceIDKey); ok {
		return parseMediaDeviceID(cached)
	}
	return MediaDeviceIDFromSerial(serial)
}

// RegisterNumber returns the register number override, or "" when none is configured.
func (r *Resolver) RegisterNumber(ctx context.Context) string {
	v, _ := r.settings.Value(ctx, RegisterNumberKey)
	return v
}

// UserName resolves serial, media device id and register number and formats them with FormatAsUserName.
func (r *Resolver) UserName(ctx context.Context) (string, error) {
	serial := r.Serial(ctx)
	id, err := r.MediaDeviceID(ctx, serial)
	if err != nil {
		return "", err
	}
	return FormatAsUserName(r.RegisterNumber(ctx), serial, id), nil
}

// DeviceToken returns the provisioned device token.
func (r *Resolver) DeviceToken(ctx context.Context) (string, error) {
	return r.required(ctx, DeviceTokenKey)
}

// BaseURL returns the API base URL.
func (r *Resolver) BaseURL(ctx context.Context) (string, error) {
	return r.required(ctx, BaseURLKey)
}

// TextbooksBaseURL returns the textbooks base URL.
func (r *Resolver) TextbooksBaseURL(ctx context.Context) (string, error) {
	return r.required(ctx, TextbooksBaseURLKey)
}

func (r *Resolver) required(ctx context.Context, key string) (string, error) {
	v, ok := r.settings.Value(ctx, key)
	if !ok {
		return "", fmt.Errorf("%w: %s", settings.ErrNotFound, key)
	}
	return v, nil
}

// Model returns the hardware model name.
func (r *Resolver) Model(ctx context.Context) string { return r.platform.Model() }

// SystemVersion returns the OS version.
func (r *Resolver) SystemVersion(ctx context.Context) string { return r.platform.SystemVersion() }

// Locale returns the host locale in "en_US" form.
func (r *Resolver) Locale(ctx context.Context) string { return r.platform.Locale() }

// IsSharedOrAssignedDevice reports whether the device-settings capability is reachable.
// Any failure to reach it, including it not being configured, yields false.
func (r *Resolver) IsSharedOrAssignedDevice(ctx context.Context) bool {
	if r.deviceSettings == nil {
		return false
	}
	return provider.Reachable(ctx, r.deviceSettings)
}

// Snapshot is a point-in-time view of everything the resolver knows about the device.
type Snapshot struct {
	Serial           string `json:"serial"`
	Workstation      string `json:"workstation"`
	Model            string `json:"model"`
	SystemVersion    string `json:"systemVersion"`
	Locale           string `json:"locale"`
	MediaDeviceID    *int   `json:"mediaDeviceId,omitempty"`
	User             string `json:"user,omitempty"`
	SharedOrAssigned bool   `json:"sharedOrAssigned"`
	// Error is set when the media device id could not be resolved; MediaDeviceID and User are then empty.
	Error string `json:"error,omitempty"`
}

// Snapshot resolves every identity fact once. Identity errors are reported in Snapshot.Error
// rather than returned.
func (r *Resolver) Snapshot(ctx context.Context) Snapshot {
	serial := r.Serial(ctx)
	s := Snapshot{
		Serial:           serial,
		Workstation:      r.WorkstationName(ctx),
		Model:            r.Model(ctx),
		SystemVersion:    r.SystemVersion(ctx),
		Locale:           r.Locale(ctx),
		SharedOrAssigned: r.IsSharedOrAssignedDevice(ctx),
	}
	id, err := r.MediaDeviceID(ctx, serial)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.MediaDeviceID = &id
	s.User = FormatAsUserName(r.RegisterNumber(ctx), serial, id)
	return s
}
