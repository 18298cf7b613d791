// Package app assembles the agent from configuration: settings store, identity resolver, event
// sink and pipeline. The binaries under cmd share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/config"
	"fleet-telemetry/agent/internal/db"
	"fleet-telemetry/agent/internal/devicesettings"
	"fleet-telemetry/agent/internal/events"
	"fleet-telemetry/agent/internal/identity"
	"fleet-telemetry/agent/internal/identity/platform"
	"fleet-telemetry/agent/internal/settings"
	"fleet-telemetry/agent/internal/settings/repository"
	"fleet-telemetry/agent/internal/telemetry/otel"
)

// App is an assembled agent.
type App struct {
	Settings *settings.Client
	Resolver *identity.Resolver
	Pipeline *events.Pipeline
	Registry *prometheus.Registry
	OTel     *otel.Providers
	AppInfo  identity.AppInfoSource

	logger  zerolog.Logger
	closers []func(context.Context) error
}

// Option configures New.
type Option func(*options)

type options struct {
	platform platform.Platform
}

// WithPlatform replaces the host platform, e.g. in tests.
func WithPlatform(p platform.Platform) Option {
	return func(o *options) { o.platform = p }
}

// New builds the agent. Unset optional dependencies (settings database, device-settings address,
// sink connection details) become absent providers.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.AppInfo = identity.BuildAppInfo(identity.ApplicationInfo{
		Name:        cfg.AppName,
		VersionName: cfg.AppVersionName,
		VersionCode: cfg.AppVersionCode,
	}, nil)
	info := a.AppInfo()

	providers, err := otel.NewProviders(ctx, otel.Config{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: info.DisplayVersion(),
		Insecure:       cfg.OTelInsecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	a.OTel = providers

	settingsDB, err := db.OpenLazy(cfg.SettingsDatabaseURL)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("settings database: %w", err)
	}
	if settingsDB != nil {
		a.closers = append(a.closers, func(context.Context) error { return settingsDB.Close() })
	} else {
		logger.Info().Msg("SETTINGS_DATABASE_URL not set; settings store absent")
	}
	a.Settings = settings.NewClient(repository.NewPostgresProvider(settingsDB, logger), logger)

	if o.platform == nil {
		o.platform = platform.NewLinux(info.Name)
	}
	probe := devicesettings.NewProbe(cfg.DeviceSettingsAddr, logger, devicesettings.WithTimeout(cfg.ProbeTimeout()))
	a.Resolver = identity.NewResolver(a.Settings, o.platform, logger,
		identity.WithDeviceSettings(probe),
		identity.WithDetached(cfg.Detached),
	)

	sink, closeSink, err := NewSink(cfg, providers.LoggerProvider, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, closeSink)

	a.Pipeline = events.New(sink, a.Resolver, a.AppInfo, logger,
		events.WithMetrics(events.NewMetrics(a.Registry)),
	)
	return a, nil
}

// Close drains queued events, then releases sinks, databases and OTel providers in that order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Pipeline != nil {
		if err := a.Pipeline.Close(ctx); err != nil {
			a.logger.Warn().Err(err).Int("pending", a.Pipeline.Pending()).Msg("event queue not drained")
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.OTel != nil {
		if err := a.OTel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
