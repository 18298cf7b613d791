// Package devicesettings probes the device-settings capability. Only its reachability is used:
// a device where it answers is a shared or assigned device.
package devicesettings

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"fleet-telemetry/agent/internal/provider"
)

// DefaultTimeout bounds one probe when none is configured.
const DefaultTimeout = 2 * time.Second

// Probe is a provider.Provider for the device-settings capability. TryAcquire dials the
// capability and succeeds only when its health service reports SERVING for
// provider.DeviceSettingsAuthority.
type Probe struct {
	addr     string
	timeout  time.Duration
	logger   zerolog.Logger
	dialOpts []grpc.DialOption
}

// Option configures a Probe.
type Option func(*Probe)

// WithTimeout sets the per-probe deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithDialOptions appends gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(p *Probe) { p.dialOpts = append(p.dialOpts, opts...) }
}

// NewProbe returns a probe for the capability at addr. It returns nil when addr is empty,
// which callers treat as a capability that is never reachable.
func NewProbe(addr string, logger zerolog.Logger, opts ...Option) *Probe {
	if addr == "" {
		return nil
	}
	p := &Probe{
		addr:    addr,
		timeout: DefaultTimeout,
		logger:  logger.With().Str("component", "devicesettings").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TryAcquire dials and health-checks the capability. A nil Probe is absent.
func (p *Probe) TryAcquire(ctx context.Context) (provider.Handle, bool) {
	if p == nil {
		return nil, false
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, p.dialOpts...)
	conn, err := grpc.NewClient(p.addr, opts...)
	if err != nil {
		p.logger.Debug().Err(err).Str("addr", p.addr).Msg("device settings dial failed")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{
		Service: provider.DeviceSettingsAuthority,
	})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		_ = conn.Close()
		p.logger.Debug().Err(err).Str("status", resp.GetStatus().String()).Msg("device settings not reachable")
		return nil, false
	}
	return &handle{conn: conn}, true
}

var _ provider.Provider[provider.Handle] = (*Probe)(nil)

type handle struct {
	conn *grpc.ClientConn
}

func (h *handle) Release() error {
	if h.conn == nil {
		return provider.ErrReleased
	}
	err := h.conn.Close()
	h.conn = nil
	return err
}
