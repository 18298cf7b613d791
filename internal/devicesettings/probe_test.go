package devicesettings

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"fleet-telemetry/agent/internal/provider"
)

// startHealth serves a health service over bufconn and returns a probe dialing it.
func startHealth(t *testing.T) (*health.Server, *Probe) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	hs := health.NewServer()
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	p := NewProbe("passthrough:///bufnet", zerolog.Nop(),
		WithTimeout(time.Second),
		WithDialOptions(grpc.WithContextDialer(dialer)),
	)
	return hs, p
}

func TestNewProbe_EmptyAddr(t *testing.T) {
	p := NewProbe("", zerolog.Nop())
	if p != nil {
		t.Fatal("NewProbe with empty addr should return nil")
	}
	if _, ok := p.TryAcquire(context.Background()); ok {
		t.Error("nil probe should be absent")
	}
	if provider.Reachable[provider.Handle](context.Background(), p) {
		t.Error("nil probe should not be reachable")
	}
}

func TestTryAcquire_Serving(t *testing.T) {
	hs, p := startHealth(t)
	hs.SetServingStatus(provider.DeviceSettingsAuthority, healthpb.HealthCheckResponse_SERVING)

	h, ok := p.TryAcquire(context.Background())
	if !ok {
		t.Fatal("TryAcquire should succeed when the capability is serving")
	}
	if err := h.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
	if err := h.Release(); !errors.Is(err, provider.ErrReleased) {
		t.Errorf("second Release err = %v, want ErrReleased", err)
	}
}

func TestTryAcquire_NotServing(t *testing.T) {
	hs, p := startHealth(t)
	hs.SetServingStatus(provider.DeviceSettingsAuthority, healthpb.HealthCheckResponse_NOT_SERVING)

	if _, ok := p.TryAcquire(context.Background()); ok {
		t.Error("TryAcquire should fail when the capability is not serving")
	}
}

func TestTryAcquire_UnknownService(t *testing.T) {
	_, p := startHealth(t)
	// Only the overall server status is set; the capability itself is not registered.
	if _, ok := p.TryAcquire(context.Background()); ok {
		t.Error("TryAcquire should fail when the capability is not registered")
	}
}

func TestTryAcquire_Unreachable(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	_ = lis.Close()
	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	p := NewProbe("passthrough:///bufnet", zerolog.Nop(),
		WithTimeout(200*time.Millisecond),
		WithDialOptions(grpc.WithContextDialer(dialer)),
	)
	if provider.Reachable[provider.Handle](context.Background(), p) {
		t.Error("closed listener should not be reachable")
	}
}

func TestReachable_FollowsStatus(t *testing.T) {
	hs, p := startHealth(t)
	ctx := context.Background()

	hs.SetServingStatus(provider.DeviceSettingsAuthority, healthpb.HealthCheckResponse_SERVING)
	if !provider.Reachable[provider.Handle](ctx, p) {
		t.Error("should be reachable while serving")
	}
	hs.SetServingStatus(provider.DeviceSettingsAuthority, healthpb.HealthCheckResponse_NOT_SERVING)
	if provider.Reachable[provider.Handle](ctx, p) {
		t.Error("should not be reachable after status change")
	}
}
