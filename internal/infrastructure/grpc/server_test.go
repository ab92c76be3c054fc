package grpc

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/wekeepgrowing/semo-membership/internal/config"
	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

type fakeReadiness struct {
	ready atomic.Bool
}

func (f *fakeReadiness) Cached() (*entity.Metrics, bool) {
	if !f.ready.Load() {
		return nil, false
	}
	return &entity.Metrics{}, true
}

func dialHealth(t *testing.T, srv *Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestServer_HealthFollowsReadiness(t *testing.T) {
	cfg := &config.Config{}
	cfg.Service.Name = "membership"
	srv := NewServer(cfg, zap.NewNop())
	client := dialHealth(t, srv)
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "membership"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	readiness := &fakeReadiness{}
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		srv.WatchReadiness(watchCtx, readiness, 5*time.Millisecond)
		close(done)
	}()

	readiness.ready.Store(true)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readiness watch did not finish")
	}

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "membership"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_WatchReadinessStopsOnCancel(t *testing.T) {
	cfg := &config.Config{}
	srv := NewServer(cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv.WatchReadiness(ctx, &fakeReadiness{}, time.Millisecond)

	resp, err := srv.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
