package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wekeepgrowing/semo-membership/internal/config"
	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	"github.com/wekeepgrowing/semo-membership/pkg/logger"
)

// Readiness reports whether a metrics value is available.
type Readiness interface {
	Cached() (*entity.Metrics, bool)
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewServer creates the gRPC server with the health service registered. Both the overall
// status and the service named in cfg.Service.Name start NOT_SERVING.
func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(logger.NewGrpcUnaryServerInterceptor(log)),
		grpc.ChainStreamInterceptor(logger.NewGrpcStreamServerInterceptor(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{
		config: cfg,
		logger: log,
		server: srv,
		health: hs,
	}
	s.SetServing(false)
	return s
}

// SetServing flips the health status of the service.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.config.Service.Name, status)
}

// WatchReadiness marks the service SERVING as soon as r holds a metrics value. It returns
// when that happens or ctx is done.
func (s *Server) WatchReadiness(ctx context.Context, r Readiness, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, ok := r.Cached(); ok {
			s.SetServing(true)
			s.logger.Info("gRPC health status set to SERVING")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.GRPC.Host, s.config.Server.GRPC.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.logger.Info("Starting gRPC server", zap.String("address", addr))
	return s.Serve(listener)
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.listener = listener
	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		s.health.Shutdown()
		s.server.GracefulStop()
	}
	return nil
}
