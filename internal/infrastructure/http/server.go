package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handlers "github.com/wekeepgrowing/semo-membership/internal/adapter/handler/http"
	"github.com/wekeepgrowing/semo-membership/internal/config"
	"github.com/wekeepgrowing/semo-membership/internal/middleware/auth"
	"github.com/wekeepgrowing/semo-membership/pkg/logger"
)

// Handlers groups the HTTP handlers mounted by the server.
type Handlers struct {
	Metrics *handlers.MetricsHandler
	Webhook *handlers.WebhookHandler
	Health  *handlers.HealthHandler
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	handlers Handlers
	gatherer prometheus.Gatherer
}

func NewServer(cfg *config.Config, log *zap.Logger, h Handlers, gatherer prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(logger.NewEchoRequestLogger(log))
	e.Use(middleware.Recover())
	if cfg.Service.ClientURL != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{cfg.Service.ClientURL},
			AllowMethods: []string{echo.GET, echo.POST},
		}))
	}
	logger.WithEchoLogger(e, log)

	s := &Server{
		config:   cfg,
		logger:   log,
		echo:     e,
		handlers: h,
		gatherer: gatherer,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.handlers.Health.Health)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	// Webhook route (outside API versioning)
	s.echo.POST("/webhook", s.handlers.Webhook.HandleWebhook)

	jwtConfig := auth.JWTConfig{
		Secret:       s.config.Auth.JWTSecret,
		Logger:       s.logger,
		RequiredRole: auth.DefaultAdminRole,
	}

	admin := s.echo.Group("/api/v1/admin", auth.JWTMiddleware(jwtConfig))
	admin.GET("/membership-metrics", s.handlers.Metrics.GetMetrics)
	admin.POST("/membership-metrics/invalidate", s.handlers.Metrics.Invalidate)
}
