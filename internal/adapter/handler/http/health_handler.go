package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	service string
	checks  map[string]HealthCheck
	logger  *zap.Logger
}

func NewHealthHandler(service string, checks map[string]HealthCheck, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		checks:  checks,
		logger:  logger,
	}
}

// Health runs every check with a short timeout. Any failing check answers 503.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	return c.JSON(code, echo.Map{
		"status":  status,
		"service": h.service,
		"checks":  results,
	})
}
