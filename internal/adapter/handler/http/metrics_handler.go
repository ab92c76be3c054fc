package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/middleware/auth"
	appErrors "github.com/wekeepgrowing/semo-membership/pkg/errors"
)

// MetricsService serves cached membership metrics.
type MetricsService interface {
	Get(ctx context.Context, force bool) (*entity.Metrics, error)
	Invalidate()
}

type MetricsHandler struct {
	metrics MetricsService
	logger  *zap.Logger
}

func NewMetricsHandler(metrics MetricsService, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		logger:  logger,
	}
}

// GetMetrics returns the membership metric set. force=true bypasses the cache TTL.
func (h *MetricsHandler) GetMetrics(c echo.Context) error {
	force := false
	if raw := c.QueryParam("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return appErrors.ToHTTPError(appErrors.NewAppError(appErrors.ErrInvalidArgument, "force must be a boolean", err))
		}
		force = parsed
	}

	metrics, err := h.metrics.Get(c.Request().Context(), force)
	if err != nil {
		appErrors.LogError(h.logger, err, "Failed to get membership metrics",
			zap.Bool("force", force),
			zap.String("step", domainErrors.StepOf(err)))
		if errors.Is(err, domainErrors.ErrMetricsUnavailable) {
			return appErrors.ToHTTPError(appErrors.NewAppError(appErrors.ErrUnavailable, "membership metrics are unavailable", err))
		}
		return appErrors.ToHTTPError(appErrors.Wrap(err, "failed to get membership metrics"))
	}

	if metrics.Stale {
		h.logger.Warn("Serving stale membership metrics",
			zap.String("run_id", metrics.RunID),
			zap.Duration("age", metrics.Age(time.Now())),
			zap.String("last_error", metrics.LastError))
	}

	return c.JSON(http.StatusOK, metrics)
}

// Invalidate drops the cached value so the next read recomputes.
func (h *MetricsHandler) Invalidate(c echo.Context) error {
	h.metrics.Invalidate()

	fields := []zap.Field{}
	if user, err := auth.GetUserFromContext(c); err == nil {
		fields = append(fields, zap.String("subject", user.Subject), zap.String("email", user.Email))
	}
	h.logger.Info("Membership metrics cache invalidated", fields...)
	return c.JSON(http.StatusAccepted, echo.Map{"invalidated": true})
}
