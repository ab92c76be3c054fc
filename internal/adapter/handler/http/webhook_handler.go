package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/domain/provider"
	appErrors "github.com/wekeepgrowing/semo-membership/pkg/errors"
)

// maxWebhookBodyBytes bounds the webhook body read. Larger bodies are rejected, never truncated.
const maxWebhookBodyBytes = 1 << 20

// EventRecorder stores inbound lifecycle events.
type EventRecorder interface {
	Record(ctx context.Context, inbound *entity.InboundEvent) (bool, error)
}

type WebhookHandler struct {
	source   provider.EventSource
	recorder EventRecorder
	logger   *zap.Logger
}

func NewWebhookHandler(source provider.EventSource, recorder EventRecorder, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		source:   source,
		recorder: recorder,
		logger:   logger,
	}
}

// HandleWebhook verifies a processor webhook and records it in the event history. Storage
// failures answer 500 so the processor redelivers.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodyBytes+1))
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}
	if len(body) > maxWebhookBodyBytes {
		h.logger.Error("Webhook body exceeds limit",
			zap.String("provider", h.source.GetProviderName()),
			zap.Int("limit_bytes", maxWebhookBodyBytes))
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "Webhook body too large"})
	}

	sig := c.Request().Header.Get("Stripe-Signature")

	inbound, err := h.source.ParseWebhook(c.Request().Context(), body, sig)
	if err != nil {
		h.logger.Warn("Webhook verification failed",
			zap.String("provider", h.source.GetProviderName()),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Webhook signature verification failed"})
	}
	if inbound == nil {
		return c.JSON(http.StatusOK, echo.Map{"received": true, "recorded": false})
	}

	h.logger.Info("Webhook event received",
		zap.String("event_id", inbound.Event.ExternalEventID),
		zap.String("type", string(inbound.Event.Type)),
		zap.Time("created", inbound.Event.CreatedAt))

	recorded, err := h.recorder.Record(c.Request().Context(), inbound)
	if err != nil {
		if errors.Is(err, domainErrors.ErrInvalidEvent) {
			err = appErrors.NewAppError(appErrors.ErrInvalidArgument, "invalid lifecycle event", err)
		} else {
			err = appErrors.Wrap(err, "failed to record event")
		}

		code := appErrors.CodeOf(err)
		status := appErrors.ToHTTPStatus(code)
		if status >= http.StatusInternalServerError {
			appErrors.LogError(h.logger, err, "Failed to record webhook event",
				zap.String("event_id", inbound.Event.ExternalEventID))
		} else {
			h.logger.Warn("Rejected invalid webhook event",
				zap.String("event_id", inbound.Event.ExternalEventID),
				zap.Error(err))
		}
		return c.JSON(status, echo.Map{"error": err.Error(), "code": code})
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true, "recorded": recorded})
}
