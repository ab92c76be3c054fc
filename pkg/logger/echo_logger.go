package logger

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// NewEchoRequestLogger logs every HTTP request through zap.
// Health and prometheus scrapes are skipped.
func NewEchoRequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics"
		},
		HandleError:  true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogRequestID: true,
		LogUserAgent: true,
		LogStatus:    true,
		LogError:     true,
		LogHeaders:   []string{"Authorization"},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request.remote_ip", v.RemoteIP),
				zap.String("request.method", v.Method),
				zap.String("request.uri", v.URI),
				zap.String("request.route", v.RoutePath),
				zap.String("request.user_agent", v.UserAgent),
				zap.String("request.request_id", v.RequestID),
				zap.Int("response.status", v.Status),
				zap.Duration("response.latency", v.Latency),
			}

			if values := v.Headers["Authorization"]; len(values) > 0 {
				fields = append(fields, zap.String("request.authorization", maskAuthorization(values[0])))
			}

			switch {
			case v.Error != nil:
				fields = append(fields, zap.Error(v.Error))
				logger.Error("Request failed", fields...)
			case v.Status >= 500:
				logger.Error("Server error", fields...)
			case v.Status >= 400:
				logger.Warn("Client error", fields...)
			default:
				logger.Info("Request completed", fields...)
			}
			return nil
		},
	})
}

// WithEchoLogger installs a zap backed HTTP error handler on e.
func WithEchoLogger(e *echo.Echo, logger *zap.Logger) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		var body interface{} = echo.Map{"error": http.StatusText(code)}
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			body = he.Message
			if msg, ok := he.Message.(string); ok {
				body = echo.Map{"error": msg}
			}
		}

		if code >= 500 {
			logger.Error("HTTP error",
				zap.Error(err),
				zap.Int("status", code),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
			)
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Error("Failed to send error response", zap.Error(err))
		}
	}
}

func maskAuthorization(value string) string {
	token := strings.TrimPrefix(value, "Bearer ")
	if len(token) <= 15 {
		return "[MASKED]"
	}
	return "Bearer " + token[:6] + "..." + token[len(token)-4:]
}
