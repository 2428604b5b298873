package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"

	"github.com/lvyanru/hitl-chat/pkg/logger"
)

// RequestIDKey request id header
const RequestIDKey = "X-Request-ID"

var quietPaths = map[string]bool{
	"/ping":   true,
	"/health": true,
}

// Logger logs each request and attaches a request-scoped logger to ctx.
func Logger(base *slog.Logger) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		path := string(c.Path())

		requestID := string(c.Request.Header.Peek(RequestIDKey))
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Response.Header.Set(RequestIDKey, requestID)

		reqLogger := base.With(
			"request_id", requestID,
			"method", string(c.Method()),
			"path", path,
			"client_ip", c.ClientIP(),
		)
		ctx = logger.WithContext(ctx, reqLogger)

		quiet := quietPaths[path]
		if !quiet {
			reqLogger.Info("request started")
		}

		c.Next(ctx)

		if quiet {
			return
		}

		latency := time.Since(start)
		statusCode := c.Response.StatusCode()
		reqLogger = reqLogger.With(
			"status", statusCode,
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
		)

		switch {
		case statusCode >= 500:
			reqLogger.Error("request completed with server error")
		case statusCode >= 400:
			reqLogger.Warn("request completed with client error")
		default:
			reqLogger.Info("request completed")
		}
	}
}

// GetRequestID request id assigned by Logger
func GetRequestID(c *app.RequestContext) string {
	return string(c.Response.Header.Peek(RequestIDKey))
}
