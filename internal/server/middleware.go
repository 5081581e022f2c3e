package server

import (
	"net"
	"net/http"
	"time"

	"beanbot/internal/logging"
	"beanbot/internal/observability"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ObservabilityMiddleware wraps each request in a span and, when
// latencyLogger is set, logs route, status and latency.
func ObservabilityMiddleware(latencyLogger logging.Logger) gin.HandlerFunc {
	hasLatencyLogger := !logging.IsNil(latencyLogger)
	return func(c *gin.Context) {
		start := time.Now()
		ctx, span := observability.StartSpan(c.Request.Context(), observability.SpanHTTPServer,
			attribute.String("http.method", c.Request.Method),
		)
		c.Request = c.Request.WithContext(ctx)
		defer span.End()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if hasLatencyLogger {
			latencyLogger.Info(
				"route=%s method=%s status=%d latency_ms=%.2f bytes=%d",
				route,
				c.Request.Method,
				status,
				float64(time.Since(start).Microseconds())/1000.0,
				c.Writer.Size(),
			)
		}
	}
}

// JSONMiddleware sets the JSON content type on API replies.
func JSONMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Next()
	}
}

// LoopbackOnlyMiddleware rejects requests whose peer address is not loopback.
// It reads the socket address, not forwarding headers.
func LoopbackOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			c.AbortWithStatusJSON(http.StatusForbidden, APIResponse{Error: "api is only served to local clients"})
			return
		}
		c.Next()
	}
}
