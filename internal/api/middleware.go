package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/biosync/internal/observability"
)

// LoggingMiddleware logs each request with slog and records its
// duration. Scrape and liveness endpoints are skipped so the metrics
// do not drown in their own polling. The metric path label is the
// route template (e.g. /v1/enroll/:userId/commit), not the raw URL,
// to keep the label cardinality bounded across user IDs.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/metrics" || path == "/healthz" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = path
		}

		slog.Info("request",
			"method", c.Request.Method,
			"path", path,
			"route", route,
			"status", status,
			"duration", duration.String(),
			"ip", c.ClientIP(),
		)

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			route,
			fmt.Sprintf("%d", status),
		).Observe(duration.Seconds())
	}
}
