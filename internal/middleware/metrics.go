// metrics.go records Prometheus request metrics for every request that passes through the
// router.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/telemetry"
)

// noRouteLabel is the path label for requests that matched no route (404/405).
const noRouteLabel = "<no-route>"

// MetricsMiddleware returns a Gin handler that records two Prometheus metrics per request:
//
//   - http_requests_total{method, path, status}    CounterVec
//   - http_request_duration_seconds{method, path}  HistogramVec
//
// The path label is c.FullPath(), the matched route template
// (e.g. /api/v1/admin/submissions/:uuid/status) rather than the raw URL, so tracking codes
// and UUIDs never become label values. Route templates listed in skip (health checks) are
// not recorded.
//
// Register it after gin.Recovery() and RequestIDMiddleware so the status written by
// error handlers is captured.
func MetricsMiddleware(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if skipped[path] {
			return
		}
		if path == "" {
			path = noRouteLabel
		}

		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
