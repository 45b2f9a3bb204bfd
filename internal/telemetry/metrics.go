// Package telemetry provides application-level observability for the event registry.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served on the
// side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<EVR_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Submission creation outcomes
//   - Verification token issuance and verification outcomes
//   - Outbox email delivery outcomes and backlog
//   - Rate limiter rejections
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/admin/events/:uuid)
// rather than the raw request URL so user-supplied path segments cannot explode
// label cardinality. Result labels are drawn from small fixed sets.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%): sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency:    histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Result label values shared by the domain counters.
const (
	ResultSuccess     = "success"
	ResultRejected    = "rejected"
	ResultError       = "error"
	ResultCooldown    = "cooldown"
	ResultRateLimited = "rate_limited"
	ResultExpired     = "expired"
	ResultUsed        = "used"
	ResultNotFound    = "not_found"
	ResultRetry       = "retry"
	ResultFailed      = "failed"
)

// Registration metrics.
//
// SubmissionsCreatedTotal{result}: success | rejected (validation) | error.
// VerificationTokensIssuedTotal{result}: success | cooldown | rate_limited | rejected | error.
// VerificationsTotal{result}: success | not_found | used | expired | error.
//
// Example PromQL queries:
//   - Verification completion ratio: rate(verifications_total{result="success"}[1h]) / rate(verification_tokens_issued_total{result="success"}[1h])
var (
	SubmissionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_created_total",
			Help: "Total number of public submission attempts, by result.",
		},
		[]string{"result"},
	)

	VerificationTokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_tokens_issued_total",
			Help: "Total number of email verification token issue attempts, by result.",
		},
		[]string{"result"},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Total number of email verification attempts, by result.",
		},
		[]string{"result"},
	)
)

// Outbox delivery metrics, recorded by the verification mailer job.
//
// EmailDeliveriesTotal{result}: success | retry | failed.
// EmailOutboxPending is sampled after each relay poll. A steadily growing value means
// the mail server is rejecting or timing out.
var (
	EmailDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_deliveries_total",
			Help: "Total number of outbox email delivery attempts, by result.",
		},
		[]string{"result"},
	)

	EmailOutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "email_outbox_pending",
			Help: "Number of outbox emails waiting for delivery.",
		},
	)
)

// RateLimitRejectionsTotal counts requests rejected by the HTTP rate limiter, by scope
// (public, auth).
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by scope.",
	},
	[]string{"scope"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool. It is
// sampled every 30 seconds by StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every interval until ctx is done.
// Run it through safego.Go.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("db stats collector: database unreachable", "error", err)
				continue
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}
}
