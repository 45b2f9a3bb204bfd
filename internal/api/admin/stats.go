// stats.go implements the dashboard statistics handler: platform-wide counts of organizers,
// events, submissions and verification mail.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
)

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	db *sqlx.DB
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		db: database,
	}
}

// DashboardStats represents the response for dashboard statistics
type DashboardStats struct {
	Users         int64              `json:"users"`
	Organizers    StatusCounts       `json:"organizers"`
	Events        StatusCounts       `json:"events"`
	Submissions   StatusCounts       `json:"submissions"`
	Verifications VerificationStats  `json:"verifications"`
	Outbox        OutboxStats        `json:"outbox"`
	Recent        []RecentSubmission `json:"recent_submissions"`
}

// StatusCounts is a total with a per-status breakdown.
type StatusCounts struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

// VerificationStats summarises email verification tokens.
type VerificationStats struct {
	Issued   int64 `json:"issued"`
	Verified int64 `json:"verified"`
	Open     int64 `json:"open"` // unused and unexpired
}

// OutboxStats summarises the mail outbox.
type OutboxStats struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
}

// RecentSubmission is a row of the recent activity feed.
type RecentSubmission struct {
	UUID         string    `json:"uuid" db:"uuid"`
	TrackingCode string    `json:"tracking_code" db:"tracking_code"`
	Status       string    `json:"status" db:"status"`
	EventCode    string    `json:"event_code" db:"event_code"`
	EventName    string    `json:"event_name" db:"event_name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type statusRow struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

// @Summary      Get dashboard statistics
// @Description  Returns platform-wide counts of users, organizers, events, submissions, verification tokens and queued mail. Platform staff only.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  DashboardStats
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/stats/dashboard [get]
// GetDashboardStats returns dashboard statistics.
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	if err := auth.Authorize(identity(c), auth.Platform(auth.ResourceSubmission), auth.ActionRead); err != nil {
		response.Error(c, err)
		return
	}
	ctx := c.Request.Context()

	// Scalar counts in a single round-trip.
	var counts struct {
		Users         int64 `db:"user_count"`
		Issued        int64 `db:"verification_count"`
		Verified      int64 `db:"verified_count"`
		Open          int64 `db:"open_count"`
		OutboxPending int64 `db:"outbox_pending"`
		OutboxFailed  int64 `db:"outbox_failed"`
	}
	err := h.db.GetContext(ctx, &counts, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE is_deleted = false) AS user_count,
			(SELECT COUNT(*) FROM email_verifications) AS verification_count,
			(SELECT COUNT(*) FROM email_verifications WHERE verified_at IS NOT NULL) AS verified_count,
			(SELECT COUNT(*) FROM email_verifications WHERE is_used = false AND expires_at > NOW()) AS open_count,
			(SELECT COUNT(*) FROM email_outbox WHERE status = 'pending') AS outbox_pending,
			(SELECT COUNT(*) FROM email_outbox WHERE status = 'failed') AS outbox_failed
	`)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load dashboard statistics", err))
		return
	}

	stats := DashboardStats{
		Users:         counts.Users,
		Verifications: VerificationStats{Issued: counts.Issued, Verified: counts.Verified, Open: counts.Open},
		Outbox:        OutboxStats{Pending: counts.OutboxPending, Failed: counts.OutboxFailed},
	}

	for _, g := range []struct {
		table string
		dst   *StatusCounts
	}{
		{"organizers", &stats.Organizers},
		{"events", &stats.Events},
		{"submissions", &stats.Submissions},
	} {
		if *g.dst, err = h.statusCounts(c, g.table); err != nil {
			response.Error(c, apperr.Internal("failed to load "+g.table+" statistics", err))
			return
		}
	}

	// The feed is best-effort; the counts above are the contract.
	stats.Recent = []RecentSubmission{}
	_ = h.db.SelectContext(ctx, &stats.Recent, `
		SELECT s.uuid, s.tracking_code, s.status, e.code AS event_code, e.name AS event_name, s.created_at
		FROM submissions s
		JOIN events e ON e.uuid = s.event_uuid
		WHERE s.is_deleted = false
		ORDER BY s.created_at DESC
		LIMIT 8
	`)

	c.JSON(http.StatusOK, stats)
}

// statusCounts groups the live rows of table by status. table is one of a fixed set.
func (h *StatsHandler) statusCounts(c *gin.Context, table string) (StatusCounts, error) {
	var rows []statusRow
	err := h.db.SelectContext(c.Request.Context(), &rows,
		`SELECT status, COUNT(*) AS count FROM `+table+` WHERE is_deleted = false GROUP BY status`)
	if err != nil {
		return StatusCounts{}, err
	}
	out := StatusCounts{ByStatus: make(map[string]int64, len(rows))}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Count
		out.Total += r.Count
	}
	return out, nil
}
