// Package jobs contains background workers that run on a schedule.
//
// verification_mailer.go implements the outbox relay: it claims due email_outbox rows with
// FOR UPDATE SKIP LOCKED, hands each to the mail sender, and records the outcome. Failed
// sends are retried with exponential backoff until max_attempts, after which the row is
// marked failed. Several replicas can run the relay at once; a row is only ever held by one.
package jobs

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"time"

	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/mail"
	"github.com/event-registry/event-registry/internal/telemetry"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 20
	defaultMaxAttempts  = 8

	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = time.Hour
)

// VerificationMailer delivers queued verification emails.
type VerificationMailer struct {
	db          *sql.DB
	sender      mail.Sender
	interval    time.Duration
	batchSize   int
	maxAttempts int
	stopChan    chan struct{}
	now         func() time.Time
}

// NewVerificationMailer creates a new VerificationMailer. Zero config values fall back to
// defaults.
func NewVerificationMailer(sqlDB *sql.DB, sender mail.Sender, cfg *config.NotificationsConfig) *VerificationMailer {
	m := &VerificationMailer{
		db:          sqlDB,
		sender:      sender,
		interval:    cfg.PollInterval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		stopChan:    make(chan struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
	if m.interval <= 0 {
		m.interval = defaultPollInterval
	}
	if m.batchSize <= 0 {
		m.batchSize = defaultBatchSize
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = defaultMaxAttempts
	}
	return m
}

// Start runs the relay loop until ctx is cancelled or Stop is called. It drains once
// immediately on startup.
func (m *VerificationMailer) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("verification mailer started", "interval", m.interval, "batch_size", m.batchSize,
		"max_attempts", m.maxAttempts)

	m.tick(ctx)
	for {
		select {
		case <-ticker.C:
			m.tick(ctx)
		case <-m.stopChan:
			slog.Info("verification mailer stopped")
			return
		case <-ctx.Done():
			slog.Info("verification mailer context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit.
func (m *VerificationMailer) Stop() {
	close(m.stopChan)
}

func (m *VerificationMailer) tick(ctx context.Context) {
	// Keep draining while full batches come back so a backlog clears without waiting a tick.
	for {
		n, err := m.RunOnce(ctx)
		if err != nil {
			slog.Error("verification mailer: relay pass failed", "error", err)
			break
		}
		if n < m.batchSize || ctx.Err() != nil {
			break
		}
	}
	m.refreshPendingGauge(ctx)
}

// RunOnce claims one batch of due messages and attempts each. It returns the number of
// messages claimed.
func (m *VerificationMailer) RunOnce(ctx context.Context) (int, error) {
	claimed := 0
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		outbox := repositories.NewOutboxRepository(tx)

		msgs, err := outbox.ClaimDue(ctx, m.now(), m.batchSize)
		if err != nil {
			return err
		}
		claimed = len(msgs)

		for _, msg := range msgs {
			sendErr := m.sender.Send(ctx, mail.Message{To: msg.Recipient, Subject: msg.Subject, Body: msg.Body})
			switch {
			case sendErr == nil:
				err = outbox.MarkSent(ctx, msg.ID, m.now())
				telemetry.EmailDeliveriesTotal.WithLabelValues(telemetry.ResultSuccess).Inc()
			case msg.Attempts+1 >= m.maxAttempts:
				slog.Error("verification mailer: giving up on message", "outbox_uuid", msg.UUID,
					"attempts", msg.Attempts+1, "error", sendErr)
				err = outbox.MarkFailed(ctx, msg.ID, sendErr.Error())
				telemetry.EmailDeliveriesTotal.WithLabelValues(telemetry.ResultFailed).Inc()
			default:
				next := m.now().Add(Backoff(msg.Attempts + 1))
				slog.Warn("verification mailer: send failed, will retry", "outbox_uuid", msg.UUID,
					"attempts", msg.Attempts+1, "next_attempt_at", next, "error", sendErr)
				err = outbox.MarkRetry(ctx, msg.ID, next, sendErr.Error())
				telemetry.EmailDeliveriesTotal.WithLabelValues(telemetry.ResultRetry).Inc()
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (m *VerificationMailer) refreshPendingGauge(ctx context.Context) {
	n, err := repositories.NewOutboxRepository(m.db).CountPending(ctx)
	if err != nil {
		slog.Warn("verification mailer: failed to count pending messages", "error", err)
		return
	}
	telemetry.EmailOutboxPending.Set(float64(n))
}

// Backoff returns the wait before the next attempt after attempts failures:
// 30s, 1m, 2m, ... capped at one hour.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(retryBaseDelay) * math.Pow(2, float64(attempts-1)))
	if d > retryMaxDelay || d <= 0 {
		return retryMaxDelay
	}
	return d
}
