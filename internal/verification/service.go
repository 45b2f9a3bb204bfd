// Package verification implements the email verification token lifecycle: issuing a
// single-use token for a target entity under a cooldown and an hourly cap, and consuming it.
//
// A token and the outbox row that delivers it are written in one transaction. Delivery
// itself happens later in the outbox relay job.
package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/mail"
	"github.com/event-registry/event-registry/internal/telemetry"
	"github.com/event-registry/event-registry/internal/validation"
)

// StatusVerified is the status reported by a successful Verify.
const StatusVerified = "verified"

// Result is returned by Verify.
type Result struct {
	Status  string `json:"status"`
	RefType string `json:"ref_type"`
	RefUUID string `json:"ref_uuid"`
}

// Service issues and consumes verification tokens
type Service struct {
	db  *sql.DB
	cfg config.VerificationConfig
	now func() time.Time
}

// NewService creates a new verification Service
func NewService(sqlDB *sql.DB, cfg config.VerificationConfig) *Service {
	return &Service{
		db:  sqlDB,
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SupportedRefType reports whether tokens can be issued for refType.
func SupportedRefType(refType string) bool {
	return refType == models.RefTypeSubmission
}

// Issue creates a fresh token for the target and queues its email.
//
// Checks run in order: supported ref type, target exists, target not yet verified,
// cooldown since the latest token, hourly cap per (email, ref_type, ref_uuid). On success all
// unused tokens of the target are invalidated before the new one is written.
func (s *Service) Issue(ctx context.Context, refType, refUUID string) (*models.EmailVerification, error) {
	v, err := s.issue(ctx, refType, refUUID)
	telemetry.VerificationTokensIssuedTotal.WithLabelValues(issueResult(err)).Inc()
	if err != nil {
		return nil, err
	}
	slog.Info("verification token issued", "ref_type", refType, "ref_uuid", refUUID, "expires_at", v.ExpiresAt)
	return v, nil
}

// Resend issues a replacement token. It applies exactly the same checks as Issue.
func (s *Service) Resend(ctx context.Context, refType, refUUID string) (*models.EmailVerification, error) {
	return s.Issue(ctx, refType, refUUID)
}

func (s *Service) issue(ctx context.Context, refType, refUUID string) (*models.EmailVerification, error) {
	if !SupportedRefType(refType) {
		return nil, apperr.Validationf("unsupported ref_type %q", refType)
	}
	refUUID, err := validation.NormalizeUUID(refUUID)
	if err != nil {
		return nil, apperr.Validation("ref_uuid must be a UUID")
	}

	now := s.now().UTC()
	var issued *models.EmailVerification

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		verifications := repositories.NewEmailVerificationRepository(tx)
		submissions := repositories.NewSubmissionRepository(tx)

		if err := verifications.LockRef(ctx, refType, refUUID); err != nil {
			return apperr.Internal("failed to lock verification target", err)
		}

		sub, err := submissions.GetByUUID(ctx, refUUID, false)
		if err != nil {
			return apperr.Internal("failed to load submission", err)
		}
		if sub == nil {
			return apperr.NotFound("submission not found")
		}

		verified, err := verifications.HasVerified(ctx, refType, refUUID)
		if err != nil {
			return apperr.Internal("failed to check verification state", err)
		}
		if verified {
			return apperr.Validation("email already verified")
		}

		latest, err := verifications.LatestCreatedAt(ctx, refType, refUUID)
		if err != nil {
			return apperr.Internal("failed to check cooldown", err)
		}
		if latest != nil {
			if elapsed := now.Sub(*latest); elapsed < s.cfg.Cooldown {
				wait := ceilSeconds(s.cfg.Cooldown - elapsed)
				return apperr.RateLimited(
					fmt.Sprintf("please wait %d seconds before requesting another verification email", int(wait/time.Second)),
					wait)
			}
		}

		count, err := verifications.CountSince(ctx, sub.ContactEmail, refType, refUUID, now.Add(-time.Hour))
		if err != nil {
			return apperr.Internal("failed to check hourly limit", err)
		}
		if count >= s.cfg.HourlyLimit {
			return apperr.RateLimited("too many verification emails requested, try again later", 0)
		}

		if _, err := verifications.InvalidateUnused(ctx, refType, refUUID, models.PublicActor()); err != nil {
			return apperr.Internal("failed to invalidate previous tokens", err)
		}

		token, err := auth.GenerateToken("")
		if err != nil {
			return apperr.Internal("failed to generate token", err)
		}

		v := &models.EmailVerification{
			RefType:   refType,
			RefUUID:   refUUID,
			Email:     sub.ContactEmail,
			Token:     token,
			ExpiresAt: now.Add(s.cfg.TokenTTL),
		}
		v.CreatedAt = now
		if err := verifications.Create(ctx, v, models.PublicActor()); err != nil {
			return apperr.Internal("failed to store token", err)
		}

		if err := s.enqueueEmail(ctx, tx, sub, v); err != nil {
			return err
		}
		issued = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

func (s *Service) enqueueEmail(ctx context.Context, tx *sql.Tx, sub *models.Submission, v *models.EmailVerification) error {
	event, err := repositories.NewEventRepository(tx).GetByUUID(ctx, sub.EventUUID, true)
	if err != nil {
		return apperr.Internal("failed to load event", err)
	}

	data := mail.VerificationData{
		TrackingCode: sub.TrackingCode,
		Link:         s.cfg.VerifyLink(v.Token),
		ExpiresAt:    v.ExpiresAt,
	}
	if event != nil {
		data.EventName = event.Name
	}

	subject, body, err := mail.VerificationEmail(data)
	if err != nil {
		return apperr.Internal("failed to render verification email", err)
	}

	refType, refUUID := v.RefType, v.RefUUID
	msg := &models.EmailOutbox{
		Kind:      models.OutboxKindVerification,
		Recipient: v.Email,
		Subject:   subject,
		Body:      body,
		RefType:   &refType,
		RefUUID:   &refUUID,
	}
	if err := repositories.NewOutboxRepository(tx).Enqueue(ctx, msg); err != nil {
		return apperr.Internal("failed to queue verification email", err)
	}
	return nil
}

// Verify consumes token. It never changes the status of the target entity.
func (s *Service) Verify(ctx context.Context, token string) (*Result, error) {
	res, result, err := s.verify(ctx, token)
	telemetry.VerificationsTotal.WithLabelValues(result).Inc()
	return res, err
}

func (s *Service) verify(ctx context.Context, token string) (*Result, string, error) {
	if token == "" {
		return nil, telemetry.ResultRejected, apperr.Validation("token is required")
	}

	repo := repositories.NewEmailVerificationRepository(s.db)
	v, err := repo.GetByToken(ctx, token)
	if err != nil {
		return nil, telemetry.ResultError, apperr.Internal("failed to load token", err)
	}
	if v == nil {
		return nil, telemetry.ResultNotFound, apperr.Validation("invalid verification token")
	}
	if v.IsUsed || v.VerifiedAt != nil {
		return nil, telemetry.ResultUsed, apperr.Validation("verification token has already been used")
	}

	now := s.now().UTC()
	if v.IsExpired(now) {
		return nil, telemetry.ResultExpired, apperr.Validation("verification token has expired")
	}

	if err := repo.MarkVerified(ctx, v, now, models.PublicActor()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, telemetry.ResultUsed, apperr.Validation("verification token has already been used")
		}
		return nil, telemetry.ResultError, apperr.Internal("failed to consume token", err)
	}

	slog.Info("email verified", "ref_type", v.RefType, "ref_uuid", v.RefUUID)
	return &Result{Status: StatusVerified, RefType: v.RefType, RefUUID: v.RefUUID}, telemetry.ResultSuccess, nil
}

// HasVerified reports whether the target has a consumed token.
func (s *Service) HasVerified(ctx context.Context, refType, refUUID string) (bool, error) {
	return repositories.NewEmailVerificationRepository(s.db).HasVerified(ctx, refType, refUUID)
}

// ceilSeconds rounds d up to a whole number of seconds.
func ceilSeconds(d time.Duration) time.Duration {
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

func issueResult(err error) string {
	if err == nil {
		return telemetry.ResultSuccess
	}
	e, ok := apperr.As(err)
	if !ok {
		return telemetry.ResultError
	}
	switch e.Kind {
	case apperr.KindRateLimited:
		if e.RetryAfter > 0 {
			return telemetry.ResultCooldown
		}
		return telemetry.ResultRateLimited
	case apperr.KindValidation, apperr.KindNotFound:
		return telemetry.ResultRejected
	default:
		return telemetry.ResultError
	}
}
