// Package submission implements the registration pipeline: validating answers against an
// event's form, writing the submission header and its values atomically, issuing the email
// verification token after commit, and guarded status changes.
package submission

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/db"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/lifecycle"
	"github.com/event-registry/event-registry/internal/telemetry"
	"github.com/event-registry/event-registry/internal/validation"
)

// trackingAttempts bounds regeneration after a tracking code collision.
const trackingAttempts = 3

// trackingAlphabet omits characters that are easy to misread.
const trackingAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// FieldValue is one answer in a create request
type FieldValue struct {
	FieldKey string          `json:"field_key"`
	Value    json.RawMessage `json:"value"`
}

// CreateInput carries a new registration
type CreateInput struct {
	EventUUID    string
	ContactEmail string
	UserUUID     *string
	Values       []FieldValue
	ExtraData    models.JSONMap
	IPAddress    *string
	UserAgent    *string
	Actor        models.Actor
}

// Issuer issues verification tokens for committed submissions.
type Issuer interface {
	Issue(ctx context.Context, refType, refUUID string) (*models.EmailVerification, error)
}

// Service coordinates submission writes
type Service struct {
	db     *sql.DB
	issuer Issuer
	now    func() time.Time
}

// NewService creates a new submission Service
func NewService(sqlDB *sql.DB, issuer Issuer) *Service {
	return &Service{
		db:     sqlDB,
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a submission for a published event.
//
// Every answer must name a field of the event and pass that field's validation, and every
// required field must be answered. Nothing is written unless all answers are accepted. The
// header and its values commit together; the verification token is issued afterwards and a
// failure there leaves the submission in place.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Submission, error) {
	sub, err := s.create(ctx, in)
	if err != nil {
		result := telemetry.ResultError
		if k := apperr.KindOf(err); k == apperr.KindValidation || k == apperr.KindNotFound {
			result = telemetry.ResultRejected
		}
		telemetry.SubmissionsCreatedTotal.WithLabelValues(result).Inc()
		return nil, err
	}
	telemetry.SubmissionsCreatedTotal.WithLabelValues(telemetry.ResultSuccess).Inc()

	slog.Info("submission created", "submission_uuid", sub.UUID, "event_uuid", sub.EventUUID,
		"tracking_code", sub.TrackingCode, "values", len(sub.Values))

	if _, err := s.issuer.Issue(ctx, models.RefTypeSubmission, sub.UUID); err != nil {
		slog.Warn("verification email not issued for new submission; registrant can request a resend",
			"submission_uuid", sub.UUID, "error", err)
	}
	return sub, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (*models.Submission, error) {
	email := strings.TrimSpace(in.ContactEmail)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	for attempt := 1; attempt <= trackingAttempts; attempt++ {
		sub, err := s.createOnce(ctx, in, email)
		if !errors.Is(err, errTrackingCollision) {
			return sub, err
		}
		slog.Debug("tracking code collision, regenerating", "attempt", attempt)
	}
	return nil, apperr.Internal("failed to allocate tracking code", errTrackingCollision)
}

var errTrackingCollision = errors.New("tracking code collision")

func (s *Service) createOnce(ctx context.Context, in CreateInput, email string) (*models.Submission, error) {
	var sub *models.Submission

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		events := repositories.NewEventRepository(tx)
		submissions := repositories.NewSubmissionRepository(tx)

		event, err := events.GetByUUID(ctx, in.EventUUID, false)
		if err != nil {
			return apperr.Internal("failed to load event", err)
		}
		if event == nil || event.Status != models.EventStatusPublished {
			return apperr.NotFound("event not found")
		}
		if event.RegistrationClosed(s.now()) {
			return apperr.Validation("registration for this event is closed")
		}

		fields, err := events.ListFields(ctx, event.UUID, false)
		if err != nil {
			return apperr.Internal("failed to load event fields", err)
		}
		values, err := resolveValues(fields, in.Values)
		if err != nil {
			return err
		}
		if err := checkFileRefs(ctx, repositories.NewFileRecordRepository(tx), event, values); err != nil {
			return err
		}

		code, err := newTrackingCode(event.Code, s.now())
		if err != nil {
			return apperr.Internal("failed to generate tracking code", err)
		}

		sub = &models.Submission{
			EventUUID:    event.UUID,
			UserUUID:     in.UserUUID,
			TrackingCode: code,
			ContactEmail: email,
			Status:       models.SubmissionStatusPending,
			ExtraData:    in.ExtraData,
			IPAddress:    in.IPAddress,
			UserAgent:    in.UserAgent,
		}
		if sub.ExtraData == nil {
			sub.ExtraData = models.JSONMap{}
		}
		if err := submissions.Create(ctx, sub, in.Actor); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return errTrackingCollision
			}
			return apperr.Internal("failed to create submission", err)
		}

		for i := range values {
			values[i].SubmissionUUID = sub.UUID
			if err := submissions.CreateValue(ctx, &values[i], in.Actor); err != nil {
				if errors.Is(err, repositories.ErrForeignKey) {
					return apperr.Validationf("field %s references a record that does not exist", values[i].FieldKey)
				}
				return apperr.Internal("failed to store submission value", err)
			}
		}
		sub.Values = values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// resolveValues maps answers onto the event's fields. The stored field_key is always the
// field's canonical key.
func resolveValues(fields []models.EventField, answers []FieldValue) ([]models.SubmissionValue, error) {
	byKey := make(map[string]*models.EventField, len(fields))
	for i := range fields {
		byKey[strings.ToLower(fields[i].FieldKey)] = &fields[i]
	}

	seen := make(map[string]bool, len(answers))
	out := make([]models.SubmissionValue, 0, len(answers))
	for _, a := range answers {
		f, ok := byKey[strings.ToLower(strings.TrimSpace(a.FieldKey))]
		if !ok {
			return nil, apperr.Validationf("invalid field_key %q for this event", a.FieldKey)
		}
		if seen[f.FieldKey] {
			return nil, apperr.Validationf("field_key %q answered more than once", f.FieldKey)
		}
		seen[f.FieldKey] = true

		if err := validation.ValidateFieldValue(f, a.Value); err != nil {
			return nil, apperr.Validation(err.Error())
		}

		v := models.SubmissionValue{
			EventFieldUUID: f.UUID,
			FieldKey:       f.FieldKey,
			Value:          models.JSONValue(a.Value),
		}
		if f.FieldType == models.FieldTypeFile {
			var ref string
			if json.Unmarshal(a.Value, &ref) == nil && ref != "" {
				v.FileRecordUUID = &ref
			}
		}
		out = append(out, v)
	}

	for i := range fields {
		if fields[i].IsRequired && !seen[fields[i].FieldKey] {
			return nil, apperr.Validationf("field %s is required", fields[i].FieldKey)
		}
	}
	return out, nil
}

// checkFileRefs requires every file answer to name a live file record that is either a
// platform record or belongs to the event's organizer.
func checkFileRefs(ctx context.Context, files *repositories.FileRecordRepository, event *models.Event, values []models.SubmissionValue) error {
	for _, v := range values {
		if v.FileRecordUUID == nil {
			continue
		}
		f, err := files.GetByUUID(ctx, *v.FileRecordUUID, false)
		if err != nil {
			return apperr.Internal("failed to load file record", err)
		}
		if f == nil || (f.OrganizerUUID != nil && *f.OrganizerUUID != event.OrganizerUUID) {
			return apperr.Validationf("field %s does not reference an existing file", v.FieldKey)
		}
	}
	return nil
}

// newTrackingCode builds CODE-YYYYMMDD-XXXXXX.
func newTrackingCode(eventCode string, now time.Time) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = trackingAlphabet[int(b)%len(trackingAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(eventCode), now.UTC().Format("20060102"), buf), nil
}

// Transition moves a submission to target through the status guard. Moving to
// email_verified additionally requires a consumed verification token.
func (s *Service) Transition(ctx context.Context, submissionUUID, target string, actor models.Actor) (*models.Submission, error) {
	var sub *models.Submission

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		submissions := repositories.NewSubmissionRepository(tx)

		var err error
		sub, err = submissions.GetByUUID(ctx, submissionUUID, false)
		if err != nil {
			return apperr.Internal("failed to load submission", err)
		}
		if sub == nil {
			return apperr.NotFound("submission not found")
		}

		if err := lifecycle.AssertSubmissionTransition(sub.Status, target); err != nil {
			return err
		}

		if target == models.SubmissionStatusEmailVerified {
			verified, err := repositories.NewEmailVerificationRepository(tx).
				HasVerified(ctx, models.RefTypeSubmission, sub.UUID)
			if err != nil {
				return apperr.Internal("failed to check verification state", err)
			}
			if !verified {
				return apperr.Validation("contact email has not been verified")
			}
		}

		if err := submissions.SetStatus(ctx, sub, target, actor); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return apperr.NotFound("submission not found")
			}
			return apperr.Internal("failed to update submission status", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("submission status changed", "submission_uuid", sub.UUID, "status", sub.Status)
	return sub, nil
}

// Get loads a submission with its values
func (s *Service) Get(ctx context.Context, submissionUUID string, includeDeleted bool) (*models.Submission, error) {
	repo := repositories.NewSubmissionRepository(s.db)
	sub, err := repo.GetByUUID(ctx, submissionUUID, includeDeleted)
	if err != nil {
		return nil, apperr.Internal("failed to load submission", err)
	}
	if sub == nil {
		return nil, apperr.NotFound("submission not found")
	}
	values, err := repo.ListValues(ctx, sub.UUID)
	if err != nil {
		return nil, apperr.Internal("failed to load submission values", err)
	}
	sub.Values = values
	return sub, nil
}
