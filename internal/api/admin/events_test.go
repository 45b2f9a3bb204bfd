package admin

import (
	"net/http"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/dbtest"
	"github.com/event-registry/event-registry/internal/db/models"
)

// ---------------------------------------------------------------------------
// Router helper
// ---------------------------------------------------------------------------

func newEventRouter(t *testing.T, id *auth.Identity) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewEventHandlers(&config.Config{}, db)

	r := newIdentityRouter(id)
	r.GET("/events", h.ListEventsHandler())
	r.POST("/events", h.CreateEventHandler())
	r.POST("/events/from-template", h.CreateFromTemplateHandler())
	r.GET("/events/:event_uuid", h.GetEventHandler())
	r.PATCH("/events/:event_uuid", h.UpdateEventHandler())
	r.DELETE("/events/:event_uuid", h.DeleteEventHandler())
	r.POST("/events/:event_uuid/status", h.EventStatusHandler())
	r.GET("/events/:event_uuid/fields", h.ListFieldsHandler())
	r.POST("/events/:event_uuid/fields", h.CreateFieldHandler())
	r.PUT("/events/:event_uuid/fields/:field_uuid", h.UpdateFieldHandler())
	r.PATCH("/events/:event_uuid/fields/:field_uuid", h.UpdateFieldHandler())
	r.DELETE("/events/:event_uuid/fields/:field_uuid", h.DeleteFieldHandler())
	return mock, r
}

const (
	liveEventQuery    = `SELECT .* FROM events WHERE uuid = \$1 AND is_deleted = false`
	historyEventQuery = `SELECT .* FROM events WHERE uuid = \$1 AND TRUE`
)

func deletedEventRow(uuid string) *sqlmock.Rows {
	return sqlmock.NewRows(dbtest.EventCols).
		AddRow(dbtest.Deleted(1, uuid, "00000000-0000-4000-8000-000100000001", nil, "E1", "Deleted Event", nil, "draft", nil, nil, nil, []byte(`{}`))...)
}

// ---------------------------------------------------------------------------
// Soft-delete visibility
// ---------------------------------------------------------------------------

func TestGetEvent_SoftDeletedIsNotFound(t *testing.T) {
	mock, r := newEventRouter(t, staffIdentity(models.SystemRoleSuperAdmin))

	mock.ExpectQuery(liveEventQuery).WithArgs("00000000-0000-4000-8000-000500000001").WillReturnRows(sqlmock.NewRows(dbtest.EventCols))

	w := do(r, http.MethodGet, "/events/00000000-0000-4000-8000-000500000001", nil)

	assertStatus(t, w, http.StatusNotFound)
	assert.Equal(t, "event not found", detailOf(w))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEvent_IncludeDeletedAsSuperAdmin(t *testing.T) {
	mock, r := newEventRouter(t, staffIdentity(models.SystemRoleSuperAdmin))

	mock.ExpectQuery(historyEventQuery).WithArgs("00000000-0000-4000-8000-000500000001").WillReturnRows(deletedEventRow("00000000-0000-4000-8000-000500000001"))
	mock.ExpectQuery(`SELECT .* FROM event_fields`).WithArgs("00000000-0000-4000-8000-000500000001").
		WillReturnRows(sqlmock.NewRows(dbtest.EventFieldCols))

	w := do(r, http.MethodGet, "/events/00000000-0000-4000-8000-000500000001?include_deleted=true", nil)

	assertStatus(t, w, http.StatusOK)
	resp := getJSON(w)
	assert.Equal(t, true, resp["is_deleted"])
	assert.Equal(t, false, resp["is_active"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEvent_IncludeDeletedForbiddenForOwner(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))

	w := do(r, http.MethodGet, "/events/00000000-0000-4000-8000-000500000001?include_deleted=true", nil)

	assertStatus(t, w, http.StatusForbidden)
	assert.Equal(t, "insufficient permissions to read deleted records", detailOf(w))
	require.NoError(t, mock.ExpectationsWereMet(), "no query should run")
}

func TestListEvents_SoftDeletedExcludedByDefault(t *testing.T) {
	mock, r := newEventRouter(t, staffIdentity(models.SystemRoleAuditor))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE is_deleted = false`).WillReturnRows(dbtest.Count(1))
	mock.ExpectQuery(`SELECT .* FROM events WHERE is_deleted = false ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(20, 0).
		WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Live Event", models.EventStatusPublished))

	w := do(r, http.MethodGet, "/events", nil)

	assertStatus(t, w, http.StatusOK)
	resp := getJSON(w)
	events := resp["events"].([]interface{})
	assert.Len(t, events, 1)
	assert.Equal(t, float64(1), resp["pagination"].(map[string]interface{})["total"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEvents_IncludeDeletedAsAuditor(t *testing.T) {
	mock, r := newEventRouter(t, staffIdentity(models.SystemRoleAuditor))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE TRUE`).WillReturnRows(dbtest.Count(1))
	mock.ExpectQuery(`SELECT .* FROM events WHERE TRUE ORDER BY`).WillReturnRows(deletedEventRow("00000000-0000-4000-8000-000500000001"))

	w := do(r, http.MethodGet, "/events?include_deleted=true", nil)

	assertStatus(t, w, http.StatusOK)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ListEventsHandler scoping
// ---------------------------------------------------------------------------

func TestListEvents_MemberSeesOwnOrganizers(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleMember, "00000000-0000-4000-8000-000100000001", "00000000-0000-4000-8000-000100000002"))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE is_deleted = false AND organizer_uuid = ANY`).
		WithArgs(pq.Array([]string{"00000000-0000-4000-8000-000100000001", "00000000-0000-4000-8000-000100000002"})).
		WillReturnRows(dbtest.Count(0))
	mock.ExpectQuery(`SELECT .* FROM events WHERE is_deleted = false AND organizer_uuid = ANY`).
		WillReturnRows(sqlmock.NewRows(dbtest.EventCols))

	w := do(r, http.MethodGet, "/events", nil)

	assertStatus(t, w, http.StatusOK)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEvents_OtherOrganizerForbidden(t *testing.T) {
	_, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))

	w := do(r, http.MethodGet, "/events?organizer_uuid=00000000-0000-4000-8000-000100000009", nil)
	assertStatus(t, w, http.StatusForbidden)
}

func TestListEvents_InvalidStatus(t *testing.T) {
	_, r := newEventRouter(t, staffIdentity(models.SystemRoleSuperAdmin))

	w := do(r, http.MethodGet, "/events?status=archived", nil)
	assertStatus(t, w, http.StatusBadRequest)
}

func TestListEvents_DBError(t *testing.T) {
	mock, r := newEventRouter(t, staffIdentity(models.SystemRoleSuperAdmin))
	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errDB)

	w := do(r, http.MethodGet, "/events", nil)
	assertStatus(t, w, http.StatusInternalServerError)
	assert.Equal(t, "failed to list events", detailOf(w))
}

// ---------------------------------------------------------------------------
// CreateEventHandler
// ---------------------------------------------------------------------------

func validEventBody() map[string]interface{} {
	return map[string]interface{}{
		"organizer_uuid": "00000000-0000-4000-8000-000100000001",
		"code":           "SPRING-RUN",
		"name":           "Spring Run",
		"starts_at":      "2026-04-01T09:00:00Z",
		"ends_at":        "2026-04-01T13:00:00Z",
	}
}

func TestCreateEvent_Success(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))

	mock.ExpectQuery(`SELECT .* FROM organizers WHERE uuid = \$1`).WithArgs("00000000-0000-4000-8000-000100000001").
		WillReturnRows(dbtest.OrganizerRow("00000000-0000-4000-8000-000100000001", "Acme", models.OrganizerStatusApproved))
	mock.ExpectQuery(`INSERT INTO events`).WillReturnRows(dbtest.ID(7))

	w := do(r, http.MethodPost, "/events", validEventBody())

	assertStatus(t, w, http.StatusCreated)
	resp := getJSON(w)
	assert.Equal(t, "draft", resp["status"])
	assert.Equal(t, "SPRING-RUN", resp["code"])
	assert.Equal(t, "00000000-0000-4000-8000-000200000001", resp["created_by"])
	assert.Equal(t, models.OrganizerRoleEditor, resp["created_by_role"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEvent_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"bad code", func(b map[string]interface{}) { b["code"] = "spring run!" }},
		{"blank name", func(b map[string]interface{}) { b["name"] = "   " }},
		{"ends before start", func(b map[string]interface{}) { b["ends_at"] = "2026-03-01T00:00:00Z" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))
			body := validEventBody()
			tt.mutate(body)

			w := do(r, http.MethodPost, "/events", body)

			assertStatus(t, w, http.StatusBadRequest)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateEvent_ViewerForbidden(t *testing.T) {
	_, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleViewer, "00000000-0000-4000-8000-000100000001"))

	w := do(r, http.MethodPost, "/events", validEventBody())
	assertStatus(t, w, http.StatusForbidden)
}

func TestCreateEvent_OrganizerNotApproved(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(`SELECT .* FROM organizers`).
		WillReturnRows(dbtest.OrganizerRow("00000000-0000-4000-8000-000100000001", "Acme", models.OrganizerStatusPending))

	w := do(r, http.MethodPost, "/events", validEventBody())

	assertStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "organizer is not approved", detailOf(w))
}

func TestCreateEvent_DuplicateCode(t *testing.T) {
	mock, r := newEventRouter(t, staffIdentity(models.SystemRoleSystemAdmin))
	mock.ExpectQuery(`SELECT .* FROM organizers`).
		WillReturnRows(dbtest.OrganizerRow("00000000-0000-4000-8000-000100000001", "Acme", models.OrganizerStatusApproved))
	mock.ExpectQuery(`INSERT INTO events`).WillReturnError(&pq.Error{Code: "23505"})

	w := do(r, http.MethodPost, "/events", validEventBody())

	assertStatus(t, w, http.StatusConflict)
	assert.Equal(t, "an event with this code already exists", detailOf(w))
}

// ---------------------------------------------------------------------------
// CreateFromTemplateHandler
// ---------------------------------------------------------------------------

func TestCreateFromTemplate_CopiesDefaultFields(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))

	tplCols := dbtest.Cols("activity_type_uuid", "organizer_uuid", "name", "description", "default_fields", "config")
	fields := `[{"field_key":"full_name","label":"Full name","field_type":"text","is_required":true,"sort_order":1},
		{"field_key":"shirt","label":"Shirt","field_type":"select","options":["S","M"],"sort_order":2}]`
	mock.ExpectQuery(`SELECT .* FROM activity_templates WHERE uuid = \$1`).WithArgs("00000000-0000-4000-8000-000700000001").
		WillReturnRows(sqlmock.NewRows(tplCols).
			AddRow(dbtest.Base(1, "00000000-0000-4000-8000-000700000001", "00000000-0000-4000-8000-001800000001", nil, "Run", nil, []byte(fields), []byte(`{}`))...))
	mock.ExpectQuery(`SELECT .* FROM organizers`).
		WillReturnRows(dbtest.OrganizerRow("00000000-0000-4000-8000-000100000001", "Acme", models.OrganizerStatusApproved))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO events`).WillReturnRows(dbtest.ID(1))
	mock.ExpectQuery(`INSERT INTO event_fields`).WillReturnRows(dbtest.ID(1))
	mock.ExpectQuery(`INSERT INTO event_fields`).WillReturnRows(dbtest.ID(2))
	mock.ExpectCommit()

	body := validEventBody()
	body["template_uuid"] = "00000000-0000-4000-8000-000700000001"
	w := do(r, http.MethodPost, "/events/from-template", body)

	assertStatus(t, w, http.StatusCreated)
	resp := getJSON(w)
	assert.Equal(t, "00000000-0000-4000-8000-000700000001", resp["activity_template_uuid"])
	assert.Len(t, resp["fields"], 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFromTemplate_FieldFailureRollsBack(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))

	tplCols := dbtest.Cols("activity_type_uuid", "organizer_uuid", "name", "description", "default_fields", "config")
	fields := `[{"field_key":"full_name","label":"Full name","field_type":"text"}]`
	mock.ExpectQuery(`SELECT .* FROM activity_templates`).
		WillReturnRows(sqlmock.NewRows(tplCols).
			AddRow(dbtest.Base(1, "00000000-0000-4000-8000-000700000001", "00000000-0000-4000-8000-001800000001", "00000000-0000-4000-8000-000100000001", "Run", nil, []byte(fields), []byte(`{}`))...))
	mock.ExpectQuery(`SELECT .* FROM organizers`).
		WillReturnRows(dbtest.OrganizerRow("00000000-0000-4000-8000-000100000001", "Acme", models.OrganizerStatusApproved))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO events`).WillReturnRows(dbtest.ID(1))
	mock.ExpectQuery(`INSERT INTO event_fields`).WillReturnError(errDB)
	mock.ExpectRollback()

	body := validEventBody()
	body["template_uuid"] = "00000000-0000-4000-8000-000700000001"
	w := do(r, http.MethodPost, "/events/from-template", body)

	assertStatus(t, w, http.StatusInternalServerError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFromTemplate_OtherOrganizersTemplate(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))

	tplCols := dbtest.Cols("activity_type_uuid", "organizer_uuid", "name", "description", "default_fields", "config")
	mock.ExpectQuery(`SELECT .* FROM activity_templates`).
		WillReturnRows(sqlmock.NewRows(tplCols).
			AddRow(dbtest.Base(1, "00000000-0000-4000-8000-000700000001", "00000000-0000-4000-8000-001800000001", "00000000-0000-4000-8000-000100000002", "Run", nil, []byte(`[]`), []byte(`{}`))...))

	body := validEventBody()
	body["template_uuid"] = "00000000-0000-4000-8000-000700000001"
	w := do(r, http.MethodPost, "/events/from-template", body)

	assertStatus(t, w, http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// Update, status and delete
// ---------------------------------------------------------------------------

func TestUpdateEvent_CodeIsImmutable(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusDraft))

	w := do(r, http.MethodPatch, "/events/00000000-0000-4000-8000-000500000001", map[string]interface{}{"code": "E2"})

	assertStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "event code cannot be changed", detailOf(w))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEvent_Success(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusDraft))
	mock.ExpectExec(`UPDATE events SET name`).WillReturnResult(sqlmock.NewResult(0, 1))

	w := do(r, http.MethodPatch, "/events/00000000-0000-4000-8000-000500000001", map[string]interface{}{"code": "E1", "name": "Renamed"})

	assertStatus(t, w, http.StatusOK)
	assert.Equal(t, "Renamed", getJSON(w)["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStatus_Transitions(t *testing.T) {
	tests := []struct {
		current, target string
		want            int
	}{
		{models.EventStatusDraft, models.EventStatusPublished, http.StatusOK},
		{models.EventStatusPublished, models.EventStatusClosed, http.StatusOK},
		{models.EventStatusDraft, models.EventStatusClosed, http.StatusConflict},
		{models.EventStatusClosed, models.EventStatusPublished, http.StatusConflict},
		{models.EventStatusPublished, models.EventStatusPublished, http.StatusConflict},
		{models.EventStatusDraft, "archived", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.current+"->"+tt.target, func(t *testing.T) {
			mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
			mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", tt.current))
			if tt.want == http.StatusOK {
				mock.ExpectExec(`UPDATE events SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
			}

			w := do(r, http.MethodPost, "/events/00000000-0000-4000-8000-000500000001/status", map[string]string{"status": tt.target})

			assertStatus(t, w, tt.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteEvent(t *testing.T) {
	t.Run("owner deletes", func(t *testing.T) {
		mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))
		mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusDraft))
		mock.ExpectExec(`UPDATE events\s+SET is_deleted = true`).WillReturnResult(sqlmock.NewResult(0, 1))

		w := do(r, http.MethodDelete, "/events/00000000-0000-4000-8000-000500000001", nil)
		assertStatus(t, w, http.StatusNoContent)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("editor cannot delete", func(t *testing.T) {
		mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
		mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusDraft))

		w := do(r, http.MethodDelete, "/events/00000000-0000-4000-8000-000500000001", nil)
		assertStatus(t, w, http.StatusForbidden)
	})

	t.Run("already deleted", func(t *testing.T) {
		mock, r := newEventRouter(t, staffIdentity(models.SystemRoleSuperAdmin))
		mock.ExpectQuery(liveEventQuery).WillReturnRows(sqlmock.NewRows(dbtest.EventCols))

		w := do(r, http.MethodDelete, "/events/00000000-0000-4000-8000-000500000001", nil)
		assertStatus(t, w, http.StatusNotFound)
	})
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

func TestCreateField(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"bad key", map[string]interface{}{"field_key": "Full Name", "label": "Name", "field_type": "text"}, http.StatusBadRequest},
		{"bad type", map[string]interface{}{"field_key": "name", "label": "Name", "field_type": "color"}, http.StatusBadRequest},
		{"select without options", map[string]interface{}{"field_key": "size", "label": "Size", "field_type": "select"}, http.StatusBadRequest},
		{"ok", map[string]interface{}{"field_key": "size", "label": "Size", "field_type": "select", "options": []string{"S", "M"}}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
			mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusDraft))
			if tt.want == http.StatusCreated {
				mock.ExpectQuery(`INSERT INTO event_fields`).WillReturnRows(dbtest.ID(3))
			}

			w := do(r, http.MethodPost, "/events/00000000-0000-4000-8000-000500000001/fields", tt.body)

			assertStatus(t, w, tt.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateField_DuplicateKey(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusDraft))
	mock.ExpectQuery(`INSERT INTO event_fields`).WillReturnError(&pq.Error{Code: "23505"})

	w := do(r, http.MethodPost, "/events/00000000-0000-4000-8000-000500000001/fields",
		map[string]interface{}{"field_key": "name", "label": "Name", "field_type": "text"})

	assertStatus(t, w, http.StatusConflict)
}

func TestUpdateField_KeyChangeBlockedOnceAnswered(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusPublished))
	mock.ExpectQuery(`SELECT .* FROM event_fields WHERE uuid = \$1`).WithArgs("00000000-0000-4000-8000-001400000001").
		WillReturnRows(dbtest.FieldRows("00000000-0000-4000-8000-000500000001", dbtest.Field{UUID: "00000000-0000-4000-8000-001400000001", Key: "name", Type: "text"}))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("00000000-0000-4000-8000-001400000001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	w := do(r, http.MethodPut, "/events/00000000-0000-4000-8000-000500000001/fields/00000000-0000-4000-8000-001400000001",
		map[string]interface{}{"field_key": "full_name", "label": "Name", "field_type": "text"})

	assertStatus(t, w, http.StatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateField_LabelChangeAllowedOnceAnswered(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusPublished))
	mock.ExpectQuery(`SELECT .* FROM event_fields WHERE uuid = \$1`).
		WillReturnRows(dbtest.FieldRows("00000000-0000-4000-8000-000500000001", dbtest.Field{UUID: "00000000-0000-4000-8000-001400000001", Key: "name", Type: "text"}))
	mock.ExpectExec(`UPDATE event_fields SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	w := do(r, http.MethodPut, "/events/00000000-0000-4000-8000-000500000001/fields/00000000-0000-4000-8000-001400000001",
		map[string]interface{}{"field_key": "name", "label": "Your name", "field_type": "text"})

	assertStatus(t, w, http.StatusOK)
	assert.Equal(t, "Your name", getJSON(w)["label"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateField_PartialPatchKeepsOtherMembers(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusPublished))
	mock.ExpectQuery(`SELECT .* FROM event_fields WHERE uuid = \$1`).
		WillReturnRows(dbtest.FieldRows("00000000-0000-4000-8000-000500000001", dbtest.Field{
			UUID: "00000000-0000-4000-8000-001400000001", Key: "size", Type: models.FieldTypeSelect,
			Required: true, Options: `["S","M","L"]`, Rules: `{"max_length":3}`, SortOrder: 4,
		}))
	mock.ExpectExec(`UPDATE event_fields SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	w := do(r, http.MethodPatch, "/events/00000000-0000-4000-8000-000500000001/fields/00000000-0000-4000-8000-001400000001",
		map[string]interface{}{"label": " Shirt size "})

	assertStatus(t, w, http.StatusOK)
	body := getJSON(w)
	assert.Equal(t, "Shirt size", body["label"])
	assert.Equal(t, "size", body["field_key"])
	assert.Equal(t, models.FieldTypeSelect, body["field_type"])
	assert.Equal(t, true, body["is_required"])
	assert.Equal(t, []interface{}{"S", "M", "L"}, body["options"])
	assert.Equal(t, float64(3), body["validation_rules"].(map[string]interface{})["max_length"])
	assert.Equal(t, float64(4), body["sort_order"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateField_PartialPatchValidatesMergedField(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusDraft))
	mock.ExpectQuery(`SELECT .* FROM event_fields WHERE uuid = \$1`).
		WillReturnRows(dbtest.FieldRows("00000000-0000-4000-8000-000500000001", dbtest.Field{
			UUID: "00000000-0000-4000-8000-001400000001", Key: "name", Type: models.FieldTypeText,
		}))

	// A text field turned into a select needs options.
	w := do(r, http.MethodPatch, "/events/00000000-0000-4000-8000-000500000001/fields/00000000-0000-4000-8000-001400000001",
		map[string]interface{}{"field_type": models.FieldTypeSelect})

	assertStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, detailOf(w), "option")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteField_WrongEvent(t *testing.T) {
	mock, r := newEventRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(liveEventQuery).WillReturnRows(dbtest.EventRow("00000000-0000-4000-8000-000500000001", "E1", "Event", models.EventStatusDraft))
	mock.ExpectQuery(`SELECT .* FROM event_fields WHERE uuid = \$1`).
		WillReturnRows(dbtest.FieldRows("00000000-0000-4000-8000-000500000002", dbtest.Field{UUID: "00000000-0000-4000-8000-001400000001", Key: "name", Type: "text"}))

	w := do(r, http.MethodDelete, "/events/00000000-0000-4000-8000-000500000001/fields/00000000-0000-4000-8000-001400000001", nil)

	assertStatus(t, w, http.StatusNotFound)
}
