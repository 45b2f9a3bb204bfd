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

var (
	activityTypeCols     = dbtest.Cols("code", "name", "description", "config")
	activityTemplateCols = dbtest.Cols("activity_type_uuid", "organizer_uuid", "name", "description", "default_fields", "config")
)

func activityTypeRow(uuid, code string) *sqlmock.Rows {
	return sqlmock.NewRows(activityTypeCols).
		AddRow(dbtest.Base(1, uuid, code, "Marathon", nil, []byte(`{}`))...)
}

func templateRow(uuid string, organizerUUID interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(activityTemplateCols).
		AddRow(dbtest.Base(1, uuid, "00000000-0000-4000-8000-000800000001", organizerUUID, "City run", nil,
			[]byte(`[{"field_key":"full_name","label":"Name","field_type":"text","is_required":true,"sort_order":1}]`),
			[]byte(`{}`))...)
}

func newActivityRouter(t *testing.T, id *auth.Identity) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewActivityHandlers(&config.Config{}, db)
	r := newIdentityRouter(id)
	r.GET("/activity-types", h.ListTypesHandler())
	r.GET("/activity-types/:type_uuid", h.GetTypeHandler())
	r.POST("/activity-types", h.CreateTypeHandler())
	r.PUT("/activity-types/:type_uuid", h.UpdateTypeHandler())
	r.PATCH("/activity-types/:type_uuid", h.UpdateTypeHandler())
	r.DELETE("/activity-types/:type_uuid", h.DeleteTypeHandler())
	r.GET("/activity-templates", h.ListTemplatesHandler())
	r.GET("/activity-templates/:template_uuid", h.GetTemplateHandler())
	r.POST("/activity-templates", h.CreateTemplateHandler())
	r.PUT("/activity-templates/:template_uuid", h.UpdateTemplateHandler())
	r.PATCH("/activity-templates/:template_uuid", h.UpdateTemplateHandler())
	r.DELETE("/activity-templates/:template_uuid", h.DeleteTemplateHandler())
	return mock, r
}

const activityTypeQuery = `SELECT .* FROM activity_types WHERE uuid = \$1 AND is_deleted = false`

// ---------------------------------------------------------------------------
// Activity types
// ---------------------------------------------------------------------------

func TestListActivityTypes_AnyUser(t *testing.T) {
	mock, r := newActivityRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleMember, "00000000-0000-4000-8000-000100000001"))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM activity_types WHERE is_deleted = false`).
		WillReturnRows(dbtest.Count(1))
	mock.ExpectQuery(`SELECT .* FROM activity_types WHERE is_deleted = false ORDER BY name LIMIT \$1 OFFSET \$2`).
		WithArgs(20, 0).
		WillReturnRows(activityTypeRow("00000000-0000-4000-8000-000800000001", "marathon"))

	w := do(r, http.MethodGet, "/activity-types", nil)

	assertStatus(t, w, http.StatusOK)
	types := getJSON(w)["activity_types"].([]interface{})
	require.Len(t, types, 1)
	assert.Equal(t, "marathon", types[0].(map[string]interface{})["code"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActivityType_NotFound(t *testing.T) {
	mock, r := newActivityRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleViewer, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(activityTypeQuery).WithArgs("00000000-0000-4000-8000-000800000009").
		WillReturnRows(sqlmock.NewRows(activityTypeCols))

	w := do(r, http.MethodGet, "/activity-types/00000000-0000-4000-8000-000800000009", nil)

	assertStatus(t, w, http.StatusNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateActivityType(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleSystemAdmin))
	mock.ExpectQuery(`INSERT INTO activity_types .* RETURNING id`).
		WillReturnRows(dbtest.ID(4))

	w := do(r, http.MethodPost, "/activity-types", gin.H{"code": "trail-run", "name": " Trail run "})

	assertStatus(t, w, http.StatusCreated)
	body := getJSON(w)
	assert.Equal(t, "trail-run", body["code"])
	assert.Equal(t, "Trail run", body["name"])
	assert.Equal(t, map[string]interface{}{}, body["config"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateActivityType_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		id         *auth.Identity
		body       interface{}
		wantStatus int
	}{
		{"organizer owner", memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"), gin.H{"code": "trail-run", "name": "Trail"}, http.StatusForbidden},
		{"support", staffIdentity(models.SystemRoleSupport), gin.H{"code": "trail-run", "name": "Trail"}, http.StatusForbidden},
		{"bad code", staffIdentity(models.SystemRoleSuperAdmin), gin.H{"code": "Trail Run", "name": "Trail"}, http.StatusBadRequest},
		{"blank name", staffIdentity(models.SystemRoleSuperAdmin), gin.H{"code": "trail-run", "name": "  "}, http.StatusBadRequest},
		{"missing name", staffIdentity(models.SystemRoleSuperAdmin), gin.H{"code": "trail-run"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, r := newActivityRouter(t, tt.id)

			w := do(r, http.MethodPost, "/activity-types", tt.body)

			assertStatus(t, w, tt.wantStatus)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateActivityType_DuplicateCode(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleSuperAdmin))
	mock.ExpectQuery(`INSERT INTO activity_types`).
		WillReturnError(&pq.Error{Code: "23505"})

	w := do(r, http.MethodPost, "/activity-types", gin.H{"code": "marathon", "name": "Marathon"})

	assertStatus(t, w, http.StatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteActivityType(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleSuperAdmin))
	mock.ExpectQuery(activityTypeQuery).WithArgs("00000000-0000-4000-8000-000800000001").
		WillReturnRows(activityTypeRow("00000000-0000-4000-8000-000800000001", "marathon"))
	mock.ExpectExec(`UPDATE activity_types\s+SET is_deleted = true`).
		WithArgs(sqlmock.AnyArg(), "00000000-0000-4000-8000-001000000001", models.SystemRoleSuperAdmin, "00000000-0000-4000-8000-000800000001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := do(r, http.MethodDelete, "/activity-types/00000000-0000-4000-8000-000800000001", nil)

	assertStatus(t, w, http.StatusNoContent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateActivityType_ForbiddenBeforeLoad(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleAuditor))

	w := do(r, http.MethodPut, "/activity-types/00000000-0000-4000-8000-000800000001", gin.H{"code": "marathon", "name": "Marathon"})

	assertStatus(t, w, http.StatusForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateActivityType_PartialPatch(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleSuperAdmin))
	mock.ExpectQuery(activityTypeQuery).WithArgs("00000000-0000-4000-8000-000800000001").
		WillReturnRows(activityTypeRow("00000000-0000-4000-8000-000800000001", "marathon"))
	mock.ExpectExec(`UPDATE activity_types\s+SET code = .*, name = `).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := do(r, http.MethodPatch, "/activity-types/00000000-0000-4000-8000-000800000001", gin.H{"name": " Road marathon "})

	assertStatus(t, w, http.StatusOK)
	body := getJSON(w)
	assert.Equal(t, "marathon", body["code"])
	assert.Equal(t, "Road marathon", body["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateActivityType_PartialPatchRejectsBlankName(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleSuperAdmin))
	mock.ExpectQuery(activityTypeQuery).
		WillReturnRows(activityTypeRow("00000000-0000-4000-8000-000800000001", "marathon"))

	w := do(r, http.MethodPatch, "/activity-types/00000000-0000-4000-8000-000800000001", gin.H{"name": "  "})

	assertStatus(t, w, http.StatusBadRequest)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Activity templates
// ---------------------------------------------------------------------------

func TestListTemplates_MemberSeesGlobalAndOwn(t *testing.T) {
	mock, r := newActivityRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM activity_templates WHERE is_deleted = false AND \(organizer_uuid IS NULL OR organizer_uuid = ANY\(\$1::uuid\[\]\)\)`).
		WithArgs(pq.Array([]string{"00000000-0000-4000-8000-000100000001"})).
		WillReturnRows(dbtest.Count(2))
	mock.ExpectQuery(`SELECT .* FROM activity_templates WHERE .* ORDER BY name LIMIT \$2 OFFSET \$3`).
		WillReturnRows(templateRow("00000000-0000-4000-8000-000700000001", nil).
			AddRow(dbtest.Base(2, "00000000-0000-4000-8000-000700000002", "00000000-0000-4000-8000-000800000001", "00000000-0000-4000-8000-000100000001", "Club run", nil, []byte(`[]`), []byte(`{}`))...))

	w := do(r, http.MethodGet, "/activity-templates", nil)

	assertStatus(t, w, http.StatusOK)
	assert.Len(t, getJSON(w)["activity_templates"], 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTemplates_StaffUnrestricted(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleSupport))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM activity_templates WHERE is_deleted = false AND activity_type_uuid = \$1$`).
		WithArgs("00000000-0000-4000-8000-000800000001").
		WillReturnRows(dbtest.Count(0))
	mock.ExpectQuery(`SELECT .* FROM activity_templates WHERE`).
		WithArgs("00000000-0000-4000-8000-000800000001", 20, 0).
		WillReturnRows(sqlmock.NewRows(activityTemplateCols))

	w := do(r, http.MethodGet, "/activity-templates?activity_type_uuid=00000000-0000-4000-8000-000800000001", nil)

	assertStatus(t, w, http.StatusOK)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemplate(t *testing.T) {
	tests := []struct {
		name       string
		id         *auth.Identity
		organizer  interface{}
		wantStatus int
	}{
		{"global template, any user", memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleMember, "00000000-0000-4000-8000-000100000009"), nil, http.StatusOK},
		{"own organizer", memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleViewer, "00000000-0000-4000-8000-000100000001"), "00000000-0000-4000-8000-000100000001", http.StatusOK},
		{"other organizer", memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000002"), "00000000-0000-4000-8000-000100000001", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, r := newActivityRouter(t, tt.id)
			mock.ExpectQuery(`SELECT .* FROM activity_templates WHERE uuid = \$1 AND is_deleted = false`).
				WithArgs("00000000-0000-4000-8000-000700000001").
				WillReturnRows(templateRow("00000000-0000-4000-8000-000700000001", tt.organizer))

			w := do(r, http.MethodGet, "/activity-templates/00000000-0000-4000-8000-000700000001", nil)

			assertStatus(t, w, tt.wantStatus)
			if tt.wantStatus == http.StatusOK {
				fields := getJSON(w)["default_fields"].([]interface{})
				require.Len(t, fields, 1)
				assert.Equal(t, "full_name", fields[0].(map[string]interface{})["field_key"])
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateTemplate_EditorInOwnOrganizer(t *testing.T) {
	mock, r := newActivityRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))

	mock.ExpectQuery(activityTypeQuery).WithArgs("00000000-0000-4000-8000-000800000001").
		WillReturnRows(activityTypeRow("00000000-0000-4000-8000-000800000001", "marathon"))
	mock.ExpectQuery(`INSERT INTO activity_templates .* RETURNING id`).
		WillReturnRows(dbtest.ID(9))

	w := do(r, http.MethodPost, "/activity-templates", gin.H{
		"activity_type_uuid": "00000000-0000-4000-8000-000800000001",
		"organizer_uuid":     "00000000-0000-4000-8000-000100000001",
		"name":               "Club run",
		"default_fields": []gin.H{
			{"field_key": "full_name", "label": "Name", "field_type": "text", "is_required": true},
			{"field_key": "shirt_size", "label": "Shirt", "field_type": "select", "options": []string{"S", "M", "L"}},
		},
	})

	assertStatus(t, w, http.StatusCreated)
	body := getJSON(w)
	assert.Equal(t, "00000000-0000-4000-8000-000100000001", body["organizer_uuid"])
	assert.Len(t, body["default_fields"], 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTemplate_Rejected(t *testing.T) {
	body := func(org interface{}, fields interface{}) gin.H {
		return gin.H{"activity_type_uuid": "00000000-0000-4000-8000-000800000001", "organizer_uuid": org, "name": "Club run", "default_fields": fields}
	}
	dupFields := []gin.H{
		{"field_key": "full_name", "label": "Name", "field_type": "text"},
		{"field_key": "full_name", "label": "Name again", "field_type": "text"},
	}
	selectNoOptions := []gin.H{{"field_key": "size", "label": "Size", "field_type": "select"}}

	tests := []struct {
		name       string
		id         *auth.Identity
		body       gin.H
		wantStatus int
	}{
		{"global by organizer owner", memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"), body("", nil), http.StatusForbidden},
		{"viewer", memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleViewer, "00000000-0000-4000-8000-000100000001"), body("00000000-0000-4000-8000-000100000001", nil), http.StatusForbidden},
		{"duplicate field keys", memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"), body("00000000-0000-4000-8000-000100000001", dupFields), http.StatusBadRequest},
		{"select without options", memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"), body("00000000-0000-4000-8000-000100000001", selectNoOptions), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, r := newActivityRouter(t, tt.id)

			w := do(r, http.MethodPost, "/activity-templates", tt.body)

			assertStatus(t, w, tt.wantStatus)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateTemplate_UnknownActivityType(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleSuperAdmin))
	mock.ExpectQuery(activityTypeQuery).WithArgs("00000000-0000-4000-8000-000800000404").
		WillReturnRows(sqlmock.NewRows(activityTypeCols))

	w := do(r, http.MethodPost, "/activity-templates", gin.H{"activity_type_uuid": "00000000-0000-4000-8000-000800000404", "name": "Global run"})

	assertStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, detailOf(w), "activity_type_uuid")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTemplate_OrganizerIsFixed(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleSuperAdmin))
	mock.ExpectQuery(`SELECT .* FROM activity_templates WHERE uuid = \$1`).WithArgs("00000000-0000-4000-8000-000700000001").
		WillReturnRows(templateRow("00000000-0000-4000-8000-000700000001", "00000000-0000-4000-8000-000100000001"))

	w := do(r, http.MethodPut, "/activity-templates/00000000-0000-4000-8000-000700000001", gin.H{
		"activity_type_uuid": "00000000-0000-4000-8000-000800000001", "organizer_uuid": "00000000-0000-4000-8000-000100000002", "name": "Moved",
	})

	assertStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, detailOf(w), "organizer_uuid")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTemplate_PartialPatchKeepsFields(t *testing.T) {
	mock, r := newActivityRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleEditor, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(`SELECT .* FROM activity_templates WHERE uuid = \$1`).WithArgs("00000000-0000-4000-8000-000700000001").
		WillReturnRows(templateRow("00000000-0000-4000-8000-000700000001", "00000000-0000-4000-8000-000100000001"))
	// The activity type is unchanged, so it is not looked up again.
	mock.ExpectExec(`UPDATE activity_templates`).WillReturnResult(sqlmock.NewResult(0, 1))

	w := do(r, http.MethodPatch, "/activity-templates/00000000-0000-4000-8000-000700000001", gin.H{"name": "Club run"})

	assertStatus(t, w, http.StatusOK)
	body := getJSON(w)
	assert.Equal(t, "Club run", body["name"])
	assert.Equal(t, "00000000-0000-4000-8000-000800000001", body["activity_type_uuid"])
	fields := body["default_fields"].([]interface{})
	require.Len(t, fields, 1)
	assert.Equal(t, "full_name", fields[0].(map[string]interface{})["field_key"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTemplate_ChangedTypeMustExist(t *testing.T) {
	mock, r := newActivityRouter(t, staffIdentity(models.SystemRoleSuperAdmin))
	mock.ExpectQuery(`SELECT .* FROM activity_templates WHERE uuid = \$1`).
		WillReturnRows(templateRow("00000000-0000-4000-8000-000700000001", nil))
	mock.ExpectQuery(activityTypeQuery).WithArgs("00000000-0000-4000-8000-000800000002").
		WillReturnRows(sqlmock.NewRows(activityTypeCols))

	w := do(r, http.MethodPatch, "/activity-templates/00000000-0000-4000-8000-000700000001",
		gin.H{"activity_type_uuid": "00000000-0000-4000-8000-000800000002"})

	assertStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, detailOf(w), "activity_type_uuid")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTemplate_GlobalNeedsStaff(t *testing.T) {
	mock, r := newActivityRouter(t, memberIdentity("00000000-0000-4000-8000-000200000001", models.OrganizerRoleOwner, "00000000-0000-4000-8000-000100000001"))
	mock.ExpectQuery(`SELECT .* FROM activity_templates WHERE uuid = \$1`).WithArgs("00000000-0000-4000-8000-000700000001").
		WillReturnRows(templateRow("00000000-0000-4000-8000-000700000001", nil))

	w := do(r, http.MethodDelete, "/activity-templates/00000000-0000-4000-8000-000700000001", nil)

	assertStatus(t, w, http.StatusForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}
