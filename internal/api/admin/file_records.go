// file_records.go implements handlers for file metadata records. The bytes themselves live in
// external storage; only the reference is kept here.
package admin

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/middleware"
	"github.com/event-registry/event-registry/pkg/checksum"
)

// FileRecordHandlers handles file record endpoints
type FileRecordHandlers struct {
	cfg      *config.Config
	fileRepo *repositories.FileRecordRepository
}

// NewFileRecordHandlers creates a new FileRecordHandlers instance
func NewFileRecordHandlers(cfg *config.Config, db *sql.DB) *FileRecordHandlers {
	return &FileRecordHandlers{
		cfg:      cfg,
		fileRepo: repositories.NewFileRecordRepository(db),
	}
}

func fileResource(organizerUUID *string) auth.Resource {
	return auth.InOrganizer(auth.ResourceFileRecord, deref(organizerUUID))
}

// @Summary      List file records
// @Tags         Files
// @Security     Bearer
// @Produce      json
// @Param        page             query  int   false  "Page number (default 1)"
// @Param        per_page         query  int   false  "Items per page, max 100 (default 20)"
// @Param        include_deleted  query  bool  false  "Include soft-deleted records (history permission)"
// @Success      200  {object}  map[string]interface{}  "file_records: []models.FileRecord, pagination: {page, per_page, total}"
// @Router       /api/v1/admin/file-records [get]
// ListFileRecordsHandler lists file records visible to the caller
// GET /api/v1/admin/file-records
func (h *FileRecordHandlers) ListFileRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		res := auth.Platform(auth.ResourceFileRecord)
		p := parsePage(c)
		var err error
		if p.IncludeDeleted, err = includeDeleted(c, id, res); err != nil {
			response.Error(c, err)
			return
		}

		var scope []string
		if !auth.Can(id, res, auth.ActionRead) {
			scope = id.OrganizerUUIDs(models.OrganizerRoleViewer)
		}
		records, total, err := h.fileRepo.List(c.Request.Context(), scope, p.listOptions())
		if err != nil {
			response.Error(c, apperr.Internal("failed to list file records", err))
			return
		}
		c.JSON(http.StatusOK, paginated("file_records", records, p, total))
	}
}

func (h *FileRecordHandlers) loadFileRecord(c *gin.Context, action auth.Action) (*models.FileRecord, bool) {
	id := identity(c)
	history := false
	if action == auth.ActionRead {
		var err error
		if history, err = includeDeleted(c, id, auth.Platform(auth.ResourceFileRecord)); err != nil {
			response.Error(c, err)
			return nil, false
		}
	}
	fileUUID, ok := uuidParam(c, "file_uuid", "file record not found")
	if !ok {
		return nil, false
	}
	f, err := h.fileRepo.GetByUUID(c.Request.Context(), fileUUID, history)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load file record", err))
		return nil, false
	}
	if f == nil {
		response.Error(c, apperr.NotFound("file record not found"))
		return nil, false
	}
	if err := auth.Authorize(id, fileResource(f.OrganizerUUID), action); err != nil {
		response.Error(c, err)
		return nil, false
	}
	return f, true
}

// @Summary      Get file record
// @Tags         Files
// @Security     Bearer
// @Produce      json
// @Param        file_uuid  path  string  true  "File record UUID"
// @Success      200  {object}  models.FileRecord
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "File record not found"
// @Router       /api/v1/admin/file-records/{file_uuid} [get]
// GetFileRecordHandler retrieves a file record
// GET /api/v1/admin/file-records/:file_uuid
func (h *FileRecordHandlers) GetFileRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if f, ok := h.loadFileRecord(c, auth.ActionRead); ok {
			c.JSON(http.StatusOK, f)
		}
	}
}

// FileRecordRequest registers metadata for a file already placed in storage
type FileRecordRequest struct {
	OrganizerUUID *string `json:"organizer_uuid"`
	OriginalName  string  `json:"original_name" binding:"required"`
	ContentType   string  `json:"content_type" binding:"required"`
	SizeBytes     int64   `json:"size_bytes"`
	StorageKey    string  `json:"storage_key" binding:"required"`
	SHA256        *string `json:"sha256"`
}

func (r *FileRecordRequest) record() (*models.FileRecord, error) {
	if r.SizeBytes < 0 {
		return nil, apperr.Validation("size_bytes must not be negative")
	}
	if strings.TrimSpace(r.OriginalName) == "" || strings.TrimSpace(r.StorageKey) == "" {
		return nil, apperr.Validation("original_name and storage_key are required")
	}
	if r.SHA256 != nil {
		sum, err := checksum.NormalizeSHA256(*r.SHA256)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		r.SHA256 = &sum
	}
	if err := optionalUUID("organizer_uuid", r.OrganizerUUID); err != nil {
		return nil, err
	}
	if r.OrganizerUUID != nil && *r.OrganizerUUID == "" {
		r.OrganizerUUID = nil
	}
	return &models.FileRecord{
		OrganizerUUID: r.OrganizerUUID,
		OriginalName:  strings.TrimSpace(r.OriginalName),
		ContentType:   r.ContentType,
		SizeBytes:     r.SizeBytes,
		StorageKey:    r.StorageKey,
		SHA256:        r.SHA256,
	}, nil
}

// @Summary      Create file record
// @Tags         Files
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  FileRecordRequest  true  "File metadata"
// @Success      201  {object}  models.FileRecord
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /api/v1/admin/file-records [post]
// CreateFileRecordHandler registers file metadata
// POST /api/v1/admin/file-records
func (h *FileRecordHandlers) CreateFileRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req FileRecordRequest
		if !bindJSON(c, &req) {
			return
		}
		f, err := req.record()
		if err != nil {
			response.Error(c, err)
			return
		}
		if err := auth.Authorize(id, fileResource(f.OrganizerUUID), auth.ActionCreate); err != nil {
			response.Error(c, err)
			return
		}
		if err := h.fileRepo.Create(c.Request.Context(), f, id.ActorFor(deref(f.OrganizerUUID))); err != nil {
			response.Error(c, writeError(err, "create file record", "file record not found", ""))
			return
		}
		middleware.SetAuditTarget(c, deref(f.OrganizerUUID), f.UUID)
		c.JSON(http.StatusCreated, f)
	}
}

// @Summary      Delete file record
// @Tags         Files
// @Security     Bearer
// @Param        file_uuid  path  string  true  "File record UUID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "File record not found"
// @Router       /api/v1/admin/file-records/{file_uuid} [delete]
// DeleteFileRecordHandler soft-deletes a file record
// DELETE /api/v1/admin/file-records/:file_uuid
func (h *FileRecordHandlers) DeleteFileRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := h.loadFileRecord(c, auth.ActionDelete)
		if !ok {
			return
		}
		if err := h.fileRepo.Delete(c.Request.Context(), f.UUID, identity(c).ActorFor(deref(f.OrganizerUUID))); err != nil {
			response.Error(c, writeError(err, "delete file record", "file record not found", ""))
			return
		}
		middleware.SetAuditTarget(c, deref(f.OrganizerUUID), f.UUID)
		c.Status(http.StatusNoContent)
	}
}
