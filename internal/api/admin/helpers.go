// helpers.go holds the request parsing and error mapping shared by the admin handlers.
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/middleware"
	"github.com/event-registry/event-registry/internal/validation"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// pageParams carries the pagination and history query parameters of a list request.
type pageParams struct {
	Page           int
	PerPage        int
	IncludeDeleted bool
}

// parsePage reads ?page=&per_page=&include_deleted=. Out-of-range values fall back to the
// defaults.
func parsePage(c *gin.Context) pageParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	includeDeleted, _ := strconv.ParseBool(c.Query("include_deleted"))

	return pageParams{Page: page, PerPage: perPage, IncludeDeleted: includeDeleted}
}

func (p pageParams) offset() int {
	return (p.Page - 1) * p.PerPage
}

func (p pageParams) listOptions() repositories.ListOptions {
	return repositories.ListOptions{Limit: p.PerPage, Offset: p.offset(), IncludeDeleted: p.IncludeDeleted}
}

// paginated builds the list response body.
func paginated(key string, items interface{}, p pageParams, total int) gin.H {
	return gin.H{
		key: items,
		"pagination": gin.H{
			"page":     p.Page,
			"per_page": p.PerPage,
			"total":    total,
		},
	}
}

// includeDeleted reports whether the request asked for soft-deleted rows and may see them.
// Asking without the history permission is rejected rather than silently narrowed.
func includeDeleted(c *gin.Context, id *auth.Identity, res auth.Resource) (bool, error) {
	requested, _ := strconv.ParseBool(c.Query("include_deleted"))
	if !requested {
		return false, nil
	}
	if err := auth.Authorize(id, res, auth.ActionHistory); err != nil {
		if apperr.KindOf(err) == apperr.KindForbidden {
			return false, apperr.Forbidden("insufficient permissions to read deleted records")
		}
		return false, err
	}
	return true, nil
}

// bindJSON decodes the request body into v, writing a 400 on failure.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		response.Detail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeError maps repository sentinels onto client errors. notFound is used for
// ErrNotFound and conflict for ErrDuplicate.
func writeError(err error, action, notFound, conflict string) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, repositories.ErrDuplicate) && conflict != "":
		return apperr.Conflict(conflict)
	default:
		return apperr.Internal("failed to "+action, err)
	}
}

// parseTime parses an optional RFC 3339 query parameter.
func parseTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Validationf("%s must be an RFC 3339 timestamp", name)
	}
	t = t.UTC()
	return &t, nil
}

// uuidParam returns the named path parameter in canonical form. A value that is not a
// UUID cannot name a stored row, so the request is answered with notFound.
func uuidParam(c *gin.Context, name, notFound string) (string, bool) {
	v, err := validation.NormalizeUUID(c.Param(name))
	if err != nil {
		response.Error(c, apperr.NotFound(notFound))
		return "", false
	}
	return v, true
}

// uuidQuery returns an optional UUID query filter in canonical form.
func uuidQuery(c *gin.Context, name string) (*string, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := validation.NormalizeUUID(raw)
	if err != nil {
		return nil, apperr.Validationf("%s must be a UUID", name)
	}
	return &v, nil
}

// optionalUUID canonicalizes an optional UUID body field in place. Empty strings are
// left alone; several fields use them to clear a reference.
func optionalUUID(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	n, err := validation.NormalizeUUID(*v)
	if err != nil {
		return apperr.Validationf("%s must be a UUID", name)
	}
	*v = n
	return nil
}

// optionalQuery returns a pointer to a non-empty query value.
func optionalQuery(c *gin.Context, name string) *string {
	if v := c.Query(name); v != "" {
		return &v
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// identity returns the caller resolved by the auth middleware.
func identity(c *gin.Context) *auth.Identity {
	return middleware.GetIdentity(c)
}
