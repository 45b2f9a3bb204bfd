// Package middleware (rbac.go) gates routes on the authorization policy.
//
// Roles and memberships are read from the database on every request by the identity
// resolver rather than embedded in the JWT, so a role change takes effect on the caller's
// next request without reissuing tokens. Handlers whose target resource (and its owning
// organizer) is only known after a lookup call auth.Authorize themselves.

package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/auth"
)

// RequirePermission allows the request when the caller may perform action on a
// platform-level resource of type t.
func RequirePermission(t auth.ResourceType, action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Authorize(GetIdentity(c), auth.Platform(t), action); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}

// RequireOrganizerPermission allows the request when the caller may perform action on a
// resource of type t inside the organizer named by the path parameter param.
func RequireOrganizerPermission(t auth.ResourceType, action auth.Action, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := auth.InOrganizer(t, c.Param(param))
		if err := auth.Authorize(GetIdentity(c), res, action); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}

// RequireSystemRole allows the request when the caller holds one of roles on the platform.
func RequireSystemRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)
		if id == nil {
			response.AbortDetail(c, 401, "not authenticated")
			return
		}
		current := id.SystemRole()
		for _, r := range roles {
			if current != "" && current == r {
				c.Next()
				return
			}
		}
		response.AbortDetail(c, 403, "insufficient permissions")
	}
}
