package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bdi-platform/wip-backend/internal/tenant"
)

const identityKey = "caller_identity"

// Identity extracts the caller's resolved organization scope from the
// headers set by the upstream auth gateway. Authentication itself is a
// collaborator concern; this engine only consumes the resolved identity.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := tenant.Identity{
			Role:    strings.TrimSpace(c.GetHeader("X-User-Role")),
			OrgCode: strings.TrimSpace(c.GetHeader("X-Org-Code")),
			OrgType: strings.TrimSpace(c.GetHeader("X-Org-Type")),
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// CallerIdentity returns the identity stored by Identity. A request without
// identity headers resolves to an empty partner identity, which sees nothing.
func CallerIdentity(c *gin.Context) tenant.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(tenant.Identity); ok {
			return id
		}
	}
	return tenant.Identity{}
}
