package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/response"
)

// RequireRole lets through only staff whose JWT role is one of roles.
// It must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		role, ok := roleFromContext(c)
		switch {
		case !ok:
			response.Unauthorized(c, "missing staff context")
		case !allowed[role]:
			response.Forbidden(c, "role "+string(role)+" may not access this resource")
		default:
			c.Next()
			return
		}
		c.Abort()
	}
}

func roleFromContext(c *gin.Context) (models.Role, bool) {
	v, ok := c.Get(ContextUserRole)
	if !ok {
		return "", false
	}
	switch r := v.(type) {
	case models.Role:
		return r, true
	case string:
		return models.Role(r), true
	}
	return "", false
}
