package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/creative-contact/backend/internal/auth"
	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/response"
)

// Gin context keys, shared with the auth package so handlers there can read them.
const (
	ContextUserID    = auth.ContextUserID    // uuid.UUID
	ContextUserRole  = auth.ContextUserRole  // models.Role
	ContextUserEmail = auth.ContextUserEmail // string
)

type tokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWT authenticates staff by bearer token. The staff id it stores is the one the
// check-in engine writes to the audit log.
func JWT(v tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing or malformed bearer token")
			c.Abort()
			return
		}
		claims, err := v.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		role, ok := models.ParseRole(claims.Role)
		if !ok || claims.Role == "" {
			response.Unauthorized(c, "token carries no staff role")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
