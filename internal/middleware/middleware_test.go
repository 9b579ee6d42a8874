package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creative-contact/backend/internal/auth"
	"github.com/creative-contact/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	t.Parallel()
	svc := auth.NewJWTService("test-secret", 1)
	staff := uuid.New()
	token, err := svc.Generate(staff, "door@example.com", string(models.RoleStaff))
	require.NoError(t, err)

	var seen uuid.UUID
	r := gin.New()
	r.GET("/x", JWT(svc), func(c *gin.Context) {
		seen = c.MustGet(ContextUserID).(uuid.UUID)
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"no token", "Bearer", http.StatusUnauthorized},
		{"forged token", "Bearer " + token + "x", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"lowercase scheme", "bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		w := serve(r, tt.header)
		assert.Equal(t, tt.want, w.Code, tt.name)
	}
	assert.Equal(t, staff, seen)
}

func TestRequireRole(t *testing.T) {
	t.Parallel()
	withRole := func(role string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if role != "" {
				c.Set(ContextUserRole, role)
			}
		}
	}
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	tests := []struct {
		role string
		want int
	}{
		{"admin", http.StatusNoContent},
		{"staff", http.StatusForbidden},
		{"", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		r := gin.New()
		r.GET("/x", withRole(tt.role), RequireRole(models.RoleAdmin), ok)
		assert.Equal(t, tt.want, serve(r, "").Code, "role %q", tt.role)
	}

	r := gin.New()
	r.GET("/x", withRole("staff"), RequireRole(models.RoleStaff, models.RoleAdmin), ok)
	assert.Equal(t, http.StatusNoContent, serve(r, "").Code)
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")
	assert.True(t, rl.Allow("b"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "one token refilled")
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiter_Sweep(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(45 * time.Second)
	rl.Allow("fresh")
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, rl.Sweep())
	assert.True(t, rl.Allow("old"), "swept key starts with a full bucket")
}

func TestRateLimiter_Middleware(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(0.001, 1, time.Minute)
	staffA, staffB := uuid.New(), uuid.New()

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if id := c.GetHeader("X-Staff"); id != "" {
			c.Set(ContextUserID, uuid.MustParse(id))
		}
	}, rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	call := func(staff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if staff != "" {
			req.Header.Set("X-Staff", staff)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, call(staffA.String()).Code)
	w := call(staffA.String())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// same IP, different staff member: separate bucket
	assert.Equal(t, http.StatusNoContent, call(staffB.String()).Code)
	// anonymous callers share the IP bucket
	assert.Equal(t, http.StatusNoContent, call("").Code)
	assert.Equal(t, http.StatusTooManyRequests, call("").Code)
}

func TestCORS(t *testing.T) {
	t.Parallel()
	r := gin.New()
	r.Use(CORS([]string{"https://door.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://door.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://door.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Retry-After", w.Header().Get("Access-Control-Expose-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestJWT_RejectsUnknownRole(t *testing.T) {
	t.Parallel()
	svc := auth.NewJWTService("test-secret", 1)
	r := gin.New()
	r.GET("/x", JWT(svc), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, role := range []string{"", "root"} {
		token, err := svc.Generate(uuid.New(), "x@example.com", role)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer "+token).Code, "role %q", role)
	}

	token, err := svc.Generate(uuid.New(), "x@example.com", "admin")
	require.NoError(t, err)
	var role any
	r2 := gin.New()
	r2.GET("/x", JWT(svc), func(c *gin.Context) {
		role, _ = c.Get(ContextUserRole)
		c.Status(http.StatusNoContent)
	})
	require.Equal(t, http.StatusNoContent, serve(r2, "Bearer "+token).Code)
	assert.Equal(t, models.RoleAdmin, role)
}
