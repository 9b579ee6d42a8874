// Package response writes the JSON envelope every endpoint answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope. Failures always carry a code so
// door clients can branch without parsing messages.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Generic failure codes. Domain packages use their own (e.g. INVALID_STATUS).
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL"
)

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail sends an error response with a machine-readable code.
func Fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, Body{Success: false, Error: msg, Code: code})
}

func BadRequest(c *gin.Context, msg string) { Fail(c, http.StatusBadRequest, CodeBadRequest, msg) }

func Unauthorized(c *gin.Context, msg string) { Fail(c, http.StatusUnauthorized, CodeUnauthorized, msg) }

func Forbidden(c *gin.Context, msg string) { Fail(c, http.StatusForbidden, CodeForbidden, msg) }

func NotFound(c *gin.Context, msg string) { Fail(c, http.StatusNotFound, CodeNotFound, msg) }

func Conflict(c *gin.Context, msg string) { Fail(c, http.StatusConflict, CodeConflict, msg) }

func TooManyRequests(c *gin.Context, msg string) {
	Fail(c, http.StatusTooManyRequests, CodeRateLimited, msg)
}

func ServiceUnavailable(c *gin.Context, msg string) {
	Fail(c, http.StatusServiceUnavailable, CodeUnavailable, msg)
}

// Internal sends 500. msg goes to the client, so keep store errors out of it.
func Internal(c *gin.Context, msg string) { Fail(c, http.StatusInternalServerError, CodeInternal, msg) }
