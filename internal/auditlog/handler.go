package auditlog

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/pkg/response"
)

// Handler serves the read side of the check-in audit trail.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an audit log handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListByRegistration handles GET /registrations/:id/logs.
func (h *Handler) ListByRegistration(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	list, err := h.repo.ListByRegistration(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list registration logs failed", zap.Error(err))
		response.Internal(c, "failed to list logs")
		return
	}
	response.OK(c, gin.H{"logs": list})
}

// ListByStaff handles GET /staff/:id/logs (admin only).
func (h *Handler) ListByStaff(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid staff id")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.repo.ListByStaff(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("list staff logs failed", zap.Error(err))
		response.Internal(c, "failed to list logs")
		return
	}
	response.OK(c, gin.H{"logs": list})
}
