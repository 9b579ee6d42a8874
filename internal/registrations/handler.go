package registrations

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/database"
	"github.com/creative-contact/backend/pkg/response"
)

// RegisterRequest is the body for POST /slots/:id/register.
type RegisterRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, repo: repo, logger: logger}
}

// Register handles POST /slots/:id/register.
func (h *Handler) Register(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot id")
		return
	}
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	reg, err := h.svc.Register(c.Request.Context(), RegisterInput{
		SlotID: slotID,
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
	})
	switch {
	case errors.Is(err, ErrNameRequired):
		response.BadRequest(c, err.Error())
		return
	case errors.Is(err, ErrSlotNotFound):
		response.NotFound(c, "slot not found")
		return
	case errors.Is(err, ErrSlotFull):
		response.Conflict(c, "slot is full")
		return
	case err != nil:
		h.logger.Error("register failed", zap.Error(err), zap.String("slot_id", slotID.String()))
		response.Internal(c, "failed to register")
		return
	}
	response.Created(c, reg)
}

// ConfirmBySignature handles POST /registrations/confirm/:signature (link from the confirmation email).
func (h *Handler) ConfirmBySignature(c *gin.Context) {
	sig := c.Param("signature")
	if sig == "" {
		response.BadRequest(c, "signature required")
		return
	}
	reg, err := h.svc.ConfirmBySignature(c.Request.Context(), sig)
	h.writeTransition(c, reg, err)
}

// Confirm handles POST /registrations/:id/confirm (staff).
func (h *Handler) Confirm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.svc.Confirm(c.Request.Context(), id)
	h.writeTransition(c, reg, err)
}

// Cancel handles POST /registrations/:id/cancel (staff).
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.svc.Cancel(c.Request.Context(), id)
	h.writeTransition(c, reg, err)
}

func (h *Handler) writeTransition(c *gin.Context, reg *models.EventRegistration, err error) {
	var se *StatusError
	switch {
	case err == nil:
		response.OK(c, reg)
	case errors.Is(err, database.ErrNotFound):
		response.NotFound(c, "registration not found")
	case errors.As(err, &se):
		response.Fail(c, http.StatusConflict, "INVALID_STATUS", se.Error())
	default:
		h.logger.Error("registration transition failed", zap.Error(err))
		response.Internal(c, "failed to update registration")
	}
}

// Get handles GET /registrations/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		response.NotFound(c, "registration not found")
		return
	}
	if err != nil {
		h.logger.Error("get registration failed", zap.Error(err))
		response.Internal(c, "failed to load registration")
		return
	}
	response.OK(c, reg)
}

// ListBySlot handles GET /slots/:id/registrations?status=&q=&limit=.
func (h *Handler) ListBySlot(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot id")
		return
	}
	f := SearchFilter{SlotID: &slotID, Query: c.Query("q"), Limit: MaxListLimit}
	if s := c.Query("status"); s != "" {
		st, err := models.ParseRegistrationStatus(s)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		f.Status = st
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		f.Limit = n
	}
	list, err := h.repo.Search(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Internal(c, "failed to list registrations")
		return
	}
	response.OK(c, gin.H{"registrations": list})
}
