package emaillogs

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/internal/notify"
	"github.com/creative-contact/backend/pkg/database"
	"github.com/creative-contact/backend/pkg/queue"
	"github.com/creative-contact/backend/pkg/response"
)

type registrationGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error)
}

type enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo   *Repository
	regs   registrationGetter
	queue  enqueuer
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(repo *Repository, regs registrationGetter, q enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, regs: regs, queue: q, logger: logger}
}

// ListByRegistration handles GET /registrations/:id/emails.
func (h *Handler) ListByRegistration(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	logs, err := h.repo.ListByRegistration(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}

// Resend handles POST /registrations/:id/emails/resend. Only pending registrations
// still need their confirmation link.
func (h *Handler) Resend(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.regs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "registration not found")
			return
		}
		response.Internal(c, "failed to load registration")
		return
	}
	if reg.Status != models.StatusPending {
		response.Conflict(c, "registration is "+string(reg.Status))
		return
	}
	if err := h.queue.EnqueueEmail(c.Request.Context(), notify.ConfirmationEmail(*reg)); err != nil {
		h.logger.Error("resend enqueue failed", zap.String("registration_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to queue email")
		return
	}
	response.OK(c, gin.H{"message": "resend queued"})
}
