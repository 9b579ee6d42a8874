package events

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/internal/middleware"
	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/database"
	"github.com/creative-contact/backend/pkg/response"
)

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// CreateSlotRequest is the body for POST /events/:id/slots.
type CreateSlotRequest struct {
	StartsAt string `json:"starts_at" binding:"required"`
	EndsAt   string `json:"ends_at" binding:"required"`
	Capacity int    `json:"capacity" binding:"min=0"`
}

type statusCounter interface {
	CountByStatus(ctx context.Context, slotID uuid.UUID) (map[models.RegistrationStatus]int, error)
}

// Handler handles event and slot HTTP endpoints.
type Handler struct {
	repo   *Repository
	counts statusCounter
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(repo *Repository, counts statusCounter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, counts: counts, logger: logger}
}

// Create handles POST /events (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	e := &models.Event{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		CreatedBy:   &userID,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, gin.H{"events": list})
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "event not found")
		return
	}
	response.OK(c, e)
}

// CreateSlot handles POST /events/:id/slots (admin only).
func (h *Handler) CreateSlot(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startsAt, err := parseTime(req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	endsAt, err := parseTime(req.EndsAt)
	if err != nil {
		response.BadRequest(c, "invalid ends_at")
		return
	}
	if !endsAt.After(startsAt) {
		response.BadRequest(c, "ends_at must be after starts_at")
		return
	}

	s := &models.EventSlot{EventID: eventID, StartsAt: startsAt, EndsAt: endsAt, Capacity: req.Capacity}
	if err := h.repo.CreateSlot(c.Request.Context(), s); err != nil {
		if errors.Is(err, database.ErrConflict) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("create slot failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to create slot")
		return
	}
	response.Created(c, s)
}

// ListSlots handles GET /events/:id/slots.
func (h *Handler) ListSlots(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.repo.ListSlots(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list slots failed", zap.Error(err))
		response.Internal(c, "failed to list slots")
		return
	}
	response.OK(c, gin.H{"slots": list})
}

// Stats handles GET /slots/:id/stats.
func (h *Handler) Stats(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot id")
		return
	}
	if _, err := h.repo.GetSlot(c.Request.Context(), slotID); err != nil {
		response.NotFound(c, "slot not found")
		return
	}
	counts, err := h.counts.CountByStatus(c.Request.Context(), slotID)
	if err != nil {
		h.logger.Error("slot stats failed", zap.Error(err))
		response.Internal(c, "failed to load stats")
		return
	}
	response.OK(c, BuildStats(slotID, counts))
}

// BuildStats derives totals and the checked-in share from per-status counts.
// Cancelled registrations are excluded from the percentage base.
func BuildStats(slotID uuid.UUID, counts map[models.RegistrationStatus]int) models.SlotStats {
	st := models.SlotStats{SlotID: slotID, ByStatus: counts}
	for _, n := range counts {
		st.Total += n
	}
	active := st.Total - counts[models.StatusCancelled]
	if active > 0 {
		st.CheckedInPct = float64(counts[models.StatusCheckedIn]) * 100 / float64(active)
	}
	return st
}

type viewerCounter interface {
	ViewerCount(slotID uuid.UUID) int
}

// Viewers returns a handler reporting how many dashboards on this instance follow a slot feed.
func (h *Handler) Viewers(hub viewerCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		slotID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid slot id")
			return
		}
		response.OK(c, gin.H{"slot_id": slotID, "count": hub.ViewerCount(slotID)})
	}
}
