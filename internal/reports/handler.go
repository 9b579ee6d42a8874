package reports

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/internal/auditlog"
	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/database"
	"github.com/creative-contact/backend/pkg/response"
	"github.com/creative-contact/backend/pkg/storage"
)

type slotGetter interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*models.EventSlot, error)
}

type slotRegistrations interface {
	ListAllBySlot(ctx context.Context, slotID uuid.UUID) ([]models.EventRegistration, error)
}

type checkinHistory interface {
	CheckinsBySlot(ctx context.Context, slotID uuid.UUID) (map[uuid.UUID]auditlog.CheckinRecord, error)
}

// ObjectStore receives finished exports.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// ExportResult is returned by POST /slots/:id/export.
type ExportResult struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Rows        int       `json:"rows"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Handler serves attendance exports.
type Handler struct {
	slots    slotGetter
	regs     slotRegistrations
	checkins checkinHistory
	store    ObjectStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewHandler creates a reports handler. A nil store disables exports.
func NewHandler(slots slotGetter, regs slotRegistrations, checkins checkinHistory, store ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{slots: slots, regs: regs, checkins: checkins, store: store, now: time.Now, logger: logger}
}

// Export handles POST /slots/:id/export (admin only).
func (h *Handler) Export(c *gin.Context) {
	if h.store == nil {
		response.ServiceUnavailable(c, "exports are not configured")
		return
	}
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid slot id")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.slots.GetSlot(ctx, slotID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "slot not found")
			return
		}
		response.Internal(c, "failed to load slot")
		return
	}

	regs, err := h.regs.ListAllBySlot(ctx, slotID)
	if err != nil {
		h.logger.Error("export: list registrations", zap.Error(err))
		response.Internal(c, "failed to build export")
		return
	}
	checkins, err := h.checkins.CheckinsBySlot(ctx, slotID)
	if err != nil {
		h.logger.Error("export: list checkins", zap.Error(err))
		response.Internal(c, "failed to build export")
		return
	}

	var buf bytes.Buffer
	if err := WriteAttendanceCSV(&buf, regs, checkins); err != nil {
		response.Internal(c, "failed to build export")
		return
	}

	now := h.now()
	key := storage.ExportKey(slotID.String(), now)
	if err := h.store.Upload(ctx, key, "text/csv; charset=utf-8", &buf); err != nil {
		h.logger.Error("export upload failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to upload export")
		return
	}
	url, err := h.store.PresignedDownloadURL(ctx, key)
	if err != nil {
		h.logger.Error("export presign failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to sign export url")
		return
	}
	h.logger.Info("slot exported", zap.String("slot_id", slotID.String()), zap.String("key", key), zap.Int("rows", len(regs)))
	response.Created(c, ExportResult{Key: key, URL: url, Rows: len(regs), GeneratedAt: now})
}
