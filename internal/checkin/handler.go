package checkin

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/internal/middleware"
	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/internal/registrations"
	"github.com/creative-contact/backend/pkg/response"
)

type performer interface {
	PerformCheckin(ctx context.Context, registrationID, staffID uuid.UUID) Result
}

type searcher interface {
	Search(ctx context.Context, f registrations.SearchFilter) ([]models.EventRegistration, error)
}

type notifier interface {
	CheckedIn(ctx context.Context, reg models.CheckinSummary, before models.RegistrationStatus, staffID uuid.UUID)
}

// ScanRequest is the body for POST /checkin/scan.
type ScanRequest struct {
	QR string `json:"qr" binding:"required"`
}

// Handler exposes the engine to door staff.
type Handler struct {
	engine performer
	search searcher
	notify notifier
	logger *zap.Logger
}

// NewHandler creates a check-in handler. notify may be nil.
func NewHandler(engine performer, search searcher, notify notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, search: search, notify: notify, logger: logger}
}

// CheckIn handles POST /checkin/registrations/:id.
func (h *Handler) CheckIn(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, string(CodeInvalidID), "invalid registration id")
		return
	}
	h.perform(c, id)
}

// Scan handles POST /checkin/scan with the raw content of a ticket QR code.
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	id, err := ParseQRPayload(req.QR)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.perform(c, id)
}

func (h *Handler) perform(c *gin.Context, registrationID uuid.UUID) {
	staffID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ctx := c.Request.Context()

	res := h.engine.PerformCheckin(ctx, registrationID, staffID)
	if !res.Success {
		status := HTTPStatus(res.Code)
		if status == http.StatusInternalServerError {
			h.logger.Error("check-in failed",
				zap.String("registration_id", registrationID.String()),
				zap.String("staff_id", staffID.String()),
				zap.Error(res.Err),
			)
		}
		response.Fail(c, status, string(res.Code), res.Message)
		return
	}

	if h.notify != nil {
		h.notify.CheckedIn(context.WithoutCancel(ctx), *res.Registration, res.StatusBefore, staffID)
	}
	response.OK(c, res.Registration)
}

// HTTPStatus maps an engine error code to its response status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeInvalidID:
		return http.StatusNotFound
	case CodeInvalidStatus:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Search handles GET /checkin/search?slot_id=&q=&status= for manual lookup at the door.
func (h *Handler) Search(c *gin.Context) {
	f := registrations.SearchFilter{
		Query: strings.TrimSpace(c.Query("q")),
		Limit: registrations.DefaultSearchLimit,
	}
	if s := c.Query("slot_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid slot_id")
			return
		}
		f.SlotID = &id
	}
	if s := c.Query("status"); s != "" {
		st, err := models.ParseRegistrationStatus(s)
		if err != nil {
			response.BadRequest(c, "invalid status")
			return
		}
		f.Status = st
	}
	if f.SlotID == nil && f.Query == "" {
		response.BadRequest(c, "slot_id or q required")
		return
	}

	list, err := h.search.Search(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("check-in search failed", zap.Error(err))
		response.Internal(c, "search failed")
		return
	}
	out := make([]SearchHit, 0, len(list))
	for _, r := range list {
		out = append(out, SearchHit{
			CheckinSummary: models.CheckinSummary{
				ID: r.ID, SlotID: r.SlotID, Status: r.Status, Name: r.Name, Email: r.Email, Phone: r.Phone,
			},
			Eligible: Eligible(r.Status),
		})
	}
	response.OK(c, gin.H{"registrations": out})
}

// SearchHit is one manual search result, flagged with whether it can be checked in.
type SearchHit struct {
	models.CheckinSummary
	Eligible bool `json:"eligible"`
}
