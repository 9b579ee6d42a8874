// Package notify fans committed registration changes out to the live feed and the email queue.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/internal/realtime"
	"github.com/creative-contact/backend/pkg/queue"
)

type feed interface {
	Publish(slotID uuid.UUID, event string, payload interface{}) error
}

type mailer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Notifier is best effort: failures are logged and never returned, since the
// change they describe is already committed.
type Notifier struct {
	feed   feed
	mail   mailer
	logger *zap.Logger
}

// New creates a notifier. Either sink may be nil.
func New(feed feed, mail mailer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{feed: feed, mail: mail, logger: logger}
}

// CheckedInEvent is the live feed payload for a check-in.
type CheckedInEvent struct {
	Registration models.CheckinSummary     `json:"registration"`
	StatusBefore models.RegistrationStatus `json:"status_before"`
	StaffID      uuid.UUID                 `json:"staff_id"`
}

// StatusEvent is the live feed payload for confirm and cancel.
type StatusEvent struct {
	RegistrationID uuid.UUID                 `json:"registration_id"`
	Name           string                    `json:"name"`
	Status         models.RegistrationStatus `json:"status"`
}

// CheckedIn announces a committed check-in and sends the attendee a receipt.
func (n *Notifier) CheckedIn(ctx context.Context, reg models.CheckinSummary, before models.RegistrationStatus, staffID uuid.UUID) {
	n.publish(reg.SlotID, realtime.EventCheckedIn, CheckedInEvent{
		Registration: reg,
		StatusBefore: before,
		StaffID:      staffID,
	})
	n.enqueue(ctx, queue.EmailPayload{
		EmailType:      models.EmailTypeCheckinReceipt,
		RegistrationID: reg.ID,
		RecipientEmail: reg.Email,
		RecipientName:  reg.Name,
		SlotID:         reg.SlotID,
	})
}

// Registered sends the confirmation link for a new or refreshed registration.
func (n *Notifier) Registered(ctx context.Context, reg models.EventRegistration) {
	if reg.Status != models.StatusPending {
		return
	}
	n.enqueue(ctx, ConfirmationEmail(reg))
}

// StatusChanged announces confirm and cancel transitions.
func (n *Notifier) StatusChanged(_ context.Context, reg models.EventRegistration) {
	var event string
	switch reg.Status {
	case models.StatusConfirmed:
		event = realtime.EventConfirmed
	case models.StatusCancelled:
		event = realtime.EventCancelled
	default:
		return
	}
	n.publish(reg.SlotID, event, StatusEvent{RegistrationID: reg.ID, Name: reg.Name, Status: reg.Status})
}

// ConfirmationEmail builds the job payload carrying the registration's signature link.
func ConfirmationEmail(reg models.EventRegistration) queue.EmailPayload {
	return queue.EmailPayload{
		EmailType:      models.EmailTypeRegistrationConfirmation,
		RegistrationID: reg.ID,
		RecipientEmail: reg.Email,
		RecipientName:  reg.Name,
		Signature:      reg.Signature,
		SlotID:         reg.SlotID,
	}
}

func (n *Notifier) publish(slotID uuid.UUID, event string, payload interface{}) {
	if n.feed == nil {
		return
	}
	if err := n.feed.Publish(slotID, event, payload); err != nil {
		n.logger.Warn("publish feed event failed", zap.String("event", event), zap.String("slot_id", slotID.String()), zap.Error(err))
	}
}

func (n *Notifier) enqueue(ctx context.Context, p queue.EmailPayload) {
	if n.mail == nil {
		return
	}
	if err := n.mail.EnqueueEmail(ctx, p); err != nil {
		n.logger.Warn("enqueue email failed", zap.String("email_type", p.EmailType), zap.String("registration_id", p.RegistrationID.String()), zap.Error(err))
	}
}
