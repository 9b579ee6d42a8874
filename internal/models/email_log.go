package models

import (
	"time"

	"github.com/google/uuid"
)

// Email types sent by the notification worker.
const (
	EmailTypeRegistrationConfirmation = "registration_confirmation"
	EmailTypeCheckinReceipt           = "checkin_receipt"
)

// EmailStatus is the delivery state of one email attempt.
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// EmailLog records one notification email attempt for a registration.
type EmailLog struct {
	ID             uuid.UUID   `json:"id"`
	RegistrationID *uuid.UUID  `json:"registration_id,omitempty"`
	EmailType      string      `json:"email_type"`
	RecipientEmail string      `json:"recipient_email"`
	Subject        string      `json:"subject,omitempty"`
	Status         EmailStatus `json:"status"`
	SentAt         *time.Time  `json:"sent_at,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
