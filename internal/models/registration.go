package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the lifecycle state of an event registration.
// The set is closed; it mirrors the registration_status enum in Postgres.
type RegistrationStatus string

const (
	StatusPending   RegistrationStatus = "pending"
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusCheckedIn RegistrationStatus = "checked-in"
	StatusCancelled RegistrationStatus = "cancelled"
)

// RegistrationStatuses lists every status in lifecycle order.
var RegistrationStatuses = []RegistrationStatus{StatusPending, StatusConfirmed, StatusCheckedIn, StatusCancelled}

// ParseRegistrationStatus validates s against the closed set.
func ParseRegistrationStatus(s string) (RegistrationStatus, error) {
	st := RegistrationStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown registration status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the four known statuses.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusCancelled:
		return true
	}
	return false
}

func (s RegistrationStatus) String() string { return string(s) }

// EventRegistration is one attendee's registration for an event slot.
type EventRegistration struct {
	ID        uuid.UUID          `json:"id"`
	SlotID    uuid.UUID          `json:"slot_id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Phone     string             `json:"phone"`
	Status    RegistrationStatus `json:"status"`
	Signature string             `json:"-"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// CheckinSummary is the post-update view returned by a successful check-in.
type CheckinSummary struct {
	ID     uuid.UUID          `json:"id"`
	SlotID uuid.UUID          `json:"slot_id"`
	Status RegistrationStatus `json:"status"`
	Name   string             `json:"name"`
	Email  string             `json:"email"`
	Phone  string             `json:"phone"`
}

// EventRegistrationLog is an append-only audit row for a registration status transition.
type EventRegistrationLog struct {
	ID             uuid.UUID          `json:"id"`
	RegistrationID uuid.UUID          `json:"registration_id"`
	StaffID        uuid.UUID          `json:"staff_id"`
	StatusBefore   RegistrationStatus `json:"status_before"`
	StatusAfter    RegistrationStatus `json:"status_after"`
	ChangedAt      time.Time          `json:"changed_at"`
}
