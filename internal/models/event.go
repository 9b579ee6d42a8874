package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a public event (exhibition, workshop, talk) with one or more time slots.
type Event struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EventSlot is a bookable time window of an event. Capacity 0 means unlimited.
type EventSlot struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
}

// SlotStats aggregates registration counts per status for one slot.
type SlotStats struct {
	SlotID       uuid.UUID                  `json:"slot_id"`
	Total        int                        `json:"total"`
	ByStatus     map[RegistrationStatus]int `json:"by_status"`
	CheckedInPct float64                    `json:"checked_in_percent"`
}
