package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/database"
)

// Repository handles events and event_slots persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (title, description, location, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	err := database.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, q, e.Title, e.Description, e.Location, e.CreatedBy).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return database.MapError(err, "event")
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, title, description, location, created_by, created_at, updated_at FROM events WHERE id = $1`
	var e models.Event
	err := database.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, q, id).
		Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, database.MapError(err, "event")
	}
	return &e, nil
}

// List returns all events, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Event, error) {
	rows, err := database.QuerierFromCtx(ctx, r.pool).Query(ctx,
		`SELECT id, title, description, location, created_by, created_at, updated_at FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, database.MapError(err, "list events")
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// CreateSlot inserts a time slot for an event.
func (r *Repository) CreateSlot(ctx context.Context, s *models.EventSlot) error {
	const q = `INSERT INTO event_slots (event_id, starts_at, ends_at, capacity)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := database.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, q, s.EventID, s.StartsAt, s.EndsAt, s.Capacity).
		Scan(&s.ID, &s.CreatedAt)
	return database.MapError(err, "slot")
}

// GetSlot returns a slot by ID.
func (r *Repository) GetSlot(ctx context.Context, id uuid.UUID) (*models.EventSlot, error) {
	return r.getSlot(ctx, `SELECT id, event_id, starts_at, ends_at, capacity, created_at FROM event_slots WHERE id = $1`, id)
}

// GetSlotForUpdate returns a slot and locks it until the transaction ends, serializing
// capacity checks of concurrent registrations.
func (r *Repository) GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*models.EventSlot, error) {
	return r.getSlot(ctx, `SELECT id, event_id, starts_at, ends_at, capacity, created_at FROM event_slots WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) getSlot(ctx context.Context, q string, id uuid.UUID) (*models.EventSlot, error) {
	var s models.EventSlot
	err := database.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, q, id).
		Scan(&s.ID, &s.EventID, &s.StartsAt, &s.EndsAt, &s.Capacity, &s.CreatedAt)
	if err != nil {
		return nil, database.MapError(err, "slot")
	}
	return &s, nil
}

// ListSlots returns the slots of an event in start order.
func (r *Repository) ListSlots(ctx context.Context, eventID uuid.UUID) ([]models.EventSlot, error) {
	rows, err := database.QuerierFromCtx(ctx, r.pool).Query(ctx,
		`SELECT id, event_id, starts_at, ends_at, capacity, created_at FROM event_slots WHERE event_id = $1 ORDER BY starts_at`, eventID)
	if err != nil {
		return nil, database.MapError(err, "list slots")
	}
	defer rows.Close()
	var list []models.EventSlot
	for rows.Next() {
		var s models.EventSlot
		if err := rows.Scan(&s.ID, &s.EventID, &s.StartsAt, &s.EndsAt, &s.Capacity, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
