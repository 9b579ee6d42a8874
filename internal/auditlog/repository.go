package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/database"
)

// Repository handles event_registration_logs. Rows are only ever inserted.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an audit log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts one status change. It runs in the caller's transaction when ctx carries one.
func (r *Repository) Append(ctx context.Context, entry models.EventRegistrationLog) (models.EventRegistrationLog, error) {
	const q = `INSERT INTO event_registration_logs (registration_id, staff_id, status_before, status_after)
		VALUES ($1, $2, $3::registration_status, $4::registration_status)
		RETURNING id, changed_at`
	err := database.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, q,
		entry.RegistrationID, entry.StaffID, string(entry.StatusBefore), string(entry.StatusAfter)).
		Scan(&entry.ID, &entry.ChangedAt)
	if err != nil {
		return entry, database.MapError(err, "registration log")
	}
	return entry, nil
}

const selectLogs = `SELECT id, registration_id, staff_id, status_before::text, status_after::text, changed_at
	FROM event_registration_logs`

// ListByRegistration returns the history of one registration, newest first.
func (r *Repository) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]models.EventRegistrationLog, error) {
	rows, err := database.QuerierFromCtx(ctx, r.pool).Query(ctx,
		selectLogs+` WHERE registration_id = $1 ORDER BY changed_at DESC, id`, registrationID)
	if err != nil {
		return nil, database.MapError(err, "list registration logs")
	}
	return scanLogs(rows)
}

// ListByStaff returns the changes made by one staff member, newest first.
func (r *Repository) ListByStaff(ctx context.Context, staffID uuid.UUID, limit int) ([]models.EventRegistrationLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := database.QuerierFromCtx(ctx, r.pool).Query(ctx,
		selectLogs+` WHERE staff_id = $1 ORDER BY changed_at DESC, id LIMIT $2`, staffID, limit)
	if err != nil {
		return nil, database.MapError(err, "list staff logs")
	}
	return scanLogs(rows)
}

// CheckinRecord is when and by whom a registration was checked in.
type CheckinRecord struct {
	StaffID   uuid.UUID
	CheckedAt time.Time
}

// CheckinsBySlot returns the latest check-in log row per registration of a slot.
func (r *Repository) CheckinsBySlot(ctx context.Context, slotID uuid.UUID) (map[uuid.UUID]CheckinRecord, error) {
	const q = `SELECT DISTINCT ON (l.registration_id) l.registration_id, l.staff_id, l.changed_at
		FROM event_registration_logs l
		JOIN event_registrations r ON r.id = l.registration_id
		WHERE r.slot_id = $1 AND l.status_after = 'checked-in'
		ORDER BY l.registration_id, l.changed_at DESC`
	rows, err := database.QuerierFromCtx(ctx, r.pool).Query(ctx, q, slotID)
	if err != nil {
		return nil, database.MapError(err, "list slot checkins")
	}
	defer rows.Close()
	out := make(map[uuid.UUID]CheckinRecord)
	for rows.Next() {
		var id uuid.UUID
		var rec CheckinRecord
		if err := rows.Scan(&id, &rec.StaffID, &rec.CheckedAt); err != nil {
			return nil, err
		}
		out[id] = rec
	}
	return out, rows.Err()
}

func scanLogs(rows pgx.Rows) ([]models.EventRegistrationLog, error) {
	defer rows.Close()
	list := []models.EventRegistrationLog{}
	for rows.Next() {
		var l models.EventRegistrationLog
		var before, after string
		if err := rows.Scan(&l.ID, &l.RegistrationID, &l.StaffID, &before, &after, &l.ChangedAt); err != nil {
			return nil, err
		}
		l.StatusBefore = models.RegistrationStatus(before)
		l.StatusAfter = models.RegistrationStatus(after)
		list = append(list, l)
	}
	return list, rows.Err()
}
