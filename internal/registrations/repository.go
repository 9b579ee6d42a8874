package registrations

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/database"
)

const (
	// DefaultSearchLimit caps manual-search results.
	DefaultSearchLimit = 50
	// MaxListLimit caps slot listings.
	MaxListLimit = 1000
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var registrationColumns = []string{
	"id", "slot_id", "name", "email", "phone", "status::text", "signature", "created_at", "updated_at",
}

// SearchFilter narrows registration listings. Zero values mean "any".
type SearchFilter struct {
	SlotID *uuid.UUID
	Status models.RegistrationStatus
	Query  string // substring of name, email or phone, case-insensitive
	Limit  int
}

// Repository handles event_registrations persistence. Every method runs on the
// transaction in ctx when there is one.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) q(ctx context.Context) database.Querier {
	return database.QuerierFromCtx(ctx, r.pool)
}

// Upsert inserts a registration (unique per slot+email). An existing row keeps its
// status and signature and gets name and phone refreshed; a cancelled one is
// reopened as pending.
func (r *Repository) Upsert(ctx context.Context, reg *models.EventRegistration) error {
	const q = `INSERT INTO event_registrations (slot_id, name, email, phone, status, signature)
		VALUES ($1, $2, $3, $4, $5::registration_status, $6)
		ON CONFLICT (slot_id, email) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, updated_at = NOW(),
			status = CASE WHEN event_registrations.status = 'cancelled' THEN 'pending'::registration_status ELSE event_registrations.status END
		RETURNING id, status::text, signature, created_at, updated_at`
	var status string
	err := r.q(ctx).QueryRow(ctx, q, reg.SlotID, reg.Name, reg.Email, reg.Phone, string(reg.Status), reg.Signature).
		Scan(&reg.ID, &status, &reg.Signature, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return database.MapError(err, "registration")
	}
	reg.Status = models.RegistrationStatus(status)
	return nil
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error) {
	return r.getOne(ctx, sq.Expr("id = ?", id))
}

// GetBySignature returns the registration owning an emailed confirmation signature.
func (r *Repository) GetBySignature(ctx context.Context, signature string) (*models.EventRegistration, error) {
	return r.getOne(ctx, sq.Eq{"signature": signature})
}

// GetBySlotAndEmail returns the registration of email for a slot.
func (r *Repository) GetBySlotAndEmail(ctx context.Context, slotID uuid.UUID, email string) (*models.EventRegistration, error) {
	return r.getOne(ctx, sq.And{sq.Expr("slot_id = ?", slotID), sq.Eq{"email": email}})
}

// GetByIDForUpdate returns a registration and locks its row until the transaction ends.
func (r *Repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error) {
	return r.getOne(ctx, sq.Expr("id = ?", id), "FOR UPDATE")
}

// GetBySignatureForUpdate is GetBySignature with a row lock.
func (r *Repository) GetBySignatureForUpdate(ctx context.Context, signature string) (*models.EventRegistration, error) {
	return r.getOne(ctx, sq.Eq{"signature": signature}, "FOR UPDATE")
}

func (r *Repository) getOne(ctx context.Context, where sq.Sqlizer, suffix ...string) (*models.EventRegistration, error) {
	qb := psql.Select(registrationColumns...).From("event_registrations").Where(where)
	for _, s := range suffix {
		qb = qb.Suffix(s)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build registration query: %w", err)
	}
	reg, err := scanRegistration(r.q(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, database.MapError(err, "registration")
	}
	return reg, nil
}

// Search lists registrations matching the filter, newest first.
func (r *Repository) Search(ctx context.Context, f SearchFilter) ([]models.EventRegistration, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	qb := psql.Select(registrationColumns...).From("event_registrations")
	if f.SlotID != nil {
		qb = qb.Where("slot_id = ?", *f.SlotID)
	}
	if f.Status != "" {
		qb = qb.Where("status = ?::registration_status", string(f.Status))
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		like := "%" + escapeLike(term) + "%"
		qb = qb.Where(sq.Or{
			sq.ILike{"name": like},
			sq.ILike{"email": like},
			sq.ILike{"phone": like},
		})
	}
	query, args, err := qb.OrderBy("created_at DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, database.MapError(err, "search registrations")
	}
	defer rows.Close()
	var list []models.EventRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *reg)
	}
	return list, rows.Err()
}

// ListAllBySlot returns every registration of a slot ordered by name, without a limit.
func (r *Repository) ListAllBySlot(ctx context.Context, slotID uuid.UUID) ([]models.EventRegistration, error) {
	query, args, err := psql.Select(registrationColumns...).From("event_registrations").
		Where("slot_id = ?", slotID).
		OrderBy("lower(name)", "email").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build slot listing: %w", err)
	}
	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, database.MapError(err, "list slot registrations")
	}
	defer rows.Close()
	list := []models.EventRegistration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *reg)
	}
	return list, rows.Err()
}

// CountActiveBySlot counts registrations of a slot that are not cancelled.
func (r *Repository) CountActiveBySlot(ctx context.Context, slotID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM event_registrations WHERE slot_id = $1 AND status <> 'cancelled'`
	var n int
	if err := r.q(ctx).QueryRow(ctx, q, slotID).Scan(&n); err != nil {
		return 0, database.MapError(err, "count registrations")
	}
	return n, nil
}

// CountByStatus returns registration counts per status for a slot.
func (r *Repository) CountByStatus(ctx context.Context, slotID uuid.UUID) (map[models.RegistrationStatus]int, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT status::text, COUNT(*) FROM event_registrations WHERE slot_id = $1 GROUP BY status`, slotID)
	if err != nil {
		return nil, database.MapError(err, "count registrations")
	}
	defer rows.Close()
	out := make(map[models.RegistrationStatus]int, len(models.RegistrationStatuses))
	for _, s := range models.RegistrationStatuses {
		out[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.RegistrationStatus(status)] = n
	}
	return out, rows.Err()
}

// SetStatus overwrites the status of a registration. Callers hold the row lock.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) (*models.EventRegistration, error) {
	query, args, err := psql.Update("event_registrations").
		Set("status", sq.Expr("?::registration_status", string(status))).
		Set("updated_at", sq.Expr("NOW()")).
		Where("id = ?", id).
		Suffix("RETURNING " + strings.Join(registrationColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build status update: %w", err)
	}
	reg, err := scanRegistration(r.q(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, database.MapError(err, "registration")
	}
	return reg, nil
}

// LockStatus returns the status of every registration with this id and locks the rows.
// Used by the check-in engine inside its transaction.
func (r *Repository) LockStatus(ctx context.Context, id uuid.UUID) ([]models.RegistrationStatus, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT status::text FROM event_registrations WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, database.MapError(err, "lock registration")
	}
	defer rows.Close()
	var out []models.RegistrationStatus
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, models.RegistrationStatus(s))
	}
	return out, rows.Err()
}

// MarkCheckedIn sets status to checked-in and returns the updated summary.
func (r *Repository) MarkCheckedIn(ctx context.Context, id uuid.UUID) (models.CheckinSummary, error) {
	const q = `UPDATE event_registrations SET status = 'checked-in', updated_at = NOW()
		WHERE id = $1
		RETURNING id, slot_id, status::text, name, email, phone`
	var s models.CheckinSummary
	var status string
	err := r.q(ctx).QueryRow(ctx, q, id).Scan(&s.ID, &s.SlotID, &status, &s.Name, &s.Email, &s.Phone)
	if err != nil {
		return models.CheckinSummary{}, database.MapError(err, "check in registration")
	}
	s.Status = models.RegistrationStatus(status)
	return s, nil
}

func scanRegistration(row pgx.Row) (*models.EventRegistration, error) {
	var reg models.EventRegistration
	var status string
	if err := row.Scan(&reg.ID, &reg.SlotID, &reg.Name, &reg.Email, &reg.Phone, &status, &reg.Signature, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
		return nil, err
	}
	reg.Status = models.RegistrationStatus(status)
	return &reg, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
