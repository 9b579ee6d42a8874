// Package checkin moves event registrations to checked-in and records who did it.
package checkin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/internal/models"
)

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type registrationStore interface {
	// LockStatus returns the status of every row matching id, locking them for the
	// rest of the transaction.
	LockStatus(ctx context.Context, id uuid.UUID) ([]models.RegistrationStatus, error)
	MarkCheckedIn(ctx context.Context, id uuid.UUID) (models.CheckinSummary, error)
}

type auditStore interface {
	Append(ctx context.Context, entry models.EventRegistrationLog) (models.EventRegistrationLog, error)
}

// Result is the outcome of one check-in attempt. Failures never escape as panics
// or bare errors so callers can render business rejections as normal feedback.
type Result struct {
	Success      bool                      `json:"success"`
	Registration *models.CheckinSummary    `json:"registration,omitempty"`
	StatusBefore models.RegistrationStatus `json:"status_before,omitempty"`
	Code         ErrorCode                 `json:"code,omitempty"`
	Message      string                    `json:"message,omitempty"`
	Err          error                     `json:"-"`
}

// Engine performs check-ins. It holds no state between calls.
type Engine struct {
	tx            txRunner
	registrations registrationStore
	audit         auditStore
	tracer        trace.Tracer
	logger        *zap.Logger
}

// NewEngine creates a check-in engine over a transaction runner and the two stores
// it writes to inside that transaction.
func NewEngine(tx txRunner, registrations registrationStore, audit auditStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		tx:            tx,
		registrations: registrations,
		audit:         audit,
		tracer:        otel.Tracer("creative-contact/checkin"),
		logger:        logger,
	}
}

// Eligible reports whether a registration in status s may be checked in.
// Adding a status to models.RegistrationStatus must be decided here.
func Eligible(s models.RegistrationStatus) bool {
	switch s {
	case models.StatusPending, models.StatusConfirmed:
		return true
	case models.StatusCheckedIn, models.StatusCancelled:
		return false
	default:
		return false
	}
}

// PerformCheckin transitions the registration to checked-in and appends one audit
// row, atomically. staffID is trusted; authentication happens upstream.
func (e *Engine) PerformCheckin(ctx context.Context, registrationID, staffID uuid.UUID) Result {
	ctx, span := e.tracer.Start(ctx, "checkin.perform", trace.WithAttributes(
		attribute.String("registration.id", registrationID.String()),
		attribute.String("staff.id", staffID.String()),
	))
	defer span.End()

	var (
		summary models.CheckinSummary
		before  models.RegistrationStatus
	)
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		statuses, err := e.registrations.LockStatus(ctx, registrationID)
		if err != nil {
			return fmt.Errorf("lookup registration: %w", err)
		}
		if len(statuses) != 1 {
			return &Error{
				Code:    CodeInvalidID,
				Message: fmt.Sprintf("Invalid slot ID, expected 1 but found %d", len(statuses)),
			}
		}

		before = statuses[0]
		if !Eligible(before) {
			return &Error{
				Code:    CodeInvalidStatus,
				Message: fmt.Sprintf("Invalid status: %s", before),
				Status:  before,
			}
		}

		summary, err = e.registrations.MarkCheckedIn(ctx, registrationID)
		if err != nil {
			return fmt.Errorf("update registration status: %w", err)
		}

		if _, err := e.audit.Append(ctx, models.EventRegistrationLog{
			RegistrationID: summary.ID,
			StaffID:        staffID,
			StatusBefore:   before,
			StatusAfter:    models.StatusCheckedIn,
		}); err != nil {
			return fmt.Errorf("append audit log: %w", err)
		}
		return nil
	})

	if err != nil {
		res := failure(err)
		span.SetAttributes(attribute.String("checkin.code", string(res.Code)))
		if res.Code == CodeTransactionFailed {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transaction failed")
		}
		return res
	}

	span.SetAttributes(attribute.String("checkin.status_before", string(before)))
	e.logger.Info("registration checked in",
		zap.String("registration_id", summary.ID.String()),
		zap.String("staff_id", staffID.String()),
		zap.String("status_before", string(before)),
	)
	return Result{
		Success:      true,
		Registration: &summary,
		StatusBefore: before,
	}
}

func failure(err error) Result {
	var ce *Error
	if errors.As(err, &ce) {
		return Result{Code: ce.Code, Message: ce.Message, Err: ce}
	}
	return Result{
		Code:    CodeTransactionFailed,
		Message: "check-in could not be saved",
		Err:     &Error{Code: CodeTransactionFailed, Message: "check-in could not be saved", Err: err},
	}
}
