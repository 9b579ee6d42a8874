package registrations

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/database"
)

var (
	ErrNotFound          = database.ErrNotFound
	ErrNameRequired      = errors.New("name is required")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotFull          = errors.New("slot is full")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StatusError reports a transition attempted from a status that does not allow it.
type StatusError struct {
	Current models.RegistrationStatus
	Target  models.RegistrationStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cannot move registration from %s to %s", e.Current, e.Target)
}

func (e *StatusError) Unwrap() error { return ErrInvalidTransition }

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type store interface {
	Upsert(ctx context.Context, reg *models.EventRegistration) error
	GetBySlotAndEmail(ctx context.Context, slotID uuid.UUID, email string) (*models.EventRegistration, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error)
	GetBySignatureForUpdate(ctx context.Context, signature string) (*models.EventRegistration, error)
	CountActiveBySlot(ctx context.Context, slotID uuid.UUID) (int, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) (*models.EventRegistration, error)
}

type slotLocker interface {
	GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*models.EventSlot, error)
}

// Notifier is told about registration changes after they commit.
type Notifier interface {
	Registered(ctx context.Context, reg models.EventRegistration)
	StatusChanged(ctx context.Context, reg models.EventRegistration)
}

// RegisterInput is a new attendee registration.
type RegisterInput struct {
	SlotID uuid.UUID
	Name   string
	Email  string
	Phone  string
}

// Service implements the registration and confirmation flows.
// Check-in itself lives in the checkin package.
type Service struct {
	tx     txRunner
	repo   store
	slots  slotLocker
	notify Notifier
	logger *zap.Logger
}

// NewService creates a registrations service. notify may be nil.
func NewService(tx txRunner, repo store, slots slotLocker, notify Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tx: tx, repo: repo, slots: slots, notify: notify, logger: logger}
}

// Register creates a pending registration, or refreshes the contact details of an
// existing one for the same slot and email without touching its status.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.EventRegistration, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	reg := &models.EventRegistration{
		SlotID: in.SlotID,
		Name:   strings.TrimSpace(in.Name),
		Email:  email,
		Phone:  strings.TrimSpace(in.Phone),
		Status: models.StatusPending,
	}
	if reg.Name == "" {
		return nil, ErrNameRequired
	}
	signature, err := generateSignature()
	if err != nil {
		return nil, fmt.Errorf("generate signature: %w", err)
	}
	reg.Signature = signature

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		slot, err := s.slots.GetSlotForUpdate(ctx, in.SlotID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrSlotNotFound
			}
			return err
		}
		if slot.Capacity > 0 {
			existing, err := s.repo.GetBySlotAndEmail(ctx, in.SlotID, email)
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				return err
			}
			if existing == nil || existing.Status == models.StatusCancelled {
				n, err := s.repo.CountActiveBySlot(ctx, in.SlotID)
				if err != nil {
					return err
				}
				if n >= slot.Capacity {
					return ErrSlotFull
				}
			}
		}
		return s.repo.Upsert(ctx, reg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registration stored",
		zap.String("registration_id", reg.ID.String()),
		zap.String("slot_id", reg.SlotID.String()),
		zap.String("status", string(reg.Status)),
	)
	if s.notify != nil && reg.Status == models.StatusPending {
		s.notify.Registered(ctx, *reg)
	}
	return reg, nil
}

// Confirm moves a pending registration to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error) {
	return s.transition(ctx, func(ctx context.Context) (*models.EventRegistration, error) {
		return s.repo.GetByIDForUpdate(ctx, id)
	}, models.StatusConfirmed)
}

// ConfirmBySignature confirms the registration owning an emailed signature.
func (s *Service) ConfirmBySignature(ctx context.Context, signature string) (*models.EventRegistration, error) {
	return s.transition(ctx, func(ctx context.Context) (*models.EventRegistration, error) {
		return s.repo.GetBySignatureForUpdate(ctx, signature)
	}, models.StatusConfirmed)
}

// Cancel moves a pending or confirmed registration to cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error) {
	return s.transition(ctx, func(ctx context.Context) (*models.EventRegistration, error) {
		return s.repo.GetByIDForUpdate(ctx, id)
	}, models.StatusCancelled)
}

// CanTransition reports whether the registration flows may move from one status to
// another. checked-in is only reachable through the check-in engine.
func CanTransition(from, to models.RegistrationStatus) bool {
	switch to {
	case models.StatusConfirmed:
		return from == models.StatusPending
	case models.StatusCancelled:
		return from == models.StatusPending || from == models.StatusConfirmed
	default:
		return false
	}
}

func (s *Service) transition(ctx context.Context, lock func(ctx context.Context) (*models.EventRegistration, error), to models.RegistrationStatus) (*models.EventRegistration, error) {
	var updated *models.EventRegistration
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		reg, err := lock(ctx)
		if err != nil {
			return err
		}
		if !CanTransition(reg.Status, to) {
			return &StatusError{Current: reg.Status, Target: to}
		}
		updated, err = s.repo.SetStatus(ctx, reg.ID, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration status changed",
		zap.String("registration_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
	)
	if s.notify != nil {
		s.notify.StatusChanged(ctx, *updated)
	}
	return updated, nil
}

func generateSignature() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
