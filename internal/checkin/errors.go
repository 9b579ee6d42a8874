package checkin

import (
	"errors"

	"github.com/creative-contact/backend/internal/models"
)

// ErrorCode identifies why a check-in was rejected.
type ErrorCode string

const (
	// CodeInvalidID: the identifier did not resolve to exactly one registration.
	CodeInvalidID ErrorCode = "INVALID_ID"
	// CodeInvalidStatus: the registration exists but is not pending or confirmed.
	CodeInvalidStatus ErrorCode = "INVALID_STATUS"
	// CodeTransactionFailed: the store failed; nothing was persisted.
	CodeTransactionFailed ErrorCode = "TRANSACTION_FAILED"
)

var (
	ErrInvalidID         = errors.New("registration not found")
	ErrInvalidStatus     = errors.New("registration not eligible for check-in")
	ErrTransactionFailed = errors.New("check-in transaction failed")
)

// Error is a failed check-in. Business rejections (INVALID_ID, INVALID_STATUS)
// unwrap to their sentinel; TRANSACTION_FAILED unwraps to the store error.
type Error struct {
	Code    ErrorCode
	Message string
	Status  models.RegistrationStatus // current status, set for INVALID_STATUS
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Code == CodeTransactionFailed {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() []error {
	switch e.Code {
	case CodeInvalidID:
		return []error{ErrInvalidID}
	case CodeInvalidStatus:
		return []error{ErrInvalidStatus}
	default:
		if e.Err != nil {
			return []error{ErrTransactionFailed, e.Err}
		}
		return []error{ErrTransactionFailed}
	}
}

// Retryable reports whether retrying the same input could succeed.
// Business rejections are final.
func (e *Error) Retryable() bool {
	return e.Code == CodeTransactionFailed
}
