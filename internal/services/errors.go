package services

import (
	"errors"
	"fmt"
)

// Sentinel kinds for the shift workflow. Handlers branch on them with errors.Is.
var (
	ErrValidation             = errors.New("validation_error")
	ErrNotFound               = errors.New("not_found")
	ErrForbidden              = errors.New("forbidden")
	ErrPersistence            = errors.New("persistence_error")
	ErrOtpInvalid             = errors.New("otp_invalid")
	ErrOtpExpired             = errors.New("otp_expired")
	ErrNoActiveShift          = errors.New("no_active_shift")
	ErrShiftAlreadyOngoing    = errors.New("shift_already_ongoing")
	ErrApplicationNotAccepted = errors.New("application_not_accepted")
	ErrDuplicateRating        = errors.New("duplicate_rating")
)

// ShiftError carries a kind, a message fit for the end user and the
// underlying cause, if any.
type ShiftError struct {
	Kind    error
	Message string
	Err     error
}

func (e *ShiftError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the error's kind.
func (e *ShiftError) Is(target error) bool {
	return target == e.Kind
}

func (e *ShiftError) Unwrap() error {
	return e.Err
}

func newError(kind error, msg string) error {
	return &ShiftError{Kind: kind, Message: msg}
}

func validationError(format string, args ...any) error {
	return &ShiftError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(what string) error {
	return &ShiftError{Kind: ErrNotFound, Message: what + " not found"}
}

// persistenceError wraps a store failure, leaving already-classified errors alone.
func persistenceError(op string, err error) error {
	var se *ShiftError
	if errors.As(err, &se) {
		return err
	}
	return &ShiftError{Kind: ErrPersistence, Message: "failed to " + op, Err: err}
}

// UserMessage extracts the human-readable message from err.
func UserMessage(err error) string {
	var se *ShiftError
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal error"
}
