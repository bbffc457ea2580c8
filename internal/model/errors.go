package model

import (
	"errors"
	"strings"
)

// Error kinds. Every domain error unwraps to exactly one of these.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAccessDenied = errors.New("access denied")
)

// Error is a domain error with a stable code and a kind.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the kind so errors.Is(err, ErrConflict) works.
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrEventNotFound        = newError(ErrNotFound, "event_not_found", "event not found")
	ErrModalityNotFound     = newError(ErrNotFound, "modality_not_found", "modality not found")
	ErrKitItemNotFound      = newError(ErrNotFound, "kit_item_not_found", "kit item not found")
	ErrRegistrationNotFound = newError(ErrNotFound, "registration_not_found", "registration not found")
	ErrUserNotFound         = newError(ErrNotFound, "user_not_found", "user not found")

	ErrEventNotBookable  = newError(ErrConflict, "event_not_bookable", "event is not open for registration")
	ErrWindowClosed      = newError(ErrConflict, "registration_window_closed", "registration window is closed")
	ErrEventOccurred     = newError(ErrConflict, "event_already_occurred", "event has already taken place")
	ErrModalityInactive  = newError(ErrConflict, "modality_inactive", "modality is not active")
	ErrModalityFull      = newError(ErrConflict, "modality_full", "modality is full")
	ErrInsufficientStock = newError(ErrConflict, "insufficient_stock", "insufficient stock for requested size")
	ErrUnknownSize       = newError(ErrConflict, "size_unavailable", "requested size is not offered")
	ErrDuplicate         = newError(ErrConflict, "duplicate_registration", "user is already registered for this event")
	ErrAlreadyCancelled  = newError(ErrConflict, "already_cancelled", "registration is already cancelled")
	ErrRegistrationPaid  = newError(ErrConflict, "registration_paid", "paid registrations cannot be cancelled")
	ErrNotPending        = newError(ErrConflict, "registration_not_pending", "registration is not pending")
	ErrEmailTaken        = newError(ErrConflict, "email_taken", "a user with this email already exists")
	ErrContention        = newError(ErrConflict, "contention", "concurrent update prevented the operation, retry later")

	ErrTermsNotAccepted = newError(ErrValidation, "terms_not_accepted", "terms and rules must be accepted")
	ErrNoModality       = newError(ErrValidation, "modality_required", "at least one modality must be selected")
	ErrInvalidInput     = newError(ErrValidation, "invalid_input", "invalid input")

	ErrNotOwner = newError(ErrAccessDenied, "not_owner", "only the registrant or their inviter may do this")
)

// Invalid returns a validation error with a specific message.
func Invalid(msg string) *Error {
	return newError(ErrValidation, ErrInvalidInput.Code, msg)
}

// Is matches any *Error with the same code, so Invalid("x") matches ErrInvalidInput.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// MissingAnswersError lists required questions left unanswered.
type MissingAnswersError struct {
	QuestionIDs []string
}

func (e *MissingAnswersError) Error() string {
	return "missing answers to required questions: " + strings.Join(e.QuestionIDs, ", ")
}

func (e *MissingAnswersError) Unwrap() error { return ErrValidation }

// Code returns the stable error code for err, or "" when err is not a domain error.
func Code(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	var ma *MissingAnswersError
	if errors.As(err, &ma) {
		return "missing_required_answers"
	}
	return ""
}
