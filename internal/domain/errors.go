package domain

import "errors"

// Domain errors
var (
	// Sale errors
	ErrSaleNotFound            = errors.New("sale not found")
	ErrSaleAlreadyExists       = errors.New("sale already exists for session and event")
	ErrInvalidStatusTransition = errors.New("invalid sale status transition")
	ErrConfirmationInProgress  = errors.New("a confirmation for this session is already in progress")

	// Session errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionEventMismatch = errors.New("session is bound to a different event")
	ErrEmptySeatSelection   = errors.New("session holds no seats")
	ErrNoAuthorityLocks     = errors.New("session holds no authority-confirmed seat locks")

	// Event errors
	ErrEventNotFound = errors.New("event not found")

	// Validation errors
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidEventID   = errors.New("invalid event id")
	ErrInvalidSeatID    = errors.New("invalid seat id")
	ErrNoSeatsRequested = errors.New("at least one seat is required")
	ErrInvalidQuantity  = errors.New("quantity cannot be negative")
	ErrInvalidPrice     = errors.New("price cannot be negative")
	ErrInvalidEmail     = errors.New("invalid buyer email")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSaleNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSessionID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidSeatID) ||
		errors.Is(err, ErrNoSeatsRequested) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrEmptySeatSelection) ||
		errors.Is(err, ErrNoAuthorityLocks)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSaleAlreadyExists) ||
		errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrConfirmationInProgress) ||
		errors.Is(err, ErrSessionEventMismatch)
}
