package domain

import "errors"

var (
	// Validation errors: rejected before any store write.
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidDueDate     = errors.New("due date must be in the future")
	ErrInvalidCopies      = errors.New("requested copies must be at least 1")
	ErrReasonRequired     = errors.New("rejection reason required")
	ErrMissingIdentifiers = errors.New("isbn or title required")

	// State conflicts: operation invalid for the entity's current status.
	ErrDuplicateReservation = errors.New("active reservation already exists")
	ErrAlreadyReturned      = errors.New("borrow already returned")
	ErrReservationNotActive = errors.New("reservation is not active")
	ErrNoCopiesAvailable    = errors.New("no copies available")
	ErrFineAlreadyPaid      = errors.New("fine already paid")
	ErrInvalidState         = errors.New("operation not allowed in current status")

	ErrTitleNotFound       = errors.New("title not found")
	ErrBorrowNotFound      = errors.New("borrow record not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrFineNotFound        = errors.New("fine not found")
	ErrEntryNotFound       = errors.New("pending catalogue entry not found")

	ErrMetadataNotFound = errors.New("no metadata found")
)
