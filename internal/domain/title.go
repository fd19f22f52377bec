package domain

import "time"

type TitleStatus string

const (
	TitleStatusAvailable TitleStatus = "available"
	TitleStatusBorrowed  TitleStatus = "borrowed"
	TitleStatusReserved  TitleStatus = "reserved"
)

// Title is a catalogued book with copy-count inventory. The status column is
// derived, never set by callers: re-derived inside every transaction that
// mutates the counters or the active reservation set.
type Title struct {
	ID              string
	ISBN10          string
	ISBN13          string
	Title           string
	PublisherID     *string
	PublicationYear string
	Edition         string
	CoverURL        string
	TotalCopies     int
	AvailableCopies int
	Status          TitleStatus
	CreatedAt       time.Time
}

// DeriveTitleStatus computes the stored status from the availability counter
// and the presence of an active reservation.
func DeriveTitleStatus(availableCopies int, hasActiveReservation bool) TitleStatus {
	if availableCopies > 0 {
		return TitleStatusAvailable
	}
	if hasActiveReservation {
		return TitleStatusReserved
	}
	return TitleStatusBorrowed
}
