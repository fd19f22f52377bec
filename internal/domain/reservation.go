package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation is a queued claim on a future available copy. At most one
// active reservation may exist per (user, title) pair.
type Reservation struct {
	ID              string
	TitleID         string
	UserID          string
	ReservationDate time.Time
	Status          ReservationStatus
}
