package domain

import "time"

type EntryStatus string

const (
	EntryStatusPending              EntryStatus = "pending"
	EntryStatusAwaitingConfirmation EntryStatus = "awaiting_confirmation"
	EntryStatusFailed               EntryStatus = "failed"
	EntryStatusApproved             EntryStatus = "approved"
	EntryStatusRejected             EntryStatus = "rejected"
	EntryStatusCompleted            EntryStatus = "completed"
)

// PendingEntry is an in-review catalogue record awaiting metadata
// confirmation before becoming (or adding copies to) a Title.
type PendingEntry struct {
	ID              string
	ISBN            string
	ISBN10          string
	ISBN13          string
	Title           string
	Authors         []string
	RequestedCopies int
	RawMetadata     *Metadata
	OutputMetadata  *Metadata
	Status          EntryStatus
	TitleID         *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Editable reports whether reviewer edits and confirmation are still
// accepted for the entry.
func (e PendingEntry) Editable() bool {
	return e.Status == EntryStatusAwaitingConfirmation || e.Status == EntryStatusFailed
}
