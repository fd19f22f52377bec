package domain

import "time"

// BorrowRecord tracks one issued copy. ReturnDate transitions from nil to
// non-nil exactly once.
type BorrowRecord struct {
	ID         string
	TitleID    string
	UserID     string
	BorrowDate time.Time
	DueDate    time.Time
	ReturnDate *time.Time
}

func (b BorrowRecord) Returned() bool {
	return b.ReturnDate != nil
}
