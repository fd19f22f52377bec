package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type FineStatus string

const (
	FineStatusPending FineStatus = "pending"
	FineStatusPaid    FineStatus = "paid"
)

// Fine is the monetary penalty for a late return, 1:1 with a borrow record.
type Fine struct {
	ID        string
	BorrowID  string
	UserID    string
	Amount    decimal.Decimal
	Status    FineStatus
	IssueDate time.Time
	PaidDate  *time.Time
}
