package app

import (
	"time"

	"github.com/shopspring/decimal"
)

// FineAmount computes the overdue fine for a return. Lateness is measured in
// whole calendar days between the due date and the return date, floored at
// one day for any positive overdue amount: a return one hour late still owes
// a one-day fine. Callers must only invoke it when returnedAt > dueDate.
func FineAmount(dueDate, returnedAt time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	days := calendarDaysBetween(dueDate, returnedAt)
	if days < 1 {
		days = 1
	}
	return dailyRate.Mul(decimal.NewFromInt(int64(days)))
}

func calendarDaysBetween(from, to time.Time) int {
	from = from.UTC()
	to = to.UTC()
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
