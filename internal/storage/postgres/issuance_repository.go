package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmateos/shelfwise/internal/domain"
)

type IssuanceRepository struct {
	pool *pgxpool.Pool
}

func NewIssuanceRepository(pool *pgxpool.Pool) *IssuanceRepository {
	return &IssuanceRepository{pool: pool}
}

func (r *IssuanceRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *IssuanceRepository) GetTitleForUpdate(ctx context.Context, titleID string) (domain.Title, error) {
	const query = `
SELECT id, COALESCE(isbn_10, ''), COALESCE(isbn_13, ''), title, total_copies, available_copies, status, created_at
FROM titles
WHERE id = $1
FOR UPDATE`

	var t domain.Title
	var status string
	err := r.queryRow(ctx, query, titleID).
		Scan(&t.ID, &t.ISBN10, &t.ISBN13, &t.Title, &t.TotalCopies, &t.AvailableCopies, &status, &t.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Title{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Title{}, domain.ErrTitleNotFound
		}
		return domain.Title{}, fmt.Errorf("get title: %w", err)
	}
	t.Status = domain.TitleStatus(status)
	return t, nil
}

func (r *IssuanceRepository) UpdateTitleCounts(ctx context.Context, titleID string, total, available int, status domain.TitleStatus) error {
	const stmt = `
UPDATE titles
SET total_copies = $2, available_copies = $3, status = $4, updated_at = NOW()
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, titleID, total, available, status)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("update title counts: copies out of range: %w", err)
		}
		return fmt.Errorf("update title counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTitleNotFound
	}
	return nil
}

func (r *IssuanceRepository) HasActiveReservation(ctx context.Context, titleID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reservations WHERE title_id = $1 AND status = 'active')`

	var exists bool
	if err := r.queryRow(ctx, query, titleID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active reservation: %w", err)
	}
	return exists, nil
}

func (r *IssuanceRepository) CreateBorrow(ctx context.Context, borrow domain.BorrowRecord) error {
	const stmt = `
INSERT INTO borrow_records (id, title_id, user_id, borrow_date, due_date)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt, borrow.ID, borrow.TitleID, borrow.UserID, borrow.BorrowDate, borrow.DueDate)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create borrow: %w", err)
	}
	return nil
}

func (r *IssuanceRepository) GetBorrowForUpdate(ctx context.Context, borrowID string) (domain.BorrowRecord, error) {
	const query = `
SELECT id, title_id, user_id, borrow_date, due_date, return_date
FROM borrow_records
WHERE id = $1
FOR UPDATE`

	var b domain.BorrowRecord
	err := r.queryRow(ctx, query, borrowID).
		Scan(&b.ID, &b.TitleID, &b.UserID, &b.BorrowDate, &b.DueDate, &b.ReturnDate)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.BorrowRecord{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.BorrowRecord{}, domain.ErrBorrowNotFound
		}
		return domain.BorrowRecord{}, fmt.Errorf("get borrow: %w", err)
	}
	return b, nil
}

func (r *IssuanceRepository) SetBorrowReturned(ctx context.Context, borrowID string, returnedAt time.Time) error {
	const stmt = `UPDATE borrow_records SET return_date = $2 WHERE id = $1 AND return_date IS NULL`

	tag, err := r.exec(ctx, stmt, borrowID, returnedAt)
	if err != nil {
		return fmt.Errorf("set borrow returned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyReturned
	}
	return nil
}

func (r *IssuanceRepository) SetBorrowDueDate(ctx context.Context, borrowID string, dueDate time.Time) error {
	const stmt = `UPDATE borrow_records SET due_date = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, borrowID, dueDate)
	if err != nil {
		return fmt.Errorf("set borrow due date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBorrowNotFound
	}
	return nil
}

func (r *IssuanceRepository) CreateReservation(ctx context.Context, reservation domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, title_id, user_id, reservation_date, status)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt,
		reservation.ID,
		reservation.TitleID,
		reservation.UserID,
		reservation.ReservationDate,
		reservation.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReservation
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *IssuanceRepository) GetReservationForUpdate(ctx context.Context, reservationID string) (domain.Reservation, error) {
	const query = `
SELECT id, title_id, user_id, reservation_date, status
FROM reservations
WHERE id = $1
FOR UPDATE`

	var res domain.Reservation
	var status string
	err := r.queryRow(ctx, query, reservationID).
		Scan(&res.ID, &res.TitleID, &res.UserID, &res.ReservationDate, &status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	res.Status = domain.ReservationStatus(status)
	return res, nil
}

func (r *IssuanceRepository) SetReservationStatus(ctx context.Context, reservationID string, status domain.ReservationStatus) error {
	const stmt = `UPDATE reservations SET status = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, reservationID, status)
	if err != nil {
		return fmt.Errorf("set reservation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *IssuanceRepository) FindFineByBorrowID(ctx context.Context, borrowID string) (*domain.Fine, error) {
	const query = `
SELECT id, borrow_id, user_id, amount, status, issue_date, paid_date
FROM fines
WHERE borrow_id = $1`

	var f domain.Fine
	var status string
	err := r.queryRow(ctx, query, borrowID).
		Scan(&f.ID, &f.BorrowID, &f.UserID, &f.Amount, &status, &f.IssueDate, &f.PaidDate)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find fine by borrow: %w", err)
	}
	f.Status = domain.FineStatus(status)
	return &f, nil
}

func (r *IssuanceRepository) CreateFine(ctx context.Context, fine domain.Fine) error {
	const stmt = `
INSERT INTO fines (id, borrow_id, user_id, amount, status, issue_date)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt, fine.ID, fine.BorrowID, fine.UserID, fine.Amount, fine.Status, fine.IssueDate)
	if err != nil {
		if isUniqueViolation(err) {
			// One fine per borrow record.
			return fmt.Errorf("create fine: duplicate for borrow %s: %w", fine.BorrowID, err)
		}
		return fmt.Errorf("create fine: %w", err)
	}
	return nil
}

func (r *IssuanceRepository) GetFineForUpdate(ctx context.Context, fineID string) (domain.Fine, error) {
	const query = `
SELECT id, borrow_id, user_id, amount, status, issue_date, paid_date
FROM fines
WHERE id = $1
FOR UPDATE`

	var f domain.Fine
	var status string
	err := r.queryRow(ctx, query, fineID).
		Scan(&f.ID, &f.BorrowID, &f.UserID, &f.Amount, &status, &f.IssueDate, &f.PaidDate)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Fine{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Fine{}, domain.ErrFineNotFound
		}
		return domain.Fine{}, fmt.Errorf("get fine: %w", err)
	}
	f.Status = domain.FineStatus(status)
	return f, nil
}

func (r *IssuanceRepository) SetFinePaid(ctx context.Context, fineID string, paidAt time.Time) error {
	const stmt = `UPDATE fines SET status = 'paid', paid_date = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, fineID, paidAt)
	if err != nil {
		return fmt.Errorf("set fine paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFineNotFound
	}
	return nil
}

func (r *IssuanceRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *IssuanceRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
