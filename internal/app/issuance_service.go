package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dmateos/shelfwise/internal/clock"
	"github.com/dmateos/shelfwise/internal/domain"
)

type IssuanceRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTitleForUpdate(ctx context.Context, titleID string) (domain.Title, error)
	UpdateTitleCounts(ctx context.Context, titleID string, total, available int, status domain.TitleStatus) error
	HasActiveReservation(ctx context.Context, titleID string) (bool, error)
	CreateBorrow(ctx context.Context, borrow domain.BorrowRecord) error
	GetBorrowForUpdate(ctx context.Context, borrowID string) (domain.BorrowRecord, error)
	SetBorrowReturned(ctx context.Context, borrowID string, returnedAt time.Time) error
	SetBorrowDueDate(ctx context.Context, borrowID string, dueDate time.Time) error
	CreateReservation(ctx context.Context, reservation domain.Reservation) error
	GetReservationForUpdate(ctx context.Context, reservationID string) (domain.Reservation, error)
	SetReservationStatus(ctx context.Context, reservationID string, status domain.ReservationStatus) error
	FindFineByBorrowID(ctx context.Context, borrowID string) (*domain.Fine, error)
	CreateFine(ctx context.Context, fine domain.Fine) error
	GetFineForUpdate(ctx context.Context, fineID string) (domain.Fine, error)
	SetFinePaid(ctx context.Context, fineID string, paidAt time.Time) error
}

type IssuanceService struct {
	repo         IssuanceRepository
	clock        clock.Clock
	log          *logrus.Logger
	borrowPeriod time.Duration
	dailyRate    decimal.Decimal
}

const defaultBorrowPeriod = 14 * 24 * time.Hour

var defaultDailyRate = decimal.NewFromInt(5)

func NewIssuanceService(repo IssuanceRepository, clk clock.Clock, log *logrus.Logger, opts ...IssuanceServiceOption) *IssuanceService {
	svc := &IssuanceService{
		repo:         repo,
		clock:        clk,
		log:          log,
		borrowPeriod: defaultBorrowPeriod,
		dailyRate:    defaultDailyRate,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type IssuanceServiceOption func(*IssuanceService)

// WithBorrowPeriod overrides the default loan period applied when the caller
// supplies no due date.
func WithBorrowPeriod(d time.Duration) IssuanceServiceOption {
	return func(s *IssuanceService) {
		if d > 0 {
			s.borrowPeriod = d
		}
	}
}

// WithDailyFineRate overrides the per-day overdue fine rate.
func WithDailyFineRate(rate decimal.Decimal) IssuanceServiceOption {
	return func(s *IssuanceService) {
		if rate.IsPositive() {
			s.dailyRate = rate
		}
	}
}

type BorrowInput struct {
	UserID  string
	TitleID string
	DueDate *time.Time
}

// BorrowResult carries either the issued borrow or the queued reservation.
type BorrowResult struct {
	Issued      bool
	Borrow      *domain.BorrowRecord
	Reservation *domain.Reservation
}

// Borrow issues one copy of a title, or queues a reservation when no copy is
// available. The availability read, counter decrement, status derivation and
// record insert happen inside one transaction holding the title row lock, so
// no concurrent Borrow or Return observes an intermediate state.
func (s *IssuanceService) Borrow(ctx context.Context, in BorrowInput) (BorrowResult, error) {
	if in.UserID == "" || in.TitleID == "" {
		return BorrowResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	dueDate := now.Add(s.borrowPeriod)
	if in.DueDate != nil {
		dueDate = in.DueDate.UTC()
	}
	if !dueDate.After(now) {
		return BorrowResult{}, domain.ErrInvalidDueDate
	}

	var result BorrowResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		title, err := s.repo.GetTitleForUpdate(txCtx, in.TitleID)
		if err != nil {
			return err
		}

		if title.AvailableCopies > 0 {
			borrow := domain.BorrowRecord{
				ID:         uuid.NewString(),
				TitleID:    in.TitleID,
				UserID:     in.UserID,
				BorrowDate: now,
				DueDate:    dueDate,
			}
			if err := s.repo.CreateBorrow(txCtx, borrow); err != nil {
				return err
			}

			available := title.AvailableCopies - 1
			hasActive, err := s.repo.HasActiveReservation(txCtx, in.TitleID)
			if err != nil {
				return err
			}
			status := domain.DeriveTitleStatus(available, hasActive)
			if err := s.repo.UpdateTitleCounts(txCtx, in.TitleID, title.TotalCopies, available, status); err != nil {
				return err
			}

			result = BorrowResult{Issued: true, Borrow: &borrow}
			return nil
		}

		reservation := domain.Reservation{
			ID:              uuid.NewString(),
			TitleID:         in.TitleID,
			UserID:          in.UserID,
			ReservationDate: now,
			Status:          domain.ReservationStatusActive,
		}
		if err := s.repo.CreateReservation(txCtx, reservation); err != nil {
			return err
		}

		status := domain.DeriveTitleStatus(title.AvailableCopies, true)
		if err := s.repo.UpdateTitleCounts(txCtx, in.TitleID, title.TotalCopies, title.AvailableCopies, status); err != nil {
			return err
		}

		result = BorrowResult{Issued: false, Reservation: &reservation}
		return nil
	})
	if err != nil {
		return BorrowResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"title_id": in.TitleID,
		"user_id":  in.UserID,
		"issued":   result.Issued,
	}).Info("borrow processed")

	return result, nil
}

type ReturnResult struct {
	Borrow      domain.BorrowRecord
	FineCreated bool
	Fine        *domain.Fine
}

// Return closes a borrow, frees the copy, and accrues an overdue fine when
// the return lands past the due date. Fine creation is a side effect of the
// same transaction as the availability increment, never a background job.
func (s *IssuanceService) Return(ctx context.Context, borrowID string) (ReturnResult, error) {
	if borrowID == "" {
		return ReturnResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result ReturnResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		borrow, err := s.repo.GetBorrowForUpdate(txCtx, borrowID)
		if err != nil {
			return err
		}
		if borrow.Returned() {
			return domain.ErrAlreadyReturned
		}

		title, err := s.repo.GetTitleForUpdate(txCtx, borrow.TitleID)
		if err != nil {
			return err
		}
		if title.AvailableCopies >= title.TotalCopies {
			return fmt.Errorf("title %s: available copies would exceed total", title.ID)
		}

		if err := s.repo.SetBorrowReturned(txCtx, borrowID, now); err != nil {
			return err
		}
		borrow.ReturnDate = &now

		available := title.AvailableCopies + 1
		hasActive, err := s.repo.HasActiveReservation(txCtx, borrow.TitleID)
		if err != nil {
			return err
		}
		status := domain.DeriveTitleStatus(available, hasActive)
		if err := s.repo.UpdateTitleCounts(txCtx, borrow.TitleID, title.TotalCopies, available, status); err != nil {
			return err
		}

		result = ReturnResult{Borrow: borrow}

		if now.After(borrow.DueDate) {
			existing, err := s.repo.FindFineByBorrowID(txCtx, borrowID)
			if err != nil {
				return err
			}
			if existing == nil {
				fine := domain.Fine{
					ID:        uuid.NewString(),
					BorrowID:  borrowID,
					UserID:    borrow.UserID,
					Amount:    FineAmount(borrow.DueDate, now, s.dailyRate),
					Status:    domain.FineStatusPending,
					IssueDate: now,
				}
				if err := s.repo.CreateFine(txCtx, fine); err != nil {
					return err
				}
				result.FineCreated = true
				result.Fine = &fine
			}
		}
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"borrow_id":    borrowID,
		"fine_created": result.FineCreated,
	}).Info("return processed")

	return result, nil
}

// Renew extends the due date of an open borrow. Defaults to one borrow
// period from now when no explicit date is given.
func (s *IssuanceService) Renew(ctx context.Context, borrowID string, newDueDate *time.Time) (domain.BorrowRecord, error) {
	if borrowID == "" {
		return domain.BorrowRecord{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	dueDate := now.Add(s.borrowPeriod)
	if newDueDate != nil {
		dueDate = newDueDate.UTC()
	}
	if !dueDate.After(now) {
		return domain.BorrowRecord{}, domain.ErrInvalidDueDate
	}

	var renewed domain.BorrowRecord
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		borrow, err := s.repo.GetBorrowForUpdate(txCtx, borrowID)
		if err != nil {
			return err
		}
		if borrow.Returned() {
			return domain.ErrAlreadyReturned
		}
		if err := s.repo.SetBorrowDueDate(txCtx, borrowID, dueDate); err != nil {
			return err
		}
		borrow.DueDate = dueDate
		renewed = borrow
		return nil
	})
	if err != nil {
		return domain.BorrowRecord{}, err
	}
	return renewed, nil
}

// ClaimReservation converts an active reservation into a borrow. The
// reservation row and the title row are locked in the same transaction, so a
// claim never races a Return for the freed copy.
func (s *IssuanceService) ClaimReservation(ctx context.Context, reservationID string) (BorrowResult, error) {
	if reservationID == "" {
		return BorrowResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result BorrowResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != domain.ReservationStatusActive {
			return domain.ErrReservationNotActive
		}

		title, err := s.repo.GetTitleForUpdate(txCtx, reservation.TitleID)
		if err != nil {
			return err
		}
		if title.AvailableCopies == 0 {
			return domain.ErrNoCopiesAvailable
		}

		if err := s.repo.SetReservationStatus(txCtx, reservationID, domain.ReservationStatusFulfilled); err != nil {
			return err
		}

		borrow := domain.BorrowRecord{
			ID:         uuid.NewString(),
			TitleID:    reservation.TitleID,
			UserID:     reservation.UserID,
			BorrowDate: now,
			DueDate:    now.Add(s.borrowPeriod),
		}
		if err := s.repo.CreateBorrow(txCtx, borrow); err != nil {
			return err
		}

		available := title.AvailableCopies - 1
		hasActive, err := s.repo.HasActiveReservation(txCtx, reservation.TitleID)
		if err != nil {
			return err
		}
		status := domain.DeriveTitleStatus(available, hasActive)
		if err := s.repo.UpdateTitleCounts(txCtx, reservation.TitleID, title.TotalCopies, available, status); err != nil {
			return err
		}

		result = BorrowResult{Issued: true, Borrow: &borrow}
		return nil
	})
	if err != nil {
		return BorrowResult{}, err
	}
	return result, nil
}

// CancelReservation withdraws an active reservation and re-derives the title
// status, since a cancelled claim can flip a reserved title to borrowed.
func (s *IssuanceService) CancelReservation(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return domain.ErrInvalidID
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != domain.ReservationStatusActive {
			return domain.ErrReservationNotActive
		}

		title, err := s.repo.GetTitleForUpdate(txCtx, reservation.TitleID)
		if err != nil {
			return err
		}

		if err := s.repo.SetReservationStatus(txCtx, reservationID, domain.ReservationStatusCancelled); err != nil {
			return err
		}

		hasActive, err := s.repo.HasActiveReservation(txCtx, reservation.TitleID)
		if err != nil {
			return err
		}
		status := domain.DeriveTitleStatus(title.AvailableCopies, hasActive)
		return s.repo.UpdateTitleCounts(txCtx, reservation.TitleID, title.TotalCopies, title.AvailableCopies, status)
	})
}

// PayFine marks a pending fine as paid.
func (s *IssuanceService) PayFine(ctx context.Context, fineID string) (domain.Fine, error) {
	if fineID == "" {
		return domain.Fine{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var paid domain.Fine

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		fine, err := s.repo.GetFineForUpdate(txCtx, fineID)
		if err != nil {
			return err
		}
		if fine.Status == domain.FineStatusPaid {
			return domain.ErrFineAlreadyPaid
		}
		if err := s.repo.SetFinePaid(txCtx, fineID, now); err != nil {
			return err
		}
		fine.Status = domain.FineStatusPaid
		fine.PaidDate = &now
		paid = fine
		return nil
	})
	if err != nil {
		return domain.Fine{}, err
	}
	return paid, nil
}
