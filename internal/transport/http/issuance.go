package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmateos/shelfwise/internal/app"
	"github.com/dmateos/shelfwise/internal/domain"
)

// BorrowIssuer is the minimal interface needed to issue a copy.
type BorrowIssuer interface {
	Borrow(ctx context.Context, in app.BorrowInput) (app.BorrowResult, error)
}

type BorrowReturner interface {
	Return(ctx context.Context, borrowID string) (app.ReturnResult, error)
}

type BorrowRenewer interface {
	Renew(ctx context.Context, borrowID string, newDueDate *time.Time) (domain.BorrowRecord, error)
}

type ReservationClaimer interface {
	ClaimReservation(ctx context.Context, reservationID string) (app.BorrowResult, error)
}

type ReservationCanceller interface {
	CancelReservation(ctx context.Context, reservationID string) error
}

type FinePayer interface {
	PayFine(ctx context.Context, fineID string) (domain.Fine, error)
}

// HandleBorrow returns an HTTP handler that issues a copy of a title, or
// queues a reservation when none is available.
func HandleBorrow(svc BorrowIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req borrowRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		var dueDate *time.Time
		if req.DueDate != "" {
			parsed, err := time.Parse(time.RFC3339, req.DueDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidDueDate, "due_date must be RFC 3339")
				return
			}
			dueDate = &parsed
		}

		result, err := svc.Borrow(r.Context(), app.BorrowInput{
			UserID:  req.UserID,
			TitleID: req.TitleID,
			DueDate: dueDate,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if result.Issued {
			writeJSON(w, http.StatusCreated, borrowResult{
				Issued: true,
				Borrow: newBorrowResponse(*result.Borrow),
			})
			return
		}
		writeJSON(w, http.StatusAccepted, borrowResult{
			Issued:      false,
			Reservation: newReservationResponse(*result.Reservation),
		})
	}
}

// HandleReturn closes a borrow and reports any fine accrued by a late return.
func HandleReturn(svc BorrowReturner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Return(r.Context(), chi.URLParam(r, "borrowID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := returnResponse{Borrow: newBorrowResponse(result.Borrow)}
		if result.FineCreated {
			f := newFineResponse(*result.Fine)
			resp.Fine = &f
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleRenew(svc BorrowRenewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req renewRequest
		if r.ContentLength > 0 {
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
		}

		var dueDate *time.Time
		if req.DueDate != "" {
			parsed, err := time.Parse(time.RFC3339, req.DueDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidDueDate, "due_date must be RFC 3339")
				return
			}
			dueDate = &parsed
		}

		borrow, err := svc.Renew(r.Context(), chi.URLParam(r, "borrowID"), dueDate)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newBorrowResponse(borrow))
	}
}

// HandleClaimReservation issues a copy against an active reservation.
func HandleClaimReservation(svc ReservationClaimer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.ClaimReservation(r.Context(), chi.URLParam(r, "reservationID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, borrowResult{
			Issued: true,
			Borrow: newBorrowResponse(*result.Borrow),
		})
	}
}

func HandleCancelReservation(svc ReservationCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CancelReservation(r.Context(), chi.URLParam(r, "reservationID")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandlePayFine(svc FinePayer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fine, err := svc.PayFine(r.Context(), chi.URLParam(r, "fineID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newFineResponse(fine))
	}
}

type borrowRequest struct {
	UserID  string `json:"user_id"`
	TitleID string `json:"title_id"`
	DueDate string `json:"due_date,omitempty"`
}

type renewRequest struct {
	DueDate string `json:"due_date,omitempty"`
}

type borrowResult struct {
	Issued      bool                 `json:"issued"`
	Borrow      *borrowResponse      `json:"borrow,omitempty"`
	Reservation *reservationResponse `json:"reservation,omitempty"`
}

type returnResponse struct {
	Borrow *borrowResponse `json:"borrow"`
	Fine   *fineResponse   `json:"fine,omitempty"`
}

type borrowResponse struct {
	ID         string     `json:"id"`
	TitleID    string     `json:"title_id"`
	UserID     string     `json:"user_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
}

type reservationResponse struct {
	ID              string    `json:"id"`
	TitleID         string    `json:"title_id"`
	UserID          string    `json:"user_id"`
	ReservationDate time.Time `json:"reservation_date"`
	Status          string    `json:"status"`
}

type fineResponse struct {
	ID        string     `json:"id"`
	BorrowID  string     `json:"borrow_id"`
	UserID    string     `json:"user_id"`
	Amount    string     `json:"amount"`
	Status    string     `json:"status"`
	IssueDate time.Time  `json:"issue_date"`
	PaidDate  *time.Time `json:"paid_date,omitempty"`
}

func newBorrowResponse(b domain.BorrowRecord) *borrowResponse {
	return &borrowResponse{
		ID:         b.ID,
		TitleID:    b.TitleID,
		UserID:     b.UserID,
		BorrowDate: b.BorrowDate,
		DueDate:    b.DueDate,
		ReturnDate: b.ReturnDate,
	}
}

func newReservationResponse(res domain.Reservation) *reservationResponse {
	return &reservationResponse{
		ID:              res.ID,
		TitleID:         res.TitleID,
		UserID:          res.UserID,
		ReservationDate: res.ReservationDate,
		Status:          string(res.Status),
	}
}

func newFineResponse(f domain.Fine) fineResponse {
	return fineResponse{
		ID:        f.ID,
		BorrowID:  f.BorrowID,
		UserID:    f.UserID,
		Amount:    f.Amount.StringFixed(2),
		Status:    string(f.Status),
		IssueDate: f.IssueDate,
		PaidDate:  f.PaidDate,
	}
}
