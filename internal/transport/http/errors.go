package http

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/dmateos/shelfwise/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidID            = "invalid_id"
	codeInvalidDueDate       = "invalid_due_date"
	codeInvalidCopies        = "invalid_copies"
	codeMissingIdentifiers   = "missing_identifiers"
	codeReasonRequired       = "reason_required"
	codeTitleNotFound        = "title_not_found"
	codeBorrowNotFound       = "borrow_not_found"
	codeReservationNotFound  = "reservation_not_found"
	codeFineNotFound         = "fine_not_found"
	codeEntryNotFound        = "entry_not_found"
	codeAlreadyReturned      = "already_returned"
	codeDuplicateReservation = "duplicate_reservation"
	codeReservationNotActive = "reservation_not_active"
	codeNoCopiesAvailable    = "no_copies_available"
	codeFineAlreadyPaid      = "fine_already_paid"
	codeInvalidState         = "invalid_state"
	codeMetadataNotFound     = "metadata_not_found"
	codeInternalError        = "internal_error"
	codeRateLimited          = "rate_limited"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var domainErrorCodes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{domain.ErrInvalidDueDate, http.StatusBadRequest, codeInvalidDueDate},
	{domain.ErrInvalidCopies, http.StatusBadRequest, codeInvalidCopies},
	{domain.ErrMissingIdentifiers, http.StatusBadRequest, codeMissingIdentifiers},
	{domain.ErrReasonRequired, http.StatusBadRequest, codeReasonRequired},
	{domain.ErrTitleNotFound, http.StatusNotFound, codeTitleNotFound},
	{domain.ErrBorrowNotFound, http.StatusNotFound, codeBorrowNotFound},
	{domain.ErrReservationNotFound, http.StatusNotFound, codeReservationNotFound},
	{domain.ErrFineNotFound, http.StatusNotFound, codeFineNotFound},
	{domain.ErrEntryNotFound, http.StatusNotFound, codeEntryNotFound},
	{domain.ErrMetadataNotFound, http.StatusNotFound, codeMetadataNotFound},
	{domain.ErrAlreadyReturned, http.StatusConflict, codeAlreadyReturned},
	{domain.ErrDuplicateReservation, http.StatusConflict, codeDuplicateReservation},
	{domain.ErrReservationNotActive, http.StatusConflict, codeReservationNotActive},
	{domain.ErrNoCopiesAvailable, http.StatusConflict, codeNoCopiesAvailable},
	{domain.ErrFineAlreadyPaid, http.StatusConflict, codeFineAlreadyPaid},
	{domain.ErrInvalidState, http.StatusConflict, codeInvalidState},
}

// writeDomainError maps a service error to its HTTP status and stable code.
func writeDomainError(w http.ResponseWriter, err error) {
	for _, mapped := range domainErrorCodes {
		if errors.Is(err, mapped.err) {
			writeError(w, mapped.status, mapped.code, err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
