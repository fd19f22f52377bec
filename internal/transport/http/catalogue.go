package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmateos/shelfwise/internal/app"
	"github.com/dmateos/shelfwise/internal/domain"
)

// EntryCreator is the minimal interface needed to submit a catalogue entry.
type EntryCreator interface {
	AddEntry(ctx context.Context, in app.AddEntryInput) (domain.PendingEntry, error)
}

type MetadataPreviewer interface {
	PreviewMetadata(ctx context.Context, lookup domain.Lookup) (*domain.Metadata, error)
}

type EntryReader interface {
	GetEntry(ctx context.Context, entryID string) (domain.PendingEntry, error)
	ListPending(ctx context.Context) ([]domain.PendingEntry, error)
}

type EntryEditor interface {
	Edit(ctx context.Context, entryID string, patch app.EditInput) (domain.PendingEntry, error)
}

type EntryConfirmer interface {
	Confirm(ctx context.Context, entryID string, approved bool, reason string) (domain.PendingEntry, error)
}

type EntryInserter interface {
	Insert(ctx context.Context, entryID string) (app.InsertResult, error)
}

type AuditReader interface {
	AuditTrail(ctx context.Context, entryID string) ([]domain.AuditEntry, error)
}

// HandleAddEntry submits a new catalogue entry and triggers the metadata
// fetch before responding.
func HandleAddEntry(svc EntryCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addEntryRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		entry, err := svc.AddEntry(r.Context(), app.AddEntryInput{
			ISBN:            req.ISBN,
			Title:           req.Title,
			Authors:         req.Authors,
			RequestedCopies: req.RequestedCopies,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newEntryResponse(entry))
	}
}

// HandlePreviewMetadata fetches provider metadata without creating an entry.
func HandlePreviewMetadata(svc MetadataPreviewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req previewRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		meta, err := svc.PreviewMetadata(r.Context(), domain.Lookup{
			ISBN:    req.ISBN,
			Title:   req.Title,
			Authors: req.Authors,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meta)
	}
}

func HandleListPending(svc EntryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.ListPending(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]entryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, newEntryResponse(e))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleGetEntry(svc EntryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := svc.GetEntry(r.Context(), chi.URLParam(r, "entryID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newEntryResponse(entry))
	}
}

// HandleEditEntry applies reviewer corrections to a pending entry. Absent
// fields are left untouched.
func HandleEditEntry(svc EntryEditor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req editEntryRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		entry, err := svc.Edit(r.Context(), chi.URLParam(r, "entryID"), app.EditInput{
			Title:           req.Title,
			Authors:         req.Authors,
			ISBN:            req.ISBN,
			ISBN10:          req.ISBN10,
			ISBN13:          req.ISBN13,
			Publisher:       req.Publisher,
			PublicationYear: req.PublicationYear,
			RequestedCopies: req.RequestedCopies,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newEntryResponse(entry))
	}
}

// HandleConfirmEntry approves or rejects a pending entry. Rejection requires
// a reason.
func HandleConfirmEntry(svc EntryConfirmer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmEntryRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Approved == nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "approved is required")
			return
		}

		entry, err := svc.Confirm(r.Context(), chi.URLParam(r, "entryID"), *req.Approved, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newEntryResponse(entry))
	}
}

// HandleInsertEntry applies an approved entry to the catalogue. Repeating the
// call for a completed entry returns the recorded result.
func HandleInsertEntry(svc EntryInserter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Insert(r.Context(), chi.URLParam(r, "entryID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, insertResponse{
			EntryID: result.EntryID,
			TitleID: result.TitleID,
			Created: result.Created,
			Status:  string(result.Status),
		})
	}
}

func HandleAuditTrail(svc AuditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trail, err := svc.AuditTrail(r.Context(), chi.URLParam(r, "entryID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]auditResponse, 0, len(trail))
		for _, a := range trail {
			resp = append(resp, auditResponse{
				ID:        a.ID,
				EntryID:   a.EntryID,
				Action:    a.Action,
				Source:    a.Source,
				Details:   a.Details,
				Timestamp: a.Timestamp,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type addEntryRequest struct {
	ISBN            string   `json:"isbn,omitempty"`
	Title           string   `json:"title,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	RequestedCopies int      `json:"requested_copies"`
}

type previewRequest struct {
	ISBN    string   `json:"isbn,omitempty"`
	Title   string   `json:"title,omitempty"`
	Authors []string `json:"authors,omitempty"`
}

type editEntryRequest struct {
	Title           *string  `json:"title,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	ISBN            *string  `json:"isbn,omitempty"`
	ISBN10          *string  `json:"isbn_10,omitempty"`
	ISBN13          *string  `json:"isbn_13,omitempty"`
	Publisher       *string  `json:"publisher,omitempty"`
	PublicationYear *string  `json:"publication_year,omitempty"`
	RequestedCopies *int     `json:"requested_copies,omitempty"`
}

type confirmEntryRequest struct {
	Approved *bool  `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

type insertResponse struct {
	EntryID string `json:"entry_id"`
	TitleID string `json:"title_id,omitempty"`
	Created bool   `json:"created"`
	Status  string `json:"status"`
}

type entryResponse struct {
	ID              string           `json:"id"`
	ISBN            string           `json:"isbn,omitempty"`
	ISBN10          string           `json:"isbn_10,omitempty"`
	ISBN13          string           `json:"isbn_13,omitempty"`
	Title           string           `json:"title,omitempty"`
	Authors         []string         `json:"authors,omitempty"`
	RequestedCopies int              `json:"requested_copies"`
	RawMetadata     *domain.Metadata `json:"raw_metadata,omitempty"`
	OutputMetadata  *domain.Metadata `json:"output_metadata,omitempty"`
	Status          string           `json:"status"`
	TitleID         *string          `json:"title_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type auditResponse struct {
	ID        int64     `json:"id"`
	EntryID   string    `json:"entry_id"`
	Action    string    `json:"action"`
	Source    string    `json:"source"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newEntryResponse(e domain.PendingEntry) entryResponse {
	return entryResponse{
		ID:              e.ID,
		ISBN:            e.ISBN,
		ISBN10:          e.ISBN10,
		ISBN13:          e.ISBN13,
		Title:           e.Title,
		Authors:         e.Authors,
		RequestedCopies: e.RequestedCopies,
		RawMetadata:     e.RawMetadata,
		OutputMetadata:  e.OutputMetadata,
		Status:          string(e.Status),
		TitleID:         e.TitleID,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}
