package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/dmateos/shelfwise/internal/clock"
	"github.com/dmateos/shelfwise/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MetadataProvider fetches book metadata from external sources. Fetches
// always run before any lock-holding transaction.
type MetadataProvider interface {
	Fetch(ctx context.Context, lookup domain.Lookup) (*domain.Metadata, error)
}

type CatalogueRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateEntry(ctx context.Context, entry domain.PendingEntry) error
	GetEntry(ctx context.Context, entryID string) (domain.PendingEntry, error)
	GetEntryForUpdate(ctx context.Context, entryID string) (domain.PendingEntry, error)
	UpdateEntry(ctx context.Context, entry domain.PendingEntry) error
	ListPending(ctx context.Context) ([]domain.PendingEntry, error)
	AppendAudit(ctx context.Context, audit domain.AuditEntry) error
	ListAuditByEntry(ctx context.Context, entryID string) ([]domain.AuditEntry, error)
	FindTitleForUpdateByISBN(ctx context.Context, isbn13, isbn10 string) (*domain.Title, error)
	UpdateTitleCounts(ctx context.Context, titleID string, total, available int, status domain.TitleStatus) error
	CreateTitle(ctx context.Context, title domain.Title) error
	LinkTitleAuthor(ctx context.Context, titleID, authorID string) error
	FindOrCreatePublisher(ctx context.Context, name string) (string, error)
	FindOrCreateAuthor(ctx context.Context, name string) (string, error)
}

type CatalogueService struct {
	repo     CatalogueRepository
	provider MetadataProvider
	clock    clock.Clock
	log      *logrus.Logger
}

func NewCatalogueService(repo CatalogueRepository, provider MetadataProvider, clk clock.Clock, log *logrus.Logger) *CatalogueService {
	return &CatalogueService{
		repo:     repo,
		provider: provider,
		clock:    clk,
		log:      log,
	}
}

type AddEntryInput struct {
	ISBN            string
	Title           string
	Authors         []string
	RequestedCopies int
}

// AddEntry creates a pending catalogue entry, fetches metadata from the
// external provider, and transitions the entry to awaiting_confirmation or
// failed. The fetch happens between the two transactions so it never holds a
// row lock.
func (s *CatalogueService) AddEntry(ctx context.Context, in AddEntryInput) (domain.PendingEntry, error) {
	if in.ISBN == "" && strings.TrimSpace(in.Title) == "" {
		return domain.PendingEntry{}, domain.ErrMissingIdentifiers
	}
	if in.RequestedCopies < 1 {
		return domain.PendingEntry{}, domain.ErrInvalidCopies
	}

	now := s.clock.Now()
	isbn10, isbn13 := domain.ClassifyISBN(in.ISBN)

	entry := domain.PendingEntry{
		ID:              uuid.NewString(),
		ISBN:            in.ISBN,
		ISBN10:          isbn10,
		ISBN13:          isbn13,
		Title:           strings.TrimSpace(in.Title),
		Authors:         in.Authors,
		RequestedCopies: in.RequestedCopies,
		Status:          domain.EntryStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateEntry(txCtx, entry); err != nil {
			return err
		}
		return s.appendAudit(txCtx, entry.ID, domain.AuditInputReceived, domain.SourceFrontend,
			fmt.Sprintf("book added: %s", firstNonEmpty(entry.Title, entry.ISBN)))
	})
	if err != nil {
		return domain.PendingEntry{}, err
	}

	fetched, fetchErr := s.provider.Fetch(ctx, domain.Lookup{
		ISBN:    in.ISBN,
		Title:   entry.Title,
		Authors: in.Authors,
	})

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetEntryForUpdate(txCtx, entry.ID)
		if err != nil {
			return err
		}

		current.UpdatedAt = s.clock.Now()
		if fetchErr == nil && fetched != nil {
			current.RawMetadata = fetched
			current.Status = domain.EntryStatusAwaitingConfirmation
			if err := s.repo.UpdateEntry(txCtx, current); err != nil {
				return err
			}
			entry = current
			return s.appendAudit(txCtx, entry.ID, domain.AuditMetadataExtracted, domain.SourceMetadataPipeline,
				fmt.Sprintf("source: %s", fetched.Source))
		}

		current.Status = domain.EntryStatusFailed
		if err := s.repo.UpdateEntry(txCtx, current); err != nil {
			return err
		}
		entry = current

		detail := "no metadata found from external providers"
		if fetchErr != nil && !errors.Is(fetchErr, domain.ErrMetadataNotFound) {
			detail = fmt.Sprintf("error: %v", fetchErr)
		}
		return s.appendAudit(txCtx, entry.ID, domain.AuditMetadataFailed, domain.SourceMetadataPipeline, detail)
	})
	if err != nil {
		return domain.PendingEntry{}, err
	}

	s.log.WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"status":   entry.Status,
	}).Info("catalogue entry added")

	return entry, nil
}

// PreviewMetadata fetches and merges provider metadata without creating any
// pending entry, for reviewer preview before submission.
func (s *CatalogueService) PreviewMetadata(ctx context.Context, lookup domain.Lookup) (*domain.Metadata, error) {
	if lookup.Empty() {
		return nil, domain.ErrMissingIdentifiers
	}
	return s.provider.Fetch(ctx, lookup)
}

type EditInput struct {
	Title           *string
	Authors         []string
	ISBN            *string
	ISBN10          *string
	ISBN13          *string
	Publisher       *string
	PublicationYear *string
	RequestedCopies *int
}

// Edit merges reviewer changes into a pending entry and its raw metadata.
// Allowed only while the entry awaits confirmation or its fetch failed.
func (s *CatalogueService) Edit(ctx context.Context, entryID string, patch EditInput) (domain.PendingEntry, error) {
	if entryID == "" {
		return domain.PendingEntry{}, domain.ErrInvalidID
	}
	if patch.RequestedCopies != nil && *patch.RequestedCopies < 1 {
		return domain.PendingEntry{}, domain.ErrInvalidCopies
	}

	var updated domain.PendingEntry
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		entry, err := s.repo.GetEntryForUpdate(txCtx, entryID)
		if err != nil {
			return err
		}
		if !entry.Editable() {
			return domain.ErrInvalidState
		}

		if entry.RawMetadata == nil {
			entry.RawMetadata = &domain.Metadata{}
		}

		var changed []string
		if patch.Title != nil {
			entry.Title = *patch.Title
			entry.RawMetadata.Title = *patch.Title
			changed = append(changed, "title")
		}
		if patch.Authors != nil {
			entry.Authors = patch.Authors
			entry.RawMetadata.Authors = patch.Authors
			changed = append(changed, "authors")
		}
		if patch.ISBN != nil {
			entry.ISBN = *patch.ISBN
			entry.RawMetadata.ISBN = *patch.ISBN
			changed = append(changed, "isbn")
		}
		if patch.ISBN10 != nil {
			entry.ISBN10 = *patch.ISBN10
			entry.RawMetadata.ISBN10 = *patch.ISBN10
			changed = append(changed, "isbn_10")
		}
		if patch.ISBN13 != nil {
			entry.ISBN13 = *patch.ISBN13
			entry.RawMetadata.ISBN13 = *patch.ISBN13
			changed = append(changed, "isbn_13")
		}
		if patch.Publisher != nil {
			entry.RawMetadata.Publisher = *patch.Publisher
			changed = append(changed, "publisher")
		}
		if patch.PublicationYear != nil {
			entry.RawMetadata.PublicationYear = *patch.PublicationYear
			changed = append(changed, "publication_year")
		}
		if patch.RequestedCopies != nil {
			entry.RequestedCopies = *patch.RequestedCopies
			changed = append(changed, "requested_copies")
		}

		entry.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateEntry(txCtx, entry); err != nil {
			return err
		}
		updated = entry

		detail := "no changes"
		if len(changed) > 0 {
			detail = "fields: " + strings.Join(changed, ", ")
		}
		return s.appendAudit(txCtx, entryID, domain.AuditPendingEdited, domain.SourceLibrarian, detail)
	})
	if err != nil {
		return domain.PendingEntry{}, err
	}
	return updated, nil
}

// Confirm records the reviewer decision. Approval snapshots the last-saved
// edits into the output metadata; no further edits are accepted after that.
// Rejection is terminal and requires a reason.
func (s *CatalogueService) Confirm(ctx context.Context, entryID string, approved bool, reason string) (domain.PendingEntry, error) {
	if entryID == "" {
		return domain.PendingEntry{}, domain.ErrInvalidID
	}
	if !approved && strings.TrimSpace(reason) == "" {
		return domain.PendingEntry{}, domain.ErrReasonRequired
	}

	var confirmed domain.PendingEntry
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		entry, err := s.repo.GetEntryForUpdate(txCtx, entryID)
		if err != nil {
			return err
		}
		if !entry.Editable() {
			return domain.ErrInvalidState
		}

		entry.UpdatedAt = s.clock.Now()
		if approved {
			entry.OutputMetadata = snapshotMetadata(entry)
			entry.Status = domain.EntryStatusApproved
			if err := s.repo.UpdateEntry(txCtx, entry); err != nil {
				return err
			}
			confirmed = entry
			return s.appendAudit(txCtx, entryID, domain.AuditApproved, domain.SourceLibrarian,
				firstNonEmpty(reason, "metadata approved"))
		}

		entry.Status = domain.EntryStatusRejected
		if err := s.repo.UpdateEntry(txCtx, entry); err != nil {
			return err
		}
		confirmed = entry
		return s.appendAudit(txCtx, entryID, domain.AuditRejected, domain.SourceLibrarian, reason)
	})
	if err != nil {
		return domain.PendingEntry{}, err
	}
	return confirmed, nil
}

// snapshotMetadata finalizes the output metadata at approval: fetched (and
// possibly edited) values win, original user input fills the gaps.
func snapshotMetadata(entry domain.PendingEntry) *domain.Metadata {
	out := domain.Metadata{Source: "librarian_confirmation"}
	if entry.RawMetadata != nil {
		out = *entry.RawMetadata
		out.Source = "librarian_confirmation"
	}
	out.ISBN = firstNonEmpty(out.ISBN, entry.ISBN)
	out.Title = firstNonEmpty(out.Title, entry.Title)
	out.ISBN10 = firstNonEmpty(out.ISBN10, entry.ISBN10)
	out.ISBN13 = firstNonEmpty(out.ISBN13, entry.ISBN13)
	if len(out.Authors) == 0 {
		out.Authors = entry.Authors
	}
	return &out
}

type InsertResult struct {
	EntryID string
	TitleID string
	Created bool
	Status  domain.EntryStatus
}

// Insert applies an approved entry to the main catalogue: upserts publisher
// and authors, adds copies to an existing title matched by ISBN or creates a
// new one, and marks the entry completed, all in one transaction. Calling
// it on an already completed entry returns the recorded result instead of
// erroring, so retries are safe. Any failure leaves the entry approved and
// writes an insert_failed audit entry in a separate transaction.
func (s *CatalogueService) Insert(ctx context.Context, entryID string) (InsertResult, error) {
	if entryID == "" {
		return InsertResult{}, domain.ErrInvalidID
	}

	var result InsertResult
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		entry, err := s.repo.GetEntryForUpdate(txCtx, entryID)
		if err != nil {
			return err
		}

		if entry.Status == domain.EntryStatusCompleted {
			result = InsertResult{EntryID: entryID, Status: domain.EntryStatusCompleted}
			if entry.TitleID != nil {
				result.TitleID = *entry.TitleID
			}
			return nil
		}
		if entry.Status != domain.EntryStatusApproved {
			return domain.ErrInvalidState
		}

		title, created, err := s.applyEntry(txCtx, entry)
		if err != nil {
			return err
		}

		entry.Status = domain.EntryStatusCompleted
		entry.TitleID = &title.ID
		entry.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateEntry(txCtx, entry); err != nil {
			return err
		}
		if err := s.appendAudit(txCtx, entryID, domain.AuditPendingCompleted, domain.SourceInsertionService,
			fmt.Sprintf("title_id: %s", title.ID)); err != nil {
			return err
		}

		result = InsertResult{EntryID: entryID, TitleID: title.ID, Created: created, Status: domain.EntryStatusCompleted}
		return nil
	})
	if err != nil {
		s.recordInsertFailure(ctx, entryID, err)
		return InsertResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"entry_id": entryID,
		"title_id": result.TitleID,
		"created":  result.Created,
	}).Info("catalogue insertion completed")

	return result, nil
}

func (s *CatalogueService) applyEntry(txCtx context.Context, entry domain.PendingEntry) (domain.Title, bool, error) {
	md := entry.OutputMetadata
	if md == nil {
		md = entry.RawMetadata
	}
	if md == nil || strings.TrimSpace(md.Title) == "" {
		return domain.Title{}, false, domain.ErrMissingIdentifiers
	}

	isbn10 := domain.NormalizeISBN(md.ISBN10)
	isbn13 := domain.NormalizeISBN(md.ISBN13)
	if isbn10 == "" && isbn13 == "" {
		isbn10, isbn13 = domain.ClassifyISBN(md.ISBN)
	}

	var publisherID *string
	if name := strings.TrimSpace(md.Publisher); name != "" {
		id, err := s.repo.FindOrCreatePublisher(txCtx, name)
		if err != nil {
			return domain.Title{}, false, err
		}
		publisherID = &id
	}

	authors := md.Authors
	if len(authors) == 0 {
		authors = []string{"Unknown Author"}
	}
	authorIDs := make([]string, 0, len(authors))
	for _, name := range authors {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Unknown Author"
		}
		id, err := s.repo.FindOrCreateAuthor(txCtx, name)
		if err != nil {
			return domain.Title{}, false, err
		}
		authorIDs = append(authorIDs, id)
	}

	existing, err := s.repo.FindTitleForUpdateByISBN(txCtx, isbn13, isbn10)
	if err != nil {
		return domain.Title{}, false, err
	}

	if existing != nil {
		total := existing.TotalCopies + entry.RequestedCopies
		available := existing.AvailableCopies + entry.RequestedCopies
		// requestedCopies >= 1, so the title is available after the add.
		status := domain.DeriveTitleStatus(available, false)
		if err := s.repo.UpdateTitleCounts(txCtx, existing.ID, total, available, status); err != nil {
			return domain.Title{}, false, err
		}
		existing.TotalCopies = total
		existing.AvailableCopies = available
		existing.Status = status

		details, _ := json.MarshalToString(map[string]any{
			"title_id":      existing.ID,
			"added_copies":  entry.RequestedCopies,
			"new_total":     total,
			"new_available": available,
			"isbn_10":       isbn10,
			"isbn_13":       isbn13,
		})
		if err := s.appendAudit(txCtx, entry.ID, domain.AuditCopiesAdded, domain.SourceInsertionService, details); err != nil {
			return domain.Title{}, false, err
		}
		return *existing, false, nil
	}

	title := domain.Title{
		ID:              uuid.NewString(),
		ISBN10:          isbn10,
		ISBN13:          isbn13,
		Title:           md.Title,
		PublisherID:     publisherID,
		PublicationYear: md.PublicationYear,
		Edition:         md.Edition,
		CoverURL:        md.CoverURL,
		TotalCopies:     entry.RequestedCopies,
		AvailableCopies: entry.RequestedCopies,
		Status:          domain.DeriveTitleStatus(entry.RequestedCopies, false),
		CreatedAt:       s.clock.Now(),
	}
	if err := s.repo.CreateTitle(txCtx, title); err != nil {
		return domain.Title{}, false, err
	}
	for _, authorID := range authorIDs {
		if err := s.repo.LinkTitleAuthor(txCtx, title.ID, authorID); err != nil {
			return domain.Title{}, false, err
		}
	}

	details, _ := json.MarshalToString(map[string]any{
		"title_id":     title.ID,
		"title":        title.Title,
		"isbn_10":      isbn10,
		"isbn_13":      isbn13,
		"author_ids":   authorIDs,
		"total_copies": entry.RequestedCopies,
	})
	if err := s.appendAudit(txCtx, entry.ID, domain.AuditInserted, domain.SourceInsertionService, details); err != nil {
		return domain.Title{}, false, err
	}
	return title, true, nil
}

// recordInsertFailure writes the insert_failed audit entry in its own
// transaction so the trail survives the rolled-back insertion. It applies
// only to approved entries: unknown ids and entries that never reached
// approval keep their trail clean.
func (s *CatalogueService) recordInsertFailure(ctx context.Context, entryID string, cause error) {
	if errors.Is(cause, domain.ErrEntryNotFound) || errors.Is(cause, domain.ErrInvalidState) {
		return
	}
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		return s.appendAudit(txCtx, entryID, domain.AuditInsertFailed, domain.SourceInsertionService,
			fmt.Sprintf("error: %v", cause))
	})
	if err != nil {
		s.log.WithError(err).WithField("entry_id", entryID).Warn("failed to record insert failure audit")
	}
}

func (s *CatalogueService) GetEntry(ctx context.Context, entryID string) (domain.PendingEntry, error) {
	if entryID == "" {
		return domain.PendingEntry{}, domain.ErrInvalidID
	}
	return s.repo.GetEntry(ctx, entryID)
}

// ListPending returns entries awaiting reviewer action, oldest first.
func (s *CatalogueService) ListPending(ctx context.Context) ([]domain.PendingEntry, error) {
	return s.repo.ListPending(ctx)
}

// AuditTrail returns the chronological audit history of an entry.
func (s *CatalogueService) AuditTrail(ctx context.Context, entryID string) ([]domain.AuditEntry, error) {
	if entryID == "" {
		return nil, domain.ErrInvalidID
	}
	if _, err := s.repo.GetEntry(ctx, entryID); err != nil {
		return nil, err
	}
	return s.repo.ListAuditByEntry(ctx, entryID)
}

func (s *CatalogueService) appendAudit(ctx context.Context, entryID, action, source, details string) error {
	return s.repo.AppendAudit(ctx, domain.AuditEntry{
		EntryID:   entryID,
		Action:    action,
		Source:    source,
		Details:   details,
		Timestamp: s.clock.Now(),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
