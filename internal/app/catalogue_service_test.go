package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmateos/shelfwise/internal/clock"
	"github.com/dmateos/shelfwise/internal/domain"
)

func TestCatalogueService_AddEntry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	t.Run("fetch success moves entry to awaiting confirmation", func(t *testing.T) {
		repo := newFakeCatalogueRepo()
		provider := &fakeProvider{metadata: &domain.Metadata{
			Title:   "Clean Code",
			Authors: []string{"Robert C. Martin"},
			ISBN13:  "9780132350884",
			Source:  "ol",
		}}
		svc := NewCatalogueService(repo, provider, clock.NewFixed(now), testLogger())

		entry, err := svc.AddEntry(context.Background(), AddEntryInput{
			ISBN:            "9780132350884",
			RequestedCopies: 3,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if entry.Status != domain.EntryStatusAwaitingConfirmation {
			t.Fatalf("expected awaiting_confirmation, got %s", entry.Status)
		}
		if entry.RawMetadata == nil || entry.RawMetadata.Title != "Clean Code" {
			t.Fatalf("expected fetched metadata on entry, got %+v", entry.RawMetadata)
		}
		if entry.ISBN13 != "9780132350884" {
			t.Fatalf("expected normalized isbn_13, got %q", entry.ISBN13)
		}

		actions := repo.auditActions(entry.ID)
		want := []string{domain.AuditInputReceived, domain.AuditMetadataExtracted}
		assertActions(t, actions, want)
	})

	t.Run("fetch failure moves entry to failed", func(t *testing.T) {
		repo := newFakeCatalogueRepo()
		provider := &fakeProvider{err: domain.ErrMetadataNotFound}
		svc := NewCatalogueService(repo, provider, clock.NewFixed(now), testLogger())

		entry, err := svc.AddEntry(context.Background(), AddEntryInput{
			Title:           "Some Obscure Book",
			RequestedCopies: 1,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if entry.Status != domain.EntryStatusFailed {
			t.Fatalf("expected failed, got %s", entry.Status)
		}

		actions := repo.auditActions(entry.ID)
		want := []string{domain.AuditInputReceived, domain.AuditMetadataFailed}
		assertActions(t, actions, want)
	})

	t.Run("requires isbn or title", func(t *testing.T) {
		svc := NewCatalogueService(newFakeCatalogueRepo(), &fakeProvider{}, clock.NewFixed(now), testLogger())
		_, err := svc.AddEntry(context.Background(), AddEntryInput{RequestedCopies: 1})
		if err != domain.ErrMissingIdentifiers {
			t.Fatalf("expected ErrMissingIdentifiers, got %v", err)
		}
	})

	t.Run("requires at least one copy", func(t *testing.T) {
		svc := NewCatalogueService(newFakeCatalogueRepo(), &fakeProvider{}, clock.NewFixed(now), testLogger())
		_, err := svc.AddEntry(context.Background(), AddEntryInput{ISBN: "9780132350884"})
		if err != domain.ErrInvalidCopies {
			t.Fatalf("expected ErrInvalidCopies, got %v", err)
		}
	})
}

func TestCatalogueService_Edit(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	seed := func(status domain.EntryStatus) (*CatalogueService, *fakeCatalogueRepo, string) {
		repo := newFakeCatalogueRepo()
		id := uuid.NewString()
		repo.entries[id] = domain.PendingEntry{
			ID:              id,
			ISBN:            "9780132350884",
			Title:           "Clean Code",
			RequestedCopies: 1,
			Status:          status,
			RawMetadata:     &domain.Metadata{Title: "Clean Code"},
		}
		svc := NewCatalogueService(repo, &fakeProvider{}, clock.NewFixed(now), testLogger())
		return svc, repo, id
	}

	t.Run("applies patch and mirrors into raw metadata", func(t *testing.T) {
		svc, repo, id := seed(domain.EntryStatusAwaitingConfirmation)

		title := "Clean Code, 2nd"
		publisher := "Prentice Hall"
		copies := 4
		entry, err := svc.Edit(context.Background(), id, EditInput{
			Title:           &title,
			Publisher:       &publisher,
			RequestedCopies: &copies,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if entry.Title != title || entry.RequestedCopies != 4 {
			t.Fatalf("expected patched entry, got %+v", entry)
		}
		if entry.RawMetadata.Title != title || entry.RawMetadata.Publisher != publisher {
			t.Fatalf("expected raw metadata mirror, got %+v", entry.RawMetadata)
		}

		actions := repo.auditActions(id)
		if len(actions) != 1 || actions[0] != domain.AuditPendingEdited {
			t.Fatalf("expected pending_edited audit, got %v", actions)
		}
	})

	t.Run("editable from failed", func(t *testing.T) {
		svc, _, id := seed(domain.EntryStatusFailed)
		isbn := "9780134494166"
		if _, err := svc.Edit(context.Background(), id, EditInput{ISBN: &isbn}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("rejected after approval", func(t *testing.T) {
		svc, _, id := seed(domain.EntryStatusApproved)
		title := "nope"
		_, err := svc.Edit(context.Background(), id, EditInput{Title: &title})
		if err != domain.ErrInvalidState {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("rejects non-positive copies", func(t *testing.T) {
		svc, _, id := seed(domain.EntryStatusAwaitingConfirmation)
		copies := 0
		_, err := svc.Edit(context.Background(), id, EditInput{RequestedCopies: &copies})
		if err != domain.ErrInvalidCopies {
			t.Fatalf("expected ErrInvalidCopies, got %v", err)
		}
	})
}

func TestCatalogueService_Confirm(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	seed := func(status domain.EntryStatus) (*CatalogueService, *fakeCatalogueRepo, string) {
		repo := newFakeCatalogueRepo()
		id := uuid.NewString()
		repo.entries[id] = domain.PendingEntry{
			ID:              id,
			ISBN:            "9780132350884",
			Title:           "Clean Code",
			Authors:         []string{"Robert C. Martin"},
			RequestedCopies: 2,
			Status:          status,
			RawMetadata:     &domain.Metadata{Title: "Clean Code", ISBN13: "9780132350884", Source: "ol"},
		}
		svc := NewCatalogueService(repo, &fakeProvider{}, clock.NewFixed(now), testLogger())
		return svc, repo, id
	}

	t.Run("approval snapshots output metadata", func(t *testing.T) {
		svc, repo, id := seed(domain.EntryStatusAwaitingConfirmation)

		entry, err := svc.Confirm(context.Background(), id, true, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if entry.Status != domain.EntryStatusApproved {
			t.Fatalf("expected approved, got %s", entry.Status)
		}
		if entry.OutputMetadata == nil {
			t.Fatalf("expected output metadata snapshot")
		}
		if entry.OutputMetadata.Source != "librarian_confirmation" {
			t.Fatalf("expected librarian_confirmation source, got %s", entry.OutputMetadata.Source)
		}
		if len(entry.OutputMetadata.Authors) != 1 {
			t.Fatalf("expected user authors to fill the gap, got %v", entry.OutputMetadata.Authors)
		}

		actions := repo.auditActions(id)
		if len(actions) != 1 || actions[0] != domain.AuditApproved {
			t.Fatalf("expected approved audit, got %v", actions)
		}
	})

	t.Run("rejection requires reason", func(t *testing.T) {
		svc, _, id := seed(domain.EntryStatusAwaitingConfirmation)
		_, err := svc.Confirm(context.Background(), id, false, "  ")
		if err != domain.ErrReasonRequired {
			t.Fatalf("expected ErrReasonRequired, got %v", err)
		}
	})

	t.Run("rejection is recorded with reason", func(t *testing.T) {
		svc, repo, id := seed(domain.EntryStatusFailed)
		entry, err := svc.Confirm(context.Background(), id, false, "wrong edition")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if entry.Status != domain.EntryStatusRejected {
			t.Fatalf("expected rejected, got %s", entry.Status)
		}
		audits := repo.auditsFor(id)
		if len(audits) != 1 || audits[0].Details != "wrong edition" {
			t.Fatalf("expected rejection reason in audit, got %+v", audits)
		}
	})

	t.Run("confirm before fetch settles", func(t *testing.T) {
		svc, _, id := seed(domain.EntryStatusPending)
		_, err := svc.Confirm(context.Background(), id, true, "")
		if err != domain.ErrInvalidState {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestCatalogueService_Insert(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	seedApproved := func(repo *fakeCatalogueRepo, isbn13 string, copies int) string {
		id := uuid.NewString()
		repo.entries[id] = domain.PendingEntry{
			ID:              id,
			RequestedCopies: copies,
			Status:          domain.EntryStatusApproved,
			OutputMetadata: &domain.Metadata{
				Title:     "Clean Code",
				Authors:   []string{"Robert C. Martin"},
				Publisher: "Prentice Hall",
				ISBN13:    isbn13,
				Source:    "librarian_confirmation",
			},
		}
		return id
	}

	t.Run("creates title with authors and publisher", func(t *testing.T) {
		repo := newFakeCatalogueRepo()
		svc := NewCatalogueService(repo, &fakeProvider{}, clock.NewFixed(now), testLogger())
		id := seedApproved(repo, "9780132350884", 3)

		result, err := svc.Insert(context.Background(), id)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !result.Created || result.TitleID == "" {
			t.Fatalf("expected created title, got %+v", result)
		}

		title := repo.titles[result.TitleID]
		if title.TotalCopies != 3 || title.AvailableCopies != 3 {
			t.Fatalf("expected 3/3 copies, got %d/%d", title.AvailableCopies, title.TotalCopies)
		}
		if title.Status != domain.TitleStatusAvailable {
			t.Fatalf("expected available, got %s", title.Status)
		}
		if title.PublisherID == nil {
			t.Fatalf("expected publisher to be linked")
		}
		if len(repo.titleAuthors[result.TitleID]) != 1 {
			t.Fatalf("expected 1 linked author, got %d", len(repo.titleAuthors[result.TitleID]))
		}

		entry := repo.entries[id]
		if entry.Status != domain.EntryStatusCompleted || entry.TitleID == nil {
			t.Fatalf("expected completed entry with title id, got %+v", entry)
		}

		assertActions(t, repo.auditActions(id), []string{domain.AuditInserted, domain.AuditPendingCompleted})
	})

	t.Run("adds copies to existing title matched by isbn", func(t *testing.T) {
		repo := newFakeCatalogueRepo()
		svc := NewCatalogueService(repo, &fakeProvider{}, clock.NewFixed(now), testLogger())

		first := seedApproved(repo, "9780132350884", 3)
		firstResult, err := svc.Insert(context.Background(), first)
		if err != nil {
			t.Fatalf("first insert: %v", err)
		}

		second := seedApproved(repo, "9780132350884", 2)
		secondResult, err := svc.Insert(context.Background(), second)
		if err != nil {
			t.Fatalf("second insert: %v", err)
		}
		if secondResult.Created {
			t.Fatalf("expected copies added, not a new title")
		}
		if secondResult.TitleID != firstResult.TitleID {
			t.Fatalf("expected same title, got %s vs %s", secondResult.TitleID, firstResult.TitleID)
		}

		title := repo.titles[firstResult.TitleID]
		if title.TotalCopies != 5 || title.AvailableCopies != 5 {
			t.Fatalf("expected 5/5 copies, got %d/%d", title.AvailableCopies, title.TotalCopies)
		}
		if len(repo.titles) != 1 {
			t.Fatalf("expected a single title, got %d", len(repo.titles))
		}

		assertActions(t, repo.auditActions(second), []string{domain.AuditCopiesAdded, domain.AuditPendingCompleted})
	})

	t.Run("repeat insert returns recorded result", func(t *testing.T) {
		repo := newFakeCatalogueRepo()
		svc := NewCatalogueService(repo, &fakeProvider{}, clock.NewFixed(now), testLogger())
		id := seedApproved(repo, "9780132350884", 1)

		first, err := svc.Insert(context.Background(), id)
		if err != nil {
			t.Fatalf("first insert: %v", err)
		}
		again, err := svc.Insert(context.Background(), id)
		if err != nil {
			t.Fatalf("repeat insert: %v", err)
		}
		if again.TitleID != first.TitleID || again.Status != domain.EntryStatusCompleted {
			t.Fatalf("expected recorded result, got %+v", again)
		}
		if again.Created {
			t.Fatalf("expected repeat insert to not report creation")
		}
		title := repo.titles[first.TitleID]
		if title.TotalCopies != 1 {
			t.Fatalf("expected copies unchanged on repeat, got %d", title.TotalCopies)
		}
	})

	t.Run("non-approved entry rejected without failure audit", func(t *testing.T) {
		repo := newFakeCatalogueRepo()
		svc := NewCatalogueService(repo, &fakeProvider{}, clock.NewFixed(now), testLogger())
		id := uuid.NewString()
		repo.entries[id] = domain.PendingEntry{
			ID:              id,
			RequestedCopies: 1,
			Status:          domain.EntryStatusAwaitingConfirmation,
		}

		_, err := svc.Insert(context.Background(), id)
		if err != domain.ErrInvalidState {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
		assertActions(t, repo.auditActions(id), nil)
	})

	t.Run("storage failure on approved entry audited and retryable", func(t *testing.T) {
		repo := newFakeCatalogueRepo()
		svc := NewCatalogueService(repo, &fakeProvider{}, clock.NewFixed(now), testLogger())
		id := uuid.NewString()
		repo.entries[id] = domain.PendingEntry{
			ID:              id,
			Title:           "Clean Code",
			ISBN13:          "9780132350884",
			RequestedCopies: 1,
			Status:          domain.EntryStatusApproved,
			OutputMetadata:  &domain.Metadata{Title: "Clean Code", ISBN13: "9780132350884"},
		}
		repo.createTitleErr = errors.New("connection reset")

		_, err := svc.Insert(context.Background(), id)
		if err == nil {
			t.Fatal("expected insert to fail")
		}
		assertActions(t, repo.auditActions(id), []string{domain.AuditInsertFailed})
		if repo.entries[id].Status != domain.EntryStatusApproved {
			t.Fatalf("expected entry to stay approved, got %s", repo.entries[id].Status)
		}
	})

	t.Run("unknown entry writes no failure audit", func(t *testing.T) {
		repo := newFakeCatalogueRepo()
		svc := NewCatalogueService(repo, &fakeProvider{}, clock.NewFixed(now), testLogger())

		_, err := svc.Insert(context.Background(), uuid.NewString())
		if err != domain.ErrEntryNotFound {
			t.Fatalf("expected ErrEntryNotFound, got %v", err)
		}
		if len(repo.audits) != 0 {
			t.Fatalf("expected no audits, got %d", len(repo.audits))
		}
	})
}

func TestCatalogueService_Lifecycle(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	repo := newFakeCatalogueRepo()
	provider := &fakeProvider{metadata: &domain.Metadata{
		Title:   "Clean Code",
		Authors: []string{"Robert C. Martin"},
		ISBN13:  "9780132350884",
		Source:  "ol",
	}}
	svc := NewCatalogueService(repo, provider, clk, testLogger())
	ctx := context.Background()

	entry, err := svc.AddEntry(ctx, AddEntryInput{ISBN: "9780132350884", RequestedCopies: 3})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	clk.Advance(time.Minute)
	publisher := "Prentice Hall"
	if _, err := svc.Edit(ctx, entry.ID, EditInput{Publisher: &publisher}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	clk.Advance(time.Minute)
	if _, err := svc.Confirm(ctx, entry.ID, true, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	clk.Advance(time.Minute)
	result, err := svc.Insert(ctx, entry.ID)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !result.Created {
		t.Fatalf("expected new title")
	}

	trail, err := svc.AuditTrail(ctx, entry.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}

	var actions []string
	for _, a := range trail {
		actions = append(actions, a.Action)
	}
	want := []string{
		domain.AuditInputReceived,
		domain.AuditMetadataExtracted,
		domain.AuditPendingEdited,
		domain.AuditApproved,
		domain.AuditInserted,
		domain.AuditPendingCompleted,
	}
	assertActions(t, actions, want)

	for i := 1; i < len(trail); i++ {
		if trail[i].Timestamp.Before(trail[i-1].Timestamp) {
			t.Fatalf("audit trail out of order at %d", i)
		}
	}
}

func assertActions(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected actions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected actions %v, got %v", want, got)
		}
	}
}

type fakeProvider struct {
	metadata *domain.Metadata
	err      error
	calls    int
}

func (f *fakeProvider) Fetch(_ context.Context, lookup domain.Lookup) (*domain.Metadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.metadata == nil {
		return nil, domain.ErrMetadataNotFound
	}
	md := *f.metadata
	return &md, nil
}

type fakeCatalogueRepo struct {
	mu             sync.Mutex
	entries        map[string]domain.PendingEntry
	audits         []domain.AuditEntry
	titles         map[string]domain.Title
	titleAuthors   map[string][]string
	publishers     map[string]string
	authors        map[string]string
	nextAuditID    int64
	createTitleErr error
}

func newFakeCatalogueRepo() *fakeCatalogueRepo {
	return &fakeCatalogueRepo{
		entries:      make(map[string]domain.PendingEntry),
		titles:       make(map[string]domain.Title),
		titleAuthors: make(map[string][]string),
		publishers:   make(map[string]string),
		authors:      make(map[string]string),
	}
}

func (f *fakeCatalogueRepo) auditActions(entryID string) []string {
	var actions []string
	for _, a := range f.audits {
		if a.EntryID == entryID {
			actions = append(actions, a.Action)
		}
	}
	return actions
}

func (f *fakeCatalogueRepo) auditsFor(entryID string) []domain.AuditEntry {
	var out []domain.AuditEntry
	for _, a := range f.audits {
		if a.EntryID == entryID {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeCatalogueRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeCatalogueRepo) CreateEntry(_ context.Context, entry domain.PendingEntry) error {
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeCatalogueRepo) GetEntry(_ context.Context, entryID string) (domain.PendingEntry, error) {
	entry, ok := f.entries[entryID]
	if !ok {
		return domain.PendingEntry{}, domain.ErrEntryNotFound
	}
	return entry, nil
}

func (f *fakeCatalogueRepo) GetEntryForUpdate(ctx context.Context, entryID string) (domain.PendingEntry, error) {
	return f.GetEntry(ctx, entryID)
}

func (f *fakeCatalogueRepo) UpdateEntry(_ context.Context, entry domain.PendingEntry) error {
	if _, ok := f.entries[entry.ID]; !ok {
		return domain.ErrEntryNotFound
	}
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeCatalogueRepo) ListPending(_ context.Context) ([]domain.PendingEntry, error) {
	var out []domain.PendingEntry
	for _, entry := range f.entries {
		if entry.Editable() {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeCatalogueRepo) AppendAudit(_ context.Context, audit domain.AuditEntry) error {
	f.nextAuditID++
	audit.ID = f.nextAuditID
	f.audits = append(f.audits, audit)
	return nil
}

func (f *fakeCatalogueRepo) ListAuditByEntry(_ context.Context, entryID string) ([]domain.AuditEntry, error) {
	return f.auditsFor(entryID), nil
}

func (f *fakeCatalogueRepo) FindTitleForUpdateByISBN(_ context.Context, isbn13, isbn10 string) (*domain.Title, error) {
	for _, title := range f.titles {
		if isbn13 != "" && title.ISBN13 == isbn13 {
			t := title
			return &t, nil
		}
	}
	for _, title := range f.titles {
		if isbn10 != "" && title.ISBN10 == isbn10 {
			t := title
			return &t, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalogueRepo) UpdateTitleCounts(_ context.Context, titleID string, total, available int, status domain.TitleStatus) error {
	title, ok := f.titles[titleID]
	if !ok {
		return domain.ErrTitleNotFound
	}
	title.TotalCopies = total
	title.AvailableCopies = available
	title.Status = status
	f.titles[titleID] = title
	return nil
}

func (f *fakeCatalogueRepo) CreateTitle(_ context.Context, title domain.Title) error {
	if f.createTitleErr != nil {
		return f.createTitleErr
	}
	f.titles[title.ID] = title
	return nil
}

func (f *fakeCatalogueRepo) LinkTitleAuthor(_ context.Context, titleID, authorID string) error {
	f.titleAuthors[titleID] = append(f.titleAuthors[titleID], authorID)
	return nil
}

func (f *fakeCatalogueRepo) FindOrCreatePublisher(_ context.Context, name string) (string, error) {
	if id, ok := f.publishers[name]; ok {
		return id, nil
	}
	id := uuid.NewString()
	f.publishers[name] = id
	return id, nil
}

func (f *fakeCatalogueRepo) FindOrCreateAuthor(_ context.Context, name string) (string, error) {
	if id, ok := f.authors[name]; ok {
		return id, nil
	}
	id := uuid.NewString()
	f.authors[name] = id
	return id, nil
}
