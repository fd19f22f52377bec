package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"

	"github.com/dmateos/shelfwise/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type CatalogueRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogueRepository(pool *pgxpool.Pool) *CatalogueRepository {
	return &CatalogueRepository{pool: pool}
}

func (r *CatalogueRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const entryColumns = `
id, COALESCE(isbn, ''), COALESCE(isbn_10, ''), COALESCE(isbn_13, ''), COALESCE(title, ''),
authors, requested_copies, raw_metadata, output_metadata, status, title_id, created_at, updated_at`

func (r *CatalogueRepository) CreateEntry(ctx context.Context, entry domain.PendingEntry) error {
	const stmt = `
INSERT INTO pending_entries
	(id, isbn, isbn_10, isbn_13, title, authors, requested_copies, raw_metadata, output_metadata, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	authors, err := json.Marshal(entry.Authors)
	if err != nil {
		return fmt.Errorf("marshal authors: %w", err)
	}
	raw, output, err := marshalMetadata(entry)
	if err != nil {
		return err
	}

	_, err = r.exec(ctx, stmt,
		entry.ID,
		nullString(entry.ISBN),
		nullString(entry.ISBN10),
		nullString(entry.ISBN13),
		nullString(entry.Title),
		authors,
		entry.RequestedCopies,
		raw,
		output,
		entry.Status,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create pending entry: %w", err)
	}
	return nil
}

func (r *CatalogueRepository) GetEntry(ctx context.Context, entryID string) (domain.PendingEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM pending_entries WHERE id = $1`
	return r.scanEntry(r.queryRow(ctx, query, entryID))
}

func (r *CatalogueRepository) GetEntryForUpdate(ctx context.Context, entryID string) (domain.PendingEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM pending_entries WHERE id = $1 FOR UPDATE`
	return r.scanEntry(r.queryRow(ctx, query, entryID))
}

func (r *CatalogueRepository) scanEntry(row pgx.Row) (domain.PendingEntry, error) {
	var e domain.PendingEntry
	var status string
	var authors, raw, output []byte
	err := row.Scan(&e.ID, &e.ISBN, &e.ISBN10, &e.ISBN13, &e.Title,
		&authors, &e.RequestedCopies, &raw, &output, &status, &e.TitleID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.PendingEntry{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.PendingEntry{}, domain.ErrEntryNotFound
		}
		return domain.PendingEntry{}, fmt.Errorf("get pending entry: %w", err)
	}
	e.Status = domain.EntryStatus(status)

	if len(authors) > 0 {
		if err := json.Unmarshal(authors, &e.Authors); err != nil {
			return domain.PendingEntry{}, fmt.Errorf("unmarshal authors: %w", err)
		}
	}
	if len(raw) > 0 {
		e.RawMetadata = &domain.Metadata{}
		if err := json.Unmarshal(raw, e.RawMetadata); err != nil {
			return domain.PendingEntry{}, fmt.Errorf("unmarshal raw metadata: %w", err)
		}
	}
	if len(output) > 0 {
		e.OutputMetadata = &domain.Metadata{}
		if err := json.Unmarshal(output, e.OutputMetadata); err != nil {
			return domain.PendingEntry{}, fmt.Errorf("unmarshal output metadata: %w", err)
		}
	}
	return e, nil
}

func (r *CatalogueRepository) UpdateEntry(ctx context.Context, entry domain.PendingEntry) error {
	const stmt = `
UPDATE pending_entries
SET isbn = $2, isbn_10 = $3, isbn_13 = $4, title = $5, authors = $6, requested_copies = $7,
	raw_metadata = $8, output_metadata = $9, status = $10, title_id = $11, updated_at = $12
WHERE id = $1`

	authors, err := json.Marshal(entry.Authors)
	if err != nil {
		return fmt.Errorf("marshal authors: %w", err)
	}
	raw, output, err := marshalMetadata(entry)
	if err != nil {
		return err
	}

	tag, err := r.exec(ctx, stmt,
		entry.ID,
		nullString(entry.ISBN),
		nullString(entry.ISBN10),
		nullString(entry.ISBN13),
		nullString(entry.Title),
		authors,
		entry.RequestedCopies,
		raw,
		output,
		entry.Status,
		entry.TitleID,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update pending entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *CatalogueRepository) ListPending(ctx context.Context) ([]domain.PendingEntry, error) {
	query := `SELECT ` + entryColumns + `
FROM pending_entries
WHERE status IN ('awaiting_confirmation', 'failed')
ORDER BY created_at ASC`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.PendingEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *CatalogueRepository) AppendAudit(ctx context.Context, audit domain.AuditEntry) error {
	const stmt = `
INSERT INTO catalogue_audit (entry_id, action, source, details, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt, audit.EntryID, audit.Action, audit.Source, nullString(audit.Details), audit.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (r *CatalogueRepository) ListAuditByEntry(ctx context.Context, entryID string) ([]domain.AuditEntry, error) {
	const query = `
SELECT id, entry_id, action, source, COALESCE(details, ''), created_at
FROM catalogue_audit
WHERE entry_id = $1
ORDER BY created_at ASC, id ASC`

	rows, err := r.query(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var a domain.AuditEntry
		if err := rows.Scan(&a.ID, &a.EntryID, &a.Action, &a.Source, &a.Details, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

func (r *CatalogueRepository) FindTitleForUpdateByISBN(ctx context.Context, isbn13, isbn10 string) (*domain.Title, error) {
	const query = `
SELECT id, COALESCE(isbn_10, ''), COALESCE(isbn_13, ''), title, total_copies, available_copies, status, created_at
FROM titles
WHERE ($1 <> '' AND isbn_13 = $1) OR ($2 <> '' AND isbn_10 = $2)
ORDER BY (isbn_13 = $1) DESC
LIMIT 1
FOR UPDATE`

	if isbn13 == "" && isbn10 == "" {
		return nil, nil
	}

	var t domain.Title
	var status string
	err := r.queryRow(ctx, query, isbn13, isbn10).
		Scan(&t.ID, &t.ISBN10, &t.ISBN13, &t.Title, &t.TotalCopies, &t.AvailableCopies, &status, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find title by isbn: %w", err)
	}
	t.Status = domain.TitleStatus(status)
	return &t, nil
}

func (r *CatalogueRepository) UpdateTitleCounts(ctx context.Context, titleID string, total, available int, status domain.TitleStatus) error {
	const stmt = `
UPDATE titles
SET total_copies = $2, available_copies = $3, status = $4, updated_at = NOW()
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, titleID, total, available, status)
	if err != nil {
		return fmt.Errorf("update title counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTitleNotFound
	}
	return nil
}

func (r *CatalogueRepository) CreateTitle(ctx context.Context, title domain.Title) error {
	const stmt = `
INSERT INTO titles
	(id, isbn_10, isbn_13, title, publisher_id, publication_year, edition, cover_url, total_copies, available_copies, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.exec(ctx, stmt,
		title.ID,
		nullString(title.ISBN10),
		nullString(title.ISBN13),
		title.Title,
		title.PublisherID,
		nullString(title.PublicationYear),
		nullString(title.Edition),
		nullString(title.CoverURL),
		title.TotalCopies,
		title.AvailableCopies,
		title.Status,
		title.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create title: isbn already catalogued: %w", err)
		}
		return fmt.Errorf("create title: %w", err)
	}
	return nil
}

func (r *CatalogueRepository) LinkTitleAuthor(ctx context.Context, titleID, authorID string) error {
	const stmt = `
INSERT INTO title_authors (title_id, author_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`

	if _, err := r.exec(ctx, stmt, titleID, authorID); err != nil {
		return fmt.Errorf("link title author: %w", err)
	}
	return nil
}

// FindOrCreatePublisher resolves a publisher id by name, inserting on first
// sight. A concurrent insert of the same name is resolved to the winner's
// row without aborting the enclosing transaction.
func (r *CatalogueRepository) FindOrCreatePublisher(ctx context.Context, name string) (string, error) {
	return r.findOrCreateNamed(ctx, "publishers", "name", name)
}

// FindOrCreateAuthor resolves an author id by full name, first-writer-wins.
func (r *CatalogueRepository) FindOrCreateAuthor(ctx context.Context, name string) (string, error) {
	return r.findOrCreateNamed(ctx, "authors", "full_name", name)
}

func (r *CatalogueRepository) findOrCreateNamed(ctx context.Context, table, column, name string) (string, error) {
	selectQuery := fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1`, table, column)
	// ON CONFLICT keeps a lost insert race from erroring, which inside a
	// transaction would abort it and make any recovery lookup impossible.
	insertQuery := fmt.Sprintf(`INSERT INTO %s (id, %s) VALUES ($1, $2) ON CONFLICT (%s) DO NOTHING RETURNING id`, table, column, column)

	var id string
	err := r.queryRow(ctx, selectQuery, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return "", fmt.Errorf("find %s: %w", table, err)
	}

	err = r.queryRow(ctx, insertQuery, uuid.NewString(), name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return "", fmt.Errorf("create %s: %w", table, err)
	}

	// No row returned means a concurrent transaction won the name; its
	// committed row is visible to the next statement.
	if err := r.queryRow(ctx, selectQuery, name).Scan(&id); err != nil {
		return "", fmt.Errorf("re-find %s: %w", table, err)
	}
	return id, nil
}

func marshalMetadata(entry domain.PendingEntry) (raw, output []byte, err error) {
	if entry.RawMetadata != nil {
		raw, err = json.Marshal(entry.RawMetadata)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal raw metadata: %w", err)
		}
	}
	if entry.OutputMetadata != nil {
		output, err = json.Marshal(entry.OutputMetadata)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal output metadata: %w", err)
		}
	}
	return raw, output, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *CatalogueRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *CatalogueRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *CatalogueRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
