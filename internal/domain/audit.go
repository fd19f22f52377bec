package domain

import "time"

// Audit actions, one per catalogue state transition.
const (
	AuditInputReceived     = "input_received"
	AuditMetadataExtracted = "metadata_extracted"
	AuditMetadataFailed    = "metadata_extraction_failed"
	AuditPendingEdited     = "pending_edited"
	AuditApproved          = "approved"
	AuditRejected          = "rejected"
	AuditInserted          = "inserted"
	AuditCopiesAdded       = "copies_added"
	AuditPendingCompleted  = "pending_completed"
	AuditInsertFailed      = "insert_failed"
)

// Audit sources.
const (
	SourceFrontend         = "frontend"
	SourceMetadataPipeline = "metadata_pipeline"
	SourceLibrarian        = "librarian"
	SourceInsertionService = "insertion_service"
)

// AuditEntry is one immutable record of a state transition. Entries are
// append-only; nothing mutates or deletes them.
type AuditEntry struct {
	ID        int64
	EntryID   string
	Action    string
	Source    string
	Details   string
	Timestamp time.Time
}
