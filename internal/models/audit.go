package models

import "time"

// AuditAction constants represent workflow actions to be logged.
const (
	AuditActionWorkflowInitialized = "workflow_initialized"
	AuditActionStageSkipped        = "stage_skipped"
	AuditActionStageCompleted      = "stage_completed"
	AuditActionStageReturned       = "stage_returned"
	AuditActionStageRejected       = "stage_rejected"
	AuditActionStageReassigned     = "stage_reassigned"
	AuditActionPaperCompleted      = "paper_completed"
	AuditActionUserDeactivated     = "user_deactivated"
)

// AuditLogEntry is an append-only record of a workflow transition. Entries
// are written inside the same transaction as the state change they describe
// and are never updated or deleted.
type AuditLogEntry struct {
	ID             string    `db:"id" json:"id"`
	ConceptPaperID string    `db:"concept_paper_id" json:"concept_paper_id"`
	UserID         *string   `db:"user_id" json:"user_id,omitempty"`
	Action         string    `db:"action" json:"action"`
	StageName      *string   `db:"stage_name" json:"stage_name,omitempty"`
	Remarks        string    `db:"remarks" json:"remarks"`
	Metadata       []byte    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
