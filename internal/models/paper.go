package models

import "time"

// PaperStatus captures the lifecycle states of a concept paper.
type PaperStatus string

const (
	PaperStatusPending    PaperStatus = "PENDING"
	PaperStatusInProgress PaperStatus = "IN_PROGRESS"
	PaperStatusCompleted  PaperStatus = "COMPLETED"
	PaperStatusReturned   PaperStatus = "RETURNED"
	PaperStatusRejected   PaperStatus = "REJECTED"
)

// ConceptPaper is a document moving through the approval workflow.
// While the paper is IN_PROGRESS exactly one of its stages is IN_PROGRESS
// and CurrentStageID points at it; otherwise CurrentStageID is nil.
type ConceptPaper struct {
	ID               string      `db:"id" json:"id"`
	Title            string      `db:"title" json:"title"`
	RequisitionerID  string      `db:"requisitioner_id" json:"requisitioner_id"`
	Status           PaperStatus `db:"status" json:"status"`
	CurrentStageID   *string     `db:"current_stage_id" json:"current_stage_id,omitempty"`
	StudentsInvolved bool        `db:"students_involved" json:"students_involved"`
	SubmittedAt      time.Time   `db:"submitted_at" json:"submitted_at"`
	CompletedAt      *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	DeadlineDate     *time.Time  `db:"deadline_date" json:"deadline_date,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the paper can no longer change state.
func (s PaperStatus) Terminal() bool {
	return s == PaperStatusCompleted || s == PaperStatusRejected
}

// PaperContext is the minimal view of a paper that skip predicates see.
type PaperContext struct {
	StudentsInvolved bool
}

// Context derives the skip-predicate input from the paper.
func (p *ConceptPaper) Context() PaperContext {
	return PaperContext{StudentsInvolved: p.StudentsInvolved}
}

// PaperFilter constrains paper listing queries.
type PaperFilter struct {
	Status          []PaperStatus
	RequisitionerID string
	Limit           int
	Offset          int
}
