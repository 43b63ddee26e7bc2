package models

import "time"

// StageStatus captures workflow states of a single approval stage.
type StageStatus string

const (
	StageStatusPending    StageStatus = "PENDING"
	StageStatusInProgress StageStatus = "IN_PROGRESS"
	StageStatusCompleted  StageStatus = "COMPLETED"
	StageStatusReturned   StageStatus = "RETURNED"
	StageStatusRejected   StageStatus = "REJECTED"
)

// Terminal reports whether the stage can no longer be worked on.
func (s StageStatus) Terminal() bool {
	return s == StageStatusCompleted || s == StageStatusRejected
}

// Assignable reports whether the stage may still be handed to another user.
func (s StageStatus) Assignable() bool {
	return s == StageStatusPending || s == StageStatusInProgress
}

// WorkflowStage is one materialized step of a paper's approval sequence.
// StageOrder values are dense (1..N, no gaps) per paper; skipped templates
// are never materialized. Deadline is snapshotted when the stage starts.
type WorkflowStage struct {
	ID             string      `db:"id" json:"id"`
	ConceptPaperID string      `db:"concept_paper_id" json:"concept_paper_id"`
	StageName      string      `db:"stage_name" json:"stage_name"`
	StageOrder     int         `db:"stage_order" json:"stage_order"`
	AssignedRole   UserRole    `db:"assigned_role" json:"assigned_role"`
	AssignedUserID *string     `db:"assigned_user_id" json:"assigned_user_id,omitempty"`
	Status         StageStatus `db:"status" json:"status"`
	StartedAt      *time.Time  `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	Deadline       *time.Time  `db:"deadline" json:"deadline,omitempty"`
	Remarks        *string     `db:"remarks" json:"remarks,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// Overdue reports whether the stage deadline has passed at the given instant.
func (s *WorkflowStage) Overdue(now time.Time) bool {
	if s.Deadline == nil {
		return false
	}
	if s.Status.Terminal() {
		return false
	}
	return s.Deadline.Before(now)
}

// AffectedStage pairs a non-terminal stage with its paper for reassignment flows.
type AffectedStage struct {
	Stage WorkflowStage `json:"stage"`
	Paper ConceptPaper  `json:"paper"`
}
