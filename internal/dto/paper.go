package dto

import (
	"time"

	"github.com/cptrack/cptrack-api/internal/models"
)

// CreatePaperRequest submits a new concept paper into the workflow.
type CreatePaperRequest struct {
	Title            string     `json:"title" validate:"required,max=255"`
	StudentsInvolved bool       `json:"studentsInvolved"`
	DeadlineDate     *time.Time `json:"deadlineDate,omitempty"`
}

// PaperQuery mirrors supported paper listing filters.
type PaperQuery struct {
	Status          []models.PaperStatus
	RequisitionerID string
	Limit           int
	Offset          int
}

// PaperDetail couples a paper with its materialized stages in order.
type PaperDetail struct {
	Paper  models.ConceptPaper    `json:"paper"`
	Stages []models.WorkflowStage `json:"stages"`
}
