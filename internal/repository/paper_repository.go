package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cptrack/cptrack-api/internal/models"
)

// PaperRepository persists concept papers.
type PaperRepository struct {
	db *sqlx.DB
}

// NewPaperRepository constructs the repository.
func NewPaperRepository(db *sqlx.DB) *PaperRepository {
	return &PaperRepository{db: db}
}

const paperColumns = `id, title, requisitioner_id, status, current_stage_id, students_involved,
       submitted_at, completed_at, deadline_date, created_at, updated_at`

// Create inserts a new paper row in PENDING state.
func (r *PaperRepository) Create(ctx context.Context, paper *models.ConceptPaper) error {
	if paper.ID == "" {
		paper.ID = uuid.NewString()
	}
	if paper.Status == "" {
		paper.Status = models.PaperStatusPending
	}
	now := time.Now().UTC()
	if paper.SubmittedAt.IsZero() {
		paper.SubmittedAt = now
	}
	paper.CreatedAt = now
	paper.UpdatedAt = now
	const query = `INSERT INTO concept_papers
	(id, title, requisitioner_id, status, current_stage_id, students_involved, submitted_at, completed_at, deadline_date, created_at, updated_at)
	VALUES (:id, :title, :requisitioner_id, :status, :current_stage_id, :students_involved, :submitted_at, :completed_at, :deadline_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, paper); err != nil {
		return fmt.Errorf("create concept paper: %w", err)
	}
	return nil
}

// GetByID fetches a paper by identifier.
func (r *PaperRepository) GetByID(ctx context.Context, id string) (*models.ConceptPaper, error) {
	query := `SELECT ` + paperColumns + ` FROM concept_papers WHERE id = $1`
	var paper models.ConceptPaper
	if err := r.db.GetContext(ctx, &paper, query, id); err != nil {
		return nil, err
	}
	return &paper, nil
}

// List returns papers matching the filter, newest submissions first.
func (r *PaperRepository) List(ctx context.Context, filter models.PaperFilter) ([]models.ConceptPaper, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + paperColumns + ` FROM concept_papers`)

	conditions := make([]string, 0, 2)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RequisitionerID != "" {
		args = append(args, filter.RequisitionerID)
		conditions = append(conditions, fmt.Sprintf("requisitioner_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var papers []models.ConceptPaper
	if err := r.db.SelectContext(ctx, &papers, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list concept papers: %w", err)
	}
	return papers, nil
}

// ListOverdue returns papers whose own deadline has passed while they are
// still open. Used by the overdue sweep.
func (r *PaperRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.ConceptPaper, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + paperColumns + ` FROM concept_papers
	WHERE deadline_date IS NOT NULL AND deadline_date < $1 AND status NOT IN ($2, $3)
	ORDER BY deadline_date ASC LIMIT $4`
	var papers []models.ConceptPaper
	if err := r.db.SelectContext(ctx, &papers, query, now,
		models.PaperStatusCompleted, models.PaperStatusRejected, limit); err != nil {
		return nil, fmt.Errorf("list overdue papers: %w", err)
	}
	return papers, nil
}

// Delete removes a paper; stages, audit entries and attachment metadata
// cascade at the database level.
func (r *PaperRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM concept_papers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete concept paper: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete concept paper: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
