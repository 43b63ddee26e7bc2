package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cptrack/cptrack-api/internal/models"
)

// TemplateRepository reads and mutates the stage-definition registry.
// Templates are admin-time configuration; the workflow engine only ever
// consumes an ordered snapshot loaded at the start of an operation.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, stage_order, name, role, max_days, skip_condition, created_at, updated_at`

// ListOrdered returns all templates in stage order.
func (r *TemplateRepository) ListOrdered(ctx context.Context) ([]models.StageTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM stage_templates ORDER BY stage_order ASC`
	var templates []models.StageTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("list stage templates: %w", err)
	}
	return templates, nil
}

// GetByID fetches a single template.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.StageTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM stage_templates WHERE id = $1`
	var tpl models.StageTemplate
	if err := r.db.GetContext(ctx, &tpl, query, id); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// UpdateMaxDays changes a template's time budget. Already-started stages
// keep the deadline snapshotted when they started.
func (r *TemplateRepository) UpdateMaxDays(ctx context.Context, id string, maxDays float64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE stage_templates SET max_days = $1, updated_at = $2 WHERE id = $3`,
		maxDays, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update template max_days: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template max_days: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
