package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cptrack/cptrack-api/internal/models"
)

// AuditRepository reads the append-only audit trail. All writes happen
// inside the transaction of the state change they describe (see
// StageRepository and UserRepository); nothing ever updates or deletes a
// row.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// ListByPaper returns the paper's trail, oldest first.
func (r *AuditRepository) ListByPaper(ctx context.Context, paperID string, limit, offset int) ([]models.AuditLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, concept_paper_id, user_id, action, stage_name, remarks, metadata, created_at
	FROM audit_log_entries WHERE concept_paper_id = $1 ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`
	var entries []models.AuditLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, paperID, limit, offset); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
