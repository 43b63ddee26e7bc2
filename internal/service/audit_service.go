package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cptrack/cptrack-api/internal/models"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
)

type auditStore interface {
	ListByPaper(ctx context.Context, paperID string, limit, offset int) ([]models.AuditLogEntry, error)
}

type auditPaperStore interface {
	GetByID(ctx context.Context, id string) (*models.ConceptPaper, error)
}

// AuditService reads the append-only workflow trail.
type AuditService struct {
	audits auditStore
	papers auditPaperStore
}

// NewAuditService constructs the service.
func NewAuditService(audits auditStore, papers auditPaperStore) *AuditService {
	return &AuditService{audits: audits, papers: papers}
}

// Trail returns a paper's audit entries, oldest first.
func (s *AuditService) Trail(ctx context.Context, paperID string, limit, offset int) ([]models.AuditLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.papers.GetByID(ctx, paperID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "concept paper not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load concept paper")
	}
	entries, err := s.audits.ListByPaper(ctx, paperID, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return entries, nil
}
