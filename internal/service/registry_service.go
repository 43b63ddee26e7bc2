package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cptrack/cptrack-api/internal/models"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
)

const templateCacheKey = "workflow:templates:snapshot"

type templateStore interface {
	ListOrdered(ctx context.Context) ([]models.StageTemplate, error)
	GetByID(ctx context.Context, id string) (*models.StageTemplate, error)
	UpdateMaxDays(ctx context.Context, id string, maxDays float64) error
}

type snapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TemplateSnapshot is a read-only, ordered view of the stage registry taken
// at the start of a workflow operation. An operation reads it once and
// never goes back to the database, so concurrent admin edits cannot shift
// ordering or budgets mid-transaction.
type TemplateSnapshot struct {
	Templates []models.StageTemplate
}

// Next returns the template after the given order, or nil.
func (s *TemplateSnapshot) Next(order int) *models.StageTemplate {
	for i := range s.Templates {
		if s.Templates[i].StageOrder > order {
			return &s.Templates[i]
		}
	}
	return nil
}

// ByName returns the template with the given name, or nil.
func (s *TemplateSnapshot) ByName(name string) *models.StageTemplate {
	for i := range s.Templates {
		if s.Templates[i].Name == name {
			return &s.Templates[i]
		}
	}
	return nil
}

// RegistryService serves template snapshots and admin-time registry edits.
type RegistryService struct {
	repo     templateStore
	cache    snapshotCache
	cacheTTL time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
}

// RegistryOption customises RegistryService construction.
type RegistryOption func(*RegistryService)

// WithRegistryMetrics attaches Prometheus instrumentation.
func WithRegistryMetrics(metrics *MetricsService) RegistryOption {
	return func(s *RegistryService) {
		s.metrics = metrics
	}
}

// NewRegistryService constructs the service. The cache is optional.
func NewRegistryService(repo templateStore, cache snapshotCache, cacheTTL time.Duration, logger *zap.Logger, opts ...RegistryOption) *RegistryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	svc := &RegistryService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Snapshot loads the ordered template list, serving from cache when fresh.
func (s *RegistryService) Snapshot(ctx context.Context) (*TemplateSnapshot, error) {
	if s.cache != nil {
		var cached []models.StageTemplate
		err := s.cache.Get(ctx, templateCacheKey, &cached)
		if err == nil && len(cached) > 0 {
			s.metrics.RecordCacheOperation(true)
			return &TemplateSnapshot{Templates: cached}, nil
		}
		s.metrics.RecordCacheOperation(false)
		if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("template cache read failed", zap.Error(err))
		}
	}

	templates, err := s.repo.ListOrdered(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage templates")
	}
	if len(templates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "stage registry is empty")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, templateCacheKey, templates, s.cacheTTL); err != nil {
			s.logger.Warn("template cache write failed", zap.Error(err))
		}
	}
	return &TemplateSnapshot{Templates: templates}, nil
}

// List returns the registry for admin display.
func (s *RegistryService) List(ctx context.Context) ([]models.StageTemplate, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Templates, nil
}

// UpdateMaxDays changes a template's time budget and invalidates the
// cached snapshot. Stages that already started keep their deadlines.
func (s *RegistryService) UpdateMaxDays(ctx context.Context, id string, maxDays float64) (*models.StageTemplate, error) {
	if maxDays <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "maxDays must be positive")
	}
	if err := s.repo.UpdateMaxDays(ctx, id, maxDays); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stage template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update template")
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, templateCacheKey); err != nil {
			s.logger.Warn("template cache invalidation failed", zap.Error(err))
		}
	}
	tpl, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload template")
	}
	return tpl, nil
}
