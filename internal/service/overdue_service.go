package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/models"
)

type overdueStageStore interface {
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.WorkflowStage, error)
}

type overduePaperStore interface {
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.ConceptPaper, error)
}

// overdueMarkers is the idempotency store. SetNX is an atomic
// check-and-set so concurrent scanner instances never double-notify.
type overdueMarkers interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type overdueNotifier interface {
	SendOverdue(ctx context.Context, stage models.WorkflowStage) error
	SendPaperOverdue(ctx context.Context, paper models.ConceptPaper) error
}

// OverdueScanConfig tunes the scanner loop.
type OverdueScanConfig struct {
	ScanInterval time.Duration
	MarkerTTL    time.Duration
	BatchSize    int
}

// OverdueService periodically sweeps for stages and papers past their
// deadlines and fires overdue notifications at most once per entity per
// calendar day.
type OverdueService struct {
	stages   overdueStageStore
	papers   overduePaperStore
	markers  overdueMarkers
	notifier overdueNotifier
	metrics  *MetricsService
	clock    Clock
	logger   *zap.Logger

	interval  time.Duration
	markerTTL time.Duration
	batchSize int
}

// OverdueOption customises OverdueService construction.
type OverdueOption func(*OverdueService)

// WithOverdueClock overrides the wall clock, used by tests.
func WithOverdueClock(clock Clock) OverdueOption {
	return func(s *OverdueService) {
		s.clock = clock
	}
}

// WithOverdueMetrics attaches Prometheus instrumentation.
func WithOverdueMetrics(metrics *MetricsService) OverdueOption {
	return func(s *OverdueService) {
		s.metrics = metrics
	}
}

// NewOverdueService constructs the scanner. The marker store is required:
// without it the at-most-once guarantee cannot hold.
func NewOverdueService(stages overdueStageStore, papers overduePaperStore, markers overdueMarkers, notifier overdueNotifier, cfg OverdueScanConfig, logger *zap.Logger, opts ...OverdueOption) *OverdueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Hour
	}
	if cfg.MarkerTTL <= cfg.ScanInterval {
		cfg.MarkerTTL = cfg.ScanInterval * 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	svc := &OverdueService{
		stages:    stages,
		papers:    papers,
		markers:   markers,
		notifier:  notifier,
		clock:     SystemClock(),
		logger:    logger,
		interval:  cfg.ScanInterval,
		markerTTL: cfg.MarkerTTL,
		batchSize: cfg.BatchSize,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Start launches the periodic scan loop. It returns immediately; the loop
// stops when ctx is cancelled.
func (s *OverdueService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("overdue scanner started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("overdue scanner stopped")
				return
			case <-ticker.C:
				report, err := s.RunOnce(ctx)
				if err != nil {
					s.logger.Error("overdue scan failed", zap.Error(err))
					continue
				}
				s.logger.Info("overdue scan completed",
					zap.Int("stages_scanned", report.StagesScanned),
					zap.Int("papers_scanned", report.PapersScanned),
					zap.Int("stages_notified", report.StagesNotified),
					zap.Int("papers_notified", report.PapersNotified),
					zap.Int("already_notified", report.AlreadyNotified),
					zap.Int("dispatch_errors", report.DispatchErrors),
				)
			}
		}
	}()
}

// RunOnce performs a single sweep. A dispatch failure for one entity never
// aborts the sweep; its marker is released so a later pass retries.
func (s *OverdueService) RunOnce(ctx context.Context) (*dto.ScanReport, error) {
	started := s.clock.Now()
	now := started.UTC()
	report := &dto.ScanReport{}

	stages, err := s.stages.ListOverdue(ctx, now, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list overdue stages: %w", err)
	}
	report.StagesScanned = len(stages)
	for i := range stages {
		s.metrics.RecordOverdueStage()
		s.processStage(ctx, stages[i], now, report)
	}

	papers, err := s.papers.ListOverdue(ctx, now, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list overdue papers: %w", err)
	}
	report.PapersScanned = len(papers)
	for i := range papers {
		s.metrics.RecordOverduePaper()
		s.processPaper(ctx, papers[i], now, report)
	}

	s.metrics.ObserveScan(s.clock.Now().Sub(started))
	return report, nil
}

func (s *OverdueService) processStage(ctx context.Context, stage models.WorkflowStage, now time.Time, report *dto.ScanReport) {
	key := stageMarkerKey(stage.ID, now)
	acquired, err := s.markers.SetNX(ctx, key, 1, s.markerTTL)
	if err != nil {
		s.logger.Error("overdue marker check failed", zap.String("stage_id", stage.ID), zap.Error(err))
		report.DispatchErrors++
		return
	}
	if !acquired {
		report.AlreadyNotified++
		return
	}

	if err := s.notifier.SendOverdue(ctx, stage); err != nil {
		s.logger.Error("overdue stage notification failed", zap.String("stage_id", stage.ID), zap.Error(err))
		report.DispatchErrors++
		// Release the marker so the next pass retries this stage.
		if delErr := s.markers.Delete(ctx, key); delErr != nil {
			s.logger.Error("overdue marker release failed", zap.String("stage_id", stage.ID), zap.Error(delErr))
		}
		return
	}
	report.StagesNotified++
}

func (s *OverdueService) processPaper(ctx context.Context, paper models.ConceptPaper, now time.Time, report *dto.ScanReport) {
	key := paperMarkerKey(paper.ID, now)
	acquired, err := s.markers.SetNX(ctx, key, 1, s.markerTTL)
	if err != nil {
		s.logger.Error("overdue marker check failed", zap.String("paper_id", paper.ID), zap.Error(err))
		report.DispatchErrors++
		return
	}
	if !acquired {
		report.AlreadyNotified++
		return
	}

	if err := s.notifier.SendPaperOverdue(ctx, paper); err != nil {
		s.logger.Error("overdue paper notification failed", zap.String("paper_id", paper.ID), zap.Error(err))
		report.DispatchErrors++
		if delErr := s.markers.Delete(ctx, key); delErr != nil {
			s.logger.Error("overdue marker release failed", zap.String("paper_id", paper.ID), zap.Error(delErr))
		}
		return
	}
	report.PapersNotified++
}

func stageMarkerKey(stageID string, now time.Time) string {
	return fmt.Sprintf("overdue:stage:%s:%s", stageID, now.Format("2006-01-02"))
}

func paperMarkerKey(paperID string, now time.Time) string {
	return fmt.Sprintf("overdue:paper:%s:%s", paperID, now.Format("2006-01-02"))
}
