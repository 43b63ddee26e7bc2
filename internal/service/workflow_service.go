package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/models"
	"github.com/cptrack/cptrack-api/internal/repository"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
)

type paperStore interface {
	Create(ctx context.Context, paper *models.ConceptPaper) error
	GetByID(ctx context.Context, id string) (*models.ConceptPaper, error)
	List(ctx context.Context, filter models.PaperFilter) ([]models.ConceptPaper, error)
}

type stageStore interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowStage, error)
	ListByPaper(ctx context.Context, paperID string) ([]models.WorkflowStage, error)
	InitializeWorkflow(ctx context.Context, params repository.InitializeWorkflowParams) error
	AdvanceStage(ctx context.Context, params repository.TransitionParams) (*repository.AdvanceResult, error)
	ReturnStage(ctx context.Context, params repository.TransitionParams) (*repository.ReturnResult, error)
	RejectStage(ctx context.Context, params repository.TransitionParams) (*models.WorkflowStage, error)
	ReassignStage(ctx context.Context, params repository.ReassignParams) (*models.WorkflowStage, error)
}

type userDirectory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	FindActiveByRole(ctx context.Context, role models.UserRole) (*models.User, error)
}

type registryProvider interface {
	Snapshot(ctx context.Context) (*TemplateSnapshot, error)
}

// workflowNotifier is the slice of the notification collaborator the
// engine uses. Calls are fire-and-forget: failures are logged here and
// never abort a transition.
type workflowNotifier interface {
	SendStageAssigned(ctx context.Context, stage models.WorkflowStage) error
	SendCompleted(ctx context.Context, paper models.ConceptPaper) error
	SendReturned(ctx context.Context, stage models.WorkflowStage, remarks string) error
	SendRejected(ctx context.Context, stage models.WorkflowStage, reason string) error
}

// WorkflowService is the approval state machine. One stage per paper is
// IN_PROGRESS at a time; every transition commits stage, paper and audit
// rows together or not at all.
type WorkflowService struct {
	papers    paperStore
	stages    stageStore
	users     userDirectory
	registry  registryProvider
	deadlines *DeadlineCalculator
	notifier  workflowNotifier
	metrics   *MetricsService
	clock     Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithClock overrides the engine clock.
func WithClock(clock Clock) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithWorkflowNotifier sets the notification collaborator.
func WithWorkflowNotifier(n workflowNotifier) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithWorkflowMetrics sets the metrics collaborator.
func WithWorkflowMetrics(m *MetricsService) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.metrics = m
	}
}

// NewWorkflowService constructs the engine.
func NewWorkflowService(
	papers paperStore,
	stages stageStore,
	users userDirectory,
	registry registryProvider,
	deadlines *DeadlineCalculator,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...WorkflowServiceOption,
) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deadlines == nil {
		deadlines = NewDeadlineCalculator(1)
	}
	svc := &WorkflowService{
		papers:    papers,
		stages:    stages,
		users:     users,
		registry:  registry,
		deadlines: deadlines,
		validator: validate,
		logger:    logger,
		clock:     SystemClock(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreatePaper persists a new paper and immediately initializes its
// workflow from the current registry snapshot.
func (s *WorkflowService) CreatePaper(ctx context.Context, req dto.CreatePaperRequest, actor *models.JWTClaims) (*dto.PaperDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid paper payload")
	}

	paper := &models.ConceptPaper{
		Title:            strings.TrimSpace(req.Title),
		RequisitionerID:  actor.UserID,
		Status:           models.PaperStatusPending,
		StudentsInvolved: req.StudentsInvolved,
		DeadlineDate:     req.DeadlineDate,
		SubmittedAt:      s.clock.Now(),
	}
	if err := s.papers.Create(ctx, paper); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create concept paper")
	}

	if err := s.Initialize(ctx, paper.ID, actor); err != nil {
		return nil, err
	}
	return s.GetDetail(ctx, paper.ID)
}

// Initialize materializes the paper's stage set from the registry: skip
// predicates are evaluated against the paper context, surviving templates
// are compacted into dense orders 1..N, the first stage starts now with a
// snapshotted deadline, and every skip leaves a stage_skipped audit entry.
func (s *WorkflowService) Initialize(ctx context.Context, paperID string, actor *models.JWTClaims) error {
	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "concept paper not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load concept paper")
	}
	if paper.Status != models.PaperStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "workflow already initialized for this paper")
	}

	snapshot, err := s.registry.Snapshot(ctx)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	actorID := actorIDOf(actor)
	paperCtx := paper.Context()

	audits := []models.AuditLogEntry{{
		ConceptPaperID: paper.ID,
		UserID:         actorID,
		Action:         models.AuditActionWorkflowInitialized,
		Remarks:        "workflow initialized",
	}}

	stages := make([]models.WorkflowStage, 0, len(snapshot.Templates))
	for i := range snapshot.Templates {
		tpl := snapshot.Templates[i]
		if tpl.SkipCondition.Skip(paperCtx) {
			name := tpl.Name
			audits = append(audits, models.AuditLogEntry{
				ConceptPaperID: paper.ID,
				UserID:         actorID,
				Action:         models.AuditActionStageSkipped,
				StageName:      &name,
				Remarks:        tpl.SkipCondition.Reason(),
				Metadata: marshalMetadata(map[string]interface{}{
					"skip_condition": string(tpl.SkipCondition),
					"template_order": tpl.StageOrder,
				}),
			})
			continue
		}

		stage := models.WorkflowStage{
			ConceptPaperID: paper.ID,
			StageName:      tpl.Name,
			StageOrder:     len(stages) + 1,
			AssignedRole:   tpl.Role,
			Status:         models.StageStatusPending,
		}
		assignee, err := s.users.FindActiveByRole(ctx, tpl.Role)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve stage assignee")
		}
		if assignee != nil {
			stage.AssignedUserID = &assignee.ID
		}
		stages = append(stages, stage)
	}
	if len(stages) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "every registry template was skipped for this paper")
	}

	first := &stages[0]
	first.Status = models.StageStatusInProgress
	first.StartedAt = &now
	deadline := s.deadlines.ForStageName(snapshot, first.StageName, now)
	first.Deadline = &deadline

	if err := s.stages.InitializeWorkflow(ctx, repository.InitializeWorkflowParams{
		PaperID: paper.ID,
		Stages:  stages,
		Audits:  audits,
		Now:     now,
	}); err != nil {
		return err
	}

	s.recordTransition("initialize")
	s.notifyAssigned(ctx, stages[0])
	return nil
}

// Advance completes an IN_PROGRESS stage. The next stage (by order) opens
// with a freshly computed deadline; when none exists the paper completes.
func (s *WorkflowService) Advance(ctx context.Context, stageID, remarks string, actor *models.JWTClaims) (*dto.PaperDetail, error) {
	stage, err := s.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.Status != models.StageStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("stage %q is %s, only an in-progress stage can be advanced", stage.StageName, stage.Status))
	}

	snapshot, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.stages.AdvanceStage(ctx, repository.TransitionParams{
		StageID: stageID,
		ActorID: actorIDOf(actor),
		Remarks: strings.TrimSpace(remarks),
		Now:     s.clock.Now(),
		DeadlineFor: func(stageName string, start time.Time) time.Time {
			return s.deadlines.ForStageName(snapshot, stageName, start)
		},
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition("advance")
	if result.PaperCompleted {
		s.notifyCompleted(ctx, stage.ConceptPaperID)
	} else if result.NextStage != nil {
		s.notifyAssigned(ctx, *result.NextStage)
	}
	return s.GetDetail(ctx, stage.ConceptPaperID)
}

// ReturnToPrevious sends an IN_PROGRESS stage back to its predecessor.
// Remarks are mandatory; the first stage has nothing to return to. The
// reopened stage gets a fresh deadline window starting now.
func (s *WorkflowService) ReturnToPrevious(ctx context.Context, stageID, remarks string, actor *models.JWTClaims) (*dto.PaperDetail, error) {
	remarks = strings.TrimSpace(remarks)
	if remarks == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "remarks are required when returning a stage")
	}

	stage, err := s.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.Status != models.StageStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("stage %q is %s, only an in-progress stage can be returned", stage.StageName, stage.Status))
	}
	if stage.StageOrder <= 1 {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "the first stage cannot be returned")
	}

	snapshot, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.stages.ReturnStage(ctx, repository.TransitionParams{
		StageID: stageID,
		ActorID: actorIDOf(actor),
		Remarks: remarks,
		Now:     s.clock.Now(),
		DeadlineFor: func(stageName string, start time.Time) time.Time {
			return s.deadlines.ForStageName(snapshot, stageName, start)
		},
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition("return")
	s.notifyReturned(ctx, result.ReturnedStage, remarks)
	return s.GetDetail(ctx, stage.ConceptPaperID)
}

// Reject terminally rejects the paper at its current stage.
func (s *WorkflowService) Reject(ctx context.Context, stageID, reason string, actor *models.JWTClaims) (*dto.PaperDetail, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required when rejecting a stage")
	}

	stage, err := s.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.Status != models.StageStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("stage %q is %s, only an in-progress stage can be rejected", stage.StageName, stage.Status))
	}

	rejected, err := s.stages.RejectStage(ctx, repository.TransitionParams{
		StageID: stageID,
		ActorID: actorIDOf(actor),
		Remarks: reason,
		Now:     s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition("reject")
	s.notifyRejected(ctx, *rejected, reason)
	return s.GetDetail(ctx, stage.ConceptPaperID)
}

// Reassign hands a non-terminal stage to another active user holding the
// stage's role. Inactive targets and role mismatches are distinguished in
// the error message.
func (s *WorkflowService) Reassign(ctx context.Context, stageID, newUserID string, actor *models.JWTClaims) (*models.WorkflowStage, error) {
	stage, err := s.loadStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if !stage.Status.Assignable() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("stage %q is %s and can no longer be reassigned", stage.StageName, stage.Status))
	}

	target, err := s.users.GetByID(ctx, newUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target user")
	}
	if !target.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidAssignment, "target user is inactive")
	}
	if target.Role != stage.AssignedRole {
		return nil, appErrors.Clone(appErrors.ErrInvalidAssignment,
			fmt.Sprintf("target role %s does not match stage role %s", target.Role, stage.AssignedRole))
	}

	updated, err := s.stages.ReassignStage(ctx, repository.ReassignParams{
		StageID:   stageID,
		NewUserID: newUserID,
		ActorID:   actorIDOf(actor),
		Now:       s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition("reassign")
	if updated.Status == models.StageStatusInProgress {
		s.notifyAssigned(ctx, *updated)
	}
	return updated, nil
}

// GetDetail returns the paper with its ordered stages.
func (s *WorkflowService) GetDetail(ctx context.Context, paperID string) (*dto.PaperDetail, error) {
	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "concept paper not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load concept paper")
	}
	stages, err := s.stages.ListByPaper(ctx, paperID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow stages")
	}
	return &dto.PaperDetail{Paper: *paper, Stages: stages}, nil
}

// List returns papers matching the query; non-admin actors only see their
// own submissions.
func (s *WorkflowService) List(ctx context.Context, query dto.PaperQuery, actor *models.JWTClaims) ([]models.ConceptPaper, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.PaperFilter{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if actor.IsAdmin() {
		filter.RequisitionerID = query.RequisitionerID
	} else {
		filter.RequisitionerID = actor.UserID
	}
	papers, err := s.papers.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list concept papers")
	}
	return papers, nil
}

func (s *WorkflowService) loadStage(ctx context.Context, stageID string) (*models.WorkflowStage, error) {
	stage, err := s.stages.GetByID(ctx, stageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow stage not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow stage")
	}
	return stage, nil
}

func (s *WorkflowService) recordTransition(action string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(action)
	}
}

func (s *WorkflowService) notifyAssigned(ctx context.Context, stage models.WorkflowStage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendStageAssigned(ctx, stage); err != nil {
		s.logger.Warn("stage assignment notification failed", zap.String("stage_id", stage.ID), zap.Error(err))
	}
}

func (s *WorkflowService) notifyCompleted(ctx context.Context, paperID string) {
	if s.notifier == nil {
		return
	}
	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		s.logger.Warn("completed paper lookup for notification failed", zap.String("paper_id", paperID), zap.Error(err))
		return
	}
	if err := s.notifier.SendCompleted(ctx, *paper); err != nil {
		s.logger.Warn("paper completion notification failed", zap.String("paper_id", paperID), zap.Error(err))
	}
}

func (s *WorkflowService) notifyReturned(ctx context.Context, stage models.WorkflowStage, remarks string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendReturned(ctx, stage, remarks); err != nil {
		s.logger.Warn("stage return notification failed", zap.String("stage_id", stage.ID), zap.Error(err))
	}
}

func (s *WorkflowService) notifyRejected(ctx context.Context, stage models.WorkflowStage, reason string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendRejected(ctx, stage, reason); err != nil {
		s.logger.Warn("stage rejection notification failed", zap.String("stage_id", stage.ID), zap.Error(err))
	}
}

func actorIDOf(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}

func marshalMetadata(v map[string]interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
