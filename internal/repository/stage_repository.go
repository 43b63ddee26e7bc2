package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cptrack/cptrack-api/internal/models"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
)

// StageRepository persists workflow stages and owns the multi-row
// transactions behind every stage transition. Each transition locks the
// stage row (SELECT ... FOR UPDATE), re-checks its status under the lock,
// mutates stage + paper together and writes the audit entries in the same
// transaction, so the one-InProgress-stage-per-paper invariant holds at
// every commit.
type StageRepository struct {
	db *sqlx.DB
}

// NewStageRepository constructs the repository.
func NewStageRepository(db *sqlx.DB) *StageRepository {
	return &StageRepository{db: db}
}

const stageColumns = `id, concept_paper_id, stage_name, stage_order, assigned_role, assigned_user_id,
       status, started_at, completed_at, deadline, remarks, created_at, updated_at`

// DeadlineFn resolves the deadline for a stage that starts at the given
// instant. Transitions receive it as a closure over the registry snapshot
// taken at the start of the operation, so an admin editing templates
// mid-flight cannot shift decisions inside the transaction.
type DeadlineFn func(stageName string, start time.Time) time.Time

// GetByID fetches a stage by identifier.
func (r *StageRepository) GetByID(ctx context.Context, id string) (*models.WorkflowStage, error) {
	query := `SELECT ` + stageColumns + ` FROM workflow_stages WHERE id = $1`
	var stage models.WorkflowStage
	if err := r.db.GetContext(ctx, &stage, query, id); err != nil {
		return nil, err
	}
	return &stage, nil
}

// ListByPaper returns the paper's stages in stage order.
func (r *StageRepository) ListByPaper(ctx context.Context, paperID string) ([]models.WorkflowStage, error) {
	query := `SELECT ` + stageColumns + ` FROM workflow_stages WHERE concept_paper_id = $1 ORDER BY stage_order ASC`
	var stages []models.WorkflowStage
	if err := r.db.SelectContext(ctx, &stages, query, paperID); err != nil {
		return nil, fmt.Errorf("list stages for paper %s: %w", paperID, err)
	}
	return stages, nil
}

// ListOverdue returns open stages whose deadline has passed.
func (r *StageRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.WorkflowStage, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + stageColumns + ` FROM workflow_stages
	WHERE deadline IS NOT NULL AND deadline < $1 AND status IN ($2, $3)
	ORDER BY deadline ASC LIMIT $4`
	var stages []models.WorkflowStage
	if err := r.db.SelectContext(ctx, &stages, query, now,
		models.StageStatusPending, models.StageStatusInProgress, limit); err != nil {
		return nil, fmt.Errorf("list overdue stages: %w", err)
	}
	return stages, nil
}

// ListAffectedByUser returns non-terminal stages assigned to the user,
// paired with their papers.
func (r *StageRepository) ListAffectedByUser(ctx context.Context, userID string) ([]models.AffectedStage, error) {
	const query = `SELECT s.id AS stage_id, p.id AS paper_id
	FROM workflow_stages s
	JOIN concept_papers p ON p.id = s.concept_paper_id
	WHERE s.assigned_user_id = $1 AND s.status IN ($2, $3)
	ORDER BY p.submitted_at ASC, s.stage_order ASC`

	var refs []struct {
		StageID string `db:"stage_id"`
		PaperID string `db:"paper_id"`
	}
	if err := r.db.SelectContext(ctx, &refs, query, userID,
		models.StageStatusPending, models.StageStatusInProgress); err != nil {
		return nil, fmt.Errorf("list affected stages: %w", err)
	}

	affected := make([]models.AffectedStage, 0, len(refs))
	for _, ref := range refs {
		var stage models.WorkflowStage
		if err := r.db.GetContext(ctx, &stage, `SELECT `+stageColumns+` FROM workflow_stages WHERE id = $1`, ref.StageID); err != nil {
			return nil, fmt.Errorf("load affected stage %s: %w", ref.StageID, err)
		}
		var paper models.ConceptPaper
		if err := r.db.GetContext(ctx, &paper, `SELECT `+paperColumns+` FROM concept_papers WHERE id = $1`, ref.PaperID); err != nil {
			return nil, fmt.Errorf("load affected paper %s: %w", ref.PaperID, err)
		}
		affected = append(affected, models.AffectedStage{Stage: stage, Paper: paper})
	}
	return affected, nil
}

// InitializeWorkflowParams carries the pre-built stage set for a paper.
// The service materializes templates (skip evaluation, dense renumbering,
// first-stage deadline) before calling; the repository only guarantees
// atomicity and the PENDING precondition on the paper.
type InitializeWorkflowParams struct {
	PaperID string
	Stages  []models.WorkflowStage
	Audits  []models.AuditLogEntry
	Now     time.Time
}

// InitializeWorkflow creates the paper's full stage set atomically and
// moves the paper to IN_PROGRESS pointing at the first stage.
func (r *StageRepository) InitializeWorkflow(ctx context.Context, params InitializeWorkflowParams) (err error) {
	if len(params.Stages) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no stages to materialize")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin initialize transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var paperStatus models.PaperStatus
	if err = tx.GetContext(ctx, &paperStatus,
		`SELECT status FROM concept_papers WHERE id = $1 FOR UPDATE`, params.PaperID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "concept paper not found")
		}
		return fmt.Errorf("lock concept paper: %w", err)
	}
	if paperStatus != models.PaperStatusPending {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, "workflow already initialized for this paper")
		return err
	}

	const insertStage = `INSERT INTO workflow_stages
	(id, concept_paper_id, stage_name, stage_order, assigned_role, assigned_user_id, status, started_at, completed_at, deadline, remarks, created_at, updated_at)
	VALUES (:id, :concept_paper_id, :stage_name, :stage_order, :assigned_role, :assigned_user_id, :status, :started_at, :completed_at, :deadline, :remarks, :created_at, :updated_at)`
	for i := range params.Stages {
		stage := &params.Stages[i]
		if stage.ID == "" {
			stage.ID = uuid.NewString()
		}
		stage.CreatedAt = params.Now
		stage.UpdatedAt = params.Now
		if _, err = tx.NamedExecContext(ctx, insertStage, stage); err != nil {
			return fmt.Errorf("insert stage %q: %w", stage.StageName, err)
		}
	}

	firstStageID := params.Stages[0].ID
	if _, err = tx.ExecContext(ctx,
		`UPDATE concept_papers SET status = $1, current_stage_id = $2, updated_at = $3 WHERE id = $4`,
		models.PaperStatusInProgress, firstStageID, params.Now, params.PaperID); err != nil {
		return fmt.Errorf("activate concept paper: %w", err)
	}

	if err = insertAuditTx(ctx, tx, params.Audits, params.Now); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit initialize transaction: %w", err)
	}
	return nil
}

// TransitionParams identifies the stage being transitioned and the actor.
type TransitionParams struct {
	StageID     string
	ActorID     *string
	Remarks     string
	Now         time.Time
	DeadlineFor DeadlineFn
}

// AdvanceResult reports the outcome of an advance transition.
type AdvanceResult struct {
	CompletedStage models.WorkflowStage
	NextStage      *models.WorkflowStage
	PaperCompleted bool
}

// AdvanceStage completes an IN_PROGRESS stage and opens the next one, or
// completes the paper when no next stage exists. A stage found in any
// other status under the row lock means a concurrent request won the
// race, surfaced as ErrStaleState.
func (r *StageRepository) AdvanceStage(ctx context.Context, params TransitionParams) (result *AdvanceResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin advance transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stage, err := lockStage(ctx, tx, params.StageID)
	if err != nil {
		return nil, err
	}
	if stage.Status != models.StageStatusInProgress {
		err = appErrors.Clone(appErrors.ErrStaleState, "stage was advanced by a concurrent request")
		return nil, err
	}

	remarks := nullableString(params.Remarks)
	if _, err = tx.ExecContext(ctx,
		`UPDATE workflow_stages SET status = $1, completed_at = $2, remarks = $3, updated_at = $2 WHERE id = $4`,
		models.StageStatusCompleted, params.Now, remarks, stage.ID); err != nil {
		return nil, fmt.Errorf("complete stage: %w", err)
	}
	stage.Status = models.StageStatusCompleted
	stage.CompletedAt = &params.Now
	stage.Remarks = remarks

	audits := []models.AuditLogEntry{{
		ConceptPaperID: stage.ConceptPaperID,
		UserID:         params.ActorID,
		Action:         models.AuditActionStageCompleted,
		StageName:      &stage.StageName,
		Remarks:        params.Remarks,
	}}

	next, err := getStageByOrder(ctx, tx, stage.ConceptPaperID, stage.StageOrder+1)
	if err != nil {
		return nil, err
	}

	result = &AdvanceResult{CompletedStage: *stage}
	if next != nil {
		deadline := params.DeadlineFor(next.StageName, params.Now)
		if _, err = tx.ExecContext(ctx,
			`UPDATE workflow_stages SET status = $1, started_at = $2, deadline = $3, updated_at = $2 WHERE id = $4`,
			models.StageStatusInProgress, params.Now, deadline, next.ID); err != nil {
			return nil, fmt.Errorf("open next stage: %w", err)
		}
		next.Status = models.StageStatusInProgress
		next.StartedAt = &params.Now
		next.Deadline = &deadline
		if _, err = tx.ExecContext(ctx,
			`UPDATE concept_papers SET current_stage_id = $1, updated_at = $2 WHERE id = $3`,
			next.ID, params.Now, stage.ConceptPaperID); err != nil {
			return nil, fmt.Errorf("move paper pointer: %w", err)
		}
		result.NextStage = next
	} else {
		if _, err = tx.ExecContext(ctx,
			`UPDATE concept_papers SET status = $1, completed_at = $2, current_stage_id = NULL, updated_at = $2 WHERE id = $3`,
			models.PaperStatusCompleted, params.Now, stage.ConceptPaperID); err != nil {
			return nil, fmt.Errorf("complete paper: %w", err)
		}
		result.PaperCompleted = true
		audits = append(audits, models.AuditLogEntry{
			ConceptPaperID: stage.ConceptPaperID,
			UserID:         params.ActorID,
			Action:         models.AuditActionPaperCompleted,
			Remarks:        "all stages completed",
		})
	}

	if err = insertAuditTx(ctx, tx, audits, params.Now); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit advance transaction: %w", err)
	}
	return result, nil
}

// ReturnResult reports the outcome of a return transition.
type ReturnResult struct {
	ReturnedStage models.WorkflowStage
	ReopenedStage models.WorkflowStage
}

// ReturnStage marks an IN_PROGRESS stage RETURNED and reopens its
// predecessor with a fresh deadline window.
func (r *StageRepository) ReturnStage(ctx context.Context, params TransitionParams) (result *ReturnResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin return transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stage, err := lockStage(ctx, tx, params.StageID)
	if err != nil {
		return nil, err
	}
	if stage.Status != models.StageStatusInProgress {
		err = appErrors.Clone(appErrors.ErrStaleState, "stage was transitioned by a concurrent request")
		return nil, err
	}
	if stage.StageOrder <= 1 {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, "first stage has no predecessor to return to")
		return nil, err
	}

	prev, err := getStageByOrder(ctx, tx, stage.ConceptPaperID, stage.StageOrder-1)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		err = appErrors.Clone(appErrors.ErrInternal, "predecessor stage missing despite dense ordering")
		return nil, err
	}

	remarks := nullableString(params.Remarks)
	if _, err = tx.ExecContext(ctx,
		`UPDATE workflow_stages SET status = $1, remarks = $2, updated_at = $3 WHERE id = $4`,
		models.StageStatusReturned, remarks, params.Now, stage.ID); err != nil {
		return nil, fmt.Errorf("return stage: %w", err)
	}
	stage.Status = models.StageStatusReturned
	stage.Remarks = remarks

	deadline := params.DeadlineFor(prev.StageName, params.Now)
	if _, err = tx.ExecContext(ctx,
		`UPDATE workflow_stages SET status = $1, started_at = $2, completed_at = NULL, deadline = $3, updated_at = $2 WHERE id = $4`,
		models.StageStatusInProgress, params.Now, deadline, prev.ID); err != nil {
		return nil, fmt.Errorf("reopen previous stage: %w", err)
	}
	prev.Status = models.StageStatusInProgress
	prev.StartedAt = &params.Now
	prev.CompletedAt = nil
	prev.Deadline = &deadline

	if _, err = tx.ExecContext(ctx,
		`UPDATE concept_papers SET status = $1, current_stage_id = $2, updated_at = $3 WHERE id = $4`,
		models.PaperStatusInProgress, prev.ID, params.Now, stage.ConceptPaperID); err != nil {
		return nil, fmt.Errorf("move paper pointer: %w", err)
	}

	audits := []models.AuditLogEntry{{
		ConceptPaperID: stage.ConceptPaperID,
		UserID:         params.ActorID,
		Action:         models.AuditActionStageReturned,
		StageName:      &stage.StageName,
		Remarks:        params.Remarks,
		Metadata:       mustJSON(map[string]interface{}{"returned_to": prev.StageName}),
	}}
	if err = insertAuditTx(ctx, tx, audits, params.Now); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit return transaction: %w", err)
	}
	return &ReturnResult{ReturnedStage: *stage, ReopenedStage: *prev}, nil
}

// RejectStage terminally rejects the stage and its paper.
func (r *StageRepository) RejectStage(ctx context.Context, params TransitionParams) (rejected *models.WorkflowStage, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reject transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stage, err := lockStage(ctx, tx, params.StageID)
	if err != nil {
		return nil, err
	}
	if stage.Status != models.StageStatusInProgress {
		err = appErrors.Clone(appErrors.ErrStaleState, "stage was transitioned by a concurrent request")
		return nil, err
	}

	remarks := nullableString(params.Remarks)
	if _, err = tx.ExecContext(ctx,
		`UPDATE workflow_stages SET status = $1, remarks = $2, updated_at = $3 WHERE id = $4`,
		models.StageStatusRejected, remarks, params.Now, stage.ID); err != nil {
		return nil, fmt.Errorf("reject stage: %w", err)
	}
	stage.Status = models.StageStatusRejected
	stage.Remarks = remarks

	if _, err = tx.ExecContext(ctx,
		`UPDATE concept_papers SET status = $1, current_stage_id = NULL, updated_at = $2 WHERE id = $3`,
		models.PaperStatusRejected, params.Now, stage.ConceptPaperID); err != nil {
		return nil, fmt.Errorf("reject paper: %w", err)
	}

	audits := []models.AuditLogEntry{{
		ConceptPaperID: stage.ConceptPaperID,
		UserID:         params.ActorID,
		Action:         models.AuditActionStageRejected,
		StageName:      &stage.StageName,
		Remarks:        params.Remarks,
	}}
	if err = insertAuditTx(ctx, tx, audits, params.Now); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reject transaction: %w", err)
	}
	return stage, nil
}

// ReassignParams carries a validated single-stage reassignment.
type ReassignParams struct {
	StageID   string
	NewUserID string
	ActorID   *string
	Now       time.Time
}

// ReassignStage swaps the assigned user on a non-terminal stage.
func (r *StageRepository) ReassignStage(ctx context.Context, params ReassignParams) (stage *models.WorkflowStage, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reassign transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stage, err = lockStage(ctx, tx, params.StageID)
	if err != nil {
		return nil, err
	}
	if !stage.Status.Assignable() {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, "stage is no longer assignable")
		return nil, err
	}

	var oldUserID interface{}
	if stage.AssignedUserID != nil {
		oldUserID = *stage.AssignedUserID
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE workflow_stages SET assigned_user_id = $1, updated_at = $2 WHERE id = $3`,
		params.NewUserID, params.Now, stage.ID); err != nil {
		return nil, fmt.Errorf("reassign stage: %w", err)
	}
	stage.AssignedUserID = &params.NewUserID

	audits := []models.AuditLogEntry{{
		ConceptPaperID: stage.ConceptPaperID,
		UserID:         params.ActorID,
		Action:         models.AuditActionStageReassigned,
		StageName:      &stage.StageName,
		Remarks:        "stage reassigned",
		Metadata:       mustJSON(map[string]interface{}{"old_user_id": oldUserID, "new_user_id": params.NewUserID}),
	}}
	if err = insertAuditTx(ctx, tx, audits, params.Now); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reassign transaction: %w", err)
	}
	return stage, nil
}

func lockStage(ctx context.Context, tx *sqlx.Tx, stageID string) (*models.WorkflowStage, error) {
	query := `SELECT ` + stageColumns + ` FROM workflow_stages WHERE id = $1 FOR UPDATE`
	var stage models.WorkflowStage
	if err := tx.GetContext(ctx, &stage, query, stageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow stage not found")
		}
		return nil, fmt.Errorf("lock stage: %w", err)
	}
	return &stage, nil
}

func getStageByOrder(ctx context.Context, tx *sqlx.Tx, paperID string, order int) (*models.WorkflowStage, error) {
	query := `SELECT ` + stageColumns + ` FROM workflow_stages WHERE concept_paper_id = $1 AND stage_order = $2`
	var stage models.WorkflowStage
	if err := tx.GetContext(ctx, &stage, query, paperID, order); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load stage at order %d: %w", order, err)
	}
	return &stage, nil
}

func insertAuditTx(ctx context.Context, tx *sqlx.Tx, entries []models.AuditLogEntry, now time.Time) error {
	const query = `INSERT INTO audit_log_entries
	(id, concept_paper_id, user_id, action, stage_name, remarks, metadata, created_at)
	VALUES (:id, :concept_paper_id, :user_id, :action, :stage_name, :remarks, :metadata, :created_at)`
	for i := range entries {
		entry := entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
			return fmt.Errorf("insert audit entry %s: %w", entry.Action, err)
		}
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mustJSON(v map[string]interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
