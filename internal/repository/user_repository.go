package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cptrack/cptrack-api/internal/models"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
)

// UserRepository persists users and owns the deactivate-with-reassignment
// transaction.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, full_name, role, active, created_at, updated_at`

// GetByID fetches a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindActiveByRole returns the first active holder of the role. Ordering
// by created_at then id makes role-based auto-assignment deterministic.
func (r *UserRepository) FindActiveByRole(ctx context.Context, role models.UserRole) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND active = TRUE ORDER BY created_at ASC, id ASC LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, role); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active user by role: %w", err)
	}
	return &user, nil
}

// ListActiveByRole returns every active holder of the role, for
// notification fan-out.
func (r *UserRepository) ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND active = TRUE ORDER BY created_at ASC, id ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, role); err != nil {
		return nil, fmt.Errorf("list active users by role: %w", err)
	}
	return users, nil
}

// StageReassignment is one validated stage handover applied during
// deactivation.
type StageReassignment struct {
	StageID   string
	NewUserID string
}

// DeactivateParams bundles the all-or-nothing deactivation input. The
// service validates every mapping entry (role match, active target,
// completeness) before calling.
type DeactivateParams struct {
	UserID        string
	ActorID       *string
	Reassignments []StageReassignment
	Now           time.Time
}

// DeactivateWithReassignments flips the user inactive and applies every
// stage reassignment in one transaction. The user's affected-stage set is
// re-read under lock; any drift from the caller's mapping aborts the whole
// operation, leaving the user active and no stage touched.
func (r *UserRepository) DeactivateWithReassignments(ctx context.Context, params DeactivateParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deactivate transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var active bool
	if err = tx.GetContext(ctx, &active,
		`SELECT active FROM users WHERE id = $1 FOR UPDATE`, params.UserID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return fmt.Errorf("lock user: %w", err)
	}
	if !active {
		err = appErrors.Clone(appErrors.ErrConflict, "user is already inactive")
		return err
	}

	var lockedStages []models.WorkflowStage
	lockQuery := `SELECT ` + stageColumns + ` FROM workflow_stages
	WHERE assigned_user_id = $1 AND status IN ($2, $3) ORDER BY id ASC FOR UPDATE`
	if err = tx.SelectContext(ctx, &lockedStages, lockQuery, params.UserID,
		models.StageStatusPending, models.StageStatusInProgress); err != nil {
		return fmt.Errorf("lock affected stages: %w", err)
	}

	mapping := make(map[string]string, len(params.Reassignments))
	for _, entry := range params.Reassignments {
		mapping[entry.StageID] = entry.NewUserID
	}
	if len(lockedStages) != len(mapping) {
		err = appErrors.Clone(appErrors.ErrStaleState, "affected stages changed since validation, retry the deactivation")
		return err
	}

	audits := make([]models.AuditLogEntry, 0, len(lockedStages))
	stagesPerPaper := make(map[string]int, len(lockedStages))
	for i := range lockedStages {
		stage := lockedStages[i]
		stagesPerPaper[stage.ConceptPaperID]++
		newUserID, ok := mapping[stage.ID]
		if !ok {
			err = appErrors.Clone(appErrors.ErrStaleState, "affected stages changed since validation, retry the deactivation")
			return err
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE workflow_stages SET assigned_user_id = $1, updated_at = $2 WHERE id = $3`,
			newUserID, params.Now, stage.ID); err != nil {
			return fmt.Errorf("reassign stage %s: %w", stage.ID, err)
		}
		stageName := stage.StageName
		audits = append(audits, models.AuditLogEntry{
			ConceptPaperID: stage.ConceptPaperID,
			UserID:         params.ActorID,
			Action:         models.AuditActionStageReassigned,
			StageName:      &stageName,
			Remarks:        "reassigned during user deactivation",
			Metadata: mustJSON(map[string]interface{}{
				"old_user_id": params.UserID,
				"new_user_id": newUserID,
				"reason":      "user_deactivated",
			}),
		})
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET active = FALSE, updated_at = $1 WHERE id = $2`,
		params.Now, params.UserID); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}

	// One user_deactivated entry per affected paper, so every touched
	// trail records why its stage changed hands.
	seenPapers := make(map[string]bool, len(stagesPerPaper))
	for i := range lockedStages {
		paperID := lockedStages[i].ConceptPaperID
		if seenPapers[paperID] {
			continue
		}
		seenPapers[paperID] = true
		audits = append(audits, models.AuditLogEntry{
			ConceptPaperID: paperID,
			UserID:         params.ActorID,
			Action:         models.AuditActionUserDeactivated,
			Remarks:        "assignee deactivated, stages reassigned",
			Metadata: mustJSON(map[string]interface{}{
				"deactivated_user_id": params.UserID,
				"reassigned_stages":   stagesPerPaper[paperID],
			}),
		})
	}

	if err = insertAuditTx(ctx, tx, audits, params.Now); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit deactivate transaction: %w", err)
	}
	return nil
}
