package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/models"
	"github.com/cptrack/cptrack-api/internal/repository"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
)

type userStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	DeactivateWithReassignments(ctx context.Context, params repository.DeactivateParams) error
}

type affectedStageStore interface {
	ListAffectedByUser(ctx context.Context, userID string) ([]models.AffectedStage, error)
}

// UserService coordinates user deactivation and the stage handovers it
// forces.
type UserService struct {
	users  userStore
	stages affectedStageStore
	clock  Clock
	logger *zap.Logger
}

// UserOption customises UserService construction.
type UserOption func(*UserService)

// WithUserClock overrides the wall clock, used by tests.
func WithUserClock(clock Clock) UserOption {
	return func(s *UserService) {
		s.clock = clock
	}
}

// NewUserService constructs the service.
func NewUserService(users userStore, stages affectedStageStore, logger *zap.Logger, opts ...UserOption) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &UserService{users: users, stages: stages, clock: SystemClock(), logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// AffectedStages lists the non-terminal stages a deactivation of this user
// would strand. Admins call it before building the reassignment mapping.
func (s *UserService) AffectedStages(ctx context.Context, userID string) ([]models.AffectedStage, error) {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return nil, err
	}
	affected, err := s.stages.ListAffectedByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list affected stages")
	}
	return affected, nil
}

// DeactivateWithReassignment flips a user inactive after rehoming every
// stage they hold. The mapping must cover the affected-stage set exactly
// and every target must be an active holder of the stage's role; any
// defect rejects the whole request with nothing applied.
func (s *UserService) DeactivateWithReassignment(ctx context.Context, actor *models.JWTClaims, userID string, req dto.DeactivateUserRequest) error {
	if actor != nil && actor.UserID == userID {
		return appErrors.ErrSelfDeactivation
	}

	target, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !target.Active {
		return appErrors.Clone(appErrors.ErrConflict, "user is already inactive")
	}

	affected, err := s.stages.ListAffectedByUser(ctx, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list affected stages")
	}

	reassignments, err := s.buildReassignments(ctx, target, affected, req.Reassignments)
	if err != nil {
		return err
	}

	params := repository.DeactivateParams{
		UserID:        userID,
		Reassignments: reassignments,
		Now:           s.clock.Now().UTC(),
	}
	if actor != nil {
		actorID := actor.UserID
		params.ActorID = &actorID
	}
	if err := s.users.DeactivateWithReassignments(ctx, params); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}

	s.logger.Info("user deactivated",
		zap.String("user_id", userID),
		zap.Int("stages_reassigned", len(reassignments)),
	)
	return nil
}

// buildReassignments checks the mapping against the live affected-stage
// set and validates every target before anything is written.
func (s *UserService) buildReassignments(ctx context.Context, target *models.User, affected []models.AffectedStage, mapping map[string]string) ([]repository.StageReassignment, error) {
	byStage := make(map[string]models.AffectedStage, len(affected))
	for _, entry := range affected {
		byStage[entry.Stage.ID] = entry
	}

	for stageID := range mapping {
		if _, ok := byStage[stageID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stage %s is not assigned to this user", stageID))
		}
	}

	reassignments := make([]repository.StageReassignment, 0, len(affected))
	for _, entry := range affected {
		newUserID, ok := mapping[entry.Stage.ID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("missing reassignment for stage %s", entry.Stage.ID))
		}
		if newUserID == target.ID {
			return nil, appErrors.Clone(appErrors.ErrInvalidAssignment, "cannot reassign a stage to the user being deactivated")
		}
		replacement, err := s.loadUser(ctx, newUserID)
		if err != nil {
			return nil, err
		}
		if !replacement.Active {
			return nil, appErrors.Clone(appErrors.ErrInvalidAssignment, fmt.Sprintf("user %s is inactive", newUserID))
		}
		if replacement.Role != entry.Stage.AssignedRole {
			return nil, appErrors.Clone(appErrors.ErrInvalidAssignment,
				fmt.Sprintf("user %s holds role %s but stage %q requires %s", newUserID, replacement.Role, entry.Stage.StageName, entry.Stage.AssignedRole))
		}
		reassignments = append(reassignments, repository.StageReassignment{
			StageID:   entry.Stage.ID,
			NewUserID: newUserID,
		})
	}
	return reassignments, nil
}

func (s *UserService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("user %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
