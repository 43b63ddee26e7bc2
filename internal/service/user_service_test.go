package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/models"
	"github.com/cptrack/cptrack-api/internal/repository"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
)

type fakeUserStore struct {
	users       map[string]*models.User
	deactivated *repository.DeactivateParams
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *user
	return &cp, nil
}

func (s *fakeUserStore) DeactivateWithReassignments(_ context.Context, params repository.DeactivateParams) error {
	s.deactivated = &params
	s.users[params.UserID].Active = false
	return nil
}

type fakeAffectedStages struct {
	affected []models.AffectedStage
}

func (s *fakeAffectedStages) ListAffectedByUser(context.Context, string) ([]models.AffectedStage, error) {
	return s.affected, nil
}

func deactivationFixture() (*UserService, *fakeUserStore, *fakeAffectedStages) {
	users := &fakeUserStore{users: map[string]*models.User{
		"u-dean":    {ID: "u-dean", Role: models.RoleDean, Active: true},
		"u-dean-2":  {ID: "u-dean-2", Role: models.RoleDean, Active: true},
		"u-dean-x":  {ID: "u-dean-x", Role: models.RoleDean, Active: false},
		"u-finance": {ID: "u-finance", Role: models.RoleFinance, Active: true},
		"u-admin":   {ID: "u-admin", Role: models.RoleAdmin, Active: true},
	}}
	stages := &fakeAffectedStages{affected: []models.AffectedStage{
		{
			Stage: models.WorkflowStage{ID: "stage-1", StageName: "Dean Endorsement", AssignedRole: models.RoleDean, Status: models.StageStatusInProgress},
			Paper: models.ConceptPaper{ID: "paper-1"},
		},
		{
			Stage: models.WorkflowStage{ID: "stage-2", StageName: "Implementation Clearance", AssignedRole: models.RoleDean, Status: models.StageStatusPending},
			Paper: models.ConceptPaper{ID: "paper-2"},
		},
	}}
	svc := NewUserService(users, stages, nil, WithUserClock(FixedClock{Instant: testInstant}))
	return svc, users, stages
}

func adminActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-admin", Role: models.RoleAdmin}
}

func TestDeactivateRejectsSelf(t *testing.T) {
	svc, users, _ := deactivationFixture()

	err := svc.DeactivateWithReassignment(context.Background(), adminActor(), "u-admin", dto.DeactivateUserRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSelfDeactivation.Code, appErrors.FromError(err).Code)
	assert.True(t, users.users["u-admin"].Active)
}

func TestDeactivateRequiresCompleteMapping(t *testing.T) {
	svc, users, _ := deactivationFixture()

	err := svc.DeactivateWithReassignment(context.Background(), adminActor(), "u-dean", dto.DeactivateUserRequest{
		Reassignments: map[string]string{"stage-1": "u-dean-2"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.True(t, users.users["u-dean"].Active, "nothing may be applied on a partial mapping")
	assert.Nil(t, users.deactivated)
}

func TestDeactivateRejectsUnknownStageInMapping(t *testing.T) {
	svc, _, _ := deactivationFixture()

	err := svc.DeactivateWithReassignment(context.Background(), adminActor(), "u-dean", dto.DeactivateUserRequest{
		Reassignments: map[string]string{
			"stage-1":  "u-dean-2",
			"stage-2":  "u-dean-2",
			"stage-99": "u-dean-2",
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeactivateRejectsInactiveTarget(t *testing.T) {
	svc, _, _ := deactivationFixture()

	err := svc.DeactivateWithReassignment(context.Background(), adminActor(), "u-dean", dto.DeactivateUserRequest{
		Reassignments: map[string]string{
			"stage-1": "u-dean-x",
			"stage-2": "u-dean-2",
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidAssignment.Code, appErrors.FromError(err).Code)
}

func TestDeactivateRejectsRoleMismatch(t *testing.T) {
	svc, _, _ := deactivationFixture()

	err := svc.DeactivateWithReassignment(context.Background(), adminActor(), "u-dean", dto.DeactivateUserRequest{
		Reassignments: map[string]string{
			"stage-1": "u-finance",
			"stage-2": "u-dean-2",
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidAssignment.Code, appErrors.FromError(err).Code)
}

func TestDeactivateRejectsReassignmentToSameUser(t *testing.T) {
	svc, _, _ := deactivationFixture()

	err := svc.DeactivateWithReassignment(context.Background(), adminActor(), "u-dean", dto.DeactivateUserRequest{
		Reassignments: map[string]string{
			"stage-1": "u-dean",
			"stage-2": "u-dean-2",
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidAssignment.Code, appErrors.FromError(err).Code)
}

func TestDeactivateAppliesAllReassignments(t *testing.T) {
	svc, users, _ := deactivationFixture()

	err := svc.DeactivateWithReassignment(context.Background(), adminActor(), "u-dean", dto.DeactivateUserRequest{
		Reassignments: map[string]string{
			"stage-1": "u-dean-2",
			"stage-2": "u-dean-2",
		},
	})
	require.NoError(t, err)

	require.NotNil(t, users.deactivated)
	assert.Equal(t, "u-dean", users.deactivated.UserID)
	require.NotNil(t, users.deactivated.ActorID)
	assert.Equal(t, "u-admin", *users.deactivated.ActorID)
	assert.Len(t, users.deactivated.Reassignments, 2)
	assert.False(t, users.users["u-dean"].Active)
}

func TestDeactivateAlreadyInactiveConflicts(t *testing.T) {
	svc, _, stages := deactivationFixture()
	stages.affected = nil

	err := svc.DeactivateWithReassignment(context.Background(), adminActor(), "u-dean-x", dto.DeactivateUserRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDeactivateWithNoAffectedStages(t *testing.T) {
	svc, users, stages := deactivationFixture()
	stages.affected = nil

	err := svc.DeactivateWithReassignment(context.Background(), adminActor(), "u-dean", dto.DeactivateUserRequest{})
	require.NoError(t, err)
	assert.False(t, users.users["u-dean"].Active)
	assert.Empty(t, users.deactivated.Reassignments)
}

func TestAffectedStagesUnknownUser(t *testing.T) {
	svc, _, _ := deactivationFixture()

	_, err := svc.AffectedStages(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
