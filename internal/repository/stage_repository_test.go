package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptrack/cptrack-api/internal/models"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
)

var repoNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
	}
	return sqlxDB, mock, cleanup
}

func stageColumnsList() []string {
	return []string{
		"id", "concept_paper_id", "stage_name", "stage_order", "assigned_role", "assigned_user_id",
		"status", "started_at", "completed_at", "deadline", "remarks", "created_at", "updated_at",
	}
}

func stageRow(id, paperID, name string, order int, status models.StageStatus) *sqlmock.Rows {
	return sqlmock.NewRows(stageColumnsList()).
		AddRow(id, paperID, name, order, "DEAN", nil, string(status), nil, nil, nil, nil, repoNow, repoNow)
}

func fixedDeadline(_ string, start time.Time) time.Time {
	return start.Add(48 * time.Hour)
}

func TestAdvanceStageOpensNext(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStageRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("stage-1").
		WillReturnRows(stageRow("stage-1", "paper-1", "Dean Endorsement", 1, models.StageStatusInProgress))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_stages SET status = $1, completed_at = $2, remarks = $3, updated_at = $2 WHERE id = $4")).
		WithArgs(string(models.StageStatusCompleted), repoNow, nil, "stage-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("stage_order = $2")).
		WithArgs("paper-1", 2).
		WillReturnRows(stageRow("stage-2", "paper-1", "Finance Review", 2, models.StageStatusPending))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_stages SET status = $1, started_at = $2, deadline = $3, updated_at = $2 WHERE id = $4")).
		WithArgs(string(models.StageStatusInProgress), repoNow, repoNow.Add(48*time.Hour), "stage-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE concept_papers SET current_stage_id = $1, updated_at = $2 WHERE id = $3")).
		WithArgs("stage-2", repoNow, "paper-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.AdvanceStage(context.Background(), TransitionParams{
		StageID:     "stage-1",
		Now:         repoNow,
		DeadlineFor: fixedDeadline,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, result.CompletedStage.Status)
	require.NotNil(t, result.NextStage)
	assert.Equal(t, "stage-2", result.NextStage.ID)
	require.NotNil(t, result.NextStage.Deadline)
	assert.Equal(t, repoNow.Add(48*time.Hour), *result.NextStage.Deadline)
	assert.False(t, result.PaperCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceLastStageCompletesPaper(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStageRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("stage-9").
		WillReturnRows(stageRow("stage-9", "paper-1", "Final Documentation", 9, models.StageStatusInProgress))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_stages SET status = $1, completed_at = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("stage_order = $2")).
		WithArgs("paper-1", 10).
		WillReturnRows(sqlmock.NewRows(stageColumnsList()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE concept_papers SET status = $1, completed_at = $2, current_stage_id = NULL")).
		WithArgs(string(models.PaperStatusCompleted), repoNow, "paper-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.AdvanceStage(context.Background(), TransitionParams{
		StageID:     "stage-9",
		Now:         repoNow,
		DeadlineFor: fixedDeadline,
	})
	require.NoError(t, err)
	assert.True(t, result.PaperCompleted)
	assert.Nil(t, result.NextStage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceStageStaleUnderLock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStageRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("stage-1").
		WillReturnRows(stageRow("stage-1", "paper-1", "Dean Endorsement", 1, models.StageStatusCompleted))
	mock.ExpectRollback()

	_, err := repo.AdvanceStage(context.Background(), TransitionParams{
		StageID:     "stage-1",
		Now:         repoNow,
		DeadlineFor: fixedDeadline,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStaleState.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnFirstStageFails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStageRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("stage-1").
		WillReturnRows(stageRow("stage-1", "paper-1", "SPS Review", 1, models.StageStatusInProgress))
	mock.ExpectRollback()

	_, err := repo.ReturnStage(context.Background(), TransitionParams{
		StageID:     "stage-1",
		Remarks:     "go back",
		Now:         repoNow,
		DeadlineFor: fixedDeadline,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnStageReopensPredecessor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStageRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("stage-2").
		WillReturnRows(stageRow("stage-2", "paper-1", "Finance Review", 2, models.StageStatusInProgress))
	mock.ExpectQuery(regexp.QuoteMeta("stage_order = $2")).
		WithArgs("paper-1", 1).
		WillReturnRows(stageRow("stage-1", "paper-1", "Dean Endorsement", 1, models.StageStatusCompleted))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_stages SET status = $1, remarks = $2")).
		WithArgs(string(models.StageStatusReturned), "needs detail", repoNow, "stage-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("completed_at = NULL")).
		WithArgs(string(models.StageStatusInProgress), repoNow, repoNow.Add(48*time.Hour), "stage-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE concept_papers SET status = $1, current_stage_id = $2")).
		WithArgs(string(models.PaperStatusInProgress), "stage-1", repoNow, "paper-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.ReturnStage(context.Background(), TransitionParams{
		StageID:     "stage-2",
		Remarks:     "needs detail",
		Now:         repoNow,
		DeadlineFor: fixedDeadline,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusReturned, result.ReturnedStage.Status)
	assert.Equal(t, models.StageStatusInProgress, result.ReopenedStage.Status)
	require.NotNil(t, result.ReopenedStage.Deadline)
	assert.Equal(t, repoNow.Add(48*time.Hour), *result.ReopenedStage.Deadline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOverdueFiltersOpenStages(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStageRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("deadline < $1 AND status IN ($2, $3)")).
		WithArgs(repoNow, string(models.StageStatusPending), string(models.StageStatusInProgress), 10).
		WillReturnRows(stageRow("stage-1", "paper-1", "Dean Endorsement", 1, models.StageStatusInProgress))

	stages, err := repo.ListOverdue(context.Background(), repoNow, 10)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, "stage-1", stages[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
