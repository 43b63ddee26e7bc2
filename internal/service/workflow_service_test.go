package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/models"
	"github.com/cptrack/cptrack-api/internal/repository"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
)

var testInstant = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// workflowStore is an in-memory double faithful to the repository's
// transition semantics: status re-checks, dense orders, audit rows.
type workflowStore struct {
	papers map[string]*models.ConceptPaper
	stages map[string]*models.WorkflowStage
	audits []models.AuditLogEntry
	seq    int
}

func newWorkflowStore() *workflowStore {
	return &workflowStore{
		papers: make(map[string]*models.ConceptPaper),
		stages: make(map[string]*models.WorkflowStage),
	}
}

func (s *workflowStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *workflowStore) Create(_ context.Context, paper *models.ConceptPaper) error {
	if paper.ID == "" {
		paper.ID = s.nextID("paper")
	}
	cp := *paper
	s.papers[paper.ID] = &cp
	return nil
}

func (s *workflowStore) GetByID(_ context.Context, id string) (*models.ConceptPaper, error) {
	paper, ok := s.papers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *paper
	return &cp, nil
}

func (s *workflowStore) List(_ context.Context, filter models.PaperFilter) ([]models.ConceptPaper, error) {
	var out []models.ConceptPaper
	for _, paper := range s.papers {
		if filter.RequisitionerID != "" && paper.RequisitionerID != filter.RequisitionerID {
			continue
		}
		out = append(out, *paper)
	}
	return out, nil
}

func (s *workflowStore) stageByID(id string) (*models.WorkflowStage, error) {
	stage, ok := s.stages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stage, nil
}

func (s *workflowStore) GetStageByID(_ context.Context, id string) (*models.WorkflowStage, error) {
	stage, err := s.stageByID(id)
	if err != nil {
		return nil, err
	}
	cp := *stage
	return &cp, nil
}

func (s *workflowStore) ListByPaper(_ context.Context, paperID string) ([]models.WorkflowStage, error) {
	var out []models.WorkflowStage
	for _, stage := range s.stages {
		if stage.ConceptPaperID == paperID {
			out = append(out, *stage)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageOrder < out[j].StageOrder })
	return out, nil
}

func (s *workflowStore) stageAtOrder(paperID string, order int) *models.WorkflowStage {
	for _, stage := range s.stages {
		if stage.ConceptPaperID == paperID && stage.StageOrder == order {
			return stage
		}
	}
	return nil
}

func (s *workflowStore) InitializeWorkflow(_ context.Context, params repository.InitializeWorkflowParams) error {
	paper, ok := s.papers[params.PaperID]
	if !ok {
		return sql.ErrNoRows
	}
	if paper.Status != models.PaperStatusPending {
		return appErrors.ErrInvalidTransition
	}
	for i := range params.Stages {
		stage := params.Stages[i]
		stage.ID = s.nextID("stage")
		s.stages[stage.ID] = &stage
		if stage.StageOrder == 1 {
			paper.CurrentStageID = &s.stages[stage.ID].ID
		}
	}
	paper.Status = models.PaperStatusInProgress
	s.audits = append(s.audits, params.Audits...)
	return nil
}

func (s *workflowStore) AdvanceStage(_ context.Context, params repository.TransitionParams) (*repository.AdvanceResult, error) {
	stage, err := s.stageByID(params.StageID)
	if err != nil {
		return nil, err
	}
	if stage.Status != models.StageStatusInProgress {
		return nil, appErrors.ErrStaleState
	}
	paper := s.papers[stage.ConceptPaperID]

	now := params.Now
	stage.Status = models.StageStatusCompleted
	stage.CompletedAt = &now
	if params.Remarks != "" {
		stage.Remarks = &params.Remarks
	}
	s.audits = append(s.audits, models.AuditLogEntry{
		ConceptPaperID: stage.ConceptPaperID,
		UserID:         params.ActorID,
		Action:         models.AuditActionStageCompleted,
		StageName:      &stage.StageName,
	})

	result := &repository.AdvanceResult{CompletedStage: *stage}
	next := s.stageAtOrder(stage.ConceptPaperID, stage.StageOrder+1)
	if next == nil {
		paper.Status = models.PaperStatusCompleted
		paper.CompletedAt = &now
		paper.CurrentStageID = nil
		result.PaperCompleted = true
		s.audits = append(s.audits, models.AuditLogEntry{
			ConceptPaperID: stage.ConceptPaperID,
			UserID:         params.ActorID,
			Action:         models.AuditActionPaperCompleted,
		})
		return result, nil
	}

	next.Status = models.StageStatusInProgress
	next.StartedAt = &now
	deadline := params.DeadlineFor(next.StageName, now)
	next.Deadline = &deadline
	paper.CurrentStageID = &next.ID
	cp := *next
	result.NextStage = &cp
	return result, nil
}

func (s *workflowStore) ReturnStage(_ context.Context, params repository.TransitionParams) (*repository.ReturnResult, error) {
	stage, err := s.stageByID(params.StageID)
	if err != nil {
		return nil, err
	}
	if stage.Status != models.StageStatusInProgress {
		return nil, appErrors.ErrStaleState
	}
	if stage.StageOrder <= 1 {
		return nil, appErrors.ErrInvalidTransition
	}
	paper := s.papers[stage.ConceptPaperID]
	previous := s.stageAtOrder(stage.ConceptPaperID, stage.StageOrder-1)

	now := params.Now
	stage.Status = models.StageStatusReturned
	stage.Remarks = &params.Remarks

	previous.Status = models.StageStatusInProgress
	previous.StartedAt = &now
	previous.CompletedAt = nil
	deadline := params.DeadlineFor(previous.StageName, now)
	previous.Deadline = &deadline

	paper.CurrentStageID = &previous.ID
	paper.Status = models.PaperStatusInProgress

	s.audits = append(s.audits, models.AuditLogEntry{
		ConceptPaperID: stage.ConceptPaperID,
		UserID:         params.ActorID,
		Action:         models.AuditActionStageReturned,
		StageName:      &stage.StageName,
		Remarks:        params.Remarks,
	})
	return &repository.ReturnResult{ReturnedStage: *stage, ReopenedStage: *previous}, nil
}

func (s *workflowStore) RejectStage(_ context.Context, params repository.TransitionParams) (*models.WorkflowStage, error) {
	stage, err := s.stageByID(params.StageID)
	if err != nil {
		return nil, err
	}
	if stage.Status != models.StageStatusInProgress {
		return nil, appErrors.ErrStaleState
	}
	paper := s.papers[stage.ConceptPaperID]

	stage.Status = models.StageStatusRejected
	stage.Remarks = &params.Remarks
	paper.Status = models.PaperStatusRejected
	paper.CurrentStageID = nil

	s.audits = append(s.audits, models.AuditLogEntry{
		ConceptPaperID: stage.ConceptPaperID,
		UserID:         params.ActorID,
		Action:         models.AuditActionStageRejected,
		StageName:      &stage.StageName,
		Remarks:        params.Remarks,
	})
	cp := *stage
	return &cp, nil
}

func (s *workflowStore) ReassignStage(_ context.Context, params repository.ReassignParams) (*models.WorkflowStage, error) {
	stage, err := s.stageByID(params.StageID)
	if err != nil {
		return nil, err
	}
	if !stage.Status.Assignable() {
		return nil, appErrors.ErrInvalidTransition
	}
	stage.AssignedUserID = &params.NewUserID
	s.audits = append(s.audits, models.AuditLogEntry{
		ConceptPaperID: stage.ConceptPaperID,
		UserID:         params.ActorID,
		Action:         models.AuditActionStageReassigned,
		StageName:      &stage.StageName,
	})
	cp := *stage
	return &cp, nil
}

// stageStoreAdapter renames GetStageByID to the interface's GetByID so the
// same store can also serve as the paper store.
type stageStoreAdapter struct{ *workflowStore }

func (a stageStoreAdapter) GetByID(ctx context.Context, id string) (*models.WorkflowStage, error) {
	return a.workflowStore.GetStageByID(ctx, id)
}

type fakeDirectory struct {
	users map[string]*models.User
}

func (d *fakeDirectory) GetByID(_ context.Context, id string) (*models.User, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *user
	return &cp, nil
}

func (d *fakeDirectory) FindActiveByRole(_ context.Context, role models.UserRole) (*models.User, error) {
	var candidates []*models.User
	for _, user := range d.users {
		if user.Role == role && user.Active {
			candidates = append(candidates, user)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	cp := *candidates[0]
	return &cp, nil
}

func (d *fakeDirectory) ListActiveByRole(_ context.Context, role models.UserRole) ([]models.User, error) {
	var out []models.User
	for _, user := range d.users {
		if user.Role == role && user.Active {
			out = append(out, *user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type staticRegistry struct {
	templates []models.StageTemplate
}

func (r *staticRegistry) Snapshot(context.Context) (*TemplateSnapshot, error) {
	return &TemplateSnapshot{Templates: r.templates}, nil
}

type recordingNotifier struct {
	assigned  []models.WorkflowStage
	completed []models.ConceptPaper
	returned  []models.WorkflowStage
	rejected  []models.WorkflowStage
}

func (n *recordingNotifier) SendStageAssigned(_ context.Context, stage models.WorkflowStage) error {
	n.assigned = append(n.assigned, stage)
	return nil
}

func (n *recordingNotifier) SendCompleted(_ context.Context, paper models.ConceptPaper) error {
	n.completed = append(n.completed, paper)
	return nil
}

func (n *recordingNotifier) SendReturned(_ context.Context, stage models.WorkflowStage, _ string) error {
	n.returned = append(n.returned, stage)
	return nil
}

func (n *recordingNotifier) SendRejected(_ context.Context, stage models.WorkflowStage, _ string) error {
	n.rejected = append(n.rejected, stage)
	return nil
}

func reviewTemplates() []models.StageTemplate {
	defs := []struct {
		name string
		role models.UserRole
		days float64
		skip models.SkipCondition
	}{
		{"SPS Review", models.RoleSPS, 3, models.SkipConditionNoStudents},
		{"VP Acad Review", models.RoleVPAcad, 3, models.SkipConditionNone},
		{"Dean Endorsement", models.RoleDean, 2, models.SkipConditionNone},
		{"Finance Review", models.RoleFinance, 1.5, models.SkipConditionNone},
		{"President Approval", models.RolePresident, 5, models.SkipConditionNone},
	}
	templates := make([]models.StageTemplate, len(defs))
	for i, d := range defs {
		templates[i] = models.StageTemplate{
			ID:            fmt.Sprintf("tpl-%d", i+1),
			StageOrder:    i + 1,
			Name:          d.name,
			Role:          d.role,
			MaxDays:       d.days,
			SkipCondition: d.skip,
		}
	}
	return templates
}

type workflowFixture struct {
	store    *workflowStore
	users    *fakeDirectory
	notifier *recordingNotifier
	svc      *WorkflowService
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	store := newWorkflowStore()
	users := &fakeDirectory{users: map[string]*models.User{
		"u-sps":     {ID: "u-sps", Email: "sps@uni.edu", Role: models.RoleSPS, Active: true},
		"u-vp":      {ID: "u-vp", Email: "vp@uni.edu", Role: models.RoleVPAcad, Active: true},
		"u-dean":    {ID: "u-dean", Email: "dean@uni.edu", Role: models.RoleDean, Active: true},
		"u-finance": {ID: "u-finance", Email: "finance@uni.edu", Role: models.RoleFinance, Active: true},
		"u-pres":    {ID: "u-pres", Email: "president@uni.edu", Role: models.RolePresident, Active: true},
		"u-req":     {ID: "u-req", Email: "requisitioner@uni.edu", Role: models.RoleRequisitioner, Active: true},
	}}
	notifier := &recordingNotifier{}
	svc := NewWorkflowService(
		store,
		stageStoreAdapter{store},
		users,
		&staticRegistry{templates: reviewTemplates()},
		NewDeadlineCalculator(1),
		nil,
		nil,
		WithClock(FixedClock{Instant: testInstant}),
		WithWorkflowNotifier(notifier),
	)
	return &workflowFixture{store: store, users: users, notifier: notifier, svc: svc}
}

func requisitioner() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-req", Role: models.RoleRequisitioner}
}

func (f *workflowFixture) submit(t *testing.T, studentsInvolved bool) *dto.PaperDetail {
	t.Helper()
	detail, err := f.svc.CreatePaper(context.Background(), dto.CreatePaperRequest{
		Title:            "Research Symposium",
		StudentsInvolved: studentsInvolved,
	}, requisitioner())
	require.NoError(t, err)
	return detail
}

func (f *workflowFixture) auditActions(paperID string) []string {
	var actions []string
	for _, entry := range f.store.audits {
		if entry.ConceptPaperID == paperID {
			actions = append(actions, entry.Action)
		}
	}
	return actions
}

func TestCreatePaperMaterializesAllStages(t *testing.T) {
	f := newWorkflowFixture(t)

	detail := f.submit(t, true)

	require.Len(t, detail.Stages, 5)
	for i, stage := range detail.Stages {
		assert.Equal(t, i+1, stage.StageOrder)
	}
	first := detail.Stages[0]
	assert.Equal(t, "SPS Review", first.StageName)
	assert.Equal(t, models.StageStatusInProgress, first.Status)
	require.NotNil(t, first.Deadline)
	assert.Equal(t, testInstant.Add(72*time.Hour), *first.Deadline)
	require.NotNil(t, first.AssignedUserID)
	assert.Equal(t, "u-sps", *first.AssignedUserID)

	for _, stage := range detail.Stages[1:] {
		assert.Equal(t, models.StageStatusPending, stage.Status)
		assert.Nil(t, stage.Deadline, "pending stages must not carry deadlines")
	}

	assert.Equal(t, models.PaperStatusInProgress, detail.Paper.Status)
	require.NotNil(t, detail.Paper.CurrentStageID)
	assert.Equal(t, first.ID, *detail.Paper.CurrentStageID)

	require.Len(t, f.notifier.assigned, 1)
	assert.Equal(t, "SPS Review", f.notifier.assigned[0].StageName)
}

func TestCreatePaperSkipsStudentReviewWhenNoStudents(t *testing.T) {
	f := newWorkflowFixture(t)

	detail := f.submit(t, false)

	require.Len(t, detail.Stages, 4)
	assert.Equal(t, "VP Acad Review", detail.Stages[0].StageName)
	assert.Equal(t, models.StageStatusInProgress, detail.Stages[0].Status)
	for i, stage := range detail.Stages {
		assert.Equal(t, i+1, stage.StageOrder, "orders must stay dense after the skip")
		assert.NotEqual(t, "SPS Review", stage.StageName)
	}

	var skipped *models.AuditLogEntry
	for i := range f.store.audits {
		if f.store.audits[i].Action == models.AuditActionStageSkipped {
			skipped = &f.store.audits[i]
		}
	}
	require.NotNil(t, skipped, "skip must leave an audit entry")
	require.NotNil(t, skipped.StageName)
	assert.Equal(t, "SPS Review", *skipped.StageName)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(skipped.Metadata, &meta))
	assert.Equal(t, string(models.SkipConditionNoStudents), meta["skip_condition"])
}

func TestAdvanceOpensNextStageWithFreshDeadline(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	updated, err := f.svc.Advance(context.Background(), detail.Stages[0].ID, "looks good", requisitioner())
	require.NoError(t, err)

	first := updated.Stages[0]
	assert.Equal(t, models.StageStatusCompleted, first.Status)
	require.NotNil(t, first.CompletedAt)
	require.NotNil(t, first.Remarks)
	assert.Equal(t, "looks good", *first.Remarks)

	second := updated.Stages[1]
	assert.Equal(t, "VP Acad Review", second.StageName)
	assert.Equal(t, models.StageStatusInProgress, second.Status)
	require.NotNil(t, second.Deadline)
	assert.Equal(t, testInstant.Add(72*time.Hour), *second.Deadline)

	require.NotNil(t, updated.Paper.CurrentStageID)
	assert.Equal(t, second.ID, *updated.Paper.CurrentStageID)
}

func TestAdvanceUsesFractionalDayBudgets(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	current := detail
	var err error
	// Walk to Finance Review (order 4), whose budget is 1.5 days.
	for i := 0; i < 3; i++ {
		current, err = f.svc.Advance(context.Background(), current.Stages[i].ID, "", requisitioner())
		require.NoError(t, err)
	}

	finance := current.Stages[3]
	assert.Equal(t, "Finance Review", finance.StageName)
	require.NotNil(t, finance.Deadline)
	assert.Equal(t, testInstant.Add(36*time.Hour), *finance.Deadline)
}

func TestAdvanceLastStageCompletesPaper(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	current := detail
	var err error
	for i := range detail.Stages {
		current, err = f.svc.Advance(context.Background(), current.Stages[i].ID, "", requisitioner())
		require.NoError(t, err)
	}

	assert.Equal(t, models.PaperStatusCompleted, current.Paper.Status)
	require.NotNil(t, current.Paper.CompletedAt)
	assert.Nil(t, current.Paper.CurrentStageID)
	require.Len(t, f.notifier.completed, 1)

	actions := f.auditActions(current.Paper.ID)
	assert.Contains(t, actions, models.AuditActionPaperCompleted)
}

func TestAdvanceCompletedStageIsRejected(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	_, err := f.svc.Advance(context.Background(), detail.Stages[0].ID, "", requisitioner())
	require.NoError(t, err)

	_, err = f.svc.Advance(context.Background(), detail.Stages[0].ID, "", requisitioner())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestReturnRequiresRemarks(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	_, err := f.svc.ReturnToPrevious(context.Background(), detail.Stages[0].ID, "   ", requisitioner())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReturnFirstStageIsRejected(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	_, err := f.svc.ReturnToPrevious(context.Background(), detail.Stages[0].ID, "missing budget", requisitioner())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestReturnReopensPreviousStage(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	advanced, err := f.svc.Advance(context.Background(), detail.Stages[0].ID, "", requisitioner())
	require.NoError(t, err)

	returned, err := f.svc.ReturnToPrevious(context.Background(), advanced.Stages[1].ID, "needs detail", requisitioner())
	require.NoError(t, err)

	first := returned.Stages[0]
	assert.Equal(t, models.StageStatusInProgress, first.Status)
	assert.Nil(t, first.CompletedAt)
	require.NotNil(t, first.Deadline)
	assert.Equal(t, testInstant.Add(72*time.Hour), *first.Deadline, "reopened stage gets a fresh window")

	second := returned.Stages[1]
	assert.Equal(t, models.StageStatusReturned, second.Status)
	require.NotNil(t, second.Remarks)
	assert.Equal(t, "needs detail", *second.Remarks)

	require.NotNil(t, returned.Paper.CurrentStageID)
	assert.Equal(t, first.ID, *returned.Paper.CurrentStageID)
	require.Len(t, f.notifier.returned, 1)
}

func TestReturnThenAdvanceRoundTrip(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	advanced, err := f.svc.Advance(context.Background(), detail.Stages[0].ID, "", requisitioner())
	require.NoError(t, err)
	returned, err := f.svc.ReturnToPrevious(context.Background(), advanced.Stages[1].ID, "fix totals", requisitioner())
	require.NoError(t, err)

	again, err := f.svc.Advance(context.Background(), returned.Stages[0].ID, "fixed", requisitioner())
	require.NoError(t, err)

	assert.Equal(t, models.StageStatusCompleted, again.Stages[0].Status)
	assert.Equal(t, models.StageStatusInProgress, again.Stages[1].Status)
	require.NotNil(t, again.Paper.CurrentStageID)
	assert.Equal(t, again.Stages[1].ID, *again.Paper.CurrentStageID)
}

func TestRejectIsTerminal(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	rejected, err := f.svc.Reject(context.Background(), detail.Stages[0].ID, "out of scope", requisitioner())
	require.NoError(t, err)

	assert.Equal(t, models.PaperStatusRejected, rejected.Paper.Status)
	assert.Nil(t, rejected.Paper.CurrentStageID)
	assert.Equal(t, models.StageStatusRejected, rejected.Stages[0].Status)
	require.Len(t, f.notifier.rejected, 1)

	// Nothing is in progress anymore, so no further transition is legal.
	_, err = f.svc.Advance(context.Background(), detail.Stages[1].ID, "", requisitioner())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newWorkflowFixture(t)
	detail := f.submit(t, true)

	_, err := f.svc.Reject(context.Background(), detail.Stages[0].ID, "", requisitioner())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReassignValidatesTarget(t *testing.T) {
	f := newWorkflowFixture(t)
	f.users.users["u-sps-2"] = &models.User{ID: "u-sps-2", Email: "sps2@uni.edu", Role: models.RoleSPS, Active: true}
	f.users.users["u-sps-gone"] = &models.User{ID: "u-sps-gone", Email: "sps3@uni.edu", Role: models.RoleSPS, Active: false}
	detail := f.submit(t, true)
	stageID := detail.Stages[0].ID

	_, err := f.svc.Reassign(context.Background(), stageID, "u-dean", requisitioner())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidAssignment.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Reassign(context.Background(), stageID, "u-sps-gone", requisitioner())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidAssignment.Code, appErrors.FromError(err).Code)

	stage, err := f.svc.Reassign(context.Background(), stageID, "u-sps-2", requisitioner())
	require.NoError(t, err)
	require.NotNil(t, stage.AssignedUserID)
	assert.Equal(t, "u-sps-2", *stage.AssignedUserID)
}

func TestReassignTerminalStageIsRejected(t *testing.T) {
	f := newWorkflowFixture(t)
	f.users.users["u-sps-2"] = &models.User{ID: "u-sps-2", Email: "sps2@uni.edu", Role: models.RoleSPS, Active: true}
	detail := f.submit(t, true)

	_, err := f.svc.Advance(context.Background(), detail.Stages[0].ID, "", requisitioner())
	require.NoError(t, err)

	_, err = f.svc.Reassign(context.Background(), detail.Stages[0].ID, "u-sps-2", requisitioner())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestCreatePaperRequiresActor(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.svc.CreatePaper(context.Background(), dto.CreatePaperRequest{Title: "Anonymous"}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestListScopesNonAdminsToOwnPapers(t *testing.T) {
	f := newWorkflowFixture(t)
	f.submit(t, true)

	other := &models.ConceptPaper{ID: "paper-other", Title: "Other", RequisitionerID: "someone-else", Status: models.PaperStatusInProgress}
	f.store.papers[other.ID] = other

	papers, err := f.svc.List(context.Background(), dto.PaperQuery{}, requisitioner())
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "u-req", papers[0].RequisitionerID)

	admin := &models.JWTClaims{UserID: "u-admin", Role: models.RoleAdmin}
	papers, err = f.svc.List(context.Background(), dto.PaperQuery{}, admin)
	require.NoError(t, err)
	assert.Len(t, papers, 2)
}
