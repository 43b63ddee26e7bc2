package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptrack/cptrack-api/internal/models"
)

type staticOverdueStages struct {
	stages []models.WorkflowStage
}

func (s *staticOverdueStages) ListOverdue(context.Context, time.Time, int) ([]models.WorkflowStage, error) {
	return s.stages, nil
}

type staticOverduePapers struct {
	papers []models.ConceptPaper
}

func (s *staticOverduePapers) ListOverdue(context.Context, time.Time, int) ([]models.ConceptPaper, error) {
	return s.papers, nil
}

type fakeMarkers struct {
	set    map[string]struct{}
	setErr error
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{set: make(map[string]struct{})}
}

func (m *fakeMarkers) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.set[key]; ok {
		return false, nil
	}
	m.set[key] = struct{}{}
	return true, nil
}

func (m *fakeMarkers) Delete(_ context.Context, key string) error {
	delete(m.set, key)
	return nil
}

type flakyNotifier struct {
	stageCalls  int
	paperCalls  int
	failStageID string
}

func (n *flakyNotifier) SendOverdue(_ context.Context, stage models.WorkflowStage) error {
	n.stageCalls++
	if stage.ID == n.failStageID {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (n *flakyNotifier) SendPaperOverdue(context.Context, models.ConceptPaper) error {
	n.paperCalls++
	return nil
}

func overdueFixture(stages []models.WorkflowStage, papers []models.ConceptPaper, markers *fakeMarkers, notifier *flakyNotifier) *OverdueService {
	return NewOverdueService(
		&staticOverdueStages{stages: stages},
		&staticOverduePapers{papers: papers},
		markers,
		notifier,
		OverdueScanConfig{ScanInterval: time.Hour, MarkerTTL: 48 * time.Hour, BatchSize: 100},
		nil,
		WithOverdueClock(FixedClock{Instant: testInstant}),
	)
}

func TestRunOnceNotifiesEachEntityAtMostOncePerDay(t *testing.T) {
	stages := []models.WorkflowStage{{ID: "stage-1"}, {ID: "stage-2"}}
	papers := []models.ConceptPaper{{ID: "paper-1"}}
	markers := newFakeMarkers()
	notifier := &flakyNotifier{}
	svc := overdueFixture(stages, papers, markers, notifier)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.StagesScanned)
	assert.Equal(t, 2, report.StagesNotified)
	assert.Equal(t, 1, report.PapersNotified)
	assert.Equal(t, 0, report.AlreadyNotified)

	// Same day, same entities: every send is suppressed by the markers.
	report, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.StagesNotified)
	assert.Equal(t, 0, report.PapersNotified)
	assert.Equal(t, 3, report.AlreadyNotified)
	assert.Equal(t, 2, notifier.stageCalls)
	assert.Equal(t, 1, notifier.paperCalls)
}

func TestRunOnceReleasesMarkerOnDispatchFailure(t *testing.T) {
	stages := []models.WorkflowStage{{ID: "stage-1"}, {ID: "stage-2"}}
	markers := newFakeMarkers()
	notifier := &flakyNotifier{failStageID: "stage-2"}
	svc := overdueFixture(stages, nil, markers, notifier)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.StagesNotified, "one failing entity must not abort the sweep")
	assert.Equal(t, 1, report.DispatchErrors)

	// The failed stage's marker was released, so the next pass retries it
	// and only it.
	notifier.failStageID = ""
	report, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.StagesNotified)
	assert.Equal(t, 1, report.AlreadyNotified)
	assert.Equal(t, 0, report.DispatchErrors)
}

func TestRunOnceCountsMarkerErrors(t *testing.T) {
	stages := []models.WorkflowStage{{ID: "stage-1"}}
	markers := newFakeMarkers()
	markers.setErr = errors.New("redis down")
	notifier := &flakyNotifier{}
	svc := overdueFixture(stages, nil, markers, notifier)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.StagesNotified)
	assert.Equal(t, 1, report.DispatchErrors)
	assert.Equal(t, 0, notifier.stageCalls, "no send without a marker claim")
}

func TestMarkerKeysAreScopedToCalendarDay(t *testing.T) {
	key := stageMarkerKey("stage-9", testInstant)
	assert.Equal(t, "overdue:stage:stage-9:2026-03-02", key)

	nextDay := stageMarkerKey("stage-9", testInstant.Add(24*time.Hour))
	assert.NotEqual(t, key, nextDay)
}
