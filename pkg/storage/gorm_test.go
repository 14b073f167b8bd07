package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/draftline/autorun/pkg/core"
)

// newTestStorage creates a fresh in-memory SQLite storage instance for
// each test, fully migrated and ready for use.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")

	s := NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func newTestJob(projectID string) *core.AutoRunJob {
	budget := core.ModeBalanced.Budget()
	return &core.AutoRunJob{
		ProjectID:       projectID,
		Status:          core.StatusRunning,
		Mode:            core.ModeBalanced,
		CurrentDocument: "idea",
		TargetDocument:  "script",
		MaxTotalSteps:   budget.MaxTotalSteps,
		MaxStageLoops:   budget.MaxStageLoops,
		FollowLatest:    true,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateJob_OnePerProject(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	job := newTestJob("proj-1")
	require.NoError(t, s.CreateJob(ctx, job))
	assert.NotEmpty(t, job.ID)

	err := s.CreateJob(ctx, newTestJob("proj-1"))
	assert.ErrorIs(t, err, core.ErrJobExists)

	require.NoError(t, s.CreateJob(ctx, newTestJob("proj-2")))
}

func TestGetJob_MissingIsNilNil(t *testing.T) {
	s := newTestStorage(t)

	job, err := s.GetJob(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = s.GetJobByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestUpdateJob_PersistsZeroValues(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	job := newTestJob("proj-1")
	job.StageLoopCount = 2
	job.SkipStaleCheck = true
	require.NoError(t, s.CreateJob(ctx, job))

	job.StageLoopCount = 0
	job.SkipStaleCheck = false
	require.NoError(t, s.UpdateJob(ctx, job))

	got, err := s.GetJob(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.StageLoopCount)
	assert.False(t, got.SkipStaleCheck)
}

func TestDeleteJob_CascadesStepsDecisionsDrift(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	job := newTestJob("proj-1")
	require.NoError(t, s.CreateJob(ctx, job))

	job.StepCount = 1
	require.NoError(t, s.ApplyStep(ctx, job, &core.AutoRunStep{
		StepIndex: 1, Action: core.ActionStart, Document: "idea",
	}))
	require.NoError(t, s.SaveDecisions(ctx, []*core.Decision{
		{JobID: job.ID, NoteID: "n1", Severity: core.SeverityBlocker},
	}))
	require.NoError(t, s.SaveDriftEvent(ctx, &core.DriftEvent{
		JobID: job.ID, DocumentID: "doc-1", VersionID: "v-1", Level: core.DriftMinor,
	}))

	require.NoError(t, s.DeleteJob(ctx, "proj-1"))

	got, err := s.GetJob(ctx, "proj-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	steps, err := s.GetSteps(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)

	pending, err := s.PendingDecisions(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, s.DeleteJob(ctx, "proj-1"), core.ErrNoJob)
}

// ──────────────────────────────────────────────────────────────────────────────
// ApplyStep: atomic advance with optimistic guard
// ──────────────────────────────────────────────────────────────────────────────

func TestApplyStep_AppendsAndAdvances(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	job := newTestJob("proj-1")
	require.NoError(t, s.CreateJob(ctx, job))

	job.StepCount = 1
	step := &core.AutoRunStep{StepIndex: 1, Action: core.ActionStart, Document: "idea", Summary: "started"}
	require.NoError(t, s.ApplyStep(ctx, job, step))
	assert.NotEmpty(t, step.ID)

	got, err := s.GetJob(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.StepCount)

	steps, err := s.GetSteps(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, core.ActionStart, steps[0].Action)
}

func TestApplyStep_StaleAdvanceDiscarded(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	job := newTestJob("proj-1")
	require.NoError(t, s.CreateJob(ctx, job))

	// A concurrent writer moved the job to step 1.
	other, err := s.GetJob(ctx, "proj-1")
	require.NoError(t, err)
	other.StepCount = 1
	require.NoError(t, s.ApplyStep(ctx, other, &core.AutoRunStep{
		StepIndex: 1, Action: core.ActionStop, Document: "idea",
	}))

	// The in-flight result still believes it writes step 1.
	job.StepCount = 1
	err = s.ApplyStep(ctx, job, &core.AutoRunStep{
		StepIndex: 1, Action: core.ActionReview, Document: "idea",
	})
	assert.ErrorIs(t, err, core.ErrStaleAdvance)

	// The stop survived; the late review left no trace.
	steps, err := s.GetSteps(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, core.ActionStop, steps[0].Action)
}

func TestGetStep_ByIndex(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	job := newTestJob("proj-1")
	require.NoError(t, s.CreateJob(ctx, job))
	job.StepCount = 1
	require.NoError(t, s.ApplyStep(ctx, job, &core.AutoRunStep{
		StepIndex: 1, Action: core.ActionStart, Document: "idea", OutputRef: "v-1",
	}))

	step, err := s.GetStep(ctx, job.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, "v-1", step.OutputRef)

	step, err = s.GetStep(ctx, job.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, step)
}

// ──────────────────────────────────────────────────────────────────────────────
// Versions
// ──────────────────────────────────────────────────────────────────────────────

func TestLatestVersion(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.SaveVersion(ctx, &core.DocumentVersion{
			ProjectID:  "proj-1",
			DocumentID: "doc-1",
			Stage:      "idea",
			Version:    i,
		}))
	}
	require.NoError(t, s.SaveVersion(ctx, &core.DocumentVersion{
		ProjectID: "proj-1", DocumentID: "doc-2", Stage: "concept", Version: 9,
	}))

	v, err := s.LatestVersion(ctx, "proj-1", "idea")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 3, v.Version)

	v, err = s.LatestVersion(ctx, "proj-1", "blueprint")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestApproveVersion(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	v := &core.DocumentVersion{ProjectID: "proj-1", DocumentID: "doc-1", Stage: "character_bible"}
	require.NoError(t, s.SaveVersion(ctx, v))

	require.NoError(t, s.ApproveVersion(ctx, v.ID))
	got, err := s.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)
	assert.NotNil(t, got.ApprovedAt)

	assert.ErrorIs(t, s.ApproveVersion(ctx, "missing"), core.ErrNoVersion)
}

func TestSaveVersion_SerializesMaps(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	v := &core.DocumentVersion{
		ProjectID:    "proj-1",
		DocumentID:   "doc-1",
		Stage:        "concept",
		QualSnapshot: core.Qualifications{"format": "series"},
		CoreValues:   core.CoreValues{"tone": "dark noir"},
		Baseline:     core.CoreValues{"tone": "dark noir"},
	}
	require.NoError(t, s.SaveVersion(ctx, v))

	got, err := s.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "series", got.QualSnapshot["format"])
	assert.Equal(t, "dark noir", got.CoreValues["tone"])
	assert.Equal(t, "dark noir", got.Baseline["tone"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Decisions
// ──────────────────────────────────────────────────────────────────────────────

func TestResolveDecision_SetOnce(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	d := &core.Decision{JobID: "job-1", NoteID: "n1", Severity: core.SeverityBlocker}
	require.NoError(t, s.SaveDecisions(ctx, []*core.Decision{d}))

	require.NoError(t, s.ResolveDecision(ctx, d.ID, "a", "", "Raise the stakes"))

	got, err := s.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved())
	assert.Equal(t, "a", got.SelectedOptionID)
	assert.Equal(t, "Raise the stakes", got.Directive)

	err = s.ResolveDecision(ctx, d.ID, "b", "", "something else")
	assert.ErrorIs(t, err, core.ErrDecisionResolved)

	// First resolution untouched.
	got, err = s.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.SelectedOptionID)
}

func TestDirectiveLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	d1 := &core.Decision{JobID: "job-1", NoteID: "n1", Severity: core.SeverityBlocker}
	d2 := &core.Decision{JobID: "job-1", NoteID: "n2", Severity: core.SeverityHigh}
	require.NoError(t, s.SaveDecisions(ctx, []*core.Decision{d1, d2}))

	pending, err := s.PendingDecisions(ctx, "job-1")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, s.ResolveDecision(ctx, d1.ID, "a", "", "fix act two"))

	pending, err = s.PendingDecisions(ctx, "job-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	directives, err := s.UnconsumedDirectives(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, directives, 1)
	assert.Equal(t, "fix act two", directives[0].Directive)

	require.NoError(t, s.ConsumeDirectives(ctx, "job-1", []string{d1.ID}))
	directives, err = s.UnconsumedDirectives(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, directives)
}

// ──────────────────────────────────────────────────────────────────────────────
// Drift events
// ──────────────────────────────────────────────────────────────────────────────

func TestResolveDriftEvent_SetOnce(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ev := &core.DriftEvent{JobID: "job-1", DocumentID: "doc-1", VersionID: "v-2", Level: core.DriftMajor}
	require.NoError(t, s.SaveDriftEvent(ctx, ev))

	open, err := s.OpenDriftEvents(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	require.NoError(t, s.ResolveDriftEvent(ctx, ev.ID, core.ResolveAcceptDrift))

	got, err := s.GetDriftEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.True(t, got.Acknowledged)
	assert.Equal(t, core.ResolveAcceptDrift, got.ResolutionType)
	assert.NotNil(t, got.ResolvedAt)

	err = s.ResolveDriftEvent(ctx, ev.ID, core.ResolveReseed)
	assert.ErrorIs(t, err, core.ErrDriftResolved)

	open, err = s.OpenDriftEvents(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAcknowledgeDriftEvent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ev := &core.DriftEvent{JobID: "job-1", DocumentID: "doc-1", VersionID: "v-2", Level: core.DriftMinor}
	require.NoError(t, s.SaveDriftEvent(ctx, ev))

	require.NoError(t, s.AcknowledgeDriftEvent(ctx, ev.ID))
	got, err := s.GetDriftEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)
	assert.False(t, got.Resolved)

	assert.Error(t, s.AcknowledgeDriftEvent(ctx, "missing"))
}

func TestDriftEventForVersion(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ev := &core.DriftEvent{JobID: "job-1", DocumentID: "doc-1", VersionID: "v-2", Level: core.DriftMinor}
	require.NoError(t, s.SaveDriftEvent(ctx, ev))

	got, err := s.DriftEventForVersion(ctx, "v-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ev.ID, got.ID)

	got, err = s.DriftEventForVersion(ctx, "v-3")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// ──────────────────────────────────────────────────────────────────────────────
// Runner support
// ──────────────────────────────────────────────────────────────────────────────

func TestRunnableJobs(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	running := newTestJob("proj-1")
	require.NoError(t, s.CreateJob(ctx, running))

	paused := newTestJob("proj-2")
	paused.Status = core.StatusPaused
	require.NoError(t, s.CreateJob(ctx, paused))

	stopped := newTestJob("proj-3")
	stopped.Status = core.StatusStopped
	require.NoError(t, s.CreateJob(ctx, stopped))

	jobs, err := s.RunnableJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "proj-1", jobs[0].ProjectID)

	jobs, err = s.RunnableJobs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
