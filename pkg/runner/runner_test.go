package runner

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/draftline/autorun/pkg/core"
	"github.com/draftline/autorun/pkg/engine"
	"github.com/draftline/autorun/pkg/resolver"
	"github.com/draftline/autorun/pkg/schedule"
	"github.com/draftline/autorun/pkg/storage"
)

var _ core.Starter = (*Runner)(nil)

type stubQuals struct{ q core.Qualifications }

func (s stubQuals) Canonical(context.Context, string) (core.Qualifications, error) {
	return s.q, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, *core.DocumentVersion, core.Qualifications) (*core.Analysis, error) {
	return &core.Analysis{CI: 80, GP: 78, Gap: 4, Readiness: 90, Confidence: 85, Convergence: true}, nil
}

type stubRewriter struct{}

func (stubRewriter) Rewrite(_ context.Context, v *core.DocumentVersion, _, _ []string) (*core.DocumentVersion, error) {
	return &core.DocumentVersion{CoreValues: v.CoreValues}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ string, source *core.DocumentVersion, _ []string) (*core.DocumentVersion, error) {
	return &core.DocumentVersion{CoreValues: source.CoreValues}, nil
}

func newTestEngine(t *testing.T) (*engine.Engine, core.Storage, core.Qualifications) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())
	})
	store := storage.NewGormStorage(db)
	require.NoError(t, store.Migrate(context.Background()))

	quals := core.Qualifications{"format": "film"}
	eng := engine.New(store,
		engine.WithAnalyzer(stubAnalyzer{}),
		engine.WithRewriter(stubRewriter{}),
		engine.WithGenerator(stubGenerator{}),
		engine.WithQualifications(stubQuals{q: quals}),
	)
	return eng, store, quals
}

func seedIdea(t *testing.T, store core.Storage, projectID string, quals core.Qualifications) {
	t.Helper()
	require.NoError(t, store.SaveVersion(context.Background(), &core.DocumentVersion{
		ID:                    uuid.New().String(),
		ProjectID:             projectID,
		DocumentID:            uuid.New().String(),
		Stage:                 "idea",
		Version:               1,
		DependsOnResolverHash: resolver.ComputeHash(quals),
		QualSnapshot:          quals,
		CoreValues:            core.CoreValues{"tone": "grim"},
	}))
}

func TestRunner_AdvancesJobsToCompletion(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	eng, store, quals := newTestEngine(t)
	seedIdea(t, store, "proj-1", quals)
	_, err := eng.Start(context.Background(), "proj-1", core.ModeFast, "idea", "concept")
	require.NoError(t, err)

	r := New(eng, PollInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		job, err := eng.Job(context.Background(), "proj-1")
		require.NoError(t, err)
		if job.Status == core.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed; status %s after %d steps", job.Status, job.StepCount)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	job, err := eng.Job(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "concept", job.CurrentDocument)
}

func TestRunner_LeavesPausedJobsAlone(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	eng, _, _ := newTestEngine(t)
	// No seed version: the first sweep pauses the job on missing_seed
	// and later sweeps must not touch it.
	_, err := eng.Start(context.Background(), "proj-1", core.ModeFast, "idea", "")
	require.NoError(t, err)

	r := New(eng, PollInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	require.Eventually(t, func() bool {
		job, err := eng.Job(context.Background(), "proj-1")
		require.NoError(t, err)
		return job.Status == core.StatusPaused
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond) // a few more sweeps
	cancel()
	<-done

	job, err := eng.Job(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, core.PauseMissingSeed, job.PauseReason)
	assert.Equal(t, 1, job.StepCount, "paused job was not advanced again")
}

func TestRunner_StartReturnsOnCancel(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	eng, _, _ := newTestEngine(t)
	r := New(eng, PollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Start(ctx), context.Canceled)
}

func TestNew_Options(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	sched := schedule.Every(time.Minute)
	retry := RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1, JitterFraction: 0}
	r := New(eng,
		PollInterval(250*time.Millisecond),
		SweepLimit(3),
		WithSchedule(sched),
		WithStorageRetry(retry),
	)

	assert.Equal(t, 250*time.Millisecond, r.config.PollInterval)
	assert.Equal(t, 3, r.config.SweepLimit)
	assert.Equal(t, sched, r.config.Schedule)
	assert.Equal(t, 2, r.config.StorageRetry.MaxAttempts)
	assert.NotEmpty(t, r.config.RunnerID)

	// Non-positive values fall back to the defaults.
	r = New(eng, PollInterval(0), SweepLimit(-1))
	assert.Equal(t, time.Second, r.config.PollInterval)
	assert.Equal(t, 10, r.config.SweepLimit)
}
