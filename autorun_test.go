package autorun_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/draftline/autorun"
)

type quals struct{ q autorun.Qualifications }

func (s quals) Canonical(context.Context, string) (autorun.Qualifications, error) {
	return s.q, nil
}

type analyzer struct{}

func (analyzer) Analyze(context.Context, *autorun.DocumentVersion, autorun.Qualifications) (*autorun.Analysis, error) {
	return &autorun.Analysis{CI: 82, GP: 80, Gap: 3, Readiness: 88, Confidence: 84, Convergence: true}, nil
}

type rewriter struct{}

func (rewriter) Rewrite(_ context.Context, v *autorun.DocumentVersion, _, _ []string) (*autorun.DocumentVersion, error) {
	return &autorun.DocumentVersion{CoreValues: v.CoreValues}, nil
}

type generator struct{}

func (generator) Generate(_ context.Context, _ string, source *autorun.DocumentVersion, _ []string) (*autorun.DocumentVersion, error) {
	return &autorun.DocumentVersion{CoreValues: source.CoreValues}, nil
}

// The package-level API should carry a consumer from storage setup
// through a completed run without touching the pkg/ packages.
func TestFacade_EndToEnd(t *testing.T) {
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := autorun.NewGormStorage(db)
	require.NoError(t, store.Migrate(ctx))

	q := autorun.Qualifications{"format": "film"}
	eng := autorun.NewEngine(store,
		autorun.WithAnalyzer(analyzer{}),
		autorun.WithRewriter(rewriter{}),
		autorun.WithGenerator(generator{}),
		autorun.WithQualifications(quals{q: q}),
	)

	require.NoError(t, store.SaveVersion(ctx, &autorun.DocumentVersion{
		ID:                    uuid.New().String(),
		ProjectID:             "proj-1",
		DocumentID:            uuid.New().String(),
		Stage:                 "idea",
		Version:               1,
		DependsOnResolverHash: autorun.ResolverHash(q),
		QualSnapshot:          q,
		CoreValues:            autorun.CoreValues{"tone": "grim"},
	}))

	events := eng.Events()
	defer eng.Unsubscribe(events)

	job, err := eng.Start(ctx, "proj-1", autorun.ModeFast, "idea", "concept")
	require.NoError(t, err)
	assert.Equal(t, autorun.StatusRunning, job.Status)

	for i := 0; i < 8 && job.Status == autorun.StatusRunning; i++ {
		job, err = eng.RunNext(ctx, "proj-1")
		require.NoError(t, err)
	}
	assert.Equal(t, autorun.StatusCompleted, job.Status)
	assert.Equal(t, "concept", job.CurrentDocument)

	var completed bool
	for !completed {
		select {
		case ev := <-events:
			if _, ok := ev.(*autorun.JobCompleted); ok {
				completed = true
			}
		default:
			t.Fatal("no JobCompleted event on the stream")
		}
	}
}

func TestFacade_Helpers(t *testing.T) {
	assert.Equal(t, autorun.ResolverHash(autorun.Qualifications{"a": "b"}),
		autorun.ResolverHash(autorun.Qualifications{"a": "b"}))

	assert.Equal(t, []string{"hard_gate:ip"}, autorun.HardGates([]string{"hard_gate:ip", "pacing"}))

	blocker := &autorun.Decision{Severity: "blocker"}
	assert.True(t, autorun.BlockingDecisions([]*autorun.Decision{blocker}, autorun.ModeFast))

	ladders := autorun.DefaultLadders()
	next, err := ladders.Next("film", "idea")
	require.NoError(t, err)
	assert.Equal(t, "concept", next)

	from := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(time.Hour), autorun.Every(time.Hour).Next(from))
}
