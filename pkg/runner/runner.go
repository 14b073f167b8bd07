package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/draftline/autorun/pkg/core"
	"github.com/draftline/autorun/pkg/engine"
)

// Runner sweeps running jobs and advances each by one step per sweep.
// Pauses, stops and waiting states are handled inside the engine; the
// runner only supplies the heartbeat.
type Runner struct {
	engine *engine.Engine
	config Config
	logger *slog.Logger
}

// New creates a runner for the given engine.
func New(eng *engine.Engine, opts ...Option) *Runner {
	config := Config{
		PollInterval: time.Second,
		SweepLimit:   10,
		RunnerID:     uuid.New().String(),
	}

	for _, opt := range opts {
		opt.ApplyRunner(&config)
	}

	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}

	return &Runner{
		engine: eng,
		config: config,
		logger: slog.Default(),
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Start begins sweeping. Blocks until the context is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	var nextSweep time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			if r.config.Schedule != nil {
				if now.Before(nextSweep) {
					continue
				}
				nextSweep = r.config.Schedule.Next(now)
			}
			r.sweep(ctx)
		}
	}
}

// sweep advances every runnable job by one step, oldest first. Jobs
// that pause or stop during the sweep fall out of the next listing on
// their own.
func (r *Runner) sweep(ctx context.Context) {
	jobs, err := r.listWithRetry(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			r.logger.Error("failed to list runnable jobs after retries", "error", err)
		}
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		r.advance(ctx, job)
	}
}

// listWithRetry lists runnable jobs with exponential backoff on failure.
func (r *Runner) listWithRetry(ctx context.Context) ([]*core.AutoRunJob, error) {
	var jobs []*core.AutoRunJob
	err := retryWithBackoff(ctx, *r.config.StorageRetry, func() error {
		var listErr error
		jobs, listErr = r.engine.Storage().RunnableJobs(ctx, r.config.SweepLimit)
		return listErr
	})
	return jobs, err
}

func (r *Runner) advance(ctx context.Context, job *core.AutoRunJob) {
	start := time.Now()
	updated, err := r.engine.RunNext(ctx, job.ProjectID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrStepInFlight),
			errors.Is(err, core.ErrJobNotRunning),
			errors.Is(err, core.ErrJobTerminal),
			errors.Is(err, core.ErrNoJob):
			// Another caller got there first, or the job left the
			// running state between listing and advancing.
			r.logger.Debug("skipped job", "project_id", job.ProjectID, "reason", err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		default:
			r.logger.Error("advance failed",
				"project_id", job.ProjectID, "runner_id", r.config.RunnerID, "error", err)
		}
		return
	}

	r.logger.Debug("advanced job",
		"project_id", job.ProjectID,
		"status", updated.Status,
		"step_count", updated.StepCount,
		"duration", time.Since(start))
}
