// Package engine implements the Auto-Run job state machine. One engine
// serves many projects; each project owns at most one job, and the
// engine is the only writer of job state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftline/autorun/pkg/core"
	"github.com/draftline/autorun/pkg/drift"
	"github.com/draftline/autorun/pkg/ladder"
)

// Engine advances auto-run jobs one step at a time.
type Engine struct {
	storage  core.Storage
	ladders  *ladder.Set
	detector *drift.Detector

	analyzer  Analyzer
	rewriter  Rewriter
	generator Generator
	fetcher   TextFetcher
	quals     QualificationSource

	protect []string
	logger  *slog.Logger

	mu        sync.Mutex
	eventSubs []chan core.Event

	// Per-project single-flight guard plus cancel registry so Stop can
	// interrupt an in-flight external call.
	flightMu sync.Mutex
	inFlight map[string]context.CancelFunc
}

// New creates an engine over the given storage. Collaborators are
// attached through options; operations that need a missing
// collaborator return ErrMissingCollaborator.
func New(s core.Storage, opts ...Option) *Engine {
	e := &Engine{
		storage:  s,
		ladders:  ladder.Default(),
		detector: drift.New(),
		logger:   slog.Default(),
		inFlight: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt.apply(e)
	}
	return e
}

// --- Event stream (subscriber fanout) ---

// Events returns a channel for receiving engine events. The caller
// must call Unsubscribe when done to prevent resource leaks.
func (e *Engine) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	e.mu.Lock()
	e.eventSubs = append(e.eventSubs, ch)
	e.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events(). The
// channel is not closed; callers must stop reading before calling
// Unsubscribe.
func (e *Engine) Unsubscribe(ch <-chan core.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.eventSubs {
		if sub == ch {
			e.eventSubs = append(e.eventSubs[:i], e.eventSubs[i+1:]...)
			return
		}
	}
}

func (e *Engine) emit(ev core.Event) {
	e.mu.Lock()
	subs := make([]chan core.Event, len(e.eventSubs))
	copy(subs, e.eventSubs)
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

// --- Read accessors ---

// Storage returns the backing store. Used by the background runner.
func (e *Engine) Storage() core.Storage {
	return e.storage
}

// Job returns the project's job, or ErrNoJob.
func (e *Engine) Job(ctx context.Context, projectID string) (*core.AutoRunJob, error) {
	job, err := e.storage.GetJob(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, core.ErrNoJob
	}
	return job, nil
}

// Steps returns the job's ordered step log.
func (e *Engine) Steps(ctx context.Context, projectID string) ([]core.AutoRunStep, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.storage.GetSteps(ctx, job.ID)
}

// Step returns one step of the job's log by index, or nil when the
// index has not been reached.
func (e *Engine) Step(ctx context.Context, projectID string, index int) (*core.AutoRunStep, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.storage.GetStep(ctx, job.ID, index)
}

// PendingDecisions returns the job's unresolved decisions.
func (e *Engine) PendingDecisions(ctx context.Context, projectID string) ([]*core.Decision, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.storage.PendingDecisions(ctx, job.ID)
}

// PendingDoc describes a generated document awaiting human approval.
type PendingDoc struct {
	DocID        string
	DocType      string
	NextDocType  string
	VersionID    string
	ApprovalType core.ApprovalType
}

// GetPendingDoc returns the document a paused job is waiting on, or
// nil when no approval is pending.
func (e *Engine) GetPendingDoc(ctx context.Context, projectID string) (*PendingDoc, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !job.AwaitingApproval {
		return nil, nil
	}
	return &PendingDoc{
		DocID:        job.PendingDocID,
		DocType:      job.PendingDocType,
		NextDocType:  job.PendingNextDocType,
		VersionID:    job.PendingVersionID,
		ApprovalType: job.ApprovalType,
	}, nil
}

// FetchDocumentText proxies the read-only text collaborator.
func (e *Engine) FetchDocumentText(ctx context.Context, documentID, versionID string) (string, error) {
	if e.fetcher == nil {
		return "", fmt.Errorf("%w: text fetcher", core.ErrMissingCollaborator)
	}
	return e.fetcher.FetchDocumentText(ctx, documentID, versionID)
}

// --- Lifecycle operations ---

// Start creates the project's job and moves it to running. The target
// document defaults to the terminal stage of the format's ladder.
func (e *Engine) Start(ctx context.Context, projectID string, mode core.Mode, startDocument, targetDocument string) (*core.AutoRunJob, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("autorun: unknown mode %q", mode)
	}
	if e.quals == nil {
		return nil, fmt.Errorf("%w: qualification source", core.ErrMissingCollaborator)
	}
	quals, err := e.quals.Canonical(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("autorun: read qualifications: %w", err)
	}
	format := quals["format"]

	stages := e.ladders.LadderFor(format)
	if _, err := e.ladders.Index(format, startDocument); err != nil {
		return nil, err
	}
	if targetDocument == "" {
		targetDocument = stages[len(stages)-1]
	}
	before, err := e.ladders.Before(format, targetDocument, startDocument)
	if err != nil {
		return nil, err
	}
	if before {
		return nil, fmt.Errorf("autorun: target %q precedes start %q", targetDocument, startDocument)
	}

	budget := mode.Budget()
	job := &core.AutoRunJob{
		ID:              uuid.New().String(),
		ProjectID:       projectID,
		Status:          core.StatusQueued,
		Mode:            mode,
		Format:          format,
		CurrentDocument: startDocument,
		TargetDocument:  targetDocument,
		MaxTotalSteps:   budget.MaxTotalSteps,
		MaxStageLoops:   budget.MaxStageLoops,
		FollowLatest:    true,
	}
	if err := e.storage.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	// The start step carries the queued job into running.
	job.Status = core.StatusRunning
	step := e.newStep(job, core.ActionStart, startDocument,
		fmt.Sprintf("auto-run started in %s mode toward %s", mode, targetDocument))
	if err := e.applyStep(ctx, job, step); err != nil {
		return nil, err
	}
	e.logger.Info("auto-run started",
		"project_id", projectID, "mode", string(mode),
		"start", startDocument, "target", targetDocument)
	return job, nil
}

// Pause pauses a running job at the next safe point. An in-flight
// external call is not interrupted; its result still applies.
func (e *Engine) Pause(ctx context.Context, projectID string) (*core.AutoRunJob, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if job.Status != core.StatusRunning {
		return nil, core.ErrJobNotRunning
	}
	job.Status = core.StatusPaused
	job.PauseReason = core.PauseManual
	job.StopReason = "paused by user"
	if err := e.storage.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	e.emit(&core.JobPaused{Job: job, Reason: core.PauseManual, Timestamp: time.Now()})
	return job, nil
}

// Resume moves a paused, stopped or failed job back to running. With
// followLatest true the next step reads the newest version of the
// current document; with false an existing pin (SetResumeSource) is
// honored. Resuming past a stale-document pause continues as-is:
// staleness checks are skipped until a version generated against the
// current criteria appears.
func (e *Engine) Resume(ctx context.Context, projectID string, followLatest bool) (*core.AutoRunJob, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case core.StatusPaused, core.StatusStopped, core.StatusFailed:
	case core.StatusCompleted:
		return nil, core.ErrJobTerminal
	default:
		return nil, fmt.Errorf("autorun: cannot resume a %s job", job.Status)
	}
	if job.CurrentDocument == "" {
		return nil, core.ErrNoCurrentDocument
	}

	if job.PauseReason == core.PauseStaleDocument {
		job.SkipStaleCheck = true
	}
	job.FollowLatest = followLatest
	job.Status = core.StatusRunning
	job.PauseReason = ""
	job.StopReason = ""
	job.Error = ""
	if err := e.storage.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	e.emit(&core.JobResumed{Job: job, Timestamp: time.Now()})
	e.logger.Info("auto-run resumed", "project_id", projectID, "follow_latest", followLatest)
	return job, nil
}

// SetResumeSource pins the version the job reads on resume and turns
// follow-latest off.
func (e *Engine) SetResumeSource(ctx context.Context, projectID, documentID, versionID string) (*core.AutoRunJob, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	v, err := e.storage.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v == nil || v.DocumentID != documentID {
		return nil, core.ErrNoVersion
	}
	job.FollowLatest = false
	job.ResumeDocumentID = documentID
	job.ResumeVersionID = versionID
	if err := e.storage.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Stop stops the job. An in-flight external call is cancelled
// cooperatively; if its result lands afterward it is discarded by the
// step-count guard.
func (e *Engine) Stop(ctx context.Context, projectID string) (*core.AutoRunJob, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if job.Status == core.StatusCompleted {
		return nil, core.ErrJobTerminal
	}

	e.flightMu.Lock()
	if cancel, ok := e.inFlight[projectID]; ok {
		cancel()
	}
	e.flightMu.Unlock()

	// Two attempts: if an in-flight step applied between our read and
	// the stop step, reload and stop on top of the new state.
	for attempt := 0; attempt < 2; attempt++ {
		job.Status = core.StatusStopped
		job.StopReason = "stopped by user"
		job.PauseReason = ""
		step := e.newStep(job, core.ActionStop, job.CurrentDocument, "stopped by user")
		err = e.applyStep(ctx, job, step)
		if err == nil {
			e.emit(&core.JobStopped{Job: job, Reason: job.StopReason, Timestamp: time.Now()})
			e.logger.Info("auto-run stopped", "project_id", projectID)
			return job, nil
		}
		if err != core.ErrStaleAdvance {
			return nil, err
		}
		job, err = e.Job(ctx, projectID)
		if err != nil {
			return nil, err
		}
	}
	return nil, core.ErrStaleAdvance
}

// Clear removes a non-running job together with its step log so a
// fresh run can start.
func (e *Engine) Clear(ctx context.Context, projectID string) error {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return err
	}
	if job.Status == core.StatusRunning {
		return core.ErrJobNotTerminal
	}
	return e.storage.DeleteJob(ctx, projectID)
}

// SetStage moves the job to another stage of its ladder and resumes
// it. The stage loop counter resets with the stage change.
func (e *Engine) SetStage(ctx context.Context, projectID, stage string) (*core.AutoRunJob, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if job.Status == core.StatusCompleted {
		return nil, core.ErrJobTerminal
	}
	if _, err := e.ladders.Index(job.Format, stage); err != nil {
		return nil, err
	}

	job.Status = core.StatusRunning
	job.PauseReason = ""
	job.StopReason = ""
	job.Error = ""
	e.moveToStage(job, stage)
	step := e.newStep(job, core.ActionSetStage, stage, fmt.Sprintf("stage set to %s", stage))
	if err := e.applyStep(ctx, job, step); err != nil {
		return nil, err
	}
	return job, nil
}

// RestartFromStage discards the job (step log included) and starts a
// fresh one at the given stage with the same mode and target.
// Destructive by design; callers should confirm first.
func (e *Engine) RestartFromStage(ctx context.Context, projectID, stage string) (*core.AutoRunJob, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := e.ladders.Index(job.Format, stage); err != nil {
		return nil, err
	}
	mode, target := job.Mode, job.TargetDocument
	if err := e.storage.DeleteJob(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Start(ctx, projectID, mode, stage, target)
}

// --- internal helpers ---

func (e *Engine) newStep(job *core.AutoRunJob, action core.StepAction, document, summary string) *core.AutoRunStep {
	return &core.AutoRunStep{
		JobID:     job.ID,
		StepIndex: job.StepCount + 1,
		Action:    action,
		Document:  document,
		Summary:   summary,
	}
}

// applyStep bumps the job's step counter, persists job and step
// atomically and emits StepAppended.
func (e *Engine) applyStep(ctx context.Context, job *core.AutoRunJob, step *core.AutoRunStep) error {
	job.StepCount = step.StepIndex
	if err := e.storage.ApplyStep(ctx, job, step); err != nil {
		return err
	}
	e.emit(&core.StepAppended{Job: job, Step: step, Timestamp: time.Now()})
	return nil
}

// moveToStage changes the current document and resets the per-stage
// state that must not leak across stages.
func (e *Engine) moveToStage(job *core.AutoRunJob, stage string) {
	job.CurrentDocument = stage
	job.StageLoopCount = 0
	job.LastAnalyzedVersionID = ""
	job.Converged = false
	job.AwaitingApproval = false
	job.ApprovalType = ""
	job.PendingDocID = ""
	job.PendingDocType = ""
	job.PendingNextDocType = ""
	job.PendingVersionID = ""
	job.ReviseRequested = false
	job.ReviseNote = ""
	job.RegenRequested = false
}
