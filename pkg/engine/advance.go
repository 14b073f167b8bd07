package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/draftline/autorun/pkg/core"
	"github.com/draftline/autorun/pkg/decision"
	"github.com/draftline/autorun/pkg/resolver"
)

// RunNext advances the project's job by exactly one step. Only one
// step may be in flight per job; a concurrent call returns
// ErrStepInFlight. Policy stops and pauses come back as job state, not
// as errors.
func (e *Engine) RunNext(ctx context.Context, projectID string) (*core.AutoRunJob, error) {
	if e.analyzer == nil || e.rewriter == nil || e.generator == nil || e.quals == nil {
		return nil, core.ErrMissingCollaborator
	}

	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !e.beginFlight(projectID, cancel) {
		return nil, core.ErrStepInFlight
	}
	defer e.endFlight(projectID)

	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if job.Status != core.StatusRunning {
		return nil, core.ErrJobNotRunning
	}
	if job.CurrentDocument == "" {
		return nil, core.ErrNoCurrentDocument
	}
	return e.advance(stepCtx, job)
}

// advance executes exactly one orchestrator action. Gates are checked
// in severity order: budgets, seed presence, staleness, approval
// revisions, hard gates, reseeds, blocking decisions, then the
// review / rewrite / promotion cycle.
func (e *Engine) advance(ctx context.Context, job *core.AutoRunJob) (*core.AutoRunJob, error) {
	if job.StepCount >= job.MaxTotalSteps {
		return e.stopForBudget(ctx, job, core.PauseStepLimit,
			fmt.Sprintf("step budget exhausted (%d/%d)", job.StepCount, job.MaxTotalSteps))
	}
	if job.StageLoopCount >= job.MaxStageLoops {
		return e.stopForBudget(ctx, job, core.PauseStageLoopLimit,
			fmt.Sprintf("no convergence on %s after %d loops", job.CurrentDocument, job.StageLoopCount))
	}

	quals, err := e.quals.Canonical(ctx, job.ProjectID)
	if err != nil {
		return e.fail(ctx, job, fmt.Errorf("read qualifications: %w", err))
	}
	hash := resolver.ComputeHash(quals)

	v, err := e.currentVersion(ctx, job)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return e.pause(ctx, job, core.PauseMissingSeed,
			fmt.Sprintf("no version of %s to work from; seed the document or set another stage", job.CurrentDocument))
	}

	if resolver.IsStale(v, hash) {
		// A resume past a stale pause means "continue as-is": the skip
		// holds until a version generated against the current criteria
		// appears, so the operator is not asked again every step.
		if !job.SkipStaleCheck {
			fields := resolver.ChangedFields(v, quals)
			detail := "qualifications changed"
			if len(fields) > 0 {
				detail = strings.Join(fields, ", ")
			}
			return e.pause(ctx, job, core.PauseStaleDocument,
				"Document stale vs current criteria: "+detail)
		}
	} else if job.SkipStaleCheck {
		job.SkipStaleCheck = false
	}

	if job.ReviseRequested {
		return e.handleRevise(ctx, job, quals, hash)
	}

	// A stored hard gate blocks everything except a review of a version
	// the gate has not seen yet: a fresh analysis may clear the flags.
	if gates := core.HardGates(job.LastRiskFlags); len(gates) > 0 && job.LastAnalyzedVersionID == v.ID {
		return e.pause(ctx, job, core.PauseHardGate,
			fmt.Sprintf("hard gate %s requires an explicit override", strings.Join(gates, ", ")))
	}

	if job.RegenRequested {
		return e.handleReseed(ctx, job, v, quals, hash)
	}

	pending, err := e.storage.PendingDecisions(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if decision.Blocks(pending, job.Mode) {
		return e.pause(ctx, job, core.PauseDecisions,
			fmt.Sprintf("%d unresolved decision(s) require a human pick", len(pending)))
	}

	if job.LastAnalyzedVersionID != v.ID {
		return e.handleReview(ctx, job, v, quals)
	}

	directives, err := e.storage.UnconsumedDirectives(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if len(directives) > 0 {
		return e.handleRewrite(ctx, job, v, directives, quals, hash)
	}

	return e.handlePromotion(ctx, job, v, quals, hash)
}

// --- action handlers ---

func (e *Engine) handleReview(ctx context.Context, job *core.AutoRunJob, v *core.DocumentVersion, quals core.Qualifications) (*core.AutoRunJob, error) {
	analysis, err := e.analyzer.Analyze(ctx, v, quals)
	if err != nil {
		return e.fail(ctx, job, fmt.Errorf("analyze %s: %w", job.CurrentDocument, err))
	}

	job.LastCI = analysis.CI
	job.LastGP = analysis.GP
	job.LastGap = analysis.Gap
	job.LastReadiness = analysis.Readiness
	job.LastConfidence = analysis.Confidence
	job.LastRiskFlags = analysis.RiskFlags
	job.Converged = analysis.Convergence
	job.LastAnalyzedVersionID = v.ID

	newDecisions := decision.FromNotes(job.ID, v.ID, analysis.Notes)
	if err := e.storage.SaveDecisions(ctx, newDecisions); err != nil {
		return nil, err
	}

	// Drift is measured once per version, against the values inherited
	// from its immediate ancestor.
	if len(v.Baseline) > 0 {
		existing, err := e.storage.DriftEventForVersion(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			ev := e.detector.Detect(job.ID, v, v.SourceVersionID)
			if ev.Level != core.DriftNone {
				if err := e.storage.SaveDriftEvent(ctx, ev); err != nil {
					return nil, err
				}
				e.emit(&core.DriftDetected{Event: ev, Timestamp: time.Now()})
				e.logger.Warn("narrative drift detected",
					"project_id", job.ProjectID, "document", job.CurrentDocument,
					"level", string(ev.Level))
			}
		}
	}

	var pausedReason core.PauseReason
	if gates := core.HardGates(analysis.RiskFlags); len(gates) > 0 {
		pausedReason = core.PauseHardGate
		job.Status = core.StatusPaused
		job.PauseReason = pausedReason
		job.StopReason = fmt.Sprintf("hard gate %s requires an explicit override", strings.Join(gates, ", "))
	} else if decision.Blocks(newDecisions, job.Mode) {
		pausedReason = core.PauseDecisions
		job.Status = core.StatusPaused
		job.PauseReason = pausedReason
		job.StopReason = fmt.Sprintf("%d unresolved decision(s) require a human pick", len(newDecisions))
	}

	step := e.newStep(job, core.ActionReview, job.CurrentDocument,
		fmt.Sprintf("reviewed %s v%d: readiness %d, ci %d, confidence %d",
			job.CurrentDocument, v.Version, analysis.Readiness, analysis.CI, analysis.Confidence))
	step.Readiness = intPtr(analysis.Readiness)
	step.Confidence = intPtr(analysis.Confidence)
	step.CI = intPtr(analysis.CI)
	step.RiskFlags = analysis.RiskFlags
	step.OutputRef = v.ID

	if err := e.applyStep(ctx, job, step); err != nil {
		return nil, err
	}
	if pausedReason != "" {
		e.emit(&core.JobPaused{Job: job, Reason: pausedReason, Timestamp: time.Now()})
	}
	return job, nil
}

func (e *Engine) handleRewrite(ctx context.Context, job *core.AutoRunJob, v *core.DocumentVersion, resolved []*core.Decision, quals core.Qualifications, hash string) (*core.AutoRunJob, error) {
	directives := make([]string, 0, len(resolved))
	ids := make([]string, 0, len(resolved))
	for _, d := range resolved {
		directives = append(directives, d.Directive)
		ids = append(ids, d.ID)
	}

	summary := fmt.Sprintf("rewrote %s honoring %d directive(s)", job.CurrentDocument, len(directives))
	if len(directives) == 0 {
		summary = fmt.Sprintf("rewrote %s to close the readiness gap (%d < %d)",
			job.CurrentDocument, job.LastReadiness, job.Mode.Budget().PromoteReadiness)
	}

	newV, replayed, err := e.rewriteVersion(ctx, job, core.ActionRewrite, v, directives, quals, hash)
	if err != nil {
		return e.fail(ctx, job, fmt.Errorf("rewrite %s: %w", job.CurrentDocument, err))
	}
	if err := e.storage.ConsumeDirectives(ctx, job.ID, ids); err != nil {
		return nil, err
	}

	job.StageLoopCount++
	step := e.newStep(job, core.ActionRewrite, job.CurrentDocument, summary)
	step.OutputRef = newV.ID
	return job, e.finishStep(ctx, job, step, replayed)
}

// handleReseed regenerates the current document from the core values
// inherited from its ancestor, discarding the divergent content.
func (e *Engine) handleReseed(ctx context.Context, job *core.AutoRunJob, v *core.DocumentVersion, quals core.Qualifications, hash string) (*core.AutoRunJob, error) {
	parts := make([]string, 0, len(v.Baseline))
	for field, val := range v.Baseline {
		parts = append(parts, field+": "+val)
	}
	directive := "reseed from the inherited core values, discarding divergent content"
	if len(parts) > 0 {
		directive += " (" + strings.Join(parts, "; ") + ")"
	}

	newV, replayed, err := e.rewriteVersion(ctx, job, core.ActionRewrite, v, []string{directive}, quals, hash)
	if err != nil {
		return e.fail(ctx, job, fmt.Errorf("reseed %s: %w", job.CurrentDocument, err))
	}

	job.RegenRequested = false
	job.StageLoopCount++
	step := e.newStep(job, core.ActionRewrite, job.CurrentDocument,
		fmt.Sprintf("reseeded %s from its inherited core values", job.CurrentDocument))
	step.OutputRef = newV.ID
	return job, e.finishStep(ctx, job, step, replayed)
}

// handleRevise rewrites the document a human sent back from the
// approval gate, then re-requests approval for the new version.
func (e *Engine) handleRevise(ctx context.Context, job *core.AutoRunJob, quals core.Qualifications, hash string) (*core.AutoRunJob, error) {
	pv, err := e.storage.GetVersion(ctx, job.PendingVersionID)
	if err != nil {
		return nil, err
	}
	if pv == nil {
		return nil, core.ErrNoVersion
	}
	directive := job.ReviseNote
	if directive == "" {
		directive = "revise per approval feedback"
	}

	newV, replayed, err := e.rewriteVersion(ctx, job, core.ActionRewrite, pv, []string{directive}, quals, hash)
	if err != nil {
		return e.fail(ctx, job, fmt.Errorf("revise %s: %w", job.PendingDocType, err))
	}

	job.ReviseRequested = false
	job.ReviseNote = ""
	job.PendingVersionID = newV.ID
	job.AwaitingApproval = true
	job.Status = core.StatusPaused
	job.PauseReason = core.PauseApproval
	job.StopReason = fmt.Sprintf("%s revised; awaiting approval", job.PendingDocType)

	step := e.newStep(job, core.ActionRewrite, job.PendingDocType,
		fmt.Sprintf("revised %s per approval feedback", job.PendingDocType))
	step.OutputRef = newV.ID
	if err := e.finishStep(ctx, job, step, replayed); err != nil {
		return nil, err
	}
	e.emit(&core.ApprovalRequested{
		Job: job, ApprovalType: job.ApprovalType,
		DocID: job.PendingDocID, DocType: job.PendingDocType, Timestamp: time.Now(),
	})
	return job, nil
}

func (e *Engine) handlePromotion(ctx context.Context, job *core.AutoRunJob, v *core.DocumentVersion, quals core.Qualifications, hash string) (*core.AutoRunJob, error) {
	open, err := e.storage.OpenDriftEvents(ctx, v.DocumentID)
	if err != nil {
		return nil, err
	}
	for _, ev := range open {
		if ev.Level == core.DriftMajor {
			return e.pause(ctx, job, core.PauseMajorDrift,
				fmt.Sprintf("unresolved major drift on %s requires a resolution", job.CurrentDocument))
		}
	}

	budget := job.Mode.Budget()
	eligible := job.Converged || job.LastReadiness >= budget.PromoteReadiness
	if job.Mode == core.ModePremium && job.LastReadiness < budget.PromoteReadiness {
		eligible = false
	}
	if !eligible {
		// Not ready: run an improvement pass and loop back to review.
		return e.handleRewrite(ctx, job, v, nil, quals, hash)
	}

	if job.CurrentDocument == job.TargetDocument {
		if e.ladders.IsApprovalRequired(job.CurrentDocument) && !v.Approved {
			return e.requireApproval(ctx, job, v, "")
		}
		job.Status = core.StatusCompleted
		step := e.newStep(job, core.ActionPromotionCheck, job.CurrentDocument,
			fmt.Sprintf("target stage %s converged (readiness %d)", job.CurrentDocument, job.LastReadiness))
		step.Readiness = intPtr(job.LastReadiness)
		if err := e.applyStep(ctx, job, step); err != nil {
			return nil, err
		}
		e.emit(&core.JobCompleted{Job: job, Timestamp: time.Now()})
		e.logger.Info("auto-run completed", "project_id", job.ProjectID, "stage", job.CurrentDocument)
		return job, nil
	}

	next, err := e.ladders.Next(job.Format, job.CurrentDocument)
	if err != nil {
		return nil, err
	}
	if next == "" {
		return nil, fmt.Errorf("%w: %q is terminal but target is %q",
			core.ErrUnknownStage, job.CurrentDocument, job.TargetDocument)
	}
	return e.generateStage(ctx, job, v, next, quals, hash, core.ActionGenerate)
}

// generateStage produces the first draft of the next stage and either
// promotes into it or parks it behind the approval gate.
func (e *Engine) generateStage(ctx context.Context, job *core.AutoRunJob, source *core.DocumentVersion, next string, quals core.Qualifications, hash string, action core.StepAction) (*core.AutoRunJob, error) {
	stepAction := action
	if e.ladders.IsApprovalRequired(next) && action != core.ActionForcePromote {
		stepAction = core.ActionApprovalRequired
	}

	newV, replayed, err := e.replayOutput(ctx, job, stepAction)
	if err != nil {
		return nil, err
	}
	if newV == nil {
		newV, err = e.generator.Generate(ctx, next, source, e.protect)
		if err != nil {
			return e.fail(ctx, job, fmt.Errorf("generate %s: %w", next, err))
		}
		e.stampVersion(newV, job, next, source, quals, hash)
		if err := e.storage.SaveVersion(ctx, newV); err != nil {
			return nil, err
		}
	}

	if e.ladders.IsApprovalRequired(next) {
		job.AwaitingApproval = true
		job.ApprovalType = e.ladders.ApprovalTypeFor(next)
		job.PendingDocID = newV.DocumentID
		job.PendingDocType = next
		job.PendingVersionID = newV.ID
		job.PendingNextDocType, _ = e.ladders.Next(job.Format, next)
		job.Status = core.StatusPaused
		job.PauseReason = core.PauseApproval
		job.StopReason = fmt.Sprintf("%s generated; awaiting %s approval", next, job.ApprovalType)

		step := e.newStep(job, stepAction, next,
			fmt.Sprintf("generated %s; %s approval required before promotion", next, job.ApprovalType))
		step.OutputRef = newV.ID
		if err := e.finishStep(ctx, job, step, replayed); err != nil {
			return nil, err
		}
		e.emit(&core.ApprovalRequested{
			Job: job, ApprovalType: job.ApprovalType,
			DocID: newV.DocumentID, DocType: next, Timestamp: time.Now(),
		})
		e.emit(&core.JobPaused{Job: job, Reason: core.PauseApproval, Timestamp: time.Now()})
		return job, nil
	}

	e.moveToStage(job, next)
	step := e.newStep(job, stepAction, next,
		fmt.Sprintf("promotion check passed (readiness %d); generated %s", job.LastReadiness, next))
	step.Readiness = intPtr(job.LastReadiness)
	step.OutputRef = newV.ID
	if err := e.finishStep(ctx, job, step, replayed); err != nil {
		return nil, err
	}
	e.logger.Info("stage promoted",
		"project_id", job.ProjectID, "stage", next, "readiness", job.LastReadiness)
	return job, nil
}

// requireApproval pauses the job for sign-off on an already-existing
// version of the current (target) stage.
func (e *Engine) requireApproval(ctx context.Context, job *core.AutoRunJob, v *core.DocumentVersion, next string) (*core.AutoRunJob, error) {
	job.AwaitingApproval = true
	job.ApprovalType = e.ladders.ApprovalTypeFor(v.Stage)
	job.PendingDocID = v.DocumentID
	job.PendingDocType = v.Stage
	job.PendingNextDocType = next
	job.PendingVersionID = v.ID
	job.Status = core.StatusPaused
	job.PauseReason = core.PauseApproval
	job.StopReason = fmt.Sprintf("%s requires %s approval", v.Stage, job.ApprovalType)

	step := e.newStep(job, core.ActionApprovalRequired, v.Stage,
		fmt.Sprintf("%s converged; %s approval required", v.Stage, job.ApprovalType))
	step.OutputRef = v.ID
	if err := e.applyStep(ctx, job, step); err != nil {
		return nil, err
	}
	e.emit(&core.ApprovalRequested{
		Job: job, ApprovalType: job.ApprovalType,
		DocID: v.DocumentID, DocType: v.Stage, Timestamp: time.Now(),
	})
	e.emit(&core.JobPaused{Job: job, Reason: core.PauseApproval, Timestamp: time.Now()})
	return job, nil
}

// --- shared plumbing ---

// rewriteVersion invokes the rewriter behind the replay guard and
// stamps provenance onto the result.
func (e *Engine) rewriteVersion(ctx context.Context, job *core.AutoRunJob, action core.StepAction, v *core.DocumentVersion, directives []string, quals core.Qualifications, hash string) (*core.DocumentVersion, bool, error) {
	newV, replayed, err := e.replayOutput(ctx, job, action)
	if err != nil {
		return nil, false, err
	}
	if newV != nil {
		return newV, replayed, nil
	}

	newV, err = e.rewriter.Rewrite(ctx, v, directives, e.protect)
	if err != nil {
		return nil, false, err
	}
	e.stampVersion(newV, job, v.Stage, v, quals, hash)
	if newV.Version <= v.Version {
		newV.Version = v.Version + 1
	}
	if len(newV.Baseline) == 0 {
		newV.Baseline = v.Baseline
	}
	if err := e.storage.SaveVersion(ctx, newV); err != nil {
		return nil, false, err
	}
	return newV, false, nil
}

// replayOutput checks whether a step with the idempotency key
// (job, next step index, action) already recorded an output, and if so
// returns that output instead of letting the caller re-invoke the
// external collaborator.
func (e *Engine) replayOutput(ctx context.Context, job *core.AutoRunJob, action core.StepAction) (*core.DocumentVersion, bool, error) {
	step, err := e.storage.GetStep(ctx, job.ID, job.StepCount+1)
	if err != nil {
		return nil, false, err
	}
	if step == nil || step.Action != action || step.OutputRef == "" {
		return nil, false, nil
	}
	v, err := e.storage.GetVersion(ctx, step.OutputRef)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	e.logger.Info("replaying recorded step output",
		"job_id", job.ID, "step_index", step.StepIndex, "action", string(action))
	return v, true, nil
}

// finishStep persists the step result. A replayed step already exists
// in the log, so only the job advances.
func (e *Engine) finishStep(ctx context.Context, job *core.AutoRunJob, step *core.AutoRunStep, replayed bool) error {
	if replayed {
		job.StepCount = step.StepIndex
		if err := e.storage.UpdateJob(ctx, job); err != nil {
			return err
		}
		e.emit(&core.StepAppended{Job: job, Step: step, Timestamp: time.Now()})
		return nil
	}
	return e.applyStep(ctx, job, step)
}

// stampVersion fills the provenance metadata the orchestrator owns on
// a collaborator-produced version.
func (e *Engine) stampVersion(v *core.DocumentVersion, job *core.AutoRunJob, stage string, source *core.DocumentVersion, quals core.Qualifications, hash string) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.DocumentID == "" {
		if source != nil && source.Stage == stage {
			v.DocumentID = source.DocumentID
		} else {
			v.DocumentID = uuid.New().String()
		}
	}
	v.ProjectID = job.ProjectID
	v.Stage = stage
	v.DependsOnResolverHash = hash
	v.QualSnapshot = quals
	if source != nil {
		v.SourceVersionID = source.ID
		if len(v.Baseline) == 0 && source.Stage != stage {
			// A fresh stage inherits its baseline from the source's
			// current core values.
			v.Baseline = source.CoreValues
		}
	}
}

// currentVersion resolves the version the next step should read:
// the newest one under follow-latest, or the pinned one.
func (e *Engine) currentVersion(ctx context.Context, job *core.AutoRunJob) (*core.DocumentVersion, error) {
	if !job.FollowLatest && job.ResumeVersionID != "" {
		return e.storage.GetVersion(ctx, job.ResumeVersionID)
	}
	return e.storage.LatestVersion(ctx, job.ProjectID, job.CurrentDocument)
}

// fail records an unrecoverable collaborator error as job state. A
// cancellation caused by Stop is not a failure: the stop already wrote
// the job state, so the in-flight result is simply discarded.
func (e *Engine) fail(ctx context.Context, job *core.AutoRunJob, err error) (*core.AutoRunJob, error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		reload := context.WithoutCancel(ctx)
		cur, gerr := e.storage.GetJobByID(reload, job.ID)
		if gerr != nil {
			return nil, gerr
		}
		return cur, nil
	}

	job.Status = core.StatusFailed
	job.Error = err.Error()
	if uerr := e.storage.UpdateJob(ctx, job); uerr != nil {
		return nil, uerr
	}
	e.emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
	e.logger.Error("auto-run step failed",
		"project_id", job.ProjectID, "document", job.CurrentDocument, "error", err)
	return job, nil
}

// pause parks the job with an actionable reason. Pauses are state, not
// steps: nothing was executed.
func (e *Engine) pause(ctx context.Context, job *core.AutoRunJob, reason core.PauseReason, msg string) (*core.AutoRunJob, error) {
	job.Status = core.StatusPaused
	job.PauseReason = reason
	job.StopReason = msg
	if err := e.storage.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	e.emit(&core.JobPaused{Job: job, Reason: reason, Timestamp: time.Now()})
	e.logger.Info("auto-run paused", "project_id", job.ProjectID, "reason", string(reason), "detail", msg)
	return job, nil
}

// stopForBudget records a budget stop. Budget ceilings are hard: the
// stop is logged as a step and the job will not advance until resumed.
func (e *Engine) stopForBudget(ctx context.Context, job *core.AutoRunJob, reason core.PauseReason, msg string) (*core.AutoRunJob, error) {
	job.Status = core.StatusStopped
	job.PauseReason = reason
	job.StopReason = msg
	step := e.newStep(job, core.ActionStop, job.CurrentDocument, msg)
	if err := e.applyStep(ctx, job, step); err != nil {
		return nil, err
	}
	e.emit(&core.JobStopped{Job: job, Reason: msg, Timestamp: time.Now()})
	e.logger.Info("auto-run stopped", "project_id", job.ProjectID, "reason", string(reason))
	return job, nil
}

func (e *Engine) beginFlight(projectID string, cancel context.CancelFunc) bool {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()
	if _, ok := e.inFlight[projectID]; ok {
		return false
	}
	e.inFlight[projectID] = cancel
	return true
}

func (e *Engine) endFlight(projectID string) {
	e.flightMu.Lock()
	delete(e.inFlight, projectID)
	e.flightMu.Unlock()
}

func intPtr(v int) *int { return &v }
