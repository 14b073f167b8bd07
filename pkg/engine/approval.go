package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/draftline/autorun/pkg/core"
	"github.com/draftline/autorun/pkg/decision"
	"github.com/draftline/autorun/pkg/resolver"
)

// ApproveNext answers a pending approval. "approve" marks the pending
// version approved and promotes into its stage; "revise" sends it back
// for a rewrite (note becomes the directive); "stop" is a hard stop.
func (e *Engine) ApproveNext(ctx context.Context, projectID string, d core.ApprovalDecision, note string) (*core.AutoRunJob, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !job.AwaitingApproval {
		return nil, core.ErrNotAwaitingApproval
	}

	switch d {
	case core.ApproveAccept:
		if job.PendingVersionID != "" {
			if err := e.storage.ApproveVersion(ctx, job.PendingVersionID); err != nil {
				return nil, err
			}
		}
		stage := job.PendingDocType
		e.moveToStage(job, stage)
		job.Status = core.StatusRunning
		job.PauseReason = ""
		job.StopReason = ""
		if err := e.storage.UpdateJob(ctx, job); err != nil {
			return nil, err
		}
		e.emit(&core.JobResumed{Job: job, Timestamp: time.Now()})
		e.logger.Info("promotion approved", "project_id", projectID, "stage", stage)
		return job, nil

	case core.ApproveRevise:
		job.AwaitingApproval = false
		job.ReviseRequested = true
		job.ReviseNote = note
		job.Status = core.StatusRunning
		job.PauseReason = ""
		job.StopReason = ""
		if err := e.storage.UpdateJob(ctx, job); err != nil {
			return nil, err
		}
		e.emit(&core.JobResumed{Job: job, Timestamp: time.Now()})
		return job, nil

	case core.ApproveStop:
		job.AwaitingApproval = false
		job.Status = core.StatusStopped
		job.PauseReason = ""
		job.StopReason = fmt.Sprintf("stopped at %s approval", job.PendingDocType)
		if err := e.storage.UpdateJob(ctx, job); err != nil {
			return nil, err
		}
		e.emit(&core.JobStopped{Job: job, Reason: job.StopReason, Timestamp: time.Now()})
		return job, nil

	default:
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidApproval, d)
	}
}

// ApproveDecision resolves a pending decision with one of its options,
// or with OptionOther plus free text. The derived directive is consumed
// by the next rewrite. Resolving the last blocking decision moves a
// decision-paused job back to running.
func (e *Engine) ApproveDecision(ctx context.Context, projectID, decisionID, selectedOptionID, custom string) (*core.Decision, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	d, err := e.storage.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if d == nil || d.JobID != job.ID {
		return nil, fmt.Errorf("autorun: decision %q not found for project %q", decisionID, projectID)
	}

	directive, err := decision.DirectiveFor(d, selectedOptionID, custom)
	if err != nil {
		return nil, err
	}
	if err := e.storage.ResolveDecision(ctx, decisionID, selectedOptionID, custom, directive); err != nil {
		return nil, err
	}
	d, err = e.storage.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	e.emit(&core.DecisionResolved{Decision: d, Timestamp: time.Now()})
	e.logger.Info("decision resolved",
		"project_id", projectID, "note_id", d.NoteID, "option", selectedOptionID)

	if job.Status == core.StatusPaused && job.PauseReason == core.PauseDecisions {
		pending, err := e.storage.PendingDecisions(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if !decision.Blocks(pending, job.Mode) {
			job.Status = core.StatusRunning
			job.PauseReason = ""
			job.StopReason = ""
			if err := e.storage.UpdateJob(ctx, job); err != nil {
				return nil, err
			}
			e.emit(&core.JobResumed{Job: job, Timestamp: time.Now()})
		}
	}
	return d, nil
}

// AcknowledgeDrift marks a drift event seen without resolving it.
func (e *Engine) AcknowledgeDrift(ctx context.Context, projectID, eventID string) error {
	if _, err := e.driftEventFor(ctx, projectID, eventID); err != nil {
		return err
	}
	return e.storage.AcknowledgeDriftEvent(ctx, eventID)
}

// ResolveDrift records a drift resolution exactly once and applies its
// side effect: accept_drift adopts the new values as the baseline,
// intentional_pivot leaves the baseline alone, reseed schedules one
// regeneration of the current document from the inherited values.
func (e *Engine) ResolveDrift(ctx context.Context, projectID, eventID string, resolution core.DriftResolution) (*core.DriftEvent, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ev, err := e.driftEventFor(ctx, projectID, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Resolved {
		return nil, core.ErrDriftResolved
	}

	switch resolution {
	case core.ResolveAcceptDrift:
		v, err := e.storage.GetVersion(ctx, ev.VersionID)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, core.ErrNoVersion
		}
		v.Baseline = v.CoreValues
		if err := e.storage.UpdateVersion(ctx, v); err != nil {
			return nil, err
		}
	case core.ResolveIntentionalPivot:
		// Baseline untouched; downstream documents keep comparing
		// against the old values and surface for manual review.
		e.logger.Warn("intentional pivot accepted; downstream documents need manual review",
			"project_id", projectID, "document", ev.DocumentID)
	case core.ResolveReseed:
		job.RegenRequested = true
		if err := e.storage.UpdateJob(ctx, job); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("autorun: unknown drift resolution %q", resolution)
	}

	if err := e.storage.ResolveDriftEvent(ctx, eventID, resolution); err != nil {
		return nil, err
	}
	ev, err = e.storage.GetDriftEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	e.emit(&core.DriftResolved{Event: ev, Timestamp: time.Now()})

	if job.Status == core.StatusPaused && job.PauseReason == core.PauseMajorDrift {
		job.Status = core.StatusRunning
		job.PauseReason = ""
		job.StopReason = ""
		if err := e.storage.UpdateJob(ctx, job); err != nil {
			return nil, err
		}
		e.emit(&core.JobResumed{Job: job, Timestamp: time.Now()})
	}
	return ev, nil
}

// ForcePromote skips the promotion gating once: it clears any hard
// gate, approves a pending document if one is waiting, or generates
// the next stage regardless of scores. Always logged as a
// force_promote step.
func (e *Engine) ForcePromote(ctx context.Context, projectID string) (*core.AutoRunJob, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if job.Status == core.StatusCompleted {
		return nil, core.ErrJobTerminal
	}

	// Hard gates clear only through this override or a clean re-analysis.
	kept := make([]string, 0, len(job.LastRiskFlags))
	for _, f := range job.LastRiskFlags {
		if !strings.HasPrefix(f, core.HardGatePrefix) {
			kept = append(kept, f)
		}
	}
	gateCleared := len(kept) < len(job.LastRiskFlags)
	job.LastRiskFlags = kept
	job.Status = core.StatusRunning
	job.PauseReason = ""
	job.StopReason = ""

	if job.AwaitingApproval {
		stage := job.PendingDocType
		if job.PendingVersionID != "" {
			if err := e.storage.ApproveVersion(ctx, job.PendingVersionID); err != nil {
				return nil, err
			}
		}
		e.moveToStage(job, stage)
		step := e.newStep(job, core.ActionForcePromote, stage,
			fmt.Sprintf("forced promotion into %s past the approval gate", stage))
		if err := e.applyStep(ctx, job, step); err != nil {
			return nil, err
		}
		e.logger.Warn("forced promotion", "project_id", projectID, "stage", stage)
		return job, nil
	}

	// From here on the job itself is mutated, possibly through an
	// external generator call; same single-flight rule as RunNext.
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !e.beginFlight(projectID, cancel) {
		return nil, core.ErrStepInFlight
	}
	defer e.endFlight(projectID)

	if e.generator == nil || e.quals == nil {
		// A steering-only caller (operator console) can still lift a
		// hard gate; the in-process runner takes the next step.
		if !gateCleared {
			return nil, core.ErrMissingCollaborator
		}
		step := e.newStep(job, core.ActionForcePromote, job.CurrentDocument,
			fmt.Sprintf("hard gate on %s cleared by explicit override", job.CurrentDocument))
		if err := e.applyStep(stepCtx, job, step); err != nil {
			return nil, err
		}
		e.logger.Warn("hard gate overridden", "project_id", projectID, "stage", job.CurrentDocument)
		return job, nil
	}

	// Promoting past the scores needs a fresh generation.
	if job.CurrentDocument == "" {
		return nil, core.ErrNoCurrentDocument
	}
	next, err := e.ladders.Next(job.Format, job.CurrentDocument)
	if err != nil {
		return nil, err
	}
	if next == "" {
		return nil, fmt.Errorf("autorun: %q is the terminal stage; nothing to promote into", job.CurrentDocument)
	}

	quals, err := e.quals.Canonical(stepCtx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("autorun: read qualifications: %w", err)
	}
	source, err := e.currentVersion(stepCtx, job)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, core.ErrNoVersion
	}
	e.logger.Warn("forced promotion", "project_id", projectID, "stage", next)
	return e.generateStage(stepCtx, job, source, next, quals, resolver.ComputeHash(quals), core.ActionForcePromote)
}

func (e *Engine) driftEventFor(ctx context.Context, projectID, eventID string) (*core.DriftEvent, error) {
	job, err := e.Job(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ev, err := e.storage.GetDriftEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil || (ev.JobID != "" && ev.JobID != job.ID) {
		return nil, fmt.Errorf("autorun: drift event %q not found for project %q", eventID, projectID)
	}
	return ev, nil
}
