// Package core provides the domain models and interfaces for the autorun package.
package core

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of an auto-run job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusPaused    JobStatus = "paused"    // Waiting on a human or a policy condition
	StatusStopped   JobStatus = "stopped"   // Stopped explicitly or by budget; resumable
	StatusFailed    JobStatus = "failed"    // External collaborator error; resumable
	StatusCompleted JobStatus = "completed" // Target stage reached and converged
)

// Terminal reports whether the status never advances without an
// explicit resume or restart call.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusPaused, StatusStopped, StatusFailed, StatusCompleted:
		return true
	}
	return false
}

// Mode selects the step and loop budgets for a job.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeBalanced Mode = "balanced"
	ModePremium  Mode = "premium"
)

// Budget holds the hard ceilings and promotion floor for a mode.
// Ceilings are not advisory: exceeding them always produces a stop.
type Budget struct {
	MaxTotalSteps    int
	MaxStageLoops    int
	PromoteReadiness int
}

// Budget returns the budget for the mode. Unknown modes get the
// balanced budget.
func (m Mode) Budget() Budget {
	switch m {
	case ModeFast:
		return Budget{MaxTotalSteps: 8, MaxStageLoops: 2, PromoteReadiness: 70}
	case ModePremium:
		return Budget{MaxTotalSteps: 24, MaxStageLoops: 4, PromoteReadiness: 82}
	default:
		return Budget{MaxTotalSteps: 16, MaxStageLoops: 3, PromoteReadiness: 75}
	}
}

// Valid reports whether the mode is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeFast || m == ModeBalanced || m == ModePremium
}

// PauseReason explains why a job is paused or stopped.
type PauseReason string

const (
	PauseStepLimit      PauseReason = "step_limit"
	PauseStageLoopLimit PauseReason = "stage_loop_limit"
	PauseStaleDocument  PauseReason = "stale_document"
	PauseHardGate       PauseReason = "hard_gate"
	PauseDecisions      PauseReason = "pending_decisions"
	PauseApproval       PauseReason = "awaiting_approval"
	PauseMajorDrift     PauseReason = "unresolved_drift"
	PauseMissingSeed    PauseReason = "missing_seed"
	PauseManual         PauseReason = "manual"
)

// ApprovalType classifies the human sign-off a promotion is waiting on.
type ApprovalType string

const (
	ApprovalConvert      ApprovalType = "convert"
	ApprovalSeriesWriter ApprovalType = "series_writer"
)

// ApprovalDecision is a caller's answer to a pending approval.
type ApprovalDecision string

const (
	ApproveAccept ApprovalDecision = "approve"
	ApproveRevise ApprovalDecision = "revise"
	ApproveStop   ApprovalDecision = "stop"
)

// HardGatePrefix marks risk flags that require an explicit human
// override before the pipeline may continue.
const HardGatePrefix = "hard_gate:"

// HardGates returns the hard-gate flags in the list.
func HardGates(flags []string) []string {
	var gates []string
	for _, f := range flags {
		if strings.HasPrefix(f, HardGatePrefix) {
			gates = append(gates, f)
		}
	}
	return gates
}

// AutoRunJob is the orchestrator job for a project. A project owns at
// most one job; the engine is its only writer.
type AutoRunJob struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ProjectID string    `gorm:"uniqueIndex;size:36;not null"`
	Status    JobStatus `gorm:"index;size:20;default:'queued'"`
	Mode      Mode      `gorm:"size:20;not null"`
	Format    string    `gorm:"size:32"` // ladder selector, captured at start

	CurrentDocument string `gorm:"size:64"`
	TargetDocument  string `gorm:"size:64"`

	StepCount      int
	MaxTotalSteps  int
	StageLoopCount int // resets to 0 whenever CurrentDocument changes
	MaxStageLoops  int

	// Approval gate state
	AwaitingApproval   bool
	ApprovalType       ApprovalType `gorm:"size:32"`
	PendingDocID       string       `gorm:"size:36"`
	PendingDocType     string       `gorm:"size:64"`
	PendingNextDocType string       `gorm:"size:64"`
	PendingVersionID   string       `gorm:"size:36"`

	// Resume source policy: follow the newest version, or a pin set
	// via SetResumeSource.
	FollowLatest     bool   `gorm:"default:true"`
	ResumeDocumentID string `gorm:"size:36"`
	ResumeVersionID  string `gorm:"size:36"`

	// Scores surfaced by the most recent review step
	LastCI                int
	LastGP                int
	LastGap               int
	LastReadiness         int
	LastConfidence        int
	LastRiskFlags         []string `gorm:"type:text;serializer:json"`
	LastAnalyzedVersionID string   `gorm:"size:36"`
	Converged             bool

	// Work scheduled by resolution calls, consumed by the next advance
	ReviseRequested bool   // ApproveNext(revise): rewrite the pending document
	ReviseNote      string `gorm:"type:text"`
	RegenRequested  bool // drift reseed: regenerate from the ancestor's core values
	SkipStaleCheck  bool // set by resuming past a stale pause ("continue as-is"), cleared when the document is fresh again

	StopReason  string      `gorm:"type:text"`
	PauseReason PauseReason `gorm:"size:32"`
	Error       string      `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// HardGated reports whether the last review surfaced any hard-gate flag.
func (j *AutoRunJob) HardGated() bool {
	return len(HardGates(j.LastRiskFlags)) > 0
}

// StepAction identifies what the orchestrator did in a step.
type StepAction string

const (
	ActionStart            StepAction = "start"
	ActionReview           StepAction = "review"
	ActionRewrite          StepAction = "rewrite"
	ActionGenerate         StepAction = "generate"
	ActionPromotionCheck   StepAction = "promotion_check"
	ActionApprovalRequired StepAction = "approval_required"
	ActionStop             StepAction = "stop"
	ActionForcePromote     StepAction = "force_promote"
	ActionSetStage         StepAction = "set_stage"
)

// AutoRunStep is one append-only entry in a job's step log. Steps are
// keyed by a per-job monotonically increasing index and are never
// mutated or deleted.
type AutoRunStep struct {
	ID        string     `gorm:"primaryKey;size:26"`
	JobID     string     `gorm:"index:idx_job_step,unique;size:36;not null"`
	StepIndex int        `gorm:"index:idx_job_step,unique;not null"`
	Action    StepAction `gorm:"size:24;not null"`
	Document  string     `gorm:"size:64"`
	Summary   string     `gorm:"type:text"`
	RiskFlags []string   `gorm:"type:text;serializer:json"`

	Readiness  *int
	Confidence *int
	CI         *int

	// OutputRef points at the document version produced by this step.
	// It doubles as the idempotency marker for external calls keyed by
	// (job, step_index, action).
	OutputRef string `gorm:"size:36"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
