// Package autorun provides an autonomous pipeline orchestrator for
// staged creative documents. A job walks a project's documents up a
// stage ladder one reviewable step at a time, pausing for humans at
// approvals, blocking decisions, hard gates and unresolved drift.
//
// This is the main package users should import. It re-exports all public
// types from the internal pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Create storage and engine
//	db, _ := gorm.Open(sqlite.Open("autorun.db"), &gorm.Config{})
//	store := autorun.NewGormStorage(db)
//	store.Migrate(context.Background())
//	eng := autorun.NewEngine(store,
//	    autorun.WithAnalyzer(analyzer),
//	    autorun.WithRewriter(rewriter),
//	    autorun.WithGenerator(generator),
//	    autorun.WithQualifications(quals),
//	)
//
//	// Start a job and let the runner advance it
//	eng.Start(ctx, projectID, autorun.ModeBalanced, "", "")
//	runner := autorun.NewRunner(eng, autorun.PollInterval(time.Second))
//	runner.Start(ctx)
package autorun

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/draftline/autorun/pkg/core"
	"github.com/draftline/autorun/pkg/decision"
	"github.com/draftline/autorun/pkg/drift"
	"github.com/draftline/autorun/pkg/engine"
	"github.com/draftline/autorun/pkg/ladder"
	"github.com/draftline/autorun/pkg/resolver"
	"github.com/draftline/autorun/pkg/runner"
	"github.com/draftline/autorun/pkg/schedule"
	"github.com/draftline/autorun/pkg/storage"
)

// Type aliases so callers rarely need the pkg/ packages directly.
type (
	// Job is one project's pipeline state machine.
	Job = core.AutoRunJob

	// Step is one append-only entry in a job's step log.
	Step = core.AutoRunStep

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// Mode selects the step and loop budgets for a job.
	Mode = core.Mode

	// Budget holds the hard ceilings and promotion floor for a mode.
	Budget = core.Budget

	// PauseReason explains why a job is paused.
	PauseReason = core.PauseReason

	// StepAction classifies a step log entry.
	StepAction = core.StepAction

	// ApprovalType classifies the human sign-off a promotion waits on.
	ApprovalType = core.ApprovalType

	// ApprovalDecision is a caller's answer to a pending approval.
	ApprovalDecision = core.ApprovalDecision

	// Qualifications are the project's canonical resolved inputs.
	Qualifications = core.Qualifications

	// CoreValues are the narrative attributes tracked for drift.
	CoreValues = core.CoreValues

	// DocumentVersion is one immutable snapshot of a staged document.
	DocumentVersion = core.DocumentVersion

	// Analysis is the reviewer's scoring of a version.
	Analysis = core.Analysis

	// Note is a single reviewer finding inside an Analysis.
	Note = core.Note

	// Decision is a pending or resolved human decision.
	Decision = core.Decision

	// DecisionOption is one selectable answer on a decision.
	DecisionOption = core.DecisionOption

	// Severity of a review note.
	Severity = core.Severity

	// CreativeRisk grades a decision option.
	CreativeRisk = core.CreativeRisk

	// DriftLevel classifies drift from the upstream ancestor.
	DriftLevel = core.DriftLevel

	// DriftResolution is the human's answer to a drift event.
	DriftResolution = core.DriftResolution

	// DriftEvent records one ancestor comparison for a version.
	DriftEvent = core.DriftEvent

	// DriftItem is the per-field comparison inside a drift event.
	DriftItem = core.DriftItem

	// Storage defines the persistence layer for jobs and documents.
	Storage = core.Storage

	// Event is the interface for all engine events.
	Event = core.Event

	// StepAppended is emitted after every step the engine records.
	StepAppended = core.StepAppended

	// JobPaused is emitted when a job pauses for a human or a policy
	// condition.
	JobPaused = core.JobPaused

	// JobResumed is emitted when a paused, stopped or failed job resumes.
	JobResumed = core.JobResumed

	// JobStopped is emitted on explicit or budget stops.
	JobStopped = core.JobStopped

	// JobFailed is emitted when an external collaborator call fails.
	JobFailed = core.JobFailed

	// JobCompleted is emitted when the target stage converges.
	JobCompleted = core.JobCompleted

	// ApprovalRequested is emitted when a generated stage needs human
	// sign-off before promotion.
	ApprovalRequested = core.ApprovalRequested

	// DecisionResolved is emitted when a human resolves a decision.
	DecisionResolved = core.DecisionResolved

	// DriftDetected is emitted when a new version drifts from its
	// ancestor.
	DriftDetected = core.DriftDetected

	// DriftResolved is emitted when a drift event gets its resolution.
	DriftResolved = core.DriftResolved

	// Engine drives jobs through the stage ladder.
	Engine = engine.Engine

	// EngineOption configures an Engine.
	EngineOption = engine.Option

	// PendingDoc describes the document a paused job is waiting on.
	PendingDoc = engine.PendingDoc

	// Analyzer reviews a version and scores it.
	Analyzer = engine.Analyzer

	// Rewriter produces a new version of a document from directives.
	Rewriter = engine.Rewriter

	// Generator seeds the next stage's document from a source version.
	Generator = engine.Generator

	// TextFetcher loads stored document text for display.
	TextFetcher = engine.TextFetcher

	// QualificationSource returns a project's canonical qualifications.
	QualificationSource = engine.QualificationSource

	// Ladders holds the stage ladders per format plus approval policy.
	Ladders = ladder.Set

	// DriftDetector compares versions against their ancestors.
	DriftDetector = drift.Detector

	// Runner sweeps running jobs in the background.
	Runner = runner.Runner

	// RunnerOption configures a Runner.
	RunnerOption = runner.Option

	// Schedule defines when the runner should next sweep.
	Schedule = schedule.Schedule

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage
)

// Status constants
const (
	StatusQueued    = core.StatusQueued
	StatusRunning   = core.StatusRunning
	StatusPaused    = core.StatusPaused
	StatusStopped   = core.StatusStopped
	StatusFailed    = core.StatusFailed
	StatusCompleted = core.StatusCompleted
)

// Mode constants
const (
	ModeFast     = core.ModeFast
	ModeBalanced = core.ModeBalanced
	ModePremium  = core.ModePremium
)

// Pause reasons
const (
	PauseStepLimit      = core.PauseStepLimit
	PauseStageLoopLimit = core.PauseStageLoopLimit
	PauseStaleDocument  = core.PauseStaleDocument
	PauseHardGate       = core.PauseHardGate
	PauseDecisions      = core.PauseDecisions
	PauseApproval       = core.PauseApproval
	PauseMajorDrift     = core.PauseMajorDrift
	PauseMissingSeed    = core.PauseMissingSeed
	PauseManual         = core.PauseManual
)

// Approval decisions
const (
	ApproveAccept = core.ApproveAccept
	ApproveRevise = core.ApproveRevise
	ApproveStop   = core.ApproveStop
)

// Drift levels and resolutions
const (
	DriftNone  = core.DriftNone
	DriftMinor = core.DriftMinor
	DriftMajor = core.DriftMajor

	ResolveAcceptDrift      = core.ResolveAcceptDrift
	ResolveIntentionalPivot = core.ResolveIntentionalPivot
	ResolveReseed           = core.ResolveReseed
)

// OptionOther is the sentinel option id for a free-form resolution.
const OptionOther = core.OptionOther

// HardGatePrefix marks risk flags needing an explicit human override.
const HardGatePrefix = core.HardGatePrefix

// Error variables
var (
	ErrJobExists           = core.ErrJobExists
	ErrNoJob               = core.ErrNoJob
	ErrJobNotRunning       = core.ErrJobNotRunning
	ErrJobTerminal         = core.ErrJobTerminal
	ErrStepInFlight        = core.ErrStepInFlight
	ErrStaleAdvance        = core.ErrStaleAdvance
	ErrUnknownStage        = core.ErrUnknownStage
	ErrUnknownOption       = core.ErrUnknownOption
	ErrDecisionResolved    = core.ErrDecisionResolved
	ErrDriftResolved       = core.ErrDriftResolved
	ErrNotAwaitingApproval = core.ErrNotAwaitingApproval
	ErrNoCurrentDocument   = core.ErrNoCurrentDocument
	ErrNoVersion           = core.ErrNoVersion
	ErrMissingCollaborator = core.ErrMissingCollaborator
	ErrInvalidApproval     = core.ErrInvalidApproval
	ErrCustomTextRequired  = core.ErrCustomTextRequired
	ErrJobNotTerminal      = core.ErrJobNotTerminal
)

// NewEngine creates an engine with the given storage backend.
func NewEngine(s Storage, opts ...EngineOption) *Engine {
	return engine.New(s, opts...)
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewRunner creates a background runner for the given engine.
func NewRunner(eng *Engine, opts ...RunnerOption) *Runner {
	return runner.New(eng, opts...)
}

// DefaultLadders returns the built-in stage ladders and approval policy.
func DefaultLadders() *Ladders {
	return ladder.Default()
}

// LoadLadders reads a ladder configuration file.
func LoadLadders(path string) (*Ladders, error) {
	return ladder.Load(path)
}

// NewDriftDetector creates a drift detector with default thresholds.
func NewDriftDetector(opts ...drift.Option) *DriftDetector {
	return drift.New(opts...)
}

// ResolverHash computes the canonical hash of a qualification set.
func ResolverHash(q Qualifications) string {
	return resolver.ComputeHash(q)
}

// HardGates returns the hard-gate flags in the list.
func HardGates(flags []string) []string {
	return core.HardGates(flags)
}

// BlockingDecisions reports whether the pending decisions block
// advancement under the given mode.
func BlockingDecisions(pending []*Decision, mode Mode) bool {
	return decision.Blocks(pending, mode)
}

// Engine option functions

// WithAnalyzer sets the reviewer collaborator.
func WithAnalyzer(a Analyzer) EngineOption {
	return engine.WithAnalyzer(a)
}

// WithRewriter sets the rewrite collaborator.
func WithRewriter(r Rewriter) EngineOption {
	return engine.WithRewriter(r)
}

// WithGenerator sets the stage-generation collaborator.
func WithGenerator(g Generator) EngineOption {
	return engine.WithGenerator(g)
}

// WithTextFetcher sets the document text loader.
func WithTextFetcher(f TextFetcher) EngineOption {
	return engine.WithTextFetcher(f)
}

// WithQualifications sets the qualification source.
func WithQualifications(q QualificationSource) EngineOption {
	return engine.WithQualifications(q)
}

// WithLadders overrides the default stage ladders.
func WithLadders(s *Ladders) EngineOption {
	return engine.WithLadders(s)
}

// WithDriftDetector overrides the default drift detector.
func WithDriftDetector(d *DriftDetector) EngineOption {
	return engine.WithDriftDetector(d)
}

// WithProtectItems names elements rewrites must preserve verbatim.
func WithProtectItems(items []string) EngineOption {
	return engine.WithProtectItems(items)
}

// WithLogger replaces the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return engine.WithLogger(l)
}

// Runner option functions

// PollInterval sets how often the runner checks for runnable jobs.
func PollInterval(d time.Duration) RunnerOption {
	return runner.PollInterval(d)
}

// SweepLimit caps how many jobs a single sweep advances.
func SweepLimit(n int) RunnerOption {
	return runner.SweepLimit(n)
}

// WithSchedule gates runner sweeps on a schedule.
func WithSchedule(s Schedule) RunnerOption {
	return runner.WithSchedule(s)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}
