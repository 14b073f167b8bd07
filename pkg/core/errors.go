package core

import "errors"

// Validation and invariant errors. Policy stops (budgets, staleness,
// hard gates, unresolved drift) are never errors: they surface as job
// state with a reason string.
var (
	ErrJobExists            = errors.New("autorun: project already has an active job")
	ErrNoJob                = errors.New("autorun: no job for project")
	ErrJobNotRunning        = errors.New("autorun: job is not running")
	ErrJobTerminal          = errors.New("autorun: job is in a terminal state")
	ErrStepInFlight         = errors.New("autorun: a step is already in flight for this job")
	ErrStaleAdvance         = errors.New("autorun: job advanced concurrently; result discarded")
	ErrUnknownStage         = errors.New("autorun: stage not present in ladder")
	ErrUnknownOption        = errors.New("autorun: unknown decision option id")
	ErrDecisionResolved     = errors.New("autorun: decision already resolved")
	ErrDriftResolved        = errors.New("autorun: drift event already resolved")
	ErrNotAwaitingApproval  = errors.New("autorun: job is not awaiting approval")
	ErrNoCurrentDocument    = errors.New("autorun: job has no current document")
	ErrNoVersion            = errors.New("autorun: no version recorded for document")
	ErrMissingCollaborator  = errors.New("autorun: required collaborator not configured")
	ErrInvalidApproval      = errors.New("autorun: invalid approval decision")
	ErrCustomTextRequired   = errors.New("autorun: free-form resolution requires text")
	ErrJobNotTerminal       = errors.New("autorun: job must be terminal to clear")
)
