package core

import "time"

// Event is the interface for all engine events.
type Event interface {
	eventMarker()
}

// StepAppended is emitted after every step the engine records.
type StepAppended struct {
	Job       *AutoRunJob
	Step      *AutoRunStep
	Timestamp time.Time
}

func (*StepAppended) eventMarker() {}

// JobPaused is emitted when a job pauses for a human or a policy
// condition.
type JobPaused struct {
	Job       *AutoRunJob
	Reason    PauseReason
	Timestamp time.Time
}

func (*JobPaused) eventMarker() {}

// JobResumed is emitted when a paused, stopped or failed job resumes.
type JobResumed struct {
	Job       *AutoRunJob
	Timestamp time.Time
}

func (*JobResumed) eventMarker() {}

// JobStopped is emitted on explicit or budget stops.
type JobStopped struct {
	Job       *AutoRunJob
	Reason    string
	Timestamp time.Time
}

func (*JobStopped) eventMarker() {}

// JobFailed is emitted when an external collaborator call fails.
type JobFailed struct {
	Job       *AutoRunJob
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobCompleted is emitted when the target stage converges.
type JobCompleted struct {
	Job       *AutoRunJob
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// ApprovalRequested is emitted when a generated stage needs human
// sign-off before promotion.
type ApprovalRequested struct {
	Job          *AutoRunJob
	ApprovalType ApprovalType
	DocID        string
	DocType      string
	Timestamp    time.Time
}

func (*ApprovalRequested) eventMarker() {}

// DecisionResolved is emitted when a human resolves a pending decision.
type DecisionResolved struct {
	Decision  *Decision
	Timestamp time.Time
}

func (*DecisionResolved) eventMarker() {}

// DriftDetected is emitted when a new version drifts from its ancestor.
type DriftDetected struct {
	Event     *DriftEvent
	Timestamp time.Time
}

func (*DriftDetected) eventMarker() {}

// DriftResolved is emitted when a drift event receives its resolution.
type DriftResolved struct {
	Event     *DriftEvent
	Timestamp time.Time
}

func (*DriftResolved) eventMarker() {}
