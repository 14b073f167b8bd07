package core

import "context"

// Starter is the interface for starting background runners.
type Starter interface {
	Start(ctx context.Context) error
}

// Storage defines the persistence layer for auto-run state.
//
// The job row is exclusively owned by the engine; steps are
// append-only; decisions and drift events are mutated only through the
// documented resolution methods.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle. GetJob returns (nil, nil) when the project has no
	// job. CreateJob returns ErrJobExists if a job already exists for
	// the project.
	CreateJob(ctx context.Context, job *AutoRunJob) error
	GetJob(ctx context.Context, projectID string) (*AutoRunJob, error)
	GetJobByID(ctx context.Context, jobID string) (*AutoRunJob, error)
	UpdateJob(ctx context.Context, job *AutoRunJob) error
	DeleteJob(ctx context.Context, projectID string) error

	// ApplyStep appends the step and persists the job in one
	// transaction, guarded by the job's previous step count. Returns
	// ErrStaleAdvance if the job advanced concurrently.
	ApplyStep(ctx context.Context, job *AutoRunJob, step *AutoRunStep) error

	// Step log (append-only, ordered by step index)
	GetSteps(ctx context.Context, jobID string) ([]AutoRunStep, error)
	GetStep(ctx context.Context, jobID string, index int) (*AutoRunStep, error)

	// Document versions
	SaveVersion(ctx context.Context, v *DocumentVersion) error
	GetVersion(ctx context.Context, versionID string) (*DocumentVersion, error)
	UpdateVersion(ctx context.Context, v *DocumentVersion) error
	LatestVersion(ctx context.Context, projectID, stage string) (*DocumentVersion, error)
	ApproveVersion(ctx context.Context, versionID string) error

	// Decisions
	SaveDecisions(ctx context.Context, decisions []*Decision) error
	GetDecision(ctx context.Context, decisionID string) (*Decision, error)
	PendingDecisions(ctx context.Context, jobID string) ([]*Decision, error)
	ResolveDecision(ctx context.Context, decisionID, selectedOptionID, custom, directive string) error
	UnconsumedDirectives(ctx context.Context, jobID string) ([]*Decision, error)
	ConsumeDirectives(ctx context.Context, jobID string, decisionIDs []string) error

	// Drift events
	SaveDriftEvent(ctx context.Context, ev *DriftEvent) error
	GetDriftEvent(ctx context.Context, eventID string) (*DriftEvent, error)
	DriftEventForVersion(ctx context.Context, versionID string) (*DriftEvent, error)
	OpenDriftEvents(ctx context.Context, documentID string) ([]*DriftEvent, error)
	AcknowledgeDriftEvent(ctx context.Context, eventID string) error
	ResolveDriftEvent(ctx context.Context, eventID string, resolution DriftResolution) error

	// RunnableJobs returns jobs in running status, for the background
	// runner's sweep.
	RunnableJobs(ctx context.Context, limit int) ([]*AutoRunJob, error)
}
