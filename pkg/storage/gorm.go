// Package storage provides storage implementations for the autorun package.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/draftline/autorun/pkg/core"
)

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&core.AutoRunJob{},
		&core.AutoRunStep{},
		&core.DocumentVersion{},
		&core.Decision{},
		&core.DriftEvent{},
	)
}

// CreateJob inserts the job for a project. A project may hold at most
// one job; a second insert returns ErrJobExists.
func (s *GormStorage) CreateJob(ctx context.Context, job *core.AutoRunJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusQueued
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.AutoRunJob{}).
		Where("project_id = ?", job.ProjectID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return core.ErrJobExists
	}

	return s.db.WithContext(ctx).Create(job).Error
}

// GetJob retrieves the job for a project, or (nil, nil) if none.
func (s *GormStorage) GetJob(ctx context.Context, projectID string) (*core.AutoRunJob, error) {
	var job core.AutoRunJob
	err := s.db.WithContext(ctx).First(&job, "project_id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobByID retrieves a job by its id, or (nil, nil) if none.
func (s *GormStorage) GetJobByID(ctx context.Context, jobID string) (*core.AutoRunJob, error) {
	var job core.AutoRunJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob persists all job fields.
func (s *GormStorage) UpdateJob(ctx context.Context, job *core.AutoRunJob) error {
	return s.db.WithContext(ctx).
		Model(&core.AutoRunJob{}).
		Where("id = ?", job.ID).
		Select("*").
		Omit("created_at").
		Updates(job).Error
}

// DeleteJob removes a project's job together with its steps, decisions
// and drift events.
func (s *GormStorage) DeleteJob(ctx context.Context, projectID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job core.AutoRunJob
		err := tx.First(&job, "project_id = ?", projectID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.ErrNoJob
		}
		if err != nil {
			return err
		}
		if err := tx.Where("job_id = ?", job.ID).Delete(&core.AutoRunStep{}).Error; err != nil {
			return err
		}
		if err := tx.Where("job_id = ?", job.ID).Delete(&core.Decision{}).Error; err != nil {
			return err
		}
		if err := tx.Where("job_id = ?", job.ID).Delete(&core.DriftEvent{}).Error; err != nil {
			return err
		}
		return tx.Delete(&job).Error
	})
}

// ApplyStep appends the step and saves the job in one transaction. The
// update is guarded by the job's previous step count so that a
// concurrent advance (or a stop that landed mid-flight) causes the
// late result to be discarded with ErrStaleAdvance.
func (s *GormStorage) ApplyStep(ctx context.Context, job *core.AutoRunJob, step *core.AutoRunStep) error {
	if step.ID == "" {
		step.ID = ulid.Make().String()
	}
	step.JobID = job.ID

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&core.AutoRunJob{}).
			Where("id = ? AND step_count = ?", job.ID, step.StepIndex-1).
			Select("*").
			Omit("created_at").
			Updates(job)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return core.ErrStaleAdvance
		}
		return tx.Create(step).Error
	})
}

// GetSteps returns a job's step log in order.
func (s *GormStorage) GetSteps(ctx context.Context, jobID string) ([]core.AutoRunStep, error) {
	var steps []core.AutoRunStep
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("step_index ASC").
		Find(&steps).Error
	return steps, err
}

// GetStep returns one step by index, or (nil, nil) if absent.
func (s *GormStorage) GetStep(ctx context.Context, jobID string, index int) (*core.AutoRunStep, error) {
	var step core.AutoRunStep
	err := s.db.WithContext(ctx).
		First(&step, "job_id = ? AND step_index = ?", jobID, index).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// SaveVersion stores document version metadata.
func (s *GormStorage) SaveVersion(ctx context.Context, v *core.DocumentVersion) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.Version == 0 {
		v.Version = 1
	}
	return s.db.WithContext(ctx).Create(v).Error
}

// GetVersion retrieves a version by id, or (nil, nil) if absent.
func (s *GormStorage) GetVersion(ctx context.Context, versionID string) (*core.DocumentVersion, error) {
	var v core.DocumentVersion
	err := s.db.WithContext(ctx).First(&v, "id = ?", versionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateVersion persists all version fields.
func (s *GormStorage) UpdateVersion(ctx context.Context, v *core.DocumentVersion) error {
	return s.db.WithContext(ctx).
		Model(&core.DocumentVersion{}).
		Where("id = ?", v.ID).
		Select("*").
		Omit("created_at").
		Updates(v).Error
}

// LatestVersion returns the newest version of a stage within a
// project, or (nil, nil) if the stage has no versions yet.
func (s *GormStorage) LatestVersion(ctx context.Context, projectID, stage string) (*core.DocumentVersion, error) {
	var v core.DocumentVersion
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND stage = ?", projectID, stage).
		Order("version DESC, created_at DESC").
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ApproveVersion marks a version approved.
func (s *GormStorage) ApproveVersion(ctx context.Context, versionID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.DocumentVersion{}).
		Where("id = ?", versionID).
		Updates(map[string]any{"approved": true, "approved_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrNoVersion
	}
	return nil
}

// SaveDecisions stores a batch of decision records.
func (s *GormStorage) SaveDecisions(ctx context.Context, decisions []*core.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	for _, d := range decisions {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
	}
	return s.db.WithContext(ctx).Create(decisions).Error
}

// GetDecision retrieves a decision by id, or (nil, nil) if absent.
func (s *GormStorage) GetDecision(ctx context.Context, decisionID string) (*core.Decision, error) {
	var d core.Decision
	err := s.db.WithContext(ctx).First(&d, "id = ?", decisionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// PendingDecisions returns the job's unresolved decisions in creation
// order.
func (s *GormStorage) PendingDecisions(ctx context.Context, jobID string) ([]*core.Decision, error) {
	var decisions []*core.Decision
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND resolved_at IS NULL", jobID).
		Order("created_at ASC").
		Find(&decisions).Error
	return decisions, err
}

// ResolveDecision records a resolution exactly once. A second
// resolution attempt returns ErrDecisionResolved.
func (s *GormStorage) ResolveDecision(ctx context.Context, decisionID, selectedOptionID, custom, directive string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Decision{}).
		Where("id = ? AND resolved_at IS NULL", decisionID).
		Updates(map[string]any{
			"selected_option_id": selectedOptionID,
			"custom_resolution":  custom,
			"directive":          directive,
			"resolved_at":        now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		existing, err := s.GetDecision(ctx, decisionID)
		if err != nil {
			return err
		}
		if existing == nil {
			return gorm.ErrRecordNotFound
		}
		return core.ErrDecisionResolved
	}
	return nil
}

// UnconsumedDirectives returns resolved decisions whose directives have
// not yet been consumed by a rewrite.
func (s *GormStorage) UnconsumedDirectives(ctx context.Context, jobID string) ([]*core.Decision, error) {
	var decisions []*core.Decision
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND resolved_at IS NOT NULL AND consumed_at IS NULL", jobID).
		Order("resolved_at ASC").
		Find(&decisions).Error
	return decisions, err
}

// ConsumeDirectives marks directives consumed by a rewrite step.
func (s *GormStorage) ConsumeDirectives(ctx context.Context, jobID string, decisionIDs []string) error {
	if len(decisionIDs) == 0 {
		return nil
	}
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&core.Decision{}).
		Where("job_id = ? AND id IN ?", jobID, decisionIDs).
		Update("consumed_at", now).Error
}

// SaveDriftEvent stores a drift event.
func (s *GormStorage) SaveDriftEvent(ctx context.Context, ev *core.DriftEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(ev).Error
}

// GetDriftEvent retrieves a drift event by id, or (nil, nil) if absent.
func (s *GormStorage) GetDriftEvent(ctx context.Context, eventID string) (*core.DriftEvent, error) {
	var ev core.DriftEvent
	err := s.db.WithContext(ctx).First(&ev, "id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// DriftEventForVersion returns the drift event recorded for a version,
// or (nil, nil) if the version has none.
func (s *GormStorage) DriftEventForVersion(ctx context.Context, versionID string) (*core.DriftEvent, error) {
	var ev core.DriftEvent
	err := s.db.WithContext(ctx).First(&ev, "version_id = ?", versionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// OpenDriftEvents returns a document's unresolved drift events.
func (s *GormStorage) OpenDriftEvents(ctx context.Context, documentID string) ([]*core.DriftEvent, error) {
	var events []*core.DriftEvent
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND resolved = ?", documentID, false).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// AcknowledgeDriftEvent marks an event seen by a human without
// resolving it.
func (s *GormStorage) AcknowledgeDriftEvent(ctx context.Context, eventID string) error {
	result := s.db.WithContext(ctx).
		Model(&core.DriftEvent{}).
		Where("id = ?", eventID).
		Update("acknowledged", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ResolveDriftEvent records a resolution exactly once. A second
// attempt returns ErrDriftResolved.
func (s *GormStorage) ResolveDriftEvent(ctx context.Context, eventID string, resolution core.DriftResolution) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.DriftEvent{}).
		Where("id = ? AND resolved = ?", eventID, false).
		Updates(map[string]any{
			"resolved":        true,
			"acknowledged":    true,
			"resolution_type": resolution,
			"resolved_at":     now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		existing, err := s.GetDriftEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if existing == nil {
			return gorm.ErrRecordNotFound
		}
		return core.ErrDriftResolved
	}
	return nil
}

// RunnableJobs returns jobs in running status, oldest first.
func (s *GormStorage) RunnableJobs(ctx context.Context, limit int) ([]*core.AutoRunJob, error) {
	var jobList []*core.AutoRunJob
	err := s.db.WithContext(ctx).
		Where("status = ?", core.StatusRunning).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobList).Error
	return jobList, err
}
