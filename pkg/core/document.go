package core

import "time"

// Qualifications are the canonical project fields that affect
// generation (format, episode duration bounds, season episode count,
// and so on). Generated versions record the resolver hash of the
// qualifications they were produced against.
type Qualifications map[string]string

// CoreValues are the narrative attributes compared by the drift
// detector (protagonist, stakes, tone, world rules, comparables).
type CoreValues map[string]string

// DocumentVersion is the metadata the orchestrator keeps for a version
// produced by a collaborator. The text itself stays behind the
// TextFetcher collaborator.
type DocumentVersion struct {
	ID         string `gorm:"primaryKey;size:36"`
	ProjectID  string `gorm:"index;size:36;not null"`
	DocumentID string `gorm:"index;size:36;not null"`
	Stage      string `gorm:"index;size:64;not null"`
	Version    int    `gorm:"default:1"`

	// SourceVersionID is the upstream ancestor this version was
	// generated or rewritten from.
	SourceVersionID string `gorm:"size:36"`

	// DependsOnResolverHash fingerprints the qualifications this
	// version was generated against. Empty means unknown provenance;
	// such versions are never auto-flagged stale.
	DependsOnResolverHash string         `gorm:"size:64"`
	QualSnapshot          Qualifications `gorm:"type:text;serializer:json"`

	// CoreValues are this version's narrative attributes; Baseline is
	// the set inherited from the upstream ancestor, used by the drift
	// detector.
	CoreValues CoreValues `gorm:"type:text;serializer:json"`
	Baseline   CoreValues `gorm:"type:text;serializer:json"`

	Approved   bool
	ApprovedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Analysis is the result of one external Analyze call. It is recorded
// on the job and the review step, not persisted on its own.
type Analysis struct {
	CI          int
	GP          int
	Gap         int
	Readiness   int
	Confidence  int
	Convergence bool
	RiskFlags   []string
	Notes       []Note
}

// Note is a review finding. Notes with multiple viable options become
// pending decisions requiring a human pick.
type Note struct {
	NoteID              string
	Severity            Severity
	Text                string
	Options             []DecisionOption
	RecommendedOptionID string
}
