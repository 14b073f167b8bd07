package core

import "time"

// DriftLevel classifies how far a version's core narrative attributes
// have moved from its upstream ancestor.
type DriftLevel string

const (
	DriftNone  DriftLevel = "none"
	DriftMinor DriftLevel = "minor" // structural drift; advisory
	DriftMajor DriftLevel = "major" // pivot; blocks promotion until resolved
)

// DriftResolution is the human's answer to a drift event.
type DriftResolution string

const (
	// ResolveAcceptDrift adopts the new values as the baseline for
	// downstream comparisons.
	ResolveAcceptDrift DriftResolution = "accept_drift"
	// ResolveIntentionalPivot resolves without changing the baseline;
	// downstream documents are flagged for manual review.
	ResolveIntentionalPivot DriftResolution = "intentional_pivot"
	// ResolveReseed schedules regeneration of the current document
	// from the ancestor's core values.
	ResolveReseed DriftResolution = "reseed"
)

// DriftItem is the per-field comparison inside a drift event.
type DriftItem struct {
	Field      string `json:"field"`
	Similarity int    `json:"similarity"` // 0-100
	Inherited  string `json:"inherited"`
	Current    string `json:"current"`
}

// DriftEvent records one comparison of a new version against its
// immediate ancestor. Emitted once per version, immutable once
// resolved; subsequent documents get fresh events.
type DriftEvent struct {
	ID                string `gorm:"primaryKey;size:36"`
	JobID             string `gorm:"index;size:36"`
	DocumentID        string `gorm:"index;size:36;not null"`
	VersionID         string `gorm:"index;size:36;not null"`
	AncestorVersionID string `gorm:"size:36"`

	Level DriftLevel  `gorm:"size:8;not null"`
	Items []DriftItem `gorm:"type:text;serializer:json"`

	Acknowledged   bool
	Resolved       bool
	ResolutionType DriftResolution `gorm:"size:20"`
	ResolvedAt     *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
