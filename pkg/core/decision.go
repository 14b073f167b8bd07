package core

import "time"

// Severity of a review note. Only blocker and high severity notes are
// surfaced as decisions.
type Severity string

const (
	SeverityBlocker Severity = "blocker"
	SeverityHigh    Severity = "high"
)

// CreativeRisk grades a decision option.
type CreativeRisk string

const (
	RiskLow  CreativeRisk = "low"
	RiskMed  CreativeRisk = "med"
	RiskHigh CreativeRisk = "high"
)

// OptionOther is the sentinel option id for a free-form resolution.
const OptionOther = "other"

// DecisionOption is one proposed resolution for a decision.
type DecisionOption struct {
	OptionID       string       `json:"option_id"`
	Title          string       `json:"title"`
	WhatChanges    []string     `json:"what_changes"`
	Tradeoffs      string       `json:"tradeoffs"`
	CreativeRisk   CreativeRisk `json:"creative_risk"`
	CommercialLift string       `json:"commercial_lift"`
}

// Decision is a blocking or high-impact review note that needs a human
// to pick one of several resolutions (or submit a free-form one)
// before rewriting may proceed. Decisions are append-then-resolve
// records: resolution fields are set exactly once.
type Decision struct {
	ID        string `gorm:"primaryKey;size:36"`
	JobID     string `gorm:"index;size:36;not null"`
	VersionID string `gorm:"index;size:36"`

	NoteID              string           `gorm:"size:64;not null"`
	Severity            Severity         `gorm:"size:16;not null"`
	Note                string           `gorm:"type:text"`
	Options             []DecisionOption `gorm:"type:text;serializer:json"`
	RecommendedOptionID string           `gorm:"size:64"`

	// Resolution: either one of Options' ids or OptionOther plus
	// CustomResolution. Directive is the natural-language instruction
	// consumed by the next rewrite.
	SelectedOptionID string     `gorm:"size:64"`
	CustomResolution string     `gorm:"type:text"`
	Directive        string     `gorm:"type:text"`
	ResolvedAt       *time.Time
	ConsumedAt       *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Resolved reports whether a resolution has been recorded.
func (d *Decision) Resolved() bool {
	return d.ResolvedAt != nil
}

// Option returns the option with the given id, if present.
func (d *Decision) Option(id string) (DecisionOption, bool) {
	for _, opt := range d.Options {
		if opt.OptionID == id {
			return opt, true
		}
	}
	return DecisionOption{}, false
}
