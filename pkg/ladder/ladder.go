// Package ladder defines the per-format promotion order for document
// stages and the set of stages that require human approval.
package ladder

import (
	"fmt"

	"github.com/draftline/autorun/pkg/core"
)

// Well-known stage identifiers.
const (
	StageIdea           = "idea"
	StageConcept        = "concept"
	StageCharacterBible = "character_bible"
	StageSeasonArc      = "season_arc"
	StageEpisodeGrid    = "episode_grid"
	StageFormatRules    = "format_rules"
	StageBlueprint      = "blueprint"
	StageScript         = "script"
)

// Set holds the ladders per format plus the approval policy. The zero
// value is not usable; construct with Default or Load.
type Set struct {
	ladders  map[string][]string
	fallback []string
	approval map[string]core.ApprovalType
}

// Default returns the built-in ladder set.
func Default() *Set {
	return &Set{
		ladders: map[string][]string{
			"film": {StageIdea, StageConcept, StageBlueprint, StageScript},
			"series": {
				StageIdea, StageConcept, StageCharacterBible, StageSeasonArc,
				StageEpisodeGrid, StageBlueprint, StageScript,
			},
		},
		fallback: []string{StageIdea, StageConcept, StageBlueprint, StageScript},
		approval: map[string]core.ApprovalType{
			StageCharacterBible: core.ApprovalSeriesWriter,
			StageSeasonArc:      core.ApprovalSeriesWriter,
			StageEpisodeGrid:    core.ApprovalSeriesWriter,
			StageFormatRules:    core.ApprovalConvert,
		},
	}
}

// LadderFor returns the ordered stage list for a format. Unknown
// formats get the default ladder.
func (s *Set) LadderFor(format string) []string {
	if stages, ok := s.ladders[format]; ok {
		return stages
	}
	return s.fallback
}

// Contains reports whether the stage appears in the format's ladder.
func (s *Set) Contains(format, stage string) bool {
	_, err := s.Index(format, stage)
	return err == nil
}

// Index returns the position of a stage within the format's ladder.
func (s *Set) Index(format, stage string) (int, error) {
	for i, st := range s.LadderFor(format) {
		if st == stage {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (format %q)", core.ErrUnknownStage, stage, format)
}

// Next returns the stage after the given one, or "" when the stage is
// terminal.
func (s *Set) Next(format, stage string) (string, error) {
	stages := s.LadderFor(format)
	i, err := s.Index(format, stage)
	if err != nil {
		return "", err
	}
	if i == len(stages)-1 {
		return "", nil
	}
	return stages[i+1], nil
}

// Terminal reports whether the stage is the last rung of the format's
// ladder.
func (s *Set) Terminal(format, stage string) (bool, error) {
	next, err := s.Next(format, stage)
	if err != nil {
		return false, err
	}
	return next == "", nil
}

// Before reports whether stage a precedes stage b in the format's
// ladder.
func (s *Set) Before(format, a, b string) (bool, error) {
	ia, err := s.Index(format, a)
	if err != nil {
		return false, err
	}
	ib, err := s.Index(format, b)
	if err != nil {
		return false, err
	}
	return ia < ib, nil
}

// IsApprovalRequired reports whether promoting into the stage needs a
// human sign-off.
func (s *Set) IsApprovalRequired(stage string) bool {
	_, ok := s.approval[stage]
	return ok
}

// ApprovalTypeFor returns the approval type for an approval-required
// stage, defaulting to convert.
func (s *Set) ApprovalTypeFor(stage string) core.ApprovalType {
	if t, ok := s.approval[stage]; ok {
		return t
	}
	return core.ApprovalConvert
}
