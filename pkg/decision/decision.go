// Package decision projects review notes into pending decisions and
// derives the rewrite directives from their resolutions.
package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/draftline/autorun/pkg/core"
)

// FromNotes builds decision records for the notes that need a human
// pick: blocker or high severity notes carrying resolution options.
// Notes with an obvious single fix (no options) are left to the
// rewriter.
func FromNotes(jobID, versionID string, notes []core.Note) []*core.Decision {
	var out []*core.Decision
	for _, n := range notes {
		if n.Severity != core.SeverityBlocker && n.Severity != core.SeverityHigh {
			continue
		}
		if len(n.Options) == 0 {
			continue
		}
		out = append(out, &core.Decision{
			ID:                  uuid.New().String(),
			JobID:               jobID,
			VersionID:           versionID,
			NoteID:              n.NoteID,
			Severity:            n.Severity,
			Note:                n.Text,
			Options:             n.Options,
			RecommendedOptionID: n.RecommendedOptionID,
			CreatedAt:           time.Now(),
		})
	}
	return out
}

// DirectiveFor derives the natural-language rewrite instruction for a
// resolution. A selected option contributes its what_changes list; the
// OptionOther sentinel uses the caller's free text verbatim.
func DirectiveFor(d *core.Decision, selectedOptionID, custom string) (string, error) {
	if d.Resolved() {
		return "", core.ErrDecisionResolved
	}
	if selectedOptionID == core.OptionOther {
		if strings.TrimSpace(custom) == "" {
			return "", core.ErrCustomTextRequired
		}
		return strings.TrimSpace(custom), nil
	}
	opt, ok := d.Option(selectedOptionID)
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownOption, selectedOptionID)
	}
	if len(opt.WhatChanges) == 0 {
		return opt.Title, nil
	}
	return fmt.Sprintf("%s: %s", opt.Title, strings.Join(opt.WhatChanges, "; ")), nil
}

// Blocks reports whether the unresolved decisions prevent automatic
// advance under the given mode. Blocker severity always blocks;
// high-only sets block in premium mode and pass in fast/balanced.
func Blocks(pending []*core.Decision, mode core.Mode) bool {
	high := false
	for _, d := range pending {
		if d.Severity == core.SeverityBlocker {
			return true
		}
		if d.Severity == core.SeverityHigh {
			high = true
		}
	}
	return high && mode == core.ModePremium
}
