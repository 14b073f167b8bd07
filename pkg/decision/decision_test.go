package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftline/autorun/pkg/core"
)

func optNotes() []core.Note {
	return []core.Note{
		{
			NoteID:   "n1",
			Severity: core.SeverityBlocker,
			Text:     "Stakes collapse in act two",
			Options: []core.DecisionOption{
				{OptionID: "a", Title: "Raise the stakes", WhatChanges: []string{"add a ticking clock", "kill a mentor"}},
				{OptionID: "b", Title: "Restructure act two"},
			},
			RecommendedOptionID: "a",
		},
		{NoteID: "n2", Severity: core.SeverityHigh, Text: "Tone wobbles", Options: []core.DecisionOption{
			{OptionID: "a", Title: "Commit to noir"},
		}},
		// Filtered out: low severity.
		{NoteID: "n3", Severity: core.Severity("medium"), Text: "Pacing", Options: []core.DecisionOption{
			{OptionID: "a", Title: "Trim"},
		}},
		// Filtered out: no options, the rewriter just fixes it.
		{NoteID: "n4", Severity: core.SeverityBlocker, Text: "Typo in the title"},
	}
}

func TestFromNotes(t *testing.T) {
	out := FromNotes("job-1", "v-1", optNotes())
	require.Len(t, out, 2)

	assert.Equal(t, "n1", out[0].NoteID)
	assert.Equal(t, core.SeverityBlocker, out[0].Severity)
	assert.Equal(t, "job-1", out[0].JobID)
	assert.Equal(t, "v-1", out[0].VersionID)
	assert.Equal(t, "a", out[0].RecommendedOptionID)
	assert.Len(t, out[0].Options, 2)
	assert.NotEmpty(t, out[0].ID)

	assert.Equal(t, "n2", out[1].NoteID)
}

func TestDirectiveFor_Option(t *testing.T) {
	d := FromNotes("job-1", "v-1", optNotes())[0]

	directive, err := DirectiveFor(d, "a", "")
	require.NoError(t, err)
	assert.Equal(t, "Raise the stakes: add a ticking clock; kill a mentor", directive)

	// Option without what_changes falls back to its title.
	directive, err = DirectiveFor(d, "b", "")
	require.NoError(t, err)
	assert.Equal(t, "Restructure act two", directive)
}

func TestDirectiveFor_Other(t *testing.T) {
	d := FromNotes("job-1", "v-1", optNotes())[0]

	directive, err := DirectiveFor(d, core.OptionOther, "  merge both antagonists  ")
	require.NoError(t, err)
	assert.Equal(t, "merge both antagonists", directive)

	_, err = DirectiveFor(d, core.OptionOther, "   ")
	assert.ErrorIs(t, err, core.ErrCustomTextRequired)
}

func TestDirectiveFor_UnknownOption(t *testing.T) {
	d := FromNotes("job-1", "v-1", optNotes())[0]
	_, err := DirectiveFor(d, "z", "")
	assert.ErrorIs(t, err, core.ErrUnknownOption)
}

func TestDirectiveFor_AlreadyResolved(t *testing.T) {
	d := FromNotes("job-1", "v-1", optNotes())[0]
	now := time.Now()
	d.ResolvedAt = &now

	_, err := DirectiveFor(d, "a", "")
	assert.ErrorIs(t, err, core.ErrDecisionResolved)
}

func TestBlocks(t *testing.T) {
	blocker := &core.Decision{Severity: core.SeverityBlocker}
	high := &core.Decision{Severity: core.SeverityHigh}

	// Blockers block in every mode.
	for _, mode := range []core.Mode{core.ModeFast, core.ModeBalanced, core.ModePremium} {
		assert.True(t, Blocks([]*core.Decision{blocker}, mode), string(mode))
	}

	// High-only blocks in premium, passes elsewhere.
	assert.False(t, Blocks([]*core.Decision{high}, core.ModeFast))
	assert.False(t, Blocks([]*core.Decision{high}, core.ModeBalanced))
	assert.True(t, Blocks([]*core.Decision{high}, core.ModePremium))

	assert.False(t, Blocks(nil, core.ModePremium))
}
