// Package drift compares a document version's core narrative
// attributes against the values inherited from its upstream ancestor
// and classifies the divergence.
package drift

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/draftline/autorun/pkg/core"
)

// CoreFields are the narrative attributes compared per version.
var CoreFields = []string{"protagonist", "stakes", "tone", "world_rules", "comparables"}

// Similarity scores two field values 0-100. Implementations must be
// deterministic and symmetric.
type Similarity func(a, b string) int

// Detector classifies drift for new versions. Construct with New.
type Detector struct {
	similarity     Similarity
	fields         []string
	safeThreshold  int
	pivotThreshold int
	pivotQuorum    int
}

// Option configures a Detector.
type Option interface {
	apply(*Detector)
}

type optionFunc func(*Detector)

func (f optionFunc) apply(d *Detector) { f(d) }

// WithSimilarity replaces the default token-overlap metric.
func WithSimilarity(s Similarity) Option {
	return optionFunc(func(d *Detector) { d.similarity = s })
}

// WithFields replaces the default core field set.
func WithFields(fields []string) Option {
	return optionFunc(func(d *Detector) { d.fields = fields })
}

// WithThresholds sets the safe threshold (below it a field counts as
// drifted), the pivot threshold (below it any single field forces a
// major classification) and the quorum of drifted fields that also
// forces major.
func WithThresholds(safe, pivot, quorum int) Option {
	return optionFunc(func(d *Detector) {
		d.safeThreshold = safe
		d.pivotThreshold = pivot
		d.pivotQuorum = quorum
	})
}

// New returns a Detector with token-overlap similarity, the default
// core fields and thresholds safe=80, pivot=40, quorum=3.
func New(opts ...Option) *Detector {
	d := &Detector{
		similarity:     TokenOverlap,
		fields:         CoreFields,
		safeThreshold:  80,
		pivotThreshold: 40,
		pivotQuorum:    3,
	}
	for _, opt := range opts {
		opt.apply(d)
	}
	return d
}

// Detect compares the version's core values against its inherited
// baseline and returns a drift event for the version. The event is
// emitted once per new version; it is not recomputed retroactively.
func (d *Detector) Detect(jobID string, v *core.DocumentVersion, ancestorVersionID string) *core.DriftEvent {
	items := make([]core.DriftItem, 0, len(d.fields))
	drifted := 0
	level := core.DriftNone

	for _, field := range d.fields {
		inherited := v.Baseline[field]
		current := v.CoreValues[field]
		if inherited == "" && current == "" {
			continue
		}
		score := d.similarity(inherited, current)
		items = append(items, core.DriftItem{
			Field:      field,
			Similarity: score,
			Inherited:  inherited,
			Current:    current,
		})
		if score < d.safeThreshold {
			drifted++
			level = core.DriftMinor
		}
		if score < d.pivotThreshold {
			level = core.DriftMajor
		}
	}
	if drifted >= d.pivotQuorum {
		level = core.DriftMajor
	}

	return &core.DriftEvent{
		ID:                uuid.New().String(),
		JobID:             jobID,
		DocumentID:        v.DocumentID,
		VersionID:         v.ID,
		AncestorVersionID: ancestorVersionID,
		Level:             level,
		Items:             items,
		CreatedAt:         time.Now(),
	}
}

var foldCaser = cases.Fold()

// TokenOverlap is the default similarity metric: Jaccard overlap of
// case-folded alphanumeric tokens, scaled to 0-100. Deterministic and
// symmetric.
func TokenOverlap(a, b string) int {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 100
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	union := make(map[string]bool, len(ta)+len(tb))
	for t := range ta {
		union[t] = true
	}
	for t := range tb {
		union[t] = true
	}
	both := 0
	for t := range ta {
		if tb[t] {
			both++
		}
	}
	return both * 100 / len(union)
}

func tokenize(s string) map[string]bool {
	folded := foldCaser.String(s)
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
