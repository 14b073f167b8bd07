package engine

import (
	"context"

	"github.com/draftline/autorun/pkg/core"
)

// Analyzer scores a document version. Implementations are external
// collaborators; the engine only decides when to call them.
type Analyzer interface {
	Analyze(ctx context.Context, doc *core.DocumentVersion, quals core.Qualifications) (*core.Analysis, error)
}

// Rewriter produces a revised version of a document honoring the given
// directives. Protected items must survive the rewrite untouched.
type Rewriter interface {
	Rewrite(ctx context.Context, doc *core.DocumentVersion, directives, protect []string) (*core.DocumentVersion, error)
}

// Generator produces the first draft of the next ladder stage from a
// source document.
type Generator interface {
	Generate(ctx context.Context, targetStage string, source *core.DocumentVersion, protect []string) (*core.DocumentVersion, error)
}

// TextFetcher gives read-only access to document text. The engine
// never inspects text itself; this is exposed for callers.
type TextFetcher interface {
	FetchDocumentText(ctx context.Context, documentID, versionID string) (string, error)
}

// QualificationSource returns the canonical project qualifications the
// resolver hash is computed over.
type QualificationSource interface {
	Canonical(ctx context.Context, projectID string) (core.Qualifications, error)
}
