package engine

import (
	"log/slog"

	"github.com/draftline/autorun/pkg/drift"
	"github.com/draftline/autorun/pkg/ladder"
)

// Option configures an Engine.
type Option interface {
	apply(*Engine)
}

type optionFunc func(*Engine)

func (f optionFunc) apply(e *Engine) { f(e) }

// WithAnalyzer sets the analysis collaborator.
func WithAnalyzer(a Analyzer) Option {
	return optionFunc(func(e *Engine) { e.analyzer = a })
}

// WithRewriter sets the rewrite collaborator.
func WithRewriter(r Rewriter) Option {
	return optionFunc(func(e *Engine) { e.rewriter = r })
}

// WithGenerator sets the generation collaborator.
func WithGenerator(g Generator) Option {
	return optionFunc(func(e *Engine) { e.generator = g })
}

// WithTextFetcher sets the read-only text collaborator.
func WithTextFetcher(f TextFetcher) Option {
	return optionFunc(func(e *Engine) { e.fetcher = f })
}

// WithQualifications sets the canonical qualification source.
func WithQualifications(q QualificationSource) Option {
	return optionFunc(func(e *Engine) { e.quals = q })
}

// WithLadders replaces the default ladder set.
func WithLadders(s *ladder.Set) Option {
	return optionFunc(func(e *Engine) { e.ladders = s })
}

// WithDriftDetector replaces the default drift detector.
func WithDriftDetector(d *drift.Detector) Option {
	return optionFunc(func(e *Engine) { e.detector = d })
}

// WithProtectItems sets items every rewrite and generation must keep
// untouched.
func WithProtectItems(items []string) Option {
	return optionFunc(func(e *Engine) { e.protect = items })
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(e *Engine) { e.logger = l })
}
