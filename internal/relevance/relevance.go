// Package relevance provides the lexical-overlap scorer used to rank chapters
// against a free-text query, and the context-window builder that quotes the
// best-matching sentences back to the caller.
//
// The score is deliberately simple and deterministic:
//
//	score = Σ(1 + positionFactor) × (1 + matched/total) / (normalizer × total)
//
// where positionFactor = 1 - firstIndex/(spread × contentLength) rewards query
// terms that appear early in the content. With the default parameters the
// ceiling is close to 2; it is not a probability.
package relevance

import (
	"log/slog"

	"github.com/chriscorrea/lorekeeper/internal/token"
)

// Params holds the empirical constants of the scorer.
type Params struct {
	PositionSpread float64 // divides firstIndex/contentLength; higher flattens the position bonus
	Normalizer     float64 // divides the boosted sum per query term
}

// DefaultParams returns the constants the scorer has always shipped with.
func DefaultParams() Params {
	return Params{
		PositionSpread: 2,
		Normalizer:     2,
	}
}

// Scorer computes relevance scores and context windows.
type Scorer struct {
	pipeline *token.Pipeline
	params   Params
	window   WindowShape
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithParams overrides the scoring constants. Non-positive values fall back to defaults.
func WithParams(p Params) Option {
	return func(s *Scorer) {
		def := DefaultParams()
		if p.PositionSpread <= 0 {
			p.PositionSpread = def.PositionSpread
		}
		if p.Normalizer <= 0 {
			p.Normalizer = def.Normalizer
		}
		s.params = p
	}
}

// WithWindow overrides the context window shape.
func WithWindow(w WindowShape) Option {
	return func(s *Scorer) {
		s.window = w.withDefaults()
	}
}

// NewScorer creates a scorer over the given term pipeline.
func NewScorer(pipeline *token.Pipeline, opts ...Option) *Scorer {
	if pipeline == nil {
		pipeline = token.NewPipeline(nil)
	}
	s := &Scorer{
		pipeline: pipeline,
		params:   DefaultParams(),
		window:   DefaultWindow(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pipeline exposes the term pipeline shared by scoring and windowing.
func (s *Scorer) Pipeline() *token.Pipeline {
	return s.pipeline
}

// Score returns the relevance of content to query.
// It is 0 when the query has no terms and never negative.
func (s *Scorer) Score(query, content string) float64 {
	queryTerms := distinct(s.pipeline.Terms(query))
	if len(queryTerms) == 0 {
		return 0
	}

	contentTerms := s.pipeline.Terms(content)
	if len(contentTerms) == 0 {
		return 0
	}

	// first occurrence of each content term
	firstIndex := make(map[string]int, len(contentTerms))
	for i, term := range contentTerms {
		if _, seen := firstIndex[term]; !seen {
			firstIndex[term] = i
		}
	}

	contentLength := float64(len(contentTerms))
	var score float64
	matched := 0
	for _, term := range queryTerms {
		idx, ok := firstIndex[term]
		if !ok {
			continue
		}
		matched++
		positionFactor := 1 - float64(idx)/(s.params.PositionSpread*contentLength)
		score += 1 + positionFactor
	}

	total := float64(len(queryTerms))
	score *= 1 + float64(matched)/total
	score /= s.params.Normalizer * total

	if score < 0 {
		// only reachable with a PositionSpread below 1
		score = 0
	}
	return score
}

// distinct removes repeated terms, keeping first-seen order.
func distinct(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) < len(terms) {
		slog.Debug("Collapsed repeated query terms", "terms", len(terms), "distinct", len(out))
	}
	return out
}
