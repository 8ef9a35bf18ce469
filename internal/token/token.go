// Package token turns raw book text into comparable units.
//
// Three layers are exposed so callers can pick the one they need:
//   - Tokenize splits on whitespace and nothing else
//   - Canonicalizer rewrites alias spellings to one canonical token
//   - Pipeline combines both with edge-punctuation trimming, producing the
//     terms used by relevance scoring and context windows
//
// Usage Example:
//
//	p := token.NewPipeline(token.NewCanonicalizer(token.DefaultAliases()))
//	terms := p.Terms("You-Know-Who returned.")
//	// ["Lord_Voldemort", "returned"]
package token

import (
	"regexp"
	"strings"
	"unicode"
)

// whitespaceRegex matches runs of whitespace between tokens
var whitespaceRegex = regexp.MustCompile(`\s+`)

// sentenceRegex matches runs of sentence-ending punctuation
var sentenceRegex = regexp.MustCompile(`[.!?]+`)

// Tokenize splits text on one or more whitespace characters and drops empty strings.
// Case and punctuation are left untouched.
func Tokenize(text string) []string {
	if text == "" {
		return []string{}
	}

	parts := whitespaceRegex.Split(text, -1)
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// Sentences splits text on runs of '.', '!' and '?'.
// The returned pieces are untrimmed and may be empty or whitespace-only; callers
// rely on the positions lining up with the original text.
func Sentences(text string) []string {
	return sentenceRegex.Split(text, -1)
}

// TrimPunct strips leading and trailing punctuation and symbols from a token
// ("wand." -> "wand", "\"Harry," -> "Harry"). Inner punctuation such as the
// hyphens in "You-Know-Who" survives.
func TrimPunct(tok string) string {
	return strings.TrimFunc(tok, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// Pipeline produces canonical terms from free text.
type Pipeline struct {
	canon *Canonicalizer
}

// NewPipeline creates a pipeline; a nil canonicalizer means no aliases.
func NewPipeline(canon *Canonicalizer) *Pipeline {
	if canon == nil {
		canon = NewCanonicalizer(nil)
	}
	return &Pipeline{canon: canon}
}

// Canonicalizer returns the alias table used by the pipeline.
func (p *Pipeline) Canonicalizer() *Canonicalizer {
	return p.canon
}

// Terms tokenizes text, trims edge punctuation, drops tokens that were only
// punctuation and canonicalizes what is left.
func (p *Pipeline) Terms(text string) []string {
	raw := Tokenize(text)
	cleaned := make([]string, 0, len(raw))
	for _, tok := range raw {
		if t := TrimPunct(tok); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return p.canon.Canonicalize(cleaned)
}

// TermSet returns the distinct terms of text.
func (p *Pipeline) TermSet(text string) map[string]struct{} {
	terms := p.Terms(text)
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}
