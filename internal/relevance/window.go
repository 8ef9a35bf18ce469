package relevance

import (
	"strings"
	"unicode/utf8"

	"github.com/chriscorrea/lorekeeper/internal/token"
)

// WindowShape controls how many sentences surround the anchor sentence and how
// much raw content is quoted when nothing matches.
type WindowShape struct {
	Before        int // sentences kept before the anchor
	After         int // sentences kept after the anchor
	FallbackChars int // characters quoted from the chapter start when no sentence matches
}

// Ellipsis marks a truncated fallback excerpt.
const Ellipsis = "..."

// DefaultWindow returns two sentences before, three after and a 500 character fallback.
func DefaultWindow() WindowShape {
	return WindowShape{Before: 2, After: 3, FallbackChars: 500}
}

func (w WindowShape) withDefaults() WindowShape {
	def := DefaultWindow()
	if w.Before < 0 {
		w.Before = def.Before
	}
	if w.After < 0 {
		w.After = def.After
	}
	if w.FallbackChars <= 0 {
		w.FallbackChars = def.FallbackChars
	}
	return w
}

// Window returns the excerpt of content that best answers query.
//
// The anchor is the first sentence sharing at least one term with the query; the
// excerpt spans Before sentences ahead of it to After sentences behind it, trimmed and
// joined with ". ". When no sentence matches, the first FallbackChars characters are
// returned followed by Ellipsis, or the whole content if it is short enough.
func (s *Scorer) Window(query, content string) string {
	sentences := token.Sentences(content)
	queryTerms := s.pipeline.TermSet(query)

	anchor := -1
	if len(queryTerms) > 0 {
		for i, sentence := range sentences {
			if s.sharesTerm(sentence, queryTerms) {
				anchor = i
				break
			}
		}
	}

	if anchor < 0 {
		return fallbackExcerpt(content, s.window.FallbackChars)
	}

	start := max(0, anchor-s.window.Before)
	end := min(len(sentences)-1, anchor+s.window.After)

	parts := make([]string, 0, end-start+1)
	for _, sentence := range sentences[start : end+1] {
		if trimmed := strings.TrimSpace(sentence); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ". ")
}

func (s *Scorer) sharesTerm(sentence string, queryTerms map[string]struct{}) bool {
	for _, term := range s.pipeline.Terms(sentence) {
		if _, ok := queryTerms[term]; ok {
			return true
		}
	}
	return false
}

// fallbackExcerpt cuts content on a rune boundary.
func fallbackExcerpt(content string, limit int) string {
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	cut := 0
	for i := range content {
		if cut == limit {
			return content[:i] + Ellipsis
		}
		cut++
	}
	return content
}
