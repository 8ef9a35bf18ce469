package relevance

import (
	"math"
	"strings"
	"testing"

	"github.com/chriscorrea/lorekeeper/internal/token"
)

func newTestScorer(opts ...Option) *Scorer {
	return NewScorer(token.NewPipeline(token.NewCanonicalizer(token.DefaultAliases())), opts...)
}

func TestScoreEmptyQuery(t *testing.T) {
	s := newTestScorer()
	for _, q := range []string{"", "   ", "\n\t", "... !!"} {
		if got := s.Score(q, "Harry found a wand."); got != 0 {
			t.Errorf("Score(%q) = %v, want 0", q, got)
		}
	}
}

func TestScoreNoMatch(t *testing.T) {
	s := newTestScorer()
	if got := s.Score("dragon", "Harry found a wand."); got != 0 {
		t.Errorf("Score() = %v, want 0", got)
	}
	if got := s.Score("dragon", ""); got != 0 {
		t.Errorf("Score() on empty content = %v, want 0", got)
	}
}

func TestScoreKnownValues(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		name    string
		query   string
		content string
		want    float64
	}{
		// single term at index 0: (1+1) * 2 / 2 = 2
		{"first token", "Harry", "Harry found a wand.", 2},
		// wand at index 3 of 7: (1 + 1 - 3/14) * 2 / 2
		{"trailing punctuation", "wand", "Harry found a wand. He was surprised.", 2 - 3.0/14},
		// one of two terms found at index 0: 2 * 1.5 / 4
		{"partial match", "Harry dragon", "Harry found a wand.", 0.75},
		// repeated query terms count once
		{"duplicate query terms", "Harry Harry", "Harry found a wand.", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.query, tt.content)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score(%q, %q) = %v, want %v", tt.query, tt.content, got, tt.want)
			}
		})
	}
}

func TestScoreAliasesMatchAcrossSpellings(t *testing.T) {
	s := newTestScorer()
	got := s.Score("Voldemort", "They feared You-Know-Who above all.")
	if got <= 0 {
		t.Errorf("Score() = %v, want alias match to score above 0", got)
	}
}

func TestScorePrefersEarlyMatches(t *testing.T) {
	s := newTestScorer()
	filler := strings.Repeat("and then nothing much happened here ", 40)

	early := s.Score("golden snitch", "golden snitch "+filler)
	late := s.Score("golden snitch", filler+"golden snitch")

	if early <= late {
		t.Errorf("early match scored %v, late match %v; want early > late", early, late)
	}
	if late < 0 {
		t.Errorf("late match score %v is negative", late)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	// a spread below one would push the position factor negative
	s := newTestScorer(WithParams(Params{PositionSpread: 0.1, Normalizer: 2}))
	if got := s.Score("end", "a b c d e f g h i end"); got < 0 {
		t.Errorf("Score() = %v, want non-negative", got)
	}
}

func TestWithParamsDefaults(t *testing.T) {
	s := newTestScorer(WithParams(Params{}))
	if s.params != DefaultParams() {
		t.Errorf("params = %+v, want defaults %+v", s.params, DefaultParams())
	}
}

func TestWindow(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		name    string
		query   string
		content string
		want    string
	}{
		{
			name:    "anchor with following sentence",
			query:   "wand",
			content: "\nHarry found a wand.\nHe was surprised.\n",
			want:    "Harry found a wand. He was surprised",
		},
		{
			name:    "two before and three after",
			query:   "target",
			content: "S1. S2. S3. S4 target. S5. S6. S7. S8. S9.",
			want:    "S2. S3. S4 target. S5. S6. S7",
		},
		{
			name:    "first matching sentence wins",
			query:   "wand",
			content: "A wand. B. C wand. D.",
			want:    "A wand. B. C wand. D",
		},
		{
			name:    "alias match",
			query:   "you-know-who",
			content: "It was quiet. Voldemort returned! Everyone ran?",
			want:    "It was quiet. Voldemort returned. Everyone ran",
		},
		{
			name:    "short fallback is verbatim",
			query:   "dragon",
			content: "Nothing here.",
			want:    "Nothing here.",
		},
		{
			name:    "empty query falls back",
			query:   "",
			content: "Nothing here.",
			want:    "Nothing here.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Window(tt.query, tt.content); got != tt.want {
				t.Errorf("Window(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestWindowLongFallback(t *testing.T) {
	s := newTestScorer()
	content := strings.Repeat("é", 600)

	got := s.Window("dragon", content)
	want := strings.Repeat("é", 500) + Ellipsis
	if got != want {
		t.Errorf("Window() fallback has %d runes, want 500 followed by ellipsis", len([]rune(got)))
	}
}

func TestWindowNonEmptyForNonEmptyContent(t *testing.T) {
	s := newTestScorer()
	contents := []string{"x", "...", "?!", " ", "no match at all", strings.Repeat("word ", 300)}
	for _, c := range contents {
		if got := s.Window("dragon", c); got == "" {
			t.Errorf("Window(%q) returned empty string", c)
		}
	}
}

func TestWithWindowShape(t *testing.T) {
	s := newTestScorer(WithWindow(WindowShape{Before: 0, After: 0, FallbackChars: 5}))

	if got := s.Window("b", "a. b. c."); got != "b" {
		t.Errorf("Window() = %q, want %q", got, "b")
	}
	if got := s.Window("z", "abcdefgh"); got != "abcde"+Ellipsis {
		t.Errorf("Window() fallback = %q", got)
	}
}
