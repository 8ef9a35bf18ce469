// Package analyze extracts lightweight tags from a chapter: a one-paragraph summary,
// the sentences that narrate key events and the known names mentioned.
//
// Nothing here is linguistic. Names come from fixed gazetteers matched as whole words
// regardless of case, and an event is any sentence containing one of a fixed list of
// indicator words. Both lists are injectable so synthetic corpora can be tested.
//
// Usage Example:
//
//	a := analyze.New(analyze.WithCharacters([]string{"Frodo", "Sam"}))
//	chapters := a.AnalyzeBook(segment.Split(raw))
package analyze

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/coregx/ahocorasick"

	"github.com/chriscorrea/lorekeeper/internal/classify"
	"github.com/chriscorrea/lorekeeper/internal/segment"
	"github.com/chriscorrea/lorekeeper/internal/token"
)

// UntitledChapter is the title of a chapter whose text carries no marker.
const UntitledChapter = "Untitled Chapter"

// Chapter is the analysed form of one book section. It is never modified after Analyze returns.
type Chapter struct {
	Title      string
	Content    string
	Summary    string
	KeyEvents  []string
	Characters []string // gazetteer order
	Locations  []string
	Spells     []string

	// Boilerplate is set by AnalyzeBook for licence pages, tables of contents and the like
	Boilerplate bool
}

// DefaultCharacters returns the built-in character gazetteer.
func DefaultCharacters() []string {
	return []string{"Harry", "Ron", "Hermione", "Dumbledore", "Snape", "Voldemort", "McGonagall", "Hagrid", "Malfoy"}
}

// DefaultEventIndicators returns the built-in words that mark a sentence as a key event.
func DefaultEventIndicators() []string {
	return []string{
		"suddenly", "finally", "discovered", "revealed", "happened", "occurred",
		"appeared", "disappeared", "fought", "battle", "duel", "spell", "magic",
	}
}

// Analyzer turns sections into chapters. It is safe for concurrent use.
type Analyzer struct {
	characters *gazetteer
	locations  *gazetteer
	spells     *gazetteer

	indicators []string
	automaton  *ahocorasick.Automaton // nil when there are no indicators

	detector *classify.Detector
}

// Option configures an Analyzer.
type Option func(*options)

type options struct {
	characters []string
	locations  []string
	spells     []string
	indicators []string
	detector   *classify.Detector
}

// WithCharacters replaces the character gazetteer.
func WithCharacters(names []string) Option {
	return func(o *options) { o.characters = names }
}

// WithLocations sets the location gazetteer (empty by default).
func WithLocations(names []string) Option {
	return func(o *options) { o.locations = names }
}

// WithSpells sets the spell gazetteer (empty by default).
func WithSpells(names []string) Option {
	return func(o *options) { o.spells = names }
}

// WithEventIndicators replaces the event indicator words.
func WithEventIndicators(words []string) Option {
	return func(o *options) { o.indicators = words }
}

// WithDetector replaces the boilerplate detector.
func WithDetector(d *classify.Detector) Option {
	return func(o *options) { o.detector = d }
}

// New creates an Analyzer with the default gazetteers unless overridden.
func New(opts ...Option) *Analyzer {
	o := options{
		characters: DefaultCharacters(),
		indicators: DefaultEventIndicators(),
		detector:   classify.NewDetector(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Analyzer{
		characters: newGazetteer(o.characters),
		locations:  newGazetteer(o.locations),
		spells:     newGazetteer(o.spells),
		detector:   o.detector,
	}

	for _, w := range o.indicators {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			a.indicators = append(a.indicators, w)
		}
	}
	if len(a.indicators) > 0 {
		automaton, err := ahocorasick.NewBuilder().AddStrings(a.indicators).Build()
		if err != nil {
			// cannot happen with non-empty patterns; fall back to substring scans
			slog.Debug("Failed to build indicator automaton", "error", err)
		}
		a.automaton = automaton
	}

	return a
}

// Analyze builds a chapter from a section. Sections without a heading get UntitledChapter.
func (a *Analyzer) Analyze(s segment.Section) Chapter {
	title := s.Heading
	if title == "" {
		title = UntitledChapter
	}
	return a.analyze(title, s.Body)
}

// AnalyzeText builds a chapter from a raw text region, recovering the title from the
// first chapter marker inside it.
func (a *Analyzer) AnalyzeText(region string) Chapter {
	title, ok := segment.Heading(region)
	if !ok {
		title = UntitledChapter
	}
	return a.analyze(title, region)
}

// AnalyzeBook analyses every section of a book in order and flags boilerplate chapters.
func (a *Analyzer) AnalyzeBook(sections []segment.Section) []Chapter {
	chapters := make([]Chapter, len(sections))
	for i, s := range sections {
		chapters[i] = a.Analyze(s)
		if a.detector != nil {
			chapters[i].Boilerplate = a.detector.IsBoilerplate(s.Body, i, len(sections))
		}
	}
	slog.Debug("Analyzed book", "chapters", len(chapters))
	return chapters
}

func (a *Analyzer) analyze(title, body string) Chapter {
	return Chapter{
		Title:      title,
		Content:    body,
		Summary:    Summary(body),
		KeyEvents:  a.KeyEvents(body),
		Characters: a.characters.find(body),
		Locations:  a.locations.find(body),
		Spells:     a.spells.find(body),
	}
}

// KeyEvents returns the trimmed sentences of text that contain an indicator word,
// case-insensitively and in document order. Duplicates are kept.
func (a *Analyzer) KeyEvents(text string) []string {
	events := []string{}
	if len(a.indicators) == 0 {
		return events
	}
	for _, sentence := range token.Sentences(text) {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		if a.isEvent(strings.ToLower(trimmed)) {
			events = append(events, trimmed)
		}
	}
	return events
}

func (a *Analyzer) isEvent(lower string) bool {
	if a.automaton != nil {
		return a.automaton.IsMatch([]byte(lower))
	}
	for _, w := range a.indicators {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Characters returns the character gazetteer names present in text.
func (a *Analyzer) Characters(text string) []string {
	return a.characters.find(text)
}

// Summary returns the first non-blank paragraph of text, trimmed. Paragraphs are
// separated by a blank line ("\n\n").
func Summary(text string) string {
	for _, paragraph := range strings.Split(text, "\n\n") {
		if p := strings.TrimSpace(paragraph); p != "" {
			return p
		}
	}
	return ""
}

// gazetteer matches a fixed list of names as whole words, ignoring case.
type gazetteer struct {
	names    []string
	patterns []*regexp.Regexp
}

func newGazetteer(names []string) *gazetteer {
	g := &gazetteer{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		g.names = append(g.names, name)
		g.patterns = append(g.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(name)+`\b`))
	}
	return g
}

// find returns the names present in text, in gazetteer order.
func (g *gazetteer) find(text string) []string {
	found := []string{}
	for i, re := range g.patterns {
		if re.MatchString(text) {
			found = append(found, g.names[i])
		}
	}
	return found
}
