// Package classify flags chapters that are publishing boilerplate rather than story.
//
// Plain-text book dumps often carry a licence block, a table of contents, a copyright
// page or a catalogue of other titles before the first real chapter and after the last.
// The Detector stems every word with the English snowball stemmer and compares the share
// of publishing vocabulary against a threshold that is lower at the edges of the book,
// where that material lives.
package classify

import (
	"math"
	"regexp"
	"strings"

	"github.com/kljensen/snowball"
)

// publishingStems holds stemmed words typical of front and back matter
var publishingStems = map[string]struct{}{
	// --- Front matter ---
	"acknowledg": {},
	"author":     {},
	"content":    {}, // "table of contents"
	"cover":      {},
	"dedic":      {},
	"edit":       {},
	"illustr":    {},
	"print":      {},
	"publish":    {},
	"translat":   {},

	// --- Legal ---
	"copyright": {},
	"licens":    {},
	"permiss":   {},
	"reproduc":  {},
	"reserv":    {},
	"right":     {},
	"trademark": {},
	"warranti":  {},

	// --- Distribution & cataloguing ---
	"catalogu":  {},
	"distribut": {},
	"ebook":     {},
	"gutenberg": {},
	"http":      {},
	"https":     {},
	"isbn":      {},
	"librari":   {},
	"www":       {},
}

const (
	edgeThreshold   = 0.1  // first and last chapters
	middleThreshold = 0.33 // centre of the book
	smallThreshold  = 0.5  // books with three chapters or fewer
)

// Detector recognises boilerplate chapters.
type Detector struct {
	wordRegex *regexp.Regexp
}

// NewDetector creates a Detector.
func NewDetector() *Detector {
	return &Detector{
		wordRegex: regexp.MustCompile(`\b[a-zA-Z]+\b`),
	}
}

// IsBoilerplate reports whether the chapter at index (of total) reads like publishing
// matter. Out-of-range positions are never boilerplate; chapters without a single word
// always are.
func (d *Detector) IsBoilerplate(text string, index, total int) bool {
	if total <= 0 || index < 0 || index >= total {
		return false
	}

	words := d.wordRegex.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return true
	}

	return PublishingRatio(words) > threshold(index, total)
}

// PublishingRatio returns the share of lower-case words whose stem is publishing vocabulary.
func PublishingRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		stem, err := snowball.Stem(w, "english", true)
		if err != nil {
			stem = w
		}
		if _, ok := publishingStems[stem]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

// threshold rises linearly from the edges of the book to its middle.
func threshold(index, total int) float64 {
	if total <= 3 {
		return smallThreshold
	}
	relative := float64(index) / float64(total-1)
	closeness := 1.0 - math.Abs(2.0*relative-1.0) // 0 at the edges, 1 in the middle
	return edgeThreshold + (middleThreshold-edgeThreshold)*closeness
}
