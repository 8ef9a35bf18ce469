// Package chunk pages long chapter text into readable pieces.
//
// Pages respect the largest natural boundary that makes them fit, trying in turn:
//  1. Paragraph boundaries (blank lines)
//  2. Sentence boundaries ('. ', '? ', '! ')
//  3. Line boundaries
//  4. Word boundaries
//
// and, for a single word longer than a page, a hard cut. Consecutive pieces are packed
// greedily so pages stay close to the requested size, and page order always follows
// the text.
//
// Usage Example:
//
//	pages := chunk.Pages(chapter.Content, 2000, chunk.Runes)
//	page, total, ok := chunk.Page(chapter.Content, 2000, chunk.Runes, 3)
package chunk

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Measure returns the size of a piece of text in some unit (runes, words, tokens).
type Measure func(string) int

// Runes measures text in characters.
func Runes(s string) int {
	return utf8.RuneCountInString(s)
}

// boundary is one level of splitting; delimiters stay attached to the piece before them
type boundary struct {
	name      string
	delimiter string
}

// boundaries are ordered from largest semantic unit to smallest
var boundaries = []boundary{
	{name: "paragraph", delimiter: "\n\n"},
	{name: "sentence", delimiter: ". "},
	{name: "question", delimiter: "? "},
	{name: "exclamation", delimiter: "! "},
	{name: "line", delimiter: "\n"},
	{name: "word", delimiter: " "},
}

// Pages splits text into pages no larger than size units according to measure.
// Blank text or a non-positive size yields no pages. Pages are trimmed of surrounding
// whitespace; a nil measure counts runes.
func Pages(text string, size int, measure Measure) []string {
	if measure == nil {
		measure = Runes
	}
	if size <= 0 || strings.TrimSpace(text) == "" {
		return []string{}
	}

	var pages []string
	for _, piece := range split(text, size, measure, 0) {
		if trimmed := strings.TrimSpace(piece); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	slog.Debug("Paged text", "length", len(text), "size", size, "pages", len(pages))
	return pages
}

// Page returns the 1-based page n of text with the total page count.
func Page(text string, size int, measure Measure, n int) (page string, total int, ok bool) {
	pages := Pages(text, size, measure)
	if n < 1 || n > len(pages) {
		return "", len(pages), false
	}
	return pages[n-1], len(pages), true
}

// split returns pieces of text that concatenate back to text
func split(text string, size int, measure Measure, level int) []string {
	if measure(strings.TrimSpace(text)) <= size {
		return []string{text}
	}
	if level >= len(boundaries) {
		return hardCut(text, size, measure)
	}

	b := boundaries[level]
	if !strings.Contains(text, b.delimiter) {
		return split(text, size, measure, level+1)
	}

	parts := strings.SplitAfter(text, b.delimiter)
	var out []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}

	for _, part := range parts {
		if part == "" {
			continue
		}
		if measure(strings.TrimSpace(part)) > size {
			// too big on its own, go one level finer
			flush()
			out = append(out, split(part, size, measure, level+1)...)
			continue
		}
		if current.Len() > 0 && measure(strings.TrimSpace(current.String()+part)) > size {
			flush()
		}
		current.WriteString(part)
	}
	flush()

	return out
}

// hardCut slices text that has no usable boundary
func hardCut(text string, size int, measure Measure) []string {
	var out []string
	for text != "" {
		cut := len(text)
		if measure(text) > size {
			cut = 0
			for i := 0; i < len(text); {
				_, w := utf8.DecodeRuneInString(text[i:])
				if measure(text[:i+w]) > size {
					break
				}
				i += w
				cut = i
			}
			if cut == 0 {
				// a single rune larger than the page
				_, cut = utf8.DecodeRuneInString(text)
			}
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}
