// Package segment splits raw book text into chapters.
//
// A chapter starts at a line-level marker: the upper-case word "CHAPTER" followed by
// its number or name on the same line ("CHAPTER ONE", "CHAPTER 12"). Markers are
// consumed; each Section carries the marker text as its Heading and the text up to
// the next marker as its Body.
//
// Usage Example:
//
//	for _, s := range segment.Split(raw) {
//		fmt.Println(s.Heading, len(s.Body))
//	}
package segment

import (
	"log/slog"
	"regexp"
	"strings"
)

// FullTextHeading is the heading given to the single section produced from text
// that carries no chapter markers at all.
const FullTextHeading = "Full Text"

// markerRegex matches a chapter marker; the trailing words stop at the end of the line
var markerRegex = regexp.MustCompile(`CHAPTER[ \t]+[\w \t]*`)

// Section is one chapter-sized slice of a book.
type Section struct {
	Heading string // trimmed marker text, empty for text before the first marker
	Body    string // raw text between this marker and the next
}

// IsFullText reports whether the section stands for a whole book without markers.
func (s Section) IsFullText() bool {
	return s.Heading == FullTextHeading
}

// Split cuts raw text at every chapter marker.
// Sections whose body is empty or whitespace-only are dropped. When the text has no
// markers the result is exactly one section headed FullTextHeading whose body is the
// whole input, unless the input itself is blank.
func Split(raw string) []Section {
	locs := markerRegex.FindAllStringIndex(raw, -1)
	if len(locs) == 0 {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		slog.Debug("No chapter markers found, using full text", "length", len(raw))
		return []Section{{Heading: FullTextHeading, Body: raw}}
	}

	sections := make([]Section, 0, len(locs)+1)

	// text ahead of the first marker (front matter, prologue)
	if lead := raw[:locs[0][0]]; strings.TrimSpace(lead) != "" {
		sections = append(sections, Section{Body: lead})
	}

	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := raw[loc[1]:end]
		if strings.TrimSpace(body) == "" {
			slog.Debug("Dropping empty chapter", "heading", strings.TrimSpace(raw[loc[0]:loc[1]]))
			continue
		}
		sections = append(sections, Section{
			Heading: strings.TrimSpace(raw[loc[0]:loc[1]]),
			Body:    body,
		})
	}

	slog.Debug("Split text into sections", "markers", len(locs), "sections", len(sections))
	return sections
}

// Bodies returns only the section bodies of raw, in order.
func Bodies(raw string) []string {
	sections := Split(raw)
	bodies := make([]string, len(sections))
	for i, s := range sections {
		bodies[i] = s.Body
	}
	return bodies
}

// Heading returns the first chapter marker found in region, trimmed.
func Heading(region string) (string, bool) {
	m := markerRegex.FindString(region)
	if m == "" {
		return "", false
	}
	return strings.TrimSpace(m), true
}
