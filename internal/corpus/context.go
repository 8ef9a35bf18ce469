package corpus

import (
	"path/filepath"
	"strings"
)

// full-context layout
const (
	maxKeyCharacters = 10
	maxPassages      = 3
	eventsPerPassage = 3
	passageSeparator = "\n\n---\n\n"
	bookSeparator    = "\n\n==========\n\n"
	bookHeaderPrefix = "BOOK: "
	charactersPrefix = "KEY CHARACTERS: "
	titleSeparator   = "-"
)

// DeriveTitle turns a document identifier into a book title: the extension is dropped
// and the parts between the first and last '-' are kept, so
// "J. K. Rowling - Harry Potter 1 - Sorcerer's Stone (1).txt" becomes "Harry Potter 1".
// Identifiers with fewer than three parts fall back to the trimmed base name.
func DeriveTitle(id string) string {
	base := filepath.Base(id)
	switch strings.ToLower(filepath.Ext(base)) {
	case ".txt", ".html", ".htm", ".xhtml":
		base = base[:len(base)-len(filepath.Ext(base))]
	}

	parts := strings.Split(base, titleSeparator)
	if len(parts) >= 3 {
		if title := strings.TrimSpace(strings.Join(parts[1:len(parts)-1], titleSeparator)); title != "" {
			return title
		}
	}
	return strings.TrimSpace(base)
}

// buildFullContext renders the summary handed to the language model
func buildFullContext(books []*Book) string {
	sections := make([]string, 0, len(books))
	for _, book := range books {
		sections = append(sections, bookSection(book))
	}
	return strings.Join(sections, bookSeparator)
}

func bookSection(book *Book) string {
	characters := book.MainCharacters
	if len(characters) > maxKeyCharacters {
		characters = characters[:maxKeyCharacters]
	}

	var b strings.Builder
	b.WriteString(bookHeaderPrefix)
	b.WriteString(book.Title)
	b.WriteString("\n\n")
	b.WriteString(charactersPrefix)
	b.WriteString(strings.Join(characters, ", "))
	b.WriteString("\n\n")
	b.WriteString(strings.Join(importantPassages(book), passageSeparator))
	return b.String()
}

// importantPassages takes each chapter's first key events, or its summary when it has
// none, and keeps the first few non-empty ones
func importantPassages(book *Book) []string {
	passages := make([]string, 0, maxPassages)
	for _, ch := range book.Chapters {
		if len(passages) == maxPassages {
			break
		}
		var passage string
		if len(ch.KeyEvents) > 0 {
			events := ch.KeyEvents
			if len(events) > eventsPerPassage {
				events = events[:eventsPerPassage]
			}
			passage = strings.Join(events, " ")
		} else {
			passage = ch.Summary
		}
		if passage != "" {
			passages = append(passages, passage)
		}
	}
	return passages
}
