// Package counter measures and trims text against a budget.
//
// Prompts sent to the language model embed the full-context summary and the quoted
// passages; a Counter tells how large they are and cuts them down to fit. Three
// units are available: tiktoken cl100k_base tokens (the default), words as produced
// by the corpus tokenizer, and characters (runes).
//
// Usage Example:
//
//	c, err := counter.New(counter.Tokens)
//	if err != nil {
//		return err
//	}
//	fits := c.Truncate(fullContext, 6000)
package counter

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/chriscorrea/lorekeeper/internal/token"
)

// Counter measures text in one unit and truncates it to a maximum.
type Counter interface {
	// Count returns the number of units in text.
	Count(text string) int
	// Truncate returns the longest prefix of text holding at most max units.
	Truncate(text string, max int) string
	// Name is used in logs and reports.
	Name() string
}

// Unit selects a counting strategy.
type Unit int

const (
	// Tokens counts cl100k_base tokens (default)
	Tokens Unit = iota
	// Words counts whitespace-separated words
	Words
	// Characters counts runes
	Characters
)

func (u Unit) String() string {
	switch u {
	case Tokens:
		return "tokens"
	case Words:
		return "words"
	case Characters:
		return "characters"
	default:
		return "unknown"
	}
}

// ParseUnit maps a flag value to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tokens", "token":
		return Tokens, nil
	case "words", "word":
		return Words, nil
	case "characters", "chars", "char":
		return Characters, nil
	}
	return Tokens, fmt.Errorf("unknown counting unit %q", s)
}

// New returns the Counter for unit. Unknown units fall back to tokens.
func New(unit Unit) (Counter, error) {
	switch unit {
	case Words:
		return WordCounter{}, nil
	case Characters:
		return CharCounter{}, nil
	default:
		return NewTokenCounter()
	}
}

// WordCounter counts corpus tokens.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(token.Tokenize(text))
}

// Truncate keeps the first max words, cutting the original text after the last kept word.
func (WordCounter) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	fields := 0
	inWord := false
	for i, r := range text {
		space := isSpace(r)
		if !space && !inWord {
			if fields == max {
				return strings.TrimRight(text[:i], " \t\n\f\r")
			}
			fields++
		}
		inWord = !space
	}
	return text
}

func (WordCounter) Name() string {
	return "words"
}

// CharCounter counts runes.
type CharCounter struct{}

func (CharCounter) Count(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate keeps the first max runes.
func (CharCounter) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range text {
		if n == max {
			slog.Debug("Truncated text", "unit", "characters", "max", max)
			return text[:i]
		}
		n++
	}
	return text
}

func (CharCounter) Name() string {
	return "characters"
}

// isSpace matches the whitespace class used by token.Tokenize
func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}
