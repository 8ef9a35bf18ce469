package app

import (
	"fmt"
	"strings"

	"github.com/chriscorrea/lorekeeper/internal/corpus"
)

const structuredPrefix = "Please give a structured answer, with headers and bullet points, " +
	"based on the book content:\n\n"

// formatPassages numbers results as "Passage N from <book>:\n<context>"
func formatPassages(results []corpus.Result) []string {
	passages := make([]string, 0, len(results))
	for i, r := range results {
		passages = append(passages, fmt.Sprintf("Passage %d from %s:\n%s", i+1, r.Book, r.Context))
	}
	return passages
}

// buildPrompt grounds message in passages, or asks a general question when there are none
func buildPrompt(message string, passages []string, mode Mode) string {
	var prompt string
	if len(passages) > 0 {
		prompt = "Answer based on this context from the books:\n" +
			strings.Join(passages, "\n\n") +
			"\n\nUser question: " + message
	} else {
		prompt = fmt.Sprintf("The user has asked about the books. Answer their question if you can:\n%q\n\n"+
			"If it is not about these books, kindly explain that you only have information about them.", message)
	}

	if mode == Structured {
		prompt = structuredPrefix + prompt
	}
	return prompt
}

// fallbackAnswer quotes the passages directly
func fallbackAnswer(passages []string) string {
	if len(passages) == 0 {
		return UnavailableAnswer
	}
	return "I found this in the books:\n\n" + strings.Join(passages, "\n\n")
}
