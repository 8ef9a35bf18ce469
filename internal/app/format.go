package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chriscorrea/lorekeeper/internal/corpus"
)

// OutputFormat defines how search results are rendered.
type OutputFormat int

const (
	// markdown output format (default)
	Markdown OutputFormat = iota
	// plaintext output format
	Text
	// JSON output format
	JSON
)

// String returns the string representation of the output
func (f OutputFormat) String() string {
	switch f {
	case Markdown:
		return "Markdown"
	case Text:
		return "Text"
	case JSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// ParseFormat accepts md, markdown, txt, text or json; empty means Markdown.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return Markdown, nil
	case "txt", "text":
		return Text, nil
	case "json":
		return JSON, nil
	default:
		return Markdown, fmt.Errorf("unknown output format %q (want md, txt or json)", s)
	}
}

// FormatResults renders ranked search results. An empty result list renders as a
// short notice, or as [] in JSON.
func FormatResults(query string, results []corpus.Result, format OutputFormat) (string, error) {
	switch format {
	case JSON:
		if results == nil {
			results = []corpus.Result{}
		}
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode results: %w", err)
		}
		return string(data), nil

	case Text:
		if len(results) == 0 {
			return fmt.Sprintf("No passages found for %q.", query), nil
		}
		var b strings.Builder
		for i, r := range results {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "%d. %s / %s (relevance %.3f)\n%s", i+1, r.Book, r.Chapter, r.Relevance, r.Context)
		}
		return b.String(), nil

	case Markdown:
		if len(results) == 0 {
			return fmt.Sprintf("_No passages found for %q._", query), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "# Results for %q\n", query)
		for i, r := range results {
			fmt.Fprintf(&b, "\n## %d. %s: %s\n\n*Relevance: %.3f*\n\n> %s\n", i+1, r.Book, r.Chapter, r.Relevance,
				strings.ReplaceAll(r.Context, "\n", "\n> "))
		}
		return strings.TrimRight(b.String(), "\n"), nil

	default:
		return "", fmt.Errorf("unsupported output format %v", format)
	}
}
