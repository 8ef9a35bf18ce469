package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/chriscorrea/lorekeeper/internal/app"
	"github.com/chriscorrea/lorekeeper/internal/corpus"
	"github.com/chriscorrea/lorekeeper/internal/eval"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	answerStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// maxListed caps the names shown per table cell
const maxListed = 4

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			return cellStyle
		})
}

// renderChapters lists one book's chapters with character and key event counts
func renderChapters(book *corpus.Book) string {
	t := newTable("#", "Chapter", "Characters", "Events", "Summary")
	for i, ch := range book.Chapters {
		title := ch.Title
		if ch.Boilerplate {
			title += " (front matter)"
		}
		t.Row(strconv.Itoa(i+1), title, joinNames(ch.Characters), strconv.Itoa(len(ch.KeyEvents)), truncate(ch.Summary, 60))
	}

	header := titleStyle.Render(book.Title) + " " +
		mutedStyle.Render(fmt.Sprintf("%d chapters, main characters: %s", len(book.Chapters), joinNames(book.MainCharacters)))
	return header + "\n" + t.Render()
}

// renderReports shows the per-query ranking comparison
func renderReports(reports []eval.Report, threshold float64) string {
	headers := []string{"Query", fmt.Sprintf("> %.2f", threshold)}
	for _, r := range eval.Rankers() {
		headers = append(headers, "Top "+string(r))
	}
	headers = append(headers, "Overlap BM25", "Overlap TF-IDF")

	t := newTable(headers...)
	for _, rep := range reports {
		row := []string{rep.Query, strconv.Itoa(rep.AboveThreshold)}
		for _, r := range eval.Rankers() {
			row = append(row, formatHit(rep.Top, r))
		}
		row = append(row, fmt.Sprintf("%.2f", rep.OverlapBM25), fmt.Sprintf("%.2f", rep.OverlapTFIDF))
		t.Row(row...)
	}
	return t.Render()
}

func formatHit(top map[eval.Ranker]eval.Hit, r eval.Ranker) string {
	hit, ok := top[r]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%s / %s (%.3f)", hit.Book, hit.Chapter, hit.Score)
}

// renderAnswer boxes the answer and lists its sources underneath
func renderAnswer(resp *app.Response) string {
	var b strings.Builder
	b.WriteString(answerStyle.Render(resp.Answer))
	for _, p := range resp.Passages {
		fmt.Fprintf(&b, "\n%s", mutedStyle.Render(fmt.Sprintf("source: %s / %s (%.3f)", p.Book, p.Chapter, p.Relevance)))
	}
	if resp.Fallback {
		fmt.Fprintf(&b, "\n%s", mutedStyle.Render("(answered without the model)"))
	}
	fmt.Fprintf(&b, "\n%s", mutedStyle.Render("session: "+resp.SessionID))
	return b.String()
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	if len(names) > maxListed {
		return strings.Join(names[:maxListed], ", ") + fmt.Sprintf(" +%d", len(names)-maxListed)
	}
	return strings.Join(names, ", ")
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
