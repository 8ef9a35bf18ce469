package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chriscorrea/lorekeeper/internal/analyze"
	"github.com/chriscorrea/lorekeeper/internal/app"
	"github.com/chriscorrea/lorekeeper/internal/corpus"
	"github.com/chriscorrea/lorekeeper/internal/counter"
	"github.com/chriscorrea/lorekeeper/internal/fetch"
	"github.com/chriscorrea/lorekeeper/internal/relevance"
	"github.com/chriscorrea/lorekeeper/internal/retry"
	"github.com/chriscorrea/lorekeeper/internal/token"
)

const (
	stoneID   = "J. K. Rowling - Harry Potter 1 - Sorcerer's Stone (1).txt"
	stoneText = "CHAPTER ONE\nThe Boy Who Lived\n\nHarry found a wand. He was surprised. The wand was old.\n\n" +
		"CHAPTER TWO\nThe Vanishing Glass\n\nDudley shouted at the snake. The snake escaped."
	secretsID   = "J. K. Rowling - Harry Potter 2 - The Chamber Of Secrets.txt"
	secretsText = "CHAPTER ONE\nThe Worst Birthday\n\nHarry waited for a letter from Ron. Hedwig stayed in her cage."
)

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// newTestServer writes docs (name, text pairs) to a temp dir and serves them
func newTestServer(t *testing.T, opts []Option, docs ...string) *Server {
	t.Helper()
	dir := t.TempDir()
	var ids []string
	for i := 0; i+1 < len(docs); i += 2 {
		if err := os.WriteFile(filepath.Join(dir, docs[i]), []byte(docs[i+1]), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		ids = append(ids, docs[i])
	}
	scorer := relevance.NewScorer(token.NewPipeline(token.NewCanonicalizer(token.DefaultAliases())))
	store := corpus.New(&fetch.DirSource{Dir: dir}, analyze.New(), scorer, corpus.WithDocuments(ids...))
	opts = append([]Option{WithLoadPolicy(retry.Policy{Attempts: 2, Sleep: noSleep})}, opts...)
	return New(store, opts...)
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// resultText returns the text of a single-content result
func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil {
		t.Fatal("nil result")
	}
	if len(res.Content) != 1 {
		t.Fatalf("result has %d content items, want 1", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", res.Content[0])
	}
	return text.Text
}

func TestSearchBooks(t *testing.T) {
	s := newTestServer(t, nil, stoneID, stoneText, secretsID, secretsText)

	res, err := s.SearchBooks(context.Background(), call("search_books", map[string]any{"query": "wand"}))
	if err != nil {
		t.Fatalf("SearchBooks() error: %v", err)
	}
	if res.IsError {
		t.Fatalf("SearchBooks() tool error: %s", resultText(t, res))
	}

	var results []corpus.Result
	if err := json.Unmarshal([]byte(resultText(t, res)), &results); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1: %+v", len(results), results)
	}
	if results[0].Book != "Harry Potter 1" || results[0].Chapter != "CHAPTER ONE" {
		t.Errorf("result = %+v", results[0])
	}
	if !strings.Contains(results[0].Context, "wand") {
		t.Errorf("context %q does not mention the query", results[0].Context)
	}
}

func TestSearchBooksLimit(t *testing.T) {
	s := newTestServer(t, nil, stoneID, stoneText, secretsID, secretsText)

	res, err := s.SearchBooks(context.Background(), call("search_books", map[string]any{"query": "Harry", "limit": float64(1)}))
	if err != nil {
		t.Fatalf("SearchBooks() error: %v", err)
	}
	var results []corpus.Result
	if err := json.Unmarshal([]byte(resultText(t, res)), &results); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(results) > 1 {
		t.Errorf("got %d results, want at most 1", len(results))
	}
}

func TestSearchBooksNoMatch(t *testing.T) {
	s := newTestServer(t, nil, stoneID, stoneText)

	res, err := s.SearchBooks(context.Background(), call("search_books", map[string]any{"query": "quidditch"}))
	if err != nil {
		t.Fatalf("SearchBooks() error: %v", err)
	}
	if got := resultText(t, res); got != "[]" {
		t.Errorf("result = %q, want []", got)
	}
}

func TestToolInputErrors(t *testing.T) {
	s := newTestServer(t, nil, stoneID, stoneText)
	ctx := context.Background()

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]any
		want    string
	}{
		{"search without query", s.SearchBooks, map[string]any{}, "query argument is required"},
		{"search blank query", s.SearchBooks, map[string]any{"query": "  "}, "query argument is required"},
		{"search zero limit", s.SearchBooks, map[string]any{"query": "wand", "limit": float64(0)}, "limit must be positive"},
		{"read without book", s.ReadChapter, map[string]any{"chapter": float64(1)}, "book argument is required"},
		{"read without chapter", s.ReadChapter, map[string]any{"book": "Harry Potter 1"}, "chapter argument is required"},
		{"read unknown book", s.ReadChapter, map[string]any{"book": "Harry Potter 9", "chapter": float64(1)}, "not found"},
		{"read chapter zero", s.ReadChapter, map[string]any{"book": "Harry Potter 1", "chapter": float64(0)}, "out of range"},
		{"read chapter past end", s.ReadChapter, map[string]any{"book": "Harry Potter 1", "chapter": float64(3)}, "out of range"},
		{"read page past end", s.ReadChapter, map[string]any{"book": "Harry Potter 1", "chapter": float64(1), "page": float64(99)}, "page 99 out of range"},
		{"ask without assistant", s.AskBooks, map[string]any{"message": "wand"}, "no assistant configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.handler(ctx, call("tool", tt.args))
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if !res.IsError {
				t.Fatalf("IsError = false, result %q", resultText(t, res))
			}
			if got := resultText(t, res); !strings.Contains(got, tt.want) {
				t.Errorf("error = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestListBooks(t *testing.T) {
	s := newTestServer(t, nil, stoneID, stoneText, secretsID, secretsText)

	res, err := s.ListBooks(context.Background(), call("list_books", nil))
	if err != nil {
		t.Fatalf("ListBooks() error: %v", err)
	}

	var books []bookInfo
	if err := json.Unmarshal([]byte(resultText(t, res)), &books); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("got %d books, want 2", len(books))
	}
	if books[0].Title != "Harry Potter 1" || books[1].Title != "Harry Potter 2" {
		t.Errorf("titles = %q, %q", books[0].Title, books[1].Title)
	}
	if got := strings.Join(books[0].Chapters, ","); got != "CHAPTER ONE,CHAPTER TWO" {
		t.Errorf("chapters = %q", got)
	}
	if len(books[1].MainCharacters) == 0 || books[1].MainCharacters[0] != "Harry" {
		t.Errorf("main characters = %v", books[1].MainCharacters)
	}
}

func TestReadChapterPages(t *testing.T) {
	s := newTestServer(t, []Option{WithPageSize(4, counter.WordCounter{})}, stoneID, stoneText)
	ctx := context.Background()

	first, err := s.ReadChapter(ctx, call("read_chapter", map[string]any{"book": "harry potter 1", "chapter": float64(1)}))
	if err != nil {
		t.Fatalf("ReadChapter() error: %v", err)
	}
	if first.IsError {
		t.Fatalf("tool error: %s", resultText(t, first))
	}
	text := resultText(t, first)
	if !strings.HasPrefix(text, "Harry Potter 1 / CHAPTER ONE (page 1 of ") {
		t.Errorf("header = %q", strings.SplitN(text, "\n", 2)[0])
	}

	// pages put back together hold every word of the chapter
	book, _ := s.store.Book("Harry Potter 1")
	var words []string
	for page := 1; ; page++ {
		res, err := s.ReadChapter(ctx, call("read_chapter", map[string]any{
			"book": "Harry Potter 1", "chapter": float64(1), "page": float64(page),
		}))
		if err != nil {
			t.Fatalf("ReadChapter(page %d) error: %v", page, err)
		}
		if res.IsError {
			break
		}
		body := strings.SplitN(resultText(t, res), "\n\n", 2)[1]
		if n := len(strings.Fields(body)); n > 4 {
			t.Errorf("page %d has %d words, want at most 4", page, n)
		}
		words = append(words, strings.Fields(body)...)
	}
	if got, want := strings.Join(words, " "), strings.Join(strings.Fields(book.Chapters[0].Content), " "); got != want {
		t.Errorf("reassembled chapter = %q, want %q", got, want)
	}
}

func TestGetFullContext(t *testing.T) {
	s := newTestServer(t, nil, stoneID, stoneText)

	res, err := s.GetFullContext(context.Background(), call("get_full_context", nil))
	if err != nil {
		t.Fatalf("GetFullContext() error: %v", err)
	}
	want, err := s.store.FullContext(context.Background())
	if err != nil {
		t.Fatalf("FullContext() error: %v", err)
	}
	if got := resultText(t, res); got != want {
		t.Errorf("full context = %q, want %q", got, want)
	}
}

func TestLoadFailure(t *testing.T) {
	s := newTestServer(t, nil)
	s.store = corpus.New(&fetch.DirSource{Dir: t.TempDir()}, analyze.New(),
		relevance.NewScorer(token.NewPipeline(nil)), corpus.WithDocuments("missing.txt"))

	res, err := s.ListBooks(context.Background(), call("list_books", nil))
	if err != nil {
		t.Fatalf("ListBooks() error: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "failed to load books") {
		t.Errorf("result = %+v", res)
	}
}

func TestAskBooks(t *testing.T) {
	s := newTestServer(t, nil, stoneID, stoneText)
	opts := app.DefaultOptions()
	opts.LoadPolicy = retry.Policy{Attempts: 1, Sleep: noSleep}
	s.assistant = app.NewAssistant(s.store, nil, nil, opts)

	res, err := s.AskBooks(context.Background(), call("ask_books", map[string]any{"message": "wand"}))
	if err != nil {
		t.Fatalf("AskBooks() error: %v", err)
	}
	var resp app.Response
	if err := json.Unmarshal([]byte(resultText(t, res)), &resp); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if !resp.Fallback || !strings.HasPrefix(resp.Answer, "I found this in the books:") {
		t.Errorf("response = %+v", resp)
	}

	bad, err := s.AskBooks(context.Background(), call("ask_books", map[string]any{"message": "wand", "persona": "voldemort"}))
	if err != nil {
		t.Fatalf("AskBooks() error: %v", err)
	}
	if !bad.IsError {
		t.Error("unknown persona was accepted")
	}
}

func TestNewMCPServerRegistersTools(t *testing.T) {
	s := newTestServer(t, nil, stoneID, stoneText)
	if srv := s.NewMCPServer(); srv == nil {
		t.Fatal("NewMCPServer() returned nil")
	}
	if s.pageSize != DefaultPageWords {
		t.Errorf("pageSize = %d, want %d", s.pageSize, DefaultPageWords)
	}
}
