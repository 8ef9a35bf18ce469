package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chriscorrea/lorekeeper/internal/app"
	"github.com/chriscorrea/lorekeeper/internal/chunk"
	"github.com/chriscorrea/lorekeeper/internal/corpus"
	"github.com/chriscorrea/lorekeeper/internal/counter"
	"github.com/chriscorrea/lorekeeper/internal/retry"
)

// DefaultPageWords is the read_chapter page size.
const DefaultPageWords = 800

// Server holds the corpus behind the tools. Handlers are safe for concurrent use.
type Server struct {
	store     *corpus.Store
	assistant *app.Assistant
	pageSize  int
	measure   chunk.Measure
	load      retry.Policy
}

// Option configures a Server.
type Option func(*Server)

// WithPageSize pages chapters in size units of c. Non-positive sizes are ignored.
func WithPageSize(size int, c counter.Counter) Option {
	return func(s *Server) {
		if size > 0 && c != nil {
			s.pageSize = size
			s.measure = c.Count
		}
	}
}

// WithAssistant registers the ask_books tool.
func WithAssistant(a *app.Assistant) Option {
	return func(s *Server) {
		s.assistant = a
	}
}

// WithLoadPolicy sets how corpus loading is retried before a tool runs.
func WithLoadPolicy(p retry.Policy) Option {
	return func(s *Server) {
		s.load = p
	}
}

// New returns a Server over store.
func New(store *corpus.Store, opts ...Option) *Server {
	s := &Server{
		store:    store,
		pageSize: DefaultPageWords,
		measure:  counter.WordCounter{}.Count,
		load:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// bookInfo is the list_books entry for one book.
type bookInfo struct {
	Title          string   `json:"title"`
	Chapters       []string `json:"chapters"`
	MainCharacters []string `json:"main_characters"`
	Locations      []string `json:"locations,omitempty"`
	Spells         []string `json:"spells,omitempty"`
}

// SearchBooks handles the search_books tool.
func (s *Server) SearchBooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query argument is required and must be a non-empty string"), nil
	}
	limit := request.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be positive, got %d", limit)), nil
	}

	if res := s.ensureLoaded(ctx); res != nil {
		return res, nil
	}

	results := s.store.Search(query)
	if len(results) > limit {
		results = results[:limit]
	}
	slog.Debug("search_books", "query", query, "limit", limit, "results", len(results))

	return jsonResult(results)
}

// GetFullContext handles the get_full_context tool.
func (s *Server) GetFullContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.ensureLoaded(ctx); res != nil {
		return res, nil
	}
	full, err := s.store.FullContext(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build full context: %v", err)), nil
	}
	return mcp.NewToolResultText(full), nil
}

// ListBooks handles the list_books tool.
func (s *Server) ListBooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.ensureLoaded(ctx); res != nil {
		return res, nil
	}

	books := s.store.Books()
	infos := make([]bookInfo, 0, len(books))
	for _, b := range books {
		info := bookInfo{
			Title:          b.Title,
			Chapters:       make([]string, 0, len(b.Chapters)),
			MainCharacters: b.MainCharacters,
			Locations:      b.Locations,
			Spells:         b.Spells,
		}
		if info.MainCharacters == nil {
			info.MainCharacters = []string{}
		}
		for _, ch := range b.Chapters {
			info.Chapters = append(info.Chapters, ch.Title)
		}
		infos = append(infos, info)
	}
	return jsonResult(infos)
}

// ReadChapter handles the read_chapter tool.
func (s *Server) ReadChapter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("book")
	if err != nil || strings.TrimSpace(title) == "" {
		return mcp.NewToolResultError("book argument is required and must be a non-empty string"), nil
	}
	number, err := request.RequireInt("chapter")
	if err != nil {
		return mcp.NewToolResultError("chapter argument is required and must be a number"), nil
	}
	page := request.GetInt("page", 1)

	if res := s.ensureLoaded(ctx); res != nil {
		return res, nil
	}

	book := s.findBook(title)
	if book == nil {
		return mcp.NewToolResultError(fmt.Sprintf("book %q not found", title)), nil
	}
	if number < 1 || number > len(book.Chapters) {
		return mcp.NewToolResultError(fmt.Sprintf("chapter %d out of range: %q has %d chapters",
			number, book.Title, len(book.Chapters))), nil
	}
	ch := book.Chapters[number-1]

	text, total, ok := chunk.Page(ch.Content, s.pageSize, s.measure, page)
	if total == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%s / %s\n\n(empty chapter)", book.Title, ch.Title)), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("page %d out of range: chapter has %d pages", page, total)), nil
	}

	slog.Debug("read_chapter", "book", book.Title, "chapter", ch.Title, "page", page, "pages", total)
	return mcp.NewToolResultText(fmt.Sprintf("%s / %s (page %d of %d)\n\n%s", book.Title, ch.Title, page, total, text)), nil
}

// AskBooks handles the ask_books tool.
func (s *Server) AskBooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.assistant == nil {
		return mcp.NewToolResultError("no assistant configured"), nil
	}
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}
	persona, err := app.ParsePersona(request.GetString("persona", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := app.Freeform
	if request.GetBool("structured", false) {
		mode = app.Structured
	}

	resp, err := s.assistant.Ask(ctx, app.Request{
		Message:   message,
		SessionID: request.GetString("session_id", ""),
		Mode:      mode,
		Persona:   persona,
	})
	if err != nil {
		if errors.Is(err, app.ErrEmptyMessage) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}
	return jsonResult(resp)
}

// ensureLoaded returns a tool error when the corpus cannot be loaded
func (s *Server) ensureLoaded(ctx context.Context) *mcp.CallToolResult {
	if s.store.Loaded() {
		return nil
	}
	if err := retry.Do(ctx, s.load, s.store.Load); err != nil {
		slog.Error("Corpus load failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to load books: %v", err))
	}
	return nil
}

// findBook matches a title exactly, then ignoring case
func (s *Server) findBook(title string) *corpus.Book {
	title = strings.TrimSpace(title)
	if b, ok := s.store.Book(title); ok {
		return b
	}
	for _, b := range s.store.Books() {
		if strings.EqualFold(b.Title, title) {
			return b
		}
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
