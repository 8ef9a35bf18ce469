// Package corpus owns the processed books and answers retrieval queries over them.
//
// A Store starts empty. Load fetches every document once, segments and analyses it,
// builds the full-context summary and publishes the result as a frozen snapshot.
// After that, reads never lock and never block. Concurrent Load calls collapse onto a
// single in-flight attempt; a failed attempt leaves the store unloaded so it can be
// retried.
//
// Usage Example:
//
//	store := corpus.New(fetch.NewSource("./books", extract.Options{}), analyzer, scorer)
//	if err := store.Load(ctx); err != nil {
//		return err
//	}
//	for _, r := range store.Search("wand") {
//		fmt.Println(r.Book, r.Relevance, r.Context)
//	}
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chriscorrea/lorekeeper/internal/analyze"
	"github.com/chriscorrea/lorekeeper/internal/fetch"
	"github.com/chriscorrea/lorekeeper/internal/relevance"
	"github.com/chriscorrea/lorekeeper/internal/segment"
)

// DefaultThreshold is the relevance a chapter must exceed to be returned by Search.
const DefaultThreshold = 0.3

// ErrEmptyDocument is wrapped in a LoadError when a document has no text.
var ErrEmptyDocument = errors.New("document is empty")

// LoadError reports the document that stopped a load.
type LoadError struct {
	Document string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %q: %v", e.Document, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// DefaultDocuments returns the identifiers of the four novels, in load order.
func DefaultDocuments() []string {
	return []string{
		"J. K. Rowling - Harry Potter 1 - Sorcerer's Stone (1).txt",
		"J. K. Rowling - Harry Potter 2 - The Chamber Of Secrets.txt",
		"J. K. Rowling - Harry Potter 3 - Prisoner of Azkaban.txt",
		"J. K. Rowling - Harry Potter 4 - The Goblet of Fire.txt",
	}
}

// Book is one processed document. Books are shared between readers and must not be modified.
type Book struct {
	ID             string
	Title          string
	Chapters       []analyze.Chapter
	MainCharacters []string // first-seen order across chapters
	Locations      []string
	Spells         []string
}

// Result is one ranked chapter match.
type Result struct {
	Book      string  `json:"book"`
	Chapter   string  `json:"chapter"`
	Context   string  `json:"context"`
	Relevance float64 `json:"relevance"`
}

// ProgressFunc is told about each document before it is fetched.
type ProgressFunc func(index, total int, document string)

// Store is the corpus. The zero value is not usable; call New.
type Store struct {
	source    fetch.Source
	analyzer  *analyze.Analyzer
	scorer    *relevance.Scorer
	documents []string
	threshold float64
	progress  ProgressFunc

	group    singleflight.Group
	snapshot atomic.Pointer[snapshot]
}

// snapshot is the immutable result of one successful load
type snapshot struct {
	books       []*Book
	byTitle     map[string]*Book
	fullContext string
}

// Option configures a Store.
type Option func(*Store)

// WithDocuments replaces the document list. Order is preserved.
func WithDocuments(ids ...string) Option {
	return func(s *Store) {
		s.documents = append([]string(nil), ids...)
	}
}

// WithThreshold sets the minimum relevance for search results.
func WithThreshold(threshold float64) Option {
	return func(s *Store) {
		s.threshold = threshold
	}
}

// WithProgress registers a callback run before each document fetch.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Store) {
		s.progress = fn
	}
}

// New returns an unloaded store. A nil analyzer or scorer gets the defaults.
func New(source fetch.Source, analyzer *analyze.Analyzer, scorer *relevance.Scorer, opts ...Option) *Store {
	if analyzer == nil {
		analyzer = analyze.New()
	}
	if scorer == nil {
		scorer = relevance.NewScorer(nil)
	}
	s := &Store{
		source:    source,
		analyzer:  analyzer,
		scorer:    scorer,
		documents: DefaultDocuments(),
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Loaded reports whether a load has completed successfully.
func (s *Store) Loaded() bool {
	return s.snapshot.Load() != nil
}

// Load fetches and processes every document. It returns nil at once when the store is
// already loaded, and callers that overlap an in-flight load share its outcome.
// Any failure aborts the whole load with a *LoadError.
func (s *Store) Load(ctx context.Context) error {
	if s.Loaded() {
		return nil
	}

	_, err, shared := s.group.Do("load", func() (any, error) {
		// a load may have finished between the check above and this call
		if s.Loaded() {
			return nil, nil
		}
		snap, err := s.build(ctx)
		if err != nil {
			return nil, err
		}
		s.snapshot.Store(snap)
		return nil, nil
	})
	if shared {
		slog.Debug("Joined in-flight corpus load")
	}
	return err
}

// build fetches, segments and analyses every document in order
func (s *Store) build(ctx context.Context) (*snapshot, error) {
	start := time.Now()
	snap := &snapshot{
		books:   make([]*Book, 0, len(s.documents)),
		byTitle: make(map[string]*Book, len(s.documents)),
	}

	for i, id := range s.documents {
		if s.progress != nil {
			s.progress(i, len(s.documents), id)
		}

		raw, err := s.source.Fetch(ctx, id)
		if err != nil {
			return nil, &LoadError{Document: id, Err: err}
		}
		if len(raw) == 0 {
			return nil, &LoadError{Document: id, Err: ErrEmptyDocument}
		}

		book := s.process(id, raw)
		book.Title = uniqueTitle(book.Title, snap.byTitle)
		snap.books = append(snap.books, book)
		snap.byTitle[book.Title] = book

		slog.Debug("Processed book", "title", book.Title, "bytes", len(raw), "chapters", len(book.Chapters))
	}

	snap.fullContext = buildFullContext(snap.books)
	slog.Info("Corpus loaded", "books", len(snap.books), "duration", time.Since(start))
	return snap, nil
}

func (s *Store) process(id, raw string) *Book {
	book := &Book{
		ID:       id,
		Title:    DeriveTitle(id),
		Chapters: s.analyzer.AnalyzeBook(segment.Split(raw)),
	}
	for _, ch := range book.Chapters {
		book.MainCharacters = union(book.MainCharacters, ch.Characters)
		book.Locations = union(book.Locations, ch.Locations)
		book.Spells = union(book.Spells, ch.Spells)
	}
	return book
}

// FullContext returns the cached corpus summary, loading first if needed.
func (s *Store) FullContext(ctx context.Context) (string, error) {
	if err := s.Load(ctx); err != nil {
		return "", err
	}
	return s.snapshot.Load().fullContext, nil
}

// Search scores every chapter against query and returns those above the threshold,
// best first. Equal scores keep book and chapter order. An unloaded store returns nil.
func (s *Store) Search(query string) []Result {
	snap := s.snapshot.Load()
	if snap == nil {
		slog.Debug("Search before load", "query", query)
		return nil
	}

	results := []Result{}
	for _, book := range snap.books {
		for _, ch := range book.Chapters {
			score := s.scorer.Score(query, ch.Content)
			if score <= s.threshold {
				continue
			}
			results = append(results, Result{
				Book:      book.Title,
				Chapter:   ch.Title,
				Context:   s.scorer.Window(query, ch.Content),
				Relevance: score,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})

	slog.Debug("Search complete", "query", query, "results", len(results))
	return results
}

// Books returns the loaded books in document order.
func (s *Store) Books() []*Book {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil
	}
	return append([]*Book(nil), snap.books...)
}

// Book looks a book up by its derived title.
func (s *Store) Book(title string) (*Book, bool) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, false
	}
	book, ok := snap.byTitle[title]
	return book, ok
}

// Threshold returns the minimum relevance used by Search.
func (s *Store) Threshold() float64 {
	return s.threshold
}

// Scorer returns the scorer used by Search.
func (s *Store) Scorer() *relevance.Scorer {
	return s.scorer
}

// union appends the names of add missing from set, keeping first-seen order
func union(set, add []string) []string {
	for _, name := range add {
		found := false
		for _, have := range set {
			if have == name {
				found = true
				break
			}
		}
		if !found {
			set = append(set, name)
		}
	}
	return set
}

// uniqueTitle appends " (n)" when two documents derive the same title
func uniqueTitle(title string, taken map[string]*Book) string {
	if _, ok := taken[title]; !ok {
		return title
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", title, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
