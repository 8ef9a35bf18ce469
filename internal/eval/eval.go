// Package eval compares the lexical-overlap ranking used by search with two classic
// baselines, BM25 (field weighted, via bm25md) and TF-IDF.
//
// Reports are meant for tuning the relevance threshold: they show how many chapters
// clear the threshold for a query, which chapter each ranker puts first and how much
// the top-k lists agree.
//
// Usage Example:
//
//	ev := eval.New(store.Books(), store.Scorer(), store.Threshold())
//	for _, r := range ev.Run([]string{"invisibility cloak", "dragon egg"}) {
//		fmt.Println(r.Query, r.AboveThreshold, r.OverlapBM25)
//	}
package eval

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/chriscorrea/bm25md"

	"github.com/chriscorrea/lorekeeper/internal/corpus"
	"github.com/chriscorrea/lorekeeper/internal/relevance"
	"github.com/chriscorrea/lorekeeper/internal/tfidf"
)

// DefaultK is the list depth used for overlap.
const DefaultK = 5

// Ranker names a ranking method.
type Ranker string

const (
	Lexical Ranker = "lexical"
	BM25    Ranker = "bm25"
	TFIDF   Ranker = "tfidf"
)

// Rankers lists every method in report order.
func Rankers() []Ranker {
	return []Ranker{Lexical, BM25, TFIDF}
}

// Hit is a ranked chapter.
type Hit struct {
	Book    string  `json:"book"`
	Chapter string  `json:"chapter"`
	Score   float64 `json:"score"`
}

// Report holds the comparison for one query.
type Report struct {
	Query          string         `json:"query"`
	AboveThreshold int            `json:"above_threshold"`
	Top            map[Ranker]Hit `json:"top"` // rankers with no match are absent
	OverlapBM25    float64        `json:"overlap_bm25"`
	OverlapTFIDF   float64        `json:"overlap_tfidf"`
}

type chapterRef struct {
	book    string
	chapter string
	content string
}

// Evaluator indexes every chapter once for all three rankers.
type Evaluator struct {
	chapters  []chapterRef
	scorer    *relevance.Scorer
	threshold float64
	k         int
	bm25      *bm25md.Corpus
	tfidf     *tfidf.Corpus
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithK sets the depth used for overlap@k. Non-positive values are ignored.
func WithK(k int) Option {
	return func(e *Evaluator) {
		if k > 0 {
			e.k = k
		}
	}
}

// New indexes the chapters of books. The scorer and threshold are the ones search uses.
func New(books []*corpus.Book, scorer *relevance.Scorer, threshold float64, opts ...Option) *Evaluator {
	e := &Evaluator{
		scorer:    scorer,
		threshold: threshold,
		k:         DefaultK,
	}
	for _, opt := range opts {
		opt(e)
	}

	pipeline := scorer.Pipeline()
	tokenize := func(text string) []string {
		terms := pipeline.Terms(text)
		for i, t := range terms {
			terms[i] = strings.ToLower(t)
		}
		return terms
	}
	e.bm25 = bm25md.NewCorpus(bm25md.WithTokenizer(bm25md.TokenizerFunc(tokenize)))

	var contents []string
	for _, book := range books {
		for _, ch := range book.Chapters {
			e.chapters = append(e.chapters, chapterRef{book: book.Title, chapter: ch.Title, content: ch.Content})
			contents = append(contents, ch.Content)
			e.bm25.AddDocument(bm25md.Document{
				Fields: map[bm25md.Field]string{
					bm25md.FieldH1:   ch.Title,
					bm25md.FieldBody: ch.Content,
				},
				Original: ch.Content,
			})
		}
	}
	e.tfidf = tfidf.NewCorpus(contents, pipeline)

	slog.Debug("Indexed chapters for evaluation", "books", len(books), "chapters", len(e.chapters), "k", e.k)
	return e
}

// Run evaluates each query in order.
func (e *Evaluator) Run(queries []string) []Report {
	reports := make([]Report, 0, len(queries))
	for _, q := range queries {
		reports = append(reports, e.Evaluate(q))
	}
	return reports
}

// Evaluate ranks every chapter against query with all three methods.
func (e *Evaluator) Evaluate(query string) Report {
	report := Report{Query: query, Top: make(map[Ranker]Hit)}

	lexical := e.rankLexical(query, &report.AboveThreshold)

	var bm25 []ranked
	for _, r := range e.bm25.Search(query, 0) {
		bm25 = append(bm25, ranked{index: r.Index, score: r.Score})
	}
	// bm25md sorts without a stable tie order
	sort.SliceStable(bm25, func(i, j int) bool {
		if bm25[i].score != bm25[j].score {
			return bm25[i].score > bm25[j].score
		}
		return bm25[i].index < bm25[j].index
	})

	var tf []ranked
	for _, r := range e.tfidf.Search(query, 0) {
		tf = append(tf, ranked{index: r.Index, score: r.Score})
	}

	for ranker, list := range map[Ranker][]ranked{Lexical: lexical, BM25: bm25, TFIDF: tf} {
		if len(list) > 0 {
			report.Top[ranker] = e.hit(list[0])
		}
	}
	report.OverlapBM25 = Overlap(indices(lexical), indices(bm25), e.k)
	report.OverlapTFIDF = Overlap(indices(lexical), indices(tf), e.k)

	slog.Debug("Evaluated query", "query", query, "lexical", len(lexical), "bm25", len(bm25), "tfidf", len(tf),
		"aboveThreshold", report.AboveThreshold)
	return report
}

type ranked struct {
	index int
	score float64
}

// rankLexical scores chapters with the search scorer, keeping positive scores and
// counting those search would return
func (e *Evaluator) rankLexical(query string, above *int) []ranked {
	var out []ranked
	for i, ch := range e.chapters {
		score := e.scorer.Score(query, ch.content)
		if score > e.threshold {
			*above++
		}
		if score > 0 {
			out = append(out, ranked{index: i, score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

func (e *Evaluator) hit(r ranked) Hit {
	ch := e.chapters[r.index]
	return Hit{Book: ch.book, Chapter: ch.chapter, Score: r.score}
}

func indices(list []ranked) []int {
	out := make([]int, len(list))
	for i, r := range list {
		out[i] = r.index
	}
	return out
}

// Overlap is the share of the top-k of a also found in the top-k of b, measured
// against the shorter of the two lists. Two empty lists agree completely; one empty
// list does not agree at all.
func Overlap(a, b []int, k int) float64 {
	if k <= 0 {
		return 0
	}
	a = a[:min(k, len(a))]
	b = b[:min(k, len(b))]
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	depth := min(len(a), len(b))
	if depth == 0 {
		return 0
	}

	inB := make(map[int]struct{}, len(b))
	for _, i := range b {
		inB[i] = struct{}{}
	}
	shared := 0
	for _, i := range a {
		if _, ok := inB[i]; ok {
			shared++
		}
	}
	return float64(shared) / float64(depth)
}
