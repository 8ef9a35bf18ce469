// Package tfidf ranks chapters with classic TF-IDF weighting.
//
// It is a baseline for the lexical-overlap scorer: chapters are indexed once,
// then any number of queries are ranked against them. Text goes through the same
// token pipeline as search, so aliases fold the same way and "wand." matches "wand".
//
// Usage Example:
//
//	corpus := tfidf.NewCorpus(chapters, pipeline)
//	score := corpus.Score("invisibility cloak", 3)
//	top := corpus.Search("invisibility cloak", 5)
package tfidf

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/chriscorrea/lorekeeper/internal/token"
)

// minTermLength drops very short words, a crude stop-word filter
const minTermLength = 3

// Corpus holds the documents and their pre-computed frequencies.
type Corpus struct {
	Documents       []string             // original documents
	TermFrequencies []map[string]float64 // TF for each document
	DocFrequencies  map[string]int       // number of documents containing each term
	TotalDocuments  int

	pipeline *token.Pipeline
}

// Ranked is one document position and its score.
type Ranked struct {
	Index int
	Score float64
}

// NewCorpus analyses documents once so later queries are cheap.
// A nil pipeline tokenizes without aliases.
func NewCorpus(documents []string, pipeline *token.Pipeline) *Corpus {
	if pipeline == nil {
		pipeline = token.NewPipeline(nil)
	}

	corpus := &Corpus{
		Documents:       documents,
		TermFrequencies: make([]map[string]float64, len(documents)),
		DocFrequencies:  make(map[string]int),
		TotalDocuments:  len(documents),
		pipeline:        pipeline,
	}
	if len(documents) == 0 {
		slog.Debug("Empty document collection provided")
		corpus.Documents = []string{}
		return corpus
	}

	for docIdx, doc := range documents {
		terms := corpus.terms(doc)
		corpus.TermFrequencies[docIdx] = termFrequency(terms)

		for term := range corpus.TermFrequencies[docIdx] {
			corpus.DocFrequencies[term]++
		}
	}

	slog.Debug("Created TF-IDF corpus", "documents", len(documents), "terms", len(corpus.DocFrequencies))
	return corpus
}

// Score sums tf*idf over the distinct query terms present in document docIndex.
// Out-of-range indices and queries with no usable terms score 0.
func (c *Corpus) Score(query string, docIndex int) float64 {
	if docIndex < 0 || docIndex >= c.TotalDocuments {
		slog.Debug("Invalid document index", "docIndex", docIndex, "totalDocs", c.TotalDocuments)
		return 0
	}
	return c.score(c.queryTerms(query), docIndex)
}

// Search ranks every document against query, highest first, ties in document order.
// Documents scoring 0 are left out; limit <= 0 keeps them all.
func (c *Corpus) Search(query string, limit int) []Ranked {
	terms := c.queryTerms(query)
	if len(terms) == 0 {
		return nil
	}

	var ranked []Ranked
	for i := range c.TotalDocuments {
		if score := c.score(terms, i); score > 0 {
			ranked = append(ranked, Ranked{Index: i, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func (c *Corpus) score(terms []string, docIndex int) float64 {
	docTF := c.TermFrequencies[docIndex]
	var total float64
	for _, term := range terms {
		tf := docTF[term]
		df := c.DocFrequencies[term]
		if tf == 0 || df == 0 {
			continue
		}
		idf := math.Log(float64(c.TotalDocuments) / float64(df))
		total += tf * idf
	}
	return total
}

// queryTerms returns the distinct usable terms of query in order
func (c *Corpus) queryTerms(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, term := range c.terms(query) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// terms lowercases pipeline output and drops short words
func (c *Corpus) terms(text string) []string {
	var out []string
	for _, term := range c.pipeline.Terms(text) {
		if utf8.RuneCountInString(term) < minTermLength {
			continue
		}
		out = append(out, strings.ToLower(term))
	}
	return out
}

// termFrequency is count/total per term
func termFrequency(terms []string) map[string]float64 {
	counts := make(map[string]int)
	for _, t := range terms {
		counts[t]++
	}
	freqs := make(map[string]float64, len(counts))
	total := float64(len(terms))
	for term, n := range counts {
		freqs[term] = float64(n) / total
	}
	return freqs
}
