// Package search provides a simple, deterministic, concurrency-safe
// in-memory index over exercise records. It is intentionally small and
// dependency-free, but engineered with production-grade ergonomics:
//
//   - No logging in the library (callers decide how/what to log)
//   - Clear, documented types and functional options (Option pattern)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Atomic re-indexing via Swap (admin endpoint rebuilds in one shot)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// exercise's token set: score = |Q ∩ E| / |Q ∪ E|. It is a lexical stand-in
// for the embedding search the hosted deployment used; the HTTP contract is
// identical.
package search

import (
	"sort"
	"strings"
	"sync"
)

// Exercise is one searchable record. All text fields participate in
// matching; everything is returned verbatim in results.
type Exercise struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	Equipment     string `json:"equipment"`
	TargetMuscles string `json:"target_muscles"`
	Description   string `json:"description"`
}

// Match is a ranked exercise with its similarity score.
type Match struct {
	Exercise
	Similarity float64 `json:"similarity"`
}

// ----------------------------------------------------------------------------
// Options

type Option func(*options)

type options struct {
	stopwords map[string]struct{}
}

func defaultOptions() options {
	return options{stopwords: nil}
}

func WithStopwords(words []string) Option {
	return func(o *options) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			o.stopwords = m
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	rec    Exercise
	tokens map[string]struct{}
	tLen   int
}

// Index holds the current generation of documents. Reads take the read lock;
// Swap replaces the whole generation under the write lock.
type Index struct {
	opts options

	mu   sync.RWMutex
	docs []doc
}

// NewIndex returns an empty index ready for Swap.
func NewIndex(opts ...Option) *Index {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Index{opts: o}
}

// Size returns the number of indexed records.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Swap atomically replaces the index contents with the given records and
// returns how many were indexed. Records whose text tokenizes to nothing are
// skipped.
func (i *Index) Swap(records []Exercise) int {
	docs := make([]doc, 0, len(records))
	for _, rec := range records {
		text := strings.Join([]string{
			rec.Name, rec.Description, rec.TargetMuscles, rec.Category, rec.Equipment,
		}, " ")
		toks := tokenize(normalizeWhitespace(text), i.opts.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{rec: rec, tokens: toks, tLen: len(toks)})
	}

	i.mu.Lock()
	i.docs = docs
	i.mu.Unlock()
	return len(docs)
}

// Search returns up to limit best-matching exercises by Jaccard similarity.
// Ties break on name for a stable order.
func (i *Index) Search(q string, limit int) []Match {
	if strings.TrimSpace(q) == "" {
		return nil
	}
	if limit <= 0 {
		limit = 20
	}
	qTokens := tokenize(q, i.opts.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	i.mu.RLock()
	defer i.mu.RUnlock()
	if len(i.docs) == 0 {
		return nil
	}

	buf := make([]Match, 0, min(limit*4, len(i.docs)))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + d.tLen - over)
		if union <= 0 {
			continue
		}
		score := float64(over) / union
		if score <= 0 {
			continue
		}
		buf = append(buf, Match{Exercise: d.rec, Similarity: score})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Similarity != buf[b].Similarity {
			return buf[a].Similarity > buf[b].Similarity
		}
		return buf[a].Name < buf[b].Name
	})

	if limit > len(buf) {
		limit = len(buf)
	}
	return buf[:limit]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
