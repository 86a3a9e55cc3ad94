// Package matcher is the record-matching engine: it owns the record store,
// the inverted index and the query pipeline (candidate retrieval, scoring
// and top-result selection).
//
// An Engine is immutable after construction and safe for concurrent
// queries.
package matcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

// Timings are the wall-clock durations of the three query stages.
type Timings struct {
	Candidates time.Duration `json:"candidates"`
	Evaluate   time.Duration `json:"evaluate"`
	Select     time.Duration `json:"select"`
}

// Total is the sum of all stages.
func (t Timings) Total() time.Duration {
	return t.Candidates + t.Evaluate + t.Select
}

// MatchResult is the ranked answer to one query.
type MatchResult struct {
	Matches    []ranker.Scored `json:"matches"`
	Candidates int             `json:"candidates"`
	Timings    Timings         `json:"timings"`
}

// Stats summarizes the loaded corpus.
type Stats struct {
	Records  int    `json:"records"`
	Terms    int    `json:"terms"`
	Postings int    `json:"postings"`
	Source   string `json:"source"`
}

type Engine struct {
	norm      *normalizer.Normalizer
	records   *record.Store
	index     *index.InvertedIndex
	retriever *retrieval.Retriever
	ranker    *ranker.Ranker
	source    string
	logger    *slog.Logger
}

// New assembles an engine over an already loaded store and index. Every id
// in the index must resolve in the store.
func New(store *record.Store, ix *index.InvertedIndex, opts ...Option) (*Engine, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return newEngine(store, ix, o, "memory")
}

func newEngine(store *record.Store, ix *index.InvertedIndex, o *options, source string) (*Engine, error) {
	if store == nil || store.Len() == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}
	if maxID := ix.MaxID(); maxID >= store.Len() {
		return nil, fmt.Errorf("%w: index references id %d but corpus has %d records",
			apperrors.ErrMalformedIndex, maxID, store.Len())
	}
	ix.AttachRecords(store)
	bonus := o.bonus
	if bonus == nil && o.penaltyThreshold > 0 {
		bonus = ranker.TermCountPenalty(o.norm, o.penaltyThreshold, o.penaltyWeight)
	}
	return &Engine{
		norm:      o.norm,
		records:   store,
		index:     ix,
		retriever: retrieval.New(ix, o.norm),
		ranker:    ranker.New(ix, ranker.WithBonus(bonus)),
		source:    source,
		logger:    o.logger,
	}, nil
}

// FindBestMatches runs retrieval, scoring and top-result selection for q.
func (e *Engine) FindBestMatches(q query.Query) MatchResult {
	start := time.Now()
	cands := e.retriever.Candidates(q)
	afterCandidates := time.Now()
	scored := e.ranker.Evaluate(cands)
	afterEvaluate := time.Now()
	top := ranker.SelectTop(scored)
	end := time.Now()

	res := MatchResult{
		Matches:    top,
		Candidates: len(cands),
		Timings: Timings{
			Candidates: afterCandidates.Sub(start),
			Evaluate:   afterEvaluate.Sub(afterCandidates),
			Select:     end.Sub(afterEvaluate),
		},
	}
	e.logger.Debug("query matched",
		"query", q.Key(),
		"candidates", res.Candidates,
		"results", len(top),
		"duration_ms", float64(res.Timings.Total().Microseconds())/1000,
	)
	return res
}

// CountMatches answers count-only queries: na counts records whose authors
// contain every normalized term of the text, nt does the same for titles.
// na wins when both are present. Empty text and other queries count 0.
func (e *Engine) CountMatches(q query.Query) int {
	prefix, text := "", ""
	if v, ok := q[query.CountAuthor]; ok {
		prefix, text = index.AuthorPrefix, v
	} else if v, ok := q[query.CountTitle]; ok {
		prefix, text = index.TitlePrefix, v
	} else {
		return 0
	}
	terms := e.norm.NormalizeEntities(text)
	if len(terms) == 0 {
		return 0
	}
	lists := make([][]int, len(terms))
	for i, term := range terms {
		lists[i] = e.index.Get(prefix + term)
	}
	return retrieval.CountAll(lists)
}

// Resolve returns the record with the given id.
func (e *Engine) Resolve(id int) (*record.Record, error) {
	return e.index.Resolve(id)
}

// ResolveKey returns the id and record with the given key.
func (e *Engine) ResolveKey(key string) (int, *record.Record, error) {
	id, ok := e.records.ByKey(key)
	if !ok {
		return 0, nil, fmt.Errorf("%w: key %q", apperrors.ErrUnknownID, key)
	}
	r, err := e.records.Get(id)
	return id, r, err
}

// Normalizer exposes the engine's normalizer for callers that score
// matches with the similarity functions.
func (e *Engine) Normalizer() *normalizer.Normalizer {
	return e.norm
}

// Index exposes the read-only index.
func (e *Engine) Index() *index.InvertedIndex {
	return e.index
}

func (e *Engine) Stats() Stats {
	return Stats{
		Records:  e.records.Len(),
		Terms:    e.index.Len(),
		Postings: e.index.Postings(),
		Source:   e.source,
	}
}
