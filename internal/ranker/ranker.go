// Package ranker scores retrieval candidates and cuts the ranked list.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/retrieval"
)

// Result list bounds applied by SelectTop.
const (
	MinResults = 10
	MaxResults = 100
)

type Scored struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

// Resolver maps ids back to records.
type Resolver interface {
	Resolve(id int) (*record.Record, error)
}

// Bonus is an additive per-record score adjustment.
type Bonus func(r *record.Record) float64

// NoBonus is the default adjustment.
func NoBonus(*record.Record) float64 { return 0 }

// TermCountPenalty lowers the score of records whose title and author
// fields normalize to more than threshold terms, by weight per extra term.
// Long records otherwise collect matches by sheer size.
func TermCountPenalty(n *normalizer.Normalizer, threshold int, weight float64) Bonus {
	return func(r *record.Record) float64 {
		terms := len(n.NormalizeEntities(r.Title)) + len(n.NormalizeEntities(r.Authors))
		if terms <= threshold {
			return 0
		}
		return -weight * float64(terms-threshold)
	}
}

type Ranker struct {
	res   Resolver
	bonus Bonus
}

type Option func(*Ranker)

// WithBonus installs a score adjustment; nil keeps NoBonus.
func WithBonus(b Bonus) Option {
	return func(r *Ranker) {
		if b != nil {
			r.bonus = b
		}
	}
}

func New(res Resolver, opts ...Option) *Ranker {
	r := &Ranker{res: res, bonus: NoBonus}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluate scores each candidate as Count plus the bonus of its record.
// Candidates that do not resolve are dropped. The result is sorted by
// descending score, ties by ascending id.
func (r *Ranker) Evaluate(cands []retrieval.Candidate) []Scored {
	out := make([]Scored, 0, len(cands))
	for _, c := range cands {
		rec, err := r.res.Resolve(c.ID)
		if err != nil {
			continue
		}
		out = append(out, Scored{ID: c.ID, Score: float64(c.Count) + r.bonus(rec)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SelectTop walks a descending list and stops at the first score change
// after MinResults items, or after MaxResults items regardless of ties.
func SelectTop(scored []Scored) []Scored {
	out := make([]Scored, 0, min(len(scored), MaxResults))
	prev := math.Inf(-1)
	for _, s := range scored {
		if s.Score != prev && len(out) >= MinResults {
			break
		}
		out = append(out, s)
		prev = s.Score
		if len(out) == MaxResults {
			break
		}
	}
	return out
}
