package retrieval

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/query"
)

// PostingSource is the read side of an inverted index.
type PostingSource interface {
	Get(term string) []int
}

// Facets holds the posting lists of one query, grouped by field code.
type Facets struct {
	Author [][]int
	Title  [][]int
	Other  [][]int
}

// Retriever produces candidates for queries against a read-only index.
type Retriever struct {
	src  PostingSource
	norm *normalizer.Normalizer
}

func New(src PostingSource, norm *normalizer.Normalizer) *Retriever {
	return &Retriever{src: src, norm: norm}
}

// Facets normalizes every parameter and fetches its posting lists. Author
// terms are looked up under author:, title terms under title:, terms of
// any other code in the plain namespace. Count-only codes are skipped.
func (r *Retriever) Facets(q query.Query) Facets {
	var f Facets
	for _, code := range q.Codes() {
		if code == query.CountAuthor || code == query.CountTitle {
			continue
		}
		for _, term := range r.norm.NormalizeEntities(q[code]) {
			switch code {
			case query.Author:
				f.Author = append(f.Author, r.src.Get(index.AuthorPrefix+term))
			case query.Title:
				f.Title = append(f.Title, r.src.Get(index.TitlePrefix+term))
			default:
				f.Other = append(f.Other, r.src.Get(term))
			}
		}
	}
	return f
}

// Combine merges each facet that has at least one term and intersects the
// merged facets. A facet whose terms are all absent from the index still
// takes part, so it empties the result.
func Combine(f Facets) []Candidate {
	var merged [][]Candidate
	for _, group := range [][][]int{f.Author, f.Title, f.Other} {
		if len(group) > 0 {
			merged = append(merged, Merge(group))
		}
	}
	switch len(merged) {
	case 3:
		return Intersect3(merged[0], merged[1], merged[2])
	case 2:
		return Intersect2(merged[0], merged[1])
	case 1:
		return merged[0]
	default:
		return []Candidate{}
	}
}

// SortByCount orders candidates by descending count, ties by ascending id.
func SortByCount(c []Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Count != c[j].Count {
			return c[i].Count > c[j].Count
		}
		return c[i].ID < c[j].ID
	})
}

// Candidates runs the full retrieval for q: facets, combination and the
// descending-count sort.
func (r *Retriever) Candidates(q query.Query) []Candidate {
	cands := Combine(r.Facets(q))
	SortByCount(cands)
	return cands
}

// CountAll returns how many ids appear in every one of lists.
func CountAll(lists [][]int) int {
	if len(lists) == 0 {
		return 0
	}
	if len(lists) == 1 {
		return len(lists[0])
	}
	n := 0
	for _, c := range Merge(lists) {
		if c.Count == len(lists) {
			n++
		}
	}
	return n
}
