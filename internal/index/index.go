// Package index implements the term-to-record inverted index. Terms live in
// a plain namespace and in the title:, author: and year: namespaces. Every
// posting list is strictly increasing and duplicate-free.
//
// An InvertedIndex is not safe for concurrent mutation. Once Build or
// Deserialize returns it is only read, and may be shared freely.
package index

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

// Namespace prefixes for field-qualified terms.
const (
	TitlePrefix  = "title:"
	AuthorPrefix = "author:"
	YearPrefix   = "year:"
)

// InvertedIndex maps terms to posting lists.
type InvertedIndex struct {
	postings map[string][]int
	records  *record.Store
}

func newInvertedIndex(sizeHint int) *InvertedIndex {
	return &InvertedIndex{postings: make(map[string][]int, sizeHint)}
}

// Build indexes every record of store, in id order. The store is attached
// for Resolve.
func Build(store *record.Store, n *normalizer.Normalizer) (*InvertedIndex, error) {
	if store == nil || store.Len() == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}
	ix := newInvertedIndex(store.Len() * 8)
	store.Each(func(id int, r *record.Record) {
		ix.addRecord(id, r, n)
	})
	ix.records = store
	return ix, nil
}

func (ix *InvertedIndex) addRecord(id int, r *record.Record, n *normalizer.Normalizer) {
	fields := []struct {
		prefix string
		text   string
	}{
		{TitlePrefix, r.Title},
		{AuthorPrefix, r.Authors},
		{YearPrefix, r.Year},
	}
	for _, f := range fields {
		for _, term := range n.NormalizeEntities(f.text) {
			ix.add(term, id)
			ix.add(f.prefix+term, id)
		}
	}
}

// add appends id unless it is already the tail. Records arrive in
// increasing id order, so this keeps every list sorted and unique even when
// a term shows up in more than one field of the same record.
func (ix *InvertedIndex) add(term string, id int) {
	list := ix.postings[term]
	if n := len(list); n > 0 && list[n-1] >= id {
		return
	}
	ix.postings[term] = append(list, id)
}

// Get returns the posting list for term, or an empty list. Callers must not
// modify the result.
func (ix *InvertedIndex) Get(term string) []int {
	if list, ok := ix.postings[term]; ok {
		return list
	}
	return []int{}
}

// Len returns the number of distinct terms across all namespaces.
func (ix *InvertedIndex) Len() int {
	return len(ix.postings)
}

// Postings returns the total number of posting entries.
func (ix *InvertedIndex) Postings() int {
	total := 0
	for _, list := range ix.postings {
		total += len(list)
	}
	return total
}

// Terms returns every term, sorted.
func (ix *InvertedIndex) Terms() []string {
	terms := make([]string, 0, len(ix.postings))
	for term := range ix.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// AttachRecords sets the store used by Resolve. A deserialized index has
// no records until one is attached.
func (ix *InvertedIndex) AttachRecords(store *record.Store) {
	ix.records = store
}

// Records returns the attached store, possibly nil.
func (ix *InvertedIndex) Records() *record.Store {
	return ix.records
}

// Resolve maps a record id back to its record.
func (ix *InvertedIndex) Resolve(id int) (*record.Record, error) {
	if ix.records == nil {
		return nil, fmt.Errorf("%w: %d (no records attached)", apperrors.ErrUnknownID, id)
	}
	return ix.records.Get(id)
}

// MaxID returns the largest id referenced by any posting list, or -1.
func (ix *InvertedIndex) MaxID() int {
	maxID := -1
	for _, list := range ix.postings {
		if n := len(list); n > 0 && list[n-1] > maxID {
			maxID = list[n-1]
		}
	}
	return maxID
}

// Equal reports whether both indexes hold the same terms with identical
// posting lists.
func (ix *InvertedIndex) Equal(other *InvertedIndex) bool {
	if len(ix.postings) != len(other.postings) {
		return false
	}
	for term, list := range ix.postings {
		o, ok := other.postings[term]
		if !ok || len(o) != len(list) {
			return false
		}
		for i := range list {
			if list[i] != o[i] {
				return false
			}
		}
	}
	return true
}

// Each calls fn for every term in sorted order.
func (ix *InvertedIndex) Each(fn func(term string, ids []int)) {
	for _, term := range ix.Terms() {
		fn(term, ix.postings[term])
	}
}

// FromPostings wraps an existing term map, checking that every list is
// strictly increasing and non-negative. The map is owned by the index
// afterwards.
func FromPostings(postings map[string][]int) (*InvertedIndex, error) {
	for term, list := range postings {
		if term == "" {
			return nil, fmt.Errorf("%w: empty term", apperrors.ErrMalformedIndex)
		}
		for i, id := range list {
			if id < 0 || (i > 0 && list[i-1] >= id) {
				return nil, fmt.Errorf("%w: posting list of %q is not strictly increasing", apperrors.ErrMalformedIndex, term)
			}
		}
	}
	return &InvertedIndex{postings: postings}, nil
}
