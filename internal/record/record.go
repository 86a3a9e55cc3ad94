// Package record holds the bibliographic records the matcher indexes. A
// Store is populated once and never mutated; a record's id is its position
// in the Store.
package record

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

// AuthorSeparator joins author names inside Record.Authors.
const AuthorSeparator = "$"

// Record is one bibliographic entry.
type Record struct {
	Key     string `json:"key"`
	Authors string `json:"authors"`
	Year    string `json:"year"`
	Title   string `json:"title"`
	Journal string `json:"journal"`
	Pages   string `json:"pages"`
	URL     string `json:"url"`
	EE      string `json:"ee"`
}

// AuthorList splits Authors on AuthorSeparator, dropping blanks.
func (r *Record) AuthorList() []string {
	if r.Authors == "" {
		return nil
	}
	parts := strings.Split(r.Authors, AuthorSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Store is an ordered, read-only collection of records.
type Store struct {
	records []Record
	byKey   map[string]int
}

// NewStore takes ownership of recs. Keys must be unique.
func NewStore(recs []Record) (*Store, error) {
	byKey := make(map[string]int, len(recs))
	for i := range recs {
		if prev, dup := byKey[recs[i].Key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q at ids %d and %d",
				apperrors.ErrMalformedRecord, recs[i].Key, prev, i)
		}
		byKey[recs[i].Key] = i
	}
	return &Store{records: recs, byKey: byKey}, nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Get resolves an id. Ids outside [0, Len) report ErrUnknownID.
func (s *Store) Get(id int) (*Record, error) {
	if id < 0 || id >= len(s.records) {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrUnknownID, id)
	}
	return &s.records[id], nil
}

// Resolve is Get under the name the ranker expects.
func (s *Store) Resolve(id int) (*Record, error) {
	return s.Get(id)
}

// ByKey returns the id of the record with the given key.
func (s *Store) ByKey(key string) (int, bool) {
	id, ok := s.byKey[key]
	return id, ok
}

// Each calls fn for every record in id order.
func (s *Store) Each(fn func(id int, r *Record)) {
	for i := range s.records {
		fn(i, &s.records[i])
	}
}
