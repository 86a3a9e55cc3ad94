// Package query models a decoded match request: an unordered mapping from
// field code to raw text.
package query

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

// Field codes understood by the matcher. Any other code is searched in the
// plain namespace.
const (
	Author      = "a"
	Title       = "t"
	CountAuthor = "na"
	CountTitle  = "nt"

	// Free is the code given to a raw citation string with no field codes.
	Free = "q"
)

// Query maps field codes to raw text.
type Query map[string]string

// IsCount reports whether the query only asks for a hit count.
func (q Query) IsCount() bool {
	_, na := q[CountAuthor]
	_, nt := q[CountTitle]
	return na || nt
}

// Codes returns the field codes, sorted.
func (q Query) Codes() []string {
	codes := make([]string, 0, len(q))
	for code := range q {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Key renders the query canonically, so equal queries share cache entries.
func (q Query) Key() string {
	v := make(url.Values, len(q))
	for code, text := range q {
		v.Set(code, text)
	}
	return v.Encode()
}

// FromValues keeps the first value of every non-empty parameter.
func FromValues(v url.Values) Query {
	q := make(Query, len(v))
	for code, vals := range v {
		if code == "" || len(vals) == 0 {
			continue
		}
		q[code] = vals[0]
	}
	return q
}

// Parse decodes "a=Codd&t=relational+model". The string is structured only
// when every '&'-separated segment opens with a lowercase field code and '='
// and the whole decodes as a URL query. Anything else, including citations
// such as "Codd & Date: x=y", is taken as free text under Free.
func Parse(raw string) (Query, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "empty query")
	}
	if !structured(raw) {
		return Query{Free: raw}, nil
	}
	v, err := url.ParseQuery(raw)
	if err != nil {
		return Query{Free: raw}, nil
	}
	return FromValues(v), nil
}

const maxCodeLen = 8

func structured(raw string) bool {
	for _, seg := range strings.Split(raw, "&") {
		code, _, ok := strings.Cut(seg, "=")
		if !ok || code == "" || len(code) > maxCodeLen {
			return false
		}
		for _, c := range code {
			if c < 'a' || c > 'z' {
				return false
			}
		}
	}
	return true
}
