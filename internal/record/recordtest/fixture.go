// Package recordtest provides the small DBLP fixture shared by tests.
package recordtest

import (
	"strconv"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
)

// Records is a four-record DBLP excerpt in records-file format.
const Records = "persons/Codd71a\tE. F. Codd\t1971\tFurther Normalization of the Data Base Relational Model.\t\t\t\t\n" +
	"persons/Hall74\tPatrick A. V. Hall\t1974\tCommon Subexpression Identification in General Algebraic Systems.\t\t\t\t\n" +
	"persons/Tresch96\tMarkus Tresch\t1996\tPrinciples of Distributed Object Database Languages.\t\t\t\t\n" +
	"persons/CoddD74\tE. F. Codd$C. J. Date\t1974\tInteractive Support for Non-Programmers: The Relational and Network Approaches.\t\t\t\t\n"

// Store parses Records, failing the test on error.
func Store(tb testing.TB) *record.Store {
	tb.Helper()
	s, err := record.Read(strings.NewReader(Records), "fixture")
	if err != nil {
		tb.Fatalf("parsing fixture: %v", err)
	}
	return s
}

// Generated returns n synthetic records whose titles and authors overlap so
// that posting lists have realistic lengths.
func Generated(tb testing.TB, n int) *record.Store {
	tb.Helper()
	words := []string{"query", "index", "relational", "database", "distributed",
		"systems", "logic", "network", "graph", "learning", "parallel", "model"}
	names := []string{"Codd", "Date", "Gray", "Stonebraker", "Ullman", "Widom", "Bernstein"}
	recs := make([]record.Record, n)
	for i := range recs {
		title := words[i%len(words)] + " " + words[(i*7+3)%len(words)] + " " + words[(i*5+1)%len(words)]
		authors := names[i%len(names)] + record.AuthorSeparator + names[(i*3+2)%len(names)]
		recs[i] = record.Record{
			Key:     "gen/" + strconv.Itoa(i),
			Authors: authors,
			Year:    strconv.Itoa(1970 + i%50),
			Title:   title,
		}
	}
	s, err := record.NewStore(recs)
	if err != nil {
		tb.Fatalf("building generated store: %v", err)
	}
	return s
}
