package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalAlignment(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"ABCD", "ABCD", 1},
		{"ABCD", "EFGH", 0},
		{"", "AGCACACA", 0},
		{"AGCACACA", "", 0},
		{"ABCD", "xxABCDyy", 1},
		{"ABCD", "AB", 0.5},
		{"ABXD", "ABCD", 5.0 / 8.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, LocalAlignment(tt.a, tt.b), 1e-9, "%q vs %q", tt.a, tt.b)
	}
}

func TestLocalAlignmentRange(t *testing.T) {
	pairs := [][2]string{
		{"relational model", "a relational model of data"},
		{"Gödel", "Godel"},
		{"x", "xxxxxxxx"},
	}
	for _, p := range pairs {
		s := LocalAlignment(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 0},
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"flaw", "lawn", 2},
		{"Gödel", "Godel", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EditDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestEditDistanceIdentityAndSymmetry(t *testing.T) {
	words := []string{"", "a", "codd", "relational", "Normalization", "data base", "Tresch"}
	for _, a := range words {
		assert.Zero(t, EditDistance(a, a), a)
		for _, b := range words {
			assert.Equal(t, EditDistance(a, b), EditDistance(b, a), "%q %q", a, b)
		}
	}
}

func TestWordCovering(t *testing.T) {
	text := "E. F. Codd, C. J. Date: Interactive support for non-programmers"

	score, end := WordCovering(text, []string{"Codd", "Date"})
	assert.Equal(t, 1.0, score)
	assert.Equal(t, len("E. F. Codd, C. J. Date"), end)

	// One match out of four is doubled to 0.5.
	score, end = WordCovering(text, []string{"Codd", "Stonebraker", "Gray", "Ullman"})
	assert.Equal(t, 0.5, score)
	assert.Equal(t, len("E. F. Codd"), end)

	// "Dat" occurs only inside "Date".
	score, end = WordCovering(text, []string{"Dat"})
	assert.Zero(t, score)
	assert.Zero(t, end)

	// The first occurrence is inside a word, the second is whole.
	score, _ = WordCovering("programmers program", []string{"program"})
	assert.Equal(t, 1.0, score)

	score, end = WordCovering(text, nil)
	assert.Zero(t, score)
	assert.Zero(t, end)
}
