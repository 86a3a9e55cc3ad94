// Package similarity provides string similarity scores usable as
// secondary ranking signals: local alignment, edit distance and word
// covering.
package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Local alignment scores.
const (
	matchScore   = 2
	mismatchCost = 1
	gapCost      = 1
)

// LocalAlignment returns the best Smith-Waterman local alignment score of
// a against b, scaled by the best possible score 2*len(a) into [0, 1].
// It compares runes and returns 0 when either string is empty.
func LocalAlignment(a, b string) float64 {
	x, y := []rune(a), []rune(b)
	if len(x) == 0 || len(y) == 0 {
		return 0
	}
	prev := make([]int, len(y)+1)
	curr := make([]int, len(y)+1)
	best := 0
	for i := 1; i <= len(x); i++ {
		curr[0] = 0
		for j := 1; j <= len(y); j++ {
			diag := prev[j-1] - mismatchCost
			if x[i-1] == y[j-1] {
				diag = prev[j-1] + matchScore
			}
			cell := max(0, diag, prev[j]-gapCost, curr[j-1]-gapCost)
			curr[j] = cell
			if cell > best {
				best = cell
			}
		}
		prev, curr = curr, prev
	}
	return float64(best) / float64(matchScore*len(x))
}

// EditDistance returns the Levenshtein distance between a and b over runes.
func EditDistance(a, b string) float64 {
	x, y := []rune(a), []rune(b)
	d := make([][]int, len(x)+1)
	for i := range d {
		d[i] = make([]int, len(y)+1)
		d[i][0] = i
	}
	for j := 0; j <= len(y); j++ {
		d[0][j] = j
	}
	for i := 1; i <= len(x); i++ {
		for j := 1; j <= len(y); j++ {
			sub := 1
			if x[i-1] == y[j-1] {
				sub = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+sub)
		}
	}
	return float64(d[len(x)][len(y)])
}

// WordCovering reports how well text covers words. A word counts when it
// occurs in text bounded on both sides by a non-alphanumeric rune or the
// string edge. The score is min(2*matches, len(words)) / len(words); end is
// the largest byte offset just past a matched occurrence, 0 if none.
func WordCovering(text string, words []string) (score float64, end int) {
	if len(words) == 0 {
		return 0, 0
	}
	matches := 0
	for _, w := range words {
		if w == "" {
			continue
		}
		if e, ok := findWord(text, w); ok {
			matches++
			end = max(end, e)
		}
	}
	return float64(min(2*matches, len(words))) / float64(len(words)), end
}

// findWord returns the end offset of the first whole-word occurrence of w.
func findWord(text, w string) (int, bool) {
	from := 0
	for from <= len(text)-len(w) {
		i := strings.Index(text[from:], w)
		if i < 0 {
			return 0, false
		}
		start := from + i
		stop := start + len(w)
		if boundaryBefore(text, start) && boundaryAfter(text, stop) {
			return stop, true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return 0, false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isAlnum(r)
}

func boundaryAfter(text string, i int) bool {
	if i == len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isAlnum(r)
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
