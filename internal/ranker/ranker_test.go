package ranker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record/recordtest"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/retrieval"
)

func TestEvaluate(t *testing.T) {
	r := New(recordtest.Store(t))
	got := r.Evaluate([]retrieval.Candidate{
		{ID: 3, Count: 2}, {ID: 9, Count: 5}, {ID: 0, Count: 2}, {ID: 1, Count: 4},
	})
	// id 9 does not resolve and is dropped.
	assert.Equal(t, []Scored{{1, 4}, {0, 2}, {3, 2}}, got)
}

func TestEvaluateBonus(t *testing.T) {
	store := recordtest.Store(t)
	bonus := func(rec *record.Record) float64 {
		if rec.Year == "1996" {
			return 0.5
		}
		return 0
	}
	r := New(store, WithBonus(bonus))
	got := r.Evaluate([]retrieval.Candidate{{ID: 0, Count: 1}, {ID: 2, Count: 1}})
	assert.Equal(t, []Scored{{2, 1.5}, {0, 1}}, got)

	assert.NotNil(t, New(store, WithBonus(nil)).bonus)
}

func TestTermCountPenalty(t *testing.T) {
	n := normalizer.Must()
	store := recordtest.Store(t)
	penalty := TermCountPenalty(n, 8, 0.1)

	short, err := store.Get(2)
	require.NoError(t, err)
	assert.Zero(t, penalty(short))

	// CoddD74 has 7 title terms and 6 author terms.
	long, err := store.Get(3)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, penalty(long), 1e-9)
}

func scoredList(scores ...float64) []Scored {
	out := make([]Scored, len(scores))
	for i, s := range scores {
		out[i] = Scored{ID: i, Score: s}
	}
	return out
}

func TestSelectTop(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   int
	}{
		{"empty", nil, 0},
		{"fewer than ten", []float64{5, 4, 3}, 3},
		{"cut at score change after ten", []float64{12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, 10},
		{"tie at tenth extends", []float64{9, 9, 8, 8, 7, 7, 6, 6, 5, 5, 5, 5, 4}, 12},
		{"all tied", repeat(3, 40), 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectTop(scoredList(tt.scores...))
			assert.Len(t, got, tt.want)
		})
	}
}

func TestSelectTopHardCap(t *testing.T) {
	got := SelectTop(scoredList(repeat(1, 250)...))
	assert.Len(t, got, MaxResults)
	assert.Equal(t, 99, got[len(got)-1].ID)
}

// 25 items: seven distinct scores, then blocks of five ties from rank 8.
func TestSelectTopTiedBlocks(t *testing.T) {
	var scores []float64
	for i := 0; i < 7; i++ {
		scores = append(scores, float64(100-i))
	}
	for block := 0; len(scores) < 25; block++ {
		for j := 0; j < 5 && len(scores) < 25; j++ {
			scores = append(scores, float64(50-block))
		}
	}
	require.Len(t, scores, 25)

	got := SelectTop(scoredList(scores...))
	assert.GreaterOrEqual(t, len(got), MinResults)
	assert.LessOrEqual(t, len(got), MaxResults)
	// Ranks 8-12 (index 7-11) share a score; the block straddling the tenth
	// position is kept whole.
	assert.Len(t, got, 12)
	last := got[len(got)-1].Score
	if len(got) < len(scores) {
		assert.NotEqual(t, last, scores[len(got)], "tied block was cut")
	}
}

func TestSelectTopNegativeSentinel(t *testing.T) {
	// A first score equal to the sentinel still starts the list.
	got := SelectTop(scoredList(-1, -1, -2))
	assert.Len(t, got, 3)

	// Penalized scores below zero keep the tied-block rule.
	got = SelectTop(scoredList(append(repeat(-1, 11), -2)...))
	assert.Len(t, got, 11)
	got = SelectTop(scoredList(append(repeat(-3, 10), -4, -4)...))
	assert.Len(t, got, 10)
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func ExampleSelectTop() {
	got := SelectTop(scoredList(3, 3, 2))
	fmt.Println(len(got), got[0].Score)
	// Output: 3 3
}
