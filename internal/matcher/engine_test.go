package matcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record/recordtest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

func writeCorpus(t *testing.T, records string) string {
	t.Helper()
	base := filepath.Join(t.TempDir(), "dblp")
	require.NoError(t, os.WriteFile(base+".records", []byte(records), 0o644))
	return base
}

func fixtureEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := LoadCorpus(context.Background(), writeCorpus(t, recordtest.Records))
	require.NoError(t, err)
	return e
}

func TestLoadCorpusBuildsThenReuses(t *testing.T) {
	base := writeCorpus(t, recordtest.Records)
	paths := PathsFor(base)

	e, err := LoadCorpus(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, SourceBuilt, e.Stats().Source)
	assert.Equal(t, 4, e.Stats().Records)
	assert.Equal(t, 74, e.Stats().Terms)
	assert.FileExists(t, paths.Index)
	assert.FileExists(t, paths.Snapshot)

	again, err := LoadCorpus(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, SourceSnapshot, again.Stats().Source)
	assert.True(t, e.Index().Equal(again.Index()))

	require.NoError(t, os.Remove(paths.Snapshot))
	fromText, err := LoadCorpus(context.Background(), base, WithSnapshot(false))
	require.NoError(t, err)
	assert.Equal(t, SourceIndex, fromText.Stats().Source)
	assert.True(t, e.Index().Equal(fromText.Index()))
	assert.NoFileExists(t, paths.Snapshot)
}

func TestLoadCorpusMissingRecords(t *testing.T) {
	_, err := LoadCorpus(context.Background(), filepath.Join(t.TempDir(), "none"))
	assert.ErrorIs(t, err, apperrors.ErrCorpusNotFound)
}

func TestLoadCorpusEmptyRecords(t *testing.T) {
	_, err := LoadCorpus(context.Background(), writeCorpus(t, "\n"))
	assert.ErrorIs(t, err, apperrors.ErrEmptyCorpus)
}

func TestLoadCorpusMalformedIndexIsFatal(t *testing.T) {
	base := writeCorpus(t, recordtest.Records)
	require.NoError(t, os.WriteFile(base+".index", []byte("codd 0 3\n"), 0o644))
	_, err := LoadCorpus(context.Background(), base)
	assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
}

func TestLoadCorpusIndexOutOfRange(t *testing.T) {
	base := writeCorpus(t, recordtest.Records)
	require.NoError(t, os.WriteFile(base+".index", []byte("codd\t0 17\n"), 0o644))
	_, err := LoadCorpus(context.Background(), base)
	assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
}

func TestLoadCorpusCorruptSnapshotFallsBack(t *testing.T) {
	base := writeCorpus(t, recordtest.Records)
	_, err := LoadCorpus(context.Background(), base)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(base+".seg", []byte("garbage"), 0o644))

	e, err := LoadCorpus(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, SourceIndex, e.Stats().Source)
}

func TestLoadCorpusStaleSnapshotRebuilds(t *testing.T) {
	base := writeCorpus(t, recordtest.Records)
	_, err := LoadCorpus(context.Background(), base)
	require.NoError(t, err)

	lines := strings.SplitAfter(recordtest.Records, "\n")
	require.NoError(t, os.WriteFile(base+".records", []byte(strings.Join(lines[:3], "")), 0o644))
	require.NoError(t, os.Remove(base+".index"))

	e, err := LoadCorpus(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, SourceBuilt, e.Stats().Source)
	assert.Equal(t, 3, e.Stats().Records)
}

func TestLoadCorpusRebuildAndLoader(t *testing.T) {
	base := filepath.Join(t.TempDir(), "db")
	loader := func(context.Context) (*record.Store, error) {
		return recordtest.Store(t), nil
	}
	e, err := LoadCorpus(context.Background(), base, WithRecordLoader(loader), WithRebuild())
	require.NoError(t, err)
	assert.Equal(t, SourceBuilt, e.Stats().Source)
	assert.FileExists(t, base+".index")
}

func TestFindBestMatches(t *testing.T) {
	e := fixtureEngine(t)

	res := e.FindBestMatches(query.Query{"a": "E. F. Codd", "t": "relational network"})
	require.Len(t, res.Matches, 2)
	assert.Equal(t, ranker.Scored{ID: 3, Score: 5}, res.Matches[0])
	assert.Equal(t, ranker.Scored{ID: 0, Score: 4}, res.Matches[1])
	assert.Equal(t, 2, res.Candidates)
	assert.GreaterOrEqual(t, res.Timings.Total(), res.Timings.Candidates)

	r, err := e.Resolve(res.Matches[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "persons/CoddD74", r.Key)
}

func TestFindBestMatchesNoCandidates(t *testing.T) {
	e := fixtureEngine(t)
	for _, q := range []query.Query{
		{},
		{"t": "the of"},
		{"a": "Knuth"},
	} {
		res := e.FindBestMatches(q)
		assert.Empty(t, res.Matches, q.Key())
		assert.Zero(t, res.Candidates)
	}
}

func TestFindBestMatchesFreeText(t *testing.T) {
	e := fixtureEngine(t)
	res := e.FindBestMatches(query.Query{query.Free: "Markus Tresch. Principles of distributed object database languages. 1996"})
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, 2, res.Matches[0].ID)
	assert.Equal(t, 8.0, res.Matches[0].Score)
}

func TestCountMatches(t *testing.T) {
	e := fixtureEngine(t)
	tests := []struct {
		q    query.Query
		want int
	}{
		{query.Query{"na": "Codd"}, 2},
		{query.Query{"na": "E. F. Codd"}, 2},
		{query.Query{"na": "Codd Date"}, 1},
		{query.Query{"nt": "relational"}, 2},
		{query.Query{"nt": "Relational Network"}, 1},
		{query.Query{"nt": "the"}, 0},
		{query.Query{"na": ""}, 0},
		{query.Query{"na": "Knuth"}, 0},
		{query.Query{"na": "Tresch", "nt": "relational"}, 1},
		{query.Query{"a": "Codd"}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.CountMatches(tt.q), tt.q.Key())
	}
}

func TestResolve(t *testing.T) {
	e := fixtureEngine(t)
	_, err := e.Resolve(99)
	assert.ErrorIs(t, err, apperrors.ErrUnknownID)

	id, r, err := e.ResolveKey("persons/Hall74")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, "1974", r.Year)

	_, _, err = e.ResolveKey("nope")
	assert.ErrorIs(t, err, apperrors.ErrUnknownID)
}

func TestNewWithBonus(t *testing.T) {
	store := recordtest.Store(t)
	n := normalizer.Must()
	ix, err := index.Build(store, n)
	require.NoError(t, err)

	e, err := New(store, ix, WithNormalizer(n), WithBonus(func(r *record.Record) float64 {
		if r.Key == "persons/Codd71a" {
			return 10
		}
		return 0
	}))
	require.NoError(t, err)
	res := e.FindBestMatches(query.Query{"a": "Codd"})
	require.Len(t, res.Matches, 2)
	assert.Equal(t, 0, res.Matches[0].ID)
	assert.Equal(t, 11.0, res.Matches[0].Score)
}

func TestTermCountPenaltyOption(t *testing.T) {
	store := recordtest.Store(t)
	ix, err := index.Build(store, normalizer.Must())
	require.NoError(t, err)
	e, err := New(store, ix, WithTermCountPenalty(8, 0.1))
	require.NoError(t, err)

	res := e.FindBestMatches(query.Query{"a": "Codd"})
	require.Len(t, res.Matches, 2)
	// Codd71a has 9 terms, CoddD74 has 13.
	assert.Equal(t, 0, res.Matches[0].ID)
	assert.InDelta(t, 0.9, res.Matches[0].Score, 1e-9)
	assert.InDelta(t, 0.5, res.Matches[1].Score, 1e-9)
}

func TestConcurrentQueries(t *testing.T) {
	e := fixtureEngine(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res := e.FindBestMatches(query.Query{"a": "Codd", "t": "relational"})
				if len(res.Matches) != 2 {
					t.Errorf("got %d matches", len(res.Matches))
					return
				}
			}
		}()
	}
	wg.Wait()
}
