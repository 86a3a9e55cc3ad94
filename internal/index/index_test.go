package index

import (
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record/recordtest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

func buildFixture(t *testing.T) *InvertedIndex {
	t.Helper()
	ix, err := Build(recordtest.Store(t), normalizer.Must())
	require.NoError(t, err)
	return ix
}

func TestBuildFixture(t *testing.T) {
	ix := buildFixture(t)

	// 37 plain terms, 23 title:, 11 author:, 3 year:.
	assert.Equal(t, 74, ix.Len())

	tests := []struct {
		term string
		want []int
	}{
		{"codd", []int{0, 3}},
		{"author:codd", []int{0, 3}},
		{"e", []int{0, 3}},
		{"relational", []int{0, 3}},
		{"title:relational", []int{0, 3}},
		{"1974", []int{1, 3}},
		{"year:1974", []int{1, 3}},
		{"year:1996", []int{2}},
		{"author:date", []int{3}},
		{"data", []int{0}},
		{"database", []int{2}},
		{"title:database", []int{2}},
		{"author:database", []int{}},
		{"non", []int{3}},
		{"programmers", []int{3}},
		{"the", []int{}},
		{"a", []int{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ix.Get(tt.term), tt.term)
	}
}

func TestBuildPostingsSortedAndUnique(t *testing.T) {
	ix, err := Build(recordtest.Generated(t, 500), normalizer.Must())
	require.NoError(t, err)
	ix.Each(func(term string, ids []int) {
		for i := 1; i < len(ids); i++ {
			require.Less(t, ids[i-1], ids[i], term)
		}
	})
}

func TestBuildSameTermInTitleAndAuthor(t *testing.T) {
	store, err := record.NewStore([]record.Record{
		{Key: "k0", Authors: "E. F. Codd", Year: "1990", Title: "Codd on Codd"},
		{Key: "k1", Authors: "Codd", Year: "1990", Title: "Other"},
	})
	require.NoError(t, err)
	ix, err := Build(store, normalizer.Must())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, ix.Get("codd"))
	assert.Equal(t, []int{0}, ix.Get("title:codd"))
	assert.Equal(t, []int{0, 1}, ix.Get("author:codd"))
	assert.Equal(t, []int{0, 1}, ix.Get("1990"))
}

func TestBuildDecodesEntities(t *testing.T) {
	store, err := record.NewStore([]record.Record{
		{Key: "k0", Authors: "Kurt G&ouml;del", Title: "&Uuml;ber formal unentscheidbare S&auml;tze"},
	})
	require.NoError(t, err)
	ix, err := Build(store, normalizer.Must())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ix.Get("author:godel"))
	assert.Equal(t, []int{0}, ix.Get("title:uber"))
	assert.Equal(t, []int{0}, ix.Get("satze"))
}

func TestBuildEmpty(t *testing.T) {
	empty, err := record.NewStore(nil)
	require.NoError(t, err)
	_, err = Build(empty, normalizer.Must())
	assert.ErrorIs(t, err, apperrors.ErrEmptyCorpus)

	_, err = Build(nil, normalizer.Must())
	assert.ErrorIs(t, err, apperrors.ErrEmptyCorpus)
}

func TestGetMissingTermIsEmpty(t *testing.T) {
	ix := buildFixture(t)
	got := ix.Get("nonexistentterm")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestResolve(t *testing.T) {
	ix := buildFixture(t)
	r, err := ix.Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, "persons/Tresch96", r.Key)

	_, err = ix.Resolve(4)
	assert.ErrorIs(t, err, apperrors.ErrUnknownID)
	_, err = ix.Resolve(-1)
	assert.ErrorIs(t, err, apperrors.ErrUnknownID)
}

func TestSerializeRoundTrip(t *testing.T) {
	ix := buildFixture(t)
	var buf bytes.Buffer
	require.NoError(t, ix.Serialize(&buf))
	assert.Contains(t, buf.String(), "codd\t0 3\n")
	assert.Equal(t, ix.Len(), strings.Count(buf.String(), "\n"))

	back, err := Deserialize(&buf)
	require.NoError(t, err)
	assert.True(t, ix.Equal(back))
	assert.Equal(t, ix.Terms(), back.Terms())

	_, err = back.Resolve(0)
	assert.ErrorIs(t, err, apperrors.ErrUnknownID)
	back.AttachRecords(ix.Records())
	r, err := back.Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, "persons/Codd71a", r.Key)
}

func TestSerializeRoundTripGenerated(t *testing.T) {
	ix, err := Build(recordtest.Generated(t, 2000), normalizer.Must())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, ix.Serialize(&buf))
	back, err := Deserialize(&buf)
	require.NoError(t, err)
	assert.True(t, ix.Equal(back))
	assert.Equal(t, ix.Postings(), back.Postings())
	assert.Equal(t, 1999, back.MaxID())
}

func TestDeserializeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		line   int
		reason string
	}{
		{"missing tab", "codd\t0 3\ncodd 0 3\n", 2, "missing tab"},
		{"non-numeric id", "codd\t0 x3\n", 1, "non-numeric"},
		{"empty term", "\t1 2\n", 1, "empty term"},
		{"negative id", "codd\t-1 2\n", 1, "negative"},
		{"unsorted ids", "codd\t3 1\n", 1, "strictly increasing"},
		{"repeated id", "codd\t1 1\n", 1, "strictly increasing"},
		{"duplicate term", "codd\t1\ncodd\t2\n", 2, "duplicate term"},
		{"tab between ids", "codd\t1\t2\n", 1, "unexpected tab"},
		{"empty posting list", "date\t0\ncodd\t\n", 2, "empty posting list"},
		{"stray spaces", "codd\t 1  2 \n", 1, "empty id field"},
		{"double space", "codd\t1  2\n", 1, "empty id field"},
		{"trailing space", "codd\t0 3 \n", 1, "empty id field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
			var ferr *FormatError
			require.True(t, errors.As(err, &ferr))
			assert.Equal(t, tt.line, ferr.Line)
			assert.Contains(t, ferr.Reason, tt.reason)
		})
	}
}

func TestDeserializeSingleSpaceSeparated(t *testing.T) {
	ix, err := Deserialize(strings.NewReader("codd\t0 3\ntitle:model\t0\n"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, ix.Get("codd"))
	assert.Equal(t, []int{0}, ix.Get("title:model"))
}

func TestWriteReadFile(t *testing.T) {
	ix := buildFixture(t)
	path := filepath.Join(t.TempDir(), "sub", "dblp.index")
	require.NoError(t, ix.WriteFile(path))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.True(t, ix.Equal(back))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.index"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFromPostings(t *testing.T) {
	ix, err := FromPostings(map[string][]int{"a": {1, 2}, "title:b": {0}})
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())

	_, err = FromPostings(map[string][]int{"a": {2, 1}})
	assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
}

func BenchmarkBuild(b *testing.B) {
	store := recordtest.Generated(b, 10000)
	n := normalizer.Must()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(store, n); err != nil {
			b.Fatal(err)
		}
	}
}
