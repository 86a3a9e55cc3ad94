package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record/recordtest"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/metrics"
)

func newEngine(t *testing.T) *matcher.Engine {
	t.Helper()
	store := recordtest.Store(t)
	n := normalizer.Must()
	ix, err := index.Build(store, n)
	require.NoError(t, err)
	e, err := matcher.New(store, ix, matcher.WithNormalizer(n))
	require.NoError(t, err)
	return e
}

func newMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func get(t *testing.T, mux http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestMatch(t *testing.T) {
	mux := newMux(New(newEngine(t)))

	rec := get(t, mux, "/api/v1/match?a=E.+F.+Codd&t=relational+network")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 3, resp.Results[0].ID)
	assert.Equal(t, 5.0, resp.Results[0].Score)
	assert.Equal(t, "persons/CoddD74", resp.Results[0].Record.Key)
	assert.Equal(t, 0, resp.Results[1].ID)
	assert.Equal(t, 2, resp.Candidates)
	assert.False(t, resp.CacheHit)
}

func TestMatchNoResults(t *testing.T) {
	mux := newMux(New(newEngine(t)))
	rec := get(t, mux, "/api/v1/match?a=Knuth")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestMatchRequiresParameters(t *testing.T) {
	mux := newMux(New(newEngine(t)))
	rec := get(t, mux, "/api/v1/match")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one query parameter")
}

func TestCount(t *testing.T) {
	mux := newMux(New(newEngine(t)))
	tests := []struct {
		target string
		want   int
	}{
		{"/api/v1/match?na=Codd", 2},
		{"/api/v1/match?nt=relational+network", 1},
		{"/api/v1/match?na=Tresch&nt=relational", 1},
	}
	for _, tt := range tests {
		rec := get(t, mux, tt.target)
		require.Equal(t, http.StatusOK, rec.Code, tt.target)
		var resp CountResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, tt.want, resp.Count, tt.target)
	}
}

func TestRecord(t *testing.T) {
	mux := newMux(New(newEngine(t)))

	rec := get(t, mux, "/api/v1/records/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got MatchedRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "persons/Hall74", got.Record.Key)

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/v1/records/99").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/v1/records/abc").Code)
}

func TestRecordByKey(t *testing.T) {
	mux := newMux(New(newEngine(t)))

	rec := get(t, mux, "/api/v1/records?key=persons/Tresch96")
	require.Equal(t, http.StatusOK, rec.Code)
	var got MatchedRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 2, got.ID)

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/api/v1/records?key=nope").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/v1/records").Code)
}

func TestStats(t *testing.T) {
	mux := newMux(New(newEngine(t)))
	rec := get(t, mux, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats matcher.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 4, stats.Records)
	assert.Equal(t, 74, stats.Terms)
}

func TestMatchUsesCache(t *testing.T) {
	matches, err := cache.New[matcher.MatchResult]("match", 16, nil, time.Minute)
	require.NoError(t, err)
	counts, err := cache.New[int]("count", 16, nil, time.Minute)
	require.NoError(t, err)
	m := metrics.New()
	mux := newMux(New(newEngine(t), WithCaches(Caches{Matches: matches, Counts: counts}), WithMetrics(m)))

	for i, wantHit := range []bool{false, true} {
		rec := get(t, mux, "/api/v1/match?t=relational")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp MatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, wantHit, resp.CacheHit, "request %d", i)
		assert.Len(t, resp.Results, 2)
	}

	rec := get(t, mux, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 1.0, stats["hits"])

	inv := httptest.NewRecorder()
	mux.ServeHTTP(inv, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, inv.Code)

	rec = get(t, mux, "/api/v1/match?t=relational")
	var resp MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.CacheHit)
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	mux := newMux(New(newEngine(t)))
	rec := get(t, mux, "/api/v1/cache/stats")
	assert.Contains(t, rec.Body.String(), "disabled")

	inv := httptest.NewRecorder()
	mux.ServeHTTP(inv, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, inv.Code)
}

func TestMatchTracksEvents(t *testing.T) {
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(nil, agg, 16, 1, time.Hour)
	collector.Start(context.Background())
	mux := newMux(New(newEngine(t), WithCollector(collector)))

	get(t, mux, "/api/v1/match?a=Codd")
	get(t, mux, "/api/v1/match?na=Codd")
	get(t, mux, "/api/v1/match?a=Knuth")
	collector.Close()

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.CountQueries)
	assert.Equal(t, int64(1), stats.EmptyResults)
}
