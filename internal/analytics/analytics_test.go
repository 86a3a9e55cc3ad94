package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]kafka.Event, len(events))
	copy(cp, events)
	p.batches = append(p.batches, cp)
	return nil
}

func (p *recordingPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(MatchEvent{Type: EventMatch, Query: "a=codd", Results: 2, Candidates: 4, LatencyUs: 1000})
	agg.Record(MatchEvent{Type: EventMatch, Query: "a=codd", Results: 2, Candidates: 2, CacheHit: true, LatencyUs: 3000})
	agg.Record(MatchEvent{Type: EventMatch, Query: "t=zzz", Results: 0, LatencyUs: 2000})
	agg.Record(MatchEvent{Type: EventCount, Query: "na=date", Results: 1, LatencyUs: 500})

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalQueries)
	assert.Equal(t, int64(3), stats.MatchQueries)
	assert.Equal(t, int64(1), stats.CountQueries)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.EmptyResults)
	assert.InDelta(t, 2.0, stats.AvgCandidates, 1e-9)
	assert.InDelta(t, 1.625, stats.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 2.0, stats.P50LatencyMs, 1e-9)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "a=codd", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "t=zzz", Count: 1}}, stats.EmptyQueries)
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+50; i++ {
		agg.Record(MatchEvent{Query: "q", LatencyUs: int64(i)})
	}
	agg.mu.RLock()
	defer agg.mu.RUnlock()
	assert.Len(t, agg.latencies, maxLatencySamples)
	assert.Equal(t, 50, agg.next)
}

func TestTopNTieBreak(t *testing.T) {
	got := topN(map[string]int64{"b": 1, "a": 1, "c": 3}, 2)
	assert.Equal(t, []QueryCount{{"c", 3}, {"a", 1}}, got)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	h := HandleEvent(agg)
	value, err := json.Marshal(MatchEvent{Type: EventMatch, Query: "a=codd", Results: 1})
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), []byte("a=codd"), value))
	require.NoError(t, h(context.Background(), nil, []byte("not json")))
	assert.Equal(t, int64(1), agg.Stats().TotalQueries)
}

func TestCollectorFeedsAggregatorAndPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, agg, 16, 2, time.Hour)
	c.Start(context.Background())

	for _, q := range []string{"a=codd", "a=date", "t=relational"} {
		c.Track(MatchEvent{Type: EventMatch, Query: q, Results: 1})
	}
	c.Close()

	assert.Equal(t, int64(3), agg.Stats().TotalQueries)
	assert.Equal(t, 3, pub.total())

	c.Track(MatchEvent{Query: "after close"})
	c.Close()
	assert.Equal(t, int64(3), agg.Stats().TotalQueries)
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCollector(pub, nil, 16, 100, time.Hour)
	c.Start(ctx)
	c.Track(MatchEvent{Query: "a=codd"})

	require.Eventually(t, func() bool { return len(c.eventCh) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-c.done
	assert.Equal(t, 1, pub.total())
}

func TestCollectorWithoutPublisher(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(nil, agg, 4, 1, time.Hour)
	c.Start(context.Background())
	c.Track(MatchEvent{Query: "x"})
	c.Close()
	assert.Equal(t, int64(1), agg.Stats().TotalQueries)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(MatchEvent{Type: EventMatch, Query: "a=codd", Results: 2})

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalQueries)
}

func TestStatsHandlerTop(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"a=codd", "a=codd", "a=date", "t=network"} {
		agg.Record(MatchEvent{Type: EventMatch, Query: q, Results: 1})
	}
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	require.Len(t, stats.TopQueries, 1)
	assert.Equal(t, "a=codd", stats.TopQueries[0].Query)

	for _, bad := range []string{"0", "101", "x"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}
