package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

const topQueries = 10

type AggregatedStats struct {
	TotalQueries     int64        `json:"total_queries"`
	MatchQueries     int64        `json:"match_queries"`
	CountQueries     int64        `json:"count_queries"`
	CacheHits        int64        `json:"cache_hits"`
	CacheMisses      int64        `json:"cache_misses"`
	EmptyResults     int64        `json:"empty_results"`
	AvgCandidates    float64      `json:"avg_candidates"`
	AvgLatencyMs     float64      `json:"avg_latency_ms"`
	P50LatencyMs     float64      `json:"p50_latency_ms"`
	P95LatencyMs     float64      `json:"p95_latency_ms"`
	P99LatencyMs     float64      `json:"p99_latency_ms"`
	TopQueries       []QueryCount `json:"top_queries"`
	EmptyQueries     []QueryCount `json:"empty_queries"`
	QueriesPerMinute float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals over MatchEvents. It is safe for
// concurrent use.
type Aggregator struct {
	totalQueries atomic.Int64
	matchQueries atomic.Int64
	countQueries atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	emptyResults atomic.Int64
	candidates   atomic.Int64

	mu           sync.RWMutex
	latencies    []int64
	next         int
	queryCounts  map[string]int64
	emptyQueries map[string]int64
	startTime    time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:    make([]int64, 0, 1024),
		queryCounts:  make(map[string]int64),
		emptyQueries: make(map[string]int64),
		startTime:    time.Now(),
		logger:       slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts the Aggregator to a Kafka consumer. Undecodable
// messages are logged and acknowledged so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[MatchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode match event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record folds one event into the totals.
func (a *Aggregator) Record(event MatchEvent) {
	a.totalQueries.Add(1)
	switch event.Type {
	case EventCount:
		a.countQueries.Add(1)
	default:
		a.matchQueries.Add(1)
		a.candidates.Add(int64(event.Candidates))
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	empty := event.Results == 0
	if empty {
		a.emptyResults.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyUs)
	} else {
		a.latencies[a.next] = event.LatencyUs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[event.Query]++
	if empty {
		a.emptyQueries[event.Query]++
	}
	a.mu.Unlock()
}

// Stats summarizes everything recorded so far, listing the top ten queries.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(topQueries)
}

// StatsTop is Stats with the top and empty query lists cut at n.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries: a.totalQueries.Load(),
		MatchQueries: a.matchQueries.Load(),
		CountQueries: a.countQueries.Load(),
		CacheHits:    a.cacheHits.Load(),
		CacheMisses:  a.cacheMisses.Load(),
		EmptyResults: a.emptyResults.Load(),
	}
	if stats.MatchQueries > 0 {
		stats.AvgCandidates = float64(a.candidates.Load()) / float64(stats.MatchQueries)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted)) / 1000
		stats.P50LatencyMs = float64(percentile(sorted, 50)) / 1000
		stats.P95LatencyMs = float64(percentile(sorted, 95)) / 1000
		stats.P99LatencyMs = float64(percentile(sorted, 99)) / 1000
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.EmptyQueries = topN(a.emptyQueries, n)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries, ties broken by query text.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
