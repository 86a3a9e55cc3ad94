// Package handler exposes the matching engine over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/metrics"
)

// Matcher is the subset of *matcher.Engine the handler uses.
type Matcher interface {
	FindBestMatches(q query.Query) matcher.MatchResult
	CountMatches(q query.Query) int
	Resolve(id int) (*record.Record, error)
	ResolveKey(key string) (int, *record.Record, error)
	Stats() matcher.Stats
}

// Caches groups the optional result caches.
type Caches struct {
	Matches *cache.Cache[matcher.MatchResult]
	Counts  *cache.Cache[int]
}

type Handler struct {
	engine    Matcher
	caches    Caches
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithCaches(c Caches) Option {
	return func(h *Handler) { h.caches = c }
}

func WithCollector(c *analytics.Collector) Option {
	return func(h *Handler) { h.collector = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(engine Matcher, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		logger: slog.Default().With("component", "match-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/match", h.Match)
	mux.HandleFunc("GET /api/v1/records/{id}", h.Record)
	mux.HandleFunc("GET /api/v1/records", h.RecordByKey)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// MatchedRecord is one ranked result with its record attached.
type MatchedRecord struct {
	ID     int            `json:"id"`
	Score  float64        `json:"score"`
	Record *record.Record `json:"record"`
}

type MatchResponse struct {
	Query      string          `json:"query"`
	Candidates int             `json:"candidates"`
	Results    []MatchedRecord `json:"results"`
	CacheHit   bool            `json:"cache_hit"`
	Timings    TimingsUs       `json:"timings_us"`
}

type TimingsUs struct {
	Candidates int64 `json:"candidates"`
	Evaluate   int64 `json:"evaluate"`
	Select     int64 `json:"select"`
}

type CountResponse struct {
	Query    string `json:"query"`
	Count    int    `json:"count"`
	CacheHit bool   `json:"cache_hit"`
}

// Match answers GET /api/v1/match?a=...&t=.... A bare ?q= carries a
// free-text citation. na or nt turn the request into a count.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q := query.FromValues(r.URL.Query())
	if len(q) == 0 {
		h.fail(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "at least one query parameter is required"))
		return
	}
	key := q.Key()

	if q.IsCount() {
		count, hit, err := h.count(r, q)
		if err != nil {
			log.Error("count failed", "query", key, "error", err)
			h.observe(metrics.ResultError, false, nil)
			h.fail(w, err)
			return
		}
		h.observe(metrics.ResultCount, hit, nil)
		h.track(r, analytics.MatchEvent{
			Type:      analytics.EventCount,
			Query:     key,
			Results:   count,
			TopID:     -1,
			CacheHit:  hit,
			LatencyUs: time.Since(start).Microseconds(),
		})
		h.writeJSON(w, http.StatusOK, CountResponse{Query: key, Count: count, CacheHit: hit})
		return
	}

	res, hit, err := h.match(r, q)
	if err != nil {
		log.Error("match failed", "query", key, "error", err)
		h.observe(metrics.ResultError, false, nil)
		h.fail(w, err)
		return
	}
	resp := MatchResponse{
		Query:      key,
		Candidates: res.Candidates,
		Results:    make([]MatchedRecord, 0, len(res.Matches)),
		CacheHit:   hit,
		Timings: TimingsUs{
			Candidates: res.Timings.Candidates.Microseconds(),
			Evaluate:   res.Timings.Evaluate.Microseconds(),
			Select:     res.Timings.Select.Microseconds(),
		},
	}
	for _, m := range res.Matches {
		rec, err := h.engine.Resolve(m.ID)
		if err != nil {
			log.Warn("dropping unresolvable match", "id", m.ID, "error", err)
			continue
		}
		resp.Results = append(resp.Results, MatchedRecord{ID: m.ID, Score: m.Score, Record: rec})
	}

	outcome := metrics.ResultMatched
	if len(resp.Results) == 0 {
		outcome = metrics.ResultEmpty
	}
	h.observe(outcome, hit, &res)

	event := analytics.MatchEvent{
		Type:         analytics.EventMatch,
		Query:        key,
		Results:      len(resp.Results),
		Candidates:   res.Candidates,
		TopID:        -1,
		CacheHit:     hit,
		CandidatesUs: resp.Timings.Candidates,
		EvaluateUs:   resp.Timings.Evaluate,
		SelectUs:     resp.Timings.Select,
		LatencyUs:    time.Since(start).Microseconds(),
	}
	if len(resp.Results) > 0 {
		top := resp.Results[0]
		event.TopID, event.TopKey, event.TopScore = top.ID, top.Record.Key, top.Score
	}
	h.track(r, event)

	log.Info("match completed",
		"query", key,
		"candidates", res.Candidates,
		"returned", len(resp.Results),
		"cache_hit", hit,
		"latency_ms", float64(event.LatencyUs)/1000,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) match(r *http.Request, q query.Query) (matcher.MatchResult, bool, error) {
	compute := func() (matcher.MatchResult, error) {
		if err := r.Context().Err(); err != nil {
			return matcher.MatchResult{}, apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, err.Error())
		}
		return h.engine.FindBestMatches(q), nil
	}
	if h.caches.Matches == nil {
		res, err := compute()
		return res, false, err
	}
	return h.caches.Matches.GetOrCompute(r.Context(), q.Key(), compute)
}

func (h *Handler) count(r *http.Request, q query.Query) (int, bool, error) {
	compute := func() (int, error) {
		return h.engine.CountMatches(q), nil
	}
	if h.caches.Counts == nil {
		n, err := compute()
		return n, false, err
	}
	return h.caches.Counts.GetOrCompute(r.Context(), q.Key(), compute)
}

// Record answers GET /api/v1/records/{id}.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		h.fail(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid record id %q", r.PathValue("id")))
		return
	}
	rec, err := h.engine.Resolve(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MatchedRecord{ID: id, Record: rec})
}

// RecordByKey answers GET /api/v1/records?key=....
func (h *Handler) RecordByKey(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		h.fail(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'key' is required"))
		return
	}
	id, rec, err := h.engine.ResolveKey(key)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MatchedRecord{ID: id, Record: rec})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.caches.Matches == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.caches.Matches.Stats()
	if h.caches.Counts != nil {
		ch, cm := h.caches.Counts.Stats()
		hits, misses = hits+ch, misses+cm
	}
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": hitRate,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.caches.Matches == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	err := h.caches.Matches.Invalidate(r.Context())
	if err == nil && h.caches.Counts != nil {
		err = h.caches.Counts.Invalidate(r.Context())
	}
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) observe(outcome string, cacheHit bool, res *matcher.MatchResult) {
	if h.metrics == nil {
		return
	}
	h.metrics.MatchQueriesTotal.WithLabelValues(outcome).Inc()
	if h.caches.Matches != nil {
		if cacheHit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}
	if res == nil || cacheHit {
		return
	}
	h.metrics.ObserveStage("candidates", res.Timings.Candidates)
	h.metrics.ObserveStage("evaluate", res.Timings.Evaluate)
	h.metrics.ObserveStage("select", res.Timings.Select)
	h.metrics.MatchCandidates.Observe(float64(res.Candidates))
	h.metrics.MatchResultsCount.Observe(float64(len(res.Matches)))
}

func (h *Handler) track(r *http.Request, event analytics.MatchEvent) {
	if h.collector == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.RequestID = logger.RequestID(r.Context())
	h.collector.Track(event)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrTimeout) {
		msg = "internal error"
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
