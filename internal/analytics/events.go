// Package analytics records what the matcher is asked and how it answers.
// The server emits one MatchEvent per query into a Collector, which feeds
// an in-process Aggregator and, when Kafka is enabled, a topic consumed by
// the standalone analytics service.
package analytics

import "time"

type EventType string

const (
	EventMatch EventType = "match"
	EventCount EventType = "count"
)

// MatchEvent describes one served query. TopID is -1 when nothing matched.
type MatchEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	Results      int       `json:"results"`
	Candidates   int       `json:"candidates"`
	TopID        int       `json:"top_id"`
	TopKey       string    `json:"top_key,omitempty"`
	TopScore     float64   `json:"top_score"`
	CacheHit     bool      `json:"cache_hit"`
	CandidatesUs int64     `json:"candidates_us"`
	EvaluateUs   int64     `json:"evaluate_us"`
	SelectUs     int64     `json:"select_us"`
	LatencyUs    int64     `json:"latency_us"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}
