// Package batch resolves a file of citations against the engine and
// scores the answers against the expected record keys.
//
// Input lines are "expected-key<TAB>query" by default, or "query<TAB>key" in
// the QueryFirst layout of ground-truth qrels files. The query uses the same
// a=...&t=... encoding as the HTTP API, or is a free-text citation. Blank
// lines and lines starting with '#' are skipped. An expected key of
// NO_MATCH marks a citation the corpus does not hold; it is a hit when
// nothing matches.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/metrics"
)

// NoMatch is the expected key of a citation with no record in the corpus.
const NoMatch = "NO_MATCH"

// Columns selects the order of the two fields on an input line.
type Columns int

const (
	// KeyFirst is "expected-key<TAB>query".
	KeyFirst Columns = iota
	// QueryFirst is "query<TAB>key", the qrels layout. A leading tab is
	// ignored.
	QueryFirst
)

// Matcher is the subset of *matcher.Engine a Runner needs.
type Matcher interface {
	FindBestMatches(q query.Query) matcher.MatchResult
	Resolve(id int) (*record.Record, error)
}

// Line is one parsed input line.
type Line struct {
	Number   int
	Expected string
	Query    query.Query
	Err      error
}

// Outcome is the result for one Line. TopID is -1 when nothing matched.
type Outcome struct {
	Line     int     `json:"line"`
	Expected string  `json:"expected"`
	Query    string  `json:"query"`
	TopID    int     `json:"top_id"`
	TopKey   string  `json:"top_key"`
	Score    float64 `json:"score"`
	Results  int     `json:"results"`
	Hit      bool    `json:"hit"`
	Error    string  `json:"error,omitempty"`

	Timings matcher.Timings `json:"timings"`
}

// Report aggregates a run. Outcomes are in input order.
type Report struct {
	Outcomes []Outcome     `json:"outcomes"`
	Total    int           `json:"total"`
	Hits     int           `json:"hits"`
	Misses   int           `json:"misses"`
	Errors   int           `json:"errors"`
	Accuracy float64       `json:"accuracy"`
	Duration time.Duration `json:"duration"`

	// AvgTimings averages the stage timings over the lines that were
	// matched, so error lines do not dilute it.
	AvgTimings matcher.Timings `json:"avg_timings"`
}

// Runner fans lines out over an ants worker pool.
type Runner struct {
	engine  Matcher
	workers int
	columns Columns
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Runner)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithColumns sets the input layout read by Run.
func WithColumns(c Columns) Option {
	return func(r *Runner) { r.columns = c }
}

func NewRunner(engine Matcher, workers int, opts ...Option) *Runner {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{
		engine:  engine,
		workers: workers,
		logger:  slog.Default().With("component", "batch"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ParseLines reads every non-blank, non-comment line. Malformed lines are
// returned with Err set so they count as errors rather than aborting.
func ParseLines(rd io.Reader, cols Columns) ([]Line, error) {
	var lines []Line
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		line := Line{Number: n}
		expected, raw, ok := split(text, cols)
		if !ok {
			line.Err = fmt.Errorf("line %d: missing tab between expected key and query", n)
			lines = append(lines, line)
			continue
		}
		line.Expected = strings.TrimSpace(expected)
		line.Query, line.Err = query.Parse(raw)
		if line.Err != nil {
			line.Err = fmt.Errorf("line %d: %w", n, line.Err)
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading batch input: %w", err)
	}
	return lines, nil
}

func split(text string, cols Columns) (expected, raw string, ok bool) {
	if cols == QueryFirst {
		text = strings.TrimPrefix(text, "\t")
		i := strings.LastIndexByte(text, '\t')
		if i < 0 {
			return "", "", false
		}
		return text[i+1:], text[:i], true
	}
	return strings.Cut(text, "\t")
}

// Run matches every line of rd. It stops submitting work when ctx is
// cancelled and returns ctx.Err() once in-flight lines finish.
func (r *Runner) Run(ctx context.Context, rd io.Reader) (*Report, error) {
	lines, err := ParseLines(rd, r.columns)
	if err != nil {
		return nil, err
	}
	return r.RunLines(ctx, lines)
}

func (r *Runner) RunLines(ctx context.Context, lines []Line) (*Report, error) {
	start := time.Now()
	pool, err := ants.NewPool(r.workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	outcomes := make([]Outcome, len(lines))
	var wg sync.WaitGroup
	for i := range lines {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = r.resolve(lines[i])
		}); err != nil {
			wg.Done()
			outcomes[i] = failed(lines[i], err)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Outcomes: outcomes, Total: len(outcomes)}
	var sum matcher.Timings
	for _, o := range outcomes {
		switch {
		case o.Error != "":
			report.Errors++
			continue
		case o.Hit:
			report.Hits++
		default:
			report.Misses++
		}
		sum.Candidates += o.Timings.Candidates
		sum.Evaluate += o.Timings.Evaluate
		sum.Select += o.Timings.Select
	}
	if report.Total > 0 {
		report.Accuracy = float64(report.Hits) / float64(report.Total)
	}
	if matched := time.Duration(report.Hits + report.Misses); matched > 0 {
		report.AvgTimings = matcher.Timings{
			Candidates: sum.Candidates / matched,
			Evaluate:   sum.Evaluate / matched,
			Select:     sum.Select / matched,
		}
	}
	report.Duration = time.Since(start)
	r.logger.Info("batch finished",
		"total", report.Total,
		"hits", report.Hits,
		"misses", report.Misses,
		"errors", report.Errors,
		"accuracy", report.Accuracy,
		"duration", report.Duration,
		"avg_candidates", report.AvgTimings.Candidates,
		"avg_evaluate", report.AvgTimings.Evaluate,
		"avg_select", report.AvgTimings.Select,
	)
	return report, nil
}

func (r *Runner) resolve(line Line) Outcome {
	if line.Err != nil {
		r.count("error")
		return failed(line, line.Err)
	}
	out := Outcome{
		Line:     line.Number,
		Expected: line.Expected,
		Query:    line.Query.Key(),
		TopID:    -1,
	}
	res := r.engine.FindBestMatches(line.Query)
	out.Results = len(res.Matches)
	out.Timings = res.Timings
	if len(res.Matches) > 0 {
		top := res.Matches[0]
		rec, err := r.engine.Resolve(top.ID)
		if err != nil {
			r.count("error")
			return failed(line, err)
		}
		out.TopID, out.TopKey, out.Score = top.ID, rec.Key, top.Score
		out.Hit = rec.Key == line.Expected
	} else {
		out.Hit = line.Expected == NoMatch
	}
	if out.Hit {
		r.count("hit")
	} else {
		r.count("miss")
	}
	return out
}

func (r *Runner) count(outcome string) {
	if r.metrics != nil {
		r.metrics.BatchLinesTotal.WithLabelValues(outcome).Inc()
	}
}

func failed(line Line, err error) Outcome {
	out := Outcome{Line: line.Number, Expected: line.Expected, TopID: -1, Error: err.Error()}
	if line.Query != nil {
		out.Query = line.Query.Key()
	}
	return out
}

// WriteTSV writes one "line expected top-key score hit" row per outcome.
func (rep *Report) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, o := range rep.Outcomes {
		status := "miss"
		switch {
		case o.Error != "":
			status = "error"
		case o.Hit:
			status = "hit"
		}
		if _, err := fmt.Fprintf(bw, "%d\t%s\t%s\t%g\t%s\n", o.Line, o.Expected, o.TopKey, o.Score, status); err != nil {
			return err
		}
	}
	return bw.Flush()
}
