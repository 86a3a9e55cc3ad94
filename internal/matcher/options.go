package matcher

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
)

// RecordLoader produces the record store for LoadCorpus.
type RecordLoader func(ctx context.Context) (*record.Store, error)

type options struct {
	norm             *normalizer.Normalizer
	logger           *slog.Logger
	bonus            ranker.Bonus
	penaltyThreshold int
	penaltyWeight    float64
	loader           RecordLoader
	writeSnapshot    bool
	rebuild          bool
}

// Option configures an Engine.
type Option func(*options) error

func WithNormalizer(n *normalizer.Normalizer) Option {
	return func(o *options) error {
		o.norm = n
		return nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

// WithBonus sets the per-record score adjustment.
func WithBonus(b ranker.Bonus) Option {
	return func(o *options) error {
		o.bonus = b
		return nil
	}
}

// WithTermCountPenalty enables ranker.TermCountPenalty when no explicit
// bonus is set. threshold <= 0 disables it.
func WithTermCountPenalty(threshold int, weight float64) Option {
	return func(o *options) error {
		o.penaltyThreshold = threshold
		o.penaltyWeight = weight
		return nil
	}
}

// WithRecordLoader replaces reading <basename>.records.
func WithRecordLoader(l RecordLoader) Option {
	return func(o *options) error {
		o.loader = l
		return nil
	}
}

// WithSnapshot controls whether LoadCorpus writes <basename>.seg.
func WithSnapshot(enabled bool) Option {
	return func(o *options) error {
		o.writeSnapshot = enabled
		return nil
	}
}

// WithRebuild ignores existing index files and rebuilds them.
func WithRebuild() Option {
	return func(o *options) error {
		o.rebuild = true
		return nil
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := &options{
		logger:        slog.Default().With("component", "matcher"),
		writeSnapshot: true,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.norm == nil {
		n, err := normalizer.New()
		if err != nil {
			return nil, err
		}
		o.norm = n
	}
	return o, nil
}
