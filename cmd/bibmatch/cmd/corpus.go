package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/postgres"
)

// corpus is a loaded engine plus the connections it was loaded through.
type corpus struct {
	engine *matcher.Engine
	pg     *postgres.Client
}

func (c *corpus) Close() {
	if c.pg != nil {
		c.pg.Close()
	}
}

func newNormalizer(cfg config.MatcherConfig) (*normalizer.Normalizer, error) {
	var opts []normalizer.Option
	if cfg.StopwordFile != "" {
		opts = append(opts, normalizer.WithStopwordFile(cfg.StopwordFile))
	}
	n, err := normalizer.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("building normalizer: %w", err)
	}
	return n, nil
}

// loadCorpus opens the configured corpus. extra options are applied after
// the ones derived from config.
func (a *app) loadCorpus(ctx context.Context, extra ...matcher.Option) (*corpus, error) {
	cfg := a.cfg
	n, err := newNormalizer(cfg.Matcher)
	if err != nil {
		return nil, err
	}
	opts := []matcher.Option{
		matcher.WithNormalizer(n),
		matcher.WithTermCountPenalty(cfg.Matcher.PenaltyThreshold, cfg.Matcher.PenaltyWeight),
		matcher.WithSnapshot(cfg.Corpus.WriteSnapshot),
	}

	c := &corpus{}
	if cfg.Corpus.Source == config.SourcePostgres {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		c.pg = pg
		opts = append(opts, matcher.WithRecordLoader(matcher.PostgresLoader(pg, cfg.Corpus.Table)))
	}
	opts = append(opts, extra...)

	e, err := matcher.LoadCorpus(ctx, cfg.Corpus.Basename, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("loading corpus %s: %w", cfg.Corpus.Basename, err)
	}
	c.engine = e
	stats := e.Stats()
	slog.Info("corpus loaded",
		"basename", cfg.Corpus.Basename,
		"source", cfg.Corpus.Source,
		"index", stats.Source,
		"records", stats.Records,
		"terms", stats.Terms,
	)
	return c, nil
}
