package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/postgres"
)

func newAnalyticsCmd(a *app) *cobra.Command {
	var snapshots bool

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Aggregate match events from Kafka across matcher instances",
		Long: `Analytics consumes the match events topic, aggregates them and serves
the totals at GET /api/v1/analytics on analytics.port. With --snapshots the
totals are also saved to Postgres every analytics.snapshotInterval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalytics(cmd.Context(), snapshots)
		},
	}

	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "Persist periodic snapshots to Postgres")

	return cmd
}

func (a *app) runAnalytics(ctx context.Context, snapshots bool) error {
	cfg := a.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.MatchEvents, analytics.HandleEvent(agg))
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Start(ctx)
	}()

	checker := health.NewChecker()
	if snapshots {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()
		store := aggregator.NewStore(pg.DB, cfg.Analytics.SnapshotTable)
		if err := store.EnsureTable(ctx); err != nil {
			return err
		}
		if last, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not read latest snapshot", "error", err)
		} else if last != nil {
			slog.Info("previous snapshot found", "total_queries", last.TotalQueries)
		}
		saved := store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		defer func() {
			cancel()
			<-saved
		}()
		checker.Register("postgres", health.PingCheck(pg.Ping))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	slog.Info("analytics service starting",
		"topic", cfg.Kafka.MatchEvents,
		"group", cfg.Kafka.ConsumerGroup,
		"port", cfg.Analytics.Port,
	)
	err := runServer(ctx, &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.RequestID(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cfg.Server)
	cancel()
	if cerr := <-consumerDone; cerr != nil {
		slog.Error("analytics consumer stopped", "error", cerr)
	}
	return err
}
