package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/batch"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		workers    int
		format     string
		queryFirst bool
	)

	cmd := &cobra.Command{
		Use:   "batch <file|->",
		Short: "Match a file of citations and report accuracy",
		Long: `Batch reads lines of "expected-key<TAB>query" and matches every query
on a worker pool. Each line is a hit when the top result has the expected
key, or when nothing matches and the expected key is NO_MATCH. With
--query-first the lines are "query<TAB>key" as in qrels files. The per-line
results are written to stdout, the summary and average stage timings to
stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening batch input: %w", err)
				}
				defer f.Close()
				in = f
			}
			if workers <= 0 {
				workers = a.cfg.Batch.Workers
			}

			c, err := a.loadCorpus(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			cols := batch.KeyFirst
			if queryFirst {
				cols = batch.QueryFirst
			}
			rep, err := batch.NewRunner(c.engine, workers, batch.WithColumns(cols)).Run(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			case "tsv":
				if err := rep.WriteTSV(out); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "total %d  hits %d  misses %d  errors %d  accuracy %.4f\n",
				rep.Total, rep.Hits, rep.Misses, rep.Errors, rep.Accuracy)
			fmt.Fprintf(cmd.ErrOrStderr(), "avg candidates %v  evaluate %v  select %v\n",
				rep.AvgTimings.Candidates, rep.AvgTimings.Evaluate, rep.AvgTimings.Select)
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker pool size (default batch.workers)")
	cmd.Flags().StringVarP(&format, "format", "f", "tsv", "Output format: tsv, json")
	cmd.Flags().BoolVar(&queryFirst, "query-first", false, "Read \"query<TAB>key\" lines")

	return cmd
}
