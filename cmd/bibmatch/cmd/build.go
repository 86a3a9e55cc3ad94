package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher"
)

func newBuildCmd(a *app) *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the index files for a corpus",
		Long: `Build reads <basename>.records (or the Postgres records table) and
writes <basename>.index and <basename>.seg. Existing index files are reused
unless --rebuild is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []matcher.Option
			if rebuild {
				extra = append(extra, matcher.WithRebuild())
			}
			c, err := a.loadCorpus(cmd.Context(), extra...)
			if err != nil {
				return err
			}
			defer c.Close()
			s := c.engine.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "records: %d\nterms: %d\npostings: %d\nindex: %s\n",
				s.Records, s.Terms, s.Postings, s.Source)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Ignore existing index files and rebuild them")

	return cmd
}
