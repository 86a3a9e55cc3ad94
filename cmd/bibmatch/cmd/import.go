package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/postgres"
)

func newImportCmd(a *app) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "import [records-file]",
		Short: "Load a records file into the Postgres records table",
		Long: `Import replaces the contents of the records table with a records file,
in file order, so that corpus.source: postgres yields the same record ids.
The file defaults to <basename>.records.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := matcher.PathsFor(a.cfg.Corpus.Basename).Records
			if len(args) == 1 {
				path = args[0]
			}
			if table == "" {
				table = a.cfg.Corpus.Table
			}
			store, err := record.ReadFile(path)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pg, err := postgres.New(ctx, a.cfg.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := pg.InTx(ctx, func(tx *sql.Tx) error {
				return record.Import(ctx, tx, table, store)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records into %s\n", store.Len(), table)
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Target table (default corpus.table)")

	return cmd
}
