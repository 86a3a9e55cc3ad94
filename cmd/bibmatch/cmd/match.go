package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/query"
)

type matchResult struct {
	Rank   int     `json:"rank"`
	ID     int     `json:"id"`
	Score  float64 `json:"score"`
	Key    string  `json:"key"`
	Title  string  `json:"title"`
	Author string  `json:"authors"`
	Year   string  `json:"year"`
}

func newMatchCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "match <query>",
		Short: "Find the records that best match a citation",
		Long: `Match resolves one citation. The query uses field codes as in the
HTTP API, or is a free-text citation when it contains no '='.

Examples:
  bibmatch match 'a=E. F. Codd&t=relational model'
  bibmatch match 'Markus Tresch. Principles of distributed object database languages'
  bibmatch match --format json 'a=Date&y=1974'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := query.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if q.IsCount() {
				return fmt.Errorf("na and nt are count queries; use 'bibmatch count'")
			}
			c, err := a.loadCorpus(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return writeMatches(cmd.OutOrStdout(), c.engine, c.engine.FindBestMatches(q), format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func newCountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count <query>",
		Short: "Count records whose authors or title contain every term",
		Long: `Count answers na= (authors) or nt= (title) queries. When both are
given, na is used.

Examples:
  bibmatch count 'na=Codd'
  bibmatch count 'nt=relational model'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := query.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if !q.IsCount() {
				return fmt.Errorf("count queries need na= or nt=")
			}
			c, err := a.loadCorpus(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Fprintln(cmd.OutOrStdout(), c.engine.CountMatches(q))
			return nil
		},
	}
	return cmd
}

func writeMatches(w io.Writer, e *matcher.Engine, res matcher.MatchResult, format string) error {
	results := make([]matchResult, 0, len(res.Matches))
	for i, m := range res.Matches {
		rec, err := e.Resolve(m.ID)
		if err != nil {
			return err
		}
		results = append(results, matchResult{
			Rank:   i + 1,
			ID:     m.ID,
			Score:  m.Score,
			Key:    rec.Key,
			Title:  rec.Title,
			Author: rec.Authors,
			Year:   rec.Year,
		})
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "text":
		if len(results) == 0 {
			_, err := fmt.Fprintln(w, "no matches")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tSCORE\tKEY\tYEAR\tTITLE")
		for _, r := range results {
			fmt.Fprintf(tw, "%d\t%g\t%s\t%s\t%s\n", r.Rank, r.Score, r.Key, r.Year, r.Title)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
