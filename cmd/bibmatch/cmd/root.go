// Package cmd provides the CLI commands for bibmatch.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/logger"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	basename   string
	logLevel   string
	cfg        *config.Config
}

// NewRootCmd creates the root command for the bibmatch CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "bibmatch",
		Short: "Match citations against a bibliographic corpus",
		Long: `bibmatch indexes a corpus of bibliographic records and finds the
records that best match a citation given as author, title and other fields.

The corpus lives next to its index files: <basename>.records holds the
records, <basename>.index and <basename>.seg are built on first use.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVarP(&a.basename, "basename", "b", "", "Corpus basename (overrides corpus.basename)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides logging.level)")

	cmd.AddCommand(newBuildCmd(a))
	cmd.AddCommand(newMatchCmd(a))
	cmd.AddCommand(newCountCmd(a))
	cmd.AddCommand(newBatchCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newAnalyticsCmd(a))

	return cmd
}

// Execute runs the root command until it returns or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.basename != "" {
		cfg.Corpus.Basename = a.basename
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	return nil
}
