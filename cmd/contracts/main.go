package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/logging"
	"github.com/projectvak/contract-pipeline/internal/repository"
)

type rootOptions struct {
	configPath string
	inmem      bool
	cfg        *common.Config
	logger     *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "contracts",
		Short:         "Organize and analyze rental contracts in a document store",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := common.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.inmem {
				cfg.Database.Driver = "sqlite"
				cfg.Database.DSN = repository.MemoryDSN("contracts")
			}
			opts.cfg = cfg
			opts.logger = logging.New(cmd.ErrOrStderr(), logging.Config{Level: cfg.Log.Level, Format: "text"})
			slog.SetDefault(opts.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"), "YAML config file (optional)")
	root.PersistentFlags().BoolVar(&opts.inmem, "inmem", false, "use a throwaway in-memory sqlite database")

	root.AddCommand(
		newOrganizeCmd(opts),
		newAnalyzeCmd(opts),
		newRunCmd(opts),
		newExtractTextCmd(opts),
		newKeysCmd(opts),
		newHistoryCmd(opts),
		newExportCmd(opts),
		newSearchCmd(opts),
		newDBHealthCmd(opts),
		newImportCmd(opts),
	)
	return root
}
