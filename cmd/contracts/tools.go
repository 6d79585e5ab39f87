package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/projectvak/contract-pipeline/internal/app"
	"github.com/projectvak/contract-pipeline/internal/export"
	"github.com/projectvak/contract-pipeline/internal/ingest"
	"github.com/projectvak/contract-pipeline/internal/repository"
	"github.com/projectvak/contract-pipeline/internal/search"
)

func newKeysCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Inspect the organize key pool"}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show per-key usage in the current window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			var db *repository.DB
			if cfg.Keys.Store == "database" {
				var err error
				if db, err = app.OpenDatabase(cmd.Context(), cfg, opts.logger); err != nil {
					return err
				}
				defer db.Close()
			}
			rot, err := app.OpenRotator(cfg, db, opts.logger)
			if err != nil {
				return err
			}
			st, err := rot.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d keys, limit %d per key, resets %s\n",
				rot.Size(), rot.Limit(), humanize.Time(st.NextResetAt))
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tKEY\tUSED\tLEFT")
			for i, key := range cfg.LLM.OrganizeAPIKeys {
				used := 0
				if i < len(st.Counts) {
					used = st.Counts[i]
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", i, maskKey(key), used, max(rot.Limit()-used, 0))
			}
			return tw.Flush()
		},
	})
	return cmd
}

func maskKey(k string) string {
	if len(k) <= 8 {
		return strings.Repeat("*", len(k))
	}
	return k[:4] + "..." + k[len(k)-4:]
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var ledger string
	pathFor := func() (string, error) {
		switch ledger {
		case "organized":
			return opts.cfg.Pipeline.OrganizedHistory, nil
		case "analyzed":
			return opts.cfg.Pipeline.AnalyzedHistory, nil
		default:
			return "", fmt.Errorf("unknown ledger %q (organized or analyzed)", ledger)
		}
	}

	cmd := &cobra.Command{Use: "history", Short: "Inspect or edit the processed-path ledgers"}
	cmd.PersistentFlags().StringVar(&ledger, "ledger", "analyzed", "organized or analyzed")
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every recorded path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				p, err := pathFor()
				if err != nil {
					return err
				}
				l, err := app.OpenLedger(cmd.Context(), ledger, p, opts.logger)
				if err != nil {
					return err
				}
				entries, err := l.Entries(cmd.Context())
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintln(cmd.OutOrStdout(), e)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "unmark <path>",
			Short: "Forget a path so the next pass processes it again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := pathFor()
				if err != nil {
					return err
				}
				l, err := app.OpenLedger(cmd.Context(), ledger, p, opts.logger)
				if err != nil {
					return err
				}
				if !l.Contains(args[0]) {
					return fmt.Errorf("%s is not in the %s ledger", args[0], ledger)
				}
				return l.Unmark(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out, fromStr, toStr string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the processing log as an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseDate(fromStr)
			if err != nil {
				return err
			}
			to, err := parseDate(toStr)
			if err != nil {
				return err
			}
			st, err := app.OpenStorage(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			plog := export.NewProcessingLog(st, opts.cfg.Storage.ProcessingLogPath, opts.logger)
			data, err := export.NewService(plog, opts.logger).ExportXLSX(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, humanize.IBytes(uint64(len(data))))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "verwerking_log.xlsx", "output XLSX path")
	cmd.Flags().StringVar(&fromStr, "from", "", "from date YYYY-MM-DD")
	cmd.Flags().StringVar(&toStr, "to", "", "to date YYYY-MM-DD")
	return cmd
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return &t, nil
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over analyzed contracts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.Search.IndexPath == "" {
				return fmt.Errorf("no search index configured (search.index_path or SEARCH_INDEX_PATH)")
			}
			idx, err := search.Open(opts.cfg.Search.IndexPath, opts.logger)
			if err != nil {
				return err
			}
			defer idx.Close()

			hits, err := idx.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, h := range hits {
				fmt.Fprintf(tw, "%.3f\t%s\t%s\n", h.Score, h.Name, h.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of hits")
	return cmd
}

func newDBHealthCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Check the database connection and schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := app.OpenDatabase(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.HealthCheck(cmd.Context(), timeout); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			names, err := repository.NewContractRepository(db, opts.logger).ListContractNames(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "DB health: OK (%s, %d contract records)\n", db.Dialect(), len(names))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "ping timeout")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var skipHidden bool
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Copy local documents into the scan root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.OpenStorage(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			imp := ingest.NewImporter(st, opts.cfg.Storage.ScanRoot, opts.logger)
			results, stats, err := imp.ImportDirectory(cmd.Context(), args[0], skipHidden)
			for _, r := range results {
				if r.Err != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %s\n", r.SourcePath, r.Err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "matched %d, imported %d, duplicates %d, failed %d\n",
				stats.Matched, stats.Succeeded-stats.Deduplicated, stats.Deduplicated, stats.Failed)
			return err
		},
	}
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip dot files and directories")
	return cmd
}
