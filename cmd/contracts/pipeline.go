package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/projectvak/contract-pipeline/internal/app"
)

func buildApp(cmd *cobra.Command, opts *rootOptions) (*app.App, error) {
	if err := opts.cfg.Validate(); err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), opts.cfg, opts.logger)
}

func newOrganizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "organize",
		Short: "Run one organize batch over the scan root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Organizer.RunBatch(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending %d, attempted %d, moved %d, skipped %d, gone %d, failed %d\n",
				res.Pending, res.Attempted, res.Moved, res.Skipped, res.Gone, res.Failed)
			if err := res.StopReason(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "stopped: %v\n", err)
			}
			return nil
		},
	}
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Analyze every pending contract in the rental folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Analyzer.RunBatch(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "folders %d, found %d, pending %d, analyzed %d, skipped %d, requeued %d\n",
				res.Folders, res.Found, res.Pending, res.Analyzed, res.Skipped, res.Requeued)
			if res.QuotaHit {
				fmt.Fprintln(cmd.OutOrStdout(), "stopped: analyze key quota exhausted")
			}
			if res.AuthError {
				fmt.Fprintln(cmd.OutOrStdout(), "stopped: analyze key rejected")
			}
			return nil
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the organize/analyze loop in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			w := a.Worker()
			if !once {
				return w.Run(cmd.Context())
			}
			c, err := w.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: organized %d", c.RunID, c.Organize.Moved)
			if c.Analyze != nil {
				fmt.Fprintf(cmd.OutOrStdout(), ", analyzed %d, requeued %d", c.Analyze.Analyzed, c.Analyze.Requeued)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

func newExtractTextCmd(opts *rootOptions) *cobra.Command {
	var vision bool
	cmd := &cobra.Command{
		Use:   "extract-text <pdf>",
		Short: "Print the text the pipeline would read from a local PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			model := opts.cfg.LLM.Model
			factory := app.TextFactory(opts.cfg, model, opts.logger)
			ex := factory(nil)
			if vision {
				m, err := app.NewModels(cmd.Context(), opts.cfg, opts.logger)
				if err != nil {
					return err
				}
				ex = app.TextFactory(opts.cfg, m.Model, opts.logger)(m.Analyze)
			}

			text, meta := ex.Extract(cmd.Context(), data)
			fmt.Fprintf(cmd.ErrOrStderr(), "pages %d/%d, %d characters, method %s",
				meta.PagesScanned, meta.TotalPages, meta.TextLength, meta.Method)
			if meta.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), ", error: %s", meta.Error)
			}
			fmt.Fprintln(cmd.ErrOrStderr())
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&vision, "vision", false, "allow the vision OCR fallback (uses the analyze key)")
	return cmd
}
