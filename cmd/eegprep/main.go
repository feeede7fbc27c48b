// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command eegprep matches, annotates and epochs EEG recordings.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/OpenPSG/eegprep/config"
	"github.com/OpenPSG/eegprep/internal/logging"
	"github.com/OpenPSG/eegprep/internal/store"
	"github.com/OpenPSG/eegprep/participant"
	"github.com/OpenPSG/eegprep/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel  string
	logFormat string
}

func (o *rootOptions) logger(w io.Writer) (*slog.Logger, error) {
	return logging.New(w, o.logLevel, o.logFormat)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "eegprep",
		Short:        "Prepare EEG recordings for analysis",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")

	cmd.AddCommand(newMatchCmd(opts), newRunCmd(opts), newRunsCmd())
	return cmd
}

func newMatchCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match EEG_DIR BEH_DIR",
		Short: "List participants with matching behavioral and trigger-map files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			res, err := participant.Match(args[0], args[1], participant.Options{Logger: logger})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSEX\tAGE\tRECORDING\tBEHAVIORAL\tTRIGGER MAP")
			for _, r := range res.Records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Sex, r.Age, r.RecordingPath, r.BehavioralPath, r.TriggerMapPath)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			for _, s := range res.Skips {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: %s\n", s.ID, s.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s matched, %s skipped\n",
				humanize.Comma(int64(len(res.Records))), humanize.Comma(int64(len(res.Skips))))
			return nil
		},
	}
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		configPath string
		workers    int
		dbPath     string
		exportDir  string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Annotate and epoch every matched participant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Workers = workers
			}
			if flags.Changed("db") {
				cfg.DBPath = dbPath
			}
			if flags.Changed("export-dir") {
				cfg.ExportDir = exportDir
			}
			if quiet {
				cfg.Verbose = false
			}
			if !flags.Changed("log-format") {
				root.logFormat = cfg.LogFormat
			}
			if !flags.Changed("log-level") {
				root.logLevel = cfg.LogLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var st pipeline.Store
			if cfg.DBPath != "" {
				s, err := store.NewStore(cfg.DBPath)
				if err != nil {
					return err
				}
				defer s.Close()
				st = s
			}

			res, err := pipeline.New(cfg, logger, st).Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s ok, %s skipped, %s failed, %s epochs\n",
				res.RunID,
				humanize.Comma(int64(res.Count(store.StatusOK))),
				humanize.Comma(int64(res.Count(store.StatusSkipped))),
				humanize.Comma(int64(res.Count(store.StatusFailed))),
				humanize.Comma(int64(res.Epochs())))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "eegprep.yaml", "path to the configuration file")
	cmd.Flags().IntVar(&workers, "workers", 1, "participants processed in parallel")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to record outcomes in")
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "directory to write averaged epochs to")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress messages")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var (
		dbPath string
		last   int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), last)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no runs found")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tOK\tSKIPPED\tFAILED\tEEG DIR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, humanize.Time(r.StartedAt), r.OK, r.Skipped, r.Failed, r.EEGDir)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "eegprep.db", "SQLite database holding run outcomes")
	cmd.Flags().IntVar(&last, "last", 20, "number of most recent runs to show")
	return cmd
}
