package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	api "seedcontest/pkg/seedcontest"
)

func newImportCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		ext         string
		runID       string
		generations int
	)
	cmd := &cobra.Command{
		Use:   "import <snapshot-dir>",
		Short: "Load a snapshot directory into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ext") {
				ext = cfg.Snapshots.Ext
			}
			client, err := rootOpts.newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Import(cmd.Context(), api.ImportRequest{Dir: args[0], Ext: ext, RunID: runID, Generations: &generations})
			if err != nil {
				return err
			}
			if rootOpts.jsonOut {
				return rootOpts.writeJSON(summary)
			}
			fmt.Fprintf(rootOpts.stdout, "run_id=%s generations=%d seeds=%d\n", summary.RunID, summary.Generations, summary.Seeds)
			return nil
		},
	}
	cmd.Flags().StringVar(&ext, "ext", "", "snapshot file extension (json|yaml)")
	cmd.Flags().StringVar(&runID, "run", "", "run id to store under (default: snapshot prefix)")
	cmd.Flags().IntVar(&generations, "generations", -1, "last generation index; -1 infers it")
	return cmd
}

func newExportCommand(rootOpts *rootOptions) *cobra.Command {
	var ext string
	cmd := &cobra.Command{
		Use:   "export <run-id> <out-dir>",
		Short: "Write a stored run back out as snapshot files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := rootOpts.newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			n, err := client.Export(cmd.Context(), api.ExportRequest{RunID: args[0], Dir: args[1], Ext: ext})
			if err != nil {
				return err
			}
			fmt.Fprintf(rootOpts.stdout, "run_id=%s snapshots=%d dir=%s\n", args[0], n, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&ext, "ext", "json", "snapshot file extension (json|yaml)")
	return cmd
}

func newTournamentsCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		runID string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "tournaments",
		Short: "List recorded tournaments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := rootOpts.newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			records, err := client.Tournaments(cmd.Context(), api.TournamentsRequest{RunID: runID, Limit: limit})
			if err != nil {
				return err
			}
			if rootOpts.jsonOut {
				return rootOpts.writeJSON(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(rootOpts.stdout, "no tournaments found")
				return nil
			}
			for _, r := range records {
				final := 0.0
				if len(r.Scores) > 0 {
					final = r.Scores[len(r.Scores)-1].Score
				}
				fmt.Fprintf(rootOpts.stdout, "id=%s run_id=%s policy=%s created_at=%s gens=%d top=%d trials=%d final_score=%.6f\n",
					r.ID,
					r.RunID,
					r.Policy,
					r.CreatedAtUTC,
					r.NumGenerations,
					r.NumTop,
					r.NumTrials,
					final,
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "only tournaments of this run")
	cmd.Flags().IntVar(&limit, "limit", 20, "max tournaments to list")
	return cmd
}
