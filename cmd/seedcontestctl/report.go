package main

import (
	"fmt"

	"github.com/spf13/cobra"

	api "seedcontest/pkg/seedcontest"
)

func newReportFusionCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		logPath string
		ext     string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "report-fusion [snapshot-dir]",
		Short: "Extract fusion events from a run's evolution log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.Snapshots.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if !cmd.Flags().Changed("ext") {
				ext = cfg.Snapshots.Ext
			}
			client, err := rootOpts.newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Fusion(cmd.Context(), api.FusionRequest{LogPath: logPath, Dir: dir, Ext: ext, OutPath: out})
			if err != nil {
				return err
			}
			fmt.Fprintf(rootOpts.stdout, "events=%d report=%s\n", len(summary.Events), summary.ReportPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "evolution log (default: <prefix>.txt next to the snapshots)")
	cmd.Flags().StringVar(&ext, "ext", "", "snapshot file extension used to find the run prefix")
	cmd.Flags().StringVar(&out, "out", "", "report path (default: report-fusion-<dir>.tsv)")
	return cmd
}

func newThresholdCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		numTrials int
		alpha     float64
	)
	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Print the smallest significant win count for a number of trials",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			summary, err := api.Threshold(numTrials, alpha)
			if err != nil {
				return err
			}
			if rootOpts.jsonOut {
				return rootOpts.writeJSON(summary)
			}
			fmt.Fprintf(rootOpts.stdout, "num_trials=%d alpha=%g num_wins=%d p_value=%.6f\n", summary.NumTrials, summary.Alpha, summary.NumWins, summary.PValue)
			return nil
		},
	}
	cmd.Flags().IntVar(&numTrials, "num-trials", 50, "trials per contest")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "significance level")
	return cmd
}
