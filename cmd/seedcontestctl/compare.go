package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"seedcontest/internal/config"
	"seedcontest/internal/report"
	api "seedcontest/pkg/seedcontest"
)

type compareOptions struct {
	*rootOptions
	policy string

	snapshotDir   string
	snapshotExt   string
	runID         string
	analysisDir   string
	generations   int
	numTop        int
	numTrials     int
	numWins       int
	alpha         float64
	workers       int
	widthFactor   float64
	heightFactor  float64
	timeFactor    float64
	oracleKind    string
	oracleCommand string
	oracleSeed    int64
	oracleRetries uint64
}

func newCompareCommand(rootOpts *rootOptions, use, policy, short string) *cobra.Command {
	opts := &compareOptions{rootOptions: rootOpts, policy: policy}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.snapshotDir, "snapshots", "", "directory holding <prefix>-pickle-<generation>.<ext> snapshots")
	f.StringVar(&opts.snapshotExt, "ext", "", "snapshot file extension (json|yaml)")
	f.StringVar(&opts.runID, "run", "", "score a run imported into the store instead of a snapshot directory")
	f.StringVar(&opts.analysisDir, "analysis-dir", "", "directory for the TSV report (default: snapshot directory)")
	f.IntVar(&opts.generations, "generations", -1, "last generation index; -1 infers it from the snapshots")
	f.IntVar(&opts.numTrials, "num-trials", 0, "trials per contest (default: 2 past-winners, 50 win-count)")
	f.IntVar(&opts.workers, "workers", 1, "contests run concurrently")
	f.Float64Var(&opts.widthFactor, "width-factor", 0, "world width factor passed to the oracle")
	f.Float64Var(&opts.heightFactor, "height-factor", 0, "world height factor passed to the oracle")
	f.Float64Var(&opts.timeFactor, "time-factor", 0, "time factor passed to the oracle")
	f.StringVar(&opts.oracleKind, "oracle", "", "contest oracle (exec|fitness)")
	f.StringVar(&opts.oracleCommand, "oracle-command", "", "simulator command for the exec oracle")
	f.Int64Var(&opts.oracleSeed, "oracle-seed", 0, "random seed for the fitness oracle")
	f.Uint64Var(&opts.oracleRetries, "oracle-retries", 0, "retries per failed contest")
	if policy == "win-count" {
		f.IntVar(&opts.numWins, "num-wins", 0, "wins out of num-trials needed to beat a generation")
		f.Float64Var(&opts.alpha, "alpha", 0, "derive num-wins from a one-sided binomial test at this level")
	} else {
		f.IntVar(&opts.numTop, "num-top", 0, "top seeds per generation that compete")
	}
	return cmd
}

func (o *compareOptions) run(cmd *cobra.Command) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}
	o.applyFlags(cmd, cfg)
	if o.runID == "" && cfg.Snapshots.Dir == "" {
		return errors.New("either --snapshots or --run is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	oracle, err := api.NewOracle(cfg.Oracle)
	if err != nil {
		return err
	}
	client, err := o.newClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	req := api.CompareRequest{
		Policy:      o.policy,
		RunID:       o.runID,
		SnapshotExt: cfg.Snapshots.Ext,
		AnalysisDir: cfg.AnalysisDir,
		Generations: &cfg.Generations,
		NumTop:      cfg.NumTop,
		NumTrials:   cfg.NumTrials,
		NumWins:     cfg.NumWins,
		Alpha:       cfg.Alpha,
		Workers:     cfg.Workers,
		Environment: cfg.Environment,
		Oracle:      oracle,
	}
	if o.runID == "" {
		req.SnapshotDir = cfg.Snapshots.Dir
	}

	summary, err := client.Compare(cmd.Context(), req)
	if err != nil {
		return err
	}
	if o.jsonOut {
		return o.writeJSON(summary)
	}

	discrete := o.policy == "win-count"
	for _, s := range summary.Scores {
		fmt.Fprintf(o.stdout, "generation=%d score=%s contests=%s\n", s.Generation, report.FormatScore(s.Score, discrete), humanize.Comma(int64(s.Contests)))
	}
	fmt.Fprintf(o.stdout, "tournament_id=%s run_id=%s policy=%s trials=%d contests=%s report=%s\n",
		summary.TournamentID,
		summary.RunID,
		summary.Policy,
		summary.NumTrials,
		humanize.Comma(int64(summary.Contests)),
		summary.ReportPath,
	)
	return nil
}

// applyFlags overlays the flags that were set explicitly on cfg.
func (o *compareOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("snapshots") {
		cfg.Snapshots.Dir = o.snapshotDir
	}
	if f.Changed("ext") {
		cfg.Snapshots.Ext = o.snapshotExt
	}
	if f.Changed("analysis-dir") {
		cfg.AnalysisDir = o.analysisDir
	}
	if f.Changed("generations") {
		cfg.Generations = o.generations
	}
	if f.Changed("num-top") {
		cfg.NumTop = o.numTop
	}
	if f.Changed("num-trials") {
		cfg.NumTrials = o.numTrials
	}
	if f.Changed("num-wins") {
		cfg.NumWins = o.numWins
	}
	if f.Changed("alpha") {
		cfg.Alpha = o.alpha
	}
	if f.Changed("workers") {
		cfg.Workers = o.workers
	}
	if f.Changed("width-factor") {
		cfg.Environment.WidthFactor = o.widthFactor
	}
	if f.Changed("height-factor") {
		cfg.Environment.HeightFactor = o.heightFactor
	}
	if f.Changed("time-factor") {
		cfg.Environment.TimeFactor = o.timeFactor
	}
	if f.Changed("oracle") {
		cfg.Oracle.Kind = o.oracleKind
	}
	if f.Changed("oracle-command") {
		cfg.Oracle.Command = o.oracleCommand
	}
	if f.Changed("oracle-seed") {
		cfg.Oracle.Seed = o.oracleSeed
	}
	if f.Changed("oracle-retries") {
		cfg.Oracle.Retries = o.oracleRetries
	}
}
