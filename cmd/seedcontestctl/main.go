package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"seedcontest/internal/config"
	"seedcontest/internal/logging"
	api "seedcontest/pkg/seedcontest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	storeKind  string
	dbPath     string
	jsonOut    bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "seedcontestctl",
		Short:         "Score evolved seed generations against their predecessors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (info|debug|trace)")
	cmd.PersistentFlags().StringVar(&opts.storeKind, "store", "", "store backend (memory|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db-path", "", "sqlite database path")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "emit results as JSON")

	cmd.AddCommand(newCompareCommand(opts, "compare-past-winners", "past-winners",
		"Score each generation by its average margin over the top seeds of every earlier generation"))
	cmd.AddCommand(newCompareCommand(opts, "compare-win-count", "win-count",
		"Count the earlier generations whose top seed the new top seed beats significantly"))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newTournamentsCommand(opts))
	cmd.AddCommand(newReportFusionCommand(opts))
	cmd.AddCommand(newThresholdCommand(opts))
	return cmd
}

// loadConfig reads the config file and environment, then applies the global
// flags that were set explicitly.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if flags.Changed("store") {
		cfg.Store.Kind = o.storeKind
	}
	if flags.Changed("db-path") {
		cfg.Store.DBPath = o.dbPath
	}
	return cfg, nil
}

func (o *rootOptions) newClient(cfg *config.Config) (*api.Client, error) {
	return api.New(api.Options{
		StoreKind: cfg.Store.Kind,
		DBPath:    cfg.Store.DBPath,
		Logger:    logging.NewLogger(cfg.Logging.Level, o.stderr),
	})
}

func (o *rootOptions) writeJSON(value any) error {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
