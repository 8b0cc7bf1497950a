package seedcontest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"seedcontest/internal/config"
	"seedcontest/internal/contest"
	"seedcontest/internal/logging"
	"seedcontest/internal/model"
	"seedcontest/internal/report"
	"seedcontest/internal/snapshot"
	"seedcontest/internal/storage"
	"seedcontest/internal/tournament"
)

const (
	defaultDBPath = "seedcontest.db"
	defaultNumTop = 10
)

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
}

type Client struct {
	store       storage.Store
	logger      *slog.Logger
	initialized bool
}

// CompareRequest describes one tournament. Snapshots come from SnapshotDir
// when it is set, otherwise from the run RunID previously imported into
// the store.
type CompareRequest struct {
	Policy      string
	SnapshotDir string
	SnapshotExt string
	RunID       string
	AnalysisDir string
	// Generations is the last generation index. Nil or negative takes it
	// from the snapshots found.
	Generations *int
	NumTop      int
	NumTrials   int
	NumWins     int
	// Alpha, when > 0, replaces NumWins by the smallest significant win
	// count for NumTrials trials. With neither set, win-count uses
	// tournament.DefaultAlpha.
	Alpha       float64
	Workers     int
	Environment contest.Environment
	Oracle      contest.Oracle
}

type CompareSummary struct {
	TournamentID   string                  `json:"tournament_id"`
	RunID          string                  `json:"run_id"`
	Policy         string                  `json:"policy"`
	ReportPath     string                  `json:"report_path"`
	SummaryPath    string                  `json:"summary_path"`
	ReportRows     int                     `json:"report_rows"`
	NumGenerations int                     `json:"num_generations"`
	NumTrials      int                     `json:"num_trials"`
	NumWins        int                     `json:"num_wins,omitempty"`
	Contests       int                     `json:"contests"`
	Scores         []model.GenerationScore `json:"scores"`
}

type ImportRequest struct {
	Dir         string
	Ext         string
	RunID       string
	Generations *int
}

type ImportSummary struct {
	RunID       string `json:"run_id"`
	Generations int    `json:"generations"`
	Seeds       int    `json:"seeds"`
}

type ExportRequest struct {
	RunID string
	Dir   string
	Ext   string
}

type TournamentsRequest struct {
	RunID string
	Limit int
}

type FusionRequest struct {
	// LogPath is the evolution log. When empty it is derived from the run
	// prefix of the snapshots in Dir.
	LogPath string
	Dir     string
	Ext     string
	OutPath string
}

type FusionSummary struct {
	ReportPath string
	Events     []report.FusionEvent
}

type ThresholdSummary struct {
	NumTrials int     `json:"num_trials"`
	Alpha     float64 `json:"alpha"`
	NumWins   int     `json:"num_wins"`
	PValue    float64 `json:"p_value"`
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// NewOracle builds the contest oracle described by cfg, wrapped with retries
// when cfg asks for them.
func NewOracle(cfg config.OracleConfig) (contest.Oracle, error) {
	var oracle contest.Oracle
	switch cfg.Kind {
	case config.OracleExec:
		execOracle, err := contest.NewExecOracle(cfg.Command, cfg.Args, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		oracle = execOracle
	case config.OracleFitness:
		oracle = contest.NewFitnessOracle(cfg.Seed)
	default:
		return nil, fmt.Errorf("unsupported oracle: %s", cfg.Kind)
	}
	return contest.WithRetry(oracle, cfg.Retries, cfg.RetryDelay), nil
}

// Compare loads a run, scores every generation against the earlier ones
// and writes the TSV report plus its JSON summary. All snapshot and elite
// checks happen before the report file is created. If a contest fails the
// rows already written stay in the report, which then has no footer.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (CompareSummary, error) {
	if err := c.Init(ctx); err != nil {
		return CompareSummary{}, err
	}
	if req.Oracle == nil {
		return CompareSummary{}, errors.New("contest oracle is required")
	}

	policy, cfg, err := resolvePolicy(req)
	if err != nil {
		return CompareSummary{}, err
	}

	run, snapshotPath, err := c.loadRun(ctx, req)
	if err != nil {
		return CompareSummary{}, err
	}

	engine, err := tournament.NewEngine(cfg, req.Oracle, policy, tournament.WithLogger(c.logger))
	if err != nil {
		return CompareSummary{}, err
	}
	if _, err := engine.Elites(run.Populations); err != nil {
		return CompareSummary{}, err
	}

	analysisDir := req.AnalysisDir
	if analysisDir == "" {
		analysisDir = req.SnapshotDir
	}
	if analysisDir == "" {
		analysisDir = "."
	}
	reportPath := report.FileName(policy, cfg.NumTop, cfg.NumTrials, analysisDir, run.ID)
	tsv, err := report.CreateTSV(reportPath, report.HeaderFor(policy, cfg, snapshotPath), policy.Discrete())
	if err != nil {
		return CompareSummary{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		_ = tsv.Close()
		return CompareSummary{}, err
	}
	c.logger.Info("comparing generations", "tournament", id.String(), "run", run.ID, "report", reportPath)

	scores, runErr := engine.Run(ctx, run.Populations, tsv)
	if runErr == nil {
		runErr = tsv.Complete()
	}
	if err := tsv.Close(); err != nil && runErr == nil {
		runErr = err
	}

	summary := CompareSummary{
		TournamentID:   id.String(),
		RunID:          run.ID,
		Policy:         policy.Name(),
		ReportPath:     reportPath,
		SummaryPath:    report.SummaryPath(reportPath),
		ReportRows:     tsv.Rows(),
		NumGenerations: run.NumGenerations(),
		NumTrials:      cfg.NumTrials,
		Scores:         scores,
	}
	var threshold float64
	if wc, ok := policy.(tournament.WinCount); ok {
		summary.NumWins = wc.NumWins
		threshold = wc.Threshold()
	}
	for _, s := range scores {
		summary.Contests += s.Contests
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	if err := report.WriteSummary(summary.SummaryPath, report.Summary{
		TournamentID:   summary.TournamentID,
		RunID:          run.ID,
		Policy:         policy.Name(),
		SnapshotDir:    snapshotPath,
		NumGenerations: summary.NumGenerations,
		NumTop:         cfg.NumTop,
		NumTrials:      cfg.NumTrials,
		NumWins:        summary.NumWins,
		Threshold:      threshold,
		WidthFactor:    cfg.Environment.WidthFactor,
		HeightFactor:   cfg.Environment.HeightFactor,
		TimeFactor:     cfg.Environment.TimeFactor,
		Contests:       summary.Contests,
		Complete:       runErr == nil,
		CreatedAtUTC:   createdAt,
		Scores:         scores,
	}); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return summary, runErr
	}

	record := model.TournamentRecord{
		VersionedRecord: storage.Versioned(),
		ID:              summary.TournamentID,
		RunID:           run.ID,
		Policy:          policy.Name(),
		NumGenerations:  summary.NumGenerations,
		NumTop:          cfg.NumTop,
		NumTrials:       cfg.NumTrials,
		NumWins:         summary.NumWins,
		Workers:         cfg.Workers,
		CreatedAtUTC:    createdAt,
		Scores:          scores,
	}
	if err := c.store.SaveTournament(ctx, record); err != nil {
		return summary, err
	}
	return summary, nil
}

func resolvePolicy(req CompareRequest) (tournament.Policy, tournament.Config, error) {
	policy, err := tournament.ParsePolicy(req.Policy, 0, 0)
	if err != nil {
		return nil, tournament.Config{}, err
	}
	cfg := tournament.Config{
		NumTop:      req.NumTop,
		NumTrials:   req.NumTrials,
		Workers:     req.Workers,
		Environment: req.Environment,
	}
	if cfg.NumTop == 0 {
		cfg.NumTop = defaultNumTop
	}
	if cfg.NumTrials == 0 {
		cfg.NumTrials = tournament.DefaultTrials(policy)
	}
	if !policy.Discrete() {
		return policy, cfg, nil
	}

	numWins := req.NumWins
	alpha := req.Alpha
	if numWins == 0 && alpha == 0 {
		alpha = tournament.DefaultAlpha
	}
	if alpha > 0 {
		wins, _, err := tournament.SignificantWins(cfg.NumTrials, alpha)
		if err != nil {
			return nil, tournament.Config{}, fmt.Errorf("num wins: %w", err)
		}
		numWins = wins
	}
	policy, err = tournament.ParsePolicy(req.Policy, numWins, cfg.NumTrials)
	if err != nil {
		return nil, tournament.Config{}, err
	}
	return policy, cfg, nil
}

func (c *Client) loadRun(ctx context.Context, req CompareRequest) (snapshot.Run, string, error) {
	if req.SnapshotDir != "" {
		run, err := snapshot.DirSource{Dir: req.SnapshotDir, Ext: req.SnapshotExt}.Load(ctx, generationsOrInfer(req.Generations))
		return run, req.SnapshotDir, err
	}
	if req.RunID == "" {
		return snapshot.Run{}, "", errors.New("snapshot dir or run id is required")
	}
	run, err := snapshot.StoreSource{Store: c.store, RunID: req.RunID}.Load(ctx, generationsOrInfer(req.Generations))
	return run, "store:" + req.RunID, err
}

func generationsOrInfer(n *int) int {
	if n == nil {
		return snapshot.InferGenerations
	}
	return *n
}

// Import copies a snapshot directory into the store.
func (c *Client) Import(ctx context.Context, req ImportRequest) (ImportSummary, error) {
	if err := c.Init(ctx); err != nil {
		return ImportSummary{}, err
	}
	if req.Dir == "" {
		return ImportSummary{}, errors.New("snapshot dir is required")
	}
	run, err := snapshot.DirSource{Dir: req.Dir, Ext: req.Ext}.Load(ctx, generationsOrInfer(req.Generations))
	if err != nil {
		return ImportSummary{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = run.ID
	}

	summary := ImportSummary{RunID: runID, Generations: run.NumGenerations()}
	for _, population := range run.Populations {
		population.RunID = runID
		population.VersionedRecord = storage.Versioned()
		if err := c.store.SavePopulation(ctx, population); err != nil {
			return summary, fmt.Errorf("save generation %d: %w", population.Generation, err)
		}
		summary.Seeds += len(population.Seeds)
	}
	c.logger.Info("imported run", "run", runID, "generations", summary.Generations, "seeds", summary.Seeds)
	return summary, nil
}

// Export writes a stored run back out as a snapshot directory.
func (c *Client) Export(ctx context.Context, req ExportRequest) (int, error) {
	if err := c.Init(ctx); err != nil {
		return 0, err
	}
	if req.RunID == "" || req.Dir == "" {
		return 0, errors.New("run id and output dir are required")
	}
	run, err := snapshot.StoreSource{Store: c.store, RunID: req.RunID}.Load(ctx, snapshot.InferGenerations)
	if err != nil {
		return 0, err
	}
	if err := snapshot.WriteDir(req.Dir, req.Ext, run); err != nil {
		return 0, err
	}
	return len(run.Populations), nil
}

// Tournaments lists recorded tournaments, newest first. An empty RunID
// lists every run.
func (c *Client) Tournaments(ctx context.Context, req TournamentsRequest) ([]model.TournamentRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	records, err := c.store.ListTournaments(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	out := make([]model.TournamentRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (c *Client) Tournament(ctx context.Context, id string) (model.TournamentRecord, error) {
	if err := c.Init(ctx); err != nil {
		return model.TournamentRecord{}, err
	}
	record, ok, err := c.store.GetTournament(ctx, id)
	if err != nil {
		return model.TournamentRecord{}, err
	}
	if !ok {
		return model.TournamentRecord{}, fmt.Errorf("tournament not found: %s", id)
	}
	return record, nil
}

// Fusion extracts fusion events from a run's evolution log into a TSV.
func (c *Client) Fusion(_ context.Context, req FusionRequest) (FusionSummary, error) {
	logPath := req.LogPath
	if logPath == "" {
		if req.Dir == "" {
			return FusionSummary{}, errors.New("log path or snapshot dir is required")
		}
		names, err := snapshot.Discover(req.Dir, req.Ext)
		if err != nil {
			return FusionSummary{}, err
		}
		if len(names) == 0 {
			return FusionSummary{}, fmt.Errorf("no snapshots in %s to derive the log name from", req.Dir)
		}
		name, err := snapshot.ParseName(names[0])
		if err != nil {
			return FusionSummary{}, err
		}
		logPath = report.LogFileName(req.Dir, name.Prefix)
	}

	outPath := req.OutPath
	if outPath == "" {
		dir := req.Dir
		if dir == "" {
			dir = filepath.Dir(logPath)
		}
		outPath = report.FusionFileName(dir, strings.TrimSuffix(filepath.Base(logPath), filepath.Ext(logPath)))
	}

	in, err := os.Open(logPath)
	if err != nil {
		return FusionSummary{}, err
	}
	defer in.Close()
	events, err := report.ParseFusion(in)
	if err != nil {
		return FusionSummary{}, fmt.Errorf("%s: %w", logPath, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return FusionSummary{}, err
	}
	if err := report.WriteFusion(out, events); err != nil {
		_ = out.Close()
		return FusionSummary{}, err
	}
	if err := out.Close(); err != nil {
		return FusionSummary{}, err
	}
	c.logger.Info("fusion report written", "events", len(events), "report", outPath)
	return FusionSummary{ReportPath: outPath, Events: events}, nil
}

// Threshold returns the smallest win count out of numTrials that is
// significant at alpha.
func Threshold(numTrials int, alpha float64) (ThresholdSummary, error) {
	wins, p, err := tournament.SignificantWins(numTrials, alpha)
	if err != nil {
		return ThresholdSummary{}, err
	}
	return ThresholdSummary{NumTrials: numTrials, Alpha: alpha, NumWins: wins, PValue: p}, nil
}
