// Package tournament scores each generation of an evolutionary run against
// every earlier generation by pairwise contests between elite seeds.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"seedcontest/internal/contest"
	"seedcontest/internal/logging"
	"seedcontest/internal/model"
)

var ErrPopulationTooSmall = errors.New("population smaller than elite size")

type Config struct {
	NumTop      int
	NumTrials   int
	Workers     int
	Environment contest.Environment
}

// Sink receives each generation score as soon as it is computed.
type Sink interface {
	WriteScore(score model.GenerationScore) error
}

type SinkFunc func(score model.GenerationScore) error

func (f SinkFunc) WriteScore(score model.GenerationScore) error {
	return f(score)
}

// Pairing is one planned contest: OldRank of generation Old against NewRank
// of the scored Generation.
type Pairing struct {
	Generation int
	Old        int
	NewRank    int
	OldRank    int
}

type Engine struct {
	cfg    Config
	oracle contest.Oracle
	policy Policy
	logger *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(cfg Config, oracle contest.Oracle, policy Policy, opts ...Option) (*Engine, error) {
	if oracle == nil {
		return nil, fmt.Errorf("contest oracle is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("scoring policy is required")
	}
	if cfg.NumTrials <= 0 {
		return nil, fmt.Errorf("num trials must be > 0, got %d", cfg.NumTrials)
	}
	if policy.EliteSize(cfg.NumTop) <= 0 {
		return nil, fmt.Errorf("num top must be > 0, got %d", cfg.NumTop)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if err := policy.Validate(cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		oracle: oracle,
		policy: policy,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) EliteSize() int {
	return e.policy.EliteSize(e.cfg.NumTop)
}

// Elites checks that populations[g] holds generation g with enough seeds and
// returns the top seeds of each generation.
func (e *Engine) Elites(populations []model.Population) ([][]model.Seed, error) {
	if len(populations) == 0 {
		return nil, fmt.Errorf("no generations to score")
	}
	size := e.EliteSize()
	elites := make([][]model.Seed, len(populations))
	for generation, population := range populations {
		if population.Generation != generation {
			return nil, fmt.Errorf("population at index %d holds generation %d", generation, population.Generation)
		}
		if len(population.Seeds) < size {
			return nil, fmt.Errorf("%w: generation %d has %d seeds, need %d", ErrPopulationTooSmall, generation, len(population.Seeds), size)
		}
		elites[generation] = population.Top(size)
	}
	return elites, nil
}

// Plan lists the contests that score one generation, in the order they are
// issued: earlier generation, then new seed, then old seed.
func (e *Engine) Plan(generation int) []Pairing {
	size := e.EliteSize()
	plan := make([]Pairing, 0, generation*size*size)
	for old := 0; old < generation; old++ {
		for newRank := 0; newRank < size; newRank++ {
			for oldRank := 0; oldRank < size; oldRank++ {
				plan = append(plan, Pairing{Generation: generation, Old: old, NewRank: newRank, OldRank: oldRank})
			}
		}
	}
	return plan
}

// ContestBudget is the number of oracle calls needed to score generations
// 0..numGenerations.
func (e *Engine) ContestBudget(numGenerations int) int {
	size := e.EliteSize()
	return size * size * numGenerations * (numGenerations + 1) / 2
}

// Run scores every generation in increasing order and hands each score to
// sink before moving on. All preconditions are checked before the first
// contest. On error the scores already emitted are returned with it.
func (e *Engine) Run(ctx context.Context, populations []model.Population, sink Sink) ([]model.GenerationScore, error) {
	elites, err := e.Elites(populations)
	if err != nil {
		return nil, err
	}
	last := len(elites) - 1

	e.logger.Info("tournament starting",
		"policy", e.policy.Name(),
		"generations", last,
		"elite", e.EliteSize(),
		"trials", e.cfg.NumTrials,
		"workers", e.cfg.Workers,
		"contests", humanize.Comma(int64(e.ContestBudget(last))),
	)

	scores := make([]model.GenerationScore, 0, len(elites))
	for generation := 0; generation <= last; generation++ {
		score, err := e.scoreGeneration(ctx, elites, generation)
		if err != nil {
			return scores, err
		}
		if sink != nil {
			if err := sink.WriteScore(score); err != nil {
				return scores, fmt.Errorf("write score for generation %d: %w", generation, err)
			}
		}
		scores = append(scores, score)
		e.logger.Info("generation scored", "generation", generation, "score", score.Score, "contests", score.Contests)
	}
	return scores, nil
}

func (e *Engine) scoreGeneration(ctx context.Context, elites [][]model.Seed, generation int) (model.GenerationScore, error) {
	if generation == 0 {
		return model.GenerationScore{Generation: 0, Score: 0}, nil
	}

	plan := e.Plan(generation)
	newScores := make([]float64, len(plan))
	if err := e.contestAll(ctx, elites, plan, newScores); err != nil {
		return model.GenerationScore{}, err
	}

	size := e.EliteSize()
	perOld := size * size
	score := 0.0
	for old := 0; old < generation; old++ {
		score += e.policy.Contribution(newScores[old*perOld : (old+1)*perOld])
	}
	return model.GenerationScore{Generation: generation, Score: score, Contests: len(plan)}, nil
}

// contestAll fills out[i] with the new-seed score of plan[i]. Each task owns
// its slot, so the later reduction sees the same terms in the same order
// whatever the worker count.
func (e *Engine) contestAll(ctx context.Context, elites [][]model.Seed, plan []Pairing, out []float64) error {
	if e.cfg.Workers <= 1 {
		for i, pairing := range plan {
			score, err := e.contest(ctx, elites, pairing)
			if err != nil {
				return err
			}
			out[i] = score
		}
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)
	for i, pairing := range plan {
		group.Go(func() error {
			score, err := e.contest(groupCtx, elites, pairing)
			if err != nil {
				return err
			}
			out[i] = score
			return nil
		})
	}
	return group.Wait()
}

func (e *Engine) contest(ctx context.Context, elites [][]model.Seed, p Pairing) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	oldSeed := elites[p.Old][p.OldRank]
	newSeed := elites[p.Generation][p.NewRank]

	outcome, err := e.oracle.Contest(ctx, oldSeed, newSeed, e.cfg.Environment, e.cfg.NumTrials)
	if err == nil {
		err = outcome.Validate()
	}
	if err != nil {
		return 0, fmt.Errorf("contest gen %d seed %d vs gen %d seed %d: %w", p.Old, p.OldRank, p.Generation, p.NewRank, err)
	}

	e.logger.Log(ctx, logging.LevelTrace, "contest",
		"generation", p.Generation,
		"old_generation", p.Old,
		"new_rank", p.NewRank,
		"old_rank", p.OldRank,
		"old_score", outcome.ScoreA,
		"new_score", outcome.ScoreB,
	)
	return outcome.ScoreB, nil
}
