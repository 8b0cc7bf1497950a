package tournament

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedcontest/internal/contest"
	"seedcontest/internal/logging"
	"seedcontest/internal/model"
)

func testPopulations(numGenerations, seedsPerGeneration int) []model.Population {
	pops := make([]model.Population, numGenerations+1)
	for g := range pops {
		seeds := make([]model.Seed, seedsPerGeneration)
		for i := range seeds {
			seeds[i] = model.Seed{ID: fmt.Sprintf("g%d-s%d", g, i), Fitness: float64(g)}
		}
		pops[g] = model.Population{RunID: "run", Generation: g, Seeds: seeds}
	}
	return pops
}

func constantOracle(newScore float64) contest.Oracle {
	return contest.OracleFunc(func(context.Context, model.Seed, model.Seed, contest.Environment, int) (contest.Outcome, error) {
		return contest.Outcome{ScoreA: 1 - newScore, ScoreB: newScore}, nil
	})
}

// seedGeneration decodes the generation from ids built by testPopulations.
func seedGeneration(t *testing.T, seed model.Seed) int {
	var g, s int
	if _, err := fmt.Sscanf(seed.ID, "g%d-s%d", &g, &s); err != nil {
		t.Errorf("unexpected seed id %q", seed.ID)
	}
	return g
}

type countingSink struct {
	scores []model.GenerationScore
}

func (s *countingSink) WriteScore(score model.GenerationScore) error {
	s.scores = append(s.scores, score)
	return nil
}

func newPastWinners(t *testing.T, numTop, workers int, oracle contest.Oracle) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{NumTop: numTop, NumTrials: 2, Workers: workers}, oracle, PastWinners{})
	require.NoError(t, err)
	return engine
}

func newWinCount(t *testing.T, numWins, numTrials int, oracle contest.Oracle) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{NumTop: 10, NumTrials: numTrials}, oracle, WinCount{NumWins: numWins, NumTrials: numTrials})
	require.NoError(t, err)
	return engine
}

func scoreValues(scores []model.GenerationScore) []float64 {
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = s.Score
	}
	return out
}

func TestNewEngineValidatesConfig(t *testing.T) {
	oracle := constantOracle(0.5)
	_, err := NewEngine(Config{NumTop: 0, NumTrials: 2}, oracle, PastWinners{})
	assert.Error(t, err)
	_, err = NewEngine(Config{NumTop: 3, NumTrials: 0}, oracle, PastWinners{})
	assert.Error(t, err)
	_, err = NewEngine(Config{NumTop: 3, NumTrials: 2}, nil, PastWinners{})
	assert.Error(t, err)
	_, err = NewEngine(Config{NumTop: 3, NumTrials: 2}, oracle, nil)
	assert.Error(t, err)
	_, err = NewEngine(Config{NumTop: 3, NumTrials: 40}, oracle, WinCount{NumWins: 32, NumTrials: 50})
	assert.Error(t, err)
	_, err = NewEngine(Config{NumTop: 3, NumTrials: 50}, oracle, WinCount{NumWins: 51, NumTrials: 50})
	assert.Error(t, err)

	engine, err := NewEngine(Config{NumTop: 3, NumTrials: 2, Workers: -4}, oracle, PastWinners{})
	require.NoError(t, err)
	assert.Equal(t, 1, engine.cfg.Workers)
}

func TestGenerationZeroScoresZero(t *testing.T) {
	for _, engine := range []*Engine{
		newPastWinners(t, 2, 1, constantOracle(1)),
		newWinCount(t, 32, 50, constantOracle(1)),
	} {
		scores, err := engine.Run(context.Background(), testPopulations(0, 2), nil)
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Equal(t, 0.0, scores[0].Score)
		assert.Equal(t, 0, scores[0].Contests)
	}
}

func TestAlwaysWinningScoresGenerationIndex(t *testing.T) {
	pops := testPopulations(3, 3)
	want := []float64{0, 1, 2, 3}

	scores, err := newPastWinners(t, 3, 1, constantOracle(1)).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	assert.Equal(t, want, scoreValues(scores))

	scores, err = newWinCount(t, 50, 50, constantOracle(1)).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	assert.Equal(t, want, scoreValues(scores))
}

func TestContestLinesLoggedAtTrace(t *testing.T) {
	for _, tc := range []struct {
		level    string
		contests bool
	}{
		{level: "debug", contests: false},
		{level: "trace", contests: true},
	} {
		var buf bytes.Buffer
		engine, err := NewEngine(Config{NumTop: 1, NumTrials: 2, Workers: 1}, constantOracle(1), PastWinners{},
			WithLogger(logging.NewLogger(tc.level, &buf)))
		require.NoError(t, err)
		_, err = engine.Run(context.Background(), testPopulations(2, 1), nil)
		require.NoError(t, err)

		out := buf.String()
		assert.Contains(t, out, "msg=\"generation scored\"", tc.level)
		if tc.contests {
			assert.Contains(t, out, "level=TRACE msg=contest", tc.level)
		} else {
			assert.NotContains(t, out, "msg=contest", tc.level)
		}
	}
}

func TestEvenContestsScoreZero(t *testing.T) {
	scores, err := newPastWinners(t, 2, 1, constantOracle(0.5)).Run(context.Background(), testPopulations(4, 2), nil)
	require.NoError(t, err)
	for _, s := range scores {
		assert.InDelta(t, 0, s.Score, 1e-12, "generation %d", s.Generation)
	}
}

func TestAlwaysLosingScoresNegativeGenerationIndex(t *testing.T) {
	scores, err := newPastWinners(t, 2, 1, constantOracle(0)).Run(context.Background(), testPopulations(3, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, -1, -2, -3}, scoreValues(scores))

	scores, err = newWinCount(t, 32, 50, constantOracle(0)).Run(context.Background(), testPopulations(3, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, scoreValues(scores))
}

func TestScoresStayWithinBounds(t *testing.T) {
	pops := testPopulations(5, 3)
	oracle := contest.NewFitnessOracle(7)

	scores, err := newPastWinners(t, 3, 1, oracle).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	for _, s := range scores {
		g := float64(s.Generation)
		assert.GreaterOrEqual(t, s.Score, -g)
		assert.LessOrEqual(t, s.Score, g)
	}

	engine, err := NewEngine(Config{NumTop: 3, NumTrials: 10}, oracle, WinCount{NumWins: 6, NumTrials: 10})
	require.NoError(t, err)
	scores, err = engine.Run(context.Background(), pops, nil)
	require.NoError(t, err)
	for _, s := range scores {
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, float64(s.Generation))
		assert.Equal(t, float64(int(s.Score)), s.Score)
	}
}

func TestWinCountThresholdIsInclusive(t *testing.T) {
	pops := testPopulations(1, 1)

	scores, err := newWinCount(t, 32, 50, constantOracle(32.0/50.0)).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, scoreValues(scores))

	scores, err = newWinCount(t, 32, 50, constantOracle(31.0/50.0)).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, scoreValues(scores))
}

func TestWinCountOnlyContestsTopSeeds(t *testing.T) {
	var calls atomic.Int64
	oracle := contest.OracleFunc(func(_ context.Context, a, b model.Seed, _ contest.Environment, _ int) (contest.Outcome, error) {
		calls.Add(1)
		assert.Regexp(t, `-s0$`, a.ID)
		assert.Regexp(t, `-s0$`, b.ID)
		return contest.Outcome{ScoreA: 0, ScoreB: 1}, nil
	})
	_, err := newWinCount(t, 32, 50, oracle).Run(context.Background(), testPopulations(4, 5), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4*5/2, calls.Load())
}

func TestContestCountPerGeneration(t *testing.T) {
	var calls atomic.Int64
	oracle := contest.OracleFunc(func(context.Context, model.Seed, model.Seed, contest.Environment, int) (contest.Outcome, error) {
		calls.Add(1)
		return contest.Outcome{ScoreA: 0.5, ScoreB: 0.5}, nil
	})
	engine := newPastWinners(t, 3, 1, oracle)
	scores, err := engine.Run(context.Background(), testPopulations(4, 3), nil)
	require.NoError(t, err)
	for _, s := range scores {
		assert.Equal(t, s.Generation*9, s.Contests)
	}
	assert.EqualValues(t, engine.ContestBudget(4), calls.Load())
	assert.Equal(t, 9*4*5/2, engine.ContestBudget(4))
}

func TestPlanOrder(t *testing.T) {
	engine := newPastWinners(t, 2, 1, constantOracle(0.5))
	plan := engine.Plan(2)
	want := []Pairing{
		{Generation: 2, Old: 0, NewRank: 0, OldRank: 0},
		{Generation: 2, Old: 0, NewRank: 0, OldRank: 1},
		{Generation: 2, Old: 0, NewRank: 1, OldRank: 0},
		{Generation: 2, Old: 0, NewRank: 1, OldRank: 1},
		{Generation: 2, Old: 1, NewRank: 0, OldRank: 0},
		{Generation: 2, Old: 1, NewRank: 0, OldRank: 1},
		{Generation: 2, Old: 1, NewRank: 1, OldRank: 0},
		{Generation: 2, Old: 1, NewRank: 1, OldRank: 1},
	}
	assert.Equal(t, want, plan)
	assert.Empty(t, engine.Plan(0))
}

func TestSequentialRunIssuesContestsInPlanOrder(t *testing.T) {
	var got []string
	oracle := contest.OracleFunc(func(_ context.Context, a, b model.Seed, _ contest.Environment, _ int) (contest.Outcome, error) {
		got = append(got, a.ID+"/"+b.ID)
		return contest.Outcome{ScoreA: 0.5, ScoreB: 0.5}, nil
	})
	_, err := newPastWinners(t, 2, 1, oracle).Run(context.Background(), testPopulations(2, 2), nil)
	require.NoError(t, err)
	want := []string{
		"g0-s0/g1-s0", "g0-s1/g1-s0", "g0-s0/g1-s1", "g0-s1/g1-s1",
		"g0-s0/g2-s0", "g0-s1/g2-s0", "g0-s0/g2-s1", "g0-s1/g2-s1",
		"g1-s0/g2-s0", "g1-s1/g2-s0", "g1-s0/g2-s1", "g1-s1/g2-s1",
	}
	assert.Equal(t, want, got)
}

func TestOldSeedIsFirstArgument(t *testing.T) {
	oracle := contest.OracleFunc(func(_ context.Context, a, b model.Seed, _ contest.Environment, _ int) (contest.Outcome, error) {
		assert.Less(t, seedGeneration(t, a), seedGeneration(t, b))
		return contest.Outcome{ScoreA: 0.25, ScoreB: 0.75}, nil
	})
	scores, err := newPastWinners(t, 2, 1, oracle).Run(context.Background(), testPopulations(2, 2), nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, scoreValues(scores), 1e-12)
}

func TestEnvironmentAndTrialsForwarded(t *testing.T) {
	env := contest.Environment{WidthFactor: 6, HeightFactor: 3, TimeFactor: 6}
	oracle := contest.OracleFunc(func(_ context.Context, _, _ model.Seed, got contest.Environment, numTrials int) (contest.Outcome, error) {
		assert.Equal(t, env, got)
		assert.Equal(t, 2, numTrials)
		return contest.Outcome{ScoreA: 0.5, ScoreB: 0.5}, nil
	})
	engine, err := NewEngine(Config{NumTop: 1, NumTrials: 2, Environment: env}, oracle, PastWinners{})
	require.NoError(t, err)
	_, err = engine.Run(context.Background(), testPopulations(2, 1), nil)
	require.NoError(t, err)
}

// pairOracle returns a fixed score per (old, new) seed pair so that runs are
// reproducible whatever order contests are issued in.
func pairOracle() contest.Oracle {
	return contest.OracleFunc(func(_ context.Context, a, b model.Seed, _ contest.Environment, _ int) (contest.Outcome, error) {
		h := 0
		for _, r := range a.ID + "|" + b.ID {
			h = (h*31 + int(r)) % 1009
		}
		score := float64(h%101) / 100
		return contest.Outcome{ScoreA: 1 - score, ScoreB: score}, nil
	})
}

func TestRunIsIdempotentForFixedOracle(t *testing.T) {
	pops := testPopulations(4, 3)
	first, err := newPastWinners(t, 3, 1, pairOracle()).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	second, err := newPastWinners(t, 3, 1, pairOracle()).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParallelRunMatchesSequential(t *testing.T) {
	pops := testPopulations(5, 4)
	sequential, err := newPastWinners(t, 4, 1, pairOracle()).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	for _, workers := range []int{2, 3, 8} {
		parallel, err := newPastWinners(t, 4, workers, pairOracle()).Run(context.Background(), pops, nil)
		require.NoError(t, err)
		assert.Equal(t, sequential, parallel, "workers=%d", workers)
	}
}

func TestParallelRunRespectsWorkerLimit(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	oracle := contest.OracleFunc(func(context.Context, model.Seed, model.Seed, contest.Environment, int) (contest.Outcome, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		defer func() {
			mu.Lock()
			active--
			mu.Unlock()
		}()
		return contest.Outcome{ScoreA: 0.5, ScoreB: 0.5}, nil
	})
	_, err := newPastWinners(t, 3, 2, oracle).Run(context.Background(), testPopulations(3, 3), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
}

func TestSinkReceivesScoresInOrder(t *testing.T) {
	sink := &countingSink{}
	scores, err := newPastWinners(t, 2, 1, constantOracle(1)).Run(context.Background(), testPopulations(3, 2), sink)
	require.NoError(t, err)
	assert.Equal(t, scores, sink.scores)
	for i, s := range sink.scores {
		assert.Equal(t, i, s.Generation)
	}
}

func TestEndToEndThreeGenerations(t *testing.T) {
	pops := testPopulations(2, 2)
	var calls atomic.Int64
	oracle := contest.OracleFunc(func(context.Context, model.Seed, model.Seed, contest.Environment, int) (contest.Outcome, error) {
		calls.Add(1)
		return contest.Outcome{ScoreA: 0, ScoreB: 1}, nil
	})

	scores, err := newPastWinners(t, 2, 1, oracle).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, scoreValues(scores))
	assert.EqualValues(t, 4*1+4*2, calls.Load())

	calls.Store(0)
	scores, err = newWinCount(t, 32, 50, oracle).Run(context.Background(), pops, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, scoreValues(scores))
	assert.EqualValues(t, 1+2, calls.Load())
}

func TestPreconditionFailureMakesNoContests(t *testing.T) {
	var calls atomic.Int64
	oracle := contest.OracleFunc(func(context.Context, model.Seed, model.Seed, contest.Environment, int) (contest.Outcome, error) {
		calls.Add(1)
		return contest.Outcome{ScoreA: 0.5, ScoreB: 0.5}, nil
	})
	pops := testPopulations(3, 10)
	pops[3].Seeds = pops[3].Seeds[:9]

	sink := &countingSink{}
	_, err := newPastWinners(t, 10, 1, oracle).Run(context.Background(), pops, sink)
	require.ErrorIs(t, err, ErrPopulationTooSmall)
	assert.Zero(t, calls.Load())
	assert.Empty(t, sink.scores)
}

func TestMisplacedGenerationRejected(t *testing.T) {
	pops := testPopulations(2, 2)
	pops[1], pops[2] = pops[2], pops[1]
	_, err := newPastWinners(t, 2, 1, constantOracle(0.5)).Run(context.Background(), pops, nil)
	assert.ErrorContains(t, err, "holds generation")

	_, err = newPastWinners(t, 2, 1, constantOracle(0.5)).Run(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestOracleErrorStopsRun(t *testing.T) {
	boom := errors.New("simulator crashed")
	oracle := contest.OracleFunc(func(_ context.Context, a, b model.Seed, _ contest.Environment, _ int) (contest.Outcome, error) {
		if seedGeneration(t, b) == 2 {
			return contest.Outcome{}, boom
		}
		return contest.Outcome{ScoreA: 0, ScoreB: 1}, nil
	})

	for _, workers := range []int{1, 4} {
		sink := &countingSink{}
		scores, err := newPastWinners(t, 2, workers, oracle).Run(context.Background(), testPopulations(3, 2), sink)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, []float64{0, 1}, scoreValues(scores))
		assert.Len(t, sink.scores, 2)
	}
}

func TestOutOfRangeOutcomeRejected(t *testing.T) {
	_, err := newPastWinners(t, 1, 1, constantOracle(1.5)).Run(context.Background(), testPopulations(1, 1), nil)
	assert.ErrorIs(t, err, contest.ErrOutcomeRange)
}

func TestSinkErrorStopsRun(t *testing.T) {
	boom := errors.New("disk full")
	sink := SinkFunc(func(score model.GenerationScore) error {
		if score.Generation == 1 {
			return boom
		}
		return nil
	})
	scores, err := newPastWinners(t, 1, 1, constantOracle(1)).Run(context.Background(), testPopulations(3, 1), sink)
	require.ErrorIs(t, err, boom)
	assert.Len(t, scores, 1)
}

func TestCanceledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPastWinners(t, 1, 1, constantOracle(1)).Run(ctx, testPopulations(2, 1), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
