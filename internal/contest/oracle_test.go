package contest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedcontest/internal/model"
)

func TestOutcomeValidate(t *testing.T) {
	require.NoError(t, Outcome{ScoreA: 0, ScoreB: 1}.Validate())
	require.NoError(t, Outcome{ScoreA: 0.25, ScoreB: 0.25}.Validate())

	err := Outcome{ScoreA: 0.5, ScoreB: 1.5}.Validate()
	assert.ErrorIs(t, err, ErrOutcomeRange)

	err = Outcome{ScoreA: -0.1, ScoreB: 0.5}.Validate()
	assert.ErrorIs(t, err, ErrOutcomeRange)
}

func TestFitnessOracleDominance(t *testing.T) {
	oracle := NewFitnessOracle(7)
	ctx := context.Background()

	outcome, err := oracle.Contest(ctx, model.Seed{Fitness: 0}, model.Seed{Fitness: 0.8}, Environment{}, 20)
	require.NoError(t, err)
	assert.Equal(t, 1.0, outcome.ScoreB)
	assert.Equal(t, 0.0, outcome.ScoreA)

	outcome, err = oracle.Contest(ctx, model.Seed{Fitness: 0.8}, model.Seed{Fitness: 0}, Environment{}, 20)
	require.NoError(t, err)
	assert.Equal(t, 0.0, outcome.ScoreB)
	assert.Equal(t, 1.0, outcome.ScoreA)
}

func TestFitnessOracleSeededRepeatable(t *testing.T) {
	a := model.Seed{ID: "a", Fitness: 0.4}
	b := model.Seed{ID: "b", Fitness: 0.6}

	first, err := NewFitnessOracle(42).Contest(context.Background(), a, b, Environment{}, 50)
	require.NoError(t, err)
	second, err := NewFitnessOracle(42).Contest(context.Background(), a, b, Environment{}, 50)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.InDelta(t, 1.0, first.ScoreA+first.ScoreB, 1e-12)
	require.NoError(t, first.Validate())
}

func TestFitnessOracleRejectsZeroTrials(t *testing.T) {
	_, err := NewFitnessOracle(1).Contest(context.Background(), model.Seed{}, model.Seed{}, Environment{}, 0)
	require.Error(t, err)
}

func TestExecOracleRoundTrip(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"score_a": 0.25, "score_b": 0.75}'
`)
	oracle, err := NewExecOracle("/bin/sh", []string{script}, 5*time.Second)
	require.NoError(t, err)

	outcome, err := oracle.Contest(context.Background(), model.Seed{ID: "old"}, model.Seed{ID: "new"}, Environment{WidthFactor: 6}, 2)
	require.NoError(t, err)
	assert.Equal(t, Outcome{ScoreA: 0.25, ScoreB: 0.75}, outcome)
}

func TestExecOracleForwardsRequest(t *testing.T) {
	dir := t.TempDir()
	captured := filepath.Join(dir, "request.json")
	script := writeScript(t, `cat > "`+captured+`"
echo '{"score_a": 0, "score_b": 1}'
`)
	oracle, err := NewExecOracle("/bin/sh", []string{script}, 0)
	require.NoError(t, err)

	_, err = oracle.Contest(context.Background(), model.Seed{ID: "old"}, model.Seed{ID: "new"}, Environment{TimeFactor: 6}, 3)
	require.NoError(t, err)

	data, err := os.ReadFile(captured)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"num_trials":3`)
	assert.Contains(t, string(data), `"time_factor":6`)
	assert.Contains(t, string(data), `"id":"new"`)
}

func TestExecOracleRejectsOutOfRangeOutcome(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"score_a": 0.5, "score_b": 2}'
`)
	oracle, err := NewExecOracle("/bin/sh", []string{script}, 0)
	require.NoError(t, err)

	_, err = oracle.Contest(context.Background(), model.Seed{}, model.Seed{}, Environment{}, 2)
	assert.ErrorIs(t, err, ErrOutcomeRange)
}

func TestExecOracleSurfacesCommandFailure(t *testing.T) {
	script := writeScript(t, `echo "simulation diverged" >&2
exit 3
`)
	oracle, err := NewExecOracle("/bin/sh", []string{script}, 0)
	require.NoError(t, err)

	_, err = oracle.Contest(context.Background(), model.Seed{ID: "x"}, model.Seed{ID: "y"}, Environment{}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulation diverged")
}

func TestNewExecOracleValidation(t *testing.T) {
	_, err := NewExecOracle(" ", nil, 0)
	require.Error(t, err)
	_, err = NewExecOracle("sim", nil, -time.Second)
	require.Error(t, err)
}

func TestWithRetryZeroReturnsSameOracle(t *testing.T) {
	oracle := NewFitnessOracle(1)
	assert.Same(t, oracle, WithRetry(oracle, 0, 0))
}

func TestWithRetryRecoversTransientFailure(t *testing.T) {
	calls := 0
	flaky := OracleFunc(func(context.Context, model.Seed, model.Seed, Environment, int) (Outcome, error) {
		calls++
		if calls < 3 {
			return Outcome{}, errors.New("transient")
		}
		return Outcome{ScoreA: 0.5, ScoreB: 0.5}, nil
	})

	outcome, err := WithRetry(flaky, 3, time.Millisecond).Contest(context.Background(), model.Seed{}, model.Seed{}, Environment{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.5, outcome.ScoreB)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	broken := OracleFunc(func(context.Context, model.Seed, model.Seed, Environment, int) (Outcome, error) {
		calls++
		return Outcome{}, errors.New("down")
	})

	_, err := WithRetry(broken, 2, time.Millisecond).Contest(context.Background(), model.Seed{}, model.Seed{}, Environment{}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 3, calls)
}

func TestWithRetryDoesNotRetryRangeErrors(t *testing.T) {
	calls := 0
	bad := OracleFunc(func(context.Context, model.Seed, model.Seed, Environment, int) (Outcome, error) {
		calls++
		return Outcome{}, ErrOutcomeRange
	})

	_, err := WithRetry(bad, 5, time.Millisecond).Contest(context.Background(), model.Seed{}, model.Seed{}, Environment{}, 2)
	assert.ErrorIs(t, err, ErrOutcomeRange)
	assert.Equal(t, 1, calls)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exec oracle tests need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "oracle.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}
