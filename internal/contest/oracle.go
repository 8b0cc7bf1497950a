// Package contest defines the pairwise contest capability the tournament
// engine consumes, plus adapters that resolve contests outside the engine.
package contest

import (
	"context"
	"errors"
	"fmt"

	"seedcontest/internal/model"
)

var ErrOutcomeRange = errors.New("contest score outside [0,1]")

// Environment carries the world-shaping parameters forwarded to the
// simulator untouched.
type Environment struct {
	WidthFactor  float64 `json:"width_factor" yaml:"width_factor"`
	HeightFactor float64 `json:"height_factor" yaml:"height_factor"`
	TimeFactor   float64 `json:"time_factor" yaml:"time_factor"`
}

// Outcome holds the fraction of trials won by each seed. Draws mean the two
// fractions need not add up to one.
type Outcome struct {
	ScoreA float64 `json:"score_a"`
	ScoreB float64 `json:"score_b"`
}

func (o Outcome) Validate() error {
	if !(o.ScoreA >= 0 && o.ScoreA <= 1) {
		return fmt.Errorf("%w: score_a=%v", ErrOutcomeRange, o.ScoreA)
	}
	if !(o.ScoreB >= 0 && o.ScoreB <= 1) {
		return fmt.Errorf("%w: score_b=%v", ErrOutcomeRange, o.ScoreB)
	}
	return nil
}

// Oracle runs numTrials stochastic contests between a and b. Repeated calls
// with the same arguments may return different outcomes.
type Oracle interface {
	Contest(ctx context.Context, a, b model.Seed, env Environment, numTrials int) (Outcome, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, a, b model.Seed, env Environment, numTrials int) (Outcome, error)

func (f OracleFunc) Contest(ctx context.Context, a, b model.Seed, env Environment, numTrials int) (Outcome, error) {
	return f(ctx, a, b, env, numTrials)
}
