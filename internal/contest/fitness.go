package contest

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"seedcontest/internal/model"
)

// FitnessOracle stands in for the simulator when only saved fitness values
// are available: in every trial b beats a with probability
// b.Fitness / (a.Fitness + b.Fitness). Useful for dry runs of a tournament.
type FitnessOracle struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewFitnessOracle(seed int64) *FitnessOracle {
	return &FitnessOracle{rng: rand.New(rand.NewSource(seed))}
}

func (o *FitnessOracle) Contest(ctx context.Context, a, b model.Seed, _ Environment, numTrials int) (Outcome, error) {
	if numTrials <= 0 {
		return Outcome{}, fmt.Errorf("num trials must be > 0, got %d", numTrials)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	fa := max(a.Fitness, 0)
	fb := max(b.Fitness, 0)
	p := 0.5
	if fa+fb > 0 {
		p = fb / (fa + fb)
	}

	winsB := 0
	o.mu.Lock()
	for i := 0; i < numTrials; i++ {
		if o.rng.Float64() < p {
			winsB++
		}
	}
	o.mu.Unlock()

	return Outcome{
		ScoreA: float64(numTrials-winsB) / float64(numTrials),
		ScoreB: float64(winsB) / float64(numTrials),
	}, nil
}
