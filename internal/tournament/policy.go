package tournament

import (
	"fmt"
	"strings"
)

const (
	PolicyPastWinners = "past-winners"
	PolicyWinCount    = "win-count"

	DefaultPastWinnersTrials = 2
	DefaultWinCountTrials    = 50
	DefaultNumWins           = 32
	DefaultAlpha             = 0.05
)

// DefaultTrials is the trial count used when none is configured.
func DefaultTrials(p Policy) int {
	if p.Discrete() {
		return DefaultWinCountTrials
	}
	return DefaultPastWinnersTrials
}

// Policy turns the raw contest results against one earlier generation into
// that generation's contribution to the score.
type Policy interface {
	Name() string
	// EliteSize is how many top-ranked seeds of each generation compete.
	EliteSize(numTop int) int
	// Contribution folds the new-seed win fractions of every contest between
	// one earlier generation and the scored generation.
	Contribution(newScores []float64) float64
	// Discrete policies only produce whole-number scores.
	Discrete() bool
	Validate(cfg Config) error
}

// PastWinners scores a generation by its margin against every earlier
// generation: the average new-seed win fraction over all elite cross pairs,
// rescaled from [0,1] to [-1,1] and summed over earlier generations.
type PastWinners struct{}

func (PastWinners) Name() string {
	return PolicyPastWinners
}

func (PastWinners) EliteSize(numTop int) int {
	return numTop
}

func (PastWinners) Contribution(newScores []float64) float64 {
	if len(newScores) == 0 {
		return 0
	}
	raw := 0.0
	for _, score := range newScores {
		raw += score
	}
	norm := raw / float64(len(newScores))
	return 2*norm - 1
}

func (PastWinners) Discrete() bool {
	return false
}

func (PastWinners) Validate(Config) error {
	return nil
}

// WinCount counts the earlier generations whose top seed the new top seed
// beats in at least NumWins of NumTrials trials.
type WinCount struct {
	NumWins   int
	NumTrials int
}

func (WinCount) Name() string {
	return PolicyWinCount
}

func (WinCount) EliteSize(int) int {
	return 1
}

func (p WinCount) Contribution(newScores []float64) float64 {
	threshold := p.Threshold()
	wins := 0
	for _, score := range newScores {
		if score >= threshold {
			wins++
		}
	}
	return float64(wins)
}

// Threshold is the minimum new-seed win fraction that counts as a win.
func (p WinCount) Threshold() float64 {
	return float64(p.NumWins) / float64(p.NumTrials)
}

func (WinCount) Discrete() bool {
	return true
}

func (p WinCount) Validate(cfg Config) error {
	if p.NumTrials <= 0 {
		return fmt.Errorf("win-count trials must be > 0, got %d", p.NumTrials)
	}
	if p.NumWins < 0 || p.NumWins > p.NumTrials {
		return fmt.Errorf("win-count wins must be in [0, %d], got %d", p.NumTrials, p.NumWins)
	}
	if cfg.NumTrials != p.NumTrials {
		return fmt.Errorf("win-count threshold is calibrated for %d trials but contests run %d", p.NumTrials, cfg.NumTrials)
	}
	return nil
}

// ParsePolicy resolves a policy by name. numWins and numTrials only matter
// for win-count.
func ParsePolicy(name string, numWins, numTrials int) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyPastWinners, "past_winners", "continuous":
		return PastWinners{}, nil
	case PolicyWinCount, "win_count", "discrete":
		return WinCount{NumWins: numWins, NumTrials: numTrials}, nil
	default:
		return nil, fmt.Errorf("unsupported scoring policy: %s", name)
	}
}
