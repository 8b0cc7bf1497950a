package tournament

import (
	"fmt"
	"math"
)

// BinomialTail returns P(X >= k) for X ~ Binomial(n, 1/2).
func BinomialTail(n, k int) float64 {
	if k <= 0 {
		return 1
	}
	if k > n {
		return 0
	}
	tail := 0.0
	for i := k; i <= n; i++ {
		tail += math.Exp(logChoose(n, i) - float64(n)*math.Ln2)
	}
	return math.Min(tail, 1)
}

// SignificantWins returns the smallest win count out of numTrials whose
// one-sided exact binomial tail under even odds is at most alpha, together
// with that tail probability. 50 trials at alpha 0.05 gives 32 (p = 0.0325).
func SignificantWins(numTrials int, alpha float64) (int, float64, error) {
	if numTrials <= 0 {
		return 0, 0, fmt.Errorf("num trials must be > 0, got %d", numTrials)
	}
	if alpha <= 0 || alpha >= 1 {
		return 0, 0, fmt.Errorf("alpha must be in (0, 1), got %v", alpha)
	}
	for wins := 0; wins <= numTrials; wins++ {
		if p := BinomialTail(numTrials, wins); p <= alpha {
			return wins, p, nil
		}
	}
	return 0, 0, fmt.Errorf("no win count out of %d trials is significant at alpha %v", numTrials, alpha)
}

func logChoose(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}
