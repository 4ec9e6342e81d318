package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func feedScores(e *LikelihoodEstimator, n int, score float64) float64 {
	var last float64
	base := time.Unix(0, 0).UTC()
	for i := 0; i < n; i++ {
		last = e.Probability(10.0, score, base.Add(time.Duration(i)*time.Second))
	}
	return last
}

func TestProbabilityNeutralDuringProbation(t *testing.T) {
	e := NewLikelihoodEstimatorWithWindows(20, 10)

	for i := 0; i < 30; i++ {
		p := e.Probability(1.0, 0.1, time.Unix(int64(i), 0))
		assert.Equal(t, 0.5, p)
	}
}

func TestProbabilityBounds(t *testing.T) {
	e := NewLikelihoodEstimatorWithWindows(5, 5)

	for i := 0; i < 200; i++ {
		p := e.Probability(float64(i), float64(i%10)/10.0, time.Unix(int64(i), 0))
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestProbabilityRisesOnSpike(t *testing.T) {
	e := NewLikelihoodEstimatorWithWindows(5, 5)

	baseline := feedScores(e, 100, 0.05)
	spiked := feedScores(e, 10, 0.95)
	assert.Greater(t, spiked, baseline)
	assert.Greater(t, spiked, 0.9)
}

func TestFreshEstimatorHasNoHistory(t *testing.T) {
	e := NewLikelihoodEstimatorWithWindows(5, 5)
	feedScores(e, 100, 0.9)

	// A replacement estimator starts neutral again, as reset requires.
	fresh := NewLikelihoodEstimatorWithWindows(5, 5)
	p := fresh.Probability(1.0, 0.9, time.Unix(0, 0))
	assert.Equal(t, 0.5, p)
}
