// Package anomaly estimates how statistically significant an anomaly score is
// given the model's recent scoring history.
package anomaly

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// defaultLearningPeriod is the number of initial records assumed to be
	// dominated by learning noise; likelihoods stay neutral until the
	// probationary period (learning + estimation samples) has passed.
	defaultLearningPeriod    = 288
	defaultEstimationSamples = 100
	defaultHistoricWindow    = 8640
	defaultReestimationEvery = 100

	// shortTermWindow is the number of trailing scores averaged before the
	// tail probability is taken.
	shortTermWindow = 10

	minStdDev = 0.000001
)

type record struct {
	value     float64
	score     float64
	timestamp time.Time
}

// LikelihoodEstimator converts a stream of raw anomaly scores into
// probabilities by modeling the score history as a normal distribution and
// taking the tail probability of the recent average. Fresh instances carry no
// history; the registry recreates one whenever engine learning state resets.
type LikelihoodEstimator struct {
	history   []record
	seen      int
	mu        float64
	sigma     float64
	estimated bool

	learningPeriod    int
	estimationSamples int
	historicWindow    int
	reestimationEvery int
}

// NewLikelihoodEstimator creates an estimator with the standard windows.
func NewLikelihoodEstimator() *LikelihoodEstimator {
	return &LikelihoodEstimator{
		learningPeriod:    defaultLearningPeriod,
		estimationSamples: defaultEstimationSamples,
		historicWindow:    defaultHistoricWindow,
		reestimationEvery: defaultReestimationEvery,
	}
}

// NewLikelihoodEstimatorWithWindows creates an estimator with explicit
// windows. Used by tests to get past the probationary period quickly.
func NewLikelihoodEstimatorWithWindows(learningPeriod, estimationSamples int) *LikelihoodEstimator {
	return &LikelihoodEstimator{
		learningPeriod:    learningPeriod,
		estimationSamples: estimationSamples,
		historicWindow:    defaultHistoricWindow,
		reestimationEvery: defaultReestimationEvery,
	}
}

// Probability records (value, anomalyScore, timestamp) and returns the
// likelihood in [0, 1] that the current score is anomalous. Neutral 0.5 is
// returned during the probationary period.
func (e *LikelihoodEstimator) Probability(value interface{}, anomalyScore float64, timestamp time.Time) float64 {
	v, _ := value.(float64)
	e.history = append(e.history, record{value: v, score: anomalyScore, timestamp: timestamp})
	if len(e.history) > e.historicWindow {
		e.history = e.history[len(e.history)-e.historicWindow:]
	}
	e.seen++

	if e.seen <= e.probationaryPeriod() {
		return 0.5
	}

	if !e.estimated || e.seen%e.reestimationEvery == 0 {
		e.estimateDistribution()
	}

	recent := e.recentAverage()
	dist := distuv.Normal{Mu: e.mu, Sigma: e.sigma}
	tail := dist.Survival(recent)

	likelihood := 1.0 - tail
	return math.Min(1.0, math.Max(0.0, likelihood))
}

func (e *LikelihoodEstimator) probationaryPeriod() int {
	return e.learningPeriod + e.estimationSamples
}

// estimateDistribution fits a normal distribution to the scores past the
// learning period.
func (e *LikelihoodEstimator) estimateDistribution() {
	start := 0
	if len(e.history) > e.estimationSamples {
		start = len(e.history) - e.estimationSamples
	}
	scores := make([]float64, 0, len(e.history)-start)
	for _, r := range e.history[start:] {
		scores = append(scores, r.score)
	}

	e.mu = stat.Mean(scores, nil)
	e.sigma = math.Sqrt(stat.Variance(scores, nil))
	if e.sigma < minStdDev || math.IsNaN(e.sigma) {
		e.sigma = minStdDev
	}
	e.estimated = true
}

func (e *LikelihoodEstimator) recentAverage() float64 {
	start := 0
	if len(e.history) > shortTermWindow {
		start = len(e.history) - shortTermWindow
	}
	sum := 0.0
	for _, r := range e.history[start:] {
		sum += r.score
	}
	return sum / float64(len(e.history)-start)
}
