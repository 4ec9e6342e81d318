package interfaces

import (
	"time"

	"github.com/openhtm/htmserve/pkg/models"
)

// Engine is the opaque temporal-pattern learning and inference capability a
// model wraps. The registry never inspects engine internals; any conforming
// implementation can be plugged in through an EngineFactory.
type Engine interface {
	// Run feeds one row (temporal field already parsed to time.Time) and
	// returns the engine's inference result. Mutates learning state.
	Run(row models.Row) (*models.InferenceResult, error)

	// ResetSequenceStates reseeds the engine's sequence state without
	// discarding what it has learned.
	ResetSequenceStates() error

	// EnableInference turns on prediction of the named field. One-time,
	// non-reversible configuration.
	EnableInference(args map[string]interface{}) error

	// GetFieldInfo returns the engine's input field metadata.
	GetFieldInfo() []models.FieldMetadata

	// GetInferenceType names the inference mode the engine runs in.
	GetInferenceType() string

	// Close releases engine resources.
	Close() error
}

// EngineFactory constructs an engine from opaque model parameters.
type EngineFactory func(params models.ModelParams) (Engine, error)

// LikelihoodEstimator turns a stream of anomaly scores into probabilities.
// Implementations are stateful; the registry recreates one on model creation
// and on reset, never independently of the engine's learning state.
type LikelihoodEstimator interface {
	Probability(value interface{}, anomalyScore float64, timestamp time.Time) float64
}

// MetricsAggregator tracks externally specified derived metrics over the
// result stream. Update returns the current metric values; it is called once
// per accepted row and is never reset.
type MetricsAggregator interface {
	Update(result *models.InferenceResult) map[string]float64
}

// ResultShifter re-aligns a prediction made at step N onto the row it was
// predicting, so results line up temporally with their target row.
type ResultShifter interface {
	Shift(result *models.InferenceResult) *models.InferenceResult
}
