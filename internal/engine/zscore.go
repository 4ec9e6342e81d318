// Package engine ships a reference implementation of the Engine capability: a
// streaming z-score scorer over the predicted field. It exists so the server
// runs end to end without an external learner; any conforming engine can be
// substituted through the factory.
package engine

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/openhtm/htmserve/pkg/constants"
	"github.com/openhtm/htmserve/pkg/errors"
	"github.com/openhtm/htmserve/pkg/interfaces"
	"github.com/openhtm/htmserve/pkg/models"
)

const (
	scoreWindow = 100
	zThreshold  = 3.0
)

// ZScoreEngine scores each row's predicted-field value by its deviation from
// the recent value distribution and, when inference is enabled, carries a
// naive one-step prediction.
type ZScoreEngine struct {
	mu sync.Mutex

	fields           []models.FieldMetadata
	inferenceType    string
	predictedField   string
	inferenceEnabled bool
	closed           bool

	predictionNumber int
	values           []float64
	lastValue        *float64
}

// New constructs a ZScoreEngine from opaque model parameters. Field metadata
// is derived from the sensor encoder section, sorted by name for a stable
// dataRow layout.
func New(params models.ModelParams) (interfaces.Engine, error) {
	encoders, err := params.Encoders()
	if err != nil {
		return nil, err
	}

	fields := make([]models.FieldMetadata, 0, len(encoders))
	for _, spec := range encoders {
		if spec == nil {
			continue
		}
		name, _ := spec["fieldname"].(string)
		if name == "" {
			continue
		}
		ftype := "float"
		if spec["type"] == constants.DateEncoderType {
			ftype = "datetime"
		}
		fields = append(fields, models.FieldMetadata{Name: name, Type: ftype})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	inferenceType := "TemporalAnomaly"
	if mp, ok := params["modelParams"].(map[string]interface{}); ok {
		if it, ok := mp["inferenceType"].(string); ok && it != "" {
			inferenceType = it
		}
	}

	return &ZScoreEngine{
		fields:        fields,
		inferenceType: inferenceType,
	}, nil
}

// Factory adapts New to the EngineFactory signature.
func Factory() interfaces.EngineFactory {
	return New
}

// Run implements interfaces.Engine.
func (e *ZScoreEngine) Run(row models.Row) (*models.InferenceResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errors.ErrEngineClosed
	}

	e.predictionNumber++

	dataRow := make([]interface{}, 0, len(e.fields))
	for _, f := range e.fields {
		dataRow = append(dataRow, row[f.Name])
	}

	inferences := map[string]interface{}{
		"anomalyScore": nil,
	}

	var fieldIdx *int
	bucket := 0
	classifierRow := []interface{}{}

	// Without prediction enabled the anomaly score still tracks the first
	// scalar field, so TemporalAnomaly models work in no-prediction mode.
	scoreField := e.predictedField
	if scoreField == "" {
		for _, f := range e.fields {
			if f.Type == "float" {
				scoreField = f.Name
				break
			}
		}
	}

	if scoreField != "" {
		value, ok := numeric(row[scoreField])
		if !ok {
			return nil, fmt.Errorf("field %q is not numeric in row", scoreField)
		}

		inferences["anomalyScore"] = e.score(value)

		if e.inferenceEnabled {
			prediction := value // naive one-step forecast: next value repeats
			if e.lastValue != nil {
				prediction = (value + *e.lastValue) / 2
			}
			inferences["prediction"] = prediction
			inferences["multiStepBestPredictions"] = map[string]interface{}{
				"1": prediction,
			}
		}

		for i, f := range e.fields {
			if f.Name == e.predictedField {
				idx := i
				fieldIdx = &idx
				break
			}
		}
		bucket = bucketIndex(value)
		classifierRow = []interface{}{value}

		e.values = append(e.values, value)
		if len(e.values) > scoreWindow {
			e.values = e.values[len(e.values)-scoreWindow:]
		}
		e.lastValue = &value
	}

	return &models.InferenceResult{
		PredictionNumber: e.predictionNumber,
		RawInput:         row.Copy(),
		SensorInput: models.SensorInput{
			DataRow:       dataRow,
			SequenceReset: 0,
			Category:      nil,
		},
		ClassifierInput: models.ClassifierInput{
			DataRow:     classifierRow,
			BucketIndex: bucket,
		},
		Inferences:         inferences,
		PredictedFieldIdx:  fieldIdx,
		PredictedFieldName: e.predictedField,
	}, nil
}

// score returns an anomaly score in [0, 1] from the value's z-score against
// the sliding window.
func (e *ZScoreEngine) score(value float64) float64 {
	if len(e.values) < 2 {
		// Everything is surprising to an untrained model.
		return 1.0
	}

	mean := stat.Mean(e.values, nil)
	stddev := math.Sqrt(stat.Variance(e.values, nil))
	if stddev == 0 {
		if value == mean {
			return 0.0
		}
		return 1.0
	}

	z := math.Abs(value-mean) / stddev
	return math.Min(z/zThreshold, 1.0)
}

// ResetSequenceStates implements interfaces.Engine. Learned distribution
// state survives; only the sequence position is dropped.
func (e *ZScoreEngine) ResetSequenceStates() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.ErrEngineClosed
	}
	e.lastValue = nil
	return nil
}

// EnableInference implements interfaces.Engine.
func (e *ZScoreEngine) EnableInference(args map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.ErrEngineClosed
	}
	field, _ := args["predictedField"].(string)
	if field == "" {
		return fmt.Errorf("%w: predictedField required", errors.ErrInferenceDisabled)
	}
	e.predictedField = field
	e.inferenceEnabled = true
	return nil
}

// GetFieldInfo implements interfaces.Engine.
func (e *ZScoreEngine) GetFieldInfo() []models.FieldMetadata {
	return e.fields
}

// GetInferenceType implements interfaces.Engine.
func (e *ZScoreEngine) GetInferenceType() string {
	return e.inferenceType
}

// Close implements interfaces.Engine.
func (e *ZScoreEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.values = nil
	return nil
}

func numeric(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func bucketIndex(value float64) int {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return int(math.Abs(value)) % 1000
}

var _ interfaces.Engine = (*ZScoreEngine)(nil)
