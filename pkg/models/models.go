package models

import (
	"github.com/openhtm/htmserve/pkg/constants"
	"github.com/openhtm/htmserve/pkg/errors"
)

// Row is a single input record: field name -> raw value as decoded from JSON.
type Row map[string]interface{}

// Copy returns a shallow snapshot of the row. Ordering checks and the `last`
// echo must never alias the caller's map.
func (r Row) Copy() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ModelParams is the opaque model configuration supplied at creation time.
// The registry only inspects the modelParams/sensorParams/encoders section;
// everything else passes through to the engine untouched.
type ModelParams map[string]interface{}

// GUID returns the explicit identifier carried inside the parameters, if any.
func (p ModelParams) GUID() (string, bool) {
	v, ok := p["guid"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// HasModelParams reports whether the required modelParams section is present.
func (p ModelParams) HasModelParams() bool {
	_, ok := p["modelParams"]
	return ok
}

// Encoders returns the sensor encoder section: encoder name -> encoder spec.
// Entries with a nil spec are tolerated, matching configurations that disable
// an encoder by nulling it out.
func (p ModelParams) Encoders() (map[string]map[string]interface{}, error) {
	mp, ok := p["modelParams"].(map[string]interface{})
	if !ok {
		return nil, errors.ErrMissingModelParams
	}
	sp, ok := mp["sensorParams"].(map[string]interface{})
	if !ok {
		return nil, errors.ErrInvalidEncoders
	}
	raw, ok := sp["encoders"].(map[string]interface{})
	if !ok {
		return nil, errors.ErrInvalidEncoders
	}
	encoders := make(map[string]map[string]interface{}, len(raw))
	for name, spec := range raw {
		if spec == nil {
			encoders[name] = nil
			continue
		}
		m, ok := spec.(map[string]interface{})
		if !ok {
			return nil, errors.ErrInvalidEncoders
		}
		encoders[name] = m
	}
	return encoders, nil
}

// DefaultModelParams returns the built-in parameter set used when a create
// request carries no parameters: timestamp on c0, scalar input and predicted
// field on c1.
func DefaultModelParams() ModelParams {
	return ModelParams{
		"model": "HTMPrediction",
		"modelParams": map[string]interface{}{
			"inferenceType": "TemporalAnomaly",
			"sensorParams": map[string]interface{}{
				"encoders": map[string]interface{}{
					"c0": map[string]interface{}{
						"type":      constants.DateEncoderType,
						"fieldname": "c0",
						"name":      "c0",
					},
					"c1": map[string]interface{}{
						"type":      "ScalarEncoder",
						"fieldname": "c1",
						"name":      "c1",
						"n":         134,
						"w":         21,
					},
				},
			},
		},
	}
}

// MetricSpec describes one derived metric tracked over the result stream.
type MetricSpec struct {
	Field            string                 `json:"field"`
	Metric           string                 `json:"metric"`
	InferenceElement string                 `json:"inferenceElement"`
	Params           map[string]interface{} `json:"params"`
}

// FieldMetadata describes one input field as reported by the engine.
type FieldMetadata struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SensorInput is the engine's view of the encoded row.
type SensorInput struct {
	DataRow       []interface{} `json:"dataRow"`
	SequenceReset int           `json:"sequenceReset"`
	Category      interface{}   `json:"category"`
}

// ClassifierInput is the value and bucket the classifier saw for this row.
type ClassifierInput struct {
	DataRow     []interface{} `json:"dataRow"`
	BucketIndex int           `json:"bucketIndex"`
}

// InferenceResult is the opaque per-row output of an engine. Inferences must
// carry an "anomalyScore" entry; everything else is engine-defined.
type InferenceResult struct {
	PredictionNumber   int
	RawInput           Row
	SensorInput        SensorInput
	ClassifierInput    ClassifierInput
	Inferences         map[string]interface{}
	PredictedFieldIdx  *int
	PredictedFieldName string
	Metrics            map[string]float64
}

// AnomalyScore extracts the anomaly score, reporting absence.
func (r *InferenceResult) AnomalyScore() (float64, bool) {
	v, ok := r.Inferences["anomalyScore"]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// SerializedSensorInput is the wire form of SensorInput with the raw
// dictionary attached.
type SerializedSensorInput struct {
	DataRow       []interface{} `json:"dataRow"`
	DataDict      Row           `json:"dataDict"`
	SequenceReset int           `json:"sequenceReset"`
	Category      interface{}   `json:"category"`
}

// SerializedClassifierInput is the wire form of ClassifierInput.
type SerializedClassifierInput struct {
	DataRow     []interface{} `json:"dataRow"`
	BucketIndex int           `json:"bucketIndex"`
}

// SerializedResult is the stable wire shape of one inference result.
type SerializedResult struct {
	PredictionNumber   int                       `json:"predictionNumber"`
	RawInput           Row                       `json:"rawInput"`
	SensorInput        SerializedSensorInput     `json:"sensorInput"`
	Inferences         map[string]interface{}    `json:"inferences"`
	PredictedFieldIdx  *int                      `json:"predictedFieldIdx"`
	PredictedFieldName string                    `json:"predictedFieldName"`
	ClassifierInput    SerializedClassifierInput `json:"classifierInput"`
	Metrics            map[string]float64        `json:"metrics,omitempty"`
	AnomalyLikelihood  *float64                  `json:"anomalyLikelihood"`
}

// ModelSummary is the wire shape of one registered model.
type ModelSummary struct {
	GUID           string       `json:"guid"`
	Params         ModelParams  `json:"params"`
	PredictedField *string      `json:"predicted_field"`
	Metrics        []MetricSpec `json:"metrics,omitempty"`
	TemporalField  *string      `json:"tfield"`
	Last           Row          `json:"last"`
	Seen           int64        `json:"seen"`
}
