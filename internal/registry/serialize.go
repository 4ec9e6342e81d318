package registry

import (
	"time"

	"github.com/openhtm/htmserve/pkg/models"
)

// serializeResult shapes an inference result plus pipeline-computed fields
// into the stable wire form. The temporal field is echoed back as Unix
// seconds, reflecting what the engine recorded.
func serializeResult(temporalField string, result *models.InferenceResult, likelihood *float64) models.SerializedResult {
	raw := result.RawInput.Copy()
	if temporalField != "" {
		if t, ok := raw[temporalField].(time.Time); ok {
			raw[temporalField] = unixSeconds(t)
		}
	}

	return models.SerializedResult{
		PredictionNumber: result.PredictionNumber,
		RawInput:         raw,
		SensorInput: models.SerializedSensorInput{
			DataRow:       result.SensorInput.DataRow,
			DataDict:      raw,
			SequenceReset: result.SensorInput.SequenceReset,
			Category:      result.SensorInput.Category,
		},
		Inferences:         result.Inferences,
		PredictedFieldIdx:  result.PredictedFieldIdx,
		PredictedFieldName: result.PredictedFieldName,
		ClassifierInput: models.SerializedClassifierInput{
			DataRow:     result.ClassifierInput.DataRow,
			BucketIndex: result.ClassifierInput.BucketIndex,
		},
		Metrics:           result.Metrics,
		AnomalyLikelihood: likelihood,
	}
}

// unixSeconds converts an instant to fractional seconds since epoch with
// microsecond precision.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
