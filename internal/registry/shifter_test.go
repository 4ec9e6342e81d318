package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhtm/htmserve/pkg/models"
)

func TestShifterDelaysPredictionsOneStep(t *testing.T) {
	s := NewInferenceShifter()

	first := s.Shift(&models.InferenceResult{
		Inferences: map[string]interface{}{
			"prediction":   10.0,
			"anomalyScore": 0.9,
		},
	})
	assert.Nil(t, first.Inferences["prediction"])
	assert.Equal(t, 0.9, first.Inferences["anomalyScore"])

	second := s.Shift(&models.InferenceResult{
		Inferences: map[string]interface{}{
			"prediction":   20.0,
			"anomalyScore": 0.1,
		},
	})
	assert.Equal(t, 10.0, second.Inferences["prediction"])
	assert.Equal(t, 0.1, second.Inferences["anomalyScore"])

	third := s.Shift(&models.InferenceResult{
		Inferences: map[string]interface{}{
			"prediction":   30.0,
			"anomalyScore": 0.2,
		},
	})
	assert.Equal(t, 20.0, third.Inferences["prediction"])
}

func TestShifterHandlesMultiStepElements(t *testing.T) {
	s := NewInferenceShifter()

	first := s.Shift(&models.InferenceResult{
		Inferences: map[string]interface{}{
			"multiStepBestPredictions": map[string]interface{}{"1": 10.0},
		},
	})
	assert.Nil(t, first.Inferences["multiStepBestPredictions"])

	second := s.Shift(&models.InferenceResult{
		Inferences: map[string]interface{}{
			"multiStepBestPredictions": map[string]interface{}{"1": 20.0},
		},
	})
	require.NotNil(t, second.Inferences["multiStepBestPredictions"])
	assert.Equal(t, map[string]interface{}{"1": 10.0}, second.Inferences["multiStepBestPredictions"])
}

func TestShifterDoesNotMutateInput(t *testing.T) {
	s := NewInferenceShifter()

	original := &models.InferenceResult{
		Inferences: map[string]interface{}{"prediction": 10.0},
	}
	shifted := s.Shift(original)

	assert.Equal(t, 10.0, original.Inferences["prediction"])
	assert.Nil(t, shifted.Inferences["prediction"])
}
