package registry

import (
	"github.com/openhtm/htmserve/pkg/interfaces"
	"github.com/openhtm/htmserve/pkg/models"
)

// InferenceShifter re-aligns prediction elements onto the row they were
// predicting: the prediction the engine emits at step N targets step N+1, so
// each row's response carries the prediction made one step earlier. Anomaly
// scores and other non-prediction elements pass through unshifted.
type InferenceShifter struct {
	pending map[string][]interface{}
}

// NewInferenceShifter creates an empty shifter.
func NewInferenceShifter() *InferenceShifter {
	return &InferenceShifter{pending: make(map[string][]interface{})}
}

// Shift implements interfaces.ResultShifter. The first shifted row carries a
// nil prediction; there is nothing it could have been predicted by.
func (s *InferenceShifter) Shift(result *models.InferenceResult) *models.InferenceResult {
	shifted := *result
	inferences := make(map[string]interface{}, len(result.Inferences))
	for element, value := range result.Inferences {
		if !shiftable(element) {
			inferences[element] = value
			continue
		}
		queue := append(s.pending[element], value)
		if len(queue) > 1 {
			inferences[element] = queue[0]
			queue = queue[1:]
		} else {
			inferences[element] = nil
		}
		s.pending[element] = queue
	}
	shifted.Inferences = inferences
	return &shifted
}

func shiftable(element string) bool {
	switch element {
	case "prediction", "multiStepBestPredictions", "multiStepPredictions":
		return true
	}
	return false
}

var _ interfaces.ResultShifter = (*InferenceShifter)(nil)
