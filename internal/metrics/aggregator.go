// Package metrics tracks externally specified derived metrics over a model's
// result stream, comparing each row's actual value against the prediction the
// engine made for it one step earlier.
package metrics

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/openhtm/htmserve/pkg/errors"
	"github.com/openhtm/htmserve/pkg/models"
)

// Aggregator computes the metrics named by a spec list. It is created once
// per model and survives resets.
type Aggregator struct {
	logger  *logrus.Logger
	trackers []*tracker
}

type tracker struct {
	spec   models.MetricSpec
	label  string
	window int

	lastPrediction *float64
	errs           []float64
	actuals        []float64
}

// NewAggregator builds an aggregator from a metric spec list. Field info and
// inference type come from the engine, mirroring how the metric manager is
// constructed in the create path.
func NewAggregator(specs []models.MetricSpec, fields []models.FieldMetadata, inferenceType string, logger *logrus.Logger) (*Aggregator, error) {
	if logger == nil {
		logger = logrus.New()
	}

	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}

	agg := &Aggregator{logger: logger}
	for _, spec := range specs {
		if spec.Field == "" || spec.Metric == "" {
			return nil, fmt.Errorf("%w: field and metric are required", errors.ErrInvalidMetricSpec)
		}
		if len(known) > 0 && !known[spec.Field] {
			return nil, fmt.Errorf("%w: unknown field %q", errors.ErrInvalidMetricSpec, spec.Field)
		}
		switch spec.Metric {
		case "aae", "rmse", "altMAPE":
		default:
			return nil, fmt.Errorf("%w: unsupported metric %q", errors.ErrInvalidMetricSpec, spec.Metric)
		}

		window := 0
		if w, ok := spec.Params["window"].(float64); ok && w > 0 {
			window = int(w)
		}

		agg.trackers = append(agg.trackers, &tracker{
			spec:   spec,
			label:  metricLabel(spec),
			window: window,
		})
	}

	logger.WithFields(logrus.Fields{
		"metrics":        len(agg.trackers),
		"inference_type": inferenceType,
	}).Debug("Built metrics aggregator")

	return agg, nil
}

// Update folds one inference result into every tracked metric and returns the
// current values keyed by metric label.
func (a *Aggregator) Update(result *models.InferenceResult) map[string]float64 {
	out := make(map[string]float64, len(a.trackers))
	for _, tr := range a.trackers {
		out[tr.label] = tr.update(result)
	}
	return out
}

func (tr *tracker) update(result *models.InferenceResult) float64 {
	actual, ok := numericValue(result.RawInput[tr.spec.Field])
	if ok && tr.lastPrediction != nil {
		tr.errs = append(tr.errs, math.Abs(actual-*tr.lastPrediction))
		tr.actuals = append(tr.actuals, math.Abs(actual))
		if tr.window > 0 && len(tr.errs) > tr.window {
			tr.errs = tr.errs[len(tr.errs)-tr.window:]
			tr.actuals = tr.actuals[len(tr.actuals)-tr.window:]
		}
	}

	if pred, ok := predictionValue(result.Inferences, tr.spec); ok {
		tr.lastPrediction = &pred
	}

	return tr.value()
}

func (tr *tracker) value() float64 {
	if len(tr.errs) == 0 {
		return 0
	}
	switch tr.spec.Metric {
	case "aae":
		return stat.Mean(tr.errs, nil)
	case "rmse":
		sum := 0.0
		for _, e := range tr.errs {
			sum += e * e
		}
		return math.Sqrt(sum / float64(len(tr.errs)))
	case "altMAPE":
		errSum, actSum := 0.0, 0.0
		for i := range tr.errs {
			errSum += tr.errs[i]
			actSum += tr.actuals[i]
		}
		if actSum == 0 {
			return 0
		}
		return 100 * errSum / actSum
	}
	return 0
}

// predictionValue extracts the prediction for the spec's inference element.
// Multi-step elements are maps keyed by step count; the spec's steps param
// (default 1) selects the entry.
func predictionValue(inferences map[string]interface{}, spec models.MetricSpec) (float64, bool) {
	element := spec.InferenceElement
	if element == "" {
		element = "prediction"
	}
	raw, ok := inferences[element]
	if !ok || raw == nil {
		return 0, false
	}

	if steps, isMap := raw.(map[string]interface{}); isMap {
		key := "1"
		if s, ok := spec.Params["steps"].(float64); ok {
			key = fmt.Sprintf("%d", int(s))
		}
		raw, ok = steps[key]
		if !ok {
			return 0, false
		}
	}
	return numericValue(raw)
}

func numericValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case *float64:
		if v == nil {
			return 0, false
		}
		return *v, true
	default:
		return 0, false
	}
}

func metricLabel(spec models.MetricSpec) string {
	element := spec.InferenceElement
	if element == "" {
		element = "prediction"
	}
	label := fmt.Sprintf("%s:%s", element, spec.Metric)
	if w, ok := spec.Params["window"].(float64); ok && w > 0 {
		label = fmt.Sprintf("%s:window=%d", label, int(w))
	}
	return fmt.Sprintf("%s:field=%s", label, spec.Field)
}
