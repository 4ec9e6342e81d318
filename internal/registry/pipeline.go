package registry

import (
	"time"

	"github.com/openhtm/htmserve/internal/temporal"
	"github.com/openhtm/htmserve/pkg/errors"
	"github.com/openhtm/htmserve/pkg/models"
)

// Run feeds rows through the model's pipeline strictly in order and returns
// one serialized result per accepted row. Any failure aborts the remainder of
// the batch with no partial output. The record lock is held for the whole
// batch, including engine invocations: one in-flight run per model.
func (reg *Registry) Run(guid string, rows []models.Row) ([]models.SerializedResult, error) {
	record, err := reg.Get(guid)
	if err != nil {
		return nil, err
	}

	record.mu.Lock()
	defer record.mu.Unlock()

	results := make([]models.SerializedResult, 0, len(rows))
	for _, row := range rows {
		serialized, err := record.runRow(row)
		if err != nil {
			return nil, err
		}
		results = append(results, *serialized)
	}
	return results, nil
}

// runRow executes the per-row algorithm. Caller holds the record lock.
func (r *ModelRecord) runRow(row models.Row) (*models.SerializedResult, error) {
	// Cheap pre-parse ordering check against the last accepted row.
	if r.temporalField != "" && r.lastRow != nil {
		if temporalRegressed(row[r.temporalField], r.lastRow[r.temporalField]) {
			return nil, errors.NewOrderingError()
		}
	}

	// Accounting happens before the engine call: a row that fails inside the
	// engine still counts as seen.
	r.lastRow = row.Copy()
	r.rowsSeen++

	var instant time.Time
	engineRow := row.Copy()
	if r.temporalField != "" {
		parsed, err := temporal.ParseTimestamp(row[r.temporalField])
		if err != nil {
			return nil, errors.NewParseError(err)
		}
		instant = parsed
		engineRow[r.temporalField] = parsed
	}

	result, err := r.engine.Run(engineRow)
	if err != nil {
		return nil, errors.AsAppError(err)
	}

	var metricValues map[string]float64
	if r.aggregator != nil {
		metricValues = r.aggregator.Update(result)
		result.Metrics = metricValues
	}

	// The likelihood feeds off the score computed for this row, before any
	// shifting moves inference elements around.
	score, scoreOK := result.AnomalyScore()

	if r.shifter != nil {
		result = r.shifter.Shift(result)
		result.Metrics = metricValues // shifting must not discard metrics
	}

	var likelihood *float64
	if r.temporalField != "" && scoreOK {
		p := r.estimator.Probability(row[r.predictedField], score, instant)
		likelihood = &p
	}

	serialized := serializeResult(r.temporalField, result, likelihood)
	return &serialized, nil
}

// temporalRegressed compares raw pre-parse temporal values in their native
// representation: numerically when both are numbers, lexically when both are
// strings. Mixed representations never regress; the parse step decides their
// fate.
func temporalRegressed(current, last interface{}) bool {
	cf, cok := rawNumber(current)
	lf, lok := rawNumber(last)
	if cok && lok {
		return cf < lf
	}
	cs, csok := current.(string)
	ls, lsok := last.(string)
	if csok && lsok {
		return cs < ls
	}
	return false
}

func rawNumber(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
