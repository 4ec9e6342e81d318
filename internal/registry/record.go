package registry

import (
	"sync"

	"github.com/openhtm/htmserve/pkg/interfaces"
	"github.com/openhtm/htmserve/pkg/models"
)

// ModelRecord is the unit of state: an engine instance plus the bookkeeping
// the pipeline needs. Records are owned exclusively by the Registry; all
// mutation happens under the per-record lock, so run and reset on the same
// model serialize while different models proceed in parallel.
type ModelRecord struct {
	mu sync.Mutex

	guid           string
	engine         interfaces.Engine
	params         models.ModelParams
	temporalField  string
	predictedField string
	predictionOn   bool

	metricSpecs []models.MetricSpec

	rowsSeen int64
	lastRow  models.Row

	estimator  interfaces.LikelihoodEstimator
	aggregator interfaces.MetricsAggregator
	shifter    interfaces.ResultShifter
}

// GUID returns the record's identifier.
func (r *ModelRecord) GUID() string {
	return r.guid
}

// RowsSeen returns the number of accepted rows since creation or last reset.
func (r *ModelRecord) RowsSeen() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rowsSeen
}

// Summary snapshots the record into its wire shape.
func (r *ModelRecord) Summary() models.ModelSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := models.ModelSummary{
		GUID:    r.guid,
		Params:  r.params,
		Metrics: r.metricSpecs,
		Last:    r.lastRow.Copy(),
		Seen:    r.rowsSeen,
	}
	if r.predictionOn {
		pf := r.predictedField
		summary.PredictedField = &pf
	}
	if r.temporalField != "" {
		tf := r.temporalField
		summary.TemporalField = &tf
	}
	return summary
}
