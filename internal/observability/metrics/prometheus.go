// Package metrics provides Prometheus instrumentation for the model server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openhtm/htmserve/pkg/constants"
)

// PrometheusMetrics collects server and pipeline metrics on a dedicated
// registry so the instance can be rebuilt in tests without collisions.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	modelsActive        prometheus.Gauge
	modelsCreatedTotal  prometheus.Counter
	modelsDeletedTotal  prometheus.Counter
	modelResetsTotal    prometheus.Counter
	rowsIngestedTotal   prometheus.Counter
	rowErrorsTotal      *prometheus.CounterVec
	anomalyLikelihood   prometheus.Histogram
}

// NewPrometheusMetrics creates and registers all collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: constants.AppName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		modelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: constants.AppName,
			Name:      "models",
			Help:      "Number of models currently registered.",
		}),

		modelsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Name:      "models_created_total",
			Help:      "Total models created.",
		}),

		modelsDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Name:      "models_deleted_total",
			Help:      "Total models deleted.",
		}),

		modelResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Name:      "model_resets_total",
			Help:      "Total model resets.",
		}),

		rowsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Name:      "rows_ingested_total",
			Help:      "Total rows accepted by the ingestion pipeline.",
		}),

		rowErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Name:      "row_errors_total",
			Help:      "Total rejected run requests by reason.",
		}, []string{"reason"}),

		anomalyLikelihood: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: constants.AppName,
			Name:      "anomaly_likelihood",
			Help:      "Distribution of computed anomaly likelihoods.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	pm.registry.MustRegister(
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
		pm.modelsActive,
		pm.modelsCreatedTotal,
		pm.modelsDeletedTotal,
		pm.modelResetsTotal,
		pm.rowsIngestedTotal,
		pm.rowErrorsTotal,
		pm.anomalyLikelihood,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return pm
}

// Handler serves the scrape endpoint for this instance's registry.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRequest records one completed HTTP request.
func (pm *PrometheusMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	pm.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	pm.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ModelCreated tracks a successful create and the new live-model count.
func (pm *PrometheusMetrics) ModelCreated(liveModels int) {
	pm.modelsCreatedTotal.Inc()
	pm.modelsActive.Set(float64(liveModels))
}

// ModelDeleted tracks a successful delete and the new live-model count.
func (pm *PrometheusMetrics) ModelDeleted(liveModels int) {
	pm.modelsDeletedTotal.Inc()
	pm.modelsActive.Set(float64(liveModels))
}

// ModelReset tracks a successful reset.
func (pm *PrometheusMetrics) ModelReset() {
	pm.modelResetsTotal.Inc()
}

// RowsIngested adds accepted rows to the running total.
func (pm *PrometheusMetrics) RowsIngested(n int) {
	pm.rowsIngestedTotal.Add(float64(n))
}

// RowError counts a rejected run request by reason label.
func (pm *PrometheusMetrics) RowError(reason string) {
	pm.rowErrorsTotal.WithLabelValues(reason).Inc()
}

// ObserveLikelihood records a computed anomaly likelihood.
func (pm *PrometheusMetrics) ObserveLikelihood(p float64) {
	pm.anomalyLikelihood.Observe(p)
}
