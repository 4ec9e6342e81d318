// Package handlers contains the HTTP handlers for the model API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/openhtm/htmserve/internal/observability/metrics"
	"github.com/openhtm/htmserve/internal/registry"
	"github.com/openhtm/htmserve/pkg/constants"
	"github.com/openhtm/htmserve/pkg/errors"
)

// Handlers bundles all HTTP handlers behind a single constructor.
type Handlers struct {
	Models *ModelsHandler
	Health *HealthHandler

	metrics *metrics.PrometheusMetrics
}

// NewHandlers creates the handler set. The registry is required; metrics may
// be nil when instrumentation is disabled.
func NewHandlers(reg *registry.Registry, pm *metrics.PrometheusMetrics, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handlers{
		Models:  NewModelsHandler(reg, pm, logger),
		Health:  NewHealthHandler(logger),
		metrics: pm,
	}
}

// MetricsHandler returns the scrape endpoint, or a 404 handler when
// instrumentation is disabled.
func (h *Handlers) MetricsHandler() http.Handler {
	if h.metrics == nil {
		return http.NotFoundHandler()
	}
	return h.metrics.Handler()
}

// NotFound is the catch-all for unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorBody(w, http.StatusNotFound, "Not found")
}

// writeJSON serializes v with the standard content type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error chain to its HTTP status and the wire body
// {"error": "<message>"}.
func writeError(w http.ResponseWriter, err error) {
	appErr := errors.AsAppError(err)
	writeErrorBody(w, appErr.HTTPStatus, appErr.Message)
}

func writeErrorBody(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
