package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/openhtm/htmserve/internal/observability/metrics"
	"github.com/openhtm/htmserve/internal/registry"
	"github.com/openhtm/htmserve/pkg/constants"
	"github.com/openhtm/htmserve/pkg/errors"
	"github.com/openhtm/htmserve/pkg/models"
)

// ModelsHandler serves the model lifecycle and ingestion endpoints.
type ModelsHandler struct {
	registry *registry.Registry
	metrics  *metrics.PrometheusMetrics
	logger   *logrus.Logger
}

// NewModelsHandler creates a models handler.
func NewModelsHandler(reg *registry.Registry, pm *metrics.PrometheusMetrics, logger *logrus.Logger) *ModelsHandler {
	return &ModelsHandler{
		registry: reg,
		metrics:  pm,
		logger:   logger,
	}
}

// createRequest is the wrapped create body. A body without a "params" key is
// treated as the bare parameter object itself.
type createRequest struct {
	Params        models.ModelParams     `json:"params"`
	Metrics       []models.MetricSpec    `json:"metrics"`
	InferenceArgs map[string]interface{} `json:"inferenceArgs"`
}

// createResponse is a model summary plus the parameter-source notice.
type createResponse struct {
	models.ModelSummary
	Info string `json:"info,omitempty"`
}

type successResponse struct {
	Success bool   `json:"success"`
	GUID    string `json:"guid"`
}

// Create handles POST /models.
func (h *ModelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, err := parseCreateBody(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.registry.Create(*input)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ModelCreated(h.registry.Len())
	}

	writeJSON(w, http.StatusCreated, createResponse{
		ModelSummary: out.Record.Summary(),
		Info:         out.Info,
	})
}

// parseCreateBody accepts an empty body, a wrapped {params, metrics,
// inferenceArgs} object, or a bare parameter object.
func parseCreateBody(body io.Reader) (*registry.CreateInput, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.NewInvalidConfigError(err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &registry.CreateInput{}, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, errors.NewMissingModelParamsError()
	}

	if _, wrapped := keys["params"]; !wrapped {
		var params models.ModelParams
		if err := json.Unmarshal(data, &params); err != nil {
			return nil, errors.NewMissingModelParamsError()
		}
		return &registry.CreateInput{Params: params}, nil
	}

	var req createRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.NewMissingModelParamsError()
	}
	return &registry.CreateInput{
		Params:        req.Params,
		Metrics:       req.Metrics,
		InferenceArgs: req.InferenceArgs,
	}, nil
}

// List handles GET /models.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

// Get handles GET /models/{id}.
func (h *ModelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	guid := mux.Vars(r)["id"]
	record, err := h.registry.Get(guid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record.Summary())
}

// Delete handles DELETE /models/{id}.
func (h *ModelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	guid := mux.Vars(r)["id"]
	if err := h.registry.Delete(guid); err != nil {
		writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ModelDeleted(h.registry.Len())
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, GUID: guid})
}

// Reset handles POST /models/{id}/reset.
func (h *ModelsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	guid := mux.Vars(r)["id"]
	if err := h.registry.Reset(guid); err != nil {
		writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ModelReset()
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, GUID: guid})
}

// Run handles PUT /models/{id}. The body is a single row object or an array
// of rows; the response is always an array of serialized results in input
// order.
func (h *ModelsHandler) Run(w http.ResponseWriter, r *http.Request) {
	guid := mux.Vars(r)["id"]

	rows, err := parseRows(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	results, err := h.registry.Run(guid, rows)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RowError(string(errors.AsAppError(err).Type))
		}
		writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RowsIngested(len(results))
		for _, res := range results {
			if res.AnomalyLikelihood != nil {
				h.metrics.ObserveLikelihood(*res.AnomalyLikelihood)
			}
		}
	}

	writeJSON(w, http.StatusOK, results)
}

// parseRows decodes the run body into an ordered row slice.
func parseRows(body io.Reader) ([]models.Row, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.NewInvalidConfigError(err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.NewInvalidConfigError(errBodyRequired)
	}

	var rows []models.Row
	if data[0] == '[' {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, errors.NewInvalidConfigError(err)
		}
	} else {
		var row models.Row
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, errors.NewInvalidConfigError(err)
		}
		rows = []models.Row{row}
	}

	if len(rows) > constants.MaxBatchRows {
		return nil, errors.NewInvalidConfigError(errBatchTooLarge)
	}
	return rows, nil
}

var (
	errBodyRequired  = stderrors.New("PUT body must be a JSON row object or array of rows")
	errBatchTooLarge = fmt.Errorf("batch exceeds the maximum of %d rows", constants.MaxBatchRows)
)
