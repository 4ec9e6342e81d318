// Package registry manages concurrent model lifecycles: creation, lookup,
// reset, deletion, and the per-row ingestion pipeline.
package registry

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openhtm/htmserve/internal/anomaly"
	"github.com/openhtm/htmserve/internal/metrics"
	"github.com/openhtm/htmserve/internal/temporal"
	"github.com/openhtm/htmserve/pkg/constants"
	"github.com/openhtm/htmserve/pkg/errors"
	"github.com/openhtm/htmserve/pkg/interfaces"
	"github.com/openhtm/htmserve/pkg/models"
)

// Config configures a Registry.
type Config struct {
	// EngineFactory constructs the engine backing each model. Required.
	EngineFactory interfaces.EngineFactory

	// NewEstimator constructs a fresh likelihood estimator. Defaults to the
	// standard sliding-window estimator.
	NewEstimator func() interfaces.LikelihoodEstimator
}

// Registry is a concurrency-safe mapping from model guid to ModelRecord. It
// is constructed at startup and injected into the handlers; there is no
// package-level instance.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*ModelRecord
	order   []string

	engineFactory interfaces.EngineFactory
	newEstimator  func() interfaces.LikelihoodEstimator
	logger        *logrus.Logger
}

// New creates an empty registry.
func New(config *Config, logger *logrus.Logger) (*Registry, error) {
	if config == nil || config.EngineFactory == nil {
		return nil, fmt.Errorf("registry requires an engine factory")
	}
	if logger == nil {
		logger = logrus.New()
	}

	newEstimator := config.NewEstimator
	if newEstimator == nil {
		newEstimator = func() interfaces.LikelihoodEstimator {
			return anomaly.NewLikelihoodEstimator()
		}
	}

	return &Registry{
		records:       make(map[string]*ModelRecord),
		engineFactory: config.EngineFactory,
		newEstimator:  newEstimator,
		logger:        logger,
	}, nil
}

// CreateInput carries everything a create request may supply.
type CreateInput struct {
	Params        models.ModelParams
	Metrics       []models.MetricSpec
	InferenceArgs map[string]interface{}
}

// CreateOutput is the result of a successful create.
type CreateOutput struct {
	Record *ModelRecord
	Info   string
}

// Create builds a model record: engine, temporal field, prediction mode,
// estimator, optional metrics aggregator, optional shifter. The guid comes
// from params ("guid") or is freshly assigned.
func (reg *Registry) Create(input CreateInput) (*CreateOutput, error) {
	params := input.Params
	inferenceArgs := input.InferenceArgs
	info := "Used provided model parameters"

	if len(params) == 0 {
		params = models.DefaultModelParams()
		inferenceArgs = map[string]interface{}{
			"predictedField": constants.DefaultPredictedField,
		}
		info = fmt.Sprintf("Using default parameters, timestamp is field %s and input and predictedField is %s",
			constants.DefaultTemporalField, constants.DefaultPredictedField)
	}

	if !params.HasModelParams() {
		return nil, errors.NewMissingModelParamsError()
	}

	guid, explicit := params.GUID()
	if explicit {
		reg.mu.RLock()
		_, taken := reg.records[guid]
		reg.mu.RUnlock()
		if taken {
			return nil, errors.NewDuplicateGUIDError(guid)
		}
	} else {
		guid = uuid.New().String()
	}

	temporalField, err := temporal.ResolveField(params)
	if err != nil {
		if stderrors.Is(err, errors.ErrMissingModelParams) {
			return nil, errors.NewMissingModelParamsError()
		}
		return nil, errors.NewInvalidConfigError(err)
	}

	predictedField, predictionOn, err := resolvePredictionMode(inferenceArgs, reg.logger)
	if err != nil {
		return nil, err
	}

	eng, err := reg.engineFactory(params)
	if err != nil {
		return nil, errors.NewInvalidConfigError(err)
	}

	record := &ModelRecord{
		guid:           guid,
		engine:         eng,
		params:         params,
		temporalField:  temporalField,
		predictedField: predictedField,
		predictionOn:   predictionOn,
		estimator:      reg.newEstimator(),
	}

	if predictionOn {
		// One-time, non-reversible engine configuration.
		if err := eng.EnableInference(map[string]interface{}{"predictedField": predictedField}); err != nil {
			eng.Close()
			return nil, errors.NewInvalidConfigError(err)
		}
		record.shifter = NewInferenceShifter()
		reg.logger.WithFields(logrus.Fields{
			"guid":            guid,
			"predicted_field": predictedField,
		}).Info("Enabled predicted field")
	} else {
		reg.logger.WithField("guid", guid).Info("No predicted field enabled")
	}

	if len(input.Metrics) > 0 {
		agg, err := metrics.NewAggregator(input.Metrics, eng.GetFieldInfo(), eng.GetInferenceType(), reg.logger)
		if err != nil {
			eng.Close()
			return nil, errors.NewInvalidConfigError(err)
		}
		record.aggregator = agg
		record.metricSpecs = input.Metrics
	}

	reg.mu.Lock()
	if _, taken := reg.records[guid]; taken {
		reg.mu.Unlock()
		eng.Close()
		return nil, errors.NewDuplicateGUIDError(guid)
	}
	reg.records[guid] = record
	reg.order = append(reg.order, guid)
	reg.mu.Unlock()

	reg.logger.WithFields(logrus.Fields{
		"guid":           guid,
		"temporal_field": temporalField,
	}).Info("Made model")

	return &CreateOutput{Record: record, Info: info}, nil
}

// resolvePredictionMode applies the inference-args contract: absent args fall
// back to the default predicted field; an explicitly null predictedField
// disables prediction.
func resolvePredictionMode(inferenceArgs map[string]interface{}, logger *logrus.Logger) (string, bool, error) {
	if inferenceArgs == nil {
		logger.WithField("predicted_field", constants.DefaultPredictedField).
			Info("No inferenceArgs supplied, falling back to default predicted field")
		return constants.DefaultPredictedField, true, nil
	}

	raw, ok := inferenceArgs["predictedField"]
	if !ok || raw == nil {
		return "", false, nil
	}
	field, ok := raw.(string)
	if !ok || field == "" {
		return "", false, errors.NewInvalidConfigError(fmt.Errorf("inferenceArgs.predictedField must be a non-empty string"))
	}
	return field, true, nil
}

// Get returns the record for guid.
func (reg *Registry) Get(guid string) (*ModelRecord, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	record, ok := reg.records[guid]
	if !ok {
		return nil, errors.NewNotFoundError(guid)
	}
	return record, nil
}

// List returns summaries in creation order, which stays stable for the life
// of the process.
func (reg *Registry) List() []models.ModelSummary {
	reg.mu.RLock()
	guids := make([]string, len(reg.order))
	copy(guids, reg.order)
	records := make([]*ModelRecord, 0, len(guids))
	for _, guid := range guids {
		if record, ok := reg.records[guid]; ok {
			records = append(records, record)
		}
	}
	reg.mu.RUnlock()

	summaries := make([]models.ModelSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, record.Summary())
	}
	return summaries
}

// Reset reseeds the engine's sequence state and rebuilds the estimator;
// engine learning state and estimator state always reset together. Params,
// aggregator, and shifter are untouched.
func (reg *Registry) Reset(guid string) error {
	record, err := reg.Get(guid)
	if err != nil {
		return err
	}

	record.mu.Lock()
	defer record.mu.Unlock()

	reg.logger.WithField("guid", guid).Info("Resetting model")

	if err := record.engine.ResetSequenceStates(); err != nil {
		return errors.NewInternalError(err)
	}
	record.estimator = reg.newEstimator()
	record.rowsSeen = 0
	record.lastRow = nil
	return nil
}

// Delete removes the mapping and releases engine resources. The guid is free
// for reuse afterwards.
func (reg *Registry) Delete(guid string) error {
	reg.mu.Lock()
	record, ok := reg.records[guid]
	if !ok {
		reg.mu.Unlock()
		return errors.NewNotFoundError(guid)
	}
	delete(reg.records, guid)
	for i, g := range reg.order {
		if g == guid {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
	reg.mu.Unlock()

	reg.logger.WithField("guid", guid).Info("Deleting model")

	if err := record.engine.Close(); err != nil {
		reg.logger.WithError(err).WithField("guid", guid).Warn("Engine close failed")
	}
	return nil
}

// Len returns the number of live models.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.records)
}
