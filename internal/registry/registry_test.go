package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhtm/htmserve/internal/anomaly"
	"github.com/openhtm/htmserve/internal/engine"
	"github.com/openhtm/htmserve/pkg/errors"
	"github.com/openhtm/htmserve/pkg/interfaces"
	"github.com/openhtm/htmserve/pkg/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	reg, err := New(&Config{
		EngineFactory: engine.Factory(),
		NewEstimator: func() interfaces.LikelihoodEstimator {
			return anomaly.NewLikelihoodEstimatorWithWindows(2, 2)
		},
	}, logger)
	require.NoError(t, err)
	return reg
}

func paramsWithGUID(guid string) models.ModelParams {
	params := models.DefaultModelParams()
	params["guid"] = guid
	return params
}

func TestCreateDefaultParams(t *testing.T) {
	reg := newTestRegistry(t)

	out, err := reg.Create(CreateInput{})
	require.NoError(t, err)
	require.NotNil(t, out.Record)
	assert.Contains(t, out.Info, "default parameters")

	summary := out.Record.Summary()
	require.NotNil(t, summary.PredictedField)
	assert.Equal(t, "c1", *summary.PredictedField)
	require.NotNil(t, summary.TemporalField)
	assert.Equal(t, "c0", *summary.TemporalField)
	assert.Equal(t, int64(0), summary.Seen)
	assert.Nil(t, summary.Last)
	assert.NotEmpty(t, summary.GUID)
}

func TestCreateExplicitGUID(t *testing.T) {
	reg := newTestRegistry(t)

	out, err := reg.Create(CreateInput{Params: paramsWithGUID("m1")})
	require.NoError(t, err)
	assert.Equal(t, "m1", out.Record.GUID())
	assert.Equal(t, "Used provided model parameters", out.Info)
}

func TestCreateDuplicateGUID(t *testing.T) {
	reg := newTestRegistry(t)

	first, err := reg.Create(CreateInput{Params: paramsWithGUID("m1")})
	require.NoError(t, err)

	_, runErr := reg.Run("m1", []models.Row{{"c0": 1.0, "c1": 5.0}})
	require.NoError(t, runErr)

	_, err = reg.Create(CreateInput{Params: paramsWithGUID("m1")})
	require.Error(t, err)
	appErr := errors.AsAppError(err)
	assert.Equal(t, 409, appErr.HTTPStatus)
	assert.Equal(t, `The guid "m1" is not unique.`, appErr.Message)

	// Existing record untouched by the failed create.
	assert.Equal(t, int64(1), first.Record.RowsSeen())
	assert.Equal(t, 1, reg.Len())
}

func TestCreateMissingModelParams(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create(CreateInput{Params: models.ModelParams{"foo": "bar"}})
	require.Error(t, err)
	appErr := errors.AsAppError(err)
	assert.Equal(t, 400, appErr.HTTPStatus)
	assert.Equal(t, "POST body must include JSON with a modelParams value.", appErr.Message)
}

func TestCreateMultipleDateEncoders(t *testing.T) {
	reg := newTestRegistry(t)

	params := models.ModelParams{
		"modelParams": map[string]interface{}{
			"sensorParams": map[string]interface{}{
				"encoders": map[string]interface{}{
					"t1": map[string]interface{}{"type": "DateEncoder", "fieldname": "c0"},
					"t2": map[string]interface{}{"type": "DateEncoder", "fieldname": "c9"},
				},
			},
		},
	}

	_, err := reg.Create(CreateInput{Params: params})
	require.Error(t, err)
	appErr := errors.AsAppError(err)
	assert.Equal(t, 400, appErr.HTTPStatus)
	assert.ErrorIs(t, err, errors.ErrMultipleDateFields)
}

func TestCreatePredictionDisabled(t *testing.T) {
	reg := newTestRegistry(t)

	out, err := reg.Create(CreateInput{
		Params:        models.DefaultModelParams(),
		InferenceArgs: map[string]interface{}{"predictedField": nil},
	})
	require.NoError(t, err)

	summary := out.Record.Summary()
	assert.Nil(t, summary.PredictedField)
	assert.Nil(t, out.Record.shifter)
}

func TestCreateDefaultsPredictedFieldWithoutInferenceArgs(t *testing.T) {
	reg := newTestRegistry(t)

	out, err := reg.Create(CreateInput{Params: models.DefaultModelParams()})
	require.NoError(t, err)

	summary := out.Record.Summary()
	require.NotNil(t, summary.PredictedField)
	assert.Equal(t, "c1", *summary.PredictedField)
}

func TestGetUnknown(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Get("nope")
	require.Error(t, err)
	assert.Equal(t, 404, errors.AsAppError(err).HTTPStatus)
}

func TestListStableOrder(t *testing.T) {
	reg := newTestRegistry(t)

	for i := 0; i < 5; i++ {
		_, err := reg.Create(CreateInput{Params: paramsWithGUID(fmt.Sprintf("m%d", i))})
		require.NoError(t, err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		summaries := reg.List()
		require.Len(t, summaries, 5)
		for i, s := range summaries {
			assert.Equal(t, fmt.Sprintf("m%d", i), s.GUID)
		}
	}
}

func TestResetClearsSequenceState(t *testing.T) {
	reg := newTestRegistry(t)

	out, err := reg.Create(CreateInput{Params: paramsWithGUID("m1")})
	require.NoError(t, err)
	record := out.Record

	_, err = reg.Run("m1", []models.Row{
		{"c0": 1.0, "c1": 5.0},
		{"c0": 2.0, "c1": 6.0},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), record.RowsSeen())

	oldEstimator := record.estimator
	oldAggregator := record.aggregator

	require.NoError(t, reg.Reset("m1"))

	summary := record.Summary()
	assert.Equal(t, int64(0), summary.Seen)
	assert.Nil(t, summary.Last)
	assert.NotSame(t, oldEstimator, record.estimator)
	assert.Equal(t, oldAggregator, record.aggregator)
	assert.Equal(t, "m1", record.GUID())

	// Previously rejected old data is accepted again after reset.
	_, err = reg.Run("m1", []models.Row{{"c0": 1.0, "c1": 5.0}})
	assert.NoError(t, err)
}

func TestResetUnknown(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.Reset("nope")
	require.Error(t, err)
	assert.Equal(t, 404, errors.AsAppError(err).HTTPStatus)
}

func TestDeleteFreesGUID(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create(CreateInput{Params: paramsWithGUID("m1")})
	require.NoError(t, err)
	require.NoError(t, reg.Delete("m1"))

	_, err = reg.Get("m1")
	assert.Equal(t, 404, errors.AsAppError(err).HTTPStatus)

	_, err = reg.Run("m1", []models.Row{{"c0": 1.0, "c1": 5.0}})
	assert.Equal(t, 404, errors.AsAppError(err).HTTPStatus)

	err = reg.Reset("m1")
	assert.Equal(t, 404, errors.AsAppError(err).HTTPStatus)

	// The guid is reusable once freed.
	_, err = reg.Create(CreateInput{Params: paramsWithGUID("m1")})
	assert.NoError(t, err)
}

func TestDeleteUnknown(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.Delete("nope")
	require.Error(t, err)
	assert.Equal(t, 404, errors.AsAppError(err).HTTPStatus)
}

func TestConcurrentCreateAndRunDistinctModels(t *testing.T) {
	reg := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			guid := fmt.Sprintf("m%d", i)
			_, err := reg.Create(CreateInput{Params: paramsWithGUID(guid)})
			assert.NoError(t, err)
			for j := 0; j < 20; j++ {
				_, err := reg.Run(guid, []models.Row{{"c0": float64(j), "c1": float64(j)}})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, reg.Len())
	for _, s := range reg.List() {
		assert.Equal(t, int64(20), s.Seen)
	}
}
