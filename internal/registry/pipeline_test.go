package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhtm/htmserve/pkg/errors"
	"github.com/openhtm/htmserve/pkg/models"
)

func createModel(t *testing.T, reg *Registry, guid string) *ModelRecord {
	t.Helper()
	out, err := reg.Create(CreateInput{Params: paramsWithGUID(guid)})
	require.NoError(t, err)
	return out.Record
}

func TestRunBatchInOrder(t *testing.T) {
	reg := newTestRegistry(t)
	record := createModel(t, reg, "m1")

	rows := make([]models.Row, 0, 10)
	for i := 0; i < 10; i++ {
		rows = append(rows, models.Row{"c0": float64(100 + i), "c1": float64(i)})
	}

	results, err := reg.Run("m1", rows)
	require.NoError(t, err)
	require.Len(t, results, 10)
	assert.Equal(t, int64(10), record.RowsSeen())

	for i, res := range results {
		assert.Equal(t, i+1, res.PredictionNumber)
		assert.Equal(t, float64(100+i), res.RawInput["c0"])
		assert.Contains(t, res.Inferences, "anomalyScore")
		require.NotNil(t, res.AnomalyLikelihood)
		assert.GreaterOrEqual(t, *res.AnomalyLikelihood, 0.0)
		assert.LessOrEqual(t, *res.AnomalyLikelihood, 1.0)
	}
}

func TestRunEqualTimestampsAccepted(t *testing.T) {
	reg := newTestRegistry(t)
	record := createModel(t, reg, "m1")

	_, err := reg.Run("m1", []models.Row{
		{"c0": 100.0, "c1": 1.0},
		{"c0": 100.0, "c1": 2.0},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), record.RowsSeen())
}

func TestRunOldDataRejected(t *testing.T) {
	reg := newTestRegistry(t)
	record := createModel(t, reg, "m1")

	_, err := reg.Run("m1", []models.Row{{"c0": 100.0, "c1": 5.0}})
	require.NoError(t, err)

	results, err := reg.Run("m1", []models.Row{{"c0": 50.0, "c1": 6.0}})
	require.Error(t, err)
	assert.Nil(t, results)

	appErr := errors.AsAppError(err)
	assert.Equal(t, 400, appErr.HTTPStatus)
	assert.Equal(t, "Cannot run old data", appErr.Message)

	// The rejected row mutated nothing.
	summary := record.Summary()
	assert.Equal(t, int64(1), summary.Seen)
	assert.Equal(t, 100.0, summary.Last["c0"])
}

func TestRunOldDataMidBatchNoPartialResults(t *testing.T) {
	reg := newTestRegistry(t)
	record := createModel(t, reg, "m1")

	results, err := reg.Run("m1", []models.Row{
		{"c0": 100.0, "c1": 1.0},
		{"c0": 101.0, "c1": 2.0},
		{"c0": 90.0, "c1": 3.0}, // regression
		{"c0": 102.0, "c1": 4.0},
	})
	require.Error(t, err)
	assert.Nil(t, results)

	// Rows before the regression were accepted and counted.
	assert.Equal(t, int64(2), record.RowsSeen())
}

func TestRunStringTimestampsLexicalOrdering(t *testing.T) {
	reg := newTestRegistry(t)
	createModel(t, reg, "m1")

	_, err := reg.Run("m1", []models.Row{
		{"c0": "2021-06-01 12:00:00", "c1": 1.0},
		{"c0": "2021-06-01 13:00:00", "c1": 2.0},
	})
	require.NoError(t, err)

	_, err = reg.Run("m1", []models.Row{{"c0": "2021-06-01 11:00:00", "c1": 3.0}})
	require.Error(t, err)
	assert.Equal(t, "Cannot run old data", errors.AsAppError(err).Message)
}

func TestRunUnparseableTimestamp(t *testing.T) {
	reg := newTestRegistry(t)
	record := createModel(t, reg, "m1")

	results, err := reg.Run("m1", []models.Row{{"c0": "garbage", "c1": 1.0}})
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 400, errors.AsAppError(err).HTTPStatus)
	assert.ErrorIs(t, err, errors.ErrUnparseableDate)

	// Ordering bookkeeping ran before the parse failed.
	assert.Equal(t, int64(1), record.RowsSeen())
}

func TestRunUnknownModel(t *testing.T) {
	reg := newTestRegistry(t)

	results, err := reg.Run("nope", []models.Row{{"c0": 1.0, "c1": 1.0}})
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 404, errors.AsAppError(err).HTTPStatus)
}

func TestRunTemporalFieldEchoedAsUnixSeconds(t *testing.T) {
	reg := newTestRegistry(t)
	createModel(t, reg, "m1")

	results, err := reg.Run("m1", []models.Row{{"c0": "1970-01-01T00:00:01Z", "c1": 5.0}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 1.0, results[0].RawInput["c0"])
	assert.Equal(t, 1.0, results[0].SensorInput.DataDict["c0"])
}

func TestRunWithMetricsSpecs(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create(CreateInput{
		Params: paramsWithGUID("m1"),
		Metrics: []models.MetricSpec{
			{Field: "c1", Metric: "aae", InferenceElement: "prediction"},
		},
	})
	require.NoError(t, err)

	var results []models.SerializedResult
	for i := 0; i < 5; i++ {
		results, err = reg.Run("m1", []models.Row{{"c0": float64(i), "c1": 10.0}})
		require.NoError(t, err)
	}

	require.Len(t, results, 1)
	require.NotNil(t, results[0].Metrics)
	assert.Contains(t, results[0].Metrics, "prediction:aae:field=c1")
}

func TestRunNoTemporalFieldSkipsLikelihood(t *testing.T) {
	reg := newTestRegistry(t)

	params := models.ModelParams{
		"guid": "m1",
		"modelParams": map[string]interface{}{
			"sensorParams": map[string]interface{}{
				"encoders": map[string]interface{}{
					"c1": map[string]interface{}{"type": "ScalarEncoder", "fieldname": "c1"},
				},
			},
		},
	}
	_, err := reg.Create(CreateInput{Params: params})
	require.NoError(t, err)

	results, err := reg.Run("m1", []models.Row{{"c1": 5.0}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].AnomalyLikelihood)
}

func TestRunSeenAccumulatesAcrossBatches(t *testing.T) {
	reg := newTestRegistry(t)
	record := createModel(t, reg, "m1")

	for batch := 0; batch < 3; batch++ {
		rows := []models.Row{
			{"c0": float64(batch*10 + 1), "c1": 1.0},
			{"c0": float64(batch*10 + 2), "c1": 2.0},
		}
		_, err := reg.Run("m1", rows)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(6), record.RowsSeen())
}

func TestRunManyModelsIndependentOrdering(t *testing.T) {
	reg := newTestRegistry(t)
	for i := 0; i < 3; i++ {
		createModel(t, reg, fmt.Sprintf("m%d", i))
	}

	// Advancing m0 does not constrain m1 or m2.
	_, err := reg.Run("m0", []models.Row{{"c0": 1000.0, "c1": 1.0}})
	require.NoError(t, err)
	_, err = reg.Run("m1", []models.Row{{"c0": 1.0, "c1": 1.0}})
	require.NoError(t, err)
	_, err = reg.Run("m2", []models.Row{{"c0": 5.0, "c1": 1.0}})
	require.NoError(t, err)
}
