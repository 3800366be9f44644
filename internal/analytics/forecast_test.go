package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictSeriesNeedsHistory(t *testing.T) {
	_, err := PredictSeries([]float64{1, 2, 3}, 5)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPredictSeriesFollowsTrend(t *testing.T) {
	// Ten days of steady warming; predictions should keep climbing.
	history := []float64{20, 21, 22, 23, 24, 25, 26, 27, 28, 29}

	out, err := PredictSeries(history, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Less(t, out[0], out[1])
	assert.Less(t, out[1], out[2])
	// The weighted base sits inside the recent range.
	assert.Greater(t, out[0], 20.0)
}

func TestPredictSeriesFlatHistory(t *testing.T) {
	history := []float64{15, 15, 15, 15, 15, 15, 15}

	out, err := PredictSeries(history, 2)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, out[0], 1e-9)
	assert.InDelta(t, 15.0, out[1], 1e-9)
}

func TestConfidencesNonIncreasing(t *testing.T) {
	out := Confidences(7)
	require.Len(t, out, 7)

	assert.InDelta(t, 0.90, out[0], 1e-9)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i], out[i-1])
	}
	for _, c := range out {
		assert.GreaterOrEqual(t, c, 0.5)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestConfidencesFloor(t *testing.T) {
	out := Confidences(20)
	assert.Equal(t, 0.5, out[19])
}

func TestEvaluateAccuracyPerfect(t *testing.T) {
	series := []float64{10, 20, 30}

	report, err := EvaluateAccuracy(series, series)
	require.NoError(t, err)

	assert.Equal(t, 0.0, report.MAE)
	assert.Equal(t, 0.0, report.RMSE)
	assert.Equal(t, 1.0, report.R2)
	assert.Equal(t, 100.0, report.Accuracy)
	assert.Equal(t, 3, report.Samples)
}

func TestEvaluateAccuracyErrors(t *testing.T) {
	_, err := EvaluateAccuracy([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrMismatchedSeries)

	_, err = EvaluateAccuracy(nil, nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEvaluateAccuracySkipsZeroActuals(t *testing.T) {
	report, err := EvaluateAccuracy([]float64{5, 10}, []float64{0, 10})
	require.NoError(t, err)
	// Only the nonzero actual contributes to MAPE.
	assert.Equal(t, 0.0, report.MAPE)
	assert.Greater(t, report.MAE, 0.0)
}

func TestSelectBestForecastByAccuracy(t *testing.T) {
	actual := []float64{10, 11, 12}
	candidates := []ForecastCandidate{
		{Source: "openmeteo", Predicted: []float64{10.1, 11.1, 12.1}},
		{Source: "weatherapi", Predicted: []float64{14, 15, 16}},
	}

	best, ok := SelectBestForecast(candidates, actual, []string{"weatherapi", "openmeteo"})
	require.True(t, ok)
	assert.Equal(t, "openmeteo", best.Source)
}

func TestSelectBestForecastByPriority(t *testing.T) {
	candidates := []ForecastCandidate{
		{Source: "openmeteo", Predicted: []float64{1, 2}},
		{Source: "weatherapi", Predicted: []float64{3, 4}},
	}

	best, ok := SelectBestForecast(candidates, nil, []string{"weatherapi", "openmeteo"})
	require.True(t, ok)
	assert.Equal(t, "weatherapi", best.Source)
}

func TestSelectBestForecastSingleCandidate(t *testing.T) {
	candidates := []ForecastCandidate{{Source: "openmeteo"}}

	best, ok := SelectBestForecast(candidates, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "openmeteo", best.Source)

	_, ok = SelectBestForecast(nil, nil, nil)
	assert.False(t, ok)
}
