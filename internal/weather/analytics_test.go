package weather

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDailyAggregates(t *testing.T, st *memStore, locationID string, start time.Time, temps []float64) {
	t.Helper()
	for i, v := range temps {
		require.NoError(t, st.ReplaceAggregate(context.Background(), DailyAggregate{
			LocationID:      locationID,
			Date:            start.AddDate(0, 0, i),
			Granularity:     GranularityDaily,
			TempAvg:         Float(v),
			SourcesObserved: []string{"imd"},
			ReadingCount:    24,
		}))
	}
}

func TestRunDailyAggregation(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil)

	date := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 4; h++ {
		require.NoError(t, st.SaveReading(context.Background(), Reading{
			LocationID:  "delhi",
			Source:      "imd",
			CapturedAt:  date.Add(time.Duration(h) * time.Hour),
			Temperature: Float(28 + float64(h)),
		}))
	}

	agg, err := svc.RunDailyAggregation(context.Background(), "delhi", date.Add(10*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, agg)

	assert.Equal(t, date, agg.Date)
	assert.Equal(t, 4, agg.ReadingCount)
	require.Len(t, st.aggregates, 1)

	// Rerunning replaces the stored row instead of duplicating it.
	_, err = svc.RunDailyAggregation(context.Background(), "delhi", date)
	require.NoError(t, err)
	assert.Len(t, st.aggregates, 1)
}

func TestRunDailyAggregationNoData(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	_, err := svc.RunDailyAggregation(context.Background(), "delhi", time.Now())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestAggregateSeriesDaily(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedDailyAggregates(t, st, "delhi", start, []float64{30, 31, 32})

	series, cached, err := svc.AggregateSeries(context.Background(), "delhi", "temperature",
		start, start.AddDate(0, 0, 7), GranularityDaily)
	require.NoError(t, err)
	assert.False(t, cached)

	require.Len(t, series, 3)
	assert.Equal(t, 30.0, series[0].Value)
	assert.Equal(t, 1, series[0].SourceCount)
	assert.True(t, series[0].Date.Before(series[1].Date))
}

func TestAggregateSeriesUnknownMetric(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	_, _, err := svc.AggregateSeries(context.Background(), "delhi", "sunspots",
		time.Now().AddDate(0, 0, -7), time.Now(), GranularityDaily)
	assert.Error(t, err)
}

func TestAggregateSeriesHourlyFromRaw(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil)

	date := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	// Two sources in the same hour average into one bucket.
	require.NoError(t, st.SaveReading(context.Background(), Reading{
		LocationID: "delhi", Source: "imd", CapturedAt: date.Add(6 * time.Hour), Temperature: Float(30),
	}))
	require.NoError(t, st.SaveReading(context.Background(), Reading{
		LocationID: "delhi", Source: "openmeteo", CapturedAt: date.Add(6*time.Hour + 20*time.Minute), Temperature: Float(32),
	}))
	require.NoError(t, st.SaveReading(context.Background(), Reading{
		LocationID: "delhi", Source: "imd", CapturedAt: date.Add(9 * time.Hour), Temperature: Float(34),
	}))

	series, _, err := svc.AggregateSeries(context.Background(), "delhi", "temperature",
		date, date.AddDate(0, 0, 1), GranularityHourly)
	require.NoError(t, err)

	require.Len(t, series, 2)
	assert.InDelta(t, 31.0, series[0].Value, 1e-9)
	assert.Equal(t, 2, series[0].SourceCount)
	assert.Equal(t, 34.0, series[1].Value)
}

func TestTrendOverDailySeries(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedDailyAggregates(t, st, "delhi", start, []float64{20, 21, 20, 28, 29, 30})

	report, _, err := svc.Trend(context.Background(), "delhi", "temperature",
		start, start.AddDate(0, 0, 10))
	require.NoError(t, err)

	assert.Equal(t, "delhi", report.LocationID)
	assert.Len(t, report.Series, 6)
	assert.NotEmpty(t, report.Result.Direction)
}

func TestTrendInsufficientHistory(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedDailyAggregates(t, st, "delhi", start, []float64{20, 21})

	_, _, err := svc.Trend(context.Background(), "delhi", "temperature",
		start, start.AddDate(0, 0, 10))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestCorrelationSkipsOneSidedDays(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	temps := []float64{31, 33, 35, 37, 39}
	pms := []float64{80, 95, 110, 128, 140}
	for i := range temps {
		require.NoError(t, st.ReplaceAggregate(context.Background(), DailyAggregate{
			LocationID:  "delhi",
			Date:        start.AddDate(0, 0, i),
			Granularity: GranularityDaily,
			TempAvg:     Float(temps[i]),
			PM25Avg:     Float(pms[i]),
		}))
	}
	// A day with temperature only must not enter the pairing.
	require.NoError(t, st.ReplaceAggregate(context.Background(), DailyAggregate{
		LocationID:  "delhi",
		Date:        start.AddDate(0, 0, 5),
		Granularity: GranularityDaily,
		TempAvg:     Float(40),
	}))

	report, _, err := svc.Correlation(context.Background(), "delhi", "temperature", "pm25",
		start, start.AddDate(0, 0, 10))
	require.NoError(t, err)

	assert.Equal(t, 5, report.Result.Points)
	assert.GreaterOrEqual(t, report.Result.Coefficient, 0.99)
	assert.Len(t, report.SeriesA, 5)
}

func TestCompareRanksAscendingAndSkipsEmpty(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range []float64{250, 260, 255} {
		require.NoError(t, st.ReplaceAggregate(context.Background(), DailyAggregate{
			LocationID: "delhi", Date: start.AddDate(0, 0, i),
			Granularity: GranularityDaily, AQIAvg: Float(v),
		}))
	}
	for i, v := range []float64{90, 95, 100} {
		require.NoError(t, st.ReplaceAggregate(context.Background(), DailyAggregate{
			LocationID: "bengaluru", Date: start.AddDate(0, 0, i),
			Granularity: GranularityDaily, AQIAvg: Float(v),
		}))
	}

	report, _, err := svc.Compare(context.Background(), []string{"delhi", "bengaluru", "mumbai"},
		"aqi", start, start.AddDate(0, 0, 7))
	require.NoError(t, err)

	// Mumbai has no data and is skipped, not zero-filled.
	require.Len(t, report.Locations, 2)
	assert.Equal(t, "bengaluru", report.Locations[0].LocationID)
	assert.Equal(t, "delhi", report.Locations[1].LocationID)
	assert.InDelta(t, 95.0, report.Locations[0].Average, 1e-9)
	assert.Equal(t, 90.0, report.Locations[0].Min)
	assert.Equal(t, 100.0, report.Locations[0].Max)
}

func TestForecastFromHistory(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -10)
	temps := make([]float64, 10)
	for i := range temps {
		temps[i] = 25 + float64(i)*0.5
	}
	seedDailyAggregates(t, st, "delhi", start, temps)

	report, err := svc.Forecast(context.Background(), testLocation, 5)
	require.NoError(t, err)

	assert.Equal(t, MethodHistoricalPrediction, report.Method)
	require.Len(t, report.Points, 5)

	prev := 1.0
	for i, p := range report.Points {
		assert.Equal(t, MethodHistoricalPrediction, p.Method)
		require.NotNil(t, p.Temperature, "point %d", i)
		assert.LessOrEqual(t, p.Confidence, prev)
		assert.GreaterOrEqual(t, p.Confidence, 0.5)
		prev = p.Confidence

		assert.True(t, p.ForecastDate.After(today))
	}

	// The stored set was replaced wholesale for the method.
	stored, err := st.Forecasts(context.Background(), "delhi")
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestForecastUnavailableWithoutHistoryOrSources(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	_, err := svc.Forecast(context.Background(), testLocation, 3)
	assert.ErrorIs(t, err, ErrForecastUnavailable)
}

func TestForecastRejectsBadDays(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	_, err := svc.Forecast(context.Background(), testLocation, 0)
	assert.Error(t, err)
}

func TestForecastAccuracy(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	past := today.AddDate(0, 0, -3)

	points := []ForecastPoint{
		{LocationID: "delhi", ForecastDate: past, Method: MethodHistoricalPrediction, Temperature: Float(30)},
		{LocationID: "delhi", ForecastDate: past.AddDate(0, 0, 1), Method: MethodHistoricalPrediction, Temperature: Float(31)},
	}
	require.NoError(t, st.ReplaceForecasts(context.Background(), "delhi", MethodHistoricalPrediction, points))
	seedDailyAggregates(t, st, "delhi", past, []float64{30.5, 30.5})

	report, err := svc.ForecastAccuracy(context.Background(), "delhi", "temperature")
	require.NoError(t, err)

	acc, ok := report.Methods[MethodHistoricalPrediction]
	require.True(t, ok)
	assert.Equal(t, 2, acc.Samples)
	assert.InDelta(t, 0.5, acc.MAE, 1e-9)
	assert.Equal(t, MethodHistoricalPrediction, report.BestMethod)
}

func TestForecastAccuracyNoForecasts(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	_, err := svc.ForecastAccuracy(context.Background(), "delhi", "temperature")
	assert.ErrorIs(t, err, ErrNoData)
}
