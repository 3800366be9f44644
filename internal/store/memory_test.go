package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsentinel/airsentinel/internal/weather"
)

var ctx = context.Background()

func reading(locationID, source string, at time.Time) weather.Reading {
	return weather.Reading{
		LocationID:  locationID,
		Source:      source,
		CapturedAt:  at,
		Temperature: weather.Float(30),
	}
}

func TestLatestReadingsOrderAndLimit(t *testing.T) {
	s := NewMemoryStore(0, 0)
	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	require.NoError(t, s.SaveReading(ctx, reading("delhi", "imd", base.Add(2*time.Hour))))
	require.NoError(t, s.SaveReading(ctx, reading("delhi", "imd", base)))
	require.NoError(t, s.SaveReading(ctx, reading("delhi", "imd", base.Add(time.Hour))))

	latest, err := s.LatestReadings(ctx, "delhi", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, base.Add(2*time.Hour), latest[0].CapturedAt)
	assert.Equal(t, base.Add(time.Hour), latest[1].CapturedAt)
}

func TestLatestReadingsNotFound(t *testing.T) {
	s := NewMemoryStore(0, 0)

	_, err := s.LatestReadings(ctx, "nowhere", 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadingsRangeHalfOpen(t *testing.T) {
	s := NewMemoryStore(0, 0)
	base := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	for h := 0; h < 4; h++ {
		require.NoError(t, s.SaveReading(ctx, reading("delhi", "imd", base.Add(time.Duration(h)*time.Hour))))
	}

	out, err := s.ReadingsRange(ctx, "delhi", base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, base.Add(time.Hour), out[0].CapturedAt)
	assert.Equal(t, base.Add(2*time.Hour), out[1].CapturedAt)
}

func TestReadingsRangeEmptyIsNotError(t *testing.T) {
	s := NewMemoryStore(0, 0)

	out, err := s.ReadingsRange(ctx, "delhi", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMaxReadingsRetention(t *testing.T) {
	s := NewMemoryStore(2, 0)
	base := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	for h := 0; h < 5; h++ {
		require.NoError(t, s.SaveReading(ctx, reading("delhi", "imd", base.Add(time.Duration(h)*time.Hour))))
	}

	latest, err := s.LatestReadings(ctx, "delhi", 10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	// The oldest entries were dropped, not the newest.
	assert.Equal(t, base.Add(4*time.Hour), latest[0].CapturedAt)
}

func TestMaxAgeRetention(t *testing.T) {
	s := NewMemoryStore(0, time.Hour)
	now := time.Now().UTC()

	require.NoError(t, s.SaveReading(ctx, reading("delhi", "imd", now.Add(-2*time.Hour))))
	require.NoError(t, s.SaveReading(ctx, reading("delhi", "imd", now)))

	latest, err := s.LatestReadings(ctx, "delhi", 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, now, latest[0].CapturedAt)
}

func TestReplaceAggregateOverwrites(t *testing.T) {
	s := NewMemoryStore(0, 0)
	date := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	agg := weather.DailyAggregate{
		LocationID:  "delhi",
		Date:        date,
		Granularity: weather.GranularityDaily,
		TempAvg:     weather.Float(30),
	}
	require.NoError(t, s.ReplaceAggregate(ctx, agg))

	agg.TempAvg = weather.Float(32)
	require.NoError(t, s.ReplaceAggregate(ctx, agg))

	out, err := s.AggregatesRange(ctx, "delhi", weather.GranularityDaily, date, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 32.0, *out[0].TempAvg)
}

func TestAggregatesRangeFiltersGranularity(t *testing.T) {
	s := NewMemoryStore(0, 0)
	date := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.ReplaceAggregate(ctx, weather.DailyAggregate{
		LocationID: "delhi", Date: date, Granularity: weather.GranularityDaily,
	}))
	require.NoError(t, s.ReplaceAggregate(ctx, weather.DailyAggregate{
		LocationID: "delhi", Date: date, Granularity: weather.GranularityMonthly,
	}))

	daily, err := s.AggregatesRange(ctx, "delhi", weather.GranularityDaily, date, date.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Len(t, daily, 1)
	assert.Equal(t, weather.GranularityDaily, daily[0].Granularity)
}

func TestReplaceForecastsSwapsWholeSet(t *testing.T) {
	s := NewMemoryStore(0, 0)
	date := time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC)

	first := []weather.ForecastPoint{
		{LocationID: "delhi", Method: weather.MethodHistoricalPrediction, ForecastDate: date},
		{LocationID: "delhi", Method: weather.MethodHistoricalPrediction, ForecastDate: date.AddDate(0, 0, 1)},
		{LocationID: "delhi", Method: weather.MethodHistoricalPrediction, ForecastDate: date.AddDate(0, 0, 2)},
	}
	require.NoError(t, s.ReplaceForecasts(ctx, "delhi", weather.MethodHistoricalPrediction, first))

	second := []weather.ForecastPoint{
		{LocationID: "delhi", Method: weather.MethodHistoricalPrediction, ForecastDate: date},
	}
	require.NoError(t, s.ReplaceForecasts(ctx, "delhi", weather.MethodHistoricalPrediction, second))

	out, err := s.Forecasts(ctx, "delhi")
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestForecastsMergeMethodsSorted(t *testing.T) {
	s := NewMemoryStore(0, 0)
	date := time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.ReplaceForecasts(ctx, "delhi", weather.MethodHistoricalPrediction,
		[]weather.ForecastPoint{{ForecastDate: date.AddDate(0, 0, 1), Method: weather.MethodHistoricalPrediction}}))
	require.NoError(t, s.ReplaceForecasts(ctx, "delhi", weather.MethodAPIForecast,
		[]weather.ForecastPoint{{ForecastDate: date, Method: weather.MethodAPIForecast}}))

	out, err := s.Forecasts(ctx, "delhi")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, weather.MethodAPIForecast, out[0].Method)
	assert.Equal(t, weather.MethodHistoricalPrediction, out[1].Method)
}
