package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsentinel/airsentinel/internal/cache"
)

// memStore is a minimal in-package Store double so the service tests do not
// depend on the store package.
type memStore struct {
	readings   []Reading
	aggregates []DailyAggregate
	forecasts  map[string][]ForecastPoint
	saveErr    error
}

func newMemStore() *memStore {
	return &memStore{forecasts: make(map[string][]ForecastPoint)}
}

func (m *memStore) SaveReading(_ context.Context, r Reading) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.readings = append(m.readings, r)
	return nil
}

func (m *memStore) LatestReadings(_ context.Context, locationID string, n int) ([]Reading, error) {
	var out []Reading
	for i := len(m.readings) - 1; i >= 0 && len(out) < n; i-- {
		if m.readings[i].LocationID == locationID {
			out = append(out, m.readings[i])
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (m *memStore) ReadingsRange(_ context.Context, locationID string, from, to time.Time) ([]Reading, error) {
	var out []Reading
	for _, r := range m.readings {
		if r.LocationID == locationID && !r.CapturedAt.Before(from) && r.CapturedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ReplaceAggregate(_ context.Context, agg DailyAggregate) error {
	for i, a := range m.aggregates {
		if a.LocationID == agg.LocationID && a.Date.Equal(agg.Date) && a.Granularity == agg.Granularity {
			m.aggregates[i] = agg
			return nil
		}
	}
	m.aggregates = append(m.aggregates, agg)
	return nil
}

func (m *memStore) AggregatesRange(_ context.Context, locationID string, g Granularity, from, to time.Time) ([]DailyAggregate, error) {
	var out []DailyAggregate
	for _, a := range m.aggregates {
		if a.LocationID == locationID && a.Granularity == g && !a.Date.Before(from) && a.Date.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ReplaceForecasts(_ context.Context, locationID, method string, points []ForecastPoint) error {
	m.forecasts[locationID+"/"+method] = points
	return nil
}

func (m *memStore) Forecasts(_ context.Context, locationID string) ([]ForecastPoint, error) {
	var out []ForecastPoint
	for key, points := range m.forecasts {
		if len(key) >= len(locationID) && key[:len(locationID)] == locationID {
			out = append(out, points...)
		}
	}
	return out, nil
}

// stubWeather is a WeatherSource returning a fixed reading or error.
type stubWeather struct {
	name    string
	reading Reading
	err     error
}

func (s *stubWeather) Name() string      { return s.name }
func (s *stubWeather) QualityScore() int { return 50 }
func (s *stubWeather) FetchWeather(_ context.Context, loc Location) (Reading, error) {
	if s.err != nil {
		return Reading{}, s.err
	}
	r := s.reading
	r.LocationID = loc.ID
	r.Source = s.name
	if r.CapturedAt.IsZero() {
		r.CapturedAt = time.Now().UTC()
	}
	return r, nil
}

// stubAir is an AirQualitySource returning a fixed reading or error.
type stubAir struct {
	name    string
	reading Reading
	err     error
}

func (s *stubAir) Name() string      { return s.name }
func (s *stubAir) QualityScore() int { return 50 }
func (s *stubAir) FetchAirQuality(_ context.Context, loc Location) (Reading, error) {
	if s.err != nil {
		return Reading{}, s.err
	}
	r := s.reading
	r.LocationID = loc.ID
	r.Source = s.name
	if r.CapturedAt.IsZero() {
		r.CapturedAt = time.Now().UTC()
	}
	return r, nil
}

var testLocation = Location{ID: "delhi", Name: "Delhi", Latitude: 28.6139, Longitude: 77.209}

func TestCollectIsolatesSourceFailures(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, []Source{
		&stubWeather{name: "imd", reading: Reading{Temperature: Float(31)}},
		&stubWeather{name: "openmeteo", err: errors.New("connection refused")},
		&stubAir{name: "cpcb", reading: Reading{PM25: Float(120), AQI: Float(184)}},
	})

	stats, err := svc.Collect(context.Background(), testLocation)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Attempted)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Stored)
	assert.Error(t, stats.Failures)

	// The dead source is simply absent; the others landed intact.
	require.Len(t, st.readings, 2)
	for _, r := range st.readings {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, "delhi", r.LocationID)
		assert.NotEqual(t, "openmeteo", r.Source)
	}
}

func TestCollectStorageFailureIsHard(t *testing.T) {
	st := newMemStore()
	st.saveErr = errors.New("disk full")

	svc := NewService(st, []Source{
		&stubWeather{name: "imd", reading: Reading{Temperature: Float(31)}},
	})

	_, err := svc.Collect(context.Background(), testLocation)
	assert.Error(t, err)
}

func TestCollectNoSources(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	_, err := svc.Collect(context.Background(), testLocation)
	assert.Error(t, err)
}

func TestCurrentConsensusAcrossSources(t *testing.T) {
	st := newMemStore()
	now := time.Now().UTC()

	seed := []Reading{
		{ID: "1", LocationID: "delhi", Source: "imd", CapturedAt: now, Temperature: Float(31)},
		{ID: "2", LocationID: "delhi", Source: "openweathermap", CapturedAt: now, Temperature: Float(33), PM25: Float(104), AQI: Float(176)},
		{ID: "3", LocationID: "delhi", Source: "cpcb", CapturedAt: now, PM25: Float(118), AQI: Float(184)},
		{ID: "4", LocationID: "delhi", Source: "openmeteo", CapturedAt: now, Temperature: Float(32), PM25: Float(97)},
	}
	for _, r := range seed {
		require.NoError(t, st.SaveReading(context.Background(), r))
	}

	svc := NewService(st, nil)

	conditions, err := svc.Current(context.Background(), "delhi", "")
	require.NoError(t, err)

	assert.Len(t, conditions.Readings, 4)

	temp := conditions.Consensus["temperature"]
	assert.Equal(t, "imd", temp.Source)
	assert.Equal(t, 31.0, temp.Value)

	pm := conditions.Consensus["pm25"]
	assert.Equal(t, "cpcb", pm.Source)
	assert.Equal(t, 118.0, pm.Value)

	require.NotNil(t, conditions.AQI)
	assert.Equal(t, "Unhealthy", conditions.AQI.Label)
}

func TestCurrentHonorsPreferredSource(t *testing.T) {
	st := newMemStore()
	now := time.Now().UTC()

	require.NoError(t, st.SaveReading(context.Background(),
		Reading{ID: "1", LocationID: "delhi", Source: "imd", CapturedAt: now, Temperature: Float(31)}))
	require.NoError(t, st.SaveReading(context.Background(),
		Reading{ID: "2", LocationID: "delhi", Source: "openmeteo", CapturedAt: now, Temperature: Float(29)}))

	svc := NewService(st, nil)

	conditions, err := svc.Current(context.Background(), "delhi", "openmeteo")
	require.NoError(t, err)

	temp := conditions.Consensus["temperature"]
	assert.Equal(t, "openmeteo", temp.Source)
	assert.Equal(t, 29.0, temp.Value)
}

func TestCurrentKeepsLatestPerSource(t *testing.T) {
	st := newMemStore()
	now := time.Now().UTC()

	require.NoError(t, st.SaveReading(context.Background(),
		Reading{ID: "old", LocationID: "delhi", Source: "imd", CapturedAt: now.Add(-time.Hour), Temperature: Float(25)}))
	require.NoError(t, st.SaveReading(context.Background(),
		Reading{ID: "new", LocationID: "delhi", Source: "imd", CapturedAt: now, Temperature: Float(31)}))

	svc := NewService(st, nil)

	conditions, err := svc.Current(context.Background(), "delhi", "")
	require.NoError(t, err)

	require.Len(t, conditions.Readings, 1)
	assert.Equal(t, "new", conditions.Readings[0].ID)
	assert.Equal(t, 31.0, conditions.Consensus["temperature"].Value)
}

func TestCollectInvalidatesAnalyticsCache(t *testing.T) {
	st := newMemStore()
	c := cache.New(time.Minute)
	defer c.Stop()

	c.Set("trend:delhi:temperature:a:b", "stale", time.Minute)
	c.Set("compare:delhi,mumbai:aqi:a:b", "stale", time.Minute)
	c.Set("trend:mumbai:temperature:a:b", "keep", time.Minute)

	svc := NewService(st, []Source{
		&stubWeather{name: "imd", reading: Reading{Temperature: Float(31)}},
	}, WithCache(c, time.Minute))

	_, err := svc.Collect(context.Background(), testLocation)
	require.NoError(t, err)

	_, ok := c.Get("trend:delhi:temperature:a:b")
	assert.False(t, ok)
	_, ok = c.Get("compare:delhi,mumbai:aqi:a:b")
	assert.False(t, ok)
	_, ok = c.Get("trend:mumbai:temperature:a:b")
	assert.True(t, ok)
}
