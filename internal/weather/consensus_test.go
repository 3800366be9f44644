package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrefersRequestedSource(t *testing.T) {
	readings := []Reading{
		{Source: "imd", Temperature: Float(31)},
		{Source: "openweathermap", Temperature: Float(33)},
		{Source: "openmeteo", Temperature: Float(32)},
	}

	rv := Resolve(readings, "temperature", "openmeteo", DefaultSourcePriority)
	require.NotNil(t, rv)
	assert.Equal(t, "openmeteo", rv.Source)
	assert.Equal(t, 32.0, rv.Value)
}

func TestResolveFallsBackWhenPreferredLacksMetric(t *testing.T) {
	// IMD reports no PM2.5; the resolver must fall through the priority
	// order rather than fail or report zero.
	readings := []Reading{
		{Source: "imd", Temperature: Float(31)},
		{Source: "cpcb", PM25: Float(118)},
		{Source: "openweathermap", PM25: Float(104)},
	}

	rv := Resolve(readings, "pm25", "imd", DefaultSourcePriority)
	require.NotNil(t, rv)
	assert.Equal(t, "cpcb", rv.Source)
	assert.Equal(t, 118.0, rv.Value)
}

func TestResolvePriorityOrder(t *testing.T) {
	readings := []Reading{
		{Source: "openmeteo", Humidity: Float(60)},
		{Source: "openweathermap", Humidity: Float(55)},
	}

	rv := Resolve(readings, "humidity", "", DefaultSourcePriority)
	require.NotNil(t, rv)
	assert.Equal(t, "openweathermap", rv.Source)
}

func TestResolveUnknownSourceStillServes(t *testing.T) {
	readings := []Reading{
		{Source: "somesensor", Temperature: Float(29)},
	}

	rv := Resolve(readings, "temperature", "", DefaultSourcePriority)
	require.NotNil(t, rv)
	assert.Equal(t, "somesensor", rv.Source)
}

func TestResolveNoSourceReports(t *testing.T) {
	readings := []Reading{
		{Source: "imd", Temperature: Float(31)},
		{Source: "openmeteo", Temperature: Float(30)},
	}

	assert.Nil(t, Resolve(readings, "pm25", "", DefaultSourcePriority))
}

func TestResolveNeverBlends(t *testing.T) {
	readings := []Reading{
		{Source: "imd", Temperature: Float(30)},
		{Source: "openmeteo", Temperature: Float(40)},
	}

	rv := Resolve(readings, "temperature", "", DefaultSourcePriority)
	require.NotNil(t, rv)
	// The pick must be one source's value, never an average of the two.
	assert.Equal(t, 30.0, rv.Value)
	assert.Equal(t, "imd", rv.Source)
}

func TestAQIFromPM25Breakpoints(t *testing.T) {
	tests := []struct {
		concentration float64
		want          int
	}{
		{0, 0},
		{-4, 0},
		{6.0, 25},
		{12.0, 50},
		{12.1, 51},
		{35.4, 100},
		{35.5, 101},
		{55.4, 150},
		{55.5, 151},
		{150.4, 200},
		{150.5, 201},
		{250.4, 300},
		{250.5, 301},
		{500.4, 500},
		{1000, 500},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AQIFromPM25(tt.concentration),
			"concentration %.1f", tt.concentration)
	}
}

func TestAQIFromPM25TruncatesInput(t *testing.T) {
	// 12.05 truncates to 12.0 and stays in the Good band.
	assert.Equal(t, 50, AQIFromPM25(12.05))
}

func TestCategorizeAQI(t *testing.T) {
	tests := []struct {
		aqi  float64
		want string
	}{
		{0, "Good"},
		{50, "Good"},
		{51, "Moderate"},
		{100, "Moderate"},
		{101, "Unhealthy for Sensitive Groups"},
		{151, "Unhealthy"},
		{201, "Very Unhealthy"},
		{301, "Hazardous"},
		{999, "Hazardous"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CategorizeAQI(tt.aqi).Label, "aqi %.0f", tt.aqi)
	}
}
