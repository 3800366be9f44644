package weather

import (
	"context"
	"time"
)

// Source is the minimal identity every provider adapter carries.
type Source interface {
	Name() string
	// QualityScore is the fixed provider-declared confidence (0-100)
	// stamped on every reading this adapter produces.
	QualityScore() int
}

// WeatherSource is implemented by adapters able to supply meteorological
// readings (temperature, humidity, wind, ...). An adapter that cannot
// structurally supply weather simply does not implement this interface; the
// collection service dispatches by capability.
type WeatherSource interface {
	Source
	FetchWeather(ctx context.Context, loc Location) (Reading, error)
}

// AirQualitySource is implemented by adapters able to supply pollutant
// readings (aqi, pm25, pm10, ...).
type AirQualitySource interface {
	Source
	FetchAirQuality(ctx context.Context, loc Location) (Reading, error)
}

// ForecastSource is implemented by adapters able to supply an upstream
// multi-day forecast, one point per day.
type ForecastSource interface {
	Source
	FetchForecast(ctx context.Context, loc Location, days int) ([]ForecastPoint, error)
}

// ReadingStore is the append-only persistence contract for raw readings.
// Implementations never update a reading in place; a newer CapturedAt
// supersedes, it does not overwrite.
type ReadingStore interface {
	SaveReading(ctx context.Context, r Reading) error
	// LatestReadings returns up to n most recent readings for a location,
	// newest first.
	LatestReadings(ctx context.Context, locationID string, n int) ([]Reading, error)
	// ReadingsRange returns all readings for a location with
	// from <= CapturedAt < to, oldest first.
	ReadingsRange(ctx context.Context, locationID string, from, to time.Time) ([]Reading, error)
}

// AggregateStore persists rollups. Replacement is whole-row: a regenerated
// aggregate fully supersedes the previous one for its (location, date,
// granularity), never a partial patch.
type AggregateStore interface {
	ReplaceAggregate(ctx context.Context, agg DailyAggregate) error
	// AggregatesRange returns aggregates of the given granularity with
	// from <= Date < to, oldest first.
	AggregatesRange(ctx context.Context, locationID string, g Granularity, from, to time.Time) ([]DailyAggregate, error)
}

// ForecastStore persists forecast points. ReplaceForecasts atomically swaps
// the whole point set for a (location, method) so stale and fresh points for
// the same target dates never coexist.
type ForecastStore interface {
	ReplaceForecasts(ctx context.Context, locationID, method string, points []ForecastPoint) error
	// Forecasts returns all stored points for a location, every method,
	// ordered by ForecastDate ascending.
	Forecasts(ctx context.Context, locationID string) ([]ForecastPoint, error)
}

// Store is the full persistence contract the engine needs. Any backend with
// indexed range queries over (location, time) satisfies it; the in-memory
// and MySQL implementations are interchangeable.
type Store interface {
	ReadingStore
	AggregateStore
	ForecastStore
}

// Exporter mirrors stored readings to an external time-series sink. Export
// failures never affect collection; the exporter is best-effort.
type Exporter interface {
	WriteReading(r Reading)
}
