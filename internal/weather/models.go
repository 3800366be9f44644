package weather

import (
	"time"
)

// Granularity identifies the time bucket an aggregate row covers.
type Granularity string

const (
	GranularityHourly  Granularity = "hourly"
	GranularityDaily   Granularity = "daily"
	GranularityMonthly Granularity = "monthly"
	GranularityYearly  Granularity = "yearly"
)

// Location represents a tracked city, supplied by the location registry.
type Location struct {
	ID        string  `json:"locationId" yaml:"id" validate:"required"`
	Name      string  `json:"locationName" yaml:"name" validate:"required"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return l.ID
}

// Alert is a provider-issued advisory attached to a reading.
type Alert struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Reading is one measurement snapshot from one source for one location at
// one instant. Every metric field is optional: nil means the source did not
// report it, which is never the same as zero. A Reading never mixes values
// from more than one source and is immutable once stored.
type Reading struct {
	ID           string    `json:"id"`
	LocationID   string    `json:"locationId"`
	LocationName string    `json:"locationName"`
	CapturedAt   time.Time `json:"timestamp"` // always UTC
	Source       string    `json:"sourceApi"`

	Temperature   *float64 `json:"temperature,omitempty"`
	FeelsLike     *float64 `json:"feelsLike,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	Pressure      *float64 `json:"pressure,omitempty"`
	WindSpeed     *float64 `json:"windSpeed,omitempty"`
	WindDirection *float64 `json:"windDirection,omitempty"`
	CloudCover    *float64 `json:"cloudCover,omitempty"`
	Rainfall      *float64 `json:"rainfall,omitempty"`
	Snowfall      *float64 `json:"snowfall,omitempty"`
	AQI           *float64 `json:"aqi,omitempty"`
	PM25          *float64 `json:"pm25,omitempty"`
	PM10          *float64 `json:"pm10,omitempty"`
	NO2           *float64 `json:"no2,omitempty"`
	O3            *float64 `json:"o3,omitempty"`
	SO2           *float64 `json:"so2,omitempty"`
	CO            *float64 `json:"co,omitempty"`
	UVIndex       *float64 `json:"uvIndex,omitempty"`

	// QualityScore is the provider-declared confidence (0-100), fixed per
	// adapter.
	QualityScore int     `json:"qualityScore"`
	Alerts       []Alert `json:"alerts,omitempty"`
}

// MetricNames lists every metric a Reading can carry, in canonical order.
var MetricNames = []string{
	"temperature", "feelsLike", "humidity", "pressure", "windSpeed",
	"windDirection", "cloudCover", "rainfall", "snowfall", "aqi", "pm25",
	"pm10", "no2", "o3", "so2", "co", "uvIndex",
}

// Metric returns the named metric value, or nil when the source did not
// report it or the name is unknown.
func (r Reading) Metric(name string) *float64 {
	switch name {
	case "temperature":
		return r.Temperature
	case "feelsLike":
		return r.FeelsLike
	case "humidity":
		return r.Humidity
	case "pressure":
		return r.Pressure
	case "windSpeed":
		return r.WindSpeed
	case "windDirection":
		return r.WindDirection
	case "cloudCover":
		return r.CloudCover
	case "rainfall":
		return r.Rainfall
	case "snowfall":
		return r.Snowfall
	case "aqi":
		return r.AQI
	case "pm25":
		return r.PM25
	case "pm10":
		return r.PM10
	case "no2":
		return r.NO2
	case "o3":
		return r.O3
	case "so2":
		return r.SO2
	case "co":
		return r.CO
	case "uvIndex":
		return r.UVIndex
	default:
		return nil
	}
}

// KnownMetric reports whether name is a metric a Reading can carry.
func KnownMetric(name string) bool {
	for _, m := range MetricNames {
		if m == name {
			return true
		}
	}
	return false
}

// DailyAggregate summarizes all readings for one location within one
// calendar date (or a coarser bucket, per Granularity). Averages are nil
// when no reading contributed a value for that field; an aggregate is never
// fabricated for a date with zero readings.
type DailyAggregate struct {
	LocationID  string      `json:"locationId"`
	Date        time.Time   `json:"date"` // bucket start, UTC midnight
	Granularity Granularity `json:"granularity"`

	TempMin *float64 `json:"tempMin,omitempty"`
	TempAvg *float64 `json:"tempAvg,omitempty"`
	TempMax *float64 `json:"tempMax,omitempty"`

	HumidityAvg  *float64 `json:"humidityAvg,omitempty"`
	WindSpeedAvg *float64 `json:"windSpeedAvg,omitempty"`
	AQIAvg       *float64 `json:"aqiAvg,omitempty"`
	PM25Avg      *float64 `json:"pm25Avg,omitempty"`
	PM10Avg      *float64 `json:"pm10Avg,omitempty"`
	NO2Avg       *float64 `json:"no2Avg,omitempty"`
	O3Avg        *float64 `json:"o3Avg,omitempty"`
	SO2Avg       *float64 `json:"so2Avg,omitempty"`
	COAvg        *float64 `json:"coAvg,omitempty"`

	RainfallTotal *float64 `json:"rainfallTotal,omitempty"`

	// AQICategory labels the mean AQI; it never replaces the numeric mean.
	AQICategory string `json:"aqiCategory,omitempty"`

	// Completeness is observed reporting intervals / expected intervals,
	// always in [0,1].
	Completeness    float64  `json:"completeness"`
	SourcesObserved []string `json:"sourcesObserved"`
	ReadingCount    int      `json:"readingCount"`
}

// Metric returns the named aggregate value, or nil when absent. Aggregate
// metric names mirror Reading metric names where both exist.
func (a DailyAggregate) Metric(name string) *float64 {
	switch name {
	case "temperature":
		return a.TempAvg
	case "tempMin":
		return a.TempMin
	case "tempMax":
		return a.TempMax
	case "humidity":
		return a.HumidityAvg
	case "windSpeed":
		return a.WindSpeedAvg
	case "aqi":
		return a.AQIAvg
	case "pm25":
		return a.PM25Avg
	case "pm10":
		return a.PM10Avg
	case "no2":
		return a.NO2Avg
	case "o3":
		return a.O3Avg
	case "so2":
		return a.SO2Avg
	case "co":
		return a.COAvg
	case "rainfall":
		return a.RainfallTotal
	default:
		return nil
	}
}

// Forecast generation methods.
const (
	MethodAPIForecast          = "api_forecast"
	MethodHistoricalPrediction = "historical_prediction"
)

// ForecastPoint is one predicted value set for one location and one future
// date, produced by exactly one method. Regeneration replaces the whole set
// for a (location, method) so stale and fresh points never coexist.
type ForecastPoint struct {
	LocationID   string    `json:"locationId"`
	ForecastDate time.Time `json:"forecastDate"`
	GeneratedAt  time.Time `json:"generatedAt"`
	Method       string    `json:"method"`

	Temperature   *float64 `json:"temperature,omitempty"`
	TempMin       *float64 `json:"tempMin,omitempty"`
	TempMax       *float64 `json:"tempMax,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	Precipitation *float64 `json:"precipitation,omitempty"`
	PM25          *float64 `json:"pm25,omitempty"`
	AQI           *float64 `json:"aqi,omitempty"`
	WindSpeed     *float64 `json:"windSpeed,omitempty"`

	// Confidence is in [0,1] and never increases as days-ahead grows
	// within one generation run.
	Confidence float64 `json:"confidence"`
}

// AggregatePoint is one element of the aggregation query contract:
// an ordered {date, value, sourceCount} series for a single metric.
type AggregatePoint struct {
	Date        time.Time `json:"date"`
	Value       float64   `json:"value"`
	SourceCount int       `json:"sourceCount"`
}

// Float returns a pointer to v; adapters use it to mark a metric present.
func Float(v float64) *float64 {
	return &v
}
