package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/airsentinel/airsentinel/internal/weather"
)

// OpenMeteoProvider reads Open-Meteo's model-derived weather, air-quality
// and daily forecast endpoints. Being reanalysis output rather than station
// observations it carries the lowest quality score and sits last in the
// default consensus priority.
type OpenMeteoProvider struct {
	name       string
	score      int
	weatherURL string
	airURL     string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:       "openmeteo",
		score:      70,
		weatherURL: "https://api.open-meteo.com/v1/forecast",
		airURL:     "https://air-quality-api.open-meteo.com/v1/air-quality",
		httpCfg:    defaultHTTPConfig(client),
		circuit:    newCircuit("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string { return p.name }

func (p *OpenMeteoProvider) QualityScore() int { return p.score }

func (p *OpenMeteoProvider) FetchWeather(ctx context.Context, loc weather.Location) (weather.Reading, error) {
	if err := validateCoordinates(loc); err != nil {
		return weather.Reading{}, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		values.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,surface_pressure,wind_speed_10m,wind_direction_10m,cloud_cover,precipitation")
		values.Set("wind_speed_unit", "ms")

		u := fmt.Sprintf("%s?%s", p.weatherURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Reading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Time          string   `json:"time"`
			Temperature   *float64 `json:"temperature_2m"`
			ApparentTemp  *float64 `json:"apparent_temperature"`
			Humidity      *float64 `json:"relative_humidity_2m"`
			Pressure      *float64 `json:"surface_pressure"`
			WindSpeed     *float64 `json:"wind_speed_10m"`
			WindDirection *float64 `json:"wind_direction_10m"`
			CloudCover    *float64 `json:"cloud_cover"`
			Precipitation *float64 `json:"precipitation"`
		} `json:"current"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Reading{}, err
	}

	ts := parseOpenMeteoTime(payload.Current.Time)
	r := newReading(p.name, p.score, loc, ts)

	r.Temperature = payload.Current.Temperature
	r.FeelsLike = payload.Current.ApparentTemp
	r.Humidity = payload.Current.Humidity
	r.Pressure = payload.Current.Pressure
	r.WindSpeed = payload.Current.WindSpeed
	r.WindDirection = payload.Current.WindDirection
	r.CloudCover = payload.Current.CloudCover
	r.Rainfall = payload.Current.Precipitation

	return r, nil
}

func (p *OpenMeteoProvider) FetchAirQuality(ctx context.Context, loc weather.Location) (weather.Reading, error) {
	if err := validateCoordinates(loc); err != nil {
		return weather.Reading{}, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		values.Set("current", "pm2_5,pm10,nitrogen_dioxide,ozone,sulphur_dioxide,carbon_monoxide,uv_index")

		u := fmt.Sprintf("%s?%s", p.airURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Reading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Time    string   `json:"time"`
			PM25    *float64 `json:"pm2_5"`
			PM10    *float64 `json:"pm10"`
			NO2     *float64 `json:"nitrogen_dioxide"`
			O3      *float64 `json:"ozone"`
			SO2     *float64 `json:"sulphur_dioxide"`
			CO      *float64 `json:"carbon_monoxide"`
			UVIndex *float64 `json:"uv_index"`
		} `json:"current"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Reading{}, err
	}

	ts := parseOpenMeteoTime(payload.Current.Time)
	r := newReading(p.name, p.score, loc, ts)

	r.PM25 = payload.Current.PM25
	r.PM10 = payload.Current.PM10
	r.NO2 = payload.Current.NO2
	r.O3 = payload.Current.O3
	r.SO2 = payload.Current.SO2
	r.CO = payload.Current.CO
	r.UVIndex = payload.Current.UVIndex

	if r.PM25 != nil {
		r.AQI = weather.Float(float64(weather.AQIFromPM25(*r.PM25)))
	}

	return r, nil
}

// FetchForecast returns daily model forecasts.
func (p *OpenMeteoProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) ([]weather.ForecastPoint, error) {
	if err := validateCoordinates(loc); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be greater than zero")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		values.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,wind_speed_10m_max")
		values.Set("wind_speed_unit", "ms")
		values.Set("forecast_days", strconv.Itoa(days))

		u := fmt.Sprintf("%s?%s", p.weatherURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time          []string   `json:"time"`
			TempMax       []*float64 `json:"temperature_2m_max"`
			TempMin       []*float64 `json:"temperature_2m_min"`
			Precipitation []*float64 `json:"precipitation_sum"`
			WindMax       []*float64 `json:"wind_speed_10m_max"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	now := nowUTC()
	points := make([]weather.ForecastPoint, 0, len(payload.Daily.Time))
	for i, day := range payload.Daily.Time {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}

		confidence := 0.85 - 0.05*float64(i)
		if confidence < 0.5 {
			confidence = 0.5
		}

		point := weather.ForecastPoint{
			LocationID:   loc.ID,
			ForecastDate: date,
			GeneratedAt:  now,
			Method:       weather.MethodAPIForecast,
			Confidence:   confidence,
		}
		if i < len(payload.Daily.TempMax) {
			point.TempMax = payload.Daily.TempMax[i]
		}
		if i < len(payload.Daily.TempMin) {
			point.TempMin = payload.Daily.TempMin[i]
		}
		if point.TempMin != nil && point.TempMax != nil {
			point.Temperature = weather.Float((*point.TempMin + *point.TempMax) / 2)
		}
		if i < len(payload.Daily.Precipitation) {
			point.Precipitation = payload.Daily.Precipitation[i]
		}
		if i < len(payload.Daily.WindMax) {
			point.WindSpeed = payload.Daily.WindMax[i]
		}

		points = append(points, point)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("openmeteo: forecast response had no usable days")
	}
	return points, nil
}

func parseOpenMeteoTime(s string) time.Time {
	if ts, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return ts.UTC()
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}
