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

// WeatherAPIProvider reads WeatherAPI.com: current conditions, provider
// alerts and a multi-day upstream forecast.
type WeatherAPIProvider struct {
	name        string
	score       int
	apiKey      string
	baseURL     string
	forecastURL string
	httpCfg     HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:        "weatherapi",
		score:       80,
		apiKey:      apiKey,
		baseURL:     "https://api.weatherapi.com/v1/current.json",
		forecastURL: "https://api.weatherapi.com/v1/forecast.json",
		httpCfg:     defaultHTTPConfig(client),
		circuit:     newCircuit("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string { return p.name }

func (p *WeatherAPIProvider) QualityScore() int { return p.score }

func (p *WeatherAPIProvider) FetchWeather(ctx context.Context, loc weather.Location) (weather.Reading, error) {
	if err := validateCoordinates(loc); err != nil {
		return weather.Reading{}, err
	}
	if p.apiKey == "" {
		return weather.Reading{}, fmt.Errorf("weatherapi api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude))
		values.Set("alerts", "yes")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Reading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Location struct {
			LocaltimeEpoch int64 `json:"localtime_epoch"`
		} `json:"location"`
		Current struct {
			TempC      *float64 `json:"temp_c"`
			FeelsLikeC *float64 `json:"feelslike_c"`
			Humidity   *float64 `json:"humidity"`
			WindKph    *float64 `json:"wind_kph"`
			WindDegree *float64 `json:"wind_degree"`
			PressureMb *float64 `json:"pressure_mb"`
			PrecipMm   *float64 `json:"precip_mm"`
			Cloud      *float64 `json:"cloud"`
			UV         *float64 `json:"uv"`
		} `json:"current"`
		Alerts struct {
			Alert []struct {
				Event    string `json:"event"`
				Severity string `json:"severity"`
				Desc     string `json:"desc"`
			} `json:"alert"`
		} `json:"alerts"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Reading{}, err
	}

	r := newReading(p.name, p.score, loc, time.Unix(payload.Location.LocaltimeEpoch, 0))

	r.Temperature = payload.Current.TempC
	r.FeelsLike = payload.Current.FeelsLikeC
	r.Humidity = payload.Current.Humidity
	r.WindDirection = payload.Current.WindDegree
	r.Pressure = payload.Current.PressureMb
	r.Rainfall = payload.Current.PrecipMm
	r.CloudCover = payload.Current.Cloud
	r.UVIndex = payload.Current.UV

	if payload.Current.WindKph != nil {
		r.WindSpeed = weather.Float(*payload.Current.WindKph / 3.6)
	}

	for _, a := range payload.Alerts.Alert {
		r.Alerts = append(r.Alerts, weather.Alert{
			Category: a.Event,
			Severity: a.Severity,
			Message:  a.Desc,
		})
	}

	return r, nil
}

// FetchForecast returns one upstream forecast point per day, confidence
// decaying with the horizon.
func (p *WeatherAPIProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) ([]weather.ForecastPoint, error) {
	if err := validateCoordinates(loc); err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi api key is not configured")
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be greater than zero")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude))
		values.Set("days", strconv.Itoa(days))

		u := fmt.Sprintf("%s?%s", p.forecastURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Date string `json:"date"`
				Day  struct {
					MaxTempC    *float64 `json:"maxtemp_c"`
					MinTempC    *float64 `json:"mintemp_c"`
					AvgTempC    *float64 `json:"avgtemp_c"`
					AvgHumidity *float64 `json:"avghumidity"`
					PrecipMm    *float64 `json:"totalprecip_mm"`
					MaxWindKph  *float64 `json:"maxwind_kph"`
				} `json:"day"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	now := nowUTC()
	points := make([]weather.ForecastPoint, 0, len(payload.Forecast.ForecastDay))
	for i, fd := range payload.Forecast.ForecastDay {
		date, err := time.Parse("2006-01-02", fd.Date)
		if err != nil {
			continue
		}

		confidence := 0.9 - 0.05*float64(i)
		if confidence < 0.5 {
			confidence = 0.5
		}

		point := weather.ForecastPoint{
			LocationID:    loc.ID,
			ForecastDate:  date,
			GeneratedAt:   now,
			Method:        weather.MethodAPIForecast,
			Temperature:   fd.Day.AvgTempC,
			TempMin:       fd.Day.MinTempC,
			TempMax:       fd.Day.MaxTempC,
			Humidity:      fd.Day.AvgHumidity,
			Precipitation: fd.Day.PrecipMm,
			Confidence:    confidence,
		}
		if fd.Day.MaxWindKph != nil {
			point.WindSpeed = weather.Float(*fd.Day.MaxWindKph / 3.6)
		}

		points = append(points, point)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("weatherapi: forecast response had no usable days")
	}
	return points, nil
}
