package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/airsentinel/airsentinel/internal/weather"
)

// OpenWeatherProvider reads OpenWeatherMap's current-weather and
// air-pollution endpoints. One adapter, two capabilities, two separate
// upstream calls; a failure of one never taints the other.
type OpenWeatherProvider struct {
	name    string
	score   int
	apiKey  string
	baseURL string
	airURL  string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		score:   85,
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		airURL:  "https://api.openweathermap.org/data/2.5/air_pollution",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuit("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string { return p.name }

func (p *OpenWeatherProvider) QualityScore() int { return p.score }

func (p *OpenWeatherProvider) FetchWeather(ctx context.Context, loc weather.Location) (weather.Reading, error) {
	if err := validateCoordinates(loc); err != nil {
		return weather.Reading{}, err
	}
	if p.apiKey == "" {
		return weather.Reading{}, fmt.Errorf("openweather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lat", fmt.Sprintf("%f", loc.Latitude))
		values.Set("lon", fmt.Sprintf("%f", loc.Longitude))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Reading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      *float64 `json:"temp"`
			FeelsLike *float64 `json:"feels_like"`
			Humidity  *float64 `json:"humidity"`
			Pressure  *float64 `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed *float64 `json:"speed"`
			Deg   *float64 `json:"deg"`
		} `json:"wind"`
		Clouds struct {
			All *float64 `json:"all"`
		} `json:"clouds"`
		Rain struct {
			OneH   *float64 `json:"1h"`
			ThreeH *float64 `json:"3h"`
		} `json:"rain"`
		Snow struct {
			OneH *float64 `json:"1h"`
		} `json:"snow"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Reading{}, err
	}

	r := newReading(p.name, p.score, loc, time.Unix(payload.Dt, 0))

	r.Temperature = payload.Main.Temp
	r.FeelsLike = payload.Main.FeelsLike
	r.Humidity = payload.Main.Humidity
	r.Pressure = payload.Main.Pressure
	r.WindSpeed = payload.Wind.Speed
	r.WindDirection = payload.Wind.Deg
	r.CloudCover = payload.Clouds.All
	r.Snowfall = payload.Snow.OneH

	r.Rainfall = payload.Rain.OneH
	if r.Rainfall == nil {
		r.Rainfall = payload.Rain.ThreeH
	}

	return r, nil
}

func (p *OpenWeatherProvider) FetchAirQuality(ctx context.Context, loc weather.Location) (weather.Reading, error) {
	if err := validateCoordinates(loc); err != nil {
		return weather.Reading{}, err
	}
	if p.apiKey == "" {
		return weather.Reading{}, fmt.Errorf("openweather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("lat", fmt.Sprintf("%f", loc.Latitude))
		values.Set("lon", fmt.Sprintf("%f", loc.Longitude))

		u := fmt.Sprintf("%s?%s", p.airURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Reading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		List []struct {
			Dt         int64 `json:"dt"`
			Components struct {
				PM25 *float64 `json:"pm2_5"`
				PM10 *float64 `json:"pm10"`
				NO2  *float64 `json:"no2"`
				O3   *float64 `json:"o3"`
				SO2  *float64 `json:"so2"`
				CO   *float64 `json:"co"`
			} `json:"components"`
		} `json:"list"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Reading{}, err
	}
	if len(payload.List) == 0 {
		return weather.Reading{}, fmt.Errorf("openweather: empty air pollution response")
	}

	obs := payload.List[0]
	r := newReading(p.name, p.score, loc, time.Unix(obs.Dt, 0))

	r.PM25 = obs.Components.PM25
	r.PM10 = obs.Components.PM10
	r.NO2 = obs.Components.NO2
	r.O3 = obs.Components.O3
	r.SO2 = obs.Components.SO2
	r.CO = obs.Components.CO

	// OpenWeather's own index is a 1-5 scale; recompute the standard index
	// from this source's PM2.5 instead of mixing scales.
	if r.PM25 != nil {
		r.AQI = weather.Float(float64(weather.AQIFromPM25(*r.PM25)))
	}

	return r, nil
}
