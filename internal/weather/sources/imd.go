package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/airsentinel/airsentinel/internal/weather"
)

// IMDProvider reads the India Meteorological Department city weather feed,
// the primary official source. IMD serves per-station data, so the adapter
// needs a location -> station mapping; a location without one is a
// structural absent and never triggers a network call.
type IMDProvider struct {
	name     string
	score    int
	baseURL  string
	stations map[string]string // location ID -> IMD station ID
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewIMDProvider(client *http.Client, stations map[string]string) *IMDProvider {
	return &IMDProvider{
		name:     "imd",
		score:    95,
		baseURL:  "https://mausam.imd.gov.in/api/current_wx_api.php",
		stations: stations,
		httpCfg:  defaultHTTPConfig(client),
		circuit:  newCircuit("imd"),
	}
}

func (p *IMDProvider) Name() string { return p.name }

func (p *IMDProvider) QualityScore() int { return p.score }

func (p *IMDProvider) FetchWeather(ctx context.Context, loc weather.Location) (weather.Reading, error) {
	if err := validateCoordinates(loc); err != nil {
		return weather.Reading{}, err
	}

	station, ok := p.stations[loc.ID]
	if !ok {
		return weather.Reading{}, fmt.Errorf("imd: no station mapped for location %q", loc.ID)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("id", station)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Reading{}, err
	}
	defer resp.Body.Close()

	// IMD serialises numbers as strings and uses "NA" for missing fields.
	var payload []struct {
		StationName string `json:"Station_Name"`
		Temperature string `json:"Temperature"`
		FeelsLike   string `json:"Feels_Like"`
		Humidity    string `json:"Humidity"`
		WindSpeed   string `json:"Wind_Speed_KMPH"`
		WindDir     string `json:"Wind_Direction"`
		Rainfall    string `json:"Last_24_hrs_Rainfall"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Reading{}, err
	}
	if len(payload) == 0 {
		return weather.Reading{}, fmt.Errorf("imd: empty response for station %s", station)
	}

	obs := payload[0]
	r := newReading(p.name, p.score, loc, nowUTC())

	r.Temperature = parseIMDValue(obs.Temperature)
	r.FeelsLike = parseIMDValue(obs.FeelsLike)
	r.Humidity = parseIMDValue(obs.Humidity)
	r.WindDirection = parseIMDValue(obs.WindDir)
	r.Rainfall = parseIMDValue(obs.Rainfall)

	if kmph := parseIMDValue(obs.WindSpeed); kmph != nil {
		r.WindSpeed = weather.Float(*kmph / 3.6) // km/h -> m/s
	}

	return r, nil
}

// parseIMDValue converts an IMD string field; "NA", empty and garbage all
// mean absent, never zero.
func parseIMDValue(s string) *float64 {
	if s == "" || s == "NA" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
