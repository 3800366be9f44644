package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/airsentinel/airsentinel/internal/weather"
)

// CPCBProvider reads the Central Pollution Control Board station feed
// published through the data.gov.in resource API. It is the official
// air-quality source and supplies no meteorological fields.
type CPCBProvider struct {
	name    string
	score   int
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewCPCBProvider(client *http.Client, apiKey string) *CPCBProvider {
	return &CPCBProvider{
		name:    "cpcb",
		score:   92,
		apiKey:  apiKey,
		baseURL: "https://api.data.gov.in/resource/3b01bcb8-0b14-4abf-b6f2-c1bfd384ba69",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuit("cpcb"),
	}
}

func (p *CPCBProvider) Name() string { return p.name }

func (p *CPCBProvider) QualityScore() int { return p.score }

func (p *CPCBProvider) FetchAirQuality(ctx context.Context, loc weather.Location) (weather.Reading, error) {
	if err := validateCoordinates(loc); err != nil {
		return weather.Reading{}, err
	}
	if p.apiKey == "" {
		return weather.Reading{}, fmt.Errorf("cpcb api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("api-key", p.apiKey)
		values.Set("format", "json")
		values.Set("limit", "50")
		values.Set("filters[city]", loc.Name)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Reading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Records []struct {
			PollutantID string `json:"pollutant_id"`
			AvgValue    string `json:"avg_value"`
		} `json:"records"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Reading{}, err
	}
	if len(payload.Records) == 0 {
		return weather.Reading{}, fmt.Errorf("cpcb: no station records for %s", loc.Name)
	}

	// Stations report one row per pollutant; average rows of the same
	// pollutant across the city's stations.
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range payload.Records {
		v, err := strconv.ParseFloat(rec.AvgValue, 64)
		if err != nil {
			continue // "NA" rows
		}
		key := strings.ToUpper(rec.PollutantID)
		sums[key] += v
		counts[key]++
	}

	r := newReading(p.name, p.score, loc, nowUTC())

	assign := func(key string, dst **float64) {
		if n := counts[key]; n > 0 {
			*dst = weather.Float(sums[key] / float64(n))
		}
	}
	assign("PM2.5", &r.PM25)
	assign("PM10", &r.PM10)
	assign("NO2", &r.NO2)
	assign("OZONE", &r.O3)
	assign("SO2", &r.SO2)
	assign("CO", &r.CO)

	if r.PM25 == nil && r.PM10 == nil {
		return weather.Reading{}, fmt.Errorf("cpcb: no parsable pollutant rows for %s", loc.Name)
	}

	// Index computed from this source's own PM2.5 only; never blended
	// across providers.
	if r.PM25 != nil {
		r.AQI = weather.Float(float64(weather.AQIFromPM25(*r.PM25)))
	}

	return r, nil
}
