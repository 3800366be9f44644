package weather

import (
	"math"
)

// DefaultSourcePriority is the fallback order used when no explicit
// preference is given: official feeds first, commercial second, model-based
// estimates last. Deployments override it via configuration.
var DefaultSourcePriority = []string{
	"imd", "cpcb", "openweathermap", "weatherapi", "openmeteo",
}

// ResolvedValue carries a consensus pick along with its provenance.
type ResolvedValue struct {
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// Resolve picks the best available value for a metric across per-source
// readings without ever averaging. A preferred source wins whenever it has a
// present value; otherwise the first present value in priority order is
// returned, then any remaining source in input order. Returns nil when no
// source reports the metric.
func Resolve(readings []Reading, metric, preferred string, priority []string) *ResolvedValue {
	if preferred != "" {
		for _, r := range readings {
			if r.Source == preferred {
				if v := r.Metric(metric); v != nil {
					return &ResolvedValue{Value: *v, Source: r.Source}
				}
			}
		}
	}

	if len(priority) == 0 {
		priority = DefaultSourcePriority
	}

	seen := make(map[string]bool, len(priority))
	for _, src := range priority {
		seen[src] = true
		for _, r := range readings {
			if r.Source != src {
				continue
			}
			if v := r.Metric(metric); v != nil {
				return &ResolvedValue{Value: *v, Source: r.Source}
			}
		}
	}

	// Sources outside the configured priority list are still better than
	// nothing; fall through in input order.
	for _, r := range readings {
		if seen[r.Source] {
			continue
		}
		if v := r.Metric(metric); v != nil {
			return &ResolvedValue{Value: *v, Source: r.Source}
		}
	}

	return nil
}

// AQICategory is one of the six standard index bands.
type AQICategory struct {
	Label string  `json:"label"`
	Color string  `json:"color"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"` // inclusive; the top band is open-ended
}

var aqiCategories = []AQICategory{
	{Label: "Good", Color: "#00e400", Min: 0, Max: 50},
	{Label: "Moderate", Color: "#ffff00", Min: 51, Max: 100},
	{Label: "Unhealthy for Sensitive Groups", Color: "#ff7e00", Min: 101, Max: 150},
	{Label: "Unhealthy", Color: "#ff0000", Min: 151, Max: 200},
	{Label: "Very Unhealthy", Color: "#8f3f97", Min: 201, Max: 300},
	{Label: "Hazardous", Color: "#7e0023", Min: 301, Max: 500},
}

// CategorizeAQI maps a numeric AQI onto its band. Values above 500 still map
// to Hazardous.
func CategorizeAQI(aqi float64) AQICategory {
	for _, c := range aqiCategories {
		if aqi <= c.Max {
			return c
		}
	}
	return aqiCategories[len(aqiCategories)-1]
}

// pm25Breakpoints is the US EPA piecewise-linear table mapping a PM2.5
// concentration (µg/m³, truncated to one decimal) onto the index.
var pm25Breakpoints = []struct {
	cLow, cHigh float64
	iLow, iHigh int
}{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 500.4, 301, 500},
}

// AQIFromPM25 computes the EPA AQI for a PM2.5 concentration. Non-positive
// input yields 0; concentrations above the top breakpoint clamp to 500.
func AQIFromPM25(concentration float64) int {
	if concentration <= 0 {
		return 0
	}

	// Breakpoint bounds are expressed to one decimal; truncate the input
	// the same way so every concentration lands in exactly one band.
	c := math.Floor(concentration*10) / 10

	for _, bp := range pm25Breakpoints {
		if c >= bp.cLow && c <= bp.cHigh {
			index := float64(bp.iHigh-bp.iLow)/(bp.cHigh-bp.cLow)*(c-bp.cLow) + float64(bp.iLow)
			return int(math.Round(index))
		}
	}

	return 500
}
