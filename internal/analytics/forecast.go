package analytics

import (
	"math"
	"sort"
)

// Forecast tuning. The weighted window favors recent days linearly; the
// trend term nudges each day-ahead by half the fitted slope.
const (
	forecastWindow      = 30
	trendDamping        = 0.5
	confidenceBase      = 0.95
	confidenceDecrement = 0.05
	confidenceFloor     = 0.5
)

// PredictSeries extrapolates the next `days` values of a daily series using
// a recency-weighted moving average over the most recent forecastWindow
// entries plus a damped linear-trend term that grows with days-ahead. At
// least MinForecastHistory values are required; with less history the caller
// must fall back to an external forecast or report "not available".
func PredictSeries(history []float64, days int) ([]float64, error) {
	if len(history) < MinForecastHistory {
		return nil, ErrInsufficientData
	}
	if days <= 0 {
		return nil, nil
	}

	window := history
	if len(window) > forecastWindow {
		window = window[len(window)-forecastWindow:]
	}

	// Linearly increasing weights: the newest entry counts len(window)
	// times as much as the oldest.
	var weighted, totalWeight float64
	for i, v := range window {
		w := float64(i + 1)
		weighted += v * w
		totalWeight += w
	}
	base := weighted / totalWeight

	slope, _, err := linearRegression(window)
	if err != nil {
		return nil, err
	}

	out := make([]float64, days)
	for d := 1; d <= days; d++ {
		out[d-1] = base + slope*float64(d)*trendDamping
	}
	return out, nil
}

// Confidences returns the per-day confidence for a forecast horizon. It
// starts below confidenceBase, shrinks by a fixed step per day-ahead and
// never drops under confidenceFloor, so it is non-increasing across the
// horizon.
func Confidences(days int) []float64 {
	out := make([]float64, days)
	for d := 1; d <= days; d++ {
		c := confidenceBase - confidenceDecrement*float64(d)
		if c < confidenceFloor {
			c = confidenceFloor
		}
		out[d-1] = c
	}
	return out
}

// AccuracyReport quantifies how a forecast performed against later-observed
// actuals.
type AccuracyReport struct {
	MAE      float64 `json:"mae"`
	RMSE     float64 `json:"rmse"`
	MAPE     float64 `json:"mape"`
	R2       float64 `json:"r2"`
	Accuracy float64 `json:"accuracy"` // 0-100, max(0, 100 - MAPE)
	Samples  int     `json:"samples"`
}

// EvaluateAccuracy compares paired (predicted, actual) series. Mismatched
// lengths or empty input are rejected, never silently coerced. MAPE skips
// zero actuals since a relative error against zero is undefined.
func EvaluateAccuracy(predicted, actual []float64) (*AccuracyReport, error) {
	if len(predicted) != len(actual) {
		return nil, ErrMismatchedSeries
	}
	if len(predicted) == 0 {
		return nil, ErrInsufficientData
	}

	var absSum, sqSum, pctSum float64
	pctCount := 0
	for i := range predicted {
		diff := predicted[i] - actual[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if actual[i] != 0 {
			pctSum += math.Abs(diff/actual[i]) * 100
			pctCount++
		}
	}

	n := float64(len(predicted))
	report := &AccuracyReport{
		MAE:     absSum / n,
		RMSE:    math.Sqrt(sqSum / n),
		Samples: len(predicted),
	}
	if pctCount > 0 {
		report.MAPE = pctSum / float64(pctCount)
	}

	meanActual := mean(actual)
	var ssTot float64
	for _, a := range actual {
		d := a - meanActual
		ssTot += d * d
	}
	switch {
	case ssTot > 0:
		report.R2 = 1 - sqSum/ssTot
	case sqSum == 0:
		report.R2 = 1
	}

	report.Accuracy = math.Max(0, 100-report.MAPE)
	return report, nil
}

// ForecastCandidate is one source's forecast series competing for "best".
type ForecastCandidate struct {
	Source    string
	Predicted []float64
}

// SelectBestForecast ranks candidates. With actual outcomes available the
// lowest RMSE wins; without them the first candidate in priority order wins.
// A single candidate is returned unconditionally.
func SelectBestForecast(candidates []ForecastCandidate, actual []float64, priority []string) (ForecastCandidate, bool) {
	if len(candidates) == 0 {
		return ForecastCandidate{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	if len(actual) > 0 {
		type scored struct {
			cand ForecastCandidate
			rmse float64
		}
		var ranked []scored
		for _, c := range candidates {
			if len(c.Predicted) != len(actual) {
				continue
			}
			report, err := EvaluateAccuracy(c.Predicted, actual)
			if err != nil {
				continue
			}
			ranked = append(ranked, scored{cand: c, rmse: report.RMSE})
		}
		if len(ranked) > 0 {
			sort.Slice(ranked, func(i, j int) bool { return ranked[i].rmse < ranked[j].rmse })
			return ranked[0].cand, true
		}
	}

	for _, src := range priority {
		for _, c := range candidates {
			if c.Source == src {
				return c, true
			}
		}
	}
	return candidates[0], true
}
