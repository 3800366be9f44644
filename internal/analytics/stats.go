// Package analytics holds the stateless statistical computations the engine
// runs over stored and aggregated series: trends, correlation, anomaly
// detection, gap filling, moving averages, forecasting and forecast
// accuracy. Functions here operate on plain numeric series and know nothing
// about readings or storage.
package analytics

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrInsufficientData signals that a computation lacked enough input.
	// It is an explicit "not enough data" outcome, not a failure.
	ErrInsufficientData = errors.New("insufficient data points")

	// ErrMismatchedSeries signals paired series of different lengths.
	ErrMismatchedSeries = errors.New("series lengths do not match")
)

// Minimum input sizes. Below these, operations report no findings rather
// than guessing from noise.
const (
	MinCorrelationPoints = 3
	MinAnomalyPoints     = 10
	MinForecastHistory   = 7

	// DefaultAnomalyThreshold is the absolute z-score above which a point
	// is flagged.
	DefaultAnomalyThreshold = 3.0
)

// TrendDirection classifies how a series moves over its span.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendResult is the outcome of the half-split trend comparison.
type TrendResult struct {
	Direction     TrendDirection `json:"direction"`
	ChangePercent float64        `json:"changePercent"`
	FirstHalfAvg  float64        `json:"firstHalfAvg"`
	SecondHalfAvg float64        `json:"secondHalfAvg"`
}

// Trend compares the average of the first half of the series against the
// second half: more than +5% is increasing, less than -5% decreasing,
// anything between is stable. Needs at least four values so each half has a
// meaningful average.
func Trend(values []float64) (TrendResult, error) {
	if len(values) < 4 {
		return TrendResult{}, ErrInsufficientData
	}

	mid := len(values) / 2
	first := mean(values[:mid])
	second := mean(values[mid:])

	var change float64
	if first != 0 {
		change = (second - first) / math.Abs(first) * 100
	} else if second != 0 {
		change = math.Inf(1)
		if second < 0 {
			change = math.Inf(-1)
		}
	}

	dir := TrendStable
	switch {
	case change > 5:
		dir = TrendIncreasing
	case change < -5:
		dir = TrendDecreasing
	}

	return TrendResult{
		Direction:     dir,
		ChangePercent: change,
		FirstHalfAvg:  first,
		SecondHalfAvg: second,
	}, nil
}

// SlopeTrend is the regression-based trend variant used internally by
// forecast generation.
type SlopeTrend struct {
	Direction TrendDirection `json:"direction"`
	Slope     float64        `json:"slope"`
	Intercept float64        `json:"intercept"`
	// Strength is the fraction of the observed value range the fitted line
	// traverses, capped at 1.
	Strength float64 `json:"strength"`
}

// LinearTrend fits ordinary least squares over (index, value) pairs and
// classifies by slope magnitude: above 0.1 increasing, below -0.1
// decreasing, else stable.
func LinearTrend(values []float64) (SlopeTrend, error) {
	slope, intercept, err := linearRegression(values)
	if err != nil {
		return SlopeTrend{}, err
	}

	dir := TrendStable
	switch {
	case slope > 0.1:
		dir = TrendIncreasing
	case slope < -0.1:
		dir = TrendDecreasing
	}

	spread := maxOf(values) - minOf(values)
	strength := 0.0
	if spread > 0 {
		strength = math.Min(1, math.Abs(slope)*float64(len(values)-1)/spread)
	}

	return SlopeTrend{
		Direction: dir,
		Slope:     slope,
		Intercept: intercept,
		Strength:  strength,
	}, nil
}

// linearRegression returns the OLS slope and intercept of values against
// their indices.
func linearRegression(values []float64) (slope, intercept float64, err error) {
	n := float64(len(values))
	if len(values) < 2 {
		return 0, 0, ErrInsufficientData
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, mean(values), nil
	}

	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, nil
}

// CorrelationStrength buckets the magnitude of a correlation coefficient.
type CorrelationStrength string

const (
	CorrelationStrong   CorrelationStrength = "strong"
	CorrelationModerate CorrelationStrength = "moderate"
	CorrelationWeak     CorrelationStrength = "weak"
	CorrelationVeryWeak CorrelationStrength = "very weak"
)

// CorrelationResult is a Pearson coefficient with its interpretation.
type CorrelationResult struct {
	Coefficient float64             `json:"coefficient"`
	Strength    CorrelationStrength `json:"strength"`
	Direction   string              `json:"direction"` // positive | negative | none
	Points      int                 `json:"points"`
}

// Correlation computes the Pearson product-moment coefficient between two
// equal-length series. A zero-variance series correlates as 0 rather than
// dividing by zero. The result is always within [-1, 1].
func Correlation(x, y []float64) (CorrelationResult, error) {
	if len(x) != len(y) {
		return CorrelationResult{}, ErrMismatchedSeries
	}
	if len(x) < MinCorrelationPoints {
		return CorrelationResult{}, ErrInsufficientData
	}

	mx, my := mean(x), mean(y)

	var cov, varX, varY float64
	for i := range x {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	r := 0.0
	if varX > 0 && varY > 0 {
		r = cov / math.Sqrt(varX*varY)
	}
	// Guard against floating point drift past the bounds.
	r = math.Max(-1, math.Min(1, r))

	res := CorrelationResult{Coefficient: r, Points: len(x)}

	abs := math.Abs(r)
	switch {
	case abs >= 0.7:
		res.Strength = CorrelationStrong
	case abs >= 0.4:
		res.Strength = CorrelationModerate
	case abs >= 0.2:
		res.Strength = CorrelationWeak
	default:
		res.Strength = CorrelationVeryWeak
	}

	switch {
	case r > 0:
		res.Direction = "positive"
	case r < 0:
		res.Direction = "negative"
	default:
		res.Direction = "none"
	}

	return res, nil
}

// Point is one timestamped series value.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Anomaly is a point whose z-score exceeded the detection threshold.
type Anomaly struct {
	Point     Point   `json:"point"`
	ZScore    float64 `json:"zScore"`
	Deviation float64 `json:"deviation"` // signed distance from the mean
}

// DetectAnomalies flags points whose absolute z-score against the series
// mean and population standard deviation exceeds the threshold. Fewer than
// MinAnomalyPoints inputs produce no findings; insufficient data is not an
// error here.
func DetectAnomalies(points []Point, threshold float64) []Anomaly {
	if len(points) < MinAnomalyPoints {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	m := mean(values)
	sd := populationStdDev(values, m)
	if sd == 0 {
		return nil
	}

	// The comparison is inclusive: a lone outlier among n-1 identical values
	// has z exactly sqrt(n-1), which must fire at an equal threshold.
	var anomalies []Anomaly
	for _, p := range points {
		z := (p.Value - m) / sd
		if math.Abs(z) >= threshold {
			anomalies = append(anomalies, Anomaly{
				Point:     p,
				ZScore:    z,
				Deviation: p.Value - m,
			})
		}
	}
	return anomalies
}

// FilledValue is one element of a gap-filled series. Interpolated marks
// values inferred rather than observed, so consumers can tell them apart.
type FilledValue struct {
	Value        *float64 `json:"value"`
	Interpolated bool     `json:"interpolated"`
}

// FillGaps linearly interpolates runs of missing values strictly between two
// present values. Gaps touching either end of the series are left unfilled:
// there is nothing to anchor the line on.
func FillGaps(values []*float64) []FilledValue {
	out := make([]FilledValue, len(values))
	for i, v := range values {
		out[i] = FilledValue{Value: v}
	}

	prev := -1 // index of the last present value
	for i, v := range values {
		if v == nil {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			lo, hi := *values[prev], *v
			step := (hi - lo) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				filled := lo + step*float64(j-prev)
				out[j] = FilledValue{Value: &filled, Interpolated: true}
			}
		}
		prev = i
	}
	return out
}

// MovingAverage returns the trailing window mean at each index; indices
// before a full window average what is available so far.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 0 || len(values) == 0 {
		return nil
	}

	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
			out[i] = sum / float64(window)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStdDev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
