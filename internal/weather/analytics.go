package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/airsentinel/airsentinel/internal/analytics"
	"github.com/airsentinel/airsentinel/internal/cache"
)

// withCache memoizes a computed result under a key; the bool reports whether
// the value came from cache. A nil cache always recomputes.
func withCache[T any](c *cache.Cache, key string, ttl time.Duration, compute func() (T, error)) (T, bool, error) {
	if c != nil {
		if v, ok := c.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, true, nil
			}
		}
	}

	v, err := compute()
	if err != nil {
		return v, false, err
	}
	if c != nil {
		c.Set(key, v, ttl)
	}
	return v, false, nil
}

func rangeKey(parts ...string) string {
	return strings.Join(parts, ":")
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RunDailyAggregation recomputes the aggregate for one location and date
// from raw readings and replaces the stored row wholesale. A date with zero
// readings yields ErrNoData and stores nothing: absence must stay absence.
func (s *Service) RunDailyAggregation(ctx context.Context, locationID string, date time.Time) (*DailyAggregate, error) {
	day := startOfDay(date)
	readings, err := s.store.ReadingsRange(ctx, locationID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	agg := AggregateDay(locationID, day, readings)
	if agg == nil {
		return nil, ErrNoData
	}

	if err := s.store.ReplaceAggregate(ctx, *agg); err != nil {
		return nil, fmt.Errorf("replace daily aggregate: %w", err)
	}
	return agg, nil
}

// RunMonthlyAggregation rolls the month's daily aggregates into one monthly
// row and replaces it.
func (s *Service) RunMonthlyAggregation(ctx context.Context, locationID string, month time.Time) (*DailyAggregate, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	days, err := s.store.AggregatesRange(ctx, locationID, GranularityDaily, start, start.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}

	agg := AggregateMonth(locationID, start, days)
	if agg == nil {
		return nil, ErrNoData
	}

	if err := s.store.ReplaceAggregate(ctx, *agg); err != nil {
		return nil, fmt.Errorf("replace monthly aggregate: %w", err)
	}
	return agg, nil
}

// AggregateSeries answers the aggregation query contract: an ordered
// {date, value, sourceCount} series for one metric, never mixed with raw
// readings. Hourly granularity buckets raw readings; daily and monthly read
// stored rollups.
func (s *Service) AggregateSeries(ctx context.Context, locationID, metric string, from, to time.Time, g Granularity) ([]AggregatePoint, bool, error) {
	if !KnownMetric(metric) && metric != "tempMin" && metric != "tempMax" {
		return nil, false, fmt.Errorf("unknown metric %q", metric)
	}

	key := rangeKey("aggregates", locationID, metric, string(g), dayKey(from), dayKey(to))
	return withCache(s.cache, key, s.cacheTTL, func() ([]AggregatePoint, error) {
		if g == GranularityHourly {
			return s.hourlySeries(ctx, locationID, metric, from, to)
		}

		aggs, err := s.store.AggregatesRange(ctx, locationID, g, from, to)
		if err != nil {
			return nil, err
		}

		var points []AggregatePoint
		for _, a := range aggs {
			v := a.Metric(metric)
			if v == nil {
				continue
			}
			points = append(points, AggregatePoint{
				Date:        a.Date,
				Value:       *v,
				SourceCount: len(a.SourcesObserved),
			})
		}
		if len(points) == 0 {
			return nil, ErrNoData
		}
		return points, nil
	})
}

func (s *Service) hourlySeries(ctx context.Context, locationID, metric string, from, to time.Time) ([]AggregatePoint, error) {
	readings, err := s.store.ReadingsRange(ctx, locationID, from, to)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		sum     float64
		count   int
		sources map[string]bool
	}
	buckets := make(map[time.Time]*bucket)

	for _, r := range readings {
		v := r.Metric(metric)
		if v == nil {
			continue
		}
		hour := r.CapturedAt.UTC().Truncate(time.Hour)
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{sources: make(map[string]bool)}
			buckets[hour] = b
		}
		b.sum += *v
		b.count++
		b.sources[r.Source] = true
	}

	if len(buckets) == 0 {
		return nil, ErrNoData
	}

	points := make([]AggregatePoint, 0, len(buckets))
	for hour, b := range buckets {
		points = append(points, AggregatePoint{
			Date:        hour,
			Value:       b.sum / float64(b.count),
			SourceCount: len(b.sources),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// FilledDailySeries returns the daily series for a metric with interior
// gaps linearly interpolated and flagged; missing days at either edge stay
// missing.
func (s *Service) FilledDailySeries(ctx context.Context, locationID, metric string, from, to time.Time) ([]analytics.FilledValue, error) {
	aggs, err := s.store.AggregatesRange(ctx, locationID, GranularityDaily, from, to)
	if err != nil {
		return nil, err
	}
	if len(aggs) == 0 {
		return nil, ErrNoData
	}

	byDay := make(map[string]*float64)
	for _, a := range aggs {
		byDay[dayKey(a.Date)] = a.Metric(metric)
	}

	var series []*float64
	for day := startOfDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		series = append(series, byDay[dayKey(day)])
	}

	return analytics.FillGaps(series), nil
}

// TrendReport is a trend classification plus the series it was computed
// from, for client-side charting.
type TrendReport struct {
	LocationID string                `json:"locationId"`
	Metric     string                `json:"metric"`
	Result     analytics.TrendResult `json:"result"`
	Series     []AggregatePoint      `json:"series"`
}

// Trend classifies how a metric moved across the window.
func (s *Service) Trend(ctx context.Context, locationID, metric string, from, to time.Time) (TrendReport, bool, error) {
	key := rangeKey("trend", locationID, metric, dayKey(from), dayKey(to))
	return withCache(s.cache, key, s.cacheTTL, func() (TrendReport, error) {
		series, _, err := s.AggregateSeries(ctx, locationID, metric, from, to, GranularityDaily)
		if err != nil {
			return TrendReport{}, err
		}

		values := make([]float64, len(series))
		for i, p := range series {
			values[i] = p.Value
		}

		result, err := analytics.Trend(values)
		if err != nil {
			return TrendReport{}, fmt.Errorf("%w: %v", ErrInsufficientHistory, err)
		}

		return TrendReport{
			LocationID: locationID,
			Metric:     metric,
			Result:     result,
			Series:     series,
		}, nil
	})
}

// CorrelationReport pairs a Pearson result with both input series.
type CorrelationReport struct {
	LocationID string                      `json:"locationId"`
	MetricA    string                      `json:"metricA"`
	MetricB    string                      `json:"metricB"`
	Result     analytics.CorrelationResult `json:"result"`
	SeriesA    []AggregatePoint            `json:"seriesA"`
	SeriesB    []AggregatePoint            `json:"seriesB"`
}

// Correlation computes the Pearson correlation between two metrics of one
// location over days where both are present.
func (s *Service) Correlation(ctx context.Context, locationID, metricA, metricB string, from, to time.Time) (CorrelationReport, bool, error) {
	key := rangeKey("correlation", locationID, metricA, metricB, dayKey(from), dayKey(to))
	return withCache(s.cache, key, s.cacheTTL, func() (CorrelationReport, error) {
		aggs, err := s.store.AggregatesRange(ctx, locationID, GranularityDaily, from, to)
		if err != nil {
			return CorrelationReport{}, err
		}

		var x, y []float64
		var seriesA, seriesB []AggregatePoint
		for _, a := range aggs {
			va, vb := a.Metric(metricA), a.Metric(metricB)
			if va == nil || vb == nil {
				continue // only days observed on both sides correlate
			}
			x = append(x, *va)
			y = append(y, *vb)
			n := len(a.SourcesObserved)
			seriesA = append(seriesA, AggregatePoint{Date: a.Date, Value: *va, SourceCount: n})
			seriesB = append(seriesB, AggregatePoint{Date: a.Date, Value: *vb, SourceCount: n})
		}

		result, err := analytics.Correlation(x, y)
		if err != nil {
			return CorrelationReport{}, fmt.Errorf("%w: %v", ErrInsufficientHistory, err)
		}

		return CorrelationReport{
			LocationID: locationID,
			MetricA:    metricA,
			MetricB:    metricB,
			Result:     result,
			SeriesA:    seriesA,
			SeriesB:    seriesB,
		}, nil
	})
}

// LocationComparison is one location's slice of a comparison.
type LocationComparison struct {
	LocationID string           `json:"locationId"`
	Average    float64          `json:"average"`
	Min        float64          `json:"min"`
	Max        float64          `json:"max"`
	Series     []AggregatePoint `json:"series"`
}

// CompareReport ranks locations by a metric, best (lowest) first.
type CompareReport struct {
	Metric    string               `json:"metric"`
	Locations []LocationComparison `json:"locations"`
}

// Compare summarizes one metric across several locations over the window,
// ranked ascending by average. Locations with no data are skipped, never
// zero-filled.
func (s *Service) Compare(ctx context.Context, locationIDs []string, metric string, from, to time.Time) (CompareReport, bool, error) {
	key := rangeKey("compare", strings.Join(locationIDs, ","), metric, dayKey(from), dayKey(to))
	return withCache(s.cache, key, s.cacheTTL, func() (CompareReport, error) {
		report := CompareReport{Metric: metric}

		for _, locID := range locationIDs {
			series, _, err := s.AggregateSeries(ctx, locID, metric, from, to, GranularityDaily)
			if err != nil {
				log.Printf("compare: skipping %s: %v", locID, err)
				continue
			}

			comp := LocationComparison{LocationID: locID, Series: series}
			comp.Min = series[0].Value
			comp.Max = series[0].Value
			var sum float64
			for _, p := range series {
				sum += p.Value
				if p.Value < comp.Min {
					comp.Min = p.Value
				}
				if p.Value > comp.Max {
					comp.Max = p.Value
				}
			}
			comp.Average = sum / float64(len(series))
			report.Locations = append(report.Locations, comp)
		}

		if len(report.Locations) == 0 {
			return CompareReport{}, ErrNoData
		}

		sort.Slice(report.Locations, func(i, j int) bool {
			return report.Locations[i].Average < report.Locations[j].Average
		})
		return report, nil
	})
}

// HeatmapCell is one (date, hour) bucket of a heatmap.
type HeatmapCell struct {
	Date  string  `json:"date"`
	Hour  int     `json:"hour"`
	Value float64 `json:"value"`
}

// HeatmapReport is a date x hour matrix of a metric, cells only where data
// exists.
type HeatmapReport struct {
	LocationID string        `json:"locationId"`
	Metric     string        `json:"metric"`
	Cells      []HeatmapCell `json:"cells"`
}

// Heatmap buckets raw readings by calendar date and hour of day.
func (s *Service) Heatmap(ctx context.Context, locationID, metric string, from, to time.Time) (HeatmapReport, bool, error) {
	key := rangeKey("heatmap", locationID, metric, dayKey(from), dayKey(to))
	return withCache(s.cache, key, s.cacheTTL, func() (HeatmapReport, error) {
		readings, err := s.store.ReadingsRange(ctx, locationID, from, to)
		if err != nil {
			return HeatmapReport{}, err
		}

		type cellKey struct {
			date string
			hour int
		}
		sums := make(map[cellKey]float64)
		counts := make(map[cellKey]int)

		for _, r := range readings {
			v := r.Metric(metric)
			if v == nil {
				continue
			}
			ts := r.CapturedAt.UTC()
			k := cellKey{date: ts.Format("2006-01-02"), hour: ts.Hour()}
			sums[k] += *v
			counts[k]++
		}

		if len(sums) == 0 {
			return HeatmapReport{}, ErrNoData
		}

		report := HeatmapReport{LocationID: locationID, Metric: metric}
		for k, sum := range sums {
			report.Cells = append(report.Cells, HeatmapCell{
				Date:  k.date,
				Hour:  k.hour,
				Value: sum / float64(counts[k]),
			})
		}
		sort.Slice(report.Cells, func(i, j int) bool {
			if report.Cells[i].Date != report.Cells[j].Date {
				return report.Cells[i].Date < report.Cells[j].Date
			}
			return report.Cells[i].Hour < report.Cells[j].Hour
		})
		return report, nil
	})
}

// AnomalyReport lists outliers in a metric's daily series.
type AnomalyReport struct {
	LocationID string              `json:"locationId"`
	Metric     string              `json:"metric"`
	Threshold  float64             `json:"threshold"`
	Anomalies  []analytics.Anomaly `json:"anomalies"`
	Series     []AggregatePoint    `json:"series"`
}

// Anomalies flags days whose metric deviates beyond the z-score threshold.
// Too little history returns an empty report, not an error.
func (s *Service) Anomalies(ctx context.Context, locationID, metric string, from, to time.Time, threshold float64) (AnomalyReport, bool, error) {
	if threshold <= 0 {
		threshold = analytics.DefaultAnomalyThreshold
	}

	key := rangeKey("anomalies", locationID, metric, dayKey(from), dayKey(to), fmt.Sprintf("%.1f", threshold))
	return withCache(s.cache, key, s.cacheTTL, func() (AnomalyReport, error) {
		series, _, err := s.AggregateSeries(ctx, locationID, metric, from, to, GranularityDaily)
		if err != nil {
			return AnomalyReport{}, err
		}

		points := make([]analytics.Point, len(series))
		for i, p := range series {
			points[i] = analytics.Point{Timestamp: p.Date, Value: p.Value}
		}

		return AnomalyReport{
			LocationID: locationID,
			Metric:     metric,
			Threshold:  threshold,
			Anomalies:  analytics.DetectAnomalies(points, threshold),
			Series:     series,
		}, nil
	})
}

// ForecastReport is the next-N-day outlook for a location, tagged with the
// method that produced it.
type ForecastReport struct {
	LocationID string          `json:"locationId"`
	Method     string          `json:"method"`
	Points     []ForecastPoint `json:"points"`
}

// Forecast produces the next-`days` outlook. With at least seven daily
// aggregates of history it predicts internally; otherwise it falls back to
// upstream forecast sources. Either way the stored point set for the method
// is replaced wholesale. No data from either path yields
// ErrForecastUnavailable: a missing forecast is never a fabricated guess.
func (s *Service) Forecast(ctx context.Context, loc Location, days int) (ForecastReport, error) {
	if days <= 0 {
		return ForecastReport{}, fmt.Errorf("days must be greater than zero")
	}

	report, err := s.historicalForecast(ctx, loc, days)
	if err == nil {
		return report, nil
	}
	if !isInsufficientHistory(err) {
		return ForecastReport{}, err
	}

	return s.upstreamForecast(ctx, loc, days)
}

func isInsufficientHistory(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) || errors.Is(err, ErrNoData) ||
		errors.Is(err, analytics.ErrInsufficientData)
}

// historicalForecast predicts each metric series independently from the
// last 30 daily aggregates.
func (s *Service) historicalForecast(ctx context.Context, loc Location, days int) (ForecastReport, error) {
	today := startOfDay(time.Now())
	aggs, err := s.store.AggregatesRange(ctx, loc.ID, GranularityDaily, today.AddDate(0, 0, -30), today)
	if err != nil {
		return ForecastReport{}, err
	}
	if len(aggs) < analytics.MinForecastHistory {
		return ForecastReport{}, ErrInsufficientHistory
	}

	series := func(metric string) []float64 {
		var out []float64
		for _, a := range aggs {
			if v := a.Metric(metric); v != nil {
				out = append(out, *v)
			}
		}
		return out
	}

	predictions := make(map[string][]float64)
	for _, metric := range []string{"temperature", "tempMin", "tempMax", "humidity", "rainfall", "pm25", "aqi", "windSpeed"} {
		vals, err := analytics.PredictSeries(series(metric), days)
		if err != nil {
			continue // metric lacks history; others may still predict
		}
		predictions[metric] = vals
	}

	if len(predictions) == 0 {
		return ForecastReport{}, ErrInsufficientHistory
	}

	confidences := analytics.Confidences(days)
	now := time.Now().UTC()

	points := make([]ForecastPoint, 0, days)
	for d := 1; d <= days; d++ {
		point := ForecastPoint{
			LocationID:   loc.ID,
			ForecastDate: today.AddDate(0, 0, d),
			GeneratedAt:  now,
			Method:       MethodHistoricalPrediction,
			Confidence:   confidences[d-1],
		}

		pick := func(metric string) *float64 {
			if vals, ok := predictions[metric]; ok {
				return Float(vals[d-1])
			}
			return nil
		}
		point.Temperature = pick("temperature")
		point.TempMin = pick("tempMin")
		point.TempMax = pick("tempMax")
		point.Humidity = pick("humidity")
		point.Precipitation = pick("rainfall")
		point.PM25 = pick("pm25")
		point.AQI = pick("aqi")
		point.WindSpeed = pick("windSpeed")

		points = append(points, point)
	}

	if err := s.store.ReplaceForecasts(ctx, loc.ID, MethodHistoricalPrediction, points); err != nil {
		return ForecastReport{}, fmt.Errorf("replace forecasts: %w", err)
	}

	return ForecastReport{LocationID: loc.ID, Method: MethodHistoricalPrediction, Points: points}, nil
}

// upstreamForecast fans out to every ForecastSource and keeps the best
// candidate by source priority.
func (s *Service) upstreamForecast(ctx context.Context, loc Location, days int) (ForecastReport, error) {
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		candidates = make(map[string][]ForecastPoint)
	)

	for _, src := range s.sources {
		fs, ok := src.(ForecastSource)
		if !ok {
			continue
		}

		wg.Add(1)
		go func(fs ForecastSource) {
			defer wg.Done()

			fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()

			points, err := fs.FetchForecast(fctx, loc, days)
			if err != nil {
				log.Printf("source %s forecast failed for %s: %v", fs.Name(), loc.Key(), err)
				return
			}
			mu.Lock()
			candidates[fs.Name()] = points
			mu.Unlock()
		}(fs)
	}
	wg.Wait()

	if len(candidates) == 0 {
		return ForecastReport{}, ErrForecastUnavailable
	}

	ranked := make([]analytics.ForecastCandidate, 0, len(candidates))
	for name, points := range candidates {
		series := make([]float64, 0, len(points))
		for _, p := range points {
			if p.Temperature != nil {
				series = append(series, *p.Temperature)
			}
		}
		ranked = append(ranked, analytics.ForecastCandidate{Source: name, Predicted: series})
	}

	best, ok := analytics.SelectBestForecast(ranked, nil, s.priority)
	if !ok {
		return ForecastReport{}, ErrForecastUnavailable
	}

	points := candidates[best.Source]
	if err := s.store.ReplaceForecasts(ctx, loc.ID, MethodAPIForecast, points); err != nil {
		return ForecastReport{}, fmt.Errorf("replace forecasts: %w", err)
	}

	return ForecastReport{LocationID: loc.ID, Method: MethodAPIForecast, Points: points}, nil
}

// AccuracyReport scores each forecast method against later-observed daily
// aggregates for one metric.
type AccuracyReport struct {
	LocationID string                               `json:"locationId"`
	Metric     string                               `json:"metric"`
	Methods    map[string]*analytics.AccuracyReport `json:"methods"`
	BestMethod string                               `json:"bestMethod,omitempty"`
}

// ForecastAccuracy pairs stored forecast points with the actual aggregates
// later observed for the same dates. Methods without a single matched pair
// are omitted; no matches at all is ErrNoData.
func (s *Service) ForecastAccuracy(ctx context.Context, locationID, metric string) (AccuracyReport, error) {
	forecasts, err := s.store.Forecasts(ctx, locationID)
	if err != nil {
		return AccuracyReport{}, err
	}
	if len(forecasts) == 0 {
		return AccuracyReport{}, ErrNoData
	}

	today := startOfDay(time.Now())

	type pairs struct {
		predicted []float64
		actual    []float64
	}
	byMethod := make(map[string]*pairs)

	for _, f := range forecasts {
		if !f.ForecastDate.Before(today) {
			continue // the day is not over; no ground truth yet
		}

		predicted := forecastMetric(f, metric)
		if predicted == nil {
			continue
		}

		aggs, err := s.store.AggregatesRange(ctx, locationID, GranularityDaily,
			startOfDay(f.ForecastDate), startOfDay(f.ForecastDate).AddDate(0, 0, 1))
		if err != nil || len(aggs) == 0 {
			continue
		}
		actual := aggs[0].Metric(metric)
		if actual == nil {
			continue
		}

		p, ok := byMethod[f.Method]
		if !ok {
			p = &pairs{}
			byMethod[f.Method] = p
		}
		p.predicted = append(p.predicted, *predicted)
		p.actual = append(p.actual, *actual)
	}

	report := AccuracyReport{
		LocationID: locationID,
		Metric:     metric,
		Methods:    make(map[string]*analytics.AccuracyReport),
	}

	bestRMSE := 0.0
	for method, p := range byMethod {
		acc, err := analytics.EvaluateAccuracy(p.predicted, p.actual)
		if err != nil {
			continue
		}
		report.Methods[method] = acc
		if report.BestMethod == "" || acc.RMSE < bestRMSE {
			report.BestMethod = method
			bestRMSE = acc.RMSE
		}
	}

	if len(report.Methods) == 0 {
		return AccuracyReport{}, ErrNoData
	}
	return report, nil
}

func forecastMetric(f ForecastPoint, metric string) *float64 {
	switch metric {
	case "temperature":
		return f.Temperature
	case "tempMin":
		return f.TempMin
	case "tempMax":
		return f.TempMax
	case "humidity":
		return f.Humidity
	case "rainfall":
		return f.Precipitation
	case "pm25":
		return f.PM25
	case "aqi":
		return f.AQI
	case "windSpeed":
		return f.WindSpeed
	default:
		return nil
	}
}
