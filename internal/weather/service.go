package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/airsentinel/airsentinel/internal/cache"
	"github.com/airsentinel/airsentinel/internal/metrics"
)

var (
	// ErrNoData marks a query window with zero underlying readings. It is
	// never answered with zero-valued results.
	ErrNoData = errors.New("no data for requested location and range")

	// ErrInsufficientHistory marks an analytics request that lacks the
	// minimum input, distinct from a computational failure.
	ErrInsufficientHistory = errors.New("not enough history for requested operation")

	// ErrForecastUnavailable marks a location with neither enough history
	// for an internal prediction nor a reachable upstream forecast.
	ErrForecastUnavailable = errors.New("forecast not available")
)

// CollectionStats summarizes one collection cycle for one location.
// Per-source failures land here and in metrics, never as a cycle error.
type CollectionStats struct {
	LocationID string    `json:"locationId"`
	StartedAt  time.Time `json:"startedAt"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Stored     int       `json:"stored"`
	Failures   error     `json:"-"`
}

// Service orchestrates fetching from multiple sources, persisting readings
// and answering aggregate/analytics queries.
type Service struct {
	store    Store
	sources  []Source
	cache    *cache.Cache
	exporter Exporter

	priority     []string
	fetchTimeout time.Duration
	cacheTTL     time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithCache attaches a memoization layer for analytics results.
func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithExporter mirrors stored readings to an external time-series sink.
func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithSourcePriority overrides the consensus fallback order.
func WithSourcePriority(priority []string) Option {
	return func(s *Service) {
		if len(priority) > 0 {
			s.priority = priority
		}
	}
}

// WithFetchTimeout bounds each outbound adapter call.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// NewService creates a Service over a store and a set of source adapters.
func NewService(store Store, sources []Source, opts ...Option) *Service {
	s := &Service{
		store:        store,
		sources:      sources,
		priority:     DefaultSourcePriority,
		fetchTimeout: 10 * time.Second,
		cacheTTL:     10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SourcePriority returns the configured consensus fallback order.
func (s *Service) SourcePriority() []string {
	return s.priority
}

// Collect fans out to every capability of every registered source
// concurrently and appends one reading per successful fetch. Failures are
// isolated per adapter: a dead source is simply absent this cycle. Only a
// storage failure is returned as an error.
func (s *Service) Collect(ctx context.Context, loc Location) (CollectionStats, error) {
	stats := CollectionStats{LocationID: loc.ID, StartedAt: time.Now().UTC()}
	if len(s.sources) == 0 {
		return stats, fmt.Errorf("no sources configured")
	}

	timer := time.Now()
	defer func() {
		metrics.CollectionRuns.WithLabelValues(loc.ID).Inc()
		metrics.CollectionDuration.Observe(time.Since(timer).Seconds())
	}()

	type fetch struct {
		source string
		run    func(context.Context) (Reading, error)
	}

	var fetches []fetch
	for _, src := range s.sources {
		if ws, ok := src.(WeatherSource); ok {
			fetches = append(fetches, fetch{source: src.Name(), run: func(ctx context.Context) (Reading, error) {
				return ws.FetchWeather(ctx, loc)
			}})
		}
		if as, ok := src.(AirQualitySource); ok {
			fetches = append(fetches, fetch{source: src.Name(), run: func(ctx context.Context) (Reading, error) {
				return as.FetchAirQuality(ctx, loc)
			}})
		}
	}
	stats.Attempted = len(fetches)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings []Reading
		failures *multierror.Error
	)

	for _, f := range fetches {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()

			fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()

			r, err := f.run(fctx)
			if err != nil {
				// Absorb and continue; partial coverage beats none.
				log.Printf("source %s fetch failed for %s: %v", f.source, loc.Key(), err)
				metrics.SourceFailures.WithLabelValues(f.source).Inc()
				mu.Lock()
				failures = multierror.Append(failures, fmt.Errorf("%s: %w", f.source, err))
				mu.Unlock()
				return
			}

			mu.Lock()
			readings = append(readings, r)
			mu.Unlock()
		}()
	}

	wg.Wait()

	stats.Succeeded = len(readings)
	stats.Failed = stats.Attempted - stats.Succeeded
	stats.Failures = failures.ErrorOrNil()

	for _, r := range readings {
		r.ID = uuid.NewString()
		if err := s.store.SaveReading(ctx, r); err != nil {
			// Storage being down is the one hard failure here.
			return stats, fmt.Errorf("save reading from %s: %w", r.Source, err)
		}
		stats.Stored++
		metrics.ReadingsStored.WithLabelValues(r.Source).Inc()

		if s.exporter != nil {
			s.exporter.WriteReading(r)
		}
	}

	if stats.Stored > 0 {
		s.invalidateLocation(loc.ID)
	}

	return stats, nil
}

// CollectAll runs collection for every location; one location's failure
// never blocks another's.
func (s *Service) CollectAll(ctx context.Context, locs []Location) {
	for _, loc := range locs {
		stats, err := s.Collect(ctx, loc)
		if err != nil {
			log.Printf("collection failed for %s: %v", loc.Key(), err)
			continue
		}
		log.Printf("collected %s: %d/%d sources, %d readings stored",
			loc.Key(), stats.Succeeded, stats.Attempted, stats.Stored)
	}
}

// CurrentConditions is the latest per-source view plus consensus picks.
type CurrentConditions struct {
	LocationID string                   `json:"locationId"`
	Readings   []Reading                `json:"readings"`
	Consensus  map[string]ResolvedValue `json:"consensus"`
	AQI        *AQICategory             `json:"aqiCategory,omitempty"`
}

// Current returns the most recent reading per source together with the
// resolved best-available value for every reported metric. The per-source
// readings are returned verbatim: consensus selects, it never blends.
func (s *Service) Current(ctx context.Context, locationID, preferred string) (CurrentConditions, error) {
	latest, err := s.store.LatestReadings(ctx, locationID, 4*len(s.sources)+4)
	if err != nil {
		return CurrentConditions{}, err
	}

	// Newest first; keep the first reading seen per source.
	perSource := make([]Reading, 0, len(s.sources))
	seen := make(map[string]bool)
	for _, r := range latest {
		if seen[r.Source] {
			continue
		}
		seen[r.Source] = true
		perSource = append(perSource, r)
	}

	out := CurrentConditions{
		LocationID: locationID,
		Readings:   perSource,
		Consensus:  make(map[string]ResolvedValue),
	}

	for _, metric := range MetricNames {
		if rv := Resolve(perSource, metric, preferred, s.priority); rv != nil {
			out.Consensus[metric] = *rv
		}
	}

	if rv, ok := out.Consensus["aqi"]; ok {
		cat := CategorizeAQI(rv.Value)
		out.AQI = &cat
	}

	return out, nil
}

// History returns raw readings for [from, to), oldest first.
func (s *Service) History(ctx context.Context, locationID string, from, to time.Time) ([]Reading, error) {
	return s.store.ReadingsRange(ctx, locationID, from, to)
}

// invalidateLocation drops every cached result family derived from a
// location's readings. Compare results span locations, so the whole family
// goes.
func (s *Service) invalidateLocation(locationID string) {
	if s.cache == nil {
		return
	}
	for _, family := range []string{"trend", "correlation", "heatmap", "anomalies", "aggregates"} {
		s.cache.InvalidatePattern(family + ":" + locationID + ":*")
	}
	s.cache.InvalidatePattern("compare:*")
}
