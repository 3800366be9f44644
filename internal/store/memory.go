// Package store provides implementations of the weather.Store persistence
// contract. The in-memory store is the default backend and the test double;
// the MySQL store is the durable option. Both expose identical semantics:
// append-only readings, replace-whole-row aggregates and replace-whole-set
// forecasts.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/airsentinel/airsentinel/internal/weather"
)

// ErrNotFound is returned when no data exists for a given location.
var ErrNotFound = errors.New("no data for location")

type aggregateKey struct {
	granularity weather.Granularity
	day         string
}

type locationData struct {
	readings   []weather.Reading // ordered by CapturedAt ascending
	aggregates map[aggregateKey]weather.DailyAggregate
	forecasts  map[string][]weather.ForecastPoint // keyed by method
}

// MemoryStore is a concurrency-safe in-memory implementation of
// weather.Store with optional retention limits on raw readings.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*locationData

	maxReadings int           // per location; <= 0 means unlimited
	maxAge      time.Duration // per reading; <= 0 means unlimited
}

// NewMemoryStore creates a MemoryStore with optional retention limits.
func NewMemoryStore(maxReadings int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:        make(map[string]*locationData),
		maxReadings: maxReadings,
		maxAge:      maxAge,
	}
}

func (s *MemoryStore) loc(locationID string) *locationData {
	d, ok := s.data[locationID]
	if !ok {
		d = &locationData{
			aggregates: make(map[aggregateKey]weather.DailyAggregate),
			forecasts:  make(map[string][]weather.ForecastPoint),
		}
		s.data[locationID] = d
	}
	return d
}

// SaveReading appends a reading and enforces retention. Readings are never
// merged or overwritten; each source's record stays distinct.
func (s *MemoryStore) SaveReading(_ context.Context, r weather.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.loc(r.LocationID)

	// Insert preserving CapturedAt order; appends are the common case.
	i := len(d.readings)
	for i > 0 && d.readings[i-1].CapturedAt.After(r.CapturedAt) {
		i--
	}
	d.readings = append(d.readings, weather.Reading{})
	copy(d.readings[i+1:], d.readings[i:])
	d.readings[i] = r

	if s.maxReadings > 0 && len(d.readings) > s.maxReadings {
		over := len(d.readings) - s.maxReadings
		d.readings = d.readings[over:]
	}

	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(d.readings); i++ {
			if !d.readings[i].CapturedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			d.readings = d.readings[i:]
		}
	}

	return nil
}

// LatestReadings returns up to n most recent readings, newest first.
func (s *MemoryStore) LatestReadings(_ context.Context, locationID string, n int) ([]weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[locationID]
	if !ok || len(d.readings) == 0 {
		return nil, ErrNotFound
	}

	if n <= 0 || n > len(d.readings) {
		n = len(d.readings)
	}

	out := make([]weather.Reading, n)
	for i := 0; i < n; i++ {
		out[i] = d.readings[len(d.readings)-1-i]
	}
	return out, nil
}

// ReadingsRange returns readings with from <= CapturedAt < to, oldest
// first. An empty window is not an error; it returns an empty slice so the
// aggregation engine can distinguish "no data" itself.
func (s *MemoryStore) ReadingsRange(_ context.Context, locationID string, from, to time.Time) ([]weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[locationID]
	if !ok {
		return nil, nil
	}

	var out []weather.Reading
	for _, r := range d.readings {
		if !r.CapturedAt.Before(from) && r.CapturedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ReplaceAggregate swaps the whole row for (location, date, granularity).
func (s *MemoryStore) ReplaceAggregate(_ context.Context, agg weather.DailyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.loc(agg.LocationID)
	key := aggregateKey{
		granularity: agg.Granularity,
		day:         agg.Date.UTC().Format("2006-01-02"),
	}
	d.aggregates[key] = agg
	return nil
}

// AggregatesRange returns aggregates of one granularity with
// from <= Date < to, oldest first.
func (s *MemoryStore) AggregatesRange(_ context.Context, locationID string, g weather.Granularity, from, to time.Time) ([]weather.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[locationID]
	if !ok {
		return nil, nil
	}

	var out []weather.DailyAggregate
	for key, agg := range d.aggregates {
		if key.granularity != g {
			continue
		}
		if !agg.Date.Before(from) && agg.Date.Before(to) {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ReplaceForecasts atomically swaps the stored point set for a
// (location, method); stale points never survive a regeneration.
func (s *MemoryStore) ReplaceForecasts(_ context.Context, locationID, method string, points []weather.ForecastPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.loc(locationID)
	replacement := make([]weather.ForecastPoint, len(points))
	copy(replacement, points)
	d.forecasts[method] = replacement
	return nil
}

// Forecasts returns every stored point for a location across methods,
// ordered by ForecastDate ascending.
func (s *MemoryStore) Forecasts(_ context.Context, locationID string) ([]weather.ForecastPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[locationID]
	if !ok {
		return nil, nil
	}

	var out []weather.ForecastPoint
	for _, points := range d.forecasts {
		out = append(out, points...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ForecastDate.Before(out[j].ForecastDate) })
	return out, nil
}
