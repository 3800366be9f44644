// Package scheduler drives the periodic jobs: collection, aggregation
// rollups and forecast regeneration.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/airsentinel/airsentinel/internal/weather"
)

// Scheduler periodically collects readings and refreshes derived data for
// the configured locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *weather.Service
	locations []weather.Location
	interval  time.Duration
}

// New creates a new Scheduler.
func New(locations []weather.Location, interval time.Duration, service *weather.Service) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		locations: locations,
		interval:  interval,
	}
}

// Start registers all jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		log.Println("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	if _, err := s.scheduler.Every(minutes).Minutes().Do(s.runCollection); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Hour().Do(s.runDailyAggregation); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Day().At("01:30").Do(s.runForecasts); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Day().At("02:00").Do(s.runMonthlyRollup); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runCollection() {
	log.Println("scheduler: running collection job")

	var wg sync.WaitGroup
	for _, loc := range s.locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			stats, err := s.service.Collect(ctx, loc)
			if err != nil {
				log.Printf("scheduler: collection failed for %s: %v", loc.ID, err)
				return
			}
			if stats.Failed > 0 {
				log.Printf("scheduler: collected %s with %d of %d sources failing",
					loc.ID, stats.Failed, stats.Attempted)
			}
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed collection job")
}

// runDailyAggregation recomputes today's and yesterday's daily rows so late
// arrivals from slow sources still land in the right bucket.
func (s *Scheduler) runDailyAggregation() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	for _, loc := range s.locations {
		for _, day := range []time.Time{now, now.AddDate(0, 0, -1)} {
			if _, err := s.service.RunDailyAggregation(ctx, loc.ID, day); err != nil {
				log.Printf("scheduler: daily aggregation failed for %s %s: %v",
					loc.ID, day.Format("2006-01-02"), err)
			}
		}
	}
}

func (s *Scheduler) runMonthlyRollup() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	for _, loc := range s.locations {
		for _, month := range []time.Time{now, now.AddDate(0, -1, 0)} {
			if _, err := s.service.RunMonthlyAggregation(ctx, loc.ID, month); err != nil {
				log.Printf("scheduler: monthly rollup failed for %s %s: %v",
					loc.ID, month.Format("2006-01"), err)
			}
		}
	}
}

func (s *Scheduler) runForecasts() {
	for _, loc := range s.locations {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if _, err := s.service.Forecast(ctx, loc, 7); err != nil {
			log.Printf("scheduler: forecast regeneration failed for %s: %v", loc.ID, err)
		}
		cancel()
	}
}
