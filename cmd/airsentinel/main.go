package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/airsentinel/airsentinel/internal/api/http"
	"github.com/airsentinel/airsentinel/internal/cache"
	"github.com/airsentinel/airsentinel/internal/config"
	"github.com/airsentinel/airsentinel/internal/export"
	"github.com/airsentinel/airsentinel/internal/scheduler"
	"github.com/airsentinel/airsentinel/internal/store"
	"github.com/airsentinel/airsentinel/internal/weather"
	"github.com/airsentinel/airsentinel/internal/weather/sources"
)

func main() {
	// Load configuration (env + YAML registry).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound source calls.
	httpClient := &http.Client{
		Timeout: cfg.FetchTimeout,
	}

	// Durable store when MySQL is configured, in-memory otherwise.
	var (
		dataStore weather.Store
		closers   []func()
	)
	if cfg.MySQL.Host != "" {
		mysqlStore, err := store.NewMySQLStore(store.MySQLConfig{
			User:     cfg.MySQL.User,
			Password: cfg.MySQL.Password,
			Host:     cfg.MySQL.Host,
			Port:     cfg.MySQL.Port,
			DBName:   cfg.MySQL.DBName,
		})
		if err != nil {
			log.Fatalf("failed to connect to mysql: %v", err)
		}
		closers = append(closers, func() { mysqlStore.Close() })
		dataStore = mysqlStore
	} else {
		dataStore = store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
	}

	// Source adapters with resilience (backoff + circuit breaker). Keyless
	// sources are always on; keyed ones only when configured.
	var srcs []weather.Source
	srcs = append(srcs, sources.NewOpenMeteoProvider(httpClient))
	if len(cfg.IMDStations) > 0 {
		srcs = append(srcs, sources.NewIMDProvider(httpClient, cfg.IMDStations))
	}
	if cfg.CPCBAPIKey != "" {
		srcs = append(srcs, sources.NewCPCBProvider(httpClient, cfg.CPCBAPIKey))
	}
	if cfg.OpenWeatherAPIKey != "" {
		srcs = append(srcs, sources.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	if cfg.WeatherAPIKey != "" {
		srcs = append(srcs, sources.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey))
	}

	// Analytics cache with background expiry sweep.
	analyticsCache := cache.New(cfg.CacheSweepInterval)
	closers = append(closers, analyticsCache.Stop)

	opts := []weather.Option{
		weather.WithCache(analyticsCache, cfg.CacheTTL),
		weather.WithSourcePriority(cfg.SourcePriority),
		weather.WithFetchTimeout(cfg.FetchTimeout),
	}

	// Optional InfluxDB mirror for external dashboards.
	if cfg.Influx.URL != "" {
		writer, err := export.NewInfluxWriter(export.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			log.Fatalf("failed to connect to influxdb: %v", err)
		}
		closers = append(closers, writer.Close)
		opts = append(opts, weather.WithExporter(writer))
	}

	// Core service orchestrating sources, store and analytics.
	service := weather.NewService(dataStore, srcs, opts...)

	// Scheduler for collection, rollups and forecast regeneration.
	sched := scheduler.New(cfg.Locations, cfg.FetchInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "airsentinel",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "airsentinel",
		})
	})

	// Prometheus metrics.
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service, cfg.Locations)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}

	for _, fn := range closers {
		fn()
	}
}
