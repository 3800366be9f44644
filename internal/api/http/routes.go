package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/airsentinel/airsentinel/internal/store"
	"github.com/airsentinel/airsentinel/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. The locations
// slice is the configured registry; requests referencing unknown location
// IDs are rejected up front.
func RegisterRoutes(app *fiber.App, service *weather.Service, locations []weather.Location) {
	registry := make(map[string]weather.Location, len(locations))
	for _, loc := range locations {
		registry[loc.ID] = loc
	}

	v1 := app.Group("/api/v1")

	v1.Get("/locations", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"locations": locations})
	})

	v1.Get("/readings/current", func(c *fiber.Ctx) error {
		locID, err := locationParam(c, registry)
		if err != nil {
			return err
		}

		conditions, err := service.Current(c.Context(), locID, c.Query("source"))
		if err != nil {
			return mapServiceError(err, "no readings for requested location")
		}
		return c.JSON(conditions)
	})

	v1.Get("/readings/history", func(c *fiber.Ctx) error {
		locID, err := locationParam(c, registry)
		if err != nil {
			return err
		}
		from, to, err := rangeParams(c)
		if err != nil {
			return err
		}

		readings, err := service.History(c.Context(), locID, from, to)
		if err != nil {
			return mapServiceError(err, "no readings in requested range")
		}
		return c.JSON(fiber.Map{
			"location": locID,
			"from":     from,
			"to":       to,
			"readings": readings,
		})
	})

	v1.Get("/aggregates", func(c *fiber.Ctx) error {
		var req aggregatesQuery
		if err := req.bind(c, registry); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if req.Fill {
			series, err := service.FilledDailySeries(c.Context(), req.Location, req.Metric, req.From, req.To)
			if err != nil {
				return mapServiceError(err, "no aggregates in requested range")
			}
			return c.JSON(fiber.Map{
				"location":    req.Location,
				"metric":      req.Metric,
				"granularity": weather.GranularityDaily,
				"filled":      true,
				"series":      series,
			})
		}

		series, cached, err := service.AggregateSeries(c.Context(), req.Location, req.Metric,
			req.From, req.To, weather.Granularity(req.Granularity))
		if err != nil {
			return mapServiceError(err, "no aggregates in requested range")
		}
		return c.JSON(fiber.Map{
			"location":    req.Location,
			"metric":      req.Metric,
			"granularity": req.Granularity,
			"cached":      cached,
			"series":      series,
		})
	})

	v1.Get("/analytics/trend", func(c *fiber.Ctx) error {
		var req metricRangeQuery
		if err := req.bind(c, registry); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, cached, err := service.Trend(c.Context(), req.Location, req.Metric, req.From, req.To)
		if err != nil {
			return mapServiceError(err, "not enough data for trend analysis")
		}
		return c.JSON(fiber.Map{"cached": cached, "report": report})
	})

	v1.Get("/analytics/correlation", func(c *fiber.Ctx) error {
		locID, err := locationParam(c, registry)
		if err != nil {
			return err
		}
		from, to, err := rangeParams(c)
		if err != nil {
			return err
		}
		metricA, metricB := c.Query("metricA"), c.Query("metricB")
		if metricA == "" || metricB == "" {
			return fiber.NewError(fiber.StatusBadRequest, "metricA and metricB query parameters are required")
		}

		report, cached, err := service.Correlation(c.Context(), locID, metricA, metricB, from, to)
		if err != nil {
			return mapServiceError(err, "not enough overlapping data for correlation")
		}
		return c.JSON(fiber.Map{"cached": cached, "report": report})
	})

	v1.Get("/analytics/compare", func(c *fiber.Ctx) error {
		raw := c.Query("locations")
		if raw == "" {
			return fiber.NewError(fiber.StatusBadRequest, "locations query parameter is required")
		}
		ids := strings.Split(raw, ",")
		for _, id := range ids {
			if _, ok := registry[id]; !ok {
				return fiber.NewError(fiber.StatusBadRequest, "unknown location: "+id)
			}
		}
		metric := c.Query("metric")
		if metric == "" {
			return fiber.NewError(fiber.StatusBadRequest, "metric query parameter is required")
		}
		from, to, err := rangeParams(c)
		if err != nil {
			return err
		}

		report, cached, err := service.Compare(c.Context(), ids, metric, from, to)
		if err != nil {
			return mapServiceError(err, "no data for any requested location")
		}
		return c.JSON(fiber.Map{"cached": cached, "report": report})
	})

	v1.Get("/analytics/heatmap", func(c *fiber.Ctx) error {
		var req metricRangeQuery
		if err := req.bind(c, registry); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, cached, err := service.Heatmap(c.Context(), req.Location, req.Metric, req.From, req.To)
		if err != nil {
			return mapServiceError(err, "no readings in requested range")
		}
		return c.JSON(fiber.Map{"cached": cached, "report": report})
	})

	v1.Get("/analytics/anomalies", func(c *fiber.Ctx) error {
		var req metricRangeQuery
		if err := req.bind(c, registry); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		threshold := 0.0
		if raw := c.Query("threshold"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "threshold must be a positive number")
			}
			threshold = v
		}

		report, cached, err := service.Anomalies(c.Context(), req.Location, req.Metric, req.From, req.To, threshold)
		if err != nil {
			return mapServiceError(err, "no data for anomaly detection")
		}
		return c.JSON(fiber.Map{"cached": cached, "report": report})
	})

	v1.Get("/forecast", func(c *fiber.Ctx) error {
		locID, err := locationParam(c, registry)
		if err != nil {
			return err
		}

		days := 7
		if raw := c.Query("days"); raw != "" {
			days, err = strconv.Atoi(raw)
			if err != nil || days < 1 || days > 7 {
				return fiber.NewError(fiber.StatusBadRequest, "days must be between 1 and 7")
			}
		}

		report, err := service.Forecast(c.Context(), registry[locID], days)
		if err != nil {
			return mapServiceError(err, "no forecast available for requested location")
		}
		return c.JSON(report)
	})

	v1.Get("/forecast/accuracy", func(c *fiber.Ctx) error {
		locID, err := locationParam(c, registry)
		if err != nil {
			return err
		}
		metric := c.Query("metric", "temperature")

		report, err := service.ForecastAccuracy(c.Context(), locID, metric)
		if err != nil {
			return mapServiceError(err, "no scored forecasts for requested location")
		}
		return c.JSON(report)
	})
}

// mapServiceError translates domain errors to HTTP statuses; anything
// unrecognized is a 500.
func mapServiceError(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, weather.ErrNoData),
		errors.Is(err, weather.ErrInsufficientHistory),
		errors.Is(err, weather.ErrForecastUnavailable),
		errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, notFoundMsg)
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func locationParam(c *fiber.Ctx, registry map[string]weather.Location) (string, error) {
	locID := c.Query("location")
	if locID == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "location query parameter is required")
	}
	if _, ok := registry[locID]; !ok {
		return "", fiber.NewError(fiber.StatusBadRequest, "unknown location: "+locID)
	}
	return locID, nil
}

func rangeParams(c *fiber.Ctx) (time.Time, time.Time, error) {
	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	to, err := parseTime(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "to must not be before from")
	}
	return from, to, nil
}

// metricRangeQuery is the common (location, metric, from, to) parameter set.
type metricRangeQuery struct {
	Location string
	Metric   string
	From     time.Time
	To       time.Time
}

func (q *metricRangeQuery) bind(c *fiber.Ctx, registry map[string]weather.Location) error {
	locID, err := locationParam(c, registry)
	if err != nil {
		return err
	}
	q.Location = locID

	q.Metric = c.Query("metric")
	if q.Metric == "" {
		return errors.New("metric query parameter is required")
	}

	q.From, q.To, err = rangeParams(c)
	return err
}

// aggregatesQuery holds query parameters for the aggregates endpoint.
type aggregatesQuery struct {
	Location    string `validate:"required"`
	Metric      string `validate:"required"`
	Granularity string `validate:"required,oneof=hourly daily monthly"`
	Fill        bool
	From        time.Time `validate:"required"`
	To          time.Time `validate:"required,gtefield=From"`
}

func (q *aggregatesQuery) bind(c *fiber.Ctx, registry map[string]weather.Location) error {
	locID, err := locationParam(c, registry)
	if err != nil {
		return err
	}
	q.Location = locID
	q.Metric = c.Query("metric")
	q.Granularity = c.Query("granularity", string(weather.GranularityDaily))
	q.Fill = c.QueryBool("fill")

	if q.Fill && q.Granularity != string(weather.GranularityDaily) {
		return errors.New("fill is only supported for daily granularity")
	}

	q.From, q.To, err = rangeParams(c)
	return err
}

// parseTime tries to parse either RFC3339, a bare date or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, YYYY-MM-DD or unix seconds")
}
