// Package export mirrors stored readings into InfluxDB for external
// dashboards. The mirror is best-effort: the non-blocking write API drops on
// backpressure and never slows collection down.
package export

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/airsentinel/airsentinel/internal/weather"
)

// InfluxConfig holds InfluxDB v2 connection settings.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxWriter implements weather.Exporter over an InfluxDB v2 bucket.
type InfluxWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewInfluxWriter initializes the client and verifies connectivity.
func NewInfluxWriter(cfg InfluxConfig) (*InfluxWriter, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	if _, err := client.Health(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	return &InfluxWriter{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}, nil
}

// WriteReading queues one reading as a point; only present metrics become
// fields, so absence stays absent downstream too.
func (w *InfluxWriter) WriteReading(r weather.Reading) {
	fields := make(map[string]interface{})
	for _, metric := range weather.MetricNames {
		if v := r.Metric(metric); v != nil {
			fields[metric] = *v
		}
	}
	if len(fields) == 0 {
		return
	}
	fields["qualityScore"] = r.QualityScore

	point := write.NewPoint(
		"reading",
		map[string]string{
			"location": r.LocationID,
			"source":   r.Source,
		},
		fields,
		r.CapturedAt,
	)

	w.writeAPI.WritePoint(point)
}

// Close flushes pending points and shuts the client down.
func (w *InfluxWriter) Close() {
	w.writeAPI.Flush()
	w.client.Close()
}
