package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/airsentinel/airsentinel/internal/weather"
)

// MySQLConfig holds connection settings for the durable store.
type MySQLConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	DBName   string
}

// MySQLStore is a durable weather.Store over MySQL/MariaDB. Rows carry the
// full record as JSON next to the indexed identity columns; range queries
// hit the (location_id, captured_at) index and decode in Go.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a pooled connection and verifies it.
func NewMySQLStore(cfg MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("connected to mysql reading store")
	return &MySQLStore{db: db}, nil
}

// Close releases the connection pool; call on shutdown.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// SaveReading appends one row. Readings are insert-only; there is no upsert
// path by design.
func (s *MySQLStore) SaveReading(ctx context.Context, r weather.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO readings (id, location_id, source, captured_at, data)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.LocationID, r.Source, r.CapturedAt.UTC(), payload)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func scanReadings(rows *sql.Rows) ([]weather.Reading, error) {
	defer rows.Close()

	var out []weather.Reading
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		var r weather.Reading
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("unmarshal reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestReadings returns up to n most recent readings, newest first.
func (s *MySQLStore) LatestReadings(ctx context.Context, locationID string, n int) ([]weather.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM readings
		WHERE location_id = ?
		ORDER BY captured_at DESC
		LIMIT ?
	`, locationID, n)
	if err != nil {
		return nil, fmt.Errorf("query latest readings: %w", err)
	}

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrNotFound
	}
	return readings, nil
}

// ReadingsRange returns readings with from <= captured_at < to, oldest
// first.
func (s *MySQLStore) ReadingsRange(ctx context.Context, locationID string, from, to time.Time) ([]weather.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM readings
		WHERE location_id = ? AND captured_at >= ? AND captured_at < ?
		ORDER BY captured_at ASC
	`, locationID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query readings range: %w", err)
	}
	return scanReadings(rows)
}

// ReplaceAggregate swaps the whole row for (location, date, granularity)
// inside one transaction so a reader never observes a partial update.
func (s *MySQLStore) ReplaceAggregate(ctx context.Context, agg weather.DailyAggregate) error {
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin aggregate replace: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM daily_aggregates
		WHERE location_id = ? AND bucket_date = ? AND granularity = ?
	`, agg.LocationID, agg.Date.UTC(), string(agg.Granularity))
	if err != nil {
		return fmt.Errorf("delete stale aggregate: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_aggregates (location_id, bucket_date, granularity, data)
		VALUES (?, ?, ?, ?)
	`, agg.LocationID, agg.Date.UTC(), string(agg.Granularity), payload)
	if err != nil {
		return fmt.Errorf("insert aggregate: %w", err)
	}

	return tx.Commit()
}

// AggregatesRange returns aggregates of one granularity with
// from <= bucket_date < to, oldest first.
func (s *MySQLStore) AggregatesRange(ctx context.Context, locationID string, g weather.Granularity, from, to time.Time) ([]weather.DailyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM daily_aggregates
		WHERE location_id = ? AND granularity = ? AND bucket_date >= ? AND bucket_date < ?
		ORDER BY bucket_date ASC
	`, locationID, string(g), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query aggregates range: %w", err)
	}
	defer rows.Close()

	var out []weather.DailyAggregate
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		var agg weather.DailyAggregate
		if err := json.Unmarshal(payload, &agg); err != nil {
			return nil, fmt.Errorf("unmarshal aggregate: %w", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// ReplaceForecasts deletes the method's whole point set and inserts the
// fresh one in a single transaction, so stale and fresh forecast rows for
// the same target dates never interleave.
func (s *MySQLStore) ReplaceForecasts(ctx context.Context, locationID, method string, points []weather.ForecastPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin forecast replace: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM forecasts WHERE location_id = ? AND method = ?
	`, locationID, method)
	if err != nil {
		return fmt.Errorf("delete stale forecasts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecasts (location_id, method, forecast_date, generated_at, data)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare forecast insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal forecast point: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, locationID, method, p.ForecastDate.UTC(), p.GeneratedAt.UTC(), payload); err != nil {
			return fmt.Errorf("insert forecast point: %w", err)
		}
	}

	return tx.Commit()
}

// Forecasts returns every stored point for a location across methods,
// ordered by forecast_date ascending.
func (s *MySQLStore) Forecasts(ctx context.Context, locationID string) ([]weather.ForecastPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM forecasts
		WHERE location_id = ?
		ORDER BY forecast_date ASC
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}
	defer rows.Close()

	var out []weather.ForecastPoint
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan forecast point: %w", err)
		}
		var p weather.ForecastPoint
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal forecast point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
