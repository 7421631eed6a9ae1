// Package postgres reads hotspot records from the viirs_live_data table loaded
// by the FIRMS ETL.
package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the table the source reads. The ETL owns it in production;
// tests use it to seed a database.
const Schema = `
CREATE TABLE IF NOT EXISTS viirs_live_data (
	h3_cell     TEXT NOT NULL,
	time_bucket TIMESTAMP NOT NULL,
	confidence  TEXT,
	frp         FLOAT,
	daynight    CHAR(1),
	PRIMARY KEY (h3_cell, time_bucket)
)`

// Records within daysBack days of the newest bucket, newest first. An empty
// table yields no rows.
const recentQuery = `
SELECT h3_cell, time_bucket, COALESCE(confidence, ''), frp, COALESCE(daynight, '')
FROM viirs_live_data
WHERE time_bucket >= (SELECT max(time_bucket) FROM viirs_live_data) - make_interval(days => $1)
ORDER BY time_bucket DESC
LIMIT $2`

// Source implements pipeline.Source on a pgx pool.
type Source struct {
	pool     *pgxpool.Pool
	daysBack int
}

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return pool, nil
}

// NewSource creates a Source reading the last daysBack days of data.
func NewSource(pool *pgxpool.Pool, daysBack int) *Source {
	return &Source{pool: pool, daysBack: daysBack}
}

// Fetch returns up to limit records from the most recent window. A NULL frp is
// returned as NaN so the refresh drops that record.
func (s *Source) Fetch(ctx context.Context, limit int) ([]domain.RawFireRecord, error) {
	rows, err := s.pool.Query(ctx, recentQuery, s.daysBack, limit)
	if err != nil {
		return nil, fmt.Errorf("query viirs_live_data: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("scan viirs_live_data: %w", err)
	}
	return records, nil
}

// Ping reports database connectivity for readiness checks.
func (s *Source) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanRecord(row pgx.CollectableRow) (domain.RawFireRecord, error) {
	var (
		rec    domain.RawFireRecord
		bucket time.Time
		frp    *float64
	)
	if err := row.Scan(&rec.CellID, &bucket, &rec.Confidence, &frp, &rec.DayNight); err != nil {
		return domain.RawFireRecord{}, err
	}
	rec.ObservedAt = bucket.UTC()
	rec.RadiativePower = nullPower(frp)
	return rec, nil
}

func nullPower(frp *float64) float64 {
	if frp == nil {
		return math.NaN()
	}
	return *frp
}
