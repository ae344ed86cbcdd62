package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/marigraph/sealevel-rules/internal/domain"
)

// PostgresStore is the shared measurement backend for multi-instance
// deployments. It satisfies the same Fetch contract as the in-memory store
// and can push the baseline math into SQL window functions for offline
// cross-checking.
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgres connects and verifies the DSN.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

type measurementRow struct {
	Station     string          `db:"station"`
	Timestamp   time.Time       `db:"ts"`
	Value       float64         `db:"value"`
	Temperature sql.NullFloat64 `db:"temperature"`
}

func (r measurementRow) measurement() domain.Measurement {
	m := domain.Measurement{
		Station:   r.Station,
		Timestamp: r.Timestamp.UTC(),
		Value:     r.Value,
	}
	if r.Temperature.Valid {
		t := r.Temperature.Float64
		m.Temperature = &t
	}
	return m
}

// EnsureSchema creates the measurements table when it does not exist yet.
// Deployments with managed migrations can run it anyway; the statement is a
// no-op once the table is present.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS measurements (
			station     TEXT             NOT NULL,
			ts          TIMESTAMPTZ      NOT NULL,
			value       DOUBLE PRECISION NOT NULL,
			temperature DOUBLE PRECISION,
			PRIMARY KEY (station, ts)
		)`); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Insert upserts measurements; a re-transmitted (station, timestamp) pair
// replaces the earlier reading, matching the in-memory store.
func (s *PostgresStore) Insert(ctx context.Context, ms []domain.Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO measurements (station, ts, value, temperature)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (station, ts) DO UPDATE
		SET value = EXCLUDED.value, temperature = EXCLUDED.temperature`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range ms {
		var temp sql.NullFloat64
		if m.Temperature != nil {
			temp = sql.NullFloat64{Float64: *m.Temperature, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, m.Station, m.Timestamp.UTC(), m.Value, temp); err != nil {
			return fmt.Errorf("insert %s@%s: %w", m.Station, m.Timestamp.UTC().Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// Fetch returns measurements for the stations within [start, end] inclusive,
// ordered by (timestamp, station).
func (s *PostgresStore) Fetch(ctx context.Context, stations []string, start, end time.Time) ([]domain.Measurement, error) {
	if len(stations) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT station, ts, value, temperature
		FROM measurements
		WHERE station IN (?) AND ts BETWEEN ? AND ?
		ORDER BY ts, station`, stations, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("build fetch: %w", err)
	}

	var rows []measurementRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("fetch measurements: %w", err)
	}
	out := make([]domain.Measurement, len(rows))
	for i, r := range rows {
		out[i] = r.measurement()
	}
	return out, nil
}

// ResolvedRow is one measurement with its expected value computed inside
// Postgres. Expected is null when the reference quorum was not met.
type ResolvedRow struct {
	Station     string          `db:"station"`
	Timestamp   time.Time       `db:"ts"`
	Value       float64         `db:"value"`
	Expected    sql.NullFloat64 `db:"expected"`
	SampleCount int             `db:"sample_count"`
}

// FetchResolved pushes the reference-baseline math into SQL window functions:
// per timestamp, AVG and COUNT over the southern partition give the full
// baseline, and (SUM - value) / (COUNT - 1) gives the leave-one-out mean for
// southern self-validation. The offline validator and the integration suite
// cross-check its expected values against the in-process resolver row for row.
func (s *PostgresStore) FetchResolved(ctx context.Context, stations, southern []string, offsets map[string]float64, start, end time.Time) ([]ResolvedRow, error) {
	if len(stations) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		WITH ref AS (
			SELECT ts,
			       AVG(value)   OVER (PARTITION BY ts) AS full_mean,
			       SUM(value)   OVER (PARTITION BY ts) AS full_sum,
			       COUNT(value) OVER (PARTITION BY ts) AS full_count,
			       station, value
			FROM measurements
			WHERE station IN (?) AND ts BETWEEN ? AND ?
		)
		SELECT m.station, m.ts, m.value,
		       CASE
		         WHEN r.station IS NOT NULL AND r.full_count >= 3
		           THEN (r.full_sum - r.value) / (r.full_count - 1)
		         WHEN r.station IS NULL AND a.full_count >= 2
		           THEN a.full_mean
		         ELSE NULL
		       END AS expected,
		       COALESCE(a.full_count, 0) AS sample_count
		FROM measurements m
		LEFT JOIN ref r  ON r.station = m.station AND r.ts = m.ts
		LEFT JOIN (SELECT DISTINCT ts, full_mean, full_count FROM ref) a ON a.ts = m.ts
		WHERE m.station IN (?) AND m.ts BETWEEN ? AND ?
		ORDER BY m.ts, m.station`,
		southern, start.UTC(), end.UTC(), stations, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("build resolved fetch: %w", err)
	}

	var rows []ResolvedRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("fetch resolved: %w", err)
	}
	for i := range rows {
		rows[i].Timestamp = rows[i].Timestamp.UTC()
		if off, ok := offsets[rows[i].Station]; ok && rows[i].Expected.Valid {
			rows[i].Expected.Float64 += off
		}
	}
	return rows, nil
}
