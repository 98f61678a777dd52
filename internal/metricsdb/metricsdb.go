// Package metricsdb persists operational snapshots of the pipeline's drop
// counters and throughput — not ticker records themselves, which remain the
// CSV log's job. It is a WAL-mode SQLite side channel; the orchestrator
// saves one snapshot when the pipeline shuts down.
package metricsdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Snapshot is one row of operational counters taken at a point in time.
type Snapshot struct {
	Timestamp        time.Time
	IngressDrops     int64
	PersistenceDrops int64
	ParseErrors      int64
	WriteErrors      int64
	RowsWritten      int64
}

// DB wraps the metrics database connection.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite metrics database at path in
// WAL mode and ensures the snapshots table exists.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("metricsdb: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("metricsdb: pragma %s: %w", pragma, err)
		}
	}

	_, err = conn.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			ts                INTEGER PRIMARY KEY,
			ingress_drops     INTEGER NOT NULL,
			persistence_drops INTEGER NOT NULL,
			parse_errors      INTEGER NOT NULL,
			write_errors      INTEGER NOT NULL,
			rows_written      INTEGER NOT NULL
		);
	`)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("metricsdb: create snapshots table: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Save inserts one snapshot row.
func (d *DB) Save(ctx context.Context, s Snapshot) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO snapshots (ts, ingress_drops, persistence_drops, parse_errors, write_errors, rows_written)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.Timestamp.Unix(), s.IngressDrops, s.PersistenceDrops, s.ParseErrors, s.WriteErrors, s.RowsWritten,
	)
	if err != nil {
		return fmt.Errorf("metricsdb: save snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recently saved snapshot, or ok=false if none
// has been saved yet.
func (d *DB) Latest(ctx context.Context) (s Snapshot, ok bool, err error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT ts, ingress_drops, persistence_drops, parse_errors, write_errors, rows_written
		 FROM snapshots ORDER BY ts DESC LIMIT 1`)

	var ts int64
	scanErr := row.Scan(&ts, &s.IngressDrops, &s.PersistenceDrops, &s.ParseErrors, &s.WriteErrors, &s.RowsWritten)
	if scanErr == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if scanErr != nil {
		return Snapshot{}, false, fmt.Errorf("metricsdb: latest snapshot: %w", scanErr)
	}
	s.Timestamp = time.Unix(ts, 0).UTC()
	return s, true, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}
