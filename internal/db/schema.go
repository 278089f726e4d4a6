// Package db provides database schema and query operations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const (
	// busyTimeoutMS is how long a connection waits on a locked database.
	busyTimeoutMS = 5000

	// pingTimeout bounds the connectivity check in InitDatabase.
	pingTimeout = 5 * time.Second
)

const schema = `
-- Discovered devices
CREATE TABLE IF NOT EXISTS devices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	port INTEGER NOT NULL CHECK(port BETWEEN 0 AND 65535),
	scheme TEXT NOT NULL,
	path TEXT NOT NULL
);

-- Candidate addresses, in probing order
CREATE TABLE IF NOT EXISTS addresses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER NOT NULL,
	address TEXT NOT NULL,
	FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_addresses_device ON addresses(device_id);

-- Discovery properties (TXT records)
CREATE TABLE IF NOT EXISTS properties (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_properties_device ON properties(device_id);

-- Hazard links; the catalog itself lives outside the database
CREATE TABLE IF NOT EXISTS hazards (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER NOT NULL,
	hazard_id INTEGER NOT NULL,
	FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_hazards_device ON hazards(device_id);

-- One main route per device
CREATE TABLE IF NOT EXISTS main_routes (
	device_id INTEGER PRIMARY KEY,
	route TEXT NOT NULL,
	FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS routes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER NOT NULL,
	route TEXT NOT NULL,
	FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_routes_device ON routes(device_id);

CREATE TABLE IF NOT EXISTS booleans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	route_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	default_value INTEGER NOT NULL,
	value INTEGER NOT NULL,
	FOREIGN KEY (route_id) REFERENCES routes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_booleans_route ON booleans(route_id);

-- u64 values are stored as their int64 bit pattern
CREATE TABLE IF NOT EXISTS rangesu64 (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	route_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	min INTEGER NOT NULL,
	max INTEGER NOT NULL,
	step INTEGER NOT NULL,
	default_value INTEGER NOT NULL,
	value INTEGER NOT NULL,
	FOREIGN KEY (route_id) REFERENCES routes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_rangesu64_route ON rangesu64(route_id);

CREATE TABLE IF NOT EXISTS rangesf64 (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	route_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	min REAL NOT NULL,
	max REAL NOT NULL,
	step REAL NOT NULL,
	default_value REAL NOT NULL,
	value REAL NOT NULL,
	FOREIGN KEY (route_id) REFERENCES routes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_rangesf64_route ON rangesf64(route_id);
`

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InitDatabase creates and initializes a SQLite database with the schema.
// It creates the directory structure if it doesn't exist.
func InitDatabase(dbPath string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", dbPath, busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A discovery pass holds one write transaction; a single connection
	// makes readers wait for it instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create schema
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// clearOrder lists every table, children first.
var clearOrder = []string{
	"booleans",
	"rangesu64",
	"rangesf64",
	"routes",
	"main_routes",
	"hazards",
	"properties",
	"addresses",
	"devices",
}

// ClearDatabase removes all data from the database.
func ClearDatabase(ctx context.Context, q DBTX) error {
	for _, table := range clearOrder {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}

	return nil
}
