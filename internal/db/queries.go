package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

// InsertDevice inserts a device and returns its identifier.
func InsertDevice(ctx context.Context, q DBTX, port uint16, scheme, path string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO devices (port, scheme, path)
		VALUES (?, ?, ?)
		RETURNING id
	`, port, scheme, path).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert device: %w", err)
	}
	return id, nil
}

// InsertAddress inserts a device address.
func InsertAddress(ctx context.Context, q DBTX, deviceID int64, address string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO addresses (device_id, address) VALUES (?, ?)
	`, deviceID, address)
	if err != nil {
		return fmt.Errorf("failed to insert address: %w", err)
	}
	return nil
}

// InsertProperty inserts a discovery property of a device.
func InsertProperty(ctx context.Context, q DBTX, deviceID int64, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO properties (device_id, key, value) VALUES (?, ?, ?)
	`, deviceID, key, value)
	if err != nil {
		return fmt.Errorf("failed to insert property: %w", err)
	}
	return nil
}

// InsertHazard links a hazard to a device.
func InsertHazard(ctx context.Context, q DBTX, deviceID int64, hazard models.HazardRef) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO hazards (device_id, hazard_id) VALUES (?, ?)
	`, deviceID, uint16(hazard))
	if err != nil {
		return fmt.Errorf("failed to insert hazard: %w", err)
	}
	return nil
}

// InsertMainRoute records the main route of a device.
func InsertMainRoute(ctx context.Context, q DBTX, deviceID int64, route string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO main_routes (device_id, route) VALUES (?, ?)
	`, deviceID, route)
	if err != nil {
		return fmt.Errorf("failed to insert main route: %w", err)
	}
	return nil
}

// InsertRoute inserts a device route and returns its identifier.
func InsertRoute(ctx context.Context, q DBTX, deviceID int64, route string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO routes (device_id, route)
		VALUES (?, ?)
		RETURNING id
	`, deviceID, route).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert route: %w", err)
	}
	return id, nil
}

// InsertBooleanInput inserts a boolean input of a route.
func InsertBooleanInput(ctx context.Context, q DBTX, routeID int64, name string, def, value bool) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO booleans (route_id, name, default_value, value)
		VALUES (?, ?, ?, ?)
	`, routeID, name, def, value)
	if err != nil {
		return fmt.Errorf("failed to insert boolean input: %w", err)
	}
	return nil
}

// InsertRangeU64Input inserts an unsigned range input of a route.
func InsertRangeU64Input(ctx context.Context, q DBTX, routeID int64, r models.RangeU64Row) error {
	// The driver rejects uint64 values with the high bit set, so the bit
	// pattern is stored as int64 and restored on read.
	_, err := q.ExecContext(ctx, `
		INSERT INTO rangesu64 (route_id, name, min, max, step, default_value, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, routeID, r.Name, int64(r.Min), int64(r.Max), int64(r.Step), int64(r.Default), int64(r.Value))
	if err != nil {
		return fmt.Errorf("failed to insert rangeu64 input: %w", err)
	}
	return nil
}

// InsertRangeF64Input inserts a floating point range input of a route.
func InsertRangeF64Input(ctx context.Context, q DBTX, routeID int64, r models.RangeF64Row) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO rangesf64 (route_id, name, min, max, step, default_value, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, routeID, r.Name, r.Min, r.Max, r.Step, r.Default, r.Value)
	if err != nil {
		return fmt.Errorf("failed to insert rangef64 input: %w", err)
	}
	return nil
}

// DeleteDevice removes a device and every row that belongs to it. Rows are
// deleted explicitly, children first, so the result does not depend on the
// foreign_keys pragma of the connection.
func DeleteDevice(ctx context.Context, q DBTX, deviceID int64) error {
	statements := []struct {
		table string
		query string
	}{
		{"booleans", "DELETE FROM booleans WHERE route_id IN (SELECT id FROM routes WHERE device_id = ?)"},
		{"rangesu64", "DELETE FROM rangesu64 WHERE route_id IN (SELECT id FROM routes WHERE device_id = ?)"},
		{"rangesf64", "DELETE FROM rangesf64 WHERE route_id IN (SELECT id FROM routes WHERE device_id = ?)"},
		{"routes", "DELETE FROM routes WHERE device_id = ?"},
		{"main_routes", "DELETE FROM main_routes WHERE device_id = ?"},
		{"hazards", "DELETE FROM hazards WHERE device_id = ?"},
		{"properties", "DELETE FROM properties WHERE device_id = ?"},
		{"addresses", "DELETE FROM addresses WHERE device_id = ?"},
		{"devices", "DELETE FROM devices WHERE id = ?"},
	}

	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt.query, deviceID); err != nil {
			return fmt.Errorf("failed to delete %s of device %d: %w", stmt.table, deviceID, err)
		}
	}
	return nil
}

// ListDevices retrieves the metadata of every stored device.
func ListDevices(ctx context.Context, q DBTX) ([]models.Metadata, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, port, scheme, path FROM devices ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Metadata
	for rows.Next() {
		var m models.Metadata
		if err := rows.Scan(&m.ID, &m.Port, &m.Scheme, &m.Path); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, m)
	}

	return devices, rows.Err()
}

// GetDeviceAddresses retrieves the addresses of a device in insertion order.
func GetDeviceAddresses(ctx context.Context, q DBTX, deviceID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT address FROM addresses WHERE device_id = ? ORDER BY id
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, a)
	}

	return addresses, rows.Err()
}

// GetHazards retrieves the hazard links of a device.
func GetHazards(ctx context.Context, q DBTX, deviceID int64) ([]models.HazardRef, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT hazard_id FROM hazards WHERE device_id = ? ORDER BY id
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query hazards: %w", err)
	}
	defer rows.Close()

	var hazards []models.HazardRef
	for rows.Next() {
		var h uint16
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hazard: %w", err)
		}
		hazards = append(hazards, models.HazardRef(h))
	}

	return hazards, rows.Err()
}

// ListHazards returns the distinct hazards linked to any stored device,
// sorted by id.
func ListHazards(ctx context.Context, q DBTX) ([]models.HazardRef, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT hazard_id FROM hazards ORDER BY hazard_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hazards: %w", err)
	}
	defer rows.Close()

	hazards := []models.HazardRef{}
	for rows.Next() {
		var h uint16
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hazard: %w", err)
		}
		hazards = append(hazards, models.HazardRef(h))
	}

	return hazards, rows.Err()
}

// GetMainRoute retrieves the main route of a device. An empty string is
// returned when the device has none.
func GetMainRoute(ctx context.Context, q DBTX, deviceID int64) (string, error) {
	var route string
	err := q.QueryRowContext(ctx, "SELECT route FROM main_routes WHERE device_id = ?", deviceID).Scan(&route)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get main route: %w", err)
	}
	return route, nil
}

// GetRoutes retrieves the routes of a device in insertion order.
func GetRoutes(ctx context.Context, q DBTX, deviceID int64) ([]models.RouteRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, device_id, route FROM routes WHERE device_id = ? ORDER BY id
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []models.RouteRow
	for rows.Next() {
		var r models.RouteRow
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Route); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, r)
	}

	return routes, rows.Err()
}

// GetBooleanInputs retrieves the boolean inputs of a route.
func GetBooleanInputs(ctx context.Context, q DBTX, routeID int64) ([]models.BooleanRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT route_id, name, default_value, value FROM booleans WHERE route_id = ? ORDER BY id
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query boolean inputs: %w", err)
	}
	defer rows.Close()

	var inputs []models.BooleanRow
	for rows.Next() {
		var b models.BooleanRow
		if err := rows.Scan(&b.RouteID, &b.Name, &b.Default, &b.Value); err != nil {
			return nil, fmt.Errorf("failed to scan boolean input: %w", err)
		}
		inputs = append(inputs, b)
	}

	return inputs, rows.Err()
}

// GetRangeU64Inputs retrieves the unsigned range inputs of a route.
func GetRangeU64Inputs(ctx context.Context, q DBTX, routeID int64) ([]models.RangeU64Row, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT route_id, name, min, max, step, default_value, value
		FROM rangesu64 WHERE route_id = ? ORDER BY id
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rangeu64 inputs: %w", err)
	}
	defer rows.Close()

	var inputs []models.RangeU64Row
	for rows.Next() {
		var r models.RangeU64Row
		var lo, hi, step, def, value int64
		if err := rows.Scan(&r.RouteID, &r.Name, &lo, &hi, &step, &def, &value); err != nil {
			return nil, fmt.Errorf("failed to scan rangeu64 input: %w", err)
		}
		r.Min, r.Max, r.Step, r.Default, r.Value = uint64(lo), uint64(hi), uint64(step), uint64(def), uint64(value)
		inputs = append(inputs, r)
	}

	return inputs, rows.Err()
}

// GetRangeF64Inputs retrieves the floating point range inputs of a route.
func GetRangeF64Inputs(ctx context.Context, q DBTX, routeID int64) ([]models.RangeF64Row, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT route_id, name, min, max, step, default_value, value
		FROM rangesf64 WHERE route_id = ? ORDER BY id
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rangef64 inputs: %w", err)
	}
	defer rows.Close()

	var inputs []models.RangeF64Row
	for rows.Next() {
		var r models.RangeF64Row
		if err := rows.Scan(&r.RouteID, &r.Name, &r.Min, &r.Max, &r.Step, &r.Default, &r.Value); err != nil {
			return nil, fmt.Errorf("failed to scan rangef64 input: %w", err)
		}
		inputs = append(inputs, r)
	}

	return inputs, rows.Err()
}

// GetStats retrieves the number of rows in every table.
func GetStats(ctx context.Context, q DBTX) (*models.DatabaseStats, error) {
	var stats models.DatabaseStats

	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM devices),
			(SELECT COUNT(*) FROM addresses),
			(SELECT COUNT(*) FROM properties),
			(SELECT COUNT(*) FROM hazards),
			(SELECT COUNT(*) FROM main_routes),
			(SELECT COUNT(*) FROM routes),
			(SELECT COUNT(*) FROM booleans),
			(SELECT COUNT(*) FROM rangesu64),
			(SELECT COUNT(*) FROM rangesf64)
	`).Scan(
		&stats.Devices,
		&stats.Addresses,
		&stats.Properties,
		&stats.Hazards,
		&stats.MainRoutes,
		&stats.Routes,
		&stats.Booleans,
		&stats.RangesU64,
		&stats.RangesF64,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return &stats, nil
}

// CountRowsForDevice counts the rows rooted at one device, following the
// route foreign keys for the input tables.
func CountRowsForDevice(ctx context.Context, q DBTX, deviceID int64) (*models.DatabaseStats, error) {
	var stats models.DatabaseStats

	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM devices WHERE id = ?),
			(SELECT COUNT(*) FROM addresses WHERE device_id = ?),
			(SELECT COUNT(*) FROM properties WHERE device_id = ?),
			(SELECT COUNT(*) FROM hazards WHERE device_id = ?),
			(SELECT COUNT(*) FROM main_routes WHERE device_id = ?),
			(SELECT COUNT(*) FROM routes WHERE device_id = ?),
			(SELECT COUNT(*) FROM booleans WHERE route_id IN (SELECT id FROM routes WHERE device_id = ?)),
			(SELECT COUNT(*) FROM rangesu64 WHERE route_id IN (SELECT id FROM routes WHERE device_id = ?)),
			(SELECT COUNT(*) FROM rangesf64 WHERE route_id IN (SELECT id FROM routes WHERE device_id = ?))
	`, deviceID, deviceID, deviceID, deviceID, deviceID, deviceID, deviceID, deviceID, deviceID).Scan(
		&stats.Devices,
		&stats.Addresses,
		&stats.Properties,
		&stats.Hazards,
		&stats.MainRoutes,
		&stats.Routes,
		&stats.Booleans,
		&stats.RangesU64,
		&stats.RangesF64,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count device rows: %w", err)
	}

	return &stats, nil
}
