package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

// GetDevice retrieves the metadata of one device. It returns nil when the
// device does not exist.
func GetDevice(ctx context.Context, q DBTX, deviceID int64) (*models.Metadata, error) {
	var m models.Metadata
	err := q.QueryRowContext(ctx, `
		SELECT id, port, scheme, path FROM devices WHERE id = ?
	`, deviceID).Scan(&m.ID, &m.Port, &m.Scheme, &m.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &m, nil
}

// GetProperties retrieves the discovery properties of a device.
func GetProperties(ctx context.Context, q DBTX, deviceID int64) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT key, value FROM properties WHERE device_id = ? ORDER BY key
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		props[k] = v
	}

	return props, rows.Err()
}

// LoadDevice reads a device with its addresses, properties, hazards, routes
// and inputs. It returns nil when the device does not exist.
func LoadDevice(ctx context.Context, q DBTX, deviceID int64) (*models.StoredDevice, error) {
	meta, err := GetDevice(ctx, q, deviceID)
	if err != nil || meta == nil {
		return nil, err
	}
	return loadDevice(ctx, q, *meta)
}

// LoadDevices reads every stored device.
func LoadDevices(ctx context.Context, q DBTX) ([]models.StoredDevice, error) {
	metas, err := ListDevices(ctx, q)
	if err != nil {
		return nil, err
	}

	devices := make([]models.StoredDevice, 0, len(metas))
	for _, m := range metas {
		d, err := loadDevice(ctx, q, m)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, nil
}

func loadDevice(ctx context.Context, q DBTX, meta models.Metadata) (*models.StoredDevice, error) {
	d := &models.StoredDevice{Metadata: meta}

	var err error
	if d.Addresses, err = GetDeviceAddresses(ctx, q, meta.ID); err != nil {
		return nil, err
	}
	if d.Properties, err = GetProperties(ctx, q, meta.ID); err != nil {
		return nil, err
	}
	if d.Hazards, err = GetHazards(ctx, q, meta.ID); err != nil {
		return nil, err
	}
	if d.MainRoute, err = GetMainRoute(ctx, q, meta.ID); err != nil {
		return nil, err
	}

	routes, err := GetRoutes(ctx, q, meta.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range routes {
		sr := models.StoredRoute{RouteRow: r}
		if sr.Booleans, err = GetBooleanInputs(ctx, q, r.ID); err != nil {
			return nil, err
		}
		if sr.RangesU64, err = GetRangeU64Inputs(ctx, q, r.ID); err != nil {
			return nil, err
		}
		if sr.RangesF64, err = GetRangeF64Inputs(ctx, q, r.ID); err != nil {
			return nil, err
		}
		d.Routes = append(d.Routes, sr)
	}

	return d, nil
}
