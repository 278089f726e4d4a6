// Package models defines the data structures used throughout the application.
package models

import (
	"net"
	"strconv"
	"strings"
)

const (
	// DefaultScheme is used when a discovered device does not advertise one.
	DefaultScheme = "http"
	// DefaultPath is the well-known resource path serving the manifest.
	DefaultPath = "/.well-known/ascot"
)

// DiscoveryRecord is one device as reported by the discovery source.
type DiscoveryRecord struct {
	Instance   string            `json:"instance,omitempty" yaml:"instance"`
	Port       uint16            `json:"port" yaml:"port"`
	Scheme     string            `json:"scheme,omitempty" yaml:"scheme"`
	Path       string            `json:"path,omitempty" yaml:"path"`
	Addresses  []net.IP          `json:"addresses" yaml:"-"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties"`
}

// Normalize fills in the default scheme and path.
func (r *DiscoveryRecord) Normalize() {
	if r.Scheme == "" {
		r.Scheme = DefaultScheme
	}
	if r.Path == "" {
		r.Path = DefaultPath
	}
	if !strings.HasPrefix(r.Path, "/") {
		r.Path = "/" + r.Path
	}
}

// Metadata is the device row as stored in the database.
type Metadata struct {
	ID     int64  `json:"id"`
	Port   uint16 `json:"port"`
	Scheme string `json:"scheme"`
	Path   string `json:"path"`
}

// DeviceAddress is a candidate address of a device together with the
// request used to retrieve its manifest from that address.
type DeviceAddress struct {
	Address   net.IP `json:"address"`
	Request   string `json:"request"`
	Reachable bool   `json:"reachable"`
}

// NewDeviceAddress builds the manifest request for address. The address
// starts out reachable until a probe says otherwise.
func NewDeviceAddress(meta Metadata, address net.IP) DeviceAddress {
	host := net.JoinHostPort(address.String(), strconv.Itoa(int(meta.Port)))
	return DeviceAddress{
		Address:   address,
		Request:   meta.Scheme + "://" + host + meta.Path,
		Reachable: true,
	}
}

// AnyReachable reports whether at least one address is still reachable.
func AnyReachable(addresses []DeviceAddress) bool {
	for _, a := range addresses {
		if a.Reachable {
			return true
		}
	}
	return false
}

// Device is the full record of one device built during a discovery pass.
type Device struct {
	Metadata   Metadata          `json:"metadata"`
	Addresses  []DeviceAddress   `json:"addresses"`
	Properties map[string]string `json:"properties,omitempty"`
	Data       DeviceData        `json:"data"`
	Controls   StateControls     `json:"controls"`
}

// DatabaseStats holds the number of rows in each table.
type DatabaseStats struct {
	Devices    int `json:"devices"`
	Addresses  int `json:"addresses"`
	Properties int `json:"properties"`
	Hazards    int `json:"hazards"`
	MainRoutes int `json:"main_routes"`
	Routes     int `json:"routes"`
	Booleans   int `json:"booleans"`
	RangesU64  int `json:"ranges_u64"`
	RangesF64  int `json:"ranges_f64"`
}

// Total returns the sum of all row counts.
func (s DatabaseStats) Total() int {
	return s.Devices + s.Addresses + s.Properties + s.Hazards + s.MainRoutes +
		s.Routes + s.Booleans + s.RangesU64 + s.RangesF64
}

// BooleanRow is a stored boolean input.
type BooleanRow struct {
	RouteID int64  `json:"route_id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
	Value   bool   `json:"value"`
}

// RangeU64Row is a stored unsigned range input.
type RangeU64Row struct {
	RouteID int64  `json:"route_id"`
	Name    string `json:"name"`
	Min     uint64 `json:"min"`
	Max     uint64 `json:"max"`
	Step    uint64 `json:"step"`
	Default uint64 `json:"default"`
	Value   uint64 `json:"value"`
}

// RangeF64Row is a stored floating point range input.
type RangeF64Row struct {
	RouteID int64   `json:"route_id"`
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
	Default float64 `json:"default"`
	Value   float64 `json:"value"`
}

// RouteRow is a stored device route.
type RouteRow struct {
	ID       int64  `json:"id"`
	DeviceID int64  `json:"device_id"`
	Route    string `json:"route"`
}

// StoredRoute is a route read back from the database with its inputs.
type StoredRoute struct {
	RouteRow
	Booleans  []BooleanRow  `json:"booleans"`
	RangesU64 []RangeU64Row `json:"ranges_u64"`
	RangesF64 []RangeF64Row `json:"ranges_f64"`
}

// StoredDevice is a device read back from the database.
type StoredDevice struct {
	Metadata   Metadata          `json:"metadata"`
	Addresses  []string          `json:"addresses"`
	Properties map[string]string `json:"properties,omitempty"`
	Hazards    []HazardRef       `json:"hazards"`
	MainRoute  string            `json:"main_route,omitempty"`
	Routes     []StoredRoute     `json:"routes"`
}
