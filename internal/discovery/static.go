package discovery

import (
	"context"
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

// staticFile is the YAML layout of a static device list:
//
//	devices:
//	  - instance: kitchen-light
//	    port: 8080
//	    scheme: http
//	    path: /.well-known/ascot
//	    addresses: [192.168.1.20, "fe80::1"]
//	    properties:
//	      scheme: http
type staticFile struct {
	Devices []staticDevice `yaml:"devices"`
}

type staticDevice struct {
	models.DiscoveryRecord `yaml:",inline"`
	Addresses              []string `yaml:"addresses"`
}

// StaticSource serves a fixed list of devices, read from a YAML file on
// every browse so that edits are picked up by the next pass.
type StaticSource struct {
	path string
}

// NewStaticSource creates a source backed by the YAML file at path.
func NewStaticSource(path string) *StaticSource {
	return &StaticSource{path: path}
}

// Start checks that the file is readable.
func (s *StaticSource) Start() error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("static device file: %w", err)
	}
	return nil
}

// Browse reads the file and returns its devices.
func (s *StaticSource) Browse(ctx context.Context) ([]models.DiscoveryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static device file: %w", err)
	}
	return ParseStaticDevices(data)
}

// Stop is a no-op.
func (s *StaticSource) Stop() {}

// ParseStaticDevices decodes a static device list.
func ParseStaticDevices(data []byte) ([]models.DiscoveryRecord, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse static device file: %w", err)
	}

	records := make([]models.DiscoveryRecord, 0, len(f.Devices))
	for i, d := range f.Devices {
		rec := d.DiscoveryRecord
		for _, a := range d.Addresses {
			ip := net.ParseIP(a)
			if ip == nil {
				return nil, fmt.Errorf("device %d: invalid address %q", i, a)
			}
			rec.Addresses = append(rec.Addresses, ip)
		}
		records = append(records, rec)
	}
	return records, nil
}
