// Package hazards maps hazard identifiers to catalog descriptions.
//
// Devices only reference hazards by id. The catalog is an optional YAML
// file maintained next to the gateway configuration:
//
//	hazards:
//	  - id: 0
//	    name: Fire Hazard
//	    description: The device can start a fire.
//	    category:
//	      name: Safety
//	      description: Risks to people.
package hazards

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

// Category groups hazards.
type Category struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Hazard is one catalog entry.
type Hazard struct {
	ID          models.HazardRef `yaml:"id" json:"id"`
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	Category    Category         `yaml:"category" json:"category"`
	Known       bool             `yaml:"-" json:"known"`
}

// Catalog is an immutable hazard lookup table.
type Catalog struct {
	entries map[models.HazardRef]Hazard
}

// Empty returns a catalog without entries.
func Empty() *Catalog {
	return &Catalog{entries: map[models.HazardRef]Hazard{}}
}

// Load reads a catalog from a YAML file. An empty path yields an empty
// catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Empty(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hazard catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Duplicate ids are rejected.
func Parse(data []byte) (*Catalog, error) {
	var f struct {
		Hazards []Hazard `yaml:"hazards"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse hazard catalog: %w", err)
	}

	c := Empty()
	for _, h := range f.Hazards {
		if _, dup := c.entries[h.ID]; dup {
			return nil, fmt.Errorf("hazard catalog: duplicate id %d", h.ID)
		}
		h.Known = true
		c.entries[h.ID] = h
	}
	return c, nil
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Lookup returns the entry for id. Unknown ids get a placeholder entry with
// Known set to false.
func (c *Catalog) Lookup(id models.HazardRef) Hazard {
	if h, ok := c.entries[id]; ok {
		return h
	}
	return Hazard{ID: id, Name: fmt.Sprintf("hazard %d", id)}
}

// Describe looks up each id, sorted by id.
func (c *Catalog) Describe(ids []models.HazardRef) []Hazard {
	out := make([]Hazard, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.Lookup(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
