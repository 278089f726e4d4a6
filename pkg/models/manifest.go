package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidManifest is returned when a manifest decodes but breaks one of
// the structural rules of the capability model.
var ErrInvalidManifest = errors.New("invalid manifest")

// DeviceKind is the kind of device advertised in the manifest.
type DeviceKind string

const (
	// KindUnknown is used for any kind the gateway does not recognise.
	KindUnknown DeviceKind = "Unknown"
	// KindLight is a light.
	KindLight DeviceKind = "Light"
	// KindFridge is a fridge.
	KindFridge DeviceKind = "Fridge"
)

// ParseDeviceKind maps a manifest string to a known kind.
func ParseDeviceKind(s string) DeviceKind {
	switch DeviceKind(s) {
	case KindLight, KindFridge:
		return DeviceKind(s)
	default:
		return KindUnknown
	}
}

// UnmarshalJSON decodes unknown kinds as KindUnknown instead of failing.
func (k *DeviceKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ParseDeviceKind(s)
	return nil
}

// RestKind is the HTTP verb of a device route.
type RestKind string

// Supported REST kinds.
const (
	RestGet    RestKind = "Get"
	RestPut    RestKind = "Put"
	RestPost   RestKind = "Post"
	RestDelete RestKind = "Delete"
)

// UnmarshalJSON accepts any letter case ("PUT", "put", "Put").
func (k *RestKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*k = ""
		return nil
	}
	s = strings.ToLower(s)
	*k = RestKind(strings.ToUpper(s[:1]) + s[1:])
	return nil
}

func (k RestKind) valid() bool {
	switch k {
	case RestGet, RestPut, RestPost, RestDelete:
		return true
	}
	return false
}

// HazardRef identifies an entry in the hazard catalog.
type HazardRef uint16

// UnmarshalJSON accepts either a bare id or a hazard object carrying an id.
func (h *HazardRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			ID *uint16 `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.ID == nil {
			return fmt.Errorf("hazard object without id")
		}
		*h = HazardRef(*obj.ID)
		return nil
	}

	var id uint16
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*h = HazardRef(id)
	return nil
}

// DeviceData is the capability manifest of a device.
type DeviceData struct {
	Kind      DeviceKind    `json:"kind"`
	MainRoute string        `json:"main_route"`
	Routes    []RouteConfig `json:"routes"`
}

// RouteConfig is one operation exposed by a device.
type RouteConfig struct {
	RestKind RestKind    `json:"rest_kind"`
	Hazards  []HazardRef `json:"hazards"`
	Data     RouteData   `json:"data"`
}

// RouteData describes the route and its inputs.
type RouteData struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Stateless   bool    `json:"stateless"`
	Inputs      []Input `json:"inputs"`
}

// InputType is the closed set of input kinds: BoolInput, RangeU64 and
// RangeF64.
type InputType interface {
	tag() string
}

// BoolInput is a boolean input.
type BoolInput struct {
	Default bool `json:"default"`
}

// RangeU64 is an unsigned integer range input.
type RangeU64 struct {
	Min     uint64 `json:"min"`
	Max     uint64 `json:"max"`
	Step    uint64 `json:"step"`
	Default uint64 `json:"default"`
}

// RangeF64 is a floating point range input.
type RangeF64 struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
	Default float64 `json:"default"`
}

func (BoolInput) tag() string { return "Bool" }
func (RangeU64) tag() string  { return "RangeU64" }
func (RangeF64) tag() string  { return "RangeF64" }

// Input is a named, typed route input.
type Input struct {
	Name string
	Type InputType
}

type inputWire struct {
	Name     string                     `json:"name"`
	Datatype map[string]json.RawMessage `json:"datatype"`
}

// rangeWire accepts both the short and the long bound names.
type rangeWire[T any] struct {
	Min     *T `json:"min"`
	Minimum *T `json:"minimum"`
	Max     *T `json:"max"`
	Maximum *T `json:"maximum"`
	Step    *T `json:"step"`
	Default *T `json:"default"`
}

func first[T any](values ...*T) (T, bool) {
	for _, v := range values {
		if v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}

func (w rangeWire[T]) bounds() (lo, hi, step, def T, err error) {
	var ok bool
	if lo, ok = first(w.Min, w.Minimum); !ok {
		return lo, hi, step, def, fmt.Errorf("range without minimum")
	}
	if hi, ok = first(w.Max, w.Maximum); !ok {
		return lo, hi, step, def, fmt.Errorf("range without maximum")
	}
	if step, ok = first(w.Step); !ok {
		return lo, hi, step, def, fmt.Errorf("range without step")
	}
	if def, ok = first(w.Default); !ok {
		return lo, hi, step, def, fmt.Errorf("range without default")
	}
	return lo, hi, step, def, nil
}

// MarshalJSON encodes the input with an externally tagged datatype.
func (in Input) MarshalJSON() ([]byte, error) {
	if in.Type == nil {
		return nil, fmt.Errorf("input %q has no datatype", in.Name)
	}
	return json.Marshal(struct {
		Name     string               `json:"name"`
		Datatype map[string]InputType `json:"datatype"`
	}{
		Name:     in.Name,
		Datatype: map[string]InputType{in.Type.tag(): in.Type},
	})
}

// UnmarshalJSON decodes {"name": ..., "datatype": {"<Tag>": ...}}.
func (in *Input) UnmarshalJSON(data []byte) error {
	var w inputWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Datatype) != 1 {
		return fmt.Errorf("input %q: datatype must have exactly one variant", w.Name)
	}

	in.Name = w.Name
	for tag, raw := range w.Datatype {
		switch tag {
		case "Bool":
			var def bool
			if err := json.Unmarshal(raw, &def); err != nil {
				var obj BoolInput
				if err := json.Unmarshal(raw, &obj); err != nil {
					return fmt.Errorf("input %q: %w", w.Name, err)
				}
				def = obj.Default
			}
			in.Type = BoolInput{Default: def}
		case "RangeU64":
			var rw rangeWire[uint64]
			if err := json.Unmarshal(raw, &rw); err != nil {
				return fmt.Errorf("input %q: %w", w.Name, err)
			}
			lo, hi, step, def, err := rw.bounds()
			if err != nil {
				return fmt.Errorf("input %q: %w", w.Name, err)
			}
			in.Type = RangeU64{Min: lo, Max: hi, Step: step, Default: def}
		case "RangeF64":
			var rw rangeWire[float64]
			if err := json.Unmarshal(raw, &rw); err != nil {
				return fmt.Errorf("input %q: %w", w.Name, err)
			}
			lo, hi, step, def, err := rw.bounds()
			if err != nil {
				return fmt.Errorf("input %q: %w", w.Name, err)
			}
			in.Type = RangeF64{Min: lo, Max: hi, Step: step, Default: def}
		default:
			return fmt.Errorf("input %q: unknown datatype %q", w.Name, tag)
		}
	}
	return nil
}

// requiredKeys are the top-level manifest fields a device must send.
var requiredKeys = []string{"kind", "main_route", "routes"}

// DecodeManifest decodes and validates a manifest body. The body must be a
// JSON object carrying every required key; anything else wraps
// ErrInvalidManifest.
func DecodeManifest(data []byte) (*DeviceData, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	if top == nil {
		return nil, fmt.Errorf("%w: manifest is not an object", ErrInvalidManifest)
	}
	for _, key := range requiredKeys {
		raw, ok := top[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, fmt.Errorf("%w: missing %q", ErrInvalidManifest, key)
		}
	}

	var d DeviceData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate enforces the model rules. Hazards are deduplicated in place,
// keeping the first occurrence; every other violation is an error wrapping
// ErrInvalidManifest.
func (d *DeviceData) Validate() error {
	if d.Kind == "" {
		d.Kind = KindUnknown
	}

	for i := range d.Routes {
		route := &d.Routes[i]
		if route.Data.Name == "" {
			return fmt.Errorf("%w: route %d has no name", ErrInvalidManifest, i)
		}
		if !route.RestKind.valid() {
			return fmt.Errorf("%w: route %q: unknown rest kind %q", ErrInvalidManifest, route.Data.Name, route.RestKind)
		}
		route.Hazards = dedupHazards(route.Hazards)

		seen := make(map[string]struct{}, len(route.Data.Inputs))
		for _, in := range route.Data.Inputs {
			if strings.TrimSpace(in.Name) == "" {
				return fmt.Errorf("%w: route %q has an unnamed input", ErrInvalidManifest, route.Data.Name)
			}
			if _, dup := seen[in.Name]; dup {
				return fmt.Errorf("%w: route %q: duplicate input %q", ErrInvalidManifest, route.Data.Name, in.Name)
			}
			seen[in.Name] = struct{}{}

			switch t := in.Type.(type) {
			case BoolInput:
			case RangeU64:
				if t.Min > t.Max {
					return fmt.Errorf("%w: input %q: min > max", ErrInvalidManifest, in.Name)
				}
			case RangeF64:
				if t.Min > t.Max {
					return fmt.Errorf("%w: input %q: min > max", ErrInvalidManifest, in.Name)
				}
			default:
				return fmt.Errorf("%w: input %q has no datatype", ErrInvalidManifest, in.Name)
			}
		}
	}
	return nil
}

func dedupHazards(hazards []HazardRef) []HazardRef {
	if len(hazards) < 2 {
		return hazards
	}
	seen := make(map[HazardRef]struct{}, len(hazards))
	out := hazards[:0]
	for _, h := range hazards {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
