package models

// Button triggers a route.
type Button struct {
	RouteID  int64  `json:"route_id"`
	Label    string `json:"label"`
	HasState bool   `json:"has_state"`
}

// CheckBox renders a boolean input.
type CheckBox struct {
	RouteID int64  `json:"route_id"`
	Name    string `json:"name"`
	Checked bool   `json:"checked"`
}

// Number is the set of slider value types.
type Number interface {
	~uint64 | ~float64
}

// Slider renders a range input.
type Slider[T Number] struct {
	RouteID int64  `json:"route_id"`
	Name    string `json:"name"`
	Min     T      `json:"min"`
	Max     T      `json:"max"`
	Step    T      `json:"step"`
	Value   T      `json:"value"`
}

// StateControls groups the controls synthesized for a device.
type StateControls struct {
	Buttons    []Button          `json:"buttons"`
	CheckBoxes []CheckBox        `json:"checkboxes"`
	SlidersU64 []Slider[uint64]  `json:"sliders_u64"`
	SlidersF64 []Slider[float64] `json:"sliders_f64"`
}

// Append adds every control of other to c.
func (c *StateControls) Append(other StateControls) {
	c.Buttons = append(c.Buttons, other.Buttons...)
	c.CheckBoxes = append(c.CheckBoxes, other.CheckBoxes...)
	c.SlidersU64 = append(c.SlidersU64, other.SlidersU64...)
	c.SlidersF64 = append(c.SlidersF64, other.SlidersF64...)
}

// InputControls returns the number of controls bound to inputs.
func (c StateControls) InputControls() int {
	return len(c.CheckBoxes) + len(c.SlidersU64) + len(c.SlidersF64)
}
