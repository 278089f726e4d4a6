// Package controls turns device routes into UI control descriptors and
// stores the matching input rows.
package controls

import (
	"context"
	"fmt"
	"strings"

	"github.com/rmrfslashbin/device-gateway/internal/db"
	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

// UnknownRoute labels buttons whose route name has no leading slash.
const UnknownRoute = "<unknown route>"

// CleanRouteName returns the first segment of a route name:
// "/on/<brightness>" becomes "on".
func CleanRouteName(name string) string {
	rest, ok := strings.CutPrefix(name, "/")
	if !ok {
		return UnknownRoute
	}
	segment, _, _ := strings.Cut(rest, "/")
	return segment
}

// ForRoute synthesizes the controls of a single route: one button for the
// route and one control per declared input, in declaration order.
func ForRoute(routeID int64, route models.RouteConfig) models.StateControls {
	var c models.StateControls

	c.Buttons = append(c.Buttons, models.Button{
		RouteID:  routeID,
		Label:    CleanRouteName(route.Data.Name),
		HasState: len(route.Data.Inputs) > 0,
	})

	for _, in := range route.Data.Inputs {
		switch t := in.Type.(type) {
		case models.BoolInput:
			c.CheckBoxes = append(c.CheckBoxes, models.CheckBox{
				RouteID: routeID,
				Name:    in.Name,
				Checked: t.Default,
			})
		case models.RangeU64:
			c.SlidersU64 = append(c.SlidersU64, models.Slider[uint64]{
				RouteID: routeID,
				Name:    in.Name,
				Min:     t.Min,
				Max:     t.Max,
				Step:    t.Step,
				Value:   t.Default,
			})
		case models.RangeF64:
			c.SlidersF64 = append(c.SlidersF64, models.Slider[float64]{
				RouteID: routeID,
				Name:    in.Name,
				Min:     t.Min,
				Max:     t.Max,
				Step:    t.Step,
				Value:   t.Default,
			})
		}
	}

	return c
}

// Persist stores the routes of a device and synthesizes their controls in
// the same iteration. Every route gets one boolean row named after the
// route itself, followed by one row per declared input. A hazard shared by
// several routes is linked to the device once.
func Persist(ctx context.Context, q db.DBTX, deviceID int64, data *models.DeviceData) (models.StateControls, error) {
	var all models.StateControls
	linked := make(map[models.HazardRef]struct{})

	if data.MainRoute != "" {
		if err := db.InsertMainRoute(ctx, q, deviceID, data.MainRoute); err != nil {
			return all, err
		}
	}

	for _, route := range data.Routes {
		routeID, err := db.InsertRoute(ctx, q, deviceID, route.Data.Name)
		if err != nil {
			return all, err
		}

		for _, hazard := range route.Hazards {
			if _, ok := linked[hazard]; ok {
				continue
			}
			linked[hazard] = struct{}{}
			if err := db.InsertHazard(ctx, q, deviceID, hazard); err != nil {
				return all, err
			}
		}

		if err := db.InsertBooleanInput(ctx, q, routeID, route.Data.Name, false, false); err != nil {
			return all, err
		}

		if err := persistInputs(ctx, q, routeID, route.Data.Inputs); err != nil {
			return all, fmt.Errorf("route %q: %w", route.Data.Name, err)
		}

		all.Append(ForRoute(routeID, route))
	}

	return all, nil
}

func persistInputs(ctx context.Context, q db.DBTX, routeID int64, inputs []models.Input) error {
	for _, in := range inputs {
		var err error
		switch t := in.Type.(type) {
		case models.BoolInput:
			err = db.InsertBooleanInput(ctx, q, routeID, in.Name, t.Default, t.Default)
		case models.RangeU64:
			err = db.InsertRangeU64Input(ctx, q, routeID, models.RangeU64Row{
				Name:    in.Name,
				Min:     t.Min,
				Max:     t.Max,
				Step:    t.Step,
				Default: t.Default,
				Value:   t.Default,
			})
		case models.RangeF64:
			err = db.InsertRangeF64Input(ctx, q, routeID, models.RangeF64Row{
				Name:    in.Name,
				Min:     t.Min,
				Max:     t.Max,
				Step:    t.Step,
				Default: t.Default,
				Value:   t.Default,
			})
		default:
			err = fmt.Errorf("input %q has unsupported type %T", in.Name, in.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
