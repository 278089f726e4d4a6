package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rmrfslashbin/device-gateway/internal/controls"
	"github.com/rmrfslashbin/device-gateway/internal/db"
)

// handleHazardReview builds a prompt asking for a safety review of every
// route of a device that declares hazards.
func (s *Server) handleHazardReview(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	deviceArg := request.Params.Arguments["device_id"]
	if deviceArg == "" {
		return nil, fmt.Errorf("device_id argument is required")
	}

	id, err := parseDeviceID(deviceArg)
	if err != nil {
		return nil, err
	}

	device, err := db.LoadDevice(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if device == nil {
		return nil, fmt.Errorf("device not found: %d", id)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are reviewing device %d before it is operated.\n\n", id))

	if device.MainRoute != "" {
		sb.WriteString(fmt.Sprintf("Its main operation is %q.\n\n", controls.CleanRouteName(device.MainRoute)))
	}

	sb.WriteString("Operations:\n\n")
	for _, r := range device.Routes {
		sb.WriteString(fmt.Sprintf("- %s", controls.CleanRouteName(r.Route)))
		var inputs []string
		for _, b := range r.Booleans {
			// The row named after the route is the route itself.
			if b.Name == r.Route {
				continue
			}
			inputs = append(inputs, fmt.Sprintf("%s (on/off)", b.Name))
		}
		for _, u := range r.RangesU64 {
			inputs = append(inputs, fmt.Sprintf("%s (%d to %d)", u.Name, u.Min, u.Max))
		}
		for _, f := range r.RangesF64 {
			inputs = append(inputs, fmt.Sprintf("%s (%g to %g)", f.Name, f.Min, f.Max))
		}
		if len(inputs) > 0 {
			sb.WriteString(": " + strings.Join(inputs, ", "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nDeclared hazards:\n\n")
	if len(device.Hazards) == 0 {
		sb.WriteString("- none\n")
	}
	for _, h := range s.catalog.Describe(device.Hazards) {
		sb.WriteString(fmt.Sprintf("- %s", h.Name))
		if h.Description != "" {
			sb.WriteString(": " + h.Description)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nPlease provide:\n")
	sb.WriteString("1. Which operations can trigger each hazard\n")
	sb.WriteString("2. Input values that should be avoided\n")
	sb.WriteString("3. Checks to perform before running the main operation\n")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Hazard review for device %d", id),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: sb.String(),
				},
			},
		},
	}, nil
}
