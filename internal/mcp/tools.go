package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rmrfslashbin/device-gateway/internal/controls"
	"github.com/rmrfslashbin/device-gateway/internal/db"
	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

func (s *Server) handleDiscoverDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.discovery.Discover(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("discovery failed: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Discovery pass %s\n\n", result.ID))
	sb.WriteString(fmt.Sprintf("- Discovered: %d\n", result.Discovered))
	sb.WriteString(fmt.Sprintf("- Stored: %d\n", len(result.Devices)))
	sb.WriteString(fmt.Sprintf("- Skipped (no address): %d\n", result.Skipped))
	sb.WriteString(fmt.Sprintf("- Unreachable: %d\n", result.Unreachable))
	sb.WriteString(fmt.Sprintf("- Failed: %d\n", result.Failed))

	for _, d := range result.Devices {
		sb.WriteString("\n")
		writeDeviceSummary(&sb, d)
	}

	if len(result.Hazards) > 0 {
		sb.WriteString("\n## Hazards\n\n")
		for _, h := range s.catalog.Describe(result.Hazards) {
			sb.WriteString(fmt.Sprintf("- %d: %s\n", h.ID, h.Name))
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if last := s.discovery.Last(); last != nil {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%d devices from pass %s:\n\n", len(last.Devices), last.ID))
		for _, d := range last.Devices {
			sb.WriteString(fmt.Sprintf("- **%d** %s on port %d (%d routes)\n",
				d.Metadata.ID, d.Data.Kind, d.Metadata.Port, len(d.Data.Routes)))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}

	stored, err := db.LoadDevices(ctx, s.db)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list devices: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d stored devices:\n\n", len(stored)))
	for _, d := range stored {
		sb.WriteString(fmt.Sprintf("- **%d** port %d, %s (%d routes)\n",
			d.Metadata.ID, d.Metadata.Port, strings.Join(d.Addresses, ", "), len(d.Routes)))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleGetDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	raw, _ := args["device_id"].(string)

	id, err := parseDeviceID(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if last := s.discovery.Last(); last != nil {
		if d, ok := last.Device(id); ok {
			var sb strings.Builder
			writeDeviceSummary(&sb, d)
			return mcp.NewToolResultText(sb.String()), nil
		}
	}

	stored, err := db.LoadDevice(ctx, s.db, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get device: %v", err)), nil
	}
	if stored == nil {
		return mcp.NewToolResultError(fmt.Sprintf("device not found: %d", id)), nil
	}

	out, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode device: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleListHazards(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var ids []models.HazardRef
	if last := s.discovery.Last(); last != nil {
		ids = last.Hazards
	} else {
		stored, err := db.ListHazards(ctx, s.db)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load hazards: %v", err)), nil
		}
		ids = stored
	}
	if len(ids) == 0 {
		return mcp.NewToolResultText("No hazards reported. Run discover_devices to refresh."), nil
	}

	var sb strings.Builder
	sb.WriteString("| ID | Name | Category | Description |\n")
	sb.WriteString("|----|------|----------|-------------|\n")
	for _, h := range s.catalog.Describe(ids) {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n", h.ID, h.Name, h.Category.Name, h.Description))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := db.GetStats(ctx, s.db)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	out, err := json.MarshalIndent(map[string]any{"tables": stats, "total": stats.Total()}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func parseDeviceID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid device_id %q: must be a positive integer", raw)
	}
	return id, nil
}

// writeDeviceSummary renders a device and its controls as markdown.
func writeDeviceSummary(sb *strings.Builder, d models.Device) {
	sb.WriteString(fmt.Sprintf("## Device %d (%s)\n\n", d.Metadata.ID, d.Data.Kind))
	for _, a := range d.Addresses {
		mark := "unreachable"
		if a.Reachable {
			mark = "reachable"
		}
		sb.WriteString(fmt.Sprintf("- `%s` %s\n", a.Request, mark))
	}
	if d.Data.MainRoute != "" {
		sb.WriteString(fmt.Sprintf("- Main route: %s\n", controls.CleanRouteName(d.Data.MainRoute)))
	}

	for _, r := range d.Data.Routes {
		sb.WriteString(fmt.Sprintf("\n### %s %s\n", r.RestKind, r.Data.Name))
		if r.Data.Description != nil {
			sb.WriteString(*r.Data.Description + "\n")
		}
		if len(r.Hazards) > 0 {
			ids := make([]string, len(r.Hazards))
			for i, h := range r.Hazards {
				ids[i] = strconv.Itoa(int(h))
			}
			sb.WriteString(fmt.Sprintf("Hazards: %s\n", strings.Join(ids, ", ")))
		}
	}

	c := d.Controls
	sb.WriteString(fmt.Sprintf("\nControls: %d buttons, %d checkboxes, %d sliders\n",
		len(c.Buttons), len(c.CheckBoxes), len(c.SlidersU64)+len(c.SlidersF64)))
}
