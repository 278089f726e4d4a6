package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rmrfslashbin/device-gateway/internal/db"
)

// handleDeviceResource returns a stored device as JSON.
func (s *Server) handleDeviceResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	raw, ok := strings.CutPrefix(uri, resourcePrefix)
	if !ok {
		return nil, fmt.Errorf("invalid resource URI: %s", uri)
	}

	id, err := parseDeviceID(raw)
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

	out, err := json.MarshalIndent(device, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode device: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
