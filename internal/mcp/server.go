// Package mcp exposes the gateway over the Model Context Protocol.
package mcp

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmrfslashbin/device-gateway/internal/discovery"
	"github.com/rmrfslashbin/device-gateway/internal/hazards"
)

// resourcePrefix is the URI prefix of device resources.
const resourcePrefix = "gateway://device/"

// Server wraps the MCP server with the gateway components.
type Server struct {
	mcp       *server.MCPServer
	discovery *discovery.Service
	db        *sql.DB
	catalog   *hazards.Catalog
	logger    *slog.Logger
	version   string
}

// NewServer creates a new MCP server instance.
func NewServer(svc *discovery.Service, database *sql.DB, catalog *hazards.Catalog, version string, logger *slog.Logger) *Server {
	if catalog == nil {
		catalog = hazards.Empty()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		discovery: svc,
		db:        database,
		catalog:   catalog,
		logger:    logger,
		version:   version,
	}

	s.mcp = server.NewMCPServer(
		"device-gateway",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
		server.WithLogging(),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("discover_devices",
		mcp.WithDescription("Run a discovery pass: browse the network for devices, retrieve their manifests and rebuild the device database. Returns a summary of the pass with the controls built for each device. Devices that do not answer are removed."),
	), s.handleDiscoverDevices)

	s.mcp.AddTool(mcp.NewTool("list_devices",
		mcp.WithDescription("List the devices found by the last discovery pass, or the stored devices when no pass has run yet. Returns device ids, kinds, ports and addresses."),
	), s.handleListDevices)

	s.mcp.AddTool(mcp.NewTool("get_device",
		mcp.WithDescription("Get one device with its routes, inputs and controls. Use the device_id from list_devices."),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("Numeric device id"),
		),
	), s.handleGetDevice)

	s.mcp.AddTool(mcp.NewTool("list_hazards",
		mcp.WithDescription("List the hazards declared by the routes of the discovered devices, described from the hazard catalog."),
	), s.handleListHazards)

	s.mcp.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Get row counts for every table of the device database."),
	), s.handleGetStats)
}

func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			resourcePrefix+"{device_id}",
			"Stored device with routes and inputs",
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleDeviceResource,
	)
}

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("hazard_review",
		mcp.WithPromptDescription("Review the hazards of a device before operating it"),
		mcp.WithArgument("device_id",
			mcp.ArgumentDescription("Numeric device id"),
			mcp.RequiredArgument(),
		),
	), s.handleHazardReview)
}

// Serve starts the MCP server with stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server with stdio transport")
	return server.ServeStdio(s.mcp)
}
