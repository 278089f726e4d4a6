package mcp

import (
	"context"
	"database/sql"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rmrfslashbin/device-gateway/internal/db"
	"github.com/rmrfslashbin/device-gateway/internal/discovery"
	"github.com/rmrfslashbin/device-gateway/internal/hazards"
	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

const heaterManifest = `{"kind": "Unknown", "main_route": "/heat/<level>", "routes": [
	{"rest_kind": "Put", "hazards": [0], "data": {"name": "/heat/<level>", "stateless": false, "inputs": [
		{"name": "level", "datatype": {"RangeU64": {"min": 1, "max": 5, "step": 1, "default": 1}}}
	]}}
]}`

type stubFetcher struct {
	data *models.DeviceData
}

func (f *stubFetcher) Fetch(ctx context.Context, addresses []models.DeviceAddress) (*models.DeviceData, int) {
	return f.data, 0
}

func testServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()

	database, err := db.InitDatabase(filepath.Join(t.TempDir(), "devices.db"))
	if err != nil {
		t.Fatalf("InitDatabase() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	data, err := models.DecodeManifest([]byte(heaterManifest))
	if err != nil {
		t.Fatalf("DecodeManifest() error = %v", err)
	}
	svc := discovery.New(database, nil, &stubFetcher{data: data}, discovery.Options{}, nil)

	catalog, err := hazards.Parse([]byte("hazards:\n  - id: 0\n    name: Fire Hazard\n    description: Can start a fire.\n"))
	if err != nil {
		t.Fatalf("hazards.Parse() error = %v", err)
	}

	return NewServer(svc, database, catalog, "test", nil), database
}

// runPass stores one heater and returns its id.
func runPass(t *testing.T, s *Server) int64 {
	t.Helper()
	result, err := s.discovery.RunPass(context.Background(), []models.DiscoveryRecord{
		{Port: 3000, Addresses: []net.IP{net.ParseIP("10.0.0.1")}},
	})
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if len(result.Devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(result.Devices))
	}
	return result.Devices[0].Metadata.ID
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func TestGetDevice(t *testing.T) {
	s, _ := testServer(t)
	id := runPass(t, s)

	result, err := s.handleGetDevice(context.Background(), toolRequest("get_device", map[string]any{
		"device_id": strconv.FormatInt(id, 10),
	}))
	if err != nil {
		t.Fatalf("handleGetDevice() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
	text := resultText(t, result)
	if !strings.Contains(text, "Main route: heat") || !strings.Contains(text, "1 sliders") {
		t.Errorf("unexpected summary:\n%s", text)
	}
}

func TestGetDeviceInvalidID(t *testing.T) {
	s, _ := testServer(t)

	for _, raw := range []string{"", "abc", "-3", "42"} {
		t.Run(raw, func(t *testing.T) {
			result, err := s.handleGetDevice(context.Background(), toolRequest("get_device", map[string]any{"device_id": raw}))
			if err != nil {
				t.Fatalf("handleGetDevice() error = %v", err)
			}
			if !result.IsError {
				t.Errorf("expected tool error for %q", raw)
			}
		})
	}
}

func TestListHazards(t *testing.T) {
	s, _ := testServer(t)

	result, err := s.handleListHazards(context.Background(), toolRequest("list_hazards", nil))
	if err != nil {
		t.Fatalf("handleListHazards() error = %v", err)
	}
	if !strings.Contains(resultText(t, result), "No hazards") {
		t.Errorf("before discovery: %s", resultText(t, result))
	}

	runPass(t, s)
	result, err = s.handleListHazards(context.Background(), toolRequest("list_hazards", nil))
	if err != nil {
		t.Fatalf("handleListHazards() error = %v", err)
	}
	if !strings.Contains(resultText(t, result), "Fire Hazard") {
		t.Errorf("after discovery: %s", resultText(t, result))
	}
}

func TestListHazardsFromStore(t *testing.T) {
	s, database := testServer(t)
	ctx := context.Background()

	id, err := db.InsertDevice(ctx, database, 9000, "http", models.DefaultPath)
	if err != nil {
		t.Fatalf("InsertDevice() error = %v", err)
	}
	if err := db.InsertHazard(ctx, database, id, 0); err != nil {
		t.Fatalf("InsertHazard() error = %v", err)
	}

	result, err := s.handleListHazards(ctx, toolRequest("list_hazards", nil))
	if err != nil {
		t.Fatalf("handleListHazards() error = %v", err)
	}
	if text := resultText(t, result); !strings.Contains(text, "Fire Hazard") {
		t.Errorf("stored hazards: %s", text)
	}
}

func TestListDevicesFromStore(t *testing.T) {
	s, database := testServer(t)

	if _, err := db.InsertDevice(context.Background(), database, 9000, "http", models.DefaultPath); err != nil {
		t.Fatalf("InsertDevice() error = %v", err)
	}

	result, err := s.handleListDevices(context.Background(), toolRequest("list_devices", nil))
	if err != nil {
		t.Fatalf("handleListDevices() error = %v", err)
	}
	if text := resultText(t, result); !strings.Contains(text, "1 stored devices") || !strings.Contains(text, "port 9000") {
		t.Errorf("unexpected list:\n%s", text)
	}
}

func TestGetStats(t *testing.T) {
	s, _ := testServer(t)
	runPass(t, s)

	result, err := s.handleGetStats(context.Background(), toolRequest("get_stats", nil))
	if err != nil {
		t.Fatalf("handleGetStats() error = %v", err)
	}
	if text := resultText(t, result); !strings.Contains(text, `"ranges_u64": 1`) {
		t.Errorf("unexpected stats:\n%s", text)
	}
}

func TestDiscoverDevicesWithoutSource(t *testing.T) {
	s, _ := testServer(t)

	result, err := s.handleDiscoverDevices(context.Background(), toolRequest("discover_devices", nil))
	if err != nil {
		t.Fatalf("handleDiscoverDevices() error = %v", err)
	}
	if !result.IsError {
		t.Error("discovery without a source should be a tool error")
	}
}

func TestDeviceResource(t *testing.T) {
	s, _ := testServer(t)
	id := runPass(t, s)

	var req mcp.ReadResourceRequest
	req.Params.URI = resourcePrefix + strconv.FormatInt(id, 10)

	contents, err := s.handleDeviceResource(context.Background(), req)
	if err != nil {
		t.Fatalf("handleDeviceResource() error = %v", err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents type = %T", contents[0])
	}
	if !strings.Contains(text.Text, `"main_route": "/heat/\u003clevel\u003e"`) {
		t.Errorf("unexpected resource:\n%s", text.Text)
	}

	req.Params.URI = "other://device/1"
	if _, err := s.handleDeviceResource(context.Background(), req); err == nil {
		t.Error("foreign URI should fail")
	}
}

func TestHazardReviewPrompt(t *testing.T) {
	s, _ := testServer(t)
	id := runPass(t, s)

	var req mcp.GetPromptRequest
	req.Params.Name = "hazard_review"
	req.Params.Arguments = map[string]string{"device_id": strconv.FormatInt(id, 10)}

	result, err := s.handleHazardReview(context.Background(), req)
	if err != nil {
		t.Fatalf("handleHazardReview() error = %v", err)
	}
	text := result.Messages[0].Content.(mcp.TextContent).Text
	for _, want := range []string{"main operation is \"heat\"", "level (1 to 5)", "Fire Hazard: Can start a fire."} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt missing %q:\n%s", want, text)
		}
	}

	req.Params.Arguments = map[string]string{}
	if _, err := s.handleHazardReview(context.Background(), req); err == nil {
		t.Error("missing device_id should fail")
	}
}
