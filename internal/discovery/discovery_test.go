package discovery

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rmrfslashbin/device-gateway/internal/client"
	"github.com/rmrfslashbin/device-gateway/internal/db"
	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

const lightManifest = `{
	"kind": "Light",
	"main_route": "/light",
	"routes": [
		{"rest_kind": "Put", "hazards": [2, 0], "data": {"name": "/on/<b>/<s>", "stateless": false, "inputs": [
			{"name": "brightness", "datatype": {"RangeF64": {"min": 0, "max": 20, "step": 0.1, "default": 0}}},
			{"name": "save-energy", "datatype": {"Bool": false}}
		]}},
		{"rest_kind": "Put", "hazards": [], "data": {"name": "/off", "stateless": false, "inputs": []}}
	]
}`

// fakeFetcher answers for the addresses in manifests and fails otherwise.
type fakeFetcher struct {
	mu        sync.Mutex
	manifests map[string]*models.DeviceData
	calls     int
}

func (f *fakeFetcher) Fetch(ctx context.Context, addresses []models.DeviceAddress) (*models.DeviceData, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	for i := range addresses {
		if data, ok := f.manifests[addresses[i].Address.String()]; ok {
			return data, i
		}
		addresses[i].Reachable = false
	}
	return nil, -1
}

func setup(t *testing.T, manifests map[string]*models.DeviceData) (*Service, *sql.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "devices.db")
	database, err := db.InitDatabase(path)
	if err != nil {
		t.Fatalf("InitDatabase() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	svc := New(database, nil, &fakeFetcher{manifests: manifests}, Options{Concurrency: 2}, nil)
	return svc, database, path
}

func light(t *testing.T) *models.DeviceData {
	t.Helper()
	d, err := models.DecodeManifest([]byte(lightManifest))
	if err != nil {
		t.Fatalf("DecodeManifest() error = %v", err)
	}
	return d
}

func record(port uint16, ips ...string) models.DiscoveryRecord {
	r := models.DiscoveryRecord{Instance: fmt.Sprintf("dev-%d", port), Port: port}
	for _, ip := range ips {
		r.Addresses = append(r.Addresses, net.ParseIP(ip))
	}
	return r
}

func checksum(t *testing.T, path string) [32]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return sha256.Sum256(data)
}

func TestRunPassLight(t *testing.T) {
	ctx := context.Background()
	svc, database, _ := setup(t, map[string]*models.DeviceData{"10.0.0.2": light(t)})

	result, err := svc.RunPass(ctx, []models.DiscoveryRecord{record(3000, "10.0.0.1", "10.0.0.2")})
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if len(result.Devices) != 1 {
		t.Fatalf("len(Devices) = %d, want 1", len(result.Devices))
	}
	d := result.Devices[0]

	if got := len(d.Controls.Buttons); got != 2 {
		t.Errorf("buttons = %d, want 2", got)
	}
	if got := len(d.Controls.SlidersF64); got != 1 || d.Controls.SlidersF64[0].Name != "brightness" {
		t.Errorf("f64 sliders = %+v, want brightness", d.Controls.SlidersF64)
	}
	if got := len(d.Controls.CheckBoxes); got != 1 || d.Controls.CheckBoxes[0].Name != "save-energy" {
		t.Errorf("checkboxes = %+v, want save-energy", d.Controls.CheckBoxes)
	}
	if len(d.Controls.SlidersU64) != 0 {
		t.Errorf("u64 sliders = %d, want 0", len(d.Controls.SlidersU64))
	}

	if d.Addresses[0].Reachable || !d.Addresses[1].Reachable {
		t.Errorf("reachability = %v/%v, want false/true", d.Addresses[0].Reachable, d.Addresses[1].Reachable)
	}
	if d.Addresses[1].Request != "http://10.0.0.2:3000/.well-known/ascot" {
		t.Errorf("request = %s", d.Addresses[1].Request)
	}

	if len(result.Hazards) != 2 || result.Hazards[0] != 0 || result.Hazards[1] != 2 {
		t.Errorf("Hazards = %v, want [0 2]", result.Hazards)
	}

	routes, err := db.GetRoutes(ctx, database, d.Metadata.ID)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	names := map[string]bool{}
	for _, r := range routes {
		rows, err := db.GetBooleanInputs(ctx, database, r.ID)
		if err != nil {
			t.Fatalf("GetBooleanInputs() error = %v", err)
		}
		for _, b := range rows {
			names[b.Name] = true
		}
	}
	for _, want := range []string{"/off", "/on/<b>/<s>", "save-energy"} {
		if !names[want] {
			t.Errorf("missing boolean row %q", want)
		}
	}

	if svc.Last() != result {
		t.Error("Last() should return the published result")
	}
}

func TestRunPassEmptyBatch(t *testing.T) {
	ctx := context.Background()
	svc, database, path := setup(t, map[string]*models.DeviceData{"10.0.0.1": light(t)})

	first, err := svc.RunPass(ctx, []models.DiscoveryRecord{record(3000, "10.0.0.1")})
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	before, err := db.GetStats(ctx, database)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	sumBefore := checksum(t, path)

	result, err := svc.RunPass(ctx, nil)
	if err != nil {
		t.Fatalf("RunPass(empty) error = %v", err)
	}
	if len(result.Devices) != 0 || result.Discovered != 0 {
		t.Errorf("empty pass result = %+v", result)
	}

	after, err := db.GetStats(ctx, database)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if *after != *before {
		t.Errorf("stats changed: %+v -> %+v", *before, *after)
	}
	if checksum(t, path) != sumBefore {
		t.Error("database file changed after an empty batch")
	}
	if svc.Last() != first {
		t.Error("empty batch should keep the previous result published")
	}
}

func TestRunPassUnreachable(t *testing.T) {
	ctx := context.Background()
	svc, database, _ := setup(t, map[string]*models.DeviceData{"10.0.0.1": light(t)})

	result, err := svc.RunPass(ctx, []models.DiscoveryRecord{
		record(3000, "10.0.0.1"),
		record(4000, "10.0.0.9", "fe80::9"),
	})
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if result.Unreachable != 1 || len(result.Devices) != 1 {
		t.Errorf("unreachable = %d, devices = %d, want 1, 1", result.Unreachable, len(result.Devices))
	}

	devices, err := db.ListDevices(ctx, database)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].Port != 3000 {
		t.Errorf("stored devices = %+v, want only port 3000", devices)
	}

	stats, err := db.GetStats(ctx, database)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Addresses != 1 {
		t.Errorf("addresses = %d, want 1", stats.Addresses)
	}
}

func TestRunPassSkipsRecordsWithoutAddresses(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{manifests: map[string]*models.DeviceData{"10.0.0.1": light(t)}}

	database, err := db.InitDatabase(filepath.Join(t.TempDir(), "devices.db"))
	if err != nil {
		t.Fatalf("InitDatabase() error = %v", err)
	}
	defer database.Close()
	svc := New(database, nil, fetcher, Options{}, nil)

	result, err := svc.RunPass(ctx, []models.DiscoveryRecord{record(3000, "10.0.0.1"), record(5000)})
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if result.Skipped != 1 || len(result.Devices) != 1 {
		t.Errorf("skipped = %d, devices = %d, want 1, 1", result.Skipped, len(result.Devices))
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
}

func TestRunPassReplacesPreviousDevices(t *testing.T) {
	ctx := context.Background()
	svc, database, _ := setup(t, map[string]*models.DeviceData{
		"10.0.0.1": light(t),
		"10.0.0.2": light(t),
	})

	if _, err := svc.RunPass(ctx, []models.DiscoveryRecord{record(3000, "10.0.0.1")}); err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if _, err := svc.RunPass(ctx, []models.DiscoveryRecord{record(4000, "10.0.0.2")}); err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	devices, err := db.ListDevices(ctx, database)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].Port != 4000 {
		t.Errorf("stored devices = %+v, want only port 4000", devices)
	}
}

func TestRunPassIsolatesStoreFailures(t *testing.T) {
	ctx := context.Background()

	// Bypasses validation: the input has no datatype and cannot be stored.
	broken := &models.DeviceData{
		Kind: models.KindLight,
		Routes: []models.RouteConfig{{
			RestKind: models.RestPut,
			Data:     models.RouteData{Name: "/on", Inputs: []models.Input{{Name: "x"}}},
		}},
	}
	svc, database, _ := setup(t, map[string]*models.DeviceData{
		"10.0.0.1": broken,
		"10.0.0.2": light(t),
	})

	result, err := svc.RunPass(ctx, []models.DiscoveryRecord{
		record(3000, "10.0.0.1"),
		record(4000, "10.0.0.2"),
	})
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if result.Failed != 1 || len(result.Devices) != 1 {
		t.Errorf("failed = %d, devices = %d, want 1, 1", result.Failed, len(result.Devices))
	}

	stats, err := db.GetStats(ctx, database)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Devices != 1 || stats.Routes != 2 {
		t.Errorf("stats = %+v, want 1 device with 2 routes", *stats)
	}
}

func TestDiscoverStaticSource(t *testing.T) {
	ctx := context.Background()

	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/manifest" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(lightManifest))
	}))
	defer device.Close()

	_, port, err := net.SplitHostPort(device.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}

	dir := t.TempDir()
	devicesFile := filepath.Join(dir, "devices.yaml")
	yaml := fmt.Sprintf(`devices:
  - instance: kitchen
    port: %s
    path: manifest
    addresses: [127.0.0.1]
    properties:
      room: kitchen
`, port)
	if err := os.WriteFile(devicesFile, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	database, err := db.InitDatabase(filepath.Join(dir, "devices.db"))
	if err != nil {
		t.Fatalf("InitDatabase() error = %v", err)
	}
	defer database.Close()

	svc := New(database, NewStaticSource(devicesFile), client.New(), Options{}, nil)
	defer svc.Stop()

	result, err := svc.Discover(ctx)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(result.Devices) != 1 {
		t.Fatalf("len(Devices) = %d, want 1", len(result.Devices))
	}

	d := result.Devices[0]
	if d.Data.Kind != models.KindLight {
		t.Errorf("Kind = %s, want %s", d.Data.Kind, models.KindLight)
	}
	if d.Properties["room"] != "kitchen" {
		t.Errorf("Properties = %v", d.Properties)
	}

	props, err := db.GetProperties(ctx, database, d.Metadata.ID)
	if err != nil {
		t.Fatalf("GetProperties() error = %v", err)
	}
	if props["room"] != "kitchen" {
		t.Errorf("stored properties = %v", props)
	}
}

func TestDiscoverWithoutSource(t *testing.T) {
	svc, _, _ := setup(t, nil)
	if _, err := svc.Discover(context.Background()); err == nil {
		t.Error("Discover() without a source should fail")
	}
}

func TestRunRejectsNonPositiveInterval(t *testing.T) {
	svc, _, _ := setup(t, nil)

	for _, interval := range []time.Duration{0, -time.Second} {
		err := svc.Run(context.Background(), interval)
		if !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("Run(%s) error = %v, want %v", interval, err, ErrInvalidInterval)
		}
	}
	if svc.Last() != nil {
		t.Error("Run() with an invalid interval should not run a pass")
	}
}

func TestParseStaticDevices(t *testing.T) {
	records, err := ParseStaticDevices([]byte(`devices:
  - port: 8080
    addresses: ["192.168.1.20", "fe80::1"]
  - port: 8081
    scheme: https
`))
	if err != nil {
		t.Fatalf("ParseStaticDevices() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if len(records[0].Addresses) != 2 || !records[0].Addresses[1].Equal(net.ParseIP("fe80::1")) {
		t.Errorf("addresses = %v", records[0].Addresses)
	}
	if records[1].Scheme != "https" || len(records[1].Addresses) != 0 {
		t.Errorf("second record = %+v", records[1])
	}

	if _, err := ParseStaticDevices([]byte(`devices: [{port: 1, addresses: [not-an-ip]}]`)); err == nil {
		t.Error("ParseStaticDevices() should reject invalid addresses")
	}
}
