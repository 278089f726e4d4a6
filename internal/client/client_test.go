package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

const manifest = `{"kind": "Light", "main_route": "/toggle", "routes": [
	{"rest_kind": "Put", "hazards": [], "data": {"name": "/toggle", "stateless": true, "inputs": []}}
]}`

// address builds a DeviceAddress pointing at server.
func address(t *testing.T, server *httptest.Server) models.DeviceAddress {
	t.Helper()

	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi() error = %v", err)
	}
	meta := models.Metadata{Port: uint16(port), Scheme: "http", Path: models.DefaultPath}
	return models.NewDeviceAddress(meta, net.ParseIP(host))
}

func manifestServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != models.DefaultPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNew(t *testing.T) {
	if got := New().Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", got, DefaultTimeout)
	}
	if got := New(WithTimeout(time.Second)).Timeout(); got != time.Second {
		t.Errorf("Timeout() = %v, want 1s", got)
	}
	if got := New(WithTimeout(0)).Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout() with zero = %v, want %v", got, DefaultTimeout)
	}
}

func TestFetchFirstSuccessWins(t *testing.T) {
	var hitsA, hitsB, hitsC atomic.Int32
	a := manifestServer(t, http.StatusInternalServerError, "", &hitsA)
	b := manifestServer(t, http.StatusOK, manifest, &hitsB)
	c := manifestServer(t, http.StatusOK, manifest, &hitsC)

	addresses := []models.DeviceAddress{address(t, a), address(t, b), address(t, c)}

	data, idx := New().Fetch(context.Background(), addresses)
	if data == nil {
		t.Fatal("Fetch() returned nil data")
	}
	if idx != 1 {
		t.Errorf("Fetch() index = %d, want 1", idx)
	}
	if data.Kind != models.KindLight {
		t.Errorf("Kind = %s, want %s", data.Kind, models.KindLight)
	}

	if addresses[0].Reachable {
		t.Error("failed address A should be unreachable")
	}
	if !addresses[1].Reachable {
		t.Error("answering address B should be reachable")
	}
	if !addresses[2].Reachable {
		t.Error("untried address C should keep its reachable state")
	}

	if hitsA.Load() != 1 || hitsB.Load() != 1 || hitsC.Load() != 0 {
		t.Errorf("hits = %d/%d/%d, want 1/1/0", hitsA.Load(), hitsB.Load(), hitsC.Load())
	}
}

func TestFetchSkipsUnrelatedJSON(t *testing.T) {
	var hitsA, hitsB atomic.Int32
	a := manifestServer(t, http.StatusOK, `{"status":"ok"}`, &hitsA)
	b := manifestServer(t, http.StatusOK, manifest, &hitsB)

	addresses := []models.DeviceAddress{address(t, a), address(t, b)}

	data, idx := New().Fetch(context.Background(), addresses)
	if data == nil {
		t.Fatal("Fetch() returned nil data")
	}
	if idx != 1 {
		t.Errorf("Fetch() index = %d, want 1", idx)
	}
	if len(data.Routes) != 1 {
		t.Errorf("len(Routes) = %d, want 1", len(data.Routes))
	}
	if addresses[0].Reachable {
		t.Error("address serving unrelated JSON should be unreachable")
	}
	if hitsA.Load() != 1 || hitsB.Load() != 1 {
		t.Errorf("hits = %d/%d, want 1/1", hitsA.Load(), hitsB.Load())
	}
}

func TestFetchCancelledKeepsState(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	addresses := []models.DeviceAddress{address(t, slow)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	data, idx := New().Fetch(ctx, addresses)
	if data != nil || idx != -1 {
		t.Errorf("Fetch() = %v, %d, want nil, -1", data, idx)
	}
	if !addresses[0].Reachable {
		t.Error("address in flight at cancellation should keep its reachable state")
	}
}

func TestFetchAllFail(t *testing.T) {
	bad := manifestServer(t, http.StatusOK, `{"kind": 42}`, nil)
	missing := manifestServer(t, http.StatusNotFound, "", nil)

	addresses := []models.DeviceAddress{address(t, bad), address(t, missing)}

	data, idx := New().Fetch(context.Background(), addresses)
	if data != nil || idx != -1 {
		t.Errorf("Fetch() = %v, %d, want nil, -1", data, idx)
	}
	if models.AnyReachable(addresses) {
		t.Error("all addresses should be unreachable")
	}
}

func TestFetchManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "", ErrStatus},
		{"not found", http.StatusNotFound, "nope", ErrStatus},
		{"not json", http.StatusOK, "<html></html>", ErrDecode},
		{"invalid manifest", http.StatusOK, `{"kind": "Light", "main_route": "", "routes": [{"rest_kind": "Patch", "hazards": [], "data": {"name": "/x", "stateless": true, "inputs": []}}]}`, ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := manifestServer(t, tt.status, tt.body, nil)
			_, err := New().FetchManifest(context.Background(), address(t, server).Request)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchManifest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchManifestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := New(WithTimeout(50 * time.Millisecond))
	_, err := c.FetchManifest(context.Background(), address(t, server).Request)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("FetchManifest() error = %v, want %v", err, ErrTransport)
	}
}

func TestFetchManifestTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, maxManifestSize+10))
	}))
	defer server.Close()

	_, err := New().FetchManifest(context.Background(), address(t, server).Request)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("FetchManifest() error = %v, want %v", err, ErrDecode)
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	// Grab a free port and close it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	meta := models.Metadata{Port: uint16(port), Scheme: "http", Path: models.DefaultPath}
	addresses := []models.DeviceAddress{models.NewDeviceAddress(meta, net.ParseIP("127.0.0.1"))}

	data, idx := New(WithTimeout(time.Second)).Fetch(context.Background(), addresses)
	if data != nil || idx != -1 {
		t.Errorf("Fetch() = %v, %d, want nil, -1", data, idx)
	}
	if addresses[0].Reachable {
		t.Error("refused address should be unreachable")
	}
}
