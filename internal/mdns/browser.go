// Package mdns discovers devices advertised over multicast DNS.
package mdns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

const (
	// DefaultService is the service type advertised by devices.
	DefaultService = "_ascot._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultWindow is how long a browse collects answers.
	DefaultWindow = time.Second
)

// ErrStopped is returned by Browse when the browser is not running.
var ErrStopped = errors.New("mdns browser stopped")

// Browser collects service entries for a fixed window per browse.
type Browser struct {
	service string
	domain  string
	window  time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewBrowser creates a browser for service in domain.
func NewBrowser(service, domain string, window time.Duration, logger *slog.Logger) *Browser {
	if service == "" {
		service = DefaultService
	}
	if domain == "" {
		domain = DefaultDomain
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{
		service: service,
		domain:  domain,
		window:  window,
		logger:  logger,
	}
}

// Start marks the browser as running.
func (b *Browser) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	b.logger.Debug("mdns browser started", "service", b.service, "domain", b.domain)
	return nil
}

// Stop cancels a browse in progress and stops the browser.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.running = false
}

// Browse listens for the configured window and returns one record per
// resolved service instance.
func (b *Browser) Browse(ctx context.Context) ([]models.DiscoveryRecord, error) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil, ErrStopped
	}
	ctx, cancel := context.WithTimeout(ctx, b.window)
	b.cancel = cancel
	b.mu.Unlock()
	defer cancel()

	// A resolver serves a single browse.
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, b.service, b.domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse %s: %w", b.service, err)
	}

	var records []models.DiscoveryRecord
	seen := make(map[string]struct{})
	for entry := range entries {
		if _, ok := seen[entry.Instance]; ok {
			continue
		}
		rec, ok := recordFromEntry(entry)
		if !ok {
			b.logger.Warn("ignoring service entry", "instance", entry.Instance, "port", entry.Port)
			continue
		}
		seen[entry.Instance] = struct{}{}
		b.logger.Debug("resolved device", "instance", rec.Instance, "port", rec.Port, "addresses", len(rec.Addresses))
		records = append(records, rec)
	}

	return records, nil
}

// recordFromEntry converts a resolved entry. TXT records of the form
// key=value become properties; "scheme" and "path" override the defaults.
func recordFromEntry(entry *zeroconf.ServiceEntry) (models.DiscoveryRecord, bool) {
	if entry.Port <= 0 || entry.Port > 65535 {
		return models.DiscoveryRecord{}, false
	}

	rec := models.DiscoveryRecord{
		Instance:   entry.Instance,
		Port:       uint16(entry.Port),
		Properties: ParseText(entry.Text),
	}
	rec.Scheme = rec.Properties["scheme"]
	rec.Path = rec.Properties["path"]

	rec.Addresses = append(rec.Addresses, entry.AddrIPv4...)
	rec.Addresses = append(rec.Addresses, entry.AddrIPv6...)
	rec.Normalize()

	return rec, true
}

// ParseText parses TXT record strings into a property map. Entries without
// '=' are kept as keys with an empty value.
func ParseText(text []string) map[string]string {
	props := make(map[string]string, len(text))
	for _, t := range text {
		if t == "" {
			continue
		}
		key, value, _ := strings.Cut(t, "=")
		props[key] = value
	}
	return props
}
