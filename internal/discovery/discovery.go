// Package discovery runs discovery passes: it collects devices from a
// discovery source, retrieves their manifests, rebuilds the device store
// and synthesizes the controls returned to the presentation layer.
package discovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rmrfslashbin/device-gateway/internal/controls"
	"github.com/rmrfslashbin/device-gateway/internal/db"
	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

// DefaultConcurrency is the number of devices probed at the same time.
const DefaultConcurrency = 8

var (
	// ErrNoAddresses marks a discovery record without any address.
	ErrNoAddresses = errors.New("device has no addresses")
	// ErrInvalidInterval is returned by Run for a non-positive interval.
	ErrInvalidInterval = errors.New("discovery interval must be positive")
)

// Source yields the devices currently visible on the network.
type Source interface {
	Start() error
	Browse(ctx context.Context) ([]models.DiscoveryRecord, error)
	Stop()
}

// Fetcher retrieves the manifest of a device from its ordered addresses.
// It marks failed addresses unreachable and returns nil when none answers.
type Fetcher interface {
	Fetch(ctx context.Context, addresses []models.DeviceAddress) (*models.DeviceData, int)
}

// Options configures a Service.
type Options struct {
	// Concurrency bounds how many devices are probed in parallel.
	Concurrency int
}

// PassResult summarises one discovery pass.
type PassResult struct {
	ID          string             `json:"id"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration"`
	Devices     []models.Device    `json:"devices"`
	Hazards     []models.HazardRef `json:"hazards"`
	Discovered  int                `json:"discovered"`
	Skipped     int                `json:"skipped"`
	Unreachable int                `json:"unreachable"`
	Failed      int                `json:"failed"`
}

// Device returns the device with the given id from the pass.
func (r *PassResult) Device(id int64) (models.Device, bool) {
	for _, d := range r.Devices {
		if d.Metadata.ID == id {
			return d, true
		}
	}
	return models.Device{}, false
}

// Service drives discovery passes against a database.
type Service struct {
	database *sql.DB
	source   Source
	fetcher  Fetcher
	opts     Options
	logger   *slog.Logger

	// passMu serializes passes.
	passMu sync.Mutex

	lastMu sync.RWMutex
	last   *PassResult

	started bool
}

// New creates a discovery service. source may be nil when passes are only
// run through RunPass.
func New(database *sql.DB, source Source, fetcher Fetcher, opts Options, logger *slog.Logger) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		database: database,
		source:   source,
		fetcher:  fetcher,
		opts:     opts,
		logger:   logger,
	}
}

// Start starts the discovery source.
func (s *Service) Start() error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if s.started || s.source == nil {
		return nil
	}
	if err := s.source.Start(); err != nil {
		return fmt.Errorf("failed to start discovery source: %w", err)
	}
	s.started = true
	return nil
}

// Stop stops the discovery source. A pass in progress finishes first.
func (s *Service) Stop() {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if !s.started {
		return
	}
	s.source.Stop()
	s.started = false
}

// Last returns the result of the last completed pass, or nil.
func (s *Service) Last() *PassResult {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}

// Discover browses the source and runs a pass over what it found.
func (s *Service) Discover(ctx context.Context) (*PassResult, error) {
	if s.source == nil {
		return nil, fmt.Errorf("no discovery source configured")
	}
	if err := s.Start(); err != nil {
		return nil, err
	}

	records, err := s.source.Browse(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to browse for devices: %w", err)
	}
	return s.RunPass(ctx, records)
}

// Run performs a pass immediately and then every interval until ctx is done.
// Pass errors are logged and do not stop the loop. A non-positive interval
// is rejected with ErrInvalidInterval before any pass runs.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Discover(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("discovery pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// candidate is a discovered device being probed.
type candidate struct {
	record    models.DiscoveryRecord
	meta      models.Metadata
	addresses []models.DeviceAddress
	data      *models.DeviceData
}

// RunPass runs a full pass over records. An empty batch leaves the store
// untouched. Otherwise the store is cleared and rebuilt inside a single
// transaction; each device is written under its own savepoint so that a
// store failure drops that device only.
func (s *Service) RunPass(ctx context.Context, records []models.DiscoveryRecord) (*PassResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	result := &PassResult{
		ID:         uuid.NewString(),
		StartedAt:  time.Now(),
		Devices:    []models.Device{},
		Hazards:    []models.HazardRef{},
		Discovered: len(records),
	}
	logger := s.logger.With("pass_id", result.ID)

	if len(records) == 0 {
		// The previous result stays published: it still matches the store.
		logger.Info("no devices discovered, keeping stored devices")
		result.Duration = time.Since(result.StartedAt)
		return result, nil
	}

	candidates := make([]*candidate, 0, len(records))
	for _, rec := range records {
		if len(rec.Addresses) == 0 {
			logger.Warn("skipping discovered device", "instance", rec.Instance, "port", rec.Port, "error", ErrNoAddresses)
			result.Skipped++
			continue
		}
		rec.Normalize()
		meta := models.Metadata{Port: rec.Port, Scheme: rec.Scheme, Path: rec.Path}
		c := &candidate{record: rec, meta: meta}
		for _, ip := range rec.Addresses {
			c.addresses = append(c.addresses, models.NewDeviceAddress(meta, ip))
		}
		candidates = append(candidates, c)
	}

	s.probe(ctx, candidates)

	// Manifests are in hand; the transaction only covers database work.
	err := db.WithTx(ctx, s.database, func(tx *sql.Tx) error {
		if err := db.ClearDatabase(ctx, tx); err != nil {
			return err
		}

		for i, c := range candidates {
			var device *models.Device
			err := db.WithSavepoint(ctx, tx, fmt.Sprintf("device_%d", i), func() error {
				var err error
				device, err = s.storeDevice(ctx, tx, c)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("failed to store device", "port", c.meta.Port, "error", err)
				result.Failed++
				continue
			}
			if device == nil {
				logger.Info("device unreachable, removed", "port", c.meta.Port, "addresses", len(c.addresses))
				result.Unreachable++
				continue
			}
			result.Devices = append(result.Devices, *device)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery pass failed: %w", err)
	}

	result.Hazards = collectHazards(result.Devices)
	result.Duration = time.Since(result.StartedAt)
	s.publish(result)

	logger.Info("discovery pass complete",
		"discovered", result.Discovered,
		"devices", len(result.Devices),
		"skipped", result.Skipped,
		"unreachable", result.Unreachable,
		"failed", result.Failed,
		"hazards", len(result.Hazards),
		"duration_ms", result.Duration.Milliseconds(),
	)

	return result, nil
}

// probe retrieves manifests for all candidates in parallel. Addresses of
// one device are always tried sequentially by the fetcher.
func (s *Service) probe(ctx context.Context, candidates []*candidate) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, c := range candidates {
		g.Go(func() error {
			c.data, _ = s.fetcher.Fetch(gctx, c.addresses)
			return nil
		})
	}

	// Workers never return an error.
	_ = g.Wait()
}

// storeDevice writes one device. It returns nil without error when the
// device produced no manifest; its freshly inserted rows are then deleted.
func (s *Service) storeDevice(ctx context.Context, q db.DBTX, c *candidate) (*models.Device, error) {
	id, err := db.InsertDevice(ctx, q, c.meta.Port, c.meta.Scheme, c.meta.Path)
	if err != nil {
		return nil, err
	}
	meta := c.meta
	meta.ID = id

	for _, addr := range c.addresses {
		if err := db.InsertAddress(ctx, q, id, addr.Address.String()); err != nil {
			return nil, err
		}
	}

	for _, key := range sortedKeys(c.record.Properties) {
		if err := db.InsertProperty(ctx, q, id, key, c.record.Properties[key]); err != nil {
			return nil, err
		}
	}

	if c.data == nil {
		if err := db.DeleteDevice(ctx, q, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	ctrls, err := controls.Persist(ctx, q, id, c.data)
	if err != nil {
		return nil, err
	}

	return &models.Device{
		Metadata:   meta,
		Addresses:  c.addresses,
		Properties: c.record.Properties,
		Data:       *c.data,
		Controls:   ctrls,
	}, nil
}

func (s *Service) publish(result *PassResult) {
	s.lastMu.Lock()
	s.last = result
	s.lastMu.Unlock()
}

// collectHazards returns the sorted set of hazards across devices.
func collectHazards(devices []models.Device) []models.HazardRef {
	seen := make(map[models.HazardRef]struct{})
	hazards := []models.HazardRef{}
	for _, d := range devices {
		for _, r := range d.Data.Routes {
			for _, h := range r.Hazards {
				if _, ok := seen[h]; ok {
					continue
				}
				seen[h] = struct{}{}
				hazards = append(hazards, h)
			}
		}
	}
	sort.Slice(hazards, func(i, j int) bool { return hazards[i] < hazards[j] })
	return hazards
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
