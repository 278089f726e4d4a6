package cmd

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/rmrfslashbin/device-gateway/internal/client"
	"github.com/rmrfslashbin/device-gateway/internal/db"
	"github.com/rmrfslashbin/device-gateway/internal/discovery"
	"github.com/rmrfslashbin/device-gateway/internal/hazards"
	"github.com/rmrfslashbin/device-gateway/internal/mdns"
)

// gateway bundles the components shared by the commands.
type gateway struct {
	db        *sql.DB
	discovery *discovery.Service
	catalog   *hazards.Catalog
}

// openGateway opens the database and wires the discovery service from the
// current configuration.
func openGateway(logger *slog.Logger) (*gateway, error) {
	path := viper.GetString(keyDBPath)
	database, err := db.InitDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	catalog, err := hazards.Load(viper.GetString(keyHazardsCatalog))
	if err != nil {
		database.Close()
		return nil, err
	}

	httpClient := client.New(
		client.WithTimeout(viper.GetDuration(keyClientTimeout)),
		client.WithLogger(logger),
	)

	svc := discovery.New(database, newSource(logger), httpClient, discovery.Options{
		Concurrency: viper.GetInt(keyClientConcurrency),
	}, logger)

	logger.Debug("gateway ready",
		"db_path", path,
		"hazards", catalog.Len(),
		"timeout", httpClient.Timeout().String(),
	)

	return &gateway{db: database, discovery: svc, catalog: catalog}, nil
}

// newSource returns the static source when a device file is configured and
// the mDNS browser otherwise.
func newSource(logger *slog.Logger) discovery.Source {
	if path := viper.GetString(keyDiscoveryStatic); path != "" {
		logger.Info("using static device list", "file", path)
		return discovery.NewStaticSource(path)
	}
	return mdns.NewBrowser(
		viper.GetString(keyDiscoveryService),
		viper.GetString(keyDiscoveryDomain),
		viper.GetDuration(keyDiscoveryWindow),
		logger,
	)
}

func (g *gateway) Close() error {
	g.discovery.Stop()
	return g.db.Close()
}
