package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rmrfslashbin/device-gateway/internal/api"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API serving the discovered devices and their controls.

With --interval the gateway runs a discovery pass at startup and then
periodically. Without it passes only run on PUT /api/v1/discover.

Environment Variables:
  GATEWAY_API_LISTEN          - Listen address (default :8080)
  GATEWAY_DISCOVERY_INTERVAL  - Discovery interval (e.g. 5m, 0 disables)
  GATEWAY_DB_PATH             - Path to SQLite database
  GATEWAY_HAZARDS_CATALOG     - Path to the hazard catalog YAML
  GATEWAY_LOG_LEVEL           - Log level (debug, info, warn, error)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gw, err := openGateway(logger)
		if err != nil {
			return err
		}
		defer gw.Close()

		srv, err := api.New(api.Deps{
			Listen:    viper.GetString(keyAPIListen),
			Discovery: gw.discovery,
			DB:        gw.db,
			Catalog:   gw.catalog,
			Logger:    logger,
			Version:   version,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}

		interval := viper.GetDuration(keyDiscoveryInterval)
		done := make(chan error, 1)
		if interval > 0 {
			logger.Info("periodic discovery enabled", "interval", interval.String())
			go func() { done <- gw.discovery.Run(ctx, interval) }()
		} else {
			close(done)
		}

		logger.Info("gateway ready",
			"version", version,
			"commit", gitCommit,
			"address", srv.Addr(),
		)

		<-ctx.Done()
		logger.Info("shutdown requested")

		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("discovery loop stopped", "error", err)
		}
		return srv.Close()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Serve-specific flags
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("interval", 0, "run discovery periodically (0 disables)")

	// Bind flags to viper
	viper.BindPFlag(keyAPIListen, serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag(keyDiscoveryInterval, serveCmd.Flags().Lookup("interval"))
}
