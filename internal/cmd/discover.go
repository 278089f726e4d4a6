package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rmrfslashbin/device-gateway/internal/controls"
	"github.com/rmrfslashbin/device-gateway/internal/discovery"
	"github.com/rmrfslashbin/device-gateway/internal/hazards"
)

var outputFormat string

// discoverCmd runs a single discovery pass.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one discovery pass",
	Long: `Browse for devices, retrieve their manifests and rebuild the device
database. The result of the pass is printed on stdout.

Example:
  device-gateway discover --db-path ./data/devices.db --output text
  device-gateway discover --static-file ./devices.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		gw, err := openGateway(logger)
		if err != nil {
			return err
		}
		defer gw.Close()

		logger.Info("starting discovery",
			"service", viper.GetString(keyDiscoveryService),
			"window", viper.GetDuration(keyDiscoveryWindow).String(),
		)

		result, err := gw.discovery.Discover(cmd.Context())
		if err != nil {
			return err
		}

		switch outputFormat {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		case "text":
			return writeResultText(cmd.OutOrStdout(), result, gw.catalog)
		default:
			return fmt.Errorf("invalid output format: %s (must be json or text)", outputFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "output format (json, text)")
}

// writeResultText prints a human readable summary of a pass.
func writeResultText(w io.Writer, result *discovery.PassResult, catalog *hazards.Catalog) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Pass %s (%s)\n", result.ID, result.Duration.Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Discovered: %d  Stored: %d  Skipped: %d  Unreachable: %d  Failed: %d\n",
		result.Discovered, len(result.Devices), result.Skipped, result.Unreachable, result.Failed))

	for _, d := range result.Devices {
		sb.WriteString(fmt.Sprintf("\nDevice %d: %s (port %d)\n", d.Metadata.ID, d.Data.Kind, d.Metadata.Port))
		for _, a := range d.Addresses {
			state := "unreachable"
			if a.Reachable {
				state = "ok"
			}
			sb.WriteString(fmt.Sprintf("  %s [%s]\n", a.Request, state))
		}
		for _, b := range d.Controls.Buttons {
			sb.WriteString(fmt.Sprintf("  button %q", b.Label))
			if b.HasState {
				sb.WriteString(" (with inputs)")
			}
			sb.WriteString("\n")
		}
		for _, c := range d.Controls.CheckBoxes {
			sb.WriteString(fmt.Sprintf("  checkbox %q checked=%t\n", c.Name, c.Checked))
		}
		for _, s := range d.Controls.SlidersU64 {
			sb.WriteString(fmt.Sprintf("  slider %q %d..%d step %d = %d\n", s.Name, s.Min, s.Max, s.Step, s.Value))
		}
		for _, s := range d.Controls.SlidersF64 {
			sb.WriteString(fmt.Sprintf("  slider %q %g..%g step %g = %g\n", s.Name, s.Min, s.Max, s.Step, s.Value))
		}
		if d.Data.MainRoute != "" {
			sb.WriteString(fmt.Sprintf("  main route: %s\n", controls.CleanRouteName(d.Data.MainRoute)))
		}
	}

	if len(result.Hazards) > 0 {
		sb.WriteString("\nHazards:\n")
		for _, h := range catalog.Describe(result.Hazards) {
			sb.WriteString(fmt.Sprintf("  %d %s\n", h.ID, h.Name))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
