// device-gateway discovers smart devices on the local network and exposes
// the controls built from their capability manifests.
package main

import (
	"fmt"
	"os"

	"github.com/rmrfslashbin/device-gateway/internal/cmd"
)

// Build information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, gitCommit, buildTime)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
