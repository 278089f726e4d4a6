// Package cmd provides the command-line interface for device-gateway.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rmrfslashbin/device-gateway/internal/mdns"
)

var (
	// Version information (set by main)
	version   string
	gitCommit string
	buildTime string

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	logOutput string
	dbPath    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "device-gateway",
	Short: "Discover smart devices and expose their controls",
	Long: `Device Gateway finds devices advertising the _ascot._tcp service over
mDNS, retrieves the capability manifest each device serves, stores it in a
local SQLite database and builds the controls used to operate the device.

Features:
  - mDNS discovery or a static device list
  - Manifest retrieval with per-address fallback
  - Hazard reporting backed by an optional catalog
  - HTTP API and an MCP server over stdio`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Setup logger for all commands
		return setupLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information from main.
func SetVersionInfo(ver, commit, build string) {
	version = ver
	gitCommit = commit
	buildTime = build
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.device-gateway.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "log output (stderr, /path/to/file, or /path/to/dir/)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "./data/devices.db", "path to SQLite database")
	rootCmd.PersistentFlags().String("static-file", "", "read devices from a YAML file instead of mDNS")
	rootCmd.PersistentFlags().Duration("window", mdns.DefaultWindow, "mDNS browse window")
	rootCmd.PersistentFlags().String("hazards-catalog", "", "path to the hazard catalog YAML")

	// Bind flags to viper
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))
	viper.BindPFlag(keyDBPath, rootCmd.PersistentFlags().Lookup("db-path"))
	viper.BindPFlag(keyDiscoveryStatic, rootCmd.PersistentFlags().Lookup("static-file"))
	viper.BindPFlag(keyDiscoveryWindow, rootCmd.PersistentFlags().Lookup("window"))
	viper.BindPFlag(keyHazardsCatalog, rootCmd.PersistentFlags().Lookup("hazards-catalog"))

	setDefaults()

	// Set environment variable prefix
	viper.SetEnvPrefix("GATEWAY")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".device-gateway" (without extension)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".device-gateway")
	}

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("using config file", "file", viper.ConfigFileUsed())
	}
}
