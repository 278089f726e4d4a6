package cmd

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rmrfslashbin/device-gateway/internal/client"
	"github.com/rmrfslashbin/device-gateway/internal/discovery"
	"github.com/rmrfslashbin/device-gateway/internal/mdns"
)

// envKeyReplacer maps nested keys to env names: discovery.static_file is
// read from GATEWAY_DISCOVERY_STATIC_FILE.
var envKeyReplacer = strings.NewReplacer(".", "_")

// Config keys.
const (
	keyDBPath            = "db.path"
	keyDiscoveryService  = "discovery.service"
	keyDiscoveryDomain   = "discovery.domain"
	keyDiscoveryWindow   = "discovery.window"
	keyDiscoveryStatic   = "discovery.static_file"
	keyDiscoveryInterval = "discovery.interval"
	keyClientTimeout     = "client.timeout"
	keyClientConcurrency = "client.concurrency"
	keyAPIListen         = "api.listen"
	keyHazardsCatalog    = "hazards.catalog"
)

func setDefaults() {
	viper.SetDefault(keyDiscoveryService, mdns.DefaultService)
	viper.SetDefault(keyDiscoveryDomain, mdns.DefaultDomain)
	viper.SetDefault(keyDiscoveryWindow, mdns.DefaultWindow)
	viper.SetDefault(keyDiscoveryStatic, "")
	viper.SetDefault(keyDiscoveryInterval, time.Duration(0))
	viper.SetDefault(keyClientTimeout, client.DefaultTimeout)
	viper.SetDefault(keyClientConcurrency, discovery.DefaultConcurrency)
	viper.SetDefault(keyAPIListen, ":8080")
	viper.SetDefault(keyHazardsCatalog, "")
}
