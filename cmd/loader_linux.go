//go:build linux

package cmd

import (
	"proxfw.dev/proxfw/internal/config"
	"proxfw.dev/proxfw/internal/inventory"
)

func newLoader(cfg *config.Config) *config.Loader {
	loader := config.NewLoader(cfg)
	loader.HostAddrs = inventory.NetlinkHostAddresses{}
	return loader
}
