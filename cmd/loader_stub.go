//go:build !linux

package cmd

import (
	"proxfw.dev/proxfw/internal/config"
)

func newLoader(cfg *config.Config) *config.Loader {
	return config.NewLoader(cfg)
}
