// Package cmd implements the proxfw subcommands.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"proxfw.dev/proxfw/internal/compiler"
	"proxfw.dev/proxfw/internal/config"
	"proxfw.dev/proxfw/internal/logging"
)

func setupLogging(cfg *config.Config) {
	logging.Setup(logging.Config{
		Level: logging.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
}

func loadSnapshot(configFile string) (*config.Config, *compiler.Input, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	setupLogging(cfg)

	loader := newLoader(cfg)

	input, err := loader.Snapshot()
	if err != nil {
		return nil, nil, err
	}

	return cfg, input, nil
}

// RunCompile compiles the current config tree and prints the nftables
// JSON document to stdout.
func RunCompile(configFile string, pretty bool) error {
	_, input, err := loadSnapshot(configFile)
	if err != nil {
		return err
	}

	commands, err := compiler.New(input).Compile()
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	if pretty {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(commands)
}

// RunCheck validates the config tree by compiling it and reports the
// outcome without touching the kernel.
func RunCheck(configFile string) error {
	_, input, err := loadSnapshot(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	commands, err := compiler.New(input).Compile()
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Printf("Configuration valid!\n")
	fmt.Printf("Guests: %d\n", len(input.Guests))
	fmt.Printf("VNets: %d\n", len(input.Vnets))
	fmt.Printf("Commands: %d\n", commands.Len())

	return nil
}
