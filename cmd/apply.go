package cmd

import (
	"context"

	"proxfw.dev/proxfw/internal/compiler"
	"proxfw.dev/proxfw/internal/logging"
	"proxfw.dev/proxfw/internal/nft"
)

// RunApply compiles the current config tree and loads the result into
// the kernel in one transaction.
func RunApply(configFile string) error {
	_, input, err := loadSnapshot(configFile)
	if err != nil {
		return err
	}

	commands, err := compiler.New(input).Compile()
	if err != nil {
		return err
	}

	log := logging.Default().WithComponent("apply")
	log.Info("applying ruleset", "commands", commands.Len())

	return nft.NewClient().Apply(context.Background(), commands)
}
