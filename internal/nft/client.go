package nft

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Runner executes the nft binary with a command document on stdin.
// It exists so tests can substitute the real binary.
type Runner interface {
	RunInput(ctx context.Context, input []byte, name string, args ...string) ([]byte, error)
}

// ExecRunner runs the real binary.
type ExecRunner struct{}

func (ExecRunner) RunInput(ctx context.Context, input []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return output.Bytes(), fmt.Errorf("%s: %w", name, err)
	}

	return output.Bytes(), nil
}

// Client applies command documents through `nft -j -f -`. The kernel
// executes the whole document as one transaction, so a failed apply
// leaves the previous ruleset intact.
type Client struct {
	runner Runner
}

func NewClient() *Client {
	return &Client{runner: ExecRunner{}}
}

// SetRunner replaces the process runner (tests).
func (c *Client) SetRunner(runner Runner) {
	c.runner = runner
}

// Apply runs one command document atomically.
func (c *Client) Apply(ctx context.Context, commands *Commands) error {
	payload, err := commands.Marshal()
	if err != nil {
		return fmt.Errorf("marshalling ruleset: %w", err)
	}

	output, err := c.runner.RunInput(ctx, payload, "nft", "-j", "-f", "-")
	if err != nil {
		return fmt.Errorf("applying ruleset: %w\noutput: %s", err, output)
	}

	return nil
}

// ApplyAll applies several documents in order, stopping at the first
// failure.
func (c *Client) ApplyAll(ctx context.Context, documents []*Commands) error {
	for _, document := range documents {
		if err := c.Apply(ctx, document); err != nil {
			return err
		}
	}
	return nil
}
