package nft

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	input []byte
	args  []string
	err   error
}

func (r *recordingRunner) RunInput(_ context.Context, input []byte, name string, args ...string) ([]byte, error) {
	r.input = input
	r.args = append([]string{name}, args...)
	return []byte("boom"), r.err
}

func TestClientApply(t *testing.T) {
	runner := &recordingRunner{}

	client := NewClient()
	client.SetRunner(runner)

	commands := NewCommands(AddTable(NewTable(FamilyInet, "t")))
	require.NoError(t, client.Apply(context.Background(), commands))

	assert.Equal(t, []string{"nft", "-j", "-f", "-"}, runner.args)
	assert.Contains(t, string(runner.input), `"nftables"`)
}

func TestClientApplyFailure(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 1")}

	client := NewClient()
	client.SetRunner(runner)

	err := client.Apply(context.Background(), NewCommands())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
