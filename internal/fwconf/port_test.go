package fwconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortEntry(t *testing.T) {
	entry, err := ParsePortEntry("12345")
	require.NoError(t, err)
	assert.Equal(t, uint16(12345), entry.Port())
	assert.False(t, entry.IsRange())

	entry, err = ParsePortEntry("0:65535")
	require.NoError(t, err)
	lo, hi := entry.Range()
	assert.Equal(t, uint16(0), lo)
	assert.Equal(t, uint16(65535), hi)

	// named ports resolve through the fixed table
	entry, err = ParsePortEntry("https")
	require.NoError(t, err)
	assert.Equal(t, uint16(443), entry.Port())

	entry, err = ParsePortEntry("ssh:80")
	require.NoError(t, err)
	lo, hi = entry.Range()
	assert.Equal(t, uint16(22), lo)
	assert.Equal(t, uint16(80), hi)

	_, err = ParsePortEntry("proxmox")
	assert.ErrorIs(t, err, ErrUnknownService)

	_, err = ParsePortEntry("100:1")
	assert.ErrorIs(t, err, ErrEmptyRange)

	for _, invalid := range []string{"", "65536", "100:100000"} {
		_, err := ParsePortEntry(invalid)
		assert.Error(t, err, "input %q", invalid)
	}
}

func TestParsePortList(t *testing.T) {
	list, err := ParsePortList("12345,0:65535,1337,ssh:80,https")
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, uint16(12345), list[0].Port())
	assert.Equal(t, uint16(443), list[4].Port())

	for _, invalid := range []string{"", "0:1337,", "70000", "qweasd", "0::1337"} {
		_, err := ParsePortList(invalid)
		assert.Error(t, err, "input %q", invalid)
	}
}
