package fwconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogRateLimit(t *testing.T) {
	limit, err := ParseLogRateLimit("1,burst=123,rate=44")
	require.NoError(t, err)
	assert.Equal(t, LogRateLimit{Enabled: true, Rate: 44, Per: RatePerSecond, Burst: 123}, limit)

	limit, err = ParseLogRateLimit("1")
	require.NoError(t, err)
	assert.Equal(t, DefaultLogRateLimit(), limit)

	limit, err = ParseLogRateLimit("enable=0,rate=123/hour")
	require.NoError(t, err)
	assert.False(t, limit.Enabled)
	assert.Equal(t, int64(123), limit.Rate)
	assert.Equal(t, RatePerHour, limit.Per)

	for _, invalid := range []string{
		"2",
		"enabled=0,rate=123",
		"enable=0,rate=123,",
		"enable=0,rate=123/proxmox",
	} {
		_, err := ParseLogRateLimit(invalid)
		assert.Error(t, err, "input %q", invalid)
	}
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("crit")
	require.NoError(t, err)
	assert.Equal(t, LogCritical, level)
	assert.Equal(t, uint8(2), level.NflogLevel())

	level, err = ParseLogLevel("nolog")
	require.NoError(t, err)
	assert.Equal(t, LogNolog, level)

	_, err = ParseLogLevel("shout")
	assert.ErrorIs(t, err, ErrBadValue)
}
