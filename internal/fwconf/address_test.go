package fwconf

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCidr(t *testing.T) {
	cidr, err := ParseCidr("10.100.5.0/24")
	require.NoError(t, err)
	assert.Equal(t, FamilyV4, cidr.Family())
	assert.Equal(t, 24, cidr.Prefix())
	assert.True(t, cidr.Contains(netip.MustParseAddr("10.100.5.200")))
	assert.False(t, cidr.Contains(netip.MustParseAddr("10.100.6.0")))

	cidr, err = ParseCidr("192.168.100.1")
	require.NoError(t, err)
	assert.Equal(t, 32, cidr.Prefix())
	assert.True(t, cidr.IsHost())

	cidr, err = ParseCidr("abab::1/64")
	require.NoError(t, err)
	assert.Equal(t, FamilyV6, cidr.Family())
	assert.True(t, cidr.Contains(netip.MustParseAddr("abab::ffff")))
	assert.False(t, cidr.Contains(netip.MustParseAddr("abac::1")))

	// host bits are preserved for display but masked for membership
	cidr, err = ParseCidr("10.0.0.1/8")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1/8", cidr.String())
	assert.Equal(t, netip.MustParseAddr("10.0.0.0"), cidr.Masked())

	for _, invalid := range []string{
		"", "qweasd", "10.0.0.0/", "0.0.0.0/-1", "0.0.0.0/33",
		"256.256.256.256/10", "eeee::1/129", "gggg::1/64",
	} {
		_, err := ParseCidr(invalid)
		assert.ErrorIs(t, err, ErrMalformedAddress, "input %q", invalid)
	}
}

func TestParseIPEntry(t *testing.T) {
	entry, err := ParseIPEntry("192.168.0.1-192.168.99.255")
	require.NoError(t, err)
	assert.True(t, entry.IsRange())
	assert.Equal(t, FamilyV4, entry.Family())

	entry, err = ParseIPEntry("fd80::1-fd80::ffff")
	require.NoError(t, err)
	assert.True(t, entry.IsRange())
	assert.Equal(t, FamilyV6, entry.Family())

	// a degenerate range collapses to a host entry
	entry, err = ParseIPEntry("10.0.0.1-10.0.0.1")
	require.NoError(t, err)
	assert.False(t, entry.IsRange())
	assert.Equal(t, "10.0.0.1/32", entry.Cidr().String())

	_, err = ParseIPEntry("192.168.100.0-192.168.99.255")
	assert.ErrorIs(t, err, ErrEmptyRange)

	_, err = ParseIPEntry("192.168.100.0-fe80::1")
	assert.ErrorIs(t, err, ErrFamilyMismatch)

	for _, invalid := range []string{
		"", "qweasd",
		"192.168.100.0-192.168.200.0-192.168.250.0",
	} {
		_, err := ParseIPEntry(invalid)
		assert.Error(t, err, "input %q", invalid)
	}
}

func TestParseIPList(t *testing.T) {
	list, err := ParseIPList("192.168.0.1,192.168.100.0/24,172.16.0.0-172.32.255.255")
	require.NoError(t, err)
	assert.Equal(t, FamilyV4, list.Family())
	assert.Len(t, list.Entries(), 3)

	list, err = ParseIPList("fe80::1/64")
	require.NoError(t, err)
	assert.Equal(t, FamilyV6, list.Family())

	_, err = ParseIPList("192.168.0.1,fe80::1")
	assert.ErrorIs(t, err, ErrFamilyMismatch)

	_, err = ParseIPList("")
	assert.Error(t, err)

	_, err = ParseIPList("proxmox")
	assert.Error(t, err)
}

func TestParseMac(t *testing.T) {
	for _, input := range []string{"aa:aa:aa:11:22:33", "AA:BB:FF:11:22:33", "bc:24:11:AA:bb:Ef"} {
		mac, err := ParseMac(input)
		require.NoError(t, err)
		assert.Len(t, mac.String(), 17)
	}

	for _, invalid := range []string{
		"aa:aa:aa:11:22:33:aa", "AA:BB:FF:11:22", "AA:BB:GG:11:22:33", "AABBGG112233", "",
	} {
		_, err := ParseMac(invalid)
		assert.ErrorIs(t, err, ErrMalformedAddress, "input %q", invalid)
	}
}

func TestEui64LinkLocal(t *testing.T) {
	mac, err := ParseMac("BC:24:11:49:8D:75")
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("fe80::be24:11ff:fe49:8d75"), mac.Eui64LinkLocal())
}
