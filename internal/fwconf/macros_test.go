package fwconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacroCatalogCompiles(t *testing.T) {
	for name := range macroCatalog {
		macro, ok := GetMacro(name)
		require.True(t, ok, "macro %s", name)
		assert.NotEmpty(t, macro.Fragments, "macro %s", name)
	}
}

func TestMacroDNS(t *testing.T) {
	macro, ok := GetMacro("DNS")
	require.True(t, ok)
	require.Len(t, macro.Fragments, 2)

	assert.Equal(t, ProtoUdp, macro.Fragments[0].Proto.Kind)
	assert.Equal(t, uint16(53), macro.Fragments[0].Proto.Ports.Dport[0].Port())
	assert.Equal(t, ProtoTcp, macro.Fragments[1].Proto.Kind)

	_, restricted := macro.Fragments[0].FragmentFamily()
	assert.False(t, restricted)
}

func TestMacroFamilyVariants(t *testing.T) {
	ping, ok := GetMacro("Ping")
	require.True(t, ok)
	require.Len(t, ping.Fragments, 2)

	family, ok := ping.Fragments[0].FragmentFamily()
	require.True(t, ok)
	assert.Equal(t, FamilyV4, family)

	family, ok = ping.Fragments[1].FragmentFamily()
	require.True(t, ok)
	assert.Equal(t, FamilyV6, family)

	dhcpv6, ok := GetMacro("DHCPv6")
	require.True(t, ok)
	require.Len(t, dhcpv6.Fragments, 1)

	family, ok = dhcpv6.Fragments[0].FragmentFamily()
	require.True(t, ok)
	assert.Equal(t, FamilyV6, family)
	assert.Equal(t, uint16(547), dhcpv6.Fragments[0].Proto.Ports.Sport[0].Port())
	assert.Equal(t, uint16(546), dhcpv6.Fragments[0].Proto.Ports.Dport[0].Port())
}

func TestMacroUnknown(t *testing.T) {
	_, ok := GetMacro("NoSuchMacro")
	assert.False(t, ok)
}

func TestCtHelperCatalog(t *testing.T) {
	helper, ok := GetCtHelper("ftp")
	require.True(t, ok)
	assert.Equal(t, uint16(21), helper.TcpPort)
	assert.Equal(t, "helper-ftp-tcp", helper.TcpHelperName())

	_, ok = GetCtHelper("quic")
	assert.False(t, ok)
}
