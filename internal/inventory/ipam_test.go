package inventory

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ipamExample = `{
  "vnets": {
    "vnet0": {
      "subnets": {
        "10.0.0.0/24": {
          "ips": {
            "10.0.0.2": {"mac": "bc:24:11:47:83:11", "vmid": "100"},
            "10.0.0.1": {"gateway": true}
          }
        },
        "fd00::/64": {
          "ips": {
            "fd00::2": {"mac": "bc:24:11:47:83:11", "vmid": "100"}
          }
        }
      }
    }
  }
}`

func TestParseIpam(t *testing.T) {
	ipam, err := ParseIpam(strings.NewReader(ipamExample))
	require.NoError(t, err)

	byMac := ipam.ByMac("BC:24:11:47:83:11")
	require.Len(t, byMac, 2)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), byMac[0])
	assert.Equal(t, netip.MustParseAddr("fd00::2"), byMac[1])

	// lookups are case-insensitive on the MAC
	assert.Len(t, ipam.ByMac("bc:24:11:47:83:11"), 2)

	byVnet := ipam.ByVnet("vnet0")
	require.Len(t, byVnet, 3)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), byVnet[0])

	assert.Empty(t, ipam.ByVnet("nope"))
	assert.Empty(t, EmptyIpam().ByMac("bc:24:11:47:83:11"))
}

func TestParseSdnConfig(t *testing.T) {
	const running = `{
	  "vnets": {"ids": {"vnet0": {"zone": "zone0"}, "vnet1": {"zone": "ext"}}},
	  "zones": {"ids": {"zone0": {"type": "simple"}, "ext": {"type": "vlan", "bridge": "vmbr1"}}}
	}`

	vnets, err := ParseSdnConfig(strings.NewReader(running))
	require.NoError(t, err)
	require.Len(t, vnets, 2)

	assert.Equal(t, "vnet0", vnets[0].Name)
	assert.Equal(t, "vnet0", vnets[0].Bridge)
	assert.Equal(t, "zone0", vnets[0].Zone)

	assert.Equal(t, "vnet1", vnets[1].Name)
	assert.Equal(t, "vmbr1", vnets[1].Bridge)
}
