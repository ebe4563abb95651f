package inventory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetworkDevice(t *testing.T) {
	device, err := ParseNetworkDevice("virtio=AA:AA:AA:17:19:81,bridge=public,firewall=1,queues=4")
	require.NoError(t, err)
	assert.Equal(t, ModelVirtIO, device.Model)
	assert.Equal(t, "AA:AA:AA:17:19:81", device.Mac.String())
	assert.Equal(t, "public", device.Bridge)
	assert.True(t, device.Firewall)

	device, err = ParseNetworkDevice("model=virtio,macaddr=AA:AA:AA:17:19:81,bridge=public,firewall=1")
	require.NoError(t, err)
	assert.Equal(t, ModelVirtIO, device.Model)

	device, err = ParseNetworkDevice("name=eth0,bridge=public,firewall=0,hwaddr=AA:AA:AA:E2:3E:24,ip=dhcp,type=veth")
	require.NoError(t, err)
	assert.Equal(t, ModelVeth, device.Model)
	assert.False(t, device.Firewall)
	assert.Nil(t, device.IP)

	device, err = ParseNetworkDevice("virtio=BC:24:11:49:8D:75,bridge=vmbr0,tag=20,ip=10.0.0.5/24,ip6=fd00::5/64,altname=enp6s18")
	require.NoError(t, err)
	assert.Equal(t, 20, device.Tag)
	require.NotNil(t, device.IP)
	assert.Equal(t, "10.0.0.5/24", device.IP.String())
	require.NotNil(t, device.IP6)
	assert.Equal(t, "enp6s18", device.Altname)

	for _, invalid := range []string{
		"model=virtio",
		"bridge=public,firewall=0",
		"",
		"name=eth0,bridge=public,firewall=0,hwaddr=AA:AA:AG:E2:3E:24,ip=dhcp,type=veth",
	} {
		_, err := ParseNetworkDevice(invalid)
		assert.Error(t, err, "input %q", invalid)
	}
}

func TestParseNetworkConfig(t *testing.T) {
	const guestConf = `
arch: amd64
cores: 1
hostname: dnsct
memory: 512
net0: name=eth0,bridge=data,firewall=1,hwaddr=BC:24:11:47:83:11,ip=dhcp,type=veth
net2: name=eth0,bridge=data,firewall=0,hwaddr=BC:24:11:47:83:12,ip=123.123.123.123/24,type=veth
net5: name=eth0,bridge=data,firewall=1,hwaddr=BC:24:11:47:83:13,ip6=fd80::1/64,type=veth
ostype: alpine
rootfs: local-lvm:vm-10001-disk-0,size=1G

[snapshot]
net3: name=eth0,bridge=data,firewall=1,hwaddr=BC:24:11:47:83:14,type=veth
`

	cfg, err := ParseNetworkConfig(strings.NewReader(guestConf))
	require.NoError(t, err)

	// the snapshot section's net3 must not leak into the live config
	assert.Equal(t, []int{0, 2, 5}, cfg.Indices())

	device, ok := cfg.Device(2)
	require.True(t, ok)
	assert.False(t, device.Firewall)
	require.NotNil(t, device.IP)

	for _, invalid := range []string{
		"netqwe: name=eth0,bridge=data,firewall=1,hwaddr=BC:24:11:47:83:11,type=veth",
		"net33: name=eth0,bridge=data,firewall=1,hwaddr=BC:24:11:47:83:11,type=veth",
	} {
		_, err := ParseNetworkConfig(strings.NewReader(invalid))
		assert.Error(t, err, "input %q", invalid)
	}

	// "net0 name=..." without a colon is ignored rather than parsed
	cfg, err = ParseNetworkConfig(strings.NewReader("net0 name=eth0\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Indices())
}

func TestGuestIfaceNames(t *testing.T) {
	cfg, err := ParseNetworkConfig(strings.NewReader("net0: virtio=AA:AA:AA:17:19:81,bridge=vmbr0\n"))
	require.NoError(t, err)

	vm := &Guest{Vmid: 101, Kind: GuestVm, Network: cfg}
	assert.Equal(t, "tap101i0", vm.IfaceName(0))

	ct := &Guest{Vmid: 100, Kind: GuestCt, Network: cfg}
	assert.Equal(t, "veth100i0", ct.IfaceName(0))

	name, err := vm.IfaceNameByKey("net0")
	require.NoError(t, err)
	assert.Equal(t, "tap101i0", name)

	_, err = vm.IfaceNameByKey("eth0")
	assert.Error(t, err)

	assert.True(t, vm.HasFirewallNic())
}

func TestParseVmid(t *testing.T) {
	vmid, err := ParseVmid("100")
	require.NoError(t, err)
	assert.Equal(t, Vmid(100), vmid)

	_, err = ParseVmid("qwe")
	assert.Error(t, err)
}
