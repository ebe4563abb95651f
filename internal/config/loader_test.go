package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxfw.dev/proxfw/internal/inventory"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "cluster.fw"), "[OPTIONS]\nenable: 1\n")
	writeFile(t, filepath.Join(dir, "host.fw"), "[OPTIONS]\nnftables: 1\n")

	writeFile(t, filepath.Join(dir, "guests", "100.fw"), "[OPTIONS]\nenable: 1\n")
	writeFile(t, filepath.Join(dir, "guests", "100.conf"),
		"rootfs: local-lvm:vm-100-disk-0,size=1G\nnet0: name=eth0,bridge=vmbr0,firewall=1,hwaddr=BC:24:11:47:83:11,type=veth\n")

	writeFile(t, filepath.Join(dir, "guests", "101.fw"), "[OPTIONS]\nenable: 1\n")
	writeFile(t, filepath.Join(dir, "guests", "101.conf"),
		"net0: virtio=BC:24:11:47:83:12,bridge=vmbr0,firewall=1\n")

	writeFile(t, filepath.Join(dir, "sdn", "running-config.json"),
		`{"vnets":{"ids":{"vnet0":{"zone":"zone0"}}},"zones":{"ids":{"zone0":{"type":"simple"}}}}`)
	writeFile(t, filepath.Join(dir, "sdn", "vnet0.fw"),
		"[OPTIONS]\nenable: 1\n")

	writeFile(t, filepath.Join(dir, "ipam.db"),
		`{"vnets":{"vnet0":{"subnets":{"10.0.0.0/24":{"ips":{"10.0.0.2":{"mac":"BC:24:11:47:83:12"}}}}}}}`)

	return dir
}

func TestSnapshot(t *testing.T) {
	dir := testTree(t)

	cfg := Default()
	cfg.ConfigDir = dir
	cfg.DisableSentinel = filepath.Join(dir, "force-disable")

	loader := NewLoader(cfg)
	input, err := loader.Snapshot()
	require.NoError(t, err)

	assert.False(t, input.Disabled)
	assert.True(t, input.Cluster.IsEnabled())
	assert.True(t, input.Host.Nftables())

	require.Len(t, input.Guests, 2)
	assert.Equal(t, inventory.GuestCt, input.Guests[100].Kind)
	assert.Equal(t, inventory.GuestVm, input.Guests[101].Kind)
	assert.Equal(t, "veth100i0", input.Guests[100].IfaceName(0))
	assert.Equal(t, "tap101i0", input.Guests[101].IfaceName(0))

	require.Len(t, input.Vnets, 1)
	assert.True(t, input.Vnets[0].Config.IsEnabled())

	require.NotNil(t, input.Ipam)
	assert.Len(t, input.Ipam.ByMac("BC:24:11:47:83:12"), 1)
}

func TestSnapshotDisableSentinel(t *testing.T) {
	dir := testTree(t)

	cfg := Default()
	cfg.ConfigDir = dir
	cfg.DisableSentinel = filepath.Join(dir, "force-disable")
	writeFile(t, cfg.DisableSentinel, "")

	input, err := NewLoader(cfg).Snapshot()
	require.NoError(t, err)
	assert.True(t, input.Disabled)
}

func TestSnapshotMissingGuestConf(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "guests", "100.fw"), "[OPTIONS]\nenable: 1\n")

	cfg := Default()
	cfg.ConfigDir = dir
	cfg.DisableSentinel = filepath.Join(dir, "force-disable")

	_, err := NewLoader(cfg).Snapshot()
	assert.Error(t, err)
}

func TestSnapshotEmptyTree(t *testing.T) {
	cfg := Default()
	cfg.ConfigDir = t.TempDir()
	cfg.DisableSentinel = filepath.Join(cfg.ConfigDir, "force-disable")

	input, err := NewLoader(cfg).Snapshot()
	require.NoError(t, err)

	assert.Nil(t, input.Cluster)
	assert.Empty(t, input.Guests)
	assert.Empty(t, input.Vnets)
}
