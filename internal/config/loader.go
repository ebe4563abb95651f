package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"proxfw.dev/proxfw/internal/compiler"
	"proxfw.dev/proxfw/internal/fwconf"
	"proxfw.dev/proxfw/internal/inventory"
	"proxfw.dev/proxfw/internal/logging"
)

// Loader reads the on-disk config tree into a compiler input snapshot.
type Loader struct {
	cfg *Config
	log *logging.Logger

	// HostAddrs supplies the management networks; set by the caller
	// on platforms that can enumerate interfaces.
	HostAddrs inventory.HostAddressProvider
}

func NewLoader(cfg *Config) *Loader {
	return &Loader{cfg: cfg, log: logging.Default().WithComponent("loader")}
}

// readOptional returns nil without error when the file is absent.
func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Snapshot builds one immutable input snapshot from fresh reads of the
// config tree.
func (l *Loader) Snapshot() (*compiler.Input, error) {
	input := &compiler.Input{
		Guests:    map[inventory.Vmid]*inventory.Guest{},
		Lenient:   l.cfg.Lenient,
		HostAddrs: l.HostAddrs,
	}

	if _, err := os.Stat(l.cfg.DisableSentinel); err == nil {
		input.Disabled = true
	}

	if data, err := readOptional(filepath.Join(l.cfg.ConfigDir, "cluster.fw")); err != nil {
		return nil, err
	} else if data != nil {
		cluster, err := fwconf.ParseClusterConfig(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		input.Cluster = cluster
	}

	if data, err := readOptional(filepath.Join(l.cfg.ConfigDir, "host.fw")); err != nil {
		return nil, err
	} else if data != nil {
		host, err := fwconf.ParseHostConfig(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		input.Host = host
	}

	if err := l.loadGuests(input); err != nil {
		return nil, err
	}

	if err := l.loadSdn(input); err != nil {
		return nil, err
	}

	if data, err := readOptional(filepath.Join(l.cfg.ConfigDir, "ipam.db")); err != nil {
		return nil, err
	} else if data != nil {
		ipam, err := inventory.ParseIpam(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		input.Ipam = ipam
	}

	return input, nil
}

// loadGuests pairs every guests/<vmid>.fw with its <vmid>.conf. Guests
// without a firewall config are skipped entirely.
func (l *Loader) loadGuests(input *compiler.Input) error {
	guestDir := filepath.Join(l.cfg.ConfigDir, "guests")

	entries, err := os.ReadDir(guestDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", guestDir, err)
	}

	for _, entry := range entries {
		name, isFw := strings.CutSuffix(entry.Name(), ".fw")
		if !isFw || entry.IsDir() {
			continue
		}

		vmid, err := inventory.ParseVmid(name)
		if err != nil {
			l.log.Warn("skipping guest firewall config with non-numeric name", "file", entry.Name())
			continue
		}

		fwData, err := os.ReadFile(filepath.Join(guestDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading guest #%s firewall config: %w", vmid, err)
		}

		confData, err := readOptional(filepath.Join(guestDir, name+".conf"))
		if err != nil {
			return err
		}
		if confData == nil {
			return fmt.Errorf("guest #%s has a firewall config but no guest config", vmid)
		}

		guestCfg, err := fwconf.ParseGuestConfig(bytes.NewReader(fwData))
		if err != nil {
			return fmt.Errorf("guest #%s: %w", vmid, err)
		}

		network, err := inventory.ParseNetworkConfig(bytes.NewReader(confData))
		if err != nil {
			return fmt.Errorf("guest #%s: %w", vmid, err)
		}

		input.Guests[vmid] = &inventory.Guest{
			Vmid:    vmid,
			Kind:    guestKind(confData),
			Config:  guestCfg,
			Network: network,
		}
	}

	return nil
}

// guestKind distinguishes containers from VMs by the rootfs key only
// container configs carry.
func guestKind(conf []byte) inventory.GuestKind {
	for _, line := range strings.Split(string(conf), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "rootfs:") {
			return inventory.GuestCt
		}
	}
	return inventory.GuestVm
}

// loadSdn reads the SDN running config plus per-VNet firewall configs.
func (l *Loader) loadSdn(input *compiler.Input) error {
	sdnDir := filepath.Join(l.cfg.ConfigDir, "sdn")

	data, err := readOptional(filepath.Join(sdnDir, "running-config.json"))
	if err != nil || data == nil {
		return err
	}

	vnets, err := inventory.ParseSdnConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}

	for _, vnet := range vnets {
		fwData, err := readOptional(filepath.Join(sdnDir, vnet.Name+".fw"))
		if err != nil {
			return err
		}
		if fwData == nil {
			continue
		}

		cfg, err := fwconf.ParseVnetConfig(bytes.NewReader(fwData))
		if err != nil {
			return fmt.Errorf("vnet %q: %w", vnet.Name, err)
		}
		vnet.Config = cfg
	}

	input.Vnets = vnets
	return nil
}
