package inventory

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"proxfw.dev/proxfw/internal/fwconf"
)

// Vmid is a guest identifier.
type Vmid uint32

// ParseVmid parses a numeric guest id.
func ParseVmid(s string) (Vmid, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not a valid vmid: %q", s)
	}
	return Vmid(id), nil
}

func (v Vmid) String() string { return strconv.FormatUint(uint64(v), 10) }

// GuestKind distinguishes VMs from containers; it determines the kernel
// interface prefix of the guest's NICs.
type GuestKind int

const (
	GuestVm GuestKind = iota
	GuestCt
)

// IfacePrefix is "tap" for VMs and "veth" for containers.
func (k GuestKind) IfacePrefix() string {
	if k == GuestCt {
		return "veth"
	}
	return "tap"
}

func (k GuestKind) String() string {
	if k == GuestCt {
		return "lxc"
	}
	return "qemu"
}

// NetworkDeviceModel is the emulated NIC model.
type NetworkDeviceModel int

const (
	ModelVirtIO NetworkDeviceModel = iota
	ModelVeth
	ModelE1000
	ModelVmxnet3
	ModelRTL8139
)

func parseModel(s string) (NetworkDeviceModel, bool) {
	switch s {
	case "virtio":
		return ModelVirtIO, true
	case "veth":
		return ModelVeth, true
	case "e1000":
		return ModelE1000, true
	case "vmxnet3":
		return ModelVmxnet3, true
	case "rtl8139":
		return ModelRTL8139, true
	}
	return 0, false
}

// NetworkDevice is one guest NIC as declared in the guest config.
type NetworkDevice struct {
	Model    NetworkDeviceModel
	Mac      fwconf.MacAddress
	Bridge   string
	Tag      int
	Firewall bool
	Altname  string

	IP  *fwconf.Cidr
	IP6 *fwconf.Cidr
}

// ParseNetworkDevice parses a netN property string like
// "virtio=AA:BB:CC:DD:EE:FF,bridge=vmbr0,firewall=1,tag=20".
func ParseNetworkDevice(s string) (NetworkDevice, error) {
	device := NetworkDevice{Firewall: true, Tag: 0}
	haveModel, haveMac := false, false

	for _, property := range strings.Split(s, ",") {
		property = strings.TrimSpace(property)
		if property == "" {
			continue
		}

		key, value, found := strings.Cut(property, "=")
		if !found || value == "" {
			continue
		}

		switch key {
		case "type", "model":
			model, ok := parseModel(value)
			if !ok {
				return NetworkDevice{}, fmt.Errorf("invalid network device model: %q", value)
			}
			device.Model = model
			haveModel = true
		case "hwaddr", "macaddr":
			mac, err := fwconf.ParseMac(value)
			if err != nil {
				return NetworkDevice{}, err
			}
			device.Mac = mac
			haveMac = true
		case "bridge":
			device.Bridge = value
		case "firewall":
			device.Firewall = value == "1"
		case "tag":
			tag, err := strconv.Atoi(value)
			if err != nil {
				return NetworkDevice{}, fmt.Errorf("invalid vlan tag: %q", value)
			}
			device.Tag = tag
		case "altname":
			device.Altname = value
		case "ip":
			if value == "dhcp" || value == "manual" {
				continue
			}
			cidr, err := fwconf.ParseCidr(value)
			if err != nil {
				return NetworkDevice{}, err
			}
			if cidr.Family() != fwconf.FamilyV4 {
				return NetworkDevice{}, fmt.Errorf("%w: ip property wants an IPv4 address", fwconf.ErrFamilyMismatch)
			}
			device.IP = &cidr
		case "ip6":
			if value == "dhcp" || value == "auto" || value == "manual" {
				continue
			}
			cidr, err := fwconf.ParseCidr(value)
			if err != nil {
				return NetworkDevice{}, err
			}
			if cidr.Family() != fwconf.FamilyV6 {
				return NetworkDevice{}, fmt.Errorf("%w: ip6 property wants an IPv6 address", fwconf.ErrFamilyMismatch)
			}
			device.IP6 = &cidr
		default:
			// shorthand "model=MAC" pair, e.g. "virtio=AA:BB:..."
			if model, ok := parseModel(key); ok {
				mac, err := fwconf.ParseMac(value)
				if err != nil {
					return NetworkDevice{}, err
				}
				device.Model = model
				device.Mac = mac
				haveModel, haveMac = true, true
			}
		}
	}

	if !haveModel || !haveMac {
		return NetworkDevice{}, fmt.Errorf("no valid network device in %q", s)
	}

	return device, nil
}

// NetworkConfig is the netN device map of one guest config. Snapshot
// sections (starting at the first '[' line) are ignored.
type NetworkConfig struct {
	devices map[int]NetworkDevice
}

// NetKeyIndex extracts N from a "netN" key; indices above 31 are
// rejected like the source system does.
func NetKeyIndex(key string) (int, error) {
	digits, ok := strings.CutPrefix(key, "net")
	if !ok {
		return 0, fmt.Errorf("no index in net key %q", key)
	}

	index, err := strconv.Atoi(digits)
	if err != nil || index < 0 || index > 31 {
		return 0, fmt.Errorf("no index in net key %q", key)
	}

	return index, nil
}

// ParseNetworkConfig extracts the network devices from a guest config.
func ParseNetworkConfig(input io.Reader) (*NetworkConfig, error) {
	cfg := &NetworkConfig{devices: map[int]NetworkDevice{}}

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// the current config ends where the first snapshot begins
		if strings.HasPrefix(line, "[") {
			break
		}

		if !strings.HasPrefix(line, "net") {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}

		index, err := NetKeyIndex(key)
		if err != nil {
			return nil, err
		}

		device, err := ParseNetworkDevice(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		if _, exists := cfg.devices[index]; exists {
			return nil, fmt.Errorf("duplicate config key %q", key)
		}
		cfg.devices[index] = device
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading guest config: %w", err)
	}

	return cfg, nil
}

// Device returns the NIC at index.
func (c *NetworkConfig) Device(index int) (NetworkDevice, bool) {
	device, ok := c.devices[index]
	return device, ok
}

// Indices returns the NIC indices in ascending order.
func (c *NetworkConfig) Indices() []int {
	indices := make([]int, 0, len(c.devices))
	for index := range c.devices {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// Guest is one guest's full inventory entry: identity, firewall config
// and network devices.
type Guest struct {
	Vmid    Vmid
	Kind    GuestKind
	Config  *fwconf.GuestConfig
	Network *NetworkConfig
}

// IfaceName is the kernel name of the NIC at index, e.g. "tap100i0".
func (g *Guest) IfaceName(index int) string {
	return fmt.Sprintf("%s%di%d", g.Kind.IfacePrefix(), g.Vmid, index)
}

// IfaceNameByKey resolves a "netN" rule interface to the kernel name.
func (g *Guest) IfaceNameByKey(key string) (string, error) {
	index, err := NetKeyIndex(key)
	if err != nil {
		return "", err
	}
	return g.IfaceName(index), nil
}

// HasFirewallNic reports whether any NIC has its firewall flag set.
func (g *Guest) HasFirewallNic() bool {
	for _, index := range g.Network.Indices() {
		device, _ := g.Network.Device(index)
		if device.Firewall {
			return true
		}
	}
	return false
}
