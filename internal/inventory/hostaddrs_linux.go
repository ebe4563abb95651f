//go:build linux

package inventory

import (
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"

	"proxfw.dev/proxfw/internal/fwconf"
)

// NetlinkHostAddresses reads the host's interface addresses via
// rtnetlink. It satisfies HostAddressProvider.
type NetlinkHostAddresses struct{}

// InterfaceCidrs lists the addresses configured on host interfaces, with
// their prefix. Loopback and link-local addresses are skipped.
func (NetlinkHostAddresses) InterfaceCidrs() ([]fwconf.Cidr, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("listing host addresses: %w", err)
	}

	var cidrs []fwconf.Cidr
	for _, addr := range addrs {
		if addr.IPNet == nil {
			continue
		}

		ip, ok := netip.AddrFromSlice(addr.IPNet.IP)
		if !ok {
			continue
		}
		ip = ip.Unmap()

		if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}

		ones, _ := addr.IPNet.Mask.Size()
		cidr, err := fwconf.NewCidr(ip, ones)
		if err != nil {
			continue
		}

		cidrs = append(cidrs, cidr)
	}

	return cidrs, nil
}
