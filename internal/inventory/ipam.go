package inventory

import (
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"sort"
	"strings"
)

// Ipam is the address-management snapshot: which addresses are allocated
// on which VNet, and for which MAC address.
type Ipam struct {
	byMac  map[string][]netip.Addr
	byVnet map[string][]netip.Addr
}

type ipamDb struct {
	Vnets map[string]struct {
		Subnets map[string]struct {
			Ips map[string]struct {
				Mac  string `json:"mac"`
				Vmid string `json:"vmid"`
			} `json:"ips"`
		} `json:"subnets"`
	} `json:"vnets"`
}

// EmptyIpam is the snapshot used when no IPAM state exists.
func EmptyIpam() *Ipam {
	return &Ipam{byMac: map[string][]netip.Addr{}, byVnet: map[string][]netip.Addr{}}
}

// ParseIpam reads the IPAM state database.
func ParseIpam(input io.Reader) (*Ipam, error) {
	var db ipamDb
	if err := json.NewDecoder(input).Decode(&db); err != nil {
		return nil, fmt.Errorf("ipam state: %w", err)
	}

	ipam := EmptyIpam()

	for vnet, vnetEntry := range db.Vnets {
		for _, subnet := range vnetEntry.Subnets {
			for ip, allocation := range subnet.Ips {
				addr, err := netip.ParseAddr(ip)
				if err != nil {
					return nil, fmt.Errorf("ipam state: invalid address %q: %w", ip, err)
				}

				ipam.byVnet[vnet] = append(ipam.byVnet[vnet], addr)

				if allocation.Mac != "" {
					mac := strings.ToUpper(allocation.Mac)
					ipam.byMac[mac] = append(ipam.byMac[mac], addr)
				}
			}
		}
	}

	for _, addrs := range ipam.byMac {
		sortAddrs(addrs)
	}
	for _, addrs := range ipam.byVnet {
		sortAddrs(addrs)
	}

	return ipam, nil
}

func sortAddrs(addrs []netip.Addr) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Compare(addrs[j]) < 0 })
}

// ByMac returns the addresses allocated to a MAC, sorted.
func (i *Ipam) ByMac(mac string) []netip.Addr {
	return i.byMac[strings.ToUpper(mac)]
}

// ByVnet returns all addresses allocated on a VNet, sorted.
func (i *Ipam) ByVnet(vnet string) []netip.Addr {
	return i.byVnet[vnet]
}
