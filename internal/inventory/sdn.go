package inventory

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"proxfw.dev/proxfw/internal/fwconf"
)

// Vnet is one SDN virtual network with its bridge binding and firewall
// config.
type Vnet struct {
	Name   string
	Zone   string
	Bridge string
	Config *fwconf.VnetConfig
}

// sdnRunningConfig mirrors the relevant slice of the SDN controller's
// running-config JSON.
type sdnRunningConfig struct {
	Vnets struct {
		Ids map[string]struct {
			Zone string `json:"zone"`
		} `json:"ids"`
	} `json:"vnets"`
	Zones struct {
		Ids map[string]struct {
			Type   string `json:"type"`
			Bridge string `json:"bridge"`
		} `json:"ids"`
	} `json:"zones"`
}

// ParseSdnConfig reads the SDN running config and returns the declared
// VNets with their bridge names resolved through their zone. VNets whose
// zone has no bridge use the VNet name itself as the bridge (simple
// zones create a bridge per VNet).
func ParseSdnConfig(input io.Reader) ([]*Vnet, error) {
	var cfg sdnRunningConfig
	if err := json.NewDecoder(input).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("sdn running config: %w", err)
	}

	var vnets []*Vnet
	for name, vnet := range cfg.Vnets.Ids {
		bridge := name
		zone := vnet.Zone

		if zoneCfg, ok := cfg.Zones.Ids[zone]; ok && zoneCfg.Bridge != "" {
			bridge = zoneCfg.Bridge
		}

		vnets = append(vnets, &Vnet{
			Name:   name,
			Zone:   zone,
			Bridge: bridge,
			Config: fwconf.DefaultVnetConfig(),
		})
	}

	sort.Slice(vnets, func(i, j int) bool { return vnets[i].Name < vnets[j].Name })

	return vnets, nil
}
