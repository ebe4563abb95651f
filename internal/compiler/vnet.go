package compiler

import (
	"fmt"

	"proxfw.dev/proxfw/internal/fwconf"
	"proxfw.dev/proxfw/internal/inventory"
	"proxfw.dev/proxfw/internal/nft"
)

func vnetChain(name string) nft.ChainPart {
	return nft.NewChain(guestTable(), fmt.Sprintf("vnet-%s-forward", name))
}

// compileVnets lowers every firewall-enabled VNet: one forward chain
// per VNet, the IPAM-sourced address set, the user rules and the
// bridge-name dispatch into vm-forward.
func (f *Firewall) compileVnets(commands *nft.Commands) error {
	var elements []nft.MapElement
	seenBridges := map[string]bool{}

	for _, vnet := range f.input.Vnets {
		if !vnet.Config.IsEnabled() {
			continue
		}

		f.log.Debug("generating vnet ruleset", "vnet", vnet.Name, "bridge", vnet.Bridge)

		if err := f.compileVnet(commands, vnet); err != nil {
			return fmt.Errorf("vnet %q: %w", vnet.Name, err)
		}

		// first VNet on a bridge wins the dispatch slot
		if !seenBridges[vnet.Bridge] {
			seenBridges[vnet.Bridge] = true
			elements = append(elements, nft.MapElement{
				Key:   nft.Str(vnet.Bridge),
				Value: nft.Jump(vnetChain(vnet.Name).Name),
			})
		}
	}

	if len(elements) > 0 {
		commands.Push(nft.AddMapElements(
			nft.NewSetName(guestTable(), "bridge-map"), elements))
	}

	return nil
}

func (f *Firewall) compileVnet(commands *nft.Commands, vnet *inventory.Vnet) error {
	chain := vnetChain(vnet.Name)
	commands.Append(nft.AddChain(chain), nft.FlushChain(chain))

	if err := f.emitVnetIpamSet(commands, vnet); err != nil {
		return err
	}

	if err := f.emitIpsets(commands, vnet.Config.Ipsets(), guestTable(), nil); err != nil {
		return err
	}

	env := &ruleEnv{chain: chain, direction: fwconf.DirectionForward, input: f.input, sets: f.sets}

	for index, rule := range vnet.Config.Rules() {
		lowered, err := env.lowerRule(rule)
		if err != nil {
			return fmt.Errorf("rule %d: %w", index, err)
		}
		for _, l := range lowered {
			commands.Push(l.intoAddRule(chain, rule.Comment))
		}
	}

	policy := vnet.Config.PolicyForward()
	f.createLogRule(commands, env, vnet.Config.LogLevel(), chain, policy)

	commands.Push(nft.AddRule(nft.NewRule(chain,
		generateVerdict(policy, chain.Table, fwconf.DirectionForward))))

	return nil
}

// emitVnetIpamSet publishes the VNet's allocated addresses as a
// datacenter-scope set so rules can match traffic of known endpoints.
func (f *Firewall) emitVnetIpamSet(commands *nft.Commands, vnet *inventory.Vnet) error {
	addrs := f.input.Ipam.ByVnet(vnet.Name)
	if len(addrs) == 0 {
		return nil
	}

	set := fwconf.NewIpset(fwconf.NewIpsetName(fwconf.ScopeDatacenter, fmt.Sprintf("%s-ipam", vnet.Name)))
	for _, addr := range addrs {
		cidr := fwconf.HostCidr(addr)
		set.Entries = append(set.Entries, fwconf.IpsetEntry{Cidr: &cidr})
	}

	return f.emitIpset(commands, set, guestTable(), nil, false)
}
