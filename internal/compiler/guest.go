package compiler

import (
	"fmt"

	"proxfw.dev/proxfw/internal/fwconf"
	"proxfw.dev/proxfw/internal/inventory"
	"proxfw.dev/proxfw/internal/nft"
)

func guestChain(vmid inventory.Vmid, direction fwconf.Direction) nft.ChainPart {
	return nft.NewChain(guestTable(), fmt.Sprintf("guest-%d-%s", vmid, direction))
}

// guestHasForwardRules reports whether any enabled rule uses FORWARD.
func guestHasForwardRules(guest *inventory.Guest) bool {
	for _, rule := range guest.Config.Rules() {
		if rule.Disabled {
			continue
		}
		if rule.Match != nil && rule.Match.Dir == fwconf.DirectionForward {
			return true
		}
	}
	return false
}

// compileGuest emits everything one guest contributes: its chains, IP
// sets and filters, option gates, rules, dispatch map entries and the
// policy tails.
func (f *Firewall) compileGuest(commands *nft.Commands, guest *inventory.Guest) error {
	vmid := guest.Vmid

	chainIn := guestChain(vmid, fwconf.DirectionIn)
	chainOut := guestChain(vmid, fwconf.DirectionOut)
	commands.Append(
		nft.AddChain(chainIn), nft.FlushChain(chainIn),
		nft.AddChain(chainOut), nft.FlushChain(chainOut),
	)

	hasForward := guestHasForwardRules(guest)
	chainForward := guestChain(vmid, fwconf.DirectionForward)
	if hasForward {
		commands.Append(nft.AddChain(chainForward), nft.FlushChain(chainForward))
	}

	if err := f.emitIpsets(commands, guest.Config.Ipsets(), guestTable(), &vmid); err != nil {
		return err
	}

	if err := f.emitIpfilters(commands, guest); err != nil {
		return err
	}

	f.handleGuestOptions(commands, guest)

	for _, direction := range []fwconf.Direction{fwconf.DirectionIn, fwconf.DirectionOut} {
		if err := f.createGuestRules(commands, guest, direction); err != nil {
			return err
		}
	}

	if hasForward {
		if err := f.createGuestForwardRules(commands, guest); err != nil {
			return err
		}
	}

	return nil
}

// handleGuestOptions wires the per-guest feature gates into the guest
// chains: MAC filtering, DHCP, neighbor discovery, router
// advertisements and the outbound ARP allowance.
func (f *Firewall) handleGuestOptions(commands *nft.Commands, guest *inventory.Guest) {
	vmid := guest.Vmid
	chainIn := guestChain(vmid, fwconf.DirectionIn)
	chainOut := guestChain(vmid, fwconf.DirectionOut)

	if guest.Config.Macfilter() {
		var pairs nft.SetLiteral
		for _, index := range guest.Network.Indices() {
			device, _ := guest.Network.Device(index)
			if !device.Firewall {
				continue
			}
			pairs = append(pairs, nft.Concat{
				nft.Str(guest.IfaceName(index)),
				nft.Str(device.Mac.String()),
			})
		}

		if len(pairs) > 0 {
			addStatic(commands, chainOut,
				nft.MatchNe(
					nft.Concat{nft.MetaKey("iifname"), nft.PayloadField("ether", "saddr")},
					pairs),
				nft.Drop())
			addStatic(commands, chainOut,
				nft.MatchNe(
					nft.Concat{nft.MetaKey("iifname"), nft.PayloadField("arp", "saddr ether")},
					pairs),
				nft.Drop())
		}
	}

	dhcpIn, dhcpOut := "block-dhcp-in", "block-dhcp-out"
	if guest.Config.AllowDhcp() {
		dhcpIn, dhcpOut = "allow-dhcp-in", "allow-dhcp-out"
	}
	addStatic(commands, chainIn, nft.Jump(dhcpIn))
	addStatic(commands, chainOut, nft.Jump(dhcpOut))

	ndpIn, ndpOut := "block-ndp-in", "block-ndp-out"
	if guest.Config.AllowNdp() {
		ndpIn, ndpOut = "allow-ndp-in", "allow-ndp-out"
	}
	addStatic(commands, chainIn, nft.Jump(ndpIn))
	addStatic(commands, chainOut, nft.Jump(ndpOut))

	raOut := "block-ra-out"
	if guest.Config.AllowRa() {
		raOut = "allow-ra-out"
	}
	addStatic(commands, chainOut, nft.Jump(raOut))

	// outgoing ARP is allowed unless the MAC filter above dropped it;
	// matching on meta protocol also catches VLAN-encapsulated ARP
	addStatic(commands, chainOut,
		nft.MatchEq(nft.MetaKey("protocol"), nft.Str("arp")),
		nft.Accept())
}

// createGuestRules fills one guest chain: user rules, map dispatch
// entries, the conntrack continuation, the policy log rule and the
// terminal policy verdict.
func (f *Firewall) createGuestRules(commands *nft.Commands, guest *inventory.Guest, direction fwconf.Direction) error {
	vmid := guest.Vmid
	chain := guestChain(vmid, direction)
	env := &ruleEnv{chain: chain, direction: direction, input: f.input, vmid: &vmid, sets: f.sets}

	for index, rule := range guest.Config.Rules() {
		lowered, err := env.lowerRule(rule)
		if err != nil {
			return fmt.Errorf("rule %d: %w", index, err)
		}
		for _, l := range lowered {
			commands.Push(l.intoAddRule(chain, rule.Comment))
		}
	}

	f.emitGuestMapElements(commands, guest, direction, nft.Jump(chain.Name))

	if direction == fwconf.DirectionIn {
		addStatic(commands, chain, nft.Jump("after-vm-in"))
	}

	policy := guest.Config.DefaultPolicy(direction)
	f.createLogRule(commands, env, guest.Config.LogLevel(direction), chain, policy)

	commands.Push(nft.AddRule(nft.NewRule(chain,
		generateVerdict(policy, chain.Table, direction))))

	return nil
}

// emitGuestMapElements inserts the guest's firewalled NICs into the
// direction's dispatch map. A NIC with an altname gets both keys with
// the same verdict so kernel interface renames stay transparent.
func (f *Firewall) emitGuestMapElements(commands *nft.Commands, guest *inventory.Guest, direction fwconf.Direction, verdict nft.Verdict) {
	var elements []nft.MapElement

	for _, index := range guest.Network.Indices() {
		device, _ := guest.Network.Device(index)
		if !device.Firewall {
			continue
		}

		elements = append(elements, nft.MapElement{
			Key:   nft.Str(guest.IfaceName(index)),
			Value: verdict,
		})

		if device.Altname != "" {
			elements = append(elements, nft.MapElement{
				Key:   nft.Str(device.Altname),
				Value: verdict,
			})
		}
	}

	if len(elements) == 0 {
		return
	}

	mapName := nft.NewSetName(guestTable(), fmt.Sprintf("vm-map-%s", direction))
	commands.Push(nft.AddMapElements(mapName, elements))
}

// createGuestForwardRules fills the guest's forward chain and hooks it
// into vm-forward, dispatching on the guest-side ingress interface.
func (f *Firewall) createGuestForwardRules(commands *nft.Commands, guest *inventory.Guest) error {
	vmid := guest.Vmid
	chain := guestChain(vmid, fwconf.DirectionForward)
	env := &ruleEnv{chain: chain, direction: fwconf.DirectionForward, input: f.input, vmid: &vmid, sets: f.sets}

	for index, rule := range guest.Config.Rules() {
		lowered, err := env.lowerRule(rule)
		if err != nil {
			return fmt.Errorf("rule %d: %w", index, err)
		}
		for _, l := range lowered {
			commands.Push(l.intoAddRule(chain, rule.Comment))
		}
	}

	vmForward := nft.NewChain(guestTable(), "vm-forward")
	for _, index := range guest.Network.Indices() {
		device, _ := guest.Network.Device(index)
		if !device.Firewall {
			continue
		}
		addStatic(commands, vmForward,
			nft.MatchEq(nft.MetaKey("iifname"), nft.Str(guest.IfaceName(index))),
			nft.Jump(chain.Name))
	}

	return nil
}

// compileGuestStub gates a guest whose config failed to compile: empty
// chains carrying only the gate jumps and the default policies, so
// traffic is handled per policy instead of flowing unfiltered.
func (f *Firewall) compileGuestStub(commands *nft.Commands, guest *inventory.Guest) {
	vmid := guest.Vmid

	for _, direction := range []fwconf.Direction{fwconf.DirectionIn, fwconf.DirectionOut} {
		chain := guestChain(vmid, direction)
		commands.Append(nft.AddChain(chain), nft.FlushChain(chain))

		f.emitGuestMapElements(commands, guest, direction, nft.Jump(chain.Name))

		if direction == fwconf.DirectionIn {
			addStatic(commands, chain, nft.Jump("after-vm-in"))
		}

		commands.Push(nft.AddRule(nft.NewRule(chain,
			generateVerdict(guest.Config.DefaultPolicy(direction), chain.Table, direction))))
	}
}

// emitIpfilters creates the per-NIC IP filter sets and their gating
// rules. An explicit [IPSET ipfilter-netN] wins; with the ipfilter
// option set, a default filter is synthesized from the NIC's link-local
// address, its configured addresses and, lacking those, its IPAM
// allocations.
func (f *Firewall) emitIpfilters(commands *nft.Commands, guest *inventory.Guest) error {
	vmid := guest.Vmid

	for _, index := range guest.Network.Indices() {
		device, _ := guest.Network.Device(index)
		if !device.Firewall {
			continue
		}

		name := fwconf.IpfilterName(index)

		if explicit, ok := guest.Config.Ipsets()[name]; ok {
			f.log.Debug("using declared ipfilter", "vmid", vmid.String(), "net", index)

			if err := f.emitIpset(commands, explicit, guestTable(), &vmid, true); err != nil {
				return err
			}
			if err := f.emitIpfilterRules(commands, guest, index, explicit.Name); err != nil {
				return err
			}
			continue
		}

		if !guest.Config.Ipfilter() {
			continue
		}

		f.log.Debug("synthesizing default ipfilter", "vmid", vmid.String(), "net", index)

		set := fwconf.NewIpset(fwconf.NewIpsetName(fwconf.ScopeGuest, name))

		linkLocal := fwconf.HostCidr(device.Mac.Eui64LinkLocal())
		set.Entries = append(set.Entries, fwconf.IpsetEntry{Cidr: &linkLocal})

		if device.IP != nil {
			set.Entries = append(set.Entries, fwconf.IpsetEntry{Cidr: device.IP})
		}
		if device.IP6 != nil {
			set.Entries = append(set.Entries, fwconf.IpsetEntry{Cidr: device.IP6})
		}

		if device.IP == nil && device.IP6 == nil {
			for _, addr := range f.input.Ipam.ByMac(device.Mac.String()) {
				cidr := fwconf.HostCidr(addr)
				set.Entries = append(set.Entries, fwconf.IpsetEntry{Cidr: &cidr})
			}
		}

		if err := f.emitIpset(commands, set, guestTable(), &vmid, true); err != nil {
			return err
		}
		if err := f.emitIpfilterRules(commands, guest, index, set.Name); err != nil {
			return err
		}
	}

	return nil
}

// emitIpfilterRules gates one NIC to its filter set: outbound traffic
// and ARP claims must use filtered addresses, and ARP replies toward
// the guest may only advertise them.
func (f *Firewall) emitIpfilterRules(commands *nft.Commands, guest *inventory.Guest, index int, name fwconf.IpsetName) error {
	vmid := guest.Vmid
	iface := guest.IfaceName(index)

	chainIn := guestChain(vmid, fwconf.DirectionIn)
	chainOut := guestChain(vmid, fwconf.DirectionOut)

	v4Set := "@" + setKernelName(fwconf.FamilyV4, name, &vmid, false)

	// inbound: ARP may only resolve filtered addresses
	addStatic(commands, chainIn,
		nft.MatchEq(nft.MetaKey("oifname"), nft.Str(iface)),
		nft.MatchNe(nft.PayloadField("arp", "daddr ip"), nft.Str(v4Set)),
		nft.Drop())

	// outbound: drop traffic sourced outside the filter
	outEnv := &ruleEnv{chain: chainOut, direction: fwconf.DirectionOut, input: f.input, vmid: &vmid, sets: f.sets}

	base := newRule(nft.Drop())
	base.push(nft.MatchEq(nft.MetaKey("iifname"), nft.Str(iface)))

	gated, err := outEnv.applySetMatch([]*nftRule{base}, name, "saddr", false)
	if err != nil {
		return err
	}
	for _, rule := range gated {
		commands.Push(rule.intoAddRule(chainOut, ""))
	}

	addStatic(commands, chainOut,
		nft.MatchEq(nft.MetaKey("iifname"), nft.Str(iface)),
		nft.MatchNe(nft.PayloadField("arp", "saddr ip"), nft.Str(v4Set)),
		nft.Drop())

	return nil
}
