package compiler

import (
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv6"

	"proxfw.dev/proxfw/internal/fwconf"
	"proxfw.dev/proxfw/internal/nft"
)

// Managed table names.
const (
	hostTableName  = "proxmox-firewall"
	guestTableName = "proxmox-firewall-guests"
)

func hostTable() nft.TablePart {
	return nft.NewTable(nft.FamilyInet, hostTableName)
}

func guestTable() nft.TablePart {
	return nft.NewTable(nft.FamilyBridge, guestTableName)
}

// skeletonChain is one fixed chain of the static skeleton.
type skeletonChain struct {
	name string
	base *nft.BaseChain
}

func filterHook(hook string) *nft.BaseChain {
	return &nft.BaseChain{
		Type:     nft.ChainTypeFilter,
		Hook:     hook,
		Priority: 0,
		Policy:   nft.PolicyAccept,
	}
}

// inetSkeleton lists the host table's baseline chains in creation
// order.
var inetSkeleton = []skeletonChain{
	{name: "do-reject"},
	{name: "accept-management"},
	{name: "block-synflood"},
	{name: "ratelimit-synflood"},
	{name: "log-invalid-tcp"},
	{name: "log-drop-invalid-tcp"},
	{name: "block-invalid-tcp"},
	{name: "allow-ndp-in"},
	{name: "block-ndp-in"},
	{name: "allow-ndp-out"},
	{name: "block-ndp-out"},
	{name: "block-conntrack-invalid"},
	{name: "block-smurfs"},
	{name: "log-smurfs"},
	{name: "log-drop-smurfs"},
	{name: "default-in"},
	{name: "default-out"},
	{name: "option-in"},
	{name: "option-out"},
	{name: "input", base: filterHook(nft.HookInput)},
	{name: "output", base: filterHook(nft.HookOutput)},
	{name: "cluster-in"},
	{name: "cluster-out"},
	{name: "host-in"},
	{name: "host-out"},
	{name: "ct-in"},
}

// bridgeSkeleton lists the guest table's baseline chains. The forward
// hook chain carries the per-VNet dispatch.
var bridgeSkeleton = []skeletonChain{
	{name: "allow-dhcp-in"},
	{name: "block-dhcp-in"},
	{name: "allow-dhcp-out"},
	{name: "block-dhcp-out"},
	{name: "allow-ndp-in"},
	{name: "block-ndp-in"},
	{name: "allow-ndp-out"},
	{name: "block-ndp-out"},
	{name: "allow-ra-out"},
	{name: "block-ra-out"},
	{name: "after-vm-in"},
	{name: "do-reject"},
	{name: "vm-out", base: filterHook(nft.HookPrerouting)},
	{name: "vm-in", base: filterHook(nft.HookPostrouting)},
	{name: "vm-forward", base: filterHook(nft.HookForward)},
}

// The five neighbor-discovery types RFC 4890 requires for IPv6 to stay
// functional under a default-drop policy.
var ndTypes = []string{
	"nd-router-solicit",
	"nd-router-advert",
	"nd-neighbor-solicit",
	"nd-neighbor-advert",
	"nd-redirect",
}

// ND types a guest may legitimately originate; router advertisements
// are gated separately via the ra chains.
var ndGuestOutTypes = []string{
	"nd-router-solicit",
	"nd-neighbor-solicit",
	"nd-neighbor-advert",
}

var raTypes = []string{
	"nd-router-advert",
	"nd-redirect",
}

func strSet(values ...string) nft.Expression {
	if len(values) == 1 {
		return nft.Str(values[0])
	}

	set := make(nft.SetLiteral, len(values))
	for i, value := range values {
		set[i] = nft.Str(value)
	}
	return set
}

func icmp6TypeMatch(types ...string) nft.Statement {
	return nft.MatchEq(nft.PayloadField("icmpv6", "type"), strSet(types...))
}

func icmpTypeMatch(types ...string) nft.Statement {
	return nft.MatchEq(nft.PayloadField("icmp", "type"), strSet(types...))
}

func ctStateIn(states ...string) nft.Statement {
	var right nft.Expression
	if len(states) == 1 {
		right = nft.Str(states[0])
	} else {
		list := make(nft.List, len(states))
		for i, state := range states {
			list[i] = nft.Str(state)
		}
		right = list
	}

	return nft.Match{Op: nft.OpIn, Left: nft.CtKey("state"), Right: right}
}

func tcpFlagsMatch(op string, mask []string, compare nft.Expression) nft.Statement {
	masks := make([]nft.Expression, len(mask))
	for i, flag := range mask {
		masks[i] = nft.Str(flag)
	}

	return nft.Match{
		Op:    op,
		Left:  nft.BinOp{Op: nft.OpAnd, Left: nft.PayloadField("tcp", "flags"), Right: nft.OrAll(masks...)},
		Right: compare,
	}
}

func udpPortPair(sport, dport int) []nft.Statement {
	return []nft.Statement{
		nft.MatchEq(nft.PayloadField("udp", "sport"), nft.Num(sport)),
		nft.MatchEq(nft.PayloadField("udp", "dport"), nft.Num(dport)),
	}
}

// addStatic is shorthand for a fixed rule.
func addStatic(commands *nft.Commands, chain nft.ChainPart, statements ...nft.Statement) {
	commands.Push(nft.AddRule(nft.NewRule(chain, statements...)))
}

// emitSkeletonChains creates and flushes every baseline chain of a
// table. Contents are filled separately, after sets exist.
func emitSkeletonChains(commands *nft.Commands, table nft.TablePart, chains []skeletonChain) {
	for _, chain := range chains {
		part := nft.NewChain(table, chain.name)
		if chain.base != nil {
			commands.Push(nft.AddBaseChain(part, *chain.base))
		} else {
			commands.Push(nft.AddChain(part))
		}
		commands.Push(nft.FlushChain(part))
	}
}

// emitInetSkeletonContents fills the host table's static chains.
// Option-driven chains (ratelimit-synflood, the log chains, option-*)
// are filled by the option wiring instead.
func (f *Firewall) emitInetSkeletonContents(commands *nft.Commands) {
	table := hostTable()
	chain := func(name string) nft.ChainPart { return nft.NewChain(table, name) }

	// reject helper: never reject broadcast or multicast traffic
	doReject := chain("do-reject")
	addStatic(commands, doReject,
		nft.MatchEq(nft.MetaKey("pkttype"), nft.Str("broadcast")),
		nft.Drop())
	addStatic(commands, doReject,
		nft.MatchEq(nft.PayloadField("ip", "saddr"), nft.Prefix{Addr: nft.Str("224.0.0.0"), Len: 4}),
		nft.Drop())
	addStatic(commands, doReject,
		nft.MatchEq(nft.MetaKey("l4proto"), nft.Str("tcp")),
		nft.Reject{Type: nft.RejectTcpReset})
	addStatic(commands, doReject,
		nft.Reject{Type: nft.RejectIcmpx, Expr: nft.Str("port-unreachable")})

	// management access, per family the management set exists for
	management := fwconf.NewIpsetName(fwconf.ScopeDatacenter, "management")
	if f.sets.familyPresent(table, fwconf.FamilyV4, management, nil) {
		addStatic(commands, chain("accept-management"),
			nft.MatchEq(nft.PayloadField("ip", "saddr"), nft.Str("@"+setKernelName(fwconf.FamilyV4, management, nil, false))),
			nft.Accept())
	}
	if f.sets.familyPresent(table, fwconf.FamilyV6, management, nil) {
		addStatic(commands, chain("accept-management"),
			nft.MatchEq(nft.PayloadField("ip6", "saddr"), nft.Str("@"+setKernelName(fwconf.FamilyV6, management, nil, false))),
			nft.Accept())
	}

	// synflood gate: non-SYN packets fall through, SYNs are rate-checked
	addStatic(commands, chain("block-synflood"),
		tcpFlagsMatch(nft.OpNe, []string{"fin", "syn", "rst", "ack"}, nft.Str("syn")),
		nft.Return())
	addStatic(commands, chain("block-synflood"), nft.Jump("ratelimit-synflood"))

	// invalid TCP flag combinations
	blockInvalidTcp := chain("block-invalid-tcp")
	addStatic(commands, blockInvalidTcp,
		tcpFlagsMatch(nft.OpEq, []string{"fin", "syn"}, nft.OrAll(nft.Str("fin"), nft.Str("syn"))),
		nft.Goto("log-drop-invalid-tcp"))
	addStatic(commands, blockInvalidTcp,
		tcpFlagsMatch(nft.OpEq, []string{"syn", "rst"}, nft.OrAll(nft.Str("syn"), nft.Str("rst"))),
		nft.Goto("log-drop-invalid-tcp"))
	addStatic(commands, blockInvalidTcp,
		tcpFlagsMatch(nft.OpEq, []string{"fin", "syn", "rst", "psh", "ack", "urg"}, nft.Str("fin")),
		nft.Goto("log-drop-invalid-tcp"))
	addStatic(commands, blockInvalidTcp,
		tcpFlagsMatch(nft.OpEq, []string{"fin", "syn", "rst", "psh", "ack", "urg"}, nft.Num(0)),
		nft.Goto("log-drop-invalid-tcp"))
	addStatic(commands, blockInvalidTcp,
		nft.MatchEq(nft.PayloadField("tcp", "sport"), nft.Num(0)),
		nft.Goto("log-drop-invalid-tcp"))

	addStatic(commands, chain("log-drop-invalid-tcp"), nft.Jump("log-invalid-tcp"))
	addStatic(commands, chain("log-drop-invalid-tcp"), nft.Drop())

	// neighbor discovery gates
	addStatic(commands, chain("allow-ndp-in"), icmp6TypeMatch(ndTypes...), nft.Accept())
	addStatic(commands, chain("block-ndp-in"), icmp6TypeMatch(ndTypes...), nft.Drop())
	addStatic(commands, chain("allow-ndp-out"), icmp6TypeMatch(ndTypes...), nft.Accept())
	addStatic(commands, chain("block-ndp-out"), icmp6TypeMatch(ndTypes...), nft.Drop())

	addStatic(commands, chain("block-conntrack-invalid"), ctStateIn("invalid"), nft.Drop())

	// smurf filtering; 0.0.0.0 sources are DHCP discovers, not smurfs
	addStatic(commands, chain("block-smurfs"),
		nft.MatchEq(nft.PayloadField("ip", "saddr"), nft.Prefix{Addr: nft.Str("0.0.0.0"), Len: 32}),
		nft.Return())
	addStatic(commands, chain("block-smurfs"),
		nft.MatchEq(nft.MetaKey("pkttype"), nft.Str("broadcast")),
		nft.Goto("log-drop-smurfs"))
	addStatic(commands, chain("block-smurfs"),
		nft.MatchEq(nft.PayloadField("ip", "saddr"), nft.Prefix{Addr: nft.Str("224.0.0.0"), Len: 4}),
		nft.Goto("log-drop-smurfs"))

	addStatic(commands, chain("log-drop-smurfs"), nft.Jump("log-smurfs"))
	addStatic(commands, chain("log-drop-smurfs"), nft.Drop())

	// default-in: vital ICMP first so it clears any later drop
	defaultIn := chain("default-in")
	addStatic(commands, defaultIn,
		nft.MatchEq(nft.MetaKey("iifname"), nft.Str("lo")),
		nft.Accept())
	addStatic(commands, defaultIn,
		icmpTypeMatch("destination-unreachable", "time-exceeded"),
		nft.Accept())
	addStatic(commands, defaultIn, icmp6TypeMatch(ndTypes...), nft.Accept())
	addStatic(commands, defaultIn, ctStateIn("established", "related"), nft.Accept())
	addStatic(commands, defaultIn, nft.Jump("ct-in"))
	addStatic(commands, defaultIn,
		nft.MatchEq(nft.MetaKey("l4proto"), nft.Str("igmp")),
		nft.Accept())
	addStatic(commands, defaultIn,
		nft.MatchEq(nft.PayloadField("tcp", "dport"), nft.SetLiteral{
			nft.Num(22),
			nft.Num(3128),
			nft.Num(8006),
			nft.Range{From: nft.Num(5900), To: nft.Num(5999)},
		}),
		nft.Jump("accept-management"))
	addStatic(commands, defaultIn,
		nft.MatchEq(nft.PayloadField("udp", "dport"), nft.Range{From: nft.Num(5405), To: nft.Num(5412)}),
		nft.Accept())

	defaultOut := chain("default-out")
	addStatic(commands, defaultOut,
		nft.MatchEq(nft.MetaKey("oifname"), nft.Str("lo")),
		nft.Accept())
	addStatic(commands, defaultOut,
		icmpTypeMatch("destination-unreachable", "time-exceeded"),
		nft.Accept())
	addStatic(commands, defaultOut, icmp6TypeMatch(ndTypes...), nft.Accept())
	addStatic(commands, defaultOut, ctStateIn("established", "related"), nft.Accept())

	// hook chains dispatch into the generated chains; the cluster
	// chains carry the terminal default policy
	addStatic(commands, chain("input"), nft.Jump("default-in"))
	addStatic(commands, chain("input"), nft.Jump("option-in"))
	addStatic(commands, chain("input"), nft.Jump("host-in"))
	addStatic(commands, chain("input"), nft.Jump("cluster-in"))

	addStatic(commands, chain("output"), nft.Jump("default-out"))
	addStatic(commands, chain("output"), nft.Jump("option-out"))
	addStatic(commands, chain("output"), nft.Jump("host-out"))
	addStatic(commands, chain("output"), nft.Jump("cluster-out"))
}

// emitBridgeSkeletonContents fills the guest table's static chains.
func (f *Firewall) emitBridgeSkeletonContents(commands *nft.Commands) {
	table := guestTable()
	chain := func(name string) nft.ChainPart { return nft.NewChain(table, name) }

	dhcpIn := udpPortPair(dhcpv4.ServerPort, dhcpv4.ClientPort)
	dhcp6In := udpPortPair(dhcpv6.DefaultServerPort, dhcpv6.DefaultClientPort)
	dhcpOut := udpPortPair(dhcpv4.ClientPort, dhcpv4.ServerPort)
	dhcp6Out := udpPortPair(dhcpv6.DefaultClientPort, dhcpv6.DefaultServerPort)

	addStatic(commands, chain("allow-dhcp-in"), append(dhcpIn, nft.Accept())...)
	addStatic(commands, chain("allow-dhcp-in"), append(dhcp6In, nft.Accept())...)
	addStatic(commands, chain("block-dhcp-in"), append(dhcpIn, nft.Drop())...)
	addStatic(commands, chain("block-dhcp-in"), append(dhcp6In, nft.Drop())...)

	addStatic(commands, chain("allow-dhcp-out"), append(dhcpOut, nft.Accept())...)
	addStatic(commands, chain("allow-dhcp-out"), append(dhcp6Out, nft.Accept())...)
	addStatic(commands, chain("block-dhcp-out"), append(dhcpOut, nft.Drop())...)
	addStatic(commands, chain("block-dhcp-out"), append(dhcp6Out, nft.Drop())...)

	addStatic(commands, chain("allow-ndp-in"), icmp6TypeMatch(ndTypes...), nft.Accept())
	addStatic(commands, chain("block-ndp-in"), icmp6TypeMatch(ndTypes...), nft.Drop())
	addStatic(commands, chain("allow-ndp-out"), icmp6TypeMatch(ndGuestOutTypes...), nft.Accept())
	addStatic(commands, chain("block-ndp-out"), icmp6TypeMatch(ndGuestOutTypes...), nft.Drop())

	addStatic(commands, chain("allow-ra-out"), icmp6TypeMatch(raTypes...), nft.Accept())
	addStatic(commands, chain("block-ra-out"), icmp6TypeMatch(raTypes...), nft.Drop())

	afterVmIn := chain("after-vm-in")
	if f.input.Host.BlockInvalidConntrack() {
		addStatic(commands, afterVmIn, ctStateIn("invalid"), nft.Drop())
	}
	addStatic(commands, afterVmIn, ctStateIn("established", "related"), nft.Accept())

	// layer 2 cannot synthesize rejects
	addStatic(commands, chain("do-reject"), nft.Drop())

	addStatic(commands, chain("vm-out"),
		nft.Vmap{Key: nft.MetaKey("iifname"), Data: nft.Str("@vm-map-out")})
	addStatic(commands, chain("vm-in"),
		nft.Vmap{Key: nft.MetaKey("oifname"), Data: nft.Str("@vm-map-in")})

	vmForward := chain("vm-forward")
	if f.input.Host.BlockInvalidConntrack() {
		addStatic(commands, vmForward, ctStateIn("invalid"), nft.Drop())
	}
	addStatic(commands, vmForward,
		nft.Vmap{Key: nft.MetaKey("ibrname"), Data: nft.Str("@bridge-map")})
}

// emitBridgeMaps creates the dispatch maps of the guest table.
func emitBridgeMaps(commands *nft.Commands) {
	table := guestTable()

	for _, name := range []string{"vm-map-in", "vm-map-out", "bridge-map"} {
		mapName := nft.NewSetName(table, name)
		commands.Push(nft.AddMap(
			nft.NewSetConfig(mapName, nft.TypeIfname).WithMapType(nft.TypeVerdict)))
		commands.Push(nft.FlushMap(mapName))
	}
}

// emitSynfloodSets creates the per-source rate-limit sets.
func emitSynfloodSets(commands *nft.Commands) {
	table := hostTable()

	v4 := nft.NewSetName(table, "v4-synflood-limit")
	v6 := nft.NewSetName(table, "v6-synflood-limit")

	commands.Push(nft.AddSet(
		nft.NewSetConfig(v4, nft.TypeIpv4Addr).WithFlags(nft.FlagDynamic, nft.FlagTimeout).WithTimeout(60)))
	commands.Push(nft.FlushSet(v4))
	commands.Push(nft.AddSet(
		nft.NewSetConfig(v6, nft.TypeIpv6Addr).WithFlags(nft.FlagDynamic, nft.FlagTimeout).WithTimeout(60)))
	commands.Push(nft.FlushSet(v6))
}
