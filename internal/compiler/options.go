package compiler

import (
	"proxfw.dev/proxfw/internal/fwconf"
	"proxfw.dev/proxfw/internal/nft"
)

// handleHostOptions wires the option-driven protections into the
// option chains and fills the chains whose content depends on option
// values.
func (f *Firewall) handleHostOptions(commands *nft.Commands) {
	host := f.input.Host
	table := hostTable()

	optionIn := nft.NewChain(table, "option-in")
	optionOut := nft.NewChain(table, "option-out")

	ndpIn, ndpOut := "block-ndp-in", "block-ndp-out"
	if host.AllowNdp() {
		ndpIn, ndpOut = "allow-ndp-in", "allow-ndp-out"
	}
	addStatic(commands, optionIn, nft.Jump(ndpIn))
	addStatic(commands, optionOut, nft.Jump(ndpOut))

	if host.BlockSynflood() {
		f.log.Debug("enabling synflood protection",
			"rate", host.SynfloodRate(), "burst", host.SynfloodBurst())

		addStatic(commands, optionIn, nft.Jump("block-synflood"))

		limit := nft.Limit{
			Rate:  host.SynfloodRate(),
			Per:   "second",
			Burst: host.SynfloodBurst(),
			Inv:   true,
		}

		ratelimit := nft.NewChain(table, "ratelimit-synflood")
		addStatic(commands, ratelimit,
			nft.SetUpdate{
				Op:   nft.SetOpUpdate,
				Elem: nft.PayloadField("ip", "saddr"),
				Set:  "@v4-synflood-limit",
				Stmt: []nft.Statement{limit},
			},
			nft.Drop())
		addStatic(commands, ratelimit,
			nft.SetUpdate{
				Op:   nft.SetOpUpdate,
				Elem: nft.PayloadField("ip6", "saddr"),
				Set:  "@v6-synflood-limit",
				Stmt: []nft.Statement{limit},
			},
			nft.Drop())
	}

	if host.BlockInvalidTcp() {
		f.log.Debug("enabling invalid TCP flag filtering")

		addStatic(commands, optionIn, nft.Jump("block-invalid-tcp"))

		env := &ruleEnv{chain: nft.NewChain(table, "log-invalid-tcp"), direction: fwconf.DirectionIn, input: f.input, sets: f.sets}
		f.createLogRule(commands, env, host.TcpFlagsLogLevel(), env.chain, fwconf.VerdictDrop)
	}

	if host.BlockSmurfs() {
		f.log.Debug("enabling smurf filtering")

		addStatic(commands, optionIn, nft.Jump("block-smurfs"))

		env := &ruleEnv{chain: nft.NewChain(table, "log-smurfs"), direction: fwconf.DirectionIn, input: f.input, sets: f.sets}
		f.createLogRule(commands, env, host.SmurfLogLevel(), env.chain, fwconf.VerdictDrop)
	}

	if host.BlockInvalidConntrack() {
		addStatic(commands, optionIn, nft.Jump("block-conntrack-invalid"))
		addStatic(commands, optionOut, nft.Jump("block-conntrack-invalid"))
	}
}

// setupCtHelpers creates the configured conntrack helper objects and
// the ct-in rules assigning and accepting them.
func (f *Firewall) setupCtHelpers(commands *nft.Commands) error {
	table := hostTable()
	chain := nft.NewChain(table, "ct-in")

	for _, name := range f.input.Host.ConntrackHelpers() {
		helper, ok := fwconf.GetCtHelper(name)
		if !ok {
			f.log.Warn("ignoring unknown conntrack helper", "name", name)
			continue
		}

		f.log.Debug("adding conntrack helper", "name", name)

		l3proto := ""
		if helper.Family != nil {
			l3proto = "ip"
			if *helper.Family == fwconf.FamilyV6 {
				l3proto = "ip6"
			}
		}

		if helper.TcpPort != 0 {
			commands.Push(nft.AddCtHelper(nft.CtHelperConfig{
				Table:    table,
				Name:     helper.TcpHelperName(),
				Type:     helper.Name,
				Protocol: "tcp",
				L3Proto:  l3proto,
			}))

			f.emitCtHelperRules(commands, chain, "tcp", helper.TcpPort, helper.TcpHelperName())
		}

		if helper.UdpPort != 0 {
			commands.Push(nft.AddCtHelper(nft.CtHelperConfig{
				Table:    table,
				Name:     helper.UdpHelperName(),
				Type:     helper.Name,
				Protocol: "udp",
				L3Proto:  l3proto,
			}))

			f.emitCtHelperRules(commands, chain, "udp", helper.UdpPort, helper.UdpHelperName())
		}

		accept := nft.NewRule(chain)
		ct := nft.CtKey("helper")
		ct.Family = l3proto
		accept.Push(nft.MatchEq(ct, nft.Str(helper.Name)))
		accept.Push(nft.Accept())
		commands.Push(nft.AddRule(accept))
	}

	return nil
}

func (f *Firewall) emitCtHelperRules(commands *nft.Commands, chain nft.ChainPart, protocol string, port uint16, helperName string) {
	match := []nft.Statement{
		nft.MatchEq(nft.MetaKey("l4proto"), nft.Str(protocol)),
		nft.MatchEq(nft.PayloadField("th", "dport"), nft.Num(port)),
	}

	accept := nft.NewRule(chain, match...)
	accept.Push(ctStateIn("new", "established"))
	accept.Push(nft.Accept())
	commands.Push(nft.AddRule(accept))

	assign := nft.NewRule(chain, match...)
	assign.Push(nft.CtHelperSet(helperName))
	commands.Push(nft.AddRule(assign))
}
