package compiler

import (
	"fmt"

	"proxfw.dev/proxfw/internal/fwconf"
	"proxfw.dev/proxfw/internal/logging"
	"proxfw.dev/proxfw/internal/nft"
)

// Firewall compiles one input snapshot into a command list. A Firewall
// value is used for a single compile cycle and then discarded.
type Firewall struct {
	input *Input
	sets  *setRegistry
	log   *logging.Logger
}

// New prepares a compile cycle for the snapshot.
func New(input *Input) *Firewall {
	return &Firewall{
		input: input.normalized(),
		sets:  newSetRegistry(),
		log:   logging.Default().WithComponent("compiler"),
	}
}

// Enabled reports whether the firewall should be active at all: the
// cluster must enable it and the host must have opted into nftables.
func (f *Firewall) Enabled() bool {
	return f.input.Cluster.IsEnabled() && f.input.Host.Nftables()
}

// RemoveCommands flushes and deletes both managed tables; applying it
// leaves the kernel without any managed rules.
func RemoveCommands() *nft.Commands {
	return nft.NewCommands(
		nft.FlushTable(hostTable()),
		nft.FlushTable(guestTable()),
		nft.DeleteTable(hostTable()),
		nft.DeleteTable(guestTable()),
	)
}

// Compile lowers the snapshot to the full ruleset. With the disable
// sentinel set (or the firewall switched off) it returns the
// flush-and-delete document instead.
func (f *Firewall) Compile() (*nft.Commands, error) {
	if f.input.Disabled || !f.Enabled() {
		f.log.Info("firewall disabled, emitting table removal")
		return RemoveCommands(), nil
	}

	commands := nft.NewCommands()

	commands.Append(
		nft.AddTable(hostTable()),
		nft.FlushTable(hostTable()),
		nft.AddTable(guestTable()),
		nft.FlushTable(guestTable()),
	)

	if err := f.compileHostTable(commands); err != nil {
		return nil, err
	}

	if err := f.compileGuestTable(commands); err != nil {
		return nil, err
	}

	return commands, nil
}

func (f *Firewall) compileHostTable(commands *nft.Commands) error {
	table := hostTable()

	emitSkeletonChains(commands, table, inetSkeleton)
	emitSynfloodSets(commands)

	if err := f.emitClusterSets(commands, table); err != nil {
		return err
	}

	f.emitInetSkeletonContents(commands)
	f.handleHostOptions(commands)

	if err := f.setupCtHelpers(commands); err != nil {
		return err
	}

	if err := f.emitGroupChains(commands, table); err != nil {
		return err
	}

	for _, direction := range []fwconf.Direction{fwconf.DirectionIn, fwconf.DirectionOut} {
		if err := f.createClusterRules(commands, direction); err != nil {
			return err
		}
	}

	for _, direction := range []fwconf.Direction{fwconf.DirectionIn, fwconf.DirectionOut} {
		if err := f.createHostRules(commands, direction); err != nil {
			return err
		}
	}

	return nil
}

func (f *Firewall) compileGuestTable(commands *nft.Commands) error {
	table := guestTable()

	emitSkeletonChains(commands, table, bridgeSkeleton)
	emitBridgeMaps(commands)

	if err := f.emitClusterSets(commands, table); err != nil {
		return err
	}

	f.emitBridgeSkeletonContents(commands)

	if err := f.emitGroupChains(commands, table); err != nil {
		return err
	}

	for _, vmid := range f.input.sortedVmids() {
		guest := f.input.Guests[vmid]

		if !guest.Config.IsEnabled() || !guest.HasFirewallNic() {
			continue
		}

		f.log.Debug("generating guest ruleset", "vmid", vmid.String())

		sub := nft.NewCommands()
		if err := f.compileGuest(sub, guest); err != nil {
			if !f.input.Lenient {
				return fmt.Errorf("guest #%s: %w", vmid, err)
			}

			f.log.Warn("guest config failed, gating to default policy",
				"vmid", vmid.String(), "error", err)

			sub = nft.NewCommands()
			f.compileGuestStub(sub, guest)
		}

		commands.Append(sub.Nftables...)
	}

	return f.compileVnets(commands)
}

// emitClusterSets lowers the datacenter-scope sets into a table,
// synthesizing the management set when absent.
func (f *Firewall) emitClusterSets(commands *nft.Commands, table nft.TablePart) error {
	if _, declared := f.input.Cluster.Ipsets()["management"]; !declared {
		management, err := f.managementIpset()
		if err != nil {
			return err
		}
		if err := f.emitIpset(commands, management, table, nil, false); err != nil {
			return err
		}
	}

	return f.emitIpsets(commands, f.input.Cluster.Ipsets(), table, nil)
}

// emitGroupChains creates and fills one chain pair per security group.
func (f *Firewall) emitGroupChains(commands *nft.Commands, table nft.TablePart) error {
	groups := f.input.Cluster.Groups()

	for _, name := range sortedNames(groups) {
		group := groups[name]

		for _, direction := range []fwconf.Direction{fwconf.DirectionIn, fwconf.DirectionOut} {
			chain := nft.NewChain(table, fmt.Sprintf("group-%s-%s", name, direction))
			commands.Append(nft.AddChain(chain), nft.FlushChain(chain))

			env := &ruleEnv{chain: chain, direction: direction, input: f.input, sets: f.sets}

			for index, rule := range group.Rules {
				lowered, err := env.lowerRule(rule)
				if err != nil {
					return fmt.Errorf("group %q rule %d: %w", name, index, err)
				}
				for _, l := range lowered {
					commands.Push(l.intoAddRule(chain, rule.Comment))
				}
			}
		}
	}

	return nil
}

// createClusterRules fills one cluster chain: user rules in declaration
// order, the default-policy log rule, then the terminal policy.
func (f *Firewall) createClusterRules(commands *nft.Commands, direction fwconf.Direction) error {
	chain := nft.NewChain(hostTable(), fmt.Sprintf("cluster-%s", direction))
	env := &ruleEnv{chain: chain, direction: direction, input: f.input, sets: f.sets}

	for index, rule := range f.input.Cluster.Rules() {
		lowered, err := env.lowerRule(rule)
		if err != nil {
			return fmt.Errorf("cluster rule %d: %w", index, err)
		}
		for _, l := range lowered {
			commands.Push(l.intoAddRule(chain, rule.Comment))
		}
	}

	policy := f.input.Cluster.DefaultPolicy(direction)

	f.createLogRule(commands, env, f.input.Host.LogLevel(direction), chain, policy)

	commands.Push(nft.AddRule(nft.NewRule(chain,
		generateVerdict(policy, chain.Table, direction))))

	return nil
}

// createHostRules fills one host chain; host chains carry no terminal
// so evaluation falls through to the cluster chain.
func (f *Firewall) createHostRules(commands *nft.Commands, direction fwconf.Direction) error {
	chain := nft.NewChain(hostTable(), fmt.Sprintf("host-%s", direction))
	env := &ruleEnv{chain: chain, direction: direction, input: f.input, sets: f.sets}

	for index, rule := range f.input.Host.Rules() {
		lowered, err := env.lowerRule(rule)
		if err != nil {
			return fmt.Errorf("host rule %d: %w", index, err)
		}
		for _, l := range lowered {
			commands.Push(l.intoAddRule(chain, rule.Comment))
		}
	}

	return nil
}

// createLogRule appends the rate-limited nflog rule emitted before a
// default-policy verdict; LogNolog suppresses it.
func (f *Firewall) createLogRule(commands *nft.Commands, env *ruleEnv, level fwconf.LogLevel, chain nft.ChainPart, verdict fwconf.Verdict) {
	if level == fwconf.LogNolog {
		return
	}

	rule := nft.NewRule(chain)
	if limit := env.defaultLogLimit(); limit != nil {
		rule.Push(*limit)
	}
	rule.Push(nft.NewNflog(logPrefix(env.vmid, level, chain.Name, verdict), 0))

	commands.Push(nft.AddRule(rule))
}
