package compiler

import (
	"fmt"

	"proxfw.dev/proxfw/internal/fwconf"
	"proxfw.dev/proxfw/internal/inventory"
	"proxfw.dev/proxfw/internal/nft"
)

// nftRule is a rule under construction: match statements accumulate in
// front of a fixed terminal tail (log or verdict). A rule narrows to one
// family as soon as a family-specific match is applied; later
// family-specific terms drop incompatible clones instead of emitting
// rules that could never match.
type nftRule struct {
	family     *fwconf.Family
	statements []nft.Statement
	terminal   []nft.Statement
}

func newRule(terminal ...nft.Statement) *nftRule {
	return &nftRule{terminal: terminal}
}

func (r *nftRule) push(statement nft.Statement) {
	r.statements = append(r.statements, statement)
}

func (r *nftRule) setFamily(family fwconf.Family) {
	r.family = &family
}

func (r *nftRule) compatible(family fwconf.Family) bool {
	return r.family == nil || *r.family == family
}

func (r *nftRule) clone() *nftRule {
	out := &nftRule{
		statements: append([]nft.Statement(nil), r.statements...),
		terminal:   append([]nft.Statement(nil), r.terminal...),
	}
	if r.family != nil {
		family := *r.family
		out.family = &family
	}
	return out
}

// intoAddRule finalizes the rule for a chain, appending the provenance
// comment when present.
func (r *nftRule) intoAddRule(chain nft.ChainPart, comment string) nft.Command {
	rule := nft.NewRule(chain)
	rule.Expr = append(rule.Expr, r.statements...)
	rule.Expr = append(rule.Expr, r.terminal...)
	rule.Comment = comment
	return nft.AddRule(rule)
}

// ruleEnv carries the context a rule is lowered in: target chain,
// direction, the input snapshot, the guest (if any) and the registry of
// sets emitted so far.
type ruleEnv struct {
	chain     nft.ChainPart
	direction fwconf.Direction
	input     *Input
	vmid      *inventory.Vmid
	sets      *setRegistry
}

func (e *ruleEnv) guest() *inventory.Guest {
	if e.vmid == nil {
		return nil
	}
	return e.input.Guests[*e.vmid]
}

// ifaceName maps a rule interface to the kernel name: netN keys resolve
// through the guest's NIC table, host names pass through.
func (e *ruleEnv) ifaceName(iface string) string {
	if guest := e.guest(); guest != nil {
		if name, err := guest.IfaceNameByKey(iface); err == nil {
			return name
		}
	}
	return iface
}

// defaultLogLimit is the cluster-wide limiter prepended to generated
// log statements; nil when disabled.
func (e *ruleEnv) defaultLogLimit() *nft.Limit {
	limit := e.input.Cluster.LogRatelimit()
	if limit == nil {
		return nil
	}
	return &nft.Limit{Rate: limit.Rate, Per: limit.Per.String(), Burst: limit.Burst}
}

// logPrefix renders the canonical nflog prefix
// ":<vmid>:<level>:<chain>: <VERDICT>: ".
func logPrefix(vmid *inventory.Vmid, level fwconf.LogLevel, chain string, verdict fwconf.Verdict) string {
	id := inventory.Vmid(0)
	if vmid != nil {
		id = *vmid
	}
	return fmt.Sprintf(":%d:%d:%s: %s: ", id, level.NflogLevel(), chain, verdict)
}

// generateVerdict lowers a config verdict to its terminal statement.
// REJECT becomes a jump to the reject helper; on the bridge table's
// inbound path it degrades to a plain drop since layer 2 cannot
// generate a meaningful reject.
func generateVerdict(verdict fwconf.Verdict, table nft.TablePart, direction fwconf.Direction) nft.Statement {
	switch verdict {
	case fwconf.VerdictAccept:
		return nft.Accept()
	case fwconf.VerdictReject:
		if table.Family == nft.FamilyBridge && direction == fwconf.DirectionIn {
			return nft.Drop()
		}
		return nft.Jump("do-reject")
	}
	return nft.Drop()
}

// lowerRule turns one config rule into zero or more nftables rules.
// Disabled rules and direction mismatches lower to nothing.
func (e *ruleEnv) lowerRule(rule *fwconf.Rule) ([]*nftRule, error) {
	if rule.Disabled {
		return nil, nil
	}

	if rule.Group != nil {
		return e.lowerGroup(rule.Group)
	}

	return e.lowerMatch(rule.Match)
}

// lowerGroup expands a GROUP reference into a jump to the group chain.
// Groups are not applied in the FORWARD direction; with an interface
// bound this would double-filter bridged traffic, and group chains only
// exist for IN and OUT.
func (e *ruleEnv) lowerGroup(group *fwconf.RuleGroup) ([]*nftRule, error) {
	if e.direction == fwconf.DirectionForward {
		return nil, nil
	}

	if _, ok := e.input.Cluster.Groups()[group.Name]; !ok {
		return nil, fmt.Errorf("%w: %q", fwconf.ErrUnknownGroup, group.Name)
	}

	chainName := fmt.Sprintf("group-%s-%s", group.Name, e.direction)
	rules := []*nftRule{newRule(nft.Jump(chainName))}

	if group.Iface != "" {
		if err := e.applyIface(rules, group.Iface); err != nil {
			return nil, err
		}
	}

	return rules, nil
}

func (e *ruleEnv) lowerMatch(match *fwconf.RuleMatch) ([]*nftRule, error) {
	if match.Dir != e.direction {
		return nil, nil
	}

	var rules []*nftRule

	if match.Log != nil && *match.Log != fwconf.LogNolog {
		var terminal []nft.Statement
		if limit := e.defaultLogLimit(); limit != nil {
			terminal = append(terminal, *limit)
		}
		terminal = append(terminal, nft.NewNflog(
			logPrefix(e.vmid, *match.Log, e.chain.Name, match.Verdict), 0))

		rules = append(rules, newRule(terminal...))
	}

	rules = append(rules, newRule(generateVerdict(match.Verdict, e.chain.Table, e.direction)))

	if match.Iface != "" {
		if err := e.applyIface(rules, match.Iface); err != nil {
			return nil, err
		}
	}

	if match.Proto != nil {
		var err error
		rules, err = e.applyProtocol(rules, match.Proto)
		if err != nil {
			return nil, err
		}
	}

	if match.Macro != "" {
		var err error
		rules, err = e.expandMacro(rules, match.Macro)
		if err != nil {
			return nil, err
		}
	}

	if match.IP != nil {
		var err error
		rules, err = e.applyIPMatch(rules, match.IP)
		if err != nil {
			return nil, err
		}
	}

	return rules, nil
}

// applyIface adds the interface predicate. Whose end of the veth/tap
// pair we match depends on the viewpoint: for guests, IN means traffic
// toward the guest (oifname), for the host IN means iifname.
func (e *ruleEnv) applyIface(rules []*nftRule, iface string) error {
	var key string

	switch {
	case e.direction == fwconf.DirectionForward:
		return fmt.Errorf("%w: interfaces cannot be matched in FORWARD rules", fwconf.ErrBadValue)
	case e.vmid != nil && e.direction == fwconf.DirectionIn:
		key = "oifname"
	case e.vmid != nil && e.direction == fwconf.DirectionOut:
		key = "iifname"
	case e.direction == fwconf.DirectionIn:
		key = "iifname"
	default:
		key = "oifname"
	}

	name := e.ifaceName(iface)
	for _, rule := range rules {
		rule.push(nft.MatchEq(nft.MetaKey(key), nft.Str(name)))
	}

	return nil
}

func (e *ruleEnv) applyProtocol(rules []*nftRule, proto *fwconf.Protocol) ([]*nftRule, error) {
	switch proto.Kind {
	case fwconf.ProtoIcmp:
		return applyIcmp(rules, proto, fwconf.FamilyV4), nil
	case fwconf.ProtoIcmp6:
		return applyIcmp(rules, proto, fwconf.FamilyV6), nil
	}

	for _, rule := range rules {
		rule.push(nft.MatchEq(nft.MetaKey("l4proto"), protocolExpr(proto)))
	}

	if proto.HasPorts() {
		applyPorts(rules, proto.Ports)
	}

	return rules, nil
}

func protocolExpr(proto *fwconf.Protocol) nft.Expression {
	if proto.Kind == fwconf.ProtoNumeric {
		return nft.Num(proto.Number)
	}
	return nft.Str(proto.L4Name())
}

// applyIcmp narrows the rules to the protocol's family and matches the
// type or code. Clones already narrowed to the other family are
// dropped.
func applyIcmp(rules []*nftRule, proto *fwconf.Protocol, family fwconf.Family) []*nftRule {
	header := "icmp"
	if family == fwconf.FamilyV6 {
		header = "icmpv6"
	}

	var out []*nftRule
	for _, rule := range rules {
		if !rule.compatible(family) {
			continue
		}

		switch {
		case proto.IcmpCode != nil:
			rule.push(nft.MatchEq(nft.PayloadField(header, "code"), icmpExpr(*proto.IcmpCode)))
		case proto.IcmpType != nil:
			rule.push(nft.MatchEq(nft.PayloadField(header, "type"), icmpExpr(*proto.IcmpType)))
		default:
			rule.push(nft.MatchEq(nft.MetaKey("l4proto"), nft.Str(header)))
		}

		rule.setFamily(family)
		out = append(out, rule)
	}

	return out
}

func icmpExpr(value fwconf.IcmpValue) nft.Expression {
	if value.Named() {
		return nft.Str(value.Name())
	}
	return nft.Num(value.Numeric())
}

func applyPorts(rules []*nftRule, ports fwconf.Ports) {
	for _, rule := range rules {
		if len(ports.Sport) > 0 {
			rule.push(nft.MatchEq(nft.PayloadField("th", "sport"), portListExpr(ports.Sport)))
		}
		if len(ports.Dport) > 0 {
			rule.push(nft.MatchEq(nft.PayloadField("th", "dport"), portListExpr(ports.Dport)))
		}
	}
}

func portListExpr(list fwconf.PortList) nft.Expression {
	if len(list) == 1 {
		return portEntryExpr(list[0])
	}

	set := make(nft.SetLiteral, len(list))
	for i, entry := range list {
		set[i] = portEntryExpr(entry)
	}
	return set
}

func portEntryExpr(entry fwconf.PortEntry) nft.Expression {
	if entry.IsRange() {
		lo, hi := entry.Range()
		return nft.Range{From: nft.Num(lo), To: nft.Num(hi)}
	}
	return nft.Num(entry.Port())
}

// expandMacro replaces the rule set with one copy per family-compatible
// macro fragment. A family-restricted rule whose macro has no
// compatible fragment lowers to nothing; an unrestricted rule with an
// empty expansion is an error.
func (e *ruleEnv) expandMacro(rules []*nftRule, name string) ([]*nftRule, error) {
	macro, ok := fwconf.GetMacro(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", fwconf.ErrUnknownMacro, name)
	}

	restricted := false
	for _, rule := range rules {
		if rule.family != nil {
			restricted = true
			break
		}
	}

	var out []*nftRule
	for _, fragment := range macro.Fragments {
		clones := make([]*nftRule, 0, len(rules))
		for _, rule := range rules {
			if family, ok := fragment.FragmentFamily(); ok && !rule.compatible(family) {
				continue
			}
			clones = append(clones, rule.clone())
		}
		if len(clones) == 0 {
			continue
		}

		if fragment.Proto != nil {
			var err error
			clones, err = e.applyProtocol(clones, fragment.Proto)
			if err != nil {
				return nil, err
			}
		}

		if family, ok := fragment.FragmentFamily(); ok {
			for _, clone := range clones {
				clone.setFamily(family)
			}
		}

		out = append(out, clones...)
	}

	if len(out) == 0 && len(rules) > 0 {
		if restricted {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: macro %q", fwconf.ErrMacroFamilyEmpty, name)
	}

	return out, nil
}

func (e *ruleEnv) applyIPMatch(rules []*nftRule, match *fwconf.IpMatch) ([]*nftRule, error) {
	var err error

	if match.Src != nil {
		rules, err = e.applyAddrMatch(rules, match.Src, "saddr")
		if err != nil {
			return nil, err
		}
	}

	if match.Dst != nil {
		rules, err = e.applyAddrMatch(rules, match.Dst, "daddr")
		if err != nil {
			return nil, err
		}
	}

	return rules, nil
}

func addressHeader(family fwconf.Family) string {
	if family == fwconf.FamilyV6 {
		return "ip6"
	}
	return "ip"
}

func (e *ruleEnv) applyAddrMatch(rules []*nftRule, match *fwconf.IpAddrMatch, field string) ([]*nftRule, error) {
	switch {
	case match.List != nil:
		return applyAddrList(rules, *match.List, field), nil
	case match.Alias != nil:
		alias, ok := e.input.alias(*match.Alias, e.vmid)
		if !ok {
			return nil, fmt.Errorf("%w: %s", fwconf.ErrUnresolvedAlias, match.Alias)
		}
		return applyAliasMatch(rules, alias, field), nil
	case match.Set != nil:
		return e.applySetMatch(rules, *match.Set, field, true)
	}

	return rules, nil
}

// applyAddrList narrows to the list's family and drops incompatible
// clones.
func applyAddrList(rules []*nftRule, list fwconf.IPList, field string) []*nftRule {
	payload := nft.PayloadField(addressHeader(list.Family()), field)

	var out []*nftRule
	for _, rule := range rules {
		if !rule.compatible(list.Family()) {
			continue
		}

		rule.push(nft.MatchEq(payload, ipListExpr(list)))
		rule.setFamily(list.Family())
		out = append(out, rule)
	}

	return out
}

func applyAliasMatch(rules []*nftRule, alias *fwconf.Alias, field string) []*nftRule {
	family := alias.Address.Family()
	payload := nft.PayloadField(addressHeader(family), field)

	var out []*nftRule
	for _, rule := range rules {
		if !rule.compatible(family) {
			continue
		}

		rule.push(nft.MatchEq(payload, cidrExpr(alias.Address)))
		rule.setFamily(family)
		out = append(out, rule)
	}

	return out
}

// applySetMatch splits the rules over the families the referenced set
// was actually emitted for, matching the member set and excluding the
// nomatch set. contains=false matches the complement instead, as two
// rules per family: addresses outside the member set and addresses in
// the nomatch set (used by the IP filter).
func (e *ruleEnv) applySetMatch(rules []*nftRule, name fwconf.IpsetName, field string, contains bool) ([]*nftRule, error) {
	if !e.sets.logicalExists(name, e.vmid) {
		return nil, fmt.Errorf("%w: +%s", fwconf.ErrUnresolvedSetRef, name)
	}

	anyFamily := false
	var out []*nftRule

	for _, family := range []fwconf.Family{fwconf.FamilyV4, fwconf.FamilyV6} {
		if !e.sets.familyPresent(e.chain.Table, family, name, e.vmid) {
			continue
		}
		anyFamily = true

		for _, rule := range rules {
			if !rule.compatible(family) {
				continue
			}

			payload := nft.PayloadField(addressHeader(family), field)
			member := setKernelName(family, name, e.vmid, false)
			nomatch := setKernelName(family, name, e.vmid, true)

			if contains {
				clone := rule.clone()
				clone.setFamily(family)
				clone.push(nft.MatchEq(payload, nft.Str("@"+member)))
				clone.push(nft.MatchNe(payload, nft.Str("@"+nomatch)))
				out = append(out, clone)
				continue
			}

			outside := rule.clone()
			outside.setFamily(family)
			outside.push(nft.MatchNe(payload, nft.Str("@"+member)))

			excluded := rule.clone()
			excluded.setFamily(family)
			excluded.push(nft.MatchEq(payload, nft.Str("@"+nomatch)))

			out = append(out, outside, excluded)
		}
	}

	if !anyFamily {
		return nil, fmt.Errorf("%w: +%s has no address entries", fwconf.ErrUnresolvedSetRef, name)
	}

	return out, nil
}
