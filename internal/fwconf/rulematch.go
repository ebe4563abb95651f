package fwconf

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ruleOptions holds the raw option tokens of a rule line before they are
// lifted into the typed RuleMatch.
type ruleOptions struct {
	proto    string
	dport    string
	sport    string
	dest     string
	source   string
	iface    string
	log      string
	icmpType string
}

// parseRuleOptions scans "-opt value" pairs; option tokens start with one
// or two dashes and are order-insensitive. Duplicates and unknown names
// are rejected.
func parseRuleOptions(line string) (ruleOptions, error) {
	var options ruleOptions
	seen := map[string]bool{}

	for {
		line = strings.TrimLeft(line, " \t")
		if line == "" {
			break
		}

		rest, ok := strings.CutPrefix(line, "-")
		if !ok {
			return ruleOptions{}, fmt.Errorf("%w: expected an option starting with '-', found %q", ErrBadValue, line)
		}
		// second dash is optional
		rest = strings.TrimPrefix(rest, "-")

		param, rest, ok := matchName(rest)
		if !ok {
			return ruleOptions{}, fmt.Errorf("%w: parameter name after '-'", ErrMissingRequired)
		}

		value, remainder, ok := matchNonWhitespace(strings.TrimLeft(rest, " \t"))
		if !ok || strings.HasPrefix(value, "-") {
			return ruleOptions{}, fmt.Errorf("%w: value for option %q", ErrMissingRequired, param)
		}
		line = remainder

		if seen[param] {
			return ruleOptions{}, fmt.Errorf("%w: duplicate option %q in rule", ErrBadValue, param)
		}
		seen[param] = true

		switch param {
		case "p", "proto":
			options.proto = value
		case "dport":
			options.dport = value
		case "sport":
			options.sport = value
		case "dest":
			options.dest = value
		case "source":
			options.source = value
		case "i", "iface":
			options.iface = value
		case "log":
			options.log = value
		case "icmp-type":
			options.icmpType = value
		default:
			return ruleOptions{}, fmt.Errorf("%w: %q", ErrUnknownOption, param)
		}
	}

	return options, nil
}

// RuleMatch is a fully-parsed match rule.
type RuleMatch struct {
	Dir     Direction
	Verdict Verdict
	Macro   string

	Iface string
	Log   *LogLevel
	IP    *IpMatch
	Proto *Protocol
}

// parseRuleMatch parses "DIR ACTION [options...]" including the
// "MACRO(ACTION)" spelling.
func parseRuleMatch(line string) (*RuleMatch, error) {
	dir, rest, ok := matchName(line)
	if !ok {
		return nil, fmt.Errorf("%w: rule direction", ErrMissingRequired)
	}

	direction, err := ParseDirection(dir)
	if err != nil {
		return nil, err
	}

	macro, verdict, rest, err := parseAction(strings.TrimLeft(rest, " \t"))
	if err != nil {
		return nil, err
	}

	options, err := parseRuleOptions(rest)
	if err != nil {
		return nil, err
	}

	return newRuleMatch(direction, verdict, macro, options)
}

// parseAction parses either "VERDICT" or "MACRO(VERDICT)".
func parseAction(line string) (macro string, verdict Verdict, rest string, err error) {
	name, rest, ok := matchName(line)
	if !ok {
		return "", 0, "", fmt.Errorf("%w: rule action", ErrMissingRequired)
	}

	if inner, found := strings.CutPrefix(rest, "("); found {
		macro = name

		verdictName, inner, ok := matchName(inner)
		if !ok {
			return "", 0, "", fmt.Errorf("%w: verdict inside macro action", ErrMissingRequired)
		}

		rest, found = strings.CutPrefix(inner, ")")
		if !found {
			return "", 0, "", fmt.Errorf("%w: expected ')' after macro verdict", ErrBadValue)
		}

		verdict, err = ParseVerdict(verdictName)
		return macro, verdict, strings.TrimLeft(rest, " \t"), err
	}

	verdict, err = ParseVerdict(name)
	return "", verdict, strings.TrimLeft(rest, " \t"), err
}

func newRuleMatch(dir Direction, verdict Verdict, macro string, options ruleOptions) (*RuleMatch, error) {
	if options.dport != "" && options.icmpType != "" {
		return nil, fmt.Errorf("%w: dport and icmp-type are mutually exclusive", ErrBadValue)
	}

	rule := &RuleMatch{
		Dir:     dir,
		Verdict: verdict,
		Macro:   macro,
		Iface:   options.iface,
	}

	if options.log != "" {
		level, err := ParseLogLevel(options.log)
		if err != nil {
			return nil, err
		}
		rule.Log = &level
	}

	ip, err := ipMatchFromOptions(options)
	if err != nil {
		return nil, err
	}
	rule.IP = ip

	proto, err := protocolFromOptions(options)
	if err != nil {
		return nil, err
	}
	rule.Proto = proto

	if err := rule.checkFamilies(); err != nil {
		return nil, err
	}

	return rule, nil
}

// checkFamilies enforces mutual consistency of address terms and the
// protocol family (icmp is IPv4-only, icmpv6 IPv6-only).
func (r *RuleMatch) checkFamilies() error {
	var families []Family

	if r.IP != nil {
		if f, ok := r.IP.Family(); ok {
			families = append(families, f)
		}
	}

	if r.Proto != nil {
		if f, ok := r.Proto.Family(); ok {
			families = append(families, f)
		}
	}

	for i := 1; i < len(families); i++ {
		if families[i] != families[0] {
			return fmt.Errorf("%w: rule mixes %s and %s terms", ErrFamilyMismatch, families[0], families[i])
		}
	}

	return nil
}

// IpMatch is the source/destination address restriction of a rule.
type IpMatch struct {
	Src *IpAddrMatch
	Dst *IpAddrMatch
}

// Family returns the concrete family of literal address terms, if any.
func (m *IpMatch) Family() (Family, bool) {
	if m.Src != nil && m.Src.List != nil {
		return m.Src.List.Family(), true
	}
	if m.Dst != nil && m.Dst.List != nil {
		return m.Dst.List.Family(), true
	}
	return 0, false
}

func ipMatchFromOptions(options ruleOptions) (*IpMatch, error) {
	var match IpMatch

	if options.source != "" {
		src, err := ParseIpAddrMatch(options.source)
		if err != nil {
			return nil, err
		}
		match.Src = src
	}

	if options.dest != "" {
		dst, err := ParseIpAddrMatch(options.dest)
		if err != nil {
			return nil, err
		}
		match.Dst = dst
	}

	if match.Src == nil && match.Dst == nil {
		return nil, nil
	}

	if match.Src != nil && match.Dst != nil &&
		match.Src.List != nil && match.Dst.List != nil &&
		match.Src.List.Family() != match.Dst.List.Family() {
		return nil, fmt.Errorf("%w: source and dest families differ", ErrFamilyMismatch)
	}

	return &match, nil
}

// IpAddrMatch is one address term: a literal list, an ipset reference or
// an alias reference.
type IpAddrMatch struct {
	List  *IPList
	Set   *IpsetName
	Alias *AliasName
}

// ParseIpAddrMatch tries, in order, an address list, an ipset reference
// and an alias reference.
func ParseIpAddrMatch(value string) (*IpAddrMatch, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: empty address specification", ErrMalformedAddress)
	}

	if list, err := ParseIPList(value); err == nil {
		return &IpAddrMatch{List: &list}, nil
	}

	if set, err := ParseIpsetName(value); err == nil {
		return &IpAddrMatch{Set: &set}, nil
	}

	if alias, err := ParseAliasName(value); err == nil {
		return &IpAddrMatch{Alias: &alias}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrMalformedAddress, value)
}

// ProtocolKind enumerates the protocol shapes a rule can match.
type ProtocolKind int

const (
	ProtoTcp ProtocolKind = iota
	ProtoUdp
	ProtoSctp
	ProtoDccp
	ProtoUdplite
	ProtoIcmp
	ProtoIcmp6
	ProtoNamed
	ProtoNumeric
)

// Protocol is a parsed -p restriction plus its port or ICMP submatch.
type Protocol struct {
	Kind ProtocolKind

	Ports Ports // tcp, udp, sctp, dccp, udplite

	IcmpType *IcmpValue // icmp / icmpv6
	IcmpCode *IcmpValue

	Name   string // named
	Number uint8  // numeric
}

// Family reports the family the protocol restricts the rule to, if any.
func (p *Protocol) Family() (Family, bool) {
	switch p.Kind {
	case ProtoIcmp:
		return FamilyV4, true
	case ProtoIcmp6:
		return FamilyV6, true
	}
	return 0, false
}

// HasPorts reports whether the protocol carries port matches.
func (p *Protocol) HasPorts() bool {
	switch p.Kind {
	case ProtoTcp, ProtoUdp, ProtoSctp, ProtoDccp, ProtoUdplite:
		return true
	}
	return false
}

// L4Name is the nftables meta l4proto spelling.
func (p *Protocol) L4Name() string {
	switch p.Kind {
	case ProtoTcp:
		return "tcp"
	case ProtoUdp:
		return "udp"
	case ProtoSctp:
		return "sctp"
	case ProtoDccp:
		return "dccp"
	case ProtoUdplite:
		return "udplite"
	case ProtoIcmp:
		return "icmp"
	case ProtoIcmp6:
		return "icmpv6"
	case ProtoNamed:
		return p.Name
	}
	return strconv.Itoa(int(p.Number))
}

// Ports holds optional source and destination port lists.
type Ports struct {
	Sport PortList
	Dport PortList
}

func portsFromOptions(options ruleOptions) (Ports, error) {
	var ports Ports

	if options.sport != "" {
		sport, err := ParsePortList(options.sport)
		if err != nil {
			return Ports{}, err
		}
		ports.Sport = sport
	}

	if options.dport != "" {
		dport, err := ParsePortList(options.dport)
		if err != nil {
			return Ports{}, err
		}
		ports.Dport = dport
	}

	return ports, nil
}

func protocolFromOptions(options ruleOptions) (*Protocol, error) {
	if options.proto == "" {
		return nil, nil
	}

	proto := &Protocol{}

	switch options.proto {
	case "tcp", strconv.Itoa(unix.IPPROTO_TCP):
		proto.Kind = ProtoTcp
	case "udp", strconv.Itoa(unix.IPPROTO_UDP):
		proto.Kind = ProtoUdp
	case "sctp", strconv.Itoa(unix.IPPROTO_SCTP):
		proto.Kind = ProtoSctp
	case "dccp", strconv.Itoa(unix.IPPROTO_DCCP):
		proto.Kind = ProtoDccp
	case "udplite", strconv.Itoa(unix.IPPROTO_UDPLITE):
		proto.Kind = ProtoUdplite
	case "icmp", strconv.Itoa(unix.IPPROTO_ICMP):
		proto.Kind = ProtoIcmp
		if options.icmpType != "" {
			if err := proto.parseIcmpValue(options.icmpType, ParseIcmpType, ParseIcmpCode); err != nil {
				return nil, err
			}
		}
		return proto, nil
	case "icmpv6", "ipv6-icmp", strconv.Itoa(unix.IPPROTO_ICMPV6):
		proto.Kind = ProtoIcmp6
		if options.icmpType != "" {
			if err := proto.parseIcmpValue(options.icmpType, ParseIcmp6Type, ParseIcmp6Code); err != nil {
				return nil, err
			}
		}
		return proto, nil
	default:
		if num, err := strconv.ParseUint(options.proto, 10, 8); err == nil {
			proto.Kind = ProtoNumeric
			proto.Number = uint8(num)
		} else {
			proto.Kind = ProtoNamed
			proto.Name = options.proto
		}
		return proto, nil
	}

	ports, err := portsFromOptions(options)
	if err != nil {
		return nil, err
	}
	proto.Ports = ports

	return proto, nil
}

// parseIcmpValue resolves --icmp-type against the type table first, then
// the code table; "any" leaves both unset.
func (p *Protocol) parseIcmpValue(s string, parseType, parseCode func(string) (IcmpValue, error)) error {
	if s == "any" {
		return nil
	}

	if ty, err := parseType(s); err == nil {
		p.IcmpType = &ty
		return nil
	}

	if code, err := parseCode(s); err == nil {
		p.IcmpCode = &code
		return nil
	}

	return fmt.Errorf("%w: %q is neither an icmp type nor code", ErrBadValue, s)
}
