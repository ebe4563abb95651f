package fwconf

import (
	"fmt"
	"strconv"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Named ICMP types and codes as nftables spells them. Numeric values come
// from the x/net header packages where they exist; the remainder are the
// classic RFC 792 assignments.
var icmpTypes = map[string]uint8{
	"echo-reply":              uint8(ipv4.ICMPTypeEchoReply),
	"destination-unreachable": uint8(ipv4.ICMPTypeDestinationUnreachable),
	"source-quench":           4,
	"redirect":                uint8(ipv4.ICMPTypeRedirect),
	"echo-request":            uint8(ipv4.ICMPTypeEcho),
	"router-advertisement":    uint8(ipv4.ICMPTypeRouterAdvertisement),
	"router-solicitation":     uint8(ipv4.ICMPTypeRouterSolicitation),
	"time-exceeded":           uint8(ipv4.ICMPTypeTimeExceeded),
	"parameter-problem":       uint8(ipv4.ICMPTypeParameterProblem),
	"timestamp-request":       uint8(ipv4.ICMPTypeTimestamp),
	"timestamp-reply":         uint8(ipv4.ICMPTypeTimestampReply),
	"info-request":            15,
	"info-reply":              16,
	"address-mask-request":    17,
	"address-mask-reply":      18,
}

var icmpCodes = map[string]uint8{
	"net-unreachable":  0,
	"host-unreachable": 1,
	"prot-unreachable": 2,
	"port-unreachable": 3,
	"net-prohibited":   9,
	"host-prohibited":  10,
	"admin-prohibited": 13,
}

var icmp6Types = map[string]uint8{
	"destination-unreachable": uint8(ipv6.ICMPTypeDestinationUnreachable),
	"packet-too-big":          uint8(ipv6.ICMPTypePacketTooBig),
	"time-exceeded":           uint8(ipv6.ICMPTypeTimeExceeded),
	"parameter-problem":       uint8(ipv6.ICMPTypeParameterProblem),
	"echo-request":            uint8(ipv6.ICMPTypeEchoRequest),
	"echo-reply":              uint8(ipv6.ICMPTypeEchoReply),
	"mld-listener-query":      uint8(ipv6.ICMPTypeMulticastListenerQuery),
	"mld-listener-report":     uint8(ipv6.ICMPTypeMulticastListenerReport),
	"mld-listener-done":       uint8(ipv6.ICMPTypeMulticastListenerDone),
	"mld-listener-reduction":  uint8(ipv6.ICMPTypeMulticastListenerDone),
	"nd-router-solicit":       uint8(ipv6.ICMPTypeRouterSolicitation),
	"nd-router-advert":        uint8(ipv6.ICMPTypeRouterAdvertisement),
	"nd-neighbor-solicit":     uint8(ipv6.ICMPTypeNeighborSolicitation),
	"nd-neighbor-advert":      uint8(ipv6.ICMPTypeNeighborAdvertisement),
	"nd-redirect":             uint8(ipv6.ICMPTypeRedirect),
	"router-renumbering":      uint8(ipv6.ICMPTypeRouterRenumbering),
	"ind-neighbor-solicit":    141,
	"ind-neighbor-advert":     142,
	"mld2-listener-report":    uint8(ipv6.ICMPTypeVersion2MulticastListenerReport),
}

var icmp6Codes = map[string]uint8{
	"no-route":         0,
	"admin-prohibited": 1,
	"addr-unreachable": 3,
	"port-unreachable": 4,
	"policy-fail":      5,
	"reject-route":     6,
}

// IcmpValue is an ICMP type or code, spelled by name or numerically.
// Named values serialize by name so the emitted ruleset stays readable.
type IcmpValue struct {
	name    string
	numeric uint8
}

func (v IcmpValue) Named() bool    { return v.name != "" }
func (v IcmpValue) Name() string   { return v.name }
func (v IcmpValue) Numeric() uint8 { return v.numeric }

func (v IcmpValue) String() string {
	if v.name != "" {
		return v.name
	}
	return strconv.Itoa(int(v.numeric))
}

func parseIcmpValue(s string, table map[string]uint8, kind string) (IcmpValue, error) {
	if num, err := strconv.ParseUint(s, 10, 8); err == nil {
		return IcmpValue{numeric: uint8(num)}, nil
	}

	if num, ok := table[s]; ok {
		return IcmpValue{name: s, numeric: num}, nil
	}

	return IcmpValue{}, fmt.Errorf("%w: %q is not a valid %s", ErrBadValue, s, kind)
}

// ParseIcmpType resolves an IPv4 ICMP type name or number.
func ParseIcmpType(s string) (IcmpValue, error) {
	return parseIcmpValue(s, icmpTypes, "icmp type")
}

// ParseIcmpCode resolves an IPv4 ICMP code name or number.
func ParseIcmpCode(s string) (IcmpValue, error) {
	return parseIcmpValue(s, icmpCodes, "icmp code")
}

// ParseIcmp6Type resolves an ICMPv6 type name or number.
func ParseIcmp6Type(s string) (IcmpValue, error) {
	return parseIcmpValue(s, icmp6Types, "icmpv6 type")
}

// ParseIcmp6Code resolves an ICMPv6 code name or number.
func ParseIcmp6Code(s string) (IcmpValue, error) {
	return parseIcmpValue(s, icmp6Codes, "icmpv6 code")
}
