package fwconf

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Family is the address family of an address, set or rule fragment.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV4 {
		return "ipv4"
	}
	return "ipv6"
}

func familyOf(addr netip.Addr) Family {
	if addr.Is4() {
		return FamilyV4
	}
	return FamilyV6
}

// Cidr is an address with an optional prefix length. Host bits outside the
// prefix are preserved for display but masked for membership tests.
type Cidr struct {
	addr   netip.Addr
	prefix int
}

// NewCidr validates the prefix bounds for the family of addr.
func NewCidr(addr netip.Addr, prefix int) (Cidr, error) {
	addr = addr.Unmap()
	if prefix < 0 || prefix > addr.BitLen() {
		return Cidr{}, fmt.Errorf("%w: prefix /%d out of range for %s", ErrMalformedAddress, prefix, familyOf(addr))
	}

	return Cidr{addr: addr, prefix: prefix}, nil
}

// HostCidr wraps a bare address as a full-length prefix.
func HostCidr(addr netip.Addr) Cidr {
	addr = addr.Unmap()
	return Cidr{addr: addr, prefix: addr.BitLen()}
}

// ParseCidr parses "A.B.C.D", "A.B.C.D/N", "::1" or "2001:db8::/32".
func ParseCidr(s string) (Cidr, error) {
	addrPart, prefixPart, hasPrefix := strings.Cut(s, "/")

	addr, err := netip.ParseAddr(addrPart)
	if err != nil {
		return Cidr{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}

	if !hasPrefix {
		return HostCidr(addr), nil
	}

	prefix, err := strconv.Atoi(prefixPart)
	if err != nil {
		return Cidr{}, fmt.Errorf("%w: invalid prefix in %q", ErrMalformedAddress, s)
	}

	return NewCidr(addr, prefix)
}

func (c Cidr) Addr() netip.Addr { return c.addr }
func (c Cidr) Prefix() int      { return c.prefix }

func (c Cidr) Family() Family { return familyOf(c.addr) }

// IsHost reports whether the prefix covers the whole address.
func (c Cidr) IsHost() bool { return c.prefix == c.addr.BitLen() }

// Masked returns the network address with host bits cleared.
func (c Cidr) Masked() netip.Addr {
	return netip.PrefixFrom(c.addr, c.prefix).Masked().Addr()
}

// Contains tests membership of addr against the masked network.
func (c Cidr) Contains(addr netip.Addr) bool {
	if familyOf(addr) != c.Family() {
		return false
	}
	return netip.PrefixFrom(c.addr, c.prefix).Masked().Contains(addr)
}

func (c Cidr) String() string {
	return fmt.Sprintf("%s/%d", c.addr, c.prefix)
}

// IPEntry is one element of an address list: a CIDR or an inclusive range.
type IPEntry struct {
	// exactly one of the two shapes is populated
	cidr    *Cidr
	lo, hi  netip.Addr
	isRange bool
}

func CidrEntry(c Cidr) IPEntry {
	return IPEntry{cidr: &c}
}

// RangeEntry builds an inclusive address range. Ranges with lo > hi fail
// with EmptyRange; lo == hi collapses to a host CIDR.
func RangeEntry(lo, hi netip.Addr) (IPEntry, error) {
	lo, hi = lo.Unmap(), hi.Unmap()

	if familyOf(lo) != familyOf(hi) {
		return IPEntry{}, fmt.Errorf("%w: range endpoints %s and %s", ErrFamilyMismatch, lo, hi)
	}

	switch lo.Compare(hi) {
	case 1:
		return IPEntry{}, fmt.Errorf("%w: %s-%s", ErrEmptyRange, lo, hi)
	case 0:
		return CidrEntry(HostCidr(lo)), nil
	}

	return IPEntry{lo: lo, hi: hi, isRange: true}, nil
}

// ParseIPEntry parses a CIDR or a "lo-hi" range.
func ParseIPEntry(s string) (IPEntry, error) {
	if s == "" {
		return IPEntry{}, fmt.Errorf("%w: empty address", ErrMalformedAddress)
	}

	parts := strings.Split(s, "-")
	switch len(parts) {
	case 1:
		cidr, err := ParseCidr(parts[0])
		if err != nil {
			return IPEntry{}, err
		}
		return CidrEntry(cidr), nil
	case 2:
		lo, err := netip.ParseAddr(parts[0])
		if err != nil {
			return IPEntry{}, fmt.Errorf("%w: range start %q", ErrMalformedAddress, parts[0])
		}
		hi, err := netip.ParseAddr(parts[1])
		if err != nil {
			return IPEntry{}, fmt.Errorf("%w: range end %q", ErrMalformedAddress, parts[1])
		}
		return RangeEntry(lo, hi)
	}

	return IPEntry{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
}

func (e IPEntry) IsRange() bool { return e.isRange }

func (e IPEntry) Cidr() Cidr {
	if e.cidr == nil {
		return Cidr{}
	}
	return *e.cidr
}

func (e IPEntry) Range() (lo, hi netip.Addr) { return e.lo, e.hi }

func (e IPEntry) Family() Family {
	if e.isRange {
		return familyOf(e.lo)
	}
	return e.cidr.Family()
}

func (e IPEntry) String() string {
	if e.isRange {
		return fmt.Sprintf("%s-%s", e.lo, e.hi)
	}
	return e.cidr.String()
}

// IPList is a non-empty, single-family list of address entries.
type IPList struct {
	entries []IPEntry
	family  Family
}

// NewIPList checks that all entries share one family.
func NewIPList(entries []IPEntry) (IPList, error) {
	if len(entries) == 0 {
		return IPList{}, fmt.Errorf("%w: empty address list", ErrMalformedAddress)
	}

	family := entries[0].Family()
	for _, entry := range entries[1:] {
		if entry.Family() != family {
			return IPList{}, fmt.Errorf("%w: mixed families in address list", ErrFamilyMismatch)
		}
	}

	return IPList{entries: entries, family: family}, nil
}

// ParseIPList parses a comma-separated address list.
func ParseIPList(s string) (IPList, error) {
	if s == "" {
		return IPList{}, fmt.Errorf("%w: empty address list", ErrMalformedAddress)
	}

	var entries []IPEntry
	for _, element := range strings.Split(s, ",") {
		entry, err := ParseIPEntry(element)
		if err != nil {
			return IPList{}, err
		}
		entries = append(entries, entry)
	}

	return NewIPList(entries)
}

func (l IPList) Entries() []IPEntry { return l.entries }
func (l IPList) Family() Family     { return l.family }

// MacAddress is a 48-bit hardware address.
type MacAddress [6]byte

// ParseMac parses a colon-separated MAC address.
func ParseMac(s string) (MacAddress, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return MacAddress{}, fmt.Errorf("%w: %q is not a MAC address", ErrMalformedAddress, s)
	}

	var mac MacAddress
	for i, part := range parts {
		octet, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return MacAddress{}, fmt.Errorf("%w: %q is not a MAC address", ErrMalformedAddress, s)
		}
		mac[i] = byte(octet)
	}

	return mac, nil
}

func (m MacAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Eui64LinkLocal derives the fe80::/64 link-local address per RFC 4291
// appendix A: mac[0..3] ff:fe mac[3..6] with the universal/local bit
// flipped.
func (m MacAddress) Eui64LinkLocal() netip.Addr {
	var out [16]byte
	out[0], out[1] = 0xFE, 0x80

	out[8] = m[0] ^ 0x02
	out[9], out[10] = m[1], m[2]
	out[11], out[12] = 0xFF, 0xFE
	out[13], out[14], out[15] = m[3], m[4], m[5]

	return netip.AddrFrom16(out)
}
