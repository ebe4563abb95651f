package fwconf

import (
	"fmt"
	"strings"
)

// IpsetName is a scoped IP set reference like "+dc/blacklist". The plus
// sign marks set references in rule lines and section headers use the bare
// scope prefix.
type IpsetName struct {
	scope Scope
	name  string
}

func NewIpsetName(scope Scope, name string) IpsetName {
	return IpsetName{scope: scope, name: name}
}

// ParseIpsetName parses "+dc/name" or "+guest/name".
func ParseIpsetName(s string) (IpsetName, error) {
	rest, ok := strings.CutPrefix(s, "+")
	if !ok {
		return IpsetName{}, fmt.Errorf("%w: ipset reference %q", ErrNameSyntax, s)
	}

	prefix, name, found := strings.Cut(rest, "/")
	if !found || name == "" {
		return IpsetName{}, fmt.Errorf("%w: ipset reference %q", ErrNameSyntax, s)
	}

	scope, err := parseScope(prefix)
	if err != nil {
		return IpsetName{}, fmt.Errorf("%w: ipset reference %q", ErrNameSyntax, s)
	}

	if !validName(name) {
		return IpsetName{}, fmt.Errorf("%w: ipset name %q", ErrNameSyntax, name)
	}

	return IpsetName{scope: scope, name: name}, nil
}

func (n IpsetName) Scope() Scope { return n.scope }
func (n IpsetName) Name() string { return n.name }

func (n IpsetName) String() string {
	return fmt.Sprintf("%s/%s", n.scope, n.name)
}

// IpsetEntry is one line of an [IPSET] block: an address, MAC or alias
// reference, optionally negated with '!' (nomatch) and commented.
type IpsetEntry struct {
	Nomatch bool
	Comment string

	// exactly one of the three is set
	Cidr  *Cidr
	Mac   *MacAddress
	Alias *AliasName
}

// ParseIpsetEntry parses "[!]address [# comment]".
func ParseIpsetEntry(line string) (IpsetEntry, error) {
	line = strings.TrimSpace(line)

	var entry IpsetEntry
	if rest, ok := strings.CutPrefix(line, "!"); ok {
		entry.Nomatch = true
		line = strings.TrimLeft(rest, " \t")
	}

	value, rest, ok := matchNonWhitespace(line)
	if !ok {
		return IpsetEntry{}, fmt.Errorf("%w: ipset entry address", ErrMissingRequired)
	}

	switch {
	default:
		return IpsetEntry{}, fmt.Errorf("%w: ipset entry %q", ErrMalformedAddress, value)
	case isCidrLike(value):
		cidr, err := ParseCidr(value)
		if err != nil {
			return IpsetEntry{}, err
		}
		entry.Cidr = &cidr
	case isMacLike(value):
		mac, err := ParseMac(value)
		if err != nil {
			return IpsetEntry{}, err
		}
		entry.Mac = &mac
	case strings.Contains(value, "/"):
		alias, err := ParseAliasName(value)
		if err != nil {
			return IpsetEntry{}, err
		}
		entry.Alias = &alias
	}

	rest = strings.TrimSpace(rest)
	if c, ok := strings.CutPrefix(rest, "#"); ok {
		entry.Comment = strings.TrimSpace(c)
	} else if rest != "" {
		return IpsetEntry{}, fmt.Errorf("%w: trailing characters in ipset entry: %q", ErrBadValue, rest)
	}

	return entry, nil
}

// isCidrLike distinguishes addresses from alias references: aliases never
// start with a digit or contain a colon.
func isCidrLike(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		// could still be a MAC like "00:11:...", handled by isMacLike first
		return !isMacLike(s)
	}
	return strings.Contains(s, ":") && !isMacLike(s)
}

// isMacLike matches the six colon-separated hex-pair shape.
func isMacLike(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return false
	}
	for _, part := range parts {
		if len(part) != 2 {
			return false
		}
		for i := 0; i < 2; i++ {
			b := part[i]
			if !(b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F') {
				return false
			}
		}
	}
	return true
}

// Ipset is an ordered, named address collection.
type Ipset struct {
	Name    IpsetName
	Entries []IpsetEntry
	Comment string
}

func NewIpset(name IpsetName) *Ipset {
	return &Ipset{Name: name}
}

func (s *Ipset) parseEntry(line string) error {
	entry, err := ParseIpsetEntry(line)
	if err != nil {
		return err
	}
	s.Entries = append(s.Entries, entry)
	return nil
}

// IpfilterIndex reports the NIC index when the set is a guest-scoped
// per-NIC IP filter ("ipfilter-netN"), and false otherwise.
func (s *Ipset) IpfilterIndex() (int, bool) {
	if s.Name.Scope() != ScopeGuest {
		return 0, false
	}

	return ipfilterIndex(s.Name.Name())
}

// IpfilterName is the synthesized set name for the NIC at index.
func IpfilterName(index int) string {
	return fmt.Sprintf("ipfilter-net%d", index)
}

func ipfilterIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "ipfilter-net")
	if !ok {
		return 0, false
	}

	digits, tail, ok := matchDigits(rest)
	if !ok || tail != "" {
		return 0, false
	}

	var index int
	for i := 0; i < len(digits); i++ {
		index = index*10 + int(digits[i]-'0')
	}

	if index > 31 {
		return 0, false
	}

	return index, true
}
