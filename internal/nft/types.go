package nft

import "fmt"

// TableFamily is the nftables address family of a table.
type TableFamily string

const (
	FamilyInet   TableFamily = "inet"
	FamilyBridge TableFamily = "bridge"
)

// TablePart identifies a table.
type TablePart struct {
	Family TableFamily
	Name   string
}

func NewTable(family TableFamily, name string) TablePart {
	return TablePart{Family: family, Name: name}
}

// ChainPart identifies a chain within a table.
type ChainPart struct {
	Table TablePart
	Name  string
}

func NewChain(table TablePart, name string) ChainPart {
	return ChainPart{Table: table, Name: name}
}

// SetName identifies a set or map within a table.
type SetName struct {
	Table TablePart
	Name  string
}

func NewSetName(table TablePart, name string) SetName {
	return SetName{Table: table, Name: name}
}

// Ref is the "@name" reference spelling used inside expressions.
func (s SetName) Ref() string { return "@" + s.Name }

// Chain types and hooks for base chains.
const (
	ChainTypeFilter = "filter"

	HookInput       = "input"
	HookOutput      = "output"
	HookForward     = "forward"
	HookPrerouting  = "prerouting"
	HookPostrouting = "postrouting"

	PolicyAccept = "accept"
	PolicyDrop   = "drop"
)

// BaseChain carries the hook binding of a base chain; regular chains
// have none.
type BaseChain struct {
	Type     string
	Hook     string
	Priority int
	Policy   string
}

// Element types of sets and maps.
const (
	TypeIpv4Addr  = "ipv4_addr"
	TypeIpv6Addr  = "ipv6_addr"
	TypeEtherAddr = "ether_addr"
	TypeIfname    = "ifname"
	TypeVerdict   = "verdict"
)

// Set flags.
const (
	FlagInterval = "interval"
	FlagDynamic  = "dynamic"
	FlagTimeout  = "timeout"
)

// SetConfig describes a set or map to create. For maps, MapType names
// the value type ("verdict").
type SetConfig struct {
	Name      SetName
	KeyType   []string
	MapType   string
	Flags     []string
	Timeout   int64
	AutoMerge bool
}

func NewSetConfig(name SetName, keyType ...string) *SetConfig {
	return &SetConfig{Name: name, KeyType: keyType}
}

func (c *SetConfig) WithFlags(flags ...string) *SetConfig {
	c.Flags = append(c.Flags, flags...)
	return c
}

func (c *SetConfig) WithTimeout(seconds int64) *SetConfig {
	c.Timeout = seconds
	return c
}

func (c *SetConfig) WithAutoMerge() *SetConfig {
	c.AutoMerge = true
	return c
}

func (c *SetConfig) WithMapType(mapType string) *SetConfig {
	c.MapType = mapType
	return c
}

// CtHelperConfig describes a ct helper object.
type CtHelperConfig struct {
	Table    TablePart
	Name     string
	Type     string
	Protocol string // "tcp" or "udp"
	L3Proto  string // "", "ip" or "ip6"
}

// IpsetSetName derives the kernel set name of a config-level IP set:
// family prefix, scope, optional vmid and the nomatch suffix, e.g.
// "v4-dc/management" or "v6-guest-100/ipfilter-net0-nomatch".
func IpsetSetName(familyPrefix, scope, name string, vmid string, nomatch bool) string {
	scopePart := scope
	if vmid != "" {
		scopePart = fmt.Sprintf("%s-%s", scope, vmid)
	}

	full := fmt.Sprintf("%s-%s/%s", familyPrefix, scopePart, name)
	if nomatch {
		full += "-nomatch"
	}

	return full
}
