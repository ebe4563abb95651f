package fwconf

import (
	"fmt"
	"io"
)

// Guest option defaults.
const (
	GuestEnabledDefault   = false
	GuestAllowNdpDefault  = true
	GuestAllowDhcpDefault = true
	GuestAllowRaDefault   = false
	GuestMacfilterDefault = true
	GuestIpfilterDefault  = false
)

// Default guest policies.
var (
	GuestPolicyInDefault  = VerdictDrop
	GuestPolicyOutDefault = VerdictAccept
)

type guestOptions struct {
	dhcp      *bool
	enable    *bool
	ipfilter  *bool
	ndp       *bool
	radv      *bool
	macfilter *bool

	logLevelIn  *LogLevel
	logLevelOut *LogLevel

	policyIn  *Verdict
	policyOut *Verdict
}

// GuestConfig is one guest's <vmid>.fw content: options, rules and
// guest-scoped IP sets (including explicit ipfilter-netN sets). Guests
// cannot declare groups or datacenter aliases.
type GuestConfig struct {
	options guestOptions
	raw     *RawConfig
}

// ParseGuestConfig reads a guest firewall config.
func ParseGuestConfig(input io.Reader) (*GuestConfig, error) {
	scope := ScopeGuest
	raw, err := ParseRawConfig(input, ParserConfig{
		GuestIfaceNames: true,
		IpsetScope:      &scope,
	})
	if err != nil {
		return nil, fmt.Errorf("guest config: %w", err)
	}

	if len(raw.Groups) != 0 {
		return nil, fmt.Errorf("guest config: %w: groups are cluster-level", ErrBadValue)
	}

	cfg := &GuestConfig{raw: raw}

	d := newOptionDecoder(raw.Options)
	d.boolOpt("dhcp", &cfg.options.dhcp)
	d.boolOpt("enable", &cfg.options.enable)
	d.boolOpt("ipfilter", &cfg.options.ipfilter)
	d.boolOpt("ndp", &cfg.options.ndp)
	d.boolOpt("radv", &cfg.options.radv)
	d.boolOpt("macfilter", &cfg.options.macfilter)
	d.logLevelOpt("log_level_in", &cfg.options.logLevelIn)
	d.logLevelOpt("log_level_out", &cfg.options.logLevelOut)
	d.verdictOpt("policy_in", &cfg.options.policyIn)
	d.verdictOpt("policy_out", &cfg.options.policyOut)
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("guest config: %w", err)
	}

	return cfg, nil
}

// DefaultGuestConfig is the config used for guests without a firewall
// config file; with the enable default false it compiles to nothing.
func DefaultGuestConfig() *GuestConfig {
	return &GuestConfig{raw: &RawConfig{
		Options: map[string]string{},
		Aliases: map[string]*Alias{},
		Ipsets:  map[string]*Ipset{},
		Groups:  map[string]*Group{},
	}}
}

func (c *GuestConfig) Rules() []*Rule            { return c.raw.Rules }
func (c *GuestConfig) Ipsets() map[string]*Ipset { return c.raw.Ipsets }

func (c *GuestConfig) Alias(name string) (*Alias, bool) {
	alias, ok := c.raw.Aliases[name]
	return alias, ok
}

func (c *GuestConfig) IsEnabled() bool  { return boolOr(c.options.enable, GuestEnabledDefault) }
func (c *GuestConfig) AllowNdp() bool   { return boolOr(c.options.ndp, GuestAllowNdpDefault) }
func (c *GuestConfig) AllowDhcp() bool  { return boolOr(c.options.dhcp, GuestAllowDhcpDefault) }
func (c *GuestConfig) AllowRa() bool    { return boolOr(c.options.radv, GuestAllowRaDefault) }
func (c *GuestConfig) Macfilter() bool  { return boolOr(c.options.macfilter, GuestMacfilterDefault) }
func (c *GuestConfig) Ipfilter() bool   { return boolOr(c.options.ipfilter, GuestIpfilterDefault) }

// LogLevel is the per-direction level for the default-policy log rule.
func (c *GuestConfig) LogLevel(dir Direction) LogLevel {
	if dir == DirectionIn {
		return levelOr(c.options.logLevelIn)
	}
	return levelOr(c.options.logLevelOut)
}

// DefaultPolicy returns policy_in / policy_out with the guest defaults.
func (c *GuestConfig) DefaultPolicy(dir Direction) Verdict {
	if dir == DirectionIn {
		if c.options.policyIn != nil {
			return *c.options.policyIn
		}
		return GuestPolicyInDefault
	}

	if c.options.policyOut != nil {
		return *c.options.policyOut
	}
	return GuestPolicyOutDefault
}
