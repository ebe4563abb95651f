package fwconf

import (
	"fmt"
	"io"
)

// VNet option defaults. VNet firewalls only see bridged (FORWARD)
// traffic, so the single policy knob applies to that direction.
const (
	VnetEnabledDefault = false
)

// VnetPolicyForwardDefault is the fallback forward policy.
var VnetPolicyForwardDefault = VerdictAccept

type vnetOptions struct {
	enable        *bool
	logLevel      *LogLevel
	policyForward *Verdict
}

// VnetConfig is the firewall config of one SDN virtual network. Only
// FORWARD rules are meaningful; other directions are rejected at parse.
type VnetConfig struct {
	options vnetOptions
	raw     *RawConfig
}

// ParseVnetConfig reads a <vnet>.fw file.
func ParseVnetConfig(input io.Reader) (*VnetConfig, error) {
	scope := ScopeGuest
	raw, err := ParseRawConfig(input, ParserConfig{IpsetScope: &scope})
	if err != nil {
		return nil, fmt.Errorf("vnet config: %w", err)
	}

	if len(raw.Groups) != 0 {
		return nil, fmt.Errorf("vnet config: %w: groups are cluster-level", ErrBadValue)
	}
	if len(raw.Aliases) != 0 {
		return nil, fmt.Errorf("vnet config: %w: aliases are cluster-level", ErrBadValue)
	}

	for i, rule := range raw.Rules {
		if rule.Match != nil && rule.Match.Dir != DirectionForward {
			return nil, fmt.Errorf("vnet config: rule %d: %w: vnet rules must use FORWARD", i, ErrBadValue)
		}
	}

	cfg := &VnetConfig{raw: raw}

	d := newOptionDecoder(raw.Options)
	d.boolOpt("enable", &cfg.options.enable)
	d.logLevelOpt("log_level_forward", &cfg.options.logLevel)
	d.verdictOpt("policy_forward", &cfg.options.policyForward)
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("vnet config: %w", err)
	}

	return cfg, nil
}

// DefaultVnetConfig is the config used for VNets without a firewall
// config file.
func DefaultVnetConfig() *VnetConfig {
	return &VnetConfig{raw: &RawConfig{
		Options: map[string]string{},
		Aliases: map[string]*Alias{},
		Ipsets:  map[string]*Ipset{},
		Groups:  map[string]*Group{},
	}}
}

func (c *VnetConfig) Rules() []*Rule            { return c.raw.Rules }
func (c *VnetConfig) Ipsets() map[string]*Ipset { return c.raw.Ipsets }

func (c *VnetConfig) IsEnabled() bool { return boolOr(c.options.enable, VnetEnabledDefault) }

// LogLevel is the level for the forward default-policy log rule.
func (c *VnetConfig) LogLevel() LogLevel { return levelOr(c.options.logLevel) }

// PolicyForward returns the forward policy with its default.
func (c *VnetConfig) PolicyForward() Verdict {
	if c.options.policyForward != nil {
		return *c.options.policyForward
	}
	return VnetPolicyForwardDefault
}
