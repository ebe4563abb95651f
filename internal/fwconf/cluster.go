package fwconf

import (
	"fmt"
	"io"
)

// Cluster-wide defaults.
const (
	ClusterEnabledDefault = false
)

// ClusterPolicyInDefault / ClusterPolicyOutDefault are the fallback
// policies when policy_in / policy_out are unset.
var (
	ClusterPolicyInDefault  = VerdictDrop
	ClusterPolicyOutDefault = VerdictAccept
)

type clusterOptions struct {
	enable       *bool
	ebtables     *bool
	logRatelimit *LogRateLimit
	policyIn     *Verdict
	policyOut    *Verdict
}

// ClusterConfig is the datacenter-wide firewall config: options, rules,
// aliases, IP sets and security groups shared by every host.
type ClusterConfig struct {
	options clusterOptions
	raw     *RawConfig
}

// ParseClusterConfig reads a cluster.fw file.
func ParseClusterConfig(input io.Reader) (*ClusterConfig, error) {
	scope := ScopeDatacenter
	raw, err := ParseRawConfig(input, ParserConfig{IpsetScope: &scope})
	if err != nil {
		return nil, fmt.Errorf("cluster config: %w", err)
	}

	cfg := &ClusterConfig{raw: raw}

	d := newOptionDecoder(raw.Options)
	d.boolOpt("enable", &cfg.options.enable)
	d.boolOpt("ebtables", &cfg.options.ebtables)
	d.ratelimitOpt("log_ratelimit", &cfg.options.logRatelimit)
	d.verdictOpt("policy_in", &cfg.options.policyIn)
	d.verdictOpt("policy_out", &cfg.options.policyOut)
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("cluster config: %w", err)
	}

	return cfg, nil
}

// DefaultClusterConfig is the empty config used when no cluster.fw
// exists.
func DefaultClusterConfig() *ClusterConfig {
	return &ClusterConfig{raw: &RawConfig{
		Options: map[string]string{},
		Aliases: map[string]*Alias{},
		Ipsets:  map[string]*Ipset{},
		Groups:  map[string]*Group{},
	}}
}

func (c *ClusterConfig) Rules() []*Rule             { return c.raw.Rules }
func (c *ClusterConfig) Groups() map[string]*Group  { return c.raw.Groups }
func (c *ClusterConfig) Ipsets() map[string]*Ipset  { return c.raw.Ipsets }
func (c *ClusterConfig) Alias(name string) (*Alias, bool) {
	alias, ok := c.raw.Aliases[name]
	return alias, ok
}

// AddIpset registers an additional set under its name, replacing any
// set of the same name.
func (c *ClusterConfig) AddIpset(set *Ipset) {
	c.raw.Ipsets[set.Name.Name()] = set
}

// IsEnabled returns the enable option or ClusterEnabledDefault.
func (c *ClusterConfig) IsEnabled() bool {
	if c.options.enable != nil {
		return *c.options.enable
	}
	return ClusterEnabledDefault
}

// DefaultPolicy returns policy_in / policy_out with their defaults.
func (c *ClusterConfig) DefaultPolicy(dir Direction) Verdict {
	if dir == DirectionIn {
		if c.options.policyIn != nil {
			return *c.options.policyIn
		}
		return ClusterPolicyInDefault
	}

	if c.options.policyOut != nil {
		return *c.options.policyOut
	}
	return ClusterPolicyOutDefault
}

// LogRatelimit returns the configured limiter, or nil when rate limiting
// is disabled. An absent option means the default limiter.
func (c *ClusterConfig) LogRatelimit() *LogRateLimit {
	limit := DefaultLogRateLimit()
	if c.options.logRatelimit != nil {
		limit = *c.options.logRatelimit
	}

	if !limit.Enabled {
		return nil
	}
	return &limit
}
