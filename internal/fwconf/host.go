package fwconf

import (
	"fmt"
	"io"
)

// Host option defaults. The synflood rate defaults are packets per
// second.
const (
	HostEnabledDefault         = true
	HostNftablesDefault        = false
	HostAllowNdpDefault        = true
	HostBlockSmurfsDefault     = true
	HostBlockSynfloodDefault   = false
	HostSynfloodRateDefault    = int64(200)
	HostSynfloodBurstDefault   = int64(1000)
	HostBlockInvalidTcpDefault = false
	HostBlockInvalidConntrack  = false
	HostLogConntrackDefault    = false
)

type hostOptions struct {
	enable   *bool
	nftables *bool

	logLevelIn  *LogLevel
	logLevelOut *LogLevel

	logNfConntrack          *bool
	ndp                     *bool
	nfConntrackAllowInvalid *bool
	nfConntrackHelpers      []string

	nfConntrackMax                   *int64
	nfConntrackTcpTimeoutEstablished *int64
	nfConntrackTcpTimeoutSynRecv     *int64

	nosmurfs *bool

	protectionSynflood      *bool
	protectionSynfloodBurst *int64
	protectionSynfloodRate  *int64

	smurfLogLevel    *LogLevel
	tcpFlagsLogLevel *LogLevel
	tcpflags         *bool
}

// HostConfig is one host's firewall config. Host configs carry only
// options and rules; aliases, IP sets and groups are declared at the
// cluster level.
type HostConfig struct {
	options hostOptions
	rules   []*Rule
}

// ParseHostConfig reads a host.fw file.
func ParseHostConfig(input io.Reader) (*HostConfig, error) {
	raw, err := ParseRawConfig(input, ParserConfig{})
	if err != nil {
		return nil, fmt.Errorf("host config: %w", err)
	}

	if len(raw.Groups) != 0 {
		return nil, fmt.Errorf("host config: %w: groups are cluster-level", ErrBadValue)
	}
	if len(raw.Aliases) != 0 {
		return nil, fmt.Errorf("host config: %w: aliases are cluster-level", ErrBadValue)
	}
	if len(raw.Ipsets) != 0 {
		return nil, fmt.Errorf("host config: %w: ipsets are cluster-level", ErrBadValue)
	}

	cfg := &HostConfig{rules: raw.Rules}

	d := newOptionDecoder(raw.Options)
	d.boolOpt("enable", &cfg.options.enable)
	d.boolOpt("nftables", &cfg.options.nftables)
	d.logLevelOpt("log_level_in", &cfg.options.logLevelIn)
	d.logLevelOpt("log_level_out", &cfg.options.logLevelOut)
	d.boolOpt("log_nf_conntrack", &cfg.options.logNfConntrack)
	d.boolOpt("ndp", &cfg.options.ndp)
	d.boolOpt("nf_conntrack_allow_invalid", &cfg.options.nfConntrackAllowInvalid)
	d.stringListOpt("nf_conntrack_helpers", &cfg.options.nfConntrackHelpers)
	d.intOpt("nf_conntrack_max", &cfg.options.nfConntrackMax)
	d.intOpt("nf_conntrack_tcp_timeout_established", &cfg.options.nfConntrackTcpTimeoutEstablished)
	d.intOpt("nf_conntrack_tcp_timeout_syn_recv", &cfg.options.nfConntrackTcpTimeoutSynRecv)
	d.boolOpt("nosmurfs", &cfg.options.nosmurfs)
	d.boolOpt("protection_synflood", &cfg.options.protectionSynflood)
	d.intOpt("protection_synflood_burst", &cfg.options.protectionSynfloodBurst)
	d.intOpt("protection_synflood_rate", &cfg.options.protectionSynfloodRate)
	d.logLevelOpt("smurf_log_level", &cfg.options.smurfLogLevel)
	d.logLevelOpt("tcp_flags_log_level", &cfg.options.tcpFlagsLogLevel)
	d.boolOpt("tcpflags", &cfg.options.tcpflags)
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("host config: %w", err)
	}

	return cfg, nil
}

// DefaultHostConfig is the empty config used when no host.fw exists.
func DefaultHostConfig() *HostConfig {
	return &HostConfig{}
}

func (c *HostConfig) Rules() []*Rule { return c.rules }

func boolOr(opt *bool, fallback bool) bool {
	if opt != nil {
		return *opt
	}
	return fallback
}

func intOr(opt *int64, fallback int64) int64 {
	if opt != nil {
		return *opt
	}
	return fallback
}

func levelOr(opt *LogLevel) LogLevel {
	if opt != nil {
		return *opt
	}
	return LogNolog
}

func (c *HostConfig) IsEnabled() bool { return boolOr(c.options.enable, HostEnabledDefault) }

// Nftables reports whether this host opted into the nftables firewall.
func (c *HostConfig) Nftables() bool { return boolOr(c.options.nftables, HostNftablesDefault) }

func (c *HostConfig) AllowNdp() bool     { return boolOr(c.options.ndp, HostAllowNdpDefault) }
func (c *HostConfig) BlockSmurfs() bool  { return boolOr(c.options.nosmurfs, HostBlockSmurfsDefault) }
func (c *HostConfig) BlockSynflood() bool {
	return boolOr(c.options.protectionSynflood, HostBlockSynfloodDefault)
}

func (c *HostConfig) SynfloodRate() int64 {
	return intOr(c.options.protectionSynfloodRate, HostSynfloodRateDefault)
}

func (c *HostConfig) SynfloodBurst() int64 {
	return intOr(c.options.protectionSynfloodBurst, HostSynfloodBurstDefault)
}

func (c *HostConfig) BlockInvalidTcp() bool {
	return boolOr(c.options.tcpflags, HostBlockInvalidTcpDefault)
}

// BlockInvalidConntrack is the inverse of nf_conntrack_allow_invalid.
func (c *HostConfig) BlockInvalidConntrack() bool {
	return !boolOr(c.options.nfConntrackAllowInvalid, HostBlockInvalidConntrack)
}

func (c *HostConfig) LogNfConntrack() bool {
	return boolOr(c.options.logNfConntrack, HostLogConntrackDefault)
}

func (c *HostConfig) ConntrackHelpers() []string { return c.options.nfConntrackHelpers }

func (c *HostConfig) NfConntrackMax() *int64 { return c.options.nfConntrackMax }

func (c *HostConfig) NfConntrackTcpTimeoutEstablished() *int64 {
	return c.options.nfConntrackTcpTimeoutEstablished
}

func (c *HostConfig) NfConntrackTcpTimeoutSynRecv() *int64 {
	return c.options.nfConntrackTcpTimeoutSynRecv
}

func (c *HostConfig) SmurfLogLevel() LogLevel    { return levelOr(c.options.smurfLogLevel) }
func (c *HostConfig) TcpFlagsLogLevel() LogLevel { return levelOr(c.options.tcpFlagsLogLevel) }

// LogLevel is the per-direction level for the default-policy log rule.
func (c *HostConfig) LogLevel(dir Direction) LogLevel {
	if dir == DirectionIn {
		return levelOr(c.options.logLevelIn)
	}
	return levelOr(c.options.logLevelOut)
}
