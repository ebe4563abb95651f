package fwconf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clusterExample = `
[OPTIONS]
enable: 1
log_ratelimit: 1,rate=10/second,burst=20
ebtables: 0
policy_in: REJECT
policy_out: REJECT

[ALIASES]

another 8.8.8.18
analias 7.7.0.0/16 # much
wide cccc::/64

[IPSET a-set]

!5.5.5.5
1.2.3.4/30
dc/analias # a comment
dc/wide
dddd::/96

[RULES]

GROUP tgr -i eth0 # acomm
IN ACCEPT -p udp -dport 33 -sport 22 -log warning

[group tgr] # comment for tgr

|OUT ACCEPT -source fe80::1/48 -dest dddd:3:3::9/64 -p icmpv6 -log nolog -icmp-type port-unreachable
OUT ACCEPT -p tcp -sport 33 -log nolog
IN BGP(REJECT) -log crit -source 1.2.3.4
`

func TestParseClusterConfig(t *testing.T) {
	cfg, err := ParseClusterConfig(strings.NewReader(clusterExample))
	require.NoError(t, err)

	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, VerdictReject, cfg.DefaultPolicy(DirectionIn))
	assert.Equal(t, VerdictReject, cfg.DefaultPolicy(DirectionOut))

	limit := cfg.LogRatelimit()
	require.NotNil(t, limit)
	assert.Equal(t, int64(10), limit.Rate)
	assert.Equal(t, int64(20), limit.Burst)
	assert.Equal(t, RatePerSecond, limit.Per)

	alias, ok := cfg.Alias("analias")
	require.True(t, ok)
	assert.Equal(t, "7.7.0.0/16", alias.Address.String())
	assert.Equal(t, "much", alias.Comment)

	set, ok := cfg.Ipsets()["a-set"]
	require.True(t, ok)
	require.Len(t, set.Entries, 5)
	assert.True(t, set.Entries[0].Nomatch)
	assert.NotNil(t, set.Entries[0].Cidr)
	assert.NotNil(t, set.Entries[2].Alias)
	assert.Equal(t, "a comment", set.Entries[2].Comment)

	require.Len(t, cfg.Rules(), 2)
	assert.NotNil(t, cfg.Rules()[0].Group)
	assert.NotNil(t, cfg.Rules()[1].Match)

	group, ok := cfg.Groups()["tgr"]
	require.True(t, ok)
	assert.Equal(t, "comment for tgr", group.Comment)
	require.Len(t, group.Rules, 3)
	assert.True(t, group.Rules[0].Disabled)
	assert.Equal(t, "BGP", group.Rules[2].Match.Macro)
}

func TestParseClusterConfigEmpty(t *testing.T) {
	cfg, err := ParseClusterConfig(strings.NewReader(""))
	require.NoError(t, err)

	assert.False(t, cfg.IsEnabled())
	assert.Equal(t, ClusterPolicyInDefault, cfg.DefaultPolicy(DirectionIn))
	assert.Equal(t, ClusterPolicyOutDefault, cfg.DefaultPolicy(DirectionOut))
	assert.Empty(t, cfg.Rules())
}

func TestParseClusterConfigDuplicates(t *testing.T) {
	_, err := ParseClusterConfig(strings.NewReader("[ALIASES]\nfoo 1.2.3.4\nfoo 4.3.2.1\n"))
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = ParseClusterConfig(strings.NewReader("[IPSET a]\n[IPSET a]\n"))
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = ParseClusterConfig(strings.NewReader("[OPTIONS]\nenable: 1\nenable: 1\n"))
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestParseHostConfig(t *testing.T) {
	const input = `
[OPTIONS]
enable: 1
nftables: 1
log_level_in: debug
log_level_out: emerg
log_nf_conntrack: 0
ndp: 1
nf_conntrack_allow_invalid: yes
nf_conntrack_helpers: ftp
nf_conntrack_max: 44000
nf_conntrack_tcp_timeout_established: 500000
nf_conntrack_tcp_timeout_syn_recv: 44
nosmurfs: no
protection_synflood: 1
protection_synflood_burst: 2500
protection_synflood_rate: 300
smurf_log_level: notice
tcp_flags_log_level: nolog
tcpflags: yes

[RULES]

GROUP tgr -i eth0 # acomm
IN ACCEPT -p udp -dport 33 -sport 22 -log warning
`

	cfg, err := ParseHostConfig(strings.NewReader(input))
	require.NoError(t, err)

	assert.True(t, cfg.IsEnabled())
	assert.True(t, cfg.Nftables())
	assert.True(t, cfg.AllowNdp())
	assert.False(t, cfg.BlockSmurfs())
	assert.True(t, cfg.BlockSynflood())
	assert.Equal(t, int64(300), cfg.SynfloodRate())
	assert.Equal(t, int64(2500), cfg.SynfloodBurst())
	assert.True(t, cfg.BlockInvalidTcp())
	assert.False(t, cfg.BlockInvalidConntrack())
	assert.Equal(t, []string{"ftp"}, cfg.ConntrackHelpers())
	require.NotNil(t, cfg.NfConntrackMax())
	assert.Equal(t, int64(44000), *cfg.NfConntrackMax())
	assert.Equal(t, LogDebug, cfg.LogLevel(DirectionIn))
	assert.Equal(t, LogEmergency, cfg.LogLevel(DirectionOut))
	assert.Equal(t, LogNotice, cfg.SmurfLogLevel())
	assert.Len(t, cfg.Rules(), 2)
}

func TestHostConfigScopeRestrictions(t *testing.T) {
	_, err := ParseHostConfig(strings.NewReader("[ALIASES]\ntest 127.0.0.1\n"))
	assert.Error(t, err)

	_, err = ParseHostConfig(strings.NewReader("[GROUP test]\n"))
	assert.Error(t, err)

	_, err = ParseHostConfig(strings.NewReader("[IPSET test]\n"))
	assert.Error(t, err)
}

func TestHostConfigUnknownOption(t *testing.T) {
	_, err := ParseHostConfig(strings.NewReader("[OPTIONS]\nwarp_drive: 1\n"))
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestParseGuestConfig(t *testing.T) {
	const input = `
[OPTIONS]
enable: 1
dhcp: 1
ipfilter: 0
log_level_in: emerg
log_level_out: crit
macfilter: 0
ndp:1
radv:1
policy_in: REJECT
policy_out: REJECT

[RULES]
IN ACCEPT -i net0 -p tcp -dport 22
`

	cfg, err := ParseGuestConfig(strings.NewReader(input))
	require.NoError(t, err)

	assert.True(t, cfg.IsEnabled())
	assert.True(t, cfg.AllowDhcp())
	assert.False(t, cfg.Ipfilter())
	assert.True(t, cfg.AllowNdp())
	assert.True(t, cfg.AllowRa())
	assert.False(t, cfg.Macfilter())
	assert.Equal(t, VerdictReject, cfg.DefaultPolicy(DirectionIn))
	assert.Equal(t, VerdictReject, cfg.DefaultPolicy(DirectionOut))
	assert.Equal(t, LogEmergency, cfg.LogLevel(DirectionIn))
	assert.Equal(t, LogCritical, cfg.LogLevel(DirectionOut))

	// guest rule interfaces must use netN keys
	_, err = ParseGuestConfig(strings.NewReader("[RULES]\nIN ACCEPT -i eth0\n"))
	assert.Error(t, err)

	_, err = ParseGuestConfig(strings.NewReader("[GROUP x]\n"))
	assert.Error(t, err)
}

func TestParseVnetConfig(t *testing.T) {
	const input = `
[OPTIONS]
enable: 1
policy_forward: DROP

[RULES]
FORWARD ACCEPT -p tcp -dport 443
`

	cfg, err := ParseVnetConfig(strings.NewReader(input))
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, VerdictDrop, cfg.PolicyForward())
	assert.Len(t, cfg.Rules(), 1)

	_, err = ParseVnetConfig(strings.NewReader("[RULES]\nIN ACCEPT\n"))
	assert.Error(t, err)
}
