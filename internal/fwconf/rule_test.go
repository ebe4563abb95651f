package fwconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleGroup(t *testing.T) {
	rule, err := ParseRule("|GROUP tgr -i eth0 # acomm")
	require.NoError(t, err)
	assert.True(t, rule.Disabled)
	assert.Equal(t, "acomm", rule.Comment)
	require.NotNil(t, rule.Group)
	assert.Equal(t, "tgr", rule.Group.Name)
	assert.Equal(t, "eth0", rule.Group.Iface)

	// groups only take the interface option
	_, err = ParseRule("GROUP tgr -p tcp")
	assert.Error(t, err)
}

func TestParseRuleMatch(t *testing.T) {
	rule, err := ParseRule("IN ACCEPT -p udp -dport 33 -sport 22 -log warning")
	require.NoError(t, err)
	require.NotNil(t, rule.Match)
	assert.Equal(t, DirectionIn, rule.Match.Dir)
	assert.Equal(t, VerdictAccept, rule.Match.Verdict)
	require.NotNil(t, rule.Match.Proto)
	assert.Equal(t, ProtoUdp, rule.Match.Proto.Kind)
	assert.Equal(t, uint16(22), rule.Match.Proto.Ports.Sport[0].Port())
	assert.Equal(t, uint16(33), rule.Match.Proto.Ports.Dport[0].Port())
	require.NotNil(t, rule.Match.Log)
	assert.Equal(t, LogWarning, *rule.Match.Log)

	rule, err = ParseRule("IN ACCEPT --proto udp -i eth0")
	require.NoError(t, err)
	assert.Equal(t, "eth0", rule.Match.Iface)

	rule, err = ParseRule(" OUT DROP -source 10.0.0.0/24 -dest 20.0.0.0-20.255.255.255,192.168.0.0/16 -p icmp -log nolog -icmp-type port-unreachable ")
	require.NoError(t, err)
	assert.Equal(t, DirectionOut, rule.Match.Dir)
	require.NotNil(t, rule.Match.IP)
	require.NotNil(t, rule.Match.IP.Src)
	require.NotNil(t, rule.Match.IP.Dst)
	assert.Len(t, rule.Match.IP.Dst.List.Entries(), 2)
	assert.Equal(t, ProtoIcmp, rule.Match.Proto.Kind)
	require.NotNil(t, rule.Match.Proto.IcmpCode)
	assert.Equal(t, "port-unreachable", rule.Match.Proto.IcmpCode.Name())

	rule, err = ParseRule("IN BGP(ACCEPT) --log crit --iface eth0")
	require.NoError(t, err)
	assert.Equal(t, "BGP", rule.Match.Macro)
	assert.Equal(t, VerdictAccept, rule.Match.Verdict)

	rule, err = ParseRule("IN ACCEPT --source dc/test --dest +dc/test")
	require.NoError(t, err)
	require.NotNil(t, rule.Match.IP.Src.Alias)
	require.NotNil(t, rule.Match.IP.Dst.Set)
	assert.Equal(t, "dc/test", rule.Match.IP.Dst.Set.String())

	rule, err = ParseRule("IN REJECT")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, rule.Match.Verdict)

	rule, err = ParseRule("FORWARD DROP -source 10.0.0.0/8")
	require.NoError(t, err)
	assert.Equal(t, DirectionForward, rule.Match.Dir)
	_ = rule
}

func TestParseRuleErrors(t *testing.T) {
	for _, invalid := range []string{
		"IN DROP ---log crit",
		"IN DROP --log --iface eth0",
		"IN DROP --log crit --iface",
		"SIDEWAYS DROP",
		"IN EXPLODE",
		"IN DROP -p tcp -p udp",
		"IN DROP --frobnicate 1",
	} {
		_, err := ParseRule(invalid)
		assert.Error(t, err, "input %q", invalid)
	}

	// dport and icmp-type are mutually exclusive
	_, err := ParseRule("IN DROP -p icmp -icmp-type port-unreachable -dport 123")
	assert.ErrorIs(t, err, ErrBadValue)

	// literal families of source and dest must agree
	_, err = ParseRule("IN ACCEPT -source 10.0.0.1 -dest fe80::1")
	assert.ErrorIs(t, err, ErrFamilyMismatch)

	// icmpv6 with a v4 source cannot match anything
	_, err = ParseRule("IN ACCEPT -p icmpv6 -source 10.0.0.1")
	assert.ErrorIs(t, err, ErrFamilyMismatch)
}

func TestParseIpAddrMatch(t *testing.T) {
	for _, valid := range []string{
		"10.0.0.0/8",
		"10.0.0.0/8,192.168.0.0-192.168.255.255,172.16.0.1",
		"dc/test",
		"+guest/proxmox",
	} {
		_, err := ParseIpAddrMatch(valid)
		assert.NoError(t, err, "input %q", valid)
	}

	for _, invalid := range []string{
		"10.0.0.0/",
		"10.0.0.0/8,192.168.256.0-192.168.255.255,172.16.0.1",
		"dcc/test",
		"+guest/",
		"",
	} {
		_, err := ParseIpAddrMatch(invalid)
		assert.Error(t, err, "input %q", invalid)
	}
}
