package nft

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestTableAndChainCommands(t *testing.T) {
	table := NewTable(FamilyInet, "proxmox-firewall")

	assert.JSONEq(t,
		`{"add":{"table":{"family":"inet","name":"proxmox-firewall"}}}`,
		marshal(t, AddTable(table)))

	assert.JSONEq(t,
		`{"flush":{"table":{"family":"inet","name":"proxmox-firewall"}}}`,
		marshal(t, FlushTable(table)))

	assert.JSONEq(t,
		`{"delete":{"table":{"family":"inet","name":"proxmox-firewall"}}}`,
		marshal(t, DeleteTable(table)))

	chain := NewChain(table, "input")
	assert.JSONEq(t,
		`{"add":{"chain":{"family":"inet","table":"proxmox-firewall","name":"input"}}}`,
		marshal(t, AddChain(chain)))

	assert.JSONEq(t,
		`{"add":{"chain":{"family":"inet","table":"proxmox-firewall","name":"input","type":"filter","hook":"input","prio":0,"policy":"accept"}}}`,
		marshal(t, AddBaseChain(chain, BaseChain{
			Type: ChainTypeFilter, Hook: HookInput, Priority: 0, Policy: PolicyAccept,
		})))
}

func TestRuleCommand(t *testing.T) {
	chain := NewChain(NewTable(FamilyInet, "t"), "c")

	rule := NewRule(chain,
		MatchEq(PayloadField("udp", "dport"), Num(53)),
		Accept())
	rule.Comment = "dns"

	assert.JSONEq(t, `{
	  "add": {"rule": {
	    "family": "inet", "table": "t", "chain": "c",
	    "expr": [
	      {"match": {"op": "==", "left": {"payload": {"protocol": "udp", "field": "dport"}}, "right": 53}},
	      {"accept": null}
	    ],
	    "comment": "dns"
	  }}
	}`, marshal(t, AddRule(rule)))
}

func TestVerdictShapes(t *testing.T) {
	assert.JSONEq(t, `{"accept":null}`, marshal(t, Accept()))
	assert.JSONEq(t, `{"drop":null}`, marshal(t, Drop()))
	assert.JSONEq(t, `{"return":null}`, marshal(t, Return()))
	assert.JSONEq(t, `{"jump":{"target":"do-reject"}}`, marshal(t, Jump("do-reject")))
	assert.JSONEq(t, `{"goto":{"target":"next"}}`, marshal(t, Goto("next")))
}

func TestExpressionShapes(t *testing.T) {
	assert.JSONEq(t,
		`{"prefix":{"addr":"10.0.0.0","len":8}}`,
		marshal(t, Prefix{Addr: Str("10.0.0.0"), Len: 8}))

	assert.JSONEq(t,
		`{"range":["10.0.0.1","10.0.0.9"]}`,
		marshal(t, Range{From: Str("10.0.0.1"), To: Str("10.0.0.9")}))

	assert.JSONEq(t,
		`{"concat":[{"meta":{"key":"iifname"}},"aa:bb:cc:dd:ee:ff"]}`,
		marshal(t, Concat{MetaKey("iifname"), Str("aa:bb:cc:dd:ee:ff")}))

	assert.JSONEq(t,
		`{"set":[80,443]}`,
		marshal(t, SetLiteral{Num(80), Num(443)}))

	assert.JSONEq(t,
		`{"|":[{"|":["fin","syn"]},"rst"]}`,
		marshal(t, OrAll(Str("fin"), Str("syn"), Str("rst"))))

	assert.JSONEq(t,
		`{"ct":{"key":"state"}}`,
		marshal(t, CtKey("state")))
}

func TestStatementShapes(t *testing.T) {
	assert.JSONEq(t,
		`{"limit":{"rate":400,"per":"second","burst":1337,"inv":true}}`,
		marshal(t, Limit{Rate: 400, Per: "second", Burst: 1337, Inv: true}))

	assert.JSONEq(t,
		`{"log":{"prefix":":0:6:host-in: ACCEPT: ","group":0}}`,
		marshal(t, NewNflog(":0:6:host-in: ACCEPT: ", 0)))

	assert.JSONEq(t,
		`{"reject":{"type":"tcp reset"}}`,
		marshal(t, Reject{Type: RejectTcpReset}))

	assert.JSONEq(t,
		`{"reject":{"type":"icmpx","expr":"port-unreachable"}}`,
		marshal(t, Reject{Type: RejectIcmpx, Expr: Str("port-unreachable")}))

	assert.JSONEq(t, `{
	  "set": {
	    "op": "update",
	    "elem": {"payload": {"protocol": "ip", "field": "saddr"}},
	    "set": "@v4-synflood-limit",
	    "stmt": [{"limit": {"rate": 200, "per": "second", "burst": 1000, "inv": true}}]
	  }
	}`, marshal(t, SetUpdate{
		Op:   SetOpUpdate,
		Elem: PayloadField("ip", "saddr"),
		Set:  "@v4-synflood-limit",
		Stmt: []Statement{Limit{Rate: 200, Per: "second", Burst: 1000, Inv: true}},
	}))

	assert.JSONEq(t,
		`{"vmap":{"key":{"meta":{"key":"oifname"}},"data":"@vm-map-in"}}`,
		marshal(t, Vmap{Key: MetaKey("oifname"), Data: Str("@vm-map-in")}))

	assert.JSONEq(t, `{"ct helper":"helper-ftp-tcp"}`, marshal(t, CtHelperSet("helper-ftp-tcp")))
}

func TestSetAndMapCommands(t *testing.T) {
	table := NewTable(FamilyBridge, "proxmox-firewall-guests")

	set := NewSetConfig(NewSetName(table, "v4-dc/management"), TypeIpv4Addr).
		WithFlags(FlagInterval).
		WithAutoMerge()

	assert.JSONEq(t, `{
	  "add": {"set": {
	    "family": "bridge", "table": "proxmox-firewall-guests",
	    "name": "v4-dc/management", "type": "ipv4_addr",
	    "flags": ["interval"], "auto-merge": true
	  }}
	}`, marshal(t, AddSet(set)))

	vmap := NewSetConfig(NewSetName(table, "vm-map-in"), TypeIfname).WithMapType(TypeVerdict)
	assert.JSONEq(t, `{
	  "add": {"map": {
	    "family": "bridge", "table": "proxmox-firewall-guests",
	    "name": "vm-map-in", "type": "ifname", "map": "verdict"
	  }}
	}`, marshal(t, AddMap(vmap)))
}

func TestMapElements(t *testing.T) {
	table := NewTable(FamilyBridge, "proxmox-firewall-guests")

	cmd := AddMapElements(NewSetName(table, "vm-map-in"), []MapElement{
		{Key: Str("tap100i0"), Value: Jump("guest-100-in")},
		{Key: Str("enp6s18"), Value: Jump("guest-100-in")},
	})

	assert.JSONEq(t, `{
	  "add": {"element": {
	    "family": "bridge", "table": "proxmox-firewall-guests", "name": "vm-map-in",
	    "elem": [
	      ["tap100i0", {"jump": {"target": "guest-100-in"}}],
	      ["enp6s18", {"jump": {"target": "guest-100-in"}}]
	    ]
	  }}
	}`, marshal(t, cmd))
}

func TestCommandsDocument(t *testing.T) {
	commands := NewCommands(
		AddTable(NewTable(FamilyInet, "t")),
		FlushTable(NewTable(FamilyInet, "t")),
	)
	commands.Push(DeleteTable(NewTable(FamilyInet, "t")))

	assert.Equal(t, 3, commands.Len())

	data, err := commands.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"nftables":[`)
}

func TestIpsetSetName(t *testing.T) {
	assert.Equal(t, "v4-dc/management", IpsetSetName("v4", "dc", "management", "", false))
	assert.Equal(t, "v6-guest-100/ipfilter-net0-nomatch", IpsetSetName("v6", "guest", "ipfilter-net0", "100", true))
}
