package fwconf

import (
	"fmt"
	"sync"
)

// MacroFragment is one protocol match of a macro. Family restricts the
// fragment beyond what the protocol itself implies (e.g. DHCPfwd is
// plain UDP but only meaningful on IPv4).
type MacroFragment struct {
	Proto  *Protocol
	Family *Family
}

// Macro is a named bundle of protocol matches; a rule using it expands
// to one rule per family-compatible fragment.
type Macro struct {
	Description string
	Fragments   []MacroFragment
}

// rawFragment is the catalog source form, compiled through the regular
// rule option grammar so the catalog cannot drift from it.
type rawFragment struct {
	proto    string
	sport    string
	dport    string
	icmpType string
	family   string // "" / "v4" / "v6"
}

type rawMacro struct {
	desc string
	code []rawFragment
}

var macroCatalog = map[string]rawMacro{
	"Amanda": {"Amanda backup", []rawFragment{
		{proto: "udp", dport: "10080"},
		{proto: "tcp", dport: "10080"},
	}},
	"Auth": {"Auth (identd) traffic", []rawFragment{
		{proto: "tcp", dport: "113"},
	}},
	"BGP": {"Border Gateway Protocol", []rawFragment{
		{proto: "tcp", dport: "179"},
	}},
	"BitTorrent": {"BitTorrent traffic", []rawFragment{
		{proto: "tcp", dport: "6881:6889"},
		{proto: "udp", dport: "6881"},
	}},
	"Ceph": {"Ceph Storage Cluster traffic", []rawFragment{
		{proto: "tcp", dport: "6789"},
		{proto: "tcp", dport: "3300"},
		{proto: "tcp", dport: "6800:7300"},
	}},
	"CVS": {"Concurrent Versions System pserver", []rawFragment{
		{proto: "tcp", dport: "2401"},
	}},
	"DAAP": {"Digital Audio Access Protocol", []rawFragment{
		{proto: "tcp", dport: "3689"},
		{proto: "udp", dport: "3689"},
	}},
	"DHCPfwd": {"Forwarded DHCP traffic", []rawFragment{
		{proto: "udp", sport: "67:68", dport: "67:68", family: "v4"},
	}},
	"DHCPv6": {"DHCPv6 traffic", []rawFragment{
		{proto: "udp", sport: "547", dport: "546", family: "v6"},
	}},
	"DNS": {"Domain Name System traffic", []rawFragment{
		{proto: "udp", dport: "53"},
		{proto: "tcp", dport: "53"},
	}},
	"Distcc": {"Distributed compiler service", []rawFragment{
		{proto: "tcp", dport: "3632"},
	}},
	"FTP": {"File Transfer Protocol", []rawFragment{
		{proto: "tcp", dport: "21"},
	}},
	"Finger": {"Finger protocol", []rawFragment{
		{proto: "tcp", dport: "79"},
	}},
	"GRE": {"Generic Routing Encapsulation", []rawFragment{
		{proto: "47"},
	}},
	"Git": {"Git distributed revision control", []rawFragment{
		{proto: "tcp", dport: "9418"},
	}},
	"HKP": {"OpenPGP HTTP keyserver protocol", []rawFragment{
		{proto: "tcp", dport: "11371"},
	}},
	"HTTP": {"Hypertext Transfer Protocol", []rawFragment{
		{proto: "tcp", dport: "80"},
	}},
	"HTTPS": {"Hypertext Transfer Protocol (TLS)", []rawFragment{
		{proto: "tcp", dport: "443"},
	}},
	"ICPV2": {"Internet Cache Protocol v2", []rawFragment{
		{proto: "udp", dport: "3130"},
	}},
	"IMAP": {"Internet Message Access Protocol", []rawFragment{
		{proto: "tcp", dport: "143"},
	}},
	"IMAPS": {"Internet Message Access Protocol over TLS", []rawFragment{
		{proto: "tcp", dport: "993"},
	}},
	"IPsec": {"IPsec traffic", []rawFragment{
		{proto: "udp", sport: "500", dport: "500"},
		{proto: "50"},
	}},
	"IPsecah": {"IPsec authentication traffic", []rawFragment{
		{proto: "udp", sport: "500", dport: "500"},
		{proto: "51"},
	}},
	"IPsecnat": {"IPsec traffic with NAT traversal", []rawFragment{
		{proto: "udp", dport: "500"},
		{proto: "udp", dport: "4500"},
		{proto: "50"},
	}},
	"IRC": {"Internet Relay Chat", []rawFragment{
		{proto: "tcp", dport: "6667"},
	}},
	"L2TP": {"Layer 2 Tunneling Protocol", []rawFragment{
		{proto: "udp", dport: "1701"},
	}},
	"LDAP": {"Lightweight Directory Access Protocol", []rawFragment{
		{proto: "tcp", dport: "389"},
	}},
	"LDAPS": {"Secure Lightweight Directory Access Protocol", []rawFragment{
		{proto: "tcp", dport: "636"},
	}},
	"MDNS": {"Multicast DNS", []rawFragment{
		{proto: "udp", dport: "5353"},
	}},
	"MSSQL": {"Microsoft SQL Server", []rawFragment{
		{proto: "tcp", dport: "1433"},
	}},
	"Mail": {"Mail traffic (SMTP, SMTPS, Submission)", []rawFragment{
		{proto: "tcp", dport: "25"},
		{proto: "tcp", dport: "465"},
		{proto: "tcp", dport: "587"},
	}},
	"MySQL": {"MySQL server", []rawFragment{
		{proto: "tcp", dport: "3306"},
	}},
	"NNTP": {"NNTP traffic (Usenet)", []rawFragment{
		{proto: "tcp", dport: "119"},
	}},
	"NNTPS": {"Encrypted NNTP traffic (Usenet)", []rawFragment{
		{proto: "tcp", dport: "563"},
	}},
	"NTP": {"Network Time Protocol", []rawFragment{
		{proto: "udp", dport: "123"},
	}},
	"NeighborDiscovery": {"IPv6 neighbor solicitation, neighbor and router advertisement", []rawFragment{
		{proto: "icmpv6", icmpType: "nd-router-solicit"},
		{proto: "icmpv6", icmpType: "nd-router-advert"},
		{proto: "icmpv6", icmpType: "nd-neighbor-solicit"},
		{proto: "icmpv6", icmpType: "nd-neighbor-advert"},
	}},
	"OSPF": {"OSPF multicast traffic", []rawFragment{
		{proto: "89"},
	}},
	"OpenVPN": {"OpenVPN traffic", []rawFragment{
		{proto: "udp", dport: "1194"},
	}},
	"PCA": {"Symantec PCAnywhere", []rawFragment{
		{proto: "udp", dport: "5632"},
		{proto: "tcp", dport: "5631"},
	}},
	"POP3": {"POP3 traffic", []rawFragment{
		{proto: "tcp", dport: "110"},
	}},
	"POP3S": {"Encrypted POP3 traffic", []rawFragment{
		{proto: "tcp", dport: "995"},
	}},
	"PPtP": {"Point-to-Point Tunneling Protocol", []rawFragment{
		{proto: "47"},
		{proto: "tcp", dport: "1723"},
	}},
	"Ping": {"ICMP echo request", []rawFragment{
		{proto: "icmp", icmpType: "echo-request"},
		{proto: "icmpv6", icmpType: "echo-request"},
	}},
	"PostgreSQL": {"PostgreSQL server", []rawFragment{
		{proto: "tcp", dport: "5432"},
	}},
	"Printer": {"Line printer protocol printing", []rawFragment{
		{proto: "tcp", dport: "515"},
	}},
	"RDP": {"Microsoft Remote Desktop Protocol", []rawFragment{
		{proto: "tcp", dport: "3389"},
	}},
	"RIP": {"Routing Information Protocol (bidirectional)", []rawFragment{
		{proto: "udp", dport: "520"},
	}},
	"RNDC": {"BIND remote management protocol", []rawFragment{
		{proto: "tcp", dport: "953"},
	}},
	"Razor": {"Razor antispam system", []rawFragment{
		{proto: "tcp", dport: "2703"},
	}},
	"Rdate": {"Remote time retrieval (rdate)", []rawFragment{
		{proto: "tcp", dport: "37"},
	}},
	"Rsync": {"Rsync server", []rawFragment{
		{proto: "tcp", dport: "873"},
	}},
	"SANE": {"SANE network scanning", []rawFragment{
		{proto: "tcp", dport: "6566"},
	}},
	"SMB": {"Microsoft SMB traffic", []rawFragment{
		{proto: "udp", dport: "135,445"},
		{proto: "udp", dport: "137:139"},
		{proto: "udp", sport: "137", dport: "1024:65535"},
		{proto: "tcp", dport: "135,139,445"},
	}},
	"SMTP": {"Simple Mail Transfer Protocol", []rawFragment{
		{proto: "tcp", dport: "25"},
	}},
	"SMTPS": {"Encrypted Simple Mail Transfer Protocol", []rawFragment{
		{proto: "tcp", dport: "465"},
	}},
	"SNMP": {"Simple Network Management Protocol", []rawFragment{
		{proto: "udp", dport: "161:162"},
		{proto: "tcp", dport: "161"},
	}},
	"SPICEproxy": {"Proxmox VE SPICE display proxy traffic", []rawFragment{
		{proto: "tcp", dport: "3128"},
	}},
	"SSH": {"Secure shell traffic", []rawFragment{
		{proto: "tcp", dport: "22"},
	}},
	"SVN": {"Subversion server", []rawFragment{
		{proto: "tcp", dport: "3690"},
	}},
	"Squid": {"Squid web proxy traffic", []rawFragment{
		{proto: "tcp", dport: "3128"},
	}},
	"Submission": {"Mail message submission traffic", []rawFragment{
		{proto: "tcp", dport: "587"},
	}},
	"Syslog": {"Syslog protocol traffic", []rawFragment{
		{proto: "udp", dport: "514"},
		{proto: "tcp", dport: "514"},
	}},
	"TFTP": {"Trivial File Transfer Protocol", []rawFragment{
		{proto: "udp", dport: "69"},
	}},
	"Telnet": {"Telnet traffic", []rawFragment{
		{proto: "tcp", dport: "23"},
	}},
	"Telnets": {"Telnet over TLS", []rawFragment{
		{proto: "tcp", dport: "992"},
	}},
	"Time": {"RFC 868 Time protocol", []rawFragment{
		{proto: "tcp", dport: "37"},
	}},
	"Trcrt": {"Traceroute (for up to 30 hops) traffic", []rawFragment{
		{proto: "udp", dport: "33434:33524"},
		{proto: "icmp", icmpType: "echo-request"},
		{proto: "icmpv6", icmpType: "echo-request"},
	}},
	"VNC": {"VNC traffic for VNC display's 0 - 99", []rawFragment{
		{proto: "tcp", dport: "5900:5999"},
	}},
	"VNCL": {"VNC traffic from Vncservers to Vncviewers in listen mode", []rawFragment{
		{proto: "tcp", dport: "5500"},
	}},
	"Web": {"WWW traffic (HTTP and HTTPS)", []rawFragment{
		{proto: "tcp", dport: "80"},
		{proto: "tcp", dport: "443"},
	}},
	"Webcache": {"Web cache/proxy traffic (port 8080)", []rawFragment{
		{proto: "tcp", dport: "8080"},
	}},
	"Webmin": {"Webmin traffic", []rawFragment{
		{proto: "tcp", dport: "10000"},
	}},
	"Whois": {"Whois (nicname) traffic", []rawFragment{
		{proto: "tcp", dport: "43"},
	}},
}

var compileMacros = sync.OnceValues(func() (map[string]*Macro, error) {
	macros := make(map[string]*Macro, len(macroCatalog))

	for name, raw := range macroCatalog {
		macro := &Macro{Description: raw.desc}

		for _, fragment := range raw.code {
			proto, err := protocolFromOptions(ruleOptions{
				proto:    fragment.proto,
				sport:    fragment.sport,
				dport:    fragment.dport,
				icmpType: fragment.icmpType,
			})
			if err != nil {
				return nil, fmt.Errorf("macro %s: %w", name, err)
			}

			compiled := MacroFragment{Proto: proto}
			switch fragment.family {
			case "v4":
				f := FamilyV4
				compiled.Family = &f
			case "v6":
				f := FamilyV6
				compiled.Family = &f
			}

			macro.Fragments = append(macro.Fragments, compiled)
		}

		macros[name] = macro
	}

	return macros, nil
})

// GetMacro looks up a macro by its catalog name.
func GetMacro(name string) (*Macro, bool) {
	macros, err := compileMacros()
	if err != nil {
		// the catalog is static; a parse failure here is a programming error
		panic(err)
	}

	macro, ok := macros[name]
	return macro, ok
}

// FragmentFamily reports the family the fragment is restricted to,
// combining the explicit restriction with the protocol's own.
func (f MacroFragment) FragmentFamily() (Family, bool) {
	if f.Family != nil {
		return *f.Family, true
	}
	if f.Proto != nil {
		return f.Proto.Family()
	}
	return 0, false
}
