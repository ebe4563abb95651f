package fwconf

// CtHelper describes one kernel conntrack helper the host may enable via
// the nf_conntrack_helpers option. TcpPort/UdpPort are the ports the
// helper attaches to; zero means the helper has no listener for that
// protocol.
type CtHelper struct {
	Name    string
	Family  *Family // nil means both families
	TcpPort uint16
	UdpPort uint16
}

var v4Only = FamilyV4

var ctHelpers = map[string]CtHelper{
	"amanda": {Name: "amanda", UdpPort: 10080},
	"ftp":    {Name: "ftp", TcpPort: 21},
	"irc":    {Name: "irc", Family: &v4Only, TcpPort: 6667},
	"netbios-ns": {
		Name:   "netbios-ns",
		Family: &v4Only,
		UdpPort: 137,
	},
	"pptp": {Name: "pptp", Family: &v4Only, TcpPort: 1723},
	"sane": {Name: "sane", TcpPort: 6566},
	"sip":  {Name: "sip", TcpPort: 5060, UdpPort: 5060},
	"tftp": {Name: "tftp", UdpPort: 69},
}

// GetCtHelper looks up a conntrack helper by name.
func GetCtHelper(name string) (CtHelper, bool) {
	helper, ok := ctHelpers[name]
	return helper, ok
}

// TcpHelperName / UdpHelperName are the nftables object names.
func (h CtHelper) TcpHelperName() string { return "helper-" + h.Name + "-tcp" }
func (h CtHelper) UdpHelperName() string { return "helper-" + h.Name + "-udp" }
