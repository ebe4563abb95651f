package compiler

import (
	"sort"

	"proxfw.dev/proxfw/internal/fwconf"
	"proxfw.dev/proxfw/internal/inventory"
)

// Input is one reconcile cycle's immutable snapshot of everything the
// compiler consumes.
type Input struct {
	Cluster *fwconf.ClusterConfig
	Host    *fwconf.HostConfig

	Guests map[inventory.Vmid]*inventory.Guest
	Vnets  []*inventory.Vnet
	Ipam   *inventory.Ipam

	// HostAddrs supplies interface addresses for the synthesized
	// management set; nil disables synthesis.
	HostAddrs inventory.HostAddressProvider

	// Disabled reflects the force-disable sentinel.
	Disabled bool

	// Lenient keeps one failing guest from aborting the whole cycle;
	// the guest is gated to its default policies instead.
	Lenient bool
}

// normalized fills optional fields so the compiler can assume presence.
func (in *Input) normalized() *Input {
	out := *in

	if out.Cluster == nil {
		out.Cluster = fwconf.DefaultClusterConfig()
	}
	if out.Host == nil {
		out.Host = fwconf.DefaultHostConfig()
	}
	if out.Ipam == nil {
		out.Ipam = inventory.EmptyIpam()
	}

	return &out
}

// sortedVmids returns the guest ids ascending.
func (in *Input) sortedVmids() []inventory.Vmid {
	vmids := make([]inventory.Vmid, 0, len(in.Guests))
	for vmid := range in.Guests {
		vmids = append(vmids, vmid)
	}
	sort.Slice(vmids, func(i, j int) bool { return vmids[i] < vmids[j] })
	return vmids
}

// alias resolves a scoped alias reference in its own scope only: guest
// aliases in the config of the guest being compiled (never found without
// a guest context), datacenter aliases in the cluster config.
func (in *Input) alias(name fwconf.AliasName, vmid *inventory.Vmid) (*fwconf.Alias, bool) {
	switch name.Scope() {
	case fwconf.ScopeGuest:
		if vmid == nil {
			return nil, false
		}
		guest, ok := in.Guests[*vmid]
		if !ok {
			return nil, false
		}
		return guest.Config.Alias(name.Name())
	default:
		return in.Cluster.Alias(name.Name())
	}
}

// sortedNames returns map keys in lexicographic order; the compiler
// never iterates a map directly.
func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
