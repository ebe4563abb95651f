package compiler

import (
	"fmt"

	"proxfw.dev/proxfw/internal/fwconf"
	"proxfw.dev/proxfw/internal/inventory"
	"proxfw.dev/proxfw/internal/nft"
)

// setKernelName derives the kernel set name of a config-level IP set:
// "v4-dc/name" for datacenter scope, "v4-guest-<vmid>/name" for guest
// scope, with "-nomatch" appended for the exclusion set.
func setKernelName(family fwconf.Family, name fwconf.IpsetName, vmid *inventory.Vmid, nomatch bool) string {
	prefix := "v4"
	if family == fwconf.FamilyV6 {
		prefix = "v6"
	}

	return scopedSetName(prefix, name, vmid, nomatch)
}

// macSetKernelName is the name of the ether_addr set of a MAC-bearing
// IP set.
func macSetKernelName(name fwconf.IpsetName, vmid *inventory.Vmid) string {
	return scopedSetName("mac", name, vmid, false)
}

func scopedSetName(prefix string, name fwconf.IpsetName, vmid *inventory.Vmid, nomatch bool) string {
	scope := name.Scope().String()
	if name.Scope() == fwconf.ScopeGuest && vmid != nil {
		scope = fmt.Sprintf("guest-%d", *vmid)
	}

	full := fmt.Sprintf("%s-%s/%s", prefix, scope, name.Name())
	if nomatch {
		full += "-nomatch"
	}

	return full
}

func logicalSetKey(name fwconf.IpsetName, vmid *inventory.Vmid) string {
	if name.Scope() == fwconf.ScopeGuest && vmid != nil {
		return fmt.Sprintf("guest-%d/%s", *vmid, name.Name())
	}
	return name.String()
}

// setRegistry records which sets a compile cycle has emitted so rule
// lowering can honor family elision and reject dangling references.
type setRegistry struct {
	logical map[string]bool
	present map[string]bool
}

func newSetRegistry() *setRegistry {
	return &setRegistry{logical: map[string]bool{}, present: map[string]bool{}}
}

func (r *setRegistry) registerLogical(name fwconf.IpsetName, vmid *inventory.Vmid) {
	r.logical[logicalSetKey(name, vmid)] = true
}

func (r *setRegistry) registerFamily(table nft.TablePart, family fwconf.Family, name fwconf.IpsetName, vmid *inventory.Vmid) {
	key := string(table.Family) + "|" + setKernelName(family, name, vmid, false)
	r.present[key] = true
}

func (r *setRegistry) logicalExists(name fwconf.IpsetName, vmid *inventory.Vmid) bool {
	return r.logical[logicalSetKey(name, vmid)]
}

func (r *setRegistry) familyPresent(table nft.TablePart, family fwconf.Family, name fwconf.IpsetName, vmid *inventory.Vmid) bool {
	key := string(table.Family) + "|" + setKernelName(family, name, vmid, false)
	return r.present[key]
}

func cidrExpr(cidr fwconf.Cidr) nft.Expression {
	return nft.Prefix{Addr: nft.Str(cidr.Addr().String()), Len: cidr.Prefix()}
}

func ipEntryExpr(entry fwconf.IPEntry) nft.Expression {
	if entry.IsRange() {
		lo, hi := entry.Range()
		return nft.Range{From: nft.Str(lo.String()), To: nft.Str(hi.String())}
	}
	return cidrExpr(entry.Cidr())
}

func ipListExpr(list fwconf.IPList) nft.Expression {
	entries := list.Entries()
	if len(entries) == 1 {
		return ipEntryExpr(entries[0])
	}

	set := make(nft.SetLiteral, len(entries))
	for i, entry := range entries {
		set[i] = ipEntryExpr(entry)
	}
	return set
}

// emitIpset lowers one logical IP set into its family-split kernel
// sets within table. Empty families are elided unless forceFamilies is
// set (IP filters gate on set membership, so their empty sets must
// exist); when the member set of a family is emitted its nomatch twin
// is emitted too (even empty) so rule references stay valid. MAC
// entries produce a separate ether_addr set.
func (f *Firewall) emitIpset(commands *nft.Commands, set *fwconf.Ipset, table nft.TablePart, vmid *inventory.Vmid, forceFamilies bool) error {
	f.sets.registerLogical(set.Name, vmid)

	for _, family := range []fwconf.Family{fwconf.FamilyV4, fwconf.FamilyV6} {
		var members, nomatch []nft.Expression

		for _, entry := range set.Entries {
			var expr nft.Expression

			switch {
			case entry.Cidr != nil:
				if entry.Cidr.Family() != family {
					continue
				}
				expr = cidrExpr(*entry.Cidr)
			case entry.Alias != nil:
				alias, ok := f.input.alias(*entry.Alias, vmid)
				if !ok {
					return fmt.Errorf("%w: %s in ipset %s", fwconf.ErrUnresolvedAlias, entry.Alias, set.Name)
				}
				if alias.Address.Family() != family {
					continue
				}
				expr = cidrExpr(alias.Address)
			default:
				continue
			}

			if entry.Nomatch {
				nomatch = append(nomatch, expr)
			} else {
				members = append(members, expr)
			}
		}

		if len(members) == 0 && !forceFamilies {
			continue
		}

		elementType := nft.TypeIpv4Addr
		if family == fwconf.FamilyV6 {
			elementType = nft.TypeIpv6Addr
		}

		memberName := nft.NewSetName(table, setKernelName(family, set.Name, vmid, false))
		nomatchName := nft.NewSetName(table, setKernelName(family, set.Name, vmid, true))

		commands.Append(
			nft.AddSet(nft.NewSetConfig(memberName, elementType).WithFlags(nft.FlagInterval).WithAutoMerge()),
			nft.FlushSet(memberName),
			nft.AddSet(nft.NewSetConfig(nomatchName, elementType).WithFlags(nft.FlagInterval).WithAutoMerge()),
			nft.FlushSet(nomatchName),
		)

		if len(members) > 0 {
			commands.Push(nft.AddSetElements(memberName, members))
		}
		if len(nomatch) > 0 {
			commands.Push(nft.AddSetElements(nomatchName, nomatch))
		}

		f.sets.registerFamily(table, family, set.Name, vmid)
	}

	var macs []nft.Expression
	for _, entry := range set.Entries {
		if entry.Mac != nil && !entry.Nomatch {
			macs = append(macs, nft.Str(entry.Mac.String()))
		}
	}

	if len(macs) > 0 {
		macName := nft.NewSetName(table, macSetKernelName(set.Name, vmid))
		commands.Append(
			nft.AddSet(nft.NewSetConfig(macName, nft.TypeEtherAddr)),
			nft.FlushSet(macName),
			nft.AddSetElements(macName, macs),
		)
	}

	return nil
}

// emitIpsets lowers a scope's IP sets in name order, skipping per-NIC
// IP filter sets (those are handled with the owning guest).
func (f *Firewall) emitIpsets(commands *nft.Commands, sets map[string]*fwconf.Ipset, table nft.TablePart, vmid *inventory.Vmid) error {
	for _, name := range sortedNames(sets) {
		set := sets[name]
		if _, isFilter := set.IpfilterIndex(); isFilter {
			continue
		}

		f.log.Debug("creating ipset", "name", set.Name.String(), "table", string(table.Family))

		if err := f.emitIpset(commands, set, table, vmid, false); err != nil {
			return err
		}
	}

	return nil
}

// managementIpset returns the cluster "management" set, synthesizing it
// from the host's interface networks when the config does not declare
// one.
func (f *Firewall) managementIpset() (*fwconf.Ipset, error) {
	if set, ok := f.input.Cluster.Ipsets()["management"]; ok {
		return set, nil
	}

	set := fwconf.NewIpset(fwconf.NewIpsetName(fwconf.ScopeDatacenter, "management"))

	if f.input.HostAddrs != nil {
		cidrs, err := f.input.HostAddrs.InterfaceCidrs()
		if err != nil {
			return nil, fmt.Errorf("synthesizing management ipset: %w", err)
		}

		for _, cidr := range cidrs {
			entry := cidr
			set.Entries = append(set.Entries, fwconf.IpsetEntry{Cidr: &entry})
		}
	}

	f.log.Debug("auto-generated management ipset", "entries", len(set.Entries))

	return set, nil
}
