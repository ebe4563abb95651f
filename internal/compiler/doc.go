// Package compiler lowers the typed firewall model to an ordered
// nftables command list targeting the two managed tables,
// "inet proxmox-firewall" for host traffic and
// "bridge proxmox-firewall-guests" for guest traffic.
//
// Compilation is a pure function of an immutable input snapshot. The
// static chain skeleton is recreated on every cycle (flush, then refill)
// so the compiler never needs diffing logic, and all container iteration
// is sorted so identical inputs serialize byte-identically. Any
// validation or lowering error aborts the cycle without emitting a
// partial ruleset.
package compiler
