// Package inventory models the data the compiler consumes besides the
// firewall configs themselves: guests with their network devices, SDN
// virtual networks, IPAM address state and the host's own interface
// addresses. All readers build plain immutable snapshots; the compiler
// never performs I/O of its own.
package inventory
