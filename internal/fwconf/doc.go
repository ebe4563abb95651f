// Package fwconf models the legacy firewall configuration format used on
// virtualization hosts: sectioned key/value files with [OPTIONS], [ALIASES],
// [IPSET name], [GROUP name] and [RULES] blocks.
//
// The package owns the value grammar of every field the rule compiler
// consumes (addresses, ports, ICMP types, log levels, rule lines) and the
// typed model built from it: aliases, IP sets, security groups, macros and
// per-scope rule trees. Parsing is strict; any syntactically or semantically
// invalid value aborts the surrounding config load with one of the sentinel
// errors declared in errors.go.
package fwconf
