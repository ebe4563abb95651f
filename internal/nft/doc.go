// Package nft models the libnftables JSON command schema: typed
// commands, statements and expression trees that marshal to the exact
// object shapes `nft -j -f -` consumes. The whole command list is
// wrapped in a single {"nftables": [...]} document and applied
// atomically by the client.
//
// Serialization is deterministic: every composite marshals through
// structs (never Go maps with more than one key), so identical inputs
// produce byte-identical output. The compiler relies on this for
// snapshot testing.
package nft
