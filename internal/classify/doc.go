// Package classify maps raw addresses to a canonical form and a permanence
// tier, per anonymity network.
//
// Cryptographic addresses (v3 onions, .b32.i2p destinations, Hyphanet keys,
// Lokinet key labels) are derived from key material and cannot be
// reassigned. Aliasable addresses (I2P addressbook names, Lokinet ONS names,
// ZeroNet .bit names) are human-assigned and can change owner.
//
// The package is a lookup table of per-network rules. It performs no I/O.
package classify
