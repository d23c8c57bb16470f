// Package types holds the entities shared across the routing/RPC core:
// node identity, dial info, node/peer info, private routes, the wire
// envelope's logical shape, DHT value keys, and receipts. Nothing in this
// package talks to the network, a store, or a crypto backend directly —
// it is pure data plus the invariants spec.md §3 assigns to it.
package types

import (
	"bytes"
	"encoding/hex"
)

// CryptoKindLen is the length in bytes of a crypto-kind tag (spec.md §6).
const CryptoKindLen = 4

// CryptoKind identifies an interoperable cryptographic primitive suite,
// e.g. "VLD0". Two peers can only build a route or a session together if
// they agree on a single kind for it (DESIGN NOTES §9, Open Question (i)).
type CryptoKind [CryptoKindLen]byte

func (k CryptoKind) String() string { return string(k[:]) }

// NodeIDLen is the length in bytes of a NodeID (256 bits, spec.md §3).
const NodeIDLen = 32

// NodeID uniquely and immutably identifies a node for its lifetime. For
// the baseline VLD0 kind it is the raw Ed25519 public key. For kinds whose
// native public key is wider than 256 bits (e.g. the VLD1 extension kind,
// which uses Ed448/X448), the NodeID is instead the BLAKE3-256 digest of
// (kind || raw public key) — this keeps every NodeID exactly 256 bits
// regardless of which kind produced it, which routing.Table's XOR-distance
// bucketing depends on. See DESIGN.md for the resulting tradeoff.
type NodeID struct {
	Kind  CryptoKind
	Value [NodeIDLen]byte
}

func (n NodeID) String() string {
	return n.Kind.String() + ":" + hex.EncodeToString(n.Value[:])
}

func (n NodeID) Equal(o NodeID) bool {
	return n.Kind == o.Kind && n.Value == o.Value
}

// Less provides a total order on NodeIDs (kind first, then byte-lexical on
// Value), used only to break distance ties in routing.Table.FindClosest —
// it is not otherwise meaningful.
func (n NodeID) Less(o NodeID) bool {
	if n.Kind != o.Kind {
		return bytes.Compare(n.Kind[:], o.Kind[:]) < 0
	}
	return bytes.Compare(n.Value[:], o.Value[:]) < 0
}

// Xor returns the bytewise XOR of two NodeIDs' Value fields. Comparing two
// nodes across different Kinds is meaningless (their Value fields are
// derived differently) but is not rejected here — callers that mix kinds
// get a well-defined, if not meaningful, distance.
func (n NodeID) Xor(o NodeID) [NodeIDLen]byte {
	var out [NodeIDLen]byte
	for i := range out {
		out[i] = n.Value[i] ^ o.Value[i]
	}
	return out
}
