package types

// NodeInfo describes a node's reachability surface. It is size-bounded (the
// wire codec enforces the 65535-byte envelope cap, which in practice caps
// DialInfoDetails long before that) and is always signed together with a
// timestamp — see SignedNodeInfo.
type NodeInfo struct {
	NetworkClass      NetworkClass
	OutboundProtocols []Protocol
	AddressTypes      []Protocol // reuses Protocol as the address-type tag
	MinVersion        uint8
	MaxVersion        uint8
	DialInfoDetails   []DialInfoDetail
	RelayPeer         *NodeID // optional
	// RoutingPublicKey is the node's full crypto.GenerateKeyPair public-key
	// blob (kind-specific length; for VLD0, signing-pubkey||X25519-pubkey).
	// NodeID alone is not enough to build a route to this node: for VLD0 it
	// is only the signing half, and for VLD1 it is a digest of the whole
	// thing, neither of which is invertible back to the DH public key
	// BuildPrivateRoute/BuildSafetyRoute need for DH(SK_self, PK_route) at each hop.
	RoutingPublicKey []byte
}

// TimestampMicros is microseconds since the Unix epoch, per spec.md §3.
type TimestampMicros uint64

// SignedNodeInfo is a NodeInfo plus the signature and timestamp that make
// it verifiable and orderable. The signature covers the canonical wire
// encoding of (NodeInfo, Timestamp) — see wire.EncodeSignedNodeInfoForSig.
type SignedNodeInfo struct {
	Info      NodeInfo
	Timestamp TimestampMicros
	Signature [114]byte // sized for the largest supported signature (Ed448); VLD0 zero-pads
}

// PeerInfo is the (NodeID, SignedNodeInfo) pair exchanged and cached
// throughout the system. It replaces a prior PeerInfo for the same NodeID
// iff the new one has a strictly greater timestamp and a valid signature
// (spec.md §3, invariant P3) — that check is routing.Table's job, not this
// type's; PeerInfo itself is an immutable value.
type PeerInfo struct {
	NodeID   NodeID
	Signed   SignedNodeInfo
}
