package types

// RouteHopData is an AEAD-encrypted blob carrying the next onion layer.
// Inside a safety route it is preceded (post-decryption) by a one-byte tag
// discriminating whether the revealed layer is another RouteHop or a
// PrivateRoute (spec.md §4.6, GLOSSARY).
type RouteHopData struct {
	Nonce [24]byte
	Blob  []byte
}

// RouteHopTag is the one-byte discriminator inside a safety route's AEAD
// payload.
type RouteHopTag byte

const (
	RouteHopTagRouteHop     RouteHopTag = 0x00
	RouteHopTagPrivateRoute RouteHopTag = 0x01
)

// RouteHop references the next node in a route. During construction it
// carries the full PeerInfo (the builder needs the peer's dial info and
// public key material); once published, only the NodeID survives — an
// established route never re-exposes a hop's full PeerInfo on the wire.
type RouteHop struct {
	Node    NodeID
	Peer    *PeerInfo // construction-time only; nil on the wire
	NextHop *RouteHopData
}

// PrivateRoute is the receiver-published half of a route. HopCount == 0
// means this is a stub: a terminal, single-node "route" with no FirstHop,
// used when a node is willing to be contacted directly and just wants to
// hand out a routable identity without onion indirection.
type PrivateRoute struct {
	PublicKey [32]byte // ephemeral route public key
	HopCount  uint8
	FirstHop  *RouteHop // required iff HopCount > 0
}

func (r *PrivateRoute) IsStub() bool { return r.HopCount == 0 }

// SafetyRoute is the sender-prepended half. Exactly one of Hops or Private
// is non-nil: Hops means "one more safety hop follows", Private means
// "this is the last safety layer, and it reveals the receiver's
// PrivateRoute".
type SafetyRoute struct {
	PublicKey [32]byte
	HopCount  uint8
	Hops      *RouteHopData
	Private   *PrivateRoute
}

// RouteID names a locally-held route (safety or private) for release and
// idle-timeout bookkeeping. It has no wire representation; it never
// leaves the node that allocated it.
type RouteID [16]byte

// Stability and RouteSequencing are SafetySpec hop-selection preferences
// (spec.md §4.6).
type Stability byte

const (
	StabilityLowLatency Stability = iota
	StabilityReliable
)

// SafetySpec parameters a caller's choice of route for an outbound
// Question or Statement (spec.md §4.7 step 2).
type SafetySpec struct {
	HopCount       uint8
	Stability      Stability
	Sequencing     Sequencing
	PreferredRoute *RouteID
}
