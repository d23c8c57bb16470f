package route

import (
	"fmt"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
)

// DefaultHopCount and MaxHopCount bound route length (spec.md §4.6:
// "default 1, max 4").
const (
	DefaultHopCount = 1
	MaxHopCount     = 4
)

// hopStaticPublicKey extracts the routing public key spec.md §4.6's DH
// step needs from a hop's PeerInfo, grounded on the RoutingPublicKey field
// added to NodeInfo for exactly this purpose (see DESIGN.md, types entry).
func hopStaticPublicKey(p *types.PeerInfo) ([]byte, error) {
	if p == nil || len(p.Signed.Info.RoutingPublicKey) == 0 {
		return nil, fmt.Errorf("route: hop has no routing public key")
	}
	return p.Signed.Info.RoutingPublicKey, nil
}

// buildOnion wraps innermost inside-out through relays (ordered from
// first hop to last), all keyed off one ephemeral route keypair, and
// returns the resulting entry-point RouteHop. Every hop must share the
// route's crypto kind: mixing kinds within one route is rejected outright
// (spec.md §9 Open Question (i)) rather than negotiated per hop, since a
// single ephemeral route keypair only has one kind's worth of DH math.
func buildOnion(kind types.CryptoKind, ephemeralPriv []byte, relays []types.PeerInfo, innermost layer) (*types.RouteHop, error) {
	if len(relays) == 0 {
		return nil, fmt.Errorf("route: at least one relay required")
	}
	for _, relay := range relays {
		if relay.NodeID.Kind != kind {
			return nil, fmt.Errorf("route: hop %s uses crypto kind %s, route requires %s: %w", relay.NodeID, relay.NodeID.Kind, kind, verrors.InvalidOperation)
		}
	}

	blob := encodeLayer(innermost)

	var hop *types.RouteHop
	for i := len(relays) - 1; i >= 0; i-- {
		relay := relays[i]
		if i != len(relays)-1 {
			// hop currently holds the previously (further-in) wrapped
			// relay; re-encode it as this layer's forwarding target
			// before encrypting for the current relay.
			blob = encodeLayer(layer{tag: layerTagRouteHop, next: hop.Node, nextData: hop.NextHop})
		}

		pub, err := hopStaticPublicKey(&relay)
		if err != nil {
			return nil, err
		}
		key, err := deriveHopKey(kind, ephemeralPriv, pub)
		if err != nil {
			return nil, err
		}
		nonce, err := crypto.RandomNonce()
		if err != nil {
			return nil, err
		}
		ciphertext := hopEncrypt(key, nonce, blob)
		hop = &types.RouteHop{Node: relay.NodeID, Peer: &relay, NextHop: &types.RouteHopData{Nonce: nonce, Blob: ciphertext}}
	}
	return hop, nil
}

// BuildPrivateRoute constructs a PrivateRoute a node publishes so others
// can reach it without learning its identity up front: relays, in order,
// followed by owner as an appended, unlisted final hop. owner is appended
// rather than counted in HopCount because it isn't sender-chosen
// indirection — it's the innermost onion layer, keyed to the owner's own
// static key, guaranteeing that only the owner (not the last relay) can
// ever successfully decrypt the final layer and learn the payload.
func BuildPrivateRoute(kind types.CryptoKind, relays []types.PeerInfo, owner types.PeerInfo, terminalPayload []byte) (*types.PrivateRoute, []byte, error) {
	if len(relays) == 0 {
		return &types.PrivateRoute{HopCount: 0}, nil, nil // stub route
	}
	if len(relays) > MaxHopCount {
		return nil, nil, fmt.Errorf("route: hop count %d exceeds max %d", len(relays), MaxHopCount)
	}
	pub, priv, err := crypto.GenerateKeyPair(kind)
	if err != nil {
		return nil, nil, err
	}
	hops := append(append([]types.PeerInfo{}, relays...), owner)
	first, err := buildOnion(kind, priv, hops, layer{tag: layerTagTerminal, payload: terminalPayload})
	if err != nil {
		return nil, nil, err
	}
	var routePub [32]byte
	copy(routePub[:], pub) // truncated for kinds with wider DH keys; VLD0's X25519 half is exactly 32 bytes
	return &types.PrivateRoute{PublicKey: routePub, HopCount: uint8(len(relays)), FirstHop: first}, priv, nil
}

// BuildSafetyRoute prepends sender-side hops around dest, an
// already-built PrivateRoute. SafetyRoute carries no first-hop identity of
// its own — unlike PrivateRoute it is never handed out cold, it is sent
// directly over a connection the sender already holds to firstHop — so
// the caller gets firstHop back to know where to physically transmit the
// resulting RoutedOperation. dest must be non-stub: a stub destination
// means direct delivery, which the caller (Engine.SendPayload) handles
// before ever reaching here.
func BuildSafetyRoute(kind types.CryptoKind, relays []types.PeerInfo, dest *types.PrivateRoute) (route *types.SafetyRoute, ephemeralPriv []byte, firstHop types.NodeID, err error) {
	if len(relays) == 0 {
		// No sender-side hops to add: the packet's first physical hop is
		// simply dest's own first hop, since there is no wrapping to peel
		// before entering private-route forwarding.
		if dest.FirstHop == nil {
			return nil, nil, types.NodeID{}, fmt.Errorf("route: destination route has no first hop")
		}
		return &types.SafetyRoute{HopCount: 0, Private: dest}, nil, dest.FirstHop.Node, nil
	}
	if len(relays) > MaxHopCount {
		return nil, nil, types.NodeID{}, fmt.Errorf("route: hop count %d exceeds max %d", len(relays), MaxHopCount)
	}
	pub, priv, err := crypto.GenerateKeyPair(kind)
	if err != nil {
		return nil, nil, types.NodeID{}, err
	}

	first, err := buildOnion(kind, priv, relays, layer{tag: layerTagPrivateRoute, private: dest})
	if err != nil {
		return nil, nil, types.NodeID{}, err
	}
	var routePub [32]byte
	copy(routePub[:], pub)
	sr := &types.SafetyRoute{PublicKey: routePub, HopCount: uint8(len(relays)), Hops: first.NextHop}
	return sr, priv, first.Node, nil
}
