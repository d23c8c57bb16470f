package route

import (
	"fmt"

	"github.com/Arceliar/phony"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
)

// Resolver looks up a peer's cached PeerInfo by NodeID. routing.Table
// satisfies this without route importing routing, the same
// ownership-cycle avoidance the teacher's router/peers split uses.
type Resolver interface {
	Lookup(from phony.Actor, id types.NodeID) <-chan *types.PeerInfo
}

// VerifyRouteSignatures resolves each hop's routing public key through
// resolver and verifies its signature over message. A NodeID absent from
// resolver is treated as a verification failure outright, never as a cue
// to fetch the missing PeerInfo first (spec.md §9 Open Question (ii)).
func VerifyRouteSignatures(kind types.CryptoKind, resolver Resolver, hopNodes []types.NodeID, message []byte, sigs [][]byte) error {
	if len(hopNodes) != len(sigs) {
		return fmt.Errorf("route: signature count %d does not match hop count %d", len(sigs), len(hopNodes))
	}
	keys := make([][]byte, len(hopNodes))
	for i, id := range hopNodes {
		peer := <-resolver.Lookup(nil, id)
		if peer == nil || len(peer.Signed.Info.RoutingPublicKey) == 0 {
			return fmt.Errorf("route: signer %s not found: %w", id, verrors.CryptoInvalid)
		}
		keys[i] = peer.Signed.Info.RoutingPublicKey
	}
	return VerifySignatures(kind, keys, message, sigs)
}
