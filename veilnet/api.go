package veilnet

import (
	"fmt"
	"time"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"github.com/veilnet/veilnet/wire"
)

// errTunnelRejected is returned when a tunnel-lifecycle Ask's Accepted
// flag comes back false — the far end refused rather than the RPC itself
// failing.
var errTunnelRejected = fmt.Errorf("veilnet: tunnel request rejected: %w", verrors.InvalidOperation)

// safetySpecFor builds the SafetySpec an outbound call uses when the
// caller doesn't need to name a specific route: no preference on
// sequencing or stability, and RouteDefaultHops relays (spec.md §4.6's
// "default 1" hop count) only when destRoute is set; a direct call gets a
// hop count of 0.
func (n *Node) safetySpecFor(destRoute *types.PrivateRoute) types.SafetySpec {
	spec := types.SafetySpec{Sequencing: types.SequencingNoPreference}
	if destRoute != nil {
		spec.HopCount = n.cfg.RouteDefaultHops
	}
	return spec
}

// FindNode asks dest, with a single FindNodeQ, for the peers it knows
// closest to target.
func (n *Node) FindNode(dest types.NodeID, target types.NodeID) ([]types.PeerInfo, error) {
	ans := <-n.RPC.Ask(nil, dest, nil, &wire.FindNodeQ{Target: target}, n.safetySpecFor(nil))
	if ans.Err != nil {
		return nil, ans.Err
	}
	return ans.Body.(*wire.FindNodeA).Peers, nil
}

// GetValue and SetValue (spec.md §4.7 GetValueQ/A, SetValueQ/A) live in
// dht.go: both are iterative fanout operations over the routing table's
// view of a key's location, not a single-peer Ask like the RPCs below.

// WatchValue subscribes to future ValueChanged notifications for key from
// dest, for up to ttl (subject to dest's own clamp — see
// rpc.handleWatchValueQ). Re-issue before the returned expiration to renew.
func (n *Node) WatchValue(dest types.NodeID, destRoute *types.PrivateRoute, key types.ValueKey, ttl time.Duration) (time.Time, error) {
	hint := uint64(ttl.Microseconds())
	ans := <-n.RPC.Ask(nil, dest, destRoute, &wire.WatchValueQ{Key: key, ExpirationHint: hint}, n.safetySpecFor(destRoute))
	if ans.Err != nil {
		return time.Time{}, ans.Err
	}
	exp := ans.Body.(*wire.WatchValueA).Expiration
	return time.UnixMicro(int64(exp)), nil
}

// SupplyBlock pushes content-addressed block data to dest.
func (n *Node) SupplyBlock(dest types.NodeID, destRoute *types.PrivateRoute, id wire.BlockID, data []byte) (bool, error) {
	ans := <-n.RPC.Ask(nil, dest, destRoute, &wire.SupplyBlockQ{ID: id, Data: data}, n.safetySpecFor(destRoute))
	if ans.Err != nil {
		return false, ans.Err
	}
	return ans.Body.(*wire.SupplyBlockA).Accepted, nil
}

// FindBlock fetches block content by content address from dest.
func (n *Node) FindBlock(dest types.NodeID, destRoute *types.PrivateRoute, id wire.BlockID) ([]byte, []types.PeerInfo, error) {
	ans := <-n.RPC.Ask(nil, dest, destRoute, &wire.FindBlockQ{ID: id}, n.safetySpecFor(destRoute))
	if ans.Err != nil {
		return nil, nil, ans.Err
	}
	a := ans.Body.(*wire.FindBlockA)
	return a.Data, a.Peers, nil
}

// AppCall sends an opaque application request to dest and returns its
// opaque reply, the RPC-level equivalent of a synchronous RPC.
func (n *Node) AppCall(dest types.NodeID, destRoute *types.PrivateRoute, payload []byte) ([]byte, error) {
	ans := <-n.RPC.Ask(nil, dest, destRoute, &wire.AppCallQ{Payload: payload}, n.safetySpecFor(destRoute))
	if ans.Err != nil {
		return nil, ans.Err
	}
	return ans.Body.(*wire.AppCallA).Payload, nil
}

// AppMessage sends a fire-and-forget opaque Statement to dest — no Answer
// is expected, matching spec.md §4.7's AppMessage.
func (n *Node) AppMessage(dest types.NodeID, destRoute *types.PrivateRoute, payload []byte) error {
	env := &types.Envelope{Kind: types.MessageKindStatement, Body: &wire.AppMessage{Payload: payload}}
	if destRoute == nil {
		return n.RPC.Sender.SendTo(dest, env, types.SequencingNoPreference)
	}
	relays := n.relaysFor(n.cfg.RouteDefaultHops)
	payloadBytes, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return <-n.Routes.SendPayload(nil, relays, destRoute, dest, payloadBytes)
}

// relaysFor picks up to hopCount relays from the routing table, excluding
// self, the same lookup rpc.Dispatcher.transmit performs for a routed Ask.
func (n *Node) relaysFor(hopCount uint8) []types.PeerInfo {
	if hopCount == 0 {
		return nil
	}
	peers := <-n.Routing.FindClosest(nil, n.self, int(hopCount)+1)
	var relays []types.PeerInfo
	for _, p := range peers {
		if p.NodeID.Equal(n.self) {
			continue
		}
		relays = append(relays, p)
		if len(relays) == int(hopCount) {
			break
		}
	}
	return relays
}

// PublishRoute builds and advertises a new PrivateRoute terminating at this
// node, through hopCount relays drawn from the routing table (spec.md
// §4.6). The returned RouteID must eventually be passed to ReleaseRoute.
func (n *Node) PublishRoute(hopCount uint8) (types.RouteID, error) {
	relays := n.relaysFor(hopCount)
	idCh, errCh := n.Routes.Publish(nil, relays)
	select {
	case err := <-errCh:
		return types.RouteID{}, err
	case id := <-idCh:
		return id, nil
	}
}

// ReleaseRoute retires a route this node previously published.
func (n *Node) ReleaseRoute(id types.RouteID) {
	n.Routes.Release(nil, id)
}

// PrivateRouteFor returns the PrivateRoute previously published under id,
// for handing to a peer out of band, or nil if id is unknown or released.
func (n *Node) PrivateRouteFor(id types.RouteID) *types.PrivateRoute {
	return <-n.Routes.PrivateRouteFor(nil, id)
}

// OpenTunnel issues a StartTunnelQ, the first step of the Partial -> Full
// tunnel handshake recovered from original_source/veilid-core (see
// rpc/tunnel.go).
func (n *Node) OpenTunnel(dest types.NodeID, mode types.TunnelMode) (types.TunnelID, error) {
	ans := <-n.RPC.Ask(nil, dest, nil, &wire.StartTunnelQ{Mode: mode}, n.safetySpecFor(nil))
	if ans.Err != nil {
		return 0, ans.Err
	}
	a := ans.Body.(*wire.StartTunnelA)
	if !a.Accepted {
		return 0, errTunnelRejected
	}
	return a.TunnelID, nil
}

// CompleteTunnel supplies this node's own local dial info, completing the
// handshake OpenTunnel began.
func (n *Node) CompleteTunnel(dest types.NodeID, id types.TunnelID, local types.DialInfo) error {
	ans := <-n.RPC.Ask(nil, dest, nil, &wire.CompleteTunnelQ{TunnelID: id, LocalDialInfo: local}, n.safetySpecFor(nil))
	if ans.Err != nil {
		return ans.Err
	}
	if !ans.Body.(*wire.CompleteTunnelA).Accepted {
		return errTunnelRejected
	}
	return nil
}

// CancelTunnel releases a tunnel before its idle timeout.
func (n *Node) CancelTunnel(dest types.NodeID, id types.TunnelID) error {
	ans := <-n.RPC.Ask(nil, dest, nil, &wire.CancelTunnelQ{TunnelID: id}, n.safetySpecFor(nil))
	if ans.Err != nil {
		return ans.Err
	}
	if !ans.Body.(*wire.CancelTunnelA).Accepted {
		return errTunnelRejected
	}
	return nil
}
