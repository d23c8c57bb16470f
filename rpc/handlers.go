package rpc

import (
	"time"

	"github.com/veilnet/veilnet/store"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/wire"
)

// handleStatusQ answers a bare liveness probe. SenderInfo is left nil, and
// nothing else in this module sets it, so a StatusA never carries the
// requester's observed address.
func handleStatusQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	return &wire.StatusA{}, nil
}

// handleFindNodeQ answers with the resolve_node_count closest peers
// routing.Table knows to Target (spec.md §4.7).
func handleFindNodeQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.FindNodeQ)
	if d.Router == nil {
		return &wire.FindNodeA{}, nil
	}
	peers := <-d.Router.FindClosest(d, q.Target, d.Cfg.ResolveNodeCount)
	return &wire.FindNodeA{Peers: peers}, nil
}

// handleGetValueQ returns the locally held value, if any, else the
// closest peers to the key's location so the caller can keep walking.
func handleGetValueQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.GetValueQ)
	v, err := d.Values.get(q.Key)
	if err != nil {
		return nil, err
	}
	var peers []types.PeerInfo
	if v == nil && d.Router != nil {
		loc := types.NodeID{Kind: d.Kind, Value: q.Key.Location}
		peers = <-d.Router.FindClosest(d, loc, d.Cfg.GetValueCount)
	}
	return &wire.GetValueA{Value: v, Peers: peers}, nil
}

// handleSetValueQ applies the strict Seq-increase acceptance rule
// (invariant P2) and, on acceptance, pushes ValueChanged to every live
// watcher of the key.
func handleSetValueQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.SetValueQ)
	accepted, stored, err := d.Values.set(q.Key, q.Value)
	if err != nil {
		return nil, err
	}
	if accepted {
		d.fanOutValueChanged(q.Key, stored)
	}
	return &wire.SetValueA{Accepted: accepted, Value: stored}, nil
}

// fanOutValueChanged sends a ValueChanged Statement to every watcher whose
// subscription hasn't expired.
func (d *Dispatcher) fanOutValueChanged(key types.ValueKey, value types.ValueData) {
	for _, w := range d.Values.activeWatchers(key) {
		stmt := &types.Envelope{Kind: types.MessageKindStatement, Body: &wire.ValueChanged{Key: key, Value: value}}
		_ = d.transmit(w.subscriber, w.route, stmt, types.SafetySpec{})
	}
}

// handleWatchValueQ registers or renews a subscription. A zero
// ExpirationHint, or one of 10 minutes or more, gets a fixed 10-minute
// lifetime so a single watch can't pin memory forever (spec.md §4.7:
// "re-issued to renew").
func handleWatchValueQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.WatchValueQ)
	if from == nil {
		return &wire.WatchValueA{Expiration: 0}, nil
	}
	ttl := 10 * time.Minute
	if hint := time.Duration(q.ExpirationHint) * time.Microsecond; hint > 0 && hint < ttl {
		ttl = hint
	}
	exp := d.Values.watch(q.Key, from.NodeID, nil, ttl)
	return &wire.WatchValueA{Expiration: types.TimestampMicros(exp.UnixMicro())}, nil
}

// handleSupplyBlockQ accepts content-addressed block data iff its BLAKE3
// digest matches the claimed ID (store.BlockStore.Put re-verifies this).
func handleSupplyBlockQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.SupplyBlockQ)
	if d.Blocks == nil {
		return &wire.SupplyBlockA{Accepted: false}, nil
	}
	err := d.Blocks.Put(q.ID, q.Data)
	return &wire.SupplyBlockA{Accepted: err == nil}, nil
}

// handleFindBlockQ returns the block content if held locally, else the
// closest peers to the block's ID.
func handleFindBlockQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.FindBlockQ)
	if d.Blocks == nil {
		return &wire.FindBlockA{}, nil
	}
	data, err := d.Blocks.Get(q.ID)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	var peers []types.PeerInfo
	if data == nil && d.Router != nil {
		var loc types.NodeID
		loc.Kind = d.Kind
		copy(loc.Value[:], q.ID[:])
		peers = <-d.Router.FindClosest(d, loc, d.Cfg.ResolveNodeCount)
	}
	return &wire.FindBlockA{Data: data, Peers: peers}, nil
}

// handleAppCallQ hands an opaque application request off to whatever the
// embedding veilnet.Node registered; rpc itself never interprets Payload.
func handleAppCallQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.AppCallQ)
	if d.OnAppCall == nil {
		return &wire.AppCallA{}, nil
	}
	return &wire.AppCallA{Payload: d.OnAppCall(q.Payload)}, nil
}
