package rpc

import (
	"time"

	"github.com/Arceliar/phony"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/wire"
)

// tunnelState tracks one Start/Complete/Cancel lifecycle, recovered from
// original_source/veilid-core (not present in the distilled spec — see
// SPEC_FULL.md §4.7) and built here around the pre-existing
// types.TunnelState enum.
type tunnelState struct {
	id       types.TunnelID
	mode     types.TunnelMode
	state    types.TunnelState
	peer     types.NodeID
	local    *types.DialInfo
	remote   *types.DialInfo
	lastSeen time.Time
	timer    *time.Timer
}

func newTunnelID() (types.TunnelID, error) {
	b, err := crypto.RandomBytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return types.TunnelID(v), nil
}

// handleStartTunnelQ allocates a Partial tunnel on the responder's side
// (spec.md §4.7: "Partial -> Full -> (Expired|Cancelled)"). The requester
// runs the mirror-image bookkeeping locally when it issues the Ask; both
// sides key their tunnelState by the same TunnelID once StartTunnelA
// returns it.
func handleStartTunnelQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.StartTunnelQ)
	if from == nil {
		return &wire.StartTunnelA{Accepted: false}, nil
	}
	id := q.TunnelID
	if id == 0 {
		var err error
		id, err = newTunnelID()
		if err != nil {
			return nil, err
		}
	}
	ts := &tunnelState{id: id, mode: q.Mode, state: types.TunnelStatePartial, peer: from.NodeID, lastSeen: time.Now()}
	d.tunnels[id] = ts
	d.armTunnelIdleTimer(ts)
	return &wire.StartTunnelA{Accepted: true, TunnelID: id}, nil
}

// handleCompleteTunnelQ supplies the far side's local dial info; once both
// ends have exchanged theirs the tunnel is Full.
func handleCompleteTunnelQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.CompleteTunnelQ)
	ts, ok := d.tunnels[q.TunnelID]
	if !ok || ts.state == types.TunnelStateCancelled || ts.state == types.TunnelStateExpired {
		return &wire.CompleteTunnelA{Accepted: false}, nil
	}
	di := q.LocalDialInfo
	ts.remote = &di
	ts.state = types.TunnelStateFull
	ts.lastSeen = time.Now()
	d.armTunnelIdleTimer(ts)
	return &wire.CompleteTunnelA{Accepted: true}, nil
}

// handleCancelTunnelQ releases a TunnelID immediately rather than waiting
// out its idle timeout.
func handleCancelTunnelQ(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error) {
	q := req.(*wire.CancelTunnelQ)
	ts, ok := d.tunnels[q.TunnelID]
	if !ok {
		return &wire.CancelTunnelA{Accepted: false}, nil
	}
	ts.state = types.TunnelStateCancelled
	if ts.timer != nil {
		ts.timer.Stop()
	}
	delete(d.tunnels, q.TunnelID)
	return &wire.CancelTunnelA{Accepted: true}, nil
}

// armTunnelIdleTimer (re)schedules the idle-expiry that flips a tunnel to
// Expired if neither Complete nor further traffic refreshes it within
// Cfg.TunnelIdleTimeout.
func (d *Dispatcher) armTunnelIdleTimer(ts *tunnelState) {
	if ts.timer != nil {
		ts.timer.Stop()
	}
	id := ts.id
	ts.timer = time.AfterFunc(d.Cfg.TunnelIdleTimeout, func() {
		d.Act(nil, func() { d.expireTunnel(id) })
	})
}

func (d *Dispatcher) expireTunnel(id types.TunnelID) {
	ts, ok := d.tunnels[id]
	if !ok {
		return
	}
	ts.state = types.TunnelStateExpired
	delete(d.tunnels, id)
}

// tunnelStatus is the result of a Tunnel query.
type tunnelStatus struct {
	state types.TunnelState
	found bool
}

// Tunnel returns a snapshot of a tunnel's current state, or found=false if
// the TunnelID is unknown (already Expired/Cancelled and reaped). Safe to
// call from outside the Dispatcher's own actor: it round-trips through
// Act like Router.Lookup does.
func (d *Dispatcher) Tunnel(from phony.Actor, id types.TunnelID) <-chan tunnelStatus {
	out := make(chan tunnelStatus, 1)
	d.Act(from, func() {
		ts, ok := d.tunnels[id]
		if !ok {
			out <- tunnelStatus{state: types.TunnelStateCancelled, found: false}
			return
		}
		out <- tunnelStatus{state: ts.state, found: true}
	})
	return out
}
