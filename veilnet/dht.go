package veilnet

import (
	"sync"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"github.com/veilnet/veilnet/wire"
)

// keyLocationNodeID reinterprets a ValueKey's Location as a NodeID so the
// routing table's XOR-distance FindClosest can pick DHT candidates for it
// — Kademlia puts values and nodes in the same key space (spec.md §4.7).
func keyLocationNodeID(kind types.CryptoKind, key types.ValueKey) types.NodeID {
	var id types.NodeID
	id.Kind = kind
	id.Value = key.Location
	return id
}

// dhtWalk drives the iterative lookup spec.md §4.7 describes for
// GetValueQ/A: "Iterative caller performs fanout = get_value_fanout over
// up to get_value_count peers." Candidates start from the routing table's
// own closest-to-key view; each round asks up to fanout of them
// concurrently (grounded on the pack's own DHT crawl fanout —
// yggdrasil-go's src/dhtcrawler/crawler.go dhtPing, a sync.WaitGroup plus
// a mutex-guarded visited set spawning one goroutine per unexplored node)
// and folds any closer peers a response names back into the candidate
// set, until upTo peers have answered or the candidate set is exhausted.
// visit is called at most once per distinct peer; the walk stops early the
// moment visit returns done == true.
func (n *Node) dhtWalk(target types.NodeID, fanout, upTo int, visit func(types.PeerInfo) (peers []types.PeerInfo, done bool)) {
	if fanout <= 0 {
		fanout = 1
	}
	seed := <-n.Routing.FindClosest(nil, target, upTo)

	var mu sync.Mutex
	visited := make(map[types.NodeID]bool)
	queue := append([]types.PeerInfo(nil), seed...)
	asked := 0
	stop := false

	for len(queue) > 0 && asked < upTo && !stop {
		batch := queue
		queue = nil
		if len(batch) > fanout {
			queue = batch[fanout:]
			batch = batch[:fanout]
		}

		var wg sync.WaitGroup
		for _, p := range batch {
			mu.Lock()
			if visited[p.NodeID] || asked >= upTo {
				mu.Unlock()
				continue
			}
			visited[p.NodeID] = true
			asked++
			mu.Unlock()

			wg.Add(1)
			go func(peer types.PeerInfo) {
				defer wg.Done()
				closer, done := visit(peer)
				mu.Lock()
				if done {
					stop = true
				}
				for _, c := range closer {
					if !visited[c.NodeID] {
						queue = append(queue, c)
					}
				}
				mu.Unlock()
			}(p)
		}
		wg.Wait()
	}
}

// GetValue performs spec.md §4.7's iterative GetValue: up to
// RPCGetValueCount peers nearest key's location are asked, RPCGetValueFanout
// at a time, stopping as soon as one returns a value. A nil, nil result
// means every reachable peer answered but none held the key — not a
// protocol error, the same way a single unsuccessful GetValueQ/A round
// trip isn't one.
func (n *Node) GetValue(key types.ValueKey) (*types.ValueData, error) {
	target := keyLocationNodeID(n.kind, key)
	var found *types.ValueData
	answered := false

	n.dhtWalk(target, n.cfg.RPCGetValueFanout, n.cfg.RPCGetValueCount, func(peer types.PeerInfo) ([]types.PeerInfo, bool) {
		ans := <-n.RPC.Ask(nil, peer.NodeID, nil, &wire.GetValueQ{Key: key}, n.safetySpecFor(nil))
		if ans.Err != nil {
			return nil, false
		}
		answered = true
		a := ans.Body.(*wire.GetValueA)
		if a.Value != nil {
			found = a.Value
			return nil, true
		}
		return a.Peers, false
	})

	if !answered && found == nil {
		return nil, verrors.Unreachable
	}
	return found, nil
}

// SetValue performs spec.md §4.7's SetValue broadcast: "Broadcasting
// follows the same fanout" as GetValue. Every peer in the walk gets the
// write; the result reports whether any of them accepted it and the
// newest stored value any responder returned (whether it accepted this
// write or already held a newer one).
func (n *Node) SetValue(key types.ValueKey, value types.ValueData) (accepted bool, stored types.ValueData, err error) {
	target := keyLocationNodeID(n.kind, key)
	var (
		mu      sync.Mutex
		anyOK   bool
		newest  types.ValueData
		haveAny bool
	)

	n.dhtWalk(target, n.cfg.RPCGetValueFanout, n.cfg.RPCGetValueCount, func(peer types.PeerInfo) ([]types.PeerInfo, bool) {
		ans := <-n.RPC.Ask(nil, peer.NodeID, nil, &wire.SetValueQ{Key: key, Value: value}, n.safetySpecFor(nil))
		if ans.Err != nil {
			return nil, false
		}
		a := ans.Body.(*wire.SetValueA)

		mu.Lock()
		if a.Accepted {
			anyOK = true
		}
		if !haveAny || a.Value.Newer(newest) {
			newest = a.Value
			haveAny = true
		}
		mu.Unlock()
		return nil, false
	})

	if !haveAny {
		return false, types.ValueData{}, verrors.Unreachable
	}
	return anyOK, newest, nil
}
