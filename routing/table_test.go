package routing

import (
	"testing"
	"time"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/wire"
)

// makePeer builds a self-consistently signed PeerInfo whose NodeID's Value
// is exactly id (bypassing DeriveNodeID, which is fine here since routing
// only cares about the Value bytes for bucketing, and the signature is
// still checked against the real generated key).
func makePeer(t *testing.T, id byte, ts types.TimestampMicros) (types.PeerInfo, []byte) {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair(crypto.KindVLD0)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	var nodeID types.NodeID
	nodeID.Kind = crypto.KindVLD0
	nodeID.Value[len(nodeID.Value)-1] = id

	info := types.NodeInfo{NetworkClass: types.NetworkClassInboundCapable}
	msg := wire.EncodeSignedNodeInfoForSig(info, ts)
	sig, err := crypto.Sign(crypto.KindVLD0, priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	var signed types.SignedNodeInfo
	signed.Info = info
	signed.Timestamp = ts
	copy(signed.Signature[:], sig)

	return types.PeerInfo{NodeID: nodeID, Signed: signed}, pub
}

func TestAddOrUpdateRejectsBadSignature(t *testing.T) {
	local, _ := makePeer(t, 0x00, 1)
	table := New(local.NodeID, DefaultLimits())

	peer, _ := makePeer(t, 0x01, 1)
	_, wrongKey := makePeer(t, 0x02, 1)

	err := <-table.AddOrUpdateWithKey(nil, peer, wrongKey)
	if err == nil {
		t.Fatal("expected verification failure with the wrong signer key")
	}
}

func TestAddOrUpdateRejectsStaleTimestamp(t *testing.T) {
	local, _ := makePeer(t, 0x00, 1)
	table := New(local.NodeID, DefaultLimits())

	peer, pub := makePeer(t, 0x01, 5)
	if err := <-table.AddOrUpdateWithKey(nil, peer, pub); err != nil {
		t.Fatalf("initial insert: %v", err)
	}

	stale, _ := makePeer(t, 0x01, 3)
	if err := <-table.AddOrUpdateWithKey(nil, stale, pub); err == nil {
		t.Fatal("expected Stale rejection for a non-increasing timestamp")
	}
}

// TestFindClosestConvergence reproduces the ten-sequential-node scenario:
// nodes 0x00..0x09, each already steady-state with a full view of the other
// nine (the simulated network's own routing tables), and a local node 0x00
// that starts out knowing only 0x09 via Bootstrap. It converges on the 3
// nodes closest to 0x05 by repeatedly running FindClosest against its own
// table and merging in whatever its current closest peers would themselves
// return for the same query — the same iterative widening a real FindNode
// round-trip performs, without needing rpc.Dispatcher in a routing-package
// test.
func TestFindClosestConvergence(t *testing.T) {
	pubKeys := make(map[byte][]byte)
	peers := make(map[byte]types.PeerInfo)
	network := make(map[byte]*Table) // each simulated node's own fully-populated table

	for i := byte(0); i <= 0x09; i++ {
		peer, pub := makePeer(t, i, types.TimestampMicros(i)+1)
		peers[i] = peer
		pubKeys[i] = pub
	}
	for i := byte(0); i <= 0x09; i++ {
		nt := New(peers[i].NodeID, DefaultLimits())
		for j := byte(0); j <= 0x09; j++ {
			if j == i {
				continue
			}
			if err := <-nt.AddOrUpdateWithKey(nil, peers[j], pubKeys[j]); err != nil {
				t.Fatalf("seed simulated node %02x with %02x: %v", i, j, err)
			}
		}
		network[i] = nt
	}

	local := New(peers[0x00].NodeID, DefaultLimits())
	if err := local.Bootstrap(nil, peers[0x09], pubKeys[0x09]); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	var target types.NodeID
	target.Kind = crypto.KindVLD0
	target.Value[len(target.Value)-1] = 0x05

	const k = 3
	queried := map[byte]bool{}
	for round := 0; round < 10; round++ {
		closest := <-local.FindClosest(nil, target, k)
		progressed := false
		for _, p := range closest {
			tag := p.NodeID.Value[len(p.NodeID.Value)-1]
			if queried[tag] {
				continue
			}
			queried[tag] = true
			progressed = true
			// Simulate asking p (via its own table's FindClosest, standing
			// in for a FindNodeQ/A round-trip) and merging what it knows.
			theirView := <-network[tag].FindClosest(nil, target, k)
			for _, cand := range theirView {
				ctag := cand.NodeID.Value[len(cand.NodeID.Value)-1]
				_ = <-local.AddOrUpdateWithKey(nil, cand, pubKeys[ctag])
			}
		}
		if !progressed {
			break
		}
	}

	closest := <-local.FindClosest(nil, target, k)
	if len(closest) != k {
		t.Fatalf("expected %d results after convergence, got %d", k, len(closest))
	}
	// XOR distance from 0x05: node5=0, node4=1, node7=2, node6=3, ... — the
	// three nearest are unambiguous, unlike the wider all-9 case.
	want := []byte{0x05, 0x04, 0x07}
	for i, w := range want {
		if got := closest[i].NodeID.Value[len(closest[i].NodeID.Value)-1]; got != w {
			t.Fatalf("closest[%d]: expected node %02x, got %02x", i, w, got)
		}
	}
}

func TestFindClosestOrderedByDistance(t *testing.T) {
	local, _ := makePeer(t, 0x00, 1)
	table := New(local.NodeID, DefaultLimits())

	for i := byte(1); i <= 0x09; i++ {
		peer, pub := makePeer(t, i, types.TimestampMicros(i))
		if err := <-table.AddOrUpdateWithKey(nil, peer, pub); err != nil {
			t.Fatalf("insert node %02x: %v", i, err)
		}
	}

	var target types.NodeID
	target.Kind = crypto.KindVLD0
	target.Value[len(target.Value)-1] = 0x00

	all := <-table.FindClosest(nil, target, 9)
	prevDist := crypto.Distance(target.Value[:], all[0].NodeID.Value[:])
	for _, p := range all[1:] {
		d := crypto.Distance(target.Value[:], p.NodeID.Value[:])
		if compareBytes(d, prevDist) < 0 {
			t.Fatalf("FindClosest violated non-decreasing distance order")
		}
		prevDist = d
	}
}

func TestTouchUpdatesLatencyTier(t *testing.T) {
	local, _ := makePeer(t, 0x00, 1)
	table := New(local.NodeID, DefaultLimits())

	peer, pub := makePeer(t, 0x01, 1)
	if err := <-table.AddOrUpdateWithKey(nil, peer, pub); err != nil {
		t.Fatalf("insert: %v", err)
	}

	table.Touch(nil, peer.NodeID, true, 10*time.Millisecond)
	// Touch is asynchronous; Size is queued on the same actor after it, so
	// receiving its result means Touch has run.
	<-table.Size(nil)

	idx := table.bucketIndex(peer.NodeID)
	found := false
	for _, e := range table.buckets[idx].entries {
		if e.Peer.NodeID.Equal(peer.NodeID) {
			found = true
			if e.Tier != AttachedStrong {
				t.Fatalf("expected AttachedStrong after a fast successful RPC, got %v", e.Tier)
			}
		}
	}
	if !found {
		t.Fatal("peer disappeared from its bucket")
	}
}

func TestBootstrapAndSize(t *testing.T) {
	local, _ := makePeer(t, 0x00, 1)
	table := New(local.NodeID, DefaultLimits())

	seed, pub := makePeer(t, 0x09, 1)
	if err := table.Bootstrap(nil, seed, pub); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if n := <-table.Size(nil); n != 1 {
		t.Fatalf("expected size 1 after bootstrap, got %d", n)
	}
}
