package veilnet

import (
	"sync"
	"testing"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/routing"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/wire"
)

func dhtTestPeer(t *testing.T, tag byte) (types.PeerInfo, []byte) {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair(crypto.KindVLD0)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	var id types.NodeID
	id.Kind = crypto.KindVLD0
	id.Value[len(id.Value)-1] = tag

	info := types.NodeInfo{NetworkClass: types.NetworkClassInboundCapable}
	ts := types.TimestampMicros(1)
	msg := wire.EncodeSignedNodeInfoForSig(info, ts)
	sig, err := crypto.Sign(crypto.KindVLD0, priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	var signed types.SignedNodeInfo
	signed.Info = info
	signed.Timestamp = ts
	copy(signed.Signature[:], sig)
	return types.PeerInfo{NodeID: id, Signed: signed}, pub
}

func newDHTTestNode(t *testing.T, seedTags ...byte) *Node {
	t.Helper()
	local, _ := dhtTestPeer(t, 0x00)
	n := &Node{self: local.NodeID, kind: crypto.KindVLD0}
	n.Routing = routing.New(local.NodeID, routing.DefaultLimits())
	for _, tag := range seedTags {
		peer, pub := dhtTestPeer(t, tag)
		if err := <-n.Routing.AddOrUpdateWithKey(nil, peer, pub); err != nil {
			t.Fatalf("seed peer %02x: %v", tag, err)
		}
	}
	return n
}

func TestDHTWalkStopsOnFirstDone(t *testing.T) {
	n := newDHTTestNode(t, 0x01, 0x02, 0x03)

	var mu sync.Mutex
	visitedCount := 0
	n.dhtWalk(n.self, 3, 3, func(p types.PeerInfo) ([]types.PeerInfo, bool) {
		mu.Lock()
		visitedCount++
		mu.Unlock()
		return nil, true // first visitor always reports done
	})

	if visitedCount == 0 {
		t.Fatal("expected at least one peer visited")
	}
}

func TestDHTWalkRespectsUpToBound(t *testing.T) {
	n := newDHTTestNode(t, 0x01, 0x02, 0x03, 0x04, 0x05)

	var mu sync.Mutex
	visitedCount := 0
	n.dhtWalk(n.self, 1, 2, func(p types.PeerInfo) ([]types.PeerInfo, bool) {
		mu.Lock()
		visitedCount++
		mu.Unlock()
		return nil, false
	})

	if visitedCount != 2 {
		t.Fatalf("expected exactly 2 peers visited (upTo bound), got %d", visitedCount)
	}
}

func TestDHTWalkExpandsFromReturnedPeers(t *testing.T) {
	n := newDHTTestNode(t, 0x01)
	extra, _ := dhtTestPeer(t, 0x02)

	var mu sync.Mutex
	seen := map[types.NodeID]bool{}
	n.dhtWalk(n.self, 1, 5, func(p types.PeerInfo) ([]types.PeerInfo, bool) {
		mu.Lock()
		defer mu.Unlock()
		seen[p.NodeID] = true
		if len(seen) == 1 {
			return []types.PeerInfo{extra}, false
		}
		return nil, false
	})

	if !seen[extra.NodeID] {
		t.Fatal("expected the walk to visit a peer discovered mid-walk")
	}
}
