package route

import (
	"bytes"
	"testing"
	"time"

	"github.com/Arceliar/phony"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/wire"
)

// testNode builds a self-consistent PeerInfo whose RoutingPublicKey is a
// real generated key pair, distinct from its identity NodeID.
func testNode(t *testing.T, tag byte) (types.PeerInfo, []byte) {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair(crypto.KindVLD0)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	var id types.NodeID
	id.Kind = crypto.KindVLD0
	id.Value[31] = tag
	info := types.NodeInfo{RoutingPublicKey: pub}
	return types.PeerInfo{NodeID: id, Signed: types.SignedNodeInfo{Info: info}}, priv
}

func TestBuildPrivateRouteStub(t *testing.T) {
	pr, priv, err := BuildPrivateRoute(crypto.KindVLD0, nil, types.PeerInfo{}, nil)
	if err != nil {
		t.Fatalf("BuildPrivateRoute: %v", err)
	}
	if !pr.IsStub() {
		t.Fatal("expected a stub route with no relays")
	}
	if priv != nil {
		t.Fatal("stub route should not allocate an ephemeral key")
	}
}

// TestBuildPrivateRouteSingleHop walks a 1-relay PrivateRoute's two onion
// layers: the relay's own layer, which must only reveal that the next hop
// is the owner, and the owner's own innermost layer, which alone carries
// the terminal payload.
func TestBuildPrivateRouteSingleHop(t *testing.T) {
	relay, relayPriv := testNode(t, 1)
	owner, ownerPriv := testNode(t, 2)

	pr, _, err := BuildPrivateRoute(crypto.KindVLD0, []types.PeerInfo{relay}, owner, []byte("hello"))
	if err != nil {
		t.Fatalf("BuildPrivateRoute: %v", err)
	}
	if pr.IsStub() {
		t.Fatal("expected a non-stub route")
	}
	if pr.FirstHop == nil || pr.FirstHop.Node != relay.NodeID {
		t.Fatal("first hop node mismatch")
	}
	if pr.HopCount != 1 {
		t.Fatalf("expected hop count 1 (owner is not counted), got %d", pr.HopCount)
	}

	relayKey, err := deriveHopKey(crypto.KindVLD0, relayPriv, pr.PublicKey[:])
	if err != nil {
		t.Fatalf("deriveHopKey relay: %v", err)
	}
	relayPlain, err := hopDecrypt(relayKey, pr.FirstHop.NextHop.Nonce, pr.FirstHop.NextHop.Blob)
	if err != nil {
		t.Fatalf("hopDecrypt relay: %v", err)
	}
	relayLayer, err := decodeLayer(relayPlain)
	if err != nil {
		t.Fatalf("decodeLayer relay: %v", err)
	}
	if relayLayer.tag != layerTagRouteHop {
		t.Fatalf("expected relay to see a RouteHop layer, got tag %d", relayLayer.tag)
	}
	if relayLayer.next != owner.NodeID {
		t.Fatal("relay layer did not point at the owner as the next hop")
	}

	ownerKey, err := deriveHopKey(crypto.KindVLD0, ownerPriv, pr.PublicKey[:])
	if err != nil {
		t.Fatalf("deriveHopKey owner: %v", err)
	}
	ownerPlain, err := hopDecrypt(ownerKey, relayLayer.nextData.Nonce, relayLayer.nextData.Blob)
	if err != nil {
		t.Fatalf("hopDecrypt owner: %v", err)
	}
	ownerLayer, err := decodeLayer(ownerPlain)
	if err != nil {
		t.Fatalf("decodeLayer owner: %v", err)
	}
	if ownerLayer.tag != layerTagTerminal {
		t.Fatalf("expected a terminal layer at the owner, got tag %d", ownerLayer.tag)
	}
	if !bytes.Equal(ownerLayer.payload, []byte("hello")) {
		t.Fatalf("payload mismatch: got %q", ownerLayer.payload)
	}
}

func TestBuildSafetyRouteMultiHopUnwindsInOrder(t *testing.T) {
	relay1, priv1 := testNode(t, 1)
	relay2, priv2 := testNode(t, 2)

	dest, _, err := BuildPrivateRoute(crypto.KindVLD0, nil, types.PeerInfo{}, nil)
	if err != nil {
		t.Fatalf("BuildPrivateRoute(stub owner route): %v", err)
	}

	sr, _, firstHop, err := BuildSafetyRoute(crypto.KindVLD0, []types.PeerInfo{relay1, relay2}, dest)
	if err != nil {
		t.Fatalf("BuildSafetyRoute: %v", err)
	}
	if firstHop != relay1.NodeID {
		t.Fatal("expected relay1 to be the first hop")
	}
	if sr.HopCount != 2 {
		t.Fatalf("expected hop count 2, got %d", sr.HopCount)
	}

	// Unwind hop 1.
	key1, err := deriveHopKey(crypto.KindVLD0, priv1, sr.PublicKey[:])
	if err != nil {
		t.Fatalf("deriveHopKey hop1: %v", err)
	}
	plain1, err := hopDecrypt(key1, sr.Hops.Nonce, sr.Hops.Blob)
	if err != nil {
		t.Fatalf("hopDecrypt hop1: %v", err)
	}
	l1, err := decodeLayer(plain1)
	if err != nil {
		t.Fatalf("decodeLayer hop1: %v", err)
	}
	if l1.tag != layerTagRouteHop {
		t.Fatalf("expected hop1 to reveal another RouteHop, got tag %d", l1.tag)
	}
	if l1.next != relay2.NodeID {
		t.Fatal("hop1 did not reveal relay2 as the next hop")
	}

	// Unwind hop 2.
	key2, err := deriveHopKey(crypto.KindVLD0, priv2, sr.PublicKey[:])
	if err != nil {
		t.Fatalf("deriveHopKey hop2: %v", err)
	}
	plain2, err := hopDecrypt(key2, l1.nextData.Nonce, l1.nextData.Blob)
	if err != nil {
		t.Fatalf("hopDecrypt hop2: %v", err)
	}
	l2, err := decodeLayer(plain2)
	if err != nil {
		t.Fatalf("decodeLayer hop2: %v", err)
	}
	if l2.tag != layerTagPrivateRoute {
		t.Fatalf("expected hop2 to reveal the embedded PrivateRoute, got tag %d", l2.tag)
	}
	if !l2.private.IsStub() {
		t.Fatal("expected the embedded destination route to be a stub")
	}
}

// meshForwarder routes a RoutedOperation to whichever Engine in byNode owns
// dest, simulating a live mesh of connected relays for the single-process
// end-to-end test below. Engines are wired up after construction since each
// needs the same forwarder instance.
type meshForwarder struct {
	byNode map[types.NodeID]*Engine
}

func (f *meshForwarder) SendRouted(dest types.NodeID, op wire.RoutedOperation) error {
	e, ok := f.byNode[dest]
	if !ok {
		return nil // no route to host: silently dropped, mirroring a real network
	}
	e.HandleIncoming(nil, op)
	return nil
}

func TestEngineEndToEndSingleHop(t *testing.T) {
	relay, relayPriv := testNode(t, 1)
	owner, ownerPriv := testNode(t, 2)
	sender, _ := testNode(t, 3)

	fwd := &meshForwarder{byNode: make(map[types.NodeID]*Engine)}

	ownerEngine := New(owner.NodeID, ownerPriv, owner.Signed.Info.RoutingPublicKey, crypto.KindVLD0, DefaultConfig(), fwd)
	delivered := make(chan []byte, 1)
	ownerEngine.Deliver = func(payload []byte) { delivered <- payload }

	relayEngine := New(relay.NodeID, relayPriv, relay.Signed.Info.RoutingPublicKey, crypto.KindVLD0, DefaultConfig(), fwd)
	senderEngine := New(sender.NodeID, nil, nil, crypto.KindVLD0, DefaultConfig(), fwd)

	fwd.byNode[relay.NodeID] = relayEngine
	fwd.byNode[owner.NodeID] = ownerEngine

	idCh, errCh := ownerEngine.Publish(nil, []types.PeerInfo{relay})
	var id types.RouteID
	select {
	case err := <-errCh:
		t.Fatalf("Publish: %v", err)
	case id = <-idCh:
	}

	pr := <-ownerEngine.PrivateRouteFor(nil, id)
	if pr == nil {
		t.Fatal("published route not found")
	}

	sendErrCh := senderEngine.SendPayload(nil, nil, pr, types.NodeID{}, []byte("payload"))
	if err := <-sendErrCh; err != nil {
		t.Fatalf("SendPayload: %v", err)
	}

	select {
	case payload := <-delivered:
		if !bytes.Equal(payload, []byte("payload")) {
			t.Fatalf("expected owner to receive the payload, got %q", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

// snoopingForwarder wraps meshForwarder and records the RoutedOperation
// arriving at a chosen NodeID before handing it off, so a test can inspect
// the accumulated Signatures/SignerKeys the relay appended.
type snoopingForwarder struct {
	meshForwarder
	watch   types.NodeID
	seen    []wire.RoutedOperation
	mangle  func(op wire.RoutedOperation) wire.RoutedOperation
}

func (f *snoopingForwarder) SendRouted(dest types.NodeID, op wire.RoutedOperation) error {
	if dest == f.watch {
		f.seen = append(f.seen, op)
		if f.mangle != nil {
			op = f.mangle(op)
		}
	}
	return f.meshForwarder.SendRouted(dest, op)
}

func TestEngineRelayAppendsVerifiableSignature(t *testing.T) {
	relay, relayPriv := testNode(t, 1)
	owner, ownerPriv := testNode(t, 2)
	sender, _ := testNode(t, 3)

	fwd := &snoopingForwarder{meshForwarder: meshForwarder{byNode: make(map[types.NodeID]*Engine)}, watch: owner.NodeID}

	ownerEngine := New(owner.NodeID, ownerPriv, owner.Signed.Info.RoutingPublicKey, crypto.KindVLD0, DefaultConfig(), fwd)
	delivered := make(chan []byte, 1)
	ownerEngine.Deliver = func(payload []byte) { delivered <- payload }

	relayEngine := New(relay.NodeID, relayPriv, relay.Signed.Info.RoutingPublicKey, crypto.KindVLD0, DefaultConfig(), fwd)
	senderEngine := New(sender.NodeID, nil, nil, crypto.KindVLD0, DefaultConfig(), fwd)

	fwd.byNode[relay.NodeID] = relayEngine
	fwd.byNode[owner.NodeID] = ownerEngine

	idCh, errCh := ownerEngine.Publish(nil, []types.PeerInfo{relay})
	var id types.RouteID
	select {
	case err := <-errCh:
		t.Fatalf("Publish: %v", err)
	case id = <-idCh:
	}
	pr := <-ownerEngine.PrivateRouteFor(nil, id)

	if err := <-senderEngine.SendPayload(nil, nil, pr, types.NodeID{}, []byte("payload")); err != nil {
		t.Fatalf("SendPayload: %v", err)
	}

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	if len(fwd.seen) != 1 {
		t.Fatalf("expected relay to forward exactly once, got %d", len(fwd.seen))
	}
	op := fwd.seen[0]
	if len(op.Signatures) != 1 || len(op.SignerKeys) != 1 {
		t.Fatalf("expected one accumulated signature/signer, got sigs=%d keys=%d", len(op.Signatures), len(op.SignerKeys))
	}
	if !bytes.Equal(op.SignerKeys[0], relay.Signed.Info.RoutingPublicKey) {
		t.Fatal("signer key does not match the relay's own RoutingPublicKey")
	}
	if err := VerifySignatures(crypto.KindVLD0, op.SignerKeys, routeSignMessage(op.Nonce, op.Ciphertext), op.Signatures); err != nil {
		t.Fatalf("VerifySignatures: %v", err)
	}
}

func TestEngineDropsDeliveryOnTamperedSignature(t *testing.T) {
	relay, relayPriv := testNode(t, 1)
	owner, ownerPriv := testNode(t, 2)
	sender, _ := testNode(t, 3)

	fwd := &snoopingForwarder{
		meshForwarder: meshForwarder{byNode: make(map[types.NodeID]*Engine)},
		watch:         owner.NodeID,
		mangle: func(op wire.RoutedOperation) wire.RoutedOperation {
			op.Signatures[0][0] ^= 0xFF
			return op
		},
	}

	ownerEngine := New(owner.NodeID, ownerPriv, owner.Signed.Info.RoutingPublicKey, crypto.KindVLD0, DefaultConfig(), fwd)
	delivered := make(chan []byte, 1)
	ownerEngine.Deliver = func(payload []byte) { delivered <- payload }

	relayEngine := New(relay.NodeID, relayPriv, relay.Signed.Info.RoutingPublicKey, crypto.KindVLD0, DefaultConfig(), fwd)
	senderEngine := New(sender.NodeID, nil, nil, crypto.KindVLD0, DefaultConfig(), fwd)

	fwd.byNode[relay.NodeID] = relayEngine
	fwd.byNode[owner.NodeID] = ownerEngine

	idCh, errCh := ownerEngine.Publish(nil, []types.PeerInfo{relay})
	var id types.RouteID
	select {
	case err := <-errCh:
		t.Fatalf("Publish: %v", err)
	case id = <-idCh:
	}
	pr := <-ownerEngine.PrivateRouteFor(nil, id)

	if err := <-senderEngine.SendPayload(nil, nil, pr, types.NodeID{}, []byte("payload")); err != nil {
		t.Fatalf("SendPayload: %v", err)
	}

	select {
	case <-delivered:
		t.Fatal("delivered a payload whose relay signature was tampered with")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngineStubRouteDeliversDirectly(t *testing.T) {
	owner, _ := testNode(t, 1)
	sender, _ := testNode(t, 2)

	fwd := &meshForwarder{byNode: make(map[types.NodeID]*Engine)}
	ownerEngine := New(owner.NodeID, nil, nil, crypto.KindVLD0, DefaultConfig(), fwd)
	delivered := make(chan []byte, 1)
	ownerEngine.Deliver = func(payload []byte) { delivered <- payload }
	fwd.byNode[owner.NodeID] = ownerEngine

	senderEngine := New(sender.NodeID, nil, nil, crypto.KindVLD0, DefaultConfig(), fwd)
	stub := &types.PrivateRoute{HopCount: 0}

	if err := <-senderEngine.SendPayload(nil, nil, stub, owner.NodeID, []byte("direct")); err != nil {
		t.Fatalf("SendPayload: %v", err)
	}

	select {
	case payload := <-delivered:
		if !bytes.Equal(payload, []byte("direct")) {
			t.Fatalf("expected direct delivery, got %q", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for direct delivery")
	}
}

func TestReceiptTrackerDedup(t *testing.T) {
	rt := newReceiptTracker(time.Minute)
	var r types.Receipt
	r[0] = 0xAB

	if !rt.seen(r) {
		t.Fatal("expected first sighting to report true")
	}
	if rt.seen(r) {
		t.Fatal("expected duplicate sighting to report false")
	}

	var other types.Receipt
	other[0] = 0xCD
	if !rt.seen(other) {
		t.Fatal("expected a distinct receipt to report true")
	}
}

func TestVerifySignaturesRejectsMismatchedCounts(t *testing.T) {
	node, _ := testNode(t, 1)
	err := VerifySignatures(crypto.KindVLD0, [][]byte{node.Signed.Info.RoutingPublicKey}, []byte("msg"), nil)
	if err == nil {
		t.Fatal("expected an error for mismatched hop/signature counts")
	}
}

// mapResolver is a Resolver test double backed by a plain map, standing in
// for routing.Table without importing it.
type mapResolver map[types.NodeID]types.PeerInfo

func (m mapResolver) Lookup(from phony.Actor, id types.NodeID) <-chan *types.PeerInfo {
	result := make(chan *types.PeerInfo, 1)
	if p, ok := m[id]; ok {
		result <- &p
	} else {
		result <- nil
	}
	return result
}

func TestVerifyRouteSignaturesRejectsUnknownSigner(t *testing.T) {
	node, _ := testNode(t, 1)
	resolver := mapResolver{} // deliberately empty: node is unknown
	err := VerifyRouteSignatures(crypto.KindVLD0, resolver, []types.NodeID{node.NodeID}, []byte("msg"), [][]byte{{0x01}})
	if err == nil {
		t.Fatal("expected an unknown-signer error")
	}
}

func TestVerifyRouteSignaturesAcceptsKnownSigner(t *testing.T) {
	node, priv := testNode(t, 1)
	resolver := mapResolver{node.NodeID: node}
	msg := []byte("hop message")
	sig, err := crypto.Sign(crypto.KindVLD0, priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := VerifyRouteSignatures(crypto.KindVLD0, resolver, []types.NodeID{node.NodeID}, msg, [][]byte{sig}); err != nil {
		t.Fatalf("VerifyRouteSignatures: %v", err)
	}
}

func TestVerifySignaturesAcceptsValidSignature(t *testing.T) {
	node, priv := testNode(t, 1)
	msg := []byte("hop message")
	sig, err := crypto.Sign(crypto.KindVLD0, priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := VerifySignatures(crypto.KindVLD0, [][]byte{node.Signed.Info.RoutingPublicKey}, msg, [][]byte{sig}); err != nil {
		t.Fatalf("VerifySignatures: %v", err)
	}
}
