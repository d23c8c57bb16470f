package route

import (
	"fmt"
	"time"

	"github.com/Arceliar/phony"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/wire"
)

// Forwarder sends a RoutedOperation on to another node, abstracting over
// the RPC dispatcher/transport so this package never imports rpc directly
// (the same DESIGN NOTES §9 arena-by-NodeID separation reachability.Prober
// uses for the same reason).
type Forwarder interface {
	SendRouted(dest types.NodeID, op wire.RoutedOperation) error
}

// Config parameters the engine reads (spec.md §4.6).
type Config struct {
	BaseTimeout  time.Duration
	MaxRouteIdle time.Duration
	ReceiptTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseTimeout:  10 * time.Second,
		MaxRouteIdle: 5 * time.Minute,
		ReceiptTTL:   2 * time.Minute,
	}
}

// localRoute is a PrivateRoute this node published, kept so incoming
// traffic addressed to it can be unwound with the matching ephemeral
// private key.
type localRoute struct {
	route    *types.PrivateRoute
	priv     []byte
	lastUsed time.Time
}

// Engine owns route construction, forwarding, and receipt bookkeeping.
// All mutable state (published routes, receipt tracker) is guarded by its
// phony.Inbox, mirroring the same actor discipline routing.Table and
// transport.ConnTable use.
type Engine struct {
	phony.Inbox

	Self           types.NodeID
	SelfPriv       []byte // own DH private key, for terminal-hop decryption
	SelfRoutingPub []byte // own DH public key, advertised to route publishers as the terminal hop
	Kind           types.CryptoKind
	Cfg            Config

	forwarder Forwarder
	receipts  *receiptTracker
	published map[types.RouteID]*localRoute

	// Deliver is invoked with the plaintext payload once a RoutedOperation
	// addressed to one of our own published routes fully unwinds.
	Deliver func(payload []byte)
}

func New(self types.NodeID, selfPriv, selfRoutingPub []byte, kind types.CryptoKind, cfg Config, fw Forwarder) *Engine {
	return &Engine{
		Self:           self,
		SelfPriv:       selfPriv,
		SelfRoutingPub: selfRoutingPub,
		Kind:           kind,
		Cfg:            cfg,
		forwarder:      fw,
		receipts:       newReceiptTracker(cfg.ReceiptTTL),
		published:      make(map[types.RouteID]*localRoute),
	}
}

// Timeout scales with hop count (spec.md §4.6: "base_timeout *
// (hop_count + 1)").
func (e *Engine) Timeout(hopCount uint8) time.Duration {
	return e.Cfg.BaseTimeout * time.Duration(hopCount+1)
}

// Publish builds and remembers a PrivateRoute through relays, returning a
// RouteID for later release.
func (e *Engine) Publish(from phony.Actor, relays []types.PeerInfo) (<-chan types.RouteID, <-chan error) {
	idCh := make(chan types.RouteID, 1)
	errCh := make(chan error, 1)
	e.Act(from, func() {
		owner := types.PeerInfo{NodeID: e.Self, Signed: types.SignedNodeInfo{Info: types.NodeInfo{RoutingPublicKey: e.SelfRoutingPub}}}
		pr, priv, err := BuildPrivateRoute(e.Kind, relays, owner, nil)
		if err != nil {
			errCh <- err
			return
		}
		var id types.RouteID
		rb, rerr := crypto.RandomBytes(len(id))
		if rerr != nil {
			errCh <- rerr
			return
		}
		copy(id[:], rb)
		e.published[id] = &localRoute{route: pr, priv: priv, lastUsed: time.Now()}
		idCh <- id
	})
	return idCh, errCh
}

// Release drops a published route (spec.md §4.6: idle routes are
// released; this is also the manual-release path).
func (e *Engine) Release(from phony.Actor, id types.RouteID) {
	e.Act(from, func() { delete(e.published, id) })
}

// PrivateRouteFor returns the wire form of a published route.
func (e *Engine) PrivateRouteFor(from phony.Actor, id types.RouteID) <-chan *types.PrivateRoute {
	result := make(chan *types.PrivateRoute, 1)
	e.Act(from, func() {
		lr, ok := e.published[id]
		if !ok {
			result <- nil
			return
		}
		lr.lastUsed = time.Now()
		result <- lr.route
	})
	return result
}

// SweepIdle releases routes unused past MaxRouteIdle.
func (e *Engine) SweepIdle(from phony.Actor) {
	e.Act(from, func() {
		now := time.Now()
		for id, lr := range e.published {
			if now.Sub(lr.lastUsed) > e.Cfg.MaxRouteIdle {
				delete(e.published, id)
			}
		}
	})
}

// SendPayload wraps payload in a safety route through relays terminating
// at dest, and hands the resulting RoutedOperation to the forwarder for
// transmission to the first hop (or directly to dest, for a stub route).
func (e *Engine) SendPayload(from phony.Actor, relays []types.PeerInfo, dest *types.PrivateRoute, destNode types.NodeID, payload []byte) <-chan error {
	errCh := make(chan error, 1)
	e.Act(from, func() {
		if dest.IsStub() {
			// A stub PrivateRoute means the destination is willing to be
			// reached directly, with no onion indirection: nothing to
			// encrypt at this layer, Ciphertext just carries payload
			// through to Deliver on the far side.
			nonce, err := crypto.RandomNonce()
			if err != nil {
				errCh <- err
				return
			}
			op := wire.RoutedOperation{Nonce: nonce, Ciphertext: payload}
			errCh <- e.forwarder.SendRouted(destNode, op)
			return
		}
		safety, _, firstHop, err := BuildSafetyRoute(e.Kind, relays, dest)
		if err != nil {
			errCh <- err
			return
		}
		nonce, err := crypto.RandomNonce()
		if err != nil {
			errCh <- err
			return
		}
		op := wire.RoutedOperation{Safety: safety, Nonce: nonce, Ciphertext: payload}
		errCh <- e.forwarder.SendRouted(firstHop, op)
	})
	return errCh
}

// HandleIncoming processes a RoutedOperation arriving at this node: it may
// be an intermediate hop (forward the peeled layer onward), the safety
// route's transition into an embedded PrivateRoute (start forwarding into
// it), or the final destination (deliver locally). A RoutedOperation with
// no Safety route at all is a stub-route delivery: the sender addressed
// this node directly, with no onion indirection to peel. Per spec.md
// §4.6's integrity rule, a missing or invalid signature drops the packet
// silently — never an error reply, to avoid an oracle.
func (e *Engine) HandleIncoming(from phony.Actor, op wire.RoutedOperation) {
	e.Act(from, func() {
		if op.Safety == nil {
			if e.Deliver != nil {
				e.Deliver(op.Ciphertext)
			}
			return
		}
		e._handleSafetyLayer(op)
	})
}

// _handleSafetyLayer decrypts and interprets one SafetyRoute layer.
// HopCount is advisory bookkeeping only (timeout scaling, diagnostics) —
// which branch to take is determined entirely by which of Hops/Private is
// set, since the onion's own tag bytes are what actually describe its
// shape, not a hop counter a forwarder could get out of sync with.
func (e *Engine) _handleSafetyLayer(op wire.RoutedOperation) {
	s := op.Safety
	if s.Hops == nil {
		if s.Private != nil {
			e._deliverIntoPrivateRoute(s.Private, op)
		}
		return // malformed: neither Hops nor Private set, drop silently
	}
	key, err := deriveHopKey(e.Kind, e.SelfPriv, s.PublicKey[:])
	if err != nil {
		return
	}
	plain, err := hopDecrypt(key, s.Hops.Nonce, s.Hops.Blob)
	if err != nil {
		return // integrity failure: drop silently, no oracle
	}
	l, err := decodeLayer(plain)
	if err != nil {
		return
	}
	switch l.tag {
	case layerTagRouteHop:
		signatures, signerKeys := op.Signatures, op.SignerKeys
		if sig, sigErr := crypto.Sign(e.Kind, e.SelfPriv, routeSignMessage(op.Nonce, op.Ciphertext)); sigErr == nil {
			signatures = append(append([][]byte{}, op.Signatures...), sig)
			signerKeys = append(append([][]byte{}, op.SignerKeys...), e.SelfRoutingPub)
		}
		next := wire.RoutedOperation{
			Safety:     &types.SafetyRoute{PublicKey: s.PublicKey, HopCount: s.HopCount - 1, Hops: l.nextData},
			Nonce:      op.Nonce,
			Ciphertext: op.Ciphertext,
			Signatures: signatures,
			SignerKeys: signerKeys,
		}
		_ = e.forwarder.SendRouted(l.next, next)
	case layerTagPrivateRoute:
		e._deliverIntoPrivateRoute(l.private, op)
	case layerTagTerminal:
		// Only the entity whose static key matches this layer's encryption
		// target ever decrypts it successfully, and that target is always
		// the route's own owner (the last hop appended in BuildPrivateRoute),
		// so reaching this case means delivery has arrived home — but only
		// once every relay's accumulated signature checks out (spec.md
		// §4.6's integrity rule); a bad or missing signature is dropped
		// silently, same as a failed hopDecrypt, to avoid an oracle.
		if !verifyRouteHopSignatures(e.Kind, op) {
			return
		}
		if e.Deliver != nil {
			e.Deliver(op.Ciphertext)
		}
	}
}

// routeSignMessage is what each forwarding hop signs and the terminal
// verifies: the parts of a RoutedOperation that stay identical from the
// first hop to the last, since Safety is peeled down to nothing while
// Nonce and Ciphertext travel unchanged.
func routeSignMessage(nonce [24]byte, ciphertext []byte) []byte {
	msg := make([]byte, 0, 24+len(ciphertext))
	msg = append(msg, nonce[:]...)
	msg = append(msg, ciphertext...)
	return msg
}

// verifyRouteHopSignatures checks every relay's accumulated signature
// against the RoutingPublicKey it self-attested (op.SignerKeys), the
// terminal side of spec.md §4.6's per-hop integrity rule. A route with no
// relays at all (Signatures and SignerKeys both empty) has nothing to
// verify.
func verifyRouteHopSignatures(kind types.CryptoKind, op wire.RoutedOperation) bool {
	if len(op.Signatures) == 0 && len(op.SignerKeys) == 0 {
		return true
	}
	return VerifySignatures(kind, op.SignerKeys, routeSignMessage(op.Nonce, op.Ciphertext), op.Signatures) == nil
}

func (e *Engine) _deliverIntoPrivateRoute(pr *types.PrivateRoute, op wire.RoutedOperation) {
	if pr.IsStub() {
		if e.Deliver != nil {
			e.Deliver(op.Ciphertext)
		}
		return
	}
	e._handleSafetyLayer(wire.RoutedOperation{
		Safety:     &types.SafetyRoute{PublicKey: pr.PublicKey, HopCount: pr.HopCount, Hops: privateRouteFirstHopData(pr)},
		Nonce:      op.Nonce,
		Ciphertext: op.Ciphertext,
		Signatures: op.Signatures,
		SignerKeys: op.SignerKeys,
	})
}

// privateRouteFirstHopData extracts the RouteHopData travelling to a
// PrivateRoute's first hop, so a transition from safety-route forwarding
// into private-route forwarding can be expressed with the same
// _handleSafetyLayer machinery.
func privateRouteFirstHopData(pr *types.PrivateRoute) *types.RouteHopData {
	if pr.FirstHop == nil {
		return nil
	}
	return pr.FirstHop.NextHop
}

// VerifySignatures checks every accumulated hop signature against the
// hops' routing public keys, per spec.md §4.6's integrity rule. hopKeys
// must be in the same order signatures were appended. A NodeID alone
// can't stand in for a hop's public key here (same reason RoutingPublicKey
// was added to NodeInfo in the first place), so callers pass each hop's
// full RoutingPublicKey blob, not its NodeID.
func VerifySignatures(kind types.CryptoKind, hopKeys [][]byte, message []byte, sigs [][]byte) error {
	if len(hopKeys) != len(sigs) {
		return fmt.Errorf("route: signature count %d does not match hop count %d", len(sigs), len(hopKeys))
	}
	for i, key := range hopKeys {
		if !crypto.Verify(kind, key, message, sigs[i]) {
			return fmt.Errorf("route: invalid signature at hop %d", i)
		}
	}
	return nil
}

// ReceiveReceipt records an incoming ReturnReceipt token, reporting
// whether this is its first sighting (duplicates are ignored per
// spec.md §4.6).
func (e *Engine) ReceiveReceipt(receipt types.Receipt) bool {
	return e.receipts.seen(receipt)
}
