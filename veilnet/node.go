package veilnet

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/veilnet/veilnet/config"
	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/reachability"
	"github.com/veilnet/veilnet/routing"
	"github.com/veilnet/veilnet/route"
	"github.com/veilnet/veilnet/rpc"
	"github.com/veilnet/veilnet/store"
	"github.com/veilnet/veilnet/transport"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"github.com/veilnet/veilnet/wire"
)

// initialized tracks whether a Node has already been built in this process
// (spec.md §9: "exactly one initialized core instance per process is
// expected; re-entrancy into init before shutdown is an error"), mirroring
// the teacher's own single-core-per-process assumption in network/core.go,
// which never guards against a second core.init on the same secret because
// yggdrasil-go callers are trusted to construct exactly one Core.
var (
	initMu          sync.Mutex
	initializedNode *Node
)

// Node is the routing/RPC core: crypto identity, transport, reachability
// classification, routing table, private-route engine, RPC dispatcher, and
// storage, wired together the way network/core.go's core{crypto, dhtree,
// peers, pconn} wires its four subsystems behind one init(secret) error.
type Node struct {
	self types.NodeID
	kind types.CryptoKind
	priv []byte
	pub  []byte
	cfg  config.Config
	log  Logger

	opener    store.Opener
	protected store.Table

	Transport     *transport.Manager
	Reachability  *reachability.Classifier
	Routing       *routing.Table
	Routes        *route.Engine
	RPC           *rpc.Dispatcher

	mu       sync.RWMutex
	nodeInfo types.SignedNodeInfo
	attached bool
}

// reachabilityProber adapts the transport Manager's SendTo into the
// Statement send reachability.Prober needs, so reachability never imports rpc directly
// (the same avoidance route.Forwarder and rpc.Router already use).
type reachabilityProber struct {
	n *Node
}

func (p reachabilityProber) SendValidateDialInfo(peer types.NodeID, probe types.DialInfo, receipt types.Receipt) error {
	env := &types.Envelope{Kind: types.MessageKindStatement, Body: &wire.ValidateDialInfo{DialInfo: probe, Receipt: receipt}}
	return p.n.Transport.SendTo(peer, env, types.SequencingNoPreference)
}

// routeForwarder adapts the transport Manager's SendTo into the SendRouted call
// route.Engine needs to hop a RoutedOperation on to the next relay.
type routeForwarder struct {
	n *Node
}

func (f routeForwarder) SendRouted(dest types.NodeID, op wire.RoutedOperation) error {
	env := &types.Envelope{Kind: types.MessageKindStatement, Body: &op}
	return f.n.Transport.SendTo(dest, env, types.SequencingNoPreference)
}

// resolveDialInfo is the Router.SendTo address-resolution hook: the routing
// table is transport's only source of "which addresses does this NodeID
// answer to", matching how network/router.go asks peers for addressing
// rather than transport owning that knowledge itself.
func (n *Node) resolveDialInfo(id types.NodeID) []netip.AddrPort {
	peer := <-n.Routing.Lookup(nil, id)
	if peer == nil {
		return nil
	}
	out := make([]netip.AddrPort, 0, len(peer.Signed.Info.DialInfoDetails))
	for _, d := range peer.Signed.Info.DialInfoDetails {
		out = append(out, d.DialInfo.Addr)
	}
	return out
}

func toRoutingLimits(c config.Config) routing.Limits {
	return routing.Limits{
		BucketSize:       c.RoutingBucketSize,
		StrongLatencyMax: c.RoutingStrongLatencyMax,
		GoodLatencyMax:   c.RoutingGoodLatencyMax,
		StaleAfter:       c.RoutingStaleAfter,
	}
}

func toTransportLimits(c config.Config) transport.Limits {
	return transport.Limits{
		PerIPv4:           c.TransportPerIPConnLimit,
		PerIPv6Slash56:    c.TransportPer56ConnLimit,
		PerMinuteConnect:  c.TransportPerMinuteConnect,
		InactivityTimeout: c.TransportInactivityLimit,
	}
}

func toReachabilityConfig(c config.Config) reachability.Config {
	return reachability.Config{
		ProbeInterval:        c.ReachabilityProbeInterval,
		RestrictedNATRetries: c.ReachabilityProbeRetries,
		RetryTimeout:         c.ReachabilityProbeTimeout,
	}
}

func toRouteConfig(c config.Config) route.Config {
	return route.Config{
		BaseTimeout:  c.RouteBaseTimeout,
		MaxRouteIdle: c.RouteMaxIdle,
		ReceiptTTL:   c.RouteReceiptTTL,
	}
}

func toRPCConfig(c config.Config) rpc.Config {
	return rpc.Config{
		Timeout:            c.RPCTimeout,
		Concurrency:        c.RPCConcurrency,
		QueueSize:          c.RPCQueueSize,
		MaxTimestampBehind: c.RPCMaxTimestampBehind,
		MaxTimestampAhead:  c.RPCMaxTimestampAhead,
		ResolveNodeCount:   c.RPCResolveNodeCount,
		GetValueFanout:     c.RPCGetValueFanout,
		GetValueCount:      c.RPCGetValueCount,
		TunnelIdleTimeout:  c.RPCTunnelIdleTimeout,
	}
}

// New performs spec.md §9's init step: it generates a fresh identity (a
// non-nil secret is rejected by loadOrGenerateIdentity), opens the protected/routing/block tables through
// opener, and wires transport, reachability, routing, route, and rpc into a
// single Node. Only one Node may be initialized per process at a time,
// matching spec.md §9's "exactly one initialized core instance per
// process"; a second concurrent New call fails with verrors.InvalidOperation
// rather than silently sharing state.
func New(kind types.CryptoKind, secret []byte, opener store.Opener, opts ...Option) (*Node, error) {
	initMu.Lock()
	defer initMu.Unlock()
	if initializedNode != nil {
		return nil, fmt.Errorf("veilnet: a Node is already initialized in this process: %w", verrors.InvalidOperation)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	pub, priv, err := loadOrGenerateIdentity(kind, secret)
	if err != nil {
		return nil, fmt.Errorf("veilnet: identity: %w", err)
	}
	self, err := crypto.DeriveNodeID(kind, pub)
	if err != nil {
		return nil, fmt.Errorf("veilnet: derive node id: %w", err)
	}

	protected, err := opener.Open(store.TableProtected)
	if err != nil {
		return nil, fmt.Errorf("veilnet: open protected table: %w", err)
	}
	routingTable, err := opener.Open(store.TableRouting)
	if err != nil {
		return nil, fmt.Errorf("veilnet: open routing table: %w", err)
	}
	blockTable, err := opener.Open(store.TableBlocks)
	if err != nil {
		return nil, fmt.Errorf("veilnet: open block table: %w", err)
	}

	log := o.logger
	if log == nil {
		log = defaultLogger()
	}

	n := &Node{
		self:      self,
		kind:      kind,
		priv:      priv,
		pub:       pub,
		cfg:       o.config,
		log:       log,
		opener:    opener,
		protected: protected,
	}

	n.Routing = routing.New(self, toRoutingLimits(o.config))
	_ = routingTable // reserved for warm-restart snapshot loading; see DESIGN.md

	n.Routes = route.New(self, priv, pub, kind, toRouteConfig(o.config), routeForwarder{n: n})

	n.Reachability = reachability.New(toReachabilityConfig(o.config), reachabilityProber{n: n}, o.initialDialInfo)
	n.Reachability.OnClassChanged = n.onClassChanged

	blocks := store.NewBlockStore(blockTable)
	n.RPC = rpc.New(self, kind, toRPCConfig(o.config), nil, n.Routing, n.Routes, protected, blocks, rpcLogger{l: log})
	n.RPC.OnAppMessage = o.onAppMessage
	n.RPC.OnAppCall = o.onAppCall
	n.RPC.OnValueChanged = o.onValueChanged
	n.RPC.OnValidateDialInfo = n.onValidateDialInfoProbe
	n.RPC.OnReturnReceipt = n.onReturnReceipt
	n.RPC.SelfInfo = n.selfSignedNodeInfo

	n.RPC.OnRoutedOperation = func(op wire.RoutedOperation) { n.Routes.HandleIncoming(nil, op) }

	handler := func(c *transport.Connection, env *types.Envelope) {
		sender, ok := c.PeerID()
		if !ok {
			// Not yet authenticated: only an envelope carrying its own
			// SignedNodeInfo (e.g. an initial StatusQ) can identify its
			// sender before BindPeer runs; anything else is dropped.
			if env.SenderNodeInfo == nil {
				return
			}
			id, err := crypto.DeriveNodeID(n.kind, env.SenderNodeInfo.Info.RoutingPublicKey)
			if err != nil {
				return
			}
			c.BindPeer(id)
			sender = id
		}
		n.RPC.HandleEnvelope(nil, sender, env, types.SequencingNoPreference, c.RemoteAddr())
	}
	n.Transport = transport.NewManager(toTransportLimits(o.config), handler, n.resolveDialInfo)
	n.RPC.Sender = n.Transport

	initializedNode = n
	return n, nil
}

// loadOrGenerateIdentity resolves an Open Question SPEC_FULL.md leaves
// implicit: it never specifies an import/export encoding for a
// caller-supplied secret (VLD0 packs signing+DH keys together; VLD1 does
// not), so New only accepts secret == nil, generating a fresh identity
// each time, until a concrete format is chosen.
func loadOrGenerateIdentity(kind types.CryptoKind, secret []byte) (pub, priv []byte, err error) {
	if secret != nil {
		return nil, nil, fmt.Errorf("veilnet: importing an existing secret is not yet supported: %w", verrors.InvalidOperation)
	}
	return crypto.GenerateKeyPair(kind)
}

// onClassChanged re-signs and republishes this node's NodeInfo whenever the
// Reachability Classifier settles a new NetworkClass or DialInfoDetail set
// (spec.md §3: "NodeInfo ... re-signed on material change").
func (n *Node) onClassChanged(class types.NetworkClass, details []types.DialInfoDetail) {
	info := types.NodeInfo{
		NetworkClass:      class,
		DialInfoDetails:   details,
		RoutingPublicKey:  n.pub,
	}
	ts := types.TimestampMicros(time.Now().UnixMicro())
	sig, err := crypto.Sign(n.kind, n.priv, wire.EncodeSignedNodeInfoForSig(info, ts))
	if err != nil {
		n.log.Warnf("veilnet: re-sign node info: %v", err)
		return
	}
	signed := types.SignedNodeInfo{Info: info, Timestamp: ts}
	copy(signed.Signature[:], sig)

	n.mu.Lock()
	n.nodeInfo = signed
	n.mu.Unlock()

	// Fan the fresh SignedNodeInfo out to the closest known peers, the same
	// "push to whoever's already listening" shape rpc.fanOutValueChanged
	// uses for ValueChanged.
	peers := <-n.Routing.FindClosest(nil, n.self, nodeInfoBroadcastFanout)
	for _, p := range peers {
		env := &types.Envelope{Kind: types.MessageKindStatement, Body: &wire.NodeInfoUpdate{Signed: signed}, SenderNodeInfo: &signed}
		_ = n.Transport.SendTo(p.NodeID, env, types.SequencingNoPreference)
	}
}

// nodeInfoBroadcastFanout bounds how many peers a NodeInfo re-signing push
// reaches directly; the rest of the network picks it up on next contact,
// since NodeInfoUpdate also rides along inside any PeerInfo exchange.
const nodeInfoBroadcastFanout = 8

// onValidateDialInfoProbe answers an inbound dial-info validation Statement
// by dialing the requested address and, on success, returning the receipt
// so the requester's reachability.Classifier can correlate it.
func (n *Node) onValidateDialInfoProbe(v wire.ValidateDialInfo) {
	conn, err := n.Transport.Dial(v.DialInfo)
	if err != nil {
		return
	}
	env := &types.Envelope{Kind: types.MessageKindStatement, Body: &wire.ReturnReceipt{Receipt: v.Receipt}}
	_ = conn.Send(env)
}

// onReturnReceipt correlates an inbound ReturnReceipt with the classifier's
// pending probe table. observed is the socket address the receipt actually
// arrived from, threaded here from the transport.Connection it came in on
// (rpc.Dispatcher.HandleEnvelope's own observed parameter) the same way
// sender already is; Classifier.OnReceipt does its own comparison against
// the probed dial info and outbound-target bookkeeping to pick Direct,
// PortRestrictedNAT, AddressRestrictedNAT, or FullConeNAT. mappedByNAT stays
// false: this Node has no UPnP/NAT-PMP port-mapping subsystem, so that
// signal is never available to report.
func (n *Node) onReturnReceipt(r types.Receipt, observed netip.AddrPort) {
	n.Reachability.OnReceipt(nil, r, observed, false)
}

// selfSignedNodeInfo is rpc.Dispatcher.SelfInfo's hook: the zero
// SignedNodeInfo (Timestamp still 0, before the first reachability
// classification settles) reports as unknown rather than a bogus identity.
func (n *Node) selfSignedNodeInfo() *types.SignedNodeInfo {
	n.mu.RLock()
	info := n.nodeInfo
	n.mu.RUnlock()
	if info.Timestamp == 0 {
		return nil
	}
	return &info
}

// NodeID returns this node's identity.
func (n *Node) NodeID() types.NodeID { return n.self }

// NodeInfo returns the most recently signed NodeInfo, or the zero value
// before the first reachability classification completes.
func (n *Node) NodeInfo() types.SignedNodeInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nodeInfo
}

// Attach performs spec.md §9's attach step: it starts listening on every
// configured (protocol, address) pair and marks the node ready to serve
// inbound traffic. Grounded on network/packetconn.go's NewPacketConn
// starting peers/dhtree eagerly rather than lazily on first use.
func (n *Node) Attach(listeners []types.DialInfo) error {
	n.mu.Lock()
	if n.attached {
		n.mu.Unlock()
		return fmt.Errorf("veilnet: already attached: %w", verrors.InvalidOperation)
	}
	n.attached = true
	n.mu.Unlock()

	for _, l := range listeners {
		if _, err := n.Transport.Listen(l.Protocol, l.Addr.String()); err != nil {
			return fmt.Errorf("veilnet: listen %s: %w", l, err)
		}
	}
	return nil
}

// Shutdown performs spec.md §9's shutdown step: cancel every pending RPC
// and release the process-wide initialized-Node slot so a fresh New can
// run. Grounded on network/packetconn.go's Close, which likewise drives
// each actor-owned subsystem's own shutdown rather than tearing down its
// state directly.
func (n *Node) Shutdown() error {
	n.RPC.Shutdown(nil)
	// Shutdown and PendingCount share the same actor queue, so waiting for
	// PendingCount's answer guarantees Shutdown's own cleanup already ran.
	<-n.RPC.PendingCount(nil)

	initMu.Lock()
	if initializedNode == n {
		initializedNode = nil
	}
	initMu.Unlock()

	_ = n.protected.Close()
	if closer, ok := n.opener.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
