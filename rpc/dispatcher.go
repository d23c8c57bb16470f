// Package rpc implements the RPC Dispatcher of spec.md §4.7: the opID map
// that correlates a Question with its Answer, per-operation server-side
// semantics, and the concurrency cap + queue that backs off with TryAgain.
//
// Grounded on two teacher idioms: the request/response correlation map in
// network/router.go (_newReq/_handleRequest/_handleResponse, a
// map[key]req plus a matching map[key]res, mutated only inside the
// router's own phony.Inbox) generalized here from a single tree-election
// request/response pair to the full typed Question/Statement/Answer
// union; and yggdrasil-go's src/admin/admin.go AddHandler pattern (a
// name-or-here-opcode-keyed map of handler funcs, registered once at
// construction) for wiring one Go function per operation kind into the
// dispatcher's demux table instead of a hand-written switch per call site.
package rpc

import (
	"net/netip"
	"time"

	"github.com/Arceliar/phony"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/store"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"github.com/veilnet/veilnet/wire"
)

// Sender transmits an Envelope directly to a NodeID over whatever
// transport connection is already open to it. Satisfied by
// *transport.Manager; declared here so rpc never imports transport,
// mirroring route.Forwarder's same avoidance of a concrete dependency.
type Sender interface {
	SendTo(id types.NodeID, env *types.Envelope, hint types.Sequencing) error
}

// Router resolves peers for FindNodeQ/A and relay selection. Satisfied by
// *routing.Table.
type Router interface {
	FindClosest(from phony.Actor, target types.NodeID, k int) <-chan []types.PeerInfo
	Lookup(from phony.Actor, id types.NodeID) <-chan *types.PeerInfo
	Touch(from phony.Actor, id types.NodeID, success bool, latency time.Duration)
}

// RouteSender is the subset of route.Engine the dispatcher drives an
// outbound Question/Statement/Answer through when a caller names a
// PrivateRoute destination instead of a bare NodeID.
type RouteSender interface {
	SendPayload(from phony.Actor, relays []types.PeerInfo, dest *types.PrivateRoute, destNode types.NodeID, payload []byte) <-chan error
	PrivateRouteFor(from phony.Actor, id types.RouteID) <-chan *types.PrivateRoute
}

// Logger is the ambient logging surface every component that can drop a
// frame or fail a lookup writes through, matching yggdrasil-go's
// core.Logger shape (veilnet.Logger's method set includes these four
// methods, so a veilnet.Logger satisfies this interface).
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})
}

// Config bounds the dispatcher's behavior (spec.md §4.7).
type Config struct {
	Timeout            time.Duration
	Concurrency        int
	QueueSize          int
	MaxTimestampBehind time.Duration
	MaxTimestampAhead  time.Duration
	ResolveNodeCount   int
	GetValueFanout     int
	GetValueCount      int
	TunnelIdleTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:            5 * time.Second,
		Concurrency:        64,
		QueueSize:          256,
		MaxTimestampBehind: 5 * time.Minute,
		MaxTimestampAhead:  30 * time.Second,
		ResolveNodeCount:   20,
		GetValueFanout:     5,
		GetValueCount:      20,
		TunnelIdleTimeout:  time.Minute,
	}
}

// Metrics counts the events spec.md §8's concrete scenarios assert on
// (scenario 6: "metrics increment unknown_answer_count").
type Metrics struct {
	UnknownAnswerCount uint64
	TimeoutCount       uint64
	TryAgainCount      uint64
	StaleDroppedCount  uint64
}

// pendingQuestion is one in-flight opID (spec.md §4.7: "deadline,
// expected-answer-shape, responder channel, safety context").
type pendingQuestion struct {
	deadline time.Time
	expected types.OpCode
	respond  chan Answer
	timer    *time.Timer
}

// Answer is what a caller of Ask receives: either a decoded Answer body,
// or an error (Timeout, Cancelled, Shutdown). SenderNodeInfo carries the
// responder's own SignedNodeInfo when it stamped one on the reply envelope
// (every Answer does, via Dispatcher.SelfInfo) — the only way a caller who
// does not yet know the responder's NodeID, such as a bootstrap dial to a
// bare address, can learn it.
type Answer struct {
	Body           types.OperationBody
	SenderNodeInfo *types.SignedNodeInfo
	Err            error
}

// queuedAsk is a call to Ask that arrived while Concurrency in-flight
// questions were already outstanding; it waits in Dispatcher.queue for a
// slot, or is refused with TryAgain once QueueSize is also exceeded.
type queuedAsk struct {
	run func()
}

// Dispatcher is the RPC Dispatcher. All mutable state — the pending map,
// in-flight counter, wait queue, and tunnel table — is owned by its
// phony.Inbox, the same single-actor-owns-exclusive-state discipline
// router.go uses for its own requests/responses maps.
type Dispatcher struct {
	phony.Inbox

	Self types.NodeID
	Kind types.CryptoKind
	Cfg  Config

	// SelfInfo returns this node's own most recently signed NodeInfo, or
	// nil before the first reachability classification completes.
	// Outbound Questions and Answers both stamp it onto their Envelope's
	// SenderNodeInfo field, the only channel through which a peer that
	// doesn't yet appear in anyone's routing table can be identified
	// (spec.md §4.5's bootstrap "exchange Status to learn identity").
	SelfInfo func() *types.SignedNodeInfo

	Sender  Sender
	Router  Router
	Routes  RouteSender
	Values  *valueStore
	Blocks  *store.BlockStore
	Log     Logger

	pending  map[types.OpID]*pendingQuestion
	inFlight int
	queue    []queuedAsk
	tunnels  map[types.TunnelID]*tunnelState
	nextTun  types.TunnelID

	handlers map[types.OpCode]handlerFunc

	Metrics Metrics

	// Application/side-effect hooks. rpc frames and routes Statements; it
	// never holds the application logic or the reachability classifier
	// itself, matching how network/router.go hands announcements off to
	// its owning core rather than acting on them directly.
	OnAppMessage       func(payload []byte)
	OnSignal           func(sig wire.Signal)
	OnValidateDialInfo func(v wire.ValidateDialInfo)
	OnReturnReceipt    func(r types.Receipt, observed netip.AddrPort)
	OnNodeInfoUpdate   func(sni types.SignedNodeInfo)
	OnValueChanged     func(key types.ValueKey, value types.ValueData)
	OnAppCall          func(payload []byte) []byte
	OnRoutedOperation  func(op wire.RoutedOperation)
}

// handlerFunc services one inbound Question, returning the Answer body to
// send back (or an error, which is logged and dropped rather than
// answered — spec.md §7: CryptoInvalid and friends never cross back over
// the wire as a bespoke error reply outside the typed Answer union).
type handlerFunc func(d *Dispatcher, from *types.PeerInfo, req types.OperationBody) (types.OperationBody, error)

func New(self types.NodeID, kind types.CryptoKind, cfg Config, sender Sender, router Router, routes RouteSender, values Table, blocks *store.BlockStore, log Logger) *Dispatcher {
	d := &Dispatcher{
		Self:    self,
		Kind:    kind,
		Cfg:     cfg,
		Sender:  sender,
		Router:  router,
		Routes:  routes,
		Values:  newValueStore(values),
		Blocks:  blocks,
		Log:     log,
		pending: make(map[types.OpID]*pendingQuestion),
		tunnels: make(map[types.TunnelID]*tunnelState),
	}
	d.registerHandlers()
	return d
}

// registerHandlers wires one function per Question opcode into the demux
// table, the yggdrasil admin.go AddHandler shape generalized from a
// string-keyed map to an OpCode-keyed one.
func (d *Dispatcher) registerHandlers() {
	d.handlers = map[types.OpCode]handlerFunc{
		types.OpCodeStatusQ:         handleStatusQ,
		types.OpCodeFindNodeQ:       handleFindNodeQ,
		types.OpCodeGetValueQ:       handleGetValueQ,
		types.OpCodeSetValueQ:       handleSetValueQ,
		types.OpCodeWatchValueQ:     handleWatchValueQ,
		types.OpCodeSupplyBlockQ:    handleSupplyBlockQ,
		types.OpCodeFindBlockQ:      handleFindBlockQ,
		types.OpCodeAppCallQ:        handleAppCallQ,
		types.OpCodeStartTunnelQ:    handleStartTunnelQ,
		types.OpCodeCompleteTunnelQ: handleCompleteTunnelQ,
		types.OpCodeCancelTunnelQ:   handleCancelTunnelQ,
	}
}

func newOpID() (types.OpID, error) {
	b, err := crypto.RandomBytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return types.OpID(v), nil
}

func withinTimestampWindow(cfg Config, ts types.TimestampMicros, now time.Time) bool {
	sent := time.UnixMicro(int64(ts))
	behind := now.Add(-cfg.MaxTimestampBehind)
	ahead := now.Add(cfg.MaxTimestampAhead)
	return !sent.Before(behind) && !sent.After(ahead)
}

// Ask issues a Question, either directly to dest (spec.md §4.7 step 4a)
// or, when destRoute is non-nil, through the Private-Route Engine (step
// 4b). It returns the decoded Answer once it arrives, or Timeout once
// spec.HopCount-scaled (route) / Cfg.Timeout (direct) elapses.
func (d *Dispatcher) Ask(from phony.Actor, dest types.NodeID, destRoute *types.PrivateRoute, body types.OperationBody, spec types.SafetySpec) <-chan Answer {
	out := make(chan Answer, 1)
	d.Act(from, func() {
		if d.inFlight >= d.Cfg.Concurrency {
			if len(d.queue) >= d.Cfg.QueueSize {
				d.Metrics.TryAgainCount++
				out <- Answer{Err: verrors.TryAgain}
				return
			}
			d.queue = append(d.queue, queuedAsk{run: func() { d._ask(dest, destRoute, body, spec, out) }})
			return
		}
		d._ask(dest, destRoute, body, spec, out)
	})
	return out
}

func (d *Dispatcher) _ask(dest types.NodeID, destRoute *types.PrivateRoute, body types.OperationBody, spec types.SafetySpec, out chan Answer) {
	opID, err := newOpID()
	if err != nil {
		out <- Answer{Err: err}
		return
	}
	env := &types.Envelope{OpID: opID, Kind: types.MessageKindQuestion, Body: body, SenderNodeInfo: d.selfInfo()}
	timeout := d.Cfg.Timeout * time.Duration(spec.HopCount+1)
	d.inFlight++
	pq := &pendingQuestion{deadline: time.Now().Add(timeout), expected: answerCodeFor(body.OpCode()), respond: out}
	pq.timer = time.AfterFunc(timeout, func() { d.Act(nil, func() { d._expire(opID) }) })
	d.pending[opID] = pq

	sendErr := d.transmit(dest, destRoute, env, spec)
	if sendErr != nil {
		d._complete(opID, Answer{Err: sendErr})
	}
}

func (d *Dispatcher) selfInfo() *types.SignedNodeInfo {
	if d.SelfInfo == nil {
		return nil
	}
	return d.SelfInfo()
}

// AskRaw issues a Question the same way Ask does, but transmits it through
// send instead of resolving dest through Sender/Routes — the path a
// bootstrap dial needs, since it has an address but no NodeID to route to
// yet. The Answer's SenderNodeInfo, once it arrives, is how the caller
// learns that NodeID.
func (d *Dispatcher) AskRaw(from phony.Actor, send func(*types.Envelope) error, body types.OperationBody) <-chan Answer {
	out := make(chan Answer, 1)
	d.Act(from, func() {
		opID, err := newOpID()
		if err != nil {
			out <- Answer{Err: err}
			return
		}
		env := &types.Envelope{OpID: opID, Kind: types.MessageKindQuestion, Body: body, SenderNodeInfo: d.selfInfo()}
		d.inFlight++
		pq := &pendingQuestion{deadline: time.Now().Add(d.Cfg.Timeout), expected: answerCodeFor(body.OpCode()), respond: out}
		pq.timer = time.AfterFunc(d.Cfg.Timeout, func() { d.Act(nil, func() { d._expire(opID) }) })
		d.pending[opID] = pq

		if sendErr := send(env); sendErr != nil {
			d._complete(opID, Answer{Err: sendErr})
		}
	})
	return out
}

func (d *Dispatcher) transmit(dest types.NodeID, destRoute *types.PrivateRoute, env *types.Envelope, spec types.SafetySpec) error {
	if destRoute == nil {
		return d.Sender.SendTo(dest, env, spec.Sequencing)
	}
	payload, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	var relays []types.PeerInfo
	if spec.HopCount > 0 && d.Router != nil {
		peers := <-d.Router.FindClosest(d, d.Self, int(spec.HopCount)+1)
		for _, p := range peers {
			if !p.NodeID.Equal(d.Self) {
				relays = append(relays, p)
			}
			if len(relays) == int(spec.HopCount) {
				break
			}
		}
	}
	return <-d.Routes.SendPayload(d, relays, destRoute, dest, payload)
}

// _expire fires a pending question's deadline (spec.md §5: "expiry
// removes the pending entry and yields Timeout").
func (d *Dispatcher) _expire(opID types.OpID) {
	if _, ok := d.pending[opID]; !ok {
		return
	}
	d.Metrics.TimeoutCount++
	d._complete(opID, Answer{Err: verrors.Timeout})
}

// Cancel drops a pending question without waiting for its deadline
// (spec.md §5: "explicit cancellation ... MUST release the pending
// slot").
func (d *Dispatcher) Cancel(from phony.Actor, opID types.OpID) {
	d.Act(from, func() { d._complete(opID, Answer{Err: verrors.Cancelled}) })
}

func (d *Dispatcher) _complete(opID types.OpID, ans Answer) {
	pq, ok := d.pending[opID]
	if !ok {
		return
	}
	pq.timer.Stop()
	delete(d.pending, opID)
	pq.respond <- ans
	close(pq.respond)
	d.inFlight--
	d._drainQueue()
}

func (d *Dispatcher) _drainQueue() {
	for d.inFlight < d.Cfg.Concurrency && len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		next.run()
	}
}

// PendingCount reports how many questions are currently awaiting an
// Answer, for tests and diagnostics (mirrors routing.Table.Size's
// round-trip-through-Act shape).
func (d *Dispatcher) PendingCount(from phony.Actor) <-chan int {
	out := make(chan int, 1)
	d.Act(from, func() { out <- len(d.pending) })
	return out
}

// Shutdown cancels every pending question with verrors.Shutdown (spec.md
// §7: "all pending become Cancelled" — surfaced here as Shutdown so a
// caller can tell the two apart).
func (d *Dispatcher) Shutdown(from phony.Actor) {
	d.Act(from, func() {
		for opID := range d.pending {
			d._complete(opID, Answer{Err: verrors.Shutdown})
		}
		d.queue = nil
	})
}

// answerCodeFor maps a Question opcode to the opcode its Answer carries;
// Statements have no answer and are never passed here.
func answerCodeFor(q types.OpCode) types.OpCode {
	switch q {
	case types.OpCodeStatusQ:
		return types.OpCodeStatusA
	case types.OpCodeFindNodeQ:
		return types.OpCodeFindNodeA
	case types.OpCodeGetValueQ:
		return types.OpCodeGetValueA
	case types.OpCodeSetValueQ:
		return types.OpCodeSetValueA
	case types.OpCodeWatchValueQ:
		return types.OpCodeWatchValueA
	case types.OpCodeSupplyBlockQ:
		return types.OpCodeSupplyBlockA
	case types.OpCodeFindBlockQ:
		return types.OpCodeFindBlockA
	case types.OpCodeAppCallQ:
		return types.OpCodeAppCallA
	case types.OpCodeStartTunnelQ:
		return types.OpCodeStartTunnelA
	case types.OpCodeCompleteTunnelQ:
		return types.OpCodeCompleteTunnelA
	case types.OpCodeCancelTunnelQ:
		return types.OpCodeCancelTunnelA
	default:
		return types.OpCodeInvalid
	}
}

// HandleEnvelope processes one inbound Envelope, whichever of
// Question/Statement/Answer it is (spec.md §4.7 "On inbound"). sender is
// the NodeID transport already authenticated for this connection during
// its handshake (transport.Connection.BindPeer) — independent of whatever
// SenderNodeInfo the envelope itself carries. hint carries the
// connection-reuse policy for a Question's reply. observed is the socket
// address the envelope actually arrived from, needed by OnReturnReceipt to
// let reachability.Classifier tell Direct from a NAT-rewritten source
// (spec.md §4.4) instead of the caller guessing.
func (d *Dispatcher) HandleEnvelope(from phony.Actor, sender types.NodeID, env *types.Envelope, hint types.Sequencing, observed netip.AddrPort) {
	d.Act(from, func() { d._handleEnvelope(sender, env, hint, observed) })
}

func (d *Dispatcher) _handleEnvelope(sender types.NodeID, env *types.Envelope, hint types.Sequencing, observed netip.AddrPort) {
	if env.SenderNodeInfo != nil && !withinTimestampWindow(d.Cfg, env.SenderNodeInfo.Timestamp, time.Now()) {
		d.Metrics.StaleDroppedCount++
		if d.Log != nil {
			d.Log.Warnf("rpc: dropping envelope opID=%d outside timestamp window", env.OpID)
		}
		return
	}

	switch env.Kind {
	case types.MessageKindAnswer:
		d._handleAnswer(env)
	case types.MessageKindStatement:
		d._handleStatement(env, observed)
	case types.MessageKindQuestion:
		d._handleQuestion(sender, env, hint)
	}
}

func (d *Dispatcher) _handleAnswer(env *types.Envelope) {
	pq, ok := d.pending[env.OpID]
	if !ok || (pq.expected != types.OpCodeInvalid && env.Body.OpCode() != pq.expected) {
		// Answers to unknown or already-resolved opIDs MUST NOT generate an
		// error response (spec.md §4.7, §8 scenario 6) — count and drop.
		d.Metrics.UnknownAnswerCount++
		return
	}
	if time.Now().After(pq.deadline) {
		return // arrived after its own deadline; the timer will/did fire Timeout
	}
	d._complete(env.OpID, Answer{Body: env.Body, SenderNodeInfo: env.SenderNodeInfo})
}

func (d *Dispatcher) _handleStatement(env *types.Envelope, observed netip.AddrPort) {
	switch body := env.Body.(type) {
	case *wire.ValueChanged:
		d.notifyValueChanged(body.Key, body.Value)
	case *wire.AppMessage:
		if d.OnAppMessage != nil {
			d.OnAppMessage(body.Payload)
		}
	case *wire.Signal:
		if d.OnSignal != nil {
			d.OnSignal(*body)
		}
	case *wire.ValidateDialInfo:
		if d.OnValidateDialInfo != nil {
			d.OnValidateDialInfo(*body)
		}
	case *wire.ReturnReceipt:
		if d.OnReturnReceipt != nil {
			d.OnReturnReceipt(body.Receipt, observed)
		}
	case *wire.NodeInfoUpdate:
		if d.OnNodeInfoUpdate != nil {
			d.OnNodeInfoUpdate(body.Signed)
		}
	case *wire.RoutedOperation:
		if d.OnRoutedOperation != nil {
			d.OnRoutedOperation(*body)
		}
	}
}

func (d *Dispatcher) _handleQuestion(sender types.NodeID, env *types.Envelope, hint types.Sequencing) {
	handler, ok := d.handlers[env.Body.OpCode()]
	if !ok {
		return // unrecognized opcode inside a well-formed envelope: drop
	}
	from := &types.PeerInfo{NodeID: sender}
	if env.SenderNodeInfo != nil {
		from.Signed = *env.SenderNodeInfo
	}
	answerBody, err := handler(d, from, env.Body)
	if err != nil {
		if d.Log != nil {
			d.Log.Debugf("rpc: question opID=%d opcode=%d failed: %v", env.OpID, env.Body.OpCode(), err)
		}
		return
	}
	answer := &types.Envelope{OpID: env.OpID, Kind: types.MessageKindAnswer, Body: answerBody, SenderNodeInfo: d.selfInfo()}
	if env.RespondPrivateRoute != nil {
		payload, encErr := wire.EncodeEnvelope(answer)
		if encErr != nil {
			return
		}
		<-d.Routes.SendPayload(nil, nil, env.RespondPrivateRoute, types.NodeID{}, payload)
		return
	}
	_ = d.Sender.SendTo(sender, answer, hint)
}

