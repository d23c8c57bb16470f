// Package reachability implements the Reachability Classifier of
// spec.md §4.4: periodic ValidateDialInfo probes, receipt correlation,
// and the DialInfoClass/NetworkClass derivation rules.
//
// Grounded on the teacher's network/router.go request/response/timer idiom
// (routerSigReq issued, routerSigRes correlated by nonce, a time.AfterFunc
// governing the retry window) — generalized from parent-election signing to
// dial-info probing.
package reachability

import (
	"net/netip"
	"sync"
	"time"

	"github.com/Arceliar/phony"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/types"
)

// Prober sends a Statement to a peer and, on success, correlates a Receipt
// arriving out-of-band. It abstracts over the RPC dispatcher so this
// package never imports rpc directly (the same arena-by-NodeID pattern
// DESIGN NOTES §9 calls for between Routing Table and Private-Route
// Engine).
type Prober interface {
	SendValidateDialInfo(peer types.NodeID, probe types.DialInfo, receipt types.Receipt) error
}

// attempt tracks one in-flight probe of a single locally advertised
// DialInfo, across up to config.RestrictedNATRetries tries.
type attempt struct {
	dialInfo        types.DialInfo
	probedVia       types.NodeID     // the peer asked to attempt this dial info
	viaOutbound     types.NodeID     // the peer our outbound connection currently targets, for rule 3
	viaOutboundAddr netip.AddrPort   // that peer's address at probe time, for rule 3's address/port comparison
	receipt         types.Receipt
	tries           int
	timer           *time.Timer
}

// Config parameters the classifier reads (spec.md §4.4 names
// restricted_nat_retries; the rest are Classifier-internal pacing).
type Config struct {
	ProbeInterval        time.Duration
	RestrictedNATRetries int
	RetryTimeout         time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProbeInterval:        5 * time.Minute,
		RestrictedNATRetries: 3,
		RetryTimeout:         10 * time.Second,
	}
}

// Classifier runs the periodic probe loop and settles NetworkClass. All
// mutable state is guarded by its phony.Inbox, mirroring router.go's
// single-actor exclusive-state discipline.
type Classifier struct {
	phony.Inbox

	cfg    Config
	prober Prober

	mu       sync.Mutex // guards details/networkClass for cheap concurrent reads from callers
	details  []types.DialInfoDetail
	class    types.NetworkClass

	pending map[types.Receipt]*attempt

	OnClassChanged func(types.NetworkClass, []types.DialInfoDetail)
}

func New(cfg Config, prober Prober, initial []types.DialInfoDetail) *Classifier {
	c := &Classifier{
		cfg:     cfg,
		prober:  prober,
		details: initial,
		pending: make(map[types.Receipt]*attempt),
	}
	c.recomputeClassLocked()
	return c
}

// Details returns the current best-known DialInfoDetails.
func (c *Classifier) Details() []types.DialInfoDetail {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.DialInfoDetail(nil), c.details...)
}

// NetworkClass returns the currently settled class.
func (c *Classifier) NetworkClass() types.NetworkClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.class
}

// ProbeVia issues a ValidateDialInfo probe for dialInfo through via, the
// same-protocol/address attempt that, on a matching receipt, classifies as
// Direct (rule 1). outboundTarget identifies the peer our current outbound
// connection targets and outboundAddr its address at probe time, needed
// for rule 3's NAT-type discrimination.
func (c *Classifier) ProbeVia(from phony.Actor, dialInfo types.DialInfo, via, outboundTarget types.NodeID, outboundAddr netip.AddrPort) {
	c.Act(from, func() {
		receipt, err := crypto.RandomBytes(types.ReceiptLen)
		if err != nil {
			return
		}
		var rc types.Receipt
		copy(rc[:], receipt)
		a := &attempt{dialInfo: dialInfo, probedVia: via, viaOutbound: outboundTarget, viaOutboundAddr: outboundAddr, receipt: rc}
		c.pending[rc] = a
		c._sendProbe(a)
	})
}

func (c *Classifier) _sendProbe(a *attempt) {
	a.tries++
	_ = c.prober.SendValidateDialInfo(a.probedVia, a.dialInfo, a.receipt)
	a.timer = time.AfterFunc(c.cfg.RetryTimeout, func() {
		c.Act(nil, func() { c._onProbeTimeout(a) })
	})
}

func (c *Classifier) _onProbeTimeout(a *attempt) {
	if _, ok := c.pending[a.receipt]; !ok {
		return // already resolved by a receipt
	}
	if a.tries >= c.cfg.RestrictedNATRetries {
		delete(c.pending, a.receipt)
		c._classify(a.dialInfo, types.DialInfoClassBlocked, a)
		return
	}
	c._sendProbe(a)
}

// OnReceipt is called by the dispatcher when a ReturnReceipt Statement
// arrives. observedAddr is the socket address it actually arrived from
// (the transport.Connection's remote address); the classifier itself
// compares that against the attempt's own bookkeeping rather than trusting
// a caller-computed same-source guess, per spec.md §4.4's rules:
//
//  1. observedAddr matches the probed DialInfo exactly ⇒ Direct.
//  2. mappedByNAT (a UPnP/NAT-PMP mapping was already known active) ⇒ Mapped.
//  3. observedAddr matches the outbound-target peer's address+port ⇒
//     PortRestrictedNAT; matches only its address ⇒ AddressRestrictedNAT;
//     otherwise any source reached us ⇒ FullConeNAT.
func (c *Classifier) OnReceipt(from phony.Actor, receipt types.Receipt, observedAddr netip.AddrPort, mappedByNAT bool) {
	c.Act(from, func() {
		a, ok := c.pending[receipt]
		if !ok {
			return
		}
		delete(c.pending, receipt)
		if a.timer != nil {
			a.timer.Stop()
		}

		var class types.DialInfoClass
		switch {
		case observedAddr.IsValid() && observedAddr == a.dialInfo.Addr:
			class = types.DialInfoClassDirect
		case mappedByNAT:
			class = types.DialInfoClassMapped
		case observedAddr.IsValid() && a.viaOutboundAddr.IsValid() && observedAddr == a.viaOutboundAddr:
			class = types.DialInfoClassPortRestrictedNAT
		case observedAddr.IsValid() && a.viaOutboundAddr.IsValid() && observedAddr.Addr() == a.viaOutboundAddr.Addr():
			class = types.DialInfoClassAddressRestrictedNAT
		default:
			class = types.DialInfoClassFullConeNAT
		}
		c._classify(a.dialInfo, class, a)
	})
}

func (c *Classifier) _classify(dialInfo types.DialInfo, class types.DialInfoClass, a *attempt) {
	c.mu.Lock()
	found := false
	for i := range c.details {
		if c.details[i].DialInfo == dialInfo {
			c.details[i].Class = class
			found = true
			break
		}
	}
	if !found {
		c.details = append(c.details, types.DialInfoDetail{DialInfo: dialInfo, Class: class})
	}
	changed := c.recomputeClassLocked()
	class2, details := c.class, append([]types.DialInfoDetail(nil), c.details...)
	c.mu.Unlock()

	if changed && c.OnClassChanged != nil {
		c.OnClassChanged(class2, details)
	}
}

// recomputeClassLocked applies spec.md §4.4's NetworkClass rule and
// reports whether the class changed. Caller must hold c.mu.
func (c *Classifier) recomputeClassLocked() bool {
	prev := c.class
	inboundCapable := false
	for _, d := range c.details {
		if d.Class.IsInboundCapable() {
			inboundCapable = true
			break
		}
	}
	switch {
	case inboundCapable:
		c.class = types.NetworkClassInboundCapable
	case len(c.details) > 0:
		c.class = types.NetworkClassOutboundOnly
	default:
		c.class = types.NetworkClassWebApp
	}
	return c.class != prev
}
