// Package routing implements the Routing Table of spec.md §4.5: a flat set
// of entries indexed by XOR distance from the local NodeID, arranged into
// per-distance buckets, with four liveness tiers per entry.
//
// This is the one component where the teacher's core routing *algorithm*
// (a spanning tree elected by signed parent announcements) is deliberately
// not reused — spec.md calls for Kademlia-style XOR-distance buckets
// instead. What is reused is the teacher's actor-guarded exclusive-state
// engineering pattern from network/router.go: a single phony.Inbox owns
// every mutation, so bucket splits/evictions/lookups never need their own
// locks.
package routing

import (
	"sort"
	"time"

	"github.com/Arceliar/phony"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"github.com/veilnet/veilnet/wire"
)

// Tier is a routing-table entry's liveness classification (spec.md §4.5).
type Tier int

const (
	AttachedStrong Tier = iota
	AttachedGood
	AttachedWeak
	FullyAttached
)

// Entry is one routing-table row.
type Entry struct {
	Peer               types.PeerInfo
	Tier               Tier
	LastSeen           time.Time
	LatencyEWMA        time.Duration
	ObservedProtocols  []types.Protocol
	Successes, Failures uint64
}

// Limits bounds bucket occupancy per tier (spec.md §4.5: "limits from
// config").
type Limits struct {
	BucketSize        int
	StrongLatencyMax  time.Duration
	GoodLatencyMax    time.Duration
	StaleAfter        time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		BucketSize:       20,
		StrongLatencyMax: 150 * time.Millisecond,
		GoodLatencyMax:   500 * time.Millisecond,
		StaleAfter:       10 * time.Minute,
	}
}

type bucket struct {
	entries []*Entry
}

// Table is the local node's view of the network, bucketed by common-prefix
// length of XOR distance from Local.
type Table struct {
	phony.Inbox

	Local  types.NodeID
	limits Limits

	buckets [8 * 32]bucket // one bucket per possible CPL for a 32-byte NodeID
}

func New(local types.NodeID, limits Limits) *Table {
	return &Table{Local: local, limits: limits}
}

func (t *Table) bucketIndex(id types.NodeID) int {
	d := crypto.Distance(t.Local.Value[:], id.Value[:])
	cpl := crypto.LeadingZeroBits(d)
	if cpl >= len(t.buckets) {
		cpl = len(t.buckets) - 1
	}
	return cpl
}

// trimSignature slices a zero-padded fixed-width Signature array down to
// the real signature length for kind, since VLD0's 64-byte signatures are
// shorter than the fixed field, which is sized for VLD1's 114-byte Ed448
// signatures.
func trimSignature(kind types.CryptoKind, sig []byte) []byte {
	n, err := crypto.SignatureSize(kind)
	if err != nil || n > len(sig) {
		return sig
	}
	return sig[:n]
}

// AddOrUpdateWithKey inserts or refreshes p, verifying its signature under
// signerPublicKey (spec.md §3 invariant P3). When the bucket is full,
// eviction removes the oldest entry of the worst tier present (FullyAttached
// first, then AttachedWeak, and so on).
func (t *Table) AddOrUpdateWithKey(from phony.Actor, p types.PeerInfo, signerPublicKey []byte) <-chan error {
	result := make(chan error, 1)
	t.Act(from, func() {
		idx := t.bucketIndex(p.NodeID)
		b := &t.buckets[idx]
		var prior *Entry
		for _, e := range b.entries {
			if e.Peer.NodeID.Equal(p.NodeID) {
				prior = e
				break
			}
		}
		msg := wire.EncodeSignedNodeInfoForSig(p.Signed.Info, p.Signed.Timestamp)
		sig := trimSignature(p.NodeID.Kind, p.Signed.Signature[:])
		if !crypto.Verify(p.NodeID.Kind, signerPublicKey, msg, sig) {
			result <- verrors.CryptoInvalid
			return
		}
		if prior != nil {
			if p.Signed.Timestamp <= prior.Peer.Signed.Timestamp {
				result <- verrors.Stale
				return
			}
			prior.Peer = p
			prior.LastSeen = time.Now()
			result <- nil
			return
		}
		if len(b.entries) >= t.limits.BucketSize {
			t._evictOldest(b)
		}
		b.entries = append(b.entries, &Entry{Peer: p, Tier: FullyAttached, LastSeen: time.Now()})
		result <- nil
	})
	return result
}

func (t *Table) _evictOldest(b *bucket) {
	if len(b.entries) == 0 {
		return
	}
	oldestIdx := 0
	for i, e := range b.entries {
		w := b.entries[oldestIdx]
		if e.Tier > w.Tier || (e.Tier == w.Tier && e.LastSeen.Before(w.LastSeen)) {
			oldestIdx = i
		}
	}
	b.entries = append(b.entries[:oldestIdx], b.entries[oldestIdx+1:]...)
}

// Touch records the outcome of an RPC to id, updating its latency EWMA and
// tier.
func (t *Table) Touch(from phony.Actor, id types.NodeID, success bool, latency time.Duration) {
	t.Act(from, func() {
		idx := t.bucketIndex(id)
		b := &t.buckets[idx]
		for _, e := range b.entries {
			if !e.Peer.NodeID.Equal(id) {
				continue
			}
			e.LastSeen = time.Now()
			if success {
				e.Successes++
				if e.LatencyEWMA == 0 {
					e.LatencyEWMA = latency
				} else {
					e.LatencyEWMA = (e.LatencyEWMA*9 + latency) / 10
				}
			} else {
				e.Failures++
			}
			e.Tier = tierFor(e, t.limits)
			return
		}
	})
}

func tierFor(e *Entry, limits Limits) Tier {
	if e.Failures > 0 && e.Failures >= e.Successes {
		return FullyAttached
	}
	switch {
	case e.LatencyEWMA > 0 && e.LatencyEWMA <= limits.StrongLatencyMax:
		return AttachedStrong
	case e.LatencyEWMA > 0 && e.LatencyEWMA <= limits.GoodLatencyMax:
		return AttachedGood
	case e.Successes > 0:
		return AttachedWeak
	default:
		return FullyAttached
	}
}

// FindClosest returns up to k entries closest to target by XOR distance,
// in non-decreasing distance order (spec.md §8 P5).
func (t *Table) FindClosest(from phony.Actor, target types.NodeID, k int) <-chan []types.PeerInfo {
	result := make(chan []types.PeerInfo, 1)
	t.Act(from, func() {
		type scored struct {
			peer types.PeerInfo
			dist []byte
		}
		var all []scored
		for i := range t.buckets {
			for _, e := range t.buckets[i].entries {
				all = append(all, scored{peer: e.Peer, dist: crypto.Distance(target.Value[:], e.Peer.NodeID.Value[:])})
			}
		}
		sort.Slice(all, func(i, j int) bool {
			return compareBytes(all[i].dist, all[j].dist) < 0
		})
		if k > len(all) {
			k = len(all)
		}
		out := make([]types.PeerInfo, k)
		for i := 0; i < k; i++ {
			out[i] = all[i].peer
		}
		result <- out
	})
	return result
}

func compareBytes(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Bootstrap seeds the table from a single known-good peer, verifying it
// exactly like any other AddOrUpdateWithKey call.
func (t *Table) Bootstrap(from phony.Actor, seed types.PeerInfo, signerPublicKey []byte) error {
	return <-t.AddOrUpdateWithKey(from, seed, signerPublicKey)
}

// Lookup returns the cached PeerInfo for id, if any. Other packages (route,
// rpc) depend on this through their own narrow interfaces rather than a
// concrete *Table pointer, so they can be built and tested without a
// routing import — the same ownership-cycle avoidance the teacher uses
// between its router and peers packages.
func (t *Table) Lookup(from phony.Actor, id types.NodeID) <-chan *types.PeerInfo {
	result := make(chan *types.PeerInfo, 1)
	t.Act(from, func() {
		idx := t.bucketIndex(id)
		for _, e := range t.buckets[idx].entries {
			if e.Peer.NodeID.Equal(id) {
				peer := e.Peer
				result <- &peer
				return
			}
		}
		result <- nil
	})
	return result
}

// Size returns the total number of entries across all buckets, mostly for
// tests and metrics.
func (t *Table) Size(from phony.Actor) <-chan int {
	result := make(chan int, 1)
	t.Act(from, func() {
		n := 0
		for i := range t.buckets {
			n += len(t.buckets[i].entries)
		}
		result <- n
	})
	return result
}
