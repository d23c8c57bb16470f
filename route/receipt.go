// Package route implements the Private-Route Engine of spec.md §4.6:
// safety-route/private-route construction, onion forwarding, and receipt
// tracking for hole-punch and reverse-connect confirmation.
package route

import (
	"sync"
	"time"

	bloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/veilnet/veilnet/types"
)

// receiptFilterM/K mirror the teacher's bloom filter sizing in
// network/bloomfilter.go, repurposed here from tree-membership tracking to
// receipt dedup: a receipt only needs a probabilistic "have I seen this"
// check, backed by an exact map to resolve the rare false positive.
const (
	receiptFilterM = 8192
	receiptFilterK = 22
)

// receiptTracker is a rotating pair of bloom filters plus an exact
// overflow map, giving TTL-bounded receipt dedup without an unbounded set
// (spec.md §4.6: "tracked in a time-bounded in-memory set").
type receiptTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	exact    map[types.Receipt]time.Time
	lastSwap time.Time
}

func newReceiptTracker(ttl time.Duration) *receiptTracker {
	return &receiptTracker{
		ttl:      ttl,
		current:  bloom.New(receiptFilterM, receiptFilterK),
		previous: bloom.New(receiptFilterM, receiptFilterK),
		exact:    make(map[types.Receipt]time.Time),
		lastSwap: time.Now(),
	}
}

// seen records receipt if it hasn't been seen within the TTL window and
// reports whether this call is the first sighting. Duplicate receipts
// report false and are otherwise ignored (spec.md §4.6).
func (rt *receiptTracker) seen(receipt types.Receipt) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := time.Now()
	if now.Sub(rt.lastSwap) > rt.ttl {
		rt.previous = rt.current
		rt.current = bloom.New(receiptFilterM, receiptFilterK)
		rt.lastSwap = now
		for r, t := range rt.exact {
			if now.Sub(t) > rt.ttl {
				delete(rt.exact, r)
			}
		}
	}

	if rt.current.Test(receipt[:]) || rt.previous.Test(receipt[:]) {
		if _, ok := rt.exact[receipt]; ok {
			return false // confirmed duplicate
		}
		// bloom false positive: not actually seen before, fall through to record it
	}

	rt.current.Add(receipt[:])
	rt.exact[receipt] = now
	return true
}
