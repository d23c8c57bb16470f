package rpc

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/veilnet/veilnet/store"
	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
)

// encodeValueData/decodeValueData give valueStore its own storage encoding
// for types.ValueData, independent of the wire codec's envelope framing —
// the field layout matches wire/op_dht.go's (4-byte length + data + a
// 4-byte Seq), but the integers here are big-endian where the wire codec
// is little-endian, so the bytes differ. valueStore is not obliged to track
// the wire layout, since this is a local storage format, not a wire one.
func encodeValueData(v types.ValueData) []byte {
	out := make([]byte, 4+len(v.Data)+4)
	binary.BigEndian.PutUint32(out, uint32(len(v.Data)))
	copy(out[4:], v.Data)
	binary.BigEndian.PutUint32(out[4+len(v.Data):], v.Seq)
	return out
}

func decodeValueData(raw []byte) (*types.ValueData, error) {
	if len(raw) < 8 {
		return nil, verrors.MalformedMessage
	}
	n := binary.BigEndian.Uint32(raw)
	if uint64(n) > uint64(len(raw)-8) {
		return nil, verrors.MalformedMessage
	}
	data := make([]byte, n)
	copy(data, raw[4:4+n])
	seq := binary.BigEndian.Uint32(raw[4+n:])
	return &types.ValueData{Data: data, Seq: seq}, nil
}

// Table is the storage abstraction the value store is built on — the same
// abstract (key bytes -> value bytes) interface store.MemTable and
// store.BoltTable both satisfy (SPEC_FULL.md §6), so a Dispatcher never
// cares which backend a node was configured with.
type Table = store.Table

// watcher is one outstanding WatchValueQ subscription.
type watcher struct {
	key        types.ValueKey
	subscriber types.NodeID
	route      *types.PrivateRoute
	expires    time.Time
}

// valueStore backs GetValueQ/SetValueQ/WatchValueQ against a Table,
// applying the strict Seq-increase acceptance rule (spec.md §3, invariant
// P2) and fanning ValueChanged Statements out to registered watchers.
// Grounded on network/router.go's own pattern of an in-process map guarded
// by the owning actor rather than its own lock — here a plain
// sync.Mutex, since valueStore is a passive helper invoked only from
// inside Dispatcher's phony.Inbox and never dispatches its own actions.
type valueStore struct {
	table Table

	mu       sync.Mutex
	watchers map[string][]*watcher
}

func newValueStore(t Table) *valueStore {
	return &valueStore{table: t, watchers: make(map[string][]*watcher)}
}

func valueTableKey(k types.ValueKey) []byte {
	key := make([]byte, 0, types.ValueKeyLocationLen+len(k.Subkey))
	key = append(key, k.Location[:]...)
	key = append(key, k.Subkey...)
	return key
}

func (s *valueStore) get(k types.ValueKey) (*types.ValueData, error) {
	raw, err := s.table.Get(valueTableKey(k))
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	v, err := decodeValueData(raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// set applies the strict-increase rule and reports whether the write was
// accepted, plus the value now stored (spec.md §4.7's SetValueA shape).
func (s *valueStore) set(k types.ValueKey, v types.ValueData) (accepted bool, stored types.ValueData, err error) {
	cur, err := s.get(k)
	if err != nil {
		return false, v, err
	}
	if cur != nil && !v.Newer(*cur) {
		return false, *cur, nil
	}
	if err := s.table.Put(valueTableKey(k), encodeValueData(v)); err != nil {
		return false, v, err
	}
	return true, v, nil
}

func (s *valueStore) watch(k types.ValueKey, subscriber types.NodeID, route *types.PrivateRoute, ttl time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires := time.Now().Add(ttl)
	list := s.watchers[string(valueTableKey(k))]
	for _, w := range list {
		if w.subscriber.Equal(subscriber) {
			w.expires = expires
			w.route = route
			return expires
		}
	}
	s.watchers[string(valueTableKey(k))] = append(list, &watcher{key: k, subscriber: subscriber, route: route, expires: expires})
	return expires
}

// activeWatchers is invoked when a local SetValueQ succeeds; it drops
// expired subscriptions and returns the live ones, to each of which the
// Dispatcher pushes a ValueChanged Statement.
func (s *valueStore) activeWatchers(k types.ValueKey) []*watcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	key := string(valueTableKey(k))
	list := s.watchers[key]
	live := list[:0]
	for _, w := range list {
		if w.expires.After(now) {
			live = append(live, w)
		}
	}
	s.watchers[key] = live
	out := make([]*watcher, len(live))
	copy(out, live)
	return out
}

// notifyValueChanged handles an inbound ValueChanged Statement (this node is
// the watcher, not the store owner) by invoking the Dispatcher's
// OnValueChanged application hook, if any is registered.
func (d *Dispatcher) notifyValueChanged(key types.ValueKey, value types.ValueData) {
	if d.OnValueChanged != nil {
		d.OnValueChanged(key, value)
	}
}
