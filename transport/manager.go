package transport

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
)

func parseHostPort(hostport string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(hostport)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %s", verrors.MalformedMessage, err)
	}
	return ap, nil
}

// Limits bounds the connection table, per spec.md §4.3: "Connection table
// caps (from config): per-IP v4, per-/56 v6, per-minute connection
// frequency."
type Limits struct {
	PerIPv4          int
	PerIPv6Slash56   int
	PerMinuteConnect int
	InactivityTimeout time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		PerIPv4:           8,
		PerIPv6Slash56:    8,
		PerMinuteConnect:  30,
		InactivityTimeout: 5 * time.Minute,
	}
}

// ConnTable tracks live Connections and enforces Limits, grounded on the
// teacher's peers.init/addPeer/removePeer trio (network/peers.go) but
// generalized from an unbounded map to a capped, keyed-by-source table
// (spec.md §4.3, "evicting LRU if per-IP cap exceeded").
type ConnTable struct {
	mu          sync.Mutex
	limits      Limits
	byKey       map[netip.AddrPort][]*Connection
	udpByRemote map[netip.AddrPort]*Connection
	recentConn  map[netip.Addr][]time.Time
}

func NewConnTable(limits Limits) *ConnTable {
	return &ConnTable{
		limits:      limits,
		byKey:       make(map[netip.AddrPort][]*Connection),
		udpByRemote: make(map[netip.AddrPort]*Connection),
		recentConn:  make(map[netip.Addr][]time.Time),
	}
}

func ipGroupKey(addr netip.Addr) netip.Addr {
	if addr.Is4() {
		return addr
	}
	// per-/56 grouping for v6, per spec.md §4.3.
	b := addr.As16()
	for i := 7; i < 16; i++ {
		b[i] = 0
	}
	return netip.AddrFrom16(b)
}

func (t *ConnTable) checkAndRecordRate(addr netip.Addr) error {
	now := time.Now()
	cutoff := now.Add(-time.Minute)
	t.mu.Lock()
	defer t.mu.Unlock()
	hist := t.recentConn[addr]
	kept := hist[:0]
	for _, ts := range hist {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= t.limits.PerMinuteConnect {
		t.recentConn[addr] = kept
		return fmt.Errorf("%w: connection frequency cap exceeded for %s", verrors.RateLimited, addr)
	}
	t.recentConn[addr] = append(kept, now)
	return nil
}

func (t *ConnTable) countForGroup(group netip.Addr) int {
	n := 0
	for key, conns := range t.byKey {
		if ipGroupKey(key.Addr()) == group {
			n += len(conns)
		}
	}
	return n
}

// acceptInbound registers a newly accepted connection-oriented socket,
// enforcing per-IP/per-/56 caps by evicting the group's oldest connection
// (spec.md §4.3: "evicting LRU if per-IP cap exceeded").
func (t *ConnTable) acceptInbound(conn net.Conn, protocol types.Protocol, remote netip.AddrPort) (*Connection, error) {
	if err := t.checkAndRecordRate(remote.Addr()); err != nil {
		return nil, err
	}
	group := ipGroupKey(remote.Addr())
	limit := t.limits.PerIPv4
	if remote.Addr().Is6() {
		limit = t.limits.PerIPv6Slash56
	}

	t.mu.Lock()
	if t.countForGroup(group) >= limit {
		t.evictOldestInGroupLocked(group)
	}
	c := newConnection(t, conn, protocol, remote)
	t.byKey[remote] = append(t.byKey[remote], c)
	t.mu.Unlock()
	return c, nil
}

func (t *ConnTable) evictOldestInGroupLocked(group netip.Addr) {
	var oldest *Connection
	var oldestKey netip.AddrPort
	for key, conns := range t.byKey {
		if ipGroupKey(key.Addr()) != group {
			continue
		}
		for _, c := range conns {
			if oldest == nil || c.lastSeen.Before(oldest.lastSeen) {
				oldest = c
				oldestKey = key
			}
		}
	}
	if oldest != nil {
		_ = oldestKey
		t.mu.Unlock()
		_ = oldest.Close()
		t.mu.Lock()
	}
}

// udpConnFor returns (creating if needed) the Connection representing one
// UDP remote peer on a shared listening socket.
func (t *ConnTable) udpConnFor(pc net.PacketConn, remote netip.AddrPort) *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.udpByRemote[remote]; ok {
		return c
	}
	conn := &udpRemoteConn{pc: pc, remote: net.UDPAddrFromAddrPort(remote)}
	c := newConnection(t, conn, types.ProtocolUDP, remote)
	t.udpByRemote[remote] = c
	return c
}

func (t *ConnTable) remove(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.protocol == types.ProtocolUDP {
		if cur, ok := t.udpByRemote[c.remote]; ok && cur == c {
			delete(t.udpByRemote, c.remote)
		}
		return
	}
	conns := t.byKey[c.remote]
	for i, x := range conns {
		if x == c {
			t.byKey[c.remote] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(t.byKey[c.remote]) == 0 {
		delete(t.byKey, c.remote)
	}
}

// ConnectionsFor returns the live connections toward remote, oldest first
// (the order they were registered in).
func (t *ConnTable) ConnectionsFor(remote netip.AddrPort) []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.udpByRemote[remote]; ok {
		return []*Connection{c}
	}
	return append([]*Connection(nil), t.byKey[remote]...)
}

// sweepIdle closes every connection that has been silent longer than the
// configured inactivity timeout (spec.md §4.3).
func (t *ConnTable) sweepIdle() {
	cutoff := time.Now().Add(-t.limits.InactivityTimeout)
	var stale []*Connection
	t.mu.Lock()
	for _, conns := range t.byKey {
		for _, c := range conns {
			if c.lastSeen.Before(cutoff) {
				stale = append(stale, c)
			}
		}
	}
	for _, c := range t.udpByRemote {
		if c.lastSeen.Before(cutoff) {
			stale = append(stale, c)
		}
	}
	t.mu.Unlock()
	for _, c := range stale {
		_ = c.Close()
	}
}
