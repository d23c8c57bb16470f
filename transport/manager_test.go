package transport

import (
	"net/netip"
	"testing"
	"time"

	"github.com/veilnet/veilnet/types"
)

func TestTCPRoundTrip(t *testing.T) {
	received := make(chan *types.Envelope, 1)
	handler := func(c *Connection, env *types.Envelope) {
		received <- env
	}

	serverMgr := NewManager(DefaultLimits(), handler, func(types.NodeID) []netip.AddrPort { return nil })
	l, err := serverMgr.listenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	clientMgr := NewManager(DefaultLimits(), handler, func(types.NodeID) []netip.AddrPort { return nil })
	addr := l.Addr().String()
	ap, err := parseHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	c, err := clientMgr.Dial(types.DialInfo{Protocol: types.ProtocolTCP, Addr: ap})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	env := &types.Envelope{OpID: 99, Kind: types.MessageKindStatement, Body: statusStatement()}
	if err := c.Send(env); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-received:
		if got.OpID != 99 {
			t.Fatalf("opID mismatch: got %d", got.OpID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestConnTableEnforcesPerIPCap(t *testing.T) {
	limits := DefaultLimits()
	limits.PerIPv4 = 1
	limits.PerMinuteConnect = 100
	table := NewConnTable(limits)

	addr := netip.MustParseAddrPort("198.51.100.7:4000")
	first, err := table.acceptInbound(&nopConn{}, types.ProtocolTCP, addr)
	if err != nil {
		t.Fatal(err)
	}
	second, err := table.acceptInbound(&nopConn{}, types.ProtocolTCP, addr)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("expected distinct connections")
	}
	conns := table.ConnectionsFor(addr)
	if len(conns) != 1 {
		t.Fatalf("expected the cap to evict down to 1 connection, got %d", len(conns))
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	limits := DefaultLimits()
	limits.PerMinuteConnect = 1
	table := NewConnTable(limits)
	addr := netip.MustParseAddrPort("198.51.100.8:4000")
	if _, err := table.acceptInbound(&nopConn{}, types.ProtocolTCP, addr); err != nil {
		t.Fatal(err)
	}
	if _, err := table.acceptInbound(&nopConn{}, types.ProtocolTCP, addr); err == nil {
		t.Fatal("expected the second connection within the same minute to be rate limited")
	}
}
