// Package transport implements the Network Manager of spec.md §4.3:
// per-protocol listeners and dialers, a capped connection table, and the
// send_to policy that picks a connection for an outbound envelope.
//
// Each Connection runs its own phony.Inbox actor, mirroring the teacher's
// per-peer actor in network/peers.go — outbound sends, keepalives and
// close are serialized through the Inbox so a Connection's mutable state
// (write buffer, keepalive timer, backoff delay) never needs its own lock.
// Inbound frames are decoded and handed to the FrameHandler on the
// connection's read-loop goroutine, not on the Inbox.
package transport

import (
	"net"
	"net/netip"
	"time"

	"github.com/Arceliar/phony"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/wire"
)

// FrameHandler is invoked once per decoded Envelope arriving on a
// Connection. It runs on that connection's read-loop goroutine
// (readTCPLoop, readUDPLoop or readWSLoop), not on the Connection's Inbox.
type FrameHandler func(c *Connection, env *types.Envelope)

const (
	initKeepAliveDelay = 4 * time.Second
	minKeepAliveDelay  = 1 * time.Second
	maxKeepAliveDelay  = 10 * time.Second
)

// Connection wraps one net.Conn (or a UDP remote address, for the
// connectionless case) with the framing needed for its Protocol.
type Connection struct {
	phony.Inbox
	table    *ConnTable
	conn     net.Conn
	protocol types.Protocol
	remote   netip.AddrPort
	peer     types.NodeID
	hasPeer  bool

	timer     *time.Timer
	delay     time.Duration
	lastSeen  time.Time
	sendQueue [][]byte
	closed    bool
}

func newConnection(table *ConnTable, conn net.Conn, protocol types.Protocol, remote netip.AddrPort) *Connection {
	c := &Connection{
		table:    table,
		conn:     conn,
		protocol: protocol,
		remote:   remote,
		delay:    initKeepAliveDelay,
		lastSeen: time.Now(),
	}
	c.timer = time.AfterFunc(0, func() {})
	return c
}

// Protocol reports which transport this Connection was accepted or dialed
// over.
func (c *Connection) Protocol() types.Protocol { return c.protocol }

// RemoteAddr is the peer socket address this connection targets.
func (c *Connection) RemoteAddr() netip.AddrPort { return c.remote }

// BindPeer records which NodeID this connection has authenticated as, once
// known — connections may be accepted before the far end's identity is
// verified.
func (c *Connection) BindPeer(id types.NodeID) {
	c.Act(nil, func() {
		c.peer = id
		c.hasPeer = true
	})
}

// PeerID returns the NodeID BindPeer most recently recorded for this
// connection, or the zero NodeID and false if the handshake hasn't bound
// one yet.
func (c *Connection) PeerID() (types.NodeID, bool) {
	out := make(chan struct {
		id types.NodeID
		ok bool
	}, 1)
	c.Act(nil, func() { out <- struct {
		id types.NodeID
		ok bool
	}{c.peer, c.hasPeer} })
	r := <-out
	return r.id, r.ok
}

func (c *Connection) touch() {
	c.lastSeen = time.Now()
}

// Send frames env and writes it out, running the frame + write on this
// Connection's Inbox so concurrent senders never interleave partial
// writes (grounded on peerWriter.sendPacket's Act-serialized write path).
func (c *Connection) Send(env *types.Envelope) error {
	buf, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	c.Act(nil, func() {
		errCh <- c.writeFrame(buf)
	})
	return <-errCh
}

func (c *Connection) resetKeepAlive() {
	c.timer.Stop()
	c.timer = time.AfterFunc(c.delay, c.sendKeepAlive)
}

func (c *Connection) sendKeepAlive() {
	c.Act(nil, func() {
		if c.closed {
			return
		}
		_ = c.writeFrame(nil) // empty frame = keepalive, mirrors teacher's wireKeepAlive
		if c.delay < maxKeepAliveDelay {
			c.delay *= 2
			if c.delay > maxKeepAliveDelay {
				c.delay = maxKeepAliveDelay
			}
		}
	})
}

// Close marks the connection dead and releases its slot in the owning
// ConnTable.
func (c *Connection) Close() error {
	var err error
	c.Act(nil, func() {
		if c.closed {
			return
		}
		c.closed = true
		c.timer.Stop()
		err = c.conn.Close()
	})
	c.table.remove(c)
	return err
}
