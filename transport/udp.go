package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/veilnet/veilnet/verrors"
	"github.com/veilnet/veilnet/wire"
)

// udpRemoteConn adapts a shared net.PacketConn plus one remote address to
// the net.Conn shape Connection expects, since UDP has no per-peer socket
// of its own.
type udpRemoteConn struct {
	pc     net.PacketConn
	remote net.Addr
}

func (u *udpRemoteConn) Read(b []byte) (int, error)         { return 0, fmt.Errorf("udpRemoteConn: use the shared listener's read loop") }
func (u *udpRemoteConn) Write(b []byte) (int, error)        { return u.pc.WriteTo(b, u.remote) }
func (u *udpRemoteConn) Close() error                       { return nil } // the shared listener owns the real socket
func (u *udpRemoteConn) LocalAddr() net.Addr                { return u.pc.LocalAddr() }
func (u *udpRemoteConn) RemoteAddr() net.Addr                { return u.remote }
func (u *udpRemoteConn) SetDeadline(t time.Time) error      { return nil }
func (u *udpRemoteConn) SetReadDeadline(t time.Time) error  { return nil }
func (u *udpRemoteConn) SetWriteDeadline(t time.Time) error { return nil }

// writeUDPFrame writes payload as one self-framed datagram (spec.md §6:
// "UDP (datagram per envelope, ≤ MTU; oversized fragments rejected)").
func writeUDPFrame(w interface{ Write([]byte) (int, error) }, payload []byte) error {
	if len(payload) > wire.MaxEnvelopeSize {
		return fmt.Errorf("%w: datagram of %d bytes exceeds cap", verrors.MalformedMessage, len(payload))
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("%w: %s", verrors.NoConnection, err)
	}
	return nil
}

// readUDPLoop is the shared datagram receive loop used by a listening UDP
// socket. Unlike TCP/WS, one net.PacketConn serves every remote peer, so
// the ConnTable resolves (or creates) a Connection per source address
// before handing the decoded envelope to handler.
func readUDPLoop(pc net.PacketConn, table *ConnTable, handler FrameHandler) {
	buf := make([]byte, wire.MaxEnvelopeSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue // keepalive
		}
		env, err := wire.DecodeEnvelope(buf[:n])
		if err != nil {
			continue // MalformedMessage: silently drop the datagram, no per-datagram connection to penalize
		}
		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		ap := udpAddr.AddrPort()
		c := table.udpConnFor(pc, ap)
		c.touch()
		handler(c, env)
	}
}
