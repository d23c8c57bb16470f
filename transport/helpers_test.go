package transport

import (
	"net"
	"time"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/wire"
)

func statusStatement() types.OperationBody {
	return &wire.AppMessage{Payload: []byte("ping")}
}

// nopConn is a minimal net.Conn stub for exercising ConnTable bookkeeping
// without a real socket.
type nopConn struct{}

func (nopConn) Read([]byte) (int, error)         { return 0, net.ErrClosed }
func (nopConn) Write(b []byte) (int, error)      { return len(b), nil }
func (nopConn) Close() error                     { return nil }
func (nopConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (nopConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (nopConn) SetDeadline(t time.Time) error    { return nil }
func (nopConn) SetReadDeadline(t time.Time) error { return nil }
func (nopConn) SetWriteDeadline(t time.Time) error { return nil }
