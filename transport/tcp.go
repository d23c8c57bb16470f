package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"github.com/veilnet/veilnet/wire"
)

// writeFrame dispatches to the wire framing for this Connection's
// Protocol. It must only be called from within the Connection's Inbox.
func (c *Connection) writeFrame(payload []byte) error {
	if c.closed {
		return fmt.Errorf("%w: connection closed", verrors.NoConnection)
	}
	c.resetKeepAlive()
	switch c.protocol {
	case types.ProtocolTCP:
		return writeTCPFrame(c.conn, payload)
	case types.ProtocolWS, types.ProtocolWSS:
		return writeWSFrame(c.conn, payload)
	default:
		return writeUDPFrame(c.conn, payload)
	}
}

// writeTCPFrame writes a u32-LE length prefix followed by payload
// (spec.md §6: "TCP (length-prefixed: u32 LE length, then bytes)"),
// generalized from the teacher's u16-BE peers.go framing to match the
// spec's declared wire format.
func writeTCPFrame(w io.Writer, payload []byte) error {
	if len(payload) > wire.MaxEnvelopeSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds cap", verrors.MalformedMessage, len(payload))
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: %s", verrors.NoConnection, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("%w: %s", verrors.NoConnection, err)
	}
	return nil
}

func readTCPFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %s", verrors.NoConnection, err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > wire.MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds cap", verrors.MalformedMessage, n)
	}
	if n == 0 {
		return nil, nil // keepalive
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %s", verrors.NoConnection, err)
	}
	return buf, nil
}

// readTCPLoop feeds decoded envelopes from conn to handler until conn
// closes or a MalformedMessage is seen, at which point the connection is
// closed and the peer's slot is freed (spec.md §7: "Connection closed;
// peer penalized").
func readTCPLoop(c *Connection, conn net.Conn, handler FrameHandler) {
	defer c.Close()
	for {
		buf, err := readTCPFrame(conn)
		if err != nil {
			return
		}
		c.touch()
		if buf == nil {
			continue // keepalive frame
		}
		env, err := wire.DecodeEnvelope(buf)
		if err != nil {
			return
		}
		handler(c, env)
	}
}
